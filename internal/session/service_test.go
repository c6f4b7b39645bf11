package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"seguridad.dev/internal/access"
)

type stubStore struct {
	createTokenFn         func(context.Context, NewToken) (Token, error)
	findTokenByValueFn    func(context.Context, string) (Token, error)
	deleteExpiredTokensFn func(context.Context, time.Time) (int64, error)
}

func (s *stubStore) CreateToken(ctx context.Context, t NewToken) (Token, error) {
	if s.createTokenFn != nil {
		return s.createTokenFn(ctx, t)
	}
	return Token{ID: 1, UserID: t.UserID, Value: t.Value, IssuedAt: t.IssuedAt, ExpiresAt: t.ExpiresAt}, nil
}
func (s *stubStore) GetToken(context.Context, int64) (Token, error) { return Token{}, nil }
func (s *stubStore) FindTokenByValue(ctx context.Context, value string) (Token, error) {
	if s.findTokenByValueFn != nil {
		return s.findTokenByValueFn(ctx, value)
	}
	return Token{}, fmt.Errorf("%w: token", access.ErrNotFound)
}
func (s *stubStore) ListTokensByUser(context.Context, int64) ([]Token, error) { return nil, nil }
func (s *stubStore) MarkTokenValidated(context.Context, int64, time.Time, string) (Token, error) {
	return Token{}, nil
}
func (s *stubStore) DeleteToken(context.Context, int64) error { return nil }
func (s *stubStore) DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	if s.deleteExpiredTokensFn != nil {
		return s.deleteExpiredTokensFn(ctx, now)
	}
	return 0, nil
}

func newTestSessionService(t *testing.T, store Store, now func() time.Time) *Service {
	t.Helper()
	svc, err := NewService(store, "test-secret", time.Hour, WithClock(now))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestIssueAndVerifyRoundtrip(t *testing.T) {
	frozen := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	svc := newTestSessionService(t, &stubStore{}, func() time.Time { return frozen })

	signed, record, err := svc.Issue(context.Background(), 42, "jdoe")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if record.UserID != 42 {
		t.Fatalf("token record user = %d, want 42", record.UserID)
	}
	if !record.ExpiresAt.Equal(frozen.Add(time.Hour)) {
		t.Fatalf("token record expiry = %v", record.ExpiresAt)
	}
	if record.Value == signed {
		t.Fatal("persisted value must not be the JWT itself")
	}

	claims, err := svc.Verify(signed)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	userID, err := claims.UserID()
	if err != nil || userID != 42 {
		t.Fatalf("claims user = %d, err %v", userID, err)
	}
	if claims.Username != "jdoe" {
		t.Fatalf("claims username = %q", claims.Username)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	svc := newTestSessionService(t, &stubStore{}, func() time.Time { return now })

	signed, _, err := svc.Issue(context.Background(), 1, "jdoe")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// Move the clock past expiry.
	now = now.Add(2 * time.Hour)
	if _, err := svc.Verify(signed); !errors.Is(err, access.ErrUnauthorized) {
		t.Fatalf("expected unauthorized for expired token, got %v", err)
	}
}

func TestVerifyRejectsForeignSignature(t *testing.T) {
	frozen := time.Now()
	svc := newTestSessionService(t, &stubStore{}, func() time.Time { return frozen })
	other, err := NewService(&stubStore{}, "other-secret", time.Hour, WithClock(func() time.Time { return frozen }))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	signed, _, err := other.Issue(context.Background(), 1, "jdoe")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := svc.Verify(signed); !errors.Is(err, access.ErrUnauthorized) {
		t.Fatalf("expected unauthorized for foreign signature, got %v", err)
	}
}

func TestRefreshExtendsLifetime(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	svc := newTestSessionService(t, &stubStore{}, func() time.Time { return now })

	signed, _, err := svc.Issue(context.Background(), 7, "jdoe")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := svc.Verify(signed)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}

	now = now.Add(30 * time.Minute)
	refreshed, expiresAt, err := svc.Refresh(context.Background(), claims)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if !expiresAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("refreshed expiry = %v, want %v", expiresAt, now.Add(time.Hour))
	}
	if _, err := svc.Verify(refreshed); err != nil {
		t.Fatalf("refreshed token should verify: %v", err)
	}
}

func TestSweepExpiredReportsCount(t *testing.T) {
	frozen := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	store := &stubStore{
		deleteExpiredTokensFn: func(_ context.Context, now time.Time) (int64, error) {
			if !now.Equal(frozen) {
				return 0, fmt.Errorf("unexpected sweep cutoff %v", now)
			}
			return 2, nil
		},
	}
	svc := newTestSessionService(t, store, func() time.Time { return frozen })

	count, err := svc.SweepExpired(context.Background())
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if count != 2 {
		t.Fatalf("sweep count = %d, want 2", count)
	}
}

func TestIsValid(t *testing.T) {
	frozen := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	store := &stubStore{
		findTokenByValueFn: func(_ context.Context, value string) (Token, error) {
			switch value {
			case "live":
				return Token{Value: value, ExpiresAt: frozen.Add(time.Minute)}, nil
			case "stale":
				return Token{Value: value, ExpiresAt: frozen.Add(-time.Minute)}, nil
			}
			return Token{}, fmt.Errorf("%w: token", access.ErrNotFound)
		},
	}
	svc := newTestSessionService(t, store, func() time.Time { return frozen })

	cases := []struct {
		value string
		want  bool
	}{
		{"live", true},
		{"stale", false},
		{"missing", false},
	}
	for _, tc := range cases {
		valid, err := svc.IsValid(context.Background(), tc.value)
		if err != nil {
			t.Fatalf("IsValid(%q): %v", tc.value, err)
		}
		if valid != tc.want {
			t.Fatalf("IsValid(%q) = %v, want %v", tc.value, valid, tc.want)
		}
	}
}

func TestIdentityHasRole(t *testing.T) {
	id := Identity{UserID: 1, Roles: []string{"Admin", "viewer"}}
	if !id.HasRole("admin") || !id.HasRole("VIEWER") {
		t.Fatal("role matching must be case-insensitive")
	}
	if id.HasRole("operator") || id.HasRole("") {
		t.Fatal("unexpected role match")
	}
}
