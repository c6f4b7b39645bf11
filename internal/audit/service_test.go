package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"seguridad.dev/internal/access"
)

type stubStore struct {
	appendFn func(context.Context, NewRecord) (Record, error)
}

func (s *stubStore) AppendRecord(ctx context.Context, r NewRecord) (Record, error) {
	if s.appendFn != nil {
		return s.appendFn(ctx, r)
	}
	return Record{ID: 1, UserID: r.UserID, Action: r.Action, Table: r.Table}, nil
}
func (s *stubStore) GetRecord(context.Context, int64) (Record, error)       { return Record{}, nil }
func (s *stubStore) RecordsByUser(context.Context, int64) ([]Record, error) { return nil, nil }
func (s *stubStore) RecordsByTable(context.Context, string) ([]Record, error) {
	return nil, nil
}
func (s *stubStore) RecordsByAction(context.Context, string) ([]Record, error) {
	return nil, nil
}
func (s *stubStore) RecordsByDateRange(context.Context, time.Time, time.Time) ([]Record, error) {
	return nil, nil
}
func (s *stubStore) RecordsByRecord(context.Context, string, int64) ([]Record, error) {
	return nil, nil
}
func (s *stubStore) SearchRecords(context.Context, string) ([]Record, error) { return nil, nil }

func newTestTrail(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(&stubStore{})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestRecordValidation(t *testing.T) {
	svc := newTestTrail(t)
	cases := []NewRecord{
		{UserID: 1, Table: "users"},
		{UserID: 1, Action: "user.update"},
		{Action: "user.update", Table: "users"},
		{UserID: 1, Action: "   ", Table: "users"},
	}
	for i, rec := range cases {
		if _, err := svc.Record(context.Background(), rec); !errors.Is(err, access.ErrInvalidInput) {
			t.Fatalf("case %d: expected invalid input, got %v", i, err)
		}
	}

	rec, err := svc.Record(context.Background(), NewRecord{UserID: 1, Action: "user.update", Table: "users"})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if rec.ID == 0 {
		t.Fatal("expected appended record id")
	}
}

// A store failure must propagate; audit writes are never best-effort.
func TestRecordPropagatesStoreFailure(t *testing.T) {
	boom := errors.New("disk full")
	svc, err := NewService(&stubStore{
		appendFn: func(context.Context, NewRecord) (Record, error) { return Record{}, boom },
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if _, err := svc.Record(context.Background(), NewRecord{UserID: 1, Action: "a", Table: "t"}); !errors.Is(err, boom) {
		t.Fatalf("expected store failure to propagate, got %v", err)
	}
}

func TestByDateRangeValidation(t *testing.T) {
	svc := newTestTrail(t)
	from := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	if _, err := svc.ByDateRange(context.Background(), from, from.Add(-time.Hour)); !errors.Is(err, access.ErrInvalidInput) {
		t.Fatalf("inverted range: expected invalid input, got %v", err)
	}
	if _, err := svc.ByDateRange(context.Background(), time.Time{}, from); !errors.Is(err, access.ErrInvalidInput) {
		t.Fatalf("zero from: expected invalid input, got %v", err)
	}
	if _, err := svc.ByDateRange(context.Background(), from, from.Add(time.Hour)); err != nil {
		t.Fatalf("valid range: %v", err)
	}
}

func TestSearchRequiresTerm(t *testing.T) {
	svc := newTestTrail(t)
	if _, err := svc.Search(context.Background(), "  "); !errors.Is(err, access.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
