package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"seguridad.dev/internal/access"
	"seguridad.dev/internal/ids"
	"seguridad.dev/internal/obs"
)

const defaultIssuer = "seguridad"

// Claims are the JWT claims issued and verified by the service.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim into the user identifier.
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(c.Subject), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid subject", access.ErrUnauthorized)
	}
	return id, nil
}

// Service signs and verifies JWTs and manages the persisted token table.
type Service struct {
	store  Store
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// Option configures Service behavior.
type Option func(*Service)

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) Option {
	return func(s *Service) {
		if iss := strings.TrimSpace(issuer); iss != "" {
			s.issuer = iss
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs a session manager signing HS256 tokens with secret,
// valid for ttl.
func NewService(store Store, secret string, ttl time.Duration, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("session store is required")
	}
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("session secret is required")
	}
	if ttl <= 0 {
		return nil, errors.New("session ttl must be positive")
	}
	s := &Service{
		store:  store,
		secret: []byte(secret),
		ttl:    ttl,
		issuer: defaultIssuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue signs a JWT for the user and records a token row for server-side
// bookkeeping. The row's opaque value is independent of the JWT.
func (s *Service) Issue(ctx context.Context, userID int64, username string) (string, Token, error) {
	now := s.now().UTC()
	expiresAt := now.Add(s.ttl)

	signed, err := s.sign(userID, username, now, expiresAt)
	if err != nil {
		return "", Token{}, err
	}

	value, err := opaqueValue()
	if err != nil {
		return "", Token{}, err
	}
	record, err := s.store.CreateToken(ctx, NewToken{
		UserID:    userID,
		Value:     value,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
		CreatedBy: username,
	})
	if err != nil {
		return "", Token{}, err
	}
	return signed, record, nil
}

// Verify checks signature and expiry. Every failure collapses to
// access.ErrUnauthorized; callers cannot tell which check failed.
func (s *Service) Verify(tokenString string) (*Claims, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return nil, fmt.Errorf("%w: invalid token", access.ErrUnauthorized)
	}
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithIssuer(s.issuer))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid token", access.ErrUnauthorized)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("%w: invalid token", access.ErrUnauthorized)
	}
	if _, err := claims.UserID(); err != nil {
		return nil, fmt.Errorf("%w: invalid token", access.ErrUnauthorized)
	}
	return claims, nil
}

// Refresh re-issues a JWT for an already-authenticated caller. Pure lifetime
// extension: credentials are not re-checked and no token row is written.
func (s *Service) Refresh(ctx context.Context, claims *Claims) (string, time.Time, error) {
	userID, err := claims.UserID()
	if err != nil {
		return "", time.Time{}, err
	}
	now := s.now().UTC()
	expiresAt := now.Add(s.ttl)
	signed, err := s.sign(userID, claims.Username, now, expiresAt)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func (s *Service) sign(userID int64, username string, now, expiresAt time.Time) (string, error) {
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// --- persisted token records ---

func (s *Service) Get(ctx context.Context, id int64) (Token, error) {
	return s.store.GetToken(ctx, id)
}

func (s *Service) LookupByValue(ctx context.Context, value string) (Token, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Token{}, fmt.Errorf("%w: token value is required", access.ErrInvalidInput)
	}
	return s.store.FindTokenByValue(ctx, value)
}

func (s *Service) ListByUser(ctx context.Context, userID int64) ([]Token, error) {
	return s.store.ListTokensByUser(ctx, userID)
}

// MarkValidated stamps the token as consumed by a validation flow.
func (s *Service) MarkValidated(ctx context.Context, id int64, by string) (Token, error) {
	return s.store.MarkTokenValidated(ctx, id, s.now().UTC(), by)
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.store.DeleteToken(ctx, id)
}

// SweepExpired deletes every token row past its expiry and reports how many
// were removed. Scheduled periodically from main.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	count, err := s.store.DeleteExpiredTokens(ctx, s.now().UTC())
	if err != nil {
		return 0, err
	}
	if count > 0 {
		obs.TokenSweepDeleted.Add(float64(count))
	}
	return count, nil
}

// IsValid reports whether a token row exists for value and has not expired.
// A missing token is a false result, not an error.
func (s *Service) IsValid(ctx context.Context, value string) (bool, error) {
	token, err := s.LookupByValue(ctx, value)
	if err != nil {
		if errors.Is(err, access.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return token.ExpiresAt.After(s.now()), nil
}

// opaqueValue builds the persisted token secret: a sortable ULID prefix and
// 32 bytes of randomness.
func opaqueValue() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return ids.New() + "." + base64.RawURLEncoding.EncodeToString(buf), nil
}
