package session

import (
	"context"
	"time"
)

// Store describes persistence operations for session tokens.
type Store interface {
	CreateToken(ctx context.Context, t NewToken) (Token, error)
	GetToken(ctx context.Context, id int64) (Token, error)
	FindTokenByValue(ctx context.Context, value string) (Token, error)
	ListTokensByUser(ctx context.Context, userID int64) ([]Token, error)
	MarkTokenValidated(ctx context.Context, id int64, at time.Time, by string) (Token, error)
	DeleteToken(ctx context.Context, id int64) error
	DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error)
}
