// Package session manages the authentication lifecycle: stateless JWT
// issuance and verification, plus a persisted token table used for
// server-side expiry bookkeeping. The JWT and the token row share only the
// user; they are not cryptographically linked.
package session

import "time"

// Token is a persisted session record. Value is an opaque secret string,
// distinct from the bearer JWT.
type Token struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"user_id"`
	Value       string     `json:"value"`
	IssuedAt    time.Time  `json:"issued_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	ValidatedAt *time.Time `json:"validated_at,omitempty"`
	Validated   bool       `json:"validated"`
	CreatedBy   string     `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedBy   string     `json:"updated_by,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// NewToken carries the fields needed to insert a token row.
type NewToken struct {
	UserID    int64
	Value     string
	IssuedAt  time.Time
	ExpiresAt time.Time
	CreatedBy string
}
