// Package credential owns user records: identity, hashed secret and status.
// Users are never hard-deleted; deactivation flips the status.
package credential

import "time"

// Status is the closed user-status enumeration.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusBlocked  Status = "blocked"
)

// Valid reports whether s is one of the recognized enumerators.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusBlocked:
		return true
	}
	return false
}

// User is an account that can authenticate and hold memberships.
// SecretHash never leaves the process boundary.
type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	SecretHash   string     `json:"-"`
	DisplayName  string     `json:"display_name"`
	Email        string     `json:"email"`
	Phone        string     `json:"phone,omitempty"`
	Status       Status     `json:"status"`
	CreatedBy    string     `json:"created_by"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedBy    string     `json:"updated_by,omitempty"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
	LastAccessAt *time.Time `json:"last_access_at,omitempty"`
}

// NewUser carries the fields needed to insert a user row.
type NewUser struct {
	Username    string
	SecretHash  string
	DisplayName string
	Email       string
	Phone       string
	Status      Status
	CreatedBy   string
}

// Registration is the boundary input for creating an account.
type Registration struct {
	Username    string
	Password    string
	DisplayName string
	Email       string
	Phone       string
	CreatedBy   string
}

// Update is a structured partial update; nil fields retain their value.
type Update struct {
	Username    *string
	DisplayName *string
	Email       *string
	Phone       *string
	Status      *Status
	UpdatedBy   string
}
