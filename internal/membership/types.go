// Package membership is the core of the authorization model: it binds a user
// to an owner for a bounded or unbounded validity window and carries the
// roles and direct actions granted under that binding.
package membership

import "time"

// Kind is the closed membership-kind enumeration.
type Kind string

const (
	KindTrial     Kind = "trial"
	KindContract  Kind = "contract"
	KindPermanent Kind = "permanent"
)

// Valid reports whether k is one of the recognized enumerators.
func (k Kind) Valid() bool {
	switch k {
	case KindTrial, KindContract, KindPermanent:
		return true
	}
	return false
}

// Status is the stored membership state. Expiry is not a stored state: it is
// the computed predicate IsActive.
type Status string

const (
	StatusActive         Status = "active"
	StatusDecommissioned Status = "decommissioned"
)

// OwnerStatus is the closed owner-status enumeration.
type OwnerStatus string

const (
	OwnerActive   OwnerStatus = "active"
	OwnerInactive OwnerStatus = "inactive"
)

// Owner is the tenant/scope entity a membership grants access to.
type Owner struct {
	ID        int64       `json:"id"`
	TaxID     string      `json:"tax_id"`
	LegalID   string      `json:"legal_id"`
	Name      string      `json:"name"`
	Status    OwnerStatus `json:"status"`
	CreatedBy string      `json:"created_by"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedBy string      `json:"updated_by,omitempty"`
	UpdatedAt *time.Time  `json:"updated_at,omitempty"`
}

// NewOwner carries the fields needed to insert an owner row.
type NewOwner struct {
	TaxID     string
	LegalID   string
	Name      string
	CreatedBy string
}

// OwnerUpdate is a structured partial update; nil fields retain their value.
type OwnerUpdate struct {
	TaxID     *string
	LegalID   *string
	Name      *string
	Status    *OwnerStatus
	UpdatedBy string
}

// Membership binds exactly one user to exactly one owner. ValidUntil nil
// means indefinite. Deletion is soft: Decommission flips the status and the
// row survives.
type Membership struct {
	ID         int64      `json:"id"`
	UserID     int64      `json:"user_id"`
	OwnerID    int64      `json:"owner_id"`
	Kind       Kind       `json:"kind"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`
	Status     Status     `json:"status"`
	CreatedBy  string     `json:"created_by"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedBy  string     `json:"updated_by,omitempty"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
}

// IsActive reports whether the membership grants access at the given
// instant: not decommissioned, and either indefinite or not yet past its
// validity window. ValidUntil exactly equal to now still counts as active.
func (m Membership) IsActive(now time.Time) bool {
	if m.Status == StatusDecommissioned {
		return false
	}
	return m.ValidUntil == nil || !m.ValidUntil.Before(now)
}

// NewMembership carries the fields needed to insert a membership row.
type NewMembership struct {
	UserID     int64
	OwnerID    int64
	Kind       Kind
	ValidUntil *time.Time
	CreatedBy  string
}

// Update is a structured partial update. Nil fields retain their prior
// value; a validity window cannot be cleared through Update, only extended
// or shortened.
type Update struct {
	Kind       *Kind
	ValidUntil *time.Time
	UpdatedBy  string
}

// RoleBinding is a role granted under a specific membership.
type RoleBinding struct {
	MembershipID int64     `json:"membership_id"`
	RoleID       int64     `json:"role_id"`
	CreatedBy    string    `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
}

// ActionBinding is an action granted directly under a membership,
// independent of any role.
type ActionBinding struct {
	MembershipID int64     `json:"membership_id"`
	ActionID     int64     `json:"action_id"`
	CreatedBy    string    `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
}
