package membership

import (
	"context"

	"seguridad.dev/internal/grant"
)

// Store describes persistence operations for owners, memberships and their
// role/action bindings.
type Store interface {
	CreateOwner(ctx context.Context, o NewOwner) (Owner, error)
	GetOwner(ctx context.Context, id int64) (Owner, error)
	ListOwners(ctx context.Context) ([]Owner, error)
	UpdateOwner(ctx context.Context, id int64, upd OwnerUpdate) (Owner, error)
	SearchOwners(ctx context.Context, term string) ([]Owner, error)
	OwnerByMembership(ctx context.Context, membershipID int64) (Owner, error)

	// CreateMembership inserts the membership and any initial role bindings
	// in a single transaction.
	CreateMembership(ctx context.Context, m NewMembership, roleIDs []int64) (Membership, error)
	GetMembership(ctx context.Context, id int64) (Membership, error)
	UpdateMembership(ctx context.Context, id int64, upd Update) (Membership, error)
	// DecommissionMembership returns false without error when the membership
	// was already decommissioned.
	DecommissionMembership(ctx context.Context, id int64, by string) (bool, error)
	ListMembershipsByUser(ctx context.Context, userID int64) ([]Membership, error)
	ListMembershipsByOwner(ctx context.Context, ownerID int64) ([]Membership, error)
	// ListActiveMemberships filters with the activity predicate at query
	// time; there is no stored "active" flag to go stale.
	ListActiveMemberships(ctx context.Context) ([]Membership, error)

	AddRoleBinding(ctx context.Context, membershipID, roleID int64, by string) (RoleBinding, error)
	RemoveRoleBinding(ctx context.Context, membershipID, roleID int64) (bool, error)
	ListRoleBindings(ctx context.Context, membershipID int64) ([]RoleBinding, error)

	AddActionBinding(ctx context.Context, membershipID, actionID int64, by string) (ActionBinding, error)
	RemoveActionBinding(ctx context.Context, membershipID, actionID int64) (bool, error)
	ActionsForMembership(ctx context.Context, membershipID int64) ([]grant.Action, error)
}

// Catalog is the slice of the grant catalog the engine needs to expand roles.
type Catalog interface {
	EffectiveCapabilities(ctx context.Context, roleID int64) ([]grant.ActionCapabilities, error)
}
