package grant

import "context"

// Store describes persistence operations required by the grant catalog.
// Implementations translate constraint violations to access.ErrConflict and
// missing rows to access.ErrNotFound.
type Store interface {
	CreateRole(ctx context.Context, name, by string) (Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	UpdateRole(ctx context.Context, id int64, upd RoleUpdate) (Role, error)
	SoftDeleteRole(ctx context.Context, id int64, by string) error

	CreateAction(ctx context.Context, name, typeCode, uiHint, by string) (Action, error)
	GetAction(ctx context.Context, id int64) (Action, error)
	ListActions(ctx context.Context) ([]Action, error)
	ListActionsByType(ctx context.Context, typeCode string) ([]Action, error)
	UpdateAction(ctx context.Context, id int64, upd ActionUpdate) (Action, error)
	DeleteAction(ctx context.Context, id int64) error

	CreateGrant(ctx context.Context, roleID, actionID int64, caps Caps, by string) (RoleGrant, error)
	FindGrant(ctx context.Context, roleID, actionID int64) (RoleGrant, error)
	ListGrants(ctx context.Context, roleID int64) ([]RoleGrant, error)
	SoftDeleteGrant(ctx context.Context, roleID, actionID int64, by string) error
	CapabilitiesForRole(ctx context.Context, roleID int64) ([]ActionCapabilities, error)
}
