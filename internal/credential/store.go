package credential

import "context"

// Store describes persistence operations for user records.
type Store interface {
	CreateUser(ctx context.Context, u NewUser) (User, error)
	GetUser(ctx context.Context, id int64) (User, error)
	FindByUsername(ctx context.Context, username string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	UpdateUser(ctx context.Context, id int64, upd Update) (User, error)
	UpdateSecret(ctx context.Context, id int64, secretHash, by string) error
	TouchLastAccess(ctx context.Context, id int64) error

	// RoleNamesForUser resolves role names through the user's active
	// memberships. It returns an empty slice, not an error, when nothing
	// resolves, including when the join tables do not exist yet.
	RoleNamesForUser(ctx context.Context, id int64) ([]string, error)
}
