package credential

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"seguridad.dev/internal/access"
	"seguridad.dev/internal/obs"
)

// Service validates input, hashes secrets and delegates to the store.
type Service struct {
	store Store
}

// NewService constructs a credential store service.
func NewService(store Store) (*Service, error) {
	if store == nil {
		return nil, errors.New("credential store is required")
	}
	return &Service{store: store}, nil
}

// Register creates a user. Status defaults to active. A taken username
// surfaces as access.ErrConflict via the unique constraint, so there is no
// read-then-insert window.
func (s *Service) Register(ctx context.Context, reg Registration) (User, error) {
	reg.Username = strings.TrimSpace(reg.Username)
	reg.DisplayName = strings.TrimSpace(reg.DisplayName)
	reg.Email = strings.TrimSpace(strings.ToLower(reg.Email))
	if reg.Username == "" {
		return User{}, fmt.Errorf("%w: username is required", access.ErrInvalidInput)
	}
	if reg.Password == "" {
		return User{}, fmt.Errorf("%w: password is required", access.ErrInvalidInput)
	}
	if reg.DisplayName == "" {
		return User{}, fmt.Errorf("%w: display name is required", access.ErrInvalidInput)
	}
	if reg.Email == "" || !strings.Contains(reg.Email, "@") {
		return User{}, fmt.Errorf("%w: valid email is required", access.ErrInvalidInput)
	}
	hash, err := HashPassword(reg.Password)
	if err != nil {
		return User{}, err
	}
	by := reg.CreatedBy
	if by == "" {
		by = reg.Username
	}
	return s.store.CreateUser(ctx, NewUser{
		Username:    reg.Username,
		SecretHash:  hash,
		DisplayName: reg.DisplayName,
		Email:       reg.Email,
		Phone:       strings.TrimSpace(reg.Phone),
		Status:      StatusActive,
		CreatedBy:   by,
	})
}

// VerifyCredentials authenticates a username/password pair. Unknown
// username, wrong password and non-active status all collapse to the same
// access.ErrUnauthorized value so the response shape cannot be used for
// username enumeration. On success the last-access timestamp is touched
// best-effort.
func (s *Service) VerifyCredentials(ctx context.Context, username, password string) (User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return User{}, fmt.Errorf("%w: invalid credentials", access.ErrUnauthorized)
	}
	user, err := s.store.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, access.ErrNotFound) {
			return User{}, fmt.Errorf("%w: invalid credentials", access.ErrUnauthorized)
		}
		return User{}, err
	}
	if user.Status != StatusActive {
		return User{}, fmt.Errorf("%w: invalid credentials", access.ErrUnauthorized)
	}
	if err := VerifyPassword(user.SecretHash, password); err != nil {
		return User{}, fmt.Errorf("%w: invalid credentials", access.ErrUnauthorized)
	}
	s.TouchLastAccess(ctx, user.ID)
	return user, nil
}

// SetPassword recomputes and stores a new secret hash. Plaintext is never
// persisted.
func (s *Service) SetPassword(ctx context.Context, userID int64, password, by string) error {
	if password == "" {
		return fmt.Errorf("%w: password is required", access.ErrInvalidInput)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	return s.store.UpdateSecret(ctx, userID, hash, by)
}

// TouchLastAccess updates the last-access timestamp. Non-critical telemetry:
// failures are logged and never fail the surrounding operation.
func (s *Service) TouchLastAccess(ctx context.Context, userID int64) {
	if err := s.store.TouchLastAccess(ctx, userID); err != nil {
		obs.Logger().Warn("touch last access failed",
			zap.Int64("user_id", userID), zap.Error(err))
	}
}

func (s *Service) Get(ctx context.Context, id int64) (User, error) {
	return s.store.GetUser(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.store.ListUsers(ctx)
}

func (s *Service) Update(ctx context.Context, id int64, upd Update) (User, error) {
	if upd.Username != nil {
		name := strings.TrimSpace(*upd.Username)
		if name == "" {
			return User{}, fmt.Errorf("%w: username is required", access.ErrInvalidInput)
		}
		upd.Username = &name
	}
	if upd.Email != nil {
		email := strings.TrimSpace(strings.ToLower(*upd.Email))
		if email == "" || !strings.Contains(email, "@") {
			return User{}, fmt.Errorf("%w: valid email is required", access.ErrInvalidInput)
		}
		upd.Email = &email
	}
	if upd.Status != nil && !upd.Status.Valid() {
		return User{}, fmt.Errorf("%w: unsupported status %q", access.ErrInvalidInput, *upd.Status)
	}
	return s.store.UpdateUser(ctx, id, upd)
}

// Deactivate blocks an account. Users are never physically removed.
func (s *Service) Deactivate(ctx context.Context, id int64, by string) error {
	blocked := StatusBlocked
	_, err := s.store.UpdateUser(ctx, id, Update{Status: &blocked, UpdatedBy: by})
	return err
}

// ListRoleNames resolves the set of role names granted to a user through
// active memberships. An empty result is not an error.
func (s *Service) ListRoleNames(ctx context.Context, userID int64) ([]string, error) {
	return s.store.RoleNamesForUser(ctx, userID)
}
