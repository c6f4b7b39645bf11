package grant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"seguridad.dev/internal/access"
)

// Service validates input and delegates to the store.
type Service struct {
	store Store
}

// NewService constructs a grant catalog service.
func NewService(store Store) (*Service, error) {
	if store == nil {
		return nil, errors.New("grant store is required")
	}
	return &Service{store: store}, nil
}

func (s *Service) CreateRole(ctx context.Context, name, by string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name is required", access.ErrInvalidInput)
	}
	return s.store.CreateRole(ctx, name, by)
}

func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.store.GetRole(ctx, id)
}

func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.store.ListRoles(ctx)
}

func (s *Service) UpdateRole(ctx context.Context, id int64, upd RoleUpdate) (Role, error) {
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return Role{}, fmt.Errorf("%w: role name is required", access.ErrInvalidInput)
		}
		upd.Name = &name
	}
	return s.store.UpdateRole(ctx, id, upd)
}

// DeleteRole soft-deletes: the role is excluded from subsequent reads but
// membership rows referencing it are untouched.
func (s *Service) DeleteRole(ctx context.Context, id int64, by string) error {
	return s.store.SoftDeleteRole(ctx, id, by)
}

func (s *Service) CreateAction(ctx context.Context, name, typeCode, uiHint, by string) (Action, error) {
	name = strings.TrimSpace(name)
	typeCode = strings.TrimSpace(typeCode)
	if name == "" || typeCode == "" {
		return Action{}, fmt.Errorf("%w: action name and type code are required", access.ErrInvalidInput)
	}
	return s.store.CreateAction(ctx, name, typeCode, strings.TrimSpace(uiHint), by)
}

func (s *Service) GetAction(ctx context.Context, id int64) (Action, error) {
	return s.store.GetAction(ctx, id)
}

// ListActions returns every action, or only those in typeCode when non-empty.
func (s *Service) ListActions(ctx context.Context, typeCode string) ([]Action, error) {
	typeCode = strings.TrimSpace(typeCode)
	if typeCode == "" {
		return s.store.ListActions(ctx)
	}
	return s.store.ListActionsByType(ctx, typeCode)
}

func (s *Service) UpdateAction(ctx context.Context, id int64, upd ActionUpdate) (Action, error) {
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return Action{}, fmt.Errorf("%w: action name is required", access.ErrInvalidInput)
		}
		upd.Name = &name
	}
	if upd.TypeCode != nil {
		tc := strings.TrimSpace(*upd.TypeCode)
		if tc == "" {
			return Action{}, fmt.Errorf("%w: type code is required", access.ErrInvalidInput)
		}
		upd.TypeCode = &tc
	}
	return s.store.UpdateAction(ctx, id, upd)
}

func (s *Service) DeleteAction(ctx context.Context, id int64) error {
	return s.store.DeleteAction(ctx, id)
}

// AddGrant inserts a permission-matrix row. An existing non-deleted row for
// the same (role, action) pair is rejected before the insert; the schema's
// unique index backs this up against concurrent writers.
func (s *Service) AddGrant(ctx context.Context, roleID, actionID int64, caps Caps, by string) (RoleGrant, error) {
	if _, err := s.store.GetRole(ctx, roleID); err != nil {
		return RoleGrant{}, err
	}
	if _, err := s.store.GetAction(ctx, actionID); err != nil {
		return RoleGrant{}, err
	}
	if _, err := s.store.FindGrant(ctx, roleID, actionID); err == nil {
		return RoleGrant{}, fmt.Errorf("%w: grant already exists for role %d action %d", access.ErrConflict, roleID, actionID)
	} else if !errors.Is(err, access.ErrNotFound) {
		return RoleGrant{}, err
	}
	return s.store.CreateGrant(ctx, roleID, actionID, caps, by)
}

func (s *Service) ListGrants(ctx context.Context, roleID int64) ([]RoleGrant, error) {
	if _, err := s.store.GetRole(ctx, roleID); err != nil {
		return nil, err
	}
	return s.store.ListGrants(ctx, roleID)
}

func (s *Service) RemoveGrant(ctx context.Context, roleID, actionID int64, by string) error {
	return s.store.SoftDeleteGrant(ctx, roleID, actionID, by)
}

// EffectiveCapabilities expands a role into the actions it grants. Used by
// the membership engine to compute effective permission sets.
func (s *Service) EffectiveCapabilities(ctx context.Context, roleID int64) ([]ActionCapabilities, error) {
	return s.store.CapabilitiesForRole(ctx, roleID)
}
