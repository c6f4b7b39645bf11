package grant

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"seguridad.dev/internal/access"
)

type stubStore struct {
	getRoleFn     func(context.Context, int64) (Role, error)
	getActionFn   func(context.Context, int64) (Action, error)
	findGrantFn   func(context.Context, int64, int64) (RoleGrant, error)
	createGrantFn func(context.Context, int64, int64, Caps, string) (RoleGrant, error)
}

func (s *stubStore) CreateRole(_ context.Context, name, by string) (Role, error) {
	return Role{ID: 1, Name: name, CreatedBy: by}, nil
}
func (s *stubStore) GetRole(ctx context.Context, id int64) (Role, error) {
	if s.getRoleFn != nil {
		return s.getRoleFn(ctx, id)
	}
	return Role{ID: id}, nil
}
func (s *stubStore) ListRoles(context.Context) ([]Role, error) { return nil, nil }
func (s *stubStore) UpdateRole(context.Context, int64, RoleUpdate) (Role, error) {
	return Role{}, nil
}
func (s *stubStore) SoftDeleteRole(context.Context, int64, string) error { return nil }
func (s *stubStore) CreateAction(context.Context, string, string, string, string) (Action, error) {
	return Action{}, nil
}
func (s *stubStore) GetAction(ctx context.Context, id int64) (Action, error) {
	if s.getActionFn != nil {
		return s.getActionFn(ctx, id)
	}
	return Action{ID: id}, nil
}
func (s *stubStore) ListActions(context.Context) ([]Action, error)                { return nil, nil }
func (s *stubStore) ListActionsByType(context.Context, string) ([]Action, error)  { return nil, nil }
func (s *stubStore) UpdateAction(context.Context, int64, ActionUpdate) (Action, error) {
	return Action{}, nil
}
func (s *stubStore) DeleteAction(context.Context, int64) error { return nil }
func (s *stubStore) CreateGrant(ctx context.Context, roleID, actionID int64, caps Caps, by string) (RoleGrant, error) {
	if s.createGrantFn != nil {
		return s.createGrantFn(ctx, roleID, actionID, caps, by)
	}
	return RoleGrant{ID: 1, RoleID: roleID, ActionID: actionID, Caps: caps}, nil
}
func (s *stubStore) FindGrant(ctx context.Context, roleID, actionID int64) (RoleGrant, error) {
	if s.findGrantFn != nil {
		return s.findGrantFn(ctx, roleID, actionID)
	}
	return RoleGrant{}, fmt.Errorf("%w: grant", access.ErrNotFound)
}
func (s *stubStore) ListGrants(context.Context, int64) ([]RoleGrant, error) { return nil, nil }
func (s *stubStore) SoftDeleteGrant(context.Context, int64, int64, string) error {
	return nil
}
func (s *stubStore) CapabilitiesForRole(context.Context, int64) ([]ActionCapabilities, error) {
	return nil, nil
}

func newTestCatalog(t *testing.T, store Store) *Service {
	t.Helper()
	svc, err := NewService(store)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestCreateRoleRequiresName(t *testing.T) {
	svc := newTestCatalog(t, &stubStore{})
	if _, err := svc.CreateRole(context.Background(), "   ", "admin"); !errors.Is(err, access.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestAddGrantRejectsDuplicatePair(t *testing.T) {
	store := &stubStore{
		findGrantFn: func(context.Context, int64, int64) (RoleGrant, error) {
			return RoleGrant{ID: 9, RoleID: 1, ActionID: 2}, nil
		},
	}
	svc := newTestCatalog(t, store)

	_, err := svc.AddGrant(context.Background(), 1, 2, Caps{Select: true}, "admin")
	if !errors.Is(err, access.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestAddGrantRequiresRoleAndAction(t *testing.T) {
	store := &stubStore{
		getRoleFn: func(context.Context, int64) (Role, error) {
			return Role{}, fmt.Errorf("%w: role", access.ErrNotFound)
		},
	}
	svc := newTestCatalog(t, store)
	if _, err := svc.AddGrant(context.Background(), 1, 2, AllCaps, "admin"); !errors.Is(err, access.ErrNotFound) {
		t.Fatalf("expected not found for missing role, got %v", err)
	}

	store = &stubStore{
		getActionFn: func(context.Context, int64) (Action, error) {
			return Action{}, fmt.Errorf("%w: action", access.ErrNotFound)
		},
	}
	svc = newTestCatalog(t, store)
	if _, err := svc.AddGrant(context.Background(), 1, 2, AllCaps, "admin"); !errors.Is(err, access.ErrNotFound) {
		t.Fatalf("expected not found for missing action, got %v", err)
	}
}

func TestCapsUnion(t *testing.T) {
	a := Caps{Select: true}
	b := Caps{Insert: true, Delete: true}
	got := a.Union(b)
	want := Caps{Select: true, Insert: true, Delete: true}
	if got != want {
		t.Fatalf("union = %+v, want %+v", got, want)
	}
	if AllCaps.Union(Caps{}) != AllCaps {
		t.Fatal("union with empty set must preserve all capabilities")
	}
}
