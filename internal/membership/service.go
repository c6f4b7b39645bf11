package membership

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"seguridad.dev/internal/access"
	"seguridad.dev/internal/grant"
)

// Engine computes effective permissions and manages owner/membership
// lifecycle. It holds no in-memory authoritative state: every check re-reads
// through the store at request time.
type Engine struct {
	store   Store
	catalog Catalog
	now     func() time.Time
}

// Option configures Engine behavior.
type Option func(*Engine)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(e *Engine) {
		if fn != nil {
			e.now = fn
		}
	}
}

// NewEngine constructs a membership engine.
func NewEngine(store Store, catalog Catalog, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, errors.New("membership store is required")
	}
	if catalog == nil {
		return nil, errors.New("grant catalog is required")
	}
	e := &Engine{store: store, catalog: catalog, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// --- owners ---

func (e *Engine) CreateOwner(ctx context.Context, o NewOwner) (Owner, error) {
	o.Name = strings.TrimSpace(o.Name)
	o.TaxID = strings.TrimSpace(o.TaxID)
	if o.Name == "" {
		return Owner{}, fmt.Errorf("%w: owner name is required", access.ErrInvalidInput)
	}
	if o.TaxID == "" {
		return Owner{}, fmt.Errorf("%w: owner tax id is required", access.ErrInvalidInput)
	}
	return e.store.CreateOwner(ctx, o)
}

func (e *Engine) GetOwner(ctx context.Context, id int64) (Owner, error) {
	return e.store.GetOwner(ctx, id)
}

func (e *Engine) ListOwners(ctx context.Context) ([]Owner, error) {
	return e.store.ListOwners(ctx)
}

func (e *Engine) UpdateOwner(ctx context.Context, id int64, upd OwnerUpdate) (Owner, error) {
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return Owner{}, fmt.Errorf("%w: owner name is required", access.ErrInvalidInput)
		}
		upd.Name = &name
	}
	if upd.Status != nil && *upd.Status != OwnerActive && *upd.Status != OwnerInactive {
		return Owner{}, fmt.Errorf("%w: unsupported owner status %q", access.ErrInvalidInput, *upd.Status)
	}
	return e.store.UpdateOwner(ctx, id, upd)
}

// DeactivateOwner soft-deletes: status flips to inactive, the row survives.
func (e *Engine) DeactivateOwner(ctx context.Context, id int64, by string) error {
	inactive := OwnerInactive
	_, err := e.store.UpdateOwner(ctx, id, OwnerUpdate{Status: &inactive, UpdatedBy: by})
	return err
}

// SearchOwners matches active owners by name substring.
func (e *Engine) SearchOwners(ctx context.Context, term string) ([]Owner, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, fmt.Errorf("%w: search term is required", access.ErrInvalidInput)
	}
	return e.store.SearchOwners(ctx, term)
}

func (e *Engine) OwnerByMembership(ctx context.Context, membershipID int64) (Owner, error) {
	return e.store.OwnerByMembership(ctx, membershipID)
}

// --- memberships ---

// Create inserts a membership, optionally with initial role bindings, in one
// transaction. The identifier comes from the database in the same insert, so
// concurrent creations cannot race.
func (e *Engine) Create(ctx context.Context, m NewMembership, roleIDs []int64) (Membership, error) {
	if !m.Kind.Valid() {
		return Membership{}, fmt.Errorf("%w: unsupported membership kind %q", access.ErrInvalidInput, m.Kind)
	}
	if m.UserID <= 0 || m.OwnerID <= 0 {
		return Membership{}, fmt.Errorf("%w: user id and owner id are required", access.ErrInvalidInput)
	}
	return e.store.CreateMembership(ctx, m, roleIDs)
}

func (e *Engine) Get(ctx context.Context, id int64) (Membership, error) {
	return e.store.GetMembership(ctx, id)
}

// Update applies a partial update; unspecified fields keep their prior value.
func (e *Engine) Update(ctx context.Context, id int64, upd Update) (Membership, error) {
	if upd.Kind != nil && !upd.Kind.Valid() {
		return Membership{}, fmt.Errorf("%w: unsupported membership kind %q", access.ErrInvalidInput, *upd.Kind)
	}
	return e.store.UpdateMembership(ctx, id, upd)
}

// Decommission soft-deletes a membership. Idempotent: a second call returns
// false with no error and leaves the row unchanged. ValidUntil is not
// altered.
func (e *Engine) Decommission(ctx context.Context, id int64, by string) (bool, error) {
	return e.store.DecommissionMembership(ctx, id, by)
}

// IsActive evaluates the activity predicate against the engine clock.
func (e *Engine) IsActive(m Membership) bool {
	return m.IsActive(e.now())
}

func (e *Engine) ListByUser(ctx context.Context, userID int64) ([]Membership, error) {
	return e.store.ListMembershipsByUser(ctx, userID)
}

func (e *Engine) ListByOwner(ctx context.Context, ownerID int64) ([]Membership, error) {
	return e.store.ListMembershipsByOwner(ctx, ownerID)
}

func (e *Engine) ListActive(ctx context.Context) ([]Membership, error) {
	return e.store.ListActiveMemberships(ctx)
}

// --- role/action bindings ---

func (e *Engine) AddRole(ctx context.Context, membershipID, roleID int64, by string) (RoleBinding, error) {
	return e.store.AddRoleBinding(ctx, membershipID, roleID, by)
}

func (e *Engine) RemoveRole(ctx context.Context, membershipID, roleID int64) (bool, error) {
	return e.store.RemoveRoleBinding(ctx, membershipID, roleID)
}

func (e *Engine) ListRoles(ctx context.Context, membershipID int64) ([]RoleBinding, error) {
	if _, err := e.store.GetMembership(ctx, membershipID); err != nil {
		return nil, err
	}
	return e.store.ListRoleBindings(ctx, membershipID)
}

func (e *Engine) AddAction(ctx context.Context, membershipID, actionID int64, by string) (ActionBinding, error) {
	return e.store.AddActionBinding(ctx, membershipID, actionID, by)
}

func (e *Engine) RemoveAction(ctx context.Context, membershipID, actionID int64) (bool, error) {
	return e.store.RemoveActionBinding(ctx, membershipID, actionID)
}

func (e *Engine) ListActions(ctx context.Context, membershipID int64) ([]grant.Action, error) {
	if _, err := e.store.GetMembership(ctx, membershipID); err != nil {
		return nil, err
	}
	return e.store.ActionsForMembership(ctx, membershipID)
}

// EffectivePermissions computes the permission set granted under one
// membership: the union of direct action bindings and the expansion of every
// bound role through the grant catalog. Conflicts resolve most-permissive: a
// capability flag is granted if any contributing grant sets it, and a direct
// action binding conveys all four capabilities. Each action appears at most
// once, ordered by action id.
func (e *Engine) EffectivePermissions(ctx context.Context, membershipID int64) ([]grant.ActionCapabilities, error) {
	if _, err := e.store.GetMembership(ctx, membershipID); err != nil {
		return nil, err
	}

	merged := make(map[int64]grant.ActionCapabilities)

	direct, err := e.store.ActionsForMembership(ctx, membershipID)
	if err != nil {
		return nil, err
	}
	for _, action := range direct {
		merged[action.ID] = grant.ActionCapabilities{Action: action, Caps: grant.AllCaps}
	}

	bindings, err := e.store.ListRoleBindings(ctx, membershipID)
	if err != nil {
		return nil, err
	}
	for _, b := range bindings {
		caps, err := e.catalog.EffectiveCapabilities(ctx, b.RoleID)
		if err != nil {
			// A role soft-deleted after binding simply stops contributing.
			if errors.Is(err, access.ErrNotFound) {
				continue
			}
			return nil, err
		}
		for _, ac := range caps {
			if existing, ok := merged[ac.Action.ID]; ok {
				existing.Caps = existing.Caps.Union(ac.Caps)
				merged[ac.Action.ID] = existing
				continue
			}
			merged[ac.Action.ID] = ac
		}
	}

	out := make([]grant.ActionCapabilities, 0, len(merged))
	for _, ac := range merged {
		out = append(out, ac)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Action.ID < out[j].Action.ID })
	return out, nil
}
