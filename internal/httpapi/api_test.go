package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"seguridad.dev/internal/access"
	"seguridad.dev/internal/audit"
	"seguridad.dev/internal/credential"
	"seguridad.dev/internal/grant"
	"seguridad.dev/internal/membership"
	"seguridad.dev/internal/session"
)

// memStore is an in-memory implementation of every component store, enough to
// drive the full HTTP stack in tests without a database.
type memStore struct {
	mu sync.Mutex

	seq int64

	users      map[int64]credential.User
	byUsername map[string]int64

	roles   map[int64]grant.Role
	actions map[int64]grant.Action
	grants  map[int64]grant.RoleGrant

	owners            map[int64]membership.Owner
	memberships       map[int64]membership.Membership
	membershipRoles   map[int64]map[int64]membership.RoleBinding
	membershipActions map[int64]map[int64]membership.ActionBinding

	tokens map[int64]session.Token

	audits []audit.Record
}

func newMemStore() *memStore {
	return &memStore{
		users:             make(map[int64]credential.User),
		byUsername:        make(map[string]int64),
		roles:             make(map[int64]grant.Role),
		actions:           make(map[int64]grant.Action),
		grants:            make(map[int64]grant.RoleGrant),
		owners:            make(map[int64]membership.Owner),
		memberships:       make(map[int64]membership.Membership),
		membershipRoles:   make(map[int64]map[int64]membership.RoleBinding),
		membershipActions: make(map[int64]map[int64]membership.ActionBinding),
		tokens:            make(map[int64]session.Token),
	}
}

func (m *memStore) nextID() int64 {
	m.seq++
	return m.seq
}

func notFound(what string) error {
	return fmt.Errorf("%w: %s", access.ErrNotFound, what)
}

// --- credential.Store ---

func (m *memStore) CreateUser(_ context.Context, u credential.NewUser) (credential.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byUsername[u.Username]; ok {
		return credential.User{}, fmt.Errorf("%w: username taken", access.ErrConflict)
	}
	user := credential.User{
		ID:          m.nextID(),
		Username:    u.Username,
		SecretHash:  u.SecretHash,
		DisplayName: u.DisplayName,
		Email:       u.Email,
		Phone:       u.Phone,
		Status:      u.Status,
		CreatedBy:   u.CreatedBy,
		CreatedAt:   time.Now().UTC(),
	}
	m.users[user.ID] = user
	m.byUsername[user.Username] = user.ID
	return user, nil
}

func (m *memStore) GetUser(_ context.Context, id int64) (credential.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return credential.User{}, notFound("user")
	}
	return u, nil
}

func (m *memStore) FindByUsername(_ context.Context, username string) (credential.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byUsername[username]
	if !ok {
		return credential.User{}, notFound("user")
	}
	return m.users[id], nil
}

func (m *memStore) ListUsers(context.Context) ([]credential.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]credential.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) UpdateUser(_ context.Context, id int64, upd credential.Update) (credential.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return credential.User{}, notFound("user")
	}
	if upd.Username != nil {
		delete(m.byUsername, u.Username)
		u.Username = *upd.Username
		m.byUsername[u.Username] = id
	}
	if upd.DisplayName != nil {
		u.DisplayName = *upd.DisplayName
	}
	if upd.Email != nil {
		u.Email = *upd.Email
	}
	if upd.Phone != nil {
		u.Phone = *upd.Phone
	}
	if upd.Status != nil {
		u.Status = *upd.Status
	}
	u.UpdatedBy = upd.UpdatedBy
	now := time.Now().UTC()
	u.UpdatedAt = &now
	m.users[id] = u
	return u, nil
}

func (m *memStore) UpdateSecret(_ context.Context, id int64, secretHash, by string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return notFound("user")
	}
	u.SecretHash = secretHash
	u.UpdatedBy = by
	m.users[id] = u
	return nil
}

func (m *memStore) TouchLastAccess(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		now := time.Now().UTC()
		u.LastAccessAt = &now
		m.users[id] = u
	}
	return nil
}

func (m *memStore) RoleNamesForUser(_ context.Context, id int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	seen := make(map[string]bool)
	var names []string
	for _, ms := range m.memberships {
		if ms.UserID != id || !ms.IsActive(now) {
			continue
		}
		for roleID := range m.membershipRoles[ms.ID] {
			role, ok := m.roles[roleID]
			if !ok || role.Deleted || seen[role.Name] {
				continue
			}
			seen[role.Name] = true
			names = append(names, role.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// --- grant.Store ---

func (m *memStore) CreateRole(_ context.Context, name, by string) (grant.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.roles {
		if !r.Deleted && r.Name == name {
			return grant.Role{}, fmt.Errorf("%w: role exists", access.ErrConflict)
		}
	}
	role := grant.Role{ID: m.nextID(), Name: name, CreatedBy: by, CreatedAt: time.Now().UTC()}
	m.roles[role.ID] = role
	return role, nil
}

func (m *memStore) GetRole(_ context.Context, id int64) (grant.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roles[id]
	if !ok || r.Deleted {
		return grant.Role{}, notFound("role")
	}
	return r, nil
}

func (m *memStore) ListRoles(context.Context) ([]grant.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []grant.Role
	for _, r := range m.roles {
		if !r.Deleted {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) UpdateRole(_ context.Context, id int64, upd grant.RoleUpdate) (grant.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roles[id]
	if !ok || r.Deleted {
		return grant.Role{}, notFound("role")
	}
	if upd.Name != nil {
		r.Name = *upd.Name
	}
	r.UpdatedBy = upd.UpdatedBy
	m.roles[id] = r
	return r, nil
}

func (m *memStore) SoftDeleteRole(_ context.Context, id int64, by string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roles[id]
	if !ok || r.Deleted {
		return notFound("role")
	}
	r.Deleted = true
	r.UpdatedBy = by
	m.roles[id] = r
	return nil
}

func (m *memStore) CreateAction(_ context.Context, name, typeCode, uiHint, by string) (grant.Action, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := grant.Action{ID: m.nextID(), Name: name, TypeCode: typeCode, UIHint: uiHint, CreatedBy: by, CreatedAt: time.Now().UTC()}
	m.actions[a.ID] = a
	return a, nil
}

func (m *memStore) GetAction(_ context.Context, id int64) (grant.Action, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.actions[id]
	if !ok {
		return grant.Action{}, notFound("action")
	}
	return a, nil
}

func (m *memStore) ListActions(context.Context) ([]grant.Action, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []grant.Action
	for _, a := range m.actions {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) ListActionsByType(_ context.Context, typeCode string) ([]grant.Action, error) {
	all, _ := m.ListActions(context.Background())
	var out []grant.Action
	for _, a := range all {
		if a.TypeCode == typeCode {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memStore) UpdateAction(_ context.Context, id int64, upd grant.ActionUpdate) (grant.Action, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.actions[id]
	if !ok {
		return grant.Action{}, notFound("action")
	}
	if upd.Name != nil {
		a.Name = *upd.Name
	}
	if upd.TypeCode != nil {
		a.TypeCode = *upd.TypeCode
	}
	if upd.UIHint != nil {
		a.UIHint = *upd.UIHint
	}
	a.UpdatedBy = upd.UpdatedBy
	m.actions[id] = a
	return a, nil
}

func (m *memStore) DeleteAction(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.actions[id]; !ok {
		return notFound("action")
	}
	delete(m.actions, id)
	return nil
}

func (m *memStore) CreateGrant(_ context.Context, roleID, actionID int64, caps grant.Caps, by string) (grant.RoleGrant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.grants {
		if !g.Deleted && g.RoleID == roleID && g.ActionID == actionID {
			return grant.RoleGrant{}, fmt.Errorf("%w: grant exists", access.ErrConflict)
		}
	}
	g := grant.RoleGrant{ID: m.nextID(), RoleID: roleID, ActionID: actionID, Caps: caps, CreatedBy: by, CreatedAt: time.Now().UTC()}
	m.grants[g.ID] = g
	return g, nil
}

func (m *memStore) FindGrant(_ context.Context, roleID, actionID int64) (grant.RoleGrant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.grants {
		if !g.Deleted && g.RoleID == roleID && g.ActionID == actionID {
			return g, nil
		}
	}
	return grant.RoleGrant{}, notFound("grant")
}

func (m *memStore) ListGrants(_ context.Context, roleID int64) ([]grant.RoleGrant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []grant.RoleGrant
	for _, g := range m.grants {
		if !g.Deleted && g.RoleID == roleID {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ActionID < out[j].ActionID })
	return out, nil
}

func (m *memStore) SoftDeleteGrant(_ context.Context, roleID, actionID int64, by string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, g := range m.grants {
		if !g.Deleted && g.RoleID == roleID && g.ActionID == actionID {
			g.Deleted = true
			g.UpdatedBy = by
			m.grants[id] = g
			return nil
		}
	}
	return notFound("grant")
}

func (m *memStore) CapabilitiesForRole(ctx context.Context, roleID int64) ([]grant.ActionCapabilities, error) {
	if _, err := m.GetRole(ctx, roleID); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []grant.ActionCapabilities
	for _, g := range m.grants {
		if g.Deleted || g.RoleID != roleID {
			continue
		}
		action, ok := m.actions[g.ActionID]
		if !ok {
			continue
		}
		out = append(out, grant.ActionCapabilities{Action: action, Caps: g.Caps})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Action.ID < out[j].Action.ID })
	return out, nil
}

// --- membership.Store ---

func (m *memStore) CreateOwner(_ context.Context, o membership.NewOwner) (membership.Owner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	owner := membership.Owner{
		ID: m.nextID(), TaxID: o.TaxID, LegalID: o.LegalID, Name: o.Name,
		Status: membership.OwnerActive, CreatedBy: o.CreatedBy, CreatedAt: time.Now().UTC(),
	}
	m.owners[owner.ID] = owner
	return owner, nil
}

func (m *memStore) GetOwner(_ context.Context, id int64) (membership.Owner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.owners[id]
	if !ok {
		return membership.Owner{}, notFound("owner")
	}
	return o, nil
}

func (m *memStore) ListOwners(context.Context) ([]membership.Owner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []membership.Owner
	for _, o := range m.owners {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) UpdateOwner(_ context.Context, id int64, upd membership.OwnerUpdate) (membership.Owner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.owners[id]
	if !ok {
		return membership.Owner{}, notFound("owner")
	}
	if upd.TaxID != nil {
		o.TaxID = *upd.TaxID
	}
	if upd.LegalID != nil {
		o.LegalID = *upd.LegalID
	}
	if upd.Name != nil {
		o.Name = *upd.Name
	}
	if upd.Status != nil {
		o.Status = *upd.Status
	}
	o.UpdatedBy = upd.UpdatedBy
	m.owners[id] = o
	return o, nil
}

func (m *memStore) SearchOwners(_ context.Context, term string) ([]membership.Owner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []membership.Owner
	for _, o := range m.owners {
		if o.Status == membership.OwnerActive && strings.Contains(strings.ToLower(o.Name), strings.ToLower(term)) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) OwnerByMembership(_ context.Context, membershipID int64) (membership.Owner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.memberships[membershipID]
	if !ok {
		return membership.Owner{}, notFound("membership")
	}
	o, ok := m.owners[ms.OwnerID]
	if !ok {
		return membership.Owner{}, notFound("owner")
	}
	return o, nil
}

func (m *memStore) CreateMembership(_ context.Context, nm membership.NewMembership, roleIDs []int64) (membership.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[nm.UserID]; !ok {
		return membership.Membership{}, notFound("user")
	}
	if _, ok := m.owners[nm.OwnerID]; !ok {
		return membership.Membership{}, notFound("owner")
	}
	ms := membership.Membership{
		ID: m.nextID(), UserID: nm.UserID, OwnerID: nm.OwnerID, Kind: nm.Kind,
		ValidUntil: nm.ValidUntil, Status: membership.StatusActive,
		CreatedBy: nm.CreatedBy, CreatedAt: time.Now().UTC(),
	}
	m.memberships[ms.ID] = ms
	bindings := make(map[int64]membership.RoleBinding)
	for _, roleID := range roleIDs {
		if _, ok := m.roles[roleID]; !ok {
			return membership.Membership{}, notFound("role")
		}
		bindings[roleID] = membership.RoleBinding{MembershipID: ms.ID, RoleID: roleID, CreatedBy: nm.CreatedBy, CreatedAt: time.Now().UTC()}
	}
	m.membershipRoles[ms.ID] = bindings
	m.membershipActions[ms.ID] = make(map[int64]membership.ActionBinding)
	return ms, nil
}

func (m *memStore) GetMembership(_ context.Context, id int64) (membership.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.memberships[id]
	if !ok {
		return membership.Membership{}, notFound("membership")
	}
	return ms, nil
}

func (m *memStore) UpdateMembership(_ context.Context, id int64, upd membership.Update) (membership.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.memberships[id]
	if !ok {
		return membership.Membership{}, notFound("membership")
	}
	if upd.Kind != nil {
		ms.Kind = *upd.Kind
	}
	if upd.ValidUntil != nil {
		ms.ValidUntil = upd.ValidUntil
	}
	ms.UpdatedBy = upd.UpdatedBy
	m.memberships[id] = ms
	return ms, nil
}

func (m *memStore) DecommissionMembership(_ context.Context, id int64, by string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.memberships[id]
	if !ok {
		return false, notFound("membership")
	}
	if ms.Status == membership.StatusDecommissioned {
		return false, nil
	}
	ms.Status = membership.StatusDecommissioned
	ms.UpdatedBy = by
	m.memberships[id] = ms
	return true, nil
}

func (m *memStore) ListMembershipsByUser(_ context.Context, userID int64) ([]membership.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []membership.Membership
	for _, ms := range m.memberships {
		if ms.UserID == userID {
			out = append(out, ms)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) ListMembershipsByOwner(_ context.Context, ownerID int64) ([]membership.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []membership.Membership
	for _, ms := range m.memberships {
		if ms.OwnerID == ownerID {
			out = append(out, ms)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) ListActiveMemberships(context.Context) ([]membership.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var out []membership.Membership
	for _, ms := range m.memberships {
		if ms.IsActive(now) {
			out = append(out, ms)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) AddRoleBinding(_ context.Context, membershipID, roleID int64, by string) (membership.RoleBinding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.memberships[membershipID]; !ok {
		return membership.RoleBinding{}, notFound("membership")
	}
	if _, ok := m.roles[roleID]; !ok {
		return membership.RoleBinding{}, notFound("role")
	}
	bindings := m.membershipRoles[membershipID]
	if bindings == nil {
		bindings = make(map[int64]membership.RoleBinding)
		m.membershipRoles[membershipID] = bindings
	}
	if _, ok := bindings[roleID]; ok {
		return membership.RoleBinding{}, fmt.Errorf("%w: role bound", access.ErrConflict)
	}
	b := membership.RoleBinding{MembershipID: membershipID, RoleID: roleID, CreatedBy: by, CreatedAt: time.Now().UTC()}
	bindings[roleID] = b
	return b, nil
}

func (m *memStore) RemoveRoleBinding(_ context.Context, membershipID, roleID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bindings := m.membershipRoles[membershipID]
	if _, ok := bindings[roleID]; !ok {
		return false, nil
	}
	delete(bindings, roleID)
	return true, nil
}

func (m *memStore) ListRoleBindings(_ context.Context, membershipID int64) ([]membership.RoleBinding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []membership.RoleBinding
	for _, b := range m.membershipRoles[membershipID] {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoleID < out[j].RoleID })
	return out, nil
}

func (m *memStore) AddActionBinding(_ context.Context, membershipID, actionID int64, by string) (membership.ActionBinding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.memberships[membershipID]; !ok {
		return membership.ActionBinding{}, notFound("membership")
	}
	if _, ok := m.actions[actionID]; !ok {
		return membership.ActionBinding{}, notFound("action")
	}
	bindings := m.membershipActions[membershipID]
	if bindings == nil {
		bindings = make(map[int64]membership.ActionBinding)
		m.membershipActions[membershipID] = bindings
	}
	if _, ok := bindings[actionID]; ok {
		return membership.ActionBinding{}, fmt.Errorf("%w: action bound", access.ErrConflict)
	}
	b := membership.ActionBinding{MembershipID: membershipID, ActionID: actionID, CreatedBy: by, CreatedAt: time.Now().UTC()}
	bindings[actionID] = b
	return b, nil
}

func (m *memStore) RemoveActionBinding(_ context.Context, membershipID, actionID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bindings := m.membershipActions[membershipID]
	if _, ok := bindings[actionID]; !ok {
		return false, nil
	}
	delete(bindings, actionID)
	return true, nil
}

func (m *memStore) ActionsForMembership(_ context.Context, membershipID int64) ([]grant.Action, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []grant.Action
	for actionID := range m.membershipActions[membershipID] {
		if a, ok := m.actions[actionID]; ok {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- session.Store ---

func (m *memStore) CreateToken(_ context.Context, t session.NewToken) (session.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token := session.Token{
		ID: m.nextID(), UserID: t.UserID, Value: t.Value,
		IssuedAt: t.IssuedAt, ExpiresAt: t.ExpiresAt,
		CreatedBy: t.CreatedBy, CreatedAt: time.Now().UTC(),
	}
	m.tokens[token.ID] = token
	return token, nil
}

func (m *memStore) GetToken(_ context.Context, id int64) (session.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[id]
	if !ok {
		return session.Token{}, notFound("token")
	}
	return t, nil
}

func (m *memStore) FindTokenByValue(_ context.Context, value string) (session.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.Value == value {
			return t, nil
		}
	}
	return session.Token{}, notFound("token")
}

func (m *memStore) ListTokensByUser(_ context.Context, userID int64) ([]session.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []session.Token
	for _, t := range m.tokens {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.After(out[j].ExpiresAt) })
	return out, nil
}

func (m *memStore) MarkTokenValidated(_ context.Context, id int64, at time.Time, by string) (session.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[id]
	if !ok {
		return session.Token{}, notFound("token")
	}
	t.Validated = true
	t.ValidatedAt = &at
	t.UpdatedBy = by
	m.tokens[id] = t
	return t, nil
}

func (m *memStore) DeleteToken(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tokens[id]; !ok {
		return notFound("token")
	}
	delete(m.tokens, id)
	return nil
}

func (m *memStore) DeleteExpiredTokens(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for id, t := range m.tokens {
		if t.ExpiresAt.Before(now) {
			delete(m.tokens, id)
			count++
		}
	}
	return count, nil
}

// --- audit.Store ---

func (m *memStore) AppendRecord(_ context.Context, r audit.NewRecord) (audit.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := audit.Record{
		ID: m.nextID(), UserID: r.UserID, Action: r.Action, Table: r.Table,
		RecordID: r.RecordID, Before: r.Before, After: r.After,
		IPAddress: r.IPAddress, UserAgent: r.UserAgent, At: time.Now().UTC(),
	}
	m.audits = append(m.audits, rec)
	return rec, nil
}

func (m *memStore) GetRecord(_ context.Context, id int64) (audit.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.audits {
		if r.ID == id {
			return r, nil
		}
	}
	return audit.Record{}, notFound("audit record")
}

func (m *memStore) filterAudits(keep func(audit.Record) bool) []audit.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []audit.Record
	for _, r := range m.audits {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

func (m *memStore) RecordsByUser(_ context.Context, userID int64) ([]audit.Record, error) {
	return m.filterAudits(func(r audit.Record) bool { return r.UserID == userID }), nil
}

func (m *memStore) RecordsByTable(_ context.Context, table string) ([]audit.Record, error) {
	return m.filterAudits(func(r audit.Record) bool { return r.Table == table }), nil
}

func (m *memStore) RecordsByAction(_ context.Context, action string) ([]audit.Record, error) {
	return m.filterAudits(func(r audit.Record) bool { return r.Action == action }), nil
}

func (m *memStore) RecordsByDateRange(_ context.Context, from, to time.Time) ([]audit.Record, error) {
	return m.filterAudits(func(r audit.Record) bool {
		return !r.At.Before(from) && !r.At.After(to)
	}), nil
}

func (m *memStore) RecordsByRecord(_ context.Context, table string, recordID int64) ([]audit.Record, error) {
	return m.filterAudits(func(r audit.Record) bool {
		return r.Table == table && r.RecordID == recordID
	}), nil
}

func (m *memStore) SearchRecords(_ context.Context, term string) ([]audit.Record, error) {
	term = strings.ToLower(term)
	return m.filterAudits(func(r audit.Record) bool {
		if strings.Contains(strings.ToLower(r.Action), term) || strings.Contains(strings.ToLower(r.Table), term) {
			return true
		}
		if r.After != nil && strings.Contains(strings.ToLower(*r.After), term) {
			return true
		}
		return r.Before != nil && strings.Contains(strings.ToLower(*r.Before), term)
	}), nil
}

// --- harness ---

type testAPI struct {
	t      *testing.T
	server *httptest.Server
	store  *memStore
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	store := newMemStore()

	users, err := credential.NewService(store)
	if err != nil {
		t.Fatalf("credential.NewService: %v", err)
	}
	grants, err := grant.NewService(store)
	if err != nil {
		t.Fatalf("grant.NewService: %v", err)
	}
	memberships, err := membership.NewEngine(store, grants)
	if err != nil {
		t.Fatalf("membership.NewEngine: %v", err)
	}
	sessions, err := session.NewService(store, "test-secret", time.Hour)
	if err != nil {
		t.Fatalf("session.NewService: %v", err)
	}
	audits, err := audit.NewService(store)
	if err != nil {
		t.Fatalf("audit.NewService: %v", err)
	}

	api := New(users, grants, memberships, sessions, audits, ReadyProbe{}, Config{Version: "test"})
	server := httptest.NewServer(api.Handler())
	t.Cleanup(server.Close)
	return &testAPI{t: t, server: server, store: store}
}

func (a *testAPI) do(method, path string, body any, token string) *http.Response {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			a.t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, a.server.URL+path, &buf)
	if err != nil {
		a.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		a.t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

// register creates an account over the API and returns its id.
func (a *testAPI) register(username, password string) int64 {
	a.t.Helper()
	resp := a.do(http.MethodPost, "/auth/register", map[string]string{
		"username":     username,
		"password":     password,
		"display_name": username,
		"email":        username + "@example.com",
	}, "")
	if resp.StatusCode != http.StatusCreated {
		a.t.Fatalf("register %s: status %d", username, resp.StatusCode)
	}
	var user credential.User
	decodeBody(a.t, resp, &user)
	return user.ID
}

// login returns a bearer token for the account.
func (a *testAPI) login(username, password string) string {
	a.t.Helper()
	resp := a.do(http.MethodPost, "/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, "")
	if resp.StatusCode != http.StatusOK {
		a.t.Fatalf("login %s: status %d", username, resp.StatusCode)
	}
	var body loginResponse
	decodeBody(a.t, resp, &body)
	if body.Token == "" {
		a.t.Fatal("login returned empty token")
	}
	return body.Token
}

// grantAdmin wires an owner, membership and admin role binding directly in
// the store so the user's token resolves the admin role.
func (a *testAPI) grantAdmin(userID int64) {
	a.t.Helper()
	ctx := context.Background()
	role, err := a.store.CreateRole(ctx, "admin", "seed")
	if err != nil {
		role2, findErr := func() (grant.Role, error) {
			roles, _ := a.store.ListRoles(ctx)
			for _, r := range roles {
				if r.Name == "admin" {
					return r, nil
				}
			}
			return grant.Role{}, notFound("role")
		}()
		if findErr != nil {
			a.t.Fatalf("create admin role: %v", err)
		}
		role = role2
	}
	owner, err := a.store.CreateOwner(ctx, membership.NewOwner{TaxID: fmt.Sprintf("tax-%d", userID), Name: "Root Org", CreatedBy: "seed"})
	if err != nil {
		a.t.Fatalf("create owner: %v", err)
	}
	_, err = a.store.CreateMembership(ctx, membership.NewMembership{
		UserID: userID, OwnerID: owner.ID, Kind: membership.KindPermanent, CreatedBy: "seed",
	}, []int64{role.ID})
	if err != nil {
		a.t.Fatalf("create membership: %v", err)
	}
}
