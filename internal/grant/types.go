// Package grant holds the catalog of roles, actions and the role→action
// capability matrix. Roles are soft-deleted: a deleted role disappears from
// every read but its row (and anything referencing it) stays in place.
package grant

import "time"

// Role groups actions for assignment through memberships.
type Role struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	CreatedBy string     `json:"created_by"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedBy string     `json:"updated_by,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
	Deleted   bool       `json:"-"`
}

// Action is a single permissible operation, e.g. "invoice.create".
// TypeCode groups actions into categories; UIHint is an optional rendering
// hint for frontends.
type Action struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	TypeCode  string     `json:"type_code"`
	UIHint    string     `json:"ui_hint,omitempty"`
	CreatedBy string     `json:"created_by"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedBy string     `json:"updated_by,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// Caps is the set of CRUD capabilities a grant conveys.
type Caps struct {
	Select bool `json:"can_select"`
	Insert bool `json:"can_insert"`
	Update bool `json:"can_update"`
	Delete bool `json:"can_delete"`
}

// AllCaps conveys every capability; used for direct membership action grants.
var AllCaps = Caps{Select: true, Insert: true, Update: true, Delete: true}

// Union merges two capability sets, most-permissive wins.
func (c Caps) Union(o Caps) Caps {
	return Caps{
		Select: c.Select || o.Select,
		Insert: c.Insert || o.Insert,
		Update: c.Update || o.Update,
		Delete: c.Delete || o.Delete,
	}
}

// RoleGrant is one row of the permission matrix: for a (role, action) pair,
// which capabilities are granted. At most one non-deleted row may exist per
// pair.
type RoleGrant struct {
	ID        int64      `json:"id"`
	RoleID    int64      `json:"role_id"`
	ActionID  int64      `json:"action_id"`
	Caps      Caps       `json:"caps"`
	CreatedBy string     `json:"created_by"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedBy string     `json:"updated_by,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
	Deleted   bool       `json:"-"`
}

// ActionCapabilities pairs an action with the capabilities granted on it.
type ActionCapabilities struct {
	Action Action `json:"action"`
	Caps   Caps   `json:"caps"`
}

// RoleUpdate is a structured partial update; nil fields retain their value.
type RoleUpdate struct {
	Name      *string
	UpdatedBy string
}

// ActionUpdate is a structured partial update; nil fields retain their value.
type ActionUpdate struct {
	Name      *string
	TypeCode  *string
	UIHint    *string
	UpdatedBy string
}
