package httpapi

import (
	"net/http"
	"time"

	"seguridad.dev/internal/membership"
)

type createMembershipRequest struct {
	UserID     int64      `json:"user_id"`
	OwnerID    int64      `json:"owner_id"`
	Kind       string     `json:"kind"`
	ValidUntil *time.Time `json:"valid_until"`
	RoleIDs    []int64    `json:"role_ids"`
}

type updateMembershipRequest struct {
	Kind       *string    `json:"kind"`
	ValidUntil *time.Time `json:"valid_until"`
}

type bindRoleRequest struct {
	RoleID int64 `json:"role_id"`
}

func (a *API) handleListMemberships(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireRole(w, r, roleAdmin); !ok {
		return
	}
	if userID, ok := queryID(r, "user"); ok {
		list, err := a.memberships.ListByUser(r.Context(), userID)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
		return
	}
	if ownerID, ok := queryID(r, "owner"); ok {
		list, err := a.memberships.ListByOwner(r.Context(), ownerID)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
		return
	}
	writeError(w, r, http.StatusBadRequest, "user or owner query parameter is required")
}

func (a *API) handleCreateMembership(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.requireRole(w, r, roleAdmin)
	if !ok {
		return
	}
	var req createMembershipRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	m, err := a.memberships.Create(r.Context(), membership.NewMembership{
		UserID:     req.UserID,
		OwnerID:    req.OwnerID,
		Kind:       membership.Kind(req.Kind),
		ValidUntil: req.ValidUntil,
		CreatedBy:  caller.Username,
	}, req.RoleIDs)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if err := a.recordAudit(r, caller, "membership.create", "memberships", m.ID, nil, m); err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (a *API) handleListActiveMemberships(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireRole(w, r, roleAdmin); !ok {
		return
	}
	list, err := a.memberships.ListActive(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) handleGetMembership(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid membership id")
		return
	}
	m, err := a.memberships.Get(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (a *API) handleUpdateMembership(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.requireRole(w, r, roleAdmin)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid membership id")
		return
	}
	var req updateMembershipRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	before, err := a.memberships.Get(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	upd := membership.Update{
		ValidUntil: req.ValidUntil,
		UpdatedBy:  caller.Username,
	}
	if req.Kind != nil {
		kind := membership.Kind(*req.Kind)
		upd.Kind = &kind
	}
	m, err := a.memberships.Update(r.Context(), id, upd)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if err := a.recordAudit(r, caller, "membership.update", "memberships", id, before, m); err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// handleDecommissionMembership is idempotent at the HTTP level too: a repeat
// delete answers 200 with changed=false rather than an error.
func (a *API) handleDecommissionMembership(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.requireRole(w, r, roleAdmin)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid membership id")
		return
	}
	changed, err := a.memberships.Decommission(r.Context(), id, caller.Username)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if changed {
		if err := a.recordAudit(r, caller, "membership.decommission", "memberships", id, nil, nil); err != nil {
			handleError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"changed": changed})
}

func (a *API) handleMembershipRoles(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid membership id")
		return
	}
	bindings, err := a.memberships.ListRoles(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bindings)
}

func (a *API) handleBindRole(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.requireRole(w, r, roleAdmin)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid membership id")
		return
	}
	var req bindRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	binding, err := a.memberships.AddRole(r.Context(), id, req.RoleID, caller.Username)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if err := a.recordAudit(r, caller, "membership.role.bind", "membership_roles", id, nil, binding); err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, binding)
}

func (a *API) handleUnbindRole(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.requireRole(w, r, roleAdmin)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid membership id")
		return
	}
	roleID, ok := pathID(r, "roleId")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid role id")
		return
	}
	removed, err := a.memberships.RemoveRole(r.Context(), id, roleID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if !removed {
		writeError(w, r, http.StatusNotFound, "role binding not found")
		return
	}
	if err := a.recordAudit(r, caller, "membership.role.unbind", "membership_roles", id, nil, nil); err != nil {
		handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleEffectivePermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid membership id")
		return
	}
	perms, err := a.memberships.EffectivePermissions(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, perms)
}

func (a *API) handleOwnerByMembership(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid membership id")
		return
	}
	owner, err := a.memberships.OwnerByMembership(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, owner)
}
