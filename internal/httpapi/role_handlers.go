package httpapi

import (
	"net/http"

	"seguridad.dev/internal/grant"
)

type createRoleRequest struct {
	Name string `json:"name"`
}

type updateRoleRequest struct {
	Name *string `json:"name"`
}

type addGrantRequest struct {
	ActionID  int64 `json:"action_id"`
	CanSelect bool  `json:"can_select"`
	CanInsert bool  `json:"can_insert"`
	CanUpdate bool  `json:"can_update"`
	CanDelete bool  `json:"can_delete"`
}

func (a *API) handleListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := a.grants.ListRoles(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, roles)
}

func (a *API) handleCreateRole(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.requireRole(w, r, roleAdmin)
	if !ok {
		return
	}
	var req createRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := a.grants.CreateRole(r.Context(), req.Name, caller.Username)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if err := a.recordAudit(r, caller, "role.create", "roles", role.ID, nil, role); err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, role)
}

func (a *API) handleGetRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid role id")
		return
	}
	role, err := a.grants.GetRole(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, role)
}

func (a *API) handleUpdateRole(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.requireRole(w, r, roleAdmin)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid role id")
		return
	}
	var req updateRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	before, err := a.grants.GetRole(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	role, err := a.grants.UpdateRole(r.Context(), id, grant.RoleUpdate{
		Name:      req.Name,
		UpdatedBy: caller.Username,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	if err := a.recordAudit(r, caller, "role.update", "roles", id, before, role); err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, role)
}

func (a *API) handleDeleteRole(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.requireRole(w, r, roleAdmin)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid role id")
		return
	}
	if err := a.grants.DeleteRole(r.Context(), id, caller.Username); err != nil {
		handleError(w, r, err)
		return
	}
	if err := a.recordAudit(r, caller, "role.delete", "roles", id, nil, nil); err != nil {
		handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleListGrants(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid role id")
		return
	}
	grants, err := a.grants.ListGrants(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, grants)
}

func (a *API) handleAddGrant(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.requireRole(w, r, roleAdmin)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid role id")
		return
	}
	var req addGrantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	g, err := a.grants.AddGrant(r.Context(), id, req.ActionID, grant.Caps{
		Select: req.CanSelect,
		Insert: req.CanInsert,
		Update: req.CanUpdate,
		Delete: req.CanDelete,
	}, caller.Username)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if err := a.recordAudit(r, caller, "grant.create", "role_grants", g.ID, nil, g); err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

func (a *API) handleRemoveGrant(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.requireRole(w, r, roleAdmin)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid role id")
		return
	}
	actionID, ok := pathID(r, "actionId")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid action id")
		return
	}
	if err := a.grants.RemoveGrant(r.Context(), id, actionID, caller.Username); err != nil {
		handleError(w, r, err)
		return
	}
	if err := a.recordAudit(r, caller, "grant.delete", "role_grants", id, nil, nil); err != nil {
		handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
