package httpapi

import (
	"net/http"

	"seguridad.dev/internal/grant"
)

type createActionRequest struct {
	Name     string `json:"name"`
	TypeCode string `json:"type_code"`
	UIHint   string `json:"ui_hint"`
}

type updateActionRequest struct {
	Name     *string `json:"name"`
	TypeCode *string `json:"type_code"`
	UIHint   *string `json:"ui_hint"`
}

type bindActionRequest struct {
	ActionID int64 `json:"action_id"`
}

func (a *API) handleListActions(w http.ResponseWriter, r *http.Request) {
	actions, err := a.grants.ListActions(r.Context(), r.URL.Query().Get("type"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, actions)
}

func (a *API) handleCreateAction(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.requireRole(w, r, roleAdmin)
	if !ok {
		return
	}
	var req createActionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	action, err := a.grants.CreateAction(r.Context(), req.Name, req.TypeCode, req.UIHint, caller.Username)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if err := a.recordAudit(r, caller, "action.create", "actions", action.ID, nil, action); err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, action)
}

func (a *API) handleGetAction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid action id")
		return
	}
	action, err := a.grants.GetAction(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, action)
}

func (a *API) handleUpdateAction(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.requireRole(w, r, roleAdmin)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid action id")
		return
	}
	var req updateActionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	before, err := a.grants.GetAction(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	action, err := a.grants.UpdateAction(r.Context(), id, grant.ActionUpdate{
		Name:      req.Name,
		TypeCode:  req.TypeCode,
		UIHint:    req.UIHint,
		UpdatedBy: caller.Username,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	if err := a.recordAudit(r, caller, "action.update", "actions", id, before, action); err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, action)
}

func (a *API) handleDeleteAction(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.requireRole(w, r, roleAdmin)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid action id")
		return
	}
	if err := a.grants.DeleteAction(r.Context(), id); err != nil {
		handleError(w, r, err)
		return
	}
	if err := a.recordAudit(r, caller, "action.delete", "actions", id, nil, nil); err != nil {
		handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- direct membership action bindings ---

func (a *API) handleMembershipActions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid membership id")
		return
	}
	actions, err := a.memberships.ListActions(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, actions)
}

func (a *API) handleBindAction(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.requireRole(w, r, roleAdmin)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid membership id")
		return
	}
	var req bindActionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	binding, err := a.memberships.AddAction(r.Context(), id, req.ActionID, caller.Username)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if err := a.recordAudit(r, caller, "membership.action.bind", "membership_actions", id, nil, binding); err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, binding)
}

func (a *API) handleUnbindAction(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.requireRole(w, r, roleAdmin)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid membership id")
		return
	}
	actionID, ok := pathID(r, "actionId")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid action id")
		return
	}
	removed, err := a.memberships.RemoveAction(r.Context(), id, actionID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if !removed {
		writeError(w, r, http.StatusNotFound, "action binding not found")
		return
	}
	if err := a.recordAudit(r, caller, "membership.action.unbind", "membership_actions", id, nil, nil); err != nil {
		handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
