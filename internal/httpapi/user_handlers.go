package httpapi

import (
	"net/http"

	"seguridad.dev/internal/credential"
)

type updateUserRequest struct {
	Username    *string `json:"username"`
	DisplayName *string `json:"display_name"`
	Email       *string `json:"email"`
	Phone       *string `json:"phone"`
	Status      *string `json:"status"`
}

type setPasswordRequest struct {
	Password string `json:"password"`
}

// handleCreateUser is the admin-driven counterpart of /auth/register: the
// created_by column records the acting admin, not the new account itself.
func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.requireRole(w, r, roleAdmin)
	if !ok {
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.users.Register(r.Context(), credential.Registration{
		Username:    req.Username,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		Email:       req.Email,
		Phone:       req.Phone,
		CreatedBy:   caller.Username,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	if err := a.recordAudit(r, caller, "user.create", "users", user.ID, nil, user); err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireRole(w, r, roleAdmin); !ok {
		return
	}
	users, err := a.users.List(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (a *API) handleGetUser(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing identity")
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid user id")
		return
	}
	// Non-admins may only read their own record.
	if id != caller.UserID && !caller.HasRole(roleAdmin) {
		writeError(w, r, http.StatusForbidden, "insufficient role")
		return
	}
	user, err := a.users.Get(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.requireRole(w, r, roleAdmin)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid user id")
		return
	}
	var req updateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	before, err := a.users.Get(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	upd := credential.Update{
		Username:    req.Username,
		DisplayName: req.DisplayName,
		Email:       req.Email,
		Phone:       req.Phone,
		UpdatedBy:   caller.Username,
	}
	if req.Status != nil {
		status := credential.Status(*req.Status)
		upd.Status = &status
	}
	user, err := a.users.Update(r.Context(), id, upd)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if err := a.recordAudit(r, caller, "user.update", "users", id, before, user); err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) handleDeactivateUser(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.requireRole(w, r, roleAdmin)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid user id")
		return
	}
	if err := a.users.Deactivate(r.Context(), id, caller.Username); err != nil {
		handleError(w, r, err)
		return
	}
	if err := a.recordAudit(r, caller, "user.deactivate", "users", id, nil, nil); err != nil {
		handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleSetPassword(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing identity")
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid user id")
		return
	}
	if id != caller.UserID && !caller.HasRole(roleAdmin) {
		writeError(w, r, http.StatusForbidden, "insufficient role")
		return
	}
	var req setPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.users.SetPassword(r.Context(), id, req.Password, caller.Username); err != nil {
		handleError(w, r, err)
		return
	}
	if err := a.recordAudit(r, caller, "user.password", "users", id, nil, nil); err != nil {
		handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
