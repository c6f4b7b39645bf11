package httpapi

import (
	"net/http"

	"seguridad.dev/internal/membership"
)

type createOwnerRequest struct {
	TaxID   string `json:"tax_id"`
	LegalID string `json:"legal_id"`
	Name    string `json:"name"`
}

type updateOwnerRequest struct {
	TaxID   *string `json:"tax_id"`
	LegalID *string `json:"legal_id"`
	Name    *string `json:"name"`
	Status  *string `json:"status"`
}

func (a *API) handleListOwners(w http.ResponseWriter, r *http.Request) {
	owners, err := a.memberships.ListOwners(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, owners)
}

func (a *API) handleCreateOwner(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.requireRole(w, r, roleAdmin)
	if !ok {
		return
	}
	var req createOwnerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	owner, err := a.memberships.CreateOwner(r.Context(), membership.NewOwner{
		TaxID:     req.TaxID,
		LegalID:   req.LegalID,
		Name:      req.Name,
		CreatedBy: caller.Username,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	if err := a.recordAudit(r, caller, "owner.create", "owners", owner.ID, nil, owner); err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, owner)
}

func (a *API) handleSearchOwners(w http.ResponseWriter, r *http.Request) {
	owners, err := a.memberships.SearchOwners(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, owners)
}

func (a *API) handleGetOwner(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid owner id")
		return
	}
	owner, err := a.memberships.GetOwner(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, owner)
}

func (a *API) handleUpdateOwner(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.requireRole(w, r, roleAdmin)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid owner id")
		return
	}
	var req updateOwnerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	before, err := a.memberships.GetOwner(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	upd := membership.OwnerUpdate{
		TaxID:     req.TaxID,
		LegalID:   req.LegalID,
		Name:      req.Name,
		UpdatedBy: caller.Username,
	}
	if req.Status != nil {
		status := membership.OwnerStatus(*req.Status)
		upd.Status = &status
	}
	owner, err := a.memberships.UpdateOwner(r.Context(), id, upd)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if err := a.recordAudit(r, caller, "owner.update", "owners", id, before, owner); err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, owner)
}

func (a *API) handleDeactivateOwner(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.requireRole(w, r, roleAdmin)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid owner id")
		return
	}
	if err := a.memberships.DeactivateOwner(r.Context(), id, caller.Username); err != nil {
		handleError(w, r, err)
		return
	}
	if err := a.recordAudit(r, caller, "owner.deactivate", "owners", id, nil, nil); err != nil {
		handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
