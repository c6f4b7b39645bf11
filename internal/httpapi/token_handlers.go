package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
)

type issueTokenRequest struct {
	UserID int64 `json:"user_id"`
}

// handleIssueToken mints a session for another account without its password,
// e.g. for support impersonation. Admin only, and always audited.
func (a *API) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.requireRole(w, r, roleAdmin)
	if !ok {
		return
	}
	var req issueTokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.users.Get(r.Context(), req.UserID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	signed, record, err := a.sessions.Issue(r.Context(), user.ID, user.Username)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if err := a.recordAudit(r, caller, "token.create", "tokens", record.ID, nil, record); err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"token":  signed,
		"record": record,
	})
}

func (a *API) handleListTokens(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireRole(w, r, roleAdmin); !ok {
		return
	}
	userID, ok := queryID(r, "user")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "user query parameter is required")
		return
	}
	tokens, err := a.sessions.ListByUser(r.Context(), userID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokens)
}

func (a *API) handleGetToken(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireRole(w, r, roleAdmin); !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid token id")
		return
	}
	token, err := a.sessions.Get(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, token)
}

// handleMarkTokenValidated stamps a token as consumed by an external
// validation flow. Repeat calls simply refresh the stamp.
func (a *API) handleMarkTokenValidated(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.requireRole(w, r, roleAdmin)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid token id")
		return
	}
	token, err := a.sessions.MarkValidated(r.Context(), id, caller.Username)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, token)
}

func (a *API) handleDeleteToken(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.requireRole(w, r, roleAdmin)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid token id")
		return
	}
	if err := a.sessions.Delete(r.Context(), id); err != nil {
		handleError(w, r, err)
		return
	}
	if err := a.recordAudit(r, caller, "token.delete", "tokens", id, nil, nil); err != nil {
		handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSweepTokens triggers the expiry sweep on demand; the same sweep runs
// on a schedule from main.
func (a *API) handleSweepTokens(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.requireRole(w, r, roleAdmin)
	if !ok {
		return
	}
	count, err := a.sessions.SweepExpired(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	if count > 0 {
		if err := a.recordAudit(r, caller, "token.sweep", "tokens", 0, nil, map[string]int64{"deleted": count}); err != nil {
			handleError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": count})
}

func (a *API) handleValidateToken(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireRole(w, r, roleAdmin); !ok {
		return
	}
	value := mux.Vars(r)["value"]
	valid, err := a.sessions.IsValid(r.Context(), value)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"valid": valid})
}
