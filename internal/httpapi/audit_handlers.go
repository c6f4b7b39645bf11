package httpapi

import (
	"net/http"
	"strings"
	"time"

	"seguridad.dev/internal/audit"
)

type appendAuditRequest struct {
	Action   string  `json:"action"`
	Table    string  `json:"table"`
	RecordID int64   `json:"record_id"`
	Before   *string `json:"before"`
	After    *string `json:"after"`
}

// handleAppendAudit lets operators write a manual trail entry, e.g. for
// changes applied outside the API. The caller is recorded as the actor.
func (a *API) handleAppendAudit(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.requireRole(w, r, roleAdmin)
	if !ok {
		return
	}
	var req appendAuditRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	record, err := a.audits.Record(r.Context(), audit.NewRecord{
		UserID:    caller.UserID,
		Action:    req.Action,
		Table:     req.Table,
		RecordID:  req.RecordID,
		Before:    req.Before,
		After:     req.After,
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (a *API) handleListAudits(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireRole(w, r, roleAdmin); !ok {
		return
	}
	q := r.URL.Query()
	ctx := r.Context()

	if userID, ok := queryID(r, "user"); ok {
		records, err := a.audits.ByUser(ctx, userID)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, records)
		return
	}
	if table := strings.TrimSpace(q.Get("table")); table != "" {
		if recordID, ok := queryID(r, "record"); ok {
			records, err := a.audits.ByRecord(ctx, table, recordID)
			if err != nil {
				handleError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, records)
			return
		}
		records, err := a.audits.ByTable(ctx, table)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, records)
		return
	}
	if action := strings.TrimSpace(q.Get("action")); action != "" {
		records, err := a.audits.ByAction(ctx, action)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, records)
		return
	}
	writeError(w, r, http.StatusBadRequest, "user, table or action query parameter is required")
}

func (a *API) handleGetAudit(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireRole(w, r, roleAdmin); !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid audit id")
		return
	}
	record, err := a.audits.Get(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (a *API) handleSearchAudits(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireRole(w, r, roleAdmin); !ok {
		return
	}
	records, err := a.audits.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (a *API) handleAuditsByDateRange(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireRole(w, r, roleAdmin); !ok {
		return
	}
	q := r.URL.Query()
	from, errFrom := time.Parse(time.RFC3339, q.Get("from"))
	to, errTo := time.Parse(time.RFC3339, q.Get("to"))
	if errFrom != nil || errTo != nil {
		writeError(w, r, http.StatusBadRequest, "from and to must be RFC3339 timestamps")
		return
	}
	records, err := a.audits.ByDateRange(r.Context(), from, to)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}
