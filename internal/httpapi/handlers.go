package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"seguridad.dev/internal/audit"
	"seguridad.dev/internal/session"
)

func pathID(r *http.Request, name string) (int64, bool) {
	raw, ok := mux.Vars(r)[name]
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func queryID(r *http.Request, name string) (int64, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// recordAudit appends a trail entry for a completed mutation. A failed write
// is a hard error: the handler must abort with 500 rather than report success
// for an unaudited change.
func (a *API) recordAudit(r *http.Request, caller session.Identity, action, table string, recordID int64, before, after any) error {
	rec := audit.NewRecord{
		UserID:    caller.UserID,
		Action:    action,
		Table:     table,
		RecordID:  recordID,
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
	}
	if before != nil {
		if raw, err := json.Marshal(before); err == nil {
			s := string(raw)
			rec.Before = &s
		}
	}
	if after != nil {
		if raw, err := json.Marshal(after); err == nil {
			s := string(raw)
			rec.After = &s
		}
	}
	_, err := a.audits.Record(r.Context(), rec)
	return err
}
