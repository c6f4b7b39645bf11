// Package audit is the append-only trail of mutating actions. Records are
// never updated or deleted, and a failed audit write is a real error that
// must propagate to the caller, unlike best-effort telemetry.
package audit

import "time"

// Record is one append-only audit entry.
type Record struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Action    string    `json:"action"`
	Table     string    `json:"table"`
	RecordID  int64     `json:"record_id"`
	Before    *string   `json:"before,omitempty"`
	After     *string   `json:"after,omitempty"`
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
	At        time.Time `json:"at"`
}

// NewRecord carries the fields needed to append an entry.
type NewRecord struct {
	UserID    int64
	Action    string
	Table     string
	RecordID  int64
	Before    *string
	After     *string
	IPAddress string
	UserAgent string
}
