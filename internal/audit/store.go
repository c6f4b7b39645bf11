package audit

import (
	"context"
	"time"
)

// Store describes persistence operations for the audit trail.
type Store interface {
	AppendRecord(ctx context.Context, r NewRecord) (Record, error)
	GetRecord(ctx context.Context, id int64) (Record, error)
	RecordsByUser(ctx context.Context, userID int64) ([]Record, error)
	RecordsByTable(ctx context.Context, table string) ([]Record, error)
	RecordsByAction(ctx context.Context, action string) ([]Record, error)
	RecordsByDateRange(ctx context.Context, from, to time.Time) ([]Record, error)
	RecordsByRecord(ctx context.Context, table string, recordID int64) ([]Record, error)
	SearchRecords(ctx context.Context, term string) ([]Record, error)
}
