package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"seguridad.dev/internal/access"
)

// Service validates input and delegates to the store.
type Service struct {
	store Store
}

// NewService constructs an audit trail service.
func NewService(store Store) (*Service, error) {
	if store == nil {
		return nil, errors.New("audit store is required")
	}
	return &Service{store: store}, nil
}

// Record appends an entry. Errors propagate: losing an audit record is a
// correctness defect, not telemetry.
func (s *Service) Record(ctx context.Context, r NewRecord) (Record, error) {
	r.Action = strings.TrimSpace(r.Action)
	r.Table = strings.TrimSpace(r.Table)
	if r.Action == "" || r.Table == "" {
		return Record{}, fmt.Errorf("%w: audit action and table are required", access.ErrInvalidInput)
	}
	if r.UserID <= 0 {
		return Record{}, fmt.Errorf("%w: audit user id is required", access.ErrInvalidInput)
	}
	return s.store.AppendRecord(ctx, r)
}

func (s *Service) Get(ctx context.Context, id int64) (Record, error) {
	return s.store.GetRecord(ctx, id)
}

func (s *Service) ByUser(ctx context.Context, userID int64) ([]Record, error) {
	return s.store.RecordsByUser(ctx, userID)
}

func (s *Service) ByTable(ctx context.Context, table string) ([]Record, error) {
	table = strings.TrimSpace(table)
	if table == "" {
		return nil, fmt.Errorf("%w: table is required", access.ErrInvalidInput)
	}
	return s.store.RecordsByTable(ctx, table)
}

func (s *Service) ByAction(ctx context.Context, action string) ([]Record, error) {
	action = strings.TrimSpace(action)
	if action == "" {
		return nil, fmt.Errorf("%w: action is required", access.ErrInvalidInput)
	}
	return s.store.RecordsByAction(ctx, action)
}

func (s *Service) ByDateRange(ctx context.Context, from, to time.Time) ([]Record, error) {
	if from.IsZero() || to.IsZero() || to.Before(from) {
		return nil, fmt.Errorf("%w: invalid date range", access.ErrInvalidInput)
	}
	return s.store.RecordsByDateRange(ctx, from, to)
}

func (s *Service) ByRecord(ctx context.Context, table string, recordID int64) ([]Record, error) {
	table = strings.TrimSpace(table)
	if table == "" || recordID <= 0 {
		return nil, fmt.Errorf("%w: table and record id are required", access.ErrInvalidInput)
	}
	return s.store.RecordsByRecord(ctx, table, recordID)
}

// Search matches a substring across action, table and the before/after JSON
// snapshots.
func (s *Service) Search(ctx context.Context, term string) ([]Record, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, fmt.Errorf("%w: search term is required", access.ErrInvalidInput)
	}
	return s.store.SearchRecords(ctx, term)
}
