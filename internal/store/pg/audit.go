package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"seguridad.dev/internal/access"
	"seguridad.dev/internal/audit"
)

const auditColumns = `id, user_id, action, table_name, record_id, before, after,
	ip_address, user_agent, at`

func (s *Store) AppendRecord(ctx context.Context, r audit.NewRecord) (audit.Record, error) {
	const q = `insert into seguridad.audit_records
		(user_id, action, table_name, record_id, before, after, ip_address, user_agent)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
		returning id, at`
	out := audit.Record{
		UserID:    r.UserID,
		Action:    r.Action,
		Table:     r.Table,
		RecordID:  r.RecordID,
		Before:    r.Before,
		After:     r.After,
		IPAddress: r.IPAddress,
		UserAgent: r.UserAgent,
	}
	err := s.db.QueryRowContext(ctx, q, r.UserID, r.Action, r.Table, r.RecordID,
		r.Before, r.After, nullIfEmpty(r.IPAddress), nullIfEmpty(r.UserAgent),
	).Scan(&out.ID, &out.At)
	if err != nil {
		return audit.Record{}, fmt.Errorf("append audit record: %w", err)
	}
	return out, nil
}

func (s *Store) GetRecord(ctx context.Context, id int64) (audit.Record, error) {
	q := `select ` + auditColumns + ` from seguridad.audit_records where id = $1`
	return scanAuditRecord(s.db.QueryRowContext(ctx, q, id))
}

func (s *Store) RecordsByUser(ctx context.Context, userID int64) ([]audit.Record, error) {
	q := `select ` + auditColumns + ` from seguridad.audit_records
		where user_id = $1 order by at desc`
	return s.queryAuditRecords(ctx, q, userID)
}

func (s *Store) RecordsByTable(ctx context.Context, table string) ([]audit.Record, error) {
	q := `select ` + auditColumns + ` from seguridad.audit_records
		where table_name = $1 order by at desc`
	return s.queryAuditRecords(ctx, q, table)
}

func (s *Store) RecordsByAction(ctx context.Context, action string) ([]audit.Record, error) {
	q := `select ` + auditColumns + ` from seguridad.audit_records
		where action = $1 order by at desc`
	return s.queryAuditRecords(ctx, q, action)
}

func (s *Store) RecordsByDateRange(ctx context.Context, from, to time.Time) ([]audit.Record, error) {
	q := `select ` + auditColumns + ` from seguridad.audit_records
		where at >= $1 and at <= $2 order by at desc`
	return s.queryAuditRecords(ctx, q, from, to)
}

func (s *Store) RecordsByRecord(ctx context.Context, table string, recordID int64) ([]audit.Record, error) {
	q := `select ` + auditColumns + ` from seguridad.audit_records
		where table_name = $1 and record_id = $2 order by at desc`
	return s.queryAuditRecords(ctx, q, table, recordID)
}

func (s *Store) SearchRecords(ctx context.Context, term string) ([]audit.Record, error) {
	q := `select ` + auditColumns + ` from seguridad.audit_records
		where action ilike '%' || $1 || '%'
		   or table_name ilike '%' || $1 || '%'
		   or before ilike '%' || $1 || '%'
		   or after ilike '%' || $1 || '%'
		order by at desc`
	return s.queryAuditRecords(ctx, q, term)
}

func scanAuditRecord(row rowScanner) (audit.Record, error) {
	var (
		r         audit.Record
		before    sql.NullString
		after     sql.NullString
		ipAddress sql.NullString
		userAgent sql.NullString
	)
	err := row.Scan(&r.ID, &r.UserID, &r.Action, &r.Table, &r.RecordID,
		&before, &after, &ipAddress, &userAgent, &r.At)
	if errors.Is(err, sql.ErrNoRows) {
		return audit.Record{}, fmt.Errorf("%w: audit record", access.ErrNotFound)
	}
	if err != nil {
		return audit.Record{}, fmt.Errorf("scan audit record: %w", err)
	}
	if before.Valid {
		v := before.String
		r.Before = &v
	}
	if after.Valid {
		v := after.String
		r.After = &v
	}
	r.IPAddress = fromNullString(ipAddress)
	r.UserAgent = fromNullString(userAgent)
	return r, nil
}

func (s *Store) queryAuditRecords(ctx context.Context, q string, args ...any) ([]audit.Record, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	var records []audit.Record
	for rows.Next() {
		r, err := scanAuditRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
