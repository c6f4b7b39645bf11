package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"seguridad.dev/internal/access"
	"seguridad.dev/internal/session"
)

const tokenColumns = `id, user_id, value, issued_at, expires_at, validated_at, validated,
	created_by, created_at, updated_by, updated_at`

func (s *Store) CreateToken(ctx context.Context, t session.NewToken) (session.Token, error) {
	const q = `insert into seguridad.tokens (user_id, value, issued_at, expires_at, created_by)
		values ($1, $2, $3, $4, $5)
		returning id, created_at`
	out := session.Token{
		UserID:    t.UserID,
		Value:     t.Value,
		IssuedAt:  t.IssuedAt,
		ExpiresAt: t.ExpiresAt,
		CreatedBy: t.CreatedBy,
	}
	err := s.db.QueryRowContext(ctx, q, t.UserID, t.Value, t.IssuedAt, t.ExpiresAt, t.CreatedBy).
		Scan(&out.ID, &out.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return session.Token{}, fmt.Errorf("%w: token value already exists", access.ErrConflict)
			case pgErrForeignKeyViolation:
				return session.Token{}, fmt.Errorf("%w: user %d", access.ErrNotFound, t.UserID)
			}
		}
		return session.Token{}, fmt.Errorf("insert token: %w", err)
	}
	return out, nil
}

func (s *Store) GetToken(ctx context.Context, id int64) (session.Token, error) {
	q := `select ` + tokenColumns + ` from seguridad.tokens where id = $1`
	return scanToken(s.db.QueryRowContext(ctx, q, id))
}

func (s *Store) FindTokenByValue(ctx context.Context, value string) (session.Token, error) {
	q := `select ` + tokenColumns + ` from seguridad.tokens where value = $1`
	return scanToken(s.db.QueryRowContext(ctx, q, value))
}

func (s *Store) ListTokensByUser(ctx context.Context, userID int64) ([]session.Token, error) {
	q := `select ` + tokenColumns + ` from seguridad.tokens
		where user_id = $1 order by expires_at desc`
	rows, err := s.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("list tokens for user %d: %w", userID, err)
	}
	defer rows.Close()

	var tokens []session.Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

func (s *Store) MarkTokenValidated(ctx context.Context, id int64, at time.Time, by string) (session.Token, error) {
	const q = `update seguridad.tokens
		set validated = true, validated_at = $1, updated_by = $2, updated_at = now()
		where id = $3`
	res, err := s.db.ExecContext(ctx, q, at, by, id)
	if err != nil {
		return session.Token{}, fmt.Errorf("mark token %d validated: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return session.Token{}, fmt.Errorf("%w: token %d", access.ErrNotFound, id)
	}
	return s.GetToken(ctx, id)
}

func (s *Store) DeleteToken(ctx context.Context, id int64) error {
	const q = `delete from seguridad.tokens where id = $1`
	res, err := s.db.ExecContext(ctx, q, id)
	if err != nil {
		return fmt.Errorf("delete token %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: token %d", access.ErrNotFound, id)
	}
	return nil
}

func (s *Store) DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	const q = `delete from seguridad.tokens where expires_at < $1`
	res, err := s.db.ExecContext(ctx, q, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}
	return res.RowsAffected()
}

func scanToken(row rowScanner) (session.Token, error) {
	var (
		t           session.Token
		validatedAt sql.NullTime
		updatedBy   sql.NullString
		updatedAt   sql.NullTime
	)
	err := row.Scan(&t.ID, &t.UserID, &t.Value, &t.IssuedAt, &t.ExpiresAt,
		&validatedAt, &t.Validated, &t.CreatedBy, &t.CreatedAt, &updatedBy, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return session.Token{}, fmt.Errorf("%w: token", access.ErrNotFound)
	}
	if err != nil {
		return session.Token{}, fmt.Errorf("scan token: %w", err)
	}
	t.ValidatedAt = fromNullTime(validatedAt)
	t.UpdatedBy = fromNullString(updatedBy)
	t.UpdatedAt = fromNullTime(updatedAt)
	return t, nil
}
