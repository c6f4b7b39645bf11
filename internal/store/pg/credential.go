package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"seguridad.dev/internal/access"
	"seguridad.dev/internal/credential"
)

const userColumns = `id, username, secret_hash, display_name, email, phone, status,
	created_by, created_at, updated_by, updated_at, last_access_at`

func (s *Store) CreateUser(ctx context.Context, u credential.NewUser) (credential.User, error) {
	const q = `insert into seguridad.users
		(username, secret_hash, display_name, email, phone, status, created_by)
		values ($1, $2, $3, $4, $5, $6, $7)
		returning id, created_at`

	out := credential.User{
		Username:    u.Username,
		SecretHash:  u.SecretHash,
		DisplayName: u.DisplayName,
		Email:       u.Email,
		Phone:       u.Phone,
		Status:      u.Status,
		CreatedBy:   u.CreatedBy,
	}
	err := s.db.QueryRowContext(ctx, q,
		u.Username, u.SecretHash, u.DisplayName, u.Email, nullIfEmpty(u.Phone),
		string(u.Status), u.CreatedBy,
	).Scan(&out.ID, &out.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return credential.User{}, fmt.Errorf("%w: username %q already taken", access.ErrConflict, u.Username)
		}
		return credential.User{}, fmt.Errorf("insert user: %w", err)
	}
	return out, nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (credential.User, error) {
	q := `select ` + userColumns + ` from seguridad.users where id = $1`
	return s.scanUser(s.db.QueryRowContext(ctx, q, id))
}

func (s *Store) FindByUsername(ctx context.Context, username string) (credential.User, error) {
	q := `select ` + userColumns + ` from seguridad.users where username = $1`
	return s.scanUser(s.db.QueryRowContext(ctx, q, username))
}

func (s *Store) ListUsers(ctx context.Context) ([]credential.User, error) {
	q := `select ` + userColumns + ` from seguridad.users order by id`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []credential.User
	for rows.Next() {
		u, err := s.scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUser(ctx context.Context, id int64, upd credential.Update) (credential.User, error) {
	sets := make([]string, 0, 6)
	args := make([]any, 0, 7)
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if upd.Username != nil {
		add("username", *upd.Username)
	}
	if upd.DisplayName != nil {
		add("display_name", *upd.DisplayName)
	}
	if upd.Email != nil {
		add("email", *upd.Email)
	}
	if upd.Phone != nil {
		add("phone", nullIfEmpty(*upd.Phone))
	}
	if upd.Status != nil {
		add("status", string(*upd.Status))
	}
	if len(sets) == 0 {
		return s.GetUser(ctx, id)
	}
	add("updated_by", upd.UpdatedBy)
	sets = append(sets, "updated_at = now()")
	args = append(args, id)

	q := fmt.Sprintf(`update seguridad.users set %s where id = $%d`,
		strings.Join(sets, ", "), len(args))
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return credential.User{}, fmt.Errorf("%w: username already taken", access.ErrConflict)
		}
		return credential.User{}, fmt.Errorf("update user %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return credential.User{}, fmt.Errorf("%w: user %d", access.ErrNotFound, id)
	}
	return s.GetUser(ctx, id)
}

func (s *Store) UpdateSecret(ctx context.Context, id int64, secretHash, by string) error {
	const q = `update seguridad.users
		set secret_hash = $1, updated_by = $2, updated_at = now()
		where id = $3`
	res, err := s.db.ExecContext(ctx, q, secretHash, by, id)
	if err != nil {
		return fmt.Errorf("update secret for user %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: user %d", access.ErrNotFound, id)
	}
	return nil
}

func (s *Store) TouchLastAccess(ctx context.Context, id int64) error {
	const q = `update seguridad.users set last_access_at = now() where id = $1`
	_, err := s.db.ExecContext(ctx, q, id)
	if err != nil {
		return fmt.Errorf("touch last access for user %d: %w", id, err)
	}
	return nil
}

func (s *Store) RoleNamesForUser(ctx context.Context, id int64) ([]string, error) {
	const q = `select distinct r.name
		from seguridad.memberships m
		join seguridad.membership_roles mr on mr.membership_id = m.id
		join seguridad.roles r on r.id = mr.role_id and not r.deleted
		where m.user_id = $1
		  and m.status = 'active'
		  and (m.valid_until is null or m.valid_until >= now())
		order by r.name`
	rows, err := s.db.QueryContext(ctx, q, id)
	if err != nil {
		// A partially migrated database has users before the membership
		// tables exist; authentication must still work then.
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUndefinedTable {
			return nil, nil
		}
		return nil, fmt.Errorf("role names for user %d: %w", id, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanUser(row rowScanner) (credential.User, error) {
	var (
		u          credential.User
		status     string
		phone      sql.NullString
		updatedBy  sql.NullString
		updatedAt  sql.NullTime
		lastAccess sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Username, &u.SecretHash, &u.DisplayName, &u.Email,
		&phone, &status, &u.CreatedBy, &u.CreatedAt, &updatedBy, &updatedAt, &lastAccess)
	if errors.Is(err, sql.ErrNoRows) {
		return credential.User{}, fmt.Errorf("%w: user", access.ErrNotFound)
	}
	if err != nil {
		return credential.User{}, fmt.Errorf("scan user: %w", err)
	}
	u.Status = credential.Status(status)
	u.Phone = fromNullString(phone)
	u.UpdatedBy = fromNullString(updatedBy)
	u.UpdatedAt = fromNullTime(updatedAt)
	u.LastAccessAt = fromNullTime(lastAccess)
	return u, nil
}
