package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"seguridad.dev/internal/access"
	"seguridad.dev/internal/grant"
)

const actionColumns = `id, name, type_code, ui_hint, created_by, created_at, updated_by, updated_at`

// --- roles ---

func (s *Store) CreateRole(ctx context.Context, name, by string) (grant.Role, error) {
	const q = `insert into seguridad.roles (name, created_by)
		values ($1, $2)
		returning id, created_at`
	out := grant.Role{Name: name, CreatedBy: by}
	err := s.db.QueryRowContext(ctx, q, name, by).Scan(&out.ID, &out.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return grant.Role{}, fmt.Errorf("%w: role %q already exists", access.ErrConflict, name)
		}
		return grant.Role{}, fmt.Errorf("insert role: %w", err)
	}
	return out, nil
}

func (s *Store) GetRole(ctx context.Context, id int64) (grant.Role, error) {
	const q = `select id, name, created_by, created_at, updated_by, updated_at
		from seguridad.roles where id = $1 and not deleted`
	return s.scanRole(s.db.QueryRowContext(ctx, q, id))
}

func (s *Store) ListRoles(ctx context.Context) ([]grant.Role, error) {
	const q = `select id, name, created_by, created_at, updated_by, updated_at
		from seguridad.roles where not deleted order by name`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()

	var roles []grant.Role
	for rows.Next() {
		r, err := s.scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, r)
	}
	return roles, rows.Err()
}

func (s *Store) UpdateRole(ctx context.Context, id int64, upd grant.RoleUpdate) (grant.Role, error) {
	if upd.Name == nil {
		return s.GetRole(ctx, id)
	}
	const q = `update seguridad.roles
		set name = $1, updated_by = $2, updated_at = now()
		where id = $3 and not deleted`
	res, err := s.db.ExecContext(ctx, q, *upd.Name, upd.UpdatedBy, id)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return grant.Role{}, fmt.Errorf("%w: role %q already exists", access.ErrConflict, *upd.Name)
		}
		return grant.Role{}, fmt.Errorf("update role %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return grant.Role{}, fmt.Errorf("%w: role %d", access.ErrNotFound, id)
	}
	return s.GetRole(ctx, id)
}

func (s *Store) SoftDeleteRole(ctx context.Context, id int64, by string) error {
	const q = `update seguridad.roles
		set deleted = true, updated_by = $1, updated_at = now()
		where id = $2 and not deleted`
	res, err := s.db.ExecContext(ctx, q, by, id)
	if err != nil {
		return fmt.Errorf("delete role %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: role %d", access.ErrNotFound, id)
	}
	return nil
}

// --- actions ---

func (s *Store) CreateAction(ctx context.Context, name, typeCode, uiHint, by string) (grant.Action, error) {
	const q = `insert into seguridad.actions (name, type_code, ui_hint, created_by)
		values ($1, $2, $3, $4)
		returning id, created_at`
	out := grant.Action{Name: name, TypeCode: typeCode, UIHint: uiHint, CreatedBy: by}
	err := s.db.QueryRowContext(ctx, q, name, typeCode, nullIfEmpty(uiHint), by).
		Scan(&out.ID, &out.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return grant.Action{}, fmt.Errorf("%w: action %q already exists", access.ErrConflict, name)
		}
		return grant.Action{}, fmt.Errorf("insert action: %w", err)
	}
	return out, nil
}

func (s *Store) GetAction(ctx context.Context, id int64) (grant.Action, error) {
	q := `select ` + actionColumns + ` from seguridad.actions where id = $1`
	return scanAction(s.db.QueryRowContext(ctx, q, id))
}

func (s *Store) ListActions(ctx context.Context) ([]grant.Action, error) {
	q := `select ` + actionColumns + ` from seguridad.actions order by type_code, name`
	return s.queryActions(ctx, q)
}

func (s *Store) ListActionsByType(ctx context.Context, typeCode string) ([]grant.Action, error) {
	q := `select ` + actionColumns + ` from seguridad.actions where type_code = $1 order by name`
	return s.queryActions(ctx, q, typeCode)
}

func (s *Store) UpdateAction(ctx context.Context, id int64, upd grant.ActionUpdate) (grant.Action, error) {
	sets := make([]string, 0, 4)
	args := make([]any, 0, 5)
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if upd.Name != nil {
		add("name", *upd.Name)
	}
	if upd.TypeCode != nil {
		add("type_code", *upd.TypeCode)
	}
	if upd.UIHint != nil {
		add("ui_hint", nullIfEmpty(*upd.UIHint))
	}
	if len(sets) == 0 {
		return s.GetAction(ctx, id)
	}
	add("updated_by", upd.UpdatedBy)
	sets = append(sets, "updated_at = now()")
	args = append(args, id)

	q := fmt.Sprintf(`update seguridad.actions set %s where id = $%d`,
		strings.Join(sets, ", "), len(args))
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return grant.Action{}, fmt.Errorf("%w: action name already exists", access.ErrConflict)
		}
		return grant.Action{}, fmt.Errorf("update action %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return grant.Action{}, fmt.Errorf("%w: action %d", access.ErrNotFound, id)
	}
	return s.GetAction(ctx, id)
}

func (s *Store) DeleteAction(ctx context.Context, id int64) error {
	const q = `delete from seguridad.actions where id = $1`
	res, err := s.db.ExecContext(ctx, q, id)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return fmt.Errorf("%w: action %d is still referenced", access.ErrConflict, id)
		}
		return fmt.Errorf("delete action %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: action %d", access.ErrNotFound, id)
	}
	return nil
}

// --- role grants ---

func (s *Store) CreateGrant(ctx context.Context, roleID, actionID int64, caps grant.Caps, by string) (grant.RoleGrant, error) {
	const q = `insert into seguridad.role_grants
		(role_id, action_id, can_select, can_insert, can_update, can_delete, created_by)
		values ($1, $2, $3, $4, $5, $6, $7)
		returning id, created_at`
	out := grant.RoleGrant{RoleID: roleID, ActionID: actionID, Caps: caps, CreatedBy: by}
	err := s.db.QueryRowContext(ctx, q, roleID, actionID,
		caps.Select, caps.Insert, caps.Update, caps.Delete, by,
	).Scan(&out.ID, &out.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return grant.RoleGrant{}, fmt.Errorf("%w: grant for role %d / action %d already exists",
					access.ErrConflict, roleID, actionID)
			case pgErrForeignKeyViolation:
				return grant.RoleGrant{}, fmt.Errorf("%w: role %d or action %d",
					access.ErrNotFound, roleID, actionID)
			}
		}
		return grant.RoleGrant{}, fmt.Errorf("insert grant: %w", err)
	}
	return out, nil
}

func (s *Store) FindGrant(ctx context.Context, roleID, actionID int64) (grant.RoleGrant, error) {
	const q = `select id, role_id, action_id, can_select, can_insert, can_update, can_delete,
		created_by, created_at, updated_by, updated_at
		from seguridad.role_grants
		where role_id = $1 and action_id = $2 and not deleted`
	return s.scanGrant(s.db.QueryRowContext(ctx, q, roleID, actionID))
}

func (s *Store) ListGrants(ctx context.Context, roleID int64) ([]grant.RoleGrant, error) {
	const q = `select id, role_id, action_id, can_select, can_insert, can_update, can_delete,
		created_by, created_at, updated_by, updated_at
		from seguridad.role_grants
		where role_id = $1 and not deleted
		order by action_id`
	rows, err := s.db.QueryContext(ctx, q, roleID)
	if err != nil {
		return nil, fmt.Errorf("list grants for role %d: %w", roleID, err)
	}
	defer rows.Close()

	var grants []grant.RoleGrant
	for rows.Next() {
		g, err := s.scanGrant(rows)
		if err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

func (s *Store) SoftDeleteGrant(ctx context.Context, roleID, actionID int64, by string) error {
	const q = `update seguridad.role_grants
		set deleted = true, updated_by = $1, updated_at = now()
		where role_id = $2 and action_id = $3 and not deleted`
	res, err := s.db.ExecContext(ctx, q, by, roleID, actionID)
	if err != nil {
		return fmt.Errorf("delete grant role %d / action %d: %w", roleID, actionID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: grant for role %d / action %d", access.ErrNotFound, roleID, actionID)
	}
	return nil
}

func (s *Store) CapabilitiesForRole(ctx context.Context, roleID int64) ([]grant.ActionCapabilities, error) {
	// A soft-deleted role must stop contributing capabilities even when its
	// grant rows survive, so the role is checked first.
	if _, err := s.GetRole(ctx, roleID); err != nil {
		return nil, err
	}
	const q = `select a.id, a.name, a.type_code, a.ui_hint,
		a.created_by, a.created_at, a.updated_by, a.updated_at,
		g.can_select, g.can_insert, g.can_update, g.can_delete
		from seguridad.role_grants g
		join seguridad.actions a on a.id = g.action_id
		where g.role_id = $1 and not g.deleted
		order by a.id`
	rows, err := s.db.QueryContext(ctx, q, roleID)
	if err != nil {
		return nil, fmt.Errorf("capabilities for role %d: %w", roleID, err)
	}
	defer rows.Close()

	var caps []grant.ActionCapabilities
	for rows.Next() {
		var (
			ac        grant.ActionCapabilities
			uiHint    sql.NullString
			updatedBy sql.NullString
			updatedAt sql.NullTime
		)
		err := rows.Scan(&ac.Action.ID, &ac.Action.Name, &ac.Action.TypeCode, &uiHint,
			&ac.Action.CreatedBy, &ac.Action.CreatedAt, &updatedBy, &updatedAt,
			&ac.Caps.Select, &ac.Caps.Insert, &ac.Caps.Update, &ac.Caps.Delete)
		if err != nil {
			return nil, fmt.Errorf("scan capabilities: %w", err)
		}
		ac.Action.UIHint = fromNullString(uiHint)
		ac.Action.UpdatedBy = fromNullString(updatedBy)
		ac.Action.UpdatedAt = fromNullTime(updatedAt)
		caps = append(caps, ac)
	}
	return caps, rows.Err()
}

// --- scanning ---

func (s *Store) scanRole(row rowScanner) (grant.Role, error) {
	var (
		r         grant.Role
		updatedBy sql.NullString
		updatedAt sql.NullTime
	)
	err := row.Scan(&r.ID, &r.Name, &r.CreatedBy, &r.CreatedAt, &updatedBy, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return grant.Role{}, fmt.Errorf("%w: role", access.ErrNotFound)
	}
	if err != nil {
		return grant.Role{}, fmt.Errorf("scan role: %w", err)
	}
	r.UpdatedBy = fromNullString(updatedBy)
	r.UpdatedAt = fromNullTime(updatedAt)
	return r, nil
}

func scanAction(row rowScanner) (grant.Action, error) {
	var (
		a         grant.Action
		uiHint    sql.NullString
		updatedBy sql.NullString
		updatedAt sql.NullTime
	)
	err := row.Scan(&a.ID, &a.Name, &a.TypeCode, &uiHint,
		&a.CreatedBy, &a.CreatedAt, &updatedBy, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return grant.Action{}, fmt.Errorf("%w: action", access.ErrNotFound)
	}
	if err != nil {
		return grant.Action{}, fmt.Errorf("scan action: %w", err)
	}
	a.UIHint = fromNullString(uiHint)
	a.UpdatedBy = fromNullString(updatedBy)
	a.UpdatedAt = fromNullTime(updatedAt)
	return a, nil
}

func (s *Store) queryActions(ctx context.Context, q string, args ...any) ([]grant.Action, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query actions: %w", err)
	}
	defer rows.Close()

	var actions []grant.Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

func (s *Store) scanGrant(row rowScanner) (grant.RoleGrant, error) {
	var (
		g         grant.RoleGrant
		updatedBy sql.NullString
		updatedAt sql.NullTime
	)
	err := row.Scan(&g.ID, &g.RoleID, &g.ActionID,
		&g.Caps.Select, &g.Caps.Insert, &g.Caps.Update, &g.Caps.Delete,
		&g.CreatedBy, &g.CreatedAt, &updatedBy, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return grant.RoleGrant{}, fmt.Errorf("%w: grant", access.ErrNotFound)
	}
	if err != nil {
		return grant.RoleGrant{}, fmt.Errorf("scan grant: %w", err)
	}
	g.UpdatedBy = fromNullString(updatedBy)
	g.UpdatedAt = fromNullTime(updatedAt)
	return g, nil
}
