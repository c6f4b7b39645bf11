package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"seguridad.dev/internal/access"
	"seguridad.dev/internal/grant"
	"seguridad.dev/internal/membership"
)

const ownerColumns = `id, tax_id, legal_id, name, status, created_by, created_at, updated_by, updated_at`

const membershipColumns = `id, user_id, owner_id, kind, valid_until, status,
	created_by, created_at, updated_by, updated_at`

// --- owners ---

func (s *Store) CreateOwner(ctx context.Context, o membership.NewOwner) (membership.Owner, error) {
	const q = `insert into seguridad.owners (tax_id, legal_id, name, status, created_by)
		values ($1, $2, $3, $4, $5)
		returning id, created_at`
	out := membership.Owner{
		TaxID:     o.TaxID,
		LegalID:   o.LegalID,
		Name:      o.Name,
		Status:    membership.OwnerActive,
		CreatedBy: o.CreatedBy,
	}
	err := s.db.QueryRowContext(ctx, q, o.TaxID, o.LegalID, o.Name,
		string(membership.OwnerActive), o.CreatedBy,
	).Scan(&out.ID, &out.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return membership.Owner{}, fmt.Errorf("%w: owner with tax id %q already exists",
				access.ErrConflict, o.TaxID)
		}
		return membership.Owner{}, fmt.Errorf("insert owner: %w", err)
	}
	return out, nil
}

func (s *Store) GetOwner(ctx context.Context, id int64) (membership.Owner, error) {
	q := `select ` + ownerColumns + ` from seguridad.owners where id = $1`
	return scanOwner(s.db.QueryRowContext(ctx, q, id))
}

func (s *Store) ListOwners(ctx context.Context) ([]membership.Owner, error) {
	q := `select ` + ownerColumns + ` from seguridad.owners order by name`
	return s.queryOwners(ctx, q)
}

func (s *Store) UpdateOwner(ctx context.Context, id int64, upd membership.OwnerUpdate) (membership.Owner, error) {
	sets := make([]string, 0, 5)
	args := make([]any, 0, 6)
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if upd.TaxID != nil {
		add("tax_id", *upd.TaxID)
	}
	if upd.LegalID != nil {
		add("legal_id", *upd.LegalID)
	}
	if upd.Name != nil {
		add("name", *upd.Name)
	}
	if upd.Status != nil {
		add("status", string(*upd.Status))
	}
	if len(sets) == 0 {
		return s.GetOwner(ctx, id)
	}
	add("updated_by", upd.UpdatedBy)
	sets = append(sets, "updated_at = now()")
	args = append(args, id)

	q := fmt.Sprintf(`update seguridad.owners set %s where id = $%d`,
		strings.Join(sets, ", "), len(args))
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return membership.Owner{}, fmt.Errorf("%w: owner tax id already exists", access.ErrConflict)
		}
		return membership.Owner{}, fmt.Errorf("update owner %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return membership.Owner{}, fmt.Errorf("%w: owner %d", access.ErrNotFound, id)
	}
	return s.GetOwner(ctx, id)
}

func (s *Store) SearchOwners(ctx context.Context, term string) ([]membership.Owner, error) {
	q := `select ` + ownerColumns + ` from seguridad.owners
		where name ilike '%' || $1 || '%' and status = 'active'
		order by name`
	return s.queryOwners(ctx, q, term)
}

func (s *Store) OwnerByMembership(ctx context.Context, membershipID int64) (membership.Owner, error) {
	q := `select o.id, o.tax_id, o.legal_id, o.name, o.status,
		o.created_by, o.created_at, o.updated_by, o.updated_at
		from seguridad.owners o
		join seguridad.memberships m on m.owner_id = o.id
		where m.id = $1`
	return scanOwner(s.db.QueryRowContext(ctx, q, membershipID))
}

// --- memberships ---

func (s *Store) CreateMembership(ctx context.Context, m membership.NewMembership, roleIDs []int64) (membership.Membership, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return membership.Membership{}, fmt.Errorf("begin membership tx: %w", err)
	}
	defer tx.Rollback()

	const q = `insert into seguridad.memberships
		(user_id, owner_id, kind, valid_until, status, created_by)
		values ($1, $2, $3, $4, $5, $6)
		returning id, created_at`
	out := membership.Membership{
		UserID:     m.UserID,
		OwnerID:    m.OwnerID,
		Kind:       m.Kind,
		ValidUntil: m.ValidUntil,
		Status:     membership.StatusActive,
		CreatedBy:  m.CreatedBy,
	}
	err = tx.QueryRowContext(ctx, q, m.UserID, m.OwnerID, string(m.Kind),
		m.ValidUntil, string(membership.StatusActive), m.CreatedBy,
	).Scan(&out.ID, &out.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return membership.Membership{}, fmt.Errorf("%w: user %d or owner %d",
				access.ErrNotFound, m.UserID, m.OwnerID)
		}
		return membership.Membership{}, fmt.Errorf("insert membership: %w", err)
	}

	const bindQ = `insert into seguridad.membership_roles (membership_id, role_id, created_by)
		values ($1, $2, $3)`
	for _, roleID := range roleIDs {
		if _, err := tx.ExecContext(ctx, bindQ, out.ID, roleID, m.CreatedBy); err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
				return membership.Membership{}, fmt.Errorf("%w: role %d", access.ErrNotFound, roleID)
			}
			return membership.Membership{}, fmt.Errorf("bind role %d: %w", roleID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return membership.Membership{}, fmt.Errorf("commit membership tx: %w", err)
	}
	return out, nil
}

func (s *Store) GetMembership(ctx context.Context, id int64) (membership.Membership, error) {
	q := `select ` + membershipColumns + ` from seguridad.memberships where id = $1`
	return scanMembership(s.db.QueryRowContext(ctx, q, id))
}

func (s *Store) UpdateMembership(ctx context.Context, id int64, upd membership.Update) (membership.Membership, error) {
	sets := make([]string, 0, 3)
	args := make([]any, 0, 4)
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if upd.Kind != nil {
		add("kind", string(*upd.Kind))
	}
	if upd.ValidUntil != nil {
		add("valid_until", *upd.ValidUntil)
	}
	if len(sets) == 0 {
		return s.GetMembership(ctx, id)
	}
	add("updated_by", upd.UpdatedBy)
	sets = append(sets, "updated_at = now()")
	args = append(args, id)

	q := fmt.Sprintf(`update seguridad.memberships set %s where id = $%d`,
		strings.Join(sets, ", "), len(args))
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return membership.Membership{}, fmt.Errorf("update membership %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return membership.Membership{}, fmt.Errorf("%w: membership %d", access.ErrNotFound, id)
	}
	return s.GetMembership(ctx, id)
}

func (s *Store) DecommissionMembership(ctx context.Context, id int64, by string) (bool, error) {
	const q = `update seguridad.memberships
		set status = 'decommissioned', updated_by = $1, updated_at = now()
		where id = $2 and status <> 'decommissioned'`
	res, err := s.db.ExecContext(ctx, q, by, id)
	if err != nil {
		return false, fmt.Errorf("decommission membership %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return true, nil
	}
	// No row changed: either already decommissioned or missing entirely.
	var one int
	err = s.db.QueryRowContext(ctx,
		`select 1 from seguridad.memberships where id = $1`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("%w: membership %d", access.ErrNotFound, id)
	}
	if err != nil {
		return false, fmt.Errorf("check membership %d: %w", id, err)
	}
	return false, nil
}

func (s *Store) ListMembershipsByUser(ctx context.Context, userID int64) ([]membership.Membership, error) {
	q := `select ` + membershipColumns + ` from seguridad.memberships
		where user_id = $1 order by id`
	return s.queryMemberships(ctx, q, userID)
}

func (s *Store) ListMembershipsByOwner(ctx context.Context, ownerID int64) ([]membership.Membership, error) {
	q := `select ` + membershipColumns + ` from seguridad.memberships
		where owner_id = $1 order by id`
	return s.queryMemberships(ctx, q, ownerID)
}

func (s *Store) ListActiveMemberships(ctx context.Context) ([]membership.Membership, error) {
	q := `select ` + membershipColumns + ` from seguridad.memberships
		where status = 'active' and (valid_until is null or valid_until >= now())
		order by id`
	return s.queryMemberships(ctx, q)
}

// --- role bindings ---

func (s *Store) AddRoleBinding(ctx context.Context, membershipID, roleID int64, by string) (membership.RoleBinding, error) {
	const q = `insert into seguridad.membership_roles (membership_id, role_id, created_by)
		values ($1, $2, $3)
		returning created_at`
	out := membership.RoleBinding{MembershipID: membershipID, RoleID: roleID, CreatedBy: by}
	err := s.db.QueryRowContext(ctx, q, membershipID, roleID, by).Scan(&out.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return membership.RoleBinding{}, fmt.Errorf("%w: role %d already bound to membership %d",
					access.ErrConflict, roleID, membershipID)
			case pgErrForeignKeyViolation:
				return membership.RoleBinding{}, fmt.Errorf("%w: membership %d or role %d",
					access.ErrNotFound, membershipID, roleID)
			}
		}
		return membership.RoleBinding{}, fmt.Errorf("bind role: %w", err)
	}
	return out, nil
}

func (s *Store) RemoveRoleBinding(ctx context.Context, membershipID, roleID int64) (bool, error) {
	const q = `delete from seguridad.membership_roles
		where membership_id = $1 and role_id = $2`
	res, err := s.db.ExecContext(ctx, q, membershipID, roleID)
	if err != nil {
		return false, fmt.Errorf("unbind role: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *Store) ListRoleBindings(ctx context.Context, membershipID int64) ([]membership.RoleBinding, error) {
	const q = `select membership_id, role_id, created_by, created_at
		from seguridad.membership_roles
		where membership_id = $1
		order by role_id`
	rows, err := s.db.QueryContext(ctx, q, membershipID)
	if err != nil {
		return nil, fmt.Errorf("list role bindings: %w", err)
	}
	defer rows.Close()

	var bindings []membership.RoleBinding
	for rows.Next() {
		var b membership.RoleBinding
		if err := rows.Scan(&b.MembershipID, &b.RoleID, &b.CreatedBy, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan role binding: %w", err)
		}
		bindings = append(bindings, b)
	}
	return bindings, rows.Err()
}

// --- action bindings ---

func (s *Store) AddActionBinding(ctx context.Context, membershipID, actionID int64, by string) (membership.ActionBinding, error) {
	const q = `insert into seguridad.membership_actions (membership_id, action_id, created_by)
		values ($1, $2, $3)
		returning created_at`
	out := membership.ActionBinding{MembershipID: membershipID, ActionID: actionID, CreatedBy: by}
	err := s.db.QueryRowContext(ctx, q, membershipID, actionID, by).Scan(&out.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return membership.ActionBinding{}, fmt.Errorf("%w: action %d already bound to membership %d",
					access.ErrConflict, actionID, membershipID)
			case pgErrForeignKeyViolation:
				return membership.ActionBinding{}, fmt.Errorf("%w: membership %d or action %d",
					access.ErrNotFound, membershipID, actionID)
			}
		}
		return membership.ActionBinding{}, fmt.Errorf("bind action: %w", err)
	}
	return out, nil
}

func (s *Store) RemoveActionBinding(ctx context.Context, membershipID, actionID int64) (bool, error) {
	const q = `delete from seguridad.membership_actions
		where membership_id = $1 and action_id = $2`
	res, err := s.db.ExecContext(ctx, q, membershipID, actionID)
	if err != nil {
		return false, fmt.Errorf("unbind action: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *Store) ActionsForMembership(ctx context.Context, membershipID int64) ([]grant.Action, error) {
	const q = `select a.id, a.name, a.type_code, a.ui_hint,
		a.created_by, a.created_at, a.updated_by, a.updated_at
		from seguridad.membership_actions ma
		join seguridad.actions a on a.id = ma.action_id
		where ma.membership_id = $1
		order by a.id`
	return s.queryActions(ctx, q, membershipID)
}

// --- scanning ---

func scanOwner(row rowScanner) (membership.Owner, error) {
	var (
		o         membership.Owner
		status    string
		updatedBy sql.NullString
		updatedAt sql.NullTime
	)
	err := row.Scan(&o.ID, &o.TaxID, &o.LegalID, &o.Name, &status,
		&o.CreatedBy, &o.CreatedAt, &updatedBy, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return membership.Owner{}, fmt.Errorf("%w: owner", access.ErrNotFound)
	}
	if err != nil {
		return membership.Owner{}, fmt.Errorf("scan owner: %w", err)
	}
	o.Status = membership.OwnerStatus(status)
	o.UpdatedBy = fromNullString(updatedBy)
	o.UpdatedAt = fromNullTime(updatedAt)
	return o, nil
}

func (s *Store) queryOwners(ctx context.Context, q string, args ...any) ([]membership.Owner, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query owners: %w", err)
	}
	defer rows.Close()

	var owners []membership.Owner
	for rows.Next() {
		o, err := scanOwner(rows)
		if err != nil {
			return nil, err
		}
		owners = append(owners, o)
	}
	return owners, rows.Err()
}

func scanMembership(row rowScanner) (membership.Membership, error) {
	var (
		m          membership.Membership
		kind       string
		status     string
		validUntil sql.NullTime
		updatedBy  sql.NullString
		updatedAt  sql.NullTime
	)
	err := row.Scan(&m.ID, &m.UserID, &m.OwnerID, &kind, &validUntil, &status,
		&m.CreatedBy, &m.CreatedAt, &updatedBy, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return membership.Membership{}, fmt.Errorf("%w: membership", access.ErrNotFound)
	}
	if err != nil {
		return membership.Membership{}, fmt.Errorf("scan membership: %w", err)
	}
	m.Kind = membership.Kind(kind)
	m.Status = membership.Status(status)
	m.ValidUntil = fromNullTime(validUntil)
	m.UpdatedBy = fromNullString(updatedBy)
	m.UpdatedAt = fromNullTime(updatedAt)
	return m, nil
}

func (s *Store) queryMemberships(ctx context.Context, q string, args ...any) ([]membership.Membership, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query memberships: %w", err)
	}
	defer rows.Close()

	var memberships []membership.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		memberships = append(memberships, m)
	}
	return memberships, rows.Err()
}
