package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/libris/libris/internal/platform/db"
)

var (
	// ErrNotFound indicates that the requested record does not exist.
	ErrNotFound = errors.New("rbac: not found")
	// ErrDuplicate indicates a unique constraint violation.
	ErrDuplicate = errors.New("rbac: duplicate")
)

// PermissionSource loads the effective permissions of a user.
type PermissionSource interface {
	GetUserPermissions(ctx context.Context, userID int64) ([]Permission, error)
}

// Repository is the storage contract of the RBAC core.
type Repository interface {
	PermissionSource
	GetUserRoles(ctx context.Context, userID int64) ([]Role, error)
	AssignRoleToUser(ctx context.Context, userID, roleID int64) error
	RemoveRoleFromUser(ctx context.Context, userID, roleID int64) error
	GetRoleByName(ctx context.Context, name string) (Role, error)
	GetRoleByID(ctx context.Context, id int64) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	GetPermissionByName(ctx context.Context, name string) (Permission, error)
	ListPermissions(ctx context.Context) ([]Permission, error)
	CreatePermission(ctx context.Context, p Permission) (Permission, error)
	AssignPermissionToRole(ctx context.Context, roleID, permissionID int64) error
	GrantPermissionToUser(ctx context.Context, g UserPermission) error
	RevokePermissionFromUser(ctx context.Context, userID, permissionID int64, resourceID *int64) error
	ListUserGrants(ctx context.Context, userID int64) ([]UserPermission, error)
}

// CatalogSeeder installs the static catalog into storage.
type CatalogSeeder interface {
	SeedCatalog(ctx context.Context, perms []Permission, roles []Role, grants []RolePermission) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// GetUserPermissions returns the union of role-derived permissions and
// unscoped direct grants.
func (r *PGRepository) GetUserPermissions(ctx context.Context, userID int64) ([]Permission, error) {
	const query = `SELECT p.id, p.name, p.resource, p.action, COALESCE(p.description, ''), p.created_at
FROM permissions p
WHERE p.id IN (
	SELECT rp.permission_id
	FROM user_roles ur
	JOIN role_permissions rp ON rp.role_id = ur.role_id
	WHERE ur.user_id = $1
	UNION
	SELECT up.permission_id
	FROM user_permissions up
	WHERE up.user_id = $1 AND up.resource_id IS NULL
)
ORDER BY p.name`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	return collectPermissions(rows)
}

// GetUserRoles returns the roles held by a user.
func (r *PGRepository) GetUserRoles(ctx context.Context, userID int64) ([]Role, error) {
	const query = `SELECT r.id, r.name, COALESCE(r.description, ''), r.created_at
FROM roles r
JOIN user_roles ur ON ur.role_id = r.id
WHERE ur.user_id = $1
ORDER BY r.name`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	return collectRoles(rows)
}

// AssignRoleToUser links a role to a user. Assigning twice is a no-op.
func (r *PGRepository) AssignRoleToUser(ctx context.Context, userID, roleID int64) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO user_roles (user_id, role_id, granted_at) VALUES ($1, $2, now())
ON CONFLICT (user_id, role_id) DO NOTHING`, userID, roleID)
	return err
}

// RemoveRoleFromUser unlinks a role from a user. Removing a missing link is a no-op.
func (r *PGRepository) RemoveRoleFromUser(ctx context.Context, userID, roleID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	return err
}

// GetRoleByName fetches a role by its unique name.
func (r *PGRepository) GetRoleByName(ctx context.Context, name string) (Role, error) {
	return r.getRole(ctx, `WHERE name = $1`, NormalizeName(name))
}

// GetRoleByID fetches a role by id.
func (r *PGRepository) GetRoleByID(ctx context.Context, id int64) (Role, error) {
	return r.getRole(ctx, `WHERE id = $1`, id)
}

func (r *PGRepository) getRole(ctx context.Context, where string, arg any) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx, `SELECT id, name, COALESCE(description, ''), created_at FROM roles `+where, arg).
		Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// ListRoles returns all roles ordered by id.
func (r *PGRepository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, COALESCE(description, ''), created_at FROM roles ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return collectRoles(rows)
}

// GetPermissionByName fetches a permission by its dotted name.
func (r *PGRepository) GetPermissionByName(ctx context.Context, name string) (Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, resource, action, COALESCE(description, ''), created_at
FROM permissions WHERE name = $1`, NormalizeName(name))
	if err != nil {
		return Permission{}, err
	}
	perms, err := collectPermissions(rows)
	if err != nil {
		return Permission{}, err
	}
	if len(perms) == 0 {
		return Permission{}, ErrNotFound
	}
	return perms[0], nil
}

// ListPermissions returns all permissions ordered by name.
func (r *PGRepository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, resource, action, COALESCE(description, ''), created_at
FROM permissions ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return collectPermissions(rows)
}

// CreatePermission inserts a new permission. Name clashes yield ErrDuplicate.
func (r *PGRepository) CreatePermission(ctx context.Context, p Permission) (Permission, error) {
	const query = `INSERT INTO permissions (name, resource, action, description, created_at)
VALUES ($1, $2, $3, $4, now())
RETURNING id, created_at`
	p.Name = NormalizeName(p.Name)
	err := r.pool.QueryRow(ctx, query, p.Name, string(p.Resource), p.Action, nullText(p.Description)).
		Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return Permission{}, mapConstraint(err)
	}
	return p, nil
}

// AssignPermissionToRole grants a permission to a role. Assigning twice is a no-op.
func (r *PGRepository) AssignPermissionToRole(ctx context.Context, roleID, permissionID int64) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)
ON CONFLICT (role_id, permission_id) DO NOTHING`, roleID, permissionID)
	return mapConstraint(err)
}

// GrantPermissionToUser records a direct grant. Granting twice is a no-op.
func (r *PGRepository) GrantPermissionToUser(ctx context.Context, g UserPermission) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO user_permissions (user_id, permission_id, resource_id, granted_at)
VALUES ($1, $2, $3, now())
ON CONFLICT DO NOTHING`, g.UserID, g.PermissionID, nullInt(g.ResourceID))
	return mapConstraint(err)
}

// RevokePermissionFromUser removes a direct grant matching the resource scope.
func (r *PGRepository) RevokePermissionFromUser(ctx context.Context, userID, permissionID int64, resourceID *int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM user_permissions
WHERE user_id = $1 AND permission_id = $2 AND resource_id IS NOT DISTINCT FROM $3`,
		userID, permissionID, nullInt(resourceID))
	return err
}

// ListUserGrants returns the direct grants of a user, scoped or not.
func (r *PGRepository) ListUserGrants(ctx context.Context, userID int64) ([]UserPermission, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_id, permission_id, resource_id, granted_at
FROM user_permissions WHERE user_id = $1 ORDER BY permission_id, resource_id NULLS FIRST`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var grants []UserPermission
	for rows.Next() {
		var (
			g        UserPermission
			resource pgtype.Int8
		)
		if err := rows.Scan(&g.UserID, &g.PermissionID, &resource, &g.GrantedAt); err != nil {
			return nil, err
		}
		if resource.Valid {
			id := resource.Int64
			g.ResourceID = &id
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

// SeedCatalog upserts catalog permissions, roles and role grants with their
// stable ids in a single transaction.
func (r *PGRepository) SeedCatalog(ctx context.Context, perms []Permission, roles []Role, grants []RolePermission) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for _, p := range perms {
			if _, err := tx.Exec(ctx, `INSERT INTO permissions (id, name, resource, action, description, created_at)
VALUES ($1, $2, $3, $4, $5, now())
ON CONFLICT (id) DO UPDATE SET description = EXCLUDED.description`,
				p.ID, p.Name, string(p.Resource), p.Action, nullText(p.Description)); err != nil {
				return fmt.Errorf("rbac: seed permission %s: %w", p.Name, err)
			}
		}
		for _, role := range roles {
			if _, err := tx.Exec(ctx, `INSERT INTO roles (id, name, description, created_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (id) DO UPDATE SET description = EXCLUDED.description`,
				role.ID, role.Name, nullText(role.Description)); err != nil {
				return fmt.Errorf("rbac: seed role %s: %w", role.Name, err)
			}
		}
		for _, g := range grants {
			if _, err := tx.Exec(ctx, `INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)
ON CONFLICT (role_id, permission_id) DO NOTHING`, g.RoleID, g.PermissionID); err != nil {
				return fmt.Errorf("rbac: seed grant: %w", err)
			}
		}
		for _, table := range []string{"permissions", "roles"} {
			if _, err := tx.Exec(ctx, fmt.Sprintf(
				`SELECT setval(pg_get_serial_sequence('%s', 'id'), GREATEST((SELECT max(id) FROM %s), 1))`, table, table)); err != nil {
				return fmt.Errorf("rbac: sync %s sequence: %w", table, err)
			}
		}
		return nil
	})
}

func collectPermissions(rows pgx.Rows) ([]Permission, error) {
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var (
			p        Permission
			resource string
		)
		if err := rows.Scan(&p.ID, &p.Name, &resource, &p.Action, &p.Description, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Resource = Resource(resource)
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}

func collectRoles(rows pgx.Rows) ([]Role, error) {
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

func mapConstraint(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
		case "23503":
			return fmt.Errorf("%w: %s", ErrNotFound, pgErr.ConstraintName)
		}
	}
	return err
}

func nullText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

func nullInt(v *int64) pgtype.Int8 {
	if v == nil {
		return pgtype.Int8{}
	}
	return pgtype.Int8{Int64: *v, Valid: true}
}

var (
	_ Repository    = (*PGRepository)(nil)
	_ CatalogSeeder = (*PGRepository)(nil)
)
