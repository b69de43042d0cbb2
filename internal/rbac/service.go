package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/libris/libris/internal/shared"
)

// ErrInvalidName reports a permission name not of the form <resource>.<action>.
var ErrInvalidName = errors.New("rbac: invalid permission name")

// Publisher announces invalidations to other processes.
type Publisher interface {
	PublishUser(ctx context.Context, userID int64) error
	PublishAll(ctx context.Context) error
}

// Auditor records access-control changes.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates RBAC mutations and keeps the resolver cache coherent.
type Service struct {
	repo      Repository
	resolver  *Resolver
	publisher Publisher
	auditor   Auditor
	logger    *slog.Logger
}

// NewService constructs a Service. publisher may be nil for single-process use.
func NewService(repo Repository, resolver *Resolver, publisher Publisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, resolver: resolver, publisher: publisher, logger: logger}
}

// WithAuditor makes the service record every mutation. Audit failures are
// logged and never fail the mutation.
func (s *Service) WithAuditor(a Auditor) *Service {
	s.auditor = a
	return s
}

// Resolver returns the permission resolver used by the service.
func (s *Service) Resolver() *Resolver {
	return s.resolver
}

// ListRoles returns all roles.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// ListPermissions returns all permissions.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// UserRoles returns the roles held by a user.
func (s *Service) UserRoles(ctx context.Context, userID int64) ([]Role, error) {
	return s.repo.GetUserRoles(ctx, userID)
}

// UserGrants returns the direct grants of a user.
func (s *Service) UserGrants(ctx context.Context, userID int64) ([]UserPermission, error) {
	return s.repo.ListUserGrants(ctx, userID)
}

// AssignRole assigns a role to the given user, then invalidates the user's cache entry.
func (s *Service) AssignRole(ctx context.Context, userID, roleID int64) error {
	if err := s.repo.AssignRoleToUser(ctx, userID, roleID); err != nil {
		return err
	}
	s.invalidateUser(ctx, userID)
	s.audit(ctx, shared.AuditRoleAssigned, "user", userID, map[string]any{"role_id": roleID})
	return nil
}

// AssignRoleByName resolves a role name and assigns it.
func (s *Service) AssignRoleByName(ctx context.Context, userID int64, name string) (Role, error) {
	role, err := s.repo.GetRoleByName(ctx, name)
	if err != nil {
		return Role{}, err
	}
	if err := s.AssignRole(ctx, userID, role.ID); err != nil {
		return Role{}, err
	}
	return role, nil
}

// RemoveRole removes a role from a user, then invalidates the user's cache entry.
func (s *Service) RemoveRole(ctx context.Context, userID, roleID int64) error {
	if err := s.repo.RemoveRoleFromUser(ctx, userID, roleID); err != nil {
		return err
	}
	s.invalidateUser(ctx, userID)
	s.audit(ctx, shared.AuditRoleRemoved, "user", userID, map[string]any{"role_id": roleID})
	return nil
}

// GrantPermission records a direct grant. Unscoped grants join the user's
// effective set, so the cache entry is invalidated.
func (s *Service) GrantPermission(ctx context.Context, userID int64, name string, resourceID *int64) error {
	perm, err := s.repo.GetPermissionByName(ctx, name)
	if err != nil {
		return err
	}
	if err := s.repo.GrantPermissionToUser(ctx, UserPermission{UserID: userID, PermissionID: perm.ID, ResourceID: resourceID}); err != nil {
		return err
	}
	s.invalidateUser(ctx, userID)
	s.audit(ctx, shared.AuditPermissionGranted, "user", userID, grantMeta(perm.Name, resourceID))
	return nil
}

// RevokePermission removes a direct grant and invalidates the user's cache entry.
func (s *Service) RevokePermission(ctx context.Context, userID int64, name string, resourceID *int64) error {
	perm, err := s.repo.GetPermissionByName(ctx, name)
	if err != nil {
		return err
	}
	if err := s.repo.RevokePermissionFromUser(ctx, userID, perm.ID, resourceID); err != nil {
		return err
	}
	s.invalidateUser(ctx, userID)
	s.audit(ctx, shared.AuditPermissionRevoked, "user", userID, grantMeta(perm.Name, resourceID))
	return nil
}

// CreatePermission validates and inserts a permission.
func (s *Service) CreatePermission(ctx context.Context, name, description string) (Permission, error) {
	resource, action, ok := SplitName(name)
	if !ok {
		return Permission{}, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	perm, err := s.repo.CreatePermission(ctx, Permission{
		Name:        resource + "." + action,
		Resource:    resourceFromPrefix(resource),
		Action:      action,
		Description: strings.TrimSpace(description),
	})
	if err != nil {
		return Permission{}, err
	}
	s.audit(ctx, shared.AuditPermissionCreated, "permission", perm.ID, map[string]any{"name": perm.Name})
	return perm, nil
}

// AssignPermissionToRole grants a permission to a role. Every holder of the
// role is affected, so the whole cache is flushed.
func (s *Service) AssignPermissionToRole(ctx context.Context, roleID, permissionID int64) error {
	if err := s.repo.AssignPermissionToRole(ctx, roleID, permissionID); err != nil {
		return err
	}
	s.invalidateAll(ctx)
	s.audit(ctx, shared.AuditRoleGrantAdded, "role", roleID, map[string]any{"permission_id": permissionID})
	return nil
}

// EnsureCatalog installs the static permission and role catalog.
func (s *Service) EnsureCatalog(ctx context.Context, seeder CatalogSeeder) error {
	perms := make([]Permission, 0, len(permissionDefs))
	for _, def := range Permissions() {
		perms = append(perms, Permission{
			ID:          int64(def.ID),
			Name:        def.Name,
			Resource:    def.Resource,
			Action:      def.Action,
			Description: def.Description,
		})
	}
	var (
		roles  []Role
		grants []RolePermission
	)
	for _, def := range Roles() {
		roles = append(roles, Role{ID: int64(def.ID), Name: def.Name, Description: def.Description})
		for _, p := range def.Grants {
			grants = append(grants, RolePermission{RoleID: int64(def.ID), PermissionID: int64(p)})
		}
	}
	if err := seeder.SeedCatalog(ctx, perms, roles, grants); err != nil {
		return err
	}
	s.invalidateAll(ctx)
	return nil
}

func (s *Service) audit(ctx context.Context, action, entity string, id int64, meta map[string]any) {
	if s.auditor == nil {
		return
	}
	actor, _ := shared.UserIDFromContext(ctx)
	entry := shared.AuditLog{ActorID: actor, Action: action, Entity: entity, EntityID: strconv.FormatInt(id, 10), Meta: meta}
	if err := s.auditor.Record(ctx, entry); err != nil {
		s.logger.Warn("rbac audit", slog.String("action", action), slog.Any("error", err))
	}
}

func grantMeta(name string, resourceID *int64) map[string]any {
	meta := map[string]any{"permission": name}
	if resourceID != nil {
		meta["resource_id"] = *resourceID
	}
	return meta
}

func (s *Service) invalidateUser(ctx context.Context, userID int64) {
	s.resolver.Invalidate(userID)
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishUser(ctx, userID); err != nil {
		s.logger.Warn("rbac publish invalidation", slog.Int64("user_id", userID), slog.Any("error", err))
	}
}

func (s *Service) invalidateAll(ctx context.Context) {
	s.resolver.InvalidateAll()
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishAll(ctx); err != nil {
		s.logger.Warn("rbac publish flush", slog.Any("error", err))
	}
}

func resourceFromPrefix(prefix string) Resource {
	switch prefix {
	case "books", "book":
		return ResourceBook
	case "genres", "genre":
		return ResourceGenre
	case "users", "user":
		return ResourceUser
	case "content":
		return ResourceContent
	default:
		return ResourceSystem
	}
}
