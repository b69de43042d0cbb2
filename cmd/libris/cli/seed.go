package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/libris/libris/internal/auth"
	"github.com/libris/libris/internal/rbac"
	"github.com/libris/libris/internal/tags"
)

// CatalogInstaller installs the permission and role catalog.
type CatalogInstaller interface {
	EnsureCatalog(ctx context.Context, seeder rbac.CatalogSeeder) error
}

// RoleAssigner grants a role by name.
type RoleAssigner interface {
	AssignRoleByName(ctx context.Context, userID int64, name string) (rbac.Role, error)
}

// TagEnsurer upserts tags by name.
type TagEnsurer interface {
	EnsureTag(ctx context.Context, tag tags.Tag) (tags.Tag, error)
}

// UserCreator provisions login accounts.
type UserCreator interface {
	CreateUser(ctx context.Context, u auth.User) (*auth.User, error)
}

// SeedCLI bootstraps a fresh database.
type SeedCLI struct {
	Catalog CatalogInstaller
	Seeder  rbac.CatalogSeeder
	Roles   RoleAssigner
	Tags    TagEnsurer
	Users   UserCreator
}

// SeedOptions configures a seed run. The admin account is optional.
type SeedOptions struct {
	AdminEmail    string
	AdminPassword string
	AdminUsername string
	Stdout        io.Writer
	Stderr        io.Writer
}

// Run installs the catalog, the builtin tags and the optional admin account.
// It returns a process exit code.
func (c *SeedCLI) Run(ctx context.Context, opts SeedOptions) int {
	stdout, stderr := writers(opts.Stdout, opts.Stderr)
	if err := c.seed(ctx, opts, stdout); err != nil {
		fmt.Fprintf(stderr, "seed: %v\n", err)
		return 1
	}
	return 0
}

func (c *SeedCLI) seed(ctx context.Context, opts SeedOptions, out io.Writer) error {
	if c.Catalog == nil || c.Seeder == nil || c.Tags == nil {
		return errors.New("not configured")
	}
	if err := c.Catalog.EnsureCatalog(ctx, c.Seeder); err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	fmt.Fprintf(out, "catalog: %d permissions, %d roles\n", len(rbac.Permissions()), len(rbac.Roles()))

	for _, b := range tags.Builtins() {
		tag, err := c.Tags.EnsureTag(ctx, tags.Tag{
			Name:               b.Name,
			Category:           b.Category,
			Description:        b.Description,
			Color:              b.Color,
			RequiredPermission: b.Permission,
		})
		if err != nil {
			return fmt.Errorf("tag %s: %w", b.Name, err)
		}
		fmt.Fprintf(out, "tag %s (id %d) requires %s\n", tag.Name, tag.ID, b.Permission)
	}

	email := strings.TrimSpace(opts.AdminEmail)
	if email == "" {
		return nil
	}
	if c.Users == nil || c.Roles == nil {
		return errors.New("admin provisioning not configured")
	}
	hash, err := auth.HashPassword(opts.AdminPassword)
	if err != nil {
		return err
	}
	u := auth.User{Email: email, PasswordHash: hash}
	if name := strings.TrimSpace(opts.AdminUsername); name != "" {
		u.Username = &name
	}
	user, err := c.Users.CreateUser(ctx, u)
	if err != nil {
		return err
	}
	role, err := c.Roles.AssignRoleByName(ctx, user.ID, "admin")
	if err != nil {
		return fmt.Errorf("assign admin: %w", err)
	}
	fmt.Fprintf(out, "user %s (id %d) has role %s\n", user.Email, user.ID, role.Name)
	return nil
}

func writers(stdout, stderr io.Writer) (io.Writer, io.Writer) {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	return stdout, stderr
}
