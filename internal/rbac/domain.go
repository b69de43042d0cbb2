package rbac

import "time"

// Resource is the domain a permission applies to.
type Resource string

// Permission resources.
const (
	ResourceBook    Resource = "book"
	ResourceGenre   Resource = "genre"
	ResourceUser    Resource = "user"
	ResourceSystem  Resource = "system"
	ResourceContent Resource = "content"
)

// Role represents a named permission grouping.
type Role struct {
	ID          int64
	Name        string
	Description string
	CreatedAt   time.Time
}

// Permission represents an atomic capability named <resource>.<action>.
type Permission struct {
	ID          int64
	Name        string
	Resource    Resource
	Action      string
	Description string
	CreatedAt   time.Time
}

// RolePermission ties a permission to a role.
type RolePermission struct {
	RoleID       int64
	PermissionID int64
}

// UserRole links a user to a role.
type UserRole struct {
	UserID    int64
	RoleID    int64
	GrantedAt time.Time
}

// UserPermission is a direct grant. A nil ResourceID grants the permission
// globally; otherwise it only applies to that resource.
type UserPermission struct {
	UserID       int64
	PermissionID int64
	ResourceID   *int64
	GrantedAt    time.Time
}
