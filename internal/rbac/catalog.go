package rbac

import (
	"fmt"
	"strings"
)

// PermissionID identifies a catalog permission. Values are stable and never reused.
type PermissionID int64

// Catalog permissions.
const (
	PermBooksRead PermissionID = iota + 1
	PermBooksWrite
	PermBooksDelete
	PermBooksManage
	PermGenresRead
	PermGenresWrite
	PermGenresManage
	PermUsersRead
	PermUsersWrite
	PermUsersManage
	PermSystemConfig
	PermSystemAdmin
	PermAdminFull
	PermContentNSFW
	PermContentRestricted
)

// RoleID identifies a predefined role. Values are stable and never reused.
type RoleID int64

// Predefined roles.
const (
	RoleAdmin RoleID = iota + 1
	RoleLibrarian
	RoleUser
	RoleGuest
)

// PermissionDef is the static description of a catalog permission.
type PermissionDef struct {
	ID          PermissionID
	Name        string
	Resource    Resource
	Action      string
	Description string
}

// RoleDef is the static description of a predefined role and its default grants.
type RoleDef struct {
	ID          RoleID
	Name        string
	Description string
	Grants      []PermissionID
}

var permissionDefs = []PermissionDef{
	{PermBooksRead, "books.read", ResourceBook, "read", "View books and their metadata"},
	{PermBooksWrite, "books.write", ResourceBook, "write", "Edit book metadata and tags"},
	{PermBooksDelete, "books.delete", ResourceBook, "delete", "Remove books from the library"},
	{PermBooksManage, "books.manage", ResourceBook, "manage", "Manage library scans and imports"},
	{PermGenresRead, "genres.read", ResourceGenre, "read", "View genres"},
	{PermGenresWrite, "genres.write", ResourceGenre, "write", "Edit genres"},
	{PermGenresManage, "genres.manage", ResourceGenre, "manage", "Create and delete genres"},
	{PermUsersRead, "users.read", ResourceUser, "read", "View user accounts"},
	{PermUsersWrite, "users.write", ResourceUser, "write", "Edit user accounts"},
	{PermUsersManage, "users.manage", ResourceUser, "manage", "Assign roles and direct grants"},
	{PermSystemConfig, "system.config", ResourceSystem, "manage", "Change server configuration"},
	{PermSystemAdmin, "system.admin", ResourceSystem, "admin", "System administration"},
	{PermAdminFull, "admin.full", ResourceSystem, "admin", "Unrestricted access"},
	{PermContentNSFW, "content.nsfw", ResourceContent, "read", "View content tagged NSFW"},
	{PermContentRestricted, "content.restricted", ResourceContent, "read", "View restricted content"},
}

var roleDefs = []RoleDef{
	{RoleAdmin, "admin", "Full administrative access", nil},
	{RoleLibrarian, "librarian", "Curates the library", []PermissionID{
		PermBooksRead, PermBooksWrite, PermBooksDelete, PermBooksManage,
		PermGenresRead, PermGenresWrite, PermGenresManage,
		PermUsersRead, PermContentNSFW, PermContentRestricted,
	}},
	{RoleUser, "user", "Regular reader", []PermissionID{PermBooksRead, PermGenresRead}},
	{RoleGuest, "guest", "Read-only visitor", []PermissionID{PermBooksRead}},
}

var (
	permissionsByID   map[PermissionID]PermissionDef
	permissionsByName map[string]PermissionID
	rolesByID         map[RoleID]RoleDef
	rolesByName       map[string]RoleID
)

func init() {
	permissionsByID = make(map[PermissionID]PermissionDef, len(permissionDefs))
	permissionsByName = make(map[string]PermissionID, len(permissionDefs))
	for _, def := range permissionDefs {
		if _, dup := permissionsByID[def.ID]; dup {
			panic(fmt.Sprintf("rbac: duplicate permission id %d", def.ID))
		}
		if _, dup := permissionsByName[def.Name]; dup {
			panic(fmt.Sprintf("rbac: duplicate permission name %s", def.Name))
		}
		permissionsByID[def.ID] = def
		permissionsByName[def.Name] = def.ID
	}
	rolesByID = make(map[RoleID]RoleDef, len(roleDefs))
	rolesByName = make(map[string]RoleID, len(roleDefs))
	for i, def := range roleDefs {
		if _, dup := rolesByID[def.ID]; dup {
			panic(fmt.Sprintf("rbac: duplicate role id %d", def.ID))
		}
		if _, dup := rolesByName[def.Name]; dup {
			panic(fmt.Sprintf("rbac: duplicate role name %s", def.Name))
		}
		if def.ID == RoleAdmin {
			def.Grants = make([]PermissionID, 0, len(permissionDefs))
			for _, p := range permissionDefs {
				def.Grants = append(def.Grants, p.ID)
			}
			roleDefs[i] = def
		}
		rolesByID[def.ID] = def
		rolesByName[def.Name] = def.ID
	}
}

// NormalizeName lowercases and trims a permission or role name.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// String returns the canonical dotted name, or "permission(<id>)" when unknown.
func (id PermissionID) String() string {
	if def, ok := permissionsByID[id]; ok {
		return def.Name
	}
	return fmt.Sprintf("permission(%d)", int64(id))
}

// Name returns the canonical dotted name of a catalog permission.
func (id PermissionID) Name() (string, bool) {
	def, ok := permissionsByID[id]
	return def.Name, ok
}

// PermissionByName maps a dotted name to its catalog id.
func PermissionByName(name string) (PermissionID, bool) {
	id, ok := permissionsByName[NormalizeName(name)]
	return id, ok
}

// LookupPermission returns the catalog definition for id.
func LookupPermission(id PermissionID) (PermissionDef, bool) {
	def, ok := permissionsByID[id]
	return def, ok
}

// Permissions returns every catalog permission in id order.
func Permissions() []PermissionDef {
	out := make([]PermissionDef, len(permissionDefs))
	copy(out, permissionDefs)
	return out
}

// String returns the role name, or "role(<id>)" when unknown.
func (id RoleID) String() string {
	if def, ok := rolesByID[id]; ok {
		return def.Name
	}
	return fmt.Sprintf("role(%d)", int64(id))
}

// RoleByName maps a role name to its catalog id.
func RoleByName(name string) (RoleID, bool) {
	id, ok := rolesByName[NormalizeName(name)]
	return id, ok
}

// LookupRole returns the catalog definition for id.
func LookupRole(id RoleID) (RoleDef, bool) {
	def, ok := rolesByID[id]
	return def, ok
}

// Roles returns every predefined role in id order.
func Roles() []RoleDef {
	out := make([]RoleDef, len(roleDefs))
	for i, def := range roleDefs {
		def.Grants = append([]PermissionID(nil), def.Grants...)
		out[i] = def
	}
	return out
}

// SplitName splits "<resource>.<action>" into its two halves.
func SplitName(name string) (resource, action string, ok bool) {
	resource, action, ok = strings.Cut(NormalizeName(name), ".")
	if !ok || resource == "" || action == "" || strings.Contains(action, ".") {
		return "", "", false
	}
	return resource, action, true
}
