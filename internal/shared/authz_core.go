package shared

// Core platform permissions checked by route guards.
const (
	PermBooksRead   = "books.read"
	PermBooksWrite  = "books.write"
	PermBooksManage = "books.manage"
	PermUsersRead   = "users.read"
	PermUsersManage = "users.manage"
	PermAdminFull   = "admin.full"
	PermSystemAdmin = "system.admin"
)

// AdminScopes lists the permissions that imply full administrative access.
func AdminScopes() []string {
	return []string{PermAdminFull, PermSystemAdmin}
}
