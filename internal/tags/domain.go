// Package tags manages metadata tags and the content gate that turns tags
// carrying a required permission into access-control checks.
package tags

import "time"

// Category groups tags for display.
type Category string

// Tag categories.
const (
	CategoryContent Category = "content"
	CategoryGenre   Category = "genre"
	CategoryFormat  Category = "format"
	CategoryCustom  Category = "custom"
)

// Tag is a label attachable to a resource. A tag with RequiresPermission set
// gates every resource it is attached to.
type Tag struct {
	ID          int64
	Name        string
	Category    Category
	Description string
	Color       string
	// RequiresPermission references permissions.id.
	RequiresPermission *int64
	// RequiredPermission is the current name of the referenced permission.
	RequiredPermission string
	CreatedAt          time.Time
}

// Gating reports whether the tag imposes a permission requirement.
func (t Tag) Gating() bool {
	return t.RequiresPermission != nil
}

// Assignment links a tag to a resource.
type Assignment struct {
	ResourceID  int64
	TagID       int64
	AppliedBy   *int64
	AutoApplied bool
	AppliedAt   time.Time
}

// Builtin describes a tag installed by the seed command.
type Builtin struct {
	Name        string
	Category    Category
	Description string
	Color       string
	Permission  string
}

// Builtins returns the gating tags every installation carries.
func Builtins() []Builtin {
	return []Builtin{
		{Name: "NSFW", Category: CategoryContent, Description: "Adult content", Color: "#d32f2f", Permission: "content.nsfw"},
		{Name: "Restricted", Category: CategoryContent, Description: "Restricted circulation", Color: "#f57c00", Permission: "content.restricted"},
	}
}
