package tags

import (
	"context"
	"errors"
	"fmt"

	"github.com/libris/libris/internal/rbac"
)

var (
	// ErrTagNotFound reports a gate configured with a tag that does not exist.
	ErrTagNotFound = errors.New("tags: tag not found")
	// ErrUnknownPermission reports a gating tag whose permission cannot be resolved.
	ErrUnknownPermission = errors.New("tags: unknown permission")
)

// ReasonTagNotFound is the denial reason for a gate naming a missing tag.
const ReasonTagNotFound = "tag not found"

// PermissionChecker answers permission questions for a user.
type PermissionChecker interface {
	HasPermission(ctx context.Context, userID int64, name string) (bool, error)
}

// TagLookup resolves tags by name.
type TagLookup interface {
	GetTagByName(ctx context.Context, name string) (Tag, error)
}

// Decision is the outcome of a gate check.
type Decision struct {
	Allowed      bool
	DeniedReason string
}

// Gate decides access to tagged resources.
type Gate struct {
	checker PermissionChecker
	lookup  TagLookup
}

// NewGate constructs a Gate. lookup is only needed for RequireTag.
func NewGate(checker PermissionChecker, lookup TagLookup) *Gate {
	return &Gate{checker: checker, lookup: lookup}
}

// CanAccess checks every gating tag in order and stops at the first one the
// user lacks the permission for. Errors deny.
func (g *Gate) CanAccess(ctx context.Context, userID int64, tags []Tag) (Decision, error) {
	for _, tag := range tags {
		if !tag.Gating() {
			continue
		}
		name, err := requiredPermission(tag)
		if err != nil {
			return Decision{}, err
		}
		ok, err := g.checker.HasPermission(ctx, userID, name)
		if err != nil {
			return Decision{}, err
		}
		if !ok {
			return Decision{DeniedReason: "missing permission for " + tag.Name}, nil
		}
	}
	return Decision{Allowed: true}, nil
}

// RequireTag checks access against a single tag looked up by name. A missing
// tag is a configuration error, distinct from a denial.
func (g *Gate) RequireTag(ctx context.Context, userID int64, name string) (Decision, error) {
	if g.lookup == nil {
		return Decision{DeniedReason: ReasonTagNotFound}, ErrTagNotFound
	}
	tag, err := g.lookup.GetTagByName(ctx, name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Decision{DeniedReason: ReasonTagNotFound}, fmt.Errorf("%w: %q", ErrTagNotFound, name)
		}
		return Decision{}, err
	}
	return g.CanAccess(ctx, userID, []Tag{tag})
}

// FilterAccessible keeps the items the user may access, in input order. Any
// error aborts the whole filter.
func FilterAccessible[T any](ctx context.Context, g *Gate, userID int64, items []T, tagsOf func(T) []Tag) ([]T, error) {
	out := make([]T, 0, len(items))
	for _, item := range items {
		decision, err := g.CanAccess(ctx, userID, tagsOf(item))
		if err != nil {
			return nil, err
		}
		if decision.Allowed {
			out = append(out, item)
		}
	}
	return out, nil
}

func requiredPermission(tag Tag) (string, error) {
	if tag.RequiredPermission != "" {
		return rbac.NormalizeName(tag.RequiredPermission), nil
	}
	if name, ok := rbac.PermissionID(*tag.RequiresPermission).Name(); ok {
		return name, nil
	}
	return "", fmt.Errorf("%w: tag %q requires permission %d", ErrUnknownPermission, tag.Name, *tag.RequiresPermission)
}
