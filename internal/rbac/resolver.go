package rbac

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/singleflight"
)

// LoadTimeout bounds a shared permission load. The load is detached from the
// caller that started it, so one cancelled request cannot fail the others.
const LoadTimeout = 10 * time.Second

// Resolver answers permission questions for a user, cache first.
type Resolver struct {
	source PermissionSource
	cache  *PermissionCache
	group  singleflight.Group
}

// NewResolver wires a Resolver over a permission source and cache.
func NewResolver(source PermissionSource, cache *PermissionCache) *Resolver {
	if cache == nil {
		cache = NewPermissionCache(DefaultCacheTTL, nil, nil)
	}
	return &Resolver{source: source, cache: cache}
}

// Cache exposes the underlying permission cache.
func (r *Resolver) Cache() *PermissionCache {
	return r.cache
}

// HasPermission reports whether the user's effective set contains name.
// Source errors propagate and nothing is cached for them.
func (r *Resolver) HasPermission(ctx context.Context, userID int64, name string) (bool, error) {
	set, err := r.permissionSet(ctx, userID)
	if err != nil {
		return false, err
	}
	_, ok := set[NormalizeName(name)]
	return ok, nil
}

// HasAnyPermission is true if at least one name is granted. It stops at the
// first granted name.
func (r *Resolver) HasAnyPermission(ctx context.Context, userID int64, names ...string) (bool, error) {
	for _, name := range names {
		ok, err := r.HasPermission(ctx, userID, name)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// HasAllPermissions is true if every name is granted. It stops at the first
// missing name.
func (r *Resolver) HasAllPermissions(ctx context.Context, userID int64, names ...string) (bool, error) {
	for _, name := range names {
		ok, err := r.HasPermission(ctx, userID, name)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// IsAdmin reports whether the user holds admin.full or system.admin.
func (r *Resolver) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	return r.HasAnyPermission(ctx, userID, PermAdminFull.String(), PermSystemAdmin.String())
}

// Permissions returns the user's effective permission names, sorted.
func (r *Resolver) Permissions(ctx context.Context, userID int64) ([]string, error) {
	set, err := r.permissionSet(ctx, userID)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Invalidate drops the cached set for a user.
func (r *Resolver) Invalidate(userID int64) {
	r.cache.Invalidate(userID)
}

// InvalidateAll drops every cached set.
func (r *Resolver) InvalidateAll() {
	r.cache.InvalidateAll()
}

func (r *Resolver) permissionSet(ctx context.Context, userID int64) (map[string]struct{}, error) {
	set, ticket, ok := r.cache.get(userID)
	if ok {
		return set, nil
	}
	key := fmt.Sprintf("%d:%d:%d", userID, ticket.epoch, ticket.gen)
	ch := r.group.DoChan(key, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), LoadTimeout)
		defer cancel()
		storable := r.cache.begin(userID, ticket)
		perms, err := r.source.GetUserPermissions(loadCtx, userID)
		if err != nil {
			r.cache.finish(userID, nil, ticket, false)
			return nil, err
		}
		loaded := make(map[string]struct{}, len(perms))
		for _, p := range perms {
			loaded[NormalizeName(p.Name)] = struct{}{}
		}
		r.cache.finish(userID, loaded, ticket, storable)
		return loaded, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(map[string]struct{}), nil
	}
}
