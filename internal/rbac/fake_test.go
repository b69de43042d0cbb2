package rbac

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memRepo struct {
	mu        sync.Mutex
	roles     map[int64]Role
	perms     map[int64]Permission
	rolePerms map[int64]map[int64]struct{}
	userRoles map[int64]map[int64]struct{}
	grants    []UserPermission
	nextPerm  int64

	permCalls int
	permErr   error
	assignErr error
	// gate, when set, blocks GetUserPermissions until closed or ctx is done;
	// entered is signalled on each call just before blocking.
	gate    chan struct{}
	entered chan struct{}
}

func newMemRepo() *memRepo {
	m := &memRepo{
		roles:     make(map[int64]Role),
		perms:     make(map[int64]Permission),
		rolePerms: make(map[int64]map[int64]struct{}),
		userRoles: make(map[int64]map[int64]struct{}),
		nextPerm:  1000,
	}
	for _, def := range Permissions() {
		m.perms[int64(def.ID)] = Permission{ID: int64(def.ID), Name: def.Name, Resource: def.Resource, Action: def.Action}
	}
	for _, def := range Roles() {
		m.roles[int64(def.ID)] = Role{ID: int64(def.ID), Name: def.Name}
		set := make(map[int64]struct{})
		for _, p := range def.Grants {
			set[int64(p)] = struct{}{}
		}
		m.rolePerms[int64(def.ID)] = set
	}
	return m
}

func (m *memRepo) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.permCalls
}

func (m *memRepo) GetUserPermissions(ctx context.Context, userID int64) ([]Permission, error) {
	m.mu.Lock()
	m.permCalls++
	if m.permErr != nil {
		err := m.permErr
		m.mu.Unlock()
		return nil, err
	}
	ids := make(map[int64]struct{})
	for roleID := range m.userRoles[userID] {
		for permID := range m.rolePerms[roleID] {
			ids[permID] = struct{}{}
		}
	}
	for _, g := range m.grants {
		if g.UserID == userID && g.ResourceID == nil {
			ids[g.PermissionID] = struct{}{}
		}
	}
	out := make([]Permission, 0, len(ids))
	for id := range ids {
		out = append(out, m.perms[id])
	}
	gate, entered := m.gate, m.entered
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	// The answer is computed before blocking so a gated call returns the
	// state as of its start.
	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return out, nil
}

func (m *memRepo) GetUserRoles(ctx context.Context, userID int64) ([]Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Role
	for id := range m.userRoles[userID] {
		out = append(out, m.roles[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memRepo) AssignRoleToUser(ctx context.Context, userID, roleID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.assignErr != nil {
		return m.assignErr
	}
	if _, ok := m.roles[roleID]; !ok {
		return ErrNotFound
	}
	if m.userRoles[userID] == nil {
		m.userRoles[userID] = make(map[int64]struct{})
	}
	m.userRoles[userID][roleID] = struct{}{}
	return nil
}

func (m *memRepo) RemoveRoleFromUser(ctx context.Context, userID, roleID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.assignErr != nil {
		return m.assignErr
	}
	delete(m.userRoles[userID], roleID)
	return nil
}

func (m *memRepo) GetRoleByName(ctx context.Context, name string) (Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.roles {
		if r.Name == NormalizeName(name) {
			return r, nil
		}
	}
	return Role{}, ErrNotFound
}

func (m *memRepo) GetRoleByID(ctx context.Context, id int64) (Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roles[id]
	if !ok {
		return Role{}, ErrNotFound
	}
	return r, nil
}

func (m *memRepo) ListRoles(ctx context.Context) ([]Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Role, 0, len(m.roles))
	for _, r := range m.roles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRepo) GetPermissionByName(ctx context.Context, name string) (Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.perms {
		if p.Name == NormalizeName(name) {
			return p, nil
		}
	}
	return Permission{}, ErrNotFound
}

func (m *memRepo) ListPermissions(ctx context.Context) ([]Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Permission, 0, len(m.perms))
	for _, p := range m.perms {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memRepo) CreatePermission(ctx context.Context, p Permission) (Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.perms {
		if existing.Name == p.Name {
			return Permission{}, ErrDuplicate
		}
	}
	m.nextPerm++
	p.ID = m.nextPerm
	p.CreatedAt = time.Now()
	m.perms[p.ID] = p
	return p, nil
}

func (m *memRepo) AssignPermissionToRole(ctx context.Context, roleID, permissionID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rolePerms[roleID] == nil {
		m.rolePerms[roleID] = make(map[int64]struct{})
	}
	m.rolePerms[roleID][permissionID] = struct{}{}
	return nil
}

func (m *memRepo) GrantPermissionToUser(ctx context.Context, g UserPermission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grants = append(m.grants, g)
	return nil
}

func (m *memRepo) RevokePermissionFromUser(ctx context.Context, userID, permissionID int64, resourceID *int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.grants[:0]
	for _, g := range m.grants {
		sameScope := (g.ResourceID == nil && resourceID == nil) ||
			(g.ResourceID != nil && resourceID != nil && *g.ResourceID == *resourceID)
		if g.UserID == userID && g.PermissionID == permissionID && sameScope {
			continue
		}
		kept = append(kept, g)
	}
	m.grants = kept
	return nil
}

func (m *memRepo) ListUserGrants(ctx context.Context, userID int64) ([]UserPermission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []UserPermission
	for _, g := range m.grants {
		if g.UserID == userID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (m *memRepo) SeedCatalog(ctx context.Context, perms []Permission, roles []Role, grants []RolePermission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range perms {
		m.perms[p.ID] = p
	}
	for _, r := range roles {
		m.roles[r.ID] = r
	}
	for _, g := range grants {
		if m.rolePerms[g.RoleID] == nil {
			m.rolePerms[g.RoleID] = make(map[int64]struct{})
		}
		m.rolePerms[g.RoleID][g.PermissionID] = struct{}{}
	}
	return nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type eventCounter struct {
	mu     sync.Mutex
	events map[string]int
}

func (e *eventCounter) CacheEvent(event string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.events == nil {
		e.events = make(map[string]int)
	}
	e.events[event]++
}

func (e *eventCounter) count(event string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.events[event]
}

var _ Repository = (*memRepo)(nil)
