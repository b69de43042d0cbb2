package books

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libris/libris/internal/rbac"
	"github.com/libris/libris/internal/shared"
	"github.com/libris/libris/internal/tags"
)

type memBooks struct {
	books map[int64]Book
	err   error
}

func (m *memBooks) ListBooks(ctx context.Context, filter ListFilter) ([]Book, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make([]Book, 0, len(m.books))
	for _, b := range m.books {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if filter.Offset >= len(out) {
		return nil, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *memBooks) GetBook(ctx context.Context, id int64) (Book, error) {
	b, ok := m.books[id]
	if !ok {
		return Book{}, ErrNotFound
	}
	return b, nil
}

type memTagStore struct {
	mu       sync.Mutex
	tags     map[int64]tags.Tag
	attached map[int64][]int64
	err      error
}

func (m *memTagStore) GetTagByID(ctx context.Context, id int64) (tags.Tag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tags[id]
	if !ok {
		return tags.Tag{}, tags.ErrNotFound
	}
	return t, nil
}

func (m *memTagStore) TagsForResources(ctx context.Context, resourceIDs []int64) (map[int64][]tags.Tag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make(map[int64][]tags.Tag)
	for _, id := range resourceIDs {
		for _, tagID := range m.attached[id] {
			out[id] = append(out[id], m.tags[tagID])
		}
	}
	return out, nil
}

func (m *memTagStore) AssignTag(ctx context.Context, a tags.Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.attached[a.ResourceID] {
		if id == a.TagID {
			return nil
		}
	}
	m.attached[a.ResourceID] = append(m.attached[a.ResourceID], a.TagID)
	return nil
}

func (m *memTagStore) RemoveTag(ctx context.Context, resourceID, tagID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.attached[resourceID][:0]
	found := false
	for _, id := range m.attached[resourceID] {
		if id == tagID {
			found = true
			continue
		}
		kept = append(kept, id)
	}
	m.attached[resourceID] = kept
	if !found {
		return tags.ErrNotFound
	}
	return nil
}

type roleSource struct {
	mu    sync.Mutex
	roles map[int64]rbac.RoleID
	err   error
}

func (s *roleSource) setRole(userID int64, role rbac.RoleID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[userID] = role
}

func (s *roleSource) GetUserPermissions(ctx context.Context, userID int64) ([]rbac.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	role, ok := s.roles[userID]
	if !ok {
		return nil, nil
	}
	var out []rbac.Permission
	for _, def := range rbac.Roles() {
		if def.ID != role {
			continue
		}
		for _, p := range def.Grants {
			out = append(out, rbac.Permission{ID: int64(p), Name: p.String()})
		}
	}
	return out, nil
}

const (
	reader    int64 = 1
	librarian int64 = 2
)

type fixture struct {
	service  *Service
	resolver *rbac.Resolver
	source   *roleSource
	tags     *memTagStore
	books    *memBooks
}

func nsfwID() *int64 {
	id := int64(rbac.PermContentNSFW)
	return &id
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	source := &roleSource{roles: map[int64]rbac.RoleID{reader: rbac.RoleUser, librarian: rbac.RoleLibrarian}}
	resolver := rbac.NewResolver(source, nil)
	tagStore := &memTagStore{
		tags: map[int64]tags.Tag{
			1: {ID: 1, Name: "NSFW", Category: tags.CategoryContent, RequiresPermission: nsfwID(), RequiredPermission: "content.nsfw"},
			2: {ID: 2, Name: "Fantasy", Category: tags.CategoryGenre},
		},
		attached: map[int64][]int64{10: {2}, 11: {1, 2}},
	}
	bookRepo := &memBooks{books: map[int64]Book{
		10: {ID: 10, Title: "The Hobbit", Author: "Tolkien"},
		11: {ID: 11, Title: "Night Garden", Author: "Anon"},
		12: {ID: 12, Title: "Dune", Author: "Herbert"},
	}}
	gate := tags.NewGate(resolver, nil)
	return fixture{
		service:  NewService(bookRepo, tagStore, gate),
		resolver: resolver,
		source:   source,
		tags:     tagStore,
		books:    bookRepo,
	}
}

func bookIDs(list []Book) []int64 {
	ids := make([]int64, 0, len(list))
	for _, b := range list {
		ids = append(ids, b.ID)
	}
	return ids
}

func TestListHidesGatedBooks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	list, err := f.service.List(ctx, reader, ListFilter{Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 12}, bookIDs(list))
	require.Len(t, list[0].Tags, 1)
	assert.Equal(t, "Fantasy", list[0].Tags[0].Name)

	list, err = f.service.List(ctx, librarian, ListFilter{Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 11, 12}, bookIDs(list))
}

func TestListFailsClosed(t *testing.T) {
	f := newFixture(t)
	f.source.err = errors.New("db down")

	list, err := f.service.List(context.Background(), librarian, ListFilter{Limit: 20})
	assert.Error(t, err)
	assert.Nil(t, list)

	f.source.err = nil
	f.tags.err = errors.New("tag query failed")
	_, err = f.service.List(context.Background(), librarian, ListFilter{Limit: 20})
	assert.ErrorIs(t, err, f.tags.err)
}

func TestGetAppliesGate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Get(ctx, reader, 11)
	var denied *DeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, "missing permission for NSFW", denied.Reason)
	assert.ErrorIs(t, err, shared.ErrForbidden)

	f.source.setRole(reader, rbac.RoleLibrarian)
	f.resolver.Invalidate(reader)
	book, err := f.service.Get(ctx, reader, 11)
	require.NoError(t, err)
	assert.Equal(t, "Night Garden", book.Title)

	_, err = f.service.Get(ctx, reader, 99)
	assert.True(t, IsNotFound(err))
}

func TestAddTagRequiresPassingTheTag(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.AddTag(ctx, reader, 12, 1)
	assert.ErrorIs(t, err, shared.ErrForbidden)
	assert.Empty(t, f.tags.attached[12])

	book, err := f.service.AddTag(ctx, librarian, 12, 1)
	require.NoError(t, err)
	require.Len(t, book.Tags, 1)
	assert.Equal(t, "NSFW", book.Tags[0].Name)

	_, err = f.service.Get(ctx, reader, 12)
	assert.ErrorIs(t, err, shared.ErrForbidden)

	require.NoError(t, f.service.RemoveTag(ctx, librarian, 12, 1))
	_, err = f.service.Get(ctx, reader, 12)
	require.NoError(t, err)

	_, err = f.service.AddTag(ctx, librarian, 12, 77)
	assert.True(t, IsNotFound(err))
}

