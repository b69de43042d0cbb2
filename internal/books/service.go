package books

import (
	"context"
	"errors"
	"fmt"

	"github.com/libris/libris/internal/shared"
	"github.com/libris/libris/internal/tags"
)

// DeniedError reports a book hidden by one of its gating tags.
type DeniedError struct {
	BookID int64
	Reason string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("books: access to book %d denied: %s", e.BookID, e.Reason)
}

// Is makes DeniedError match shared.ErrForbidden.
func (e *DeniedError) Is(target error) bool {
	return target == shared.ErrForbidden
}

// TagStore reads and writes book tag assignments.
type TagStore interface {
	GetTagByID(ctx context.Context, id int64) (tags.Tag, error)
	TagsForResources(ctx context.Context, resourceIDs []int64) (map[int64][]tags.Tag, error)
	AssignTag(ctx context.Context, a tags.Assignment) error
	RemoveTag(ctx context.Context, resourceID, tagID int64) error
}

// Service applies the content gate to book reads.
type Service struct {
	repo Repository
	tags TagStore
	gate *tags.Gate
}

// NewService constructs a Service.
func NewService(repo Repository, tagStore TagStore, gate *tags.Gate) *Service {
	return &Service{repo: repo, tags: tagStore, gate: gate}
}

// List returns the page of books visible to the user. Books the user may not
// see are dropped, so a page can be shorter than the limit.
func (s *Service) List(ctx context.Context, userID int64, filter ListFilter) ([]Book, error) {
	list, err := s.repo.ListBooks(ctx, filter)
	if err != nil {
		return nil, err
	}
	if err := s.attachTags(ctx, list); err != nil {
		return nil, err
	}
	return tags.FilterAccessible(ctx, s.gate, userID, list, func(b Book) []tags.Tag { return b.Tags })
}

// Get returns a book if the user passes its gate.
func (s *Service) Get(ctx context.Context, userID, bookID int64) (Book, error) {
	book, err := s.repo.GetBook(ctx, bookID)
	if err != nil {
		return Book{}, err
	}
	list := []Book{book}
	if err := s.attachTags(ctx, list); err != nil {
		return Book{}, err
	}
	book = list[0]
	decision, err := s.gate.CanAccess(ctx, userID, book.Tags)
	if err != nil {
		return Book{}, err
	}
	if !decision.Allowed {
		return Book{}, &DeniedError{BookID: bookID, Reason: decision.DeniedReason}
	}
	return book, nil
}

// AddTag attaches a tag to a book the user can see. A user cannot attach a
// gating tag they would not pass themselves.
func (s *Service) AddTag(ctx context.Context, userID, bookID, tagID int64) (Book, error) {
	if _, err := s.Get(ctx, userID, bookID); err != nil {
		return Book{}, err
	}
	tag, err := s.tags.GetTagByID(ctx, tagID)
	if err != nil {
		return Book{}, err
	}
	decision, err := s.gate.CanAccess(ctx, userID, []tags.Tag{tag})
	if err != nil {
		return Book{}, err
	}
	if !decision.Allowed {
		return Book{}, &DeniedError{BookID: bookID, Reason: decision.DeniedReason}
	}
	applier := userID
	if err := s.tags.AssignTag(ctx, tags.Assignment{ResourceID: bookID, TagID: tagID, AppliedBy: &applier}); err != nil {
		return Book{}, err
	}
	return s.Get(ctx, userID, bookID)
}

// RemoveTag detaches a tag from a book the user can see.
func (s *Service) RemoveTag(ctx context.Context, userID, bookID, tagID int64) error {
	if _, err := s.Get(ctx, userID, bookID); err != nil {
		return err
	}
	return s.tags.RemoveTag(ctx, bookID, tagID)
}

func (s *Service) attachTags(ctx context.Context, list []Book) error {
	if len(list) == 0 {
		return nil
	}
	ids := make([]int64, len(list))
	for i, b := range list {
		ids[i] = b.ID
	}
	byBook, err := s.tags.TagsForResources(ctx, ids)
	if err != nil {
		return fmt.Errorf("books: load tags: %w", err)
	}
	for i := range list {
		list[i].Tags = byBook[list[i].ID]
	}
	return nil
}

// IsNotFound reports whether err means the book or tag does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, tags.ErrNotFound)
}
