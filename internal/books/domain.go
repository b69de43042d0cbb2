// Package books serves the library catalogue behind the content gate.
package books

import (
	"time"

	"github.com/libris/libris/internal/tags"
)

// Book is a catalogue entry together with its attached tags.
type Book struct {
	ID          int64
	Title       string
	Author      string
	Description string
	ISBN        string
	CreatedAt   time.Time
	Tags        []tags.Tag
}

// ListFilter narrows a book listing.
type ListFilter struct {
	Search string
	Limit  int
	Offset int
}
