package books

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates that the requested book does not exist.
var ErrNotFound = errors.New("books: not found")

// Repository loads books. Tags are attached by the service.
type Repository interface {
	ListBooks(ctx context.Context, filter ListFilter) ([]Book, error)
	GetBook(ctx context.Context, id int64) (Book, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const bookColumns = `id, title, author, COALESCE(description, ''), COALESCE(isbn, ''), created_at`

// ListBooks returns a window of books ordered by title.
func (r *PGRepository) ListBooks(ctx context.Context, filter ListFilter) ([]Book, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+bookColumns+` FROM books
WHERE $1 = '' OR title ILIKE '%' || $1 || '%' OR author ILIKE '%' || $1 || '%'
ORDER BY title, id
LIMIT $2 OFFSET $3`, filter.Search, filter.Limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Book
	for rows.Next() {
		var b Book
		if err := rows.Scan(&b.ID, &b.Title, &b.Author, &b.Description, &b.ISBN, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// GetBook fetches a single book.
func (r *PGRepository) GetBook(ctx context.Context, id int64) (Book, error) {
	var b Book
	err := r.pool.QueryRow(ctx, `SELECT `+bookColumns+` FROM books WHERE id = $1`, id).
		Scan(&b.ID, &b.Title, &b.Author, &b.Description, &b.ISBN, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Book{}, ErrNotFound
		}
		return Book{}, err
	}
	return b, nil
}
