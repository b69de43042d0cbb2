package tags

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound indicates that the requested record does not exist.
	ErrNotFound = errors.New("tags: not found")
	// ErrDuplicate indicates a unique constraint violation.
	ErrDuplicate = errors.New("tags: duplicate")
)

// Repository persists tags and their assignment to books.
type Repository interface {
	TagLookup
	GetTagByID(ctx context.Context, id int64) (Tag, error)
	ListTags(ctx context.Context) ([]Tag, error)
	CreateTag(ctx context.Context, tag Tag) (Tag, error)
	EnsureTag(ctx context.Context, tag Tag) (Tag, error)
	TagsForResources(ctx context.Context, resourceIDs []int64) (map[int64][]Tag, error)
	AssignTag(ctx context.Context, a Assignment) error
	RemoveTag(ctx context.Context, resourceID, tagID int64) error
}

// PGRepository implements Repository using PostgreSQL. Assignments live in
// book_tags.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const tagColumns = `t.id, t.name, t.category, COALESCE(t.description, ''), COALESCE(t.color, ''),
t.requires_permission_id, COALESCE(p.name, ''), t.created_at`

const tagFrom = ` FROM tags t LEFT JOIN permissions p ON p.id = t.requires_permission_id`

// Both target the tags_name_lower_uidx unique index.
const (
	tagByName       = `WHERE lower(t.name) = lower($1)`
	tagNameConflict = `ON CONFLICT ((lower(name)))`
)

// GetTagByName fetches a tag by its unique name, case-insensitively.
func (r *PGRepository) GetTagByName(ctx context.Context, name string) (Tag, error) {
	return r.getTag(ctx, tagByName, name)
}

// GetTagByID fetches a tag by id.
func (r *PGRepository) GetTagByID(ctx context.Context, id int64) (Tag, error) {
	return r.getTag(ctx, `WHERE t.id = $1`, id)
}

func (r *PGRepository) getTag(ctx context.Context, where string, arg any) (Tag, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+tagColumns+tagFrom+` `+where, arg)
	tag, err := scanTag(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Tag{}, ErrNotFound
		}
		return Tag{}, err
	}
	return tag, nil
}

// ListTags returns all tags ordered by category then name.
func (r *PGRepository) ListTags(ctx context.Context) ([]Tag, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+tagColumns+tagFrom+` ORDER BY t.category, t.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Tag
	for rows.Next() {
		tag, err := scanTag(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tag)
	}
	return out, rows.Err()
}

// CreateTag inserts a tag. A non-empty RequiredPermission is resolved to its
// permission id; an unresolvable name yields ErrUnknownPermission.
func (r *PGRepository) CreateTag(ctx context.Context, tag Tag) (Tag, error) {
	return r.writeTag(ctx, tag, `ON CONFLICT DO NOTHING`)
}

// EnsureTag inserts a tag or refreshes the one with the same name.
func (r *PGRepository) EnsureTag(ctx context.Context, tag Tag) (Tag, error) {
	return r.writeTag(ctx, tag, tagNameConflict+` DO UPDATE SET
	category = EXCLUDED.category,
	description = EXCLUDED.description,
	color = EXCLUDED.color,
	requires_permission_id = EXCLUDED.requires_permission_id`)
}

func (r *PGRepository) writeTag(ctx context.Context, tag Tag, conflict string) (Tag, error) {
	permID := tag.RequiresPermission
	if tag.RequiredPermission != "" {
		var id int64
		err := r.pool.QueryRow(ctx, `SELECT id FROM permissions WHERE name = $1`, tag.RequiredPermission).Scan(&id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return Tag{}, fmt.Errorf("%w: %q", ErrUnknownPermission, tag.RequiredPermission)
			}
			return Tag{}, err
		}
		permID = &id
	}
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO tags (name, category, description, color, requires_permission_id, created_at)
VALUES ($1, $2, $3, $4, $5, now())
`+conflict+`
RETURNING id`, tag.Name, string(tag.Category), nullText(tag.Description), nullText(tag.Color), nullInt(permID)).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Tag{}, ErrDuplicate
		}
		return Tag{}, mapConstraint(err)
	}
	return r.GetTagByID(ctx, id)
}

// TagsForResources returns the tags attached to each of the given books.
// Books without tags are absent from the map.
func (r *PGRepository) TagsForResources(ctx context.Context, resourceIDs []int64) (map[int64][]Tag, error) {
	out := make(map[int64][]Tag, len(resourceIDs))
	if len(resourceIDs) == 0 {
		return out, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT bt.book_id, `+tagColumns+tagFrom+`
JOIN book_tags bt ON bt.tag_id = t.id
WHERE bt.book_id = ANY($1)
ORDER BY bt.book_id, t.name`, resourceIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var bookID int64
		tag, err := scanTag(rows, &bookID)
		if err != nil {
			return nil, err
		}
		out[bookID] = append(out[bookID], tag)
	}
	return out, rows.Err()
}

// AssignTag attaches a tag to a book. Re-assigning is a no-op.
func (r *PGRepository) AssignTag(ctx context.Context, a Assignment) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO book_tags (book_id, tag_id, applied_by, auto_applied, applied_at)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (book_id, tag_id) DO NOTHING`, a.ResourceID, a.TagID, nullInt(a.AppliedBy), a.AutoApplied)
	return mapConstraint(err)
}

// RemoveTag detaches a tag from a book.
func (r *PGRepository) RemoveTag(ctx context.Context, resourceID, tagID int64) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM book_tags WHERE book_id = $1 AND tag_id = $2`, resourceID, tagID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// scanTag reads tagColumns, preceded by any lead destinations.
func scanTag(row pgx.Row, lead ...any) (Tag, error) {
	var (
		tag  Tag
		perm pgtype.Int8
		cat  string
	)
	dest := append(lead, &tag.ID, &tag.Name, &cat, &tag.Description, &tag.Color,
		&perm, &tag.RequiredPermission, &tag.CreatedAt)
	if err := row.Scan(dest...); err != nil {
		return Tag{}, err
	}
	tag.Category = Category(cat)
	if perm.Valid {
		id := perm.Int64
		tag.RequiresPermission = &id
	}
	return tag, nil
}

func mapConstraint(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return ErrDuplicate
		case "23503":
			return ErrNotFound
		}
	}
	return err
}

func nullText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

func nullInt(v *int64) pgtype.Int8 {
	if v == nil {
		return pgtype.Int8{}
	}
	return pgtype.Int8{Int64: *v, Valid: true}
}
