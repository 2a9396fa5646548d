package authors

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
	"github.com/vseklecov/sopds/pkg/errcodes"
	"github.com/vseklecov/sopds/pkg/models"
	"github.com/vseklecov/sopds/pkg/searchkey"
)

// UnknownAuthorName is the sentinel author that books without any author
// metadata are linked to. It is seeded at init time.
const UnknownAuthorName = "Неизвестный автор"

// Bucket is one row of the alphabetical author index: a search-name prefix
// and the number of authors sharing it.
type Bucket struct {
	Prefix string `bun:"prefix"`
	Count  int    `bun:"count"`
}

type ListOptions struct {
	Limit             int
	Page              int
	IncludeDuplicates bool
}

type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db}
}

// Find looks up an author by name, case-insensitively via the search key.
// Returns (nil, nil) when no such author exists.
func (svc *Service) Find(ctx context.Context, firstName, lastName string) (*models.Author, error) {
	author := &models.Author{}

	err := svc.db.
		NewSelect().
		Model(author).
		Where("a.search_name = ? COLLATE NOCASE", searchkey.ForAuthor(firstName, lastName)).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.WithStack(err)
	}

	return author, nil
}

// FindOrCreate returns the author with the given name, creating it when
// absent. The unique index on search_name makes concurrent calls collapse to
// one row.
func (svc *Service) FindOrCreate(ctx context.Context, firstName, lastName string) (*models.Author, error) {
	author, err := svc.Find(ctx, firstName, lastName)
	if err != nil {
		return nil, err
	}
	if author != nil {
		return author, nil
	}

	author = &models.Author{
		FirstName:  firstName,
		LastName:   lastName,
		SearchName: searchkey.ForAuthor(firstName, lastName),
	}
	_, err = svc.db.
		NewInsert().
		Model(author).
		On("CONFLICT DO NOTHING").
		Exec(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return svc.Find(ctx, firstName, lastName)
}

// EnsureUnknown seeds the sentinel author for books without author metadata.
func (svc *Service) EnsureUnknown(ctx context.Context) error {
	_, err := svc.FindOrCreate(ctx, "", UnknownAuthorName)
	return err
}

// Retrieve returns an author by id.
func (svc *Service) Retrieve(ctx context.Context, id int) (*models.Author, error) {
	author := &models.Author{}

	err := svc.db.
		NewSelect().
		Model(author).
		Where("a.id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Author")
		}
		return nil, errors.WithStack(err)
	}

	return author, nil
}

// Buckets groups authors whose search name starts with prefix by the next
// character, returning one row per extended prefix with the author count.
// Every matching author lands in exactly one bucket.
func (svc *Service) Buckets(ctx context.Context, prefix string) ([]Bucket, error) {
	var buckets []Bucket

	prefix = searchkey.Normalize(prefix)
	n := len([]rune(prefix)) + 1

	err := svc.db.
		NewSelect().
		TableExpr("authors AS a").
		ColumnExpr("substr(a.search_name, 1, ?) AS prefix", n).
		ColumnExpr("count(*) AS count").
		Where("a.search_name LIKE ? COLLATE NOCASE", prefix+"%").
		GroupExpr("1").
		OrderExpr("1 ASC").
		Scan(ctx, &buckets)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return buckets, nil
}

// CountByPrefix returns the number of authors whose search name starts with
// prefix.
func (svc *Service) CountByPrefix(ctx context.Context, prefix string) (int, error) {
	count, err := svc.db.
		NewSelect().
		Model((*models.Author)(nil)).
		Where("a.search_name LIKE ? COLLATE NOCASE", searchkey.Normalize(prefix)+"%").
		Count(ctx)
	return count, errors.WithStack(err)
}

// ListByPrefix lists authors matching the prefix with their book counts,
// ordered by search name. The second return value is the total number of
// matching authors so callers can page through explicitly.
func (svc *Service) ListByPrefix(ctx context.Context, prefix string, opts ListOptions) ([]*models.Author, int, error) {
	var authors []*models.Author

	pattern := searchkey.Normalize(prefix) + "%"

	q := svc.db.
		NewSelect().
		Model(&authors).
		ColumnExpr("a.*").
		ColumnExpr("count(DISTINCT ba.book_id) AS book_count").
		Join("INNER JOIN book_authors ba ON ba.author_id = a.id").
		Join("INNER JOIN books b ON b.id = ba.book_id").
		Where("a.search_name LIKE ? COLLATE NOCASE", pattern).
		GroupExpr("a.id").
		OrderExpr("a.search_name ASC")

	countQ := svc.db.
		NewSelect().
		TableExpr("authors AS a").
		ColumnExpr("count(DISTINCT a.id)").
		Join("INNER JOIN book_authors ba ON ba.author_id = a.id").
		Join("INNER JOIN books b ON b.id = ba.book_id").
		Where("a.search_name LIKE ? COLLATE NOCASE", pattern)

	if !opts.IncludeDuplicates {
		q = q.Where("b.duplicate_id = 0")
		countQ = countQ.Where("b.duplicate_id = 0")
	}

	if opts.Limit > 0 {
		q = q.Limit(opts.Limit).Offset(opts.Limit * opts.Page)
	}

	err := q.Scan(ctx)
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}

	var total int
	err = countQ.Scan(ctx, &total)
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}

	return authors, total, nil
}

// ForBook lists the authors linked to a book, ordered by search name.
func (svc *Service) ForBook(ctx context.Context, bookID int) ([]*models.Author, error) {
	var authors []*models.Author

	err := svc.db.
		NewSelect().
		Model(&authors).
		Join("INNER JOIN book_authors ba ON ba.author_id = a.id").
		Where("ba.book_id = ?", bookID).
		Order("a.search_name ASC").
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return authors, nil
}
