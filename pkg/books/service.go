package books

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
	"github.com/vseklecov/sopds/pkg/errcodes"
	"github.com/vseklecov/sopds/pkg/models"
	"github.com/vseklecov/sopds/pkg/searchkey"
)

type AddBookOptions struct {
	Filename    string
	Path        string
	CatalogID   int
	CatalogType int
	Ext         string
	Title       string
	Lang        string
	Filesize    int64

	// FindDuplicates enables content-duplicate detection on insert. When a
	// canonical book with the same title, format and size already exists, the
	// new row is flagged with its id.
	FindDuplicates bool
}

type ListOptions struct {
	Limit             int
	Page              int
	IncludeDuplicates bool
}

// Bucket is one row of the alphabetical title index.
type Bucket struct {
	Prefix string `bun:"prefix"`
	Count  int    `bun:"count"`
}

// Summary holds the library totals shown on the root feed.
type Summary struct {
	Books    int
	Authors  int
	Catalogs int
}

type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db}
}

// FindBook returns the id of the book with the given filename and path, or 0
// when absent. When duplicates share the pair, the lowest id wins.
func (svc *Service) FindBook(ctx context.Context, filename, path string) (int, error) {
	book := &models.Book{}

	err := svc.db.
		NewSelect().
		Model(book).
		Column("b.id").
		Where("b.filename = ? AND b.path = ?", filename, path).
		Order("b.id ASC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, errors.WithStack(err)
	}

	return book.ID, nil
}

// FindDuplicate returns the id of the canonical book with the same title,
// format and filesize, or 0 when there is none. Books already flagged as
// duplicates never count as canonical.
func (svc *Service) FindDuplicate(ctx context.Context, title, format string, filesize int64) (int, error) {
	book := &models.Book{}

	err := svc.db.
		NewSelect().
		Model(book).
		Column("b.id").
		Where("b.title = ? AND b.format = ? AND b.filesize = ? AND b.duplicate_id = 0", title, format, filesize).
		Order("b.id ASC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, errors.WithStack(err)
	}

	return book.ID, nil
}

// AddBook inserts a book unless one with the same filename and path already
// exists, in which case the existing row is returned unchanged. The second
// return value reports whether a row was created.
func (svc *Service) AddBook(ctx context.Context, opts AddBookOptions) (*models.Book, bool, error) {
	id, err := svc.FindBook(ctx, opts.Filename, opts.Path)
	if err != nil {
		return nil, false, err
	}
	if id != 0 {
		book, err := svc.Retrieve(ctx, id)
		if err != nil {
			return nil, false, err
		}
		return book, false, nil
	}

	format := strings.ToLower(strings.TrimPrefix(opts.Ext, "."))

	duplicateID := 0
	if opts.FindDuplicates {
		duplicateID, err = svc.FindDuplicate(ctx, opts.Title, format, opts.Filesize)
		if err != nil {
			return nil, false, err
		}
	}

	book := &models.Book{
		Filename:     opts.Filename,
		Path:         opts.Path,
		RegisteredAt: time.Now(),
		Filesize:     opts.Filesize,
		Format:       format,
		Title:        opts.Title,
		SearchTitle:  searchkey.Normalize(opts.Title),
		Lang:         opts.Lang,
		CatalogID:    opts.CatalogID,
		CatalogType:  opts.CatalogType,
		DuplicateID:  duplicateID,
	}
	_, err = svc.db.
		NewInsert().
		Model(book).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return nil, false, errors.WithStack(err)
	}

	return book, true, nil
}

// Retrieve returns a book by id.
func (svc *Service) Retrieve(ctx context.Context, id int) (*models.Book, error) {
	book := &models.Book{}

	err := svc.db.
		NewSelect().
		Model(book).
		Where("b.id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Book")
		}
		return nil, errors.WithStack(err)
	}

	return book, nil
}

// AttachCover records the extracted cover filename and content type on a book.
func (svc *Service) AttachCover(ctx context.Context, bookID int, filename, contentType string) error {
	result, err := svc.db.
		NewUpdate().
		Model((*models.Book)(nil)).
		Set("cover = ?", filename).
		Set("cover_type = ?", contentType).
		Where("id = ?", bookID).
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return errors.WithStack(err)
	}
	if n == 0 {
		return errcodes.NotFound("Book")
	}

	return nil
}

// LinkAuthor associates an author with a book. Repeated calls are no-ops.
func (svc *Service) LinkAuthor(ctx context.Context, bookID, authorID int) error {
	if err := svc.ensureExists(ctx, (*models.Book)(nil), bookID, "Book"); err != nil {
		return err
	}
	if err := svc.ensureExists(ctx, (*models.Author)(nil), authorID, "Author"); err != nil {
		return err
	}

	link := &models.BookAuthor{BookID: bookID, AuthorID: authorID}
	_, err := svc.db.
		NewInsert().
		Model(link).
		On("CONFLICT DO NOTHING").
		Exec(ctx)
	return errors.WithStack(err)
}

// LinkGenre associates a genre with a book. Repeated calls are no-ops.
func (svc *Service) LinkGenre(ctx context.Context, bookID, genreID int) error {
	if err := svc.ensureExists(ctx, (*models.Book)(nil), bookID, "Book"); err != nil {
		return err
	}
	if err := svc.ensureExists(ctx, (*models.Genre)(nil), genreID, "Genre"); err != nil {
		return err
	}

	link := &models.BookGenre{BookID: bookID, GenreID: genreID}
	_, err := svc.db.
		NewInsert().
		Model(link).
		On("CONFLICT DO NOTHING").
		Exec(ctx)
	return errors.WithStack(err)
}

func (svc *Service) ensureExists(ctx context.Context, model interface{}, id int, resource string) error {
	exists, err := svc.db.
		NewSelect().
		Model(model).
		Where("id = ?", id).
		Exists(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	if !exists {
		return errcodes.NotFound(resource)
	}
	return nil
}

// TitleBuckets groups books whose search title starts with prefix by the next
// character, one row per extended prefix with the book count.
func (svc *Service) TitleBuckets(ctx context.Context, prefix string, includeDuplicates bool) ([]Bucket, error) {
	var buckets []Bucket

	prefix = searchkey.Normalize(prefix)
	n := len([]rune(prefix)) + 1

	q := svc.db.
		NewSelect().
		TableExpr("books AS b").
		ColumnExpr("substr(b.search_title, 1, ?) AS prefix", n).
		ColumnExpr("count(*) AS count").
		Where("b.search_title LIKE ? COLLATE NOCASE", prefix+"%").
		GroupExpr("1").
		OrderExpr("1 ASC")
	if !includeDuplicates {
		q = q.Where("b.duplicate_id = 0")
	}

	err := q.Scan(ctx, &buckets)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return buckets, nil
}

// ListByTitlePrefix lists books whose search title matches the prefix,
// ordered by title. A prefix starting with "%" turns into a substring search,
// which is how the search feed reuses this query.
func (svc *Service) ListByTitlePrefix(ctx context.Context, prefix string, opts ListOptions) ([]*models.Book, int, error) {
	var books []*models.Book

	q := svc.db.
		NewSelect().
		Model(&books).
		Where("b.search_title LIKE ? COLLATE NOCASE", searchkey.Normalize(prefix)+"%").
		Order("b.title ASC")

	return svc.list(ctx, q, &books, opts)
}

// ListByAuthor lists a single author's books, ordered by title.
func (svc *Service) ListByAuthor(ctx context.Context, authorID int, opts ListOptions) ([]*models.Book, int, error) {
	var books []*models.Book

	q := svc.db.
		NewSelect().
		Model(&books).
		Join("INNER JOIN book_authors ba ON ba.book_id = b.id").
		Where("ba.author_id = ?", authorID).
		Order("b.title ASC")

	return svc.list(ctx, q, &books, opts)
}

// ListByGenre lists the books in a genre, ordered by language then title.
func (svc *Service) ListByGenre(ctx context.Context, genreID int, opts ListOptions) ([]*models.Book, int, error) {
	var books []*models.Book

	q := svc.db.
		NewSelect().
		Model(&books).
		Join("INNER JOIN book_genres bg ON bg.book_id = b.id").
		Where("bg.genre_id = ?", genreID).
		Order("b.lang ASC", "b.title ASC")

	return svc.list(ctx, q, &books, opts)
}

func (svc *Service) list(ctx context.Context, q *bun.SelectQuery, books *[]*models.Book, opts ListOptions) ([]*models.Book, int, error) {
	if !opts.IncludeDuplicates {
		q = q.Where("b.duplicate_id = 0")
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit).Offset(opts.Limit * opts.Page)
	}

	total, err := q.ScanAndCount(ctx)
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}

	return *books, total, nil
}

// Recent lists the most recently registered books, newest first.
func (svc *Service) Recent(ctx context.Context, limit int, includeDuplicates bool) ([]*models.Book, error) {
	var books []*models.Book

	q := svc.db.
		NewSelect().
		Model(&books).
		Order("b.registered_at DESC", "b.id DESC").
		Limit(limit)
	if !includeDuplicates {
		q = q.Where("b.duplicate_id = 0")
	}

	err := q.Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return books, nil
}

// Summary returns the library totals: books, authors and catalog nodes.
func (svc *Service) Summary(ctx context.Context, includeDuplicates bool) (Summary, error) {
	var s Summary
	var err error

	q := svc.db.
		NewSelect().
		Model((*models.Book)(nil))
	if !includeDuplicates {
		q = q.Where("b.duplicate_id = 0")
	}
	s.Books, err = q.Count(ctx)
	if err != nil {
		return s, errors.WithStack(err)
	}

	s.Authors, err = svc.db.
		NewSelect().
		Model((*models.Author)(nil)).
		Count(ctx)
	if err != nil {
		return s, errors.WithStack(err)
	}

	s.Catalogs, err = svc.db.
		NewSelect().
		Model((*models.Catalog)(nil)).
		Count(ctx)
	if err != nil {
		return s, errors.WithStack(err)
	}

	return s, nil
}
