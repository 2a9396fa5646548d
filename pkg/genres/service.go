package genres

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
	"github.com/vseklecov/sopds/pkg/models"
	"github.com/vseklecov/sopds/pkg/searchkey"
)

// UnknownGenreLabel is used for both section and subsection of genre codes
// that aren't part of the seeded taxonomy.
const UnknownGenreLabel = "Неизвестный жанр"

// Section is an aggregate row of the top-level genre index: one section label
// with the id of its first genre and the number of books across the section.
type Section struct {
	GenreID   int    `bun:"genre_id"`
	Section   string `bun:"section"`
	BookCount int    `bun:"book_count"`
}

// Subsection is an aggregate row of the second-level genre index.
type Subsection struct {
	GenreID    int    `bun:"genre_id"`
	Subsection string `bun:"subsection"`
	BookCount  int    `bun:"book_count"`
}

type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db}
}

// Find looks up a genre by code, case-insensitively. Absence is not an error:
// it returns (nil, nil) so callers can decide whether to create.
func (svc *Service) Find(ctx context.Context, code string) (*models.Genre, error) {
	genre := &models.Genre{}

	err := svc.db.
		NewSelect().
		Model(genre).
		Where("g.code = ? COLLATE NOCASE", code).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.WithStack(err)
	}

	return genre, nil
}

// FindOrCreate returns the genre for a code, creating it with the unknown
// labels when the taxonomy doesn't know it. Codes are normalized before
// lookup so "SF_Humor" and "sf_humor" resolve to the same row.
func (svc *Service) FindOrCreate(ctx context.Context, code string) (*models.Genre, error) {
	code = searchkey.Normalize(code)
	if code == "" {
		return nil, errors.New("genre code cannot be empty")
	}

	genre, err := svc.Find(ctx, code)
	if err != nil {
		return nil, err
	}
	if genre != nil {
		return genre, nil
	}

	genre = &models.Genre{
		Code:       code,
		Section:    UnknownGenreLabel,
		Subsection: UnknownGenreLabel,
	}
	_, err = svc.db.
		NewInsert().
		Model(genre).
		On("CONFLICT DO NOTHING").
		Exec(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	// Re-read to cover the conflict-ignored case.
	return svc.Find(ctx, code)
}

// Sections lists the genre sections that have at least one book, with the id
// of the first genre in each section and the total book count.
func (svc *Service) Sections(ctx context.Context) ([]Section, error) {
	var sections []Section

	err := svc.db.
		NewSelect().
		TableExpr("genres AS g").
		ColumnExpr("min(g.id) AS genre_id").
		ColumnExpr("g.section AS section").
		ColumnExpr("count(bg.book_id) AS book_count").
		Join("INNER JOIN book_genres bg ON bg.genre_id = g.id").
		GroupExpr("g.section").
		OrderExpr("g.section ASC").
		Scan(ctx, &sections)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return sections, nil
}

// Subsections lists the subsections within the section of the given genre,
// with per-subsection book counts. An unknown genre id yields an empty list.
func (svc *Service) Subsections(ctx context.Context, genreID int) ([]Subsection, error) {
	var subsections []Subsection

	err := svc.db.
		NewSelect().
		TableExpr("genres AS g").
		ColumnExpr("g.id AS genre_id").
		ColumnExpr("g.subsection AS subsection").
		ColumnExpr("count(bg.book_id) AS book_count").
		Join("INNER JOIN book_genres bg ON bg.genre_id = g.id").
		Where("g.section = (SELECT section FROM genres WHERE id = ?)", genreID).
		GroupExpr("g.id, g.subsection").
		OrderExpr("g.subsection ASC").
		Scan(ctx, &subsections)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return subsections, nil
}

// Retrieve returns a genre by id, or nil when it doesn't exist.
func (svc *Service) Retrieve(ctx context.Context, id int) (*models.Genre, error) {
	genre := &models.Genre{}

	err := svc.db.
		NewSelect().
		Model(genre).
		Where("g.id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.WithStack(err)
	}

	return genre, nil
}

// ForBook lists the genres linked to a book, ordered by code.
func (svc *Service) ForBook(ctx context.Context, bookID int) ([]*models.Genre, error) {
	var genres []*models.Genre

	err := svc.db.
		NewSelect().
		Model(&genres).
		Join("INNER JOIN book_genres bg ON bg.genre_id = g.id").
		Where("bg.book_id = ?", bookID).
		Order("g.code ASC").
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return genres, nil
}

// Seed installs the built-in genre taxonomy. It is idempotent; codes already
// present are left untouched.
func (svc *Service) Seed(ctx context.Context) error {
	for _, t := range taxonomy {
		genre := &models.Genre{
			Code:       t.code,
			Section:    t.section,
			Subsection: t.subsection,
		}
		_, err := svc.db.
			NewInsert().
			Model(genre).
			On("CONFLICT DO NOTHING").
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}
