package books

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/vseklecov/sopds/pkg/errcodes"
	"github.com/vseklecov/sopds/pkg/migrations"
	"github.com/vseklecov/sopds/pkg/models"
)

func setupTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)

	db := bun.NewDB(sqldb, sqlitedialect.New())

	_, err = migrations.BringUpToDate(context.Background(), db)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func createCatalog(t *testing.T, db *bun.DB, path string) int {
	t.Helper()

	catalog := &models.Catalog{Name: path, Path: path}
	_, err := db.NewInsert().Model(catalog).Exec(context.Background())
	require.NoError(t, err)
	return catalog.ID
}

func addBook(t *testing.T, svc *Service, catalogID int, filename, title string) *models.Book {
	t.Helper()

	book, created, err := svc.AddBook(context.Background(), AddBookOptions{
		Filename:       filename,
		Path:           "lib",
		CatalogID:      catalogID,
		CatalogType:    models.CatalogTypeNormal,
		Ext:            "fb2",
		Title:          title,
		Lang:           "ru",
		Filesize:       1024,
		FindDuplicates: true,
	})
	require.NoError(t, err)
	require.True(t, created)
	return book
}

func TestAddBook(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	ctx := context.Background()
	catalogID := createCatalog(t, db, "lib")

	book, created, err := svc.AddBook(ctx, AddBookOptions{
		Filename:    "war_and_peace.fb2",
		Path:        "lib",
		CatalogID:   catalogID,
		CatalogType: models.CatalogTypeNormal,
		Ext:         ".FB2",
		Title:       "War and Peace",
		Lang:        "ru",
		Filesize:    2048,
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotZero(t, book.ID)
	assert.Equal(t, "fb2", book.Format)
	assert.Equal(t, "war and peace", book.SearchTitle)
	assert.False(t, book.RegisteredAt.IsZero())

	// Adding the same file again returns the existing row untouched.
	again, created, err := svc.AddBook(ctx, AddBookOptions{
		Filename:  "war_and_peace.fb2",
		Path:      "lib",
		CatalogID: catalogID,
		Ext:       "fb2",
		Title:     "Different Title",
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, book.ID, again.ID)
	assert.Equal(t, "War and Peace", again.Title)
}

func TestAddBookFlagsDuplicates(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	ctx := context.Background()
	catalogID := createCatalog(t, db, "lib")

	first := addBook(t, svc, catalogID, "copy1.fb2", "Same Book")

	second, created, err := svc.AddBook(ctx, AddBookOptions{
		Filename:       "copy2.fb2",
		Path:           "lib",
		CatalogID:      catalogID,
		Ext:            "fb2",
		Title:          "Same Book",
		Filesize:       1024,
		FindDuplicates: true,
	})
	require.NoError(t, err)
	require.True(t, created)
	assert.Equal(t, first.ID, second.DuplicateID)

	// With detection off the new row stays canonical.
	third, created, err := svc.AddBook(ctx, AddBookOptions{
		Filename:  "copy3.fb2",
		Path:      "lib",
		CatalogID: catalogID,
		Ext:       "fb2",
		Title:     "Same Book",
		Filesize:  1024,
	})
	require.NoError(t, err)
	require.True(t, created)
	assert.Zero(t, third.DuplicateID)
}

func TestFindDuplicateIgnoresFlaggedRows(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	ctx := context.Background()
	catalogID := createCatalog(t, db, "lib")

	first := addBook(t, svc, catalogID, "copy1.fb2", "Same Book")

	// The second copy is flagged against the first; a third lookup must still
	// resolve to the canonical row, not the flagged one.
	_, _, err := svc.AddBook(ctx, AddBookOptions{
		Filename:       "copy2.fb2",
		Path:           "lib",
		CatalogID:      catalogID,
		Ext:            "fb2",
		Title:          "Same Book",
		Filesize:       1024,
		FindDuplicates: true,
	})
	require.NoError(t, err)

	id, err := svc.FindDuplicate(ctx, "Same Book", "fb2", 1024)
	require.NoError(t, err)
	assert.Equal(t, first.ID, id)
}

func TestRetrieveNotFound(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)

	_, err := svc.Retrieve(context.Background(), 9999)
	require.Error(t, err)

	var codeErr *errcodes.Error
	require.ErrorAs(t, err, &codeErr)
	assert.Equal(t, 404, codeErr.HTTPCode)
	assert.Equal(t, "not_found", codeErr.Code)
}

func TestAttachCover(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	ctx := context.Background()
	catalogID := createCatalog(t, db, "lib")

	book := addBook(t, svc, catalogID, "book.fb2", "Covered")

	require.NoError(t, svc.AttachCover(ctx, book.ID, "1.png", "image/png"))

	updated, err := svc.Retrieve(ctx, book.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.Cover)
	assert.Equal(t, "1.png", *updated.Cover)
	require.NotNil(t, updated.CoverType)
	assert.Equal(t, "image/png", *updated.CoverType)

	err = svc.AttachCover(ctx, 9999, "1.png", "image/png")
	require.Error(t, err)
}

func TestLinkAuthorAndGenre(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	ctx := context.Background()
	catalogID := createCatalog(t, db, "lib")

	book := addBook(t, svc, catalogID, "book.fb2", "Linked")

	author := &models.Author{LastName: "Tolstoy", SearchName: "tolstoy "}
	_, err := db.NewInsert().Model(author).Exec(ctx)
	require.NoError(t, err)

	genre := &models.Genre{Code: "sf", Section: "SF", Subsection: "SF"}
	_, err = db.NewInsert().Model(genre).Exec(ctx)
	require.NoError(t, err)

	require.NoError(t, svc.LinkAuthor(ctx, book.ID, author.ID))
	// Linking twice is a no-op.
	require.NoError(t, svc.LinkAuthor(ctx, book.ID, author.ID))
	require.NoError(t, svc.LinkGenre(ctx, book.ID, genre.ID))
	require.NoError(t, svc.LinkGenre(ctx, book.ID, genre.ID))

	count, err := db.NewSelect().Model((*models.BookAuthor)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.Error(t, svc.LinkAuthor(ctx, 9999, author.ID))
	require.Error(t, svc.LinkAuthor(ctx, book.ID, 9999))
	require.Error(t, svc.LinkGenre(ctx, book.ID, 9999))
}

func TestTitleBuckets(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	ctx := context.Background()
	catalogID := createCatalog(t, db, "lib")

	addBook(t, svc, catalogID, "a.fb2", "Alpha")
	addBook(t, svc, catalogID, "b.fb2", "Beta")
	addBook(t, svc, catalogID, "c.fb2", "Bravo")

	buckets, err := svc.TitleBuckets(ctx, "", false)
	require.NoError(t, err)
	require.Len(t, buckets, 2)
	assert.Equal(t, Bucket{Prefix: "a", Count: 1}, buckets[0])
	assert.Equal(t, Bucket{Prefix: "b", Count: 2}, buckets[1])

	buckets, err = svc.TitleBuckets(ctx, "b", false)
	require.NoError(t, err)
	require.Len(t, buckets, 2)
	assert.Equal(t, Bucket{Prefix: "be", Count: 1}, buckets[0])
	assert.Equal(t, Bucket{Prefix: "br", Count: 1}, buckets[1])
}

func TestListByTitlePrefix(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	ctx := context.Background()
	catalogID := createCatalog(t, db, "lib")

	addBook(t, svc, catalogID, "a.fb2", "Alpha")
	addBook(t, svc, catalogID, "b.fb2", "Beta")
	addBook(t, svc, catalogID, "c.fb2", "Bravo")

	rows, total, err := svc.ListByTitlePrefix(ctx, "B", ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, rows, 2)
	assert.Equal(t, "Beta", rows[0].Title)
	assert.Equal(t, "Bravo", rows[1].Title)

	// Leading % makes it a substring search.
	rows, total, err = svc.ListByTitlePrefix(ctx, "%rav", ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, rows, 1)
	assert.Equal(t, "Bravo", rows[0].Title)
}

func TestListByAuthorPagination(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	ctx := context.Background()
	catalogID := createCatalog(t, db, "lib")

	author := &models.Author{LastName: "Prolific", SearchName: "prolific "}
	_, err := db.NewInsert().Model(author).Exec(ctx)
	require.NoError(t, err)

	titles := []string{"Book A", "Book B", "Book C", "Book D", "Book E"}
	for _, title := range titles {
		book := addBook(t, svc, catalogID, title+".fb2", title)
		require.NoError(t, svc.LinkAuthor(ctx, book.ID, author.ID))
	}

	rows, total, err := svc.ListByAuthor(ctx, author.ID, ListOptions{Limit: 2, Page: 1})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, rows, 2)
	assert.Equal(t, "Book C", rows[0].Title)
	assert.Equal(t, "Book D", rows[1].Title)

	// Limit 0 returns everything.
	rows, total, err = svc.ListByAuthor(ctx, author.ID, ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Len(t, rows, 5)
}

func TestRecent(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	ctx := context.Background()
	catalogID := createCatalog(t, db, "lib")

	addBook(t, svc, catalogID, "a.fb2", "First")
	second := addBook(t, svc, catalogID, "b.fb2", "Second")
	third := addBook(t, svc, catalogID, "c.fb2", "Third")

	rows, err := svc.Recent(ctx, 2, false)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, third.ID, rows[0].ID)
	assert.Equal(t, second.ID, rows[1].ID)
}

func TestSummary(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	ctx := context.Background()
	catalogID := createCatalog(t, db, "lib")

	addBook(t, svc, catalogID, "a.fb2", "Only Book")

	author := &models.Author{LastName: "Solo", SearchName: "solo "}
	_, err := db.NewInsert().Model(author).Exec(ctx)
	require.NoError(t, err)

	summary, err := svc.Summary(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, Summary{Books: 1, Authors: 1, Catalogs: 1}, summary)
}
