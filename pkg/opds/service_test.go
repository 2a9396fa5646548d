package opds

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/vseklecov/sopds/pkg/books"
	"github.com/vseklecov/sopds/pkg/catalogs"
	"github.com/vseklecov/sopds/pkg/config"
	"github.com/vseklecov/sopds/pkg/migrations"
	"github.com/vseklecov/sopds/pkg/models"
)

const baseURL = "http://library.test"

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

func testConfig() *config.Config {
	return &config.Config{
		MaxItems:     2,
		SplitAuthors: 3,
		SplitTitles:  3,
	}
}

func seedBook(t *testing.T, db *bun.DB, title, lastName string) *models.Book {
	t.Helper()
	ctx := context.Background()

	catalogID, err := catalogs.NewService(db).ResolveTree(ctx, "lib", models.CatalogTypeNormal)
	require.NoError(t, err)

	bookSvc := books.NewService(db)
	book, created, err := bookSvc.AddBook(ctx, books.AddBookOptions{
		Filename:    title + ".fb2",
		Path:        "lib",
		CatalogID:   catalogID,
		CatalogType: models.CatalogTypeNormal,
		Ext:         "fb2",
		Title:       title,
		Lang:        "ru",
		Filesize:    100,
	})
	require.NoError(t, err)
	require.True(t, created)

	author := &models.Author{LastName: lastName, SearchName: lastName + " "}
	_, err = db.NewInsert().Model(author).On("CONFLICT DO NOTHING").Exec(ctx)
	require.NoError(t, err)
	found := &models.Author{}
	require.NoError(t, db.NewSelect().Model(found).Where("a.search_name = ? COLLATE NOCASE", lastName+" ").Scan(ctx))
	require.NoError(t, bookSvc.LinkAuthor(ctx, book.ID, found.ID))

	return book
}

func TestIsLeaf(t *testing.T) {
	// Threshold 0 disables bucketing entirely.
	assert.True(t, isLeaf("a", 10000, 0))
	// Small groups are listed directly.
	assert.True(t, isLeaf("a", 3, 5))
	assert.False(t, isLeaf("a", 6, 5))
	// Very long prefixes stop splitting regardless of count.
	assert.True(t, isLeaf("abcdefghijk", 6, 5))
}

func TestFormatMimeType(t *testing.T) {
	assert.Equal(t, MimeTypeFB2, FormatMimeType("fb2"))
	assert.Equal(t, MimeTypeEPUB, FormatMimeType("epub"))
	assert.Equal(t, MimeTypeMobi, FormatMimeType("mobi"))
	assert.Equal(t, "application/octet-stream", FormatMimeType("pdf"))
}

func TestRootFeed(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db, testConfig())
	seedBook(t, db, "Solo", "Author")

	feed, err := svc.RootFeed(context.Background(), baseURL)
	require.NoError(t, err)

	assert.Equal(t, "sopds:root", feed.ID)
	require.Len(t, feed.Entries, 5)
	assert.Equal(t, "By Folders", feed.Entries[0].Title)
	assert.Equal(t, "By Authors", feed.Entries[1].Title)
	require.Len(t, feed.Entries[1].Links, 1)
	assert.Equal(t, baseURL+"/opds/authors", feed.Entries[1].Links[0].Href)

	var search Link
	for _, l := range feed.Links {
		if l.Rel == RelSearch {
			search = l
		}
	}
	assert.Equal(t, baseURL+"/opds/opensearch.xml", search.Href)
}

func TestCatalogFeed(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db, testConfig())
	ctx := context.Background()

	book := seedBook(t, db, "Solo", "Author")

	// The root level shows the top directory.
	feed, err := svc.CatalogFeed(ctx, baseURL, 0, 0)
	require.NoError(t, err)
	require.Len(t, feed.Entries, 1)
	assert.Equal(t, "lib", feed.Entries[0].Title)

	// Inside it, the book shows as an acquisition entry.
	feed, err = svc.CatalogFeed(ctx, baseURL, book.CatalogID, 0)
	require.NoError(t, err)
	require.Len(t, feed.Entries, 1)
	entry := feed.Entries[0]
	assert.Equal(t, "Solo", entry.Title)
	assert.Equal(t, "ru", entry.Language)
	require.Len(t, entry.Authors, 1)
	assert.Equal(t, "Author", entry.Authors[0].Name)

	var acq Link
	for _, l := range entry.Links {
		if l.Rel == RelAcquisition {
			acq = l
		}
	}
	assert.Equal(t, MimeTypeFB2, acq.Type)
	assert.Contains(t, acq.Href, "/download")
}

func TestAuthorsFeedBucketsThenLeaf(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db, testConfig())
	ctx := context.Background()

	seedBook(t, db, "Book One", "Tolstoy")
	seedBook(t, db, "Book Two", "Turgenev")
	seedBook(t, db, "Book Three", "Tynyanov")
	seedBook(t, db, "Book Four", "Pushkin")

	// Four authors exceed the threshold of three, so the top level buckets.
	feed, err := svc.AuthorsFeed(ctx, baseURL, "", 0)
	require.NoError(t, err)
	require.Len(t, feed.Entries, 2)
	assert.Equal(t, "P", feed.Entries[0].Title)
	assert.Equal(t, "T", feed.Entries[1].Title)
	assert.Equal(t, baseURL+"/opds/authors?prefix=t", feed.Entries[1].Links[0].Href)

	// Under "t" only three authors remain, which fits the threshold.
	feed, err = svc.AuthorsFeed(ctx, baseURL, "t", 0)
	require.NoError(t, err)
	// MaxItems is 2, so the first page holds two entries and links onward.
	require.Len(t, feed.Entries, 2)
	assert.Equal(t, "Tolstoy", feed.Entries[0].Title)
	assert.Equal(t, "1 books", feed.Entries[0].Content.Value)

	var next Link
	for _, l := range feed.Links {
		if l.Rel == RelNext {
			next = l
		}
	}
	assert.Equal(t, baseURL+"/opds/authors?prefix=t&page=1", next.Href)
}

func TestTitlesFeedLeaf(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db, testConfig())
	ctx := context.Background()

	seedBook(t, db, "Alpha", "Author")
	seedBook(t, db, "Beta", "Author")

	feed, err := svc.TitlesFeed(ctx, baseURL, "", 0)
	require.NoError(t, err)
	require.Len(t, feed.Entries, 2)
	assert.Equal(t, "Alpha", feed.Entries[0].Title)
	assert.Equal(t, "Beta", feed.Entries[1].Title)
}

func TestSearchFeed(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db, testConfig())
	ctx := context.Background()

	seedBook(t, db, "War and Peace", "Tolstoy")
	seedBook(t, db, "Peaceful Days", "Other")

	feed, err := svc.SearchFeed(ctx, baseURL, "peace", "", 0)
	require.NoError(t, err)
	assert.Len(t, feed.Entries, 2)

	feed, err = svc.SearchFeed(ctx, baseURL, "tolst", "authors", 0)
	require.NoError(t, err)
	require.Len(t, feed.Entries, 1)
	assert.Equal(t, "Tolstoy", feed.Entries[0].Title)

	// An empty query returns an empty feed rather than everything.
	feed, err = svc.SearchFeed(ctx, baseURL, "", "", 0)
	require.NoError(t, err)
	assert.Empty(t, feed.Entries)
}

func TestBookFeedNotFound(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db, testConfig())

	_, err := svc.BookFeed(context.Background(), baseURL, 9999)
	require.Error(t, err)
}
