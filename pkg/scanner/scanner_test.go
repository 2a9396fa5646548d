package scanner

import (
	"archive/zip"
	"context"
	"database/sql"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/vseklecov/sopds/pkg/authors"
	"github.com/vseklecov/sopds/pkg/config"
	"github.com/vseklecov/sopds/pkg/migrations"
	"github.com/vseklecov/sopds/pkg/models"
)

var tinyPNG = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0a, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

const fb2WithAuthor = `<?xml version="1.0" encoding="UTF-8"?>
<FictionBook xmlns="http://www.gribuser.ru/xml/fictionbook/2.0" xmlns:l="http://www.w3.org/1999/xlink">
  <description>
    <title-info>
      <genre>sf</genre>
      <author><first-name>Лев</first-name><last-name>Толстой</last-name></author>
      <book-title>Война и мир</book-title>
      <lang>ru</lang>
      <coverpage><image l:href="#cover.png"/></coverpage>
    </title-info>
  </description>
  <binary id="cover.png" content-type="image/png">%s</binary>
</FictionBook>`

const fb2Anonymous = `<?xml version="1.0" encoding="UTF-8"?>
<FictionBook xmlns="http://www.gribuser.ru/xml/fictionbook/2.0">
  <description>
    <title-info>
      <book-title>Orphan Work</book-title>
    </title-info>
  </description>
</FictionBook>`

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

func setupLibrary(t *testing.T) *config.Config {
	t.Helper()

	libraryPath := t.TempDir()

	content := []byte(fmt.Sprintf(fb2WithAuthor, base64.StdEncoding.EncodeToString(tinyPNG)))

	require.NoError(t, os.MkdirAll(filepath.Join(libraryPath, "fiction", "russian"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(libraryPath, "fiction", "russian", "tolstoy.fb2"), content, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(libraryPath, "broken.fb2"), []byte("not xml"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(libraryPath, "notes.txt"), []byte("ignored"), 0644))

	zipFile, err := os.Create(filepath.Join(libraryPath, "archive.zip"))
	require.NoError(t, err)
	zw := zip.NewWriter(zipFile)
	w, err := zw.Create("orphan.fb2")
	require.NoError(t, err)
	_, err = w.Write([]byte(fb2Anonymous))
	require.NoError(t, err)
	w, err = zw.Create("readme.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("ignored"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, zipFile.Close())

	return &config.Config{
		LibraryPath:    libraryPath,
		CoverPath:      t.TempDir(),
		Formats:        []string{"fb2"},
		ScanZips:       true,
		ExtractCovers:  true,
		FindDuplicates: true,
	}
}

func TestRun(t *testing.T) {
	db := setupTestDB(t)
	cfg := setupLibrary(t)
	ctx := context.Background()

	stats, err := New(cfg, db).Run(ctx, Options{Full: true})
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Files)
	assert.Equal(t, 2, stats.Added)
	assert.Equal(t, 1, stats.Errors)
	assert.Equal(t, 0, stats.Skipped)
	assert.Equal(t, 0, stats.Duplicates)

	var booksRows []*models.Book
	require.NoError(t, db.NewSelect().Model(&booksRows).Order("b.id ASC").Scan(ctx))
	require.Len(t, booksRows, 2)

	var tolstoy, orphan *models.Book
	for _, b := range booksRows {
		switch b.Filename {
		case "tolstoy.fb2":
			tolstoy = b
		case "orphan.fb2":
			orphan = b
		}
	}
	require.NotNil(t, tolstoy)
	require.NotNil(t, orphan)

	assert.Equal(t, "Война и мир", tolstoy.Title)
	assert.Equal(t, "fiction/russian", tolstoy.Path)
	assert.Equal(t, models.CatalogTypeNormal, tolstoy.CatalogType)
	assert.Equal(t, "ru", tolstoy.Lang)
	require.NotNil(t, tolstoy.Cover)
	coverData, err := os.ReadFile(filepath.Join(cfg.CoverPath, *tolstoy.Cover))
	require.NoError(t, err)
	assert.Equal(t, tinyPNG, coverData)

	assert.Equal(t, "Orphan Work", orphan.Title)
	assert.Equal(t, "archive.zip", orphan.Path)
	assert.Equal(t, models.CatalogTypeZip, orphan.CatalogType)
	assert.True(t, orphan.InZip())

	// The author came from metadata for one book, the sentinel for the other.
	authorSvc := authors.NewService(db)
	rows, err := authorSvc.ForBook(ctx, tolstoy.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Толстой", rows[0].LastName)

	rows, err = authorSvc.ForBook(ctx, orphan.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, authors.UnknownAuthorName, rows[0].LastName)

	// The genre code was registered and linked.
	genreLinks, err := db.NewSelect().Model((*models.BookGenre)(nil)).Where("book_id = ?", tolstoy.ID).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, genreLinks)
}

func TestRunIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	cfg := setupLibrary(t)
	ctx := context.Background()

	scanner := New(cfg, db)
	_, err := scanner.Run(ctx, Options{Full: true})
	require.NoError(t, err)

	stats, err := scanner.Run(ctx, Options{Full: true})
	require.NoError(t, err)

	assert.Equal(t, 0, stats.Added)
	// The already-scanned zip is skipped wholesale, the directory book is
	// skipped after the filename lookup, the broken file errors again.
	assert.Equal(t, 2, stats.Skipped)
	assert.Equal(t, 1, stats.Errors)

	count, err := db.NewSelect().Model((*models.Book)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRunIncrementalSkipsUnchangedFiles(t *testing.T) {
	db := setupTestDB(t)
	cfg := setupLibrary(t)
	ctx := context.Background()

	scanner := New(cfg, db)
	_, err := scanner.Run(ctx, Options{Full: true})
	require.NoError(t, err)

	// Everything predates the cutoff, so nothing is reprocessed.
	stats, err := scanner.Run(ctx, Options{Since: time.Now().Add(time.Hour)})
	require.NoError(t, err)

	assert.Equal(t, 0, stats.Added)
	assert.Equal(t, 0, stats.Errors)
	assert.Equal(t, 3, stats.Skipped)
}
