package opds

import (
	"archive/zip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/vseklecov/sopds/pkg/config"
	"github.com/vseklecov/sopds/pkg/errcodes"
	"github.com/vseklecov/sopds/pkg/models"
)

func setupServer(t *testing.T, db *bun.DB, cfg *config.Config) *echo.Echo {
	t.Helper()

	e := echo.New()
	e.HTTPErrorHandler = errcodes.NewHandler().Handle
	RegisterRoutes(e, db, cfg)
	return e
}

func TestGetRoot(t *testing.T) {
	db := setupTestDB(t)
	e := setupServer(t, db, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/opds", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "application/atom+xml")
	assert.Contains(t, rec.Body.String(), "<?xml")
	assert.Contains(t, rec.Body.String(), "sopds:root")
}

func TestGetRootHonorsForwardingHeaders(t *testing.T) {
	db := setupTestDB(t)
	e := setupServer(t, db, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/opds", nil)
	req.Host = "books.example.com"
	req.Header.Set("X-Forwarded-Proto", "https")
	req.Header.Set("X-Forwarded-Prefix", "/shelf")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "https://books.example.com/shelf/opds")
}

func TestGetOpenSearch(t *testing.T) {
	db := setupTestDB(t)
	e := setupServer(t, db, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/opds/opensearch.xml", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "{searchTerms}")
}

func TestGetBookNotFound(t *testing.T) {
	db := setupTestDB(t)
	e := setupServer(t, db, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/opds/books/9999", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/opds/books/abc", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestDownloadBook(t *testing.T) {
	db := setupTestDB(t)
	cfg := testConfig()
	cfg.LibraryPath = t.TempDir()
	e := setupServer(t, db, cfg)
	ctx := context.Background()

	require.NoError(t, os.MkdirAll(filepath.Join(cfg.LibraryPath, "lib"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.LibraryPath, "lib", "book.fb2"), []byte("<FictionBook/>"), 0644))

	book := seedBook(t, db, "Plain", "Author")
	_, err := db.NewUpdate().
		Model((*models.Book)(nil)).
		Set("filename = ?", "book.fb2").
		Where("id = ?", book.ID).
		Exec(ctx)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/opds/books/1/download", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<FictionBook/>", rec.Body.String())
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), `filename="book.fb2"`)
}

func TestDownloadBookFromZip(t *testing.T) {
	db := setupTestDB(t)
	cfg := testConfig()
	cfg.LibraryPath = t.TempDir()
	e := setupServer(t, db, cfg)
	ctx := context.Background()

	zipFile, err := os.Create(filepath.Join(cfg.LibraryPath, "archive.zip"))
	require.NoError(t, err)
	zw := zip.NewWriter(zipFile)
	w, err := zw.Create("inside.fb2")
	require.NoError(t, err)
	_, err = w.Write([]byte("zipped content"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, zipFile.Close())

	catalog := &models.Catalog{Name: "archive.zip", Path: "archive.zip", CatalogType: models.CatalogTypeZip}
	_, err = db.NewInsert().Model(catalog).Exec(ctx)
	require.NoError(t, err)

	book := &models.Book{
		Filename:    "inside.fb2",
		Path:        "archive.zip",
		Format:      "fb2",
		Title:       "Zipped",
		SearchTitle: "zipped",
		CatalogID:   catalog.ID,
		CatalogType: models.CatalogTypeZip,
	}
	_, err = db.NewInsert().Model(book).Exec(ctx)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/opds/books/1/download", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "zipped content", rec.Body.String())
	assert.Equal(t, MimeTypeFB2, rec.Header().Get(echo.HeaderContentType))
}

func TestGetCover(t *testing.T) {
	db := setupTestDB(t)
	cfg := testConfig()
	cfg.CoverPath = t.TempDir()
	e := setupServer(t, db, cfg)
	ctx := context.Background()

	book := seedBook(t, db, "Covered", "Author")

	// No cover recorded yet.
	req := httptest.NewRequest(http.MethodGet, "/opds/books/1/cover", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, os.WriteFile(filepath.Join(cfg.CoverPath, "1.png"), []byte("png bytes"), 0644))
	_, err := db.NewUpdate().
		Model((*models.Book)(nil)).
		Set("cover = ?", "1.png").
		Set("cover_type = ?", "image/png").
		Where("id = ?", book.ID).
		Exec(ctx)
	require.NoError(t, err)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "png bytes", rec.Body.String())
}
