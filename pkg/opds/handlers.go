package opds

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
	"github.com/vseklecov/sopds/pkg/config"
	"github.com/vseklecov/sopds/pkg/errcodes"
	"github.com/vseklecov/sopds/pkg/fileutils"
)

// Handlers holds the OPDS HTTP handlers.
type Handlers struct {
	svc *Service
	cfg *config.Config
}

// NewHandlers creates the OPDS handlers.
func NewHandlers(db *bun.DB, cfg *config.Config) *Handlers {
	return &Handlers{
		svc: NewService(db, cfg),
		cfg: cfg,
	}
}

// getBaseURL reconstructs the external base URL from the request, honoring
// reverse-proxy forwarding headers.
func getBaseURL(c echo.Context) string {
	scheme := "http"
	if c.Request().TLS != nil {
		scheme = "https"
	}
	if proto := c.Request().Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	host := c.Request().Host
	prefix := c.Request().Header.Get("X-Forwarded-Prefix")
	return scheme + "://" + host + prefix
}

// getPage parses the page query parameter, defaulting to zero.
func getPage(c echo.Context) int {
	page, err := strconv.Atoi(c.QueryParam("page"))
	if err != nil || page < 0 {
		return 0
	}
	return page
}

func getIntParam(c echo.Context, name string) (int, error) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil {
		return 0, errcodes.ValidationError(fmt.Sprintf("invalid %s", name))
	}
	return id, nil
}

// respondXML writes the value as indented XML with the XML declaration.
func respondXML(c echo.Context, contentType string, v interface{}) error {
	c.Response().Header().Set(echo.HeaderContentType, contentType+"; charset=utf-8")
	c.Response().WriteHeader(http.StatusOK)
	if _, err := c.Response().Write([]byte(xml.Header)); err != nil {
		return errors.WithStack(err)
	}
	enc := xml.NewEncoder(c.Response())
	enc.Indent("", "  ")
	if err := enc.Encode(v); err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(enc.Flush())
}

func (h *Handlers) getRoot(c echo.Context) error {
	feed, err := h.svc.RootFeed(c.Request().Context(), getBaseURL(c))
	if err != nil {
		return err
	}
	return respondXML(c, MimeTypeNavigation, feed)
}

func (h *Handlers) getCatalogs(c echo.Context) error {
	catalogID := 0
	if c.Param("id") != "" {
		var err error
		catalogID, err = getIntParam(c, "id")
		if err != nil {
			return err
		}
	}
	feed, err := h.svc.CatalogFeed(c.Request().Context(), getBaseURL(c), catalogID, getPage(c))
	if err != nil {
		return err
	}
	return respondXML(c, MimeTypeNavigation, feed)
}

func (h *Handlers) getAuthors(c echo.Context) error {
	feed, err := h.svc.AuthorsFeed(c.Request().Context(), getBaseURL(c), c.QueryParam("prefix"), getPage(c))
	if err != nil {
		return err
	}
	return respondXML(c, MimeTypeNavigation, feed)
}

func (h *Handlers) getAuthorBooks(c echo.Context) error {
	authorID, err := getIntParam(c, "id")
	if err != nil {
		return err
	}
	feed, err := h.svc.AuthorBooksFeed(c.Request().Context(), getBaseURL(c), authorID, getPage(c))
	if err != nil {
		return err
	}
	return respondXML(c, MimeTypeAcquisition, feed)
}

func (h *Handlers) getTitles(c echo.Context) error {
	feed, err := h.svc.TitlesFeed(c.Request().Context(), getBaseURL(c), c.QueryParam("prefix"), getPage(c))
	if err != nil {
		return err
	}
	return respondXML(c, MimeTypeNavigation, feed)
}

func (h *Handlers) getGenres(c echo.Context) error {
	feed, err := h.svc.GenresFeed(c.Request().Context(), getBaseURL(c))
	if err != nil {
		return err
	}
	return respondXML(c, MimeTypeNavigation, feed)
}

func (h *Handlers) getGenre(c echo.Context) error {
	genreID, err := getIntParam(c, "id")
	if err != nil {
		return err
	}
	feed, err := h.svc.GenreFeed(c.Request().Context(), getBaseURL(c), genreID)
	if err != nil {
		return err
	}
	return respondXML(c, MimeTypeNavigation, feed)
}

func (h *Handlers) getGenreBooks(c echo.Context) error {
	genreID, err := getIntParam(c, "id")
	if err != nil {
		return err
	}
	feed, err := h.svc.GenreBooksFeed(c.Request().Context(), getBaseURL(c), genreID, getPage(c))
	if err != nil {
		return err
	}
	return respondXML(c, MimeTypeAcquisition, feed)
}

func (h *Handlers) getRecent(c echo.Context) error {
	feed, err := h.svc.RecentFeed(c.Request().Context(), getBaseURL(c))
	if err != nil {
		return err
	}
	return respondXML(c, MimeTypeAcquisition, feed)
}

func (h *Handlers) getSearch(c echo.Context) error {
	terms := c.QueryParam("searchTerms")
	if terms == "" {
		terms = c.QueryParam("q")
	}
	feed, err := h.svc.SearchFeed(
		c.Request().Context(),
		getBaseURL(c),
		terms,
		c.QueryParam("searchType"),
		getPage(c),
	)
	if err != nil {
		return err
	}
	return respondXML(c, MimeTypeAcquisition, feed)
}

func (h *Handlers) getOpenSearch(c echo.Context) error {
	desc := NewOpenSearchDescription(
		"SOPDS",
		"Search the book catalog",
		getBaseURL(c)+"/opds/search?searchTerms={searchTerms}",
	)
	return respondXML(c, MimeTypeOpenSearch, desc)
}

func (h *Handlers) getBook(c echo.Context) error {
	bookID, err := getIntParam(c, "id")
	if err != nil {
		return err
	}
	feed, err := h.svc.BookFeed(c.Request().Context(), getBaseURL(c), bookID)
	if err != nil {
		return err
	}
	return respondXML(c, MimeTypeAcquisition, feed)
}

func (h *Handlers) downloadBook(c echo.Context) error {
	bookID, err := getIntParam(c, "id")
	if err != nil {
		return err
	}
	book, err := h.svc.books.Retrieve(c.Request().Context(), bookID)
	if err != nil {
		return err
	}

	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="%s"`, fileutils.DownloadFilename(book.Filename)))

	if book.InZip() {
		return h.streamFromZip(c, filepath.Join(h.cfg.LibraryPath, filepath.FromSlash(book.Path)), book.Filename, book.Format)
	}

	fullPath := filepath.Join(h.cfg.LibraryPath, filepath.FromSlash(book.Path), book.Filename)
	c.Response().Header().Set(echo.HeaderContentType, FormatMimeType(book.Format))
	return c.File(fullPath)
}

// streamFromZip copies one archive entry to the response without extracting
// the whole archive.
func (h *Handlers) streamFromZip(c echo.Context, zipPath, filename, format string) error {
	reader, err := zip.OpenReader(zipPath)
	if err != nil {
		return errors.WithStack(err)
	}
	defer reader.Close()

	for _, f := range reader.File {
		if f.Name != filename {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return errors.WithStack(err)
		}
		defer rc.Close()

		c.Response().Header().Set(echo.HeaderContentType, FormatMimeType(format))
		c.Response().Header().Set(echo.HeaderContentLength, strconv.FormatUint(f.UncompressedSize64, 10))
		c.Response().WriteHeader(http.StatusOK)
		_, err = io.Copy(c.Response(), rc)
		return errors.WithStack(err)
	}

	return errcodes.NotFound("Book file")
}

func (h *Handlers) getCover(c echo.Context) error {
	bookID, err := getIntParam(c, "id")
	if err != nil {
		return err
	}
	book, err := h.svc.books.Retrieve(c.Request().Context(), bookID)
	if err != nil {
		return err
	}
	if book.Cover == nil {
		return errcodes.NotFound("Cover")
	}

	if book.CoverType != nil {
		c.Response().Header().Set(echo.HeaderContentType, *book.CoverType)
	}
	return c.File(filepath.Join(h.cfg.CoverPath, *book.Cover))
}
