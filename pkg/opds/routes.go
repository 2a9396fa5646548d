package opds

import (
	"github.com/labstack/echo/v4"
	"github.com/uptrace/bun"
	"github.com/vseklecov/sopds/pkg/config"
)

// RegisterRoutes mounts the OPDS catalog under /opds.
func RegisterRoutes(e *echo.Echo, db *bun.DB, cfg *config.Config) {
	h := NewHandlers(db, cfg)

	g := e.Group("/opds")
	g.GET("", h.getRoot)
	g.GET("/", h.getRoot)
	g.GET("/opensearch.xml", h.getOpenSearch)
	g.GET("/catalogs", h.getCatalogs)
	g.GET("/catalogs/:id", h.getCatalogs)
	g.GET("/authors", h.getAuthors)
	g.GET("/authors/list", h.getAuthors)
	g.GET("/authors/:id/books", h.getAuthorBooks)
	g.GET("/titles", h.getTitles)
	g.GET("/titles/list", h.getTitles)
	g.GET("/genres", h.getGenres)
	g.GET("/genres/:id", h.getGenre)
	g.GET("/genres/:id/books", h.getGenreBooks)
	g.GET("/recent", h.getRecent)
	g.GET("/search", h.getSearch)
	g.GET("/books/:id", h.getBook)
	g.GET("/books/:id/download", h.downloadBook)
	g.GET("/books/:id/cover", h.getCover)
}
