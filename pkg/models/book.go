package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Catalog entry kinds. Zip archives get their own catalog node so books inside
// an archive can be addressed through it.
const (
	CatalogTypeNormal = 0
	CatalogTypeZip    = 1
)

type Book struct {
	bun.BaseModel `bun:"table:books,alias:b"`

	ID           int       `bun:",pk,nullzero" json:"id"`
	Filename     string    `bun:",nullzero" json:"filename"`
	Path         string    `bun:"path" json:"path"`
	RegisteredAt time.Time `json:"registered_at"`
	Filesize     int64     `json:"filesize"`
	Format       string    `bun:",nullzero" json:"format"`
	Title        string    `bun:",nullzero" json:"title"`
	SearchTitle  string    `bun:",nullzero" json:"search_title"`
	Lang         string    `bun:"lang" json:"lang"`
	CatalogID    int       `json:"catalog_id"`
	CatalogType  int       `bun:"catalog_type" json:"catalog_type"`
	Cover        *string   `json:"cover,omitempty"`
	CoverType    *string   `json:"cover_type,omitempty"`
	DuplicateID  int       `bun:"duplicate_id" json:"duplicate_id"`
}

// InZip reports whether the book lives inside a zip archive, in which case
// Path is the archive's path and Filename the entry name inside it.
func (b *Book) InZip() bool {
	return b.CatalogType == CatalogTypeZip
}

type BookAuthor struct {
	bun.BaseModel `bun:"table:book_authors,alias:ba"`

	BookID   int `bun:",pk" json:"book_id"`
	AuthorID int `bun:",pk" json:"author_id"`
}

type BookGenre struct {
	bun.BaseModel `bun:"table:book_genres,alias:bg"`

	BookID  int `bun:",pk" json:"book_id"`
	GenreID int `bun:",pk" json:"genre_id"`
}
