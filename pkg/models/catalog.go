package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Catalog is a node in the directory tree of the library. The root of the
// tree is the library directory itself and is represented by parent id 0
// rather than by a row. Path is the full slash-separated path relative to the
// library root; Name is its last segment.
type Catalog struct {
	bun.BaseModel `bun:"table:catalogs,alias:c"`

	ID           int       `bun:",pk,nullzero" json:"id"`
	ParentID     int       `bun:"parent_id" json:"parent_id"`
	Name         string    `bun:",nullzero" json:"name"`
	Path         string    `bun:"path" json:"path"`
	CatalogType  int       `bun:"catalog_type" json:"catalog_type"`
	RegisteredAt time.Time `json:"registered_at"`
}
