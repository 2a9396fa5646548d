package models

import (
	"github.com/uptrace/bun"
)

// Genre is an FB2 genre code with its human-readable section and subsection
// labels. Codes found while scanning that aren't part of the seeded taxonomy
// are created on the fly with UnknownGenreLabel for both labels.
type Genre struct {
	bun.BaseModel `bun:"table:genres,alias:g"`

	ID         int    `bun:",pk,nullzero" json:"id"`
	Code       string `bun:",nullzero" json:"code"`
	Section    string `bun:"section" json:"section"`
	Subsection string `bun:"subsection" json:"subsection"`

	// BookCount is populated by aggregate queries over book_genres.
	BookCount int `bun:",scanonly" json:"book_count,omitempty"`
}
