package models

import (
	"strings"

	"github.com/uptrace/bun"
)

type Author struct {
	bun.BaseModel `bun:"table:authors,alias:a"`

	ID         int    `bun:",pk,nullzero" json:"id"`
	FirstName  string `bun:"first_name" json:"first_name"`
	LastName   string `bun:"last_name" json:"last_name"`
	SearchName string `bun:",nullzero" json:"search_name"`

	// BookCount is populated by list queries that aggregate over book_authors.
	BookCount int `bun:",scanonly" json:"book_count,omitempty"`
}

// FullName renders the author for display, last name first.
func (a *Author) FullName() string {
	return strings.TrimSpace(a.LastName + " " + a.FirstName)
}
