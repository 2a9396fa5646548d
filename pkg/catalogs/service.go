package catalogs

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
	"github.com/vseklecov/sopds/pkg/errcodes"
	"github.com/vseklecov/sopds/pkg/models"
)

// Item is one row of a catalog listing: a child catalog (KindCatalog) or a
// book filed directly under the catalog (KindBook). Listings interleave both,
// ordered by kind then title, so subdirectories always come first.
type Item struct {
	Kind  int    `bun:"kind"`
	ID    int    `bun:"id"`
	Title string `bun:"title"`
}

const (
	KindCatalog = 1
	KindBook    = 2
)

type ListItemsOptions struct {
	Limit             int
	Page              int
	IncludeDuplicates bool
}

type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db}
}

// normalizePath converts a path to the canonical slash-separated relative
// form used as the catalog key.
func normalizePath(path string) string {
	return strings.Trim(strings.ReplaceAll(path, "\\", "/"), "/")
}

// Find returns the id of the catalog with the given path, or 0 when no such
// catalog exists.
func (svc *Service) Find(ctx context.Context, path string) (int, error) {
	catalog := &models.Catalog{}

	err := svc.db.
		NewSelect().
		Model(catalog).
		Column("c.id").
		Where("c.path = ?", normalizePath(path)).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, errors.WithStack(err)
	}

	return catalog.ID, nil
}

// Retrieve returns a catalog by id.
func (svc *Service) Retrieve(ctx context.Context, id int) (*models.Catalog, error) {
	catalog := &models.Catalog{}

	err := svc.db.
		NewSelect().
		Model(catalog).
		Where("c.id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Catalog")
		}
		return nil, errors.WithStack(err)
	}

	return catalog, nil
}

// ResolveTree finds or creates the catalog node for a path, creating every
// missing ancestor first. The empty path is the library root and resolves to
// id 0 without creating anything. Intermediate nodes are always plain
// directories; catalogType applies to the final node only.
func (svc *Service) ResolveTree(ctx context.Context, path string, catalogType int) (int, error) {
	path = normalizePath(path)
	if path == "" {
		return 0, nil
	}

	segments := strings.Split(path, "/")
	parentID := 0
	partial := ""

	for i, segment := range segments {
		if partial == "" {
			partial = segment
		} else {
			partial = partial + "/" + segment
		}

		id, err := svc.Find(ctx, partial)
		if err != nil {
			return 0, err
		}
		if id == 0 {
			nodeType := models.CatalogTypeNormal
			if i == len(segments)-1 {
				nodeType = catalogType
			}
			catalog := &models.Catalog{
				ParentID:     parentID,
				Name:         segment,
				Path:         partial,
				CatalogType:  nodeType,
				RegisteredAt: time.Now(),
			}
			_, err = svc.db.
				NewInsert().
				Model(catalog).
				On("CONFLICT DO NOTHING").
				Exec(ctx)
			if err != nil {
				return 0, errors.WithStack(err)
			}
			// Re-read in case a concurrent scan created the node first.
			id, err = svc.Find(ctx, partial)
			if err != nil {
				return 0, err
			}
			if id == 0 {
				return 0, errors.Errorf("failed to resolve catalog node %q", partial)
			}
		}
		parentID = id
	}

	return parentID, nil
}

// ZipIsScanned returns the catalog id of an already indexed zip archive, or 0
// when the archive has never been scanned.
func (svc *Service) ZipIsScanned(ctx context.Context, path string) (int, error) {
	catalog := &models.Catalog{}

	err := svc.db.
		NewSelect().
		Model(catalog).
		Column("c.id").
		Where("c.path = ? AND c.catalog_type = ?", normalizePath(path), models.CatalogTypeZip).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, errors.WithStack(err)
	}

	return catalog.ID, nil
}

// ListItems lists the children of a catalog: subcatalogs first, then books,
// both ordered by title. Returns the page of rows plus the total count.
func (svc *Service) ListItems(ctx context.Context, catalogID int, opts ListItemsOptions) ([]Item, int, error) {
	var items []Item

	dupFilter := " AND b.duplicate_id = 0"
	if opts.IncludeDuplicates {
		dupFilter = ""
	}

	// LIMIT -1 is SQLite for "no limit"; needed because OFFSET requires LIMIT.
	limit := -1
	offset := 0
	if opts.Limit > 0 {
		limit = opts.Limit
		offset = opts.Limit * opts.Page
	}

	err := svc.db.NewRaw(`
		SELECT ? AS kind, c.id AS id, c.name AS title FROM catalogs c WHERE c.parent_id = ?
		UNION ALL
		SELECT ? AS kind, b.id AS id, b.title AS title FROM books b WHERE b.catalog_id = ?`+dupFilter+`
		ORDER BY kind, title
		LIMIT ? OFFSET ?`,
		KindCatalog, catalogID, KindBook, catalogID, limit, offset,
	).Scan(ctx, &items)
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}

	var total int
	err = svc.db.NewRaw(`
		SELECT (SELECT count(*) FROM catalogs c WHERE c.parent_id = ?)
		     + (SELECT count(*) FROM books b WHERE b.catalog_id = ?`+dupFilter+`)`,
		catalogID, catalogID,
	).Scan(ctx, &total)
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}

	return items, total, nil
}

// Count returns the total number of catalog nodes.
func (svc *Service) Count(ctx context.Context) (int, error) {
	count, err := svc.db.
		NewSelect().
		Model((*models.Catalog)(nil)).
		Count(ctx)
	return count, errors.WithStack(err)
}
