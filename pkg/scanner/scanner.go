// Package scanner walks the library tree and feeds what it finds into the
// catalog. A scan is a single-writer batch: each file is processed on its
// own, and a failure to parse one book never aborts the pass.
package scanner

import (
	"archive/zip"
	"context"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/uptrace/bun"
	"github.com/vseklecov/sopds/pkg/authors"
	"github.com/vseklecov/sopds/pkg/books"
	"github.com/vseklecov/sopds/pkg/catalogs"
	"github.com/vseklecov/sopds/pkg/config"
	"github.com/vseklecov/sopds/pkg/fb2"
	"github.com/vseklecov/sopds/pkg/genres"
	"github.com/vseklecov/sopds/pkg/models"
)

type Options struct {
	// Full reprocesses every file regardless of modification time. Without
	// it, only files modified after Since are considered.
	Full  bool
	Since time.Time
}

type Stats struct {
	Files      int
	Added      int
	Duplicates int
	Skipped    int
	Errors     int
}

type Scanner struct {
	cfg      *config.Config
	log      logger.Logger
	books    *books.Service
	catalogs *catalogs.Service
	authors  *authors.Service
	genres   *genres.Service
}

func New(cfg *config.Config, db *bun.DB) *Scanner {
	return &Scanner{
		cfg:      cfg,
		log:      logger.New(),
		books:    books.NewService(db),
		catalogs: catalogs.NewService(db),
		authors:  authors.NewService(db),
		genres:   genres.NewService(db),
	}
}

// Run walks the library once. The returned stats count files considered,
// books added, duplicates flagged, files skipped and per-file errors.
func (s *Scanner) Run(ctx context.Context, opts Options) (*Stats, error) {
	stats := &Stats{}
	formats := s.cfg.FormatSet()
	scanID := uuid.New()
	log := s.log.ID(scanID.String()).Root(logger.Data{"full": opts.Full})

	log.Info("scan started", logger.Data{"path": s.cfg.LibraryPath})
	start := time.Now()

	err := filepath.WalkDir(s.cfg.LibraryPath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Err(err).Warn("walk error", logger.Data{"path": p})
			stats.Errors++
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return errors.WithStack(err)
		}

		rel, err := filepath.Rel(s.cfg.LibraryPath, p)
		if err != nil {
			return errors.WithStack(err)
		}
		rel = filepath.ToSlash(rel)

		info, err := d.Info()
		if err != nil {
			log.Err(err).Warn("stat error", logger.Data{"path": p})
			stats.Errors++
			return nil
		}

		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(d.Name())), ".")
		if ext == "zip" {
			if s.cfg.ScanZips {
				s.processZip(ctx, log, p, rel, info, opts, formats, stats)
			}
			return nil
		}
		if !formats[ext] {
			return nil
		}

		stats.Files++
		if !opts.Full && !info.ModTime().After(opts.Since) {
			stats.Skipped++
			return nil
		}

		s.processFile(ctx, log, p, rel, ext, info.Size(), stats)
		return nil
	})
	if err != nil {
		return stats, err
	}

	log.Info("scan finished", logger.Data{
		"duration_ms": time.Since(start).Milliseconds(),
		"files":       stats.Files,
		"added":       stats.Added,
		"duplicates":  stats.Duplicates,
		"skipped":     stats.Skipped,
		"errors":      stats.Errors,
	})

	return stats, nil
}

func (s *Scanner) processFile(ctx context.Context, log logger.Logger, absPath, rel, ext string, size int64, stats *Stats) {
	var parsed *fb2.ParsedBook
	if ext == "fb2" {
		var err error
		parsed, err = fb2.ParseFile(absPath)
		if err != nil {
			log.Err(err).Warn("failed to parse book", logger.Data{"path": rel})
			stats.Errors++
			return
		}
	}

	dir := path.Dir(rel)
	if dir == "." {
		dir = ""
	}
	catalogID, err := s.catalogs.ResolveTree(ctx, dir, models.CatalogTypeNormal)
	if err != nil {
		log.Err(err).Error("failed to resolve catalog", logger.Data{"path": rel})
		stats.Errors++
		return
	}

	s.ingest(ctx, log, books.AddBookOptions{
		Filename:       path.Base(rel),
		Path:           dir,
		CatalogID:      catalogID,
		CatalogType:    models.CatalogTypeNormal,
		Ext:            ext,
		Title:          bookTitle(parsed, path.Base(rel)),
		Lang:           bookLang(parsed),
		Filesize:       size,
		FindDuplicates: s.cfg.FindDuplicates,
	}, parsed, stats)
}

func (s *Scanner) processZip(ctx context.Context, log logger.Logger, absPath, rel string, info fs.FileInfo, opts Options, formats map[string]bool, stats *Stats) {
	if !opts.Full && !info.ModTime().After(opts.Since) {
		stats.Skipped++
		return
	}
	if !s.cfg.RescanZips {
		id, err := s.catalogs.ZipIsScanned(ctx, rel)
		if err != nil {
			log.Err(err).Error("zip lookup failed", logger.Data{"path": rel})
			stats.Errors++
			return
		}
		if id != 0 {
			stats.Skipped++
			return
		}
	}

	catalogID, err := s.catalogs.ResolveTree(ctx, rel, models.CatalogTypeZip)
	if err != nil {
		log.Err(err).Error("failed to resolve catalog", logger.Data{"path": rel})
		stats.Errors++
		return
	}

	zr, err := zip.OpenReader(absPath)
	if err != nil {
		log.Err(err).Warn("failed to open archive", logger.Data{"path": rel})
		stats.Errors++
		return
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(f.Name)), ".")
		if !formats[ext] {
			continue
		}
		stats.Files++

		var parsed *fb2.ParsedBook
		if ext == "fb2" {
			parsed, err = parseZipEntry(f)
			if err != nil {
				log.Err(err).Warn("failed to parse archived book", logger.Data{"path": rel, "entry": f.Name})
				stats.Errors++
				continue
			}
		}

		s.ingest(ctx, log, books.AddBookOptions{
			Filename:       f.Name,
			Path:           rel,
			CatalogID:      catalogID,
			CatalogType:    models.CatalogTypeZip,
			Ext:            ext,
			Title:          bookTitle(parsed, path.Base(f.Name)),
			Lang:           bookLang(parsed),
			Filesize:       int64(f.UncompressedSize64), //nolint:gosec
			FindDuplicates: s.cfg.FindDuplicates,
		}, parsed, stats)
	}
}

func parseZipEntry(f *zip.File) (*fb2.ParsedBook, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rc.Close()

	return fb2.Parse(rc)
}

// ingest adds the book and, when it's new, links its authors and genres and
// extracts the cover.
func (s *Scanner) ingest(ctx context.Context, log logger.Logger, opts books.AddBookOptions, parsed *fb2.ParsedBook, stats *Stats) {
	book, created, err := s.books.AddBook(ctx, opts)
	if err != nil {
		log.Err(err).Error("failed to add book", logger.Data{"path": opts.Path, "filename": opts.Filename})
		stats.Errors++
		return
	}
	if !created {
		stats.Skipped++
		return
	}

	stats.Added++
	if book.DuplicateID != 0 {
		stats.Duplicates++
		log.Info("duplicate flagged", logger.Data{"book_id": book.ID, "duplicate_of": book.DuplicateID})
	}

	s.linkMetadata(ctx, log, book, parsed, stats)

	if s.cfg.ExtractCovers && parsed != nil && parsed.Cover != nil {
		s.extractCover(ctx, log, book, parsed.Cover, stats)
	}
}

func (s *Scanner) linkMetadata(ctx context.Context, log logger.Logger, book *models.Book, parsed *fb2.ParsedBook, stats *Stats) {
	var parsedAuthors []fb2.ParsedAuthor
	if parsed != nil {
		parsedAuthors = parsed.Authors
	}
	if len(parsedAuthors) == 0 {
		parsedAuthors = []fb2.ParsedAuthor{{LastName: authors.UnknownAuthorName}}
	}

	for _, pa := range parsedAuthors {
		author, err := s.authors.FindOrCreate(ctx, pa.FirstName, pa.LastName)
		if err == nil {
			err = s.books.LinkAuthor(ctx, book.ID, author.ID)
		}
		if err != nil {
			log.Err(err).Warn("failed to link author", logger.Data{"book_id": book.ID})
			stats.Errors++
		}
	}

	if parsed == nil {
		return
	}
	for _, code := range parsed.GenreCodes {
		genre, err := s.genres.FindOrCreate(ctx, code)
		if err == nil {
			err = s.books.LinkGenre(ctx, book.ID, genre.ID)
		}
		if err != nil {
			log.Err(err).Warn("failed to link genre", logger.Data{"book_id": book.ID, "code": code})
			stats.Errors++
		}
	}
}

func (s *Scanner) extractCover(ctx context.Context, log logger.Logger, book *models.Book, cover *fb2.ParsedCover, stats *Stats) {
	ext := ".jpg"
	if mt := mimetype.Lookup(cover.ContentType); mt != nil && mt.Extension() != "" {
		ext = mt.Extension()
	}
	filename := strconv.Itoa(book.ID) + ext

	if err := os.MkdirAll(s.cfg.CoverPath, 0755); err != nil {
		log.Err(err).Warn("failed to create cover directory", logger.Data{"path": s.cfg.CoverPath})
		stats.Errors++
		return
	}
	if err := os.WriteFile(filepath.Join(s.cfg.CoverPath, filename), cover.Data, 0644); err != nil { //nolint:gosec
		log.Err(err).Warn("failed to write cover", logger.Data{"book_id": book.ID})
		stats.Errors++
		return
	}
	if err := s.books.AttachCover(ctx, book.ID, filename, cover.ContentType); err != nil {
		log.Err(err).Warn("failed to attach cover", logger.Data{"book_id": book.ID})
		stats.Errors++
	}
}

func bookTitle(parsed *fb2.ParsedBook, filename string) string {
	if parsed != nil && parsed.Title != "" {
		return parsed.Title
	}
	return strings.TrimSuffix(filename, filepath.Ext(filename))
}

func bookLang(parsed *fb2.ParsedBook) string {
	if parsed != nil {
		return parsed.Lang
	}
	return ""
}
