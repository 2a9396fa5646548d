package opds

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/uptrace/bun"
	"github.com/vseklecov/sopds/pkg/authors"
	"github.com/vseklecov/sopds/pkg/books"
	"github.com/vseklecov/sopds/pkg/catalogs"
	"github.com/vseklecov/sopds/pkg/config"
	"github.com/vseklecov/sopds/pkg/errcodes"
	"github.com/vseklecov/sopds/pkg/genres"
	"github.com/vseklecov/sopds/pkg/models"
)

// maxBucketDepth caps prefix drill-down: beyond this many characters the
// remaining rows are always listed directly.
const maxBucketDepth = 10

// Service builds OPDS feeds on top of the catalog services.
type Service struct {
	db       *bun.DB
	cfg      *config.Config
	books    *books.Service
	catalogs *catalogs.Service
	authors  *authors.Service
	genres   *genres.Service
}

// NewService creates a new OPDS service.
func NewService(db *bun.DB, cfg *config.Config) *Service {
	return &Service{
		db:       db,
		cfg:      cfg,
		books:    books.NewService(db),
		catalogs: catalogs.NewService(db),
		authors:  authors.NewService(db),
		genres:   genres.NewService(db),
	}
}

// isLeaf reports whether a prefix level should list rows directly instead of
// splitting into longer-prefix buckets.
func isLeaf(prefix string, count, threshold int) bool {
	return threshold == 0 || count <= threshold || len([]rune(prefix)) > maxBucketDepth
}

// RootFeed builds the root navigation feed.
func (svc *Service) RootFeed(ctx context.Context, baseURL string) (*Feed, error) {
	summary, err := svc.books.Summary(ctx, svc.cfg.ShowDuplicates)
	if err != nil {
		return nil, err
	}

	feed := NewFeed("sopds:root", "Book Catalog")
	feed.AddLink(RelSelf, baseURL+"/opds", MimeTypeNavigation)
	feed.AddLink(RelStart, baseURL+"/opds", MimeTypeNavigation)
	feed.AddLink(RelSearch, baseURL+"/opds/opensearch.xml", MimeTypeOpenSearch)

	catalogsEntry := NewEntry("sopds:catalogs", "By Folders")
	catalogsEntry.Content = &Content{Type: "text", Value: fmt.Sprintf("Browse %d folders", summary.Catalogs)}
	catalogsEntry.AddLink(RelSubsection, baseURL+"/opds/catalogs", MimeTypeNavigation)
	feed.AddEntry(catalogsEntry)

	authorsEntry := NewEntry("sopds:authors", "By Authors")
	authorsEntry.Content = &Content{Type: "text", Value: fmt.Sprintf("Browse %d authors", summary.Authors)}
	authorsEntry.AddLink(RelSubsection, baseURL+"/opds/authors", MimeTypeNavigation)
	feed.AddEntry(authorsEntry)

	titlesEntry := NewEntry("sopds:titles", "By Titles")
	titlesEntry.Content = &Content{Type: "text", Value: fmt.Sprintf("Browse %d books", summary.Books)}
	titlesEntry.AddLink(RelSubsection, baseURL+"/opds/titles", MimeTypeNavigation)
	feed.AddEntry(titlesEntry)

	genresEntry := NewEntry("sopds:genres", "By Genres")
	genresEntry.AddLink(RelSubsection, baseURL+"/opds/genres", MimeTypeNavigation)
	feed.AddEntry(genresEntry)

	recentEntry := NewEntry("sopds:recent", "Recent Additions")
	recentEntry.AddLink(RelSubsection, baseURL+"/opds/recent", MimeTypeAcquisition)
	feed.AddEntry(recentEntry)

	return feed, nil
}

// CatalogFeed builds the feed for one level of the folder tree. A catalogID
// of zero lists the library root.
func (svc *Service) CatalogFeed(ctx context.Context, baseURL string, catalogID, page int) (*Feed, error) {
	title := "By Folders"
	if catalogID != 0 {
		catalog, err := svc.catalogs.Retrieve(ctx, catalogID)
		if err != nil {
			return nil, err
		}
		title = catalog.Name
	}

	items, total, err := svc.catalogs.ListItems(ctx, catalogID, catalogs.ListItemsOptions{
		Limit:             svc.cfg.MaxItems,
		Page:              page,
		IncludeDuplicates: svc.cfg.ShowDuplicates,
	})
	if err != nil {
		return nil, err
	}

	feed := NewFeed(fmt.Sprintf("sopds:catalogs:%d", catalogID), title)
	self := fmt.Sprintf("%s/opds/catalogs/%d", baseURL, catalogID)
	feed.AddLink(RelSelf, self, MimeTypeNavigation)
	feed.AddLink(RelStart, baseURL+"/opds", MimeTypeNavigation)

	for _, item := range items {
		switch item.Kind {
		case catalogs.KindCatalog:
			entry := NewEntry(fmt.Sprintf("sopds:catalogs:%d", item.ID), item.Title)
			entry.AddLink(RelSubsection, fmt.Sprintf("%s/opds/catalogs/%d", baseURL, item.ID), MimeTypeNavigation)
			feed.AddEntry(entry)
		case catalogs.KindBook:
			book, err := svc.books.Retrieve(ctx, item.ID)
			if err != nil {
				return nil, err
			}
			entry, err := svc.bookToEntry(ctx, baseURL, book)
			if err != nil {
				return nil, err
			}
			feed.AddEntry(entry)
		}
	}

	svc.addPaginationLinks(feed, self, page, total)

	return feed, nil
}

// AuthorsFeed builds either a bucket navigation level or, once a prefix
// narrows the set below the split threshold, the author list itself.
func (svc *Service) AuthorsFeed(ctx context.Context, baseURL, prefix string, page int) (*Feed, error) {
	count, err := svc.authors.CountByPrefix(ctx, prefix)
	if err != nil {
		return nil, err
	}

	feed := NewFeed("sopds:authors:"+prefix, "By Authors")
	self := baseURL + "/opds/authors"
	if prefix != "" {
		self += "?prefix=" + url.QueryEscape(prefix)
	}
	feed.AddLink(RelSelf, self, MimeTypeNavigation)
	feed.AddLink(RelStart, baseURL+"/opds", MimeTypeNavigation)

	if isLeaf(prefix, count, svc.cfg.SplitAuthors) {
		rows, total, err := svc.authors.ListByPrefix(ctx, prefix, authors.ListOptions{
			Limit:             svc.cfg.MaxItems,
			Page:              page,
			IncludeDuplicates: svc.cfg.ShowDuplicates,
		})
		if err != nil {
			return nil, err
		}
		for _, author := range rows {
			entry := NewEntry(fmt.Sprintf("sopds:authors:%d", author.ID), author.FullName())
			entry.Content = &Content{Type: "text", Value: fmt.Sprintf("%d books", author.BookCount)}
			entry.AddLink(RelSubsection, fmt.Sprintf("%s/opds/authors/%d/books", baseURL, author.ID), MimeTypeAcquisition)
			feed.AddEntry(entry)
		}
		svc.addPaginationLinks(feed, self, page, total)
		return feed, nil
	}

	buckets, err := svc.authors.Buckets(ctx, prefix)
	if err != nil {
		return nil, err
	}
	for _, bucket := range buckets {
		entry := NewEntry("sopds:authors:"+bucket.Prefix, strings.ToUpper(bucket.Prefix))
		entry.Content = &Content{Type: "text", Value: fmt.Sprintf("%d authors", bucket.Count)}
		entry.AddLink(RelSubsection, baseURL+"/opds/authors?prefix="+url.QueryEscape(bucket.Prefix), MimeTypeNavigation)
		feed.AddEntry(entry)
	}

	return feed, nil
}

// AuthorBooksFeed lists the books of one author.
func (svc *Service) AuthorBooksFeed(ctx context.Context, baseURL string, authorID, page int) (*Feed, error) {
	author, err := svc.authors.Retrieve(ctx, authorID)
	if err != nil {
		return nil, err
	}

	rows, total, err := svc.books.ListByAuthor(ctx, authorID, books.ListOptions{
		Limit:             svc.cfg.MaxItems,
		Page:              page,
		IncludeDuplicates: svc.cfg.ShowDuplicates,
	})
	if err != nil {
		return nil, err
	}

	feed := NewFeed(fmt.Sprintf("sopds:authors:%d:books", authorID), author.FullName())
	self := fmt.Sprintf("%s/opds/authors/%d/books", baseURL, authorID)
	feed.AddLink(RelSelf, self, MimeTypeAcquisition)
	feed.AddLink(RelStart, baseURL+"/opds", MimeTypeNavigation)

	if err := svc.addBookEntries(ctx, feed, baseURL, rows); err != nil {
		return nil, err
	}
	svc.addPaginationLinks(feed, self, page, total)

	return feed, nil
}

// TitlesFeed builds either a title bucket level or the book list under a
// prefix, mirroring AuthorsFeed.
func (svc *Service) TitlesFeed(ctx context.Context, baseURL, prefix string, page int) (*Feed, error) {
	_, count, err := svc.books.ListByTitlePrefix(ctx, prefix, books.ListOptions{
		Limit:             1,
		IncludeDuplicates: svc.cfg.ShowDuplicates,
	})
	if err != nil {
		return nil, err
	}

	feed := NewFeed("sopds:titles:"+prefix, "By Titles")
	self := baseURL + "/opds/titles"
	if prefix != "" {
		self += "?prefix=" + url.QueryEscape(prefix)
	}
	feed.AddLink(RelSelf, self, MimeTypeNavigation)
	feed.AddLink(RelStart, baseURL+"/opds", MimeTypeNavigation)

	if isLeaf(prefix, count, svc.cfg.SplitTitles) {
		rows, total, err := svc.books.ListByTitlePrefix(ctx, prefix, books.ListOptions{
			Limit:             svc.cfg.MaxItems,
			Page:              page,
			IncludeDuplicates: svc.cfg.ShowDuplicates,
		})
		if err != nil {
			return nil, err
		}
		if err := svc.addBookEntries(ctx, feed, baseURL, rows); err != nil {
			return nil, err
		}
		svc.addPaginationLinks(feed, self, page, total)
		return feed, nil
	}

	buckets, err := svc.books.TitleBuckets(ctx, prefix, svc.cfg.ShowDuplicates)
	if err != nil {
		return nil, err
	}
	for _, bucket := range buckets {
		entry := NewEntry("sopds:titles:"+bucket.Prefix, strings.ToUpper(bucket.Prefix))
		entry.Content = &Content{Type: "text", Value: fmt.Sprintf("%d books", bucket.Count)}
		entry.AddLink(RelSubsection, baseURL+"/opds/titles?prefix="+url.QueryEscape(bucket.Prefix), MimeTypeNavigation)
		feed.AddEntry(entry)
	}

	return feed, nil
}

// GenresFeed lists genre sections that have at least one book.
func (svc *Service) GenresFeed(ctx context.Context, baseURL string) (*Feed, error) {
	sections, err := svc.genres.Sections(ctx)
	if err != nil {
		return nil, err
	}

	feed := NewFeed("sopds:genres", "By Genres")
	feed.AddLink(RelSelf, baseURL+"/opds/genres", MimeTypeNavigation)
	feed.AddLink(RelStart, baseURL+"/opds", MimeTypeNavigation)

	for _, section := range sections {
		entry := NewEntry(fmt.Sprintf("sopds:genres:%d", section.GenreID), section.Section)
		entry.Content = &Content{Type: "text", Value: fmt.Sprintf("%d books", section.BookCount)}
		entry.AddLink(RelSubsection, fmt.Sprintf("%s/opds/genres/%d", baseURL, section.GenreID), MimeTypeNavigation)
		feed.AddEntry(entry)
	}

	return feed, nil
}

// GenreFeed lists the subsections of the section that a genre belongs to.
func (svc *Service) GenreFeed(ctx context.Context, baseURL string, genreID int) (*Feed, error) {
	genre, err := svc.genres.Retrieve(ctx, genreID)
	if err != nil {
		return nil, err
	}
	if genre == nil {
		return nil, errcodes.NotFound("Genre")
	}

	subsections, err := svc.genres.Subsections(ctx, genreID)
	if err != nil {
		return nil, err
	}

	feed := NewFeed(fmt.Sprintf("sopds:genres:%d", genreID), genre.Section)
	feed.AddLink(RelSelf, fmt.Sprintf("%s/opds/genres/%d", baseURL, genreID), MimeTypeNavigation)
	feed.AddLink(RelStart, baseURL+"/opds", MimeTypeNavigation)
	feed.AddLink(RelUp, baseURL+"/opds/genres", MimeTypeNavigation)

	for _, sub := range subsections {
		entry := NewEntry(fmt.Sprintf("sopds:genres:%d:books", sub.GenreID), sub.Subsection)
		entry.Content = &Content{Type: "text", Value: fmt.Sprintf("%d books", sub.BookCount)}
		entry.AddLink(RelSubsection, fmt.Sprintf("%s/opds/genres/%d/books", baseURL, sub.GenreID), MimeTypeAcquisition)
		feed.AddEntry(entry)
	}

	return feed, nil
}

// GenreBooksFeed lists the books tagged with one genre.
func (svc *Service) GenreBooksFeed(ctx context.Context, baseURL string, genreID, page int) (*Feed, error) {
	genre, err := svc.genres.Retrieve(ctx, genreID)
	if err != nil {
		return nil, err
	}
	if genre == nil {
		return nil, errcodes.NotFound("Genre")
	}

	rows, total, err := svc.books.ListByGenre(ctx, genreID, books.ListOptions{
		Limit:             svc.cfg.MaxItems,
		Page:              page,
		IncludeDuplicates: svc.cfg.ShowDuplicates,
	})
	if err != nil {
		return nil, err
	}

	title := genre.Subsection
	if title == "" {
		title = genre.Section
	}
	feed := NewFeed(fmt.Sprintf("sopds:genres:%d:books", genreID), title)
	self := fmt.Sprintf("%s/opds/genres/%d/books", baseURL, genreID)
	feed.AddLink(RelSelf, self, MimeTypeAcquisition)
	feed.AddLink(RelStart, baseURL+"/opds", MimeTypeNavigation)

	if err := svc.addBookEntries(ctx, feed, baseURL, rows); err != nil {
		return nil, err
	}
	svc.addPaginationLinks(feed, self, page, total)

	return feed, nil
}

// RecentFeed lists the most recently registered books.
func (svc *Service) RecentFeed(ctx context.Context, baseURL string) (*Feed, error) {
	limit := svc.cfg.MaxItems
	if limit == 0 {
		limit = 50
	}
	rows, err := svc.books.Recent(ctx, limit, svc.cfg.ShowDuplicates)
	if err != nil {
		return nil, err
	}

	feed := NewFeed("sopds:recent", "Recent Additions")
	feed.AddLink(RelSelf, baseURL+"/opds/recent", MimeTypeAcquisition)
	feed.AddLink(RelStart, baseURL+"/opds", MimeTypeNavigation)

	if err := svc.addBookEntries(ctx, feed, baseURL, rows); err != nil {
		return nil, err
	}

	return feed, nil
}

// SearchFeed searches books by title substring, or authors by name substring
// when searchType is "authors".
func (svc *Service) SearchFeed(ctx context.Context, baseURL, terms, searchType string, page int) (*Feed, error) {
	feed := NewFeed("sopds:search:"+terms, fmt.Sprintf("Search results for %q", terms))
	self := baseURL + "/opds/search?searchTerms=" + url.QueryEscape(terms)
	if searchType != "" {
		self += "&searchType=" + url.QueryEscape(searchType)
	}
	feed.AddLink(RelSelf, self, MimeTypeAcquisition)
	feed.AddLink(RelStart, baseURL+"/opds", MimeTypeNavigation)

	if terms == "" {
		return feed, nil
	}

	// A leading % turns the prefix match into a substring match.
	if searchType == "authors" {
		rows, total, err := svc.authors.ListByPrefix(ctx, "%"+terms, authors.ListOptions{
			Limit:             svc.cfg.MaxItems,
			Page:              page,
			IncludeDuplicates: svc.cfg.ShowDuplicates,
		})
		if err != nil {
			return nil, err
		}
		for _, author := range rows {
			entry := NewEntry(fmt.Sprintf("sopds:authors:%d", author.ID), author.FullName())
			entry.Content = &Content{Type: "text", Value: fmt.Sprintf("%d books", author.BookCount)}
			entry.AddLink(RelSubsection, fmt.Sprintf("%s/opds/authors/%d/books", baseURL, author.ID), MimeTypeAcquisition)
			feed.AddEntry(entry)
		}
		svc.addPaginationLinks(feed, self, page, total)
		return feed, nil
	}

	rows, total, err := svc.books.ListByTitlePrefix(ctx, "%"+terms, books.ListOptions{
		Limit:             svc.cfg.MaxItems,
		Page:              page,
		IncludeDuplicates: svc.cfg.ShowDuplicates,
	})
	if err != nil {
		return nil, err
	}
	if err := svc.addBookEntries(ctx, feed, baseURL, rows); err != nil {
		return nil, err
	}
	svc.addPaginationLinks(feed, self, page, total)

	return feed, nil
}

// BookFeed builds a single-entry feed for one book.
func (svc *Service) BookFeed(ctx context.Context, baseURL string, bookID int) (*Feed, error) {
	book, err := svc.books.Retrieve(ctx, bookID)
	if err != nil {
		return nil, err
	}

	entry, err := svc.bookToEntry(ctx, baseURL, book)
	if err != nil {
		return nil, err
	}

	feed := NewFeed(fmt.Sprintf("sopds:books:%d", bookID), book.Title)
	feed.AddLink(RelSelf, fmt.Sprintf("%s/opds/books/%d", baseURL, bookID), MimeTypeAcquisition)
	feed.AddLink(RelStart, baseURL+"/opds", MimeTypeNavigation)
	feed.AddEntry(entry)

	return feed, nil
}

func (svc *Service) addBookEntries(ctx context.Context, feed *Feed, baseURL string, rows []*models.Book) error {
	for _, book := range rows {
		entry, err := svc.bookToEntry(ctx, baseURL, book)
		if err != nil {
			return err
		}
		feed.AddEntry(entry)
	}
	return nil
}

// bookToEntry converts a book into an acquisition entry with its authors,
// genres, download link and cover links.
func (svc *Service) bookToEntry(ctx context.Context, baseURL string, book *models.Book) (Entry, error) {
	entry := NewEntry(fmt.Sprintf("sopds:books:%d", book.ID), book.Title)
	entry.Updated = book.RegisteredAt.UTC()
	entry.Published = book.RegisteredAt.UTC()
	entry.Language = book.Lang
	entry.Format = book.Format

	bookAuthors, err := svc.authors.ForBook(ctx, book.ID)
	if err != nil {
		return Entry{}, err
	}
	for _, author := range bookAuthors {
		entry.Authors = append(entry.Authors, Author{
			Name: author.FullName(),
			URI:  fmt.Sprintf("%s/opds/authors/%d/books", baseURL, author.ID),
		})
	}

	bookGenres, err := svc.genres.ForBook(ctx, book.ID)
	if err != nil {
		return Entry{}, err
	}
	if len(bookGenres) > 0 {
		labels := make([]string, 0, len(bookGenres))
		for _, genre := range bookGenres {
			labels = append(labels, genre.Subsection)
		}
		entry.Content = &Content{Type: "text", Value: strings.Join(labels, ", ")}
	}

	entry.AddAcquisitionLink(
		fmt.Sprintf("%s/opds/books/%d/download", baseURL, book.ID),
		FormatMimeType(book.Format),
	)
	if book.Cover != nil {
		coverType := MimeTypeJPEG
		if book.CoverType != nil {
			coverType = *book.CoverType
		}
		coverHref := fmt.Sprintf("%s/opds/books/%d/cover", baseURL, book.ID)
		entry.AddImageLink(coverHref, coverType)
		entry.AddThumbnailLink(coverHref, coverType)
	}

	return entry, nil
}

// addPaginationLinks appends next/previous links when the page-based window
// does not cover the full result set.
func (svc *Service) addPaginationLinks(feed *Feed, href string, page, total int) {
	limit := svc.cfg.MaxItems
	if limit <= 0 {
		return
	}

	sep := "?"
	if strings.Contains(href, "?") {
		sep = "&"
	}

	if (page+1)*limit < total {
		feed.AddLink(RelNext, fmt.Sprintf("%s%spage=%d", href, sep, page+1), MimeTypeAtom)
	}
	if page > 0 {
		feed.AddLink(RelPrevious, fmt.Sprintf("%s%spage=%d", href, sep, page-1), MimeTypeAtom)
	}
}
