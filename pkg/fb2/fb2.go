// Package fb2 extracts catalog metadata from FictionBook 2 documents. Only
// the description block and the cover binary are decoded; body content is
// skipped.
package fb2

import (
	"encoding/base64"
	"encoding/xml"
	"io"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
	"golang.org/x/text/encoding/ianaindex"
)

// trimCutset is the punctuation stripped from titles and names. Stray quotes
// and brackets in metadata otherwise leak into search keys and feeds.
const trimCutset = " \t\r\n'\"&()-.#[]\\`"

// ParsedBook is the metadata extracted from one FB2 document.
type ParsedBook struct {
	Title        string
	Lang         string
	Annotation   string
	GenreCodes   []string
	Authors      []ParsedAuthor
	Cover        *ParsedCover
	SeriesName   string
	SeriesNumber string
}

type ParsedAuthor struct {
	FirstName string
	LastName  string
}

type ParsedCover struct {
	ContentType string
	Data        []byte
}

type fictionBook struct {
	XMLName     xml.Name `xml:"FictionBook"`
	Description struct {
		TitleInfo struct {
			Genres     []string     `xml:"genre"`
			Authors    []authorElem `xml:"author"`
			BookTitle  string       `xml:"book-title"`
			Annotation annotation   `xml:"annotation"`
			Lang       string       `xml:"lang"`
			Coverpage  struct {
				Image struct {
					Href string `xml:"href,attr"`
				} `xml:"image"`
			} `xml:"coverpage"`
			Sequence struct {
				Name   string `xml:"name,attr"`
				Number string `xml:"number,attr"`
			} `xml:"sequence"`
		} `xml:"title-info"`
	} `xml:"description"`
	Binaries []binary `xml:"binary"`
}

type authorElem struct {
	FirstName  string `xml:"first-name"`
	MiddleName string `xml:"middle-name"`
	LastName   string `xml:"last-name"`
	Nickname   string `xml:"nickname"`
}

type annotation struct {
	Raw string `xml:",innerxml"`
}

type binary struct {
	ID          string `xml:"id,attr"`
	ContentType string `xml:"content-type,attr"`
	Data        string `xml:",chardata"`
}

// ParseFile parses the FB2 file at path.
func ParseFile(path string) (*ParsedBook, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer f.Close()

	return Parse(f)
}

// Parse decodes an FB2 document. Non-UTF-8 encodings declared in the XML
// prolog (windows-1251 is common in the wild) are handled transparently.
func Parse(r io.Reader) (*ParsedBook, error) {
	doc := &fictionBook{}

	dec := xml.NewDecoder(r)
	dec.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		enc, err := ianaindex.IANA.Encoding(charset)
		if err != nil || enc == nil {
			return nil, errors.Errorf("unsupported charset %q", charset)
		}
		return enc.NewDecoder().Reader(input), nil
	}

	if err := dec.Decode(doc); err != nil {
		return nil, errors.Wrap(err, "failed to decode fb2 document")
	}

	info := doc.Description.TitleInfo

	book := &ParsedBook{
		Title:        Clean(info.BookTitle),
		Lang:         strings.TrimSpace(info.Lang),
		Annotation:   flattenXML(info.Annotation.Raw),
		SeriesName:   strings.TrimSpace(info.Sequence.Name),
		SeriesNumber: strings.TrimSpace(info.Sequence.Number),
	}
	if book.Lang == "" {
		book.Lang = "ru"
	}

	for _, g := range info.Genres {
		code := strings.ToLower(strings.TrimSpace(g))
		if code != "" {
			book.GenreCodes = append(book.GenreCodes, code)
		}
	}

	for _, a := range info.Authors {
		author := ParsedAuthor{
			FirstName: Clean(a.FirstName),
			LastName:  Clean(a.LastName),
		}
		if author.FirstName == "" && author.LastName == "" {
			author.LastName = Clean(a.Nickname)
		}
		if author.FirstName == "" && author.LastName == "" {
			continue
		}
		book.Authors = append(book.Authors, author)
	}

	if cover := resolveCover(info.Coverpage.Image.Href, doc.Binaries); cover != nil {
		book.Cover = cover
	}

	return book, nil
}

// Clean trims whitespace and stray punctuation from a metadata value.
func Clean(s string) string {
	return strings.Trim(s, trimCutset)
}

// resolveCover follows the coverpage image reference to its base64 binary
// element and decodes it. A broken reference or corrupt payload yields no
// cover rather than an error.
func resolveCover(href string, binaries []binary) *ParsedCover {
	id := strings.TrimPrefix(strings.TrimSpace(href), "#")
	if id == "" {
		return nil
	}

	for _, bin := range binaries {
		if bin.ID != id {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(strings.Map(dropSpace, bin.Data))
		if err != nil || len(data) == 0 {
			return nil
		}
		contentType := strings.TrimSpace(bin.ContentType)
		if contentType == "" {
			contentType = mimetype.Detect(data).String()
		}
		return &ParsedCover{ContentType: contentType, Data: data}
	}

	return nil
}

func dropSpace(r rune) rune {
	switch r {
	case ' ', '\t', '\n', '\r':
		return -1
	}
	return r
}

// flattenXML strips markup from an annotation fragment, joining the text of
// its paragraphs with spaces.
func flattenXML(raw string) string {
	if raw == "" {
		return ""
	}

	var parts []string
	dec := xml.NewDecoder(strings.NewReader(raw))
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		if cd, ok := tok.(xml.CharData); ok {
			if text := strings.TrimSpace(string(cd)); text != "" {
				parts = append(parts, text)
			}
		}
	}

	return strings.Join(parts, " ")
}
