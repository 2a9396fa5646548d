// Package fileutils builds filesystem- and header-safe names for delivered
// files.
package fileutils

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// cyrillic maps Cyrillic letters to ASCII transliterations. Lowercase only;
// uppercase goes through unicode.ToLower first.
var cyrillic = map[rune]string{
	'а': "a", 'б': "b", 'в': "v", 'г': "g", 'д': "d", 'е': "e", 'ё': "yo",
	'ж': "zh", 'з': "z", 'и': "i", 'й': "j", 'к': "k", 'л': "l", 'м': "m",
	'н': "n", 'о': "o", 'п': "p", 'р': "r", 'с': "s", 'т': "t", 'у': "u",
	'ф': "f", 'х': "h", 'ц': "c", 'ч': "ch", 'ш': "sh", 'щ': "shch",
	'ъ': "", 'ы': "y", 'ь': "", 'э': "e", 'ю': "yu", 'я': "ya",
}

// Translit transliterates Cyrillic to ASCII and strips diacritics from the
// rest. Uppercase Cyrillic letters keep a leading capital.
func Translit(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	for _, r := range s {
		lower := unicode.ToLower(r)
		t, ok := cyrillic[lower]
		if !ok {
			b.WriteRune(r)
			continue
		}
		if r != lower && t != "" {
			b.WriteString(strings.ToUpper(t[:1]) + t[1:])
		} else {
			b.WriteString(t)
		}
	}

	// Decompose and drop combining marks to flatten accented Latin.
	stripped, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), b.String())
	if err != nil {
		return b.String()
	}
	return stripped
}

// DownloadFilename produces an ASCII filename safe for a Content-Disposition
// header: transliterated, with remaining non-ASCII and unsafe characters
// replaced by underscores.
func DownloadFilename(name string) string {
	name = Translit(name)

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		default:
			b.WriteRune('_')
		}
	}

	return b.String()
}
