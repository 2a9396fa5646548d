// Package searchkey derives the normalized keys used for case-insensitive
// lookups and prefix bucketing. Stored keys and query patterns must go through
// the same normalization or prefix matches silently miss.
package searchkey

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Normalize lowercases and NFC-normalizes a string for use as a search key.
func Normalize(s string) string {
	return norm.NFC.String(strings.ToLower(strings.TrimSpace(s)))
}

// ForAuthor builds the author search key: normalized last name, a space, then
// the normalized first name.
func ForAuthor(firstName, lastName string) string {
	return Normalize(lastName) + " " + Normalize(firstName)
}

// Prefix returns the first n runes of a key. Keys are bucketed by rune, not by
// byte, so Cyrillic prefixes stay intact.
func Prefix(key string, n int) string {
	runes := []rune(key)
	if len(runes) <= n {
		return key
	}
	return string(runes[:n])
}
