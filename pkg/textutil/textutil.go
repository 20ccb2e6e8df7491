// Package textutil provides text normalization helpers for Reddit post bodies.
package textutil

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	multiSpacePattern = regexp.MustCompile(`\s+`)
	sentenceEnd       = regexp.MustCompile(`[.!?]`)
)

// StripTags removes HTML tags and comments, decodes entities, and collapses
// whitespace. A '<' that does not open a tag, as in "<3", is kept.
func StripTags(s string) string {
	if s == "" {
		return ""
	}
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			return CollapseSpace(b.String())
		case html.TextToken:
			b.Write(z.Text())
		default:
			b.WriteByte(' ')
		}
	}
}

// CollapseSpace replaces runs of whitespace with a single space and trims the ends.
func CollapseSpace(s string) string {
	return strings.TrimSpace(multiSpacePattern.ReplaceAllString(s, " "))
}

// Fold strips diacritics so "café" becomes "cafe". Characters without an
// ASCII base are left untouched.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Sentences splits s on sentence-ending punctuation. Pieces are not trimmed
// and the trailing piece after the last terminator is included.
func Sentences(s string) []string {
	return sentenceEnd.Split(s, -1)
}

// HasTerminal reports whether s contains at least one of '.', '!' or '?'.
func HasTerminal(s string) bool {
	return strings.ContainsAny(s, ".!?")
}

// WordCount returns the number of whitespace-separated words in s.
func WordCount(s string) int {
	return len(strings.Fields(s))
}

// LongestSentence returns the word count of the longest sentence in s.
func LongestSentence(s string) int {
	longest := 0
	for _, sentence := range Sentences(s) {
		longest = max(longest, WordCount(sentence))
	}
	return longest
}
