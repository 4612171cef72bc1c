package engine

import (
	"html"
	"regexp"
	"strings"

	"github.com/anatolykoptev/go-kit/strutil"
)

// User-Agent strings used across HTTP clients.
const (
	UserAgentBot    = "GoYTChat/1.0"
	UserAgentChrome = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
)

var (
	htmlTagRe    = regexp.MustCompile(`<[^>]+>`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// CleanHTML strips HTML tags and trims whitespace.
func CleanHTML(s string) string {
	return strings.TrimSpace(htmlTagRe.ReplaceAllString(s, ""))
}

// NormalizeText collapses newlines and whitespace runs into single spaces.
func NormalizeText(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// CleanCaption decodes leftover HTML entities in caption text (YouTube
// double-escapes apostrophes and ampersands), drops markup and normalizes
// whitespace.
func CleanCaption(s string) string {
	return NormalizeText(CleanHTML(html.UnescapeString(s)))
}

// NormalizeItems returns a copy of items with normalized text, dropping cues
// whose text is empty after normalization.
func NormalizeItems(items []TranscriptItem) []TranscriptItem {
	out := make([]TranscriptItem, 0, len(items))
	for _, it := range items {
		it.Text = NormalizeText(it.Text)
		if it.Text == "" {
			continue
		}
		out = append(out, it)
	}
	return out
}

// Snippet returns the first n runes of s followed by "...".
// The ellipsis is always appended so fallback entries read uniformly.
func Snippet(s string, n int) string {
	return strutil.TruncateWith(s, n, "") + "..."
}

// TruncateAtWord truncates a string to maxLen runes at a word boundary.
func TruncateAtWord(s string, maxLen int) string {
	return strutil.TruncateAtWord(s, maxLen)
}
