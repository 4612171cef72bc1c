package engine

import (
	"strings"

	"github.com/RadhiFadlillah/whatlanggo"
)

// NormalizeLanguage reduces a BCP 47 style tag to its lower-case primary
// subtag: "ms-MY" and "ms_my" become "ms".
func NormalizeLanguage(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if i := strings.IndexAny(tag, "-_"); i >= 0 {
		tag = tag[:i]
	}
	return tag
}

// detectSampleChars bounds the text handed to the detector.
const detectSampleChars = 4000

// DetectLanguage guesses the ISO 639-1 tag of text. Returns "" when the
// detector is not confident or the language has no two-letter code.
func DetectLanguage(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	if r := []rune(text); len(r) > detectSampleChars {
		text = string(r[:detectSampleChars])
	}
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return ""
	}
	return info.Lang.Iso6391()
}

// ResolveLanguage picks the language tag for a transcript: the
// source-reported tag when present, else a detection over the first chunks,
// else DefaultLanguage.
func ResolveLanguage(reported string, chunks []Chunk) string {
	if tag := NormalizeLanguage(reported); tag != "" {
		return tag
	}
	var sb strings.Builder
	for i, c := range chunks {
		if i == 3 {
			break
		}
		sb.WriteString(c.Text)
		sb.WriteByte(' ')
	}
	if tag := DetectLanguage(sb.String()); tag != "" {
		return tag
	}
	return DefaultLanguage
}
