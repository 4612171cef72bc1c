package engine

import (
	"regexp"
	"strconv"
	"strings"
)

// MatchWindowSeconds is the half-width of the time window around a referenced moment.
const MatchWindowSeconds = 300

var (
	colonTimestampRE = regexp.MustCompile(`(?:^|[^\d:])((?:\d{1,2}:)?\d{1,2}:\d{2})(?:[^\d:]|$)`)
	unitTimestampRE  = regexp.MustCompile(`(?i)(\d+)\s*(minutes?|mins?|m|seconds?|secs?|s)\b`)
)

// QueryTimestamp returns the first time reference in query, in seconds.
// Recognizes H:MM:SS, M:SS and unit forms like "5m", "5 min", "90s", "90 seconds".
// A colon token may carry a suffix ("2:15min", "10:30am"); its digits are
// never reread as a unit form. Decades like "1990s" or "'90s" are not times.
func QueryTimestamp(query string) (int, bool) {
	colonAt := -1
	var colonTok string
	if m := colonTimestampRE.FindStringSubmatchIndex(query); m != nil {
		colonAt, colonTok = m[2], query[m[2]:m[3]]
	}
	unitSec, unitAt := unitTimestamp(query)

	if colonAt >= 0 && (unitAt < 0 || colonAt <= unitAt) {
		return ParseTimestamp(colonTok)
	}
	if unitAt < 0 {
		return 0, false
	}
	return unitSec, true
}

// unitTimestamp returns the first "<n><unit>" reference and its offset, or -1.
func unitTimestamp(query string) (int, int) {
	for _, m := range unitTimestampRE.FindAllStringSubmatchIndex(query, -1) {
		if m[2] > 0 && gluedBefore(query[m[2]-1]) {
			continue
		}
		digits := query[m[2]:m[3]]
		unit := strings.ToLower(query[m[4]:m[5]])
		maxDigits := 4
		if len(unit) == 1 {
			maxDigits = 3
		}
		if len(digits) > maxDigits {
			continue
		}
		n, err := strconv.Atoi(digits)
		if err != nil {
			continue
		}
		if unit[0] == 'm' {
			n *= 60
		}
		return n, m[2]
	}
	return 0, -1
}

// gluedBefore reports whether b joins a number to the token before it.
func gluedBefore(b byte) bool {
	switch {
	case b >= '0' && b <= '9', b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z':
		return true
	}
	return b == ':' || b == '\'' || b == '_'
}

// ChunksNear returns chunks whose time span intersects [sec-300, sec+300].
func ChunksNear(chunks []Chunk, sec int) []Chunk {
	lo := int64(sec-MatchWindowSeconds) * 1000
	hi := int64(sec+MatchWindowSeconds) * 1000
	var out []Chunk
	for _, c := range chunks {
		if c.StartTimeMs <= hi && c.EndTimeMs >= lo {
			out = append(out, c)
		}
	}
	return out
}

// MatchChunks selects the chunks relevant to query, preserving chunk order.
//
// A time reference in the query is authoritative: its window result is
// returned even when empty. Otherwise a topic or concept named by the query
// narrows by the topic's timestamp. Otherwise any chunk containing a query
// word longer than three characters is returned.
func MatchChunks(chunks []Chunk, query string, analysis AnalysisResult) []Chunk {
	if sec, ok := QueryTimestamp(query); ok {
		return ChunksNear(chunks, sec)
	}

	q := strings.ToLower(strings.TrimSpace(query))
	if sel := matchByTopic(chunks, q, analysis); len(sel) > 0 {
		return sel
	}
	return matchLexical(chunks, q)
}

func matchByTopic(chunks []Chunk, q string, analysis AnalysisResult) []Chunk {
	if q == "" {
		return nil
	}
	for _, t := range analysis.MainTopics {
		if !mentions(q, t.Topic) {
			continue
		}
		if sec, ok := ParseTimestamp(t.Timestamp); ok {
			if sel := ChunksNear(chunks, sec); len(sel) > 0 {
				return sel
			}
		}
	}
	// Concepts carry no timestamp; a concept hit selects the chunks that
	// mention the concept term.
	for _, c := range analysis.KeyConcepts {
		if !mentions(q, c.Concept) {
			continue
		}
		if sel := chunksContaining(chunks, []string{strings.ToLower(strings.TrimSpace(c.Concept))}); len(sel) > 0 {
			return sel
		}
	}
	return nil
}

func matchLexical(chunks []Chunk, q string) []Chunk {
	var words []string
	for _, w := range strings.Fields(q) {
		if len([]rune(w)) > 3 {
			words = append(words, w)
		}
	}
	if len(words) == 0 {
		return nil
	}
	return chunksContaining(chunks, words)
}

func chunksContaining(chunks []Chunk, words []string) []Chunk {
	var out []Chunk
	for _, c := range chunks {
		text := strings.ToLower(c.Text)
		for _, w := range words {
			if strings.Contains(text, w) {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// mentions reports case-insensitive containment of term in q or q in term.
// q must already be lower-cased.
func mentions(q, term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" || q == "" {
		return false
	}
	return strings.Contains(q, term) || strings.Contains(term, q)
}
