package engine

import (
	"strings"
	"unicode/utf8"
)

// ChunkCharThreshold is the accumulated text length at which a chunk is closed.
const ChunkCharThreshold = 1500

// ChunkTranscript groups items into chunks of roughly ChunkCharThreshold
// characters. Chunks partition items in order with no overlap; the last chunk
// may be shorter. totalDurationMs is the sum of every item's duration and does
// not depend on where chunk boundaries fall.
func ChunkTranscript(items []TranscriptItem) (chunks []Chunk, totalDurationMs int64) {
	var (
		pending []TranscriptItem
		length  int
	)
	for _, it := range items {
		pending = append(pending, it)
		length += utf8.RuneCountInString(it.Text)
		totalDurationMs += it.DurationMs

		if length >= ChunkCharThreshold {
			chunks = append(chunks, buildChunk(pending))
			pending = nil
			length = 0
		}
	}
	if len(pending) > 0 {
		chunks = append(chunks, buildChunk(pending))
	}
	return chunks, totalDurationMs
}

func buildChunk(items []TranscriptItem) Chunk {
	texts := make([]string, len(items))
	for i, it := range items {
		texts[i] = it.Text
	}
	last := items[len(items)-1]
	return Chunk{
		Text:        strings.Join(texts, " "),
		StartTimeMs: items[0].OffsetMs,
		EndTimeMs:   last.EndMs(),
		Items:       items,
	}
}

// FormatChunkLines renders chunks as "[M:SS] text" lines for the analysis prompt.
func FormatChunkLines(chunks []Chunk) string {
	var sb strings.Builder
	for i, c := range chunks {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteByte('[')
		sb.WriteString(FormatMs(c.StartTimeMs))
		sb.WriteString("] ")
		sb.WriteString(c.Text)
	}
	return sb.String()
}
