package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCompleter returns a canned reply and records requests.
type fakeCompleter struct {
	reply string
	err   error
	reqs  []CompletionRequest
}

func (f *fakeCompleter) Complete(_ context.Context, req CompletionRequest) (string, error) {
	f.reqs = append(f.reqs, req)
	return f.reply, f.err
}

const goodAnalysis = `{
  "summary": "A talk about Go concurrency.",
  "mainTopics": [{"topic": "Goroutines", "timestamp": "0:30", "description": "lightweight threads"}],
  "keyConcepts": [{"concept": "Channel", "definition": "typed conduit"}],
  "timeline": [{"time": "2:00", "event": "demo starts"}]
}`

func TestDecodeAnalysis(t *testing.T) {
	got, err := DecodeAnalysis("```json\n" + goodAnalysis + "\n```")
	require.NoError(t, err)
	assert.Equal(t, "A talk about Go concurrency.", got.Summary)
	require.Len(t, got.MainTopics, 1)
	assert.Equal(t, "0:30", got.MainTopics[0].Timestamp)
	assert.Equal(t, "typed conduit", got.KeyConcepts[0].Definition)
	assert.Equal(t, "demo starts", got.Timeline[0].Event)
}

func TestDecodeAnalysisEmptyLists(t *testing.T) {
	got, err := DecodeAnalysis(`{"summary":"s","mainTopics":[],"keyConcepts":[],"timeline":[]}`)
	require.NoError(t, err)
	assert.Empty(t, got.MainTopics)
}

func TestDecodeAnalysisRejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "Sorry, I cannot help with that."},
		{"truncated", `{"summary": "cut off`},
		{"missing timeline", `{"summary":"s","mainTopics":[],"keyConcepts":[]}`},
		{"empty summary", `{"summary":"  ","mainTopics":[],"keyConcepts":[],"timeline":[]}`},
		{"wrong type", `{"summary":"s","mainTopics":"none","keyConcepts":[],"timeline":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeAnalysis(tt.raw)
			assert.ErrorIs(t, err, ErrAnalysisDecode)
		})
	}
}

func sampleChunks(n int) []Chunk {
	chunks := make([]Chunk, n)
	for i := range chunks {
		chunks[i] = Chunk{
			Text:        strings.Repeat(string(rune('a'+i)), 150),
			StartTimeMs: int64(i) * 60000,
			EndTimeMs:   int64(i+1) * 60000,
		}
	}
	return chunks
}

func TestFallbackAnalysis(t *testing.T) {
	meta := VideoMetadata{Title: "Demo", DurationSeconds: 420}
	chunks := sampleChunks(7)

	got := FallbackAnalysis(meta, chunks, "en")

	assert.Contains(t, got.Summary, "Demo")
	assert.Contains(t, got.Summary, "7:00")

	require.Len(t, got.MainTopics, 3) // 0, 3, 6
	assert.Equal(t, "Section 1", got.MainTopics[0].Topic)
	assert.Equal(t, "Section 3", got.MainTopics[2].Topic)
	assert.Equal(t, "3:00", got.MainTopics[1].Timestamp)
	assert.Equal(t, "6:00", got.MainTopics[2].Timestamp)
	for _, tp := range got.MainTopics {
		assert.True(t, strings.HasSuffix(tp.Description, "..."))
		assert.Equal(t, 103, utf8.RuneCountInString(tp.Description))
	}

	require.Len(t, got.KeyConcepts, 1)

	require.Len(t, got.Timeline, 4) // 0, 2, 4, 6
	assert.Equal(t, "4:00", got.Timeline[2].Time)
	assert.Equal(t, 53, utf8.RuneCountInString(got.Timeline[0].Event))

	assert.Equal(t, got, FallbackAnalysis(meta, chunks, "en"))
}

func TestFallbackAnalysisMalay(t *testing.T) {
	got := FallbackAnalysis(VideoMetadata{Title: "Demo"}, sampleChunks(1), "ms")
	assert.Equal(t, "Bahagian 1", got.MainTopics[0].Topic)
	assert.Equal(t, "Transkrip", got.KeyConcepts[0].Concept)
}

func TestFallbackAnalysisNoChunks(t *testing.T) {
	got := FallbackAnalysis(VideoMetadata{Title: "Empty"}, nil, "en")
	assert.NotNil(t, got.MainTopics)
	assert.NotNil(t, got.Timeline)
	assert.Len(t, got.KeyConcepts, 1)
}

func TestAnalyzerAnalyze(t *testing.T) {
	fc := &fakeCompleter{reply: goodAnalysis}
	a := NewAnalyzer(fc, 0)
	items := []TranscriptItem{{Text: "hello world", OffsetMs: 0, DurationMs: 2000}}

	got, err := a.Analyze(context.Background(), items, VideoMetadata{Title: "Talk", DurationSeconds: 2}, "en")
	require.NoError(t, err)
	assert.Equal(t, "A talk about Go concurrency.", got.Summary)

	require.Len(t, fc.reqs, 1)
	req := fc.reqs[0]
	assert.True(t, req.JSON)
	assert.Equal(t, Prompts("en").AnalysisSystem, req.System)
	assert.Contains(t, req.Prompt, "Video title: Talk")
	assert.Contains(t, req.Prompt, "Duration: 0:02")
	assert.Contains(t, req.Prompt, "Transcript sections: 1")
	assert.Contains(t, req.Prompt, "[0:00] hello world")
}

func TestAnalyzerUsesLanguagePrompt(t *testing.T) {
	fc := &fakeCompleter{reply: goodAnalysis}
	_, err := NewAnalyzer(fc, 0).Analyze(context.Background(), nil, VideoMetadata{Title: "T"}, "ms")
	require.NoError(t, err)
	assert.Equal(t, Prompts("ms").AnalysisSystem, fc.reqs[0].System)
	assert.Contains(t, fc.reqs[0].Prompt, "Tajuk video: T")
}

func TestAnalyzerFallbackOnBadReply(t *testing.T) {
	fc := &fakeCompleter{reply: "not json at all"}
	items := []TranscriptItem{{Text: "hello world", OffsetMs: 0, DurationMs: 2000}}
	meta := VideoMetadata{Title: "Talk", DurationSeconds: 2}

	got, err := NewAnalyzer(fc, 0).Analyze(context.Background(), items, meta, "en")
	require.NoError(t, err)
	chunks, _ := ChunkTranscript(items)
	assert.Equal(t, FallbackAnalysis(meta, chunks, "en"), got)
}

func TestAnalyzerUpstreamError(t *testing.T) {
	fc := &fakeCompleter{err: errors.New("quota exceeded")}
	_, err := NewAnalyzer(fc, 0).Analyze(context.Background(), nil, VideoMetadata{}, "en")
	assert.ErrorIs(t, err, ErrUpstreamLLM)
	assert.Equal(t, KindUpstreamLLM, KindOf(err))
}

func TestCoverageGaps(t *testing.T) {
	tests := []struct {
		name string
		res  AnalysisResult
		want int
	}{
		{"empty", AnalysisResult{}, 0},
		{"dense", AnalysisResult{
			MainTopics: []Topic{{Timestamp: "0:10"}, {Timestamp: "3:00"}},
			Timeline:   []TimelineEvent{{Time: "1:30"}, {Time: "5:50"}},
		}, 0},
		{"late start", AnalysisResult{Timeline: []TimelineEvent{{Time: "3:01"}}}, 1},
		{"gap between sources", AnalysisResult{
			MainTopics: []Topic{{Timestamp: "0:00"}},
			Timeline:   []TimelineEvent{{Time: "1:00:00"}},
		}, 1},
		{"unparsable skipped", AnalysisResult{MainTopics: []Topic{{Timestamp: "intro"}, {Timestamp: "0:05"}}}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, CoverageGaps(tt.res), tt.want)
		})
	}
}

func TestValidateCoverageDoesNotMutate(t *testing.T) {
	res := AnalysisResult{Summary: "s", Timeline: []TimelineEvent{{Time: "10:00", Event: "late"}}}
	before := res
	ValidateCoverage("t", res)
	assert.Equal(t, before, res)
}
