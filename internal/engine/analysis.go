package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
)

// CoverageGapSeconds is the largest acceptable distance between analysis
// timestamps, and between the start of the video and the first one.
const CoverageGapSeconds = 180

// Analyzer produces the structured analysis of a transcript.
type Analyzer struct {
	completer Completer
	timeout   time.Duration
}

// NewAnalyzer returns an Analyzer. timeout bounds the completion call; zero
// leaves it to the caller's context.
func NewAnalyzer(c Completer, timeout time.Duration) *Analyzer {
	return &Analyzer{completer: c, timeout: timeout}
}

// Analyze asks the LLM for a summary, topics, concepts and timeline.
// A completion error is returned wrapped in ErrUpstreamLLM. A reply that does
// not decode yields FallbackAnalysis instead of an error.
func (a *Analyzer) Analyze(ctx context.Context, items []TranscriptItem, meta VideoMetadata, lang string) (AnalysisResult, error) {
	chunks, _ := ChunkTranscript(items)
	p := Prompts(lang)
	prompt := fmt.Sprintf(p.AnalysisPrompt,
		meta.Title, FormatDuration(meta.DurationSeconds), len(chunks), FormatChunkLines(chunks))

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	metrics.LLMCalls.Add(1)
	raw, err := a.completer.Complete(ctx, CompletionRequest{
		System: p.AnalysisSystem,
		Prompt: prompt,
		JSON:   true,
	})
	if err != nil {
		metrics.LLMErrors.Add(1)
		return AnalysisResult{}, fmt.Errorf("%w: analysis: %v", ErrUpstreamLLM, err)
	}

	result, err := DecodeAnalysis(raw)
	if err != nil {
		metrics.FallbackAnalyses.Add(1)
		slog.Warn("analysis: using fallback", slog.String("title", meta.Title), slog.Any("error", err))
		return FallbackAnalysis(meta, chunks, lang), nil
	}

	ValidateCoverage(meta.Title, result)
	return result, nil
}

// rawAnalysis distinguishes missing keys from empty values.
type rawAnalysis struct {
	Summary     *string          `json:"summary"`
	MainTopics  *[]Topic         `json:"mainTopics"`
	KeyConcepts *[]Concept       `json:"keyConcepts"`
	Timeline    *[]TimelineEvent `json:"timeline"`
}

// DecodeAnalysis parses an LLM reply into an AnalysisResult. Markdown fences
// and prose around the JSON object are tolerated. All four keys must be
// present and the summary must be non-empty; otherwise the error wraps
// ErrAnalysisDecode.
func DecodeAnalysis(raw string) (AnalysisResult, error) {
	obj := extractJSONObject(stripFences(raw))
	if obj == "" {
		return AnalysisResult{}, fmt.Errorf("%w: no JSON object in reply", ErrAnalysisDecode)
	}
	var ra rawAnalysis
	if err := json.Unmarshal([]byte(obj), &ra); err != nil {
		return AnalysisResult{}, fmt.Errorf("%w: %v", ErrAnalysisDecode, err)
	}

	var missing []string
	if ra.Summary == nil {
		missing = append(missing, "summary")
	}
	if ra.MainTopics == nil {
		missing = append(missing, "mainTopics")
	}
	if ra.KeyConcepts == nil {
		missing = append(missing, "keyConcepts")
	}
	if ra.Timeline == nil {
		missing = append(missing, "timeline")
	}
	if len(missing) > 0 {
		return AnalysisResult{}, fmt.Errorf("%w: missing %s", ErrAnalysisDecode, strings.Join(missing, ", "))
	}
	if strings.TrimSpace(*ra.Summary) == "" {
		return AnalysisResult{}, fmt.Errorf("%w: empty summary", ErrAnalysisDecode)
	}

	return AnalysisResult{
		Summary:     strings.TrimSpace(*ra.Summary),
		MainTopics:  *ra.MainTopics,
		KeyConcepts: *ra.KeyConcepts,
		Timeline:    *ra.Timeline,
	}, nil
}

// FallbackAnalysis builds an analysis from the chunks alone. Topics are every
// third chunk, the timeline every second chunk. The output depends only on its
// inputs.
func FallbackAnalysis(meta VideoMetadata, chunks []Chunk, lang string) AnalysisResult {
	p := Prompts(lang)
	res := AnalysisResult{
		Summary:     fmt.Sprintf(p.FallbackSummary, meta.Title, FormatDuration(meta.DurationSeconds)),
		MainTopics:  []Topic{},
		KeyConcepts: []Concept{{Concept: p.FallbackConcept, Definition: p.FallbackDefinition}},
		Timeline:    []TimelineEvent{},
	}
	for i := 0; i < len(chunks); i += 3 {
		res.MainTopics = append(res.MainTopics, Topic{
			Topic:       fmt.Sprintf("%s %d", p.SectionLabel, i/3+1),
			Timestamp:   FormatMs(chunks[i].StartTimeMs),
			Description: Snippet(chunks[i].Text, 100),
		})
	}
	for i := 0; i < len(chunks); i += 2 {
		res.Timeline = append(res.Timeline, TimelineEvent{
			Time:  FormatMs(chunks[i].StartTimeMs),
			Event: Snippet(chunks[i].Text, 50),
		})
	}
	return res
}

// CoverageGaps returns human-readable coverage problems in the analysis
// timestamps: a late first entry or a gap wider than CoverageGapSeconds.
// Unparsable timestamps are skipped.
func CoverageGaps(res AnalysisResult) []string {
	var secs []int
	for _, t := range res.MainTopics {
		if s, ok := ParseTimestamp(t.Timestamp); ok {
			secs = append(secs, s)
		}
	}
	for _, e := range res.Timeline {
		if s, ok := ParseTimestamp(e.Time); ok {
			secs = append(secs, s)
		}
	}
	if len(secs) == 0 {
		return nil
	}
	sort.Ints(secs)

	var gaps []string
	if secs[0] > CoverageGapSeconds {
		gaps = append(gaps, fmt.Sprintf("first timestamp at %s", FormatDuration(secs[0])))
	}
	for i := 1; i < len(secs); i++ {
		if secs[i]-secs[i-1] > CoverageGapSeconds {
			gaps = append(gaps, fmt.Sprintf("gap %s-%s", FormatDuration(secs[i-1]), FormatDuration(secs[i])))
		}
	}
	return gaps
}

// ValidateCoverage logs coverage gaps. It never alters the analysis.
func ValidateCoverage(title string, res AnalysisResult) {
	gaps := CoverageGaps(res)
	if len(gaps) == 0 {
		return
	}
	metrics.CoverageWarnings.Add(1)
	slog.Warn("analysis: incomplete coverage",
		slog.String("title", title),
		slog.String("gaps", strings.Join(gaps, "; ")))
}
