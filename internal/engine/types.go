package engine

import "context"

// --- Transcript types ---

// TranscriptItem is one caption cue. Offsets and durations are milliseconds.
type TranscriptItem struct {
	Text       string `json:"text"`
	OffsetMs   int64  `json:"offset"`
	DurationMs int64  `json:"duration"`
}

// EndMs returns the end of the cue in milliseconds.
func (it TranscriptItem) EndMs() int64 {
	return it.OffsetMs + it.DurationMs
}

// Chunk is a contiguous run of transcript items with its time window.
type Chunk struct {
	Text        string           `json:"text"`
	StartTimeMs int64            `json:"startTime"`
	EndTimeMs   int64            `json:"endTime"`
	Items       []TranscriptItem `json:"items"`
}

// CaptionType tells whether a caption track was authored or generated by ASR.
type CaptionType string

const (
	CaptionManual  CaptionType = "manual"
	CaptionAuto    CaptionType = "auto"
	CaptionUnknown CaptionType = "unknown"
)

// Transcript is what a TranscriptSource returns for one video.
type Transcript struct {
	Items       []TranscriptItem
	Language    string
	CaptionType CaptionType
	Source      string // name of the source that produced it
}

// TranscriptSource fetches the raw timestamped transcript of a video.
// Implementations return an error wrapping ErrAcquisition when no caption
// track can be obtained.
type TranscriptSource interface {
	Name() string
	Fetch(ctx context.Context, videoID string) (Transcript, error)
}

// VideoInfo is the descriptive part of a video returned by a MetadataLookup.
type VideoInfo struct {
	Title  string
	Author string
}

// MetadataLookup resolves title and author for a video.
type MetadataLookup interface {
	Lookup(ctx context.Context, videoID string) (VideoInfo, error)
}

// --- Video types ---

// VideoMetadata describes a loaded video. DurationSeconds is derived from the
// transcript and is the authoritative length.
type VideoMetadata struct {
	Title           string `json:"title"`
	DurationSeconds int    `json:"duration"`
	Author          string `json:"author"`
}

// VideoBundle is the processed transcript of one video, as stored in the cache.
type VideoBundle struct {
	VideoID     string           `json:"videoId"`
	Metadata    VideoMetadata    `json:"metadata"`
	Transcript  []TranscriptItem `json:"transcript"`
	Chunks      []Chunk          `json:"chunks"`
	Language    string           `json:"language"`
	CaptionType CaptionType      `json:"captionType"`
}

// --- Analysis types ---

type Topic struct {
	Topic       string `json:"topic"`
	Timestamp   string `json:"timestamp"`
	Description string `json:"description"`
}

type Concept struct {
	Concept    string `json:"concept"`
	Definition string `json:"definition"`
}

type TimelineEvent struct {
	Time  string `json:"time"`
	Event string `json:"event"`
}

// AnalysisResult is the structured summary of a video. It is produced once
// per video and never mutated afterwards.
type AnalysisResult struct {
	Summary     string          `json:"summary"`
	MainTopics  []Topic         `json:"mainTopics"`
	KeyConcepts []Concept       `json:"keyConcepts"`
	Timeline    []TimelineEvent `json:"timeline"`
}
