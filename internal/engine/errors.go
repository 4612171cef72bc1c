package engine

import "errors"

// Sentinel errors. Wrap them with fmt.Errorf("...: %w", err) and classify
// with KindOf.
var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrAcquisition    = errors.New("transcript unavailable")
	ErrUpstreamLLM    = errors.New("llm request failed")
	ErrVideoNotLoaded = errors.New("video not loaded")
	ErrAnalysisDecode = errors.New("analysis decode failed")
)

// AcquisitionMessage is shown to callers when no caption track could be fetched.
const AcquisitionMessage = "Could not retrieve captions for this video. Please try another video."

// Kind classifies errors for transport layers.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidInput
	KindAcquisition
	KindUpstreamLLM
	KindNotLoaded
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindAcquisition:
		return "acquisition_failure"
	case KindUpstreamLLM:
		return "upstream_llm_failure"
	case KindNotLoaded:
		return "video_not_loaded"
	default:
		return "internal"
	}
}

// KindOf maps an error to its Kind.
func KindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrVideoNotLoaded):
		return KindNotLoaded
	case errors.Is(err, ErrAcquisition):
		return KindAcquisition
	case errors.Is(err, ErrUpstreamLLM):
		return KindUpstreamLLM
	default:
		return KindInternal
	}
}

// UserMessage returns the message a caller should see for err.
// Acquisition failures collapse to a single message; the per-source details
// stay in the logs.
func UserMessage(err error) string {
	switch KindOf(err) {
	case KindAcquisition:
		return AcquisitionMessage
	case KindNotLoaded:
		return "Video not loaded. Please load the transcript first."
	default:
		return err.Error()
	}
}
