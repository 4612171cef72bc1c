// Package toolutil holds the request and response shapes shared by the REST
// handlers and the MCP tools.
package toolutil

import (
	"strings"

	"github.com/anatolykoptev/go_ytchat/internal/engine"
)

// LoadInput asks for a video's transcript and analysis.
type LoadInput struct {
	URL string `json:"url" jsonschema:"YouTube video URL (youtube.com/watch?v=... or youtu.be/...)"`
}

// ChatInput asks a question about a loaded video.
type ChatInput struct {
	Message string `json:"message" jsonschema:"Question about the video, may include a timestamp such as 2:15 or 5 minutes"`
	VideoID string `json:"videoId" jsonschema:"11-character video id returned by video_load"`
}

// LoadOutput is the transcript-load response.
type LoadOutput struct {
	Success     bool                    `json:"success"`
	Message     string                  `json:"message"`
	VideoID     string                  `json:"videoId"`
	Metadata    engine.VideoMetadata    `json:"metadata"`
	Transcript  []engine.TranscriptItem `json:"transcript"`
	Analysis    engine.AnalysisResult   `json:"analysis"`
	Language    string                  `json:"language"`
	CaptionType engine.CaptionType      `json:"captionType"`
}

// ChatOutput is the chat response.
type ChatOutput struct {
	Response string `json:"response"`
}

// ErrorOutput is the body of every failed REST request.
type ErrorOutput struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// NewLoadOutput converts a load result into the wire shape.
func NewLoadOutput(res engine.LoadResult) LoadOutput {
	msg := "Transcript loaded successfully"
	if res.Cached {
		msg = "Transcript loaded from cache"
	}
	transcript := res.Bundle.Transcript
	if transcript == nil {
		transcript = []engine.TranscriptItem{}
	}
	return LoadOutput{
		Success:     true,
		Message:     msg,
		VideoID:     res.Bundle.VideoID,
		Metadata:    res.Bundle.Metadata,
		Transcript:  transcript,
		Analysis:    res.Analysis,
		Language:    res.Bundle.Language,
		CaptionType: res.Bundle.CaptionType,
	}
}

// NewErrorOutput converts err into the wire shape. Acquisition failures
// collapse to one user-facing message.
func NewErrorOutput(err error) ErrorOutput {
	return ErrorOutput{Error: engine.UserMessage(err), Kind: engine.KindOf(err).String()}
}

// Trim returns in with surrounding whitespace removed from every field.
func (in ChatInput) Trim() ChatInput {
	return ChatInput{Message: strings.TrimSpace(in.Message), VideoID: strings.TrimSpace(in.VideoID)}
}
