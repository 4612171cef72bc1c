package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/anatolykoptev/go_ytchat/internal/engine"
)

// Panel fetches the transcript shown in the watch page's engagement panel:
//  1. POST /next → engagementPanels containing the transcript continuation token
//  2. POST /get_transcript with the token → timed segments
//
// This works from datacenter IPs where /player returns LOGIN_REQUIRED. The
// panel does not report a language or caption kind.
type Panel struct {
	Client    *http.Client
	Endpoints Endpoints
	Langs     []string
}

// NewPanel returns a Panel against www.youtube.com.
func NewPanel(client *http.Client, langs []string) *Panel {
	return &Panel{Client: client, Endpoints: DefaultEndpoints, Langs: langs}
}

func (p *Panel) Name() string { return "panel" }

func (p *Panel) Fetch(ctx context.Context, videoID string) (engine.Transcript, error) {
	visitorData := generateVisitorData()
	hl := hlFor(p.Langs)

	nextData, err := postInnerTubeWEB(ctx, p.Client, p.Endpoints.Next, map[string]any{
		"videoId": videoID,
		"context": ytWebContext(visitorData, hl),
	}, visitorData)
	if err != nil {
		return engine.Transcript{}, fmt.Errorf("/next: %w", err)
	}

	token, err := extractTranscriptToken(nextData)
	if err != nil {
		return engine.Transcript{}, fmt.Errorf("%w: %v", engine.ErrAcquisition, err)
	}

	data, err := postInnerTubeWEB(ctx, p.Client, p.Endpoints.GetTranscript, map[string]any{
		"params":  token,
		"context": ytWebContext(visitorData, hl),
	}, visitorData)
	if err != nil {
		return engine.Transcript{}, fmt.Errorf("/get_transcript: %w", err)
	}

	var resp ytGetTranscriptResp
	if err := json.Unmarshal(data, &resp); err != nil {
		return engine.Transcript{}, fmt.Errorf("decode transcript: %w", err)
	}
	items := parseTranscriptSegments(resp)
	if len(items) == 0 {
		return engine.Transcript{}, fmt.Errorf("%w: empty transcript segments", engine.ErrAcquisition)
	}
	return engine.Transcript{
		Items:       items,
		CaptionType: engine.CaptionUnknown,
		Source:      p.Name(),
	}, nil
}

// getTranscriptRE extracts the continuation token from a raw /next JSON response.
var getTranscriptRE = regexp.MustCompile(`"getTranscriptEndpoint":\{"params":"([^"]+)"`)

func extractTranscriptToken(data []byte) (string, error) {
	if m := getTranscriptRE.FindSubmatch(data); len(m) >= 2 {
		// The params value in the /next JSON response is URL-encoded.
		// /get_transcript expects the decoded (raw base64) form.
		decoded, err := url.QueryUnescape(string(m[1]))
		if err != nil {
			return string(m[1]), nil
		}
		return decoded, nil
	}
	return "", errors.New("getTranscriptEndpoint not found in engagement panels")
}

// parseTranscriptSegments turns /get_transcript segments into items.
// Segments without text are skipped.
func parseTranscriptSegments(resp ytGetTranscriptResp) []engine.TranscriptItem {
	var items []engine.TranscriptItem
	for _, action := range resp.Actions {
		if action.UpdateEngagementPanelAction == nil {
			continue
		}
		segs := action.UpdateEngagementPanelAction.Content.
			TranscriptRenderer.Content.
			TranscriptSearchPanelRenderer.Body.
			TranscriptSegmentListRenderer.InitialSegments
		for _, seg := range segs {
			r := seg.TranscriptSegmentRenderer
			if r == nil {
				continue
			}
			var parts []string
			for _, run := range r.Snippet.Runs {
				if run.Text != "" {
					parts = append(parts, run.Text)
				}
			}
			text := engine.CleanCaption(strings.Join(parts, " "))
			if text == "" {
				continue
			}
			start, _ := strconv.ParseInt(r.StartMs, 10, 64)
			end, _ := strconv.ParseInt(r.EndMs, 10, 64)
			dur := end - start
			if dur < 0 {
				dur = 0
			}
			items = append(items, engine.TranscriptItem{Text: text, OffsetMs: start, DurationMs: dur})
		}
	}
	return items
}
