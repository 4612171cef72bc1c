package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/anatolykoptev/go_ytchat/internal/engine"
)

// Scraper reads caption tracks from the watch page's ytInitialPlayerResponse
// and downloads the chosen track as timedtext XML. When the page carries no
// usable track it asks the ANDROID Innertube /player endpoint instead.
type Scraper struct {
	Client    *http.Client
	Endpoints Endpoints
	Langs     []string // preferred caption languages, first wins
}

// NewScraper returns a Scraper against www.youtube.com.
func NewScraper(client *http.Client, langs []string) *Scraper {
	return &Scraper{Client: client, Endpoints: DefaultEndpoints, Langs: langs}
}

func (s *Scraper) Name() string { return "scrape" }

func (s *Scraper) Fetch(ctx context.Context, videoID string) (engine.Transcript, error) {
	tracks, err := s.pageTracks(ctx, videoID)
	if err != nil || len(tracks) == 0 {
		slog.Debug("youtube: watch page has no tracks, trying player",
			slog.String("video_id", videoID), slog.Any("error", err))
		tracks, err = s.playerTracks(ctx, videoID)
		if err != nil {
			return engine.Transcript{}, err
		}
	}

	track, ok := pickBestTrack(tracks, s.Langs)
	if !ok {
		return engine.Transcript{}, fmt.Errorf("%w: all caption tracks require PoToken", engine.ErrAcquisition)
	}
	items, err := fetchTimedText(ctx, s.Client, track.BaseURL)
	if err != nil {
		return engine.Transcript{}, err
	}
	if len(items) == 0 {
		return engine.Transcript{}, fmt.Errorf("%w: empty timedtext for %s", engine.ErrAcquisition, track.LanguageCode)
	}
	return engine.Transcript{
		Items:       items,
		Language:    track.LanguageCode,
		CaptionType: track.captionType(),
		Source:      s.Name(),
	}, nil
}

// ytInitialPlayerResponseMarker marks the start of the player response JSON in watch page HTML.
const ytInitialPlayerResponseMarker = "ytInitialPlayerResponse = "

func (s *Scraper) pageTracks(ctx context.Context, videoID string) ([]captionTrack, error) {
	body, err := engine.FetchWithRetry(ctx, s.Client, s.Endpoints.Watch+"?v="+videoID, map[string]string{
		"Accept-Language": hlFor(s.Langs) + ";q=0.9,en-US;q=0.8",
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	})
	if err != nil {
		return nil, fmt.Errorf("watch page: %w", err)
	}
	pr, err := parsePlayerResponse(body)
	if err != nil {
		return nil, err
	}
	return pr.tracks(), nil
}

func (s *Scraper) playerTracks(ctx context.Context, videoID string) ([]captionTrack, error) {
	pr, err := postInnerTubeAndroid(ctx, s.Client, s.Endpoints.Player, videoID, hlFor(s.Langs))
	if err != nil {
		return nil, err
	}
	tracks := pr.tracks()
	if len(tracks) == 0 {
		if pr.PlayabilityStatus != nil && pr.PlayabilityStatus.Reason != "" {
			return nil, fmt.Errorf("%w: captions unavailable: %s", engine.ErrAcquisition, pr.PlayabilityStatus.Reason)
		}
		return nil, fmt.Errorf("%w: no caption tracks", engine.ErrAcquisition)
	}
	return tracks, nil
}

// parsePlayerResponse extracts ytInitialPlayerResponse from watch page HTML.
func parsePlayerResponse(page []byte) (innertubePlayerResp, error) {
	idx := bytes.Index(page, []byte(ytInitialPlayerResponseMarker))
	if idx < 0 {
		return innertubePlayerResp{}, errors.New("ytInitialPlayerResponse not found in watch page")
	}
	raw := extractJSON(page[idx+len(ytInitialPlayerResponseMarker):])
	if raw == nil {
		return innertubePlayerResp{}, errors.New("failed to extract ytInitialPlayerResponse JSON")
	}
	var pr innertubePlayerResp
	if err := json.Unmarshal(raw, &pr); err != nil {
		return innertubePlayerResp{}, fmt.Errorf("decode ytInitialPlayerResponse: %w", err)
	}
	return pr, nil
}

// needsPoToken reports whether a caption track URL requires a PoToken (browser-only).
// Tracks with &exp=xpe cannot be fetched server-side.
func needsPoToken(baseURL string) bool {
	return strings.Contains(baseURL, "&exp=xpe")
}

// pickBestTrack selects the best usable caption track for the given language preferences.
// Order: manual track in a preferred language, auto track in a preferred
// language, any English track, then the first usable one.
func pickBestTrack(tracks []captionTrack, langs []string) (captionTrack, bool) {
	usable := make([]captionTrack, 0, len(tracks))
	for _, t := range tracks {
		if !needsPoToken(t.BaseURL) {
			usable = append(usable, t)
		}
	}
	if len(usable) == 0 {
		return captionTrack{}, false
	}
	for _, lang := range langs {
		for _, t := range usable {
			if langMatches(t.LanguageCode, lang) && t.Kind != "asr" {
				return t, true
			}
		}
	}
	for _, lang := range langs {
		for _, t := range usable {
			if langMatches(t.LanguageCode, lang) {
				return t, true
			}
		}
	}
	for _, t := range usable {
		if strings.HasPrefix(t.LanguageCode, "en") {
			return t, true
		}
	}
	return usable[0], true
}

func langMatches(code, want string) bool {
	return code == want || engine.NormalizeLanguage(code) == engine.NormalizeLanguage(want)
}

// fetchTimedText downloads a timedtext caption URL and parses it into items.
func fetchTimedText(ctx context.Context, client *http.Client, baseURL string) ([]engine.TranscriptItem, error) {
	body, err := engine.FetchWithRetry(ctx, client, baseURL, map[string]string{"User-Agent": engine.UserAgentBot})
	if err != nil {
		return nil, fmt.Errorf("fetch timedtext: %w", err)
	}
	return parseTimedText(body)
}

// parseTimedText decodes either timedtext layout. Cue text is entity-decoded
// and stripped of markup; empty cues are dropped.
func parseTimedText(body []byte) ([]engine.TranscriptItem, error) {
	var tt ytTimedText
	if err := xml.Unmarshal(body, &tt); err != nil {
		return nil, fmt.Errorf("parse timedtext XML: %w", err)
	}

	var items []engine.TranscriptItem
	for _, t := range tt.Texts {
		text := engine.CleanCaption(t.Text)
		if text == "" {
			continue
		}
		items = append(items, engine.TranscriptItem{
			Text:       text,
			OffsetMs:   secondsToMs(t.Start),
			DurationMs: secondsToMs(t.Dur),
		})
	}
	for _, p := range tt.Body.Paras {
		// innerxml keeps entities escaped and <s> word spans in place.
		text := engine.CleanCaption(html.UnescapeString(engine.CleanHTML(p.Inner)))
		if text == "" {
			continue
		}
		items = append(items, engine.TranscriptItem{Text: text, OffsetMs: p.T, DurationMs: p.D})
	}
	return items, nil
}

func secondsToMs(s string) int64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || f < 0 {
		return 0
	}
	return int64(math.Round(f * 1000))
}
