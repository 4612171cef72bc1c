package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/asticode/go-astisub"
	"github.com/cenkalti/backoff/v5"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/anatolykoptev/go_ytchat/internal/engine"
)

// googleEndpoint is Google's OAuth 2.0 endpoint.
var googleEndpoint = oauth2.Endpoint{
	AuthURL:  "https://accounts.google.com/o/oauth2/auth",
	TokenURL: "https://oauth2.googleapis.com/token",
}

// CaptionsConfig configures the official Captions API source.
type CaptionsConfig struct {
	TokenFile    string // JSON-encoded oauth2.Token
	ClientID     string // with ClientSecret, lets expired tokens refresh
	ClientSecret string
	RPS          float64 // requests per second; 0 = unlimited
	Langs        []string
}

// CaptionsAPI lists a video's caption tracks with captions.list and
// downloads the chosen one as SRT with captions.download. Downloading
// requires OAuth credentials authorized for the video.
type CaptionsAPI struct {
	svc     *youtube.Service
	limiter *rate.Limiter
	langs   []string
}

// NewCaptionsAPI builds the YouTube client from cc. Extra options are
// appended after the credentials, so tests can point at a fake endpoint.
func NewCaptionsAPI(ctx context.Context, cc CaptionsConfig, extra ...option.ClientOption) (*CaptionsAPI, error) {
	var opts []option.ClientOption
	if cc.TokenFile != "" {
		ts, err := tokenSourceFromFile(ctx, cc)
		if err != nil {
			return nil, err
		}
		opts = append(opts, option.WithTokenSource(ts))
	}
	opts = append(opts, extra...)
	if len(opts) == 0 {
		return nil, errors.New("captions: YOUTUBE_OAUTH_TOKEN_FILE required")
	}

	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("captions: youtube client: %w", err)
	}
	c := &CaptionsAPI{svc: svc, langs: cc.Langs}
	if cc.RPS > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cc.RPS), 1)
	}
	return c, nil
}

func tokenSourceFromFile(ctx context.Context, cc CaptionsConfig) (oauth2.TokenSource, error) {
	data, err := os.ReadFile(cc.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("captions: read token: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("captions: parse token: %w", err)
	}
	if cc.ClientID == "" {
		return oauth2.StaticTokenSource(&tok), nil
	}
	conf := &oauth2.Config{
		ClientID:     cc.ClientID,
		ClientSecret: cc.ClientSecret,
		Endpoint:     googleEndpoint,
		Scopes:       []string{youtube.YoutubeForceSslScope},
	}
	return conf.TokenSource(ctx, &tok), nil
}

func (c *CaptionsAPI) Name() string { return "captions" }

func (c *CaptionsAPI) Fetch(ctx context.Context, videoID string) (engine.Transcript, error) {
	list, err := callWithRetry(ctx, c, func() (*youtube.CaptionListResponse, error) {
		return c.svc.Captions.List([]string{"snippet"}, videoID).Context(ctx).Do()
	})
	if err != nil {
		return engine.Transcript{}, fmt.Errorf("captions.list: %w", err)
	}

	track, ok := pickCaption(list.Items, c.langs)
	if !ok {
		return engine.Transcript{}, fmt.Errorf("%w: no caption tracks", engine.ErrAcquisition)
	}

	body, err := callWithRetry(ctx, c, func() ([]byte, error) {
		resp, err := c.svc.Captions.Download(track.Id).Tfmt("srt").Context(ctx).Download()
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		return io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	})
	if err != nil {
		return engine.Transcript{}, fmt.Errorf("captions.download: %w", err)
	}

	items, err := parseSRT(body)
	if err != nil {
		return engine.Transcript{}, err
	}
	if len(items) == 0 {
		return engine.Transcript{}, fmt.Errorf("%w: empty caption file", engine.ErrAcquisition)
	}

	ct := engine.CaptionManual
	if strings.EqualFold(track.Snippet.TrackKind, "asr") {
		ct = engine.CaptionAuto
	}
	return engine.Transcript{
		Items:       items,
		Language:    track.Snippet.Language,
		CaptionType: ct,
		Source:      c.Name(),
	}, nil
}

// pickCaption prefers a standard track in a preferred language, then an ASR
// track in a preferred language, then the first track. Drafts are skipped.
func pickCaption(items []*youtube.Caption, langs []string) (*youtube.Caption, bool) {
	var usable []*youtube.Caption
	for _, it := range items {
		if it == nil || it.Snippet == nil || it.Snippet.IsDraft {
			continue
		}
		usable = append(usable, it)
	}
	if len(usable) == 0 {
		return nil, false
	}
	for _, asr := range []bool{false, true} {
		for _, lang := range langs {
			for _, it := range usable {
				if strings.EqualFold(it.Snippet.TrackKind, "asr") == asr && langMatches(it.Snippet.Language, lang) {
					return it, true
				}
			}
		}
	}
	return usable[0], true
}

// parseSRT converts an SRT caption file into items.
func parseSRT(data []byte) ([]engine.TranscriptItem, error) {
	subs, err := astisub.ReadFromSRT(strings.NewReader(string(data)))
	if err != nil {
		return nil, fmt.Errorf("parse srt: %w", err)
	}
	items := make([]engine.TranscriptItem, 0, len(subs.Items))
	for _, it := range subs.Items {
		var parts []string
		for _, line := range it.Lines {
			for _, li := range line.Items {
				if li.Text != "" {
					parts = append(parts, li.Text)
				}
			}
		}
		text := engine.CleanCaption(strings.Join(parts, " "))
		if text == "" {
			continue
		}
		items = append(items, engine.TranscriptItem{
			Text:       text,
			OffsetMs:   it.StartAt.Milliseconds(),
			DurationMs: (it.EndAt - it.StartAt).Milliseconds(),
		})
	}
	return items, nil
}

// callWithRetry rate-limits fn and retries quota and server errors with
// backoff. Client errors such as 403 and 404 mean no captions for us and
// are returned as acquisition failures.
func callWithRetry[T any](ctx context.Context, c *CaptionsAPI, fn func() (T, error)) (T, error) {
	op := func() (T, error) {
		var zero T
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return zero, backoff.Permanent(err)
			}
		}
		res, err := fn()
		if err == nil {
			return res, nil
		}
		var gerr *googleapi.Error
		if errors.As(err, &gerr) {
			switch {
			case gerr.Code == http.StatusTooManyRequests || gerr.Code >= 500:
				return zero, err
			default:
				return zero, backoff.Permanent(fmt.Errorf("%w: %v", engine.ErrAcquisition, err))
			}
		}
		return zero, backoff.Permanent(err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	res, err := backoff.Retry(ctx, op, backoff.WithBackOff(bo), backoff.WithMaxTries(3))
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
		var zero T
		return zero, err
	}
	return res, nil
}
