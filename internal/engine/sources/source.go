package sources

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anatolykoptev/go_ytchat/internal/engine"
)

// Chain tries transcript sources in order and returns the first transcript.
// When every source fails the error wraps engine.ErrAcquisition and carries
// the per-source causes for the logs.
type Chain struct {
	sources []engine.TranscriptSource
}

// NewChain returns a Chain over srcs.
func NewChain(srcs ...engine.TranscriptSource) *Chain {
	return &Chain{sources: srcs}
}

func (c *Chain) Name() string {
	names := make([]string, len(c.sources))
	for i, s := range c.sources {
		names[i] = s.Name()
	}
	return strings.Join(names, ",")
}

func (c *Chain) Fetch(ctx context.Context, videoID string) (engine.Transcript, error) {
	var errs []error
	for _, s := range c.sources {
		engine.IncrSourceAttempt(s.Name())
		tr, err := s.Fetch(ctx, videoID)
		if err == nil {
			if tr.Source == "" {
				tr.Source = s.Name()
			}
			return tr, nil
		}
		engine.IncrSourceFailure(s.Name())
		slog.Warn("youtube: transcript source failed",
			slog.String("source", s.Name()),
			slog.String("video_id", videoID),
			slog.Any("error", err))
		errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		if ctx.Err() != nil {
			break
		}
	}
	if len(errs) == 0 {
		return engine.Transcript{}, fmt.Errorf("%w: no transcript sources configured", engine.ErrAcquisition)
	}
	return engine.Transcript{}, fmt.Errorf("%w: %w", engine.ErrAcquisition, errors.Join(errs...))
}

// DefaultOrder is used when no source list is configured.
var DefaultOrder = []string{"scrape", "panel"}

// DefaultLangs is used when no caption language preference is configured.
var DefaultLangs = []string{"en", "ms"}

// Build assembles the transcript chain and the metadata lookup from cfg.
// Unknown source names are an error. The captions source is skipped with a
// warning without an OAuth token file, since captions.download rejects API
// keys. An API key alone only enables the Data API metadata lookup.
func Build(ctx context.Context, cfg engine.Config) (*Chain, engine.MetadataLookup, error) {
	client := cfg.FetchClient()
	langs := cfg.TranscriptLangs
	if len(langs) == 0 {
		langs = DefaultLangs
	}
	order := cfg.TranscriptSources
	if len(order) == 0 {
		order = DefaultOrder
	}

	var srcs []engine.TranscriptSource
	for _, name := range order {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "scrape":
			srcs = append(srcs, NewScraper(client, langs))
		case "panel":
			srcs = append(srcs, NewPanel(client, langs))
		case "captions":
			if cfg.YouTubeOAuthTokenFile == "" {
				slog.Warn("youtube: captions source needs YOUTUBE_OAUTH_TOKEN_FILE, skipped")
				continue
			}
			c, err := NewCaptionsAPI(ctx, CaptionsConfig{
				TokenFile:    cfg.YouTubeOAuthTokenFile,
				ClientID:     cfg.YouTubeOAuthClientID,
				ClientSecret: cfg.YouTubeOAuthClientSecret,
				RPS:          cfg.CaptionsRPS,
				Langs:        langs,
			})
			if err != nil {
				return nil, nil, err
			}
			srcs = append(srcs, c)
		case "":
		default:
			return nil, nil, fmt.Errorf("unknown transcript source %q", name)
		}
	}
	if len(srcs) == 0 {
		return nil, nil, errors.New("no transcript sources enabled")
	}

	var meta MetadataChain
	if cfg.YouTubeAPIKey != "" {
		m, err := NewDataAPIMetadata(ctx, cfg.YouTubeAPIKey)
		if err != nil {
			return nil, nil, err
		}
		meta = append(meta, m)
	}
	meta = append(meta, NewPageMetadata(client))

	return NewChain(srcs...), meta, nil
}
