package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

// Defaults used when a title lookup fails.
const (
	DefaultTitle  = "YouTube Video"
	DefaultAuthor = "Unknown"
)

// ServiceConfig wires the collaborators of a Service.
type ServiceConfig struct {
	Source    TranscriptSource
	Metadata  MetadataLookup // optional
	Completer Completer
	Cache     VideoCache // nil = unbounded in-process cache

	FetchTimeout    time.Duration
	MetadataTimeout time.Duration
	LLMTimeout      time.Duration
}

// Service runs the load and chat pipelines.
type Service struct {
	source    TranscriptSource
	metadata  MetadataLookup
	completer Completer
	analyzer  *Analyzer
	cache     VideoCache

	fetchTimeout    time.Duration
	metadataTimeout time.Duration
	llmTimeout      time.Duration

	loads singleflight.Group
}

// NewService builds a Service from sc.
func NewService(sc ServiceConfig) *Service {
	cache := sc.Cache
	if cache == nil {
		cache = NewTieredCache(CachePolicy{})
	}
	return &Service{
		source:          sc.Source,
		metadata:        sc.Metadata,
		completer:       sc.Completer,
		analyzer:        NewAnalyzer(sc.Completer, sc.LLMTimeout),
		cache:           cache,
		fetchTimeout:    sc.FetchTimeout,
		metadataTimeout: sc.MetadataTimeout,
		llmTimeout:      sc.LLMTimeout,
	}
}

// Cache returns the video cache.
func (s *Service) Cache() VideoCache { return s.cache }

// LoadResult is the outcome of LoadVideo.
type LoadResult struct {
	Bundle   VideoBundle
	Analysis AnalysisResult
	Cached   bool // served from cache without acquisition
}

// LoadVideo resolves rawURL to a video id and loads it.
func (s *Service) LoadVideo(ctx context.Context, rawURL string) (LoadResult, error) {
	id, err := ExtractVideoID(rawURL)
	if err != nil {
		return LoadResult{}, err
	}
	return s.LoadVideoID(ctx, id)
}

// LoadVideoID returns the cached bundle and analysis for id, or fetches,
// chunks and analyzes the transcript and caches the result. Concurrent loads
// of the same uncached id share one acquisition and analysis.
func (s *Service) LoadVideoID(ctx context.Context, id string) (LoadResult, error) {
	if !ValidVideoID(id) {
		return LoadResult{}, fmt.Errorf("%w: invalid YouTube video id", ErrInvalidInput)
	}
	metrics.TranscriptLoads.Add(1)

	if b, a, ok := s.cache.Get(ctx, id); ok {
		return LoadResult{Bundle: b, Analysis: a, Cached: true}, nil
	}

	// The shared load outlives any single caller; the stage timeouts bound it.
	shared := context.WithoutCancel(ctx)
	ch := s.loads.DoChan(id, func() (any, error) {
		// A load that finished between the miss above and this call has
		// already filled the cache.
		if b, a, ok := s.cache.Get(shared, id); ok {
			return LoadResult{Bundle: b, Analysis: a, Cached: true}, nil
		}
		return s.load(shared, id)
	})
	select {
	case r := <-ch:
		if r.Err != nil {
			return LoadResult{}, r.Err
		}
		return r.Val.(LoadResult), nil
	case <-ctx.Done():
		return LoadResult{}, ctx.Err()
	}
}

func (s *Service) load(ctx context.Context, id string) (LoadResult, error) {
	start := time.Now()

	infoCh := make(chan VideoInfo, 1)
	go func() { infoCh <- s.lookupMetadata(ctx, id) }()

	tr, err := s.fetchTranscript(ctx, id)
	if err != nil {
		return LoadResult{}, err
	}
	info := <-infoCh

	items := NormalizeItems(tr.Items)
	chunks, totalMs := ChunkTranscript(items)
	meta := VideoMetadata{
		Title:           info.Title,
		DurationSeconds: int(totalMs / 1000),
		Author:          info.Author,
	}
	lang := ResolveLanguage(tr.Language, chunks)
	captionType := tr.CaptionType
	if captionType == "" {
		captionType = CaptionUnknown
	}

	analysis, err := s.analyzer.Analyze(ctx, items, meta, lang)
	if err != nil {
		return LoadResult{}, err
	}

	bundle := VideoBundle{
		VideoID:     id,
		Metadata:    meta,
		Transcript:  items,
		Chunks:      chunks,
		Language:    lang,
		CaptionType: captionType,
	}
	s.cache.Put(ctx, id, bundle, analysis)

	slog.Info("video loaded",
		slog.String("video_id", id),
		slog.String("source", tr.Source),
		slog.String("language", lang),
		slog.String("caption_type", string(captionType)),
		slog.Int("items", len(items)),
		slog.Int("chunks", len(chunks)),
		slog.Duration("elapsed", time.Since(start)))
	return LoadResult{Bundle: bundle, Analysis: analysis}, nil
}

func (s *Service) fetchTranscript(ctx context.Context, id string) (Transcript, error) {
	parent := ctx
	if s.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.fetchTimeout)
		defer cancel()
	}
	var tr Transcript
	err := TrackOperation(ctx, "fetch_transcript", 10*time.Second, func(ctx context.Context) error {
		var err error
		tr, err = s.source.Fetch(ctx, id)
		return err
	})
	if err != nil {
		// Cancellation by the caller says nothing about the video.
		if perr := parent.Err(); perr != nil {
			return Transcript{}, fmt.Errorf("fetch transcript: %w", perr)
		}
		if !errors.Is(err, ErrAcquisition) {
			err = fmt.Errorf("%w: %v", ErrAcquisition, err)
		}
		return Transcript{}, err
	}
	if len(NormalizeItems(tr.Items)) == 0 {
		return Transcript{}, fmt.Errorf("%w: empty transcript from %s", ErrAcquisition, tr.Source)
	}
	return tr, nil
}

// lookupMetadata never fails; errors degrade to DefaultTitle/DefaultAuthor.
func (s *Service) lookupMetadata(ctx context.Context, id string) VideoInfo {
	info := VideoInfo{Title: DefaultTitle, Author: DefaultAuthor}
	if s.metadata == nil {
		return info
	}
	if s.metadataTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.metadataTimeout)
		defer cancel()
	}
	got, err := s.metadata.Lookup(ctx, id)
	if err != nil {
		IncrMetadataFailure()
		slog.Warn("metadata lookup failed", slog.String("video_id", id), slog.Any("error", err))
		return info
	}
	if t := strings.TrimSpace(got.Title); t != "" {
		info.Title = t
	}
	if a := strings.TrimSpace(got.Author); a != "" {
		info.Author = a
	}
	return info
}

// Chat answers message about a previously loaded video.
func (s *Service) Chat(ctx context.Context, videoID, message string) (string, error) {
	metrics.ChatRequests.Add(1)
	message = strings.TrimSpace(message)
	if message == "" {
		return "", fmt.Errorf("%w: message is required", ErrInvalidInput)
	}
	if !ValidVideoID(videoID) {
		return "", fmt.Errorf("%w: invalid YouTube video id", ErrInvalidInput)
	}

	bundle, analysis, ok := s.cache.Get(ctx, videoID)
	if !ok {
		return "", ErrVideoNotLoaded
	}

	relevant := MatchChunks(bundle.Chunks, message, analysis)
	prompt := BuildChatContext(message, bundle.Metadata, analysis, relevant, bundle.Language)

	if s.llmTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.llmTimeout)
		defer cancel()
	}
	metrics.LLMCalls.Add(1)
	reply, err := s.completer.Complete(ctx, CompletionRequest{
		System: Prompts(bundle.Language).ChatSystem,
		Prompt: prompt,
	})
	if err != nil {
		metrics.LLMErrors.Add(1)
		return "", fmt.Errorf("%w: chat: %v", ErrUpstreamLLM, err)
	}
	slog.Debug("chat answered",
		slog.String("video_id", videoID),
		slog.String("question", TruncateAtWord(message, 80)),
		slog.Int("chunks", len(relevant)),
		slog.Int("context_chars", len(prompt)))
	return reply, nil
}
