package engine

import (
	"context"
	"encoding/json"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testVideoID = "dQw4w9WgXcQ"

// fakeSource serves a fixed transcript and counts fetches.
type fakeSource struct {
	tr    Transcript
	err   error
	gate  chan struct{} // when set, Fetch blocks until closed
	calls atomic.Int32
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Fetch(ctx context.Context, _ string) (Transcript, error) {
	f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return Transcript{}, ctx.Err()
		}
	}
	return f.tr, f.err
}

type fakeMeta struct {
	info VideoInfo
	err  error
}

func (f fakeMeta) Lookup(context.Context, string) (VideoInfo, error) { return f.info, f.err }

// syncCompleter is a goroutine-safe fakeCompleter.
type syncCompleter struct {
	mu    sync.Mutex
	reply string
	err   error
	reqs  []CompletionRequest
}

func (f *syncCompleter) Complete(_ context.Context, req CompletionRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	return f.reply, f.err
}

func (f *syncCompleter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

func sampleTranscript() Transcript {
	return Transcript{
		Items: []TranscriptItem{
			{Text: "hello world", OffsetMs: 0, DurationMs: 2000},
			{Text: "more text\nhere", OffsetMs: 2000, DurationMs: 3000},
			{Text: "   ", OffsetMs: 5000, DurationMs: 1000},
		},
		Language:    "en",
		CaptionType: CaptionManual,
		Source:      "fake",
	}
}

func newTestService(src TranscriptSource, meta MetadataLookup, c Completer) *Service {
	return NewService(ServiceConfig{Source: src, Metadata: meta, Completer: c})
}

func TestServiceLoadVideo(t *testing.T) {
	src := &fakeSource{tr: sampleTranscript()}
	llm := &syncCompleter{reply: goodAnalysis}
	svc := newTestService(src, fakeMeta{info: VideoInfo{Title: "Never Gonna", Author: "Rick"}}, llm)

	res, err := svc.LoadVideo(context.Background(), "https://youtu.be/"+testVideoID)
	require.NoError(t, err)
	assert.False(t, res.Cached)

	b := res.Bundle
	assert.Equal(t, testVideoID, b.VideoID)
	assert.Equal(t, VideoMetadata{Title: "Never Gonna", DurationSeconds: 5, Author: "Rick"}, b.Metadata)
	require.Len(t, b.Transcript, 2, "blank cue dropped")
	require.Len(t, b.Chunks, 1)
	assert.Equal(t, "hello world more text here", b.Chunks[0].Text)
	assert.Equal(t, int64(0), b.Chunks[0].StartTimeMs)
	assert.Equal(t, int64(5000), b.Chunks[0].EndTimeMs)
	assert.Equal(t, "en", b.Language)
	assert.Equal(t, CaptionManual, b.CaptionType)
	assert.Equal(t, "A talk about Go concurrency.", res.Analysis.Summary)
}

func TestServiceLoadVideoCachedIsIdentical(t *testing.T) {
	src := &fakeSource{tr: sampleTranscript()}
	llm := &syncCompleter{reply: goodAnalysis}
	svc := newTestService(src, nil, llm)
	ctx := context.Background()

	first, err := svc.LoadVideoID(ctx, testVideoID)
	require.NoError(t, err)
	second, err := svc.LoadVideoID(ctx, testVideoID)
	require.NoError(t, err)
	assert.True(t, second.Cached)

	m1, _ := json.Marshal(first.Bundle.Metadata)
	m2, _ := json.Marshal(second.Bundle.Metadata)
	assert.Equal(t, m1, m2)
	a1, _ := json.Marshal(first.Analysis)
	a2, _ := json.Marshal(second.Analysis)
	assert.Equal(t, a1, a2)

	assert.Equal(t, int32(1), src.calls.Load())
	assert.Equal(t, 1, llm.calls())
}

func TestServiceLoadVideoDeduplicatesConcurrentLoads(t *testing.T) {
	src := &fakeSource{tr: sampleTranscript(), gate: make(chan struct{})}
	llm := &syncCompleter{reply: goodAnalysis}
	svc := newTestService(src, nil, llm)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.LoadVideoID(context.Background(), testVideoID)
		}(i)
	}
	// let the loads pile up behind the first fetch
	for src.calls.Load() == 0 {
		runtime.Gosched()
	}
	close(src.gate)
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), src.calls.Load())
	assert.Equal(t, 1, llm.calls())
}

func TestServiceLoadVideoSurvivesFirstCallerCancel(t *testing.T) {
	src := &fakeSource{tr: sampleTranscript(), gate: make(chan struct{})}
	llm := &syncCompleter{reply: goodAnalysis}
	svc := newTestService(src, nil, llm)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := svc.LoadVideoID(ctxA, testVideoID)
		errA <- err
	}()
	for src.calls.Load() == 0 {
		runtime.Gosched()
	}

	type result struct {
		res LoadResult
		err error
	}
	resB := make(chan result, 1)
	go func() {
		res, err := svc.LoadVideoID(context.Background(), testVideoID)
		resB <- result{res, err}
	}()

	cancelA()
	err := <-errA
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotEqual(t, KindAcquisition, KindOf(err))

	close(src.gate)
	b := <-resB
	require.NoError(t, b.err)
	assert.Equal(t, testVideoID, b.res.Bundle.VideoID)
	assert.Equal(t, int32(1), src.calls.Load())
	assert.Equal(t, 1, llm.calls())
}

func TestServiceFetchCancelIsNotAcquisition(t *testing.T) {
	// the gate never opens, so Fetch returns the context error
	src := &fakeSource{tr: sampleTranscript(), gate: make(chan struct{})}
	svc := newTestService(src, nil, &syncCompleter{reply: goodAnalysis})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.fetchTranscript(ctx, testVideoID)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, KindInternal, KindOf(err))

	svc = NewService(ServiceConfig{
		Source:       src,
		Completer:    &syncCompleter{reply: goodAnalysis},
		FetchTimeout: 20 * time.Millisecond,
	})
	_, err = svc.fetchTranscript(context.Background(), testVideoID)
	assert.ErrorIs(t, err, ErrAcquisition, "own fetch timeout is an acquisition failure")
}

func TestServiceLoadVideoErrors(t *testing.T) {
	ctx := context.Background()

	svc := newTestService(&fakeSource{}, nil, &syncCompleter{reply: goodAnalysis})
	_, err := svc.LoadVideo(ctx, "https://vimeo.com/1")
	assert.Equal(t, KindInvalidInput, KindOf(err))

	svc = newTestService(&fakeSource{err: errors.New("no tracks")}, nil, &syncCompleter{reply: goodAnalysis})
	_, err = svc.LoadVideoID(ctx, testVideoID)
	assert.ErrorIs(t, err, ErrAcquisition)
	assert.Equal(t, AcquisitionMessage, UserMessage(err))

	svc = newTestService(&fakeSource{tr: Transcript{Items: []TranscriptItem{{Text: " "}}}}, nil, &syncCompleter{reply: goodAnalysis})
	_, err = svc.LoadVideoID(ctx, testVideoID)
	assert.ErrorIs(t, err, ErrAcquisition)

	llm := &syncCompleter{err: errors.New("quota")}
	svc = newTestService(&fakeSource{tr: sampleTranscript()}, nil, llm)
	_, err = svc.LoadVideoID(ctx, testVideoID)
	assert.ErrorIs(t, err, ErrUpstreamLLM)
	assert.Zero(t, svc.Cache().Len(), "failed analysis must not be cached")
}

func TestServiceMetadataDegrades(t *testing.T) {
	svc := newTestService(&fakeSource{tr: sampleTranscript()}, fakeMeta{err: errors.New("403")}, &syncCompleter{reply: goodAnalysis})
	res, err := svc.LoadVideoID(context.Background(), testVideoID)
	require.NoError(t, err)
	assert.Equal(t, DefaultTitle, res.Bundle.Metadata.Title)
	assert.Equal(t, DefaultAuthor, res.Bundle.Metadata.Author)
}

func TestServiceLanguageAndCaptionDefaults(t *testing.T) {
	tr := sampleTranscript()
	tr.Language = "ms-MY"
	tr.CaptionType = ""
	svc := newTestService(&fakeSource{tr: tr}, nil, &syncCompleter{reply: goodAnalysis})
	res, err := svc.LoadVideoID(context.Background(), testVideoID)
	require.NoError(t, err)
	assert.Equal(t, "ms", res.Bundle.Language)
	assert.Equal(t, CaptionUnknown, res.Bundle.CaptionType)
}

func TestServiceChat(t *testing.T) {
	llm := &syncCompleter{reply: goodAnalysis}
	svc := newTestService(&fakeSource{tr: sampleTranscript()}, fakeMeta{info: VideoInfo{Title: "Demo"}}, llm)
	ctx := context.Background()

	_, err := svc.Chat(ctx, testVideoID, "what is said?")
	assert.ErrorIs(t, err, ErrVideoNotLoaded)
	assert.Equal(t, KindNotLoaded, KindOf(err))

	_, err = svc.LoadVideoID(ctx, testVideoID)
	require.NoError(t, err)

	llm.mu.Lock()
	llm.reply = "They say hello at [0:00]."
	llm.mu.Unlock()

	got, err := svc.Chat(ctx, testVideoID, "what happens at 0:01?")
	require.NoError(t, err)
	assert.Equal(t, "They say hello at [0:00].", got)

	llm.mu.Lock()
	req := llm.reqs[len(llm.reqs)-1]
	llm.mu.Unlock()
	assert.False(t, req.JSON)
	assert.Equal(t, Prompts("en").ChatSystem, req.System)
	assert.Contains(t, req.Prompt, "Video: Demo")
	assert.Contains(t, req.Prompt, "[0:00 - 0:05]\nhello world more text here")
	assert.Contains(t, req.Prompt, "User question: what happens at 0:01?")
}

func TestServiceChatValidation(t *testing.T) {
	svc := newTestService(&fakeSource{}, nil, &syncCompleter{})
	ctx := context.Background()

	_, err := svc.Chat(ctx, testVideoID, "  ")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.Chat(ctx, "short", "hi")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestServiceChatUpstreamError(t *testing.T) {
	llm := &syncCompleter{reply: goodAnalysis}
	svc := newTestService(&fakeSource{tr: sampleTranscript()}, nil, llm)
	ctx := context.Background()
	_, err := svc.LoadVideoID(ctx, testVideoID)
	require.NoError(t, err)

	llm.mu.Lock()
	llm.err = errors.New("timeout")
	llm.mu.Unlock()
	_, err = svc.Chat(ctx, testVideoID, "hello")
	assert.ErrorIs(t, err, ErrUpstreamLLM)
}
