package sources

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anatolykoptev/go_ytchat/internal/engine"
)

type stubSource struct {
	name  string
	tr    engine.Transcript
	err   error
	calls int
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Fetch(context.Context, string) (engine.Transcript, error) {
	s.calls++
	return s.tr, s.err
}

func TestChainFallsThrough(t *testing.T) {
	first := &stubSource{name: "stub-first", err: errors.New("blocked")}
	second := &stubSource{name: "stub-second", tr: engine.Transcript{
		Items: []engine.TranscriptItem{{Text: "hi", DurationMs: 1000}},
	}}
	third := &stubSource{name: "stub-third"}

	before := engine.GetMetrics()
	tr, err := NewChain(first, second, third).Fetch(context.Background(), testVideoID)
	require.NoError(t, err)
	assert.Equal(t, "stub-second", tr.Source, "source name filled in")
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
	assert.Equal(t, 0, third.calls)

	after := engine.GetMetrics()
	assert.Equal(t, before["source_stub-first_failures"]+1, after["source_stub-first_failures"])
	assert.Equal(t, before["source_stub-second_attempts"]+1, after["source_stub-second_attempts"])
}

func TestChainAllFail(t *testing.T) {
	chain := NewChain(
		&stubSource{name: "a", err: errors.New("login required")},
		&stubSource{name: "b", err: fmt.Errorf("%w: no tracks", engine.ErrAcquisition)},
	)
	assert.Equal(t, "a,b", chain.Name())

	_, err := chain.Fetch(context.Background(), testVideoID)
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrAcquisition)
	assert.Equal(t, engine.KindAcquisition, engine.KindOf(err))
	assert.Contains(t, err.Error(), "a: login required")
	assert.Contains(t, err.Error(), "b: ")
}

func TestChainStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	second := &stubSource{name: "second"}
	_, err := NewChain(&stubSource{name: "first", err: context.Canceled}, second).Fetch(ctx, testVideoID)
	assert.ErrorIs(t, err, engine.ErrAcquisition)
	assert.Equal(t, 0, second.calls)
}

func TestChainEmpty(t *testing.T) {
	_, err := NewChain().Fetch(context.Background(), testVideoID)
	assert.ErrorIs(t, err, engine.ErrAcquisition)
}

func TestBuild(t *testing.T) {
	ctx := context.Background()

	t.Run("defaults", func(t *testing.T) {
		chain, meta, err := Build(ctx, engine.Config{})
		require.NoError(t, err)
		assert.Equal(t, "scrape,panel", chain.Name())
		require.IsType(t, MetadataChain{}, meta)
		assert.Len(t, meta.(MetadataChain), 1)
	})

	t.Run("captions without credentials skipped", func(t *testing.T) {
		chain, _, err := Build(ctx, engine.Config{TranscriptSources: []string{"panel", "captions", " Scrape "}})
		require.NoError(t, err)
		assert.Equal(t, "panel,scrape", chain.Name())
	})

	t.Run("only captions without credentials", func(t *testing.T) {
		_, _, err := Build(ctx, engine.Config{TranscriptSources: []string{"captions"}})
		assert.Error(t, err)
	})

	t.Run("unknown source", func(t *testing.T) {
		_, _, err := Build(ctx, engine.Config{TranscriptSources: []string{"scrape", "whisper"}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "whisper")
	})

	t.Run("token file enables captions", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "token.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"access_token":"abc","token_type":"Bearer"}`), 0o600))
		chain, _, err := Build(ctx, engine.Config{
			TranscriptSources:     []string{"captions", "scrape"},
			YouTubeOAuthTokenFile: path,
		})
		require.NoError(t, err)
		assert.Equal(t, "captions,scrape", chain.Name())
	})

	t.Run("api key adds data api but not captions", func(t *testing.T) {
		chain, meta, err := Build(ctx, engine.Config{
			TranscriptSources: []string{"captions", "scrape"},
			YouTubeAPIKey:     "test-key",
		})
		require.NoError(t, err)
		assert.Equal(t, "scrape", chain.Name())
		mc := meta.(MetadataChain)
		require.Len(t, mc, 2)
		assert.IsType(t, &DataAPIMetadata{}, mc[0])
		assert.IsType(t, &PageMetadata{}, mc[1])
	})
}
