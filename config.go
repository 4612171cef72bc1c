package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/anatolykoptev/go-kit/env"

	"github.com/anatolykoptev/go_ytchat/internal/engine"
	"github.com/anatolykoptev/go_ytchat/internal/engine/sources"
)

func loadConfig() engine.Config {
	return engine.Config{
		LLMProvider:        env.Str("LLM_PROVIDER", "kit"),
		LLMAPIKey:          env.Str("LLM_API_KEY", ""),
		LLMAPIKeyFallbacks: env.List("LLM_API_KEY_FALLBACKS", ""),
		LLMAPIBase:         env.Str("LLM_API_BASE", "https://generativelanguage.googleapis.com/v1beta/openai"),
		LLMModel:           env.Str("LLM_MODEL", "gemini-2.5-flash"),
		LLMTemperature:     env.Float("LLM_TEMPERATURE", 0.3),
		LLMMaxTokens:       env.Int("LLM_MAX_TOKENS", 8192),
		LLMTimeout:         env.Duration("LLM_TIMEOUT", 90*time.Second),

		FetchTimeout:      env.Duration("FETCH_TIMEOUT", 45*time.Second),
		MetadataTimeout:   env.Duration("METADATA_TIMEOUT", 10*time.Second),
		TranscriptSources: env.List("TRANSCRIPT_SOURCES", "scrape,panel"),
		TranscriptLangs:   env.List("TRANSCRIPT_LANGS", "en,ms"),

		YouTubeAPIKey:            env.Str("YOUTUBE_API_KEY", ""),
		YouTubeOAuthTokenFile:    env.Str("YOUTUBE_OAUTH_TOKEN_FILE", ""),
		YouTubeOAuthClientID:     env.Str("YOUTUBE_OAUTH_CLIENT_ID", ""),
		YouTubeOAuthClientSecret: env.Str("YOUTUBE_OAUTH_CLIENT_SECRET", ""),
		CaptionsRPS:              env.Float("CAPTIONS_RPS", 2),

		CacheMaxEntries:      env.Int("CACHE_MAX_ENTRIES", 0),
		CacheTTL:             env.Duration("CACHE_TTL", 0),
		CacheCleanupInterval: env.Duration("CACHE_CLEANUP_INTERVAL", 5*time.Minute),
		RedisURL:             env.Str("REDIS_URL", ""),

		PromptsFile: env.Str("PROMPTS_FILE", ""),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     60 * time.Second,
			},
		},
	}
}

// app holds the wired service and what must be released on exit.
type app struct {
	svc   *engine.Service
	cache *engine.TieredCache
}

// Close releases the cache, which owns the Redis client when L2 is on.
func (a *app) Close() {
	if err := a.cache.Close(); err != nil {
		slog.Debug("cache close", slog.Any("error", err))
	}
}

func newApp(ctx context.Context, c engine.Config) (*app, error) {
	engine.Init(c)

	if c.PromptsFile != "" {
		langs, err := engine.LoadPromptsFile(c.PromptsFile)
		if err != nil {
			return nil, err
		}
		slog.Info("prompts loaded", slog.String("file", c.PromptsFile), slog.Any("languages", langs))
	}
	for _, lang := range c.TranscriptLangs {
		if !engine.HasPrompts(lang) {
			slog.Info("no prompt set for caption language, English prompts will be used", slog.String("language", lang))
		}
	}

	a := &app{}
	var opts []engine.CacheOption
	if c.RedisURL != "" {
		rdb, err := engine.ConnectRedis(ctx, c.RedisURL)
		if err != nil {
			slog.Warn("redis unavailable, running with in-process cache only", slog.Any("error", err))
		} else {
			opts = append(opts, engine.WithRedis(rdb))
		}
	}
	a.cache = engine.NewTieredCache(engine.CachePolicy{
		MaxEntries:      c.CacheMaxEntries,
		TTL:             c.CacheTTL,
		CleanupInterval: c.CacheCleanupInterval,
	}, opts...)

	chain, meta, err := sources.Build(ctx, c)
	if err != nil {
		a.Close()
		return nil, err
	}
	completer, err := engine.NewCompleter(c)
	if err != nil {
		a.Close()
		return nil, err
	}
	if c.LLMAPIKey == "" {
		slog.Warn("LLM_API_KEY is not set, completions will fail")
	}

	a.svc = engine.NewService(engine.ServiceConfig{
		Source:          chain,
		Metadata:        meta,
		Completer:       completer,
		Cache:           a.cache,
		FetchTimeout:    c.FetchTimeout,
		MetadataTimeout: c.MetadataTimeout,
		LLMTimeout:      c.LLMTimeout,
	})
	slog.Info("service ready",
		slog.String("sources", chain.Name()),
		slog.String("llm_provider", c.LLMProvider),
		slog.String("llm_model", c.LLMModel))
	return a, nil
}
