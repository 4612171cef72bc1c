package engine

import (
	"net/http"
	"time"
)

// Config holds all engine configuration, injected from main.
type Config struct {
	LLMProvider        string // "kit" (default) or "openai"
	LLMAPIKey          string
	LLMAPIKeyFallbacks []string
	LLMAPIBase         string
	LLMModel           string
	LLMTemperature     float64
	LLMMaxTokens       int
	LLMTimeout         time.Duration

	FetchTimeout      time.Duration
	MetadataTimeout   time.Duration
	TranscriptSources []string // ordered variant names: scrape, panel, captions
	TranscriptLangs   []string // preferred caption languages, first wins

	YouTubeAPIKey            string
	YouTubeOAuthTokenFile    string
	YouTubeOAuthClientID     string
	YouTubeOAuthClientSecret string
	CaptionsRPS              float64

	CacheMaxEntries      int
	CacheTTL             time.Duration
	CacheCleanupInterval time.Duration
	RedisURL             string

	PromptsFile string
	HTTPClient  *http.Client
}

var cfg Config

// Cfg exposes the engine configuration for sub-packages (sources).
// Always points to the current cfg value.
var Cfg = &cfg

// Init initializes the engine with the given configuration.
func Init(c Config) {
	cfg = c
	Cfg = &cfg
}

// LLMHTTPClient returns the client used for completion calls.
func (c Config) LLMHTTPClient() *http.Client {
	timeout := c.LLMTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// FetchClient returns the shared client for YouTube requests.
func (c Config) FetchClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return newFetchClient()
}
