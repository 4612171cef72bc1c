package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics tracks operational counters across the engine.
var metrics struct {
	TranscriptLoads  atomic.Int64
	ChatRequests     atomic.Int64
	LLMCalls         atomic.Int64
	LLMErrors        atomic.Int64
	FallbackAnalyses atomic.Int64
	CoverageWarnings atomic.Int64
	FetchRequests    atomic.Int64
	FetchErrors      atomic.Int64
	MetadataFailures atomic.Int64
	CacheHits        atomic.Int64
	CacheMisses      atomic.Int64
	CacheEvictions   atomic.Int64
}

// Per-variant source counters, keyed by source name.
var (
	sourceAttempts sync.Map // string → *atomic.Int64
	sourceFailures sync.Map
)

func counter(m *sync.Map, name string) *atomic.Int64 {
	v, _ := m.LoadOrStore(name, new(atomic.Int64))
	return v.(*atomic.Int64)
}

// IncrSourceAttempt counts one fetch attempt by the named transcript source.
func IncrSourceAttempt(name string) { counter(&sourceAttempts, name).Add(1) }

// IncrSourceFailure counts one failed fetch by the named transcript source.
func IncrSourceFailure(name string) { counter(&sourceFailures, name).Add(1) }

// IncrMetadataFailure counts a title lookup that degraded to defaults.
func IncrMetadataFailure() { metrics.MetadataFailures.Add(1) }

// GetMetrics returns a snapshot of all counters.
func GetMetrics() map[string]int64 {
	m := map[string]int64{
		"transcript_loads":  metrics.TranscriptLoads.Load(),
		"chat_requests":     metrics.ChatRequests.Load(),
		"llm_calls":         metrics.LLMCalls.Load(),
		"llm_errors":        metrics.LLMErrors.Load(),
		"fallback_analyses": metrics.FallbackAnalyses.Load(),
		"coverage_warnings": metrics.CoverageWarnings.Load(),
		"fetch_requests":    metrics.FetchRequests.Load(),
		"fetch_errors":      metrics.FetchErrors.Load(),
		"metadata_failures": metrics.MetadataFailures.Load(),
		"cache_hits":        metrics.CacheHits.Load(),
		"cache_misses":      metrics.CacheMisses.Load(),
		"cache_evictions":   metrics.CacheEvictions.Load(),
	}
	sourceAttempts.Range(func(k, v any) bool {
		m["source_"+k.(string)+"_attempts"] = v.(*atomic.Int64).Load()
		return true
	})
	sourceFailures.Range(func(k, v any) bool {
		m["source_"+k.(string)+"_failures"] = v.(*atomic.Int64).Load()
		return true
	})
	return m
}

// FormatMetrics returns metrics as a simple text format for HTTP endpoint.
func FormatMetrics() string {
	m := GetMetrics()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s %d\n", k, m[k])
	}
	return sb.String()
}

// TrackOperation logs a warning if an operation takes longer than threshold.
func TrackOperation(ctx context.Context, name string, threshold time.Duration, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	if elapsed > threshold {
		slog.Warn("slow operation", slog.String("op", name), slog.Duration("elapsed", elapsed))
	}
	return err
}
