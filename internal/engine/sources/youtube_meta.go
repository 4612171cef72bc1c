package sources

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/anatolykoptev/go_ytchat/internal/engine"
)

// PageMetadata reads title and channel name from the watch page markup.
type PageMetadata struct {
	Client    *http.Client
	Endpoints Endpoints
}

// NewPageMetadata returns a PageMetadata against www.youtube.com.
func NewPageMetadata(client *http.Client) *PageMetadata {
	return &PageMetadata{Client: client, Endpoints: DefaultEndpoints}
}

func (m *PageMetadata) Lookup(ctx context.Context, videoID string) (engine.VideoInfo, error) {
	body, err := engine.FetchWithRetry(ctx, m.Client, m.Endpoints.Watch+"?v="+videoID, map[string]string{
		"Accept":          "text/html,application/xhtml+xml",
		"Accept-Language": "en-US,en;q=0.9",
	})
	if err != nil {
		return engine.VideoInfo{}, fmt.Errorf("watch page: %w", err)
	}
	return parseWatchMetadata(body)
}

// parseWatchMetadata prefers the page's meta tags and falls back to the
// embedded player response.
func parseWatchMetadata(page []byte) (engine.VideoInfo, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return engine.VideoInfo{}, fmt.Errorf("parse watch page: %w", err)
	}

	var info engine.VideoInfo
	if v, ok := doc.Find(`meta[property="og:title"]`).First().Attr("content"); ok {
		info.Title = strings.TrimSpace(v)
	}
	if info.Title == "" {
		if v, ok := doc.Find(`meta[name="title"]`).First().Attr("content"); ok {
			info.Title = strings.TrimSpace(v)
		}
	}
	if v, ok := doc.Find(`span[itemprop="author"] link[itemprop="name"]`).First().Attr("content"); ok {
		info.Author = strings.TrimSpace(v)
	}

	if info.Title == "" || info.Author == "" {
		if pr, err := parsePlayerResponse(page); err == nil && pr.VideoDetails != nil {
			if info.Title == "" {
				info.Title = pr.VideoDetails.Title
			}
			if info.Author == "" {
				info.Author = pr.VideoDetails.Author
			}
		}
	}
	if info.Title == "" {
		return engine.VideoInfo{}, errors.New("no title in watch page")
	}
	return info, nil
}

// DataAPIMetadata looks videos up with the Data API videos.list call.
type DataAPIMetadata struct {
	svc *youtube.Service
}

// NewDataAPIMetadata builds a Data API client authenticated with apiKey.
func NewDataAPIMetadata(ctx context.Context, apiKey string, extra ...option.ClientOption) (*DataAPIMetadata, error) {
	opts := append([]option.ClientOption{option.WithAPIKey(apiKey)}, extra...)
	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("data api: youtube client: %w", err)
	}
	return &DataAPIMetadata{svc: svc}, nil
}

func (m *DataAPIMetadata) Lookup(ctx context.Context, videoID string) (engine.VideoInfo, error) {
	resp, err := m.svc.Videos.List([]string{"snippet"}).Id(videoID).Context(ctx).Do()
	if err != nil {
		return engine.VideoInfo{}, fmt.Errorf("videos.list: %w", err)
	}
	if len(resp.Items) == 0 || resp.Items[0].Snippet == nil {
		return engine.VideoInfo{}, fmt.Errorf("videos.list: %s not found", videoID)
	}
	sn := resp.Items[0].Snippet
	return engine.VideoInfo{Title: sn.Title, Author: sn.ChannelTitle}, nil
}

// MetadataChain asks each lookup in order and returns the first success.
type MetadataChain []engine.MetadataLookup

func (c MetadataChain) Lookup(ctx context.Context, videoID string) (engine.VideoInfo, error) {
	var errs []error
	for _, m := range c {
		info, err := m.Lookup(ctx, videoID)
		if err == nil {
			return info, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	if len(errs) == 0 {
		return engine.VideoInfo{}, errors.New("no metadata lookups configured")
	}
	return engine.VideoInfo{}, errors.Join(errs...)
}
