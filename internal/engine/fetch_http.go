package engine

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxBodyBytes caps a single YouTube response; watch pages run ~1-2 MB.
const maxBodyBytes = 8 << 20

// newFetchClient creates an HTTP client with proper settings for YouTube requests.
func newFetchClient() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 5,
			IdleConnTimeout:     30 * time.Second,
			TLSHandshakeTimeout: 15 * time.Second,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return errors.New("stopped after 10 redirects")
			}
			return nil
		},
	}
}

// FetchWithRetry GETs url with the given headers and returns the body.
// 429 and 5xx are retried with backoff; other non-200 statuses fail at once.
func FetchWithRetry(ctx context.Context, client *http.Client, url string, headers map[string]string) ([]byte, error) {
	return DoWithRetry(ctx, client, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		if _, ok := headers["User-Agent"]; !ok {
			req.Header.Set("User-Agent", UserAgentChrome)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		return req, nil
	})
}

// PostJSONWithRetry POSTs body as JSON and returns the response body.
func PostJSONWithRetry(ctx context.Context, client *http.Client, url string, body []byte, headers map[string]string) ([]byte, error) {
	return DoWithRetry(ctx, client, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		return req, nil
	})
}

// DoWithRetry sends the request built by newReq, retrying transient failures.
// newReq is called once per attempt so request bodies are fresh.
func DoWithRetry(ctx context.Context, client *http.Client, newReq func() (*http.Request, error)) ([]byte, error) {
	metrics.FetchRequests.Add(1)
	resp, err := RetryHTTP(ctx, DefaultRetryConfig, func() (*http.Response, error) {
		req, err := newReq()
		if err != nil {
			return nil, err
		}
		if req.Header.Get("Accept-Encoding") == "" {
			req.Header.Set("Accept-Encoding", "gzip")
		}
		return client.Do(req)
	})
	if err != nil {
		metrics.FetchErrors.Add(1)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.FetchErrors.Add(1)
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return readResponseBody(resp)
}

// readResponseBody reads the response body, handling gzip decompression if needed.
func readResponseBody(resp *http.Response) ([]byte, error) {
	var r io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		r = gz
	}
	return io.ReadAll(io.LimitReader(r, maxBodyBytes))
}
