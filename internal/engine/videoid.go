package engine

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var videoIDRE = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// ValidVideoID reports whether id has the shape of a YouTube video id.
func ValidVideoID(id string) bool {
	return videoIDRE.MatchString(id)
}

// ExtractVideoID resolves a YouTube URL to its 11-char video id.
// youtube.com hosts use the v query parameter; youtu.be hosts use the first
// path segment with a leading "@" stripped.
func ExtractVideoID(rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", fmt.Errorf("%w: url is required", ErrInvalidInput)
	}
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: malformed url", ErrInvalidInput)
	}

	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	host = strings.TrimPrefix(host, "m.")

	var id string
	switch {
	case host == "youtube.com" || strings.HasSuffix(host, ".youtube.com"):
		id = u.Query().Get("v")
	case host == "youtu.be":
		seg := strings.TrimPrefix(u.Path, "/")
		if i := strings.IndexByte(seg, '/'); i >= 0 {
			seg = seg[:i]
		}
		id = strings.TrimPrefix(seg, "@")
	default:
		return "", fmt.Errorf("%w: not a YouTube url", ErrInvalidInput)
	}

	if !ValidVideoID(id) {
		return "", fmt.Errorf("%w: invalid YouTube video id", ErrInvalidInput)
	}
	return id, nil
}
