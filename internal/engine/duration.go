package engine

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatDuration renders seconds as M:SS below one hour and H:MM:SS above.
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// FormatMs renders a millisecond offset with FormatDuration.
func FormatMs(ms int64) string {
	return FormatDuration(int(ms / 1000))
}

// ParseTimestamp converts "SS", "M:SS" or "H:MM:SS" to seconds by folding
// acc*60+part left to right.
func ParseTimestamp(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, false
	}
	total := 0
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 {
			return 0, false
		}
		total = total*60 + n
	}
	return total, true
}
