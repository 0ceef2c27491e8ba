package analytics

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Fallbacks applied when a duration token cannot be parsed. They are
// deliberate: the dashboard keeps rendering with a sensible window and the
// caller gets a warning instead of an error.
const (
	DefaultTimeRange   = 24 * time.Hour
	DefaultGranularity = 5 * time.Minute
)

// ResolveTimeRange turns "<N>h", "<N>d" or "<N>w" into [now-N, now]. Any
// other token resolves to the last 24 hours with ok=false.
func ResolveTimeRange(token string, now time.Time) (start, end time.Time, ok bool) {
	end = now.UTC()
	d, ok := parseToken(token, map[byte]time.Duration{
		'h': time.Hour,
		'd': 24 * time.Hour,
		'w': 7 * 24 * time.Hour,
	})
	if !ok {
		d = DefaultTimeRange
	}
	return end.Add(-d), end, ok
}

// ResolveGranularity turns "<N>m", "<N>h" or "<N>d" into a bucket width. Any
// other token resolves to five minutes with ok=false.
func ResolveGranularity(token string) (time.Duration, bool) {
	d, ok := parseToken(token, map[byte]time.Duration{
		'm': time.Minute,
		'h': time.Hour,
		'd': 24 * time.Hour,
	})
	if !ok {
		return DefaultGranularity, false
	}
	return d, true
}

func parseToken(token string, units map[byte]time.Duration) (time.Duration, bool) {
	token = strings.TrimSpace(token)
	if len(token) < 2 {
		return 0, false
	}
	unit, ok := units[token[len(token)-1]]
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(token[:len(token)-1])
	if err != nil || n <= 0 {
		return 0, false
	}
	// Larger counts overflow time.Duration.
	if int64(n) > math.MaxInt64/int64(unit) {
		return 0, false
	}
	return time.Duration(n) * unit, true
}
