// internal/time_parser.go
// ------------------------
// This internal package provides helpers for the time values GitHub sends in
// response headers. The rate limit tracker, the abuse handler and the
// rate limit handlers all read these headers, so the parsing lives here.
//
// Functions:
// - ParseEpochSeconds: X-RateLimit-Reset style UNIX timestamps.
// - ParseServerDate: the RFC 1123 Date header.
// - ParseRetryAfter: Retry-After as delta seconds or an HTTP date.
package internal

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ParseEpochSeconds parses a UNIX timestamp in seconds. The second result
// is false when the value is empty or not an integer.
func ParseEpochSeconds(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseServerDate parses an HTTP Date header.
func ParseServerDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	t, err := http.ParseTime(s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ParseRetryAfter converts a Retry-After header into a wait duration.
// Numeric values are seconds; otherwise the value is read as an HTTP date
// relative to now. Dates in the past yield zero.
func ParseRetryAfter(s string, now time.Time) (time.Duration, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	if seconds, err := strconv.ParseInt(s, 10, 64); err == nil {
		if seconds < 0 {
			return 0, true
		}
		return time.Duration(seconds) * time.Second, true
	}

	at, ok := ParseServerDate(s)
	if !ok {
		return 0, false
	}
	delay := at.Sub(now)
	if delay < 0 {
		return 0, true
	}
	return delay, true
}
