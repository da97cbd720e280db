// rate_limit_handler.go
// ---------------------
// Handlers decide what happens after GitHub has already refused a request:
// - RateLimitHandler for 403 with X-RateLimit-Remaining: 0 (primary limit).
// - AbuseLimitHandler for 403/429 with Retry-After (secondary limit).
//
// A handler returns the duration the executor should sleep before retrying,
// or an error that aborts the request.
package ghbridge

import (
	"time"

	"github.com/opengovern/ghbridge/internal"
)

const (
	// defaultLimitWait is used when the response does not say how long to
	// back off.
	defaultLimitWait = time.Minute

	minRateLimitWait = time.Second
)

// RateLimitHandlerFunc adapts a function to RateLimitHandler.
type RateLimitHandlerFunc func(info *ResponseInfo) (time.Duration, error)

func (f RateLimitHandlerFunc) HandleRateLimit(info *ResponseInfo) (time.Duration, error) {
	return f(info)
}

// AbuseLimitHandlerFunc adapts a function to AbuseLimitHandler.
type AbuseLimitHandlerFunc func(info *ResponseInfo) (time.Duration, error)

func (f AbuseLimitHandlerFunc) HandleAbuseLimit(info *ResponseInfo) (time.Duration, error) {
	return f(info)
}

// WaitRateLimitHandler waits until the window reported by the failing
// response resets. It is the default.
type WaitRateLimitHandler struct{}

func (WaitRateLimitHandler) HandleRateLimit(info *ResponseInfo) (time.Duration, error) {
	return rateLimitResetWait(info), nil
}

// FailRateLimitHandler aborts with *RateLimitError.
type FailRateLimitHandler struct{}

func (FailRateLimitHandler) HandleRateLimit(info *ResponseInfo) (time.Duration, error) {
	return 0, newRateLimitError(info)
}

func newRateLimitError(info *ResponseInfo) *RateLimitError {
	record, _ := parseRateLimitHeaders(info.header, info.ReceivedAt())
	return &RateLimitError{
		URL:    info.Request().URL().String(),
		Header: info.Headers(),
		Record: record,
	}
}

// WaitAbuseLimitHandler honors Retry-After, or waits one minute when the
// header cannot be parsed. It is the default.
type WaitAbuseLimitHandler struct{}

func (WaitAbuseLimitHandler) HandleAbuseLimit(info *ResponseInfo) (time.Duration, error) {
	return retryAfterWait(info), nil
}

// FailAbuseLimitHandler aborts with *AbuseLimitError.
type FailAbuseLimitHandler struct{}

func (FailAbuseLimitHandler) HandleAbuseLimit(info *ResponseInfo) (time.Duration, error) {
	return 0, &AbuseLimitError{
		URL:        info.Request().URL().String(),
		Header:     info.Headers(),
		RetryAfter: retryAfterWait(info),
	}
}

func rateLimitResetWait(info *ResponseInfo) time.Duration {
	record, ok := parseRateLimitHeaders(info.header, info.ReceivedAt())
	if !ok {
		return defaultLimitWait
	}
	wait := record.ResetDate().Sub(info.ReceivedAt())
	if wait < minRateLimitWait {
		wait = minRateLimitWait
	}
	return wait
}

func retryAfterWait(info *ResponseInfo) time.Duration {
	wait, ok := internal.ParseRetryAfter(info.Header("Retry-After"), info.ReceivedAt())
	if !ok {
		return defaultLimitWait
	}
	return wait
}
