package ghbridge

import (
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func limitHeaders(remaining int, reset int64) http.Header {
	header := http.Header{}
	header.Set("X-RateLimit-Limit", "5000")
	header.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	header.Set("X-RateLimit-Reset", strconv.FormatInt(reset, 10))
	return header
}

func TestWaitRateLimitHandler(t *testing.T) {
	receivedAt := time.Unix(1_700_000_000, 0)

	info := testResponse(t, 403, limitHeaders(0, receivedAt.Unix()+90), nil)
	wait, err := WaitRateLimitHandler{}.HandleRateLimit(info)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, wait)

	// A reset already in the past still backs off briefly.
	info = testResponse(t, 403, limitHeaders(0, receivedAt.Unix()-5), nil)
	wait, _ = WaitRateLimitHandler{}.HandleRateLimit(info)
	assert.Equal(t, time.Second, wait)

	info = testResponse(t, 403, http.Header{"X-Ratelimit-Remaining": {"0"}}, nil)
	wait, _ = WaitRateLimitHandler{}.HandleRateLimit(info)
	assert.Equal(t, time.Minute, wait)
}

func TestFailRateLimitHandler(t *testing.T) {
	receivedAt := time.Unix(1_700_000_000, 0)
	info := testResponse(t, 403, limitHeaders(0, receivedAt.Unix()+90), nil)

	_, err := FailRateLimitHandler{}.HandleRateLimit(info)
	var rateErr *RateLimitError
	require.ErrorAs(t, err, &rateErr)
	assert.Equal(t, 0, rateErr.Record.Remaining)
	assert.Equal(t, "https://api.github.com/repos/o/r", rateErr.URL)
	assert.True(t, IsRateLimited(err))
}

func TestAbuseLimitHandlers(t *testing.T) {
	info := testResponse(t, 403, http.Header{"Retry-After": {"42"}}, nil)
	wait, err := WaitAbuseLimitHandler{}.HandleAbuseLimit(info)
	require.NoError(t, err)
	assert.Equal(t, 42*time.Second, wait)

	info = testResponse(t, 429, http.Header{"Retry-After": {"eventually"}}, nil)
	wait, _ = WaitAbuseLimitHandler{}.HandleAbuseLimit(info)
	assert.Equal(t, time.Minute, wait)

	info = testResponse(t, 403, http.Header{"Retry-After": {"5"}}, nil)
	_, err = FailAbuseLimitHandler{}.HandleAbuseLimit(info)
	var abuseErr *AbuseLimitError
	require.ErrorAs(t, err, &abuseErr)
	assert.Equal(t, 5*time.Second, abuseErr.RetryAfter)
}

func TestHandlerFuncs(t *testing.T) {
	var rl RateLimitHandler = RateLimitHandlerFunc(func(*ResponseInfo) (time.Duration, error) { return 3 * time.Second, nil })
	wait, err := rl.HandleRateLimit(nil)
	assert.NoError(t, err)
	assert.Equal(t, 3*time.Second, wait)

	var al AbuseLimitHandler = AbuseLimitHandlerFunc(func(*ResponseInfo) (time.Duration, error) { return 0, &AbuseLimitError{} })
	_, err = al.HandleAbuseLimit(nil)
	assert.Error(t, err)
}
