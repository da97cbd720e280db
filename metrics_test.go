package ghbridge

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveRetry(t *testing.T) {
	before := testutil.ToFloat64(retriesTotal.WithLabelValues(retryReasonConnection))
	observeRetry(retryReasonConnection)
	observeRetry(retryReasonConnection)
	assert.Equal(t, before+2, testutil.ToFloat64(retriesTotal.WithLabelValues(retryReasonConnection)))
}

func TestObserveWait(t *testing.T) {
	counter := rateLimitWaits.WithLabelValues("search", waitSourceChecker)
	before := testutil.ToFloat64(counter)
	observeWait(CategorySearch, waitSourceChecker)
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestObserveRateLimit_SkipsUnknownRecords(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	observeRateLimit(CategoryGraphQL, RateLimitRecord{Limit: 5000, Remaining: 4321, ResetEpochSeconds: now.Unix() + 60})
	assert.Equal(t, 4321.0, testutil.ToFloat64(rateLimitRemaining.WithLabelValues("graphql")))

	observeRateLimit(CategoryGraphQL, UnknownRateLimitRecord(now))
	assert.Equal(t, 4321.0, testutil.ToFloat64(rateLimitRemaining.WithLabelValues("graphql")))
}

func TestObserveResponse(t *testing.T) {
	counter := requestsTotal.WithLabelValues("PATCH", "422")
	before := testutil.ToFloat64(counter)
	observeResponse("PATCH", 422, 30*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}
