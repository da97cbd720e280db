package ghbridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opengovern/ghbridge/internal/clock"
)

type scriptedSource struct {
	records   []RateLimitRecord
	refreshes []bool
	err       error
}

func (s *scriptedSource) CurrentRateLimit(_ context.Context, _ RateLimitCategory, refresh bool) (RateLimitRecord, error) {
	s.refreshes = append(s.refreshes, refresh)
	if s.err != nil {
		return RateLimitRecord{}, s.err
	}
	r := s.records[0]
	if len(s.records) > 1 {
		s.records = s.records[1:]
	}
	return r, nil
}

func TestLiteralValuePolicy(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	policy := LiteralValuePolicy{SleepAtOrBelow: 10}

	assert.Zero(t, policy.CheckRateLimit(record(11, now.Unix()+60), 0, now))
	assert.Equal(t, 60*time.Second, policy.CheckRateLimit(record(10, now.Unix()+60), 0, now))
	assert.Zero(t, policy.CheckRateLimit(record(0, now.Unix()-1), 0, now))
	assert.Zero(t, policy.CheckRateLimit(UnknownRateLimitRecord(now), 0, now))
}

func TestPercentagePolicy(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	policy := PercentagePolicy{Percent: 10}

	assert.Zero(t, policy.CheckRateLimit(record(501, now.Unix()+60), 0, now))
	assert.Equal(t, 60*time.Second, policy.CheckRateLimit(record(500, now.Unix()+60), 0, now))
}

func TestNoWaitPolicy(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	assert.Zero(t, NoWaitPolicy{}.CheckRateLimit(record(0, now.Unix()+60), 0, now))
}

func TestThrottlePolicy_SpreadsQuota(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	policy := NewThrottlePolicy(1)

	// 10 requests left for 100 seconds: one every 10 seconds.
	r := record(10, now.Unix()+100)
	assert.Zero(t, policy.CheckRateLimit(r, 0, now))
	wait := policy.CheckRateLimit(r, 0, now)
	assert.InDelta(t, (10 * time.Second).Seconds(), wait.Seconds(), 0.01)

	// The reservation behind a wait is not charged twice.
	assert.Zero(t, policy.CheckRateLimit(r, 1, now.Add(wait)))

	assert.Equal(t, 100*time.Second, policy.CheckRateLimit(record(0, now.Unix()+100), 0, now))
}

func TestRateLimitChecker_WaitsAndRefreshes(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	fake := clock.Fake(start)
	checker := NewRateLimitChecker().
		WithPolicy(CategoryCore, LiteralValuePolicy{SleepAtOrBelow: 5}).
		bind(fake, nil)

	source := &scriptedSource{records: []RateLimitRecord{
		record(3, start.Unix()+60),
		record(4999, start.Unix()+3600),
	}}

	err := checker.CheckRateLimit(context.Background(), source, testRequest(t, "/repos/o/r"))
	require.NoError(t, err)
	// One second of slack is added to the policy's wait.
	assert.Equal(t, []time.Duration{61 * time.Second}, fake.Waits())
	assert.Equal(t, []bool{false, true}, source.refreshes)
}

type backoffPolicy struct{ waits []time.Duration }

func (p backoffPolicy) CheckRateLimit(_ RateLimitRecord, waitCount int, _ time.Time) time.Duration {
	if waitCount < len(p.waits) {
		return p.waits[waitCount]
	}
	return 0
}

func TestRateLimitChecker_PadsWaitsEndingBeforeReset(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	fake := clock.Fake(start)
	checker := NewRateLimitChecker().
		WithPolicy(CategoryCore, backoffPolicy{waits: []time.Duration{5 * time.Second, 10 * time.Second}}).
		bind(fake, nil)

	source := &scriptedSource{records: []RateLimitRecord{record(4000, start.Unix()+3600)}}

	err := checker.CheckRateLimit(context.Background(), source, testRequest(t, "/repos/o/r"))
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{6 * time.Second, 11 * time.Second}, fake.Waits())
	assert.Equal(t, []bool{false, true, true}, source.refreshes)
}

func TestRateLimitChecker_SkipsUnpolicedCategories(t *testing.T) {
	checker := NewRateLimitChecker().WithPolicy(CategoryCore, LiteralValuePolicy{SleepAtOrBelow: 5})
	source := &scriptedSource{err: errors.New("must not be called")}

	assert.NoError(t, checker.CheckRateLimit(context.Background(), source, testRequest(t, "/search/code")))
	assert.NoError(t, checker.CheckRateLimit(context.Background(), source, testRequest(t, "/rate_limit")))
	assert.Empty(t, source.refreshes)
}

func TestRateLimitChecker_WithPolicyDoesNotMutate(t *testing.T) {
	base := NewRateLimitChecker()
	derived := base.WithPolicy(CategorySearch, NoWaitPolicy{})

	assert.Nil(t, base.Policy(CategorySearch))
	assert.Equal(t, NoWaitPolicy{}, derived.Policy(CategorySearch))
}

func TestRateLimitChecker_InterruptedWait(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	checker := NewRateLimitChecker().
		WithPolicy(CategoryCore, LiteralValuePolicy{SleepAtOrBelow: 5}).
		bind(clock.Fake(start), nil)
	source := &scriptedSource{records: []RateLimitRecord{record(0, start.Unix()+60)}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := checker.CheckRateLimit(ctx, source, testRequest(t, "/repos/o/r"))
	assert.ErrorIs(t, err, ErrInterrupted)
}

func TestRateLimitChecker_SourceError(t *testing.T) {
	checker := NewRateLimitChecker().WithPolicy(CategoryCore, NoWaitPolicy{})
	boom := errors.New("boom")
	err := checker.CheckRateLimit(context.Background(), &scriptedSource{err: boom}, testRequest(t, "/repos/o/r"))
	assert.ErrorIs(t, err, boom)
}
