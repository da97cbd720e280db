// rate_limit_checker.go
// ---------------------
// The RateLimitChecker runs before each request and holds it back while
// the category's RateLimitPolicy says the remaining quota is too low.
//
// Flow for one request:
// 1. Fetch the current record (cached unless expired).
// 2. Ask the policy how long to wait.
// 3. If it says wait, sleep that long plus one second, then force a fresh
//    /rate_limit read and ask again.
package ghbridge

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/opengovern/ghbridge/internal/clock"
)

// resetGranularity pads every policy wait. The reset header is
// second-accurate, so waking exactly on it can still be early.
const resetGranularity = time.Second

// RateLimitSource supplies rate limit records to the checker. refresh asks
// for a record fetched from the server rather than the cached one.
type RateLimitSource interface {
	CurrentRateLimit(ctx context.Context, category RateLimitCategory, refresh bool) (RateLimitRecord, error)
}

// RateLimitChecker holds one policy per category. Categories without a
// policy are never held back. The zero value checks nothing.
type RateLimitChecker struct {
	policies map[RateLimitCategory]RateLimitPolicy
	clock    clock.Clock
	logger   *slog.Logger
}

// NewRateLimitChecker returns a checker without policies.
func NewRateLimitChecker() *RateLimitChecker {
	return &RateLimitChecker{policies: make(map[RateLimitCategory]RateLimitPolicy)}
}

// WithPolicy returns a copy of c that applies policy to category.
func (c *RateLimitChecker) WithPolicy(category RateLimitCategory, policy RateLimitPolicy) *RateLimitChecker {
	out := c.clone()
	out.policies[category] = policy
	return out
}

// Policy returns the policy for category, or nil.
func (c *RateLimitChecker) Policy(category RateLimitCategory) RateLimitPolicy {
	return c.policies[category]
}

func (c *RateLimitChecker) clone() *RateLimitChecker {
	out := &RateLimitChecker{
		policies: make(map[RateLimitCategory]RateLimitPolicy, len(c.policies)),
		clock:    c.clock,
		logger:   c.logger,
	}
	for k, v := range c.policies {
		out.policies[k] = v
	}
	return out
}

// bind returns a copy that sleeps on clk and logs to logger.
func (c *RateLimitChecker) bind(clk clock.Clock, logger *slog.Logger) *RateLimitChecker {
	out := c.clone()
	out.clock = clk
	out.logger = logger
	return out
}

// CheckRateLimit blocks until the policy for req's category lets it
// through. It returns ErrInterrupted if ctx ends during a wait.
func (c *RateLimitChecker) CheckRateLimit(ctx context.Context, source RateLimitSource, req *Request) error {
	category := req.Category()
	if category == CategoryNone {
		return nil
	}
	policy := c.policies[category]
	if policy == nil {
		return nil
	}

	clk := c.clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := c.logger
	if logger == nil {
		logger = slog.Default()
	}

	refresh := false
	for waitCount := 0; ; waitCount++ {
		record, err := source.CurrentRateLimit(ctx, category, refresh)
		if err != nil {
			return err
		}

		now := clk.Now()
		wait := policy.CheckRateLimit(record, waitCount, now)
		if wait <= 0 {
			return nil
		}
		wait += resetGranularity

		logger.Debug("rate limit policy holding request",
			"category", category.String(),
			"remaining", record.Remaining,
			"limit", record.Limit,
			"wait", wait,
			"wait_count", waitCount,
			"url", req.URL().String())
		observeWait(category, waitSourceChecker)

		if err := sleep(ctx, clk, wait); err != nil {
			return err
		}
		refresh = true
	}
}

// NoWaitPolicy never holds a request back.
type NoWaitPolicy struct{}

func (NoWaitPolicy) CheckRateLimit(RateLimitRecord, int, time.Time) time.Duration { return 0 }

// LiteralValuePolicy waits for the window to reset once the remaining
// quota is at or below SleepAtOrBelow.
type LiteralValuePolicy struct {
	SleepAtOrBelow int
}

func (p LiteralValuePolicy) CheckRateLimit(record RateLimitRecord, _ int, now time.Time) time.Duration {
	if record.IsUnknown() || record.Remaining > p.SleepAtOrBelow {
		return 0
	}
	return untilReset(record, now)
}

// PercentagePolicy waits for the window to reset once the remaining quota
// is at or below Percent percent of the limit.
type PercentagePolicy struct {
	Percent int
}

func (p PercentagePolicy) CheckRateLimit(record RateLimitRecord, _ int, now time.Time) time.Duration {
	if record.IsUnknown() {
		return 0
	}
	threshold := record.Limit * p.Percent / 100
	if record.Remaining > threshold {
		return 0
	}
	return untilReset(record, now)
}

// ThrottlePolicy spreads the remaining quota evenly over the rest of the
// window instead of spending it in a burst and then stalling.
type ThrottlePolicy struct {
	// Burst is the number of requests allowed back to back. Defaults to 1.
	Burst int

	once    sync.Once
	limiter *rate.Limiter
}

// NewThrottlePolicy returns a ThrottlePolicy with the given burst.
func NewThrottlePolicy(burst int) *ThrottlePolicy {
	return &ThrottlePolicy{Burst: burst}
}

func (p *ThrottlePolicy) CheckRateLimit(record RateLimitRecord, waitCount int, now time.Time) time.Duration {
	if record.IsUnknown() {
		return 0
	}
	if record.Remaining <= 0 {
		return untilReset(record, now)
	}
	// The reservation made before the previous wait has been served.
	if waitCount > 0 {
		return 0
	}

	p.once.Do(func() {
		burst := p.Burst
		if burst <= 0 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Inf, burst)
	})

	window := record.ResetDate().Sub(now)
	if window <= 0 {
		return 0
	}
	p.limiter.SetLimitAt(now, rate.Limit(float64(record.Remaining)/window.Seconds()))
	return p.limiter.ReserveN(now, 1).DelayFrom(now)
}

func untilReset(record RateLimitRecord, now time.Time) time.Duration {
	wait := record.ResetDate().Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}
