// config.go
// ----------
// This file defines BridgeConfig, which customizes a GitHubBridge: the API
// endpoint, credentials, transport, rate limit behaviour and retry budget.
//
// Unset fields fall back to defaults (see withDefaults). Overrides that
// must distinguish "unset" from zero are pointers.
package ghbridge

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/opengovern/ghbridge/internal/clock"
)

const (
	// DefaultBaseURL is the public GitHub REST endpoint.
	DefaultBaseURL = "https://api.github.com"

	DefaultMaxConnectionRetries   = 2
	DefaultConnectionRetryBackoff = 100 * time.Millisecond
)

// BridgeConfig configures a GitHubBridge.
type BridgeConfig struct {
	// BaseURL is the API root, e.g. https://ghe.example.com/api/v3.
	BaseURL string
	// Credential authorizes requests. Nil sends requests anonymously.
	Credential Credential
	// Connector performs the HTTP round trips. Defaults to NewHTTPConnector(nil).
	Connector Connector
	// UserAgent is sent on every request when set.
	UserAgent string

	// RateLimitChecker holds requests back before they are sent.
	RateLimitChecker *RateLimitChecker
	// RateLimitHandler reacts to exhausted primary limits. Defaults to waiting.
	RateLimitHandler RateLimitHandler
	// AbuseLimitHandler reacts to secondary limits. Defaults to waiting.
	AbuseLimitHandler AbuseLimitHandler

	// MaxConnectionRetries overrides the number of retries after transient
	// connection failures. Nil means DefaultMaxConnectionRetries.
	MaxConnectionRetries *int
	// ConnectionRetryBackoff overrides the pause between connection
	// retries. Nil means DefaultConnectionRetryBackoff.
	ConnectionRetryBackoff *time.Duration
	// MaxLimitRetries caps retries driven by the rate limit and abuse
	// handlers for one request. Zero means unbounded.
	MaxLimitRetries int

	Logger *slog.Logger
	Clock  clock.Clock
}

// Validate reports configuration errors.
func (c *BridgeConfig) Validate() error {
	var errs []error
	if c.BaseURL != "" {
		u, err := url.Parse(c.BaseURL)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("base URL: %w", err))
		case u.Scheme != "http" && u.Scheme != "https":
			errs = append(errs, fmt.Errorf("base URL %q must be http or https", c.BaseURL))
		case u.Host == "":
			errs = append(errs, fmt.Errorf("base URL %q has no host", c.BaseURL))
		}
	}
	if c.MaxConnectionRetries != nil && *c.MaxConnectionRetries < 0 {
		errs = append(errs, fmt.Errorf("max connection retries must be >= 0, got %d", *c.MaxConnectionRetries))
	}
	if c.ConnectionRetryBackoff != nil && *c.ConnectionRetryBackoff < 0 {
		errs = append(errs, fmt.Errorf("connection retry backoff must be >= 0, got %s", *c.ConnectionRetryBackoff))
	}
	if c.MaxLimitRetries < 0 {
		errs = append(errs, fmt.Errorf("max limit retries must be >= 0, got %d", c.MaxLimitRetries))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("ghbridge: invalid config: %w", err)
	}
	return nil
}

// withDefaults returns a copy of c with every unset field filled in.
func (c *BridgeConfig) withDefaults() BridgeConfig {
	out := *c
	if out.BaseURL == "" {
		out.BaseURL = DefaultBaseURL
	}
	if out.Credential == nil {
		out.Credential = AnonymousCredential{}
	}
	if out.Connector == nil {
		out.Connector = NewHTTPConnector(nil)
	}
	if out.RateLimitChecker == nil {
		out.RateLimitChecker = NewRateLimitChecker()
	}
	if out.RateLimitHandler == nil {
		out.RateLimitHandler = WaitRateLimitHandler{}
	}
	if out.AbuseLimitHandler == nil {
		out.AbuseLimitHandler = WaitAbuseLimitHandler{}
	}
	if out.MaxConnectionRetries == nil {
		retries := DefaultMaxConnectionRetries
		out.MaxConnectionRetries = &retries
	}
	if out.ConnectionRetryBackoff == nil {
		backoff := DefaultConnectionRetryBackoff
		out.ConnectionRetryBackoff = &backoff
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	out.Logger = out.Logger.With("component", "ghbridge")
	if out.Clock == nil {
		out.Clock = clock.Real()
	}
	return out
}
