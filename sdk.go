// sdk.go
// ------
// The sdk.go file contains the GitHubBridge struct, the main entry point
// of the module. A bridge is one authenticated session against one GitHub
// deployment.
//
// Key functionalities include:
// - Initializing the bridge with NewGitHubBridge()
// - Building requests via bridge.CreateRequest()
// - Sending them via bridge.Send(), SendRequest(), Fetch() and the pagers
// - Reading and refreshing the rate limit state
// - Resolving the authenticated user once per bridge with Myself()
//
// The bridge owns a RateLimitTracker and a RequestExecutor; both are
// private to the bridge and shared by every call made through it.
package ghbridge

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// GitHubBridge is a client session. It is safe for concurrent use.
type GitHubBridge struct {
	config   BridgeConfig
	tracker  *RateLimitTracker
	executor *RequestExecutor

	myselfMu sync.Mutex
	myself   *User
}

// User is the authenticated account returned by GET /user.
type User struct {
	Login   string `json:"login"`
	ID      int64  `json:"id"`
	NodeID  string `json:"node_id"`
	Type    string `json:"type"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	HTMLURL string `json:"html_url"`
}

// NewGitHubBridge validates cfg and returns a bridge. A nil cfg connects
// anonymously to api.github.com.
func NewGitHubBridge(cfg *BridgeConfig) (*GitHubBridge, error) {
	if cfg == nil {
		cfg = &BridgeConfig{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	bridge := &GitHubBridge{
		config:  cfg.withDefaults(),
		tracker: NewRateLimitTracker(),
	}
	bridge.config.RateLimitChecker = bridge.config.RateLimitChecker.bind(bridge.config.Clock, bridge.config.Logger)
	bridge.executor = NewRequestExecutor(bridge)

	bridge.debugf("bridge created", "base_url", bridge.config.BaseURL)
	return bridge, nil
}

// BaseURL returns the API root requests are resolved against.
func (b *GitHubBridge) BaseURL() string { return b.config.BaseURL }

// Logger returns the bridge's logger.
func (b *GitHubBridge) Logger() *slog.Logger { return b.config.Logger }

// CreateRequest returns a GET builder rooted at the bridge's base URL.
func (b *GitHubBridge) CreateRequest() *RequestBuilder {
	return NewRequestBuilder(b.config.BaseURL)
}

// Send executes req and returns the raw response. The caller must read or
// close its body.
func (b *GitHubBridge) Send(ctx context.Context, req *Request) (*ResponseInfo, error) {
	return b.executor.Execute(ctx, req)
}

// RateLimit fetches GET /rate_limit and records every category. Servers
// with rate limiting disabled answer 404; that yields unknown records.
func (b *GitHubBridge) RateLimit(ctx context.Context) (*RateLimitSnapshot, error) {
	req, err := b.CreateRequest().WithURLPath("/rate_limit").Build()
	if err != nil {
		return nil, err
	}

	info, err := b.executor.Execute(ctx, req)
	if err != nil {
		if IsNotFound(err) {
			snapshot := unknownSnapshot(b.config.Clock.Now())
			b.tracker.UpdateFromSnapshot(snapshot)
			return snapshot, nil
		}
		return nil, err
	}
	defer info.Close()

	data, err := info.Body()
	if err != nil {
		return nil, &IOError{Method: req.Method(), URL: req.URL().String(), Header: info.Headers(), Err: err}
	}
	snapshot, err := parseRateLimitSnapshot(data, info.header, info.ReceivedAt())
	if err != nil {
		return nil, &MalformedResponseError{URL: req.URL().String(), Header: info.Headers(), Payload: data, Err: err}
	}
	b.tracker.UpdateFromSnapshot(snapshot)
	b.debugf("rate limit refreshed", "core", snapshot.Core.String(), "search", snapshot.Search.String())
	return snapshot, nil
}

// LastRateLimit returns the most recent record observed for category
// without contacting the server.
func (b *GitHubBridge) LastRateLimit(category RateLimitCategory) (RateLimitRecord, bool) {
	return b.tracker.Record(category)
}

// CurrentRateLimit returns the tracked record for category, fetching
// /rate_limit when none is known, it has expired, or refresh is set.
func (b *GitHubBridge) CurrentRateLimit(ctx context.Context, category RateLimitCategory, refresh bool) (RateLimitRecord, error) {
	if !refresh {
		if record, ok := b.tracker.Record(category); ok && !record.IsExpired(b.config.Clock.Now()) {
			return record, nil
		}
	}

	snapshot, err := b.RateLimit(ctx)
	if err != nil {
		return RateLimitRecord{}, err
	}
	if record, ok := b.tracker.Record(category); ok {
		return record, nil
	}
	return snapshot.Record(category), nil
}

// noteRateLimit records the quota headers of a response. Search responses
// are charged to a separate quota and are not tracked from headers.
func (b *GitHubBridge) noteRateLimit(req *Request, info *ResponseInfo) {
	category := req.Category()
	if category == CategoryNone || category == CategorySearch {
		return
	}
	b.tracker.UpdateFromHeaders(category, info.header, info.ReceivedAt())
}

// Myself returns the authenticated user. The first successful lookup is
// cached for the life of the bridge.
func (b *GitHubBridge) Myself(ctx context.Context) (*User, error) {
	b.myselfMu.Lock()
	defer b.myselfMu.Unlock()

	if b.myself != nil {
		return b.myself, nil
	}

	req, err := b.CreateRequest().WithURLPath("/user").Build()
	if err != nil {
		return nil, err
	}
	user, err := Fetch(ctx, b, req, JSONParser[*User]())
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, &MalformedResponseError{URL: req.URL().String(), Err: errors.New("empty user payload")}
	}
	b.myself = user
	b.debugf("resolved authenticated user", "login", user.Login)
	return user, nil
}

// debugf logs at debug level through the bridge's logger.
func (b *GitHubBridge) debugf(msg string, args ...any) {
	b.config.Logger.Debug(msg, args...)
}
