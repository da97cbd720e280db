package ghbridge

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Connector performs one physical HTTP round trip. Implementations own
// connect and read timeouts; the bridge layers retries, rate limiting and
// error mapping on top.
type Connector interface {
	Send(ctx context.Context, req *ConnectorRequest) (*ConnectorResponse, error)
}

// ConnectorRequest is a fully resolved request: absolute URL, every header
// including Authorization, and the encoded body.
type ConnectorRequest struct {
	Method string
	URL    *url.URL
	Header http.Header
	Body   []byte
}

// ConnectorResponse is what a Connector hands back. Body may be nil for
// responses without content; the bridge always closes it.
type ConnectorResponse struct {
	StatusCode int
	// Status is the reason phrase line, e.g. "404 Not Found".
	Status string
	Header http.Header
	Body   io.ReadCloser
}

// Credential supplies the Authorization header value for a request. An
// empty value means the request is sent anonymously.
type Credential interface {
	AuthorizationHeader(ctx context.Context) (string, error)
}

// BodyParser turns a raw response payload into T.
type BodyParser[T any] func(data []byte) (T, error)

// RateLimitPolicy decides, before a request is sent, whether to hold it
// back. It returns how long the caller should wait; zero means proceed.
// waitCount is the number of waits already performed for this request.
type RateLimitPolicy interface {
	CheckRateLimit(record RateLimitRecord, waitCount int, now time.Time) time.Duration
}

// RateLimitHandler is invoked when GitHub answers 403 with
// X-RateLimit-Remaining: 0. It returns how long to wait before the request
// is retried, or an error to abort.
type RateLimitHandler interface {
	HandleRateLimit(info *ResponseInfo) (time.Duration, error)
}

// AbuseLimitHandler is invoked when GitHub answers with a Retry-After
// header (secondary rate limit). Same contract as RateLimitHandler.
type AbuseLimitHandler interface {
	HandleAbuseLimit(info *ResponseInfo) (time.Duration, error)
}
