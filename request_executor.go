// request_executor.go
// -------------------
// The RequestExecutor sends one Request and turns the outcome into either
// a successful ResponseInfo or a typed error. It owns every retry:
// - transient connection failures, against a small budget;
// - a stale 404 answered from GitHub's cache, retried once with no-cache;
// - primary and secondary rate limits, through the configured handlers.
// Before each attempt the RateLimitChecker may hold the request back.
package ghbridge

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/opengovern/ghbridge/internal/clock"
	ghlog "github.com/opengovern/ghbridge/internal/log"
)

// RequestExecutor runs requests for a GitHubBridge.
type RequestExecutor struct {
	bridge *GitHubBridge
}

// NewRequestExecutor returns an executor bound to bridge.
func NewRequestExecutor(bridge *GitHubBridge) *RequestExecutor {
	return &RequestExecutor{bridge: bridge}
}

// Execute sends req until it succeeds or fails for good. On success the
// caller owns the returned ResponseInfo and must read or close its body.
func (re *RequestExecutor) Execute(ctx context.Context, req *Request) (*ResponseInfo, error) {
	cfg := &re.bridge.config
	logger := cfg.Logger
	connectionRetries := *cfg.MaxConnectionRetries
	backoff := *cfg.ConnectionRetryBackoff
	limitRetries := 0

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInterrupted, err)
		}
		if err := cfg.RateLimitChecker.CheckRateLimit(ctx, re.bridge, req); err != nil {
			return nil, err
		}

		logger.Debug("sending request", "method", req.Method(), "url", req.URL().String(), "attempt", attempt)
		info, err := re.send(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %v", ErrInterrupted, ctx.Err())
			}
			if !isTransient(err) {
				return nil, interpretAPIError(err, req, nil)
			}
			if connectionRetries <= 0 {
				logger.Debug("connection retries exhausted", "url", req.URL().String(), "attempts", attempt, "error", err)
				return nil, &RetriesExhaustedError{
					URL:      req.URL().String(),
					Attempts: attempt,
					Err:      &IOError{Method: req.Method(), URL: req.URL().String(), Err: err},
				}
			}
			connectionRetries--
			logger.Debug("transient connection failure, retrying",
				"url", req.URL().String(), "error", err, "backoff", backoff, "retries_left", connectionRetries)
			observeRetry(retryReasonConnection)
			if err := sleep(ctx, cfg.Clock, backoff); err != nil {
				return nil, err
			}
			continue
		}

		re.bridge.noteRateLimit(req, info)

		switch {
		case isOTPRequired(info):
			body, err := info.Body()
			if err != nil {
				logger.Warn("reading two-factor challenge body failed", "url", req.URL().String(), "error", err)
			}
			return nil, &OTPRequiredError{HTTPError: newHTTPError(info, body)}

		case isStaleNotFound(req, info):
			info.Close()
			retry, err := req.ToBuilder().WithHeader("Cache-Control", "no-cache").Build()
			if err != nil {
				return nil, err
			}
			logger.Debug("404 with ETag, retrying without cache", "url", req.URL().String())
			observeRetry(retryReasonNotFound)
			req = retry
			continue

		case isRateLimitExceeded(info):
			wait, err := cfg.RateLimitHandler.HandleRateLimit(info)
			info.Close()
			if err != nil {
				return nil, err
			}
			if limitRetries++; cfg.MaxLimitRetries > 0 && limitRetries > cfg.MaxLimitRetries {
				return nil, newRateLimitError(info)
			}
			logger.Debug("rate limit exceeded, waiting", "category", req.Category().String(), "wait", wait, "url", req.URL().String())
			observeRetry(retryReasonRateLimit)
			observeWait(req.Category(), waitSourceHandler)
			if err := sleep(ctx, cfg.Clock, wait); err != nil {
				return nil, err
			}
			continue

		case isAbuseLimited(info):
			wait, err := cfg.AbuseLimitHandler.HandleAbuseLimit(info)
			info.Close()
			if err != nil {
				return nil, err
			}
			if limitRetries++; cfg.MaxLimitRetries > 0 && limitRetries > cfg.MaxLimitRetries {
				return nil, &AbuseLimitError{URL: req.URL().String(), Header: info.Headers(), RetryAfter: wait}
			}
			logger.Debug("secondary rate limit hit, waiting", "wait", wait, "url", req.URL().String())
			observeRetry(retryReasonAbuseLimit)
			observeWait(req.Category(), waitSourceHandler)
			if err := sleep(ctx, cfg.Clock, wait); err != nil {
				return nil, err
			}
			continue

		case isSuccess(info.StatusCode()):
			if attempt > 1 {
				logger.Debug("request succeeded after retries", "url", req.URL().String(), "attempts", attempt)
			}
			return info, nil

		default:
			err := interpretAPIError(nil, req, info)
			info.Close()
			return nil, err
		}
	}
}

// send performs one round trip through the connector.
func (re *RequestExecutor) send(ctx context.Context, req *Request) (*ResponseInfo, error) {
	cfg := &re.bridge.config

	body, contentType, err := req.encodeBody()
	if err != nil {
		return nil, err
	}

	header := make(http.Header, len(req.headers)+4)
	for name, value := range req.headers {
		header.Set(name, value)
	}
	header.Set("Accept-Encoding", "gzip")
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	if cfg.UserAgent != "" && header.Get("User-Agent") == "" {
		header.Set("User-Agent", cfg.UserAgent)
	}
	if header.Get("Authorization") == "" {
		auth, err := cfg.Credential.AuthorizationHeader(ctx)
		if err != nil {
			return nil, &CredentialError{Method: req.Method(), URL: req.URL().String(), Err: err}
		}
		if auth != "" {
			header.Set("Authorization", auth)
		}
	}

	start := cfg.Clock.Now()
	resp, err := cfg.Connector.Send(ctx, &ConnectorRequest{
		Method: req.Method(),
		URL:    req.URL(),
		Header: header,
		Body:   body,
	})
	if err != nil {
		return nil, err
	}
	receivedAt := cfg.Clock.Now()
	observeResponse(req.Method(), resp.StatusCode, receivedAt.Sub(start))
	cfg.Logger.Log(ctx, ghlog.LevelTrace, "response received",
		"method", req.Method(), "url", req.URL().String(), "status", resp.StatusCode, "headers", resp.Header)
	return newResponseInfo(req, resp, receivedAt), nil
}

func isSuccess(status int) bool {
	return (status >= 200 && status < 300) || status == http.StatusNotModified
}

func isOTPRequired(info *ResponseInfo) bool {
	return info.StatusCode() == http.StatusUnauthorized && info.Header("X-GitHub-OTP") != ""
}

// isStaleNotFound matches a 404 served from GitHub's cache for a resource
// that may have just been created.
func isStaleNotFound(req *Request, info *ResponseInfo) bool {
	return info.StatusCode() == http.StatusNotFound &&
		req.Method() == http.MethodGet &&
		info.Header("ETag") != "" &&
		req.Header("Cache-Control") != "no-cache"
}

func isRateLimitExceeded(info *ResponseInfo) bool {
	return info.StatusCode() == http.StatusForbidden && info.Header("X-RateLimit-Remaining") == "0"
}

func isAbuseLimited(info *ResponseInfo) bool {
	status := info.StatusCode()
	return (status == http.StatusForbidden || status == http.StatusTooManyRequests) &&
		info.Header("Retry-After") != ""
}

// isTransient reports whether a connector failure is worth retrying on a
// fresh connection.
func isTransient(err error) bool {
	// Typed errors come from a nested bridge that already ran its own
	// retries, e.g. an installation token mint.
	if err == nil || errors.Is(err, context.Canceled) || isTypedError(err) {
		return false
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) || errors.Is(err, syscall.EPIPE) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var recordErr tls.RecordHeaderError
	if errors.As(err, &recordErr) {
		return true
	}
	var transient interface{ Transient() bool }
	if errors.As(err, &transient) {
		return transient.Transient()
	}
	return false
}

// sleep waits d on clk, returning ErrInterrupted if ctx ends first.
func sleep(ctx context.Context, clk clock.Clock, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrInterrupted, err)
	}
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrInterrupted, ctx.Err())
	case <-clk.After(d):
		return nil
	}
}

// SendRequest executes req and parses a successful body with parser.
func SendRequest[T any](ctx context.Context, bridge *GitHubBridge, req *Request, parser BodyParser[T]) (*Response[T], error) {
	info, err := bridge.executor.Execute(ctx, req)
	if err != nil {
		return nil, err
	}
	defer info.Close()

	data, err := info.Body()
	if err != nil {
		return nil, &IOError{
			Method: req.Method(),
			URL:    req.URL().String(),
			Header: info.Headers(),
			Err:    err,
		}
	}

	var body T
	if parser != nil {
		body, err = parser(data)
		if err != nil {
			return nil, &MalformedResponseError{
				URL:     req.URL().String(),
				Header:  info.Headers(),
				Payload: data,
				Err:     err,
			}
		}
	}
	return &Response[T]{info: info, body: body}, nil
}

// Fetch executes req and returns the parsed body.
func Fetch[T any](ctx context.Context, bridge *GitHubBridge, req *Request, parser BodyParser[T]) (T, error) {
	resp, err := SendRequest(ctx, bridge, req, parser)
	if err != nil {
		var zero T
		return zero, err
	}
	return resp.Body(), nil
}

// Find is Fetch for resources that may not exist: a 404 yields a Lookup
// that is not Found instead of an error.
func Find[T any](ctx context.Context, bridge *GitHubBridge, req *Request, parser BodyParser[T]) Lookup[T] {
	value, err := Fetch(ctx, bridge, req, parser)
	switch {
	case err == nil:
		return Lookup[T]{value: value, found: true}
	case IsNotFound(err):
		return Lookup[T]{}
	default:
		return Lookup[T]{err: err}
	}
}

// JSONParser returns a BodyParser decoding JSON into T. An empty body
// (204, 304) yields the zero value.
func JSONParser[T any]() BodyParser[T] {
	return func(data []byte) (T, error) {
		var out T
		if len(data) == 0 {
			return out, nil
		}
		err := json.Unmarshal(data, &out)
		return out, err
	}
}

// DiscardBody is a parser for responses whose body is irrelevant.
func DiscardBody(data []byte) (struct{}, error) { return struct{}{}, nil }
