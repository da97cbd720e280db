// Package mock provides a scripted ghbridge.Connector for tests.
package mock

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/opengovern/ghbridge"
	"github.com/opengovern/ghbridge/internal/clock"
)

// Response is one scripted outcome. When Err is set the connector fails
// with it instead of answering.
type Response struct {
	Status int
	Header http.Header
	Body   string
	// Gzip compresses Body and sets Content-Encoding.
	Gzip bool
	// BodyErr makes reading the body fail with this error.
	BodyErr error
	Err     error
}

// JSON returns a scripted response with a JSON body and optional header
// name/value pairs.
func JSON(status int, body string, headers ...string) Response {
	header := http.Header{"Content-Type": {"application/json; charset=utf-8"}}
	for i := 0; i+1 < len(headers); i += 2 {
		header.Add(headers[i], headers[i+1])
	}
	return Response{Status: status, Header: header, Body: body}
}

// Fail returns a scripted transport failure.
func Fail(err error) Response {
	return Response{Err: err}
}

// ConnectionReset returns a transport failure the bridge treats as
// transient.
func ConnectionReset() error {
	return &net.OpError{Op: "read", Net: "tcp", Err: syscall.ECONNRESET}
}

// Quota simulates GitHub's primary rate limit: every answered request
// carries X-RateLimit-* headers and, once Remaining hits zero, requests are
// refused with 403 until Reset. At Reset the quota refills to Limit and
// the next window begins.
type Quota struct {
	Limit     int
	Remaining int
	Reset     time.Time
	// Window is the length of each rate limit window. Defaults to one hour.
	Window time.Duration
	// Clock tells when Reset has passed. Defaults to the real clock.
	Clock clock.Clock
}

func (q *Quota) refill() {
	clk := q.Clock
	if clk == nil {
		clk = clock.Real()
	}
	window := q.Window
	if window <= 0 {
		window = time.Hour
	}

	now := clk.Now()
	if now.Before(q.Reset) {
		return
	}
	if q.Reset.IsZero() {
		q.Reset = now.Add(window)
	} else {
		elapsed := now.Sub(q.Reset)/window + 1
		q.Reset = q.Reset.Add(elapsed * window)
	}
	q.Remaining = q.Limit
}

// Connector replays scripted responses in order and records every
// request it receives. It is safe for concurrent use.
type Connector struct {
	mu        sync.Mutex
	responses []Response
	requests  []*ghbridge.ConnectorRequest

	// Handler answers requests once the script is exhausted.
	Handler func(req *ghbridge.ConnectorRequest) Response
	// Quota, when set, stamps rate limit headers on every answer.
	Quota *Quota
}

// NewConnector returns a connector that will answer with responses.
func NewConnector(responses ...Response) *Connector {
	return &Connector{responses: responses}
}

// Enqueue appends responses to the script.
func (c *Connector) Enqueue(responses ...Response) *Connector {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses = append(c.responses, responses...)
	return c
}

// Requests returns the requests received so far.
func (c *Connector) Requests() []*ghbridge.ConnectorRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*ghbridge.ConnectorRequest, len(c.requests))
	copy(out, c.requests)
	return out
}

// RequestCount returns the number of requests received so far.
func (c *Connector) RequestCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

// Pending returns the number of scripted responses not yet used.
func (c *Connector) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.responses)
}

// Send implements ghbridge.Connector.
func (c *Connector) Send(ctx context.Context, req *ghbridge.ConnectorRequest) (*ghbridge.ConnectorResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	recorded := *req
	recorded.Header = req.Header.Clone()
	recorded.Body = append([]byte(nil), req.Body...)
	c.requests = append(c.requests, &recorded)

	if c.Quota != nil {
		c.Quota.refill()
	}

	var resp Response
	switch {
	case c.Quota != nil && c.Quota.Remaining <= 0:
		resp = JSON(http.StatusForbidden, `{"message":"API rate limit exceeded"}`)
	case len(c.responses) > 0:
		resp = c.responses[0]
		c.responses = c.responses[1:]
	case c.Handler != nil:
		handler := c.Handler
		c.mu.Unlock()
		resp = handler(&recorded)
		c.mu.Lock()
	default:
		c.mu.Unlock()
		return nil, fmt.Errorf("mock: no scripted response for %s %s", req.Method, req.URL)
	}
	if resp.Err == nil && c.Quota != nil {
		if resp.Header == nil {
			resp.Header = make(http.Header)
		}
		if c.Quota.Remaining > 0 {
			c.Quota.Remaining--
		}
		resp.Header.Set("X-RateLimit-Limit", strconv.Itoa(c.Quota.Limit))
		resp.Header.Set("X-RateLimit-Remaining", strconv.Itoa(c.Quota.Remaining))
		resp.Header.Set("X-RateLimit-Reset", strconv.FormatInt(c.Quota.Reset.Unix(), 10))
	}
	c.mu.Unlock()

	if resp.Err != nil {
		return nil, resp.Err
	}
	return resp.toConnectorResponse()
}

func (r Response) toConnectorResponse() (*ghbridge.ConnectorResponse, error) {
	status := r.Status
	if status == 0 {
		status = http.StatusOK
	}
	header := r.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}

	body := []byte(r.Body)
	if r.Gzip {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(body); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		body = buf.Bytes()
		header.Set("Content-Encoding", "gzip")
	}

	var reader io.Reader = bytes.NewReader(body)
	if r.BodyErr != nil {
		reader = failingReader{err: r.BodyErr}
	}
	return &ghbridge.ConnectorResponse{
		StatusCode: status,
		Status:     strconv.Itoa(status) + " " + http.StatusText(status),
		Header:     header,
		Body:       io.NopCloser(reader),
	}, nil
}

type failingReader struct{ err error }

func (r failingReader) Read([]byte) (int, error) { return 0, r.err }
