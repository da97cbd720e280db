// response.go
// -----------
// ResponseInfo wraps one raw response from a Connector: status, the
// originating Request, the headers captured at receipt and a body that is
// decoded lazily and read at most once. Response[T] adds the parsed body.
package ghbridge

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
)

// ResponseInfo is the raw outcome of a request before parsing.
type ResponseInfo struct {
	statusCode int
	status     string
	request    *Request
	header     http.Header
	receivedAt time.Time

	mu       sync.Mutex
	body     io.ReadCloser
	bodyData []byte
	bodyErr  error
	bodyRead bool
}

func newResponseInfo(req *Request, resp *ConnectorResponse, receivedAt time.Time) *ResponseInfo {
	header := resp.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	status := resp.Status
	if status == "" {
		status = fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	return &ResponseInfo{
		statusCode: resp.StatusCode,
		status:     status,
		request:    req,
		header:     header,
		receivedAt: receivedAt,
		body:       resp.Body,
	}
}

// StatusCode returns the HTTP status code.
func (r *ResponseInfo) StatusCode() int { return r.statusCode }

// Status returns the status line, e.g. "404 Not Found".
func (r *ResponseInfo) Status() string { return r.status }

// Request returns the request that produced this response.
func (r *ResponseInfo) Request() *Request { return r.request }

// ReceivedAt returns the local time the response headers arrived.
func (r *ResponseInfo) ReceivedAt() time.Time { return r.receivedAt }

// Header returns the first value of the named header, or "".
func (r *ResponseInfo) Header(name string) string { return r.header.Get(name) }

// Headers returns a copy of all response headers.
func (r *ResponseInfo) Headers() http.Header { return r.header.Clone() }

// Body reads and decodes the body on first call and returns the cached
// bytes afterwards. A read failure is cached as well.
func (r *ResponseInfo) Body() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.bodyRead {
		return r.bodyData, r.bodyErr
	}
	r.bodyRead = true
	if r.body == nil {
		return nil, nil
	}
	defer func() {
		r.body.Close()
		r.body = nil
	}()

	reader, err := decodeBody(r.body, r.header.Get("Content-Encoding"))
	if err != nil {
		r.bodyErr = err
		return nil, err
	}
	r.bodyData, r.bodyErr = io.ReadAll(reader)
	return r.bodyData, r.bodyErr
}

// BodyString returns the body as a string.
func (r *ResponseInfo) BodyString() (string, error) {
	data, err := r.Body()
	return string(data), err
}

// HasBody reports whether the connector returned a body stream.
func (r *ResponseInfo) HasBody() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bodyRead {
		return r.bodyData != nil || r.bodyErr != nil
	}
	return r.body != nil
}

// Close releases the body without reading it. It is safe to call more
// than once and after Body.
func (r *ResponseInfo) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.body == nil {
		return nil
	}
	err := r.body.Close()
	r.body = nil
	r.bodyRead = true
	return err
}

func decodeBody(body io.Reader, encoding string) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return body, nil
	case "gzip", "x-gzip":
		return gzip.NewReader(body)
	default:
		return nil, fmt.Errorf("ghbridge: unsupported Content-Encoding %q", encoding)
	}
}

// Response is a successful response with its body parsed into T.
type Response[T any] struct {
	info *ResponseInfo
	body T
}

// StatusCode returns the HTTP status code.
func (r *Response[T]) StatusCode() int { return r.info.statusCode }

// Request returns the request that produced this response.
func (r *Response[T]) Request() *Request { return r.info.request }

// Header returns the first value of the named header, or "".
func (r *Response[T]) Header(name string) string { return r.info.Header(name) }

// Headers returns a copy of all response headers.
func (r *Response[T]) Headers() http.Header { return r.info.Headers() }

// Body returns the parsed body.
func (r *Response[T]) Body() T { return r.body }

// Info returns the underlying raw response.
func (r *Response[T]) Info() *ResponseInfo { return r.info }
