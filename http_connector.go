// http_connector.go
// -----------------
// HTTPConnector is the default Connector, backed by net/http with a
// pooled transport tuned for a single API host.
package ghbridge

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// DefaultConnectorTimeout bounds one round trip including the body read.
const DefaultConnectorTimeout = 60 * time.Second

// HTTPConnector sends requests with an http.Client.
type HTTPConnector struct {
	client *http.Client
}

// NewHTTPConnector wraps client. A nil client gets a pooled transport with
// connect, TLS handshake and response header timeouts.
func NewHTTPConnector(client *http.Client) *HTTPConnector {
	if client == nil {
		client = &http.Client{
			Timeout: DefaultConnectorTimeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: DefaultConnectorTimeout,
				ExpectContinueTimeout: 1 * time.Second,
				ForceAttemptHTTP2:     true,
			},
		}
	}
	return &HTTPConnector{client: client}
}

// Send performs the round trip. The request's Accept-Encoding header is
// passed through, so compressed bodies are returned undecoded.
func (c *HTTPConnector) Send(ctx context.Context, req *ConnectorRequest) (*ConnectorResponse, error) {
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL.String(), body)
	if err != nil {
		return nil, fmt.Errorf("ghbridge: creating HTTP request: %w", err)
	}
	httpReq.Header = req.Header.Clone()
	if httpReq.Header == nil {
		httpReq.Header = make(http.Header)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	return &ConnectorResponse{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Header:     resp.Header,
		Body:       resp.Body,
	}, nil
}
