package ghbridge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultAccept is the media type sent when a request does not ask for
	// a preview or raw format.
	DefaultAccept = "application/vnd.github+json"

	// APIVersion pins the REST API version header.
	APIVersion = "2022-11-28"

	contentTypeJSON = "application/json"
	contentTypeForm = "application/x-www-form-urlencoded"
)

// Param is one ordered request parameter.
type Param struct {
	Key   string
	Value any
}

// Request describes a single API call. It is immutable once built; use
// ToBuilder to derive a modified copy.
type Request struct {
	method      string
	urlPath     string
	baseURL     string
	params      []Param
	headers     map[string]string
	body        []byte
	hasBody     bool
	contentType string
	forceBody   bool
	category    RateLimitCategory
	categorySet bool
	url         *url.URL
}

// Method returns the HTTP verb.
func (r *Request) Method() string { return r.method }

// URLPath returns the path or absolute URL the request was built from.
func (r *Request) URLPath() string { return r.urlPath }

// URL returns a copy of the resolved URL, query parameters included.
func (r *Request) URL() *url.URL {
	u := *r.url
	return &u
}

// Params returns a copy of the ordered parameters.
func (r *Request) Params() []Param {
	out := make([]Param, len(r.params))
	copy(out, r.params)
	return out
}

// Header returns the value of a request header, or "". Names are matched
// case-insensitively.
func (r *Request) Header(name string) string { return r.headers[http.CanonicalHeaderKey(name)] }

// Headers returns a copy of the request headers keyed by canonical name.
func (r *Request) Headers() map[string]string {
	out := make(map[string]string, len(r.headers))
	for k, v := range r.headers {
		out[k] = v
	}
	return out
}

// ContentType returns the explicitly configured content type, or "".
func (r *Request) ContentType() string { return r.contentType }

// Category returns the rate limit category the request is charged to.
func (r *Request) Category() RateLimitCategory { return r.category }

// InBody reports whether parameters are sent in the body. GET and DELETE
// carry them in the query string unless the body is forced.
func (r *Request) InBody() bool {
	if r.forceBody {
		return true
	}
	return r.method != "GET" && r.method != "DELETE"
}

// String returns "METHOD url" for logs and error messages.
func (r *Request) String() string {
	return r.method + " " + r.url.String()
}

// ToBuilder returns a builder initialized with a deep copy of r.
func (r *Request) ToBuilder() *RequestBuilder {
	c := *r
	c.params = r.Params()
	c.headers = r.Headers()
	if r.body != nil {
		c.body = append([]byte(nil), r.body...)
	}
	c.url = nil
	return &RequestBuilder{req: c}
}

// encodeBody returns the payload and content type for the wire. Requests
// that do not carry a body return nil and "".
func (r *Request) encodeBody() ([]byte, string, error) {
	if !r.InBody() {
		return nil, "", nil
	}

	if r.hasBody {
		contentType := r.contentType
		if contentType == "" {
			contentType = contentTypeForm
		}
		return r.body, contentType, nil
	}

	payload := make(map[string]any, len(r.params))
	for _, p := range r.params {
		payload[p.Key] = p.Value
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, "", fmt.Errorf("ghbridge: encoding request body: %w", err)
	}
	contentType := r.contentType
	if contentType == "" {
		contentType = contentTypeJSON
	}
	return data, contentType, nil
}

// RequestBuilder assembles a Request. Builders are not safe for concurrent
// use; the Requests they produce are.
type RequestBuilder struct {
	req Request
	err error
}

// NewRequestBuilder returns a GET builder rooted at baseURL with the
// standard GitHub headers.
func NewRequestBuilder(baseURL string) *RequestBuilder {
	return &RequestBuilder{req: Request{
		method:  "GET",
		baseURL: strings.TrimRight(baseURL, "/"),
		headers: map[string]string{
			http.CanonicalHeaderKey("Accept"):               DefaultAccept,
			http.CanonicalHeaderKey("X-GitHub-Api-Version"): APIVersion,
		},
	}}
}

// Method sets the HTTP verb. Any token is accepted, PATCH and custom verbs
// included.
func (b *RequestBuilder) Method(method string) *RequestBuilder {
	b.req.method = strings.ToUpper(method)
	return b
}

// WithURLPath joins the parts with "/" and sets them as the request path.
// A single absolute URL (for example from a Link header) is kept as is.
func (b *RequestBuilder) WithURLPath(parts ...string) *RequestBuilder {
	joined := strings.Join(parts, "/")
	if !isAbsoluteURL(joined) && !strings.HasPrefix(joined, "/") {
		joined = "/" + joined
	}
	b.req.urlPath = joined
	return b
}

// WithParam appends a parameter. Repeated keys are kept in order.
func (b *RequestBuilder) WithParam(key string, value any) *RequestBuilder {
	b.req.params = append(b.req.params, Param{Key: key, Value: value})
	return b
}

// SetParam replaces every existing parameter named key with a single value.
func (b *RequestBuilder) SetParam(key string, value any) *RequestBuilder {
	b.RemoveParam(key)
	return b.WithParam(key, value)
}

// RemoveParam drops every parameter named key.
func (b *RequestBuilder) RemoveParam(key string) *RequestBuilder {
	kept := b.req.params[:0:0]
	for _, p := range b.req.params {
		if p.Key != key {
			kept = append(kept, p)
		}
	}
	b.req.params = kept
	return b
}

// withoutParams drops every parameter. Link header URLs already carry the
// full query.
func (b *RequestBuilder) withoutParams() *RequestBuilder {
	b.req.params = nil
	return b
}

// WithHeader sets a request header, replacing any previous value under
// the same case-insensitive name.
func (b *RequestBuilder) WithHeader(name, value string) *RequestBuilder {
	if b.req.headers == nil {
		b.req.headers = make(map[string]string)
	}
	b.req.headers[http.CanonicalHeaderKey(name)] = value
	return b
}

// WithAccept replaces the Accept header, e.g. for preview media types.
func (b *RequestBuilder) WithAccept(mediaType string) *RequestBuilder {
	return b.WithHeader("Accept", mediaType)
}

// WithBody sets a raw payload. It takes precedence over parameters.
func (b *RequestBuilder) WithBody(data []byte) *RequestBuilder {
	b.req.body = append([]byte(nil), data...)
	b.req.hasBody = true
	return b
}

// WithBodyReader reads r fully and uses it as the raw payload.
func (b *RequestBuilder) WithBodyReader(r io.Reader) *RequestBuilder {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		b.err = fmt.Errorf("ghbridge: reading request body: %w", err)
		return b
	}
	return b.WithBody(buf.Bytes())
}

// ContentType overrides the body content type.
func (b *RequestBuilder) ContentType(contentType string) *RequestBuilder {
	b.req.contentType = contentType
	return b
}

// InBody forces parameters into the body even for GET and DELETE.
func (b *RequestBuilder) InBody() *RequestBuilder {
	b.req.forceBody = true
	return b
}

// RateLimit charges the request to an explicit category instead of the
// one derived from its path.
func (b *RequestBuilder) RateLimit(category RateLimitCategory) *RequestBuilder {
	b.req.category = category
	b.req.categorySet = true
	return b
}

// Build validates the builder and resolves the final URL.
func (b *RequestBuilder) Build() (*Request, error) {
	if b.err != nil {
		return nil, b.err
	}
	if !isToken(b.req.method) {
		return nil, fmt.Errorf("ghbridge: invalid HTTP method %q", b.req.method)
	}
	if b.req.urlPath == "" {
		return nil, fmt.Errorf("ghbridge: request URL path is required")
	}

	req := b.req
	req.params = append([]Param(nil), b.req.params...)
	req.headers = make(map[string]string, len(b.req.headers))
	for k, v := range b.req.headers {
		req.headers[k] = v
	}

	raw := req.urlPath
	if !isAbsoluteURL(raw) {
		if req.baseURL == "" {
			return nil, fmt.Errorf("ghbridge: relative path %q without a base URL", raw)
		}
		raw = req.baseURL + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("ghbridge: invalid request URL %q: %w", raw, err)
	}

	if !req.InBody() && len(req.params) > 0 {
		query := u.Query()
		for _, p := range req.params {
			query.Del(p.Key)
		}
		for _, p := range req.params {
			query.Add(p.Key, formatParam(p.Value))
		}
		u.RawQuery = query.Encode()
	}
	req.url = u

	if !req.categorySet {
		req.category = categoryForPath(relativePath(u, req.baseURL))
	}
	return &req, nil
}

// relativePath strips the base URL's path prefix so GitHub Enterprise
// deployments under /api/v3 classify the same way as api.github.com.
func relativePath(u *url.URL, baseURL string) string {
	if baseURL == "" {
		return u.Path
	}
	base, err := url.Parse(baseURL)
	if err != nil || base.Host != u.Host {
		return u.Path
	}
	return "/" + strings.TrimPrefix(strings.TrimPrefix(u.Path, strings.TrimRight(base.Path, "/")), "/")
}

func formatParam(v any) string {
	switch value := v.(type) {
	case string:
		return value
	case time.Time:
		return value.UTC().Format(time.RFC3339)
	case []string:
		return strings.Join(value, ",")
	case fmt.Stringer:
		return value.String()
	default:
		return fmt.Sprint(value)
	}
}

func isAbsoluteURL(s string) bool {
	return strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://")
}

// isToken reports whether s is a valid HTTP method token (RFC 7230).
func isToken(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c <= ' ' || c >= 0x7f || strings.ContainsRune(`()<>@,;:\"/[]?={}`, c) {
			return false
		}
	}
	return true
}
