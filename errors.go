// errors.go
// ---------
// Typed errors returned by the bridge. Every type carries the response
// headers when a response was received, and supports errors.As/Is through
// Unwrap.
//
// interpretAPIError maps a failed ResponseInfo into the taxonomy:
// - 404 becomes *NotFoundError.
// - Any other status becomes *HTTPError with GitHub's message parsed.
// - A body that cannot be read becomes *IOError.
package ghbridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrInterrupted is returned when the context is cancelled while the
	// bridge is sleeping on a retry, rate limit or abuse wait.
	ErrInterrupted = errors.New("ghbridge: interrupted while waiting")

	// ErrIterationNotFinished is returned by FinalResponse before the
	// iterator has been exhausted.
	ErrIterationNotFinished = errors.New("ghbridge: iteration not finished")

	// ErrNoMorePages is returned when a paginator is moved past either end.
	ErrNoMorePages = errors.New("ghbridge: no more pages")
)

// IOError wraps a transport or body read failure.
type IOError struct {
	Method string
	URL    string
	// Header is set when the failure happened after headers arrived.
	Header http.Header
	Err    error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("ghbridge: %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// ValidationError is one field-level failure of a 422 response.
type ValidationError struct {
	Resource string `json:"resource"`
	Code     string `json:"code"`
	Field    string `json:"field"`
	Message  string `json:"message"`
}

// HTTPError is a non-success response.
type HTTPError struct {
	StatusCode int
	// Status is the status line, e.g. "422 Unprocessable Entity".
	Status string
	Method string
	URL    string
	Header http.Header
	// Body is the raw error payload, empty when none was sent.
	Body string

	// Message and DocumentationURL come from GitHub's JSON error body.
	Message          string
	DocumentationURL string
	Errors           []ValidationError
}

func (e *HTTPError) Error() string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "ghbridge: %s %s: %s", e.Method, e.URL, e.Status)
	if e.Message != "" {
		fmt.Fprintf(&builder, ": %s", e.Message)
	} else if e.Body != "" {
		fmt.Fprintf(&builder, ": %s", e.Body)
	}
	for _, v := range e.Errors {
		detail := v.Message
		if detail == "" {
			detail = v.Code
		}
		fmt.Fprintf(&builder, "; %s.%s: %s", v.Resource, v.Field, detail)
	}
	return builder.String()
}

// NotFoundError is a 404 response.
type NotFoundError struct {
	*HTTPError
}

func (e *NotFoundError) Error() string { return e.HTTPError.Error() }

func (e *NotFoundError) Unwrap() error { return e.HTTPError }

// OTPRequiredError is a 401 response carrying X-GitHub-OTP: the account
// uses two-factor authentication and the request needs a one time code.
type OTPRequiredError struct {
	*HTTPError
}

func (e *OTPRequiredError) Error() string {
	return "ghbridge: two-factor authentication code required: " + e.Header.Get("X-GitHub-OTP")
}

func (e *OTPRequiredError) Unwrap() error { return e.HTTPError }

// RateLimitError is returned when the primary rate limit is exhausted and
// the configured handler refuses to wait.
type RateLimitError struct {
	URL    string
	Header http.Header
	// Record is the quota reported by the failing response, if parseable.
	Record RateLimitRecord
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("ghbridge: API rate limit reached for %s (resets at %s)", e.URL, e.Record.ResetDate().UTC().Format(time.RFC3339))
}

// AbuseLimitError is returned when a secondary rate limit is hit and the
// configured handler refuses to wait.
type AbuseLimitError struct {
	URL        string
	Header     http.Header
	RetryAfter time.Duration
}

func (e *AbuseLimitError) Error() string {
	return fmt.Sprintf("ghbridge: secondary rate limit hit for %s (retry after %s)", e.URL, e.RetryAfter)
}

// MalformedResponseError is a 2xx response whose body could not be parsed.
type MalformedResponseError struct {
	URL     string
	Header  http.Header
	Payload []byte
	Err     error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("ghbridge: malformed response from %s: %v", e.URL, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// RetriesExhaustedError is returned when every connection attempt failed.
// Err is the last transport failure.
type RetriesExhaustedError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *RetriesExhaustedError) Error() string {
	return "ghbridge: ran out of retries for URL: " + e.URL
}

func (e *RetriesExhaustedError) Unwrap() error { return e.Err }

// CredentialError is returned when the configured Credential cannot
// produce an Authorization header. The request was never sent.
type CredentialError struct {
	Method string
	URL    string
	Err    error
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("ghbridge: %s %s: resolving credentials: %v", e.Method, e.URL, e.Err)
}

func (e *CredentialError) Unwrap() error { return e.Err }

type githubErrorBody struct {
	Message          string            `json:"message"`
	DocumentationURL string            `json:"documentation_url"`
	Errors           []ValidationError `json:"errors"`
}

// newHTTPError builds an HTTPError from a response and its (possibly
// empty) body.
func newHTTPError(info *ResponseInfo, body []byte) *HTTPError {
	httpErr := &HTTPError{
		StatusCode: info.StatusCode(),
		Status:     info.Status(),
		Method:     info.Request().Method(),
		URL:        info.Request().URL().String(),
		Header:     info.Headers(),
		Body:       string(body),
	}
	var parsed githubErrorBody
	if len(body) > 0 && json.Unmarshal(body, &parsed) == nil {
		httpErr.Message = parsed.Message
		httpErr.DocumentationURL = parsed.DocumentationURL
		httpErr.Errors = parsed.Errors
	}
	return httpErr
}

// isTypedError reports whether err already belongs to the taxonomy.
func isTypedError(err error) bool {
	var (
		ioErr        *IOError
		httpErr      *HTTPError
		rateErr      *RateLimitError
		abuseErr     *AbuseLimitError
		malformedErr *MalformedResponseError
		exhaustedErr *RetriesExhaustedError
		credErr      *CredentialError
	)
	return errors.Is(err, ErrInterrupted) ||
		errors.As(err, &credErr) ||
		errors.As(err, &ioErr) ||
		errors.As(err, &httpErr) ||
		errors.As(err, &rateErr) ||
		errors.As(err, &abuseErr) ||
		errors.As(err, &malformedErr) ||
		errors.As(err, &exhaustedErr)
}

// interpretAPIError maps a failed request into a typed error. cause is the
// error observed so far, if any; typed errors pass through untouched.
func interpretAPIError(cause error, req *Request, info *ResponseInfo) error {
	if cause != nil && isTypedError(cause) {
		return cause
	}
	if info == nil {
		return &IOError{Method: req.Method(), URL: req.URL().String(), Err: cause}
	}

	var body []byte
	if info.HasBody() {
		data, err := info.Body()
		if err != nil {
			return &IOError{
				Method: req.Method(),
				URL:    req.URL().String(),
				Header: info.Headers(),
				Err:    fmt.Errorf("reading error body of %s response: %w", info.Status(), err),
			}
		}
		body = data
	}

	httpErr := newHTTPError(info, body)
	if info.StatusCode() == http.StatusNotFound {
		return &NotFoundError{HTTPError: httpErr}
	}
	return httpErr
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	var notFound *NotFoundError
	return errors.As(err, &notFound)
}

// IsOTPRequired reports whether err asks for a two-factor code.
func IsOTPRequired(err error) bool {
	var otp *OTPRequiredError
	return errors.As(err, &otp)
}

// IsRateLimited reports whether err is a primary or secondary rate limit
// failure, including raw 429 responses.
func IsRateLimited(err error) bool {
	var (
		rateErr  *RateLimitError
		abuseErr *AbuseLimitError
		httpErr  *HTTPError
	)
	if errors.As(err, &rateErr) || errors.As(err, &abuseErr) {
		return true
	}
	if !errors.As(err, &httpErr) {
		return false
	}
	if httpErr.StatusCode == http.StatusTooManyRequests {
		return true
	}
	lower := strings.ToLower(httpErr.Message)
	return httpErr.StatusCode == http.StatusForbidden &&
		(strings.Contains(lower, "rate limit") || strings.Contains(lower, "abuse detection"))
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}

// Lookup is the result of a request whose target may legitimately not
// exist. Absence is a state, not an error.
type Lookup[T any] struct {
	value T
	found bool
	err   error
}

// Found reports whether the resource exists.
func (l Lookup[T]) Found() bool { return l.found }

// Value returns the resource, or the zero value when not found.
func (l Lookup[T]) Value() T { return l.value }

// Err returns the failure, if the lookup neither found nor ruled out the
// resource.
func (l Lookup[T]) Err() error { return l.err }

// Get returns all three fields at once.
func (l Lookup[T]) Get() (T, bool, error) { return l.value, l.found, l.err }
