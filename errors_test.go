package ghbridge

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingBody struct{}

func (failingBody) Read([]byte) (int, error) { return 0, errors.New("connection dropped") }
func (failingBody) Close() error             { return nil }

func TestInterpretAPIError(t *testing.T) {
	req := testRequest(t, "/repos/o/r")

	t.Run("404 becomes NotFoundError", func(t *testing.T) {
		info := testResponse(t, 404, nil, io.NopCloser(bytes.NewBufferString(
			`{"message":"Not Found","documentation_url":"https://docs.github.com/rest"}`)))
		err := interpretAPIError(nil, req, info)

		var notFound *NotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, "Not Found", notFound.Message)
		assert.Equal(t, "https://docs.github.com/rest", notFound.DocumentationURL)
		assert.True(t, IsNotFound(err))
		assert.Equal(t, 404, StatusCode(err))
	})

	t.Run("other status becomes HTTPError with validation details", func(t *testing.T) {
		info := testResponse(t, 422, nil, io.NopCloser(bytes.NewBufferString(
			`{"message":"Validation Failed","errors":[{"resource":"Issue","field":"title","code":"missing_field"}]}`)))
		err := interpretAPIError(nil, req, info)

		var httpErr *HTTPError
		require.ErrorAs(t, err, &httpErr)
		assert.False(t, IsNotFound(err))
		assert.Equal(t, 422, httpErr.StatusCode)
		assert.Equal(t, "Validation Failed", httpErr.Message)
		require.Len(t, httpErr.Errors, 1)
		assert.Equal(t, "ghbridge: GET https://api.github.com/repos/o/r: 422 Unprocessable Entity: Validation Failed; Issue.title: missing_field", err.Error())
	})

	t.Run("non JSON body is kept raw", func(t *testing.T) {
		info := testResponse(t, 502, nil, io.NopCloser(bytes.NewBufferString("<html>bad gateway</html>")))
		err := interpretAPIError(nil, req, info)

		var httpErr *HTTPError
		require.ErrorAs(t, err, &httpErr)
		assert.Equal(t, "<html>bad gateway</html>", httpErr.Body)
		assert.Empty(t, httpErr.Message)
	})

	t.Run("no body", func(t *testing.T) {
		err := interpretAPIError(nil, req, testResponse(t, 500, nil, nil))
		var httpErr *HTTPError
		require.ErrorAs(t, err, &httpErr)
		assert.Empty(t, httpErr.Body)

		err = interpretAPIError(nil, req, testResponse(t, 404, nil, nil))
		assert.True(t, IsNotFound(err))
	})

	t.Run("unreadable body becomes IOError with headers", func(t *testing.T) {
		info := testResponse(t, 500, http.Header{"X-Github-Request-Id": {"abc"}}, failingBody{})
		err := interpretAPIError(nil, req, info)

		var ioErr *IOError
		require.ErrorAs(t, err, &ioErr)
		assert.Equal(t, "abc", ioErr.Header.Get("X-GitHub-Request-Id"))
		assert.ErrorContains(t, err, "connection dropped")
	})

	t.Run("typed errors pass through", func(t *testing.T) {
		typed := &RateLimitError{URL: "u"}
		assert.Same(t, typed, interpretAPIError(typed, req, nil))

		wrapped := fmt.Errorf("context: %w", ErrInterrupted)
		assert.Equal(t, wrapped, interpretAPIError(wrapped, req, nil))
	})

	t.Run("untyped transport error becomes IOError", func(t *testing.T) {
		cause := errors.New("tls: bad certificate")
		err := interpretAPIError(cause, req, nil)

		var ioErr *IOError
		require.ErrorAs(t, err, &ioErr)
		assert.ErrorIs(t, err, cause)
	})
}

func TestErrorPredicates(t *testing.T) {
	httpErr := func(status int, message string) error {
		return &HTTPError{StatusCode: status, Status: http.StatusText(status), Message: message}
	}

	assert.True(t, IsRateLimited(&RateLimitError{}))
	assert.True(t, IsRateLimited(&AbuseLimitError{}))
	assert.True(t, IsRateLimited(httpErr(429, "")))
	assert.True(t, IsRateLimited(httpErr(403, "You have exceeded a secondary rate limit")))
	assert.False(t, IsRateLimited(httpErr(403, "Resource not accessible by integration")))
	assert.False(t, IsRateLimited(errors.New("plain")))

	otp := &OTPRequiredError{HTTPError: &HTTPError{StatusCode: 401, Header: http.Header{"X-Github-Otp": {"required; app"}}}}
	assert.True(t, IsOTPRequired(fmt.Errorf("wrapped: %w", otp)))
	assert.Equal(t, 401, StatusCode(otp))
	assert.Contains(t, otp.Error(), "required; app")

	assert.Equal(t, 0, StatusCode(errors.New("plain")))

	exhausted := &RetriesExhaustedError{URL: "https://api.github.com/x", Err: io.ErrUnexpectedEOF}
	assert.Equal(t, "ghbridge: ran out of retries for URL: https://api.github.com/x", exhausted.Error())
	assert.ErrorIs(t, exhausted, io.ErrUnexpectedEOF)
}

func TestLookup(t *testing.T) {
	found := Lookup[string]{value: "x", found: true}
	value, ok, err := found.Get()
	assert.Equal(t, "x", value)
	assert.True(t, ok)
	assert.NoError(t, err)

	var missing Lookup[string]
	assert.False(t, missing.Found())
	assert.NoError(t, missing.Err())
	assert.Empty(t, missing.Value())
}
