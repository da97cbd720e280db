package ghbridge

import (
	"bytes"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingBody struct {
	io.Reader
	reads  int
	closed int
}

func (b *countingBody) Read(p []byte) (int, error) {
	b.reads++
	return b.Reader.Read(p)
}

func (b *countingBody) Close() error {
	b.closed++
	return nil
}

func testRequest(t *testing.T, path string) *Request {
	t.Helper()
	req, err := NewRequestBuilder("https://api.github.com").WithURLPath(path).Build()
	require.NoError(t, err)
	return req
}

func testResponse(t *testing.T, status int, header http.Header, body io.ReadCloser) *ResponseInfo {
	t.Helper()
	return newResponseInfo(testRequest(t, "/repos/o/r"), &ConnectorResponse{
		StatusCode: status,
		Header:     header,
		Body:       body,
	}, time.Unix(1_700_000_000, 0))
}

func TestResponseInfo_BodyIsReadOnce(t *testing.T) {
	body := &countingBody{Reader: bytes.NewBufferString(`{"id":1}`)}
	info := testResponse(t, 200, http.Header{"Etag": {`"abc"`}}, body)

	first, err := info.Body()
	require.NoError(t, err)
	reads := body.reads
	second, err := info.Body()
	require.NoError(t, err)

	assert.Equal(t, `{"id":1}`, string(first))
	assert.Equal(t, first, second)
	assert.Equal(t, reads, body.reads)
	assert.Equal(t, 1, body.closed)
	assert.NoError(t, info.Close())
	assert.Equal(t, 1, body.closed)

	assert.Equal(t, `"abc"`, info.Header("ETag"))
	assert.Equal(t, "200 OK", info.Status())
	assert.Equal(t, time.Unix(1_700_000_000, 0), info.ReceivedAt())
}

func TestResponseInfo_HeadersAreCapturedAtReceipt(t *testing.T) {
	header := http.Header{"X-Test": {"one"}}
	info := testResponse(t, 200, header, nil)
	header.Set("X-Test", "two")

	assert.Equal(t, "one", info.Header("X-Test"))
	info.Headers().Set("X-Test", "three")
	assert.Equal(t, "one", info.Header("X-Test"))
}

func TestResponseInfo_GzipBody(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(`[1,2,3]`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	info := testResponse(t, 200, http.Header{"Content-Encoding": {"gzip"}}, io.NopCloser(&buf))
	text, err := info.BodyString()
	require.NoError(t, err)
	assert.Equal(t, `[1,2,3]`, text)
}

func TestResponseInfo_UnknownEncodingFails(t *testing.T) {
	info := testResponse(t, 200, http.Header{"Content-Encoding": {"br"}}, io.NopCloser(bytes.NewBufferString("x")))
	_, err := info.Body()
	assert.ErrorContains(t, err, `unsupported Content-Encoding "br"`)

	_, again := info.Body()
	assert.Equal(t, err, again)
}

func TestResponseInfo_NoBody(t *testing.T) {
	info := testResponse(t, 204, nil, nil)
	assert.False(t, info.HasBody())
	data, err := info.Body()
	assert.NoError(t, err)
	assert.Nil(t, data)
	assert.NotNil(t, info.Headers())
}
