package main

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFakeGitHub(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	var server *httptest.Server

	mux.HandleFunc("/rate_limit", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `{"resources":{
			"core":{"limit":5000,"remaining":4321,"reset":1700003600},
			"search":{"limit":30,"remaining":30,"reset":1700000060}}}`)
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer ghp_cli", r.Header.Get("Authorization"))
		_, _ = fmt.Fprint(w, `{"login":"octocat","id":583231}`)
	})
	mux.HandleFunc("/orgs/acme/repos", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			_, _ = fmt.Fprint(w, `[{"id":3}]`)
			return
		}
		w.Header().Set("Link", fmt.Sprintf(`<%s/orgs/acme/repos?page=2&per_page=%s>; rel="next"`,
			server.URL, r.URL.Query().Get("per_page")))
		_, _ = fmt.Fprint(w, `[{"id":1},{"id":2}]`)
	})
	mux.HandleFunc("/search/repositories", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "lang:go", r.URL.Query().Get("q"))
		_, _ = fmt.Fprint(w, `{"total_count":1,"incomplete_results":false,"items":[{"id":9}]}`)
	})

	server = httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("GITHUB_TOKEN", "ghp_cli")
	root := newRootCmd()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRateLimitCommand(t *testing.T) {
	server := newFakeGitHub(t)

	out, _, err := run(t, "--base-url", server.URL, "rate-limit")
	require.NoError(t, err)
	assert.Contains(t, out, "CATEGORY")
	assert.Regexp(t, `core\s+4321\s+5000`, out)
	assert.Regexp(t, `integration_manifest\s+unknown`, out)
}

func TestWhoamiCommand(t *testing.T) {
	server := newFakeGitHub(t)

	out, _, err := run(t, "--base-url", server.URL, "whoami")
	require.NoError(t, err)
	assert.Equal(t, "octocat (id 583231)\n", out)
}

func TestListCommand(t *testing.T) {
	server := newFakeGitHub(t)

	out, _, err := run(t, "--base-url", server.URL, "list", "/orgs/acme/repos", "--per-page", "2")
	require.NoError(t, err)
	assert.Equal(t, []string{`{"id":1}`, `{"id":2}`, `{"id":3}`}, strings.Fields(out))

	out, _, err = run(t, "--base-url", server.URL, "list", "/orgs/acme/repos", "--max", "2")
	require.NoError(t, err)
	assert.Len(t, strings.Fields(out), 2)
}

func TestListCommand_Search(t *testing.T) {
	server := newFakeGitHub(t)

	out, errOut, err := run(t, "--base-url", server.URL, "list", "/search/repositories", "--search", "--param", "q=lang:go")
	require.NoError(t, err)
	assert.Equal(t, `{"id":9}`+"\n", out)
	assert.Contains(t, errOut, "total_count: 1")
}

func TestListCommand_InvalidParam(t *testing.T) {
	_, _, err := run(t, "list", "/x", "--param", "novalue")
	assert.ErrorContains(t, err, "expected key=value")
}

func TestAppFlagsRequirePrivateKey(t *testing.T) {
	_, _, err := run(t, "--app-id", "1", "whoami")
	assert.ErrorContains(t, err, "--private-key is required")
}
