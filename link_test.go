package ghbridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLinks(t *testing.T) {
	header := `<https://api.github.com/repositories/1/issues?page=2>; rel="next", ` +
		`<https://api.github.com/repositories/1/issues?page=5>; rel="last", ` +
		`<https://api.github.com/repositories/1/issues?page=1>; rel="first prev"`

	links := parseLinks(header)
	assert.Equal(t, map[string]string{
		"next":  "https://api.github.com/repositories/1/issues?page=2",
		"last":  "https://api.github.com/repositories/1/issues?page=5",
		"first": "https://api.github.com/repositories/1/issues?page=1",
		"prev":  "https://api.github.com/repositories/1/issues?page=1",
	}, links)
}

func TestParseLinks_SkipsMalformedEntries(t *testing.T) {
	assert.Empty(t, parseLinks(""))
	assert.Empty(t, parseLinks("garbage"))
	assert.Empty(t, parseLinks(`https://no-brackets; rel="next"`))
	assert.Equal(t,
		map[string]string{"next": "https://x/2"},
		parseLinks(`<https://x/1>; title="one", <https://x/2>; rel=next`))
}

func TestPageNumber(t *testing.T) {
	assert.Equal(t, 7, pageNumber("https://api.github.com/x?per_page=10&page=7"))
	assert.Equal(t, 0, pageNumber("https://api.github.com/x"))
	assert.Equal(t, 0, pageNumber("https://api.github.com/x?page=zero"))
	assert.Equal(t, 0, pageNumber("https://api.github.com/x?page=-1"))
}
