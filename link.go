package ghbridge

import (
	"net/url"
	"strconv"
	"strings"
)

// parseLinks extracts rel -> URL pairs from an RFC 8288 Link header:
//
//	<https://api.github.com/...?page=2>; rel="next", <...>; rel="last"
//
// Malformed entries are skipped.
func parseLinks(header string) map[string]string {
	links := make(map[string]string)
	if header == "" {
		return links
	}

	for _, part := range strings.Split(header, ",") {
		segments := strings.Split(strings.TrimSpace(part), ";")
		if len(segments) < 2 {
			continue
		}
		target := strings.TrimSpace(segments[0])
		if !strings.HasPrefix(target, "<") || !strings.HasSuffix(target, ">") {
			continue
		}
		target = target[1 : len(target)-1]

		for _, attr := range segments[1:] {
			key, value, ok := strings.Cut(strings.TrimSpace(attr), "=")
			if !ok || strings.TrimSpace(key) != "rel" {
				continue
			}
			// rel may hold several space separated relation types.
			for _, rel := range strings.Fields(strings.Trim(strings.TrimSpace(value), `"`)) {
				links[rel] = target
			}
		}
	}
	return links
}

// pageNumber returns the "page" query parameter of rawURL, or 0 when it
// is absent or not a positive integer.
func pageNumber(rawURL string) int {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(u.Query().Get("page"))
	if err != nil || n < 1 {
		return 0
	}
	return n
}
