// paged_iterable.go
// -----------------
// PagedIterable is a restartable description of a list endpoint: each
// Iterator call starts again from the first page. The eager helpers
// (ToList, ToArray, ToSet) drain a fresh iterator.
package ghbridge

import (
	"context"
	"iter"
	"sync"
)

// PagedIterable lists every item of a paginated endpoint.
type PagedIterable[T any] struct {
	bridge   *GitHubBridge
	req      *Request
	decode   pageDecoder[T]
	init     func(*T)
	pageSize int
	onPage   func(page[T])
}

// List pages through an endpoint returning a JSON array. init, if not
// nil, runs once on every item right after its page is fetched.
func List[T any](bridge *GitHubBridge, req *Request, init func(*T)) *PagedIterable[T] {
	return &PagedIterable[T]{bridge: bridge, req: req, decode: decodeArrayPage[T], init: init}
}

// ListWrapped pages through an endpoint that nests the array under field,
// e.g. "workflow_runs" or "repositories".
func ListWrapped[T any](bridge *GitHubBridge, req *Request, field string, init func(*T)) *PagedIterable[T] {
	return &PagedIterable[T]{bridge: bridge, req: req, decode: wrappedPageDecoder[T](field), init: init}
}

// WithPageSize returns a copy that requests n items per page. Values
// below 1 leave the server default.
func (p *PagedIterable[T]) WithPageSize(n int) *PagedIterable[T] {
	out := *p
	out.pageSize = n
	return &out
}

// Pages returns a page iterator starting at the first page.
func (p *PagedIterable[T]) Pages() *PageIterator[T] {
	req := p.req
	if p.pageSize > 0 {
		sized, err := req.ToBuilder().SetParam("per_page", p.pageSize).Build()
		if err != nil {
			return &PageIterator[T]{err: err}
		}
		req = sized
	}
	it := newPageIterator(p.bridge, req, p.decode, p.init)
	it.onPage = p.onPage
	return it
}

// Iterator returns an item iterator starting at the first page.
func (p *PagedIterable[T]) Iterator() *ItemIterator[T] {
	return &ItemIterator[T]{pages: p.Pages()}
}

// All yields every item of a fresh iteration.
func (p *PagedIterable[T]) All(ctx context.Context) iter.Seq2[T, error] {
	return p.Iterator().All(ctx)
}

// ToList fetches every page and returns the items in page order.
// Duplicates are kept.
func (p *PagedIterable[T]) ToList(ctx context.Context) ([]T, error) {
	var out []T
	it := p.Pages()
	for it.HasNext(ctx) {
		items, _ := it.Next(ctx)
		out = append(out, items...)
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}

// ToArray is ToList with the result trimmed to its exact length.
func (p *PagedIterable[T]) ToArray(ctx context.Context) ([]T, error) {
	items, err := p.ToList(ctx)
	if err != nil {
		return nil, err
	}
	return items[:len(items):len(items)], nil
}

// ToSet fetches every page and returns the distinct items.
func ToSet[T comparable](ctx context.Context, p *PagedIterable[T]) (map[T]struct{}, error) {
	set := make(map[T]struct{})
	for item, err := range p.All(ctx) {
		if err != nil {
			return nil, err
		}
		set[item] = struct{}{}
	}
	return set, nil
}

// PagedSearchIterable lists the results of a search endpoint and exposes
// the search metadata of the first page.
type PagedSearchIterable[T any] struct {
	*PagedIterable[T]

	mu         sync.Mutex
	fetched    bool
	totalCount int
	incomplete bool
}

// Search pages through a /search endpoint.
func Search[T any](bridge *GitHubBridge, req *Request, init func(*T)) *PagedSearchIterable[T] {
	s := &PagedSearchIterable[T]{}
	s.PagedIterable = &PagedIterable[T]{
		bridge: bridge,
		req:    req,
		decode: decodeSearchPage[T],
		init:   init,
		onPage: s.record,
	}
	return s
}

// WithPageSize returns a copy that requests n items per page.
func (s *PagedSearchIterable[T]) WithPageSize(n int) *PagedSearchIterable[T] {
	out := Search(s.bridge, s.req, s.init)
	out.pageSize = n
	return out
}

func (s *PagedSearchIterable[T]) record(p page[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetched {
		return
	}
	s.fetched = true
	s.totalCount = p.totalCount
	s.incomplete = p.incomplete
}

// populate fetches the first page once if no iteration has done so yet.
func (s *PagedSearchIterable[T]) populate(ctx context.Context) error {
	s.mu.Lock()
	fetched := s.fetched
	s.mu.Unlock()
	if fetched {
		return nil
	}
	it := s.Pages()
	if !it.HasNext(ctx) {
		return it.Err()
	}
	return nil
}

// TotalCount returns the number of matches reported by GitHub.
func (s *PagedSearchIterable[T]) TotalCount(ctx context.Context) (int, error) {
	if err := s.populate(ctx); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalCount, nil
}

// IsIncomplete reports whether GitHub timed out before finding every
// match.
func (s *PagedSearchIterable[T]) IsIncomplete(ctx context.Context) (bool, error) {
	if err := s.populate(ctx); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.incomplete, nil
}
