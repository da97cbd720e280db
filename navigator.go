// navigator.go
// ------------
// Paginator gives random access to the pages of a list endpoint by
// rewriting the "page" query parameter. The page count comes from the
// rel="last" link of the most recently loaded page.
package ghbridge

import (
	"context"
	"fmt"
)

// Paginator navigates a list endpoint page by page. It is not safe for
// concurrent use.
type Paginator[T any] struct {
	bridge *GitHubBridge
	base   *Request
	decode pageDecoder[T]
	init   func(*T)

	current     int
	totalPages  int
	hasNext     bool
	hasPrevious bool
	items       []T
	loaded      bool
}

// NewPaginator returns a paginator over an endpoint returning a JSON
// array. The starting page is taken from req's "page" parameter.
func NewPaginator[T any](bridge *GitHubBridge, req *Request, init func(*T)) *Paginator[T] {
	return newPaginator(bridge, req, decodeArrayPage[T], init)
}

// NewSearchPaginator returns a paginator over a /search endpoint.
func NewSearchPaginator[T any](bridge *GitHubBridge, req *Request, init func(*T)) *Paginator[T] {
	return newPaginator(bridge, req, decodeSearchPage[T], init)
}

// NewWrappedPaginator returns a paginator over an endpoint that nests its
// array under field.
func NewWrappedPaginator[T any](bridge *GitHubBridge, req *Request, field string, init func(*T)) *Paginator[T] {
	return newPaginator(bridge, req, wrappedPageDecoder[T](field), init)
}

func newPaginator[T any](bridge *GitHubBridge, req *Request, decode pageDecoder[T], init func(*T)) *Paginator[T] {
	current := pageNumber(req.URL().String())
	if current == 0 {
		current = 1
	}
	return &Paginator[T]{bridge: bridge, base: req, decode: decode, init: init, current: current}
}

// CurrentPage returns the 1-based number of the current page.
func (p *Paginator[T]) CurrentPage() int { return p.current }

// TotalPages returns the page count seen on the last load, or 0 before
// the first load.
func (p *Paginator[T]) TotalPages() int { return p.totalPages }

// HasNext reports whether a page follows the current one. It is false
// before the first load.
func (p *Paginator[T]) HasNext() bool { return p.hasNext }

// HasPrevious reports whether a page precedes the current one.
func (p *Paginator[T]) HasPrevious() bool { return p.current > 1 || p.hasPrevious }

// Current returns the items of the current page, loading it on first use.
func (p *Paginator[T]) Current(ctx context.Context) ([]T, error) {
	if p.loaded {
		return p.items, nil
	}
	return p.load(ctx, p.current)
}

// Refresh reloads the current page from the server.
func (p *Paginator[T]) Refresh(ctx context.Context) ([]T, error) {
	return p.load(ctx, p.current)
}

// First moves to page 1.
func (p *Paginator[T]) First(ctx context.Context) ([]T, error) {
	return p.load(ctx, 1)
}

// Last moves to the last page.
func (p *Paginator[T]) Last(ctx context.Context) ([]T, error) {
	if !p.loaded {
		if _, err := p.Current(ctx); err != nil {
			return nil, err
		}
	}
	if p.totalPages == p.current {
		return p.items, nil
	}
	return p.load(ctx, p.totalPages)
}

// Next moves forward one page. It returns ErrNoMorePages on the last page.
func (p *Paginator[T]) Next(ctx context.Context) ([]T, error) {
	if !p.loaded {
		if _, err := p.Current(ctx); err != nil {
			return nil, err
		}
	}
	if !p.hasNext {
		return nil, ErrNoMorePages
	}
	return p.load(ctx, p.current+1)
}

// Previous moves back one page. It returns ErrNoMorePages on page 1.
func (p *Paginator[T]) Previous(ctx context.Context) ([]T, error) {
	if p.current <= 1 {
		return nil, ErrNoMorePages
	}
	return p.load(ctx, p.current-1)
}

// JumpToPage moves to page n. Pages beyond the known total are rejected
// once the total is known.
func (p *Paginator[T]) JumpToPage(ctx context.Context, n int) ([]T, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: page %d", ErrNoMorePages, n)
	}
	if p.loaded && p.totalPages > 0 && n > p.totalPages {
		return nil, fmt.Errorf("%w: page %d of %d", ErrNoMorePages, n, p.totalPages)
	}
	return p.load(ctx, n)
}

// load fetches page n and updates the navigation state. On failure the
// paginator stays where it was.
func (p *Paginator[T]) load(ctx context.Context, n int) ([]T, error) {
	req, err := p.base.ToBuilder().SetParam("page", n).Build()
	if err != nil {
		return nil, err
	}
	pg, info, err := fetchPage(ctx, p.bridge, req, p.decode, p.init)
	if err != nil {
		return nil, err
	}

	links := parseLinks(info.Header("Link"))
	_, p.hasNext = links["next"]
	_, p.hasPrevious = links["prev"]
	p.current = n
	p.totalPages = n
	if last, ok := links["last"]; ok {
		if total := pageNumber(last); total > 0 {
			p.totalPages = total
		}
	}
	p.items = pg.items
	p.loaded = true
	return p.items, nil
}
