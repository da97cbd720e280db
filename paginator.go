// paginator.go
// ------------
// Forward-only pagination. A PageIterator follows rel="next" links one
// page at a time; an ItemIterator flattens those pages into items. Both
// are lazy: nothing is fetched until the caller asks whether more data
// exists.
package ghbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
)

// page is one decoded batch of items plus the search metadata, when the
// endpoint returns it.
type page[T any] struct {
	items      []T
	totalCount int
	incomplete bool
}

// pageDecoder turns a page payload into items.
type pageDecoder[T any] func(data []byte) (page[T], error)

func decodeArrayPage[T any](data []byte) (page[T], error) {
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return page[T]{}, err
	}
	return page[T]{items: items, totalCount: -1}, nil
}

func decodeSearchPage[T any](data []byte) (page[T], error) {
	var wrapper struct {
		TotalCount        int  `json:"total_count"`
		IncompleteResults bool `json:"incomplete_results"`
		Items             []T  `json:"items"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return page[T]{}, err
	}
	return page[T]{items: wrapper.Items, totalCount: wrapper.TotalCount, incomplete: wrapper.IncompleteResults}, nil
}

// wrappedPageDecoder decodes pages shaped like
// {"total_count": 3, "workflow_runs": [...]}.
func wrappedPageDecoder[T any](field string) pageDecoder[T] {
	return func(data []byte) (page[T], error) {
		var wrapper map[string]json.RawMessage
		if err := json.Unmarshal(data, &wrapper); err != nil {
			return page[T]{}, err
		}
		raw, ok := wrapper[field]
		if !ok {
			return page[T]{}, fmt.Errorf("page has no %q field", field)
		}
		out := page[T]{totalCount: -1}
		if err := json.Unmarshal(raw, &out.items); err != nil {
			return page[T]{}, err
		}
		if count, ok := wrapper["total_count"]; ok {
			if err := json.Unmarshal(count, &out.totalCount); err != nil {
				return page[T]{}, err
			}
		}
		return out, nil
	}
}

// fetchPage executes req, decodes the page and runs init on every item.
// The returned ResponseInfo has its body already consumed.
func fetchPage[T any](ctx context.Context, bridge *GitHubBridge, req *Request, decode pageDecoder[T], init func(*T)) (page[T], *ResponseInfo, error) {
	info, err := bridge.executor.Execute(ctx, req)
	if err != nil {
		return page[T]{}, nil, err
	}
	defer info.Close()

	data, err := info.Body()
	if err != nil {
		return page[T]{}, nil, &IOError{Method: req.Method(), URL: req.URL().String(), Header: info.Headers(), Err: err}
	}
	p, err := decode(data)
	if err != nil {
		return page[T]{}, nil, &MalformedResponseError{URL: req.URL().String(), Header: info.Headers(), Payload: data, Err: err}
	}
	if init != nil {
		for i := range p.items {
			init(&p.items[i])
		}
	}
	return p, info, nil
}

// linkedRequest derives the request for a Link header URL.
func linkedRequest(req *Request, link string) (*Request, error) {
	return req.ToBuilder().withoutParams().WithURLPath(link).Build()
}

// PageIterator walks the pages of a list endpoint. It is not safe for
// concurrent use.
type PageIterator[T any] struct {
	bridge *GitHubBridge
	decode pageDecoder[T]
	init   func(*T)
	onPage func(page[T])

	next    *Request
	pending *page[T]
	final   *ResponseInfo
	err     error
}

func newPageIterator[T any](bridge *GitHubBridge, req *Request, decode pageDecoder[T], init func(*T)) *PageIterator[T] {
	return &PageIterator[T]{bridge: bridge, decode: decode, init: init, next: req}
}

// HasNext reports whether another page is available, fetching it if
// needed. It returns false on error; check Err.
func (it *PageIterator[T]) HasNext(ctx context.Context) bool {
	if it.pending != nil {
		return true
	}
	if it.err != nil || it.next == nil {
		return false
	}

	req := it.next
	p, info, err := fetchPage(ctx, it.bridge, req, it.decode, it.init)
	if err != nil {
		it.err = err
		return false
	}

	it.next = nil
	if link, ok := parseLinks(info.Header("Link"))["next"]; ok {
		next, err := linkedRequest(req, link)
		if err != nil {
			it.err = err
			return false
		}
		it.next = next
	} else {
		it.final = info
	}

	if it.onPage != nil {
		it.onPage(p)
	}
	it.pending = &p
	return true
}

// Next returns the next page's items. It returns ErrNoMorePages once the
// last page has been returned.
func (it *PageIterator[T]) Next(ctx context.Context) ([]T, error) {
	if !it.HasNext(ctx) {
		if it.err != nil {
			return nil, it.err
		}
		return nil, ErrNoMorePages
	}
	p := it.pending
	it.pending = nil
	return p.items, nil
}

// Err returns the error that stopped the iteration, if any.
func (it *PageIterator[T]) Err() error { return it.err }

// FinalResponse returns the response of the last page. It fails with
// ErrIterationNotFinished until every page has been consumed.
func (it *PageIterator[T]) FinalResponse() (*ResponseInfo, error) {
	if it.final == nil || it.pending != nil || it.next != nil {
		return nil, ErrIterationNotFinished
	}
	return it.final, nil
}

// Pages yields each page in order. Iteration stops at the first error,
// which is yielded with a nil page.
func (it *PageIterator[T]) Pages(ctx context.Context) iter.Seq2[[]T, error] {
	return func(yield func([]T, error) bool) {
		for it.HasNext(ctx) {
			items, _ := it.Next(ctx)
			if !yield(items, nil) {
				return
			}
		}
		if it.err != nil {
			yield(nil, it.err)
		}
	}
}

// ItemIterator walks the items of a list endpoint across pages. It is not
// safe for concurrent use.
type ItemIterator[T any] struct {
	pages  *PageIterator[T]
	buffer []T
}

// HasNext reports whether another item is available, fetching the next
// page if needed. Empty pages are skipped.
func (it *ItemIterator[T]) HasNext(ctx context.Context) bool {
	for len(it.buffer) == 0 {
		if !it.pages.HasNext(ctx) {
			return false
		}
		it.buffer, _ = it.pages.Next(ctx)
	}
	return true
}

// Next returns the next item, or ErrNoMorePages after the last one.
func (it *ItemIterator[T]) Next(ctx context.Context) (T, error) {
	if !it.HasNext(ctx) {
		var zero T
		if err := it.pages.Err(); err != nil {
			return zero, err
		}
		return zero, ErrNoMorePages
	}
	item := it.buffer[0]
	it.buffer = it.buffer[1:]
	return item, nil
}

// NextPage returns the rest of the current page, or the next page when
// the current one has been consumed.
func (it *ItemIterator[T]) NextPage(ctx context.Context) ([]T, error) {
	if !it.HasNext(ctx) {
		if err := it.pages.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNoMorePages
	}
	items := it.buffer
	it.buffer = nil
	return items, nil
}

// Err returns the error that stopped the iteration, if any.
func (it *ItemIterator[T]) Err() error { return it.pages.Err() }

// FinalResponse returns the response of the last page once every item has
// been consumed.
func (it *ItemIterator[T]) FinalResponse() (*ResponseInfo, error) {
	if len(it.buffer) > 0 {
		return nil, ErrIterationNotFinished
	}
	return it.pages.FinalResponse()
}

// All yields each item in order. Iteration stops at the first error,
// which is yielded with the zero value.
func (it *ItemIterator[T]) All(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for it.HasNext(ctx) {
			item, _ := it.Next(ctx)
			if !yield(item, nil) {
				return
			}
		}
		if err := it.pages.Err(); err != nil {
			var zero T
			yield(zero, err)
		}
	}
}
