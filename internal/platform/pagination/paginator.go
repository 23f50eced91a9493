package pagination

import (
	"net/url"
	"strconv"
)

// Request describes the page wanted from an ordered collection.
type Request struct {
	Cursor Cursor
	Limit  int
	// Path and Query are used to build the Link header.
	Path  string
	Query url.Values
}

// Page is one slice of a collection plus its navigation links.
type Page[T any] struct {
	Items []T
	Total int
	Next  string
	Prev  string
	Link  string
}

// Paginate slices items, which must already be in a stable order, after the
// cursor position. A cursor pointing at an ID that no longer exists restarts
// from the first item.
func Paginate[T any](items []T, req Request, id func(T) string) Page[T] {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	total := len(items)

	start := 0
	if req.Cursor.After != "" {
		for i, item := range items {
			if id(item) == req.Cursor.After {
				start = i + 1
				break
			}
		}
	}
	end := min(start+limit, total)
	page := Page[T]{Items: items[start:end], Total: total}

	if end < total && end > start {
		page.Next = Cursor{Kind: req.Cursor.Kind, After: id(items[end-1])}.Encode()
	}
	switch {
	case start == 0:
	case start <= limit:
		page.Prev = Cursor{Kind: req.Cursor.Kind}.Encode()
	default:
		page.Prev = Cursor{Kind: req.Cursor.Kind, After: id(items[start-limit-1])}.Encode()
	}

	q := withParam(req.Query, "limit", strconv.Itoa(limit))
	page.Link = BuildLinkHeader(req.Path, q, Link{Rel: "next", Cursor: page.Next}, Link{Rel: "prev", Cursor: page.Prev})
	return page
}
