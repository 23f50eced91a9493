package pagination

import (
	"fmt"
	"net/url"
	"strings"
)

// Link is one RFC 8288 relation pointing at a page cursor.
type Link struct {
	Rel    string
	Cursor string
}

// BuildLinkHeader renders links as a Link header value against path,
// carrying query along. Links without a cursor are left out.
func BuildLinkHeader(path string, query url.Values, links ...Link) string {
	var b strings.Builder
	for _, l := range links {
		if l.Cursor == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(", ")
		}
		q := withParam(query, "cursor", l.Cursor)
		fmt.Fprintf(&b, "<%s?%s>; rel=%q", path, q.Encode(), l.Rel)
	}
	return b.String()
}

// withParam returns a copy of v with key set. Set replaces the value slice,
// so slices shared with v are never written.
func withParam(v url.Values, key, value string) url.Values {
	out := make(url.Values, len(v)+1)
	for k, vals := range v {
		out[k] = vals
	}
	out.Set(key, value)
	return out
}
