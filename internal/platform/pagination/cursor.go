package pagination

import (
	"encoding/base64"
	"errors"
	"strings"
)

// ErrInvalidCursor is returned for cursors that are malformed or were issued
// for a different collection.
var ErrInvalidCursor = errors.New("invalid cursor")

// Cursor is the decoded form of the opaque cursor query parameter: the
// collection it belongs to and the ID of the last item already seen.
type Cursor struct {
	Kind  string
	After string
}

// Encode returns the URL-safe opaque form.
func (c Cursor) Encode() string {
	return base64.RawURLEncoding.EncodeToString([]byte(c.Kind + ":" + c.After))
}

// DecodeCursor parses s and checks it was issued for kind. An empty string
// decodes to the zero cursor (first page).
func DecodeCursor(s, kind string) (Cursor, error) {
	if s == "" {
		return Cursor{Kind: kind}, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Cursor{}, ErrInvalidCursor
	}
	k, after, ok := strings.Cut(string(raw), ":")
	if !ok || k != kind {
		return Cursor{}, ErrInvalidCursor
	}
	return Cursor{Kind: k, After: after}, nil
}
