package deb

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// Headers is an RFC822 style header block as found in control files and
// source descriptions. Lookups ignore case while the original spelling and
// order of the fields are kept for output.
//
// Multi-line values keep their continuation lines, including the leading
// whitespace, joined by "\n". The first line is trimmed.
type Headers struct {
	keys   []string
	values map[string]string
}

// NewHeaders returns an empty header block.
func NewHeaders() *Headers {
	return &Headers{values: make(map[string]string)}
}

// ParseHeaders parses the first stanza of an RFC822 style header block.
// Values that are not valid UTF-8 are decoded as ISO-8859-1, field by field,
// so control files mixing both encodings read as valid text.
func ParseHeaders(data []byte) (*Headers, error) {
	h := NewHeaders()

	var key string
	var value []byte
	flush := func() error {
		if key == "" {
			return nil
		}
		v, err := decodeValue(bytes.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("decoding %s: %w", key, err)
		}
		h.Set(key, v)
		key, value = "", nil
		return nil
	}

	lines := bytes.Split(data, []byte("\n"))
	for i, line := range lines {
		line = bytes.TrimSuffix(line, []byte("\r"))
		switch {
		case len(bytes.TrimSpace(line)) == 0:
			if key != "" || h.Len() > 0 {
				// End of the first stanza.
				return h, flush()
			}
		case line[0] == '#':
			// Comment.
		case line[0] == ' ' || line[0] == '\t':
			if key == "" {
				return nil, &HeaderSyntaxError{Line: i + 1, Content: string(line)}
			}
			value = append(value, '\n')
			value = append(value, line...)
		default:
			name, rest, ok := bytes.Cut(line, []byte(":"))
			name = bytes.TrimSpace(name)
			if !ok || len(name) == 0 {
				return nil, &HeaderSyntaxError{Line: i + 1, Content: string(line)}
			}
			if err := flush(); err != nil {
				return nil, err
			}
			key = string(name)
			value = append([]byte(nil), bytes.TrimSpace(rest)...)
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return h, nil
}

func decodeValue(b []byte) (string, error) {
	if utf8.Valid(b) {
		return string(b), nil
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Get returns the value of the named header. The boolean is false when the
// header is absent; a present but empty header returns "", true.
func (h *Headers) Get(name string) (string, bool) {
	v, ok := h.values[strings.ToLower(name)]
	return v, ok
}

// Lookup returns the value of the named header or an error wrapping
// ErrHeaderNotFound.
func (h *Headers) Lookup(name string) (string, error) {
	v, ok := h.Get(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrHeaderNotFound, name)
	}
	return v, nil
}

// Has reports whether the named header is present.
func (h *Headers) Has(name string) bool {
	_, ok := h.values[strings.ToLower(name)]
	return ok
}

// Set replaces the value of the named header, keeping its position, or
// appends the header when absent.
func (h *Headers) Set(name, value string) {
	k := strings.ToLower(name)
	if _, ok := h.values[k]; !ok {
		h.keys = append(h.keys, name)
	}
	h.values[k] = value
}

// Keys returns the header names in their original order and spelling.
func (h *Headers) Keys() []string {
	return append([]string(nil), h.keys...)
}

// Len returns the number of headers.
func (h *Headers) Len() int { return len(h.keys) }

// Map returns a copy of the headers keyed by their original spelling.
func (h *Headers) Map() map[string]string {
	m := make(map[string]string, len(h.keys))
	for _, k := range h.keys {
		m[k] = h.values[strings.ToLower(k)]
	}
	return m
}

// String serializes the headers back to a header block.
func (h *Headers) String() string {
	var b strings.Builder
	for _, k := range h.keys {
		v := h.values[strings.ToLower(k)]
		if v == "" || strings.HasPrefix(v, "\n") {
			fmt.Fprintf(&b, "%s:%s\n", k, v)
		} else {
			fmt.Fprintf(&b, "%s: %s\n", k, v)
		}
	}
	return b.String()
}
