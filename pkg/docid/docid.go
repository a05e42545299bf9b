// Package docid maps opaque document identifiers to crawlable URLs and back.
//
// The mapping is bijective for any fixed base URL: Decode(Encode(id)) == id
// for every identifier. Two modes exist:
//
//   - Default: the identifier is percent-encoded beneath the base URL path.
//   - DocIDIsURL: identifiers already are URLs and pass through unmodified.
package docid

import (
	"fmt"
	"net/url"
	"strings"
)

// DocID is an opaque caller-defined string naming one document.
type DocID string

// Codec converts identifiers to URLs and back for one base URL.
type Codec struct {
	baseURL    *url.URL
	docIDIsURL bool
}

// NewCodec creates a codec rooted at baseURL, e.g. "http://host:5678/doc/".
//
// When docIDIsURL is true, Encode and Decode pass identifiers through
// unmodified; the base URL is only used to recognize foreign URLs.
func NewCodec(baseURL string, docIDIsURL bool) (*Codec, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("docid: parse base URL: %w", err)
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("docid: base URL %q is not absolute", baseURL)
	}
	return &Codec{baseURL: u, docIDIsURL: docIDIsURL}, nil
}

// BaseURL returns the configured base URL string.
func (c *Codec) BaseURL() string {
	return c.baseURL.String()
}

// Encode mints the crawl URL for id.
func (c *Codec) Encode(id DocID) string {
	if c.docIDIsURL {
		return string(id)
	}
	return c.baseURL.String() + escapeDocID(string(id))
}

// Decode recovers the identifier from a URL produced by Encode.
//
// URLs outside the configured base path fail with ErrInvalidDocID.
func (c *Codec) Decode(rawURL string) (DocID, error) {
	if c.docIDIsURL {
		return DocID(rawURL), nil
	}
	base := c.baseURL.String()
	if !strings.HasPrefix(rawURL, base) {
		return "", fmt.Errorf("%w: %q is not beneath %q", ErrInvalidDocID, rawURL, base)
	}
	id, err := unescapeDocID(rawURL[len(base):])
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidDocID, err)
	}
	return DocID(id), nil
}

// DecodePath recovers the identifier from the request path portion after the
// base URL path, as seen by the HTTP handler (already percent-encoded).
func (c *Codec) DecodePath(escaped string) (DocID, error) {
	if c.docIDIsURL {
		// Identifiers-as-URLs cannot be served from the doc path.
		return "", fmt.Errorf("%w: identifiers are URLs", ErrInvalidDocID)
	}
	id, err := unescapeDocID(escaped)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidDocID, err)
	}
	return DocID(id), nil
}

// escapeDocID percent-encodes every byte outside the RFC 3986 unreserved set.
// Unlike url.PathEscape this also escapes '/' so identifiers containing
// slashes survive the round trip through path-based routing.
func escapeDocID(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		b := s[i]
		if isUnreserved(b) {
			sb.WriteByte(b)
		} else {
			sb.WriteString(fmt.Sprintf("%%%02X", b))
		}
	}
	return sb.String()
}

// unescapeDocID reverses escapeDocID.
func unescapeDocID(s string) (string, error) {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		b := s[i]
		if b == '%' {
			if i+2 >= len(s) {
				return "", fmt.Errorf("truncated percent escape at offset %d", i)
			}
			hi, ok1 := unhex(s[i+1])
			lo, ok2 := unhex(s[i+2])
			if !ok1 || !ok2 {
				return "", fmt.Errorf("malformed percent escape %q at offset %d", s[i:i+3], i)
			}
			sb.WriteByte(hi<<4 | lo)
			i += 2
			continue
		}
		if !isUnreserved(b) {
			return "", fmt.Errorf("unescaped byte %q at offset %d", b, i)
		}
		sb.WriteByte(b)
	}
	return sb.String(), nil
}

func isUnreserved(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		return true
	case b == '-' || b == '.' || b == '_' || b == '~':
		return true
	}
	return false
}

func unhex(b byte) (byte, bool) {
	switch {
	case b >= '0' && b <= '9':
		return b - '0', true
	case b >= 'a' && b <= 'f':
		return b - 'a' + 10, true
	case b >= 'A' && b <= 'F':
		return b - 'A' + 10, true
	}
	return 0, false
}
