// Package wire implements the framed command stream spoken between the
// connector and out-of-process adaptors: a version header naming a
// delimiter, then delimiter-separated commands. Four dialects share the
// framing: listing, retrieval, authorization query and authorization
// response.
package wire

import (
	"bytes"
	"fmt"
)

// headerPrefix and headerSuffix bracket the delimiter in the first line of
// every stream: "GSA Adaptor Data Version 1 [<delim>]\n".
const (
	headerPrefix = "GSA Adaptor Data Version 1 ["
	headerSuffix = "]"
)

// MaxDelimiterLen bounds delimiter length.
const MaxDelimiterLen = 20

// DefaultDelimiter is used by writers unless configured otherwise.
var DefaultDelimiter = []byte("\n")

// forbiddenDelimBytes lists bytes a delimiter may not contain, beyond
// alphanumerics. These all occur unescaped inside command arguments.
const forbiddenDelimBytes = ":/-_ =+[]"

// ValidateDelimiter checks length and byte restrictions.
func ValidateDelimiter(delim []byte) error {
	if len(delim) == 0 || len(delim) > MaxDelimiterLen {
		return fmt.Errorf("%w: length %d not in 1..%d", ErrBadDelimiter, len(delim), MaxDelimiterLen)
	}
	for _, b := range delim {
		switch {
		case b >= '0' && b <= '9', b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z':
			return fmt.Errorf("%w: contains alphanumeric %q", ErrBadDelimiter, b)
		case bytes.IndexByte([]byte(forbiddenDelimBytes), b) >= 0:
			return fmt.Errorf("%w: contains reserved byte %q", ErrBadDelimiter, b)
		}
	}
	return nil
}

// encodeArg escapes NUL and LF as modified UTF-8 so they cannot collide
// with common delimiters. All other bytes pass through.
func encodeArg(s string) []byte {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case 0x00:
			out = append(out, 0xC0, 0x80)
		case 0x0A:
			out = append(out, 0xC0, 0x8A)
		default:
			out = append(out, s[i])
		}
	}
	return out
}

// decodeArg reverses encodeArg. Only the two sanctioned overlong pairs are
// accepted; a 0xC0 followed by anything else is an encoding error.
func decodeArg(b []byte) (string, error) {
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		if b[i] != 0xC0 {
			out = append(out, b[i])
			continue
		}
		if i+1 >= len(b) {
			return "", fmt.Errorf("%w: truncated escape", ErrMalformedStream)
		}
		i++
		switch b[i] {
		case 0x80:
			out = append(out, 0x00)
		case 0x8A:
			out = append(out, 0x0A)
		default:
			return "", fmt.Errorf("%w: invalid overlong sequence 0xC0 0x%02X", ErrMalformedStream, b[i])
		}
	}
	return string(out), nil
}
