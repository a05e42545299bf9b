package wire

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrEndOfList marks a double delimiter, which closes the current id-list
// context. It is a control signal, not a failure.
var ErrEndOfList = errors.New("wire: end of list")

// Command is one element of the stream: a bare name or name=arg.
type Command struct {
	Name   string
	Arg    string
	HasArg bool
}

// Scanner reads a framed command stream. Next returns exactly one of a
// command, a terminal condition (io.EOF or ErrEndOfList), or an error.
type Scanner struct {
	r     *bufio.Reader
	delim []byte
	buf   bytes.Buffer
	err   error
}

// NewScanner consumes and validates the version header, learning the
// stream's delimiter from it.
func NewScanner(r io.Reader) (*Scanner, error) {
	br := bufio.NewReader(r)
	line, err := br.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", ErrBadHeader, err)
	}
	line = strings.TrimSuffix(line, "\n")
	if !strings.HasPrefix(line, headerPrefix) || !strings.HasSuffix(line, headerSuffix) {
		return nil, fmt.Errorf("%w: %q", ErrBadHeader, line)
	}
	delim := []byte(line[len(headerPrefix) : len(line)-len(headerSuffix)])
	if err := ValidateDelimiter(delim); err != nil {
		return nil, err
	}
	return &Scanner{r: br, delim: delim}, nil
}

// Delimiter returns the delimiter declared by the stream header.
func (s *Scanner) Delimiter() []byte {
	return append([]byte(nil), s.delim...)
}

// Next returns the next command. io.EOF means the stream ended cleanly;
// ErrEndOfList means a double delimiter closed the current list context.
func (s *Scanner) Next() (Command, error) {
	if s.err != nil {
		return Command{}, s.err
	}
	elem, sawDelim, err := s.readElement()
	if err != nil {
		s.err = err
		return Command{}, err
	}
	if len(elem) == 0 {
		if sawDelim {
			return Command{}, ErrEndOfList
		}
		s.err = io.EOF
		return Command{}, io.EOF
	}
	cmd, err := parseCommand(elem)
	if err != nil {
		s.err = err
		return Command{}, err
	}
	return cmd, nil
}

// Body returns the remaining raw bytes of the stream. Valid only after the
// terminal content command; no decoding is applied.
func (s *Scanner) Body() io.Reader {
	return s.r
}

// readElement accumulates bytes until the delimiter or EOF. sawDelim
// distinguishes a delimiter-terminated empty element (end of list) from a
// clean EOF.
func (s *Scanner) readElement() (elem []byte, sawDelim bool, err error) {
	s.buf.Reset()
	for {
		b, err := s.r.ReadByte()
		if err == io.EOF {
			return s.buf.Bytes(), false, nil
		}
		if err != nil {
			return nil, false, fmt.Errorf("wire: read: %w", err)
		}
		s.buf.WriteByte(b)
		if tail := s.buf.Bytes(); len(tail) >= len(s.delim) && bytes.HasSuffix(tail, s.delim) {
			return tail[:len(tail)-len(s.delim)], true, nil
		}
	}
}

func parseCommand(elem []byte) (Command, error) {
	if i := bytes.IndexByte(elem, '='); i >= 0 {
		arg, err := decodeArg(elem[i+1:])
		if err != nil {
			return Command{}, err
		}
		name := string(elem[:i])
		if name == "" {
			return Command{}, fmt.Errorf("%w: command with empty name", ErrMalformedStream)
		}
		return Command{Name: name, Arg: arg, HasArg: true}, nil
	}
	name, err := decodeArg(elem)
	if err != nil {
		return Command{}, err
	}
	return Command{Name: name}, nil
}
