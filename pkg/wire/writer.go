package wire

import (
	"fmt"
	"io"
)

// Writer emits a framed command stream: the version header, then
// delimiter-separated commands. Writers are not safe for concurrent use.
type Writer struct {
	w     io.Writer
	delim []byte
	wrote bool
}

// NewWriter writes the version header for delim and returns the writer.
// A nil delim uses DefaultDelimiter.
func NewWriter(w io.Writer, delim []byte) (*Writer, error) {
	if delim == nil {
		delim = DefaultDelimiter
	}
	if err := ValidateDelimiter(delim); err != nil {
		return nil, err
	}
	header := headerPrefix + string(delim) + headerSuffix + "\n"
	if _, err := io.WriteString(w, header); err != nil {
		return nil, fmt.Errorf("wire: write header: %w", err)
	}
	return &Writer{w: w, delim: delim}, nil
}

// Command writes a bare command.
func (w *Writer) Command(name string) error {
	return w.writeElement([]byte(name))
}

// CommandArg writes name=arg with the argument escaped.
func (w *Writer) CommandArg(name, arg string) error {
	elem := append([]byte(name), '=')
	elem = append(elem, encodeArg(arg)...)
	return w.writeElement(elem)
}

// EndList writes the empty element that closes an id-list context,
// producing a double delimiter on the wire.
func (w *Writer) EndList() error {
	return w.writeElement(nil)
}

// Content writes the terminal content command followed by the raw body.
// Nothing may be written after it.
func (w *Writer) Content(body io.Reader) error {
	if err := w.writeElement([]byte(cmdContent)); err != nil {
		return err
	}
	if _, err := w.w.Write(w.delim); err != nil {
		return fmt.Errorf("wire: write: %w", err)
	}
	if _, err := io.Copy(w.w, body); err != nil {
		return fmt.Errorf("wire: write body: %w", err)
	}
	return nil
}

// writeElement separates elements with the delimiter. The separator goes
// before each element after the first, so the stream never ends with a
// spurious empty element.
func (w *Writer) writeElement(elem []byte) error {
	if w.wrote {
		if _, err := w.w.Write(w.delim); err != nil {
			return fmt.Errorf("wire: write: %w", err)
		}
	}
	w.wrote = true
	if _, err := w.w.Write(elem); err != nil {
		return fmt.Errorf("wire: write: %w", err)
	}
	return nil
}
