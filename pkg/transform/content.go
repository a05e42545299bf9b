package transform

import (
	"fmt"
	"io"
)

// ContentTransform wraps the response body writer. Wrappers apply
// outermost-first: the first configured transform sees the adaptor's
// bytes before the rest of the chain.
type ContentTransform interface {
	Wrap(w io.Writer) (io.WriteCloser, error)
}

// ContentTransformFunc adapts a function to the ContentTransform interface.
type ContentTransformFunc func(w io.Writer) (io.WriteCloser, error)

func (f ContentTransformFunc) Wrap(w io.Writer) (io.WriteCloser, error) {
	return f(w)
}

// nopWriteCloser passes writes through and closes nothing.
type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// chainedWriter closes the wrappers innermost-last so buffered transforms
// flush in order.
type chainedWriter struct {
	io.Writer
	closers []io.WriteCloser
}

func (c *chainedWriter) Close() error {
	var first error
	for _, wc := range c.closers {
		if err := wc.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// WrapContent builds the writer chain for a body. With no transforms the
// original writer is returned behind a no-op closer.
func WrapContent(w io.Writer, ts []ContentTransform) (io.WriteCloser, error) {
	if len(ts) == 0 {
		return nopWriteCloser{w}, nil
	}
	// Wrap back to front so ts[0] is the outermost writer.
	cur := w
	closers := make([]io.WriteCloser, 0, len(ts))
	for i := len(ts) - 1; i >= 0; i-- {
		wc, err := ts[i].Wrap(cur)
		if err != nil {
			return nil, fmt.Errorf("transform: content: %w", err)
		}
		closers = append([]io.WriteCloser{wc}, closers...)
		cur = wc
	}
	return &chainedWriter{Writer: cur, closers: closers}, nil
}
