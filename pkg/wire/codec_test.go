package wire

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateDelimiter(t *testing.T) {
	valid := [][]byte{
		[]byte("\n"),
		[]byte("#"),
		[]byte("<~!>"),
		[]byte{0x00},
		[]byte{0x1E, 0x1E},
	}
	for _, d := range valid {
		assert.NoError(t, ValidateDelimiter(d), "delimiter %q", d)
	}

	invalid := [][]byte{
		nil,
		[]byte("a"),
		[]byte("7"),
		[]byte("#A#"),
		[]byte(":"),
		[]byte("/"),
		[]byte("-"),
		[]byte("_"),
		[]byte(" "),
		[]byte("="),
		[]byte("+"),
		[]byte("["),
		[]byte("]"),
		bytes.Repeat([]byte("#"), MaxDelimiterLen+1),
	}
	for _, d := range invalid {
		assert.ErrorIs(t, ValidateDelimiter(d), ErrBadDelimiter, "delimiter %q", d)
	}
}

func TestArgEscaping(t *testing.T) {
	in := "a\x00b\nc"
	enc := encodeArg(in)
	assert.Equal(t, []byte{'a', 0xC0, 0x80, 'b', 0xC0, 0x8A, 'c'}, enc)

	out, err := decodeArg(enc)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDecodeArgRejectsOtherOverlongs(t *testing.T) {
	_, err := decodeArg([]byte{0xC0, 0x81})
	assert.ErrorIs(t, err, ErrMalformedStream)

	_, err = decodeArg([]byte{'x', 0xC0})
	assert.ErrorIs(t, err, ErrMalformedStream)
}

func TestScannerHeader(t *testing.T) {
	sc, err := NewScanner(strings.NewReader("GSA Adaptor Data Version 1 [#]\nid=a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("#"), sc.Delimiter())

	_, err = NewScanner(strings.NewReader("GSA Adaptor Data Version 2 [#]\n"))
	assert.ErrorIs(t, err, ErrBadHeader)

	_, err = NewScanner(strings.NewReader("GSA Adaptor Data Version 1 [abc]\n"))
	assert.ErrorIs(t, err, ErrBadDelimiter)

	_, err = NewScanner(strings.NewReader("no header at all"))
	assert.ErrorIs(t, err, ErrBadHeader)
}

func TestScannerCommands(t *testing.T) {
	sc, err := NewScanner(strings.NewReader("GSA Adaptor Data Version 1 [#]\nid=a#lock#result-link=http://x/"))
	require.NoError(t, err)

	cmd, err := sc.Next()
	require.NoError(t, err)
	assert.Equal(t, Command{Name: "id", Arg: "a", HasArg: true}, cmd)

	cmd, err = sc.Next()
	require.NoError(t, err)
	assert.Equal(t, Command{Name: "lock"}, cmd)

	cmd, err = sc.Next()
	require.NoError(t, err)
	assert.Equal(t, "http://x/", cmd.Arg)

	_, err = sc.Next()
	assert.ErrorIs(t, err, io.EOF)

	// Errors are sticky.
	_, err = sc.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestScannerDoubleDelimiter(t *testing.T) {
	sc, err := NewScanner(strings.NewReader("GSA Adaptor Data Version 1 [#]\nid=a##id=b"))
	require.NoError(t, err)

	cmd, err := sc.Next()
	require.NoError(t, err)
	assert.Equal(t, "a", cmd.Arg)

	_, err = sc.Next()
	assert.ErrorIs(t, err, ErrEndOfList)

	cmd, err = sc.Next()
	require.NoError(t, err)
	assert.Equal(t, "b", cmd.Arg)
}

func TestScannerMultiByteDelimiter(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, []byte("<~>"))
	require.NoError(t, err)
	require.NoError(t, w.CommandArg("id", "x<y"))
	require.NoError(t, w.Command("delete"))

	sc, err := NewScanner(&buf)
	require.NoError(t, err)

	cmd, err := sc.Next()
	require.NoError(t, err)
	assert.Equal(t, "x<y", cmd.Arg)

	cmd, err = sc.Next()
	require.NoError(t, err)
	assert.Equal(t, "delete", cmd.Name)

	_, err = sc.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestWriterEscapesDelimiterCollisions(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, []byte("\n"))
	require.NoError(t, err)
	require.NoError(t, w.CommandArg("id", "line1\nline2"))
	require.NoError(t, w.CommandArg("id", "nul\x00byte"))

	sc, err := NewScanner(&buf)
	require.NoError(t, err)

	cmd, err := sc.Next()
	require.NoError(t, err)
	assert.Equal(t, "line1\nline2", cmd.Arg)

	cmd, err = sc.Next()
	require.NoError(t, err)
	assert.Equal(t, "nul\x00byte", cmd.Arg)
}

func TestScannerBodyIsRaw(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, []byte("#"))
	require.NoError(t, err)
	require.NoError(t, w.CommandArg("id", "doc"))
	body := []byte("raw # bytes \x00 and \n more")
	require.NoError(t, w.Content(bytes.NewReader(body)))

	sc, err := NewScanner(&buf)
	require.NoError(t, err)
	_, err = sc.Next() // id
	require.NoError(t, err)
	cmd, err := sc.Next()
	require.NoError(t, err)
	require.Equal(t, "content", cmd.Name)

	got, err := io.ReadAll(sc.Body())
	require.NoError(t, err)
	assert.Equal(t, body, got)
}
