package docid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	c, err := NewCodec("http://h:5678/doc/", false)
	require.NoError(t, err)

	cases := []string{
		"simple",
		"foo/bar baz",
		"with%percent",
		"trailing/",
		"/leading",
		"unicode-é世",
		"null\x00byte",
		"",
	}
	for _, id := range cases {
		u := c.Encode(DocID(id))
		got, err := c.Decode(u)
		require.NoError(t, err, "decode %q", u)
		assert.Equal(t, DocID(id), got)
	}
}

func TestEncodeKnownForm(t *testing.T) {
	c, err := NewCodec("http://h:5678/doc/", false)
	require.NoError(t, err)

	assert.Equal(t, "http://h:5678/doc/foo%2Fbar%20baz", c.Encode("foo/bar baz"))
}

func TestDecodeForeignURL(t *testing.T) {
	c, err := NewCodec("http://h:5678/doc/", false)
	require.NoError(t, err)

	_, err = c.Decode("http://other:5678/doc/x")
	assert.ErrorIs(t, err, ErrInvalidDocID)

	_, err = c.Decode("http://h:5678/other/x")
	assert.ErrorIs(t, err, ErrInvalidDocID)
}

func TestDecodeMalformedEscape(t *testing.T) {
	c, err := NewCodec("http://h:5678/doc/", false)
	require.NoError(t, err)

	for _, raw := range []string{
		"http://h:5678/doc/bad%zz",
		"http://h:5678/doc/trunc%2",
		"http://h:5678/doc/raw space",
	} {
		_, err := c.Decode(raw)
		assert.ErrorIs(t, err, ErrInvalidDocID, raw)
	}
}

func TestDocIDIsURLMode(t *testing.T) {
	c, err := NewCodec("http://h:5678/doc/", true)
	require.NoError(t, err)

	u := c.Encode("http://repo.example.com/a?b=c")
	assert.Equal(t, "http://repo.example.com/a?b=c", u)

	id, err := c.Decode(u)
	require.NoError(t, err)
	assert.Equal(t, DocID("http://repo.example.com/a?b=c"), id)
}

func TestRelativeBaseRejected(t *testing.T) {
	_, err := NewCodec("/doc/", false)
	assert.Error(t, err)
}
