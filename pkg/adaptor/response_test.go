package adaptor

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crawlpoint/connector/pkg/acl"
)

// recordingSink captures the committed response and serves a buffer as the
// body writer.
type recordingSink struct {
	committed *Response
	commits   int
	body      bytes.Buffer

	// onCommit lets tests emulate framework transform transitions.
	onCommit func(r *Response) error
}

func (s *recordingSink) Commit(r *Response) (io.Writer, error) {
	s.commits++
	s.committed = r
	if s.onCommit != nil {
		if err := s.onCommit(r); err != nil {
			return nil, err
		}
	}
	return &s.body, nil
}

func TestSettersThenBody(t *testing.T) {
	sink := &recordingSink{}
	r := NewResponse(sink, false)

	require.NoError(t, r.SetContentType("text/plain"))
	require.NoError(t, r.SetLastModified(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, r.AddMetadata("author", "piggy"))
	require.NoError(t, r.SetACL(acl.NewBuilder().PermitUsers(acl.MustUser("fred")).MustBuild()))
	require.NoError(t, r.AddAnchor("http://x/", "x"))
	require.NoError(t, r.SetSecure(true))

	w, err := r.Body()
	require.NoError(t, err)
	_, err = io.WriteString(w, "hello")
	require.NoError(t, err)

	assert.Equal(t, StateSendBody, r.State())
	assert.Equal(t, 1, sink.commits)
	assert.Equal(t, "hello", sink.body.String())
	assert.Equal(t, "text/plain", r.ContentType())
	assert.True(t, r.Secure())
}

func TestSettersRejectedAfterTerminal(t *testing.T) {
	r := NewResponse(&recordingSink{}, false)
	require.NoError(t, r.RespondNotFound())

	assert.ErrorIs(t, r.SetContentType("text/plain"), ErrNotInSetup)
	assert.ErrorIs(t, r.AddMetadata("k", "v"), ErrNotInSetup)
	assert.ErrorIs(t, r.SetLock(true), ErrNotInSetup)
}

func TestSecondTerminalFails(t *testing.T) {
	r := NewResponse(&recordingSink{}, false)
	require.NoError(t, r.RespondNotModified())

	assert.ErrorIs(t, r.RespondNotFound(), ErrAlreadyResponded)
	assert.ErrorIs(t, r.RespondNoContent(), ErrAlreadyResponded)
	_, err := r.Body()
	assert.ErrorIs(t, err, ErrAlreadyResponded)
}

func TestBodyIsIdempotent(t *testing.T) {
	sink := &recordingSink{}
	r := NewResponse(sink, false)

	w1, err := r.Body()
	require.NoError(t, err)
	w2, err := r.Body()
	require.NoError(t, err)
	assert.Same(t, w1, w2)
	assert.Equal(t, 1, sink.commits)
}

func TestHeadRequestDiscardsBody(t *testing.T) {
	sink := &recordingSink{}
	r := NewResponse(sink, true)

	w, err := r.Body()
	require.NoError(t, err)
	_, err = io.WriteString(w, "invisible")
	require.NoError(t, err)

	assert.Equal(t, StateHead, r.State())
	assert.Zero(t, sink.body.Len())
}

func TestTransformToNotFoundSuppressesBody(t *testing.T) {
	sink := &recordingSink{onCommit: func(r *Response) error {
		return r.TransformToNotFound()
	}}
	r := NewResponse(sink, false)

	w, err := r.Body()
	require.NoError(t, err)
	_, err = io.WriteString(w, "secret")
	require.NoError(t, err)

	assert.Equal(t, StateSendBodyTransformedToNotFound, r.State())
	assert.True(t, r.State().NotFoundEquivalent())
	assert.Zero(t, sink.body.Len())
}

func TestTransformToHeadSuppressesBody(t *testing.T) {
	sink := &recordingSink{onCommit: func(r *Response) error {
		return r.TransformToHead()
	}}
	r := NewResponse(sink, false)

	w, err := r.Body()
	require.NoError(t, err)
	_, _ = io.WriteString(w, "body")

	assert.Equal(t, StateSendBodyTransformedToHead, r.State())
	assert.Zero(t, sink.body.Len())
}

func TestBodyIdempotentAfterTransform(t *testing.T) {
	for name, transition := range map[string]func(*Response) error{
		"head":      (*Response).TransformToHead,
		"not-found": (*Response).TransformToNotFound,
	} {
		t.Run(name, func(t *testing.T) {
			sink := &recordingSink{}
			sink.onCommit = transition
			r := NewResponse(sink, false)

			w1, err := r.Body()
			require.NoError(t, err)
			w2, err := r.Body()
			require.NoError(t, err)
			assert.Equal(t, w1, w2)
			assert.Equal(t, io.Discard, w2)
			assert.Equal(t, 1, sink.commits)
		})
	}
}

func TestTransformTransitionsValidity(t *testing.T) {
	r := NewResponse(&recordingSink{}, false)
	assert.Error(t, r.TransformToNotFound(), "setup cannot transform")
	assert.Error(t, r.TransformToHead())

	require.NoError(t, r.RespondNotModified())
	assert.Error(t, r.TransformToNotFound(), "not-modified cannot transform")
}

func TestNoContentTransform(t *testing.T) {
	sink := &recordingSink{onCommit: func(r *Response) error {
		return r.TransformToNotFound()
	}}
	r := NewResponse(sink, false)
	require.NoError(t, r.RespondNoContent())
	assert.Equal(t, StateNoContentTransformedToNotFound, r.State())
}

func TestStatePredicates(t *testing.T) {
	assert.True(t, StateNotFound.NotFoundEquivalent())
	assert.True(t, StateHeadTransformedToNotFound.NotFoundEquivalent())
	assert.False(t, StateSendBody.NotFoundEquivalent())

	assert.True(t, StateHead.BodySuppressed())
	assert.True(t, StateSendBodyTransformedToHead.BodySuppressed())
	assert.True(t, StateSendBodyTransformedToNotFound.BodySuppressed())
	assert.False(t, StateSendBody.BodySuppressed())
}

func TestTransientErrors(t *testing.T) {
	base := assert.AnError
	assert.True(t, IsTransient(Transient(base)))
	assert.False(t, IsTransient(base))
	assert.NoError(t, Transient(nil))
}
