package adaptor

import (
	"fmt"
	"io"
	"time"

	"github.com/crawlpoint/connector/pkg/acl"
	"github.com/crawlpoint/connector/pkg/metadata"
)

// State is the response lifecycle position. A response leaves StateSetup
// exactly once, through one terminal call; transform verdicts may then move
// it to one of the transformed states before headers are committed.
type State int

const (
	StateSetup State = iota
	StateNotModified
	StateNotFound
	StateNoContent
	StateNoContentTransformedToNotFound
	StateHead
	StateHeadTransformedToNotFound
	StateSendBody
	StateSendBodyTransformedToNotFound
	StateSendBodyTransformedToHead
)

func (s State) String() string {
	switch s {
	case StateSetup:
		return "setup"
	case StateNotModified:
		return "not-modified"
	case StateNotFound:
		return "not-found"
	case StateNoContent:
		return "no-content"
	case StateNoContentTransformedToNotFound:
		return "no-content-transformed-to-not-found"
	case StateHead:
		return "head"
	case StateHeadTransformedToNotFound:
		return "head-transformed-to-not-found"
	case StateSendBody:
		return "send-body"
	case StateSendBodyTransformedToNotFound:
		return "send-body-transformed-to-not-found"
	case StateSendBodyTransformedToHead:
		return "send-body-transformed-to-head"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// NotFoundEquivalent reports whether the state serves as a 404.
func (s State) NotFoundEquivalent() bool {
	switch s {
	case StateNotFound, StateNoContentTransformedToNotFound,
		StateHeadTransformedToNotFound, StateSendBodyTransformedToNotFound:
		return true
	}
	return false
}

// BodySuppressed reports whether the body must be withheld even though the
// adaptor may write one.
func (s State) BodySuppressed() bool {
	switch s {
	case StateHead, StateSendBodyTransformedToHead:
		return true
	}
	return s.NotFoundEquivalent()
}

// Sink commits a response: it synthesizes headers from the recorded state
// and returns the body writer. Called exactly once per response.
type Sink interface {
	Commit(resp *Response) (io.Writer, error)
}

// Anchor is one outbound link the indexer should follow.
type Anchor struct {
	URI  string
	Text string
}

// Response records everything an adaptor declares about a document and
// enforces the terminal-call discipline. Not safe for concurrent use.
type Response struct {
	sink     Sink
	headOnly bool

	state State
	body  io.Writer

	contentType  string
	lastModified time.Time
	displayURL   string
	md           *metadata.Metadata
	aclVal       *acl.ACL
	anchors      []Anchor
	headers      map[string][]string

	crawlOnce bool
	lock      bool
	secure    bool
	noIndex   bool
	noFollow  bool
	noArchive bool
}

// NewResponse creates a response in setup. headOnly marks HEAD requests,
// whose terminal body state is StateHead with the body discarded.
func NewResponse(sink Sink, headOnly bool) *Response {
	return &Response{
		sink:     sink,
		headOnly: headOnly,
		md:       metadata.New(),
		headers:  map[string][]string{},
	}
}

// State returns the current lifecycle position.
func (r *Response) State() State { return r.state }

// ============================================================================
// Terminals
// ============================================================================

// RespondNotModified declares the document unchanged since the request's
// last-access time.
func (r *Response) RespondNotModified() error {
	return r.terminal(StateNotModified)
}

// RespondNotFound declares that the identifier names no document.
func (r *Response) RespondNotFound() error {
	return r.terminal(StateNotFound)
}

// RespondNoContent declares the content unchanged but metadata fresh.
// Callers must first check Request.CanRespondWithNoContent.
func (r *Response) RespondNoContent() error {
	return r.terminal(StateNoContent)
}

// Body commits the response and returns the body writer. On HEAD requests
// the writer discards. Calling Body twice returns the same writer, also
// after a transform downgraded the state behind the adaptor's back.
func (r *Response) Body() (io.Writer, error) {
	switch r.state {
	case StateSendBody, StateHead,
		StateSendBodyTransformedToHead, StateSendBodyTransformedToNotFound:
		return r.body, nil
	}
	next := StateSendBody
	if r.headOnly {
		next = StateHead
	}
	if err := r.terminal(next); err != nil {
		return nil, err
	}
	return r.body, nil
}

func (r *Response) terminal(next State) error {
	if r.state != StateSetup {
		return ErrAlreadyResponded
	}
	r.state = next
	w, err := r.sink.Commit(r)
	if err != nil {
		return err
	}
	if r.state.BodySuppressed() || w == nil {
		w = io.Discard
	}
	r.body = w
	return nil
}

// ============================================================================
// Transform transitions, applied by the framework before headers commit
// ============================================================================

// TransformToNotFound downgrades the pending terminal to a not-found
// response. Valid from NoContent, Head and SendBody.
func (r *Response) TransformToNotFound() error {
	switch r.state {
	case StateNoContent:
		r.state = StateNoContentTransformedToNotFound
	case StateHead:
		r.state = StateHeadTransformedToNotFound
	case StateSendBody:
		r.state = StateSendBodyTransformedToNotFound
	default:
		return fmt.Errorf("adaptor: cannot transform %s to not-found", r.state)
	}
	return nil
}

// TransformToHead suppresses the body of a pending SendBody.
func (r *Response) TransformToHead() error {
	if r.state != StateSendBody {
		return fmt.Errorf("adaptor: cannot transform %s to head", r.state)
	}
	r.state = StateSendBodyTransformedToHead
	return nil
}

// ============================================================================
// Setters, valid only during setup
// ============================================================================

func (r *Response) setup() error {
	if r.state != StateSetup {
		return ErrNotInSetup
	}
	return nil
}

// SetContentType records the body MIME type.
func (r *Response) SetContentType(ct string) error {
	if err := r.setup(); err != nil {
		return err
	}
	r.contentType = ct
	return nil
}

// SetLastModified records the repository modification time.
func (r *Response) SetLastModified(t time.Time) error {
	if err := r.setup(); err != nil {
		return err
	}
	r.lastModified = t
	return nil
}

// SetDisplayURL overrides the URL shown in search results.
func (r *Response) SetDisplayURL(u string) error {
	if err := r.setup(); err != nil {
		return err
	}
	r.displayURL = u
	return nil
}

// AddMetadata appends one metadata value.
func (r *Response) AddMetadata(key, value string) error {
	if err := r.setup(); err != nil {
		return err
	}
	return r.md.Add(key, value)
}

// SetACL records the document ACL.
func (r *Response) SetACL(a acl.ACL) error {
	if err := r.setup(); err != nil {
		return err
	}
	r.aclVal = &a
	return nil
}

// AddAnchor appends one outbound anchor.
func (r *Response) AddAnchor(uri, text string) error {
	if err := r.setup(); err != nil {
		return err
	}
	r.anchors = append(r.anchors, Anchor{URI: uri, Text: text})
	return nil
}

// AddHeader appends one extra response header.
func (r *Response) AddHeader(name, value string) error {
	if err := r.setup(); err != nil {
		return err
	}
	r.headers[name] = append(r.headers[name], value)
	return nil
}

// SetCrawlOnce asks the indexer to never recrawl this document.
func (r *Response) SetCrawlOnce(v bool) error {
	if err := r.setup(); err != nil {
		return err
	}
	r.crawlOnce = v
	return nil
}

// SetLock protects the document from index eviction.
func (r *Response) SetLock(v bool) error {
	if err := r.setup(); err != nil {
		return err
	}
	r.lock = v
	return nil
}

// SetSecure marks the document as requiring authorization at serve time.
func (r *Response) SetSecure(v bool) error {
	if err := r.setup(); err != nil {
		return err
	}
	r.secure = v
	return nil
}

// SetNoIndex excludes the document from the index.
func (r *Response) SetNoIndex(v bool) error {
	if err := r.setup(); err != nil {
		return err
	}
	r.noIndex = v
	return nil
}

// SetNoFollow excludes the document's links from crawling.
func (r *Response) SetNoFollow(v bool) error {
	if err := r.setup(); err != nil {
		return err
	}
	r.noFollow = v
	return nil
}

// SetNoArchive excludes the document from the result cache.
func (r *Response) SetNoArchive(v bool) error {
	if err := r.setup(); err != nil {
		return err
	}
	r.noArchive = v
	return nil
}

// ============================================================================
// Accessors for the committing sink
// ============================================================================

func (r *Response) ContentType() string          { return r.contentType }
func (r *Response) LastModified() time.Time      { return r.lastModified }
func (r *Response) DisplayURL() string           { return r.displayURL }
func (r *Response) Metadata() *metadata.Metadata { return r.md }
func (r *Response) ACL() *acl.ACL                { return r.aclVal }
func (r *Response) Anchors() []Anchor            { return r.anchors }
func (r *Response) Headers() map[string][]string { return r.headers }
func (r *Response) CrawlOnce() bool              { return r.crawlOnce }
func (r *Response) Lock() bool                   { return r.lock }
func (r *Response) Secure() bool                 { return r.secure }
func (r *Response) NoIndex() bool                { return r.noIndex }
func (r *Response) NoFollow() bool               { return r.noFollow }
func (r *Response) NoArchive() bool              { return r.noArchive }
