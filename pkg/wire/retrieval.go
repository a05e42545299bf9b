package wire

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/crawlpoint/connector/internal/logger"
	"github.com/crawlpoint/connector/pkg/acl"
	"github.com/crawlpoint/connector/pkg/docid"
	"github.com/crawlpoint/connector/pkg/metadata"
)

// Anchor is one outbound link attached to a document.
type Anchor struct {
	URI  string
	Text string
}

// Document is the parsed result of one retrieval stream.
type Document struct {
	ID docid.DocID

	// UpToDate means the repository copy has not changed since the crawl
	// time given in the request.
	UpToDate bool

	// NotFound means the identifier names no document.
	NotFound bool

	ContentType  string
	DisplayURL   string
	LastModified time.Time

	CrawlOnce bool
	Lock      bool
	Secure    bool
	NoIndex   bool
	NoFollow  bool
	NoArchive bool

	Metadata *metadata.Metadata
	Params   map[string]string
	Anchors  []Anchor
	ACL      *acl.ACL

	// Content is the document body; nil when the stream carried none.
	Content []byte
}

// aclState accumulates acl-* commands until the stream ends.
type aclState struct {
	active    bool
	builder   *acl.Builder
	namespace string

	inheritFrom     docid.DocID
	haveInherit     bool
	inheritFragment string
}

func (st *aclState) ensure() *acl.Builder {
	if !st.active {
		st.active = true
		st.builder = acl.NewBuilder()
	}
	return st.builder
}

func (st *aclState) principal(kind acl.PrincipalKind, name string) (acl.Principal, error) {
	if kind == acl.KindGroup {
		return acl.NewGroupInNamespace(name, st.namespace)
	}
	return acl.NewUserInNamespace(name, st.namespace)
}

// ReadRetrieval parses one retrieval stream. The first command must be the
// document identifier; a content command is terminal and consumes the rest
// of the stream as the raw body.
func ReadRetrieval(r io.Reader) (*Document, error) {
	sc, err := NewScanner(r)
	if err != nil {
		return nil, err
	}

	first, err := sc.Next()
	if err != nil {
		return nil, fmt.Errorf("%w: empty retrieval stream", ErrMalformedStream)
	}
	if first.Name != cmdID || !first.HasArg {
		return nil, fmt.Errorf("%w: first command must be an identifier, got %q", ErrMalformedStream, first.Name)
	}

	doc := &Document{
		ID:       docid.DocID(first.Arg),
		Metadata: metadata.New(),
		Params:   map[string]string{},
	}
	var aclSt aclState

	for {
		cmd, err := sc.Next()
		if errors.Is(err, io.EOF) || errors.Is(err, ErrEndOfList) {
			break
		}
		if err != nil {
			return nil, err
		}

		switch cmd.Name {
		case cmdRepositoryUnavailable:
			return nil, ErrRepositoryUnavailable

		case cmdContent:
			var buf bytes.Buffer
			if _, err := io.Copy(&buf, sc.Body()); err != nil {
				return nil, fmt.Errorf("wire: read body: %w", err)
			}
			doc.Content = buf.Bytes()
			if err := finishACL(doc, &aclSt); err != nil {
				return nil, err
			}
			return doc, nil

		case cmdUpToDate:
			doc.UpToDate = true
		case cmdNotFound:
			doc.NotFound = true
		case cmdMimeType:
			doc.ContentType = cmd.Arg
		case cmdDisplayURL:
			doc.DisplayURL = cmd.Arg
		case cmdLastModified:
			t, err := parseEpochMillis(cmd.Arg)
			if err != nil {
				return nil, err
			}
			doc.LastModified = t
		case cmdCrawlOnce:
			doc.CrawlOnce = true
		case cmdLock:
			doc.Lock = true
		case cmdSecure:
			doc.Secure = true
		case cmdNoIndex:
			doc.NoIndex = true
		case cmdNoFollow:
			doc.NoFollow = true
		case cmdNoArchive:
			doc.NoArchive = true

		case cmdMetaName:
			value, err := expectPaired(sc, cmdMetaName, cmdMetaValue)
			if err != nil {
				return nil, err
			}
			if err := doc.Metadata.Add(cmd.Arg, value); err != nil {
				return nil, fmt.Errorf("wire: metadata %q: %w", cmd.Arg, err)
			}
		case cmdParamName:
			value, err := expectPaired(sc, cmdParamName, cmdParamValue)
			if err != nil {
				return nil, err
			}
			doc.Params[cmd.Arg] = value
		case cmdAnchorURI:
			text, err := expectPaired(sc, cmdAnchorURI, cmdAnchorText)
			if err != nil {
				return nil, err
			}
			doc.Anchors = append(doc.Anchors, Anchor{URI: cmd.Arg, Text: text})
		case cmdMetaValue, cmdParamValue, cmdAnchorText:
			return nil, fmt.Errorf("%w: %s without preceding pair command", ErrMalformedStream, cmd.Name)

		case cmdACL:
			aclSt.ensure()
		case cmdNamespace:
			aclSt.ensure()
			aclSt.namespace = cmd.Arg
		case cmdACLPermitUser, cmdACLDenyUser, cmdACLPermitGroup, cmdACLDenyGroup:
			if err := applyACLPrincipal(&aclSt, cmd); err != nil {
				return nil, err
			}
		case cmdACLInheritFrom:
			aclSt.ensure()
			aclSt.inheritFrom = docid.DocID(cmd.Arg)
			aclSt.haveInherit = true
		case cmdACLInheritFragment:
			if !aclSt.haveInherit {
				return nil, fmt.Errorf("%w: %s before acl-inherit-from", ErrMalformedStream, cmd.Name)
			}
			aclSt.inheritFragment = cmd.Arg
		case cmdACLInheritanceType:
			t, err := acl.ParseInheritanceType(cmd.Arg)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedStream, err)
			}
			aclSt.ensure().InheritanceType(t)
		case cmdACLCaseSensitive:
			aclSt.ensure().CaseSensitive(true)
		case cmdACLCaseInsensitive:
			aclSt.ensure().CaseSensitive(false)

		default:
			logger.Warn("Skipping unknown retrieval command", "command", cmd.Name)
		}
	}

	if err := finishACL(doc, &aclSt); err != nil {
		return nil, err
	}
	return doc, nil
}

func applyACLPrincipal(st *aclState, cmd Command) error {
	b := st.ensure()
	kind := acl.KindUser
	if cmd.Name == cmdACLPermitGroup || cmd.Name == cmdACLDenyGroup {
		kind = acl.KindGroup
	}
	p, err := st.principal(kind, cmd.Arg)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedStream, err)
	}
	switch cmd.Name {
	case cmdACLPermitUser:
		b.PermitUsers(p)
	case cmdACLDenyUser:
		b.DenyUsers(p)
	case cmdACLPermitGroup:
		b.PermitGroups(p)
	case cmdACLDenyGroup:
		b.DenyGroups(p)
	}
	return nil
}

func finishACL(doc *Document, st *aclState) error {
	if !st.active {
		return nil
	}
	if st.haveInherit {
		if st.inheritFragment != "" {
			st.builder.InheritFromWithFragment(st.inheritFrom, st.inheritFragment)
		} else {
			st.builder.InheritFrom(st.inheritFrom)
		}
	}
	a, err := st.builder.Build()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedStream, err)
	}
	doc.ACL = &a
	return nil
}

// WriteRetrieval emits doc in the retrieval dialect; the content command,
// when a body is present, is written last.
func WriteRetrieval(w io.Writer, delim []byte, doc *Document) error {
	sw, err := NewWriter(w, delim)
	if err != nil {
		return err
	}
	if err := sw.CommandArg(cmdID, string(doc.ID)); err != nil {
		return err
	}

	flags := []struct {
		set  bool
		name string
	}{
		{doc.UpToDate, cmdUpToDate},
		{doc.NotFound, cmdNotFound},
		{doc.CrawlOnce, cmdCrawlOnce},
		{doc.Lock, cmdLock},
		{doc.Secure, cmdSecure},
		{doc.NoIndex, cmdNoIndex},
		{doc.NoFollow, cmdNoFollow},
		{doc.NoArchive, cmdNoArchive},
	}
	for _, f := range flags {
		if f.set {
			if err := sw.Command(f.name); err != nil {
				return err
			}
		}
	}
	if doc.ContentType != "" {
		if err := sw.CommandArg(cmdMimeType, doc.ContentType); err != nil {
			return err
		}
	}
	if doc.DisplayURL != "" {
		if err := sw.CommandArg(cmdDisplayURL, doc.DisplayURL); err != nil {
			return err
		}
	}
	if !doc.LastModified.IsZero() {
		if err := sw.CommandArg(cmdLastModified, formatEpochMillis(doc.LastModified)); err != nil {
			return err
		}
	}

	if doc.Metadata != nil {
		var merr error
		doc.Metadata.Each(func(k, v string) {
			if merr != nil {
				return
			}
			if err := sw.CommandArg(cmdMetaName, k); err != nil {
				merr = err
				return
			}
			merr = sw.CommandArg(cmdMetaValue, v)
		})
		if merr != nil {
			return merr
		}
	}
	for k, v := range doc.Params {
		if err := sw.CommandArg(cmdParamName, k); err != nil {
			return err
		}
		if err := sw.CommandArg(cmdParamValue, v); err != nil {
			return err
		}
	}
	for _, a := range doc.Anchors {
		if err := sw.CommandArg(cmdAnchorURI, a.URI); err != nil {
			return err
		}
		if err := sw.CommandArg(cmdAnchorText, a.Text); err != nil {
			return err
		}
	}

	if doc.ACL != nil {
		if err := writeACL(sw, *doc.ACL); err != nil {
			return err
		}
	}

	if doc.Content != nil {
		return sw.Content(bytes.NewReader(doc.Content))
	}
	return nil
}

func writeACL(sw *Writer, a acl.ACL) error {
	if err := sw.Command(cmdACL); err != nil {
		return err
	}
	if !a.CaseSensitive() {
		if err := sw.Command(cmdACLCaseInsensitive); err != nil {
			return err
		}
	}
	// The namespace command is sticky on the reader side, so track it
	// across all four principal lists.
	ns := acl.DefaultNamespace
	write := func(name string, ps []acl.Principal) error {
		for _, p := range ps {
			if p.Namespace != ns {
				ns = p.Namespace
				if err := sw.CommandArg(cmdNamespace, ns); err != nil {
					return err
				}
			}
			if err := sw.CommandArg(name, p.Name); err != nil {
				return err
			}
		}
		return nil
	}
	if err := write(cmdACLPermitUser, a.PermitUsers()); err != nil {
		return err
	}
	if err := write(cmdACLPermitGroup, a.PermitGroups()); err != nil {
		return err
	}
	if err := write(cmdACLDenyUser, a.DenyUsers()); err != nil {
		return err
	}
	if err := write(cmdACLDenyGroup, a.DenyGroups()); err != nil {
		return err
	}
	if parent, ok := a.InheritFrom(); ok {
		if err := sw.CommandArg(cmdACLInheritFrom, string(parent)); err != nil {
			return err
		}
		if frag := a.InheritFragment(); frag != "" {
			if err := sw.CommandArg(cmdACLInheritFragment, frag); err != nil {
				return err
			}
		}
	}
	return sw.CommandArg(cmdACLInheritanceType, a.InheritanceType().String())
}

// expectPaired reads the immediately following command and requires it to
// be the second half of an adjacent pair.
func expectPaired(sc *Scanner, firstName, wantName string) (string, error) {
	cmd, err := sc.Next()
	if err != nil {
		return "", fmt.Errorf("%w: %s without adjacent %s", ErrMalformedStream, firstName, wantName)
	}
	if cmd.Name != wantName {
		return "", fmt.Errorf("%w: %s must be followed by %s, got %q", ErrMalformedStream, firstName, wantName, cmd.Name)
	}
	return cmd.Arg, nil
}
