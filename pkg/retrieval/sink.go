package retrieval

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/crawlpoint/connector/internal/logger"
	"github.com/crawlpoint/connector/pkg/adaptor"
	"github.com/crawlpoint/connector/pkg/docid"
	"github.com/crawlpoint/connector/pkg/transform"
	"github.com/crawlpoint/connector/pkg/watchdog"
)

// cannedNotFound replaces any body the adaptor wrote when a transform
// suppresses the document.
const cannedNotFound = "<!DOCTYPE html>\n<html><head><title>Not Found</title></head>" +
	"<body><h1>Not Found</h1><p>The requested document was not found.</p></body></html>\n"

// httpSink commits one response to the wire: it runs the metadata and ACL
// transforms, synthesizes the crawl-time headers, writes the status line,
// and hands back the body writer chain.
type httpSink struct {
	h       *Handler
	rw      http.ResponseWriter
	req     *http.Request
	wd      *watchdog.Watchdog
	id      docid.DocID
	trusted bool

	committed bool
	status    int
	body      io.WriteCloser
}

var _ adaptor.Sink = (*httpSink)(nil)

// Commit is invoked by the response's single terminal call.
func (s *httpSink) Commit(resp *adaptor.Response) (io.Writer, error) {
	if s.committed {
		return nil, adaptor.ErrAlreadyResponded
	}
	s.committed = true

	// The header phase ends here; the content phase covers body delivery.
	s.wd.Disarm()

	if err := s.applyTransforms(resp); err != nil {
		s.h.serverError(s.rw, s.req, s.id, err)
		return nil, err
	}

	// The content phase covers the remainder of the adaptor callback even
	// when the body is suppressed; the adaptor may keep writing to a
	// discarding stream and must still hit the deadline.
	s.wd.Arm(watchdog.PhaseContent, s.h.cfg.ContentTimeout)

	state := resp.State()
	switch {
	case state == adaptor.StateNotModified:
		s.status = http.StatusNotModified
		s.rw.WriteHeader(s.status)
		return nil, nil

	case state.NotFoundEquivalent():
		s.status = http.StatusNotFound
		s.rw.Header().Set("Content-Type", "text/html; charset=utf-8")
		s.rw.WriteHeader(s.status)
		if s.req.Method != http.MethodHead {
			_, _ = io.WriteString(s.rw, cannedNotFound)
		}
		return nil, nil

	case state == adaptor.StateNoContent:
		s.writeDocHeaders(resp)
		s.rw.Header().Set(headerSkipUpdatingContent, "true")
		s.status = http.StatusNoContent
		s.rw.WriteHeader(s.status)
		return nil, nil
	}

	// Body-bearing states: Head, SendBody and SendBodyTransformedToHead.
	s.writeDocHeaders(resp)

	sendBody := state == adaptor.StateSendBody
	compress := sendBody && s.h.cfg.UseCompression && acceptsGzip(s.req)
	if compress {
		s.rw.Header().Set("Content-Encoding", "gzip")
	}

	s.status = http.StatusOK
	s.rw.WriteHeader(s.status)
	if !sendBody {
		return nil, nil
	}

	var w io.Writer = s.rw
	closers := make([]io.WriteCloser, 0, 2)
	if compress {
		gz := gzip.NewWriter(s.rw)
		closers = append(closers, gz)
		w = gz
	}
	if s.trusted && len(s.h.cfg.ContentTransforms) > 0 {
		wrapped, err := transform.WrapContent(w, s.h.cfg.ContentTransforms)
		if err != nil {
			// Headers are already on the wire; log and serve untransformed.
			logger.Error("Content transform chain failed, serving raw body",
				logger.DocID(string(s.id)), logger.Err(err))
		} else {
			closers = append([]io.WriteCloser{wrapped}, closers...)
			w = wrapped
		}
	}
	s.body = &closerChain{Writer: w, closers: closers}
	return w, nil
}

// applyTransforms runs the metadata pipeline and applies its transmission
// decision to the response state. Skipped entirely for non-trusted clients.
func (s *httpSink) applyTransforms(resp *adaptor.Response) error {
	if !s.trusted || s.h.cfg.MetadataTransforms == nil || s.h.cfg.MetadataTransforms.Len() == 0 {
		return nil
	}
	state := resp.State()
	if state != adaptor.StateNoContent && state != adaptor.StateHead && state != adaptor.StateSendBody {
		return nil
	}

	params := map[string]string{
		"docid":        string(s.id),
		"content-type": resp.ContentType(),
		"display-url":  resp.DisplayURL(),
		"crawl-once":   fmt.Sprintf("%t", resp.CrawlOnce()),
		"lock":         fmt.Sprintf("%t", resp.Lock()),
	}
	if lm := resp.LastModified(); !lm.IsZero() {
		params["last-modified-millis-utc"] = epochMillis(lm)
	}

	decision, err := s.h.cfg.MetadataTransforms.Apply(resp.Metadata(), params)
	if err != nil {
		return fmt.Errorf("retrieval: metadata transform: %w", err)
	}

	switch decision {
	case transform.DoNotIndex:
		return resp.TransformToNotFound()
	case transform.DoNotIndexContent:
		if state == adaptor.StateSendBody {
			return resp.TransformToHead()
		}
	}
	return nil
}

// writeDocHeaders synthesizes the crawl-time headers. Metadata and ACL
// travel only to fully-trusted clients.
func (s *httpSink) writeDocHeaders(resp *adaptor.Response) {
	hdr := s.rw.Header()

	if ct := resp.ContentType(); ct != "" {
		hdr.Set("Content-Type", ct)
	}
	if lm := resp.LastModified(); !lm.IsZero() {
		hdr.Set("Last-Modified", lastModifiedValue(lm))
	}
	for name, values := range resp.Headers() {
		for _, v := range values {
			hdr.Add(name, v)
		}
	}

	if !s.trusted {
		return
	}

	a := resp.ACL()
	if a != nil && len(s.h.cfg.ACLTransforms) > 0 {
		transformed, err := transform.ApplyACL(*a, s.h.cfg.ACLTransforms)
		if err != nil {
			logger.Error("ACL transform failed, serving original ACL",
				logger.DocID(string(s.id)), logger.Err(err))
		} else {
			a = &transformed
		}
	}

	secure := resp.Secure() || (a != nil && !a.IsEmpty())
	if secure {
		hdr.Set(headerServeSecurity, "secure")
	} else {
		hdr.Set(headerServeSecurity, "public")
	}

	if robots := robotsHeader(resp.NoIndex(), resp.NoFollow(), resp.NoArchive()); robots != "" {
		hdr.Set(headerRobotsTag, robots)
	}

	legacyACL := map[string][]string{}
	if s.h.cfg.UseDocControlsHeader {
		dc, err := docControlsHeader(resp, a, s.h.cfg.Codec, s.h.cfg.ScoringType)
		if err != nil {
			logger.Error("Doc-controls header synthesis failed",
				logger.DocID(string(s.id)), logger.Err(err))
		} else if dc != "" {
			hdr.Set(headerDocControls, dc)
		}
	} else if a != nil && !a.IsEmpty() {
		pairs, err := a.MetadataPairs(s.h.cfg.Codec)
		if err != nil {
			logger.Error("ACL metadata synthesis failed",
				logger.DocID(string(s.id)), logger.Err(err))
		} else {
			legacyACL = pairs
		}
	}

	if md := metadataHeader(resp.Metadata(), legacyACL); md != "" {
		hdr.Set(headerExternalMetadata, md)
	}
	if anchors := anchorHeader(resp.Anchors()); anchors != "" {
		hdr.Set(headerExternalAnchor, anchors)
	}
}

// finish flushes and closes the body chain after the adaptor returns.
func (s *httpSink) finish() {
	if s.body == nil {
		return
	}
	if err := s.body.Close(); err != nil {
		logger.Warn("Body flush failed, connection closed mid-response",
			logger.DocID(string(s.id)), logger.Err(err))
	}
	s.body = nil
}

// closerChain closes wrappers outermost-first so buffered writers flush
// into their targets before those targets close.
type closerChain struct {
	io.Writer
	closers []io.WriteCloser
}

func (c *closerChain) Close() error {
	var first error
	for _, wc := range c.closers {
		if err := wc.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func acceptsGzip(r *http.Request) bool {
	if r.Method == http.MethodHead {
		return false
	}
	return strings.Contains(r.Header.Get("Accept-Encoding"), "gzip")
}
