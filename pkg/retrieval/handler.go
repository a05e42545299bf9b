// Package retrieval serves individual documents to the indexer and to end
// users: it decodes identifiers from request URLs, classifies and
// authorizes callers, drives the adaptor under watchdog deadlines, and
// commits the response state machine to the wire.
package retrieval

import (
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/crawlpoint/connector/internal/logger"
	"github.com/crawlpoint/connector/internal/telemetry"
	"github.com/crawlpoint/connector/pkg/acl"
	"github.com/crawlpoint/connector/pkg/adaptor"
	"github.com/crawlpoint/connector/pkg/authz"
	"github.com/crawlpoint/connector/pkg/docid"
	"github.com/crawlpoint/connector/pkg/journal"
	"github.com/crawlpoint/connector/pkg/transform"
	"github.com/crawlpoint/connector/pkg/watchdog"
)

// Config wires one retrieval handler.
type Config struct {
	// Codec decodes request URLs into identifiers.
	Codec *docid.Codec

	// DocPath is the path prefix documents are served beneath.
	DocPath string

	// Trust classifies callers as indexer or end user.
	Trust *Classifier

	// Retriever is the adaptor's fetch callback.
	Retriever adaptor.Retriever

	// Authorizer decides end-user access. nil denies all secure requests.
	Authorizer authz.Authorizer

	// Sessions resolves end-user identities from session cookies. nil
	// treats every end user as anonymous.
	Sessions *authz.SessionService

	// Journal counts requests and errors. Required.
	Journal *journal.Journal

	// MarkAllDocsPublic skips authorization for everyone.
	MarkAllDocsPublic bool

	// UseCompression enables negotiated gzip bodies.
	UseCompression bool

	// UseDocControlsHeader selects the combined ACL header over the
	// legacy metadata keys.
	UseDocControlsHeader bool

	// ScoringType is advertised in the doc-controls header.
	ScoringType string

	// SSORedirectURL, when set, turns anonymous denials into a redirect
	// to the single-sign-on entry point.
	SSORedirectURL string

	// HeaderTimeout and ContentTimeout bound the two adaptor phases.
	HeaderTimeout  time.Duration
	ContentTimeout time.Duration

	// Transform pipelines, applied only for fully-trusted callers.
	MetadataTransforms *transform.Pipeline
	ACLTransforms      []transform.ACLTransform
	ContentTransforms  []transform.ContentTransform

	// MaxWorkers bounds concurrent adaptor invocations; QueueCapacity
	// bounds requests waiting for a worker slot. Excess requests are
	// rejected with 503.
	MaxWorkers    int
	QueueCapacity int
}

func (c *Config) applyDefaults() {
	if c.DocPath == "" {
		c.DocPath = "/doc/"
	}
	if c.HeaderTimeout == 0 {
		c.HeaderTimeout = watchdog.DefaultHeaderTimeout
	}
	if c.ContentTimeout == 0 {
		c.ContentTimeout = watchdog.DefaultContentTimeout
	}
	if c.MaxWorkers == 0 {
		c.MaxWorkers = 16
	}
	if c.QueueCapacity == 0 {
		c.QueueCapacity = 160
	}
}

// Handler serves GET and HEAD beneath the document path.
type Handler struct {
	cfg     Config
	slots   chan struct{}
	waiting atomic.Int32
}

// NewHandler validates the wiring and builds the handler.
func NewHandler(cfg Config) *Handler {
	cfg.applyDefaults()
	return &Handler{
		cfg:   cfg,
		slots: make(chan struct{}, cfg.MaxWorkers),
	}
}

// Router builds the retrieval server's router: the document route plus the
// sleep endpoint the lifecycle uses to unstick idle keep-alive waits
// during shutdown.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	// Trust classification keys on the socket peer address; forwarded-for
	// headers from the client must never rewrite RemoteAddr.

	docRoute := h.cfg.DocPath + "*"
	r.Get(docRoute, h.serve)
	r.Head(docRoute, h.serve)
	r.Get("/sleep", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return r
}

// serve handles one document request.
func (h *Handler) serve(w http.ResponseWriter, r *http.Request) {
	if !h.acquire(r) {
		logger.Warn("Worker queue full, rejecting request", logger.ClientIP(r.RemoteAddr))
		h.cfg.Journal.RecordRequestError()
		http.Error(w, "server overloaded", http.StatusServiceUnavailable)
		return
	}
	defer func() { <-h.slots }()

	escaped := strings.TrimPrefix(r.URL.EscapedPath(), h.cfg.DocPath)
	id, err := h.cfg.Codec.DecodePath(escaped)
	if err != nil {
		logger.Debug("Request path decodes to no identifier",
			"path", r.URL.Path, logger.Err(err))
		http.NotFound(w, r)
		return
	}

	trusted := h.cfg.Trust.Trusted(r)
	h.cfg.Journal.RecordRequest(trusted)

	sctx, span := telemetry.StartRetrievalSpan(r.Context(), string(id),
		telemetry.ClientIP(r.RemoteAddr), telemetry.Trusted(trusted))
	defer span.End()
	r = r.WithContext(sctx)

	if !h.authorize(w, r, id, trusted) {
		return
	}

	wd, ctx := watchdog.New(r.Context(), h.cfg.Journal)
	defer wd.Disarm()

	sink := &httpSink{
		h:       h,
		rw:      w,
		req:     r,
		wd:      wd,
		id:      id,
		trusted: trusted,
	}
	resp := adaptor.NewResponse(sink, r.Method == http.MethodHead)
	req := &adaptor.Request{
		ID:                      id,
		LastAccess:              parseIfModifiedSince(r),
		CanRespondWithNoContent: trusted,
	}

	start := time.Now()
	wd.Arm(watchdog.PhaseHeader, h.cfg.HeaderTimeout)
	err = h.cfg.Retriever.GetDocContent(ctx, req, resp)
	wd.Disarm()
	sink.finish()

	span.SetAttributes(telemetry.DocStatus(sink.status))

	switch {
	case err != nil:
		telemetry.RecordError(sctx, err)
		h.retrieveError(w, r, sink, wd, id, err)
	case resp.State() == adaptor.StateSetup:
		logger.Error("Adaptor returned without responding", logger.DocID(string(id)))
		h.cfg.Journal.RecordRequestError()
		http.Error(w, "adaptor did not respond", http.StatusInternalServerError)
	default:
		logger.Debug("Document served",
			logger.DocID(string(id)),
			logger.Status(sink.status),
			"state", resp.State().String(),
			logger.KeyTrusted, trusted,
			logger.DurationMs(float64(time.Since(start).Milliseconds())))
	}
}

// acquire claims a worker slot, waiting in the bounded queue when all
// slots are busy. It fails fast once the queue is full.
func (h *Handler) acquire(r *http.Request) bool {
	select {
	case h.slots <- struct{}{}:
		return true
	default:
	}
	if int(h.waiting.Add(1)) > h.cfg.QueueCapacity {
		h.waiting.Add(-1)
		return false
	}
	defer h.waiting.Add(-1)
	select {
	case h.slots <- struct{}{}:
		return true
	case <-r.Context().Done():
		return false
	}
}

// authorize admits or refuses the request, writing the refusal itself.
// Fully-trusted callers and public deployments pass through.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request, id docid.DocID, trusted bool) bool {
	if h.cfg.MarkAllDocsPublic || trusted {
		return true
	}

	identity := acl.Identity{}
	if h.cfg.Sessions != nil {
		identity = h.cfg.Sessions.IdentityFromRequest(r)
	}

	authorizer := h.cfg.Authorizer
	if authorizer == nil {
		authorizer = authz.DenyAll{}
	}
	decisions, err := authorizer.Apply(r.Context(), identity, []docid.DocID{id})
	if err != nil {
		logger.Error("Authorization failed", logger.DocID(string(id)), logger.Err(err))
		h.cfg.Journal.RecordRequestDenied()
		http.NotFound(w, r)
		return false
	}

	switch decisions[id] {
	case acl.Permit:
		return true
	case acl.Deny:
		h.cfg.Journal.RecordRequestDenied()
		if h.cfg.SSORedirectURL != "" && identity.Anonymous() {
			http.Redirect(w, r, h.cfg.SSORedirectURL, http.StatusFound)
			return false
		}
		http.Error(w, "forbidden", http.StatusForbidden)
		return false
	default:
		// Indeterminate reveals nothing about the document's existence.
		h.cfg.Journal.RecordRequestDenied()
		http.NotFound(w, r)
		return false
	}
}

// retrieveError maps an adaptor failure to a response. Once headers are on
// the wire nothing can be signalled; the failure is logged and the
// connection closes short.
func (h *Handler) retrieveError(w http.ResponseWriter, r *http.Request, sink *httpSink, wd *watchdog.Watchdog, id docid.DocID, err error) {
	h.cfg.Journal.RecordRequestError()

	if sink.committed {
		logger.Error("Adaptor failed after headers were sent, closing connection",
			logger.DocID(string(id)), logger.Err(err))
		return
	}

	switch {
	case wd.Fired():
		logger.Error("Adaptor interrupted by watchdog", logger.DocID(string(id)))
		http.Error(w, "retrieval timed out", http.StatusGatewayTimeout)
	case adaptor.IsTransient(err):
		logger.Warn("Repository unavailable", logger.DocID(string(id)), logger.Err(err))
		http.Error(w, "repository unavailable", http.StatusServiceUnavailable)
	default:
		logger.Error("Adaptor failed", logger.DocID(string(id)), logger.Err(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// serverError reports a pre-header failure discovered inside the sink.
// The journal entry is recorded by retrieveError once the adaptor call
// unwinds.
func (h *Handler) serverError(w http.ResponseWriter, _ *http.Request, id docid.DocID, err error) {
	logger.Error("Response commit failed", logger.DocID(string(id)), logger.Err(err))
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func parseIfModifiedSince(r *http.Request) time.Time {
	v := r.Header.Get("If-Modified-Since")
	if v == "" {
		return time.Time{}
	}
	t, err := http.ParseTime(v)
	if err != nil {
		return time.Time{}
	}
	return t
}
