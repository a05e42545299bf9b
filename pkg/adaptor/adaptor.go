// Package adaptor defines the contract between the connector framework and
// repository adaptors: lifecycle, listing, retrieval and the response state
// machine used while serving a document.
package adaptor

import (
	"context"
	"time"

	"github.com/crawlpoint/connector/pkg/acl"
	"github.com/crawlpoint/connector/pkg/docid"
	"github.com/crawlpoint/connector/pkg/feed"
)

// SecretDecoder reveals sensitive config values that were stored encoded.
type SecretDecoder interface {
	Decode(encoded string) (string, error)
}

// RecordPusher accepts identifier records from listers. Push is
// non-blocking; false means the feed queue is full and the lister should
// back off and retry the record later.
type RecordPusher interface {
	Push(rec feed.Record) bool
}

// Context is the framework capability record handed to Init. Adaptors keep
// it for the lifetime of the process.
type Context struct {
	// Config is a snapshot of the adaptor-relevant configuration.
	Config map[string]string

	// Pusher feeds identifier records to the indexer outside of listing
	// runs.
	Pusher RecordPusher

	// Secrets decodes sensitive configuration values.
	Secrets SecretDecoder
}

// ConfigValue returns the configured value for key, or def when unset.
func (c *Context) ConfigValue(key, def string) string {
	if v, ok := c.Config[key]; ok {
		return v
	}
	return def
}

// Adaptor is the minimal repository binding. Init is retried with backoff
// when it fails transiently; Destroy runs once during shutdown.
type Adaptor interface {
	Init(ctx context.Context, actx *Context) error
	Destroy(ctx context.Context) error
}

// Lister produces the full set of repository identifiers.
type Lister interface {
	GetDocIDs(ctx context.Context, pusher RecordPusher) error
}

// PollingIncrementalLister produces only identifiers changed since the
// previous poll. Optional; the scheduler uses it when implemented.
type PollingIncrementalLister interface {
	GetModifiedDocIDs(ctx context.Context, pusher RecordPusher) error
}

// Retriever serves one document per request.
type Retriever interface {
	GetDocContent(ctx context.Context, req *Request, resp *Response) error
}

// ACLRetriever exposes batch ACL retrieval for authorization. Optional;
// without it every secure document denies non-trusted access.
type ACLRetriever interface {
	RetrieveACLs(ctx context.Context, ids []docid.DocID) (map[docid.DocID]acl.ACL, error)
}

// Request describes one document retrieval.
type Request struct {
	// ID is the decoded document identifier.
	ID docid.DocID

	// LastAccess is the indexer's copy time; zero when the request carried
	// no If-Modified-Since.
	LastAccess time.Time

	// CanRespondWithNoContent is true when the caller accepts a
	// "content unchanged, update metadata only" response.
	CanRespondWithNoContent bool
}

// HasChangedSince reports whether a document modified at t must be resent.
// With no LastAccess everything counts as changed.
func (r *Request) HasChangedSince(t time.Time) bool {
	if r.LastAccess.IsZero() {
		return true
	}
	return t.After(r.LastAccess)
}
