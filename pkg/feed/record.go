// Package feed implements the push side of the connector: records produced
// by listers are batched, serialized into feed documents, delivered to the
// indexer with retry, and optionally archived.
//
// Pipeline: lister -> AsyncPusher (bounded queue) -> FileMaker -> Sender ->
// Archiver.
package feed

import (
	"time"

	"github.com/crawlpoint/connector/pkg/docid"
)

// Record is one feed entry describing a document identifier plus crawl
// hints. Records are values; they are created by the lister callback,
// consumed by the batcher, and discarded once their batch is acknowledged.
type Record struct {
	ID docid.DocID

	// ResultLink is an alternate URL to show in search results.
	ResultLink string

	// LastModified is the repository change time; zero means unset.
	LastModified time.Time

	CrawlImmediately bool
	CrawlOnce        bool
	Lock             bool

	// Delete marks the document for removal from the index.
	Delete bool
}

// NewRecord creates a plain record for id.
func NewRecord(id docid.DocID) Record {
	return Record{ID: id}
}

// NewDeleteRecord creates a record that removes id from the index.
func NewDeleteRecord(id docid.DocID) Record {
	return Record{ID: id, Delete: true}
}
