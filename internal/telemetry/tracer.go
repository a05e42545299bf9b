package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys for connector operations. Generic keys follow
// OpenTelemetry semantic conventions where applicable.
const (
	// Client attributes
	AttrClientIP = "client.ip"
	AttrTrusted  = "client.trusted"

	// Document attributes
	AttrDocID     = "doc.id"
	AttrDocStatus = "doc.status"

	// Feed attributes
	AttrDatasource = "feed.datasource"
	AttrFeedType   = "feed.type"
	AttrRecords    = "feed.records"

	// Authorization attributes
	AttrUsername = "user.name"
	AttrDecision = "authz.decision"
)

// Span names for connector operations.
const (
	SpanRetrieval          = "retrieval.serve"
	SpanAuthorize          = "retrieval.authorize"
	SpanFeedPush           = "feed.push"
	SpanFullListing        = "listing.full"
	SpanIncrementalListing = "listing.incremental"
	SpanAdaptorInit        = "adaptor.init"
	SpanAdaptorRetrieve    = "adaptor.retrieve"
)

// ClientIP returns an attribute for the client IP address.
func ClientIP(ip string) attribute.KeyValue {
	return attribute.String(AttrClientIP, ip)
}

// Trusted returns an attribute marking a fully-trusted caller.
func Trusted(trusted bool) attribute.KeyValue {
	return attribute.Bool(AttrTrusted, trusted)
}

// DocID returns an attribute for a document identifier.
func DocID(id string) attribute.KeyValue {
	return attribute.String(AttrDocID, id)
}

// DocStatus returns an attribute for the HTTP status served.
func DocStatus(status int) attribute.KeyValue {
	return attribute.Int(AttrDocStatus, status)
}

// Datasource returns an attribute for the feed datasource name.
func Datasource(name string) attribute.KeyValue {
	return attribute.String(AttrDatasource, name)
}

// FeedType returns an attribute for the feed type.
func FeedType(t string) attribute.KeyValue {
	return attribute.String(AttrFeedType, t)
}

// Records returns an attribute for a batch record count.
func Records(n int) attribute.KeyValue {
	return attribute.Int(AttrRecords, n)
}

// Username returns an attribute for an authenticated username.
func Username(name string) attribute.KeyValue {
	return attribute.String(AttrUsername, name)
}

// Decision returns an attribute for an authorization decision.
func Decision(d string) attribute.KeyValue {
	return attribute.String(AttrDecision, d)
}

// StartRetrievalSpan starts a span for one document retrieval.
func StartRetrievalSpan(ctx context.Context, docID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{DocID(docID)}, attrs...)
	return StartSpan(ctx, SpanRetrieval, trace.WithAttributes(allAttrs...))
}

// StartFeedSpan starts a span for one feed delivery.
func StartFeedSpan(ctx context.Context, datasource, feedType string, records int) (context.Context, trace.Span) {
	return StartSpan(ctx, SpanFeedPush, trace.WithAttributes(
		Datasource(datasource),
		FeedType(feedType),
		Records(records),
	))
}
