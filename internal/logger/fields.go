package logger

import "log/slog"

// Standard field keys for structured logging. Use these keys consistently
// across all log statements for log aggregation and querying.
const (
	// Request handling
	KeyRequestID = "request_id" // Per-request UUID
	KeyDocID     = "doc_id"     // Document identifier
	KeyClientIP  = "client_ip"  // Client IP address
	KeyPhase     = "phase"      // Request phase: decode, authz, header, content
	KeyStatus    = "status"     // HTTP status code
	KeyTrusted   = "trusted"    // Fully-trusted client indicator

	// Identity
	KeyUser      = "user"      // Authenticated username
	KeyNamespace = "namespace" // Principal namespace

	// Feed engine
	KeyFeedType   = "feed_type"  // metadata-and-url, incremental, full
	KeyDatasource = "datasource" // Feed datasource name
	KeyRecords    = "records"    // Record count in a batch
	KeyBatchBytes = "batch_bytes"

	// Retry / scheduling
	KeyAttempt    = "attempt"     // Retry attempt number
	KeyMaxRetries = "max_retries" // Maximum retry attempts
	KeyTask       = "task"        // Scheduled task name

	// Operation metadata
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
)

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// DocID returns a slog.Attr for a document identifier
func DocID(id string) slog.Attr {
	return slog.String(KeyDocID, id)
}

// ClientIP returns a slog.Attr for a client address
func ClientIP(addr string) slog.Attr {
	return slog.String(KeyClientIP, addr)
}

// Status returns a slog.Attr for an HTTP status code
func Status(code int) slog.Attr {
	return slog.Int(KeyStatus, code)
}

// Attempt returns a slog.Attr for a retry attempt number
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}
