package docid

import "errors"

// ErrInvalidDocID is returned when a URL was not produced by Encode or lies
// outside the configured base path.
var ErrInvalidDocID = errors.New("docid: invalid document identifier")
