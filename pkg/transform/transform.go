// Package transform hosts the document transform pipelines applied while
// serving trusted requests: metadata transforms that can rewrite metadata
// and veto indexing, ACL transforms, and content transforms that wrap the
// response body writer.
package transform

import (
	"fmt"

	"github.com/crawlpoint/connector/internal/logger"
	"github.com/crawlpoint/connector/pkg/acl"
	"github.com/crawlpoint/connector/pkg/metadata"
)

// KeyTransmissionDecision is the params key a metadata transform sets to
// veto indexing of the document or its content.
const KeyTransmissionDecision = "transmission-decision"

// TransmissionDecision is the pipeline's verdict on what the indexer may
// keep.
type TransmissionDecision int

const (
	// AsIs transmits the document unchanged.
	AsIs TransmissionDecision = iota

	// DoNotIndexContent serves headers and metadata but withholds the body
	// from the index.
	DoNotIndexContent

	// DoNotIndex withholds the document entirely.
	DoNotIndex
)

func (d TransmissionDecision) String() string {
	switch d {
	case AsIs:
		return "as-is"
	case DoNotIndexContent:
		return "do-not-index-content"
	case DoNotIndex:
		return "do-not-index"
	default:
		return fmt.Sprintf("transmission-decision(%d)", int(d))
	}
}

// ParseTransmissionDecision parses the string form produced by String.
func ParseTransmissionDecision(s string) (TransmissionDecision, error) {
	switch s {
	case "as-is", "":
		return AsIs, nil
	case "do-not-index-content":
		return DoNotIndexContent, nil
	case "do-not-index":
		return DoNotIndex, nil
	default:
		return AsIs, fmt.Errorf("transform: unknown transmission decision %q", s)
	}
}

// MetadataTransform rewrites document metadata. Transforms see and may
// mutate the shared params map; setting KeyTransmissionDecision vetoes
// indexing.
type MetadataTransform interface {
	Transform(md *metadata.Metadata, params map[string]string) error
}

// MetadataTransformFunc adapts a function to the MetadataTransform
// interface.
type MetadataTransformFunc func(md *metadata.Metadata, params map[string]string) error

func (f MetadataTransformFunc) Transform(md *metadata.Metadata, params map[string]string) error {
	return f(md, params)
}

// element pairs a transform with its configured name for logs.
type element struct {
	name string
	t    MetadataTransform

	// required aborts the pipeline on error; optional elements log and
	// continue.
	required bool
}

// Pipeline is an ordered list of metadata transforms.
type Pipeline struct {
	elements []element
}

// NewPipeline returns an empty pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{}
}

// Add appends a transform that aborts the pipeline on error.
func (p *Pipeline) Add(name string, t MetadataTransform) *Pipeline {
	p.elements = append(p.elements, element{name: name, t: t, required: true})
	return p
}

// AddOptional appends a transform whose errors are logged and skipped.
func (p *Pipeline) AddOptional(name string, t MetadataTransform) *Pipeline {
	p.elements = append(p.elements, element{name: name, t: t})
	return p
}

// Len reports the number of configured elements.
func (p *Pipeline) Len() int {
	return len(p.elements)
}

// Apply runs the elements in order against md and params. The returned
// decision is the strictest any element set; elements cannot relax a veto
// set by an earlier one.
func (p *Pipeline) Apply(md *metadata.Metadata, params map[string]string) (TransmissionDecision, error) {
	if params == nil {
		params = map[string]string{}
	}
	decision := AsIs
	for _, e := range p.elements {
		if err := e.t.Transform(md, params); err != nil {
			if e.required {
				return decision, fmt.Errorf("transform: %s: %w", e.name, err)
			}
			logger.Warn("Optional transform failed, skipping",
				"transform", e.name, logger.KeyError, err.Error())
			continue
		}
		d, err := ParseTransmissionDecision(params[KeyTransmissionDecision])
		if err != nil {
			return decision, fmt.Errorf("transform: %s: %w", e.name, err)
		}
		if d > decision {
			decision = d
		}
	}
	return decision, nil
}

// ACLTransform rewrites a document's ACL before it is served.
type ACLTransform interface {
	Transform(a acl.ACL) (acl.ACL, error)
}

// ACLTransformFunc adapts a function to the ACLTransform interface.
type ACLTransformFunc func(a acl.ACL) (acl.ACL, error)

func (f ACLTransformFunc) Transform(a acl.ACL) (acl.ACL, error) {
	return f(a)
}

// ApplyACL runs the transforms in order.
func ApplyACL(a acl.ACL, ts []ACLTransform) (acl.ACL, error) {
	var err error
	for _, t := range ts {
		if a, err = t.Transform(a); err != nil {
			return a, fmt.Errorf("transform: acl: %w", err)
		}
	}
	return a, nil
}
