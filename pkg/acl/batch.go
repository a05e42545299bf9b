package acl

import (
	"context"

	"github.com/crawlpoint/connector/internal/logger"
	"github.com/crawlpoint/connector/pkg/docid"
)

// Retriever fetches ACLs for a batch of document identifiers.
//
// Implementations may return more entries than requested (prefetching a
// subtree in one round trip is encouraged); the evaluator uses the extras
// and never requests the same identifier twice. Identifiers without an ACL
// may be omitted from the result.
type Retriever interface {
	RetrieveACLs(ctx context.Context, ids []docid.DocID) (map[docid.DocID]ACL, error)
}

// RetrieverFunc adapts a function to the Retriever interface.
type RetrieverFunc func(ctx context.Context, ids []docid.DocID) (map[docid.DocID]ACL, error)

func (f RetrieverFunc) RetrieveACLs(ctx context.Context, ids []docid.DocID) (map[docid.DocID]ACL, error) {
	return f(ctx, ids)
}

// BatchEvaluate decides access for each requested identifier.
//
// ACLs are fetched through the retriever, then the inherit-from ancestors of
// every fetched ACL transitively, deduplicating requests across the whole
// batch. An identifier whose chain has a missing ACL or a cycle collapses to
// Indeterminate; an identifier with no ACL at all is likewise Indeterminate
// (the caller treats that as "not found" rather than public, since a public
// document would carry an explicitly empty ACL).
func BatchEvaluate(ctx context.Context, r Retriever, id Identity, ids []docid.DocID) (map[docid.DocID]Decision, error) {
	known := make(map[docid.DocID]ACL)
	requested := make(map[docid.DocID]bool)

	toFetch := make([]docid.DocID, 0, len(ids))
	for _, d := range ids {
		if !requested[d] {
			requested[d] = true
			toFetch = append(toFetch, d)
		}
	}

	for len(toFetch) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fetched, err := r.RetrieveACLs(ctx, toFetch)
		if err != nil {
			return nil, err
		}
		for d, a := range fetched {
			known[d] = a
		}
		// Anything we asked for and did not get stays missing; do not retry.
		toFetch = toFetch[:0]
		for _, a := range fetched {
			parent, ok := a.InheritFrom()
			if !ok || requested[parent] {
				continue
			}
			if _, have := known[parent]; have {
				continue
			}
			requested[parent] = true
			toFetch = append(toFetch, parent)
		}
	}

	out := make(map[docid.DocID]Decision, len(ids))
	for _, d := range ids {
		out[d] = decideFromKnown(id, d, known)
	}
	return out, nil
}

// decideFromKnown builds the root-to-leaf chain for one identifier out of
// the fetched ACLs and evaluates it.
func decideFromKnown(id Identity, leaf docid.DocID, known map[docid.DocID]ACL) Decision {
	var reversed []ACL
	seen := map[docid.DocID]bool{}

	cur := leaf
	for {
		if seen[cur] {
			logger.Warn("ACL inheritance cycle detected", logger.KeyDocID, string(leaf))
			return Indeterminate
		}
		seen[cur] = true

		a, ok := known[cur]
		if !ok {
			if cur == leaf {
				// No ACL declared for the document itself.
				return Indeterminate
			}
			logger.Warn("ACL chain has missing ancestor",
				logger.KeyDocID, string(leaf), "missing", string(cur))
			return Indeterminate
		}
		reversed = append(reversed, a)

		parent, hasParent := a.InheritFrom()
		if !hasParent {
			break
		}
		cur = parent
	}

	chain := make([]ACL, len(reversed))
	for i, a := range reversed {
		chain[len(reversed)-1-i] = a
	}
	return DecideChain(id, chain)
}
