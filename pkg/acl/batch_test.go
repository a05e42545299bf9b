package acl

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crawlpoint/connector/pkg/docid"
)

// mapRetriever serves ACLs from a fixed map and records every request.
type mapRetriever struct {
	acls     map[docid.DocID]ACL
	requests [][]docid.DocID
	extra    map[docid.DocID]ACL // returned with every response
}

func (r *mapRetriever) RetrieveACLs(_ context.Context, ids []docid.DocID) (map[docid.DocID]ACL, error) {
	r.requests = append(r.requests, append([]docid.DocID(nil), ids...))
	out := make(map[docid.DocID]ACL)
	for _, id := range ids {
		if a, ok := r.acls[id]; ok {
			out[id] = a
		}
	}
	for id, a := range r.extra {
		out[id] = a
	}
	return out, nil
}

func TestBatchEvaluateChain(t *testing.T) {
	root := NewBuilder().
		PermitUsers(MustUser("alice")).
		InheritanceType(ParentOverrides).
		MustBuild()
	leaf := NewBuilder().
		DenyUsers(MustUser("alice")).
		InheritFrom("root").
		MustBuild()

	r := &mapRetriever{acls: map[docid.DocID]ACL{"root": root, "doc": leaf}}

	got, err := BatchEvaluate(context.Background(), r, identity("alice"), []docid.DocID{"doc"})
	require.NoError(t, err)
	assert.Equal(t, Permit, got["doc"])

	// Two rounds: the leaf, then its ancestor.
	require.Len(t, r.requests, 2)
	assert.Equal(t, []docid.DocID{"doc"}, r.requests[0])
	assert.Equal(t, []docid.DocID{"root"}, r.requests[1])
}

func TestBatchEvaluateMissingAncestor(t *testing.T) {
	leaf := NewBuilder().
		PermitUsers(MustUser("alice")).
		InheritFrom("gone").
		MustBuild()
	r := &mapRetriever{acls: map[docid.DocID]ACL{"doc": leaf}}

	got, err := BatchEvaluate(context.Background(), r, identity("alice"), []docid.DocID{"doc"})
	require.NoError(t, err)
	assert.Equal(t, Indeterminate, got["doc"])
}

func TestBatchEvaluateCycle(t *testing.T) {
	a := NewBuilder().PermitUsers(MustUser("alice")).InheritFrom("b").MustBuild()
	b := NewBuilder().PermitUsers(MustUser("alice")).InheritFrom("a").MustBuild()
	r := &mapRetriever{acls: map[docid.DocID]ACL{"a": a, "b": b}}

	got, err := BatchEvaluate(context.Background(), r, identity("alice"), []docid.DocID{"a"})
	require.NoError(t, err)
	assert.Equal(t, Indeterminate, got["a"])
}

func TestBatchEvaluateNoACL(t *testing.T) {
	r := &mapRetriever{acls: map[docid.DocID]ACL{}}

	got, err := BatchEvaluate(context.Background(), r, identity("alice"), []docid.DocID{"doc"})
	require.NoError(t, err)
	assert.Equal(t, Indeterminate, got["doc"])

	// A missing identifier is never re-requested.
	require.Len(t, r.requests, 1)
}

func TestBatchEvaluateUsesExtraResults(t *testing.T) {
	root := NewBuilder().
		PermitUsers(MustUser("alice")).
		InheritanceType(ChildOverrides).
		MustBuild()
	leaf := NewBuilder().InheritFrom("root").MustBuild()

	r := &mapRetriever{
		acls:  map[docid.DocID]ACL{"doc": leaf},
		extra: map[docid.DocID]ACL{"root": root},
	}

	got, err := BatchEvaluate(context.Background(), r, identity("alice"), []docid.DocID{"doc"})
	require.NoError(t, err)
	assert.Equal(t, Permit, got["doc"])

	// The extra result for "root" makes the second round unnecessary.
	require.Len(t, r.requests, 1)
}
