// Package authz decides whether a non-trusted caller may see a document:
// it resolves the caller's identity from the session cookie and evaluates
// the document's ACL chain through the adaptor's ACL retriever.
package authz

import (
	"context"

	"github.com/crawlpoint/connector/pkg/acl"
	"github.com/crawlpoint/connector/pkg/docid"
)

// Authorizer decides access for a batch of identifiers. Absent entries in
// the result mean Indeterminate.
type Authorizer interface {
	Apply(ctx context.Context, id acl.Identity, ids []docid.DocID) (map[docid.DocID]acl.Decision, error)
}

// AuthorizerFunc adapts a function to the Authorizer interface.
type AuthorizerFunc func(ctx context.Context, id acl.Identity, ids []docid.DocID) (map[docid.DocID]acl.Decision, error)

func (f AuthorizerFunc) Apply(ctx context.Context, id acl.Identity, ids []docid.DocID) (map[docid.DocID]acl.Decision, error) {
	return f(ctx, id, ids)
}

// ACLAuthorizer evaluates ACL chains fetched through the adaptor.
type ACLAuthorizer struct {
	retriever acl.Retriever
}

// NewACLAuthorizer wraps the adaptor's batch ACL retriever.
func NewACLAuthorizer(r acl.Retriever) *ACLAuthorizer {
	return &ACLAuthorizer{retriever: r}
}

var _ Authorizer = (*ACLAuthorizer)(nil)

func (a *ACLAuthorizer) Apply(ctx context.Context, id acl.Identity, ids []docid.DocID) (map[docid.DocID]acl.Decision, error) {
	return acl.BatchEvaluate(ctx, a.retriever, id, ids)
}

// DenyAll refuses everything; used when an adaptor exposes secure
// documents but no ACL retriever.
type DenyAll struct{}

func (DenyAll) Apply(_ context.Context, _ acl.Identity, ids []docid.DocID) (map[docid.DocID]acl.Decision, error) {
	out := make(map[docid.DocID]acl.Decision, len(ids))
	for _, d := range ids {
		out[d] = acl.Deny
	}
	return out, nil
}
