package acl

import (
	"github.com/crawlpoint/connector/internal/logger"
)

// Decide computes the local decision of one ACL for one identity.
//
// Deny trumps permit across both user and group matches: a user in deny-users
// or any group in deny-groups denies regardless of the permit sets. When no
// set matches, the decision is Indeterminate.
func (a ACL) Decide(id Identity) Decision {
	cs := a.CaseSensitive()

	for _, p := range a.denyUsers {
		if p.matches(id.User, cs) {
			return Deny
		}
	}
	for _, g := range id.Groups {
		for _, p := range a.denyGroups {
			if p.matches(g, cs) {
				return Deny
			}
		}
	}
	for _, p := range a.permitUsers {
		if p.matches(id.User, cs) {
			return Permit
		}
	}
	for _, g := range id.Groups {
		for _, p := range a.permitGroups {
			if p.matches(g, cs) {
				return Permit
			}
		}
	}
	return Indeterminate
}

// DecideChain computes the decision of a root-to-leaf ACL chain.
//
// The chain must satisfy: the root has no inherit-from and every non-root
// does. The result is the root's non-local decision: a leaf's non-local
// decision is its local decision, and an interior node combines its child's
// non-local decision with its own local decision using its inheritance type.
//
// A chain of exactly one empty ACL short-circuits to Indeterminate, meaning
// "no ACLs declared" — the caller decides what that implies.
func DecideChain(id Identity, chain []ACL) Decision {
	if len(chain) == 0 {
		return Indeterminate
	}
	if len(chain) == 1 && chain[0].IsEmpty() {
		return Indeterminate
	}
	return nonLocalDecision(id, chain)
}

// IsAuthorized reports the final chain decision; Indeterminate collapses to
// Deny so callers always receive a definite answer.
func IsAuthorized(id Identity, chain []ACL) Decision {
	if d := DecideChain(id, chain); d == Permit {
		return Permit
	}
	return Deny
}

// nonLocalDecision evaluates chain[0] treating chain[1:] as its descendants.
func nonLocalDecision(id Identity, chain []ACL) Decision {
	node := chain[0]
	local := node.Decide(id)
	if len(chain) == 1 {
		return local
	}

	child := nonLocalDecision(id, chain[1:])

	switch node.inheritanceType {
	case ChildOverrides:
		if child != Indeterminate {
			return child
		}
		return local
	case ParentOverrides:
		if local != Indeterminate {
			return local
		}
		return child
	case AndBothPermit:
		if child == Permit && local == Permit {
			return Permit
		}
		return Deny
	case LeafNode:
		logger.Warn("ACL marked leaf-node is inherited from; denying",
			"acl", node.String())
		return Deny
	default:
		return Deny
	}
}
