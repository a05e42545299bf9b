// Package acl models document access control lists and their evaluation.
//
// An ACL is an immutable record of four disjoint principal sets (permit and
// deny, users and groups), an optional inheritance link to a parent document,
// and an inheritance type that tells the evaluator how a parent's decision
// combines with its child's. Chains of ACLs are evaluated root-to-leaf; the
// final answer reported to callers is never Indeterminate.
package acl

import (
	"fmt"
	"sort"
	"strings"

	"github.com/crawlpoint/connector/pkg/docid"
)

// InheritanceType selects the combiner applied at a node when merging its
// child's non-local decision with the node's own local decision.
type InheritanceType int

const (
	// ChildOverrides keeps the child's decision unless it is Indeterminate.
	ChildOverrides InheritanceType = iota

	// ParentOverrides keeps the parent's decision unless it is Indeterminate.
	ParentOverrides

	// AndBothPermit permits only when both parent and child permit.
	AndBothPermit

	// LeafNode marks an ACL that must not be inherited from. Evaluating it
	// as a non-leaf is a misconfiguration and denies.
	LeafNode
)

func (t InheritanceType) String() string {
	switch t {
	case ChildOverrides:
		return "child-overrides"
	case ParentOverrides:
		return "parent-overrides"
	case AndBothPermit:
		return "and-both-permit"
	case LeafNode:
		return "leaf-node"
	default:
		return fmt.Sprintf("inheritance-type(%d)", int(t))
	}
}

// ParseInheritanceType parses the string form produced by String.
func ParseInheritanceType(s string) (InheritanceType, error) {
	switch strings.ToLower(strings.ReplaceAll(s, "_", "-")) {
	case "child-overrides":
		return ChildOverrides, nil
	case "parent-overrides":
		return ParentOverrides, nil
	case "and-both-permit":
		return AndBothPermit, nil
	case "leaf-node":
		return LeafNode, nil
	default:
		return ChildOverrides, fmt.Errorf("acl: unknown inheritance type %q", s)
	}
}

// ACL is an immutable access control list.
//
// The zero value is the empty ACL, which is equivalent to "no ACL declared"
// (the document is public). Non-trivial instances are built with a Builder.
type ACL struct {
	permitUsers  []Principal
	permitGroups []Principal
	denyUsers    []Principal
	denyGroups   []Principal

	inheritFrom     docid.DocID
	inheritFragment string
	hasInheritFrom  bool
	inheritanceType InheritanceType

	caseSensitive bool
	caseSet       bool
}

// Empty is the public ACL.
var Empty = ACL{}

// Builder accumulates ACL state; Build produces the immutable result.
type Builder struct {
	acl ACL
	err error
}

// NewBuilder creates a Builder for a case-sensitive ACL with no inheritance.
func NewBuilder() *Builder {
	return &Builder{acl: ACL{caseSensitive: true}}
}

// NewBuilderFrom seeds a Builder with an existing ACL's state.
func NewBuilderFrom(a ACL) *Builder {
	return &Builder{acl: a}
}

func (b *Builder) addAll(dst *[]Principal, kind PrincipalKind, ps []Principal) *Builder {
	if b.err != nil {
		return b
	}
	for _, p := range ps {
		if p.Name == "" || strings.TrimSpace(p.Name) != p.Name {
			b.err = fmt.Errorf("%w: %q", ErrInvalidPrincipal, p.Name)
			return b
		}
		if p.Kind != kind {
			b.err = fmt.Errorf("%w: %v added to %v set", ErrInvalidPrincipal, p.Kind, kind)
			return b
		}
		*dst = append(*dst, p)
	}
	return b
}

// PermitUsers adds user principals to the permit set.
func (b *Builder) PermitUsers(ps ...Principal) *Builder {
	return b.addAll(&b.acl.permitUsers, KindUser, ps)
}

// PermitGroups adds group principals to the permit set.
func (b *Builder) PermitGroups(ps ...Principal) *Builder {
	return b.addAll(&b.acl.permitGroups, KindGroup, ps)
}

// DenyUsers adds user principals to the deny set.
func (b *Builder) DenyUsers(ps ...Principal) *Builder {
	return b.addAll(&b.acl.denyUsers, KindUser, ps)
}

// DenyGroups adds group principals to the deny set.
func (b *Builder) DenyGroups(ps ...Principal) *Builder {
	return b.addAll(&b.acl.denyGroups, KindGroup, ps)
}

// InheritFrom links this ACL to the parent document it inherits from.
func (b *Builder) InheritFrom(id docid.DocID) *Builder {
	b.acl.inheritFrom = id
	b.acl.hasInheritFrom = true
	return b
}

// InheritFromWithFragment links to a named ACL fragment on the parent.
func (b *Builder) InheritFromWithFragment(id docid.DocID, fragment string) *Builder {
	b.acl.inheritFrom = id
	b.acl.inheritFragment = fragment
	b.acl.hasInheritFrom = true
	return b
}

// InheritanceType sets how children of this ACL combine with it.
func (b *Builder) InheritanceType(t InheritanceType) *Builder {
	b.acl.inheritanceType = t
	return b
}

// CaseSensitive controls principal-name matching for this ACL.
func (b *Builder) CaseSensitive(sensitive bool) *Builder {
	b.acl.caseSensitive = sensitive
	b.acl.caseSet = true
	return b
}

// Build finalizes the ACL. Principal sets are sorted and deduplicated so two
// ACLs built from the same principals in any order compare equal.
func (b *Builder) Build() (ACL, error) {
	if b.err != nil {
		return ACL{}, b.err
	}
	out := b.acl
	out.permitUsers = normalize(out.permitUsers)
	out.permitGroups = normalize(out.permitGroups)
	out.denyUsers = normalize(out.denyUsers)
	out.denyGroups = normalize(out.denyGroups)
	return out, nil
}

// MustBuild is Build for statically-correct literals; panics on error.
func (b *Builder) MustBuild() ACL {
	a, err := b.Build()
	if err != nil {
		panic(err)
	}
	return a
}

func normalize(ps []Principal) []Principal {
	if len(ps) == 0 {
		return nil
	}
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].Namespace != ps[j].Namespace {
			return ps[i].Namespace < ps[j].Namespace
		}
		return ps[i].Name < ps[j].Name
	})
	out := ps[:0]
	for i, p := range ps {
		if i > 0 && p == ps[i-1] {
			continue
		}
		out = append(out, p)
	}
	return out
}

// ============================================================================
// Accessors (all return copies; the ACL itself never mutates)
// ============================================================================

// PermitUsers returns the permit-users set in sorted order.
func (a ACL) PermitUsers() []Principal { return clonePrincipals(a.permitUsers) }

// PermitGroups returns the permit-groups set in sorted order.
func (a ACL) PermitGroups() []Principal { return clonePrincipals(a.permitGroups) }

// DenyUsers returns the deny-users set in sorted order.
func (a ACL) DenyUsers() []Principal { return clonePrincipals(a.denyUsers) }

// DenyGroups returns the deny-groups set in sorted order.
func (a ACL) DenyGroups() []Principal { return clonePrincipals(a.denyGroups) }

// InheritFrom returns the parent identifier and whether one is set.
func (a ACL) InheritFrom() (docid.DocID, bool) {
	return a.inheritFrom, a.hasInheritFrom
}

// InheritFragment returns the optional fragment of the inheritance link.
func (a ACL) InheritFragment() string { return a.inheritFragment }

// InheritanceType returns the node's combiner.
func (a ACL) InheritanceType() InheritanceType { return a.inheritanceType }

// CaseSensitive reports whether principal names match case-sensitively.
func (a ACL) CaseSensitive() bool {
	if !a.caseSet {
		return true
	}
	return a.caseSensitive
}

// IsEmpty reports whether the ACL is equivalent to "no ACL" (public).
func (a ACL) IsEmpty() bool {
	return len(a.permitUsers) == 0 && len(a.permitGroups) == 0 &&
		len(a.denyUsers) == 0 && len(a.denyGroups) == 0 && !a.hasInheritFrom
}

func clonePrincipals(ps []Principal) []Principal {
	if len(ps) == 0 {
		return nil
	}
	out := make([]Principal, len(ps))
	copy(out, ps)
	return out
}

func (a ACL) String() string {
	var parts []string
	if len(a.permitUsers) > 0 {
		parts = append(parts, fmt.Sprintf("permit-users=%v", a.permitUsers))
	}
	if len(a.permitGroups) > 0 {
		parts = append(parts, fmt.Sprintf("permit-groups=%v", a.permitGroups))
	}
	if len(a.denyUsers) > 0 {
		parts = append(parts, fmt.Sprintf("deny-users=%v", a.denyUsers))
	}
	if len(a.denyGroups) > 0 {
		parts = append(parts, fmt.Sprintf("deny-groups=%v", a.denyGroups))
	}
	if a.hasInheritFrom {
		parts = append(parts, fmt.Sprintf("inherit-from=%s#%s", a.inheritFrom, a.inheritFragment))
	}
	parts = append(parts, a.inheritanceType.String())
	return "Acl{" + strings.Join(parts, ", ") + "}"
}
