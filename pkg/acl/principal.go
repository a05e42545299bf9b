package acl

import (
	"fmt"
	"strings"
)

// DefaultNamespace is the namespace assigned to principals that do not name
// one explicitly.
const DefaultNamespace = "Default"

// PrincipalKind distinguishes users from groups.
type PrincipalKind int

const (
	KindUser PrincipalKind = iota
	KindGroup
)

func (k PrincipalKind) String() string {
	if k == KindGroup {
		return "group"
	}
	return "user"
}

// Principal identifies a user or group within a namespace.
//
// Construct principals with NewUser / NewGroup; the zero value is invalid.
type Principal struct {
	Kind      PrincipalKind
	Name      string
	Namespace string
}

// NewUser creates a user principal in the default namespace.
func NewUser(name string) (Principal, error) {
	return newPrincipal(KindUser, name, DefaultNamespace)
}

// NewGroup creates a group principal in the default namespace.
func NewGroup(name string) (Principal, error) {
	return newPrincipal(KindGroup, name, DefaultNamespace)
}

// NewUserInNamespace creates a user principal in an explicit namespace.
func NewUserInNamespace(name, namespace string) (Principal, error) {
	return newPrincipal(KindUser, name, namespace)
}

// NewGroupInNamespace creates a group principal in an explicit namespace.
func NewGroupInNamespace(name, namespace string) (Principal, error) {
	return newPrincipal(KindGroup, name, namespace)
}

func newPrincipal(kind PrincipalKind, name, namespace string) (Principal, error) {
	if name == "" {
		return Principal{}, fmt.Errorf("%w: empty name", ErrInvalidPrincipal)
	}
	if strings.TrimSpace(name) != name {
		return Principal{}, fmt.Errorf("%w: name %q has surrounding whitespace", ErrInvalidPrincipal, name)
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return Principal{Kind: kind, Name: name, Namespace: namespace}, nil
}

// MustUser is NewUser for compile-time constant names; panics on error.
func MustUser(name string) Principal {
	p, err := NewUser(name)
	if err != nil {
		panic(err)
	}
	return p
}

// MustGroup is NewGroup for compile-time constant names; panics on error.
func MustGroup(name string) Principal {
	p, err := NewGroup(name)
	if err != nil {
		panic(err)
	}
	return p
}

// InNamespace returns a copy of p placed in namespace. An empty namespace
// falls back to the default.
func (p Principal) InNamespace(namespace string) Principal {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	p.Namespace = namespace
	return p
}

func (p Principal) String() string {
	return fmt.Sprintf("%s:%s:%s", p.Kind, p.Namespace, p.Name)
}

// matches reports whether p names the same principal as other, honoring the
// given case sensitivity for the name. Namespaces always compare exactly.
func (p Principal) matches(other Principal, caseSensitive bool) bool {
	if p.Kind != other.Kind || p.Namespace != other.Namespace {
		return false
	}
	if caseSensitive {
		return p.Name == other.Name
	}
	return strings.EqualFold(p.Name, other.Name)
}

// Identity is the authenticated subject of an authorization decision: one
// user principal plus the groups it belongs to.
type Identity struct {
	User   Principal
	Groups []Principal

	// Password is carried only for the external-authorizer command stream
	// and never participates in ACL evaluation.
	Password string
}

// Anonymous reports whether the identity carries no user.
func (id Identity) Anonymous() bool {
	return id.User.Name == ""
}
