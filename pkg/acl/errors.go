package acl

import "errors"

var (
	// ErrInvalidPrincipal is returned for empty or untrimmed principal names.
	ErrInvalidPrincipal = errors.New("acl: invalid principal")

	// ErrUnsupportedNamespace is returned when the legacy metadata-key ACL
	// encoding meets a principal outside the default namespace. The named
	// resource workaround does not define a replacement for AndBothPermit,
	// so the combination stays unsupported.
	ErrUnsupportedNamespace = errors.New("acl: non-default namespace not representable in legacy metadata encoding")
)
