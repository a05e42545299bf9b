package acl

import (
	"encoding/json"
	"fmt"

	"github.com/crawlpoint/connector/pkg/docid"
)

// Case sensitivity constants used in feeds and the doc-controls header.
const (
	CaseSensitivitySensitive   = "everything-case-sensitive"
	CaseSensitivityInsensitive = "everything-case-insensitive"
)

// Reserved metadata keys for the legacy ACL-in-metadata header encoding.
const (
	MetaKeyUsers           = "google:aclusers"
	MetaKeyGroups          = "google:aclgroups"
	MetaKeyDenyUsers       = "google:acldenyusers"
	MetaKeyDenyGroups      = "google:acldenygroups"
	MetaKeyInheritFrom     = "google:aclinheritfrom"
	MetaKeyInheritanceType = "google:aclinheritancetype"
)

// jsonEntry is one principal in the doc-controls JSON form.
type jsonEntry struct {
	Scope           string `json:"scope"`
	Access          string `json:"access"`
	Name            string `json:"name"`
	Namespace       string `json:"namespace,omitempty"`
	CaseSensitivity string `json:"case_sensitivity_type,omitempty"`
}

// jsonACL is the doc-controls JSON form of an ACL.
type jsonACL struct {
	Entries         []jsonEntry `json:"entries"`
	InheritFrom     string      `json:"inherit_from,omitempty"`
	InheritanceType string      `json:"inheritance_type"`
}

// MarshalDocControls renders the ACL as the JSON value of the doc-controls
// header's acl field. The inherit-from identifier is minted into a URL with
// the supplied codec; an optional fragment rides on the URL.
func (a ACL) MarshalDocControls(codec *docid.Codec) (string, error) {
	caseType := CaseSensitivitySensitive
	if !a.CaseSensitive() {
		caseType = CaseSensitivityInsensitive
	}

	var entries []jsonEntry
	appendSet := func(ps []Principal, access string) {
		for _, p := range ps {
			e := jsonEntry{
				Scope:           p.Kind.String(),
				Access:          access,
				Name:            p.Name,
				CaseSensitivity: caseType,
			}
			if p.Namespace != DefaultNamespace {
				e.Namespace = p.Namespace
			}
			entries = append(entries, e)
		}
	}
	appendSet(a.permitUsers, "permit")
	appendSet(a.permitGroups, "permit")
	appendSet(a.denyUsers, "deny")
	appendSet(a.denyGroups, "deny")
	if entries == nil {
		entries = []jsonEntry{}
	}

	out := jsonACL{
		Entries:         entries,
		InheritanceType: a.inheritanceType.String(),
	}
	if a.hasInheritFrom {
		u := codec.Encode(a.inheritFrom)
		if a.inheritFragment != "" {
			u += "#" + a.inheritFragment
		}
		out.InheritFrom = u
	}

	raw, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("acl: marshal doc-controls: %w", err)
	}
	return string(raw), nil
}

// MetadataPairs renders the ACL as the reserved google:acl* metadata keys of
// the legacy header encoding. Principals outside the default namespace are
// not representable here and fail with ErrUnsupportedNamespace.
func (a ACL) MetadataPairs(codec *docid.Codec) (map[string][]string, error) {
	out := make(map[string][]string)

	add := func(key string, ps []Principal) error {
		for _, p := range ps {
			if p.Namespace != DefaultNamespace {
				return fmt.Errorf("%w: %s", ErrUnsupportedNamespace, p)
			}
			out[key] = append(out[key], p.Name)
		}
		return nil
	}
	if err := add(MetaKeyUsers, a.permitUsers); err != nil {
		return nil, err
	}
	if err := add(MetaKeyGroups, a.permitGroups); err != nil {
		return nil, err
	}
	if err := add(MetaKeyDenyUsers, a.denyUsers); err != nil {
		return nil, err
	}
	if err := add(MetaKeyDenyGroups, a.denyGroups); err != nil {
		return nil, err
	}
	if a.hasInheritFrom {
		u := codec.Encode(a.inheritFrom)
		if a.inheritFragment != "" {
			u += "#" + a.inheritFragment
		}
		out[MetaKeyInheritFrom] = []string{u}
	}
	out[MetaKeyInheritanceType] = []string{a.inheritanceType.String()}
	return out, nil
}
