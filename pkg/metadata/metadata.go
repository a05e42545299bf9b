// Package metadata implements the ordered string multimap attached to each
// document.
//
// Keys are unique, (key, value) pairs are unique, and iteration order is
// deterministic: keys in sorted order, values in sorted order within each key.
// A Metadata instance is mutable until Freeze is called; frozen instances
// reject all mutation so the header emitter observes a stable view.
package metadata

import (
	"sort"
	"strings"
)

// Metadata is a multimap from string keys to sets of string values.
//
// The zero value is not usable; construct instances with New.
type Metadata struct {
	values map[string]map[string]struct{}
	frozen bool
}

// New creates an empty Metadata.
func New() *Metadata {
	return &Metadata{values: make(map[string]map[string]struct{})}
}

// Add inserts a (key, value) pair. Adding an existing pair is a no-op.
//
// Returns ErrNilKey or ErrNilValue when key or value is empty after trimming
// is NOT applied; metadata keys and values are stored verbatim, but the empty
// string is rejected for keys. Returns ErrFrozen on a frozen instance.
func (m *Metadata) Add(key, value string) error {
	if m.frozen {
		return ErrFrozen
	}
	if key == "" {
		return ErrNilKey
	}
	set, ok := m.values[key]
	if !ok {
		set = make(map[string]struct{})
		m.values[key] = set
	}
	set[value] = struct{}{}
	return nil
}

// Set replaces all values for key with exactly the given values.
// An empty values slice removes the key.
func (m *Metadata) Set(key string, values ...string) error {
	if m.frozen {
		return ErrFrozen
	}
	if key == "" {
		return ErrNilKey
	}
	if len(values) == 0 {
		delete(m.values, key)
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	m.values[key] = set
	return nil
}

// Delete removes all values for key.
func (m *Metadata) Delete(key string) error {
	if m.frozen {
		return ErrFrozen
	}
	delete(m.values, key)
	return nil
}

// FirstValue returns the sorted-first value for key, or "" when absent.
func (m *Metadata) FirstValue(key string) string {
	vs := m.Values(key)
	if len(vs) == 0 {
		return ""
	}
	return vs[0]
}

// Values returns the sorted values for key. The returned slice is a copy.
func (m *Metadata) Values(key string) []string {
	set, ok := m.values[key]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Keys returns all keys in sorted order.
func (m *Metadata) Keys() []string {
	out := make([]string, 0, len(m.values))
	for k := range m.values {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of (key, value) pairs.
func (m *Metadata) Len() int {
	n := 0
	for _, set := range m.values {
		n += len(set)
	}
	return n
}

// IsEmpty reports whether the multimap holds no pairs.
func (m *Metadata) IsEmpty() bool {
	return len(m.values) == 0
}

// Each calls fn for every (key, value) pair in deterministic order.
func (m *Metadata) Each(fn func(key, value string)) {
	for _, k := range m.Keys() {
		for _, v := range m.Values(k) {
			fn(k, v)
		}
	}
}

// Clone returns a deep, unfrozen copy.
func (m *Metadata) Clone() *Metadata {
	out := New()
	for k, set := range m.values {
		dst := make(map[string]struct{}, len(set))
		for v := range set {
			dst[v] = struct{}{}
		}
		out.values[k] = dst
	}
	return out
}

// Freeze makes the instance immutable. Freezing twice is harmless.
func (m *Metadata) Freeze() {
	m.frozen = true
}

// Frozen reports whether the instance is immutable.
func (m *Metadata) Frozen() bool {
	return m.frozen
}

// Equal reports whether two multimaps hold the same pairs.
// Frozen state does not participate in equality.
func (m *Metadata) Equal(other *Metadata) bool {
	if m == nil || other == nil {
		return m == other
	}
	if len(m.values) != len(other.values) {
		return false
	}
	for k, set := range m.values {
		oset, ok := other.values[k]
		if !ok || len(set) != len(oset) {
			return false
		}
		for v := range set {
			if _, ok := oset[v]; !ok {
				return false
			}
		}
	}
	return true
}

// String renders the multimap as "k1=v1, k1=v2, k2=v3" in deterministic
// order. Intended for logs.
func (m *Metadata) String() string {
	var sb strings.Builder
	first := true
	m.Each(func(k, v string) {
		if !first {
			sb.WriteString(", ")
		}
		first = false
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(v)
	})
	return sb.String()
}
