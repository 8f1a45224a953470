// Package blocklist provides the domain set model used by the blocking
// engine: normalization, validation, variation expansion and the heuristics
// for detecting corrupted hosts file entries.
package blocklist

import (
	"sort"
	"strings"
)

// Set is a set of normalized fully-qualified domain names. Members are
// lower-cased with trailing dots stripped; empty strings are never stored.
type Set map[string]struct{}

// NewSet creates a Set from the given domains, normalizing each member.
func NewSet(domains ...string) Set {
	s := make(Set, len(domains))
	for _, d := range domains {
		s.Add(d)
	}
	return s
}

// Add inserts a domain after normalization. Empty input is ignored.
func (s Set) Add(domain string) {
	normalized := Normalize(domain)
	if normalized == "" {
		return
	}
	s[normalized] = struct{}{}
}

// Has reports whether the normalized form of domain is a member.
func (s Set) Has(domain string) bool {
	_, ok := s[Normalize(domain)]
	return ok
}

// Merge adds all members of other into s.
func (s Set) Merge(other Set) {
	for domain := range other {
		s[domain] = struct{}{}
	}
}

// Diff returns the members of s that are not in other.
func (s Set) Diff(other Set) Set {
	result := make(Set)
	for domain := range s {
		if _, ok := other[domain]; !ok {
			result[domain] = struct{}{}
		}
	}
	return result
}

// Intersect returns the members present in both s and other.
func (s Set) Intersect(other Set) Set {
	result := make(Set)
	for domain := range s {
		if _, ok := other[domain]; ok {
			result[domain] = struct{}{}
		}
	}
	return result
}

// ContainsAll reports whether every member of other is in s.
func (s Set) ContainsAll(other Set) bool {
	for domain := range other {
		if _, ok := s[domain]; !ok {
			return false
		}
	}
	return true
}

// Sorted returns the members in lexical order.
func (s Set) Sorted() []string {
	domains := make([]string, 0, len(s))
	for domain := range s {
		domains = append(domains, domain)
	}
	sort.Strings(domains)
	return domains
}

// Matches reports whether name or any of its parent domains is a member.
// Used by the DNS proxy, where blocking example.com must also cover
// sub.example.com.
func (s Set) Matches(name string) bool {
	normalized := Normalize(name)
	if normalized == "" {
		return false
	}
	if _, ok := s[normalized]; ok {
		return true
	}
	labels := strings.Split(normalized, ".")
	for i := 1; i < len(labels); i++ {
		suffix := strings.Join(labels[i:], ".")
		if _, ok := s[suffix]; ok {
			return true
		}
	}
	return false
}

// Normalize lower-cases a domain and strips surrounding whitespace and the
// trailing dot. Returns an empty string for blank input.
func Normalize(name string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return ""
	}
	trimmed = strings.TrimSuffix(trimmed, ".")
	return strings.ToLower(trimmed)
}
