package policy

import (
	"focusguard/pkg/blocklist"
	"focusguard/pkg/catalog"
)

// View is a read-only projection of the policy store into the domain sets
// that must currently be blocked. It holds no state of its own; every call
// reads the store fresh so policy mutations are never served stale.
type View struct {
	store Store
}

// NewView creates a View over a Store.
func NewView(store Store) *View {
	return &View{store: store}
}

// EnabledCategories returns the names of all currently enabled categories.
func (v *View) EnabledCategories() []string {
	var enabled []string
	for _, name := range catalog.Names() {
		if v.store.IsCategoryEnabled(name) {
			enabled = append(enabled, name)
		}
	}
	return enabled
}

// CategoryDomains resolves a category to its target domain set. For the
// custom category each stored domain is expanded to its variations; built-in
// categories use their fixed membership. Unknown categories return false.
func (v *View) CategoryDomains(name string) (blocklist.Set, bool) {
	if name == catalog.Custom {
		target := make(blocklist.Set)
		for _, domain := range v.store.CustomDomains() {
			target.Merge(blocklist.Variations(domain))
		}
		return target, true
	}
	return catalog.Domains(name)
}

// EffectiveTargetSet is the union of all enabled categories' domain sets,
// computed fresh on every call.
func (v *View) EffectiveTargetSet() blocklist.Set {
	target := make(blocklist.Set)
	for _, name := range v.EnabledCategories() {
		domains, ok := v.CategoryDomains(name)
		if !ok {
			continue
		}
		target.Merge(domains)
	}
	return target
}
