// Package blocker is the central enforcement engine. It translates category
// and custom-domain operations into hosts file diffs, persisting declared
// intent in the policy store regardless of enforcement outcome so a later
// elevated run converges without re-entering choices.
package blocker

import (
	"context"
	"errors"
	"log/slog"

	"focusguard/pkg/blocklist"
	"focusguard/pkg/catalog"
	"focusguard/pkg/hostsfile"
	"focusguard/pkg/policy"
	"focusguard/pkg/privilege"
)

// Engine computes and applies blocking diffs. It owns no persistent state;
// the blocked set is always re-derived from the hosts file.
type Engine struct {
	hosts *hostsfile.Store
	store policy.Store
	view  *policy.View
	gate  privilege.Gate
	log   *slog.Logger
}

// New constructs an Engine.
func New(hosts *hostsfile.Store, store policy.Store, gate privilege.Gate, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		hosts: hosts,
		store: store,
		view:  policy.NewView(store),
		gate:  gate,
		log:   log,
	}
}

// View returns the policy projection the engine enforces.
func (e *Engine) View() *policy.View { return e.view }

// BlockedDomains returns the actual blocked set parsed from the hosts file.
func (e *Engine) BlockedDomains() blocklist.Set {
	return e.hosts.ParseBlocked()
}

// IsCategoryBlocked reports the declared policy state. The policy store is
// the authoritative signal surfaced to callers; the file is the enforcement
// target and may lag when privileges are missing.
func (e *Engine) IsCategoryBlocked(name string) bool {
	return e.store.IsCategoryEnabled(name)
}

// BlockCategory enables a category and writes its domains to the hosts
// file. With force the write also strips malformed entries and re-adds
// domains unconditionally, which repairs the file after a prior unblock left
// it in a state the naive membership check misreads.
func (e *Engine) BlockCategory(ctx context.Context, name string, force bool) Result {
	domains, ok := e.view.CategoryDomains(name)
	if !ok {
		return fail(ReasonUnknownCategory, "unknown category: "+name)
	}

	// Intent first: the declared policy survives even if enforcement is
	// rejected below.
	if err := e.store.SetCategoryEnabled(name, true); err != nil {
		e.log.Warn("cannot persist category state", "category", name, "error", err)
	}

	if !e.gate.Elevated() {
		return fail(ReasonPermissionDenied, "elevated privileges required to modify the hosts file; re-run elevated")
	}

	if !force {
		blocked := e.hosts.ParseBlocked()
		if blocked.ContainsAll(domains) {
			return succeed()
		}
	}

	if err := e.hosts.Write(ctx, domains, nil, force); err != nil {
		return e.writeFailure(err)
	}

	e.log.Info("category blocked", "category", name, "domains", len(domains), "force", force)
	return succeed()
}

// UnblockCategory disables a category and removes its domains from the
// hosts file. The resolver cache flush rides on the store write for
// real-time effect.
func (e *Engine) UnblockCategory(ctx context.Context, name string) Result {
	domains, ok := e.view.CategoryDomains(name)
	if !ok {
		return fail(ReasonUnknownCategory, "unknown category: "+name)
	}

	if err := e.store.SetCategoryEnabled(name, false); err != nil {
		e.log.Warn("cannot persist category state", "category", name, "error", err)
	}

	if !e.gate.Elevated() {
		return fail(ReasonPermissionDenied, "elevated privileges required to modify the hosts file; re-run elevated")
	}

	if err := e.hosts.Write(ctx, nil, domains, false); err != nil {
		return e.writeFailure(err)
	}

	e.log.Info("category unblocked", "category", name, "domains", len(domains))
	return succeed()
}

// ToggleCategory dispatches to block or unblock based on the declared
// policy state, not the file state, so a toggle control cannot flap when
// enforcement is temporarily unavailable.
func (e *Engine) ToggleCategory(ctx context.Context, name string) Result {
	if !catalog.Exists(name) {
		return fail(ReasonUnknownCategory, "unknown category: "+name)
	}
	if e.store.IsCategoryEnabled(name) {
		return e.UnblockCategory(ctx, name)
	}
	return e.BlockCategory(ctx, name, true)
}

// BlockCustomDomain sanitizes and validates a raw user-supplied domain,
// persists it, and writes its variations to the hosts file with repair
// enabled.
func (e *Engine) BlockCustomDomain(ctx context.Context, raw string) Result {
	domain := blocklist.Sanitize(raw)
	if err := blocklist.Validate(domain); err != nil {
		var verr *blocklist.ValidationError
		if errors.As(err, &verr) {
			return fail(ReasonValidation, verr.Reason)
		}
		return fail(ReasonValidation, err.Error())
	}

	if err := e.store.AddCustomDomain(domain); err != nil {
		e.log.Warn("cannot persist custom domain", "domain", domain, "error", err)
	}

	if !e.gate.Elevated() {
		return fail(ReasonPermissionDenied, "elevated privileges required to modify the hosts file; re-run elevated")
	}

	variations := blocklist.Variations(domain)
	if err := e.hosts.Write(ctx, variations, nil, true); err != nil {
		return e.writeFailure(err)
	}

	e.log.Info("custom domain blocked", "domain", domain, "variations", len(variations))
	return succeed()
}

// UnblockCustomDomain removes a custom domain and the same variation set
// its block wrote.
func (e *Engine) UnblockCustomDomain(ctx context.Context, raw string) Result {
	domain := blocklist.Sanitize(raw)
	if err := blocklist.Validate(domain); err != nil {
		var verr *blocklist.ValidationError
		if errors.As(err, &verr) {
			return fail(ReasonValidation, verr.Reason)
		}
		return fail(ReasonValidation, err.Error())
	}

	if err := e.store.RemoveCustomDomain(domain); err != nil {
		e.log.Warn("cannot persist custom domain removal", "domain", domain, "error", err)
	}

	if !e.gate.Elevated() {
		return fail(ReasonPermissionDenied, "elevated privileges required to modify the hosts file; re-run elevated")
	}

	if err := e.hosts.Write(ctx, nil, blocklist.Variations(domain), false); err != nil {
		return e.writeFailure(err)
	}

	e.log.Info("custom domain unblocked", "domain", domain)
	return succeed()
}

// ApplyDiff writes a raw add/remove diff. The reconciliation monitor uses
// it to correct drift for the subset of domains that actually diverged.
func (e *Engine) ApplyDiff(ctx context.Context, add, remove blocklist.Set, repairMalformed bool) Result {
	if len(add) == 0 && len(remove) == 0 {
		return succeed()
	}
	if !e.gate.Elevated() {
		return fail(ReasonPermissionDenied, "elevated privileges required to modify the hosts file; re-run elevated")
	}
	if err := e.hosts.Write(ctx, add, remove, repairMalformed); err != nil {
		return e.writeFailure(err)
	}
	return succeed()
}

func (e *Engine) writeFailure(err error) Result {
	if errors.Is(err, hostsfile.ErrPermissionDenied) {
		return fail(ReasonPermissionDenied, "the OS rejected the hosts file write; re-run elevated")
	}
	return fail(ReasonWriteFailed, err.Error())
}
