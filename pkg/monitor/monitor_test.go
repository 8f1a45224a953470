package monitor

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/spf13/afero"

	"focusguard/pkg/blocker"
	"focusguard/pkg/hostsfile"
	"focusguard/pkg/policy"
	"focusguard/pkg/privilege"
)

func newTestMonitor(t *testing.T, gate privilege.Gate) (*Monitor, *blocker.Engine, *hostsfile.Store, *policy.FileStore) {
	t.Helper()
	fs := afero.NewMemMapFs()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	hosts := hostsfile.New(hostsfile.Options{
		Fs:        fs,
		Path:      "/etc/hosts",
		BackupDir: "/var/backups/focusguard",
		Log:       log,
	})
	store, err := policy.NewFileStore(fs, "/var/lib/focusguard/policy.json", log)
	if err != nil {
		t.Fatalf("policy store: %v", err)
	}
	engine := blocker.New(hosts, store, gate, log)

	mon := New(Options{
		Engine:      engine,
		Gate:        gate,
		Interval:    10 * time.Millisecond,
		SettleDelay: 0,
		JoinTimeout: time.Second,
		Log:         log,
	})
	return mon, engine, hosts, store
}

func TestRunOnceRestoresMissingDomains(t *testing.T) {
	mon, engine, hosts, _ := newTestMonitor(t, privilege.Static(true))

	// Policy defaults to all categories enabled, hosts file is empty:
	// everything is under-blocked.
	mon.RunOnce(context.Background())

	blocked := hosts.ParseBlocked()
	for _, want := range []string{"facebook.com", "youtube.com", "reddit.com"} {
		if !blocked.Has(want) {
			t.Errorf("expected %s restored by reconciliation", want)
		}
	}
	if !blocked.ContainsAll(engine.View().EffectiveTargetSet()) {
		t.Error("expected full effective target set enforced after one pass")
	}
}

func TestRunOnceRemovesDisabledDomains(t *testing.T) {
	mon, _, hosts, store := newTestMonitor(t, privilege.Static(true))
	ctx := context.Background()

	mon.RunOnce(ctx)
	if !hosts.ParseBlocked().Has("facebook.com") {
		t.Fatal("expected facebook.com blocked after first pass")
	}

	// Disable behind the monitor's back; the file now over-blocks.
	if err := store.SetCategoryEnabled("facebook", false); err != nil {
		t.Fatalf("set: %v", err)
	}
	mon.RunOnce(ctx)

	blocked := hosts.ParseBlocked()
	if blocked.Has("facebook.com") {
		t.Error("expected facebook.com removed after disable")
	}
	if !blocked.Has("youtube.com") {
		t.Error("other enabled categories must stay blocked")
	}
}

func TestRunOnceSteadyStateIsIdempotent(t *testing.T) {
	mon, _, hosts, _ := newTestMonitor(t, privilege.Static(true))
	ctx := context.Background()

	mon.RunOnce(ctx)
	first := hosts.ParseBlocked().Sorted()
	mon.RunOnce(ctx)
	second := hosts.ParseBlocked().Sorted()

	if len(first) != len(second) {
		t.Errorf("steady state changed blocked set: %d vs %d entries", len(first), len(second))
	}
}

func TestRunOnceKeepsDomainsSharedWithEnabledCategory(t *testing.T) {
	mon, _, hosts, store := newTestMonitor(t, privilege.Static(true))
	ctx := context.Background()

	// A custom entry overlapping a built-in category: disabling the
	// category must not unblock the shared domain.
	if err := store.AddCustomDomain("facebook.com"); err != nil {
		t.Fatalf("add custom: %v", err)
	}
	mon.RunOnce(ctx)

	if err := store.SetCategoryEnabled("facebook", false); err != nil {
		t.Fatalf("set: %v", err)
	}
	mon.RunOnce(ctx)

	if !hosts.ParseBlocked().Has("facebook.com") {
		t.Error("domain still demanded by the custom list must remain blocked")
	}
}

func TestRunOnceRemovesOrphanedCustomEntries(t *testing.T) {
	mon, engine, hosts, store := newTestMonitor(t, privilege.Static(true))
	ctx := context.Background()

	if res := engine.BlockCustomDomain(ctx, "app.example.com"); !res.OK {
		t.Fatalf("block custom: %v", res)
	}
	if !hosts.ParseBlocked().Has("app.example.com") {
		t.Fatal("expected custom domain blocked")
	}

	// Drop the domain from the policy without touching the file, as an
	// unprivileged removal would. The entries now belong to nothing.
	if err := store.RemoveCustomDomain("app.example.com"); err != nil {
		t.Fatalf("remove custom: %v", err)
	}
	mon.RunOnce(ctx)

	blocked := hosts.ParseBlocked()
	for _, stale := range []string{
		"app.example.com", "www.app.example.com", "example.com", "www.example.com",
	} {
		if blocked.Has(stale) {
			t.Errorf("expected orphaned entry %s removed", stale)
		}
	}
}

func TestStartDeniedWithoutPrivileges(t *testing.T) {
	mon, _, _, _ := newTestMonitor(t, privilege.Static(false))

	mon.Start()
	if mon.Running() {
		t.Error("monitor must not start without elevated privileges")
	}
}

func TestStartStop(t *testing.T) {
	mon, _, hosts, _ := newTestMonitor(t, privilege.Static(true))

	mon.Start()
	if !mon.Running() {
		t.Fatal("expected monitor running after start")
	}
	mon.Start() // second start is a no-op

	deadline := time.After(2 * time.Second)
	for !hosts.ParseBlocked().Has("facebook.com") {
		select {
		case <-deadline:
			t.Fatal("monitor never reconciled")
		case <-time.After(5 * time.Millisecond):
		}
	}

	mon.Stop()
	if mon.Running() {
		t.Error("expected monitor stopped")
	}
	mon.Stop() // stop on a stopped monitor is a no-op
}

func TestKickTriggersImmediatePass(t *testing.T) {
	mon, _, hosts, _ := newTestMonitor(t, privilege.Static(true))
	mon.interval = time.Hour // only a kick can trigger a pass after the first

	mon.Start()
	defer mon.Stop()

	deadline := time.After(2 * time.Second)
	for !hosts.ParseBlocked().Has("facebook.com") {
		select {
		case <-deadline:
			t.Fatal("initial pass never ran")
		case <-time.After(5 * time.Millisecond):
		}
	}

	// Wipe the file and kick; the hourly ticker would never catch this.
	if err := hosts.Write(context.Background(), nil, hosts.ParseBlocked(), false); err != nil {
		t.Fatalf("wipe: %v", err)
	}
	mon.Kick()

	deadline = time.After(2 * time.Second)
	for !hosts.ParseBlocked().Has("facebook.com") {
		select {
		case <-deadline:
			t.Fatal("kick did not trigger reconciliation")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
