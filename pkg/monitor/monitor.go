// Package monitor runs the background reconciliation loop. Each tick
// re-derives the blocked set from the hosts file, compares it per category
// against the declared policy and drives the engine to correct drift in
// either direction.
package monitor

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"focusguard/pkg/blocker"
	"focusguard/pkg/catalog"
	"focusguard/pkg/privilege"
)

const (
	// DefaultInterval is the pause between reconciliation ticks.
	DefaultInterval = 30 * time.Second

	// DefaultSettleDelay is the grace period before the first tick so a
	// burst of user actions at startup is not immediately fought over.
	DefaultSettleDelay = 5 * time.Second

	defaultJoinTimeout = 2 * time.Second
)

// Monitor reconciles declared policy with the hosts file on a timer. It is
// Stopped or Running, nothing in between; cancellation is cooperative.
type Monitor struct {
	engine      *blocker.Engine
	gate        privilege.Gate
	interval    time.Duration
	settle      time.Duration
	joinTimeout time.Duration
	hostsPath   string
	watch       bool
	log         *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	kick    chan struct{}
}

// Options configures a Monitor. Zero durations fall back to defaults.
type Options struct {
	Engine      *blocker.Engine
	Gate        privilege.Gate
	Interval    time.Duration
	SettleDelay time.Duration
	JoinTimeout time.Duration

	// HostsPath enables an fsnotify watch on the hosts file when Watch is
	// set, so out-of-band edits trigger an immediate tick instead of
	// waiting out the interval.
	HostsPath string
	Watch     bool

	Log *slog.Logger
}

// New constructs a Monitor.
func New(opts Options) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.SettleDelay < 0 {
		opts.SettleDelay = DefaultSettleDelay
	}
	if opts.JoinTimeout <= 0 {
		opts.JoinTimeout = defaultJoinTimeout
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	return &Monitor{
		engine:      opts.Engine,
		gate:        opts.Gate,
		interval:    opts.Interval,
		settle:      opts.SettleDelay,
		joinTimeout: opts.JoinTimeout,
		hostsPath:   opts.HostsPath,
		watch:       opts.Watch,
		log:         opts.Log,
		kick:        make(chan struct{}, 1),
	}
}

// Running reports whether the background loop is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Start launches the background loop. It is a no-op when already running or
// when the privilege check fails: a monitor that cannot write the hosts file
// would only log failures every tick.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	if !m.gate.Elevated() {
		m.log.Warn("reconciliation monitor not started, elevated privileges required")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running = true

	go m.run(ctx)
	m.log.Info("reconciliation monitor started", "interval", m.interval, "settle_delay", m.settle)
}

// Stop cancels the loop and joins it with a bounded timeout. An in-flight
// write is left to finish on its own.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(m.joinTimeout):
		m.log.Warn("reconciliation monitor did not stop in time", "timeout", m.joinTimeout)
	}
	m.log.Info("reconciliation monitor stopped")
}

// Kick requests an immediate tick, coalescing with any pending request.
func (m *Monitor) Kick() {
	select {
	case m.kick <- struct{}{}:
	default:
	}
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)

	var watcher *fsnotify.Watcher
	if m.watch && m.hostsPath != "" {
		watcher = m.watchHosts(ctx)
		if watcher != nil {
			defer watcher.Close()
		}
	}

	if m.settle > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(m.settle):
		}
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.RunOnce(ctx)
		case <-m.kick:
			m.RunOnce(ctx)
		}
	}
}

// watchHosts watches the hosts file's directory, since the atomic write
// replaces the file by rename and a watch on the path itself would be lost.
func (m *Monitor) watchHosts(ctx context.Context) *fsnotify.Watcher {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		m.log.Warn("cannot create hosts file watcher", "error", err)
		return nil
	}
	if err := watcher.Add(filepath.Dir(m.hostsPath)); err != nil {
		m.log.Warn("cannot watch hosts directory", "path", m.hostsPath, "error", err)
		watcher.Close()
		return nil
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != m.hostsPath {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				m.log.Debug("hosts file changed on disk", "op", event.Op.String())
				m.Kick()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				m.log.Warn("hosts file watcher error", "error", err)
			}
		}
	}()
	return watcher
}

// RunOnce executes a single reconciliation pass. Per-category failures are
// logged and the pass continues; a stuck category never starves the rest.
func (m *Monitor) RunOnce(ctx context.Context) {
	blocked := m.engine.BlockedDomains()
	target := m.engine.View().EffectiveTargetSet()

	for _, name := range catalog.Names() {
		domains, ok := m.engine.View().CategoryDomains(name)
		if !ok || len(domains) == 0 {
			continue
		}

		if m.engine.IsCategoryBlocked(name) {
			missing := domains.Diff(blocked)
			if len(missing) == 0 {
				continue
			}
			m.log.Info("reconciling under-blocked category", "category", name, "missing", len(missing))
			if res := m.engine.ApplyDiff(ctx, missing, nil, true); !res.OK {
				m.log.Warn("re-blocking failed", "category", name, "reason", res.Reason, "detail", res.Detail)
				continue
			}
			blocked = m.engine.BlockedDomains()
			continue
		}

		present := domains.Intersect(blocked)
		// Domains shared with a still-enabled category stay blocked.
		stale := present.Diff(target)
		if len(stale) == 0 {
			continue
		}
		m.log.Info("reconciling over-blocked category", "category", name, "stale", len(stale))
		if res := m.engine.ApplyDiff(ctx, nil, stale, false); !res.OK {
			m.log.Warn("unblocking failed", "category", name, "reason", res.Reason, "detail", res.Detail)
			continue
		}
		blocked = m.engine.BlockedDomains()
	}

	// Engine entries no category or custom domain demands anymore belong
	// to nothing and would otherwise stay forever, e.g. a custom domain
	// removed from the policy while enforcement was unavailable.
	orphans := blocked.Diff(target)
	if len(orphans) == 0 {
		return
	}
	m.log.Info("removing orphaned hosts entries", "count", len(orphans))
	if res := m.engine.ApplyDiff(ctx, nil, orphans, false); !res.OK {
		m.log.Warn("orphan cleanup failed", "reason", res.Reason, "detail", res.Detail)
	}
}
