// Package procsweep is a tertiary enforcement path: a periodic sweep that
// terminates configured executables (browsers, clients) while blocking is
// active. Best-effort only; a process that refuses to die is logged and
// retried on the next sweep.
package procsweep

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// DefaultInterval is the pause between sweeps.
const DefaultInterval = 15 * time.Second

// Target is one running process the sweeper may terminate.
type Target interface {
	Pid() int32
	Name() (string, error)
	Kill() error
}

// Lister enumerates running processes. Injected so tests never touch the
// real process table.
type Lister func(ctx context.Context) ([]Target, error)

// Sweeper periodically kills processes whose executable name is on the
// configured list.
type Sweeper struct {
	names    map[string]struct{}
	lister   Lister
	interval time.Duration
	log      *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// Options configures a Sweeper. A nil Lister uses the real process table.
type Options struct {
	// Processes holds executable names to terminate, matched
	// case-insensitively against the process name.
	Processes []string
	Lister    Lister
	Interval  time.Duration
	Log       *slog.Logger
}

// New constructs a Sweeper.
func New(opts Options) *Sweeper {
	if opts.Lister == nil {
		opts.Lister = systemLister
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	names := make(map[string]struct{}, len(opts.Processes))
	for _, name := range opts.Processes {
		trimmed := strings.ToLower(strings.TrimSpace(name))
		if trimmed != "" {
			names[trimmed] = struct{}{}
		}
	}
	return &Sweeper{
		names:    names,
		lister:   opts.Lister,
		interval: opts.Interval,
		log:      opts.Log,
	}
}

// Running reports whether the background sweep is active.
func (s *Sweeper) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Start launches the background sweep. No-op when already running or when
// no process names are configured.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running || len(s.names) == 0 {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.run(ctx)
	s.log.Info("process sweep started", "processes", len(s.names), "interval", s.interval)
}

// Stop cancels the sweep and waits for the loop to exit.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	<-done
	s.log.Info("process sweep stopped")
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.SweepOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce scans the process table once and kills every match. Returns the
// number of processes terminated.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	procs, err := s.lister(ctx)
	if err != nil {
		s.log.Warn("cannot list processes", "error", err)
		return 0
	}

	killed := 0
	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			// Processes can exit between listing and inspection.
			continue
		}
		if _, hit := s.names[strings.ToLower(name)]; !hit {
			continue
		}
		if err := p.Kill(); err != nil {
			s.log.Warn("cannot terminate process", "name", name, "pid", p.Pid(), "error", err)
			continue
		}
		s.log.Info("terminated blocked process", "name", name, "pid", p.Pid())
		killed++
	}
	return killed
}

type systemProcess struct {
	proc *process.Process
}

func (p systemProcess) Pid() int32            { return p.proc.Pid }
func (p systemProcess) Name() (string, error) { return p.proc.Name() }
func (p systemProcess) Kill() error           { return p.proc.Kill() }

func systemLister(ctx context.Context) ([]Target, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	targets := make([]Target, 0, len(procs))
	for _, p := range procs {
		targets = append(targets, systemProcess{proc: p})
	}
	return targets, nil
}
