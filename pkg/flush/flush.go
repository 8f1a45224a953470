// Package flush triggers the operating system resolver-cache flush after
// hosts file changes. Flushes are fire-and-forget: a failing or unsupported
// flush never fails the enclosing operation.
package flush

import (
	"context"
	"log/slog"
	"os/exec"
	"runtime"
	"time"
)

const commandTimeout = 5 * time.Second

// Flusher clears the OS resolver cache.
type Flusher interface {
	Flush(ctx context.Context)
}

// Nop is a Flusher that does nothing.
type Nop struct{}

// Flush implements Flusher.
func (Nop) Flush(context.Context) {}

// System flushes the resolver cache with the platform command.
type System struct {
	Log *slog.Logger
}

// Flush runs the platform flush command with a short timeout so a stalled
// subprocess cannot wedge the caller.
func (s System) Flush(ctx context.Context) {
	name, args := flushCommand(runtime.GOOS)
	if name == "" {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	if err := exec.CommandContext(ctx, name, args...).Run(); err != nil {
		if s.Log != nil {
			s.Log.Debug("resolver cache flush failed", "command", name, "error", err)
		}
	}
}

func flushCommand(goos string) (string, []string) {
	switch goos {
	case "windows":
		return "ipconfig", []string{"/flushdns"}
	case "darwin":
		return "dscacheutil", []string{"-flushcache"}
	case "linux":
		return "resolvectl", []string{"flush-caches"}
	default:
		return "", nil
	}
}
