// Package privilege answers whether the current process may mutate the
// hosts file. Every write path consults a Gate first so a missing elevation
// surfaces as a structured result instead of a half-applied write.
package privilege

import (
	"os"
	"path/filepath"
	"runtime"
)

// Gate reports whether the process holds the rights required to rewrite the
// hosts file.
type Gate interface {
	Elevated() bool
}

// Static is a fixed-answer Gate, used in tests and to bypass the check when
// an operator knows better.
type Static bool

// Elevated returns the fixed answer.
func (s Static) Elevated() bool { return bool(s) }

// SystemGate checks real process privileges. On Unix an effective UID of 0
// is sufficient; otherwise it probes write access in the directory holding
// the hosts file, which also covers Windows ACLs.
type SystemGate struct {
	// ProbeDir is the directory used for the write probe, normally the
	// directory containing the hosts file.
	ProbeDir string
}

// Elevated implements Gate.
func (g SystemGate) Elevated() bool {
	if runtime.GOOS != "windows" && os.Geteuid() == 0 {
		return true
	}
	return g.writeProbe()
}

func (g SystemGate) writeProbe() bool {
	if g.ProbeDir == "" {
		return false
	}
	probe := filepath.Join(g.ProbeDir, ".focusguard-probe")
	f, err := os.OpenFile(probe, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err != nil {
		return false
	}
	_ = f.Close()
	_ = os.Remove(probe)
	return true
}
