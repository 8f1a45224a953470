// Package hostsfile owns all access to the OS hosts file: parsing the
// currently blocked set, rewriting entries atomically, rotating backups and
// repairing corrupted lines. Unrelated pre-existing entries are always left
// untouched.
package hostsfile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/afero"

	"focusguard/pkg/blocklist"
	"focusguard/pkg/flush"
)

// ErrPermissionDenied reports that the OS rejected a hosts file mutation.
// Callers surface it as "re-run with elevated privileges".
var ErrPermissionDenied = errors.New("permission denied writing hosts file")

const (
	// DefaultMarker is the comment line under which engine-owned entries
	// are appended.
	DefaultMarker = "# focusguard entries"

	// DefaultRedirect is the loopback address written against each
	// blocked domain.
	DefaultRedirect = "127.0.0.1"

	defaultMaxBackups = 3
	tmpSuffix         = ".focusguard.tmp"
)

// Store provides durable access to the hosts file.
type Store struct {
	fs         afero.Fs
	path       string
	backupDir  string
	redirect   string
	marker     string
	heuristic  blocklist.Heuristic
	flusher    flush.Flusher
	maxBackups int
	log        *slog.Logger
}

// Options configures a Store. Zero fields fall back to defaults; Fs defaults
// to the real filesystem.
type Options struct {
	Fs         afero.Fs
	Path       string
	BackupDir  string
	Redirect   string
	Marker     string
	Heuristic  blocklist.Heuristic
	Flusher    flush.Flusher
	MaxBackups int
	Log        *slog.Logger
}

// New constructs a Store.
func New(opts Options) *Store {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Redirect == "" {
		opts.Redirect = DefaultRedirect
	}
	if opts.Marker == "" {
		opts.Marker = DefaultMarker
	}
	if opts.Heuristic == (blocklist.Heuristic{}) {
		opts.Heuristic = blocklist.DefaultHeuristic()
	}
	if opts.Flusher == nil {
		opts.Flusher = flush.Nop{}
	}
	if opts.MaxBackups <= 0 {
		opts.MaxBackups = defaultMaxBackups
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	return &Store{
		fs:         opts.Fs,
		path:       opts.Path,
		backupDir:  opts.BackupDir,
		redirect:   opts.Redirect,
		marker:     opts.Marker,
		heuristic:  opts.Heuristic,
		flusher:    opts.Flusher,
		maxBackups: opts.MaxBackups,
		log:        opts.Log,
	}
}

// Path returns the hosts file path the store manages.
func (s *Store) Path() string { return s.path }

// Read returns the hosts file as a list of raw lines. Read fails soft: on
// any I/O error it returns an empty list so the rest of the system degrades
// to "nothing blocked" instead of crashing.
func (s *Store) Read() []string {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.log.Warn("cannot read hosts file", "path", s.path, "error", err)
		}
		return nil
	}
	content := strings.TrimSuffix(string(data), "\n")
	if content == "" {
		return nil
	}
	return strings.Split(content, "\n")
}

// ParseBlocked derives the currently blocked set from well-formed engine
// entries. The engine owns only the section at and below its marker, so a
// system line like "127.0.0.1 localhost" above the marker never counts as
// blocked. Within the section a line qualifies only if its first token is
// the redirect address and exactly one valid domain follows; legacy
// multi-domain lines and malformed tokens are repair candidates, never a
// blocked signal.
func (s *Store) ParseBlocked() blocklist.Set {
	blocked := make(blocklist.Set)
	inSection := false
	for _, line := range s.Read() {
		if !inSection {
			inSection = strings.TrimSpace(line) == s.marker
			continue
		}
		domains, engineLine := s.parseEntry(line)
		if !engineLine || len(domains) != 1 {
			continue
		}
		if s.heuristic.IsMalformed(domains[0]) {
			continue
		}
		blocked.Add(domains[0])
	}
	return blocked
}

// parseEntry splits a line into its domain tokens. The second return value
// reports whether the line carries the engine's redirect address at all.
func (s *Store) parseEntry(line string) ([]string, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return nil, false
	}
	fields := strings.Fields(trimmed)
	if len(fields) < 2 || fields[0] != s.redirect {
		return nil, false
	}
	var domains []string
	for _, token := range fields[1:] {
		if strings.HasPrefix(token, "#") {
			break
		}
		domains = append(domains, blocklist.Normalize(token))
	}
	return domains, true
}

// Write applies a diff to the engine section of the hosts file: lines bound
// to domains in remove are dropped, one line per domain in add is appended
// under the marker, and with repairMalformed corrupted tokens are stripped
// and legacy multi-domain lines re-split to one domain per line. Everything
// above the marker is passed through untouched. A backup is attempted first;
// backup failure never blocks the write. The resolver cache is flushed
// best-effort afterwards.
func (s *Store) Write(ctx context.Context, add, remove blocklist.Set, repairMalformed bool) error {
	if err := s.Backup(); err != nil {
		s.log.Warn("hosts backup failed, continuing without backup", "error", err)
	}

	lines := s.rewrite(s.Read(), add, remove, repairMalformed)

	if err := s.writeAtomic(lines); err != nil {
		if isPermission(err) {
			return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
		return fmt.Errorf("write hosts file: %w", err)
	}

	s.flusher.Flush(ctx)
	return nil
}

// rewrite produces the new hosts file content. Lines above the marker pass
// through unchanged; engine entries below it that are touched by the diff
// are rewritten one domain per line. Repair strips individual malformed
// tokens and re-splits legacy multi-domain lines, keeping their well-formed
// domains.
func (s *Store) rewrite(lines []string, add, remove blocklist.Set, repairMalformed bool) []string {
	drop := make(blocklist.Set)
	drop.Merge(remove)
	// Dropping lines for re-added domains keeps repeated writes from
	// accumulating duplicate entries.
	drop.Merge(add)

	var kept []string
	inSection := false
	for _, line := range lines {
		if !inSection {
			kept = append(kept, line)
			inSection = strings.TrimSpace(line) == s.marker
			continue
		}

		domains, engineLine := s.parseEntry(line)
		if !engineLine {
			kept = append(kept, line)
			continue
		}

		remaining := make([]string, 0, len(domains))
		touched := false
		for _, domain := range domains {
			if drop.Has(domain) {
				touched = true
				continue
			}
			if repairMalformed && s.heuristic.IsMalformed(domain) {
				s.log.Info("removing malformed hosts entry", "token", domain)
				touched = true
				continue
			}
			remaining = append(remaining, domain)
		}
		// Legacy multi-domain lines cannot be removed per domain, so
		// repair re-splits them even when no token was dropped.
		if repairMalformed && len(domains) > 1 {
			touched = true
		}
		if !touched {
			kept = append(kept, line)
			continue
		}
		for _, domain := range remaining {
			kept = append(kept, s.redirect+" "+domain)
		}
	}

	if len(add) > 0 {
		kept = s.appendEntries(kept, add)
	}
	return kept
}

func (s *Store) appendEntries(lines []string, add blocklist.Set) []string {
	markerFound := false
	for _, line := range lines {
		if strings.TrimSpace(line) == s.marker {
			markerFound = true
			break
		}
	}
	if !markerFound {
		if len(lines) > 0 {
			lines = append(lines, "")
		}
		lines = append(lines, s.marker)
	}
	for _, domain := range add.Sorted() {
		lines = append(lines, s.redirect+" "+domain)
	}
	return lines
}

// writeAtomic writes the full file via temp-file and rename, clearing a
// read-only mode bit for the duration if one is set.
func (s *Store) writeAtomic(lines []string) error {
	wasReadonly := false
	if fi, err := s.fs.Stat(s.path); err == nil && fi.Mode().Perm()&0o200 == 0 {
		wasReadonly = true
		if err := s.fs.Chmod(s.path, 0o644); err != nil {
			return err
		}
	}

	content := strings.Join(lines, "\n")
	if content != "" {
		content += "\n"
	}

	tmp := s.path + tmpSuffix
	if err := afero.WriteFile(s.fs, tmp, []byte(content), 0o644); err != nil {
		return err
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		_ = s.fs.Remove(tmp)
		return err
	}

	if wasReadonly {
		if err := s.fs.Chmod(s.path, 0o444); err != nil {
			s.log.Warn("cannot restore read-only mode on hosts file", "error", err)
		}
	}
	return nil
}

// Protect marks the hosts file read-only to hinder manual edits. The store
// clears and restores the bit around its own writes.
func (s *Store) Protect() error {
	return s.fs.Chmod(s.path, 0o444)
}

// Unprotect makes the hosts file writable again.
func (s *Store) Unprotect() error {
	return s.fs.Chmod(s.path, 0o644)
}

func isPermission(err error) bool {
	return errors.Is(err, fs.ErrPermission) || os.IsPermission(err)
}
