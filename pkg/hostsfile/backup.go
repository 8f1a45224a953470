package hostsfile

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"
)

const (
	backupPrefix = "hosts_backup_"
	backupSuffix = ".txt"
	backupStamp  = "20060102_150405"
)

// Backup copies the hosts file into the backup directory as an immutable
// timestamped snapshot and prunes snapshots beyond the retention count.
// Pruning is opportunistic: a locked or undeletable old backup is skipped.
func (s *Store) Backup() error {
	if s.backupDir == "" {
		return nil
	}

	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read hosts file for backup: %w", err)
	}

	if err := s.fs.MkdirAll(s.backupDir, 0o750); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}

	name := backupPrefix + time.Now().Format(backupStamp) + backupSuffix
	if err := afero.WriteFile(s.fs, filepath.Join(s.backupDir, name), data, 0o600); err != nil {
		return fmt.Errorf("write backup: %w", err)
	}

	s.pruneBackups()
	return nil
}

// RestoreBackup replaces the hosts file with the named snapshot from the
// backup directory.
func (s *Store) RestoreBackup(name string) error {
	data, err := afero.ReadFile(s.fs, filepath.Join(s.backupDir, name))
	if err != nil {
		return fmt.Errorf("read backup %s: %w", name, err)
	}
	if err := s.writeAtomic(strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")); err != nil {
		if isPermission(err) {
			return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
		return fmt.Errorf("restore backup: %w", err)
	}
	return nil
}

// Backups lists snapshot names, newest first.
func (s *Store) Backups() []string {
	entries, err := afero.ReadDir(s.fs, s.backupDir)
	if err != nil {
		return nil
	}
	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, backupPrefix) || !strings.HasSuffix(name, backupSuffix) {
			continue
		}
		names = append(names, name)
	}
	// Timestamped names sort chronologically.
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names
}

func (s *Store) pruneBackups() {
	names := s.Backups()
	if len(names) <= s.maxBackups {
		return
	}
	for _, name := range names[s.maxBackups:] {
		if err := s.fs.Remove(filepath.Join(s.backupDir, name)); err != nil {
			s.log.Debug("cannot remove old backup", "name", name, "error", err)
		}
	}
}
