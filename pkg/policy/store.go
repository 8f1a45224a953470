// Package policy holds the declared blocking intent: which categories are
// enabled and which custom domains the user added. The store is the durable
// source of truth; the hosts file is only the enforced effect.
package policy

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
)

// Store exposes read/write access to the declared policy.
type Store interface {
	IsCategoryEnabled(name string) bool
	SetCategoryEnabled(name string, enabled bool) error
	CustomDomains() []string
	AddCustomDomain(domain string) error
	RemoveCustomDomain(domain string) error
}

type state struct {
	Categories    map[string]bool `json:"categories"`
	CustomDomains []string        `json:"custom_domains"`
}

// FileStore is a JSON file-backed Store. Unknown categories default to
// enabled: a fresh installation blocks everything it knows about until the
// user opts out.
type FileStore struct {
	fs   afero.Fs
	path string
	log  *slog.Logger

	mu    sync.Mutex
	state state
}

// NewFileStore loads or initializes the policy file at path.
func NewFileStore(fsys afero.Fs, path string, log *slog.Logger) (*FileStore, error) {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if log == nil {
		log = slog.Default()
	}
	s := &FileStore{
		fs:   fsys,
		path: path,
		log:  log,
		state: state{
			Categories:    make(map[string]bool),
			CustomDomains: []string{},
		},
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) load() error {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read policy file: %w", err)
	}
	var loaded state
	if err := json.Unmarshal(data, &loaded); err != nil {
		// A corrupted policy file falls back to defaults rather than
		// leaving the system unenforced.
		s.log.Warn("policy file corrupted, using defaults", "path", s.path, "error", err)
		return nil
	}
	if loaded.Categories == nil {
		loaded.Categories = make(map[string]bool)
	}
	if loaded.CustomDomains == nil {
		loaded.CustomDomains = []string{}
	}
	s.state = loaded
	return nil
}

// save persists the state. Called with the mutex held.
func (s *FileStore) save() error {
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode policy: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := s.fs.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create policy dir: %w", err)
		}
	}
	if err := afero.WriteFile(s.fs, s.path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write policy file: %w", err)
	}
	return nil
}

// IsCategoryEnabled returns the declared state for a category. Categories
// never seen before report enabled.
func (s *FileStore) IsCategoryEnabled(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	enabled, ok := s.state.Categories[name]
	if !ok {
		return true
	}
	return enabled
}

// SetCategoryEnabled persists the declared state for a category.
func (s *FileStore) SetCategoryEnabled(name string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Categories[name] = enabled
	return s.save()
}

// CustomDomains returns a copy of the user-added domain list.
func (s *FileStore) CustomDomains() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	domains := make([]string, len(s.state.CustomDomains))
	copy(domains, s.state.CustomDomains)
	return domains
}

// AddCustomDomain appends a domain to the custom list if absent.
func (s *FileStore) AddCustomDomain(domain string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.state.CustomDomains {
		if existing == domain {
			return nil
		}
	}
	s.state.CustomDomains = append(s.state.CustomDomains, domain)
	return s.save()
}

// RemoveCustomDomain drops a domain from the custom list.
func (s *FileStore) RemoveCustomDomain(domain string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	filtered := s.state.CustomDomains[:0]
	removed := false
	for _, existing := range s.state.CustomDomains {
		if existing == domain {
			removed = true
			continue
		}
		filtered = append(filtered, existing)
	}
	if !removed {
		return nil
	}
	s.state.CustomDomains = filtered
	return s.save()
}
