// Package prefs persists client-side state between runs: cached folder
// passwords and view preferences.
package prefs

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/ini.v1"

	"github.com/driveindex/drive-index/internal/config"
	"github.com/driveindex/drive-index/internal/pathcodec"
)

// Keys stored in the state file.
const (
	KeyPreferredLayout    = "preferredLayout"
	KeyShowModifiedColumn = "showModifiedColumn"
	passwordKeyPrefix     = "password_"
)

// Layout is the folder view layout.
type Layout string

const (
	LayoutList Layout = "list"
	LayoutGrid Layout = "grid"
)

// ParseLayout accepts "list" or "grid".
func ParseLayout(s string) (Layout, error) {
	switch Layout(strings.ToLower(strings.TrimSpace(s))) {
	case LayoutList:
		return LayoutList, nil
	case LayoutGrid:
		return LayoutGrid, nil
	}
	return "", fmt.Errorf("invalid layout %q (want list or grid)", s)
}

// PasswordKey returns the key a folder password is cached under.
func PasswordKey(drive int, path string) string {
	return fmt.Sprintf("%s%d_%s", passwordKeyPrefix, drive, pathcodec.NormalizeFolder(path))
}

// Store is a flat key/value store backed by an INI file. Every write is
// flushed to disk immediately.
type Store struct {
	path string
	file *ini.File
	mu   sync.Mutex
}

// Open loads the store at path, or the default location when path is empty.
// A missing file yields an empty store.
func Open(path string) (*Store, error) {
	if path == "" {
		var err error
		path, err = config.DefaultStatePath()
		if err != nil {
			return nil, err
		}
	}

	s := &Store{path: path}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		s.file = ini.Empty()
		return s, nil
	}

	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}
	s.file = f
	return s, nil
}

// NewMemory returns a store that never touches disk.
func NewMemory() *Store {
	return &Store{file: ini.Empty()}
}

// Path returns the backing file, empty for in-memory stores.
func (s *Store) Path() string {
	return s.path
}

// Get returns the value for key and whether it was present.
func (s *Store) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sec := s.file.Section(ini.DefaultSection)
	if !sec.HasKey(key) {
		return "", false
	}
	return sec.Key(key).String(), true
}

// Set stores value under key and persists the store.
func (s *Store) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.file.Section(ini.DefaultSection).Key(key).SetValue(value)
	return s.flushLocked()
}

// Delete removes key and persists the store.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.file.Section(ini.DefaultSection).DeleteKey(key)
	return s.flushLocked()
}

func (s *Store) flushLocked() error {
	if s.path == "" {
		return nil
	}
	return config.SaveINI(s.file, s.path)
}

// Password returns the cached password for a folder.
func (s *Store) Password(drive int, path string) (string, bool) {
	return s.Get(PasswordKey(drive, path))
}

// SetPassword caches the password for a folder.
func (s *Store) SetPassword(drive int, path, password string) error {
	return s.Set(PasswordKey(drive, path), password)
}

// ForgetPassword drops the cached password for a folder.
func (s *Store) ForgetPassword(drive int, path string) error {
	return s.Delete(PasswordKey(drive, path))
}

// Layout returns the preferred layout, defaulting to list.
func (s *Store) Layout() Layout {
	v, ok := s.Get(KeyPreferredLayout)
	if !ok {
		return LayoutList
	}
	l, err := ParseLayout(v)
	if err != nil {
		return LayoutList
	}
	return l
}

// SetLayout persists the preferred layout.
func (s *Store) SetLayout(l Layout) error {
	return s.Set(KeyPreferredLayout, string(l))
}

// ShowModifiedColumn reports whether the modified column is shown. Anything
// but the literal "false" counts as shown.
func (s *Store) ShowModifiedColumn() bool {
	v, ok := s.Get(KeyShowModifiedColumn)
	return !ok || v != "false"
}

// SetShowModifiedColumn persists the modified column toggle.
func (s *Store) SetShowModifiedColumn(show bool) error {
	return s.Set(KeyShowModifiedColumn, strconv.FormatBool(show))
}
