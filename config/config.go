// Package config provides the persisted application settings store.
//
// Settings are addressed by (section, key) and persisted as a YAML document.
// Reads fall back to a defaults table, so a missing or partial file never
// blocks startup. All access is thread-safe; writes are atomic
// (write-temp-then-rename) so a crash mid-save cannot corrupt the file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/envdesk/envdesk/errors"
)

// Section names used by the core
const (
	SectionMain     = "main"
	SectionInternal = "internal"
)

// Well-known keys in the main section
const (
	KeyDefaultEnv          = "default_env"
	KeyFirstRun            = "first_run"
	KeyHideUpdateDialog    = "hide_update_dialog"
	KeyGeo                 = "geo"
	KeyLastStatusIsOffline = "last_status_is_offline"
	KeyDarkMode            = "dark_mode"
)

// document is the on-disk shape: section -> key -> value
type document map[string]map[string]any

// Store provides thread-safe access to persisted application settings
type Store struct {
	mu       sync.RWMutex
	path     string
	logger   *slog.Logger
	data     document
	defaults document
}

// Defaults returns the built-in defaults table.
// RootPrefix seeds main.default_env so a fresh install selects the base environment.
func Defaults(rootPrefix string) map[string]map[string]any {
	return document{
		SectionMain: {
			KeyDefaultEnv:          rootPrefix,
			KeyFirstRun:            true,
			KeyHideUpdateDialog:    false,
			KeyGeo:                 "",
			KeyLastStatusIsOffline: nil,
			KeyDarkMode:            false,
		},
		SectionInternal: {},
	}
}

// Load reads the settings file at path, creating an empty store when the file
// does not exist yet. Defaults apply for any missing (section, key).
func Load(path string, defaults map[string]map[string]any, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if defaults == nil {
		defaults = document{}
	}

	store := &Store{
		path:     path,
		logger:   logger,
		data:     document{},
		defaults: defaults,
	}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		logger.Debug("settings file not found, starting from defaults", "path", path)
		return store, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "Store", "Load", "settings file read")
	}

	if err := yaml.Unmarshal(raw, &store.data); err != nil {
		return nil, errors.WrapInvalid(err, "Store", "Load", "settings file parse")
	}
	if store.data == nil {
		store.data = document{}
	}

	return store, nil
}

// Path returns the location of the settings file
func (s *Store) Path() string {
	return s.path
}

// Get returns the value stored at (section, key), or def when unset
func (s *Store) Get(section, key string, def any) any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if keys, ok := s.data[section]; ok {
		if value, ok := keys[key]; ok {
			return value
		}
	}
	if keys, ok := s.defaults[section]; ok {
		if value, ok := keys[key]; ok {
			return value
		}
	}
	return def
}

// GetString returns a string value, falling back to def on missing or mistyped entries
func (s *Store) GetString(section, key, def string) string {
	if v, ok := s.Get(section, key, def).(string); ok {
		return v
	}
	return def
}

// GetBool returns a bool value, falling back to def on missing or mistyped entries
func (s *Store) GetBool(section, key string, def bool) bool {
	if v, ok := s.Get(section, key, def).(bool); ok {
		return v
	}
	return def
}

// GetInt returns an int value, tolerating the numeric types YAML decoding produces
func (s *Store) GetInt(section, key string, def int) int {
	switch v := s.Get(section, key, def).(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}

// Set stores value at (section, key) and persists the document
func (s *Store) Set(section, key string, value any) error {
	if section == "" || key == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Store", "Set", "section/key validation")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data[section] == nil {
		s.data[section] = map[string]any{}
	}
	s.data[section][key] = value

	return s.save()
}

// save writes the document atomically. Caller holds s.mu.
func (s *Store) save() error {
	if s.path == "" {
		return nil // In-memory store (tests)
	}

	raw, err := yaml.Marshal(s.data)
	if err != nil {
		return errors.Wrap(err, "Store", "save", "settings marshal")
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "Store", "save", "settings directory create")
	}

	tmp, err := os.CreateTemp(dir, ".settings-*.yaml")
	if err != nil {
		return errors.Wrap(err, "Store", "save", "temp file create")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, "Store", "save", "temp file write")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "Store", "save", "temp file close")
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "Store", "save", "settings file replace")
	}

	return nil
}

// Reset removes the settings file and clears in-memory state
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = document{}
	if s.path == "" {
		return nil
	}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "Store", "Reset", "settings file remove")
	}
	return nil
}

// InMemory returns a store with no backing file, for tests and tooling
func InMemory(defaults map[string]map[string]any) *Store {
	if defaults == nil {
		defaults = document{}
	}
	return &Store{
		logger:   slog.Default(),
		data:     document{},
		defaults: defaults,
	}
}

// String implements fmt.Stringer without leaking values (sections only)
func (s *Store) String() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sections := make([]string, 0, len(s.data))
	for section := range s.data {
		sections = append(sections, section)
	}
	return fmt.Sprintf("config.Store{path: %s, sections: %v}", s.path, sections)
}
