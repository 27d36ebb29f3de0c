// Package config holds the simulator's host-wide mutable settings: the
// handful of values an operator can change at runtime (outside of any one
// project) and that must survive a restart.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pesaplay/mpesa-sim/internal/eventbus"
)

// Settings is the JSON document persisted at Store's path.
type Settings struct {
	LogLevel              string `json:"log_level"`
	Environment           string `json:"environment"`
	SentryDSN             string `json:"sentry_dsn,omitempty"`
	DatabaseURL           string `json:"database_url"`
	DefaultStkDelayMs     int    `json:"default_stk_delay_ms"`
	DefaultSafetyWindowMs int    `json:"default_safety_window_ms"`
}

func defaultSettings() Settings {
	return Settings{
		LogLevel:              "info",
		Environment:           "development",
		DefaultStkDelayMs:     0,
		DefaultSafetyWindowMs: 30_000,
	}
}

// Store guards one Settings document with a read-write lock: reads return a
// cheap copy, writes are serialized and persisted to disk with a
// temp-file-then-rename sequence so a crash mid-write never corrupts it.
type Store struct {
	mu       sync.RWMutex
	path     string
	settings Settings
	bus      eventbus.Bus
}

// NewStore loads path if it exists, else seeds it with defaultSettings and
// writes it out immediately.
func NewStore(path string, bus eventbus.Bus) (*Store, error) {
	store := &Store{path: path, bus: bus}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		store.settings = defaultSettings()
		if writeErr := store.persist(store.settings); writeErr != nil {
			return nil, fmt.Errorf("seeding settings file %s: %w", path, writeErr)
		}
		return store, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading settings file %s: %w", path, err)
	}

	var settings Settings
	if err := json.Unmarshal(raw, &settings); err != nil {
		return nil, fmt.Errorf("parsing settings file %s: %w", path, err)
	}
	store.settings = settings
	return store, nil
}

// Get returns a copy of the current settings, safe to read without holding
// any lock afterward.
func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Update applies mutate to a copy of the current settings, persists the
// result, and only then swaps it in and emits settings_updated.
func (s *Store) Update(mutate func(*Settings)) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.settings
	mutate(&next)

	if err := s.persist(next); err != nil {
		return Settings{}, fmt.Errorf("persisting settings: %w", err)
	}
	s.settings = next

	if s.bus != nil {
		if err := s.bus.EmitAll(eventbus.EventSettingsUpdated, next); err != nil {
			return next, fmt.Errorf("emitting settings_updated: %w", err)
		}
	}
	return next, nil
}

// persist writes settings to a temp file in the same directory as s.path and
// renames it into place, so readers never observe a partially written file.
func (s *Store) persist(settings Settings) error {
	encoded, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling settings: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating settings directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".settings-*.json.tmp")
	if err != nil {
		return fmt.Errorf("creating temp settings file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(encoded); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp settings file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp settings file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("renaming settings file into place: %w", err)
	}
	return nil
}
