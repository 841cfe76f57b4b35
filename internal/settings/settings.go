// Package settings holds the process-wide per-session defaults. The record is
// replaced as a whole on every update and readers always get a complete
// snapshot.
package settings

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"github.com/chaz8081/gostt-tray/internal/validate"
)

// Settings are the defaults a mode inherits from when it leaves a field unset.
type Settings struct {
	Version            uint64 `yaml:"version" json:"version"`
	DefaultSTTProvider string `yaml:"default_stt_provider" json:"default_stt_provider" validate:"required"`
	DefaultSTTModel    string `yaml:"default_stt_model" json:"default_stt_model" validate:"required"`
	DefaultLLMProvider string `yaml:"default_llm_provider" json:"default_llm_provider" validate:"required"`
	DefaultLLMModel    string `yaml:"default_llm_model" json:"default_llm_model" validate:"required"`
	ActiveModeKey      string `yaml:"active_mode_key" json:"active_mode_key" validate:"required"`
	InputDevice        string `yaml:"input_device" json:"input_device"`
	AutoPaste          bool   `yaml:"auto_paste" json:"auto_paste"`
	ContextAwareness   bool   `yaml:"context_awareness" json:"context_awareness"`
	Language           string `yaml:"language" json:"language" validate:"required"`
	WhisperServerURL   string `yaml:"whisper_server_url,omitempty" json:"whisper_server_url,omitempty" validate:"omitempty,http_url"`
}

// Default returns the first-run settings.
func Default() Settings {
	return Settings{
		DefaultSTTProvider: "whispercpp",
		DefaultSTTModel:    "base.en",
		DefaultLLMProvider: "ollama",
		DefaultLLMModel:    "llama3.2",
		ActiveModeKey:      "voice_to_text",
		AutoPaste:          true,
		Language:           "en",
	}
}

// Store owns the current Settings record.
type Store struct {
	path string // empty keeps settings in memory only

	mu  sync.Mutex // serializes writers
	cur atomic.Pointer[Settings]
}

// Open loads settings from path. A missing file yields defaults.
func Open(path string) (*Store, error) {
	s := &Store{path: path}

	loaded := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &loaded); err != nil {
			return nil, fmt.Errorf("settings: parse %s: %w", path, err)
		}
		if err := validate.Struct(loaded); err != nil {
			slog.Warn("[Settings] invalid settings file, using defaults", "path", path, "error", err)
			loaded = Default()
		}
	case os.IsNotExist(err):
		slog.Info("[Settings] no settings file, using defaults", "path", path)
	default:
		return nil, fmt.Errorf("settings: read %s: %w", path, err)
	}

	s.cur.Store(&loaded)
	return s, nil
}

// NewMemory returns a Store that never touches disk.
func NewMemory(initial Settings) *Store {
	s := &Store{}
	s.cur.Store(&initial)
	return s
}

// Get returns a snapshot of the current settings. It never blocks.
func (s *Store) Get() Settings {
	return *s.cur.Load()
}

// Update applies fn to a copy of the current settings, validates the
// result, persists it and swaps it in. Concurrent readers see either the
// old or the new record.
func (s *Store) Update(fn func(Settings) Settings) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := *s.cur.Load()
	next := fn(prev)
	next.Version = prev.Version + 1

	if err := validate.Struct(next); err != nil {
		return prev, fmt.Errorf("settings: %w", err)
	}
	if err := s.persist(next); err != nil {
		return prev, err
	}

	s.cur.Store(&next)
	slog.Debug("[Settings] updated", "version", next.Version)
	return next, nil
}

// Replace swaps in a whole new record.
func (s *Store) Replace(next Settings) (Settings, error) {
	return s.Update(func(Settings) Settings { return next })
}

func (s *Store) persist(v Settings) error {
	if s.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("settings: create dir: %w", err)
	}

	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("settings: encode: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("settings: write: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("settings: rename: %w", err)
	}
	return nil
}
