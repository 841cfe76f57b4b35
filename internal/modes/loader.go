package modes

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/chaz8081/gostt-tray/internal/validate"
)

// Loader merges the built-in modes with the JSON files in a directory.
// The directory is rescanned on every call so edits apply without a restart.
type Loader struct {
	dir string
}

// NewLoader creates a Loader for dir. An empty dir means built-ins only.
func NewLoader(dir string) *Loader {
	return &Loader{dir: dir}
}

// Dir returns the user mode directory.
func (l *Loader) Dir() string { return l.dir }

// EnsureDir creates the user mode directory.
func (l *Loader) EnsureDir() error {
	if l.dir == "" {
		return nil
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("modes: create dir: %w", err)
	}
	return nil
}

// Modes returns the merged mode set keyed by mode key. User modes shadow
// built-ins with the same key. Unreadable or invalid files are skipped.
func (l *Loader) Modes() map[string]Mode {
	out := make(map[string]Mode)
	for _, m := range Builtins() {
		out[m.Key] = m
	}
	for _, m := range l.userModes() {
		out[m.Key] = m
	}
	return out
}

// List returns the merged modes: built-ins in display order, then user-only
// modes sorted by name.
func (l *Loader) List() []Mode {
	all := l.Modes()
	list := make([]Mode, 0, len(all))
	seen := make(map[string]bool, len(all))
	for _, b := range Builtins() {
		list = append(list, all[b.Key])
		seen[b.Key] = true
	}

	var extra []Mode
	for k, m := range all {
		if !seen[k] {
			extra = append(extra, m)
		}
	}
	sort.Slice(extra, func(i, j int) bool {
		if extra[i].Name == extra[j].Name {
			return extra[i].Key < extra[j].Key
		}
		return extra[i].Name < extra[j].Name
	})
	return append(list, extra...)
}

// Get looks up one mode by key.
func (l *Loader) Get(key string) (Mode, error) {
	m, ok := l.Modes()[key]
	if !ok {
		return Mode{}, fmt.Errorf("modes: %q: %w", key, ErrModeNotFound)
	}
	return m, nil
}

// Save validates m and writes it as <key>.json. Saved modes are always
// user modes.
func (l *Loader) Save(m Mode) error {
	if l.dir == "" {
		return fmt.Errorf("modes: no mode directory configured")
	}
	m.Builtin = false
	if m.OutputFormat == "" {
		m.OutputFormat = FormatPlain
	}
	if err := validate.Struct(m); err != nil {
		return fmt.Errorf("modes: %w", err)
	}
	if err := l.EnsureDir(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("modes: encode %q: %w", m.Key, err)
	}

	path := l.path(m.Key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("modes: write %q: %w", m.Key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("modes: rename %q: %w", m.Key, err)
	}
	slog.Info("[Modes] saved", "key", m.Key, "path", path)
	return nil
}

// Delete removes the user file for key. Deleting a user mode that shadows a
// built-in restores the built-in.
func (l *Loader) Delete(key string) error {
	if key == "" || strings.ContainsAny(key, `/\.`) {
		return fmt.Errorf("modes: %q: %w", key, ErrModeNotFound)
	}
	if l.dir != "" {
		err := os.Remove(l.path(key))
		if err == nil {
			slog.Info("[Modes] deleted", "key", key)
			return nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("modes: delete %q: %w", key, err)
		}
	}
	if isBuiltin(key) {
		return fmt.Errorf("modes: %q: %w", key, ErrBuiltinMode)
	}
	// A user mode may live in a file whose name differs from its key.
	for _, f := range l.files() {
		if m, err := readModeFile(f); err == nil && m.Key == key {
			if err := os.Remove(f); err != nil {
				return fmt.Errorf("modes: delete %q: %w", key, err)
			}
			slog.Info("[Modes] deleted", "key", key, "path", f)
			return nil
		}
	}
	return fmt.Errorf("modes: %q: %w", key, ErrModeNotFound)
}

func (l *Loader) path(key string) string {
	return filepath.Join(l.dir, key+".json")
}

func (l *Loader) files() []string {
	if l.dir == "" {
		return nil
	}
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("[Modes] cannot read mode dir", "dir", l.dir, "error", err)
		}
		return nil
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".json") {
			continue
		}
		files = append(files, filepath.Join(l.dir, e.Name()))
	}
	sort.Strings(files)
	return files
}

func (l *Loader) userModes() []Mode {
	var out []Mode
	for _, f := range l.files() {
		m, err := readModeFile(f)
		if err != nil {
			slog.Warn("[Modes] skipping mode file", "path", f, "error", err)
			continue
		}
		out = append(out, m)
	}
	return out
}

func readModeFile(path string) (Mode, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Mode{}, err
	}

	var m Mode
	if err := json.Unmarshal(data, &m); err != nil {
		return Mode{}, fmt.Errorf("parse: %w", err)
	}
	if m.OutputFormat == "" {
		m.OutputFormat = FormatPlain
	}
	if err := validate.Struct(m); err != nil {
		return Mode{}, err
	}
	m.Builtin = false
	return m, nil
}

func isBuiltin(key string) bool {
	for _, b := range Builtins() {
		if b.Key == key {
			return true
		}
	}
	return false
}
