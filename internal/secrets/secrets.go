// Package secrets stores provider credentials in an encrypted file under the
// config directory. The core only asks it for a secret by provider name.
package secrets

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ErrEmptySecret is returned by Set for blank secrets.
var ErrEmptySecret = errors.New("secret is empty")

// EnvFallback maps secret names to environment variables consulted when
// nothing is stored.
var EnvFallback = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
}

// Source says where a secret came from.
type Source string

const (
	SourceNone Source = ""
	SourceFile Source = "file"
	SourceEnv  Source = "env"
)

// FileStore keeps secrets in path, encrypted with a key derived from the
// master key at path + ".key".
type FileStore struct {
	path    string
	keyPath string

	mu sync.Mutex
}

// NewFileStore creates a FileStore. Nothing is read until first use.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, keyPath: path + ".key"}
}

// Get returns the secret for name. Stored secrets win over the environment.
func (s *FileStore) Get(name string) (string, bool, error) {
	v, src, err := s.Lookup(name)
	return v, src != SourceNone, err
}

// Lookup is Get plus where the secret was found.
func (s *FileStore) Lookup(name string) (string, Source, error) {
	s.mu.Lock()
	all, err := s.load()
	s.mu.Unlock()
	if err != nil {
		return "", SourceNone, err
	}
	if v := all[name]; v != "" {
		return v, SourceFile, nil
	}
	if env, ok := EnvFallback[name]; ok {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			return v, SourceEnv, nil
		}
	}
	return "", SourceNone, nil
}

// Set stores secret under name.
func (s *FileStore) Set(name, secret string) error {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return ErrEmptySecret
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.load()
	if err != nil {
		return err
	}
	all[name] = secret
	if err := s.save(all); err != nil {
		return err
	}
	slog.Info("[Secrets] credential stored", "provider", name)
	return nil
}

// Delete removes the stored secret for name. Environment values are not
// affected.
func (s *FileStore) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := all[name]; !ok {
		return nil
	}
	delete(all, name)
	if err := s.save(all); err != nil {
		return err
	}
	slog.Info("[Secrets] credential deleted", "provider", name)
	return nil
}

// Names lists the stored secret names.
func (s *FileStore) Names() ([]string, error) {
	s.mu.Lock()
	all, err := s.load()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(all))
	for n := range all {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (s *FileStore) load() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, fmt.Errorf("secrets: read: %w", err)
	}

	key, err := s.key(false)
	if err != nil {
		return nil, err
	}
	plain, err := open(key, data)
	if err != nil {
		return nil, err
	}

	all := make(map[string]string)
	if err := json.Unmarshal(plain, &all); err != nil {
		return nil, fmt.Errorf("secrets: decode: %w", err)
	}
	return all, nil
}

func (s *FileStore) save(all map[string]string) error {
	key, err := s.key(true)
	if err != nil {
		return err
	}
	plain, err := json.Marshal(all)
	if err != nil {
		return fmt.Errorf("secrets: encode: %w", err)
	}
	data, err := seal(key, plain)
	if err != nil {
		return err
	}
	return writeFile(s.path, data)
}

// key reads the master key, creating it when create is set.
func (s *FileStore) key(create bool) ([]byte, error) {
	master, err := os.ReadFile(s.keyPath)
	switch {
	case err == nil:
		if len(master) != masterKeySize {
			return nil, fmt.Errorf("secrets: master key %s has %d bytes, want %d", s.keyPath, len(master), masterKeySize)
		}
	case errors.Is(err, os.ErrNotExist) && create:
		master = make([]byte, masterKeySize)
		if _, err := io.ReadFull(rand.Reader, master); err != nil {
			return nil, fmt.Errorf("secrets: generate master key: %w", err)
		}
		if err := writeFile(s.keyPath, master); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("secrets: read master key: %w", err)
	}
	return deriveKey(master)
}

// writeFile writes data with owner-only permissions via a temp file and rename.
func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("secrets: create dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("secrets: write: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("secrets: write: %w", err)
	}
	return nil
}
