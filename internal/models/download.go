// Package models fetches ggml whisper models for the in-process engine.
package models

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// DefaultBaseURL hosts the ggml conversions of the whisper models.
const DefaultBaseURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main"

// ErrInvalidModel is returned for model ids that cannot name a file.
var ErrInvalidModel = errors.New("invalid model name")

// Installed is a model present in the models directory.
type Installed struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// Store manages the models directory.
type Store struct {
	Dir     string
	BaseURL string
	Client  *http.Client
	// Progress receives a human progress line while downloading; nil is silent.
	Progress io.Writer

	mu sync.Mutex // one download at a time
}

// NewStore creates a Store for dir.
func NewStore(dir string) *Store {
	return &Store{Dir: dir, BaseURL: DefaultBaseURL, Client: http.DefaultClient}
}

// FileName maps a model id such as "base.en" to its ggml file name.
func FileName(model string) string {
	return "ggml-" + model + ".bin"
}

// Path returns where model lives in the store.
func (s *Store) Path(model string) string {
	return filepath.Join(s.Dir, FileName(model))
}

// Ensure returns the path of model, downloading it first when missing.
func (s *Store) Ensure(ctx context.Context, model string) (string, error) {
	if model == "" || strings.ContainsAny(model, `/\`) || strings.Contains(model, "..") {
		return "", fmt.Errorf("models: %q: %w", model, ErrInvalidModel)
	}

	destPath := s.Path(model)
	if info, err := os.Stat(destPath); err == nil && info.Size() > 0 {
		return destPath, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another caller may have finished the download while we waited.
	if info, err := os.Stat(destPath); err == nil && info.Size() > 0 {
		return destPath, nil
	}

	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("models: creating models dir: %w", err)
	}

	url := strings.TrimRight(s.BaseURL, "/") + "/" + FileName(model)
	slog.Info("[Models] downloading whisper model", "model", model, "url", url, "dest", destPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("models: create request: %w", err)
	}
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("models: downloading %s: %w", model, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("models: download %s failed: HTTP %d", model, resp.StatusCode)
	}

	// Write to temp file first, then rename (atomic)
	tmpPath := destPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("models: creating temp file: %w", err)
	}

	var w io.Writer = f
	if s.Progress != nil {
		w = &progressWriter{writer: f, out: s.Progress, total: resp.ContentLength, label: FileName(model)}
	}

	written, err := io.Copy(w, resp.Body)
	f.Close()
	if err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("models: writing model file: %w", err)
	}
	if s.Progress != nil {
		fmt.Fprintln(s.Progress)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("models: moving model file: %w", err)
	}

	slog.Info("[Models] model ready", "model", model, "mb", fmt.Sprintf("%.1f", float64(written)/(1024*1024)))
	return destPath, nil
}

// List returns the installed ggml models sorted by name.
func (s *Store) List() ([]Installed, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("models: read dir: %w", err)
	}

	var out []Installed
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "ggml-") || !strings.HasSuffix(name, ".bin") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, Installed{
			Name: strings.TrimSuffix(strings.TrimPrefix(name, "ggml-"), ".bin"),
			Path: filepath.Join(s.Dir, name),
			Size: info.Size(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// progressWriter wraps an io.Writer and prints download progress.
type progressWriter struct {
	writer  io.Writer
	out     io.Writer
	total   int64
	written int64
	label   string
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.writer.Write(p)
	pw.written += int64(n)
	if pw.total > 0 {
		pct := float64(pw.written) / float64(pw.total) * 100
		fmt.Fprintf(pw.out, "\r  %s: %.1f MB / %.1f MB (%.0f%%)",
			pw.label,
			float64(pw.written)/(1024*1024),
			float64(pw.total)/(1024*1024),
			pct)
	} else {
		fmt.Fprintf(pw.out, "\r  %s: %.1f MB downloaded",
			pw.label,
			float64(pw.written)/(1024*1024))
	}
	return n, err
}
