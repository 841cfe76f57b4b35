package models

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
)

func TestEnsureDownloadsOnce(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/ggml-tiny.en.bin" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("fake-model-bytes"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	var progress bytes.Buffer
	s := NewStore(filepath.Join(dir, "models"))
	s.BaseURL = srv.URL
	s.Progress = &progress

	path, err := s.Ensure(context.Background(), "tiny.en")
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if path != filepath.Join(dir, "models", "ggml-tiny.en.bin") {
		t.Errorf("path = %q", path)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "fake-model-bytes" {
		t.Errorf("model file = %q, %v", data, err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind")
	}
	if !strings.Contains(progress.String(), "ggml-tiny.en.bin") {
		t.Errorf("progress output = %q", progress.String())
	}

	if _, err := s.Ensure(context.Background(), "tiny.en"); err != nil {
		t.Fatalf("second Ensure() error = %v", err)
	}
	if hits.Load() != 1 {
		t.Errorf("server hits = %d, want 1", hits.Load())
	}
}

func TestEnsureHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	s := NewStore(t.TempDir())
	s.BaseURL = srv.URL
	if _, err := s.Ensure(context.Background(), "missing"); err == nil {
		t.Fatal("Ensure() should fail on 404")
	}
	if _, err := os.Stat(s.Path("missing")); !os.IsNotExist(err) {
		t.Error("no model file should be created on failure")
	}
}

func TestEnsureRejectsBadNames(t *testing.T) {
	s := NewStore(t.TempDir())
	for _, name := range []string{"", "../base", "a/b", `a\b`} {
		if _, err := s.Ensure(context.Background(), name); !errors.Is(err, ErrInvalidModel) {
			t.Errorf("Ensure(%q) error = %v, want ErrInvalidModel", name, err)
		}
	}
}

func TestList(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"ggml-small.bin", "ggml-base.en.bin", "notes.txt", "ggml-x.bin.tmp"} {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	got, err := NewStore(dir).List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 2 || got[0].Name != "base.en" || got[1].Name != "small" {
		t.Errorf("List() = %+v", got)
	}

	none, err := NewStore(filepath.Join(dir, "absent")).List()
	if err != nil || len(none) != 0 {
		t.Errorf("List() on missing dir = %v, %v", none, err)
	}
}

func TestProgressWriter(t *testing.T) {
	var sink, out bytes.Buffer
	pw := &progressWriter{
		writer: &sink,
		out:    &out,
		total:  100,
		label:  "test",
	}

	data := make([]byte, 50)
	n, err := pw.Write(data)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if n != 50 {
		t.Errorf("Write() n = %d, want 50", n)
	}
	if pw.written != 50 {
		t.Errorf("written = %d, want 50", pw.written)
	}
	if !strings.Contains(out.String(), "(50%)") {
		t.Errorf("progress = %q", out.String())
	}
}
