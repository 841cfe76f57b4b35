package modes

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherReportsChanges(t *testing.T) {
	dir := t.TempDir()
	changed := make(chan struct{}, 4)

	w := NewWatcher(dir, 20*time.Millisecond, func() {
		changed <- struct{}{}
	})
	if err := w.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop()

	// Non-JSON files are ignored.
	if err := os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	select {
	case <-changed:
		t.Fatal("onChange fired for a non-JSON file")
	case <-time.After(150 * time.Millisecond):
	}

	if err := os.WriteFile(filepath.Join(dir, "a.json"), []byte(`{"key":"a","name":"A"}`), 0644); err != nil {
		t.Fatal(err)
	}
	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("onChange not called after writing a mode file")
	}
}

func TestWatcherStopIdempotent(t *testing.T) {
	w := NewWatcher(t.TempDir(), 0, nil)
	if err := w.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	w.Stop()
	w.Stop()
}

func TestWatcherMissingDir(t *testing.T) {
	w := NewWatcher(filepath.Join(t.TempDir(), "absent"), 0, nil)
	if err := w.Start(); err == nil {
		w.Stop()
		t.Error("Start() should fail for a missing directory")
	}
}
