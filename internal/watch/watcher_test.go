package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func collectBatch(t *testing.T, w *Watcher, timeout time.Duration) []Change {
	t.Helper()
	select {
	case batch := <-w.Changes():
		return batch
	case <-time.After(timeout):
		t.Fatal("timed out waiting for change batch")
		return nil
	}
}

func TestWatcherDetectsCreateAndModify(t *testing.T) {
	dir := t.TempDir()

	w, err := New(dir, nil, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	target := filepath.Join(dir, "main.go")
	if err := os.WriteFile(target, []byte("package main\n"), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	batch := collectBatch(t, w, 3*time.Second)
	found := false
	for _, c := range batch {
		if c.Path == "main.go" && c.Op == OpCreate {
			found = true
		}
	}
	if !found {
		t.Errorf("expected create for main.go, got %+v", batch)
	}
}

func TestWatcherDebouncesRapidWrites(t *testing.T) {
	dir := t.TempDir()

	w, err := New(dir, nil, 150*time.Millisecond)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	target := filepath.Join(dir, "notes.txt")
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(target, []byte("draft"), 0644); err != nil {
			t.Fatalf("write failed: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	batch := collectBatch(t, w, 3*time.Second)
	count := 0
	for _, c := range batch {
		if c.Path == "notes.txt" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected single debounced change, got %d in %+v", count, batch)
	}
}

func TestWatcherIgnoresPatterns(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "node_modules", "pkg"), 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}

	w, err := New(dir, []string{"*.tmp"}, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dir, "scratch.tmp"), []byte("x"), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "node_modules", "pkg", "index.js"), []byte("x"), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "kept.go"), []byte("package kept\n"), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	batch := collectBatch(t, w, 3*time.Second)
	for _, c := range batch {
		if c.Path == "scratch.tmp" {
			t.Errorf("ignored pattern *.tmp leaked through: %+v", c)
		}
		if filepath.Dir(c.Path) != "." {
			t.Errorf("ignored directory leaked through: %+v", c)
		}
	}

	stats := w.GetStats()
	if stats.Ignored == 0 {
		t.Error("expected ignored counter to increment")
	}
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	dir := t.TempDir()

	w, err := New(dir, nil, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	w.Stop()
	w.Stop() // Must not panic or block

	if w.IsWatching() {
		t.Error("expected IsWatching false after Stop")
	}
}

func TestWatcherFailedStartDoesNotBlockStop(t *testing.T) {
	w, err := New(filepath.Join(t.TempDir(), "does-not-exist"), nil, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := w.Start(context.Background()); err == nil {
		t.Fatal("expected Start to fail on a missing root")
	}
	if w.IsWatching() {
		t.Error("expected IsWatching false after failed Start")
	}

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked after failed Start")
	}
}

func TestWatcherPicksUpNewDirectories(t *testing.T) {
	dir := t.TempDir()

	w, err := New(dir, nil, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	sub := filepath.Join(dir, "pkg")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	// Give the event loop a moment to register the new directory.
	time.Sleep(300 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(sub, "util.go"), []byte("package pkg\n"), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case batch := <-w.Changes():
			for _, c := range batch {
				if c.Path == "pkg/util.go" {
					return
				}
			}
		case <-deadline:
			t.Fatal("never saw change inside new directory")
		}
	}
}
