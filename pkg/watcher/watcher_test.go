package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"
)

func TestWatcherFiresOnSubjectWrite(t *testing.T) {
	dir := t.TempDir()
	subject := filepath.Join(dir, "model.usda")
	if err := os.WriteFile(subject, []byte("#usda 1.0\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := New(subject, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	fired := make(chan struct{}, 1)
	go w.Run(ctx, func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	}, nil)

	// Give the watch loop a moment to start before touching the file.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(subject, []byte("#usda 1.0\n# changed\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-fired:
	case <-ctx.Done():
		t.Fatal("change callback never fired")
	}
}

func TestWatcherIgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	subject := filepath.Join(dir, "model.usda")
	if err := os.WriteFile(subject, []byte("#usda 1.0\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := New(subject, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	fired := make(chan struct{}, 1)
	go w.Run(ctx, func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	}, nil)

	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, "other.usda"), []byte("#usda 1.0\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-fired:
		t.Fatal("callback fired for an unrelated file")
	case <-ctx.Done():
	}
}

func TestWatcherIgnoresOwnWrites(t *testing.T) {
	dir := t.TempDir()
	subject := filepath.Join(dir, "model.usda")
	if err := os.WriteFile(subject, []byte("#usda 1.0\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := New(subject, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// The callback writes the subject back, the way a regeneration
	// binds thumbnail metadata into the watched layer. That write must
	// not schedule another regeneration.
	var fires atomic.Int32
	go w.Run(ctx, func() {
		n := fires.Add(1)
		content := []byte("#usda 1.0\n# bound " + strconv.Itoa(int(n)) + "\n")
		if err := os.WriteFile(subject, content, 0o644); err != nil {
			t.Error(err)
		}
	}, nil)

	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(subject, []byte("#usda 1.0\n# edited\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	// Long enough for a feedback loop to show up as repeated fires.
	time.Sleep(1500 * time.Millisecond)
	if got := fires.Load(); got != 1 {
		t.Fatalf("one external edit caused %d regenerations, want 1", got)
	}

	// A further external change still fires.
	if err := os.WriteFile(subject, []byte("#usda 1.0\n# edited again\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	deadline := time.After(3 * time.Second)
	for fires.Load() < 2 {
		select {
		case <-deadline:
			t.Fatal("watcher stopped reacting to external edits")
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestWatcherMissingDirectory(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "nope", "model.usda"), time.Millisecond); err == nil {
		t.Fatal("expected an error for a missing directory")
	}
}
