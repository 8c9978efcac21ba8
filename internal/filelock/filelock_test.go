package filelock

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func openTemp(t *testing.T, path string) *os.File {
	t.Helper()
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", cfg.Timeout)
	}
	if cfg.RetryInterval != 5*time.Millisecond {
		t.Errorf("RetryInterval = %v, want 5ms", cfg.RetryInterval)
	}
}

func TestLockUnlock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "res.txt")
	f := openTemp(t, path)

	if err := Lock(context.Background(), f, DefaultConfig()); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if err := Unlock(f); err != nil {
		t.Fatalf("Unlock: %v", err)
	}

	// Relocking through a second descriptor must now succeed immediately.
	g := openTemp(t, path)
	if err := Lock(context.Background(), g, Config{Timeout: 50 * time.Millisecond}); err != nil {
		t.Fatalf("second Lock: %v", err)
	}
}

func TestLockContention(t *testing.T) {
	path := filepath.Join(t.TempDir(), "res.txt")
	holder := openTemp(t, path)
	if err := Lock(context.Background(), holder, DefaultConfig()); err != nil {
		t.Fatalf("holder Lock: %v", err)
	}

	waiter := openTemp(t, path)
	err := Lock(context.Background(), waiter, Config{Timeout: 60 * time.Millisecond})
	if err == nil {
		t.Fatal("expected contention error, got nil")
	}
	if !errors.Is(err, ErrLocked) {
		t.Errorf("errors.Is(err, ErrLocked) = false for %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("errors.Is(err, context.DeadlineExceeded) = false for %v", err)
	}

	var lockErr *LockError
	if !errors.As(err, &lockErr) {
		t.Fatalf("expected *LockError, got %T", err)
	}
	if lockErr.Path != path {
		t.Errorf("Path = %q, want %q", lockErr.Path, path)
	}
	if lockErr.Waited < 50*time.Millisecond {
		t.Errorf("Waited = %v, expected at least the timeout", lockErr.Waited)
	}
}

func TestLockWaitsForRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "res.txt")
	holder := openTemp(t, path)
	if err := Lock(context.Background(), holder, DefaultConfig()); err != nil {
		t.Fatalf("holder Lock: %v", err)
	}

	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = Unlock(holder)
	}()

	waiter := openTemp(t, path)
	if err := Lock(context.Background(), waiter, Config{Timeout: 5 * time.Second}); err != nil {
		t.Fatalf("waiter Lock: %v", err)
	}
}

func TestLockContextCanceled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "res.txt")
	holder := openTemp(t, path)
	if err := Lock(context.Background(), holder, DefaultConfig()); err != nil {
		t.Fatalf("holder Lock: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	waiter := openTemp(t, path)
	err := Lock(ctx, waiter, Config{Timeout: 10 * time.Second})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if !errors.Is(err, ErrLocked) {
		t.Errorf("errors.Is(err, ErrLocked) = false for %v", err)
	}
}

func TestDifferentFilesDoNotContend(t *testing.T) {
	dir := t.TempDir()
	a := openTemp(t, filepath.Join(dir, "a.txt"))
	b := openTemp(t, filepath.Join(dir, "b.txt"))

	if err := Lock(context.Background(), a, DefaultConfig()); err != nil {
		t.Fatalf("Lock a: %v", err)
	}
	if err := Lock(context.Background(), b, Config{Timeout: 20 * time.Millisecond}); err != nil {
		t.Fatalf("Lock b while a is held: %v", err)
	}
}

func TestLockPathRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "system.txt.lock")

	h, err := LockPath(context.Background(), path, DefaultConfig())
	if err != nil {
		t.Fatalf("LockPath: %v", err)
	}

	_, err = LockPath(context.Background(), path, Config{Timeout: 30 * time.Millisecond})
	if !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked while held, got %v", err)
	}

	if err := h.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("lock file should remain after release: %v", err)
	}

	h2, err := LockPath(context.Background(), path, Config{Timeout: 30 * time.Millisecond})
	if err != nil {
		t.Fatalf("LockPath after release: %v", err)
	}
	_ = h2.Release()
}
