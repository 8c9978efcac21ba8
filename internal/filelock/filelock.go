// Package filelock provides exclusive advisory locks scoped to a single file.
//
// Locks are taken with flock(2) on an open file descriptor, so two
// descriptors for the same file exclude each other even inside one process,
// while locks on different files never interact.
package filelock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
)

// ErrLocked matches every failure to acquire a lock in time.
var ErrLocked = errors.New("resource locked")

// Config controls how long Lock waits for a busy file.
type Config struct {
	// Timeout is the maximum time to wait for the lock. Zero uses the default.
	Timeout time.Duration

	// RetryInterval is the initial pause between attempts. It doubles up to
	// maxRetryInterval. Zero uses the default.
	RetryInterval time.Duration
}

const (
	defaultTimeout       = 30 * time.Second
	defaultRetryInterval = 5 * time.Millisecond
	maxRetryInterval     = 100 * time.Millisecond
)

// DefaultConfig returns the default lock configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:       defaultTimeout,
		RetryInterval: defaultRetryInterval,
	}
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = defaultRetryInterval
	}
	return c
}

// LockError reports a lock that could not be acquired.
type LockError struct {
	Path   string
	Waited time.Duration
	Err    error
}

func (e *LockError) Error() string {
	return fmt.Sprintf("lock %s: not acquired after %s: %v", e.Path, e.Waited.Round(time.Millisecond), e.Err)
}

// Unwrap exposes both ErrLocked and the underlying cause.
func (e *LockError) Unwrap() []error {
	return []error{ErrLocked, e.Err}
}

// Lock acquires an exclusive lock on f, retrying while another holder has
// it. It gives up with a *LockError when cfg.Timeout elapses or ctx ends.
// Errors other than contention are returned immediately.
func Lock(ctx context.Context, f *os.File, cfg Config) error {
	cfg = cfg.withDefaults()
	start := time.Now()
	deadline := start.Add(cfg.Timeout)
	interval := cfg.RetryInterval

	for {
		busy, err := tryLock(f)
		if err != nil {
			return fmt.Errorf("lock %s: %w", f.Name(), err)
		}
		if !busy {
			return nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return &LockError{Path: f.Name(), Waited: time.Since(start), Err: context.DeadlineExceeded}
		}
		wait := min(interval, remaining)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return &LockError{Path: f.Name(), Waited: time.Since(start), Err: ctx.Err()}
		case <-timer.C:
		}
		interval = min(interval*2, maxRetryInterval)
	}
}

// Unlock releases a lock taken with Lock. Closing f also releases it.
func Unlock(f *os.File) error {
	if err := unlock(f); err != nil {
		return fmt.Errorf("unlock %s: %w", f.Name(), err)
	}
	return nil
}

// Handle is a lock held on a dedicated lock file.
type Handle struct {
	f *os.File
}

// LockPath opens path, creating it if needed, and locks it. The file only
// serves as a lock; callers keep their data elsewhere.
func LockPath(ctx context.Context, path string, cfg Config) (*Handle, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := Lock(ctx, f, cfg); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Handle{f: f}, nil
}

// Release unlocks and closes the lock file. The file is left in place so
// that waiters holding a descriptor keep locking the same inode.
func (h *Handle) Release() error {
	uerr := unlock(h.f)
	cerr := h.f.Close()
	if uerr != nil {
		return fmt.Errorf("unlock %s: %w", h.f.Name(), uerr)
	}
	return cerr
}
