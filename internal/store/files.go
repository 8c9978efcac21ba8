package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/szaher/contextd/internal/filelock"
)

// readResource returns the contents of path, or nil when it does not exist.
// Reads never take the lock.
func readResource(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, ioErr("read", path, err)
	}
	return data, nil
}

// openLocked opens path and takes its exclusive lock. A writer that replaced
// the file by rename while we waited leaves us holding the old inode, so the
// descriptor is checked against the path and reopened until they match.
func openLocked(ctx context.Context, path string, flag int, cfg filelock.Config) (*os.File, error) {
	for {
		f, err := os.OpenFile(path, flag, 0o644)
		if err != nil {
			return nil, ioErr("open", path, err)
		}
		if err := filelock.Lock(ctx, f, cfg); err != nil {
			_ = f.Close()
			return nil, err
		}
		same, err := isCurrent(f, path)
		if err != nil {
			release(f)
			return nil, ioErr("stat", path, err)
		}
		if same {
			return f, nil
		}
		release(f)
	}
}

// isCurrent reports whether f is still the file named by path.
func isCurrent(f *os.File, path string) (bool, error) {
	held, err := f.Stat()
	if err != nil {
		return false, err
	}
	named, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return os.SameFile(held, named), nil
}

func release(f *os.File) {
	_ = filelock.Unlock(f)
	_ = f.Close()
}

// appendLocked appends data with a single write while holding the file's
// exclusive lock, and syncs before releasing it. data must already hold the
// complete record so readers never see a partial one.
func appendLocked(ctx context.Context, path string, data []byte, cfg filelock.Config) error {
	f, err := openLocked(ctx, path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, cfg)
	if err != nil {
		return err
	}
	defer release(f)

	if _, err := f.Write(data); err != nil {
		return ioErr("append", path, err)
	}
	if err := f.Sync(); err != nil {
		return ioErr("sync", path, err)
	}
	return nil
}

// truncateLocked empties path under its lock. A missing file is already empty.
func truncateLocked(ctx context.Context, path string, cfg filelock.Config) error {
	f, err := openLocked(ctx, path, os.O_WRONLY, cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer release(f)

	if err := f.Truncate(0); err != nil {
		return ioErr("truncate", path, err)
	}
	if err := f.Sync(); err != nil {
		return ioErr("sync", path, err)
	}
	return nil
}

// writeAtomic replaces path with data via a synced temp file and rename, so
// readers see either the old or the new contents.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return ioErr("create temp", path, err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return ioErr("write", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return ioErr("sync", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return ioErr("close", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return ioErr("chmod", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return ioErr("rename", path, err)
	}
	return nil
}
