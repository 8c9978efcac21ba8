package store

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"

	"github.com/szaher/contextd/internal/namespace"
)

// BackupSuffix is appended to the live log path to name the pre-compaction
// snapshot.
const BackupSuffix = ".bak"

// LogStore manages the live log and system prompt of each conversation.
type LogStore struct {
	resolver *namespace.Resolver
	opts     options
}

// NewLogStore creates a log store over the given resolver.
func NewLogStore(r *namespace.Resolver, opts ...Option) *LogStore {
	return &LogStore{resolver: r, opts: buildOptions(opts)}
}

// Resolver returns the namespace resolver backing the store.
func (s *LogStore) Resolver() *namespace.Resolver {
	return s.resolver
}

// AppendLive appends entry to the conversation's live log.
func (s *LogStore) AppendLive(ctx context.Context, key namespace.Key, entry Entry) error {
	path, err := s.resolver.Resolve(key, namespace.ResourceCurrent)
	if err != nil {
		return err
	}
	return appendLocked(ctx, path, []byte(entry.Line()), s.opts.lock)
}

// ReadLive returns the live log. A conversation with no log reads as empty.
func (s *LogStore) ReadLive(_ context.Context, key namespace.Key) (string, error) {
	path, err := s.resolver.Path(key, namespace.ResourceCurrent)
	if err != nil {
		return "", err
	}
	data, err := readResource(path)
	return string(data), err
}

// ClearLive truncates the live log to empty.
func (s *LogStore) ClearLive(ctx context.Context, key namespace.Key) error {
	path, err := s.resolver.Path(key, namespace.ResourceCurrent)
	if err != nil {
		return err
	}
	return truncateLocked(ctx, path, s.opts.lock)
}

// Snapshot is a copy of the live log taken before compaction.
type Snapshot struct {
	Data       []byte
	BackupPath string
}

// Empty reports whether there was nothing to snapshot.
func (s Snapshot) Empty() bool {
	return len(s.Data) == 0
}

// Snapshot reads the live log under its lock and, when it is non-empty,
// writes the same bytes to the backup file next to it. An empty log yields
// an empty Snapshot and no backup.
func (s *LogStore) Snapshot(ctx context.Context, key namespace.Key) (Snapshot, error) {
	path, err := s.resolver.Path(key, namespace.ResourceCurrent)
	if err != nil {
		return Snapshot{}, err
	}
	data, err := s.readLocked(ctx, path)
	if err != nil {
		return Snapshot{}, err
	}
	if len(data) == 0 {
		return Snapshot{}, nil
	}

	backup := path + BackupSuffix
	if err := writeAtomic(backup, data); err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Data: data, BackupPath: backup}, nil
}

// readLocked reads path while holding its lock so an append in flight is
// either wholly included or absent. A missing file reads as nil.
func (s *LogStore) readLocked(ctx context.Context, path string) ([]byte, error) {
	f, err := openLocked(ctx, path, os.O_RDONLY, s.opts.lock)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer release(f)

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, ioErr("read", path, err)
	}
	return data, nil
}

// DiscardLive removes the snapshot's bytes from the head of the live log
// under its lock. Lines appended after the snapshot was taken are kept. If
// the log no longer begins with the snapshot it is left untouched and
// ErrLiveChanged is returned.
//
// The remainder is written to a new file that is renamed over the log, so a
// reader or a crash sees either the old log or the new one.
func (s *LogStore) DiscardLive(ctx context.Context, key namespace.Key, snap Snapshot) error {
	if snap.Empty() {
		return nil
	}
	path, err := s.resolver.Path(key, namespace.ResourceCurrent)
	if err != nil {
		return err
	}

	f, err := openLocked(ctx, path, os.O_RDONLY, s.opts.lock)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrLiveChanged
		}
		return err
	}
	defer release(f)

	current, err := io.ReadAll(f)
	if err != nil {
		return ioErr("read", path, err)
	}
	if !bytes.HasPrefix(current, snap.Data) {
		return ErrLiveChanged
	}
	return writeAtomic(path, current[len(snap.Data):])
}
