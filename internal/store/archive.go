package store

import (
	"context"
	"strings"

	"github.com/szaher/contextd/internal/namespace"
)

// ArchiveStore manages the append-only summary archive of each conversation.
type ArchiveStore struct {
	resolver *namespace.Resolver
	opts     options
}

// NewArchiveStore creates an archive store over the given resolver.
func NewArchiveStore(r *namespace.Resolver, opts ...Option) *ArchiveStore {
	return &ArchiveStore{resolver: r, opts: buildOptions(opts)}
}

// Append adds block to the archive, preceded by a blank separator line.
// Surrounding whitespace in block is dropped.
func (a *ArchiveStore) Append(ctx context.Context, key namespace.Key, block string) error {
	path, err := a.resolver.Resolve(key, namespace.ResourceArchive)
	if err != nil {
		return err
	}
	data := "\n" + strings.TrimSpace(block) + "\n"
	return appendLocked(ctx, path, []byte(data), a.opts.lock)
}

// Read returns the archive. A conversation with no archive reads as empty.
func (a *ArchiveStore) Read(_ context.Context, key namespace.Key) (string, error) {
	path, err := a.resolver.Path(key, namespace.ResourceArchive)
	if err != nil {
		return "", err
	}
	data, err := readResource(path)
	return string(data), err
}

// Clear truncates the archive. Only explicit user action should call it.
func (a *ArchiveStore) Clear(ctx context.Context, key namespace.Key) error {
	path, err := a.resolver.Path(key, namespace.ResourceArchive)
	if err != nil {
		return err
	}
	return truncateLocked(ctx, path, a.opts.lock)
}
