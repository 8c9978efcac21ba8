package store

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/szaher/contextd/internal/filelock"
	"github.com/szaher/contextd/internal/namespace"
)

const lockSuffix = ".lock"

// DefaultSystemPrompt returns the prompt used when a conversation has none.
func (s *LogStore) DefaultSystemPrompt() string {
	return s.opts.defaultPrompt
}

// SystemPrompt returns the conversation's system prompt, or the default when
// none is stored. A blank prompt counts as none.
func (s *LogStore) SystemPrompt(_ context.Context, key namespace.Key) (string, error) {
	path, err := s.resolver.Path(key, namespace.ResourceSystem)
	if err != nil {
		return "", err
	}
	data, err := readResource(path)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(string(data)) == "" {
		return s.opts.defaultPrompt, nil
	}
	return string(data), nil
}

// SetSystemPrompt replaces the conversation's system prompt with text.
func (s *LogStore) SetSystemPrompt(ctx context.Context, key namespace.Key, text string) error {
	path, err := s.resolver.Resolve(key, namespace.ResourceSystem)
	if err != nil {
		return err
	}

	h, err := filelock.LockPath(ctx, path+lockSuffix, s.opts.lock)
	if err != nil {
		return err
	}
	defer func() { _ = h.Release() }()

	return writeAtomic(path, []byte(text))
}

// EnsureSystemPrompt writes the default prompt if the conversation has no
// system prompt file yet, and returns the path of that file.
func (s *LogStore) EnsureSystemPrompt(ctx context.Context, key namespace.Key) (string, error) {
	path, err := s.resolver.Resolve(key, namespace.ResourceSystem)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err == nil {
		return path, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", ioErr("stat", path, err)
	}

	h, err := filelock.LockPath(ctx, path+lockSuffix, s.opts.lock)
	if err != nil {
		return "", err
	}
	defer func() { _ = h.Release() }()

	// Another writer may have won the race while we waited.
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	if err := writeAtomic(path, []byte(s.opts.defaultPrompt)); err != nil {
		return "", err
	}
	return path, nil
}
