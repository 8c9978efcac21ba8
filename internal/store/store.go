// Package store persists per-conversation context on the filesystem.
//
// LogStore owns the live log and the system prompt of each conversation.
// ArchiveStore owns the compacted summaries. Both re-read the filesystem on
// every call; nothing is cached in memory.
//
// Every mutation holds an exclusive lock scoped to the one resource being
// changed, so writers to different conversations never wait on each other.
// Reads take no lock.
package store

import (
	"github.com/szaher/contextd/internal/filelock"
	"github.com/szaher/contextd/internal/namespace"
)

// DefaultSystemPrompt is used for conversations that never set one.
const DefaultSystemPrompt = "You are a helpful assistant."

// Option configures a LogStore or ArchiveStore.
type Option func(*options)

type options struct {
	lock          filelock.Config
	defaultPrompt string
}

// WithLockConfig sets how long mutations wait for a busy resource.
func WithLockConfig(cfg filelock.Config) Option {
	return func(o *options) { o.lock = cfg }
}

// WithDefaultSystemPrompt overrides DefaultSystemPrompt.
func WithDefaultSystemPrompt(prompt string) Option {
	return func(o *options) {
		if prompt != "" {
			o.defaultPrompt = prompt
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		lock:          filelock.DefaultConfig(),
		defaultPrompt: DefaultSystemPrompt,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// ContextFiles returns the archive and live log locations for key, in the
// order a file-based summarizer should read them.
func ContextFiles(r *namespace.Resolver, key namespace.Key) ([]string, error) {
	archive, err := r.Resolve(key, namespace.ResourceArchive)
	if err != nil {
		return nil, err
	}
	current, err := r.Resolve(key, namespace.ResourceCurrent)
	if err != nil {
		return nil, err
	}
	return []string{archive, current}, nil
}
