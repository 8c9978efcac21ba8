package store

import (
	"context"
	"fmt"

	"github.com/szaher/contextd/internal/namespace"
)

// Bundle is everything a model needs to answer in one conversation.
type Bundle struct {
	Key          namespace.Key
	SystemPrompt string
	Archive      string
	Live         string
}

// LoadBundle reads the system prompt, archive and live log of key.
func LoadBundle(ctx context.Context, logs *LogStore, archive *ArchiveStore, key namespace.Key) (*Bundle, error) {
	prompt, err := logs.SystemPrompt(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load system prompt: %w", err)
	}
	arch, err := archive.Read(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load archive: %w", err)
	}
	live, err := logs.ReadLive(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load live log: %w", err)
	}
	return &Bundle{
		Key:          key,
		SystemPrompt: prompt,
		Archive:      arch,
		Live:         live,
	}, nil
}
