// Package compaction folds each conversation's live log into its archive.
//
// A compaction of one conversation runs in this order:
//
//  1. snapshot the live log and write the snapshot to current.txt.bak
//  2. summarize the snapshot with the conversation's system prompt
//  3. append the summary to the archive
//  4. drop the snapshot bytes from the head of the live log
//
// The archive is durable before the live log shrinks, so a crash between
// steps can duplicate context but never lose it. Any failure leaves the live
// log as it was and keeps the backup file for operators.
package compaction

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/szaher/contextd/internal/namespace"
	"github.com/szaher/contextd/internal/store"
	"github.com/szaher/contextd/internal/summarizer"
	"github.com/szaher/contextd/internal/telemetry"
)

// Status is the outcome of compacting one conversation.
type Status string

const (
	StatusSkipped   Status = "skipped"
	StatusCompacted Status = "compacted"
	StatusFailed    Status = "failed"
)

// Result describes one conversation's compaction attempt.
type Result struct {
	Key        namespace.Key
	Status     Status
	LiveBytes  int
	BackupPath string
	Duration   time.Duration
	Err        error
}

// Compactor compacts conversations one at a time per key.
type Compactor struct {
	logs        *store.LogStore
	archive     *store.ArchiveStore
	summarizer  summarizer.Summarizer
	instruction string
	concurrency int
	logger      *slog.Logger
	metrics     *telemetry.Metrics
	now         func() time.Time

	flight singleflight.Group
}

// Option configures a Compactor.
type Option func(*Compactor)

// WithLogger sets the logger. The default discards output.
func WithLogger(l *slog.Logger) Option {
	return func(c *Compactor) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics records every attempt in m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Compactor) { c.metrics = m }
}

// WithInstruction overrides summarizer.CompactionInstruction.
func WithInstruction(instruction string) Option {
	return func(c *Compactor) {
		if instruction != "" {
			c.instruction = instruction
		}
	}
}

// WithConcurrency sets how many conversations a sweep compacts at once.
func WithConcurrency(n int) Option {
	return func(c *Compactor) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// NewCompactor creates a compactor over the given stores and summarizer.
func NewCompactor(logs *store.LogStore, archive *store.ArchiveStore, s summarizer.Summarizer, opts ...Option) *Compactor {
	c := &Compactor{
		logs:        logs,
		archive:     archive,
		summarizer:  s,
		instruction: summarizer.CompactionInstruction,
		concurrency: 1,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compact runs one compaction for key. Concurrent calls for the same key
// share a single attempt.
func (c *Compactor) Compact(ctx context.Context, key namespace.Key) Result {
	v, _, _ := c.flight.Do(key.String(), func() (interface{}, error) {
		return c.compact(ctx, key), nil
	})
	return v.(Result)
}

func (c *Compactor) compact(ctx context.Context, key namespace.Key) (res Result) {
	log := telemetry.ConversationLogger(c.logger, ctx, key)
	start := c.now()
	res.Key = key

	defer func() {
		res.Duration = c.now().Sub(start)
		if c.metrics != nil {
			c.metrics.RecordCompaction(string(res.Status), res.Duration, res.LiveBytes)
		}
		switch res.Status {
		case StatusSkipped:
			log.Debug("compaction skipped, live log empty")
		case StatusCompacted:
			log.Info("compaction completed", "live_bytes", res.LiveBytes, "duration", res.Duration)
		case StatusFailed:
			attrs := []any{"error", res.Err, "backup", res.BackupPath}
			var se *summarizer.Error
			if errors.As(res.Err, &se) && se.Diagnostic != "" {
				attrs = append(attrs, "diagnostic", se.Diagnostic)
			}
			log.Error("compaction failed", attrs...)
		}
	}()

	fail := func(err error) Result {
		res.Status = StatusFailed
		res.Err = err
		return res
	}

	snap, err := c.logs.Snapshot(ctx, key)
	if err != nil {
		return fail(fmt.Errorf("snapshot live log: %w", err))
	}
	if snap.Empty() {
		res.Status = StatusSkipped
		return res
	}
	res.LiveBytes = len(snap.Data)
	res.BackupPath = snap.BackupPath

	prompt, err := c.logs.SystemPrompt(ctx, key)
	if err != nil {
		return fail(fmt.Errorf("read system prompt: %w", err))
	}

	summary, err := c.summarizer.Summarize(ctx, summarizer.Request{
		SystemPrompt: prompt,
		Instruction:  c.instruction,
		Documents: []summarizer.Document{{
			Name:    namespace.ResourceCurrent.Filename(),
			Content: string(snap.Data),
		}},
	})
	if err != nil {
		return fail(err)
	}

	if err := c.archive.Append(ctx, key, summary); err != nil {
		return fail(fmt.Errorf("append archive: %w", err))
	}
	if err := c.logs.DiscardLive(ctx, key, snap); err != nil {
		return fail(fmt.Errorf("discard compacted live log: %w", err))
	}

	if err := os.Remove(snap.BackupPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("remove backup", "path", snap.BackupPath, "error", err)
	} else {
		res.BackupPath = ""
	}

	res.Status = StatusCompacted
	return res
}
