package compaction

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/szaher/contextd/internal/namespace"
	"github.com/szaher/contextd/internal/telemetry"
)

// Report summarizes one sweep.
type Report struct {
	RunID    string
	Started  time.Time
	Finished time.Time
	Results  []Result

	// Err is set when conversations could not be discovered at all.
	Err error
}

// Count returns how many results have status s.
func (r *Report) Count(s Status) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == s {
			n++
		}
	}
	return n
}

// Failed returns the results that failed.
func (r *Report) Failed() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Status == StatusFailed {
			out = append(out, res)
		}
	}
	return out
}

// Result returns the result for key, if it was attempted.
func (r *Report) Result(key namespace.Key) (Result, bool) {
	for _, res := range r.Results {
		if res.Key == key {
			return res, true
		}
	}
	return Result{}, false
}

// Sweep discovers every conversation and compacts each one. A failure in one
// conversation is recorded in the report and never stops the others. When
// ctx ends, conversations not yet started are left alone.
func (c *Compactor) Sweep(ctx context.Context) *Report {
	if telemetry.RunID(ctx) == "" {
		ctx = telemetry.WithRunID(ctx, "")
	}
	report := &Report{RunID: telemetry.RunID(ctx), Started: c.now()}
	log := c.logger.With("run_id", report.RunID)

	keys, err := c.logs.Resolver().Discover()
	if err != nil {
		report.Err = fmt.Errorf("sweep: %w", err)
		report.Finished = c.now()
		log.Error("sweep aborted", "error", err)
		return report
	}
	log.Info("sweep started", "conversations", len(keys))

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(c.concurrency)

	for _, key := range keys {
		if ctx.Err() != nil {
			log.Warn("sweep interrupted", "error", ctx.Err())
			break
		}
		g.Go(func() error {
			res := c.Compact(ctx, key)
			mu.Lock()
			report.Results = append(report.Results, res)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(report.Results, func(i, j int) bool {
		a, b := report.Results[i].Key, report.Results[j].Key
		if a.TenantID != b.TenantID {
			return a.TenantID < b.TenantID
		}
		return a.ConversationID < b.ConversationID
	})

	report.Finished = c.now()
	duration := report.Finished.Sub(report.Started)
	if c.metrics != nil {
		c.metrics.RecordSweep(duration, report.Finished)
	}
	log.Info("sweep finished",
		"duration", duration,
		"compacted", report.Count(StatusCompacted),
		"skipped", report.Count(StatusSkipped),
		"failed", report.Count(StatusFailed),
	)
	return report
}
