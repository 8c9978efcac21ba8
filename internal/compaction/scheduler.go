package compaction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/szaher/contextd/internal/telemetry"
)

// ErrSweepRunning is returned by RunNow while another sweep is in progress.
var ErrSweepRunning = errors.New("sweep already running")

// TimeOfDay is a wall-clock hour and minute.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM" in 24-hour form.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return TimeOfDay{}, fmt.Errorf("time of day %q: want HH:MM", s)
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return TimeOfDay{}, fmt.Errorf("time of day %q: hour must be 0-23", s)
	}
	minute, err := strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 || len(m) != 2 {
		return TimeOfDay{}, fmt.Errorf("time of day %q: minute must be 00-59", s)
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// CronSpec returns the five-field cron expression firing daily at t.
func (t TimeOfDay) CronSpec() string {
	return fmt.Sprintf("%d %d * * *", t.Minute, t.Hour)
}

// State is the scheduler's current activity.
type State int32

const (
	StateIdle State = iota
	StateRunning
)

func (s State) String() string {
	if s == StateRunning {
		return "running"
	}
	return "idle"
}

// Scheduler runs a sweep once a day at a fixed local time.
type Scheduler struct {
	compactor *Compactor
	logger    *slog.Logger
	location  *time.Location
	onReport  func(*Report)

	cron  *cron.Cron
	state atomic.Int32

	mu       sync.Mutex
	at       TimeOfDay
	schedule cron.Schedule
	entry    cron.EntryID
	ctx      context.Context
	cancel   context.CancelFunc
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithLocation sets the clock's time zone. The default is time.Local.
func WithLocation(loc *time.Location) SchedulerOption {
	return func(s *Scheduler) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithReportHandler is called with the report of every scheduled sweep.
func WithReportHandler(fn func(*Report)) SchedulerOption {
	return func(s *Scheduler) { s.onReport = fn }
}

// NewScheduler creates a scheduler firing daily at at. Call Start to begin.
func NewScheduler(c *Compactor, at TimeOfDay, opts ...SchedulerOption) (*Scheduler, error) {
	s := &Scheduler{
		compactor: c,
		logger:    c.logger,
		location:  time.Local,
	}
	for _, opt := range opts {
		opt(s)
	}

	cl := cronLogger{s.logger}
	s.cron = cron.New(
		cron.WithLocation(s.location),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if err := s.Reschedule(at); err != nil {
		return nil, err
	}
	return s, nil
}

// Start begins firing sweeps in the background. Sweeps run with a context
// derived from ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("compaction scheduler started", "at", s.At().String(), "next", s.Next())
}

// Stop stops firing new sweeps, cancels a running one and waits for it to
// return or for ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reschedule moves the daily sweep to a new time of day.
func (s *Scheduler) Reschedule(at TimeOfDay) error {
	spec := at.CronSpec()
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("schedule %s: %w", at, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entry != 0 {
		s.cron.Remove(s.entry)
	}
	id := s.cron.Schedule(schedule, cron.FuncJob(s.runScheduled))
	s.entry = id
	s.at = at
	s.schedule = schedule
	return nil
}

// At returns the configured time of day.
func (s *Scheduler) At() TimeOfDay {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.at
}

// Next returns when the next sweep will fire.
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schedule.Next(time.Now().In(s.location))
}

// State reports whether a sweep is running.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// RunNow runs a sweep immediately in the caller's goroutine. It refuses to
// overlap with a sweep already in progress.
func (s *Scheduler) RunNow(ctx context.Context) (*Report, error) {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return nil, ErrSweepRunning
	}
	defer s.state.Store(int32(StateIdle))
	return s.compactor.Sweep(ctx), nil
}

func (s *Scheduler) runScheduled() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	report, err := s.RunNow(telemetry.WithRunID(ctx, ""))
	if err != nil {
		s.logger.Warn("scheduled sweep skipped", "error", err)
		return
	}
	if s.onReport != nil {
		s.onReport(report)
	}
}

// cronLogger adapts slog to the cron.Logger interface.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
