package compaction

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/szaher/contextd/internal/summarizer"
	"github.com/szaher/contextd/internal/testutil"
)

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		in      string
		want    TimeOfDay
		wantErr string
	}{
		{in: "03:00", want: TimeOfDay{Hour: 3}},
		{in: "3:05", want: TimeOfDay{Hour: 3, Minute: 5}},
		{in: " 23:59 ", want: TimeOfDay{Hour: 23, Minute: 59}},
		{in: "00:00", want: TimeOfDay{}},
		{in: "24:00", wantErr: "hour"},
		{in: "12:60", wantErr: "minute"},
		{in: "12:5", wantErr: "minute"},
		{in: "noon", wantErr: "HH:MM"},
		{in: "aa:00", wantErr: "hour"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimeOfDay(tt.in)
			if tt.wantErr != "" {
				testutil.AssertErrorContains(t, err, tt.wantErr)
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestTimeOfDayFormatting(t *testing.T) {
	at := TimeOfDay{Hour: 3, Minute: 7}
	if at.String() != "03:07" {
		t.Errorf("String() = %q", at.String())
	}
	if at.CronSpec() != "7 3 * * *" {
		t.Errorf("CronSpec() = %q", at.CronSpec())
	}
}

func TestSchedulerNext(t *testing.T) {
	f := newFixture(t)
	c := NewCompactor(f.logs, f.archive, returning("x"))

	s, err := NewScheduler(c, TimeOfDay{Hour: 3}, WithLocation(time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	next := s.Next()
	if next.Location() != time.UTC || next.Hour() != 3 || next.Minute() != 0 {
		t.Errorf("Next() = %v", next)
	}
	if !next.After(time.Now()) || next.Sub(time.Now()) > 24*time.Hour {
		t.Errorf("Next() = %v is not within the next day", next)
	}

	if err := s.Reschedule(TimeOfDay{Hour: 16, Minute: 30}); err != nil {
		t.Fatal(err)
	}
	next = s.Next()
	if next.Hour() != 16 || next.Minute() != 30 {
		t.Errorf("Next() after reschedule = %v", next)
	}
	if s.At() != (TimeOfDay{Hour: 16, Minute: 30}) {
		t.Errorf("At() = %v", s.At())
	}
	if entries := s.cron.Entries(); len(entries) != 1 {
		t.Errorf("cron has %d entries after reschedule, want 1", len(entries))
	}
}

func TestSchedulerRejectsInvalidTime(t *testing.T) {
	f := newFixture(t)
	c := NewCompactor(f.logs, f.archive, returning("x"))
	_, err := NewScheduler(c, TimeOfDay{Hour: 25})
	testutil.AssertErrorContains(t, err, "schedule")
}

func TestSchedulerRunNow(t *testing.T) {
	f, stub := sweepFixture(t)
	s, err := NewScheduler(NewCompactor(f.logs, f.archive, stub), TimeOfDay{Hour: 3})
	if err != nil {
		t.Fatal(err)
	}

	report, err := s.RunNow(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Count(StatusCompacted) != 1 || len(report.Failed()) != 1 {
		t.Errorf("report = %+v", report.Results)
	}
	if s.State() != StateIdle {
		t.Errorf("State() = %s after run", s.State())
	}
}

func TestSchedulerRefusesOverlap(t *testing.T) {
	f := newFixture(t)
	f.writeLive(t, keyA, "[t1] alice: hi\n")

	entered := make(chan struct{})
	release := make(chan struct{})
	stub := &recorder{fn: func(context.Context, summarizer.Request) (string, error) {
		close(entered)
		<-release
		return "s", nil
	}}
	s, err := NewScheduler(NewCompactor(f.logs, f.archive, stub), TimeOfDay{Hour: 3})
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := s.RunNow(context.Background())
		done <- err
	}()
	<-entered

	if s.State() != StateRunning {
		t.Errorf("State() = %s during sweep", s.State())
	}
	if _, err := s.RunNow(context.Background()); !errors.Is(err, ErrSweepRunning) {
		t.Errorf("second RunNow err = %v, want ErrSweepRunning", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if s.State() != StateIdle {
		t.Errorf("State() = %s after sweep", s.State())
	}
}

func TestSchedulerScheduledRunReports(t *testing.T) {
	f, stub := sweepFixture(t)
	reports := make(chan *Report, 1)
	s, err := NewScheduler(NewCompactor(f.logs, f.archive, stub), TimeOfDay{Hour: 3},
		WithReportHandler(func(r *Report) { reports <- r }))
	if err != nil {
		t.Fatal(err)
	}

	s.Start(context.Background())
	s.runScheduled()

	select {
	case r := <-reports:
		if len(r.Results) != 3 || r.RunID == "" {
			t.Errorf("report = %+v", r)
		}
	default:
		t.Fatal("report handler was not called")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Errorf("Stop: %v", err)
	}
}

func TestSchedulerStopCancelsSweep(t *testing.T) {
	f := newFixture(t)
	f.writeLive(t, keyA, "[t1] alice: hi\n")

	entered := make(chan struct{})
	stub := &recorder{fn: func(ctx context.Context, _ summarizer.Request) (string, error) {
		close(entered)
		<-ctx.Done()
		return "", ctx.Err()
	}}
	s, err := NewScheduler(NewCompactor(f.logs, f.archive, stub), TimeOfDay{Hour: 3})
	if err != nil {
		t.Fatal(err)
	}
	s.Start(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.runScheduled()
	}()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("sweep did not observe cancellation")
	}
	if got := f.live(t, keyA); got != "[t1] alice: hi\n" {
		t.Errorf("live = %q, want unchanged", got)
	}
}
