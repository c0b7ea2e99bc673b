package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	logx "remindbot/pkg/logx"
)

func TestParseScheduleVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		raw  string
		kind SpecKind
		cron string
	}{
		{name: "cron", raw: "0 9 * * *", kind: SpecCron, cron: "0 9 * * *"},
		{name: "cron with seconds", raw: "0 30 8 * * 1-5", kind: SpecCron, cron: "0 30 8 * * 1-5"},
		{name: "prefixed cron", raw: "cron:15 7 * * *", kind: SpecCron, cron: "15 7 * * *"},
		{name: "descriptor", raw: "@daily", kind: SpecCron, cron: "@daily"},
		{name: "hhmm", raw: "09:05", kind: SpecDaily, cron: "5 9 * * *"},
		{name: "prefixed daily", raw: "daily: 7:30", kind: SpecDaily, cron: "30 7 * * *"},
		{name: "duration", raw: "12h", kind: SpecInterval, cron: "@every 12h0m0s"},
		{name: "prefixed every", raw: "every:90m", kind: SpecInterval, cron: "@every 1h30m0s"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseSchedule(tt.raw)
			if err != nil {
				t.Fatalf("ParseSchedule(%q) error: %v", tt.raw, err)
			}
			if got.Kind != tt.kind {
				t.Fatalf("Kind = %v, want %v", got.Kind, tt.kind)
			}
			if got.Cron != tt.cron {
				t.Fatalf("Cron = %q, want %q", got.Cron, tt.cron)
			}
		})
	}
}

func TestParseScheduleInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "not-a-schedule", "25:00", "cron:", "30s", "61 * * * *"} {
		if _, err := ParseSchedule(raw); err == nil {
			t.Fatalf("ParseSchedule(%q) expected error", raw)
		}
	}
}

func TestNextRunsUsesLocation(t *testing.T) {
	t.Parallel()
	spec, err := ParseSchedule("0 9 * * *")
	if err != nil {
		t.Fatal(err)
	}
	trt := time.FixedZone("TRT", 3*60*60)
	// 07:00 UTC is 10:00 TRT, so the next 09:00 TRT is tomorrow.
	from := time.Date(2025, time.March, 1, 7, 0, 0, 0, time.UTC)
	runs := NextRuns(spec, from, trt, 2)
	if len(runs) != 2 {
		t.Fatalf("runs = %v", runs)
	}
	want := time.Date(2025, time.March, 2, 9, 0, 0, 0, trt)
	if !runs[0].Equal(want) || !runs[1].Equal(want.AddDate(0, 0, 1)) {
		t.Fatalf("runs = %v, want %v", runs, want)
	}
}

func TestRunNowSkipsOverlap(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	entered := make(chan struct{})
	var calls atomic.Int32
	spec, _ := ParseSchedule("@daily")
	s := New(spec, time.UTC, func(ctx context.Context) error {
		calls.Add(1)
		close(entered)
		<-release
		return nil
	}, logx.Nop())

	done := make(chan bool)
	go func() { done <- s.RunNow() }()
	<-entered

	if s.RunNow() {
		t.Fatal("overlapping run should be skipped")
	}
	if s.Skipped() != 1 {
		t.Fatalf("skipped = %d", s.Skipped())
	}
	close(release)
	if !<-done {
		t.Fatal("first run should report executed")
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d", calls.Load())
	}
}

func TestRunRecoversPanicAndErrors(t *testing.T) {
	t.Parallel()
	spec, _ := ParseSchedule("@daily")
	s := New(spec, time.UTC, func(ctx context.Context) error { panic("boom") }, logx.Nop())
	if !s.RunNow() {
		t.Fatal("panicking run still counts as executed")
	}
	// The running flag must be released after a panic.
	s.job = func(ctx context.Context) error { return errors.New("nope") }
	if !s.RunNow() {
		t.Fatal("run after panic was skipped")
	}
}

func TestStartApplyStop(t *testing.T) {
	t.Parallel()
	spec, _ := ParseSchedule("0 9 * * *")
	s := New(spec, time.UTC, func(ctx context.Context) error { return nil }, logx.Nop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s.Next().IsZero() {
		t.Fatal("expected next run after start")
	}
	if s.Next().Hour() != 9 {
		t.Fatalf("next = %v", s.Next())
	}

	spec2, _ := ParseSchedule("30 18 * * *")
	if err := s.Apply(spec2, time.UTC); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if n := s.Next(); n.Hour() != 18 || n.Minute() != 30 {
		t.Fatalf("next after apply = %v", n)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
	if !s.Next().IsZero() {
		t.Fatal("next should be zero after stop")
	}
}
