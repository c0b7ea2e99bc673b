package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	logx "remindbot/pkg/logx"

	"github.com/robfig/cron/v3"
)

// Job is one scheduled run. The context is cancelled when the service stops.
type Job func(ctx context.Context) error

// Service owns a cron instance with a single job.
//
// Apply may be called at any time (config reload); the cron instance is
// rebuilt with the new spec and location.
type Service struct {
	mu sync.Mutex

	log  logx.Logger
	job  Job
	spec ParsedSpec
	loc  *time.Location

	c       *cron.Cron
	runCtx  context.Context
	started bool

	running atomic.Bool
	skipped atomic.Uint64
	wg      sync.WaitGroup
}

func New(spec ParsedSpec, loc *time.Location, job Job, log logx.Logger) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{log: log.With(logx.String("comp", "scheduler")), job: job, spec: spec, loc: loc}
}

// Apply swaps the schedule. It is a no-op when nothing changed.
func (s *Service) Apply(spec ParsedSpec, loc *time.Location) error {
	if loc == nil {
		loc = time.Local
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if spec.Cron == s.spec.Cron && loc.String() == s.loc.String() {
		return nil
	}
	s.spec, s.loc = spec, loc
	if !s.started {
		return nil
	}
	return s.restartLocked()
}

// Start begins firing. The returned error reports an unusable spec.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	s.runCtx = ctx
	if err := s.restartLocked(); err != nil {
		return err
	}
	s.started = true
	return nil
}

func (s *Service) restartLocked() error {
	if s.c != nil {
		s.c.Stop()
	}
	c := cron.New(cron.WithParser(parser), cron.WithLocation(s.loc))
	if _, err := c.AddFunc(s.spec.Cron, func() { s.fire() }); err != nil {
		return fmt.Errorf("schedule %q: %w", s.spec.Raw, err)
	}
	c.Start()
	s.c = c

	fields := []logx.Field{
		logx.String("spec", s.spec.Cron),
		logx.String("kind", s.spec.Kind.String()),
		logx.String("tz", s.loc.String()),
	}
	if next := NextRuns(s.spec, time.Now(), s.loc, 1); len(next) == 1 {
		fields = append(fields, logx.Time("next", next[0]))
	}
	s.log.Info("schedule armed", fields...)
	return nil
}

// Stop halts the cron and waits for an in-flight run until ctx expires.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.started = false
	s.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out; run still in progress")
	}
}

// Next returns the next fire time, or zero when stopped.
func (s *Service) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return time.Time{}
	}
	for _, e := range s.c.Entries() {
		return e.Next
	}
	return time.Time{}
}

// Skipped counts ticks dropped because a run was still going.
func (s *Service) Skipped() uint64 { return s.skipped.Load() }

// RunNow executes the job immediately, subject to the same overlap rule.
func (s *Service) RunNow() bool { return s.fire() }

func (s *Service) fire() (ran bool) {
	if !s.running.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		s.log.Warn("previous run still in progress; skipping tick")
		return false
	}
	s.mu.Lock()
	ctx := s.runCtx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	s.wg.Add(1)
	defer s.wg.Done()
	defer s.running.Store(false)
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("scheduled run panic", logx.Any("panic", r))
		}
	}()

	ran = true
	start := time.Now()
	if err := s.job(ctx); err != nil {
		s.log.Error("scheduled run failed", logx.Err(err), logx.Duration("took", time.Since(start)))
		return true
	}
	s.log.Info("scheduled run finished", logx.Duration("took", time.Since(start)))
	return true
}
