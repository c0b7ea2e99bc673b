package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"remindbot/internal/eventbus"
	"remindbot/internal/notifier"
	"remindbot/internal/observe"
	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"

	"github.com/google/uuid"
)

// Summary is the result of one run.
type Summary struct {
	RunID    string
	Today    time.Time
	Items    int // rows seen, including invalid ones
	Due      int
	Sent     int
	Failed   int
	Warnings int
	Errors   int
	Duration time.Duration

	Outcomes []reminder.DispatchOutcome
	Daily    *storage.DailyStats
}

// BackupConfig mirrors config.BackupConfig.
type BackupConfig struct {
	Enabled bool
	Dir     string
}

// Runner executes reminder runs against one store and one channel.
// It is safe to call RunOnce from one goroutine at a time.
type Runner struct {
	Store   storage.Store
	Channel notifier.Channel
	Loc     *time.Location

	Bus         eventbus.Bus
	Metrics     *observe.Metrics
	Log         logx.Logger
	Clock       reminder.Clock
	Sleeper     reminder.Sleeper
	SendTimeout time.Duration
	Probe       bool
	Backup      BackupConfig

	newRunID func() string
	compute  func(items []reminder.TrackedItem, today time.Time) (reminder.Plan, error)
}

func (r *Runner) clock() reminder.Clock {
	if r.Clock == nil {
		return reminder.SystemClock()
	}
	return r.Clock
}

func (r *Runner) computeDue(items []reminder.TrackedItem, today time.Time) (reminder.Plan, error) {
	if r.compute != nil {
		return r.compute(items, today)
	}
	return reminder.NewEngine(r.Loc).ComputeDue(items, today)
}

func (r *Runner) source() *StoreSource {
	return NewStoreSource(r.Store, r.Channel.Name, r.Loc)
}

// Plan reads the source and computes today's due reminders without sending.
func (r *Runner) Plan(ctx context.Context) (reminder.Plan, reminder.ReadResult, error) {
	res, err := r.source().Read(ctx)
	if err != nil {
		return reminder.Plan{}, res, err
	}
	plan, err := r.computeDue(res.Items, r.clock().Now())
	return plan, res, err
}

// RunOnce performs a full run for "today". The returned error is non-nil
// only when the run could not proceed at all (unreadable source or a failed
// computation); per-item problems are reported in the Summary.
func (r *Runner) RunOnce(ctx context.Context) (Summary, error) {
	clk := r.clock()
	start := clk.Now()
	runID := uuid.NewString()
	if r.newRunID != nil {
		runID = r.newRunID()
	}
	log := r.Log.With(logx.String("run", runID))
	sum := Summary{RunID: runID, Today: reminder.DateOf(start, r.Loc)}

	log.Info("run started", logx.String("channel", r.Channel.Name), logx.String("today", sum.Today.Format(reminder.DateLayout)))

	if r.Backup.Enabled && r.Store != nil {
		if path, err := r.Store.Backup(ctx, r.Backup.Dir, start); err != nil {
			log.Warn("backup failed; continuing", logx.Err(err))
		} else {
			log.Info("backup written", logx.String("path", path))
		}
	}

	if p, ok := r.Channel.Prober(); ok && r.Probe {
		if err := p.Probe(ctx); err != nil {
			log.Warn("notifier probe failed; continuing", logx.String("channel", r.Channel.Name), logx.Err(err))
		} else {
			log.Debug("notifier probe ok", logx.String("channel", r.Channel.Name))
		}
	}

	src := r.source()
	res, err := src.Read(ctx)
	if err != nil {
		sum.Duration = clk.Now().Sub(start)
		r.Metrics.ObserveRun(observe.RunStats{Result: observe.RunSourceError, Duration: sum.Duration, FinishedAt: clk.Now()})
		log.Error("record source read failed", logx.Err(err))
		return sum, err
	}
	sum.Items = res.Total

	plan, err := r.computeDue(res.Items, start)
	if err != nil {
		sum.Duration = clk.Now().Sub(start)
		r.Metrics.ObserveRun(observe.RunStats{Result: observe.RunComputeError, Duration: sum.Duration, FinishedAt: clk.Now()})
		log.Error("computing due reminders failed", logx.Err(err))
		return sum, err
	}

	noisy := log.Limited(20)
	for _, w := range res.Warnings {
		noisy.Warn("source warning", logx.String("detail", w))
	}
	for _, e := range res.Errors {
		noisy.Warn("invalid record skipped", logx.String("item", e.ItemID), logx.Err(e.Err))
	}
	for _, e := range plan.Errors {
		noisy.Warn("invalid record skipped", logx.String("item", e.ItemID), logx.Err(e.Err))
	}
	for _, w := range plan.Warnings {
		noisy.Warn("reminder not scheduled", logx.String("item", w.ItemID), logx.String("kind", string(w.Kind)), logx.String("detail", w.Message))
	}
	sum.Warnings = len(plan.Warnings) + len(res.Warnings)
	sum.Errors = len(res.Errors) + len(plan.Errors)
	sum.Due = len(plan.Due)

	log.Info("due reminders computed",
		logx.Int("items", res.Total),
		logx.Int("due", sum.Due),
		logx.Int("due_1", plan.Stats.PerThreshold[reminder.Threshold1]),
		logx.Int("due_30", plan.Stats.PerThreshold[reminder.Threshold30]),
		logx.Int("due_60", plan.Stats.PerThreshold[reminder.Threshold60]),
		logx.Int("past_due", plan.Stats.PastDue),
		logx.Int("starts_today", plan.Stats.StartsToday),
		logx.Int("invalid", sum.Errors),
	)

	if sum.Due > 0 {
		opts := []reminder.DispatcherOption{
			reminder.WithStateRecorder(reminder.NewRecorder(src, r.Loc, res.Items)),
			reminder.WithClock(clk),
			reminder.WithRunDay(plan.Today),
			reminder.WithLogger(log.With(logx.String("comp", "dispatch"))),
			reminder.WithSendTimeout(r.SendTimeout),
		}
		if r.Store != nil {
			opts = append(opts, reminder.WithAuditSink(&storeAudit{store: r.Store, runID: runID, loc: r.Loc}))
		}
		if r.Sleeper != nil {
			opts = append(opts, reminder.WithSleeper(r.Sleeper))
		}
		if r.Bus != nil {
			opts = append(opts, reminder.WithBus(r.Bus))
		}
		out := reminder.NewDispatcher(r.Channel.Notifier, r.Channel.Renderer, opts...).DispatchAll(ctx, plan.Due)
		sum.Sent, sum.Failed, sum.Outcomes = out.Sent, out.Failed, out.Outcomes
	} else {
		log.Info("nothing due today")
	}

	if st, err := r.Daily(ctx, start); err != nil {
		if !errors.Is(err, storage.ErrDisabled) {
			log.Warn("daily statistics unavailable", logx.Err(err))
		}
	} else {
		sum.Daily = &st
		log.Info("daily statistics",
			logx.String("day", st.Day),
			logx.Int("total", st.Total),
			logx.Int("sent", st.Sent),
			logx.Int("failed", st.Failed),
			logx.Int("unique_recipients", st.UniqueRecipients),
			logx.Any("per_threshold", st.PerThreshold),
		)
	}

	end := clk.Now()
	sum.Duration = end.Sub(start)
	r.Metrics.ObserveRun(observe.RunStats{
		Result:     observe.RunOK,
		Duration:   sum.Duration,
		FinishedAt: end,
		Due:        sum.Due,
		ItemErrors: sum.Errors,
	})
	log.Info("run finished",
		logx.Int("sent", sum.Sent),
		logx.Int("failed", sum.Failed),
		logx.Int("warnings", sum.Warnings),
		logx.Int("errors", sum.Errors),
		logx.Int64("log_suppressed", int64(noisy.Dropped())),
		logx.Duration("took", sum.Duration),
	)
	return sum, nil
}

// Daily summarizes the audit entries of the calendar day containing t.
func (r *Runner) Daily(ctx context.Context, t time.Time) (storage.DailyStats, error) {
	if r.Store == nil {
		return storage.DailyStats{}, storage.ErrDisabled
	}
	from, to := storage.DayBounds(t, r.Loc)
	entries, err := r.Store.AuditEntries(ctx, from, to)
	if err != nil {
		return storage.DailyStats{}, fmt.Errorf("audit entries: %w", err)
	}
	return storage.SummarizeDay(from, entries), nil
}
