package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"remindbot/internal/eventbus"
	logx "remindbot/pkg/logx"
)

const (
	// MaxAttempts is the number of delivery attempts per reminder.
	MaxAttempts = 3
	// PacingDelay separates two reminders; it is not applied after the last one.
	PacingDelay = 2 * time.Second
)

// RetryDelays is indexed by the failed attempt (attempt 1 -> RetryDelays[0]).
// With three attempts the last entry is never reached.
var RetryDelays = [...]time.Duration{5 * time.Second, 10 * time.Second, 30 * time.Second}

// Event types published on the bus.
const (
	EventAttemptFailed = "reminder.attempt_failed"
	EventSent          = "reminder.sent"
	EventFailed        = "reminder.failed"
	EventStateFailed   = "reminder.state_failed"
	EventAuditFailed   = "reminder.audit_failed"
)

// DispatchEvent is the Data of every reminder.* bus event.
type DispatchEvent struct {
	ItemID    string    `json:"item_id"`
	Threshold Threshold `json:"threshold"`
	Recipient string    `json:"recipient"`
	Urgent    bool      `json:"urgent,omitempty"`
	Attempt   int       `json:"attempt,omitempty"`
	At        time.Time `json:"at"`
	Error     string    `json:"error,omitempty"`
}

// DispatchResult summarizes DispatchAll.
type DispatchResult struct {
	Sent     int
	Failed   int
	Outcomes []DispatchOutcome // same order as the input
}

// Dispatcher sends due reminders one by one with a fixed retry schedule.
//
// It is not safe for concurrent use; a run dispatches sequentially.
type Dispatcher struct {
	notifier Notifier
	renderer Renderer
	recorder StateRecorder
	audit    AuditSink

	clock   Clock
	sleeper Sleeper
	bus     eventbus.Bus
	log     logx.Logger

	sendTimeout time.Duration
	runDay      time.Time
}

type DispatcherOption func(*Dispatcher)

func WithStateRecorder(r StateRecorder) DispatcherOption {
	return func(d *Dispatcher) { d.recorder = r }
}

func WithAuditSink(a AuditSink) DispatcherOption {
	return func(d *Dispatcher) { d.audit = a }
}

func WithClock(c Clock) DispatcherOption {
	return func(d *Dispatcher) { d.clock = c }
}

func WithSleeper(s Sleeper) DispatcherOption {
	return func(d *Dispatcher) { d.sleeper = s }
}

func WithBus(b eventbus.Bus) DispatcherOption {
	return func(d *Dispatcher) { d.bus = b }
}

func WithLogger(log logx.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.log = log }
}

// WithSendTimeout bounds each Notifier.Send call. Zero disables the bound.
func WithSendTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) { d.sendTimeout = timeout }
}

// WithRunDay sets the day written into state tags. Without it the day is
// taken from the clock when DispatchAll starts, so a run that crosses
// midnight still tags every send with the day it was computed for.
func WithRunDay(day time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.runDay = day }
}

func NewDispatcher(n Notifier, r Renderer, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		notifier: n,
		renderer: r,
		clock:    SystemClock(),
		sleeper:  SystemSleeper(),
	}
	for _, o := range opts {
		o(d)
	}
	if d.log.IsZero() {
		d.log = logx.Nop()
	}
	return d
}

// DispatchAll delivers every reminder in order. It never returns an error:
// failures are reported in the outcomes and processing always continues with
// the next reminder.
func (d *Dispatcher) DispatchAll(ctx context.Context, due []DueReminder) DispatchResult {
	if ctx == nil {
		ctx = context.Background()
	}
	res := DispatchResult{Outcomes: make([]DispatchOutcome, 0, len(due))}
	runDay := d.runDay
	if runDay.IsZero() {
		runDay = d.clock.Now()
	}

	for i, r := range due {
		d.log.Debug("dispatching",
			logx.Int("n", i+1), logx.Int("of", len(due)),
			logx.String("item", r.Item.ID), logx.String("threshold", r.Threshold.String()))

		out := d.dispatchOne(ctx, r)
		if out.Sent() {
			res.Sent++
			d.recordState(ctx, r, out, runDay)
		} else {
			res.Failed++
		}
		d.recordAudit(ctx, r, out)
		res.Outcomes = append(res.Outcomes, out)

		if i < len(due)-1 {
			d.sleeper.Sleep(PacingDelay)
		}
	}
	return res
}

func (d *Dispatcher) dispatchOne(ctx context.Context, r DueReminder) DispatchOutcome {
	out := DispatchOutcome{
		ItemID:    r.Item.ID,
		Recipient: r.Item.Recipient,
		Threshold: r.Threshold,
	}

	subject, body, err := d.render(r)
	if err != nil {
		// Rendering is deterministic; retrying cannot help.
		out.Kind = OutcomeFailed
		out.At = d.clock.Now()
		out.Err = err.Error()
		d.publish(EventFailed, r, 0, out.At, err)
		return out
	}
	msg := Message{Recipient: r.Item.Recipient, Subject: subject, Body: body, Urgent: r.Urgent}

	var lastErr error
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		err := d.attempt(ctx, msg)
		if err == nil {
			out.Kind = OutcomeSent
			out.At = d.clock.Now()
			out.Attempts = attempt
			d.publish(EventSent, r, attempt, out.At, nil)
			return out
		}
		lastErr = err
		d.publish(EventAttemptFailed, r, attempt, d.clock.Now(), err)
		d.log.Debug("send attempt failed",
			logx.String("item", r.Item.ID), logx.Int("attempt", attempt), logx.Int("max", MaxAttempts), logx.Err(err))

		if attempt < MaxAttempts {
			d.sleeper.Sleep(RetryDelays[attempt-1])
		}
	}

	out.Kind = OutcomeFailed
	out.At = d.clock.Now()
	out.Attempts = MaxAttempts
	out.Err = lastErr.Error()
	d.publish(EventFailed, r, MaxAttempts, out.At, lastErr)
	return out
}

func (d *Dispatcher) render(r DueReminder) (subject, body string, err error) {
	if d.renderer == nil {
		return "", "", errors.New("no renderer configured")
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("render panic: %v", p)
		}
	}()
	subject, body, err = d.renderer.Render(r, d.clock.Now())
	if err != nil {
		err = fmt.Errorf("render: %w", err)
	}
	return subject, body, err
}

// attempt performs one Notifier.Send, converting panics into errors.
func (d *Dispatcher) attempt(ctx context.Context, m Message) (err error) {
	if d.notifier == nil {
		return errors.New("no notifier configured")
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("notifier panic: %v", p)
		}
	}()
	callCtx := ctx
	if d.sendTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, d.sendTimeout)
		defer cancel()
	}
	return d.notifier.Send(callCtx, m)
}

func (d *Dispatcher) recordState(ctx context.Context, r DueReminder, out DispatchOutcome, runDay time.Time) {
	if d.recorder == nil {
		return
	}
	err := func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("state recorder panic: %v", p)
			}
		}()
		return d.recorder.Record(ctx, r, runDay)
	}()
	if err != nil {
		d.log.Error("reminder state not persisted", logx.String("item", r.Item.ID), logx.String("threshold", r.Threshold.String()), logx.Err(err))
		d.publish(EventStateFailed, r, out.Attempts, out.At, err)
	}
}

func (d *Dispatcher) recordAudit(ctx context.Context, r DueReminder, out DispatchOutcome) {
	if d.audit == nil {
		return
	}
	err := func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("audit sink panic: %v", p)
			}
		}()
		return d.audit.Record(ctx, out, r)
	}()
	if err != nil {
		d.log.Warn("audit row not written", logx.String("item", r.Item.ID), logx.Err(err))
		d.publish(EventAuditFailed, r, out.Attempts, out.At, err)
	}
}

func (d *Dispatcher) publish(typ string, r DueReminder, attempt int, at time.Time, err error) {
	if d.bus == nil {
		return
	}
	ev := DispatchEvent{
		ItemID:    r.Item.ID,
		Threshold: r.Threshold,
		Recipient: r.Item.Recipient,
		Urgent:    r.Urgent,
		Attempt:   attempt,
		At:        at,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	d.bus.Publish(eventbus.Event{Type: typ, Time: at, Data: ev})
}
