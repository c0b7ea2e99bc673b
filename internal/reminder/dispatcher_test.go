package reminder

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"remindbot/internal/eventbus"
)

func dueFor(id string, th Threshold) DueReminder {
	return DueReminder{
		Item: TrackedItem{
			ID:        id,
			Name:      "Tender " + id,
			Recipient: id + "@example.com",
		},
		Threshold:     th,
		RemainingDays: int(th),
		Urgent:        th.Urgent(),
	}
}

func newTestDispatcher(n Notifier, opts ...DispatcherOption) (*Dispatcher, *fakeClock, *fakeSleeper) {
	clock := &fakeClock{now: time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)}
	sleeper := &fakeSleeper{clock: clock}
	base := []DispatcherOption{WithClock(clock), WithSleeper(sleeper)}
	return NewDispatcher(n, stubRenderer{}, append(base, opts...)...), clock, sleeper
}

func TestDispatchRetriesThenSucceeds(t *testing.T) {
	n := newScriptedNotifier()
	n.failures["a@example.com"] = 2
	d, clock, sleeper := newTestDispatcher(n)
	start := clock.Now()

	res := d.DispatchAll(context.Background(), []DueReminder{dueFor("a", Threshold30)})

	if res.Sent != 1 || res.Failed != 0 {
		t.Fatalf("result = %+v", res)
	}
	out := res.Outcomes[0]
	if out.Kind != OutcomeSent || out.Attempts != 3 || out.Err != "" {
		t.Fatalf("outcome = %+v", out)
	}
	if elapsed := out.At.Sub(start); elapsed < 15*time.Second {
		t.Fatalf("elapsed = %v, want >= 15s", elapsed)
	}
	want := []time.Duration{5 * time.Second, 10 * time.Second}
	if len(sleeper.waits) != len(want) {
		t.Fatalf("waits = %v, want %v", sleeper.waits, want)
	}
	for i := range want {
		if sleeper.waits[i] != want[i] {
			t.Fatalf("waits = %v, want %v", sleeper.waits, want)
		}
	}
}

func TestDispatchExhaustedRetries(t *testing.T) {
	n := newScriptedNotifier()
	n.failures["a@example.com"] = 10
	d, _, sleeper := newTestDispatcher(n)

	res := d.DispatchAll(context.Background(), []DueReminder{dueFor("a", Threshold60), dueFor("b", Threshold60)})

	if res.Sent != 1 || res.Failed != 1 {
		t.Fatalf("result = %+v", res)
	}
	failed := res.Outcomes[0]
	if failed.Kind != OutcomeFailed || failed.Attempts != 3 {
		t.Fatalf("failed outcome = %+v", failed)
	}
	if failed.Err != "smtp 451 try 3" {
		t.Fatalf("only the final attempt should be recorded, got %q", failed.Err)
	}
	if n.calls["a@example.com"] != 3 {
		t.Fatalf("attempts = %d", n.calls["a@example.com"])
	}
	// 5s + 10s retries, no wait after the final attempt, then 2s pacing.
	want := []time.Duration{5 * time.Second, 10 * time.Second, PacingDelay}
	if len(sleeper.waits) != len(want) {
		t.Fatalf("waits = %v, want %v", sleeper.waits, want)
	}
	for i := range want {
		if sleeper.waits[i] != want[i] {
			t.Fatalf("waits = %v, want %v", sleeper.waits, want)
		}
	}
}

func TestDispatchPacingBetweenItemsOnly(t *testing.T) {
	n := newScriptedNotifier()
	d, _, sleeper := newTestDispatcher(n)

	res := d.DispatchAll(context.Background(), []DueReminder{
		dueFor("a", Threshold1), dueFor("b", Threshold30), dueFor("c", Threshold60),
	})
	if res.Sent != 3 {
		t.Fatalf("result = %+v", res)
	}
	if len(sleeper.waits) != 2 || sleeper.total() != 2*PacingDelay {
		t.Fatalf("waits = %v", sleeper.waits)
	}
	var order []string
	for _, m := range n.sent {
		order = append(order, m.Recipient)
	}
	if strings.Join(order, ",") != "a@example.com,b@example.com,c@example.com" {
		t.Fatalf("dispatch order = %v", order)
	}
	if !n.sent[0].Urgent || n.sent[1].Urgent {
		t.Fatalf("urgent flag not propagated: %+v", n.sent)
	}
}

func TestDispatchRecoversNotifierPanic(t *testing.T) {
	n := newScriptedNotifier()
	n.panicFor = "a@example.com"
	d, _, _ := newTestDispatcher(n)

	res := d.DispatchAll(context.Background(), []DueReminder{dueFor("a", Threshold1), dueFor("b", Threshold1)})
	if res.Failed != 1 || res.Sent != 1 {
		t.Fatalf("result = %+v", res)
	}
	if !strings.Contains(res.Outcomes[0].Err, "notifier panic") {
		t.Fatalf("err = %q", res.Outcomes[0].Err)
	}
}

func TestDispatchRenderFailureIsNotRetried(t *testing.T) {
	n := newScriptedNotifier()
	clock := &fakeClock{now: time.Now()}
	sleeper := &fakeSleeper{clock: clock}
	d := NewDispatcher(n, stubRenderer{err: errors.New("template: missing key")}, WithClock(clock), WithSleeper(sleeper))

	res := d.DispatchAll(context.Background(), []DueReminder{dueFor("a", Threshold30)})
	out := res.Outcomes[0]
	if out.Kind != OutcomeFailed || out.Attempts != 0 {
		t.Fatalf("outcome = %+v", out)
	}
	if len(n.calls) != 0 || len(sleeper.waits) != 0 {
		t.Fatalf("notifier should not be called: calls=%v waits=%v", n.calls, sleeper.waits)
	}
}

func TestDispatchRecordsStateAndAudit(t *testing.T) {
	n := newScriptedNotifier()
	n.failures["b@example.com"] = 3
	src := &memSource{}
	rec := NewRecorder(src, time.UTC, nil)
	audit := &memAudit{err: errAuditDown}
	d, _, _ := newTestDispatcher(n, WithStateRecorder(rec), WithAuditSink(audit))

	res := d.DispatchAll(context.Background(), []DueReminder{dueFor("a", Threshold30), dueFor("b", Threshold30)})
	if res.Sent != 1 || res.Failed != 1 {
		t.Fatalf("result = %+v", res)
	}
	if got := src.persisted["a"]; got != "30_gun:2025-03-01" {
		t.Fatalf("persisted token = %q", got)
	}
	if _, ok := src.persisted["b"]; ok {
		t.Fatal("failed send must not touch the state token")
	}
	if len(audit.rows) != 2 {
		t.Fatalf("audit rows = %d, want 2 even when the sink errors", len(audit.rows))
	}
	if audit.rows[1].out.Kind != OutcomeFailed || audit.rows[1].due.Item.ID != "b" {
		t.Fatalf("audit row = %+v", audit.rows[1])
	}
}

func TestDispatchTagsRunDayAcrossMidnight(t *testing.T) {
	tests := []struct {
		name string
		opts []DispatcherOption
		want string
	}{
		{name: "clock at start", want: "30_gun:2025-04-01"},
		{name: "explicit run day", opts: []DispatcherOption{WithRunDay(day(2025, time.March, 31))}, want: "30_gun:2025-03-31"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := newScriptedNotifier()
			n.failures["a@example.com"] = 1
			src := &memSource{}
			opts := append([]DispatcherOption{WithStateRecorder(NewRecorder(src, time.UTC, nil))}, tt.opts...)
			d, clock, _ := newTestDispatcher(n, opts...)
			clock.now = time.Date(2025, time.April, 1, 23, 59, 58, 0, time.UTC)

			res := d.DispatchAll(context.Background(), []DueReminder{dueFor("a", Threshold30)})
			if res.Sent != 1 {
				t.Fatalf("result = %+v", res)
			}
			if got := res.Outcomes[0].At; got.Day() != 2 {
				t.Fatalf("send time = %s, want after midnight", got)
			}
			if got := src.persisted["a"]; got != tt.want {
				t.Fatalf("persisted token = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDispatchPublishesEvents(t *testing.T) {
	n := newScriptedNotifier()
	n.failures["a@example.com"] = 1
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(16)
	defer unsub()
	d, _, _ := newTestDispatcher(n, WithBus(bus))

	d.DispatchAll(context.Background(), []DueReminder{dueFor("a", Threshold1)})

	var types []string
	for len(ch) > 0 {
		e := <-ch
		types = append(types, e.Type)
	}
	if strings.Join(types, ",") != EventAttemptFailed+","+EventSent {
		t.Fatalf("events = %v", types)
	}
}

func TestDispatchEmptyList(t *testing.T) {
	d, _, sleeper := newTestDispatcher(newScriptedNotifier())
	res := d.DispatchAll(context.Background(), nil)
	if res.Sent != 0 || res.Failed != 0 || len(res.Outcomes) != 0 || len(sleeper.waits) != 0 {
		t.Fatalf("result = %+v waits=%v", res, sleeper.waits)
	}
}
