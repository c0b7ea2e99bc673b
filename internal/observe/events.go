package observe

import (
	"context"

	"remindbot/internal/eventbus"
	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

// Attach subscribes m to the dispatch events of bus. The returned stop
// unsubscribes and waits until the buffered events are counted.
func Attach(ctx context.Context, bus eventbus.Bus, m *Metrics, log logx.Logger) (stop func()) {
	if bus == nil || m == nil {
		return func() {}
	}
	ch, unsub := bus.Subscribe(256)
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Consume(ctx, ch, log)
	}()
	return func() {
		unsub()
		<-done
	}
}

// Consume updates counters until events is closed or ctx is done.
func (m *Metrics) Consume(ctx context.Context, events <-chan eventbus.Event, log logx.Logger) {
	log = log.With(logx.String("comp", "observe"))
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			m.handle(e, log)
		}
	}
}

func (m *Metrics) handle(e eventbus.Event, log logx.Logger) {
	ev, ok := e.Data.(reminder.DispatchEvent)
	if !ok {
		return
	}
	th := ev.Threshold.String()
	switch e.Type {
	case reminder.EventSent:
		m.sent.WithLabelValues(th).Inc()
	case reminder.EventFailed:
		m.failed.WithLabelValues(th).Inc()
	case reminder.EventAttemptFailed:
		m.attemptsFailed.WithLabelValues(th).Inc()
		log.Debug("send attempt failed", logx.String("item", ev.ItemID), logx.Int("attempt", ev.Attempt), logx.String("err", ev.Error))
	case reminder.EventStateFailed:
		m.stateFailures.Inc()
	case reminder.EventAuditFailed:
		m.auditFailures.Inc()
	}
}
