package notifier

import (
	"context"
	"sync"

	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

// Log is the test-mode channel: it logs each message and reports success.
type Log struct {
	log logx.Logger

	mu   sync.Mutex
	sent []reminder.Message
}

func NewLog(log logx.Logger) *Log {
	return &Log{log: log.With(logx.String("channel", "log"))}
}

func (l *Log) Send(ctx context.Context, m reminder.Message) error {
	_ = ctx
	l.mu.Lock()
	l.sent = append(l.sent, m)
	l.mu.Unlock()
	l.log.Info("test mode: reminder not delivered",
		logx.String("to", m.Recipient),
		logx.String("subject", m.Subject),
		logx.Bool("urgent", m.Urgent),
		logx.Int("body_len", len(m.Body)),
	)
	return nil
}

func (l *Log) Probe(ctx context.Context) error { return nil }

// Sent returns a copy of every message seen so far.
func (l *Log) Sent() []reminder.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]reminder.Message, len(l.sent))
	copy(out, l.sent)
	return out
}
