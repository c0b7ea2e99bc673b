package reminder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeSleeper records waits and advances the clock instead of blocking.
type fakeSleeper struct {
	clock *fakeClock
	waits []time.Duration
}

func (s *fakeSleeper) Sleep(d time.Duration) {
	s.waits = append(s.waits, d)
	if s.clock != nil {
		s.clock.advance(d)
	}
}

func (s *fakeSleeper) total() time.Duration {
	var sum time.Duration
	for _, w := range s.waits {
		sum += w
	}
	return sum
}

// scriptedNotifier fails the first failures[recipient] calls for a recipient.
type scriptedNotifier struct {
	failures map[string]int
	panicFor string
	calls    map[string]int
	sent     []Message
}

func newScriptedNotifier() *scriptedNotifier {
	return &scriptedNotifier{failures: map[string]int{}, calls: map[string]int{}}
}

func (n *scriptedNotifier) Send(_ context.Context, m Message) error {
	n.calls[m.Recipient]++
	if m.Recipient == n.panicFor {
		panic("transport exploded")
	}
	if n.calls[m.Recipient] <= n.failures[m.Recipient] {
		return fmt.Errorf("smtp 451 try %d", n.calls[m.Recipient])
	}
	n.sent = append(n.sent, m)
	return nil
}

type stubRenderer struct{ err error }

func (r stubRenderer) Render(d DueReminder, _ time.Time) (string, string, error) {
	if r.err != nil {
		return "", "", r.err
	}
	return "Reminder - " + d.Item.Name, fmt.Sprintf("%d days left", d.RemainingDays), nil
}

// memSource is an in-memory RecordSource.
type memSource struct {
	mu         sync.Mutex
	items      []TrackedItem
	persisted  map[string]string
	persistErr error
}

func (s *memSource) Read(context.Context) (ReadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ReadResult{Items: append([]TrackedItem(nil), s.items...), Total: len(s.items)}, nil
}

func (s *memSource) PersistState(_ context.Context, id, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.persistErr != nil {
		return s.persistErr
	}
	if s.persisted == nil {
		s.persisted = map[string]string{}
	}
	s.persisted[id] = token
	for i := range s.items {
		if s.items[i].ID == id {
			s.items[i].State = token
		}
	}
	return nil
}

type auditRow struct {
	out DispatchOutcome
	due DueReminder
}

type memAudit struct {
	rows []auditRow
	err  error
}

func (a *memAudit) Record(_ context.Context, o DispatchOutcome, r DueReminder) error {
	a.rows = append(a.rows, auditRow{out: o, due: r})
	return a.err
}

var errAuditDown = errors.New("audit store down")
