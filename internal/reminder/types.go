package reminder

import (
	"context"
	"time"
)

// TrackedItem is one row of the record source.
type TrackedItem struct {
	ID         string
	Name       string
	Owner      string // display name of the responsible person
	Recipient  string // contact address understood by the notifier
	TargetDate time.Time
	State      string // opaque reminder-state token
}

// DueReminder is a reminder that must go out today. It lives for one run.
type DueReminder struct {
	Item          TrackedItem
	Threshold     Threshold
	RemainingDays int
	Urgent        bool
}

type OutcomeKind string

const (
	OutcomeSent   OutcomeKind = "sent"
	OutcomeFailed OutcomeKind = "failed"
)

// DispatchOutcome is the recorded result of delivering one DueReminder.
// Err is set iff Kind is OutcomeFailed.
type DispatchOutcome struct {
	ItemID    string
	Recipient string
	Threshold Threshold
	Kind      OutcomeKind
	At        time.Time
	Err       string
	Attempts  int
}

func (o DispatchOutcome) Sent() bool { return o.Kind == OutcomeSent }

type WarningKind string

const (
	WarnPastDue     WarningKind = "past_due"
	WarnStartsToday WarningKind = "starts_today"
)

// Warning is informational: the item is excluded from the due set but
// nothing is wrong with the data.
type Warning struct {
	ItemID  string
	Kind    WarningKind
	Message string
}

// ItemError records a record-level data problem. The item is skipped.
type ItemError struct {
	ItemID string
	Err    error
}

func (e ItemError) Error() string {
	if e.ItemID == "" {
		return e.Err.Error()
	}
	return "item " + e.ItemID + ": " + e.Err.Error()
}

func (e ItemError) Unwrap() error { return e.Err }

// ReadResult is what a RecordSource hands to a run.
type ReadResult struct {
	Items    []TrackedItem
	Errors   []ItemError
	Warnings []string
	Total    int // rows seen, including invalid ones
}

// RecordSource supplies tracked items and stores updated state tokens.
type RecordSource interface {
	Read(ctx context.Context) (ReadResult, error)
	PersistState(ctx context.Context, itemID, token string) error
}

// Message is one notification handed to a Notifier.
type Message struct {
	Recipient string
	Subject   string
	Body      string
	Urgent    bool
}

// Notifier delivers a single message. One call is one attempt.
type Notifier interface {
	Send(ctx context.Context, m Message) error
}

// Renderer builds the human-readable subject and body for a reminder.
type Renderer interface {
	Render(r DueReminder, now time.Time) (subject, body string, err error)
}

// AuditSink stores one row per dispatch outcome. Failures are logged by
// the caller and never stop dispatch.
type AuditSink interface {
	Record(ctx context.Context, o DispatchOutcome, r DueReminder) error
}

// StateRecorder is told about every successful send.
// sentOn is the run day, not the moment the transport accepted the message.
type StateRecorder interface {
	Record(ctx context.Context, r DueReminder, sentOn time.Time) error
}
