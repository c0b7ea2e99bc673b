package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"remindbot/internal/notifier"
	"remindbot/internal/reminder"
	"remindbot/internal/storage"
)

var (
	ErrSourceRead   = errors.New("record source unavailable")
	ErrMissingName  = errors.New("missing name")
	ErrMissingOwner = errors.New("missing owner")
	ErrBadRecipient = errors.New("invalid recipient")
)

// Accepted target date layouts, tried in order.
var dateLayouts = []string{"2006-01-02", "02.01.2006", "02/01/2006", time.RFC3339}

// StoreSource reads tracked items from a Store and writes state tokens back.
type StoreSource struct {
	store   storage.Store
	channel string
	loc     *time.Location
}

func NewStoreSource(store storage.Store, channel string, loc *time.Location) *StoreSource {
	if loc == nil {
		loc = time.Local
	}
	return &StoreSource{store: store, channel: channel, loc: loc}
}

// Read returns the valid items; rows failing validation are reported in
// ReadResult.Errors and skipped.
func (s *StoreSource) Read(ctx context.Context) (reminder.ReadResult, error) {
	if s.store == nil {
		return reminder.ReadResult{}, fmt.Errorf("%w: %w", ErrSourceRead, storage.ErrDisabled)
	}
	rows, err := s.store.ListItems(ctx)
	if err != nil {
		return reminder.ReadResult{}, fmt.Errorf("%w: %w", ErrSourceRead, err)
	}

	res := reminder.ReadResult{Total: len(rows), Items: make([]reminder.TrackedItem, 0, len(rows))}
	for _, row := range rows {
		it, err := s.convert(row)
		if err != nil {
			res.Errors = append(res.Errors, reminder.ItemError{ItemID: row.ID, Err: err})
			continue
		}
		res.Items = append(res.Items, it)
	}
	return res, nil
}

func (s *StoreSource) convert(row storage.Item) (reminder.TrackedItem, error) {
	id := strings.TrimSpace(row.ID)
	if id == "" {
		return reminder.TrackedItem{}, reminder.ErrMissingID
	}
	name := strings.TrimSpace(row.Name)
	if name == "" {
		return reminder.TrackedItem{}, ErrMissingName
	}
	owner := strings.TrimSpace(row.Owner)
	if owner == "" {
		return reminder.TrackedItem{}, ErrMissingOwner
	}
	recipient := strings.TrimSpace(row.Recipient)
	if recipient == "" {
		return reminder.TrackedItem{}, reminder.ErrMissingRecipient
	}
	if !notifier.ValidRecipient(s.channel, recipient) {
		return reminder.TrackedItem{}, fmt.Errorf("%w %q for channel %s", ErrBadRecipient, recipient, s.channel)
	}
	target, err := ParseTargetDate(row.TargetDate, s.loc)
	if err != nil {
		return reminder.TrackedItem{}, err
	}
	return reminder.TrackedItem{
		ID:         id,
		Name:       name,
		Owner:      owner,
		Recipient:  recipient,
		TargetDate: target,
		State:      row.ReminderState,
	}, nil
}

// ParseTargetDate reads a calendar date and returns midnight of it in loc.
// Timestamps keep the date they fall on in loc.
func ParseTargetDate(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, reminder.ErrInvalidDate
	}
	for _, layout := range dateLayouts {
		t, err := time.ParseInLocation(layout, raw, loc)
		if err == nil {
			return reminder.DateOf(t, loc), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", reminder.ErrInvalidDate, raw)
}

func (s *StoreSource) PersistState(ctx context.Context, itemID, token string) error {
	if s.store == nil {
		return storage.ErrDisabled
	}
	return s.store.PutReminderState(ctx, itemID, token)
}

// storeAudit writes one audit entry per dispatch outcome.
type storeAudit struct {
	store storage.Store
	runID string
	loc   *time.Location
}

func (a *storeAudit) Record(ctx context.Context, o reminder.DispatchOutcome, r reminder.DueReminder) error {
	status := storage.StatusSent
	if !o.Sent() {
		status = storage.StatusFailed
	}
	return a.store.AppendAudit(ctx, storage.AuditEntry{
		At:            o.At,
		RunID:         a.runID,
		ItemID:        o.ItemID,
		ItemName:      r.Item.Name,
		Owner:         r.Item.Owner,
		Recipient:     o.Recipient,
		Threshold:     o.Threshold.String(),
		RemainingDays: r.RemainingDays,
		TargetDate:    r.Item.TargetDate.In(a.loc).Format(reminder.DateLayout),
		Status:        status,
		Error:         o.Err,
		Attempts:      o.Attempts,
	})
}
