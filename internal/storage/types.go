package storage

import (
	"errors"
	"time"
)

var (
	ErrDisabled     = errors.New("storage disabled")
	ErrItemNotFound = errors.New("item not found")
)

// Config configures storage.
//
// Driver values:
//   - "file": <path>.items.json + <path>.audit.jsonl
//   - "sqlite": SQLite database file at path
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Item is one stored tracked item. TargetDate is kept as text exactly as it
// was imported; validation happens when a run reads the items.
type Item struct {
	ID            string `json:"id" yaml:"id"`
	Name          string `json:"name" yaml:"name"`
	Owner         string `json:"owner" yaml:"owner"`
	Recipient     string `json:"recipient" yaml:"recipient"`
	TargetDate    string `json:"target_date" yaml:"target_date"`
	ReminderState string `json:"reminder_state,omitempty" yaml:"reminder_state,omitempty"`
}

// AuditEntry is one dispatch outcome. Keep it compact and schema-stable.
type AuditEntry struct {
	At            time.Time `json:"at"`
	RunID         string    `json:"run_id,omitempty"`
	ItemID        string    `json:"item_id"`
	ItemName      string    `json:"item_name,omitempty"`
	Owner         string    `json:"owner,omitempty"`
	Recipient     string    `json:"recipient"`
	Threshold     string    `json:"threshold"`
	RemainingDays int       `json:"remaining_days"`
	TargetDate    string    `json:"target_date,omitempty"`
	Status        string    `json:"status"`
	Error         string    `json:"error,omitempty"`
	Attempts      int       `json:"attempts"`
}

const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)
