package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "remindbot/pkg/logx"
)

// Store is the persistence API used by runs and the CLI.
type Store interface {
	// ListItems returns every item in insertion order.
	ListItems(ctx context.Context) ([]Item, error)
	// UpsertItems inserts or updates items by ID. A non-empty stored
	// reminder state is never replaced.
	UpsertItems(ctx context.Context, items []Item) (int, error)
	// PutReminderState replaces the state token of one item.
	PutReminderState(ctx context.Context, id, token string) error

	AppendAudit(ctx context.Context, e AuditEntry) error
	// AuditEntries returns entries with from <= At < to, oldest first.
	AuditEntries(ctx context.Context, from, to time.Time) ([]AuditEntry, error)

	// Backup copies the item data into dir and returns the written path.
	Backup(ctx context.Context, dir string, now time.Time) (string, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

// mergeState returns the token to keep when an imported item meets a stored one.
func mergeState(stored, imported string) string {
	if strings.TrimSpace(stored) != "" {
		return stored
	}
	return imported
}

func backupName(base, ext string, now time.Time) string {
	return base + "_backup_" + now.Format("20060102_150405") + ext
}
