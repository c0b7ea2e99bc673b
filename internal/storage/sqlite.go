package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	logx "remindbot/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db   *sql.DB
	path string
	log  logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, path: path, log: log}

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) ListItems(ctx context.Context) ([]Item, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, owner, recipient, target_date, reminder_state FROM items ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.Name, &it.Owner, &it.Recipient, &it.TargetDate, &it.ReminderState); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *sqliteStore) UpsertItems(ctx context.Context, items []Item) (int, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO items(id, name, owner, recipient, target_date, reminder_state, updated_at)
		 VALUES(?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   name=excluded.name,
		   owner=excluded.owner,
		   recipient=excluded.recipient,
		   target_date=excluded.target_date,
		   reminder_state=CASE WHEN TRIM(items.reminder_state) <> '' THEN items.reminder_state ELSE excluded.reminder_state END,
		   updated_at=excluded.updated_at`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	now := time.Now().Format(time.RFC3339Nano)
	n := 0
	for _, it := range items {
		id := strings.TrimSpace(it.ID)
		if id == "" {
			continue
		}
		if _, err := stmt.ExecContext(ctx, id, it.Name, it.Owner, it.Recipient, it.TargetDate, it.ReminderState, now); err != nil {
			return 0, fmt.Errorf("upsert %s: %w", id, err)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *sqliteStore) PutReminderState(ctx context.Context, id, token string) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE items SET reminder_state = ?, updated_at = ? WHERE id = ?`,
		token, time.Now().Format(time.RFC3339Nano), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	return nil
}

func (s *sqliteStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit(at, at_ms, run_id, item_id, item_name, owner, recipient, threshold, remaining_days, target_date, status, err, attempts)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		e.At.Format(time.RFC3339Nano), e.At.UnixMilli(), nullStr(e.RunID), e.ItemID, nullStr(e.ItemName), nullStr(e.Owner),
		e.Recipient, e.Threshold, e.RemainingDays, nullStr(e.TargetDate), e.Status, nullStr(e.Error), e.Attempts,
	)
	return err
}

func (s *sqliteStore) AuditEntries(ctx context.Context, from, to time.Time) ([]AuditEntry, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT at, run_id, item_id, item_name, owner, recipient, threshold, remaining_days, target_date, status, err, attempts
		 FROM audit WHERE at_ms >= ? AND at_ms < ? ORDER BY seq`,
		from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var at string
		var runID, name, owner, target, errText sql.NullString
		if err := rows.Scan(&at, &runID, &e.ItemID, &name, &owner, &e.Recipient, &e.Threshold,
			&e.RemainingDays, &target, &e.Status, &errText, &e.Attempts); err != nil {
			return nil, err
		}
		e.At, _ = time.Parse(time.RFC3339Nano, at)
		e.RunID, e.ItemName, e.Owner = runID.String, name.String, owner.String
		e.TargetDate, e.Error = target.String, errText.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// Backup writes a consistent snapshot of the database with VACUUM INTO.
func (s *sqliteStore) Backup(ctx context.Context, dir string, now time.Time) (string, error) {
	if s == nil || s.db == nil {
		return "", ErrDisabled
	}
	if strings.TrimSpace(dir) == "" {
		dir = filepath.Dir(s.path)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	name := filepath.Base(s.path)
	ext := filepath.Ext(name)
	dst := filepath.Join(dir, backupName(strings.TrimSuffix(name, ext), ext, now))
	if _, err := os.Stat(dst); err == nil {
		return "", fmt.Errorf("backup %s already exists", dst)
	}
	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, dst); err != nil {
		return "", err
	}
	return dst, nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
