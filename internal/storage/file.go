package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "remindbot/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.items.json  (whole document, rewritten via tmp+rename)
//   - <prefix>.audit.jsonl (append-only JSON Lines)
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	itemsPath string
	items     []Item
	index     map[string]int

	auditPath string
	auditFile *os.File
}

type itemsDoc struct {
	Items []Item `json:"items"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{
		log:       log,
		itemsPath: prefix + ".items.json",
		auditPath: prefix + ".audit.jsonl",
		index:     map[string]int{},
	}
	if err := s.loadItems(); err != nil {
		return nil, fmt.Errorf("load %s: %w", s.itemsPath, err)
	}

	af, err := os.OpenFile(s.auditPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	s.auditFile = af
	return s, nil
}

func (s *fileStore) loadItems() error {
	b, err := os.ReadFile(s.itemsPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return nil
	}
	var doc itemsDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		return err
	}
	for _, it := range doc.Items {
		if _, dup := s.index[it.ID]; dup && it.ID != "" {
			s.log.Warn("duplicate item id in items file; keeping first", logx.String("id", it.ID))
			continue
		}
		s.index[it.ID] = len(s.items)
		s.items = append(s.items, it)
	}
	return nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return nil
	}
	err := s.auditFile.Close()
	s.auditFile = nil
	return err
}

func (s *fileStore) ListItems(ctx context.Context) ([]Item, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Item, len(s.items))
	copy(out, s.items)
	return out, nil
}

func (s *fileStore) UpsertItems(ctx context.Context, items []Item) (int, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]Item, len(s.items), len(s.items)+len(items))
	copy(next, s.items)
	index := make(map[string]int, len(s.index)+len(items))
	for k, v := range s.index {
		index[k] = v
	}

	n := 0
	for _, it := range items {
		it.ID = strings.TrimSpace(it.ID)
		if it.ID == "" {
			continue
		}
		if i, ok := index[it.ID]; ok {
			it.ReminderState = mergeState(next[i].ReminderState, it.ReminderState)
			next[i] = it
		} else {
			index[it.ID] = len(next)
			next = append(next, it)
		}
		n++
	}

	if err := s.writeItemsLocked(next); err != nil {
		return 0, err
	}
	s.items, s.index = next, index
	return n, nil
}

func (s *fileStore) PutReminderState(ctx context.Context, id, token string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	next := make([]Item, len(s.items))
	copy(next, s.items)
	next[i].ReminderState = token
	if err := s.writeItemsLocked(next); err != nil {
		return err
	}
	s.items = next
	return nil
}

func (s *fileStore) writeItemsLocked(items []Item) error {
	b, err := json.MarshalIndent(itemsDoc{Items: items}, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(s.itemsPath, append(b, '\n'))
}

func (s *fileStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return errors.New("audit file closed")
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	return json.NewEncoder(s.auditFile).Encode(e)
}

func (s *fileStore) AuditEntries(ctx context.Context, from, to time.Time) ([]AuditEntry, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.auditPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []AuditEntry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		var e AuditEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			continue
		}
		if e.At.Before(from) || !e.At.Before(to) {
			continue
		}
		out = append(out, e)
	}
	return out, sc.Err()
}

func (s *fileStore) Backup(ctx context.Context, dir string, now time.Time) (string, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.itemsPath)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(dir) == "" {
		dir = filepath.Dir(s.itemsPath)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	name := filepath.Base(s.itemsPath)
	ext := filepath.Ext(name)
	dst := filepath.Join(dir, backupName(strings.TrimSuffix(name, ext), ext, now))
	if err := writeFileAtomic(dst, b); err != nil {
		return "", err
	}
	return dst, nil
}

func writeFileAtomic(path string, b []byte) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
