package reminder

import (
	"context"
	"sync"
	"time"
)

// Recorder is the StateRecorder used by runs: it appends the sent tag to the
// item's token and writes the new token back through the record source
// immediately, so a crash later in the run cannot cause a resend.
type Recorder struct {
	source RecordSource
	loc    *time.Location

	mu     sync.Mutex
	tokens map[string]string
}

// NewRecorder seeds the recorder with the tokens read at run start.
func NewRecorder(source RecordSource, loc *time.Location, items []TrackedItem) *Recorder {
	if loc == nil {
		loc = time.Local
	}
	r := &Recorder{source: source, loc: loc, tokens: make(map[string]string, len(items))}
	for _, it := range items {
		r.tokens[it.ID] = it.State
	}
	return r
}

func (r *Recorder) Record(ctx context.Context, due DueReminder, sentOn time.Time) error {
	id := due.Item.ID

	r.mu.Lock()
	cur, ok := r.tokens[id]
	if !ok {
		cur = due.Item.State
	}
	next := AppendTag(cur, due.Threshold, DateOf(sentOn, r.loc))
	r.tokens[id] = next
	r.mu.Unlock()

	if r.source == nil {
		return nil
	}
	return r.source.PersistState(ctx, id, next)
}

// Token returns the current token for an item.
func (r *Recorder) Token(itemID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tokens[itemID]
}
