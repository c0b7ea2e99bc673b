package storage

import (
	"sort"
	"time"
)

// DailyStats summarizes the audit entries of one calendar day.
type DailyStats struct {
	Day              string         `json:"day"`
	Total            int            `json:"total"`
	Sent             int            `json:"sent"`
	Failed           int            `json:"failed"`
	PerThreshold     map[string]int `json:"per_threshold"`
	UniqueRecipients int            `json:"unique_recipients"`
	FailedItems      []string       `json:"failed_items,omitempty"`
}

// DayBounds returns [start, end) of the calendar day containing t in loc.
func DayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.Local
	}
	t = t.In(loc)
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// SummarizeDay aggregates entries; callers pass the entries of one day.
func SummarizeDay(day time.Time, entries []AuditEntry) DailyStats {
	st := DailyStats{
		Day:          day.Format("2006-01-02"),
		PerThreshold: map[string]int{},
	}
	recipients := map[string]struct{}{}
	failed := map[string]struct{}{}
	for _, e := range entries {
		st.Total++
		switch e.Status {
		case StatusSent:
			st.Sent++
		case StatusFailed:
			st.Failed++
			failed[e.ItemID] = struct{}{}
		}
		st.PerThreshold[e.Threshold]++
		if e.Recipient != "" {
			recipients[e.Recipient] = struct{}{}
		}
	}
	st.UniqueRecipients = len(recipients)
	for id := range failed {
		st.FailedItems = append(st.FailedItems, id)
	}
	sort.Strings(st.FailedItems)
	return st
}
