package reminder

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	ErrMissingID        = errors.New("missing identifier")
	ErrDuplicateID      = errors.New("duplicate identifier")
	ErrInvalidDate      = errors.New("missing or malformed target date")
	ErrMissingRecipient = errors.New("missing recipient")
)

// Stats summarizes one ComputeDue call.
type Stats struct {
	Total          int
	Due            int
	PerThreshold   map[Threshold]int
	PastDue        int
	StartsToday    int
	Invalid        int
	StateAnomalies int
}

// Plan is the output of the engine for one day.
type Plan struct {
	Today    time.Time
	Due      []DueReminder // urgent first, input order within a threshold
	Stats    Stats
	Warnings []Warning
	Errors   []ItemError
}

// parseState is replaced in tests.
var parseState = ParseState

// Engine decides which reminders are due on a given day.
type Engine struct {
	loc *time.Location
}

// NewEngine returns an engine that interprets dates in loc (time.Local if nil).
func NewEngine(loc *time.Location) *Engine {
	if loc == nil {
		loc = time.Local
	}
	return &Engine{loc: loc}
}

func (e *Engine) Location() *time.Location { return e.loc }

// ComputeDue evaluates every item against today.
//
// Thresholds match exactly: an item whose remaining days skip over a
// threshold between two runs never receives that reminder. Items already
// past their target date, or starting today, only produce warnings.
// Per-item data problems are collected in Plan.Errors; the returned error is
// reserved for failures of the whole computation.
func (e *Engine) ComputeDue(items []TrackedItem, today time.Time) (plan Plan, err error) {
	day := DateOf(today, e.loc)
	plan = Plan{
		Today: day,
		Stats: Stats{Total: len(items), PerThreshold: map[Threshold]int{}},
	}

	defer func() {
		if r := recover(); r != nil {
			plan = Plan{Today: day, Stats: Stats{PerThreshold: map[Threshold]int{}}}
			err = fmt.Errorf("compute due reminders: %v", r)
		}
	}()

	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		if ierr := validateItem(it, seen); ierr != nil {
			plan.Errors = append(plan.Errors, ItemError{ItemID: it.ID, Err: ierr})
			plan.Stats.Invalid++
			continue
		}

		target := DateOf(it.TargetDate, e.loc)
		remaining := DaysBetween(day, target)

		switch {
		case remaining < 0:
			plan.Stats.PastDue++
			plan.Warnings = append(plan.Warnings, Warning{
				ItemID:  it.ID,
				Kind:    WarnPastDue,
				Message: fmt.Sprintf("%s (%s): target date is in the past (%s)", it.ID, it.Name, target.Format(DateLayout)),
			})
			continue
		case remaining == 0:
			plan.Stats.StartsToday++
			plan.Warnings = append(plan.Warnings, Warning{
				ItemID:  it.ID,
				Kind:    WarnStartsToday,
				Message: fmt.Sprintf("%s (%s): target date is today", it.ID, it.Name),
			})
			continue
		}

		state := parseState(it.State)
		if state.Anomaly() {
			plan.Stats.StateAnomalies++
		}
		for _, th := range Thresholds {
			if remaining != int(th) || state.Has(th) {
				continue
			}
			plan.Due = append(plan.Due, DueReminder{
				Item:          it,
				Threshold:     th,
				RemainingDays: remaining,
				Urgent:        th.Urgent(),
			})
			plan.Stats.PerThreshold[th]++
		}
	}

	SortDue(plan.Due)
	plan.Stats.Due = len(plan.Due)
	return plan, nil
}

// SortDue orders reminders urgent-first (1, 30, 60 days) keeping input order
// for equal thresholds.
func SortDue(due []DueReminder) {
	sort.SliceStable(due, func(i, j int) bool {
		return due[i].Threshold.Priority() < due[j].Threshold.Priority()
	})
}

func validateItem(it TrackedItem, seen map[string]struct{}) error {
	id := strings.TrimSpace(it.ID)
	if id == "" {
		return ErrMissingID
	}
	if _, dup := seen[id]; dup {
		return ErrDuplicateID
	}
	seen[id] = struct{}{}
	if it.TargetDate.IsZero() {
		return ErrInvalidDate
	}
	if strings.TrimSpace(it.Recipient) == "" {
		return ErrMissingRecipient
	}
	return nil
}
