package reminder

import (
	"strconv"
	"strings"
)

// Threshold is a reminder point expressed in days before the target date.
// The set is closed: 60, 30 and 1.
type Threshold int

const (
	Threshold60 Threshold = 60
	Threshold30 Threshold = 30
	Threshold1  Threshold = 1
)

// Thresholds lists every threshold in evaluation order.
var Thresholds = []Threshold{Threshold60, Threshold30, Threshold1}

func (t Threshold) Valid() bool {
	switch t {
	case Threshold60, Threshold30, Threshold1:
		return true
	default:
		return false
	}
}

// Priority orders dispatch: lower goes first.
func (t Threshold) Priority() int {
	switch t {
	case Threshold1:
		return 1
	case Threshold30:
		return 2
	case Threshold60:
		return 3
	default:
		return 99
	}
}

// Urgent reports whether reminders at this threshold need high-priority delivery.
func (t Threshold) Urgent() bool { return t == Threshold1 }

// String returns the persisted tag name, e.g. "30_gun".
func (t Threshold) String() string {
	return strconv.Itoa(int(t)) + "_gun"
}

// ParseThreshold accepts the spellings found in existing state columns:
// "60_gun", "60gun", "60gün", "60_gün" and a bare "60".
func ParseThreshold(s string) (Threshold, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, suffix := range []string{"_gün", "_gun", "gün", "gun"} {
		if strings.HasSuffix(s, suffix) {
			s = strings.TrimSuffix(s, suffix)
			break
		}
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, false
	}
	t := Threshold(n)
	if !t.Valid() {
		return 0, false
	}
	return t, true
}
