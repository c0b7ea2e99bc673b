package reminder

import "time"

// DateLayout is the calendar-date format used in state tokens and audit rows.
const DateLayout = "2006-01-02"

// DateOf returns midnight of t's calendar day as observed in loc.
// A nil loc keeps t's own location.
func DateOf(t time.Time, loc *time.Location) time.Time {
	if loc != nil {
		t = t.In(loc)
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DaysBetween returns to - from in whole calendar days, ignoring the time of
// day and DST shifts. The result may be negative.
func DaysBetween(from, to time.Time) int {
	fy, fm, fd := from.Date()
	ty, tm, td := to.Date()
	a := time.Date(fy, fm, fd, 0, 0, 0, 0, time.UTC)
	b := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a) / (24 * time.Hour))
}
