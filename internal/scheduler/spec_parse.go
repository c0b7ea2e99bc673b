package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// SpecKind describes how a schedule string was understood.
type SpecKind int

const (
	SpecCron SpecKind = iota
	SpecDaily
	SpecInterval
)

func (k SpecKind) String() string {
	switch k {
	case SpecDaily:
		return "daily"
	case SpecInterval:
		return "interval"
	default:
		return "cron"
	}
}

// ParsedSpec is a schedule normalized to a cron expression.
type ParsedSpec struct {
	Kind SpecKind
	// Cron is what the cron parser receives.
	Cron string
	// Every is set for SpecInterval.
	Every time.Duration
	Raw   string
}

var reHHMM = regexp.MustCompile(`^\s*(\d{1,2}):(\d{2})\s*$`)

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule normalizes raw and checks it with the cron parser.
func ParseSchedule(raw string) (ParsedSpec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ParsedSpec{}, fmt.Errorf("schedule required")
	}

	var ps ParsedSpec
	low := strings.ToLower(s)
	switch {
	case strings.HasPrefix(low, "cron:"):
		ps = ParsedSpec{Kind: SpecCron, Cron: strings.TrimSpace(s[len("cron:"):])}
	case strings.HasPrefix(low, "daily:"):
		p, err := parseDaily(strings.TrimSpace(s[len("daily:"):]))
		if err != nil {
			return ParsedSpec{}, err
		}
		ps = p
	case strings.HasPrefix(low, "every:"):
		p, err := parseEvery(strings.TrimSpace(s[len("every:"):]))
		if err != nil {
			return ParsedSpec{}, err
		}
		ps = p
	case strings.ContainsAny(s, " \t") || strings.HasPrefix(s, "@"):
		ps = ParsedSpec{Kind: SpecCron, Cron: s}
	case reHHMM.MatchString(s):
		p, err := parseDaily(s)
		if err != nil {
			return ParsedSpec{}, err
		}
		ps = p
	default:
		p, err := parseEvery(s)
		if err != nil {
			return ParsedSpec{}, fmt.Errorf(
				"invalid schedule %q (use cron like '0 9 * * *', HH:MM like '09:00', or duration like '12h')", raw)
		}
		ps = p
	}
	if ps.Cron == "" {
		return ParsedSpec{}, fmt.Errorf("cron schedule required after 'cron:'")
	}
	if _, err := parser.Parse(ps.Cron); err != nil {
		return ParsedSpec{}, fmt.Errorf("invalid schedule %q: %w", raw, err)
	}
	ps.Raw = raw
	return ps, nil
}

func parseDaily(v string) (ParsedSpec, error) {
	m := reHHMM.FindStringSubmatch(v)
	if len(m) != 3 {
		return ParsedSpec{}, fmt.Errorf("invalid HH:MM %q", v)
	}
	hh, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	if hh > 23 || mm > 59 {
		return ParsedSpec{}, fmt.Errorf("invalid time of day %q", v)
	}
	return ParsedSpec{Kind: SpecDaily, Cron: fmt.Sprintf("%d %d * * *", mm, hh)}, nil
}

func parseEvery(v string) (ParsedSpec, error) {
	d, err := time.ParseDuration(v)
	if err != nil {
		return ParsedSpec{}, fmt.Errorf("invalid interval %q: %w", v, err)
	}
	if d < time.Minute {
		return ParsedSpec{}, fmt.Errorf("interval must be >= 1m")
	}
	return ParsedSpec{Kind: SpecInterval, Cron: "@every " + d.String(), Every: d}, nil
}

// NextRuns returns the next n fire times after from, in loc.
func NextRuns(spec ParsedSpec, from time.Time, loc *time.Location, n int) []time.Time {
	sched, err := parser.Parse(spec.Cron)
	if err != nil || n <= 0 {
		return nil
	}
	if loc == nil {
		loc = time.Local
	}
	out := make([]time.Time, 0, n)
	t := from.In(loc)
	for i := 0; i < n; i++ {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		out = append(out, t)
	}
	return out
}
