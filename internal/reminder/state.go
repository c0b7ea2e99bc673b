package reminder

import (
	"regexp"
	"strings"
	"time"
)

// Reminder-state tokens are persisted as comma-separated "<threshold>:<date>"
// segments, e.g. "60_gun:2025-01-01, 30_gun:2025-01-31". This is encoding
// version 1. A token may carry an explicit "v1;" header. Tokens announcing any
// other version are flagged as anomalous and read with the v1 grammar on a
// best-effort basis, so a resend is only possible if nothing is recognizable.

const (
	stateVersion   = "v1"
	stateSeparator = ", "
)

var reVersionHeader = regexp.MustCompile(`^v(\d+);`)

// Tag marks one threshold as already sent.
type Tag struct {
	Threshold Threshold
	SentOn    time.Time // zero if the stored date could not be parsed
}

// State is the decoded form of a reminder-state token.
//
// Every non-empty segment of the source token is kept verbatim so that
// re-encoding is append-only: unknown or malformed segments survive a
// round-trip untouched.
type State struct {
	header   string
	segments []string
	tags     []Tag
	anomaly  bool
}

// ParseState decodes a token. It never fails: empty, "None"/"nan" and
// unparsable tokens decode to a state without tags.
func ParseState(token string) State {
	t := strings.TrimSpace(token)
	if isNullToken(t) {
		return State{}
	}

	var st State
	if m := reVersionHeader.FindStringSubmatch(t); m != nil {
		if "v"+m[1] != stateVersion {
			st.anomaly = true
		}
		st.header = m[0]
		t = strings.TrimSpace(t[len(m[0]):])
	}

	for _, part := range strings.Split(t, ",") {
		part = strings.TrimSpace(part)
		if isNullToken(part) {
			continue
		}
		st.segments = append(st.segments, part)

		key, date, ok := strings.Cut(part, ":")
		if !ok {
			st.anomaly = true
			continue
		}
		th, ok := ParseThreshold(key)
		if !ok {
			st.anomaly = true
			continue
		}
		tag := Tag{Threshold: th}
		if d, err := time.Parse(DateLayout, strings.TrimSpace(date)); err == nil {
			tag.SentOn = d
		} else {
			// The threshold is still considered sent; a bad date must not cause a resend.
			st.anomaly = true
		}
		st.tags = append(st.tags, tag)
	}
	return st
}

func isNullToken(s string) bool {
	if s == "" {
		return true
	}
	switch strings.ToLower(s) {
	case "none", "nan", "null", "<nil>":
		return true
	}
	return false
}

// Has reports whether th was already sent.
func (s State) Has(th Threshold) bool {
	for _, t := range s.tags {
		if t.Threshold == th {
			return true
		}
	}
	return false
}

// Tags returns the decoded tags in token order.
func (s State) Tags() []Tag {
	return append([]Tag(nil), s.tags...)
}

func (s State) Len() int { return len(s.tags) }

// Anomaly reports whether some part of the token could not be understood.
func (s State) Anomaly() bool { return s.anomaly }

// Append returns a copy of s with th marked as sent on sentOn. If th is
// already present the state is returned unchanged.
func (s State) Append(th Threshold, sentOn time.Time) State {
	if s.Has(th) {
		return s
	}
	y, m, d := sentOn.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	out := State{
		header:   s.header,
		segments: append(append([]string(nil), s.segments...), th.String()+":"+day.Format(DateLayout)),
		tags:     append(append([]Tag(nil), s.tags...), Tag{Threshold: th, SentOn: day}),
		anomaly:  s.anomaly,
	}
	return out
}

// String encodes the state back into a token.
func (s State) String() string {
	if len(s.segments) == 0 {
		return ""
	}
	return s.header + strings.Join(s.segments, stateSeparator)
}

// AppendTag adds "<threshold>:<sentOn>" to token, preserving everything
// already present.
func AppendTag(token string, th Threshold, sentOn time.Time) string {
	return ParseState(token).Append(th, sentOn).String()
}
