package reservation

import (
	"strings"
	"time"
)

// Verdict is the classification of one reservation response.
type Verdict int

const (
	VerdictUnclassified Verdict = iota
	VerdictSuccess
	VerdictTooEarly
	VerdictConflict
)

func (v Verdict) String() string {
	switch v {
	case VerdictSuccess:
		return "success"
	case VerdictTooEarly:
		return "too_early"
	case VerdictConflict:
		return "conflict"
	}
	return "unclassified"
}

// Markers are the substrings the backend puts in its free-text responses.
type Markers struct {
	LoginFailed string
	Success     string
	TooEarly    string
	Conflict    []string
}

func DefaultMarkers() Markers {
	return Markers{
		LoginFailed: "请输入用户名",
		Success:     "预约成功",
		TooEarly:    "提前",
		Conflict:    []string{"冲突", "重复"},
	}
}

// LoginOK reports whether a login response body lacks the failure marker.
func (m Markers) LoginOK(body string) bool {
	return m.LoginFailed == "" || !strings.Contains(body, m.LoginFailed)
}

// Classify inspects the markers in order; the first match wins.
func (m Markers) Classify(body string) Verdict {
	switch {
	case m.Success != "" && strings.Contains(body, m.Success):
		return VerdictSuccess
	case m.TooEarly != "" && strings.Contains(body, m.TooEarly):
		return VerdictTooEarly
	}
	for _, c := range m.Conflict {
		if c != "" && strings.Contains(body, c) {
			return VerdictConflict
		}
	}
	return VerdictUnclassified
}

// Advance decides which slot follows a conflict.
type Advance int

const (
	// AdvanceNeighbour moves to the seat after the requested one and stays there.
	AdvanceNeighbour Advance = iota
	// AdvanceWalk moves one seat further on every conflict.
	AdvanceWalk
)

func ParseAdvance(s string) (Advance, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "neighbour", "neighbor":
		return AdvanceNeighbour, true
	case "walk":
		return AdvanceWalk, true
	}
	return 0, false
}

type Policy struct {
	// MaxAttempts bounds the number of submissions; <= 0 means the default.
	MaxAttempts int
	// MaxUnclassified is how many unrecognised responses in a row end the run.
	MaxUnclassified int
	BackoffMin      time.Duration
	BackoffMax      time.Duration
	Advance         Advance
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     500,
		MaxUnclassified: 3,
		BackoffMin:      5 * time.Second,
		BackoffMax:      6 * time.Second,
		Advance:         AdvanceNeighbour,
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.MaxUnclassified <= 0 {
		p.MaxUnclassified = d.MaxUnclassified
	}
	if p.BackoffMin <= 0 && p.BackoffMax <= 0 {
		p.BackoffMin, p.BackoffMax = d.BackoffMin, d.BackoffMax
	}
	if p.BackoffMax < p.BackoffMin {
		p.BackoffMax = p.BackoffMin
	}
	return p
}

// MaxRun is the longest a run can spend backing off before it must end.
func (p Policy) MaxRun() time.Duration {
	p = p.withDefaults()
	return time.Duration(p.MaxAttempts) * p.BackoffMax
}

// Backoff maps u in [0, 1) onto [BackoffMin, BackoffMax).
func (p Policy) Backoff(u float64) time.Duration {
	if u < 0 || u >= 1 {
		u = 0
	}
	return p.BackoffMin + time.Duration(u*float64(p.BackoffMax-p.BackoffMin))
}

func (p Policy) next(initial, current int) int {
	if p.Advance == AdvanceWalk {
		return current + 1
	}
	return initial + 1
}
