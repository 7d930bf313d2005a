package reservation

import "time"

type State int

const (
	StateIdle State = iota
	StateAuthenticating
	StateResolving
	StateSubmitting
	StateRetrying
	StateSuccess
	StateFatal
)

var stateNames = [...]string{"idle", "authenticating", "resolving", "submitting", "retrying", "success", "fatal"}

func (s State) String() string {
	if int(s) >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool { return s == StateSuccess || s == StateFatal }

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarning
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarning:
		return "WARNING"
	}
	return "UNKNOWN"
}

// Event is a progress notification. Events of one run are delivered in the
// order the session performs its operations.
type Event struct {
	RunID   string
	Time    time.Time
	Level   Level
	State   State
	Message string
	SlotID  int
	Attempt int
	Kind    Kind // set on WARNING events
}

type Notifier interface {
	Notify(Event)
}

type NotifierFunc func(Event)

func (f NotifierFunc) Notify(e Event) { f(e) }

// Discard drops every event.
var Discard Notifier = NotifierFunc(func(Event) {})

type multi []Notifier

func (m multi) Notify(e Event) {
	for _, n := range m {
		n.Notify(e)
	}
}

// Multi fans events out to every non-nil notifier, in order.
func Multi(ns ...Notifier) Notifier {
	out := make(multi, 0, len(ns))
	for _, n := range ns {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}
