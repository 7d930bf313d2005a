package reservation

import (
	"context"
	"errors"
	"fmt"
)

// Kind is the closed set of ways a reservation run can end badly.
type Kind int

const (
	KindUnknown Kind = iota
	KindAuthentication
	KindInvalidSeatCode
	KindInvalidOrder
	// KindTransient covers clock-skew and seat-conflict responses. The retry
	// loop absorbs them; they never reach the caller on their own.
	KindTransient
	KindUnclassified
	KindExhausted
	KindTransport
	KindCanceled
)

var kindNames = map[Kind]string{
	KindUnknown:         "unknown",
	KindAuthentication:  "authentication",
	KindInvalidSeatCode: "invalid_seat_code",
	KindInvalidOrder:    "invalid_order",
	KindTransient:       "transient",
	KindUnclassified:    "unclassified_response",
	KindExhausted:       "attempts_exhausted",
	KindTransport:       "transport",
	KindCanceled:        "canceled",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is returned by every fallible step of a reservation run.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

var (
	ErrLoginRejected = errors.New("login rejected, check account and password")
	ErrSessionUsed   = errors.New("session already used")
)

// UnclassifiedError carries the start of a response no marker matched.
type UnclassifiedError struct {
	Body string
}

func (e *UnclassifiedError) Error() string {
	return fmt.Sprintf("unrecognised response: %q", e.Body)
}

// KindOf reports the kind of err, treating bare context errors as KindCanceled.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCanceled
	}
	return KindUnknown
}

func transportError(ctx context.Context, op string, err error) *Error {
	if ctx.Err() != nil {
		return &Error{Kind: KindCanceled, Op: op, Err: ctx.Err()}
	}
	return &Error{Kind: KindTransport, Op: op, Err: err}
}
