package reservation

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/libseat/internal/seat"
)

// Transport talks to the seat backend. Both calls return the raw response
// body; classification is the session's job.
type Transport interface {
	Login(ctx context.Context, creds Credentials) (string, error)
	Submit(ctx context.Context, req Request) (string, error)
}

// Session runs one reservation for one set of credentials. It is not
// reusable and not safe for concurrent Reserve calls.
type Session struct {
	transport Transport
	resolver  *seat.Resolver
	policy    Policy
	markers   Markers
	notifier  Notifier
	log       *zap.Logger

	sleep  func(context.Context, time.Duration) error
	jitter func() float64
	now    func() time.Time
	runID  string

	mu    sync.Mutex
	state State
}

type Option func(*Session)

func WithPolicy(p Policy) Option { return func(s *Session) { s.policy = p.withDefaults() } }

func WithMarkers(m Markers) Option { return func(s *Session) { s.markers = m } }

func WithNotifier(n Notifier) Option {
	return func(s *Session) {
		if n != nil {
			s.notifier = n
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// WithLocation makes "today" and "tomorrow" relative to loc.
func WithLocation(loc *time.Location) Option {
	return func(s *Session) { s.now = func() time.Time { return time.Now().In(loc) } }
}

func WithClock(now func() time.Time) Option { return func(s *Session) { s.now = now } }

func WithSleeper(fn func(context.Context, time.Duration) error) Option {
	return func(s *Session) { s.sleep = fn }
}

// WithJitter replaces the uniform [0, 1) source used for backoff.
func WithJitter(fn func() float64) Option { return func(s *Session) { s.jitter = fn } }

func WithRunID(id string) Option { return func(s *Session) { s.runID = id } }

func NewSession(t Transport, r *seat.Resolver, opts ...Option) *Session {
	s := &Session{
		transport: t,
		resolver:  r,
		policy:    DefaultPolicy(),
		markers:   DefaultMarkers(),
		notifier:  Discard,
		log:       zap.NewNop(),
		sleep:     sleepContext,
		jitter:    rand.Float64,
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.runID == "" {
		s.runID = uuid.NewString()
	}
	s.log = s.log.With(zap.String("run_id", s.runID))
	return s
}

func (s *Session) RunID() string { return s.runID }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return false
	}
	s.state = StateAuthenticating
	return true
}

// Reserve logs in, resolves the seat and submits until the backend accepts
// the reservation or the run fails. The returned error is always an *Error.
func (s *Session) Reserve(ctx context.Context, o Order) (Outcome, error) {
	out := Outcome{RunID: s.runID}
	if !s.begin() {
		return out, &Error{Kind: KindInvalidOrder, Op: "reserve", Err: ErrSessionUsed}
	}
	s.emit(Event{Level: LevelInfo, Message: "beginning reservation"})

	if err := o.Validate(); err != nil {
		return s.fail(out, &Error{Kind: KindInvalidOrder, Op: "reserve", Err: err})
	}
	start, end, _ := o.Times()

	if aerr := s.authenticate(ctx, o.Credentials); aerr != nil {
		return s.fail(out, aerr)
	}

	s.setState(StateResolving)
	slot, rerr := s.resolve(o)
	if rerr != nil {
		return s.fail(out, rerr)
	}
	req := Request{Date: o.Day.Date(s.now()), SlotID: slot, Start: start, End: end}
	s.emit(Event{Level: LevelInfo, Message: fmt.Sprintf("reserving slot %d on %s %s-%s",
		req.SlotID, req.Date.Format(dateLayout), req.Start, req.End), SlotID: req.SlotID})

	return s.submitLoop(ctx, out, req)
}

func (s *Session) authenticate(ctx context.Context, creds Credentials) *Error {
	s.emit(Event{Level: LevelInfo, Message: fmt.Sprintf("logging in as %s", creds.Account)})
	body, err := s.transport.Login(ctx, creds)
	if err != nil {
		return transportError(ctx, "login", err)
	}
	if !s.markers.LoginOK(body) {
		return &Error{Kind: KindAuthentication, Op: "login", Err: ErrLoginRejected}
	}
	s.emit(Event{Level: LevelInfo, Message: "login succeeded"})
	return nil
}

func (s *Session) resolve(o Order) (int, *Error) {
	code := o.Code
	if o.Room != "" {
		c, err := s.resolver.Code(o.Room, o.Seat)
		if err != nil {
			return 0, &Error{Kind: KindInvalidSeatCode, Op: "resolve", Err: err}
		}
		code = c
	}
	slot, err := s.resolver.Resolve(code)
	if err != nil {
		return 0, &Error{Kind: KindInvalidSeatCode, Op: "resolve", Err: err}
	}
	s.emit(Event{Level: LevelDebug, Message: fmt.Sprintf("seat %s is slot %d", code, slot), SlotID: slot})
	return slot, nil
}

func (s *Session) submitLoop(ctx context.Context, out Outcome, req Request) (Outcome, error) {
	initial := req.SlotID
	unclassified := 0

	for attempt := 1; ; attempt++ {
		out.Request = req
		out.SlotID = req.SlotID
		if attempt > s.policy.MaxAttempts {
			return s.fail(out, &Error{Kind: KindExhausted, Op: "submit",
				Err: fmt.Errorf("no success after %d attempts", s.policy.MaxAttempts)})
		}
		if err := ctx.Err(); err != nil {
			return s.fail(out, &Error{Kind: KindCanceled, Op: "submit", Err: err})
		}

		s.setState(StateSubmitting)
		out.Attempts = attempt
		body, err := s.transport.Submit(ctx, req)
		if err != nil {
			return s.fail(out, transportError(ctx, "submit", err))
		}
		verdict := s.markers.Classify(body)
		s.emit(Event{Level: LevelDebug, Message: snippet(body, 200), SlotID: req.SlotID, Attempt: attempt})
		s.log.Debug("submission classified",
			zap.Int("attempt", attempt),
			zap.Int("slot_id", req.SlotID),
			zap.Stringer("verdict", verdict))

		switch verdict {
		case VerdictSuccess:
			s.setState(StateSuccess)
			out.State = StateSuccess
			s.emit(Event{Level: LevelInfo, Message: fmt.Sprintf("reservation succeeded, slot %d", req.SlotID),
				SlotID: req.SlotID, Attempt: attempt})
			return out, nil

		case VerdictTooEarly:
			unclassified = 0
			s.setState(StateRetrying)
			s.emit(Event{Level: LevelInfo, Message: "server clock mismatch, resubmitting", SlotID: req.SlotID, Attempt: attempt})

		case VerdictConflict:
			unclassified = 0
			s.setState(StateRetrying)
			next := s.policy.next(initial, req.SlotID)
			if err := s.sleep(ctx, s.policy.Backoff(s.jitter())); err != nil {
				return s.fail(out, &Error{Kind: KindCanceled, Op: "backoff", Err: err})
			}
			req.SlotID = next
			s.emit(Event{Level: LevelInfo, Message: fmt.Sprintf("new slot id: %d", req.SlotID), SlotID: req.SlotID, Attempt: attempt})

		default:
			unclassified++
			if unclassified >= s.policy.MaxUnclassified {
				return s.fail(out, &Error{Kind: KindUnclassified, Op: "submit",
					Err: &UnclassifiedError{Body: snippet(body, 200)}})
			}
			s.setState(StateRetrying)
			if err := s.sleep(ctx, s.policy.Backoff(s.jitter())); err != nil {
				return s.fail(out, &Error{Kind: KindCanceled, Op: "backoff", Err: err})
			}
			s.emit(Event{Level: LevelInfo, Message: "unrecognised response, resubmitting", SlotID: req.SlotID, Attempt: attempt})
		}
	}
}

func (s *Session) fail(out Outcome, err *Error) (Outcome, error) {
	s.setState(StateFatal)
	out.State = StateFatal
	s.log.Warn("reservation failed",
		zap.String("op", err.Op),
		zap.Stringer("kind", err.Kind),
		zap.Int("slot_id", out.SlotID),
		zap.Int("attempts", out.Attempts),
		zap.Error(err.Err))
	s.emit(Event{Level: LevelWarning, Message: err.Error(), Kind: err.Kind, SlotID: out.SlotID, Attempt: out.Attempts})
	return out, err
}

func (s *Session) emit(e Event) {
	e.RunID = s.runID
	e.Time = s.now()
	e.State = s.State()
	s.notifier.Notify(e)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func snippet(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "…"
}
