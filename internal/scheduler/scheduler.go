package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/libseat/internal/jobs"
	"github.com/example/libseat/internal/lock"
	"github.com/example/libseat/internal/notify"
	"github.com/example/libseat/internal/reservation"
	"github.com/example/libseat/internal/seat"
)

// Store is the part of the job repository the scheduler needs.
type Store interface {
	ClaimDue(ctx context.Context, now time.Time, runID string) (jobs.Job, error)
	Finish(ctx context.Context, jobID int64, res jobs.Result) error
	Requeue(ctx context.Context, jobID int64, at time.Time) error
	AddEvent(ctx context.Context, jobID int64, e reservation.Event) error
	FailStale(ctx context.Context, startedBefore time.Time) (int64, error)
}

type Opener interface {
	Open(sealed, account string) (string, error)
}

// Scheduler polls for due jobs and runs one reservation session per job.
type Scheduler struct {
	Store        Store
	Resolver     *seat.Resolver
	Secrets      Opener
	NewTransport func() (reservation.Transport, error)
	Locker       lock.Locker
	// Outcomes, when set, adds a notifier per job (AMQP publishing).
	Outcomes func(jobID int64) reservation.Notifier
	// Session options shared by every run (policy, location).
	SessionOptions []reservation.Option

	Interval      time.Duration
	MaxConcurrent int
	// StaleAfter is how long a job may stay running before it is presumed
	// orphaned by a dead process. It must exceed the longest possible run.
	StaleAfter time.Duration
	Log           *zap.Logger

	now func() time.Time

	once sync.Once
	sem  chan struct{}
	wg   sync.WaitGroup
}

func (s *Scheduler) init() {
	s.once.Do(func() {
		if s.Interval <= 0 {
			s.Interval = 2 * time.Second
		}
		if s.MaxConcurrent <= 0 {
			s.MaxConcurrent = 4
		}
		if s.StaleAfter <= 0 {
			s.StaleAfter = reservation.DefaultPolicy().MaxRun() + 5*time.Minute
		}
		if s.Locker == nil {
			s.Locker = lock.Nop{}
		}
		if s.Log == nil {
			s.Log = zap.NewNop()
		}
		if s.now == nil {
			s.now = time.Now
		}
		s.sem = make(chan struct{}, s.MaxConcurrent)
	})
}

func (s *Scheduler) Run(ctx context.Context) error {
	s.init()
	t := time.NewTicker(s.Interval)
	defer t.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return ctx.Err()
		case <-t.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	s.init()
	s.sweep(ctx)
	for {
		select {
		case s.sem <- struct{}{}:
		default:
			return
		}

		runID := uuid.NewString()
		j, err := s.Store.ClaimDue(ctx, s.now(), runID)
		if err != nil {
			<-s.sem
			if !errors.Is(err, jobs.ErrNotFound) {
				s.Log.Warn("claim due job failed", zap.Error(err))
			}
			return
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() { <-s.sem }()
			s.runJob(ctx, j, runID)
		}()
	}
}

// sweep fails jobs left running by a process that died mid-run.
func (s *Scheduler) sweep(ctx context.Context) {
	n, err := s.Store.FailStale(ctx, s.now().Add(-s.StaleAfter))
	switch {
	case err != nil:
		s.Log.Warn("fail stale jobs", zap.Error(err))
	case n > 0:
		s.Log.Info("marked interrupted jobs failed", zap.Int64("count", n))
	}
}

func (s *Scheduler) runJob(ctx context.Context, j jobs.Job, runID string) {
	log := s.Log.With(zap.Int64("job_id", j.ID), zap.String("run_id", runID))
	// Bookkeeping must land even when ctx is canceled mid-run.
	bg := context.WithoutCancel(ctx)

	lease, err := s.Locker.Acquire(ctx, j.Account)
	switch {
	case errors.Is(err, lock.ErrHeld):
		log.Info("account busy, requeueing")
		if err := s.Store.Requeue(bg, j.ID, s.now().Add(s.Interval)); err != nil {
			log.Warn("requeue failed", zap.Error(err))
		}
		return
	case err != nil:
		log.Warn("account lock unavailable, running unlocked", zap.Error(err))
	default:
		defer func() {
			if err := lease.Release(bg); err != nil {
				log.Warn("release account lock", zap.Error(err))
			}
		}()
	}

	password, err := s.Secrets.Open(j.PasswordSealed, j.Account)
	if err != nil {
		s.finish(bg, log, j.ID, jobs.Result{Status: jobs.StatusFailed, RunID: runID, Err: fmt.Errorf("open password: %w", err)})
		return
	}
	t, err := s.NewTransport()
	if err != nil {
		s.finish(bg, log, j.ID, jobs.Result{Status: jobs.StatusFailed, RunID: runID, Err: err})
		return
	}

	persist := reservation.NotifierFunc(func(e reservation.Event) {
		if err := s.Store.AddEvent(bg, j.ID, e); err != nil {
			log.Warn("store event", zap.Error(err))
		}
	})
	var outcomes reservation.Notifier
	if s.Outcomes != nil {
		outcomes = s.Outcomes(j.ID)
	}

	opts := append([]reservation.Option{}, s.SessionOptions...)
	opts = append(opts,
		reservation.WithRunID(runID),
		reservation.WithLogger(log),
		reservation.WithNotifier(reservation.Multi(persist, notify.Logger(log), outcomes)),
	)
	sess := reservation.NewSession(t, s.Resolver, opts...)

	log.Info("running job", zap.String("room", j.Room), zap.Int("seat", j.Seat), zap.Stringer("day", j.Day))
	out, err := sess.Reserve(ctx, j.Order(password))
	if err != nil && ctx.Err() != nil {
		// Shutdown, not the user: hand the job to the next process.
		log.Info("scheduler stopping, requeueing job", zap.Int("attempts", out.Attempts))
		if err := s.Store.Requeue(bg, j.ID, s.now()); err != nil {
			log.Warn("requeue failed", zap.Error(err))
		}
		return
	}
	s.finish(bg, log, j.ID, jobs.ResultOf(out, err))
}

func (s *Scheduler) finish(ctx context.Context, log *zap.Logger, jobID int64, res jobs.Result) {
	if err := s.Store.Finish(ctx, jobID, res); err != nil {
		log.Error("record job result", zap.Error(err))
		return
	}
	log.Info("job finished", zap.String("status", string(res.Status)), zap.Int("slot_id", res.SlotID), zap.Int("attempts", res.Attempts))
}
