package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/libseat/internal/db"
	"github.com/example/libseat/internal/reservation"
	"github.com/example/libseat/internal/seat"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusBooked   Status = "booked"
	StatusFailed   Status = "failed"
	StatusCanceled Status = "canceled"
)

// Job is a reservation the scheduler runs once, at RunAt.
type Job struct {
	ID             int64
	UserID         int64
	Name           string
	Account        string
	PasswordSealed string
	Room           string
	Seat           int
	Day            reservation.Day
	Start          string
	End            string
	RunAt          time.Time

	Status     Status
	RunID      *string
	SlotID     *int
	Attempts   int
	StartedAt  *time.Time
	FinishedAt *time.Time
	LastError  *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Order builds the reservation order for the job with the opened password.
func (j Job) Order(password string) reservation.Order {
	return reservation.Order{
		Credentials: reservation.Credentials{Account: j.Account, Password: password},
		Room:        j.Room,
		Seat:        j.Seat,
		Day:         j.Day,
		Start:       j.Start,
		End:         j.End,
	}
}

func (j Job) Validate(r *seat.Resolver) error {
	if strings.TrimSpace(j.Name) == "" {
		return fmt.Errorf("name required")
	}
	if strings.TrimSpace(j.Account) == "" {
		return fmt.Errorf("account required")
	}
	if j.PasswordSealed == "" {
		return fmt.Errorf("password required")
	}
	if _, err := r.ResolveSeat(j.Room, j.Seat); err != nil {
		return err
	}
	if _, _, err := j.Order("").Times(); err != nil {
		return err
	}
	if j.RunAt.IsZero() {
		return fmt.Errorf("run_at required")
	}
	return nil
}

// Result is what a finished run writes back.
type Result struct {
	Status   Status
	RunID    string
	SlotID   int
	Attempts int
	Err      error
}

// Event is a persisted reservation event.
type Event struct {
	ID      int64
	JobID   int64
	RunID   string
	At      time.Time
	Level   string
	State   string
	Message string
	SlotID  *int
	Attempt *int
}

var ErrNotFound = db.ErrNotFound

type Repo struct{ db *db.DB }

func NewRepo(d *db.DB) *Repo { return &Repo{db: d} }

const jobCols = `id,user_id,name,account,password_sealed,room,seat,day,start_time,end_time,run_at,
status,run_id,slot_id,attempts,started_at,finished_at,last_error,created_at,updated_at`

func scanJob(row db.Row) (Job, error) {
	var j Job
	var day, status string
	err := row.Scan(&j.ID, &j.UserID, &j.Name, &j.Account, &j.PasswordSealed, &j.Room, &j.Seat, &day, &j.Start, &j.End, &j.RunAt,
		&status, &j.RunID, &j.SlotID, &j.Attempts, &j.StartedAt, &j.FinishedAt, &j.LastError, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return Job{}, err
	}
	if j.Day, err = reservation.ParseDay(day); err != nil {
		return Job{}, err
	}
	j.Status = Status(status)
	return j, nil
}

func (r *Repo) Create(ctx context.Context, j Job) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
INSERT INTO jobs(user_id,name,account,password_sealed,room,seat,day,start_time,end_time,run_at,status)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,'pending')
RETURNING id`,
		j.UserID, j.Name, j.Account, j.PasswordSealed, j.Room, j.Seat, j.Day.String(), j.Start, j.End, j.RunAt.UTC(),
	).Scan(&id)
	return id, db.WrapNotFound(err)
}

func (r *Repo) list(ctx context.Context, sql string, args ...any) ([]Job, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (r *Repo) ListByUser(ctx context.Context, userID int64) ([]Job, error) {
	return r.list(ctx, `SELECT `+jobCols+` FROM jobs WHERE user_id=$1 ORDER BY created_at DESC`, userID)
}

// List returns every job, newest first, up to limit.
func (r *Repo) List(ctx context.Context, limit int) ([]Job, error) {
	return r.list(ctx, `SELECT `+jobCols+` FROM jobs ORDER BY created_at DESC LIMIT $1`, limit)
}

func (r *Repo) GetByIDForUser(ctx context.Context, id, userID int64) (Job, error) {
	j, err := scanJob(r.db.QueryRow(ctx, `SELECT `+jobCols+` FROM jobs WHERE id=$1 AND user_id=$2`, id, userID))
	if err != nil {
		return Job{}, db.WrapNotFound(err)
	}
	return j, nil
}

func (r *Repo) Get(ctx context.Context, id int64) (Job, error) {
	j, err := scanJob(r.db.QueryRow(ctx, `SELECT `+jobCols+` FROM jobs WHERE id=$1`, id))
	if err != nil {
		return Job{}, db.WrapNotFound(err)
	}
	return j, nil
}

// Cancel withdraws a pending job. Jobs already running or finished are left alone.
func (r *Repo) Cancel(ctx context.Context, id, userID int64) error {
	n, err := r.db.Exec(ctx, `UPDATE jobs SET status='canceled' WHERE id=$1 AND user_id=$2 AND status='pending'`, id, userID)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ClaimDue moves the oldest due pending job to running and returns it.
// Concurrent claimers never receive the same job.
func (r *Repo) ClaimDue(ctx context.Context, now time.Time, runID string) (Job, error) {
	j, err := scanJob(r.db.QueryRow(ctx, `
UPDATE jobs SET status='running', run_id=$2, started_at=now()
WHERE id = (
  SELECT id FROM jobs
  WHERE status='pending' AND run_at <= $1
  ORDER BY run_at ASC
  LIMIT 1
  FOR UPDATE SKIP LOCKED
)
RETURNING `+jobCols, now.UTC(), runID))
	if err != nil {
		return Job{}, db.WrapNotFound(err)
	}
	return j, nil
}

func (r *Repo) Finish(ctx context.Context, jobID int64, res Result) error {
	var lastErr *string
	if res.Err != nil {
		msg := res.Err.Error()
		lastErr = &msg
	}
	var slot *int
	if res.SlotID > 0 {
		slot = &res.SlotID
	}
	_, err := r.db.Exec(ctx, `
UPDATE jobs SET status=$2, slot_id=$3, attempts=$4, last_error=$5, finished_at=now()
WHERE id=$1`, jobID, string(res.Status), slot, res.Attempts, lastErr)
	return err
}

// Requeue puts a claimed job back to pending, for runs that could not start
// (account lock held elsewhere).
func (r *Repo) Requeue(ctx context.Context, jobID int64, at time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE jobs SET status='pending', run_id=NULL, started_at=NULL, run_at=$2 WHERE id=$1 AND status='running'`,
		jobID, at.UTC())
	return err
}

// FailStale marks jobs left running by a dead process as failed.
func (r *Repo) FailStale(ctx context.Context, startedBefore time.Time) (int64, error) {
	return r.db.Exec(ctx, `
UPDATE jobs SET status='failed', last_error='interrupted', finished_at=now()
WHERE status='running' AND started_at < $1`, startedBefore.UTC())
}

func (r *Repo) AddEvent(ctx context.Context, jobID int64, e reservation.Event) error {
	var slot, attempt *int
	if e.SlotID != 0 {
		slot = &e.SlotID
	}
	if e.Attempt != 0 {
		attempt = &e.Attempt
	}
	_, err := r.db.Exec(ctx, `
INSERT INTO job_events(job_id,run_id,at,level,state,message,slot_id,attempt)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		jobID, e.RunID, e.Time.UTC(), e.Level.String(), e.State.String(), e.Message, slot, attempt)
	return err
}

func (r *Repo) ListEvents(ctx context.Context, jobID int64) ([]Event, error) {
	rows, err := r.db.Query(ctx, `
SELECT id,job_id,run_id,at,level,state,message,slot_id,attempt
FROM job_events WHERE job_id=$1 ORDER BY id ASC`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.JobID, &e.RunID, &e.At, &e.Level, &e.State, &e.Message, &e.SlotID, &e.Attempt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ResultOf maps a reservation outcome to the job result to store. A run
// never ends as StatusCanceled: that status is the user's withdrawal only.
func ResultOf(out reservation.Outcome, err error) Result {
	res := Result{RunID: out.RunID, SlotID: out.SlotID, Attempts: out.Attempts, Err: err}
	switch {
	case err == nil && out.State == reservation.StateSuccess:
		res.Status = StatusBooked
	default:
		res.Status = StatusFailed
		if res.Err == nil {
			res.Err = errors.New("run ended without success")
		}
	}
	return res
}
