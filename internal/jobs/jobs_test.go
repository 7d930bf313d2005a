package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/example/libseat/internal/reservation"
	"github.com/example/libseat/internal/seat"
)

func validJob() Job {
	return Job{
		Name:           "morning seat",
		Account:        "2021001",
		PasswordSealed: "sealed",
		Room:           "nbk",
		Seat:           12,
		Day:            reservation.Tomorrow,
		Start:          "08:00",
		End:            "22:00",
		RunAt:          time.Date(2026, 10, 16, 22, 0, 0, 0, time.UTC),
	}
}

func TestJob_Validate(t *testing.T) {
	r := seat.NewResolver(seat.DefaultTable())
	assert.NoError(t, validJob().Validate(r))

	cases := map[string]func(*Job){
		"name":     func(j *Job) { j.Name = " " },
		"account":  func(j *Job) { j.Account = "" },
		"password": func(j *Job) { j.PasswordSealed = "" },
		"room":     func(j *Job) { j.Room = "nowhere" },
		"seat":     func(j *Job) { j.Seat = 0 },
		"times":    func(j *Job) { j.End = "07:00" },
		"run_at":   func(j *Job) { j.RunAt = time.Time{} },
	}
	for name, mut := range cases {
		t.Run(name, func(t *testing.T) {
			j := validJob()
			mut(&j)
			assert.Error(t, j.Validate(r))
		})
	}
}

func TestJob_Order(t *testing.T) {
	o := validJob().Order("pw")
	assert.Equal(t, "2021001", o.Account)
	assert.Equal(t, "pw", o.Password)
	assert.Equal(t, "nbk", o.Room)
	assert.Equal(t, 12, o.Seat)
	assert.Equal(t, reservation.Tomorrow, o.Day)
	assert.NoError(t, o.Validate())
}

func TestResultOf(t *testing.T) {
	ok := ResultOf(reservation.Outcome{RunID: "r", State: reservation.StateSuccess, SlotID: 2684, Attempts: 3}, nil)
	assert.Equal(t, StatusBooked, ok.Status)
	assert.Equal(t, 2684, ok.SlotID)
	assert.NoError(t, ok.Err)

	fail := ResultOf(reservation.Outcome{State: reservation.StateFatal},
		&reservation.Error{Kind: reservation.KindAuthentication, Op: "login"})
	assert.Equal(t, StatusFailed, fail.Status)
	assert.Error(t, fail.Err)

	timedOut := ResultOf(reservation.Outcome{State: reservation.StateFatal},
		&reservation.Error{Kind: reservation.KindCanceled, Op: "submit", Err: context.DeadlineExceeded})
	assert.Equal(t, StatusFailed, timedOut.Status)
	assert.ErrorIs(t, timedOut.Err, context.DeadlineExceeded)

	odd := ResultOf(reservation.Outcome{State: reservation.StateFatal}, nil)
	assert.Equal(t, StatusFailed, odd.Status)
	assert.True(t, odd.Err != nil && !errors.Is(odd.Err, context.Canceled))
}
