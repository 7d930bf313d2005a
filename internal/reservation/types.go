package reservation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	dateLayout  = "2006-01-02"
	clockLayout = "15:04"
)

// Day selects which calendar day is reserved, relative to the run's clock.
type Day int

const (
	Today Day = iota
	Tomorrow
)

func ParseDay(s string) (Day, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "today":
		return Today, nil
	case "tomorrow", "":
		return Tomorrow, nil
	}
	return 0, fmt.Errorf("invalid day %q (want today or tomorrow)", s)
}

func (d Day) String() string {
	if d == Today {
		return "today"
	}
	return "tomorrow"
}

// Date returns midnight of the selected day in now's location.
func (d Day) Date(now time.Time) time.Time {
	y, m, dd := now.Date()
	base := time.Date(y, m, dd, 0, 0, 0, 0, now.Location())
	if d == Tomorrow {
		return base.AddDate(0, 0, 1)
	}
	return base
}

// Credentials are used once, for login.
type Credentials struct {
	Account  string
	Password string
}

func (c Credentials) String() string { return c.Account + ":***" }

// Order is what the caller asks for.
type Order struct {
	Credentials

	// Room is a display name or prefix; Seat is the number inside it.
	Room string
	Seat int
	// Code is a raw seat code ("ngg3e90"), used when Room is empty.
	Code string

	Day   Day
	Start string
	End   string
}

// Times returns Start and End normalised to HH:MM.
func (o Order) Times() (string, string, error) {
	st, err := time.Parse(clockLayout, strings.TrimSpace(o.Start))
	if err != nil {
		return "", "", fmt.Errorf("invalid start time %q (want HH:MM)", o.Start)
	}
	et, err := time.Parse(clockLayout, strings.TrimSpace(o.End))
	if err != nil {
		return "", "", fmt.Errorf("invalid end time %q (want HH:MM)", o.End)
	}
	if !et.After(st) {
		return "", "", errors.New("end time must be after start time")
	}
	return st.Format(clockLayout), et.Format(clockLayout), nil
}

func (o Order) Validate() error {
	if strings.TrimSpace(o.Account) == "" || o.Password == "" {
		return errors.New("account and password are required")
	}
	if o.Room == "" && o.Code == "" {
		return errors.New("room and seat, or a seat code, are required")
	}
	_, _, err := o.Times()
	return err
}

// Request is the reservation payload. Only SlotID changes between attempts.
type Request struct {
	Date   time.Time
	SlotID int
	Start  string
	End    string
}

type wireRequest struct {
	AtDate string `json:"atDate"`
	SID    int    `json:"sid"`
	ST     string `json:"st"`
	ET     string `json:"et"`
}

func (r Request) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireRequest{
		AtDate: r.Date.Format(dateLayout),
		SID:    r.SlotID,
		ST:     r.Start,
		ET:     r.End,
	})
}

// Outcome is the terminal result of a run.
type Outcome struct {
	RunID    string
	State    State
	SlotID   int
	Attempts int
	Request  Request
}
