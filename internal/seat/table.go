package seat

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrInvalidCode is wrapped by every error the table and resolver return for
// input that does not name a seat.
var ErrInvalidCode = errors.New("invalid seat code")

// CodeError describes why a raw seat code was rejected.
type CodeError struct {
	Code   string
	Reason string
}

func (e *CodeError) Error() string {
	return fmt.Sprintf("seat code %q: %s", e.Code, e.Reason)
}

func (e *CodeError) Unwrap() error { return ErrInvalidCode }

// OffsetRule maps an inclusive seat number range onto the backend slot space.
type OffsetRule struct {
	Min    int `json:"min"`
	Max    int `json:"max,omitempty"` // 0 = unbounded
	Offset int `json:"offset"`
}

func (r OffsetRule) Contains(n int) bool {
	return n >= r.Min && (r.Max == 0 || n <= r.Max)
}

// Room is one reading area. Rules are checked in order and the first one
// containing the seat number wins.
type Room struct {
	Name   string       `json:"name"`
	Prefix string       `json:"prefix"`
	Seats  int          `json:"seats"`
	Rules  []OffsetRule `json:"rules"`
}

// Slot returns the global slot id of seat n in this room.
func (r Room) Slot(n int) (int, bool) {
	for _, rule := range r.Rules {
		if rule.Contains(n) {
			return n + rule.Offset, true
		}
	}
	return 0, false
}

// Code is a parsed seat code.
type Code struct {
	Prefix string
	Number int
}

func (c Code) String() string { return c.Prefix + strconv.Itoa(c.Number) }

// Table is the immutable room/offset configuration. It is safe for concurrent use.
type Table struct {
	rooms    []Room
	longest  []int // indexes into rooms, longest prefix first
	byName   map[string]int
	byPrefix map[string]int
}

const (
	maxPrefixLen = 5
	// Seat numbers past this are rejected so n+offset stays well inside int.
	maxSeatNumber = 99999
)

func NewTable(rooms []Room) (*Table, error) {
	if len(rooms) == 0 {
		return nil, errors.New("seat table: no rooms")
	}
	t := &Table{
		rooms:    make([]Room, 0, len(rooms)),
		byName:   make(map[string]int, len(rooms)),
		byPrefix: make(map[string]int, len(rooms)),
	}
	for _, in := range rooms {
		r := Room{
			Name:   strings.TrimSpace(in.Name),
			Prefix: strings.ToLower(strings.TrimSpace(in.Prefix)),
			Seats:  in.Seats,
			Rules:  append([]OffsetRule(nil), in.Rules...),
		}
		if err := validateRoom(r); err != nil {
			return nil, err
		}
		if _, dup := t.byName[r.Name]; dup {
			return nil, fmt.Errorf("seat table: duplicate room name %q", r.Name)
		}
		if _, dup := t.byPrefix[r.Prefix]; dup {
			return nil, fmt.Errorf("seat table: duplicate prefix %q", r.Prefix)
		}
		t.byName[r.Name] = len(t.rooms)
		t.byPrefix[r.Prefix] = len(t.rooms)
		t.rooms = append(t.rooms, r)
	}

	for i, a := range t.rooms {
		for _, b := range t.rooms {
			if a.Prefix == b.Prefix || !strings.HasPrefix(b.Prefix, a.Prefix) {
				continue
			}
			// "nsk" next to "nsk1" would make "nsk12" mean two different seats.
			if c := b.Prefix[len(a.Prefix)]; c >= '0' && c <= '9' {
				return nil, fmt.Errorf("seat table: prefix %q is ambiguous with %q", a.Prefix, b.Prefix)
			}
		}
		t.longest = append(t.longest, i)
	}
	sort.SliceStable(t.longest, func(i, j int) bool {
		return len(t.rooms[t.longest[i]].Prefix) > len(t.rooms[t.longest[j]].Prefix)
	})
	return t, nil
}

// MustNewTable is NewTable for static tables known to be valid.
func MustNewTable(rooms []Room) *Table {
	t, err := NewTable(rooms)
	if err != nil {
		panic(err)
	}
	return t
}

func validateRoom(r Room) error {
	if r.Name == "" {
		return errors.New("seat table: room name required")
	}
	if n := len(r.Prefix); n < 1 || n > maxPrefixLen {
		return fmt.Errorf("seat table: room %q: prefix must be 1-%d characters", r.Name, maxPrefixLen)
	}
	if r.Seats < 1 {
		return fmt.Errorf("seat table: room %q: seats must be >= 1", r.Name)
	}
	if n := len(r.Rules); n < 1 || n > 3 {
		return fmt.Errorf("seat table: room %q: want 1-3 offset rules, got %d", r.Name, n)
	}
	next := 1
	for i, rule := range r.Rules {
		if rule.Min != next {
			return fmt.Errorf("seat table: room %q: rule %d must start at %d", r.Name, i, next)
		}
		last := i == len(r.Rules)-1
		switch {
		case last && rule.Max != 0:
			return fmt.Errorf("seat table: room %q: last rule must be unbounded", r.Name)
		case !last && rule.Max < rule.Min:
			return fmt.Errorf("seat table: room %q: rule %d has empty range", r.Name, i)
		}
		next = rule.Max + 1
	}
	return nil
}

// Rooms returns the rooms in declaration order.
func (t *Table) Rooms() []Room {
	out := make([]Room, len(t.rooms))
	for i, r := range t.rooms {
		r.Rules = append([]OffsetRule(nil), r.Rules...)
		out[i] = r
	}
	return out
}

// Room looks a room up by display name, falling back to its prefix.
func (t *Table) Room(key string) (Room, bool) {
	key = strings.TrimSpace(key)
	i, ok := t.byName[key]
	if !ok {
		i, ok = t.byPrefix[strings.ToLower(key)]
	}
	if !ok {
		return Room{}, false
	}
	r := t.rooms[i]
	r.Rules = append([]OffsetRule(nil), r.Rules...)
	return r, true
}

// Parse splits a raw code such as "ngg3e90" into its room prefix and seat
// number. The longest matching prefix wins.
func (t *Table) Parse(raw string) (Code, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	for _, i := range t.longest {
		p := t.rooms[i].Prefix
		if !strings.HasPrefix(s, p) {
			continue
		}
		n, reason := parseNumber(s[len(p):])
		if reason != "" {
			return Code{}, &CodeError{Code: raw, Reason: reason}
		}
		return Code{Prefix: p, Number: n}, nil
	}
	return Code{}, &CodeError{Code: raw, Reason: "unknown room prefix"}
}

func parseNumber(s string) (int, string) {
	if s == "" {
		return 0, "missing seat number"
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, "seat number is not numeric"
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil || n > maxSeatNumber {
		return 0, "seat number out of range"
	}
	if n < 1 {
		return 0, "seat number must be positive"
	}
	return n, ""
}

// Collision is a slot id reachable from more than one seat.
type Collision struct {
	Slot  int
	Seats []string
}

// Collisions lists every slot id produced by two or more seats inside their
// rooms' declared seat counts. A correctly authored table returns nil.
func (t *Table) Collisions() []Collision {
	seen := make(map[int][]string)
	for _, r := range t.rooms {
		for n := 1; n <= r.Seats; n++ {
			slot, ok := r.Slot(n)
			if !ok {
				continue
			}
			seen[slot] = append(seen[slot], Code{Prefix: r.Prefix, Number: n}.String())
		}
	}
	var out []Collision
	for slot, seats := range seen {
		if len(seats) > 1 {
			out = append(out, Collision{Slot: slot, Seats: seats})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })
	return out
}
