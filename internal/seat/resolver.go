package seat

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// Resolver translates seat codes into backend slot ids. It holds no state
// besides the table it was built with.
type Resolver struct {
	table *Table
}

func NewResolver(t *Table) *Resolver {
	return &Resolver{table: t}
}

func (r *Resolver) Table() *Table { return r.table }

// Resolve returns the global slot id for a raw code such as "ngg3e90".
// Numbers above the room's seat count are not rejected here; the backend
// refuses seats that do not exist.
func (r *Resolver) Resolve(raw string) (int, error) {
	c, err := r.table.Parse(raw)
	if err != nil {
		return 0, err
	}
	room := r.table.rooms[r.table.byPrefix[c.Prefix]]
	slot, ok := room.Slot(c.Number)
	if !ok {
		return 0, &CodeError{Code: raw, Reason: "no offset rule for seat number"}
	}
	return slot, nil
}

// Code builds the seat code for a room (by name or prefix) and seat number.
func (r *Resolver) Code(room string, number int) (string, error) {
	rm, ok := r.table.Room(room)
	if !ok {
		return "", &CodeError{Code: room, Reason: "unknown room"}
	}
	if number < 1 {
		return "", &CodeError{Code: rm.Prefix + strconv.Itoa(number), Reason: "seat number must be positive"}
	}
	return rm.Prefix + strconv.Itoa(number), nil
}

// ResolveSeat is Code followed by Resolve.
func (r *Resolver) ResolveSeat(room string, number int) (int, error) {
	code, err := r.Code(room, number)
	if err != nil {
		return 0, err
	}
	return r.Resolve(code)
}

type tableFile struct {
	Rooms []Room `json:"rooms"`
}

// LoadTable reads a JSON room table ({"rooms": [...]}) from path.
func LoadTable(path string) (*Table, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read room table: %w", err)
	}
	var f tableFile
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse room table %s: %w", path, err)
	}
	return NewTable(f.Rooms)
}
