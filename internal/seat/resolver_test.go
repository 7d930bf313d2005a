package seat

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_DefaultTable(t *testing.T) {
	r := NewResolver(DefaultTable())

	cases := map[string]int{
		"nbk1":    1,
		"nbk430":  430,
		"ndz1":    2876,
		"ngg3e1":  2434,
		"ngg3e88": 2521,
		"ngg3e89": 2682,
		"ngg3e90": 2683,
		"zdz1":    2810,
		"ngg4e32": 2649,
		"ngg4e33": 2754,
		"ngg4w32": 2681,
		"ngg4w33": 2690,
		"ngg4w96": 2753,
		"ngg4w97": 3143,
		"nsk11":   1096,
		" NGG51 ": 3064,
	}

	for code, want := range cases {
		got, err := r.Resolve(code)
		require.NoError(t, err, code)
		assert.Equal(t, want, got, code)
	}
}

func TestResolve_Invalid(t *testing.T) {
	r := NewResolver(DefaultTable())

	for _, code := range []string{"xyz1", "nbk", "nbkabc", "nbk0", "nbk-1", "nbk+1", "", "nbk1a"} {
		_, err := r.Resolve(code)
		require.Error(t, err, code)
		assert.True(t, errors.Is(err, ErrInvalidCode), code)
		var ce *CodeError
		assert.True(t, errors.As(err, &ce), code)
	}
}

func TestResolve_SeatNumberOutOfRange(t *testing.T) {
	r := NewResolver(DefaultTable())

	for _, code := range []string{"ndz100000", "ndz9223372036854775807", "nbk99999999999999999999"} {
		got, err := r.Resolve(code)
		require.Error(t, err, code)
		assert.Zero(t, got, code)
		var ce *CodeError
		require.True(t, errors.As(err, &ce), code)
		assert.Equal(t, "seat number out of range", ce.Reason, code)
	}

	got, err := r.Resolve("nbk99999")
	require.NoError(t, err)
	assert.Equal(t, 99999, got)
}

func TestResolve_AboveSeatCountIsNotRejected(t *testing.T) {
	r := NewResolver(DefaultTable())

	got, err := r.Resolve("nbk431")
	require.NoError(t, err)
	assert.Equal(t, 431, got)
}

func TestParse_LongestPrefixWins(t *testing.T) {
	tbl := MustNewTable([]Room{
		{Name: "short", Prefix: "ngg", Seats: 10, Rules: flat(100)},
		{Name: "long", Prefix: "ngg3e", Seats: 10, Rules: flat(500)},
	})

	c, err := tbl.Parse("ngg3e7")
	require.NoError(t, err)
	assert.Equal(t, Code{Prefix: "ngg3e", Number: 7}, c)

	c, err = tbl.Parse("ngg7")
	require.NoError(t, err)
	assert.Equal(t, Code{Prefix: "ngg", Number: 7}, c)
}

func TestResolveSeat_ByNameOrPrefix(t *testing.T) {
	r := NewResolver(DefaultTable())

	got, err := r.ResolveSeat("花津三楼公共东", 90)
	require.NoError(t, err)
	assert.Equal(t, 2683, got)

	got, err = r.ResolveSeat("zdz", 1)
	require.NoError(t, err)
	assert.Equal(t, 2810, got)

	_, err = r.ResolveSeat("no such room", 1)
	assert.ErrorIs(t, err, ErrInvalidCode)

	_, err = r.ResolveSeat("zdz", 0)
	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestNewTable_Validation(t *testing.T) {
	cases := map[string][]Room{
		"empty":            nil,
		"no name":          {{Prefix: "a", Seats: 1, Rules: flat(0)}},
		"long prefix":      {{Name: "a", Prefix: "abcdef", Seats: 1, Rules: flat(0)}},
		"no seats":         {{Name: "a", Prefix: "a", Seats: 0, Rules: flat(0)}},
		"no rules":         {{Name: "a", Prefix: "a", Seats: 1}},
		"too many rules":   {{Name: "a", Prefix: "a", Seats: 9, Rules: []OffsetRule{{Min: 1, Max: 1}, {Min: 2, Max: 2}, {Min: 3, Max: 3}, {Min: 4}}}},
		"gap":              {{Name: "a", Prefix: "a", Seats: 9, Rules: []OffsetRule{{Min: 1, Max: 3}, {Min: 5}}}},
		"bounded last":     {{Name: "a", Prefix: "a", Seats: 9, Rules: []OffsetRule{{Min: 1, Max: 9}}}},
		"not from one":     {{Name: "a", Prefix: "a", Seats: 9, Rules: []OffsetRule{{Min: 2}}}},
		"duplicate name":   {{Name: "a", Prefix: "a", Seats: 1, Rules: flat(0)}, {Name: "a", Prefix: "b", Seats: 1, Rules: flat(0)}},
		"duplicate prefix": {{Name: "a", Prefix: "a", Seats: 1, Rules: flat(0)}, {Name: "b", Prefix: "A", Seats: 1, Rules: flat(0)}},
		"ambiguous":        {{Name: "a", Prefix: "nsk", Seats: 1, Rules: flat(0)}, {Name: "b", Prefix: "nsk1", Seats: 1, Rules: flat(0)}},
	}
	for name, rooms := range cases {
		_, err := NewTable(rooms)
		assert.Error(t, err, name)
	}
}

func TestTable_IsImmutable(t *testing.T) {
	rooms := DefaultRooms()
	tbl := MustNewTable(rooms)
	rooms[0].Rules[0].Offset = 9999

	got, err := NewResolver(tbl).Resolve("nbk1")
	require.NoError(t, err)
	assert.Equal(t, 1, got)

	out := tbl.Rooms()
	out[0].Rules[0].Offset = 9999
	got, err = NewResolver(tbl).Resolve("nbk1")
	require.NoError(t, err)
	assert.Equal(t, 1, got)
}

func TestResolve_InjectiveForWellFormedTable(t *testing.T) {
	tbl := MustNewTable([]Room{
		{Name: "east", Prefix: "e", Seats: 40, Rules: []OffsetRule{{Min: 1, Max: 20, Offset: 0}, {Min: 21, Offset: 80}}},
		{Name: "west", Prefix: "w", Seats: 30, Rules: flat(20)},
		{Name: "north", Prefix: "n", Seats: 30, Rules: []OffsetRule{{Min: 1, Max: 10, Offset: 50}, {Min: 11, Max: 25, Offset: 120}, {Min: 26, Offset: 200}}},
	})
	r := NewResolver(tbl)
	assert.Empty(t, tbl.Collisions())

	seen := map[int]string{}
	for _, room := range tbl.Rooms() {
		for n := 1; n <= room.Seats; n++ {
			code := Code{Prefix: room.Prefix, Number: n}.String()
			slot, err := r.Resolve(code)
			require.NoError(t, err)

			var want int
			for _, rule := range room.Rules {
				if rule.Contains(n) {
					want = n + rule.Offset
					break
				}
			}
			assert.Equal(t, want, slot, code)

			prev, dup := seen[slot]
			require.False(t, dup, "%s and %s both map to %d", prev, code, slot)
			seen[slot] = code
		}
	}
}

func TestCollisions_ReportsOverlaps(t *testing.T) {
	tbl := MustNewTable([]Room{
		{Name: "a", Prefix: "a", Seats: 5, Rules: flat(0)},
		{Name: "b", Prefix: "b", Seats: 5, Rules: flat(3)},
	})
	got := tbl.Collisions()
	require.Len(t, got, 2)
	assert.Equal(t, 4, got[0].Slot)
	assert.ElementsMatch(t, []string{"a4", "b1"}, got[0].Seats)
	assert.Equal(t, 5, got[1].Slot)
}

func TestLoadTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rooms.json")
	doc := `{"rooms":[{"name":"Quiet","prefix":"q","seats":10,"rules":[{"min":1,"max":5,"offset":100},{"min":6,"offset":200}]}]}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	tbl, err := LoadTable(path)
	require.NoError(t, err)

	r := NewResolver(tbl)
	got, err := r.Resolve("q6")
	require.NoError(t, err)
	assert.Equal(t, 206, got)

	_, err = LoadTable(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
