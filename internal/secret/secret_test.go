package secret

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBox(t *testing.T) *Box {
	t.Helper()
	k, err := NewKey()
	require.NoError(t, err)
	raw, err := base64.StdEncoding.DecodeString(k)
	require.NoError(t, err)
	b, err := New(raw)
	require.NoError(t, err)
	return b
}

func TestSealOpen(t *testing.T) {
	b := newBox(t)
	sealed, err := b.Seal("hunter2", "2021001")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "hunter2")

	pt, err := b.Open(sealed, "2021001")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", pt)

	again, err := b.Seal("hunter2", "2021001")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again)
}

func TestOpen_WrongAccountOrKey(t *testing.T) {
	b := newBox(t)
	sealed, err := b.Seal("hunter2", "2021001")
	require.NoError(t, err)

	_, err = b.Open(sealed, "2021002")
	assert.Error(t, err)

	_, err = newBox(t).Open(sealed, "2021001")
	assert.Error(t, err)
}

func TestOpen_Malformed(t *testing.T) {
	b := newBox(t)
	_, err := b.Open("!!!", "a")
	assert.ErrorIs(t, err, ErrMalformed)
	_, err = b.Open("AAAA", "a")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestNew_BadKey(t *testing.T) {
	_, err := New([]byte("short"))
	assert.Error(t, err)
}
