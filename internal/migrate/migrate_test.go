package migrate

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPending_Sorted(t *testing.T) {
	fsys := fstest.MapFS{
		"0002_events.sql": {Data: []byte("SELECT 1;")},
		"0001_init.sql":   {Data: []byte("SELECT 1;")},
		"README.md":       {Data: []byte("x")},
	}
	got, err := pending(fsys)
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_init.sql", "0002_events.sql"}, got)
}

func TestEmbeddedSchema(t *testing.T) {
	got, err := pending(files)
	require.NoError(t, err)
	require.NotEmpty(t, got)

	b, err := files.ReadFile(got[0])
	require.NoError(t, err)
	for _, table := range []string{"users", "jobs", "job_events"} {
		assert.Contains(t, string(b), "CREATE TABLE IF NOT EXISTS "+table+" (")
	}
}
