package recording

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jobs.sqlite")
	s, err := OpenStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateJobThenCompleteJob(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.CreateJob("job-1", "trajectory"))

	var status, archive string
	row := s.db.QueryRow("SELECT status, COALESCE(archive_path, '') FROM recording_jobs WHERE id = ?", "job-1")
	require.NoError(t, row.Scan(&status, &archive))
	assert.Equal(t, "running", status)
	assert.Empty(t, archive)

	require.NoError(t, s.CompleteJob("job-1", "/tmp/out.zip"))

	row = s.db.QueryRow("SELECT status, archive_path FROM recording_jobs WHERE id = ?", "job-1")
	require.NoError(t, row.Scan(&status, &archive))
	assert.Equal(t, "completed", status)
	assert.Equal(t, "/tmp/out.zip", archive)
}

func TestFailJobRecordsError(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.CreateJob("job-2", "combined"))
	require.NoError(t, s.FailJob("job-2", "writer exploded"))

	var status, errMsg string
	row := s.db.QueryRow("SELECT status, error FROM recording_jobs WHERE id = ?", "job-2")
	require.NoError(t, row.Scan(&status, &errMsg))
	assert.Equal(t, "failed", status)
	assert.Equal(t, "writer exploded", errMsg)
}

func TestOpenStoreIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.sqlite")
	s1, err := OpenStore(path)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := OpenStore(path)
	require.NoError(t, err)
	defer s2.Close()
}
