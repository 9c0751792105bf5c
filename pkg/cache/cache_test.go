package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "gumdl/pkg/errors"
	"gumdl/pkg/logger"
)

func openStore(t *testing.T, path string) *Store {
	t.Helper()
	s, err := Open(path, logger.NewTestLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndLookup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gumroad.cache")
	s := openStore(t, path)

	assert.False(t, s.Has("prod1/file1"))

	require.NoError(t, s.Record("prod1/file1", "/out/a.pdf", 100))
	assert.True(t, s.Has("prod1/file1"))
	assert.Equal(t, 1, s.Len())

	r, ok := s.Get("prod1/file1")
	require.True(t, ok)
	assert.Equal(t, "/out/a.pdf", r.LocalPath)
	assert.Equal(t, int64(100), r.SizeBytes)
	assert.False(t, r.CompletedAt.IsZero())
}

func TestRecordIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gumroad.cache")
	s := openStore(t, path)

	require.NoError(t, s.Record("prod1/file1", "/out/a.pdf", 100))
	first, _ := s.Get("prod1/file1")

	require.NoError(t, s.Record("prod1/file1", "/out/a.pdf", 100))
	second, _ := s.Get("prod1/file1")
	assert.Equal(t, first.CompletedAt, second.CompletedAt, "unchanged record should not be rewritten")
	assert.Equal(t, 1, s.Len())

	// A changed destination updates the record in place
	require.NoError(t, s.Record("prod1/file1", "/moved/a.pdf", 100))
	updated, _ := s.Get("prod1/file1")
	assert.Equal(t, "/moved/a.pdf", updated.LocalPath)
	assert.Equal(t, 1, s.Len())
}

func TestRecordsSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gumroad.cache")

	s, err := Open(path, logger.NewTestLogger())
	require.NoError(t, err)
	require.NoError(t, s.Record("prod1/file1", "/out/a.pdf", 100))
	require.NoError(t, s.Record("prod2/zip", "/out/b.zip", 5000))
	require.NoError(t, s.Close())

	reopened := openStore(t, path)
	assert.Equal(t, 2, reopened.Len())
	assert.True(t, reopened.Has("prod1/file1"))
	assert.True(t, reopened.Has("prod2/zip"))
}

func TestSecondOpenFailsWhileLocked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gumroad.cache")
	openStore(t, path)

	_, err := Open(path, logger.NewTestLogger())
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeConfig, apperrors.TypeOf(err))
	assert.Contains(t, err.Error(), "locked")
}

func TestLockReleasedOnClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gumroad.cache")

	s, err := Open(path, logger.NewTestLogger())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	openStore(t, path)
}

func TestCorruptCacheRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gumroad.cache")
	require.NoError(t, os.WriteFile(path, []byte("not json{"), 0644))

	_, err := Open(path, logger.NewTestLogger())
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeConfig, apperrors.TypeOf(err))

	// The failed open must not leave the lock behind
	_, statErr := os.Stat(path + ".lock")
	assert.True(t, os.IsNotExist(statErr))
}

func TestNoPartialCacheOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gumroad.cache")
	s := openStore(t, path)
	require.NoError(t, s.Record("prod1/file1", "/out/a.pdf", 100))

	// The temp file used for the atomic replace never persists
	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}
