package downloader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gumdl/pkg/cache"
	"gumdl/pkg/config"
	apperrors "gumdl/pkg/errors"
	"gumdl/pkg/gumroad"
	"gumdl/pkg/logger"
)

func testStore(t *testing.T) *cache.Store {
	t.Helper()
	s, err := cache.Open(filepath.Join(t.TempDir(), "gumroad.cache"), logger.NewTestLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testContentClient(t *testing.T, server *httptest.Server) *gumroad.Client {
	t.Helper()
	client, err := gumroad.NewClient(&config.GumroadConfig{
		AppSession: "session",
		Guid:       "guid",
		UserAgent:  "test-agent",
	}, 10*time.Second, logger.NewTestLogger())
	require.NoError(t, err)
	client.SetBaseURL(server.URL)
	return client
}

func fileEntry(server *httptest.Server) gumroad.FileEntry {
	return gumroad.FileEntry{
		FileID:      "prod1/file1",
		DisplayName: "sample.pdf",
		DownloadURL: server.URL + "/r/prod1/file1",
	}
}

func TestFetchDownloadsAndRecords(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.Write([]byte("file content"))
	}))
	defer server.Close()

	store := testStore(t)
	f := NewFetcher(testContentClient(t, server), store, nil, 3, logger.NewTestLogger())
	dest := filepath.Join(t.TempDir(), "out", "sample.pdf")

	status, size, err := f.Fetch(context.Background(), fileEntry(server), dest)
	require.NoError(t, err)
	assert.Equal(t, StatusDownloaded, status)
	assert.Equal(t, int64(len("file content")), size)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "file content", string(data))

	_, partErr := os.Stat(dest + ".part")
	assert.True(t, os.IsNotExist(partErr), "temp file must not persist")

	assert.True(t, store.Has("prod1/file1"))

	// Second fetch is served from the completion store
	status, _, err = f.Fetch(context.Background(), fileEntry(server), dest)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, status)
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests))
}

func TestFetchRedownloadsWhenFileVanished(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("file content"))
	}))
	defer server.Close()

	store := testStore(t)
	f := NewFetcher(testContentClient(t, server), store, nil, 3, logger.NewTestLogger())
	dest := filepath.Join(t.TempDir(), "sample.pdf")

	_, _, err := f.Fetch(context.Background(), fileEntry(server), dest)
	require.NoError(t, err)
	require.NoError(t, os.Remove(dest))

	status, _, err := f.Fetch(context.Background(), fileEntry(server), dest)
	require.NoError(t, err)
	assert.Equal(t, StatusDownloaded, status)
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requests, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("eventually fine"))
	}))
	defer server.Close()

	store := testStore(t)
	f := NewFetcher(testContentClient(t, server), store, nil, 5, logger.NewTestLogger())
	dest := filepath.Join(t.TempDir(), "sample.pdf")

	status, _, err := f.Fetch(context.Background(), fileEntry(server), dest)
	require.NoError(t, err)
	assert.Equal(t, StatusDownloaded, status)
	assert.Equal(t, int32(3), atomic.LoadInt32(&requests))
}

func TestFetchTruncatedTransferLeavesNothingBehind(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000")
		w.Write([]byte("short"))
	}))
	defer server.Close()

	store := testStore(t)
	f := NewFetcher(testContentClient(t, server), store, nil, 2, logger.NewTestLogger())
	dest := filepath.Join(t.TempDir(), "sample.pdf")

	status, _, err := f.Fetch(context.Background(), fileEntry(server), dest)
	require.Error(t, err)
	assert.Equal(t, StatusFailed, status)
	assert.Equal(t, apperrors.ErrorTypeDownload, apperrors.TypeOf(err))

	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr), "no final file after a truncated transfer")
	_, partErr := os.Stat(dest + ".part")
	assert.True(t, os.IsNotExist(partErr), "no temp file after a truncated transfer")
	assert.False(t, store.Has("prod1/file1"), "nothing recorded for a failed download")
}

func TestFetchFollowsContentRedirects(t *testing.T) {
	// Gumroad /r/ links commonly 302 to the file host; that is content
	// delivery, not an expired session
	mux := http.NewServeMux()
	mux.HandleFunc("/r/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/cdn/file1", http.StatusFound)
	})
	mux.HandleFunc("/cdn/file1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("file content"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	store := testStore(t)
	f := NewFetcher(testContentClient(t, server), store, nil, 3, logger.NewTestLogger())
	dest := filepath.Join(t.TempDir(), "sample.pdf")

	status, size, err := f.Fetch(context.Background(), fileEntry(server), dest)
	require.NoError(t, err)
	assert.Equal(t, StatusDownloaded, status)
	assert.Equal(t, int64(len("file content")), size)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "file content", string(data))
	assert.True(t, store.Has("prod1/file1"))
}

func TestFetchAuthFailureIsFatalAndNotRetried(t *testing.T) {
	var requests int32
	mux := http.NewServeMux()
	mux.HandleFunc("/r/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		http.Redirect(w, r, "/login", http.StatusFound)
	})
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>login form</body></html>"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	store := testStore(t)
	f := NewFetcher(testContentClient(t, server), store, nil, 5, logger.NewTestLogger())
	dest := filepath.Join(t.TempDir(), "sample.pdf")

	status, _, err := f.Fetch(context.Background(), fileEntry(server), dest)
	require.Error(t, err)
	assert.Equal(t, StatusFailed, status)
	assert.Equal(t, apperrors.ErrorTypeAuth, apperrors.TypeOf(err))
	assert.True(t, apperrors.IsFatal(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests))
}
