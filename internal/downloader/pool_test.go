package downloader

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gumdl/pkg/gumroad"
	"gumdl/pkg/logger"
)

func TestWorkerPoolProcessesAllJobs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "content of %s", r.URL.Path)
	}))
	defer server.Close()

	store := testStore(t)
	fetcher := NewFetcher(testContentClient(t, server), store, nil, 3, logger.NewTestLogger())
	pool := NewWorkerPool(context.Background(), 2, fetcher, logger.NewTestLogger())
	pool.Start()

	outDir := t.TempDir()
	const jobs = 5
	go func() {
		for i := 0; i < jobs; i++ {
			pool.Submit(DownloadJob{
				ProductID: "prod1",
				File: gumroad.FileEntry{
					FileID:      fmt.Sprintf("prod1/file%d", i),
					DisplayName: fmt.Sprintf("file%d.pdf", i),
					DownloadURL: fmt.Sprintf("%s/r/prod1/file%d", server.URL, i),
				},
				DestPath: filepath.Join(outDir, fmt.Sprintf("file%d.pdf", i)),
			})
		}
		pool.Stop()
	}()

	downloaded := 0
	for result := range pool.Results() {
		require.NoError(t, result.Error)
		assert.Equal(t, StatusDownloaded, result.Status)
		downloaded++
	}
	assert.Equal(t, jobs, downloaded)
	assert.Equal(t, jobs, store.Len())
}

func TestWorkerPoolReportsPerJobFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/r/prod1/bad" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	store := testStore(t)
	fetcher := NewFetcher(testContentClient(t, server), store, nil, 2, logger.NewTestLogger())
	pool := NewWorkerPool(context.Background(), 1, fetcher, logger.NewTestLogger())
	pool.Start()

	outDir := t.TempDir()
	go func() {
		pool.Submit(DownloadJob{
			File:     gumroad.FileEntry{FileID: "prod1/good", DownloadURL: server.URL + "/r/prod1/good"},
			DestPath: filepath.Join(outDir, "good"),
		})
		pool.Submit(DownloadJob{
			File:     gumroad.FileEntry{FileID: "prod1/bad", DownloadURL: server.URL + "/r/prod1/bad"},
			DestPath: filepath.Join(outDir, "bad"),
		})
		pool.Stop()
	}()

	results := make(map[string]DownloadResult)
	for result := range pool.Results() {
		results[result.Job.File.FileID] = result
	}

	require.Len(t, results, 2)
	assert.Equal(t, StatusDownloaded, results["prod1/good"].Status)
	assert.Equal(t, StatusFailed, results["prod1/bad"].Status)
	assert.Error(t, results["prod1/bad"].Error)
}
