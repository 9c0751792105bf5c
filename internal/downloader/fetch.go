package downloader

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gumdl/pkg/cache"
	apperrors "gumdl/pkg/errors"
	"gumdl/pkg/gumroad"
	"gumdl/pkg/logger"
	"gumdl/pkg/ratelimit"
	"gumdl/pkg/retry"
)

// ContentClient fetches authenticated file content, following redirects
// to the file host. The caller owns the response body.
type ContentClient interface {
	Download(ctx context.Context, url string) (*http.Response, error)
	CheckResponse(resp *http.Response) error
}

// CompletionStore records fully downloaded files across runs
type CompletionStore interface {
	Get(fileID string) (cache.Record, bool)
	Record(fileID, localPath string, sizeBytes int64) error
}

// Status classifies how a file job ended
type Status string

const (
	StatusDownloaded Status = "downloaded"
	StatusSkipped    Status = "skipped"
	StatusFailed     Status = "failed"
)

// Fetcher downloads single files with pacing, retries and crash-safe
// writes. A file reaches its final path, and the completion store, only
// after its whole body was written and synced; an interrupted download
// leaves a .part file behind and no record.
type Fetcher struct {
	client      ContentClient
	store       CompletionStore
	rateLimiter ratelimit.Limiter
	maxAttempts int
	logger      logger.Logger
}

// NewFetcher creates a fetcher. rateLimiter may be nil when no pacing is
// wanted (tests); maxAttempts <= 0 falls back to a single attempt.
func NewFetcher(client ContentClient, store CompletionStore, rateLimiter ratelimit.Limiter, maxAttempts int, log logger.Logger) *Fetcher {
	if log == nil {
		log = logger.GetLogger()
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &Fetcher{
		client:      client,
		store:       store,
		rateLimiter: rateLimiter,
		maxAttempts: maxAttempts,
		logger:      log,
	}
}

// Fetch downloads one file to destPath, or skips it when the completion
// store already has it and the file is still on disk. Re-downloading
// after a crash is safe: nothing was recorded for the interrupted file.
func (f *Fetcher) Fetch(ctx context.Context, file gumroad.FileEntry, destPath string) (Status, int64, error) {
	if rec, ok := f.store.Get(file.FileID); ok {
		if info, err := os.Stat(rec.LocalPath); err == nil && info.Size() == rec.SizeBytes {
			f.logger.DebugWithFields("file already downloaded, skipping", map[string]interface{}{
				"file_id": file.FileID,
				"path":    rec.LocalPath,
			})
			return StatusSkipped, rec.SizeBytes, nil
		}
		f.logger.WarnWithFields("cached file missing on disk, re-downloading", map[string]interface{}{
			"file_id": file.FileID,
			"path":    rec.LocalPath,
		})
	}

	if f.rateLimiter != nil {
		if err := f.rateLimiter.Wait(ctx); err != nil {
			return StatusFailed, 0, apperrors.Wrap(apperrors.ErrorTypeDownload, file.FileID, err, "download cancelled")
		}
	}

	var size int64
	err := retry.Do(func() error {
		var attemptErr error
		size, attemptErr = f.download(ctx, file, destPath)
		return attemptErr
	}, &retry.Config{
		MaxAttempts: f.maxAttempts,
		Backoff:     retry.DefaultExponentialBackoff(),
		RetryIf:     retry.DefaultRetryIf,
		Context:     ctx,
		Logger:      f.logger,
	})
	if err != nil {
		// Auth failures keep their type so the run aborts instead of
		// marching through purchases that will all fail the same way
		if apperrors.IsFatal(err) {
			return StatusFailed, 0, err
		}
		return StatusFailed, 0, apperrors.Wrap(apperrors.ErrorTypeDownload, file.FileID, err, "download failed")
	}

	if err := f.store.Record(file.FileID, destPath, size); err != nil {
		return StatusFailed, 0, apperrors.Wrap(apperrors.ErrorTypeDownload, file.FileID, err, "failed to record download")
	}

	return StatusDownloaded, size, nil
}

// download performs one attempt: stream the body to a .part file and
// move it into place only when it arrived complete
func (f *Fetcher) download(ctx context.Context, file gumroad.FileEntry, destPath string) (int64, error) {
	start := time.Now()

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return 0, apperrors.Wrap(apperrors.ErrorTypeDownload, file.FileID, err, "failed to create destination directory")
	}

	resp, err := f.client.Download(ctx, file.DownloadURL)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if err := f.client.CheckResponse(resp); err != nil {
		return 0, err
	}

	partPath := destPath + ".part"
	out, err := os.OpenFile(partPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrorTypeDownload, file.FileID, err, "failed to create temp file")
	}

	written, err := io.Copy(out, resp.Body)
	if err != nil {
		out.Close()
		os.Remove(partPath)
		return 0, apperrors.Wrap(apperrors.ErrorTypeNetwork, file.FileID, err, "transfer interrupted")
	}

	// A short body with a declared length is a truncated transfer, not a
	// complete file
	if declared := resp.Header.Get("Content-Length"); declared != "" {
		if expected, perr := strconv.ParseInt(declared, 10, 64); perr == nil && written != expected {
			out.Close()
			os.Remove(partPath)
			return 0, apperrors.Newf(apperrors.ErrorTypeNetwork, "incomplete transfer: got %d of %d bytes", written, expected)
		}
	}

	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(partPath)
		return 0, apperrors.Wrap(apperrors.ErrorTypeDownload, file.FileID, err, "failed to sync file")
	}
	if err := out.Close(); err != nil {
		os.Remove(partPath)
		return 0, apperrors.Wrap(apperrors.ErrorTypeDownload, file.FileID, err, "failed to close file")
	}
	if err := os.Rename(partPath, destPath); err != nil {
		os.Remove(partPath)
		return 0, apperrors.Wrap(apperrors.ErrorTypeDownload, file.FileID, err, "failed to move file into place")
	}

	f.logger.InfoWithFields("file downloaded", map[string]interface{}{
		"file_id":  file.FileID,
		"path":     destPath,
		"bytes":    written,
		"duration": time.Since(start),
	})
	return written, nil
}
