// Package cache persists the set of completed downloads so repeated runs
// skip files already fetched. The store is a single JSON file replaced
// atomically on every update, so a crash mid-run never corrupts it: a
// record exists only after the file it describes was fully written.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	apperrors "gumdl/pkg/errors"
	"gumdl/pkg/logger"
)

// Record marks one file as completely downloaded
type Record struct {
	FileID      string    `json:"file_id"`
	LocalPath   string    `json:"local_path"`
	SizeBytes   int64     `json:"size_bytes"`
	CompletedAt time.Time `json:"completed_at"`
}

type cacheFile struct {
	Version int               `json:"version"`
	Records map[string]Record `json:"records"`
}

// Store is the on-disk completed-download set. It is guarded against
// concurrent processes by an advisory lock file; within one process it is
// safe for use from multiple download workers.
type Store struct {
	path     string
	lockPath string
	logger   logger.Logger

	mu      sync.Mutex
	records map[string]Record
}

// Open loads (or creates) the cache at path and takes the advisory lock.
// A second process opening the same cache fails here instead of the two
// silently clobbering each other's writes.
func Open(path string, log logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrorTypeConfig, "", err, "failed to create cache directory")
	}

	lockPath := path + ".lock"
	lock, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil, apperrors.Newf(apperrors.ErrorTypeConfig,
				"cache is locked by another run (remove %s if no other run is active)", lockPath)
		}
		return nil, apperrors.Wrap(apperrors.ErrorTypeConfig, "", err, "failed to lock cache")
	}
	fmt.Fprintf(lock, "%d\n", os.Getpid())
	lock.Close()

	s := &Store{
		path:     path,
		lockPath: lockPath,
		logger:   log,
		records:  make(map[string]Record),
	}

	if err := s.load(); err != nil {
		os.Remove(lockPath)
		return nil, err
	}

	log.DebugWithFields("cache opened", map[string]interface{}{
		"path":    path,
		"records": len(s.records),
	})
	return s, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return apperrors.Wrap(apperrors.ErrorTypeConfig, "", err, "failed to read cache file")
	}

	var f cacheFile
	if err := json.Unmarshal(data, &f); err != nil {
		return apperrors.Wrap(apperrors.ErrorTypeConfig, "", err, "cache file is corrupt")
	}
	if f.Records != nil {
		s.records = f.Records
	}
	return nil
}

// Has reports whether a file is recorded as completely downloaded
func (s *Store) Has(fileID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[fileID]
	return ok
}

// Get returns the record for a file, if one exists
func (s *Store) Get(fileID string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[fileID]
	return r, ok
}

// Record marks a file as completely downloaded and persists immediately.
// Recording the same file again is a no-op unless the local path or size
// changed, in which case the record is updated in place.
func (s *Store) Record(fileID, localPath string, sizeBytes int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.records[fileID]; ok &&
		existing.LocalPath == localPath && existing.SizeBytes == sizeBytes {
		return nil
	}

	s.records[fileID] = Record{
		FileID:      fileID,
		LocalPath:   localPath,
		SizeBytes:   sizeBytes,
		CompletedAt: time.Now().UTC(),
	}
	return s.persist()
}

// Len returns the number of completed-download records
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// persist writes the whole store through a temp file and an atomic
// rename; readers never observe a partially written cache
func (s *Store) persist() error {
	data, err := json.MarshalIndent(cacheFile{Version: 1, Records: s.records}, "", "  ")
	if err != nil {
		return apperrors.Wrap(apperrors.ErrorTypeUnknown, "", err, "failed to encode cache")
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrorTypeUnknown, "", err, "failed to write cache")
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return apperrors.Wrap(apperrors.ErrorTypeUnknown, "", err, "failed to write cache")
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return apperrors.Wrap(apperrors.ErrorTypeUnknown, "", err, "failed to sync cache")
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return apperrors.Wrap(apperrors.ErrorTypeUnknown, "", err, "failed to close cache")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return apperrors.Wrap(apperrors.ErrorTypeUnknown, "", err, "failed to replace cache")
	}
	return nil
}

// Close releases the advisory lock. The store itself needs no flushing;
// every Record call persisted synchronously.
func (s *Store) Close() error {
	return os.Remove(s.lockPath)
}
