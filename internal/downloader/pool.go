package downloader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gumdl/pkg/gumroad"
	"gumdl/pkg/logger"
)

// DownloadJob represents a single file download task
type DownloadJob struct {
	ProductID string
	File      gumroad.FileEntry
	DestPath  string
}

// DownloadResult represents the result of a download job
type DownloadResult struct {
	Job      DownloadJob
	Status   Status
	Error    error
	Duration time.Duration
	Size     int64
}

// WorkerPool manages concurrent download workers. Workers share one
// fetcher, whose rate limiter paces the pool as a whole.
type WorkerPool struct {
	numWorkers  int
	jobQueue    chan DownloadJob
	resultQueue chan DownloadResult
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	fetcher     *Fetcher
	logger      logger.Logger
}

// NewWorkerPool creates a new download worker pool
func NewWorkerPool(ctx context.Context, numWorkers int, fetcher *Fetcher, log logger.Logger) *WorkerPool {
	if log == nil {
		log = logger.GetLogger()
	}
	if numWorkers < 1 {
		numWorkers = 1
	}

	poolCtx, cancel := context.WithCancel(ctx)
	return &WorkerPool{
		numWorkers:  numWorkers,
		jobQueue:    make(chan DownloadJob, numWorkers*2),
		resultQueue: make(chan DownloadResult, numWorkers),
		ctx:         poolCtx,
		cancel:      cancel,
		fetcher:     fetcher,
		logger:      log,
	}
}

// Start initializes and starts all workers
func (wp *WorkerPool) Start() {
	wp.logger.DebugWithFields("starting worker pool", map[string]interface{}{
		"num_workers": wp.numWorkers,
	})

	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop gracefully shuts down the worker pool: no more jobs are accepted,
// queued jobs finish, and the result queue closes after the last one.
func (wp *WorkerPool) Stop() {
	close(wp.jobQueue)
	wp.wg.Wait()
	close(wp.resultQueue)
	wp.cancel()
}

// Abort cancels in-flight work without waiting for the queue to drain
func (wp *WorkerPool) Abort() {
	wp.cancel()
}

// Submit adds a new download job to the queue
func (wp *WorkerPool) Submit(job DownloadJob) error {
	select {
	case wp.jobQueue <- job:
		return nil
	case <-wp.ctx.Done():
		return fmt.Errorf("worker pool is shutting down")
	}
}

// Results returns the result channel for consuming download results
func (wp *WorkerPool) Results() <-chan DownloadResult {
	return wp.resultQueue
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for job := range wp.jobQueue {
		select {
		case <-wp.ctx.Done():
			return
		default:
		}

		result := wp.processJob(job, id)

		select {
		case wp.resultQueue <- result:
		case <-wp.ctx.Done():
			return
		}
	}
}

func (wp *WorkerPool) processJob(job DownloadJob, workerID int) DownloadResult {
	start := time.Now()

	wp.logger.DebugWithFields("worker processing job", map[string]interface{}{
		"worker_id": workerID,
		"file_id":   job.File.FileID,
	})

	status, size, err := wp.fetcher.Fetch(wp.ctx, job.File, job.DestPath)
	return DownloadResult{
		Job:      job,
		Status:   status,
		Error:    err,
		Duration: time.Since(start),
		Size:     size,
	}
}
