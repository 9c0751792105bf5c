package scraper

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"gumdl/internal/downloader"
	"gumdl/pkg/cache"
	"gumdl/pkg/config"
	apperrors "gumdl/pkg/errors"
	"gumdl/pkg/gumroad"
	"gumdl/pkg/logger"
	"gumdl/pkg/pathtemplate"
	"gumdl/pkg/ratelimit"
)

// Runner drives the scrape-resolve-download pipeline over a scope.
// Per-item failures are isolated: one broken purchase or file never
// stops the rest. Auth and config failures abort the whole run, since
// every remaining item would fail identically.
type Runner struct {
	cfg      *config.Config
	client   *gumroad.Client
	resolver *gumroad.Resolver
	store    *cache.Store
	logger   logger.Logger
}

// New creates a runner over an authenticated client and an open
// completion store
func New(cfg *config.Config, client *gumroad.Client, store *cache.Store, log logger.Logger) *Runner {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Runner{
		cfg:      cfg,
		client:   client,
		resolver: gumroad.NewResolver(client, log),
		store:    store,
		logger:   log,
	}
}

// Run executes the pipeline for the given scope. It always returns a
// summary; a non-nil error means the run aborted before covering the
// whole scope.
func (r *Runner) Run(ctx context.Context, scope Scope) (*Summary, error) {
	start := time.Now()
	summary := &Summary{}
	defer func() { summary.Duration = time.Since(start) }()

	// A template typo fails here, before any network traffic
	if err := pathtemplate.Validate(r.cfg.Output.ProductFolderTemplate); err != nil {
		return summary, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	limiter := ratelimit.NewCombined(r.buildLimiters()...)
	fetcher := downloader.NewFetcher(r.client, r.store, limiter, r.cfg.Download.RetryAttempts, r.logger)
	pool := downloader.NewWorkerPool(runCtx, r.cfg.Download.ConcurrentDownloads, fetcher, r.logger)
	pool.Start()

	// The collector owns the summary's download counters; a fatal result
	// cancels the run context so enumeration stops submitting.
	var mu sync.Mutex
	var fatalErr error
	setFatal := func(err error) {
		mu.Lock()
		if fatalErr == nil {
			fatalErr = err
		}
		mu.Unlock()
		cancel()
	}

	collectorDone := make(chan struct{})
	go func() {
		defer close(collectorDone)
		for result := range pool.Results() {
			mu.Lock()
			switch result.Status {
			case downloader.StatusDownloaded:
				summary.FilesDownloaded++
				summary.BytesDownloaded += result.Size
			case downloader.StatusSkipped:
				summary.FilesSkipped++
			case downloader.StatusFailed:
				summary.FilesFailed++
				summary.Errors = append(summary.Errors, ItemError{
					ItemID: result.Job.File.FileID,
					Stage:  "download",
					Err:    result.Error,
				})
			}
			mu.Unlock()

			if result.Error != nil && apperrors.IsFatal(result.Error) {
				setFatal(result.Error)
			}
		}
	}()

	r.processPurchases(runCtx, scope, summary, pool, &mu, setFatal)

	pool.Stop()
	<-collectorDone

	mu.Lock()
	defer mu.Unlock()
	return summary, fatalErr
}

func (r *Runner) buildLimiters() []ratelimit.Limiter {
	var limiters []ratelimit.Limiter
	if r.cfg.Download.PoliteDelay > 0 {
		limiters = append(limiters, ratelimit.NewPoliteDelay(r.cfg.Download.PoliteDelay))
	}
	if r.cfg.Download.RequestsPerMinute > 0 {
		limiters = append(limiters, ratelimit.NewSlidingWindow(r.cfg.Download.RequestsPerMinute, time.Minute))
	}
	return limiters
}

// processPurchases walks the scope's purchases and submits their files
// to the pool. Counters it touches are guarded by mu because the
// collector mutates the same summary concurrently.
func (r *Runner) processPurchases(ctx context.Context, scope Scope, summary *Summary, pool *downloader.WorkerPool, mu *sync.Mutex, setFatal func(error)) {
	handle := func(purchase gumroad.Purchase) bool {
		// A fatal result may have cancelled the run while purchases were
		// still buffered; they are not failures, the run is just over
		if ctx.Err() != nil {
			return false
		}
		mu.Lock()
		summary.PurchasesSeen++
		mu.Unlock()
		return r.processPurchase(ctx, purchase, summary, pool, mu, setFatal)
	}

	if len(scope.Products) > 0 {
		for _, id := range scope.Products {
			if !handle(gumroad.PurchaseFromIdentifier(r.client.BaseURL(), id)) {
				return
			}
		}
		return
	}

	e := gumroad.NewEnumerator(r.client, scope.Creator, r.logger)
	for e.Next(ctx) {
		if !handle(e.Purchase()) {
			return
		}
	}
	if err := e.Err(); err != nil {
		if apperrors.IsFatal(err) {
			setFatal(err)
			return
		}
		if ctx.Err() != nil {
			return
		}
		mu.Lock()
		summary.Errors = append(summary.Errors, ItemError{Stage: "enumeration", Err: err})
		mu.Unlock()
	}
}

// processPurchase resolves one purchase and submits its files. It
// returns false when the run must stop.
func (r *Runner) processPurchase(ctx context.Context, purchase gumroad.Purchase, summary *Summary, pool *downloader.WorkerPool, mu *sync.Mutex, setFatal func(error)) bool {
	product, err := r.resolver.Resolve(ctx, &purchase)
	if err != nil {
		if apperrors.IsFatal(err) {
			setFatal(err)
			return false
		}
		if ctx.Err() != nil {
			// The run was cancelled mid-resolve; not an item failure
			return false
		}
		mu.Lock()
		summary.ResolutionFailures++
		summary.Errors = append(summary.Errors, ItemError{
			ItemID: purchase.ProductID,
			Stage:  "resolution",
			Err:    err,
		})
		mu.Unlock()
		return true
	}

	folder, err := r.productFolder(&purchase)
	if err != nil {
		mu.Lock()
		summary.ResolutionFailures++
		summary.Errors = append(summary.Errors, ItemError{
			ItemID: purchase.ProductID,
			Stage:  "template",
			Err:    err,
		})
		mu.Unlock()
		return true
	}

	mu.Lock()
	summary.ProductsResolved++
	if product.Partial {
		summary.ProductsPartial++
		summary.Errors = append(summary.Errors, ItemError{
			ItemID: purchase.ProductID,
			Stage:  "resolution",
			Err: apperrors.Newf(apperrors.ErrorTypeResolution,
				"only %d of %d files could be extracted", len(product.Files), product.ExpectedFiles),
		})
	}
	mu.Unlock()

	for _, file := range product.Files {
		rel := pathtemplate.SanitizeRelPath(file.DisplayName)
		if rel == "" {
			rel = pathtemplate.SanitizeSegment(file.FileID)
		}
		job := downloader.DownloadJob{
			ProductID: product.ProductID,
			File:      file,
			DestPath:  filepath.Join(folder, filepath.FromSlash(rel)),
		}
		if err := pool.Submit(job); err != nil {
			// Pool refuses jobs only once the run context is cancelled
			return false
		}
	}
	return true
}

// productFolder renders the destination directory for one purchase:
// <root>/<creator>/<rendered template>
func (r *Runner) productFolder(purchase *gumroad.Purchase) (string, error) {
	name, err := pathtemplate.Render(r.cfg.Output.ProductFolderTemplate, pathtemplate.Fields(purchase))
	if err != nil {
		return "", err
	}

	parts := []string{r.cfg.Output.RootFolder}
	if creator := pathtemplate.SanitizeSegment(purchase.CreatorHandle); creator != "" {
		parts = append(parts, creator)
	}
	parts = append(parts, name)
	return filepath.Join(parts...), nil
}
