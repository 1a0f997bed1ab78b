package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"mediadl/pkg/hasher"
	"mediadl/pkg/ledger"
	"mediadl/pkg/logger"
	"mediadl/pkg/models"
	"mediadl/pkg/retry"
	"mediadl/pkg/scraper"
	"mediadl/pkg/storage"
)

var errPoolStopped = errors.New("worker pool is shutting down")

// Transferer streams one remote file into w
type Transferer interface {
	Download(ctx context.Context, domain, url, referer string, w io.Writer) (int64, error)
}

// Ledger is the part of the completion ledger the pool records into
type Ledger interface {
	IsComplete(ctx context.Context, domain string, item *models.MediaItem) (bool, error)
	DownloadedFilename(ctx context.Context, domain string, item *models.MediaItem) (string, error)
	RecordIncomplete(ctx context.Context, domain string, item *models.MediaItem) error
	MarkComplete(ctx context.Context, domain string, item *models.MediaItem) error
	RecordFileSize(ctx context.Context, domain string, item *models.MediaItem) error
	RecordDigest(ctx context.Context, item *models.MediaItem, algorithm string) error
	FilesWithDigest(ctx context.Context, digest string) ([]ledger.DigestRow, error)
}

// Options configures a WorkerPool
type Options struct {
	Workers int
	// Canonicalizer derives ledger domains for files handed over without
	// one; nil uses the default rules.
	Canonicalizer *ledger.Canonicalizer
	Limiter       scraper.HostLimiter
	Retrier       *retry.HTTPRetrier
	// Hasher enables content digests; nil skips hashing
	Hasher *hasher.Hasher
	Logger logger.Logger
}

// Stats counts file outcomes since the pool was created
type Stats struct {
	Downloaded int64
	Skipped    int64
	Failed     int64
}

type job struct {
	ctx      context.Context
	domain   string
	url      *url.URL
	item     *models.ScrapeItem
	filename string
	ext      string
	reply    chan error
}

// WorkerPool is the file handler of a crawl. HandleFile queues a file and
// blocks until a worker has finished it, so at most Workers transfers run at
// once however wide the scrape graph fans out.
type WorkerPool struct {
	numWorkers int
	jobQueue   chan job
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc

	client  Transferer
	ledger  Ledger
	storage *storage.Manager
	opts    Options
	retrier *retry.HTTPRetrier
	logger  logger.Logger

	downloaded atomic.Int64
	skipped    atomic.Int64
	failed     atomic.Int64
}

var _ scraper.FileHandler = (*WorkerPool)(nil)

// NewWorkerPool creates a new download worker pool
func NewWorkerPool(client Transferer, l Ledger, store *storage.Manager, opts Options) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())

	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	retrier := opts.Retrier
	if retrier == nil {
		retrier = retry.NewHTTPRetrier(3, log)
	}
	if opts.Canonicalizer == nil {
		opts.Canonicalizer = ledger.DefaultCanonicalizer()
	}

	return &WorkerPool{
		numWorkers: opts.Workers,
		jobQueue:   make(chan job, opts.Workers*2),
		ctx:        ctx,
		cancel:     cancel,
		client:     client,
		ledger:     l,
		storage:    store,
		opts:       opts,
		retrier:    retrier,
		logger:     log.WithField("component", "downloader"),
	}
}

// Start initializes and starts all workers
func (wp *WorkerPool) Start() {
	wp.logger.InfoWithFields("Starting worker pool", map[string]interface{}{
		"num_workers": wp.numWorkers,
	})

	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop shuts the workers down after their current file. Files still queued
// fail with a shutdown error.
func (wp *WorkerPool) Stop() {
	wp.logger.Info("Stopping worker pool...")
	wp.cancel()
	wp.wg.Wait()
	wp.logger.Info("Worker pool stopped")
}

// Stats returns a snapshot of the outcome counters
func (wp *WorkerPool) Stats() Stats {
	return Stats{
		Downloaded: wp.downloaded.Load(),
		Skipped:    wp.skipped.Load(),
		Failed:     wp.failed.Load(),
	}
}

// HandleFile downloads one direct file unless the ledger already has it
func (wp *WorkerPool) HandleFile(ctx context.Context, domain string, u *url.URL, item *models.ScrapeItem, filename, ext string) error {
	j := job{ctx: ctx, domain: domain, url: u, item: item, filename: filename, ext: ext, reply: make(chan error, 1)}

	select {
	case wp.jobQueue <- j:
		wp.logger.DebugWithFields("Job submitted to queue", map[string]interface{}{
			"url":      u.String(),
			"filename": filename,
		})
	case <-ctx.Done():
		return ctx.Err()
	case <-wp.ctx.Done():
		return errPoolStopped
	}

	select {
	case err := <-j.reply:
		return err
	case <-ctx.Done():
		// the worker sees the same ctx and gives up on its own
		return ctx.Err()
	case <-wp.ctx.Done():
		return errPoolStopped
	}
}

// worker is the main worker routine
func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	wp.logger.DebugWithFields("Worker started", map[string]interface{}{
		"worker_id": id,
	})

	for {
		select {
		case <-wp.ctx.Done():
			wp.logger.DebugWithFields("Worker stopping", map[string]interface{}{
				"worker_id": id,
			})
			return
		case j := <-wp.jobQueue:
			if err := j.ctx.Err(); err != nil {
				j.reply <- err
				continue
			}
			j.reply <- wp.processJob(j)
		}
	}
}

// processJob runs the ledger protocol around one transfer
func (wp *WorkerPool) processJob(j job) error {
	ctx := j.ctx
	start := time.Now()
	domain := j.domain
	if domain == "" {
		domain = wp.opts.Canonicalizer.HostDomain(j.url.Hostname())
	}

	media := &models.MediaItem{
		URL:              j.url,
		Referer:          j.item.Referer(),
		Domain:           domain,
		AlbumID:          j.item.AlbumID,
		DownloadFolder:   wp.storage.Folder(j.item.ParentTitle),
		Filename:         j.filename,
		OriginalFilename: j.filename,
		Ext:              j.ext,
		Datetime:         j.item.PossibleDatetime,
	}

	complete, err := wp.ledger.IsComplete(ctx, domain, media)
	if err != nil {
		return wp.fail(media, err)
	}
	if complete {
		wp.skipped.Add(1)
		logger.LogDownload(wp.logger, domain, j.url.String(), j.filename, true, nil)
		return nil
	}

	previous, err := wp.ledger.DownloadedFilename(ctx, domain, media)
	if err != nil {
		return wp.fail(media, err)
	}
	name, err := wp.storage.Resolve(ctx, media.DownloadFolder, j.filename, previous)
	if err != nil {
		return wp.fail(media, err)
	}
	defer wp.storage.Release(media.DownloadFolder, name)

	media.DownloadFilename = name
	media.CompleteFile = filepath.Join(media.DownloadFolder, name)

	if err := wp.ledger.RecordIncomplete(ctx, domain, media); err != nil {
		return wp.fail(media, err)
	}

	if err := wp.transfer(ctx, media); err != nil {
		return wp.fail(media, err)
	}

	// the file is on disk; finish the bookkeeping even if the run is cancelled
	writeCtx := context.WithoutCancel(ctx)
	if err := wp.ledger.MarkComplete(writeCtx, domain, media); err != nil {
		return wp.fail(media, err)
	}
	if err := wp.ledger.RecordFileSize(writeCtx, domain, media); err != nil {
		wp.logger.WithError(err).WarnWithFields("Failed to record file size", map[string]interface{}{
			"file": media.CompleteFile,
		})
	}
	if err := storage.SetModTime(media.CompleteFile, media.Datetime); err != nil {
		wp.logger.WithError(err).Warn("Failed to set file time")
	}
	if wp.opts.Hasher != nil {
		if err := wp.HashAndRecord(writeCtx, media); err != nil {
			wp.logger.WithError(err).WarnWithFields("Failed to hash file", map[string]interface{}{
				"file": media.CompleteFile,
			})
		}
	}

	wp.downloaded.Add(1)
	logger.LogDownload(wp.logger.WithFields(map[string]interface{}{
		"size":     media.FileSize,
		"duration": time.Since(start),
	}), domain, j.url.String(), name, false, nil)
	return nil
}

// transfer streams the file into a temporary sibling and renames it into
// place. Each attempt waits for the host limiter and starts from an empty file.
func (wp *WorkerPool) transfer(ctx context.Context, media *models.MediaItem) error {
	w, err := wp.storage.Create(media.CompleteFile)
	if err != nil {
		return err
	}
	defer w.Abort()

	err = wp.retrier.Do(ctx, func(ctx context.Context) error {
		if wp.opts.Limiter != nil {
			if err := wp.opts.Limiter.Wait(ctx, media.URL.Host); err != nil {
				return err
			}
		}
		if err := w.Reset(); err != nil {
			return err
		}
		_, err := wp.client.Download(ctx, media.Domain, media.URL.String(), media.Referer, w)
		return err
	})
	if err != nil {
		return err
	}
	return w.Commit()
}

// HashAndRecord digests the completed file, stores the digest in the ledger
// and reports other files with the same content.
func (wp *WorkerPool) HashAndRecord(ctx context.Context, media *models.MediaItem) error {
	h := wp.opts.Hasher
	digest, err := h.Hash(ctx, media.CompleteFile)
	if err != nil {
		return err
	}
	media.Digest = digest

	if err := wp.ledger.RecordDigest(ctx, media, string(h.Algorithm())); err != nil {
		return err
	}

	rows, err := wp.ledger.FilesWithDigest(ctx, digest)
	if err != nil {
		return err
	}
	var dupes []string
	for _, r := range rows {
		if r.Folder == media.DownloadFolder && r.DownloadFilename == media.DownloadFilename {
			continue
		}
		dupes = append(dupes, filepath.Join(r.Folder, r.DownloadFilename))
	}
	if len(dupes) > 0 {
		wp.logger.InfoWithFields("Duplicate content", map[string]interface{}{
			"file":       media.CompleteFile,
			"digest":     digest,
			"duplicates": dupes,
		})
	}
	return nil
}

func (wp *WorkerPool) fail(media *models.MediaItem, err error) error {
	wp.failed.Add(1)
	name := media.DownloadFilename
	if name == "" {
		name = media.Filename
	}
	logger.LogDownload(wp.logger, media.Domain, media.URL.String(), name, false, err)
	return fmt.Errorf("download %s: %w", media.URL, err)
}
