package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	errs "mediadl/pkg/errors"
	"mediadl/pkg/logger"
	"mediadl/pkg/models"
)

// Deps are the collaborators a Scraper talks to
type Deps struct {
	Fetcher     Fetcher
	Files       FileHandler
	Credentials CredentialSource
	Limiter     HostLimiter
	Logger      logger.Logger
}

// Stats summarizes one run
type Stats struct {
	Dispatched int64
	Failures   int64
	Files      int64
	Duration   time.Duration
}

// Scraper orchestrates the crawl graph. Each discovered item becomes a
// detached task; Run returns when the whole graph has been walked.
type Scraper struct {
	deps   Deps
	site   *Coomer
	routes []Route
	logger logger.Logger

	mu    sync.Mutex
	group *TaskGroup
	files atomic.Int64
}

// New creates a Scraper for the site rooted at base (e.g. https://coomer.su)
func New(base string, deps Deps, opts PostOptions) (*Scraper, error) {
	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", base)
	}
	if deps.Fetcher == nil || deps.Files == nil {
		return nil, errors.New("scraper needs a fetcher and a file handler")
	}
	if deps.Logger == nil {
		deps.Logger = logger.GetLogger()
	}
	if deps.Credentials == nil {
		deps.Credentials = noCredentials{}
	}
	if deps.Limiter == nil {
		deps.Limiter = unlimited{}
	}

	s := &Scraper{deps: deps, logger: deps.Logger}
	s.site = newCoomer(u, deps, s, fileCounter{s}, opts, deps.Logger)
	s.routes = s.site.Routes()
	return s, nil
}

// Routes returns the decision table in evaluation order
func (s *Scraper) Routes() []Route {
	return s.routes
}

// Run walks the graph reachable from seeds. Per-item failures are logged and
// counted in Stats; the returned error is only ctx's.
func (s *Scraper) Run(ctx context.Context, seeds []*url.URL) (Stats, error) {
	start := time.Now()
	group := NewTaskGroup(ctx, s.logger)

	s.mu.Lock()
	if s.group != nil {
		s.mu.Unlock()
		return Stats{}, errors.New("scraper is already running")
	}
	s.group = group
	s.files.Store(0)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.group = nil
		s.mu.Unlock()
	}()

	s.logger.InfoWithFields("Crawl started", map[string]interface{}{"seeds": len(seeds)})

	for _, seed := range seeds {
		s.Spawn(models.NewScrapeItem(seed))
	}
	_ = group.Wait()

	stats := Stats{
		Dispatched: group.Started(),
		Failures:   group.Failures(),
		Files:      s.files.Load(),
		Duration:   time.Since(start),
	}
	s.logger.InfoWithFields("Crawl finished", map[string]interface{}{
		"dispatched": stats.Dispatched,
		"failures":   stats.Failures,
		"files":      stats.Files,
		"duration":   stats.Duration,
	})
	return stats, ctx.Err()
}

// Spawn schedules item as a detached task of the current run
func (s *Scraper) Spawn(item *models.ScrapeItem) {
	s.mu.Lock()
	group := s.group
	s.mu.Unlock()

	if group == nil {
		s.logger.WithField("url", item.URL.String()).Warn("Spawn outside of a run, dropping item")
		return
	}
	group.Go(item.URL.String(), func(ctx context.Context) error {
		return s.Dispatch(ctx, item)
	})
}

// Dispatch classifies item and runs the matching handler in the caller's
// goroutine.
func (s *Scraper) Dispatch(ctx context.Context, item *models.ScrapeItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	route, ok := Classify(s.routes, item.URL)
	if !ok {
		return errs.NewScrapeFailure(http.StatusNotFound, "no route for URL", item.URL.String())
	}

	s.logger.DebugWithFields("Dispatching", map[string]interface{}{
		"url":   item.URL.String(),
		"route": route.Name,
	})
	return route.Handle(ctx, item)
}

// fileCounter counts files handed to the configured FileHandler
type fileCounter struct{ s *Scraper }

func (f fileCounter) HandleFile(ctx context.Context, domain string, u *url.URL, item *models.ScrapeItem, filename, ext string) error {
	f.s.files.Add(1)
	return f.s.deps.Files.HandleFile(ctx, domain, u, item, filename, ext)
}

type noCredentials struct{}

func (noCredentials) Session(string) string { return "" }

type unlimited struct{}

func (unlimited) Wait(ctx context.Context, _ string) error { return ctx.Err() }
