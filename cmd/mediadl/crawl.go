package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"mediadl/internal/downloader"
	"mediadl/pkg/auth"
	"mediadl/pkg/client"
	"mediadl/pkg/config"
	"mediadl/pkg/hasher"
	"mediadl/pkg/ledger"
	"mediadl/pkg/logger"
	"mediadl/pkg/ratelimit"
	"mediadl/pkg/retry"
	"mediadl/pkg/scraper"
	"mediadl/pkg/storage"
	"mediadl/pkg/ui"
)

var (
	// Crawl command flags
	outputDir     string
	workers       int
	requestsPerS  float64
	ignoreHistory bool
	ignoreAds     bool
	separatePosts bool
	hashAlgorithm string
)

// crawlCmd represents the crawl command
var crawlCmd = &cobra.Command{
	Use:   "crawl <url>...",
	Short: "Download every file reachable from the given URLs",
	Long: `Crawl profiles, single posts, favorites pages and direct file links and
download every attached file.

Seeds on different hosts are crawled one host at a time. Files already marked
complete in the ledger are skipped unless --ignore-history is set.`,
	Example: `  # Download a whole profile
  mediadl crawl https://coomer.su/onlyfans/user/alice

  # One post per folder, skipping promotional posts
  mediadl crawl --separate-posts --ignore-ads https://coomer.su/onlyfans/user/alice

  # Your favorites (needs a session, see 'mediadl auth guide coomer')
  mediadl crawl https://coomer.su/favorites`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCrawl,
}

func init() {
	rootCmd.AddCommand(crawlCmd)

	crawlCmd.Flags().StringVarP(&outputDir, "output", "o", "", "download directory")
	crawlCmd.Flags().IntVarP(&workers, "workers", "w", 0, "number of concurrent file transfers")
	crawlCmd.Flags().Float64Var(&requestsPerS, "rps", 0, "requests per second per host")
	crawlCmd.Flags().BoolVar(&ignoreHistory, "ignore-history", false, "download files even if the ledger marks them complete")
	crawlCmd.Flags().BoolVar(&ignoreAds, "ignore-ads", false, "skip posts that advertise other sites")
	crawlCmd.Flags().BoolVar(&separatePosts, "separate-posts", false, "put each post's files in its own folder")
	crawlCmd.Flags().StringVar(&hashAlgorithm, "hash", "", "content digest algorithm (blake2b, sha256, xxhash)")
}

// seedGroup is the set of seeds sharing one scheme and host
type seedGroup struct {
	base  string
	seeds []*url.URL
}

// groupSeeds parses raw seed URLs and groups them by origin, keeping the
// order in which each origin first appears.
func groupSeeds(raw []string) ([]seedGroup, error) {
	var groups []seedGroup
	index := make(map[string]int)

	for _, r := range raw {
		u, err := url.Parse(strings.TrimSpace(r))
		if err != nil {
			return nil, fmt.Errorf("invalid url %q: %w", r, err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("invalid url %q: need an absolute http(s) url", r)
		}

		base := u.Scheme + "://" + strings.ToLower(u.Host)
		i, ok := index[base]
		if !ok {
			i = len(groups)
			index[base] = i
			groups = append(groups, seedGroup{base: base})
		}
		groups[i].seeds = append(groups[i].seeds, u)
	}
	return groups, nil
}

func ledgerOptions(c *config.Config, log logger.Logger) ledger.Options {
	renames := make([]ledger.Rename, 0, len(c.Ledger.DomainRenames))
	for _, r := range c.Ledger.DomainRenames {
		renames = append(renames, ledger.Rename{From: r.From, To: r.To})
	}
	return ledger.Options{
		IgnoreHistory:   c.Ignore.IgnoreHistory,
		KnownBadDigests: c.Ledger.KnownBadDigests,
		KnownBadSizes:   c.Ledger.KnownBadSizes,
		DomainRenames:   renames,
		Logger:          log,
	}
}

func runCrawl(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	groups, err := groupSeeds(args)
	if err != nil {
		return err
	}

	runID := logger.NewRunID()
	log := logger.ForRun(logger.GetLogger(), runID)
	log.WithFields(map[string]interface{}{
		"version": version,
		"seeds":   len(args),
		"output":  cfg.Download.Directory,
	}).Info("Crawl starting")

	ui.PrintBanner()
	ui.PrintInfo("Run", runID)
	ui.PrintInfo("Output", cfg.Download.Directory)

	canon := ledger.DefaultCanonicalizer()
	opts := ledgerOptions(cfg, log)
	opts.Canonicalizer = canon
	led, err := ledger.Open(ctx, cfg.Database.Path, opts)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer led.Close()

	registry := ratelimit.NewRegistry(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, cfg.RateLimit.Hosts, log)

	fetcher := client.New(client.Options{
		UserAgent:  cfg.Network.UserAgent,
		Timeout:    cfg.Network.Timeout,
		MaxRetries: cfg.Download.MaxRetries,
		Logger:     log,
	})
	// Transfers are retried by the pool, which truncates the partial file
	// between attempts.
	transfers := client.New(client.Options{
		UserAgent:  cfg.Network.UserAgent,
		Timeout:    cfg.Download.Timeout,
		MaxRetries: 0,
		Logger:     log,
	})

	store, err := storage.NewManager(cfg.Download.Directory, led)
	if err != nil {
		return err
	}

	var h *hasher.Hasher
	if cfg.Hashing.Enabled {
		if h, err = hasher.New(cfg.Hashing.Algorithm); err != nil {
			return err
		}
	}

	creds := auth.Sources{cfg}
	if mgr, err := auth.NewManager(""); err != nil {
		log.WithError(err).Warn("Credential store unavailable, using configured sessions only")
	} else {
		creds = append(creds, mgr)
	}

	pool := downloader.NewWorkerPool(transfers, led, store, downloader.Options{
		Workers:       cfg.Download.Workers,
		Canonicalizer: canon,
		Limiter:       registry,
		Retrier:       retry.NewHTTPRetrier(cfg.Download.MaxRetries+1, log),
		Hasher:        h,
		Logger:        log,
	})
	pool.Start()
	defer pool.Stop()

	started := time.Now()
	var dispatched, failures int64
	for _, g := range groups {
		s, err := scraper.New(g.base, scraper.Deps{
			Fetcher:     fetcher,
			Files:       pool,
			Credentials: creds,
			Limiter:     registry,
			Logger:      log.WithField("host", g.base),
		}, scraper.PostOptions{
			IgnoreAds:      cfg.Ignore.IgnoreCoomerAds,
			SeparatePosts:  cfg.Download.SeparatePosts,
			IncludeAlbumID: cfg.Download.IncludeAlbumIDInFolderName,
		})
		if err != nil {
			return err
		}

		stats, err := s.Run(ctx, g.seeds)
		dispatched += stats.Dispatched
		failures += stats.Failures
		if err != nil {
			ui.PrintWarning("Crawl interrupted", err.Error())
			break
		}
	}

	fs := pool.Stats()
	summary := ui.Summary{
		Dispatched: dispatched,
		Downloaded: fs.Downloaded,
		Skipped:    fs.Skipped,
		Failed:     failures,
		Duration:   time.Since(started),
	}
	log.WithFields(map[string]interface{}{
		"dispatched": summary.Dispatched,
		"downloaded": summary.Downloaded,
		"skipped":    summary.Skipped,
		"failed":     summary.Failed,
		"duration":   summary.Duration.String(),
	}).Info("Crawl finished")

	if !quiet {
		ui.RenderSummary(os.Stdout, summary)
	}
	if failures > 0 {
		ui.PrintWarning(fmt.Sprintf("%d items failed", failures), "see 'mediadl report failed'")
	}
	return nil
}
