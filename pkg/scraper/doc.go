// Package scraper walks the crawl graph of a Coomer-style site.
//
// A seed URL is classified by its path segments against an ordered decision
// table (thumbnail, post, profile, favorites, direct file). Listings paginate
// and spawn one child item per discovered file or artist. Direct files are
// handed to a FileHandler, which owns the ledger bookkeeping around the
// transfer.
//
// Every item runs as a detached task in a run-wide TaskGroup. Parents never
// wait on children; Run returns once the group drains. A failing item is
// logged with its origin URL and status and ends only its own subtree.
//
// Usage:
//
//	s, err := scraper.New("https://coomer.su", scraper.Deps{
//	    Fetcher:     httpClient,
//	    Files:       pool,
//	    Credentials: cfg,
//	    Limiter:     limits,
//	}, scraper.PostOptions{SeparatePosts: true})
//	if err != nil {
//	    return err
//	}
//
//	stats, err := s.Run(ctx, seeds)
//
// Rate Limiting:
//
// Every request to the site first acquires a slot from the host limiter, so the
// number of items in flight does not change the load put on the remote host.
package scraper
