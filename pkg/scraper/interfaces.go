package scraper

import (
	"context"
	"net/url"

	"github.com/PuerkitoBio/goquery"
	"mediadl/pkg/models"
)

// Fetcher retrieves remote content. Failures are returned as
// *errors.ScrapeFailure carrying origin. A non-empty credential is attached to
// that single request only.
type Fetcher interface {
	FetchJSON(ctx context.Context, domain, url, origin, credential string, out any) error
	FetchDocument(ctx context.Context, domain, url, origin, credential string) (*goquery.Document, error)
}

// FileHandler performs the transfer of one resolved file. It is the only
// place that consults and updates the ledger around the transfer. domain is
// the ledger domain of the crawler that found the file; empty means derive it
// from the file's host.
type FileHandler interface {
	HandleFile(ctx context.Context, domain string, u *url.URL, item *models.ScrapeItem, filename, ext string) error
}

// CredentialSource looks up the session credential for a site
type CredentialSource interface {
	Session(site string) string
}

// HostLimiter acquires a request slot for host
type HostLimiter interface {
	Wait(ctx context.Context, host string) error
}

// Spawner schedules a discovered item as independent work
type Spawner interface {
	Spawn(item *models.ScrapeItem)
}
