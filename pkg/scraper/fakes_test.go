package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
	errs "mediadl/pkg/errors"
	"mediadl/pkg/logger"
	"mediadl/pkg/models"
)

// fakeFetcher serves canned JSON and HTML keyed by URL and records every call
type fakeFetcher struct {
	mu    sync.Mutex
	json  map[string]string
	docs  map[string]string
	calls []fetchCall
}

type fetchCall struct {
	Kind       string
	URL        string
	Origin     string
	Credential string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{json: map[string]string{}, docs: map[string]string{}}
}

func (f *fakeFetcher) record(kind, u, origin, credential string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fetchCall{Kind: kind, URL: u, Origin: origin, Credential: credential})
}

func (f *fakeFetcher) FetchJSON(_ context.Context, _, u, origin, credential string, out any) error {
	f.record("json", u, origin, credential)
	f.mu.Lock()
	body, ok := f.json[u]
	f.mu.Unlock()
	if !ok {
		return errs.NewScrapeFailure(http.StatusNotFound, "", origin)
	}
	return json.Unmarshal([]byte(body), out)
}

func (f *fakeFetcher) FetchDocument(_ context.Context, _, u, origin, credential string) (*goquery.Document, error) {
	f.record("doc", u, origin, credential)
	f.mu.Lock()
	body, ok := f.docs[u]
	f.mu.Unlock()
	if !ok {
		return nil, errs.NewScrapeFailure(http.StatusNotFound, "", origin)
	}
	return goquery.NewDocumentFromReader(strings.NewReader(body))
}

func (f *fakeFetcher) Calls(kind string) []fetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []fetchCall
	for _, c := range f.calls {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// handledFile is one HandleFile invocation
type handledFile struct {
	Domain   string
	URL      string
	Item     *models.ScrapeItem
	Filename string
	Ext      string
}

type fakeFiles struct {
	mu    sync.Mutex
	files []handledFile
	err   error
}

func (f *fakeFiles) HandleFile(_ context.Context, domain string, u *url.URL, item *models.ScrapeItem, filename, ext string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files = append(f.files, handledFile{Domain: domain, URL: u.String(), Item: item, Filename: filename, Ext: ext})
	return f.err
}

func (f *fakeFiles) Handled() []handledFile {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]handledFile(nil), f.files...)
}

type staticCredentials map[string]string

func (c staticCredentials) Session(site string) string { return c[site] }

// countingLimiter records acquisitions per host
type countingLimiter struct {
	mu    sync.Mutex
	hosts map[string]int
}

func (l *countingLimiter) Wait(ctx context.Context, host string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.hosts == nil {
		l.hosts = map[string]int{}
	}
	l.hosts[host]++
	return ctx.Err()
}

func (l *countingLimiter) Count(host string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hosts[host]
}

type fixture struct {
	fetcher *fakeFetcher
	files   *fakeFiles
	limiter *countingLimiter
	log     *logger.TestLogger
	scraper *Scraper
}

func newFixture(t *testing.T, creds staticCredentials, opts PostOptions) *fixture {
	t.Helper()
	f := &fixture{
		fetcher: newFakeFetcher(),
		files:   &fakeFiles{},
		limiter: &countingLimiter{},
		log:     logger.NewTestLogger(),
	}
	s, err := New("https://coomer.su", Deps{
		Fetcher:     f.fetcher,
		Files:       f.files,
		Credentials: creds,
		Limiter:     f.limiter,
		Logger:      f.log,
	}, opts)
	require.NoError(t, err)
	f.scraper = s
	return f
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

// postsJSON renders n posts each carrying one primary file
func postsJSON(t *testing.T, start, n int) string {
	t.Helper()
	posts := make([]models.Post, 0, n)
	for i := start; i < start+n; i++ {
		id := fmt.Sprintf("%04d", i)
		posts = append(posts, models.Post{
			ID:        id,
			Title:     "post " + id,
			Published: "2024-03-01T12:00:00",
			File:      models.File{Name: "file" + id + ".jpg", Path: "/ab/cd/" + id + ".jpg"},
		})
	}
	raw, err := json.Marshal(posts)
	require.NoError(t, err)
	return string(raw)
}
