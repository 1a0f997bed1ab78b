package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	errs "mediadl/pkg/errors"
	"mediadl/pkg/logger"
	"mediadl/pkg/retry"
)

// SessionCookie is the cookie carrying a site session credential
const SessionCookie = "session"

// Options configures a Client
type Options struct {
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
	// Retrier overrides the retrier built from MaxRetries
	Retrier *retry.HTTPRetrier
	Logger  logger.Logger
}

// Client fetches JSON and HTML and streams file bodies. It holds no
// per-site state; credentials travel with each request.
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	retrier    *retry.HTTPRetrier
	logger     logger.Logger
}

// New creates a new Client
func New(opts Options) *Client {
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	retrier := opts.Retrier
	if retrier == nil {
		attempts := opts.MaxRetries + 1
		if attempts < 1 {
			attempts = 1
		}
		retrier = retry.NewHTTPRetrier(attempts, log)
	}

	headers := map[string]string{
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,application/json;q=0.9,*/*;q=0.8",
		"Accept-Language": "en-US,en;q=0.9",
		"Cache-Control":   "no-cache",
		"Pragma":          "no-cache",
	}
	if opts.UserAgent != "" {
		headers["User-Agent"] = opts.UserAgent
	}

	return &Client{
		httpClient: &http.Client{Timeout: opts.Timeout},
		headers:    headers,
		retrier:    retrier,
		logger:     log,
	}
}

// SetHeader sets a header sent with every request. Call it before the client
// is shared between goroutines.
func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

type request struct {
	domain     string
	url        string
	origin     string
	credential string
	referer    string
	accept     string
}

// do performs one GET. Transport failures and non-2xx responses come back as
// *errors.ScrapeFailure attributed to r.origin.
func (c *Client) do(ctx context.Context, r request) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return nil, errs.NewScrapeFailure(http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err), r.origin)
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	if r.accept != "" {
		req.Header.Set("Accept", r.accept)
	}
	if r.referer != "" {
		req.Header.Set("Referer", r.referer)
	}
	if r.credential != "" {
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: r.credential})
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.WarnWithFields("HTTP request failed", map[string]interface{}{
			"domain":   r.domain,
			"url":      r.url,
			"error":    err.Error(),
			"duration": time.Since(start),
		})
		return nil, errs.NewScrapeFailure(0, fmt.Sprintf("network error: %v", err), r.origin)
	}
	logger.LogFetch(c.logger, r.domain, r.url, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, errs.NewScrapeFailure(resp.StatusCode, "", r.origin)
	}
	return resp, nil
}

// FetchJSON performs a GET and decodes the JSON body into out
func (c *Client) FetchJSON(ctx context.Context, domain, url, origin, credential string, out any) error {
	r := request{domain: domain, url: url, origin: origin, credential: credential, accept: "application/json"}

	return c.retrier.Do(ctx, func(ctx context.Context) error {
		resp, err := c.do(ctx, r)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return errs.NewScrapeFailure(0, fmt.Sprintf("failed to read response body: %v", err), origin)
		}

		if err := json.Unmarshal(body, out); err != nil {
			preview := string(body)
			if len(preview) > 200 {
				preview = preview[:200] + "..."
			}
			c.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
				"url":          url,
				"error":        err.Error(),
				"body_preview": preview,
			})
			return errs.NewScrapeFailure(http.StatusUnprocessableEntity, fmt.Sprintf("failed to parse JSON: %v", err), origin)
		}
		return nil
	})
}

// FetchDocument performs a GET and parses the body as HTML
func (c *Client) FetchDocument(ctx context.Context, domain, url, origin, credential string) (*goquery.Document, error) {
	r := request{domain: domain, url: url, origin: origin, credential: credential}

	var doc *goquery.Document
	err := c.retrier.Do(ctx, func(ctx context.Context) error {
		resp, err := c.do(ctx, r)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		doc, err = goquery.NewDocumentFromReader(resp.Body)
		if err != nil {
			return errs.NewScrapeFailure(0, fmt.Sprintf("failed to read document: %v", err), origin)
		}
		return nil
	})
	return doc, err
}

// Download streams the body of url into w and returns the byte count. It
// makes a single attempt; callers retry with a fresh writer.
func (c *Client) Download(ctx context.Context, domain, url, referer string, w io.Writer) (int64, error) {
	resp, err := c.do(ctx, request{domain: domain, url: url, origin: referer, referer: referer})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return n, ctx.Err()
		}
		return n, errs.NewScrapeFailure(0, fmt.Sprintf("transfer interrupted: %v", err), referer)
	}
	if resp.ContentLength > 0 && n != resp.ContentLength {
		return n, errs.NewScrapeFailure(0, fmt.Sprintf("short transfer: got %d of %d bytes", n, resp.ContentLength), referer)
	}
	return n, nil
}
