// Package client is the HTTP side of the crawler.
//
// Client implements the fetch capability the scraper depends on: FetchJSON
// decodes API responses and FetchDocument parses HTML pages with goquery.
// Download streams a file body into a writer for the downloader.
//
// Every failure is an *errors.ScrapeFailure carrying the HTTP status (0 for
// transport errors) and the URL of the item that caused the request.
// Transient failures (0, 429, 5xx) are retried with per-status backoff.
//
// A session credential is passed per call and sent as the "session" cookie
// of that request only; the client never stores it.
package client
