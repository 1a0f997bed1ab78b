// Package retry re-runs fetches that failed for transient reasons.
//
// The schedule depends on how the request failed: a dropped connection is
// retried quickly, a 5xx a little slower and a 429 slowest of all. Every wait
// observes the caller's context.
//
//	retrier := retry.NewHTTPRetrier(3, log)
//	err := retrier.Do(ctx, func(ctx context.Context) error {
//		return c.FetchJSON(ctx, domain, url, origin, "", &out)
//	})
//
// Only *errors.ScrapeFailure values with status 0, 429 or 5xx are retried by
// DefaultRetryIf. Auth, storage and file errors are returned immediately.
package retry
