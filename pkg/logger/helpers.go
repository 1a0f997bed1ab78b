package logger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	errs "mediadl/pkg/errors"
)

// NewRunID returns a fresh identifier attached to every line of one crawl run
func NewRunID() string {
	return uuid.NewString()
}

// ForRun returns l tagged with run_id
func ForRun(l Logger, runID string) Logger {
	return l.WithField("run_id", runID)
}

// LogFetch logs a completed remote fetch
func LogFetch(l Logger, domain, url string, statusCode int, duration time.Duration) {
	fields := map[string]interface{}{
		"domain":      domain,
		"url":         url,
		"status_code": statusCode,
		"duration_ms": duration.Milliseconds(),
	}

	switch {
	case statusCode >= 500:
		l.ErrorWithFields("fetch server error", fields)
	case statusCode >= 400:
		l.WarnWithFields("fetch client error", fields)
	default:
		l.DebugWithFields("fetch completed", fields)
	}
}

// LogDownload logs the outcome of one file
func LogDownload(l Logger, domain, url, filename string, skipped bool, err error) {
	log := l.WithFields(map[string]interface{}{
		"domain":   domain,
		"url":      url,
		"filename": filename,
	})

	switch {
	case err != nil:
		log.WithError(err).Error("Download failed")
	case skipped:
		log.Debug("Download skipped, already complete")
	default:
		log.Info("Download completed")
	}
}

// LogRateLimit logs a limiter wait that took noticeably long
func LogRateLimit(l Logger, host string, waited time.Duration) {
	l.WithFields(map[string]interface{}{
		"host":   host,
		"waited": waited,
		"action": "rate_limited",
	}).Debug("Waited for rate limiter")
}

// LogFailure logs a failure attributed to the item that caused it
func LogFailure(l Logger, origin string, err error) {
	fields := map[string]interface{}{
		"origin": origin,
		"kind":   string(errs.TypeOf(err)),
	}
	if status := errs.StatusOf(err); status != 0 {
		fields["status"] = status
	}
	if o := errs.OriginOf(err); o != "" {
		fields["origin"] = o
	}
	l.WithError(err).ErrorWithFields("Scrape failed", fields)
}

// NewNopLogger creates a no-operation logger for testing
func NewNopLogger() Logger {
	return &nopLogger{}
}

type nopLogger struct{}

func (n *nopLogger) Debug(msg string)                                          {}
func (n *nopLogger) Info(msg string)                                           {}
func (n *nopLogger) Warn(msg string)                                           {}
func (n *nopLogger) Error(msg string)                                          {}
func (n *nopLogger) Fatal(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) WithContext(ctx context.Context) Logger                    { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) FatalWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) GetZerolog() *zerolog.Logger {
	nop := zerolog.Nop()
	return &nop
}
