package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorType classifies a failure for logging and retry decisions
type ErrorType string

const (
	ErrorTypeScrape  ErrorType = "scrape"
	ErrorTypeAuth    ErrorType = "auth"
	ErrorTypeStorage ErrorType = "storage"
	ErrorTypeFile    ErrorType = "file"
	ErrorTypeUnknown ErrorType = "unknown"
)

// ScrapeFailure reports remote content that could not be fetched or classified.
// Status is HTTP-like; 0 means the request never produced a response.
type ScrapeFailure struct {
	Status  int
	Message string
	Origin  string
}

// NewScrapeFailure builds a ScrapeFailure attributed to origin
func NewScrapeFailure(status int, message, origin string) *ScrapeFailure {
	return &ScrapeFailure{Status: status, Message: message, Origin: origin}
}

func (e *ScrapeFailure) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("scrape failure (status %d): %s", e.Status, msg)
}

// AuthRequiredFailure means a required session credential is missing.
// It is never retried.
type AuthRequiredFailure struct {
	Host   string
	Origin string
}

func (e *AuthRequiredFailure) Error() string {
	return fmt.Sprintf("no session credential configured for %s", e.Host)
}

// Status mirrors ScrapeFailure so both can be logged uniformly
func (e *AuthRequiredFailure) Status() int {
	return http.StatusUnauthorized
}

// StorageError wraps a ledger I/O fault
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("ledger %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// NewStorageError returns nil when err is nil
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// FileError reports a hashing or stat target that is missing or unreadable
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("file %s: %v", e.Path, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// TypeOf returns the taxonomy bucket of err
func TypeOf(err error) ErrorType {
	var (
		sf *ScrapeFailure
		af *AuthRequiredFailure
		se *StorageError
		fe *FileError
	)
	switch {
	case err == nil:
		return ""
	case stderrors.As(err, &af):
		return ErrorTypeAuth
	case stderrors.As(err, &sf):
		return ErrorTypeScrape
	case stderrors.As(err, &se):
		return ErrorTypeStorage
	case stderrors.As(err, &fe):
		return ErrorTypeFile
	default:
		return ErrorTypeUnknown
	}
}

// StatusOf extracts the HTTP-like status carried by err, or 0
func StatusOf(err error) int {
	var af *AuthRequiredFailure
	if stderrors.As(err, &af) {
		return af.Status()
	}
	var sf *ScrapeFailure
	if stderrors.As(err, &sf) {
		return sf.Status
	}
	return 0
}

// OriginOf extracts the origin URL carried by err, or ""
func OriginOf(err error) string {
	var af *AuthRequiredFailure
	if stderrors.As(err, &af) {
		return af.Origin
	}
	var sf *ScrapeFailure
	if stderrors.As(err, &sf) {
		return sf.Origin
	}
	return ""
}

// IsRetryable checks if an error should be retried
func IsRetryable(err error) bool {
	switch TypeOf(err) {
	case ErrorTypeScrape:
		return IsRetryableStatusCode(StatusOf(err))
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 429: // Too Many Requests
		return true
	case 401, 403, 404: // Client errors that won't change
		return false
	default:
		return statusCode >= 500
	}
}
