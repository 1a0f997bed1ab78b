// Package logger provides the structured logging interface used across mediadl.
//
// It wraps zerolog and offers leveled logging, field chaining and colored
// console output, with an optional log file written alongside the console.
//
//	logger.Initialize(&cfg.Logging)
//	log := logger.ForRun(logger.GetLogger(), logger.NewRunID())
//	log.WithField("domain", "coomer").Info("crawl started")
//
// Loggers derived with WithField, WithFields or WithError are immutable and
// may be shared between goroutines. Tests use NewTestLogger to capture and
// assert on emitted messages, or NewNopLogger to discard them.
package logger
