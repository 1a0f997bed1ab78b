package scraper

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"mediadl/pkg/logger"
)

// TaskGroup runs detached tasks. A task may spawn further tasks without
// waiting on them; Wait returns once every task, however deep, has finished.
//
// Each task runs under an error boundary. Errors and panics are logged with the
// task's origin and counted, never propagated, so siblings keep running.
type TaskGroup struct {
	ctx context.Context
	g   *errgroup.Group
	log logger.Logger

	outstanding atomic.Int64
	started     atomic.Int64
	failures    atomic.Int64
}

// NewTaskGroup creates a group whose tasks observe ctx
func NewTaskGroup(ctx context.Context, log logger.Logger) *TaskGroup {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &TaskGroup{ctx: ctx, g: new(errgroup.Group), log: log}
}

// Go starts fn as a detached task attributed to name, usually the URL that
// produced the work.
func (t *TaskGroup) Go(name string, fn func(ctx context.Context) error) {
	t.outstanding.Add(1)
	t.started.Add(1)
	t.g.Go(func() error {
		defer t.outstanding.Add(-1)
		t.run(name, fn)
		return nil
	})
}

func (t *TaskGroup) run(name string, fn func(ctx context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			t.failures.Add(1)
			t.log.WithFields(map[string]interface{}{
				"origin": name,
				"stack":  string(debug.Stack()),
			}).Debug("Recovered panic")
			logger.LogFailure(t.log, name, fmt.Errorf("panic: %v", r))
		}
	}()

	err := fn(t.ctx)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled) && t.ctx.Err() != nil:
		t.log.WithField("origin", name).Debug("Task cancelled")
	default:
		t.failures.Add(1)
		logger.LogFailure(t.log, name, err)
	}
}

// Wait blocks until no task is outstanding
func (t *TaskGroup) Wait() error {
	return t.g.Wait()
}

// Outstanding is the number of tasks started but not yet finished
func (t *TaskGroup) Outstanding() int64 {
	return t.outstanding.Load()
}

// Started is the number of tasks ever started
func (t *TaskGroup) Started() int64 {
	return t.started.Load()
}

// Failures is the number of tasks that ended in an error or panic
func (t *TaskGroup) Failures() int64 {
	return t.failures.Load()
}
