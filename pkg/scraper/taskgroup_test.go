package scraper

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	errs "mediadl/pkg/errors"
	"mediadl/pkg/logger"
)

func TestTaskGroupJoinsNestedTasks(t *testing.T) {
	tg := NewTaskGroup(context.Background(), logger.NewNopLogger())
	var done atomic.Int64

	var spawn func(depth int)
	spawn = func(depth int) {
		tg.Go(fmt.Sprintf("depth-%d", depth), func(ctx context.Context) error {
			if depth < 4 {
				// parents never wait on their children
				spawn(depth + 1)
				spawn(depth + 1)
			}
			time.Sleep(time.Millisecond)
			done.Add(1)
			return nil
		})
	}
	spawn(0)

	assert.NoError(t, tg.Wait())
	assert.Equal(t, int64(31), done.Load())
	assert.Equal(t, int64(31), tg.Started())
	assert.Zero(t, tg.Outstanding())
	assert.Zero(t, tg.Failures())
}

func TestTaskGroupErrorBoundary(t *testing.T) {
	tl := logger.NewTestLogger()
	tg := NewTaskGroup(context.Background(), tl)
	var siblings atomic.Int64

	tg.Go("https://coomer.su/a", func(ctx context.Context) error {
		return errs.NewScrapeFailure(503, "", "https://coomer.su/a")
	})
	tg.Go("https://coomer.su/b", func(ctx context.Context) error {
		panic("boom")
	})
	for i := 0; i < 5; i++ {
		tg.Go("sibling", func(ctx context.Context) error {
			siblings.Add(1)
			return nil
		})
	}

	assert.NoError(t, tg.Wait(), "failures never reach the join")
	assert.Equal(t, int64(5), siblings.Load())
	assert.Equal(t, int64(2), tg.Failures())

	errors := tl.GetMessagesByLevel("ERROR")
	assert.Len(t, errors, 2)
	origins := map[interface{}]bool{}
	for _, m := range errors {
		origins[m.Fields["origin"]] = true
		assert.Equal(t, "Scrape failed", m.Message)
	}
	assert.True(t, origins["https://coomer.su/a"])
	assert.True(t, origins["https://coomer.su/b"])

	var status interface{}
	for _, m := range errors {
		if m.Fields["origin"] == "https://coomer.su/a" {
			status = m.Fields["status"]
		}
	}
	assert.Equal(t, 503, status)

	// the stack of a recovered panic only appears at debug level
	for _, m := range tl.GetMessagesByLevel("DEBUG") {
		if m.Message == "Recovered panic" {
			assert.NotEmpty(t, m.Fields["stack"])
		}
	}
	for _, m := range errors {
		assert.Nil(t, m.Fields["stack"])
	}
}

func TestTaskGroupCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tl := logger.NewTestLogger()
	tg := NewTaskGroup(ctx, tl)

	started := make(chan struct{})
	tg.Go("blocked", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})

	<-started
	cancel()
	assert.NoError(t, tg.Wait())
	assert.Zero(t, tg.Failures())
	assert.True(t, tl.HasMessage("Task cancelled"))
}
