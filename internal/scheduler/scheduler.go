// Package scheduler runs the periodic sweeps: alerts, contract expiry,
// daily stats and stale runs.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shalom-dev-bot/astremina/internal/logger"
)

type Task func(ctx context.Context) error

type Job struct {
	Name     string
	Interval time.Duration
	// Immediate runs the task once at start instead of after one interval.
	Immediate bool
	Task      Task
}

// Every runs task every interval until ctx is done. Runs never overlap. A
// failing run is logged and the next tick runs as usual.
func Every(ctx context.Context, interval time.Duration, name string, immediate bool, task Task) {
	t := time.NewTicker(interval)
	defer t.Stop()

	if immediate {
		runOnce(ctx, name, task)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			runOnce(ctx, name, task)
		}
	}
}

func runOnce(ctx context.Context, name string, task Task) {
	if ctx.Err() != nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("["+name+"] panic", zap.Any("panic", r))
		}
	}()
	started := time.Now()
	if err := task(ctx); err != nil {
		logger.Warn("["+name+"] error", zap.Error(err))
		return
	}
	logger.Debug("["+name+"] done", zap.Duration("took", time.Since(started)))
}

// Run starts one goroutine per job with a positive interval and blocks until
// ctx is done and every job has returned.
func Run(ctx context.Context, jobs ...Job) {
	var wg sync.WaitGroup
	for _, j := range jobs {
		j := j
		if j.Interval <= 0 {
			logger.Info("[scheduler] job disabled", zap.String("job", j.Name))
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			Every(ctx, j.Interval, j.Name, j.Immediate, j.Task)
		}()
	}
	wg.Wait()
}
