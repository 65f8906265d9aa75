// Package dispatch runs background work on bounded pools and hands out the
// per-source tokens that keep two runs of one source from overlapping.
package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"github.com/shalom-dev-bot/astremina/internal/logger"
)

var (
	ErrQueueFull = errors.New("work queue is full")
	ErrStopped   = errors.New("work queue is stopped")
)

// Queue is a fixed pool of workers in front of a bounded backlog. Submit
// never blocks: when the backlog is full the task is refused.
type Queue struct {
	name string
	pool pond.Pool
}

func NewQueue(name string, workers, backlog int) *Queue {
	if workers < 1 {
		workers = 1
	}
	if backlog < 1 {
		backlog = 1
	}
	return &Queue{
		name: name,
		pool: pond.NewPool(workers, pond.WithQueueSize(backlog), pond.WithNonBlocking(true)),
	}
}

// Submit enqueues fn. A panic inside fn is logged and swallowed.
func (q *Queue) Submit(fn func()) error {
	if q.pool.Stopped() {
		return fmt.Errorf("%s: %w", q.name, ErrStopped)
	}
	task := q.pool.Submit(func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error(fmt.Errorf("task panic: %v", r), zap.String("queue", q.name))
			}
		}()
		fn()
	})

	// A refused task comes back already failed.
	select {
	case <-task.Done():
		err := task.Wait()
		switch {
		case err == nil:
			return nil
		case errors.Is(err, pond.ErrQueueFull):
			return fmt.Errorf("%s: %w", q.name, ErrQueueFull)
		case errors.Is(err, pond.ErrPoolStopped):
			return fmt.Errorf("%s: %w", q.name, ErrStopped)
		default:
			return err
		}
	default:
	}
	return nil
}

type QueueStats struct {
	Name      string `json:"name"`
	Running   int64  `json:"running"`
	Waiting   uint64 `json:"waiting"`
	Completed uint64 `json:"completed"`
	Failed    uint64 `json:"failed"`
}

func (q *Queue) Stats() QueueStats {
	return QueueStats{
		Name:      q.name,
		Running:   q.pool.RunningWorkers(),
		Waiting:   q.pool.WaitingTasks(),
		Completed: q.pool.CompletedTasks(),
		Failed:    q.pool.FailedTasks(),
	}
}

// Stop refuses new work and waits for queued and running tasks, or for ctx.
func (q *Queue) Stop(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		q.pool.StopAndWait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
