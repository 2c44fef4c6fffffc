package ingest

import (
	"context"

	"github.com/rs/zerolog/log"
)

// ApplyFunc writes one reading and reports its outcome.
type ApplyFunc func(ctx context.Context, r Reading) string

type job struct {
	reading Reading
	done    func(outcome string)
}

// WorkerPool applies readings concurrently with a fixed number of workers.
type WorkerPool struct {
	size  int
	jobs  chan job
	apply ApplyFunc
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, apply ApplyFunc) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	return &WorkerPool{
		size:  size,
		jobs:  make(chan job, size),
		apply: apply,
	}
}

// Start launches the worker goroutines. They exit when ctx is done.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Debug().Int("worker", id).Msg("Ingest worker started")
	for {
		select {
		case j := <-wp.jobs:
			outcome := wp.apply(ctx, j.reading)
			if j.done != nil {
				j.done(outcome)
			}
		case <-ctx.Done():
			log.Debug().Int("worker", id).Msg("Ingest worker shutting down")
			return
		}
	}
}

// Dispatch queues a reading. done, if set, is called with the outcome. It
// blocks while the queue is full and fails once ctx is done.
func (wp *WorkerPool) Dispatch(ctx context.Context, r Reading, done func(outcome string)) error {
	select {
	case wp.jobs <- job{reading: r, done: done}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
