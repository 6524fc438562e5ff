package dispatch

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// SerialQueue runs tasks one at a time, in dispatch order, on a single
// goroutine. The queue is unbounded so Dispatch never blocks the caller.
type SerialQueue struct {
	logger zerolog.Logger

	mu      sync.Mutex
	tasks   []func()
	started bool
	stopped bool

	wake chan struct{}
	done chan struct{}
}

// NewSerialQueue creates a queue. Tasks dispatched before Start are kept and
// run once the queue starts.
func NewSerialQueue(logger zerolog.Logger) *SerialQueue {
	return &SerialQueue{
		logger: logger.With().Str("component", "SerialQueue").Logger(),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Dispatch enqueues task. It returns false once Stop has been called.
func (q *SerialQueue) Dispatch(task func()) bool {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return false
	}
	q.tasks = append(q.tasks, task)
	q.mu.Unlock()

	q.signal()
	return true
}

func (q *SerialQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Start launches the queue goroutine. Cancelling ctx abandons pending tasks.
func (q *SerialQueue) Start(ctx context.Context) {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.mu.Unlock()

	go q.run(ctx)
}

// Stop refuses new tasks, lets the pending ones finish and waits for the
// goroutine to exit or ctx to expire.
func (q *SerialQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	q.stopped = true
	started := q.started
	q.mu.Unlock()

	if !started {
		return nil
	}
	q.signal()

	select {
	case <-q.done:
		q.logger.Debug().Msg("Serial queue stopped.")
		return nil
	case <-ctx.Done():
		q.logger.Error().Err(ctx.Err()).Msg("Timeout waiting for serial queue to drain.")
		return ctx.Err()
	}
}

func (q *SerialQueue) run(ctx context.Context) {
	defer close(q.done)
	for {
		q.mu.Lock()
		pending := q.tasks
		q.tasks = nil
		stopped := q.stopped
		q.mu.Unlock()

		for _, task := range pending {
			if ctx.Err() != nil {
				return
			}
			runTask(q.logger, task)
		}
		if len(pending) > 0 {
			continue
		}
		if stopped {
			return
		}

		select {
		case <-q.wake:
		case <-ctx.Done():
			q.logger.Info().Msg("Serial queue shutting down due to context cancellation.")
			return
		}
	}
}
