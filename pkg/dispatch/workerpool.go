package dispatch

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// WorkerPoolConfig holds configuration for a WorkerPool.
type WorkerPoolConfig struct {
	NumWorkers int `yaml:"num_workers"`
	QueueSize  int `yaml:"queue_size"`
}

// WorkerPool runs tasks concurrently on a fixed number of goroutines.
// When the queue is full Dispatch drops the task and returns false.
type WorkerPool struct {
	numWorkers int
	tasks      chan func()
	logger     zerolog.Logger
	wg         sync.WaitGroup

	mu      sync.RWMutex
	stopped bool
}

// NewWorkerPool creates a pool. Non-positive values default to 4 workers and
// a queue of 128.
func NewWorkerPool(cfg WorkerPoolConfig, logger zerolog.Logger) *WorkerPool {
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 128
	}
	return &WorkerPool{
		numWorkers: cfg.NumWorkers,
		tasks:      make(chan func(), cfg.QueueSize),
		logger:     logger.With().Str("component", "WorkerPool").Logger(),
	}
}

// Start spawns the workers.
func (p *WorkerPool) Start(ctx context.Context) {
	p.logger.Info().Int("worker_count", p.numWorkers).Msg("Starting workers...")
	p.wg.Add(p.numWorkers)
	for i := 0; i < p.numWorkers; i++ {
		go p.worker(ctx, i)
	}
}

// Dispatch queues task without blocking.
func (p *WorkerPool) Dispatch(task func()) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return false
	}
	select {
	case p.tasks <- task:
		return true
	default:
		return false
	}
}

// Stop closes the queue and waits for queued tasks to finish.
func (p *WorkerPool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.tasks)
	}
	p.mu.Unlock()

	workerDone := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(workerDone)
	}()

	select {
	case <-workerDone:
		p.logger.Info().Msg("All workers completed gracefully.")
		return nil
	case <-ctx.Done():
		p.logger.Error().Err(ctx.Err()).Msg("Timeout waiting for workers to finish.")
		return ctx.Err()
	}
}

func (p *WorkerPool) worker(ctx context.Context, workerID int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			p.logger.Debug().Int("worker_id", workerID).Msg("Worker shutting down due to context cancellation.")
			return
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			runTask(p.logger, task)
		}
	}
}
