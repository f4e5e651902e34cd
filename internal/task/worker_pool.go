package task

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// TaskQueueReader provides blocking read access to queued records
type TaskQueueReader interface {
	// Dequeue blocks until a record is available or ctx is done
	Dequeue(ctx context.Context) (*Record, error)
}

// RecordHandler drives one dequeued record to a terminal or retrying state
type RecordHandler func(ctx context.Context, workerID int, rec *Record)

// WorkerPool manages a pool of worker goroutines that process records
// from a task queue. All workers are symmetric.
type WorkerPool struct {
	// taskQueue provides read access to the records to be processed
	taskQueue TaskQueueReader

	// workerCount is the number of concurrent workers to start
	workerCount int

	// handler executes each dequeued record
	handler RecordHandler

	// group tracks active worker goroutines for clean shutdown
	group *errgroup.Group

	// cancel stops the workers started by Start
	cancel context.CancelFunc

	logger *slog.Logger
}

// NewWorkerPool creates a new worker pool. A non-positive worker count
// defaults to 1.
func NewWorkerPool(taskQueue TaskQueueReader, workerCount int, handler RecordHandler, logger *slog.Logger) *WorkerPool {
	if workerCount <= 0 {
		logger.Warn("invalid worker count specified, using default",
			"specified_count", workerCount,
			"default_count", 1)
		workerCount = 1
	}

	return &WorkerPool{
		taskQueue:   taskQueue,
		workerCount: workerCount,
		handler:     handler,
		logger:      logger,
	}
}

// Start launches the workers. They run until ctx is done or Stop is called.
func (p *WorkerPool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.group, ctx = errgroup.WithContext(ctx)

	for i := 0; i < p.workerCount; i++ {
		workerID := i
		p.group.Go(func() error {
			p.worker(ctx, workerID)
			return nil
		})
	}
}

// Stop signals every worker to exit and waits for them.
func (p *WorkerPool) Stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	_ = p.group.Wait()
}

// WorkerCount returns the number of workers this pool runs
func (p *WorkerPool) WorkerCount() int {
	return p.workerCount
}

// worker processes records from the queue until ctx is done
func (p *WorkerPool) worker(ctx context.Context, id int) {
	p.logger.Debug("starting worker", "worker_id", id)

	for {
		rec, err := p.taskQueue.Dequeue(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				p.logger.Error("failed to dequeue task", "worker_id", id, "error", err)
			}
			p.logger.Debug("stopping worker", "worker_id", id)
			return
		}

		p.handler(ctx, id, rec)
	}
}
