package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// ProcessorConfig holds configuration for the task processor
type ProcessorConfig struct {
	// MaxWorkers determines how many concurrent workers process tasks
	MaxWorkers int

	// QueueSize bounds the number of pending tasks; Submit blocks beyond it
	QueueSize int

	// DefaultRetry is applied to submissions that do not override it
	DefaultRetry RetryPolicy

	// CleanupInterval is how often finished records older than CompletedTTL
	// are purged. Zero disables the periodic sweep.
	CleanupInterval time.Duration

	// CompletedTTL is the age after which finished records are purged
	CompletedTTL time.Duration
}

// DefaultProcessorConfig returns a ProcessorConfig with reasonable defaults
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		MaxWorkers:      4,
		QueueSize:       100,
		DefaultRetry:    DefaultRetryPolicy(),
		CleanupInterval: 5 * time.Minute,
		CompletedTTL:    time.Hour,
	}
}

// Option customizes a Processor
type Option func(*Processor)

// WithClock replaces the wall clock used for timestamps and ordering
func WithClock(clock Clock) Option {
	return func(p *Processor) {
		p.clock = clock
	}
}

// WithRegisterer registers the processor metrics on reg instead of a
// private registry
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(p *Processor) {
		p.registerer = reg
	}
}

// Stats is a snapshot of processor counters
type Stats struct {
	QueueSize      int    `json:"queue_size"`
	ActiveCount    int    `json:"active_count"`
	CompletedCount int    `json:"completed_count"`
	WorkerCount    int    `json:"worker_count"`
	Running        bool   `json:"running"`
	Limits         Limits `json:"limits"`
}

// Limits reports the configured capacity of the processor
type Limits struct {
	MaxWorkers    int `json:"max_workers"`
	QueueCapacity int `json:"queue_capacity"`
}

// Processor owns the queue, the worker pool and the bookkeeping of every
// submitted record. It is the only entry point for callers.
type Processor struct {
	config     ProcessorConfig
	logger     *slog.Logger
	clock      Clock
	registerer prometheus.Registerer
	metrics    *Metrics
	queue      *TaskQueue

	// mu guards active, completed and every mutable field of their records
	mu        sync.RWMutex
	active    map[uuid.UUID]*Record
	completed map[uuid.UUID]*Record

	// lifecycle guards the fields below
	lifecycle sync.Mutex
	running   bool
	pool      *WorkerPool
	cancel    context.CancelFunc
	janitorWG sync.WaitGroup

	// retryWG tracks records waiting out their retry delay
	retryWG sync.WaitGroup
}

// NewProcessor creates a stopped Processor. Call Start to launch workers.
func NewProcessor(config ProcessorConfig, logger *slog.Logger, opts ...Option) *Processor {
	logger = logger.With("component", "task_processor")

	if config.MaxWorkers <= 0 {
		logger.Warn("invalid max workers specified, using default",
			"specified_count", config.MaxWorkers,
			"default_count", 1)
		config.MaxWorkers = 1
	}
	if config.DefaultRetry.Validate() != nil {
		logger.Warn("invalid default retry policy, using built-in default",
			"max_retries", config.DefaultRetry.MaxRetries,
			"retry_delay", config.DefaultRetry.Delay)
		config.DefaultRetry = DefaultRetryPolicy()
	}

	p := &Processor{
		config:    config,
		logger:    logger,
		clock:     realClock{},
		active:    make(map[uuid.UUID]*Record),
		completed: make(map[uuid.UUID]*Record),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.registerer == nil {
		p.registerer = prometheus.NewRegistry()
	}

	p.queue = NewTaskQueue(config.QueueSize, p.clock, logger)
	p.metrics = newMetrics(p.registerer, p)
	return p
}

// Start launches the configured number of workers. It is a no-op when the
// processor is already running.
func (p *Processor) Start() {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()

	if p.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.pool = NewWorkerPool(p.queue, p.config.MaxWorkers, p.process, p.logger)
	p.pool.Start(ctx)

	if p.config.CleanupInterval > 0 {
		p.janitorWG.Add(1)
		go p.janitor(ctx)
	}

	p.running = true
	p.logger.Info("task processor started",
		"worker_count", p.config.MaxWorkers,
		"queue_capacity", p.queue.Cap())
}

// Stop signals every worker to exit and waits for them. A record whose work
// is interrupted by the shutdown ends failed with ErrProcessorStopped.
// It is a no-op when the processor is not running.
func (p *Processor) Stop() {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()

	if !p.running {
		return
	}

	p.cancel()
	p.pool.Stop()
	p.retryWG.Wait()
	p.janitorWG.Wait()

	p.running = false
	p.pool = nil
	p.logger.Info("task processor stopped")
}

// SubmitOption customizes a single submission
type SubmitOption func(*submission)

type submission struct {
	priority Priority
	retry    RetryPolicy
	timeout  time.Duration
}

// WithPriority sets the dequeue priority
func WithPriority(priority Priority) SubmitOption {
	return func(s *submission) {
		s.priority = priority
	}
}

// WithMaxRetries sets how many times a failed task is retried
func WithMaxRetries(maxRetries int) SubmitOption {
	return func(s *submission) {
		s.retry.MaxRetries = maxRetries
	}
}

// WithRetryDelay sets the wait before a failed task is re-queued
func WithRetryDelay(delay time.Duration) SubmitOption {
	return func(s *submission) {
		s.retry.Delay = delay
	}
}

// WithExponentialBackoff doubles the retry delay after each failure
func WithExponentialBackoff() SubmitOption {
	return func(s *submission) {
		s.retry.Strategy = BackoffExponential
	}
}

// WithTimeout bounds each attempt. Exceeding it counts as a failure.
func WithTimeout(timeout time.Duration) SubmitOption {
	return func(s *submission) {
		s.timeout = timeout
	}
}

// Submit records a new task and queues it. It returns as soon as the task is
// queued and never waits for the work itself; it blocks only while the queue
// is full, until space frees up or ctx is done.
func (p *Processor) Submit(ctx context.Context, name string, work Work, opts ...SubmitOption) (uuid.UUID, error) {
	if work == nil {
		return uuid.Nil, ErrNilWork
	}

	sub := submission{
		priority: PriorityNormal,
		retry:    p.config.DefaultRetry,
	}
	for _, opt := range opts {
		opt(&sub)
	}

	if !sub.priority.Valid() {
		return uuid.Nil, fmt.Errorf("%w: %d", ErrInvalidPriority, int(sub.priority))
	}
	if err := sub.retry.Validate(); err != nil {
		return uuid.Nil, err
	}
	if sub.timeout < 0 {
		return uuid.Nil, fmt.Errorf("%w: timeout must not be negative", ErrInvalidRetryPolicy)
	}

	rec := &Record{
		id:         uuid.New(),
		name:       name,
		work:       work,
		priority:   sub.priority,
		maxRetries: sub.retry.MaxRetries,
		retryDelay: sub.retry.Delay,
		timeout:    sub.timeout,
		backoff:    sub.retry.newBackoff(),
		status:     TaskStatusPending,
		createdAt:  p.clock.Now(),
	}

	p.mu.Lock()
	p.active[rec.id] = rec
	p.mu.Unlock()

	if err := p.queue.Enqueue(ctx, rec); err != nil {
		p.mu.Lock()
		delete(p.active, rec.id)
		p.mu.Unlock()
		return uuid.Nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	p.metrics.submitted.WithLabelValues(rec.priority.String()).Inc()
	p.logger.Info("task submitted",
		"task_id", rec.id,
		"task_name", rec.name,
		"priority", rec.priority.String(),
		"max_retries", rec.maxRetries)

	return rec.id, nil
}

// Status returns a snapshot of the record with the given id. The boolean is
// false when the id is unknown.
func (p *Processor) Status(id uuid.UUID) (Snapshot, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if rec, ok := p.active[id]; ok {
		return rec.snapshot(), true
	}
	if rec, ok := p.completed[id]; ok {
		return rec.snapshot(), true
	}
	return Snapshot{}, false
}

// Cancel marks a running or retrying task as cancelled. The work itself is
// not interrupted; its eventual outcome is discarded. Unknown, finished and
// still-queued tasks are left alone and false is returned.
func (p *Processor) Cancel(id uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec, ok := p.active[id]
	if !ok || rec.status == TaskStatusPending {
		return false
	}

	rec.status = TaskStatusCancelled
	rec.completedAt = p.clock.Now()
	p.finishLocked(rec)

	p.logger.Info("task cancelled", "task_id", rec.id, "task_name", rec.name)
	return true
}

// Stats returns queue and worker counters
func (p *Processor) Stats() Stats {
	p.lifecycle.Lock()
	running := p.running
	workers := 0
	if p.pool != nil {
		workers = p.pool.WorkerCount()
	}
	p.lifecycle.Unlock()

	p.mu.RLock()
	activeCount := len(p.active)
	completedCount := len(p.completed)
	p.mu.RUnlock()

	return Stats{
		QueueSize:      p.queue.Len(),
		ActiveCount:    activeCount,
		CompletedCount: completedCount,
		WorkerCount:    workers,
		Running:        running,
		Limits: Limits{
			MaxWorkers:    p.config.MaxWorkers,
			QueueCapacity: p.queue.Cap(),
		},
	}
}

// Cleanup removes finished records that completed more than maxAge ago and
// returns how many were removed. Active records are never touched.
func (p *Processor) Cleanup(maxAge time.Duration) int {
	cutoff := p.clock.Now().Add(-maxAge)

	p.mu.Lock()
	removed := 0
	for id, rec := range p.completed {
		if rec.completedAt.Before(cutoff) {
			delete(p.completed, id)
			removed++
		}
	}
	remaining := len(p.completed)
	p.mu.Unlock()

	if removed > 0 {
		p.logger.Info("cleaned up finished tasks",
			"removed_count", removed,
			"remaining_count", remaining,
			"max_age", maxAge.String())
	}
	return removed
}

// janitor periodically purges old finished records
func (p *Processor) janitor(ctx context.Context) {
	defer p.janitorWG.Done()

	ticker := time.NewTicker(p.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Cleanup(p.config.CompletedTTL)
		}
	}
}

// process runs one attempt of rec and applies the retry policy to its outcome
func (p *Processor) process(ctx context.Context, workerID int, rec *Record) {
	p.mu.Lock()
	if rec.status != TaskStatusPending {
		// cancelled while waiting to be re-queued
		p.mu.Unlock()
		return
	}
	if ctx.Err() != nil {
		// shutdown began between dequeue and now; the record never ran
		p.mu.Unlock()
		if !p.queue.TryEnqueue(rec) {
			p.abandon(rec, ctx.Err())
		}
		return
	}
	rec.status = TaskStatusRunning
	rec.startedAt = p.clock.Now()
	attempt := rec.retryCount + 1
	p.mu.Unlock()

	logger := p.logger.With(
		"task_id", rec.id,
		"task_name", rec.name,
		"worker_id", workerID,
		"attempt", attempt,
	)
	logger.Info("processing task")

	began := time.Now()
	result, err := p.execute(ctx, rec)
	elapsed := time.Since(began).Seconds()

	p.mu.Lock()

	if rec.status == TaskStatusCancelled {
		p.mu.Unlock()
		p.metrics.duration.WithLabelValues("cancelled").Observe(elapsed)
		logger.Info("task finished after cancellation, outcome discarded", "error", err)
		return
	}

	if err == nil {
		rec.status = TaskStatusCompleted
		rec.result = result
		rec.err = nil
		rec.completedAt = p.clock.Now()
		p.finishLocked(rec)
		p.mu.Unlock()

		p.metrics.duration.WithLabelValues("success").Observe(elapsed)
		logger.Info("task completed successfully")
		return
	}

	p.metrics.duration.WithLabelValues("failure").Observe(elapsed)
	rec.retryCount++
	rec.err = err

	if ctx.Err() != nil {
		rec.err = fmt.Errorf("%w: %v", ErrProcessorStopped, err)
		p.failLocked(rec)
		p.mu.Unlock()
		logger.Warn("task interrupted by shutdown", "error", err)
		return
	}

	delay, stop := rec.backoff.Next()
	if stop {
		p.failLocked(rec)
		p.mu.Unlock()
		logger.Error("task failed permanently",
			"retry_count", rec.retryCount,
			"max_retries", rec.maxRetries,
			"error", err)
		return
	}

	rec.status = TaskStatusRetrying
	rec.startedAt = time.Time{}
	p.mu.Unlock()

	p.metrics.retries.Inc()
	logger.Warn("task execution failed, retrying",
		"retry_count", attempt,
		"max_retries", rec.maxRetries,
		"retry_delay", delay.String(),
		"error", err)

	p.retryWG.Add(1)
	go p.requeueAfter(ctx, rec, delay)
}

// requeueAfter waits out a retry delay and puts rec back on the queue. The
// worker that failed the attempt is already back on the queue by then.
func (p *Processor) requeueAfter(ctx context.Context, rec *Record, delay time.Duration) {
	defer p.retryWG.Done()

	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			p.abandon(rec, ctx.Err())
			return
		}
	}

	p.mu.Lock()
	if rec.status != TaskStatusRetrying {
		p.mu.Unlock()
		return
	}
	rec.status = TaskStatusPending
	p.mu.Unlock()

	if err := p.queue.Enqueue(ctx, rec); err != nil {
		p.abandon(rec, err)
	}
}

// execute runs the record's work, enforcing its timeout and containing panics
func (p *Processor) execute(ctx context.Context, rec *Record) (any, error) {
	runCtx := ctx
	if rec.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, rec.timeout)
		defer cancel()
	}

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("%w: %v", ErrTaskPanicked, r)}
			}
		}()
		result, err := rec.work(runCtx)
		done <- outcome{result: result, err: err}
	}()

	select {
	case o := <-done:
		return o.result, o.err
	case <-runCtx.Done():
		if ctx.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrTaskTimeout, rec.timeout)
		}
		return nil, runCtx.Err()
	}
}

// abandon fails a record that could not be re-queued because of shutdown
func (p *Processor) abandon(rec *Record, cause error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if rec.status.IsTerminal() {
		return
	}
	rec.err = fmt.Errorf("%w: %v", ErrProcessorStopped, cause)
	p.failLocked(rec)
	p.logger.Warn("task abandoned during shutdown", "task_id", rec.id, "task_name", rec.name)
}

// failLocked moves rec to the completed set as failed. Callers hold mu.
func (p *Processor) failLocked(rec *Record) {
	rec.status = TaskStatusFailed
	rec.completedAt = p.clock.Now()
	p.finishLocked(rec)
}

// finishLocked moves a terminal record from the active to the completed set.
// Callers hold mu.
func (p *Processor) finishLocked(rec *Record) {
	delete(p.active, rec.id)
	p.completed[rec.id] = rec
	p.metrics.finished.WithLabelValues(string(rec.status)).Inc()
}
