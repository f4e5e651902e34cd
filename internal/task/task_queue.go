package task

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// queueItem pairs a record with its ordering key
type queueItem struct {
	record     *Record
	rank       int
	enqueuedAt time.Time
	seq        uint64
}

type queueHeap []queueItem

func (h queueHeap) Len() int { return len(h) }

func (h queueHeap) Less(i, j int) bool {
	if h[i].rank != h[j].rank {
		return h[i].rank < h[j].rank
	}
	if !h[i].enqueuedAt.Equal(h[j].enqueuedAt) {
		return h[i].enqueuedAt.Before(h[j].enqueuedAt)
	}
	return h[i].seq < h[j].seq
}

func (h queueHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *queueHeap) Push(x any) { *h = append(*h, x.(queueItem)) }

func (h *queueHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = queueItem{}
	*h = old[:n-1]
	return item
}

// TaskQueue is a bounded priority queue of records. Enqueue blocks while the
// queue is full and Dequeue blocks while it is empty.
//
// slots holds one unit per free position; ready holds one token per queued
// item, so a Dequeue that received a token always finds a non-empty heap.
type TaskQueue struct {
	mu       sync.Mutex
	items    queueHeap
	seq      uint64
	capacity int
	slots    *semaphore.Weighted
	ready    chan struct{}
	clock    Clock
	logger   *slog.Logger
}

// NewTaskQueue creates a new task queue with the specified capacity.
// A non-positive size is treated as 1.
func NewTaskQueue(size int, clock Clock, logger *slog.Logger) *TaskQueue {
	if size <= 0 {
		size = 1
	}
	if clock == nil {
		clock = realClock{}
	}
	return &TaskQueue{
		items:    make(queueHeap, 0, size),
		capacity: size,
		slots:    semaphore.NewWeighted(int64(size)),
		ready:    make(chan struct{}, size),
		clock:    clock,
		logger:   logger,
	}
}

// Enqueue adds a record, blocking until there is room or ctx is done.
// Ordering uses the record's priority and the current time, so a re-queued
// record goes behind equal-priority work submitted since.
func (q *TaskQueue) Enqueue(ctx context.Context, rec *Record) error {
	if err := q.slots.Acquire(ctx, 1); err != nil {
		return err
	}
	q.push(rec)
	return nil
}

// TryEnqueue adds a record only if there is room right now
func (q *TaskQueue) TryEnqueue(rec *Record) bool {
	if !q.slots.TryAcquire(1) {
		return false
	}
	q.push(rec)
	return true
}

// push inserts rec into the heap. Callers hold one slot.
func (q *TaskQueue) push(rec *Record) {
	q.mu.Lock()
	q.seq++
	heap.Push(&q.items, queueItem{
		record:     rec,
		rank:       rec.priority.rank(),
		enqueuedAt: q.clock.Now(),
		seq:        q.seq,
	})
	depth := len(q.items)
	q.mu.Unlock()

	q.ready <- struct{}{}

	q.logger.Debug("task enqueued",
		"task_id", rec.id,
		"task_name", rec.name,
		"priority", rec.priority.String(),
		"queue_len", depth,
		"queue_cap", q.capacity)
}

// Dequeue removes the highest priority record, blocking until one is
// available or ctx is done. Once ctx is done nothing is removed, even if
// records are waiting.
func (q *TaskQueue) Dequeue(ctx context.Context) (*Record, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-q.ready:
	}

	if err := ctx.Err(); err != nil {
		// both cases were ready and select picked the token
		q.ready <- struct{}{}
		return nil, err
	}

	q.mu.Lock()
	item := heap.Pop(&q.items).(queueItem)
	q.mu.Unlock()

	q.slots.Release(1)
	return item.record, nil
}

// Len returns the number of queued records
func (q *TaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Cap returns the maximum number of queued records
func (q *TaskQueue) Cap() int {
	return q.capacity
}
