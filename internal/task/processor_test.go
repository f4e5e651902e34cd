package task

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		MaxWorkers: 1,
		QueueSize:  10,
		DefaultRetry: RetryPolicy{
			MaxRetries: 0,
			Delay:      0,
		},
	}
}

func newTestProcessor(t *testing.T, config ProcessorConfig, opts ...Option) *Processor {
	t.Helper()
	p := NewProcessor(config, setupTestLogger(), opts...)
	t.Cleanup(p.Stop)
	return p
}

func waitForStatus(t *testing.T, p *Processor, id uuid.UUID, status TaskStatus) Snapshot {
	t.Helper()
	var snap Snapshot
	require.Eventually(t, func() bool {
		var ok bool
		snap, ok = p.Status(id)
		return ok && snap.Status == status
	}, 3*time.Second, 5*time.Millisecond, "task %s never reached status %s", id, status)
	return snap
}

// recorder collects the order in which work runs
type recorder struct {
	mu    sync.Mutex
	names []string
}

func (r *recorder) work(name string) Work {
	return func(ctx context.Context) (any, error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.names = append(r.names, name)
		return name, nil
	}
}

func (r *recorder) order() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.names...)
}

func TestProcessor_PriorityOrdering(t *testing.T) {
	ctx := context.Background()
	p := newTestProcessor(t, testProcessorConfig())
	rec := &recorder{}

	var ids []uuid.UUID
	for _, priority := range []Priority{PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical} {
		id, err := p.Submit(ctx, priority.String(), rec.work(priority.String()), WithPriority(priority))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	p.Start()
	for _, id := range ids {
		waitForStatus(t, p, id, TaskStatusCompleted)
	}

	assert.Equal(t, []string{"critical", "high", "normal", "low"}, rec.order())
}

func TestProcessor_FIFOTieBreak(t *testing.T) {
	ctx := context.Background()
	p := newTestProcessor(t, testProcessorConfig())
	rec := &recorder{}

	first, err := p.Submit(ctx, "first", rec.work("first"))
	require.NoError(t, err)
	second, err := p.Submit(ctx, "second", rec.work("second"))
	require.NoError(t, err)

	p.Start()
	waitForStatus(t, p, first, TaskStatusCompleted)
	waitForStatus(t, p, second, TaskStatusCompleted)

	assert.Equal(t, []string{"first", "second"}, rec.order())
}

func TestProcessor_SuccessfulExecution(t *testing.T) {
	p := newTestProcessor(t, testProcessorConfig())
	p.Start()

	id, err := p.Submit(context.Background(), "answer", func(ctx context.Context) (any, error) {
		return 42, nil
	})
	require.NoError(t, err)

	snap := waitForStatus(t, p, id, TaskStatusCompleted)
	assert.Equal(t, 42, snap.Result)
	assert.Empty(t, snap.Error)
	assert.Equal(t, 0, snap.RetryCount)
	assert.Equal(t, "answer", snap.Name)
	assert.Equal(t, "normal", snap.Priority)
	require.NotNil(t, snap.StartedAt)
	require.NotNil(t, snap.CompletedAt)
	assert.False(t, snap.CompletedAt.Before(*snap.StartedAt))
}

func TestProcessor_RetryExhaustion(t *testing.T) {
	p := newTestProcessor(t, testProcessorConfig())
	p.Start()

	var attempts atomic.Int32
	id, err := p.Submit(context.Background(), "always-fails", func(ctx context.Context) (any, error) {
		attempts.Add(1)
		return nil, errors.New("scale unreachable")
	}, WithMaxRetries(2), WithRetryDelay(10*time.Millisecond))
	require.NoError(t, err)

	snap := waitForStatus(t, p, id, TaskStatusFailed)
	assert.Equal(t, int32(3), attempts.Load())
	assert.Equal(t, 3, snap.RetryCount)
	assert.Equal(t, 2, snap.MaxRetries)
	assert.Equal(t, "scale unreachable", snap.Error)
	assert.Nil(t, snap.Result)
	assert.NotNil(t, snap.CompletedAt)

	// Terminal failures are not attempted again
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestProcessor_RetryThenSucceed(t *testing.T) {
	p := newTestProcessor(t, testProcessorConfig())
	p.Start()

	var attempts atomic.Int32
	id, err := p.Submit(context.Background(), "flaky", func(ctx context.Context) (any, error) {
		if attempts.Add(1) < 3 {
			return nil, errors.New("temporary")
		}
		return "ok", nil
	}, WithMaxRetries(3), WithRetryDelay(5*time.Millisecond), WithExponentialBackoff())
	require.NoError(t, err)

	snap := waitForStatus(t, p, id, TaskStatusCompleted)
	assert.Equal(t, int32(3), attempts.Load())
	assert.Equal(t, 2, snap.RetryCount)
	assert.Equal(t, "ok", snap.Result)
}

func TestProcessor_TimeoutFollowsRetryPath(t *testing.T) {
	p := newTestProcessor(t, testProcessorConfig())
	p.Start()

	var attempts atomic.Int32
	id, err := p.Submit(context.Background(), "slow", func(ctx context.Context) (any, error) {
		attempts.Add(1)
		time.Sleep(200 * time.Millisecond)
		return "too late", nil
	}, WithTimeout(20*time.Millisecond), WithMaxRetries(1))
	require.NoError(t, err)

	snap := waitForStatus(t, p, id, TaskStatusFailed)
	assert.Equal(t, int32(2), attempts.Load())
	assert.Equal(t, 2, snap.RetryCount)
	assert.Contains(t, snap.Error, ErrTaskTimeout.Error())
}

func TestProcessor_PanicIsFailure(t *testing.T) {
	p := newTestProcessor(t, testProcessorConfig())
	p.Start()

	id, err := p.Submit(context.Background(), "panics", func(ctx context.Context) (any, error) {
		panic("bad photo")
	})
	require.NoError(t, err)

	snap := waitForStatus(t, p, id, TaskStatusFailed)
	assert.Contains(t, snap.Error, "panic")
	assert.Contains(t, snap.Error, "bad photo")
}

func TestProcessor_UnknownID(t *testing.T) {
	p := newTestProcessor(t, testProcessorConfig())

	snap, ok := p.Status(uuid.New())
	assert.False(t, ok)
	assert.Equal(t, Snapshot{}, snap)

	assert.False(t, p.Cancel(uuid.New()))
}

func TestProcessor_Cleanup(t *testing.T) {
	clock := newFakeClock()
	p := newTestProcessor(t, testProcessorConfig(), WithClock(clock))
	p.Start()

	done := func(ctx context.Context) (any, error) { return nil, nil }

	old, err := p.Submit(context.Background(), "old", done)
	require.NoError(t, err)
	waitForStatus(t, p, old, TaskStatusCompleted)

	clock.Advance(10*time.Minute - time.Second)

	recent, err := p.Submit(context.Background(), "recent", done)
	require.NoError(t, err)
	waitForStatus(t, p, recent, TaskStatusCompleted)

	clock.Advance(time.Second)

	// A record that is still running must survive any sweep
	release := make(chan struct{})
	defer close(release)
	running, err := p.Submit(context.Background(), "running", func(ctx context.Context) (any, error) {
		<-release
		return nil, nil
	})
	require.NoError(t, err)
	waitForStatus(t, p, running, TaskStatusRunning)

	removed := p.Cleanup(60 * time.Second)
	assert.Equal(t, 1, removed)

	_, ok := p.Status(old)
	assert.False(t, ok, "ten minute old record should be removed")
	_, ok = p.Status(recent)
	assert.True(t, ok, "one second old record should be kept")
	_, ok = p.Status(running)
	assert.True(t, ok, "active record should be kept")

	assert.Equal(t, 1, p.Stats().CompletedCount)
}

func TestProcessor_Backpressure(t *testing.T) {
	config := testProcessorConfig()
	config.QueueSize = 2
	p := newTestProcessor(t, config)
	ctx := context.Background()
	done := func(ctx context.Context) (any, error) { return nil, nil }

	_, err := p.Submit(ctx, "one", done)
	require.NoError(t, err)
	_, err = p.Submit(ctx, "two", done)
	require.NoError(t, err)

	type submitted struct {
		id  uuid.UUID
		err error
	}
	third := make(chan submitted, 1)
	go func() {
		id, err := p.Submit(ctx, "three", done)
		third <- submitted{id: id, err: err}
	}()

	select {
	case <-third:
		t.Fatal("Submit should stay suspended while the queue is full and no worker runs")
	case <-time.After(100 * time.Millisecond):
	}
	assert.Equal(t, 2, p.Stats().QueueSize)

	p.Start()

	select {
	case res := <-third:
		require.NoError(t, res.err)
		waitForStatus(t, p, res.id, TaskStatusCompleted)
	case <-time.After(2 * time.Second):
		t.Fatal("Submit should resume once a worker frees capacity")
	}
}

func TestProcessor_SubmitCancelledWhileFull(t *testing.T) {
	config := testProcessorConfig()
	config.QueueSize = 1
	p := newTestProcessor(t, config)
	done := func(ctx context.Context) (any, error) { return nil, nil }

	_, err := p.Submit(context.Background(), "fills", done)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	id, err := p.Submit(ctx, "gives-up", done)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, uuid.Nil, id)
	assert.Equal(t, 1, p.Stats().ActiveCount, "abandoned submission must not be tracked")
}

func TestProcessor_CancelRunning(t *testing.T) {
	p := newTestProcessor(t, testProcessorConfig())
	p.Start()

	release := make(chan struct{})
	finished := make(chan struct{})
	id, err := p.Submit(context.Background(), "long", func(ctx context.Context) (any, error) {
		defer close(finished)
		<-release
		return "finished anyway", nil
	})
	require.NoError(t, err)
	waitForStatus(t, p, id, TaskStatusRunning)

	assert.True(t, p.Cancel(id))

	snap, ok := p.Status(id)
	require.True(t, ok)
	assert.Equal(t, TaskStatusCancelled, snap.Status)
	assert.NotNil(t, snap.CompletedAt)

	// The work keeps running; its late result does not overwrite the cancellation
	close(release)
	<-finished
	time.Sleep(20 * time.Millisecond)

	snap, _ = p.Status(id)
	assert.Equal(t, TaskStatusCancelled, snap.Status)
	assert.Nil(t, snap.Result)

	assert.False(t, p.Cancel(id), "terminal tasks cannot be cancelled again")
}

func TestProcessor_CancelDuringRetryDelay(t *testing.T) {
	p := newTestProcessor(t, testProcessorConfig())
	p.Start()

	var attempts atomic.Int32
	id, err := p.Submit(context.Background(), "retrying", func(ctx context.Context) (any, error) {
		attempts.Add(1)
		return nil, errors.New("nope")
	}, WithMaxRetries(5), WithRetryDelay(200*time.Millisecond))
	require.NoError(t, err)

	snap := waitForStatus(t, p, id, TaskStatusRetrying)
	assert.Nil(t, snap.StartedAt, "started_at is cleared while waiting to retry")
	assert.Equal(t, "nope", snap.Error)

	assert.True(t, p.Cancel(id))

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(1), attempts.Load(), "cancelled task must not be re-queued")
	snap, _ = p.Status(id)
	assert.Equal(t, TaskStatusCancelled, snap.Status)
}

func TestProcessor_CancelPendingReturnsFalse(t *testing.T) {
	p := newTestProcessor(t, testProcessorConfig())

	id, err := p.Submit(context.Background(), "queued", func(ctx context.Context) (any, error) {
		return nil, nil
	})
	require.NoError(t, err)

	assert.False(t, p.Cancel(id))
	snap, ok := p.Status(id)
	require.True(t, ok)
	assert.Equal(t, TaskStatusPending, snap.Status)
	assert.Nil(t, snap.StartedAt)
}

func TestProcessor_StopMidExecution(t *testing.T) {
	p := newTestProcessor(t, testProcessorConfig())
	p.Start()

	id, err := p.Submit(context.Background(), "interrupted", func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, WithMaxRetries(3))
	require.NoError(t, err)
	waitForStatus(t, p, id, TaskStatusRunning)

	p.Stop()

	snap, ok := p.Status(id)
	require.True(t, ok)
	assert.Equal(t, TaskStatusFailed, snap.Status)
	assert.Contains(t, snap.Error, ErrProcessorStopped.Error())
}

func TestProcessor_StopLeavesQueuedRecordsPending(t *testing.T) {
	for round := 0; round < 20; round++ {
		p := newTestProcessor(t, testProcessorConfig())
		p.Start()

		release := make(chan struct{})
		blocker, err := p.Submit(context.Background(), "blocker", func(ctx context.Context) (any, error) {
			<-release
			return nil, nil
		})
		require.NoError(t, err)
		waitForStatus(t, p, blocker, TaskStatusRunning)

		var ran atomic.Int32
		queued := make([]uuid.UUID, 3)
		for i := range queued {
			queued[i], err = p.Submit(context.Background(), "queued", func(ctx context.Context) (any, error) {
				ran.Add(1)
				return nil, nil
			})
			require.NoError(t, err)
		}

		p.Stop()
		close(release)

		for _, id := range queued {
			snap, ok := p.Status(id)
			require.True(t, ok)
			assert.Equal(t, TaskStatusPending, snap.Status, "round %d", round)
		}
		assert.Equal(t, 3, p.Stats().QueueSize, "round %d", round)
		assert.Zero(t, ran.Load(), "round %d: queued work ran during shutdown", round)
	}
}

func TestProcessor_RestartResumesQueuedRecords(t *testing.T) {
	p := newTestProcessor(t, testProcessorConfig())
	p.Start()

	release := make(chan struct{})
	blocker, err := p.Submit(context.Background(), "blocker", func(ctx context.Context) (any, error) {
		<-release
		return nil, nil
	})
	require.NoError(t, err)
	waitForStatus(t, p, blocker, TaskStatusRunning)

	id, err := p.Submit(context.Background(), "queued", func(ctx context.Context) (any, error) {
		return "done", nil
	})
	require.NoError(t, err)

	p.Stop()
	close(release)
	p.Start()

	snap := waitForStatus(t, p, id, TaskStatusCompleted)
	assert.Equal(t, "done", snap.Result)
}

func TestProcessor_RetryDoesNotBlockWorkerOnFullQueue(t *testing.T) {
	config := testProcessorConfig()
	config.QueueSize = 1
	p := newTestProcessor(t, config)
	p.Start()

	proceed := make(chan struct{})
	var attempts atomic.Int32
	flaky, err := p.Submit(context.Background(), "flaky", func(ctx context.Context) (any, error) {
		if attempts.Add(1) == 1 {
			<-proceed
			return nil, errors.New("transient")
		}
		return "recovered", nil
	}, WithMaxRetries(1))
	require.NoError(t, err)
	waitForStatus(t, p, flaky, TaskStatusRunning)

	// fills the only queue slot while the flaky attempt is still running
	other, err := p.Submit(context.Background(), "other", func(ctx context.Context) (any, error) {
		return "other", nil
	})
	require.NoError(t, err)
	close(proceed)

	waitForStatus(t, p, other, TaskStatusCompleted)
	snap := waitForStatus(t, p, flaky, TaskStatusCompleted)
	assert.Equal(t, "recovered", snap.Result)
	assert.Equal(t, 1, snap.RetryCount)
}

func TestProcessor_StartStopIdempotent(t *testing.T) {
	config := testProcessorConfig()
	config.MaxWorkers = 3
	p := newTestProcessor(t, config)

	stats := p.Stats()
	assert.False(t, stats.Running)
	assert.Equal(t, 0, stats.WorkerCount)
	assert.Equal(t, Limits{MaxWorkers: 3, QueueCapacity: 10}, stats.Limits)

	p.Stop()
	p.Start()
	p.Start()

	stats = p.Stats()
	assert.True(t, stats.Running)
	assert.Equal(t, 3, stats.WorkerCount)

	p.Stop()
	p.Stop()
	assert.False(t, p.Stats().Running)

	// A stopped processor can be started again
	p.Start()
	id, err := p.Submit(context.Background(), "after-restart", func(ctx context.Context) (any, error) {
		return true, nil
	})
	require.NoError(t, err)
	waitForStatus(t, p, id, TaskStatusCompleted)
}

func TestProcessor_SubmitValidation(t *testing.T) {
	p := newTestProcessor(t, testProcessorConfig())
	ctx := context.Background()
	work := func(ctx context.Context) (any, error) { return nil, nil }

	testCases := []struct {
		name    string
		work    Work
		opts    []SubmitOption
		wantErr error
	}{
		{name: "nil work", work: nil, wantErr: ErrNilWork},
		{name: "negative retries", work: work, opts: []SubmitOption{WithMaxRetries(-1)}, wantErr: ErrInvalidRetryPolicy},
		{name: "negative delay", work: work, opts: []SubmitOption{WithRetryDelay(-time.Second)}, wantErr: ErrInvalidRetryPolicy},
		{name: "negative timeout", work: work, opts: []SubmitOption{WithTimeout(-time.Second)}, wantErr: ErrInvalidRetryPolicy},
		{name: "unknown priority", work: work, opts: []SubmitOption{WithPriority(Priority(9))}, wantErr: ErrInvalidPriority},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			id, err := p.Submit(ctx, tc.name, tc.work, tc.opts...)
			assert.ErrorIs(t, err, tc.wantErr)
			assert.Equal(t, uuid.Nil, id)
		})
	}
	assert.Equal(t, 0, p.Stats().ActiveCount)
}

func TestProcessor_DefaultRetryPolicyApplied(t *testing.T) {
	config := testProcessorConfig()
	config.DefaultRetry = RetryPolicy{MaxRetries: 1, Delay: time.Millisecond}
	p := newTestProcessor(t, config)
	p.Start()

	var attempts atomic.Int32
	id, err := p.Submit(context.Background(), "defaults", func(ctx context.Context) (any, error) {
		attempts.Add(1)
		return nil, errors.New("fail")
	})
	require.NoError(t, err)

	snap := waitForStatus(t, p, id, TaskStatusFailed)
	assert.Equal(t, int32(2), attempts.Load())
	assert.Equal(t, 1, snap.MaxRetries)
}

func TestProcessor_JanitorPurgesOldRecords(t *testing.T) {
	clock := newFakeClock()
	config := testProcessorConfig()
	config.CleanupInterval = 10 * time.Millisecond
	config.CompletedTTL = time.Minute
	p := newTestProcessor(t, config, WithClock(clock))
	p.Start()

	id, err := p.Submit(context.Background(), "expires", func(ctx context.Context) (any, error) {
		return nil, nil
	})
	require.NoError(t, err)
	waitForStatus(t, p, id, TaskStatusCompleted)

	clock.Advance(2 * time.Minute)

	require.Eventually(t, func() bool {
		_, ok := p.Status(id)
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestProcessor_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := newTestProcessor(t, testProcessorConfig(), WithRegisterer(reg))
	p.Start()

	ok, err := p.Submit(context.Background(), "ok", func(ctx context.Context) (any, error) {
		return nil, nil
	}, WithPriority(PriorityHigh))
	require.NoError(t, err)
	bad, err := p.Submit(context.Background(), "bad", func(ctx context.Context) (any, error) {
		return nil, errors.New("fail")
	}, WithMaxRetries(1))
	require.NoError(t, err)

	waitForStatus(t, p, ok, TaskStatusCompleted)
	waitForStatus(t, p, bad, TaskStatusFailed)

	assert.Equal(t, float64(1), testutil.ToFloat64(p.metrics.submitted.WithLabelValues("high")))
	assert.Equal(t, float64(1), testutil.ToFloat64(p.metrics.submitted.WithLabelValues("normal")))
	assert.Equal(t, float64(1), testutil.ToFloat64(p.metrics.finished.WithLabelValues("completed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(p.metrics.finished.WithLabelValues("failed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(p.metrics.retries))

	count, err := testutil.GatherAndCount(reg, "platewise_task_queue_depth", "platewise_tasks_active")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
