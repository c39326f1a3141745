package consumer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/sealbox/internal/domain/model"
)

// fakeQueue serves queued errors first, then queued jobs, then simulates the
// bounded blocking wait of the real broker.
type fakeQueue struct {
	mu      sync.Mutex
	pending []*model.Job
	errs    []error
}

func (q *fakeQueue) Enqueue(_ context.Context, job *model.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, job)
	return nil
}

func (q *fakeQueue) Dequeue(ctx context.Context, wait time.Duration) (*model.Job, error) {
	q.mu.Lock()
	if len(q.errs) > 0 {
		err := q.errs[0]
		q.errs = q.errs[1:]
		q.mu.Unlock()
		return nil, err
	}
	if len(q.pending) > 0 {
		job := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()
		return job, nil
	}
	q.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(wait):
		return nil, nil
	}
}

func (q *fakeQueue) Length(context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.pending)), nil
}

func (q *fakeQueue) TotalEnqueued(context.Context) (int64, error) {
	return 0, nil
}

// fakeProcessor reports every job it sees on a channel, including jobs it
// fails or panics on.
type fakeProcessor struct {
	seen    chan string
	failOn  string
	panicOn string
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{seen: make(chan string, 32)}
}

func (p *fakeProcessor) Process(_ context.Context, job *model.Job) error {
	defer func() { p.seen <- job.ID }()
	if job.ID == p.panicOn {
		panic("processor exploded")
	}
	if job.ID == p.failOn {
		return errors.New("status store unreachable")
	}
	return nil
}

func (p *fakeProcessor) waitFor(t *testing.T, want int) []string {
	t.Helper()
	ids := make([]string, 0, want)
	for len(ids) < want {
		select {
		case id := <-p.seen:
			ids = append(ids, id)
		case <-time.After(2 * time.Second):
			t.Fatalf("saw %d of %d jobs before timeout", len(ids), want)
		}
	}
	return ids
}

func testRunner(t *testing.T, queue *fakeQueue, proc Processor, workers int) *Runner {
	t.Helper()
	runner, err := NewRunner(RunnerOptions{
		Queue:       queue,
		Processor:   proc,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Workers:     workers,
		DequeueWait: 10 * time.Millisecond,
		Backoff:     5 * time.Millisecond,
	})
	require.NoError(t, err)
	return runner
}

// startRunner runs the runner in the background and returns its exit channel.
func startRunner(ctx context.Context, runner *Runner) <-chan error {
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()
	return done
}

func job(id string) *model.Job {
	return &model.Job{ID: id}
}

func TestRunner_DrainsQueueInOrder(t *testing.T) {
	queue := &fakeQueue{pending: []*model.Job{job("a"), job("b"), job("c")}}
	proc := newFakeProcessor()

	ctx, cancel := context.WithCancel(context.Background())
	done := startRunner(ctx, testRunner(t, queue, proc, 1))

	ids := proc.waitFor(t, 3)
	assert.Equal(t, []string{"a", "b", "c"}, ids)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestRunner_MultipleWorkersDrainQueue(t *testing.T) {
	queue := &fakeQueue{}
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		require.NoError(t, queue.Enqueue(context.Background(), job(id)))
	}
	proc := newFakeProcessor()

	ctx, cancel := context.WithCancel(context.Background())
	done := startRunner(ctx, testRunner(t, queue, proc, 3))

	ids := proc.waitFor(t, 6)
	assert.ElementsMatch(t, []string{"a", "b", "c", "d", "e", "f"}, ids)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestRunner_BacksOffAfterBrokerErrorAndRecovers(t *testing.T) {
	queue := &fakeQueue{
		errs:    []error{errors.New("connection refused")},
		pending: []*model.Job{job("after-error")},
	}
	proc := newFakeProcessor()

	ctx, cancel := context.WithCancel(context.Background())
	done := startRunner(ctx, testRunner(t, queue, proc, 1))

	ids := proc.waitFor(t, 1)
	assert.Equal(t, []string{"after-error"}, ids)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestRunner_SurvivesProcessorPanic(t *testing.T) {
	queue := &fakeQueue{pending: []*model.Job{job("boom"), job("next")}}
	proc := newFakeProcessor()
	proc.panicOn = "boom"

	ctx, cancel := context.WithCancel(context.Background())
	done := startRunner(ctx, testRunner(t, queue, proc, 1))

	ids := proc.waitFor(t, 2)
	assert.Equal(t, []string{"boom", "next"}, ids)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestRunner_ContinuesWhenOutcomeRecordingFails(t *testing.T) {
	queue := &fakeQueue{pending: []*model.Job{job("unrecordable"), job("next")}}
	proc := newFakeProcessor()
	proc.failOn = "unrecordable"

	ctx, cancel := context.WithCancel(context.Background())
	done := startRunner(ctx, testRunner(t, queue, proc, 1))

	ids := proc.waitFor(t, 2)
	assert.Equal(t, []string{"unrecordable", "next"}, ids)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestRunner_StopsOnCancelWhileIdle(t *testing.T) {
	queue := &fakeQueue{}
	proc := newFakeProcessor()

	ctx, cancel := context.WithCancel(context.Background())
	done := startRunner(ctx, testRunner(t, queue, proc, 1))

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop after cancellation")
	}
}

func TestNewRunner_Validation(t *testing.T) {
	queue := &fakeQueue{}
	proc := newFakeProcessor()

	t.Run("requires queue", func(t *testing.T) {
		_, err := NewRunner(RunnerOptions{Processor: proc})
		assert.ErrorContains(t, err, "queue is required")
	})

	t.Run("requires processor", func(t *testing.T) {
		_, err := NewRunner(RunnerOptions{Queue: queue})
		assert.ErrorContains(t, err, "processor is required")
	})

	t.Run("applies defaults", func(t *testing.T) {
		runner, err := NewRunner(RunnerOptions{Queue: queue, Processor: proc})
		require.NoError(t, err)
		assert.Equal(t, 1, runner.workers)
		assert.Equal(t, DefaultDequeueWait, runner.wait)
		assert.Equal(t, DefaultBackoff, runner.backoff)
	})
}
