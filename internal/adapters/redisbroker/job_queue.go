package redisbroker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/target/sealbox/internal/domain/model"
)

// minDequeueWait keeps BRPOP bounded; a zero timeout would block forever and
// defeat the consumer's shutdown check.
const minDequeueWait = time.Second

// JobQueue is the FIFO hand-off list between the upload gateway and the
// inference consumers. LPUSH + BRPOP gives strict arrival order, and BRPOP
// is atomic across competing consumers so each job is delivered to exactly
// one of them.
type JobQueue struct {
	client redis.UniversalClient
}

// NewJobQueue creates a Redis-backed job queue.
func NewJobQueue(client redis.UniversalClient) *JobQueue {
	return &JobQueue{client: client}
}

// Enqueue pushes the full job record onto the pending list and bumps the
// lifetime counter in one transaction.
func (q *JobQueue) Enqueue(ctx context.Context, job *model.Job) error {
	if job == nil || job.ID == "" {
		return errors.New("job ID cannot be empty")
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, pendingListKey, data)
		pipe.Incr(ctx, totalJobsKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis enqueue: %w", err)
	}

	return nil
}

// Dequeue blocks up to wait for the next job. It returns (nil, nil) when the
// wait elapses with the queue still empty.
func (q *JobQueue) Dequeue(ctx context.Context, wait time.Duration) (*model.Job, error) {
	if wait < minDequeueWait {
		wait = minDequeueWait
	}

	vals, err := q.client.BRPop(ctx, wait, pendingListKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // Queue stayed empty for the full wait
		}
		return nil, fmt.Errorf("redis brpop: %w", err)
	}

	// BRPOP replies [key, value].
	if len(vals) != 2 {
		return nil, fmt.Errorf("redis brpop: unexpected reply length %d", len(vals))
	}

	var job model.Job
	if unmarshalErr := json.Unmarshal([]byte(vals[1]), &job); unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal job: %w", unmarshalErr)
	}

	return &job, nil
}

// Length reports the number of jobs currently waiting.
func (q *JobQueue) Length(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, pendingListKey).Result()
	if err != nil {
		return 0, fmt.Errorf("redis llen: %w", err)
	}

	return n, nil
}

// TotalEnqueued reports the lifetime count of enqueued jobs.
func (q *JobQueue) TotalEnqueued(ctx context.Context) (int64, error) {
	n, err := q.client.Get(ctx, totalJobsKey).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("redis get counter: %w", err)
	}

	return n, nil
}
