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

// JobStore persists job records as TTL'd Redis strings. Expiry doubles as
// retention: a record that ages out is indistinguishable from one that never
// existed.
type JobStore struct {
	client redis.UniversalClient
}

// NewJobStore creates a Redis-backed job store.
func NewJobStore(client redis.UniversalClient) *JobStore {
	return &JobStore{client: client}
}

// Save writes the job record under job:{id}, refreshing its TTL.
func (s *JobStore) Save(ctx context.Context, job *model.Job, ttl time.Duration) error {
	if job == nil || job.ID == "" {
		return errors.New("job ID cannot be empty")
	}
	if ttl <= 0 {
		return fmt.Errorf("job TTL must be positive, got %s", ttl)
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	return s.client.Set(ctx, jobKeyPrefix+job.ID, data, ttl).Err()
}

// Get returns the job record, or (nil, nil) when the key is missing or expired.
func (s *JobStore) Get(ctx context.Context, id string) (*model.Job, error) {
	if id == "" {
		return nil, nil
	}

	data, err := s.client.Get(ctx, jobKeyPrefix+id).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // Expired or never existed
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var job model.Job
	if unmarshalErr := json.Unmarshal([]byte(data), &job); unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal job: %w", unmarshalErr)
	}

	return &job, nil
}

// Remove deletes the job record. Removing a missing record is not an error.
func (s *JobStore) Remove(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}

	return s.client.Del(ctx, jobKeyPrefix+id).Err()
}
