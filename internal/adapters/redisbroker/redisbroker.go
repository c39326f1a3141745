// Package redisbroker implements the job broker ports on Redis: TTL'd job
// records, a FIFO pending list, and a sliding-window rate limiter. All
// adapters accept a redis.UniversalClient so direct, sentinel, and cluster
// deployments share one code path.
package redisbroker

const (
	// jobKeyPrefix namespaces job records ("job:{id}").
	jobKeyPrefix = "job:"

	// pendingListKey is the FIFO hand-off list (LPUSH by the gateway,
	// BRPOP by consumers).
	pendingListKey = "jobs:pending"

	// totalJobsKey counts every job ever enqueued.
	totalJobsKey = "jobs:total"

	// rateKeyPrefix namespaces per-client rate limit windows.
	rateKeyPrefix = "ratelimit:"
)
