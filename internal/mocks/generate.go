// Package mocks provides mock implementations for testing the sealbox pipeline.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the
// broker-facing ports. The mocks are generated using go:generate directives and
// provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	defer ctrl.Finish()
//	mockStore := mocks.NewMockJobStore(ctrl)
//	mockStore.EXPECT().Get(gomock.Any(), gomock.Any()).Return(job, nil)
//
// Stateful hand-written doubles for the processing pipeline live in the
// pipeline subpackage.
package mocks

// Generate mock for JobStore interface from internal/core package.
// This creates MockJobStore with methods for all JobStore interface methods:
// Save, Get, Remove
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_store_mock.go github.com/target/sealbox/internal/core JobStore

// Generate mock for JobQueue interface from internal/core package.
// This creates MockJobQueue with methods for all JobQueue interface methods:
// Enqueue, Dequeue, Length, TotalEnqueued
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_queue_mock.go github.com/target/sealbox/internal/core JobQueue

// Generate mock for RateLimiter interface from internal/core package.
// This creates MockRateLimiter with methods for all RateLimiter interface methods:
// Allow
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=rate_limiter_mock.go github.com/target/sealbox/internal/core RateLimiter

// Generate mock for BlobStore interface from internal/core package.
// This creates MockBlobStore with methods for all BlobStore interface methods:
// Put, Get, Remove
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=blob_store_mock.go github.com/target/sealbox/internal/core BlobStore
