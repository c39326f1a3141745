package service

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/sealbox/internal/core"
	"github.com/target/sealbox/internal/domain/model"
	apperrors "github.com/target/sealbox/internal/errors"
	"github.com/target/sealbox/internal/mocks"
	"github.com/target/sealbox/internal/mocks/pipeline"
)

var (
	pngMagic  = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	jpegMagic = []byte{0xFF, 0xD8, 0xFF, 0xE0}
)

// pngPayload returns a PNG-sniffable payload padded to size bytes.
func pngPayload(size int) []byte {
	payload := make([]byte, size)
	copy(payload, pngMagic)
	return payload
}

type uploadEnv struct {
	store   *pipeline.MemJobStore
	queue   *pipeline.MemJobQueue
	blobs   *pipeline.MemBlobStore
	limiter *pipeline.StubRateLimiter
	svc     *UploadService
}

func newUploadEnv(t *testing.T, mutate func(opts *UploadServiceOptions)) *uploadEnv {
	t.Helper()

	env := &uploadEnv{
		store:   pipeline.NewMemJobStore(),
		queue:   pipeline.NewMemJobQueue(),
		blobs:   pipeline.NewMemBlobStore(),
		limiter: pipeline.NewStubRateLimiter(),
	}
	opts := UploadServiceOptions{
		Store:   env.store,
		Queue:   env.queue,
		Blobs:   env.blobs,
		Limiter: env.limiter,
	}
	if mutate != nil {
		mutate(&opts)
	}

	var err error
	env.svc, err = NewUploadService(opts)
	require.NoError(t, err)
	return env
}

func TestUploadService_AcceptsValidSubmission(t *testing.T) {
	env := newUploadEnv(t, nil)
	ctx := context.Background()
	payload := pngPayload(2048)

	job, err := env.svc.Submit(ctx, SubmitInput{
		Payload:      bytes.NewReader(payload),
		Filename:     "cat.png",
		DeclaredType: "image/png",
		ClientID:     "client-1",
		Context:      map[string]string{"session_id": "abc-123"},
	})
	require.NoError(t, err)

	assert.True(t, model.ValidJobID(job.ID))
	assert.Equal(t, model.JobStatusQueued, job.Status)
	assert.Equal(t, "image/png", job.SniffedType)
	assert.Equal(t, int64(2048), job.Size)
	assert.False(t, job.TypeMismatch)
	assert.Equal(t, map[string]string{"session_id": "abc-123"}, job.Context)

	assert.True(t, env.blobs.Has(job.BlobKey), "payload must stay staged for the consumer")
	assert.Equal(t, DefaultJobTTL, env.store.TTL(job.ID))

	stored, err := env.store.Get(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, stored, "status polls must resolve immediately after acceptance")

	queued, err := env.queue.Dequeue(ctx, 10*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, queued)
	assert.Equal(t, job.ID, queued.ID)

	total, err := env.queue.TotalEnqueued(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestUploadService_AcceptsTinyJPEGPrefix(t *testing.T) {
	env := newUploadEnv(t, nil)

	job, err := env.svc.Submit(context.Background(), SubmitInput{
		Payload:  bytes.NewReader(jpegMagic),
		Filename: "tiny.jpg",
		ClientID: "client-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", job.SniffedType)
	assert.Equal(t, int64(4), job.Size)
}

func TestUploadService_RejectsOversizePayload(t *testing.T) {
	env := newUploadEnv(t, func(opts *UploadServiceOptions) {
		opts.MaxUploadBytes = 64
	})

	_, err := env.svc.Submit(context.Background(), SubmitInput{
		Payload:  bytes.NewReader(pngPayload(65)),
		ClientID: "client-1",
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsFileTooLarge(err))

	assert.Zero(t, env.blobs.Len(), "oversize payload must not stay staged")
	assert.Zero(t, env.store.Len())
	total, _ := env.queue.TotalEnqueued(context.Background())
	assert.Zero(t, total)
}

func TestUploadService_RejectsWhenRateLimited(t *testing.T) {
	env := newUploadEnv(t, nil)
	env.limiter.Verdict = core.Verdict{Allowed: false, RetryAfter: 30 * time.Second}

	_, err := env.svc.Submit(context.Background(), SubmitInput{
		Payload:  bytes.NewReader(pngPayload(128)),
		ClientID: "hot-client",
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsRateLimited(err))
	assert.Equal(t, 30*time.Second, apperrors.GetRetryAfter(err))

	assert.Equal(t, []string{"hot-client"}, env.limiter.Calls())
	assert.Zero(t, env.blobs.Len())
	assert.Zero(t, env.store.Len())
}

func TestUploadService_SniffFailsClosed(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"plain text declared as image", []byte("not an image")},
		{"empty payload", nil},
		{"unknown signature", []byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newUploadEnv(t, nil)

			_, err := env.svc.Submit(context.Background(), SubmitInput{
				Payload:      bytes.NewReader(tt.payload),
				DeclaredType: "image/jpeg",
				ClientID:     "client-1",
			})
			require.Error(t, err)
			assert.True(t, apperrors.IsInvalidFileType(err))

			assert.Zero(t, env.blobs.Len(), "rejected payload must not stay staged")
			total, _ := env.queue.TotalEnqueued(context.Background())
			assert.Zero(t, total, "unsniffable content must never be enqueued")
		})
	}
}

func TestUploadService_FlagsDeclaredSniffedMismatch(t *testing.T) {
	env := newUploadEnv(t, nil)

	t.Run("mismatch sets flag", func(t *testing.T) {
		job, err := env.svc.Submit(context.Background(), SubmitInput{
			Payload:      bytes.NewReader(pngPayload(64)),
			DeclaredType: "image/jpeg",
			ClientID:     "client-1",
		})
		require.NoError(t, err)
		assert.True(t, job.TypeMismatch)
		assert.Equal(t, "image/jpeg", job.DeclaredType)
		assert.Equal(t, "image/png", job.SniffedType)
	})

	t.Run("declared type is normalized before comparing", func(t *testing.T) {
		job, err := env.svc.Submit(context.Background(), SubmitInput{
			Payload:      bytes.NewReader(pngPayload(64)),
			DeclaredType: "image/PNG; q=0.9",
			ClientID:     "client-1",
		})
		require.NoError(t, err)
		assert.False(t, job.TypeMismatch)
		assert.Equal(t, "image/png", job.DeclaredType)
	})

	t.Run("no declared type means no mismatch", func(t *testing.T) {
		job, err := env.svc.Submit(context.Background(), SubmitInput{
			Payload:  bytes.NewReader(pngPayload(64)),
			ClientID: "client-1",
		})
		require.NoError(t, err)
		assert.False(t, job.TypeMismatch)
	})
}

func TestUploadService_ContextIsAllowlistedAndSanitized(t *testing.T) {
	env := newUploadEnv(t, nil)

	job, err := env.svc.Submit(context.Background(), SubmitInput{
		Payload:  bytes.NewReader(pngPayload(64)),
		ClientID: "client-1",
		Context: map[string]string{
			"session_id":       "sess-<script>1</script>",
			"upload_timestamp": "2026-08-25T10:00:00Z",
			"user_email":       "user@example.com",
			"secret_key":       "sk-very-secret",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"session_id":       "sess-script1/script",
		"upload_timestamp": "2026-08-25T10:00:00Z",
	}, job.Context)
	assert.NotContains(t, job.Context, "user_email")
	assert.NotContains(t, job.Context, "secret_key")
}

func TestUploadService_SavesRecordBeforeEnqueue(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockStore := mocks.NewMockJobStore(ctrl)
	mockQueue := mocks.NewMockJobQueue(ctrl)
	gomock.InOrder(
		mockStore.EXPECT().
			Save(gomock.Any(), gomock.AssignableToTypeOf(&model.Job{}), DefaultJobTTL).
			Return(nil),
		mockQueue.EXPECT().
			Enqueue(gomock.Any(), gomock.AssignableToTypeOf(&model.Job{})).
			Return(nil),
	)

	svc := MustNewUploadService(UploadServiceOptions{
		Store:   mockStore,
		Queue:   mockQueue,
		Blobs:   pipeline.NewMemBlobStore(),
		Limiter: pipeline.NewStubRateLimiter(),
	})

	_, err := svc.Submit(context.Background(), SubmitInput{
		Payload:  bytes.NewReader(pngPayload(64)),
		ClientID: "client-1",
	})
	require.NoError(t, err)
}

func TestUploadService_DiscardsBlobExactlyOnceOnRejection(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockBlobs := mocks.NewMockBlobStore(ctrl)
	mockLimiter := mocks.NewMockRateLimiter(ctrl)

	var stagedKey string
	mockBlobs.EXPECT().
		Put(gomock.Any(), gomock.Any(), gomock.Any(), int64(-1)).
		DoAndReturn(func(_ context.Context, key string, _ any, _ int64) (int64, error) {
			stagedKey = key
			return 64, nil
		})
	mockLimiter.EXPECT().
		Allow(gomock.Any(), "client-1").
		Return(core.Verdict{Allowed: false, RetryAfter: time.Minute}, nil)
	mockBlobs.EXPECT().
		Remove(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, key string) error {
			assert.Equal(t, stagedKey, key)
			return nil
		})

	svc := MustNewUploadService(UploadServiceOptions{
		Store:   pipeline.NewMemJobStore(),
		Queue:   pipeline.NewMemJobQueue(),
		Blobs:   mockBlobs,
		Limiter: mockLimiter,
	})

	_, err := svc.Submit(context.Background(), SubmitInput{
		Payload:  bytes.NewReader(pngPayload(64)),
		ClientID: "client-1",
	})
	assert.True(t, apperrors.IsRateLimited(err))
}

func TestUploadService_EnqueueFailureRollsBack(t *testing.T) {
	env := newUploadEnv(t, nil)
	env.queue.EnqueueErr = errors.New("broker gone")

	_, err := env.svc.Submit(context.Background(), SubmitInput{
		Payload:  bytes.NewReader(pngPayload(64)),
		ClientID: "client-1",
	})
	require.Error(t, err)
	assert.Empty(t, apperrors.GetCode(err), "infrastructure failures carry no client code")

	assert.Zero(t, env.store.Len(), "a job no consumer will see must not stay visible")
	assert.Zero(t, env.blobs.Len())
}

func TestUploadService_StoreFailureDiscardsBlob(t *testing.T) {
	env := newUploadEnv(t, nil)
	env.store.SaveErr = errors.New("store gone")

	_, err := env.svc.Submit(context.Background(), SubmitInput{
		Payload:  bytes.NewReader(pngPayload(64)),
		ClientID: "client-1",
	})
	require.Error(t, err)
	assert.Zero(t, env.blobs.Len())
}

func TestUploadService_InputValidation(t *testing.T) {
	env := newUploadEnv(t, nil)

	t.Run("nil payload", func(t *testing.T) {
		_, err := env.svc.Submit(context.Background(), SubmitInput{ClientID: "c"})
		assert.True(t, apperrors.IsInvalidInput(err))
	})

	t.Run("missing client id", func(t *testing.T) {
		_, err := env.svc.Submit(context.Background(), SubmitInput{
			Payload: bytes.NewReader(pngPayload(16)),
		})
		assert.True(t, apperrors.IsInvalidInput(err))
	})
}

func TestNewUploadService_Validation(t *testing.T) {
	valid := UploadServiceOptions{
		Store:   pipeline.NewMemJobStore(),
		Queue:   pipeline.NewMemJobQueue(),
		Blobs:   pipeline.NewMemBlobStore(),
		Limiter: pipeline.NewStubRateLimiter(),
	}

	tests := []struct {
		name    string
		mutate  func(opts *UploadServiceOptions)
		wantErr string
	}{
		{"missing store", func(o *UploadServiceOptions) { o.Store = nil }, "JobStore is required"},
		{"missing queue", func(o *UploadServiceOptions) { o.Queue = nil }, "JobQueue is required"},
		{"missing blobs", func(o *UploadServiceOptions) { o.Blobs = nil }, "BlobStore is required"},
		{"missing limiter", func(o *UploadServiceOptions) { o.Limiter = nil }, "RateLimiter is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := valid
			tt.mutate(&opts)
			_, err := NewUploadService(opts)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}

	t.Run("defaults applied", func(t *testing.T) {
		svc, err := NewUploadService(valid)
		require.NoError(t, err)
		assert.Equal(t, DefaultMaxUploadBytes, svc.maxUploadBytes)
		assert.Equal(t, DefaultJobTTL, svc.jobTTL)
	})
}
