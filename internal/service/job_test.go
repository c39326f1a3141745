package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/sealbox/internal/domain/model"
	apperrors "github.com/target/sealbox/internal/errors"
	"github.com/target/sealbox/internal/mocks"
	"github.com/target/sealbox/internal/mocks/pipeline"
)

const unknownJobID = "7b6ff659-21b2-4be0-8f3a-2f2b6a6d4d86"

func newStatusService(t *testing.T, ctrl *gomock.Controller) (*JobService, *mocks.MockJobStore) {
	t.Helper()
	store := mocks.NewMockJobStore(ctrl)
	svc, err := NewJobService(JobServiceOptions{
		Store: store,
		Queue: pipeline.NewMemJobQueue(),
	})
	require.NoError(t, err)
	return svc, store
}

func TestJobService_Status_RejectsMalformedIDBeforeLookup(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	// No store expectations: a malformed id must never reach the broker.
	svc, _ := newStatusService(t, ctrl)

	for _, id := range []string{"", "abc", "../etc/passwd", "123e4567"} {
		_, err := svc.Status(context.Background(), id)
		assert.True(t, apperrors.IsInvalidJobID(err), "id %q", id)
	}
}

func TestJobService_Status_UnknownAndExpiredAreIndistinguishable(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, store := newStatusService(t, ctrl)
	store.EXPECT().Get(gomock.Any(), unknownJobID).Return(nil, nil)

	_, err := svc.Status(context.Background(), unknownJobID)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestJobService_Status_ReturnsClientViewOnly(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	job := model.NewJob(model.NewJobParams{
		Filename:     "cat.png",
		BlobKey:      "blob-xyz",
		DeclaredType: "image/png",
		SniffedType:  "image/png",
		Size:         512,
		Context:      map[string]string{"session_id": "sess-1"},
	})
	require.NoError(t, job.MarkProcessing(time.Now()))
	require.NoError(t, job.MarkCompleted(model.Result{"cats": float64(3)}, time.Now()))

	svc, store := newStatusService(t, ctrl)
	store.EXPECT().Get(gomock.Any(), job.ID).Return(job, nil)

	view, err := svc.Status(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, view.ID)
	assert.Equal(t, model.JobStatusCompleted, view.Status)
	assert.Equal(t, float64(3), view.Result["cats"])
	assert.Empty(t, view.Error)
}

func TestJobService_Status_WrapsStoreErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, store := newStatusService(t, ctrl)
	store.EXPECT().Get(gomock.Any(), unknownJobID).Return(nil, errors.New("redis: connection refused"))

	_, err := svc.Status(context.Background(), unknownJobID)
	require.Error(t, err)
	assert.Empty(t, apperrors.GetCode(err), "infrastructure failures carry no client code")
}

func TestJobService_QueueStats(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	queue := mocks.NewMockJobQueue(ctrl)
	queue.EXPECT().Length(gomock.Any()).Return(int64(3), nil)
	queue.EXPECT().TotalEnqueued(gomock.Any()).Return(int64(42), nil)

	svc, err := NewJobService(JobServiceOptions{
		Store: pipeline.NewMemJobStore(),
		Queue: queue,
	})
	require.NoError(t, err)

	stats, err := svc.QueueStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.QueueLength)
	assert.Equal(t, int64(42), stats.TotalJobs)
}

func TestJobService_QueueStats_PropagatesBrokerErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	queue := mocks.NewMockJobQueue(ctrl)
	queue.EXPECT().Length(gomock.Any()).Return(int64(0), errors.New("LLEN failed"))
	// The sibling fetch races the failure; it may or may not be issued.
	queue.EXPECT().TotalEnqueued(gomock.Any()).Return(int64(0), nil).MaxTimes(1)

	svc, err := NewJobService(JobServiceOptions{
		Store: pipeline.NewMemJobStore(),
		Queue: queue,
	})
	require.NoError(t, err)

	_, err = svc.QueueStats(context.Background())
	assert.ErrorContains(t, err, "queue length")
}

func TestNewJobService_Validation(t *testing.T) {
	t.Run("missing store", func(t *testing.T) {
		_, err := NewJobService(JobServiceOptions{Queue: pipeline.NewMemJobQueue()})
		assert.ErrorContains(t, err, "JobStore is required")
	})

	t.Run("missing queue", func(t *testing.T) {
		_, err := NewJobService(JobServiceOptions{Store: pipeline.NewMemJobStore()})
		assert.ErrorContains(t, err, "JobQueue is required")
	})

	t.Run("must constructor panics", func(t *testing.T) {
		assert.Panics(t, func() { MustNewJobService(JobServiceOptions{}) })
	})
}
