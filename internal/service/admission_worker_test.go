package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vogiaan1904/ticketbottle-admission/internal/models"
	"github.com/vogiaan1904/ticketbottle-admission/pkg/logger"
)

func newTestWorker(f *svcFixture) AdmissionWorker {
	return NewAdmissionWorker(f.store, f.svc, f.cfg, f.clock, logger.InitializeTestZapLogger())
}

func TestPromoteEvent_FillsHeadroomInOrder(t *testing.T) {
	f := newSvcFixture(t, 3)
	w := newTestWorker(f)
	ctx := context.Background()

	// Fill the room, then queue seven more.
	for i := 1; i <= 10; i++ {
		f.check(t, "ev1", userID(i))
	}

	// Free two active slots.
	require.NoError(t, f.svc.Leave(ctx, "ev1", userID(1)))
	require.NoError(t, f.svc.Leave(ctx, "ev1", userID(2)))

	require.NoError(t, w.PromoteEvent(ctx, "ev1"))

	// The two longest-waiting users were admitted.
	for i := 4; i <= 5; i++ {
		view, err := f.svc.Status(ctx, "ev1", userID(i))
		require.NoError(t, err)
		assert.Equal(t, models.AdmissionStatusActive, view.Status, userID(i))
	}

	// The rest shifted forward.
	view, err := f.svc.Status(ctx, "ev1", userID(6))
	require.NoError(t, err)
	assert.Equal(t, models.AdmissionStatusQueued, view.Status)
	assert.Equal(t, int64(1), view.Position)

	assert.Equal(t, int64(2), w.GetStatus().TotalAdmitted)
}

func TestPromoteEvent_SkipsWhenLockHeld(t *testing.T) {
	f := newSvcFixture(t, 1)
	w := newTestWorker(f)
	ctx := context.Background()

	f.check(t, "ev1", "holder")
	f.check(t, "ev1", "queued")
	require.NoError(t, f.svc.Leave(ctx, "ev1", "holder"))

	// Another replica holds this event's promotion lock.
	acquired, err := f.store.AcquireLock(ctx, "ev1")
	require.NoError(t, err)
	require.True(t, acquired)

	require.NoError(t, w.PromoteEvent(ctx, "ev1"))

	view, err := f.svc.Status(ctx, "ev1", "queued")
	require.NoError(t, err)
	assert.Equal(t, models.AdmissionStatusQueued, view.Status)
	assert.Equal(t, int64(0), w.GetStatus().TotalAdmitted)

	// Once released, the next cycle proceeds.
	require.NoError(t, f.store.ReleaseLock(ctx, "ev1"))
	require.NoError(t, w.PromoteEvent(ctx, "ev1"))

	view, err = f.svc.Status(ctx, "ev1", "queued")
	require.NoError(t, err)
	assert.Equal(t, models.AdmissionStatusActive, view.Status)
}

func TestPromoteEvent_RemovesDrainedEvent(t *testing.T) {
	f := newSvcFixture(t, 1)
	w := newTestWorker(f)
	ctx := context.Background()

	f.check(t, "ev1", "u1")
	require.NoError(t, f.svc.Leave(ctx, "ev1", "u1"))

	require.NoError(t, w.PromoteEvent(ctx, "ev1"))

	events, err := f.store.ActiveEvents(ctx)
	require.NoError(t, err)
	assert.NotContains(t, events, "ev1")
}

func TestCleanupEvent_SweepsAbandonedUsers(t *testing.T) {
	f := newSvcFixture(t, 1)
	w := newTestWorker(f)
	ctx := context.Background()

	f.check(t, "ev1", "holder")
	f.check(t, "ev1", "abandoned")
	f.check(t, "ev1", "patient")

	// "patient" keeps polling, "abandoned" goes silent.
	f.clock.Advance(f.cfg.SeenTTL + time.Second)
	_, err := f.svc.Heartbeat(ctx, "ev1", "patient")
	require.NoError(t, err)

	require.NoError(t, w.(*admissionWorker).cleanupEvent(ctx, "ev1"))

	view, err := f.svc.Status(ctx, "ev1", "abandoned")
	require.NoError(t, err)
	assert.Equal(t, models.AdmissionStatusNotInQueue, view.Status)

	view, err = f.svc.Status(ctx, "ev1", "patient")
	require.NoError(t, err)
	assert.Equal(t, models.AdmissionStatusQueued, view.Status)
	assert.Equal(t, int64(1), view.Position)

	assert.Equal(t, int64(1), w.GetStatus().TotalSwept)
}

func TestWorker_Lifecycle(t *testing.T) {
	f := newSvcFixture(t, 1)
	w := newTestWorker(f)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	assert.False(t, w.GetStatus().IsRunning)

	require.NoError(t, w.Start(ctx))
	assert.True(t, w.GetStatus().IsRunning)
	assert.NotEmpty(t, w.GetStatus().StartedAt)

	assert.Error(t, w.Start(ctx))

	require.NoError(t, w.Stop())
	assert.False(t, w.GetStatus().IsRunning)

	assert.Error(t, w.Stop())
}

func userID(i int) string {
	return fmt.Sprintf("user-%02d", i)
}
