package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vogiaan1904/ticketbottle-admission/config"
	"github.com/vogiaan1904/ticketbottle-admission/pkg/logger"
)

func testQueueConfig() config.QueueConfig {
	return config.QueueConfig{
		DefaultThreshold:        3,
		ActiveTTL:               5 * time.Minute,
		SeenTTL:                 45 * time.Second,
		PromoteInterval:         time.Second,
		CleanupInterval:         30 * time.Second,
		BatchSize:               50,
		LockTTL:                 3 * time.Second,
		CleanupBatchSize:        500,
		CleanupBatchDelay:       time.Millisecond,
		AssumedAdmissionsPerSec: 2,
		MinEstimateSeconds:      5,
		DefaultPollInterval:     5 * time.Second,
	}
}

func newTestStore(t *testing.T, cfg config.QueueConfig) (QueueStore, clockwork.FakeClock) {
	t.Helper()

	mr := miniredis.RunT(t)
	cli := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cli.Close() })

	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	return NewRedisQueueStore(cli, cfg, clock, logger.InitializeTestZapLogger()), clock
}

func TestQueueCheck_UnknownUser(t *testing.T) {
	store, _ := newTestStore(t, testQueueConfig())
	ctx := context.Background()

	res, err := store.QueueCheck(ctx, "ev1", "u1")
	require.NoError(t, err)

	assert.False(t, res.InQueue)
	assert.False(t, res.InActive)
	assert.Equal(t, int64(0), res.QueueSize)
	assert.Equal(t, int64(0), res.ActiveCount)
	assert.Equal(t, int64(3), res.Threshold)
}

func TestJoinQueue_PositionsAreOneBased(t *testing.T) {
	store, clock := newTestStore(t, testQueueConfig())
	ctx := context.Background()

	for _, uID := range []string{"u1", "u2", "u3"} {
		require.NoError(t, store.JoinQueue(ctx, "ev1", uID, float64(clock.Now().UnixMilli())))
		clock.Advance(time.Millisecond)
	}

	res, err := store.QueueCheck(ctx, "ev1", "u1")
	require.NoError(t, err)
	assert.True(t, res.InQueue)
	assert.Equal(t, int64(1), res.Position)
	assert.Equal(t, int64(3), res.QueueSize)

	res, err = store.QueueCheck(ctx, "ev1", "u3")
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Position)
}

func TestJoinQueue_ExternalScoreOrdersAheadOfLaterTimestamps(t *testing.T) {
	store, clock := newTestStore(t, testQueueConfig())
	ctx := context.Background()

	require.NoError(t, store.JoinQueue(ctx, "ev1", "u1", float64(clock.Now().UnixMilli())))

	// A pre-assigned ordinal far below any timestamp jumps the line.
	require.NoError(t, store.JoinQueue(ctx, "ev1", "u2", 7))

	res, err := store.QueueCheck(ctx, "ev1", "u2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Position)

	res, err = store.QueueCheck(ctx, "ev1", "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Position)
}

func TestJoinActive_ExpiresAfterTTL(t *testing.T) {
	cfg := testQueueConfig()
	store, clock := newTestStore(t, cfg)
	ctx := context.Background()

	require.NoError(t, store.JoinActive(ctx, "ev1", "u1"))

	res, err := store.QueueCheck(ctx, "ev1", "u1")
	require.NoError(t, err)
	assert.True(t, res.InActive)
	assert.Equal(t, int64(1), res.ActiveCount)

	clock.Advance(cfg.ActiveTTL + time.Millisecond)

	res, err = store.QueueCheck(ctx, "ev1", "u1")
	require.NoError(t, err)
	assert.False(t, res.InActive)
	assert.Equal(t, int64(0), res.ActiveCount)
}

func TestHeartbeatActive_SlidesExpiry(t *testing.T) {
	cfg := testQueueConfig()
	store, clock := newTestStore(t, cfg)
	ctx := context.Background()

	require.NoError(t, store.JoinActive(ctx, "ev1", "u1"))

	// Just before expiry, a heartbeat grants a full new TTL.
	clock.Advance(cfg.ActiveTTL - time.Second)
	require.NoError(t, store.HeartbeatActive(ctx, "ev1", "u1"))

	clock.Advance(cfg.ActiveTTL - time.Second)

	res, err := store.QueueCheck(ctx, "ev1", "u1")
	require.NoError(t, err)
	assert.True(t, res.InActive)
}

func TestHeartbeatQueue_DoesNotResurrectSweptUser(t *testing.T) {
	store, _ := newTestStore(t, testQueueConfig())
	ctx := context.Background()

	require.NoError(t, store.HeartbeatQueue(ctx, "ev1", "ghost"))

	res, err := store.QueueCheck(ctx, "ev1", "ghost")
	require.NoError(t, err)
	assert.False(t, res.InQueue)
}

func TestAdmitBatch_RespectsHeadroomAndOrder(t *testing.T) {
	cfg := testQueueConfig()
	cfg.DefaultThreshold = 3
	store, clock := newTestStore(t, cfg)
	ctx := context.Background()

	require.NoError(t, store.JoinActive(ctx, "ev1", "a1"))

	for _, uID := range []string{"u1", "u2", "u3", "u4"} {
		require.NoError(t, store.JoinQueue(ctx, "ev1", uID, float64(clock.Now().UnixMilli())))
		clock.Advance(time.Millisecond)
	}

	// Threshold 3, one live active member: only two slots.
	admitted, err := store.AdmitBatch(ctx, "ev1", 50)
	require.NoError(t, err)
	assert.Equal(t, int64(2), admitted)

	// The two longest-waiting users moved; the rest shifted forward.
	for _, uID := range []string{"u1", "u2"} {
		res, err := store.QueueCheck(ctx, "ev1", uID)
		require.NoError(t, err)
		assert.False(t, res.InQueue, uID)
		assert.True(t, res.InActive, uID)
	}

	res, err := store.QueueCheck(ctx, "ev1", "u3")
	require.NoError(t, err)
	assert.True(t, res.InQueue)
	assert.Equal(t, int64(1), res.Position)
	assert.Equal(t, int64(2), res.QueueSize)
	assert.Equal(t, int64(3), res.ActiveCount)
}

func TestAdmitBatch_NoHeadroom(t *testing.T) {
	cfg := testQueueConfig()
	cfg.DefaultThreshold = 1
	store, clock := newTestStore(t, cfg)
	ctx := context.Background()

	require.NoError(t, store.JoinActive(ctx, "ev1", "a1"))
	require.NoError(t, store.JoinQueue(ctx, "ev1", "u1", float64(clock.Now().UnixMilli())))

	admitted, err := store.AdmitBatch(ctx, "ev1", 50)
	require.NoError(t, err)
	assert.Equal(t, int64(0), admitted)
}

func TestAdmitBatch_CapsAtBatchSize(t *testing.T) {
	cfg := testQueueConfig()
	cfg.DefaultThreshold = 100
	store, clock := newTestStore(t, cfg)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		uID := string(rune('a' + i))
		require.NoError(t, store.JoinQueue(ctx, "ev1", uID, float64(clock.Now().UnixMilli())))
		clock.Advance(time.Millisecond)
	}

	admitted, err := store.AdmitBatch(ctx, "ev1", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), admitted)

	stats, err := store.Stats(ctx, "ev1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.QueueSize)
	assert.Equal(t, int64(2), stats.ActiveCount)
}

func TestAdmitBatch_UsesThresholdOverride(t *testing.T) {
	cfg := testQueueConfig()
	cfg.DefaultThreshold = 1
	store, clock := newTestStore(t, cfg)
	ctx := context.Background()

	require.NoError(t, store.SetThreshold(ctx, "ev1", 2))

	require.NoError(t, store.JoinQueue(ctx, "ev1", "u1", float64(clock.Now().UnixMilli())))
	clock.Advance(time.Millisecond)
	require.NoError(t, store.JoinQueue(ctx, "ev1", "u2", float64(clock.Now().UnixMilli())))

	admitted, err := store.AdmitBatch(ctx, "ev1", 50)
	require.NoError(t, err)
	assert.Equal(t, int64(2), admitted)
}

func TestSweepStaleQueue_RemovesSilentUsers(t *testing.T) {
	cfg := testQueueConfig()
	store, clock := newTestStore(t, cfg)
	ctx := context.Background()

	require.NoError(t, store.JoinQueue(ctx, "ev1", "stale", float64(clock.Now().UnixMilli())))

	clock.Advance(cfg.SeenTTL / 2)
	require.NoError(t, store.JoinQueue(ctx, "ev1", "fresh", float64(clock.Now().UnixMilli())))

	clock.Advance(cfg.SeenTTL/2 + time.Second)
	require.NoError(t, store.HeartbeatQueue(ctx, "ev1", "fresh"))

	removed, err := store.SweepStaleQueue(ctx, "ev1", 500)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	res, err := store.QueueCheck(ctx, "ev1", "stale")
	require.NoError(t, err)
	assert.False(t, res.InQueue)

	res, err = store.QueueCheck(ctx, "ev1", "fresh")
	require.NoError(t, err)
	assert.True(t, res.InQueue)
	assert.Equal(t, int64(1), res.Position)
}

func TestSweepStaleQueue_HonorsLimit(t *testing.T) {
	cfg := testQueueConfig()
	store, clock := newTestStore(t, cfg)
	ctx := context.Background()

	for _, uID := range []string{"u1", "u2", "u3"} {
		require.NoError(t, store.JoinQueue(ctx, "ev1", uID, float64(clock.Now().UnixMilli())))
	}

	clock.Advance(cfg.SeenTTL + time.Second)

	removed, err := store.SweepStaleQueue(ctx, "ev1", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	removed, err = store.SweepStaleQueue(ctx, "ev1", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func TestTrimActive_DropsExpiredMembers(t *testing.T) {
	cfg := testQueueConfig()
	store, clock := newTestStore(t, cfg)
	ctx := context.Background()

	require.NoError(t, store.JoinActive(ctx, "ev1", "u1"))

	clock.Advance(cfg.ActiveTTL + time.Second)
	require.NoError(t, store.JoinActive(ctx, "ev1", "u2"))

	require.NoError(t, store.TrimActive(ctx, "ev1"))

	stats, err := store.Stats(ctx, "ev1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.ActiveCount)

	res, err := store.QueueCheck(ctx, "ev1", "u2")
	require.NoError(t, err)
	assert.True(t, res.InActive)
}

func TestLeave_RemovesAllMemberships(t *testing.T) {
	store, clock := newTestStore(t, testQueueConfig())
	ctx := context.Background()

	require.NoError(t, store.JoinQueue(ctx, "ev1", "u1", float64(clock.Now().UnixMilli())))
	require.NoError(t, store.Leave(ctx, "ev1", "u1"))

	res, err := store.QueueCheck(ctx, "ev1", "u1")
	require.NoError(t, err)
	assert.False(t, res.InQueue)
	assert.False(t, res.InActive)

	// Leaving again is a no-op.
	require.NoError(t, store.Leave(ctx, "ev1", "u1"))
}

func TestClear_RemovesEventState(t *testing.T) {
	store, clock := newTestStore(t, testQueueConfig())
	ctx := context.Background()

	require.NoError(t, store.JoinQueue(ctx, "ev1", "u1", float64(clock.Now().UnixMilli())))
	require.NoError(t, store.JoinActive(ctx, "ev1", "u2"))
	require.NoError(t, store.SetThreshold(ctx, "ev1", 10))

	require.NoError(t, store.Clear(ctx, "ev1"))

	stats, err := store.Stats(ctx, "ev1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.QueueSize)
	assert.Equal(t, int64(0), stats.ActiveCount)
	assert.Equal(t, int64(3), stats.Threshold)

	events, err := store.ActiveEvents(ctx)
	require.NoError(t, err)
	assert.NotContains(t, events, "ev1")
}

func TestStats_ComputesAvailable(t *testing.T) {
	cfg := testQueueConfig()
	cfg.DefaultThreshold = 5
	store, _ := newTestStore(t, cfg)
	ctx := context.Background()

	require.NoError(t, store.JoinActive(ctx, "ev1", "u1"))
	require.NoError(t, store.JoinActive(ctx, "ev1", "u2"))

	stats, err := store.Stats(ctx, "ev1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), stats.Threshold)
	assert.Equal(t, int64(2), stats.ActiveCount)
	assert.Equal(t, int64(3), stats.Available)
}

func TestEventDrained(t *testing.T) {
	cfg := testQueueConfig()
	store, clock := newTestStore(t, cfg)
	ctx := context.Background()

	drained, err := store.EventDrained(ctx, "ev1")
	require.NoError(t, err)
	assert.True(t, drained)

	require.NoError(t, store.JoinActive(ctx, "ev1", "u1"))

	drained, err = store.EventDrained(ctx, "ev1")
	require.NoError(t, err)
	assert.False(t, drained)

	// Only unexpired active members count.
	clock.Advance(cfg.ActiveTTL + time.Second)

	drained, err = store.EventDrained(ctx, "ev1")
	require.NoError(t, err)
	assert.True(t, drained)
}

func TestActiveEvents_TracksEnrolledEvents(t *testing.T) {
	store, clock := newTestStore(t, testQueueConfig())
	ctx := context.Background()

	require.NoError(t, store.JoinQueue(ctx, "ev1", "u1", float64(clock.Now().UnixMilli())))
	require.NoError(t, store.JoinActive(ctx, "ev2", "u2"))

	events, err := store.ActiveEvents(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"ev1", "ev2"}, events)

	require.NoError(t, store.RemoveActiveEvent(ctx, "ev1"))

	events, err = store.ActiveEvents(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"ev2"}, events)
}

func TestAcquireLock_MutualExclusion(t *testing.T) {
	store, _ := newTestStore(t, testQueueConfig())
	ctx := context.Background()

	acquired, err := store.AcquireLock(ctx, "ev1")
	require.NoError(t, err)
	assert.True(t, acquired)

	acquired, err = store.AcquireLock(ctx, "ev1")
	require.NoError(t, err)
	assert.False(t, acquired)

	// Locks are per event.
	acquired, err = store.AcquireLock(ctx, "ev2")
	require.NoError(t, err)
	assert.True(t, acquired)

	require.NoError(t, store.ReleaseLock(ctx, "ev1"))

	acquired, err = store.AcquireLock(ctx, "ev1")
	require.NoError(t, err)
	assert.True(t, acquired)
}
