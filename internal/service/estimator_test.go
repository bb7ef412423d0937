package service

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/vogiaan1904/ticketbottle-admission/config"
)

func newTestEstimator() (*rateEstimator, clockwork.FakeClock) {
	clock := clockwork.NewFakeClock()
	cfg := config.QueueConfig{
		AssumedAdmissionsPerSec: 2,
		MinEstimateSeconds:      5,
		DefaultPollInterval:     5 * time.Second,
	}

	return newRateEstimator(cfg, clock), clock
}

func TestEstimateWaitSeconds_FallbackBeforeAnyAdmissions(t *testing.T) {
	e, _ := newTestEstimator()

	// 100 ahead at 2/sec assumed.
	assert.Equal(t, int64(50), e.EstimateWaitSeconds(100))

	// Near the front the floor applies.
	assert.Equal(t, int64(5), e.EstimateWaitSeconds(1))
	assert.Equal(t, int64(5), e.EstimateWaitSeconds(8))

	assert.Equal(t, int64(0), e.EstimateWaitSeconds(0))
}

func TestEstimateWaitSeconds_FallbackDuringWarmup(t *testing.T) {
	e, clock := newTestEstimator()

	e.Record(50)
	clock.Advance(2 * time.Second)

	// Two seconds of data is inside the warmup window, so the measured burst
	// of 25/sec is not trusted yet.
	assert.Equal(t, int64(50), e.EstimateWaitSeconds(100))
}

func TestEstimateWaitSeconds_MeasuredRate(t *testing.T) {
	e, clock := newTestEstimator()

	e.Record(50)
	clock.Advance(10 * time.Second)

	// 50 admissions over 10s = 5/sec, position 100 waits 20s.
	assert.Equal(t, int64(20), e.EstimateWaitSeconds(100))

	// Fractional waits round up.
	assert.Equal(t, int64(1), e.EstimateWaitSeconds(3))
}

func TestEstimateWaitSeconds_StaleWindowFallsBack(t *testing.T) {
	e, clock := newTestEstimator()

	e.Record(50)
	clock.Advance(estimatorWindow + time.Second)

	assert.Equal(t, int64(50), e.EstimateWaitSeconds(100))
}

func TestRecord_ResetsExpiredWindow(t *testing.T) {
	e, clock := newTestEstimator()

	e.Record(1_000)
	clock.Advance(estimatorWindow + time.Second)

	// The stale burst is discarded; only the new window counts.
	e.Record(50)
	clock.Advance(10 * time.Second)

	assert.Equal(t, int64(20), e.EstimateWaitSeconds(100))
}

func TestPollInterval_ScalesWithPosition(t *testing.T) {
	e, _ := newTestEstimator()

	assert.Equal(t, 5*time.Second, e.PollInterval(0))
	assert.Equal(t, time.Second, e.PollInterval(1))
	assert.Equal(t, time.Second, e.PollInterval(1_000))
	assert.Equal(t, 5*time.Second, e.PollInterval(1_001))
	assert.Equal(t, 10*time.Second, e.PollInterval(5_001))
	assert.Equal(t, 30*time.Second, e.PollInterval(10_001))
	assert.Equal(t, 60*time.Second, e.PollInterval(100_001))
}
