package service

import (
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/vogiaan1904/ticketbottle-admission/config"
)

const estimatorWindow = 60 * time.Second

// rateEstimator tracks admissions observed by this instance over a sliding
// window. One window pair behind a mutex, safe for concurrent recorders; each
// replica estimates from its own traffic, which is an accepted approximation.
type rateEstimator struct {
	mu          sync.Mutex
	clock       clockwork.Clock
	windowStart time.Time
	count       int64

	warmup        time.Duration
	assumedPerSec int
	minEstimate   int64
	defaultPoll   time.Duration
}

func newRateEstimator(cfg config.QueueConfig, clock clockwork.Clock) *rateEstimator {
	return &rateEstimator{
		clock:         clock,
		windowStart:   clock.Now(),
		warmup:        time.Duration(cfg.MinEstimateSeconds) * time.Second,
		assumedPerSec: cfg.AssumedAdmissionsPerSec,
		minEstimate:   int64(cfg.MinEstimateSeconds),
		defaultPoll:   cfg.DefaultPollInterval,
	}
}

func (e *rateEstimator) Record(count int64) {
	if count <= 0 {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	if now.Sub(e.windowStart) > estimatorWindow {
		e.windowStart = now
		e.count = count
		return
	}

	e.count += count
}

// EstimateWaitSeconds converts a queue position into a rough wait. Before the
// window has accumulated enough data it assumes a conservative constant
// throughput and never reports less than the configured minimum, so a caller
// at position 1 is not promised "0 seconds".
func (e *rateEstimator) EstimateWaitSeconds(position int64) int64 {
	if position <= 0 {
		return 0
	}

	e.mu.Lock()
	elapsed := e.clock.Now().Sub(e.windowStart)
	count := e.count
	e.mu.Unlock()

	if count == 0 || elapsed < e.warmup || elapsed > estimatorWindow {
		wait := position / int64(e.assumedPerSec)
		if wait < e.minEstimate {
			wait = e.minEstimate
		}
		return wait
	}

	perSec := float64(count) * 1000 / float64(elapsed.Milliseconds())
	return int64(math.Ceil(float64(position) / perSec))
}

// PollInterval shapes client polling load: near the front poll tightly, far
// back poll rarely.
func (e *rateEstimator) PollInterval(position int64) time.Duration {
	switch {
	case position <= 0:
		return e.defaultPoll
	case position <= 1_000:
		return time.Second
	case position <= 5_000:
		return 5 * time.Second
	case position <= 10_000:
		return 10 * time.Second
	case position <= 100_000:
		return 30 * time.Second
	default:
		return 60 * time.Second
	}
}
