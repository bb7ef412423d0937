package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queueLength = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "waitroom_queue_length",
			Help: "Current queue length per event",
		},
		[]string{"event_id"},
	)

	activeCount = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "waitroom_active_sessions",
			Help: "Current unexpired active sessions per event",
		},
		[]string{"event_id"},
	)

	admissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waitroom_admissions_total",
			Help: "Total users promoted to the active set",
		},
		[]string{"event_id"},
	)

	staleRemovalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waitroom_stale_removals_total",
			Help: "Total queue entries removed by stale cleanup",
		},
		[]string{"event_id"},
	)

	notifierFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "waitroom_notifier_failures_total",
			Help: "Total failed admission notification publish attempts",
		},
	)

	promoteTickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "waitroom_promote_tick_duration_seconds",
			Help:    "Duration of promotion ticks across all events",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
	)
)

func SetQueueGauges(eventID string, queued, active int64) {
	queueLength.WithLabelValues(eventID).Set(float64(queued))
	activeCount.WithLabelValues(eventID).Set(float64(active))
}

func Admissions(eventID string, count int64) {
	admissionsTotal.WithLabelValues(eventID).Add(float64(count))
}

func StaleRemovals(eventID string, count int64) {
	staleRemovalsTotal.WithLabelValues(eventID).Add(float64(count))
}

func NotifierFailure() {
	notifierFailuresTotal.Inc()
}

func ObservePromoteTick(d time.Duration) {
	promoteTickDuration.Observe(d.Seconds())
}
