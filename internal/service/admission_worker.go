package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/vogiaan1904/ticketbottle-admission/config"
	"github.com/vogiaan1904/ticketbottle-admission/internal/monitoring"
	repo "github.com/vogiaan1904/ticketbottle-admission/internal/repository/redis"
	"github.com/vogiaan1904/ticketbottle-admission/pkg/logger"
	"github.com/vogiaan1904/ticketbottle-admission/pkg/util"
	"golang.org/x/sync/errgroup"
)

// AdmissionWorker runs in every replica: a promotion loop draining queues into
// active sets and a cleanup loop evicting entries whose owners stopped polling.
// The per-event lock only prevents redundant work across the fleet; the
// admission script is what prevents over-admission.
type AdmissionWorker interface {
	Start(ctx context.Context) error
	Stop() error
	PromoteEvent(ctx context.Context, eventID string) error
	GetStatus() WorkerStatus
}

type admissionWorker struct {
	store repo.QueueStore
	qSvc  QueueService
	clock clockwork.Clock
	cfg   config.QueueConfig
	l     logger.Logger

	mu        sync.RWMutex
	isRunning bool
	startedAt time.Time
	stopCh    chan struct{}
	wg        sync.WaitGroup

	lastPromotedAt time.Time
	totalAdmitted  int64
	totalSwept     int64
	errorCount     int64
}

const workerShutdownTimeout = 30 * time.Second

func NewAdmissionWorker(
	store repo.QueueStore,
	qSvc QueueService,
	cfg config.QueueConfig,
	clock clockwork.Clock,
	l logger.Logger,
) AdmissionWorker {
	return &admissionWorker{
		store:  store,
		qSvc:   qSvc,
		clock:  clock,
		cfg:    cfg,
		l:      l,
		stopCh: make(chan struct{}),
	}
}

func (w *admissionWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.isRunning {
		return errors.New("admission worker is already running")
	}

	w.l.Info(ctx, "Starting admission worker",
		"promote_interval", w.cfg.PromoteInterval,
		"cleanup_interval", w.cfg.CleanupInterval,
		"batch_size", w.cfg.BatchSize,
	)

	w.isRunning = true
	w.startedAt = w.clock.Now()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			w.loop(ctx, w.cfg.PromoteInterval, w.promoteTick)
			return nil
		})
		g.Go(func() error {
			w.loop(ctx, w.cfg.CleanupInterval, w.cleanupTick)
			return nil
		})
		_ = g.Wait()
	}()

	return nil
}

func (w *admissionWorker) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.isRunning {
		return errors.New("admission worker is not running")
	}

	w.l.Info(context.Background(), "Stopping admission worker...")

	close(w.stopCh)

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.l.Info(context.Background(), "Admission worker stopped gracefully")
	case <-time.After(workerShutdownTimeout):
		w.l.Warn(context.Background(), "Admission worker shutdown timeout exceeded")
	}

	w.isRunning = false
	return nil
}

func (w *admissionWorker) loop(ctx context.Context, interval time.Duration, tick func(ctx context.Context)) {
	ticker := w.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.Chan():
			tick(ctx)
		}
	}
}

func (w *admissionWorker) promoteTick(ctx context.Context) {
	start := w.clock.Now()
	defer func() {
		monitoring.ObservePromoteTick(w.clock.Now().Sub(start))
	}()

	events, err := w.store.ActiveEvents(ctx)
	if err != nil {
		w.incrementErrorCount()
		w.l.Error(ctx, "Failed to list active events", "error", err)
		return
	}

	if len(events) == 0 {
		return
	}

	for _, eID := range events {
		if err := w.PromoteEvent(ctx, eID); err != nil {
			w.incrementErrorCount()
			w.l.Error(ctx, "Failed to promote for event",
				"event_id", eID,
				"error", err,
			)
			// Continue with the other events
		}
	}

	w.mu.Lock()
	w.lastPromotedAt = w.clock.Now()
	w.mu.Unlock()
}

// PromoteEvent runs one promotion cycle for one event. Lock-skip means another
// replica has this event this tick, which is success, not failure.
func (w *admissionWorker) PromoteEvent(ctx context.Context, eID string) error {
	acquired, err := w.store.AcquireLock(ctx, eID)
	if err != nil {
		return err
	}
	if !acquired {
		return nil
	}
	defer func() {
		if err := w.store.ReleaseLock(ctx, eID); err != nil {
			w.l.Warn(ctx, "Failed to release promotion lock",
				"event_id", eID,
				"error", err,
			)
		}
	}()

	admitted, err := w.store.AdmitBatch(ctx, eID, w.cfg.BatchSize)
	if err != nil {
		return err
	}

	if admitted > 0 {
		w.qSvc.RecordAdmissions(admitted)
		monitoring.Admissions(eID, admitted)

		w.mu.Lock()
		w.totalAdmitted += admitted
		w.mu.Unlock()

		w.l.Info(ctx, "Promoted queued users",
			"event_id", eID,
			"count", admitted,
		)
	}

	stats, err := w.store.Stats(ctx, eID)
	if err == nil {
		monitoring.SetQueueGauges(eID, stats.QueueSize, stats.ActiveCount)
	}

	drained, err := w.store.EventDrained(ctx, eID)
	if err != nil {
		return err
	}
	if drained {
		if err := w.store.RemoveActiveEvent(ctx, eID); err != nil {
			return err
		}
		w.l.Debug(ctx, "Event drained, removed from active set", "event_id", eID)
	}

	return nil
}

func (w *admissionWorker) cleanupTick(ctx context.Context) {
	events, err := w.store.ActiveEvents(ctx)
	if err != nil {
		w.incrementErrorCount()
		w.l.Error(ctx, "Failed to list active events for cleanup", "error", err)
		return
	}

	for _, eID := range events {
		if err := w.cleanupEvent(ctx, eID); err != nil {
			w.incrementErrorCount()
			w.l.Error(ctx, "Failed to clean up event",
				"event_id", eID,
				"error", err,
			)
			// One event's failure must not abort the others
		}
	}
}

func (w *admissionWorker) cleanupEvent(ctx context.Context, eID string) error {
	var swept int64

	// Capped batches with a short pause between them bound the store load of
	// sweeping a large abandoned queue.
	for {
		removed, err := w.store.SweepStaleQueue(ctx, eID, w.cfg.CleanupBatchSize)
		if err != nil {
			return err
		}

		swept += removed

		if removed < int64(w.cfg.CleanupBatchSize) {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.clock.After(w.cfg.CleanupBatchDelay):
		}
	}

	if swept > 0 {
		monitoring.StaleRemovals(eID, swept)

		w.mu.Lock()
		w.totalSwept += swept
		w.mu.Unlock()

		w.l.Info(ctx, "Swept stale queue entries",
			"event_id", eID,
			"count", swept,
		)
	}

	return w.store.TrimActive(ctx, eID)
}

func (w *admissionWorker) incrementErrorCount() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.errorCount++
}

func (w *admissionWorker) GetStatus() WorkerStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()

	status := WorkerStatus{
		IsRunning:     w.isRunning,
		TotalAdmitted: w.totalAdmitted,
		TotalSwept:    w.totalSwept,
		ErrorCount:    w.errorCount,
	}

	if !w.startedAt.IsZero() {
		status.StartedAt = util.TimeToISO8601Str(w.startedAt.UTC())
	}
	if !w.lastPromotedAt.IsZero() {
		status.LastPromotedAt = util.TimeToISO8601Str(w.lastPromotedAt.UTC())
	}

	return status
}
