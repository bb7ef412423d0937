package repository

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/vogiaan1904/ticketbottle-admission/config"
	"github.com/vogiaan1904/ticketbottle-admission/internal/models"
	"github.com/vogiaan1904/ticketbottle-admission/pkg/logger"
)

// QueueStore owns the per-event key family. Every key for one event carries the
// event id inside a cluster hash tag so the compound scripts stay single-slot
// even on a sharded deployment.
type QueueStore interface {
	QueueCheck(ctx context.Context, eID, uID string) (*models.QueueCheckResult, error)
	JoinQueue(ctx context.Context, eID, uID string, rankScore float64) error
	JoinActive(ctx context.Context, eID, uID string) error
	HeartbeatQueue(ctx context.Context, eID, uID string) error
	HeartbeatActive(ctx context.Context, eID, uID string) error
	Leave(ctx context.Context, eID, uID string) error
	Clear(ctx context.Context, eID string) error
	SetThreshold(ctx context.Context, eID string, threshold int64) error
	Stats(ctx context.Context, eID string) (*models.EventStats, error)

	AdmitBatch(ctx context.Context, eID string, batchSize int) (int64, error)
	SweepStaleQueue(ctx context.Context, eID string, limit int) (int64, error)
	TrimActive(ctx context.Context, eID string) error
	EventDrained(ctx context.Context, eID string) (bool, error)
	ActiveEvents(ctx context.Context) ([]string, error)
	RemoveActiveEvent(ctx context.Context, eID string) error

	AcquireLock(ctx context.Context, eID string) (bool, error)
	ReleaseLock(ctx context.Context, eID string) error
}

type redisQueueStore struct {
	cli   *redis.Client
	cfg   config.QueueConfig
	clock clockwork.Clock
	l     logger.Logger
}

func NewRedisQueueStore(cli *redis.Client, cfg config.QueueConfig, clock clockwork.Clock, l logger.Logger) QueueStore {
	return &redisQueueStore{
		cli:   cli,
		cfg:   cfg,
		clock: clock,
		l:     l,
	}
}

func (s *redisQueueStore) QueueCheck(ctx context.Context, eID, uID string) (*models.QueueCheckResult, error) {
	keys := []string{s.queueKey(eID), s.activeKey(eID), s.thresholdKey(eID)}
	args := []interface{}{uID, s.nowMs(), s.cfg.DefaultThreshold}

	res, err := queueCheckCmd.Run(ctx, s.cli, keys, args...).Result()
	if err != nil {
		s.l.Errorf(ctx, "redisQueueStore.QueueCheck: %v", err)
		return nil, err
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) != 6 {
		return nil, fmt.Errorf("unexpected queue check reply: %v", res)
	}

	nums := make([]int64, 6)
	for i, v := range vals {
		n, ok := v.(int64)
		if !ok {
			return nil, fmt.Errorf("unexpected queue check reply element: %v", v)
		}
		nums[i] = n
	}

	return &models.QueueCheckResult{
		InQueue:     nums[0] == 1,
		InActive:    nums[1] == 1,
		Position:    nums[2],
		QueueSize:   nums[3],
		ActiveCount: nums[4],
		Threshold:   nums[5],
	}, nil
}

func (s *redisQueueStore) JoinQueue(ctx context.Context, eID, uID string, rankScore float64) error {
	now := s.nowMs()

	pipe := s.cli.TxPipeline()
	pipe.ZAdd(ctx, s.queueKey(eID), redis.Z{Score: rankScore, Member: uID})
	pipe.ZAdd(ctx, s.seenQueueKey(eID), redis.Z{Score: float64(now), Member: uID})
	pipe.SAdd(ctx, s.eventsKey(), eID)

	if _, err := pipe.Exec(ctx); err != nil {
		s.l.Errorf(ctx, "redisQueueStore.JoinQueue: %v", err)
		return err
	}

	s.l.Debugf(ctx, "Joined queue: event_id=%s user_id=%s score=%f", eID, uID, rankScore)

	return nil
}

func (s *redisQueueStore) JoinActive(ctx context.Context, eID, uID string) error {
	now := s.nowMs()
	expiry := now + s.cfg.ActiveTTL.Milliseconds()

	pipe := s.cli.TxPipeline()
	pipe.ZAdd(ctx, s.activeKey(eID), redis.Z{Score: float64(expiry), Member: uID})
	pipe.ZAdd(ctx, s.seenActiveKey(eID), redis.Z{Score: float64(now), Member: uID})
	pipe.SAdd(ctx, s.eventsKey(), eID)

	if _, err := pipe.Exec(ctx); err != nil {
		s.l.Errorf(ctx, "redisQueueStore.JoinActive: %v", err)
		return err
	}

	s.l.Debugf(ctx, "Joined active set: event_id=%s user_id=%s expiry=%d", eID, uID, expiry)

	return nil
}

// HeartbeatQueue refreshes the queue liveness marker. XX keeps the refresh from
// resurrecting a membership already swept away.
func (s *redisQueueStore) HeartbeatQueue(ctx context.Context, eID, uID string) error {
	now := s.nowMs()

	if err := s.cli.ZAddXX(ctx, s.seenQueueKey(eID), redis.Z{
		Score:  float64(now),
		Member: uID,
	}).Err(); err != nil {
		s.l.Errorf(ctx, "redisQueueStore.HeartbeatQueue: %v", err)
		return err
	}

	return nil
}

// HeartbeatActive slides the active expiry forward and refreshes liveness.
func (s *redisQueueStore) HeartbeatActive(ctx context.Context, eID, uID string) error {
	now := s.nowMs()
	expiry := now + s.cfg.ActiveTTL.Milliseconds()

	pipe := s.cli.TxPipeline()
	pipe.ZAddXX(ctx, s.activeKey(eID), redis.Z{Score: float64(expiry), Member: uID})
	pipe.ZAddXX(ctx, s.seenActiveKey(eID), redis.Z{Score: float64(now), Member: uID})

	if _, err := pipe.Exec(ctx); err != nil {
		s.l.Errorf(ctx, "redisQueueStore.HeartbeatActive: %v", err)
		return err
	}

	return nil
}

func (s *redisQueueStore) Leave(ctx context.Context, eID, uID string) error {
	pipe := s.cli.TxPipeline()
	pipe.ZRem(ctx, s.queueKey(eID), uID)
	pipe.ZRem(ctx, s.activeKey(eID), uID)
	pipe.ZRem(ctx, s.seenQueueKey(eID), uID)
	pipe.ZRem(ctx, s.seenActiveKey(eID), uID)

	if _, err := pipe.Exec(ctx); err != nil {
		s.l.Errorf(ctx, "redisQueueStore.Leave: %v", err)
		return err
	}

	return nil
}

func (s *redisQueueStore) Clear(ctx context.Context, eID string) error {
	pipe := s.cli.TxPipeline()
	pipe.Del(ctx,
		s.queueKey(eID),
		s.activeKey(eID),
		s.seenQueueKey(eID),
		s.seenActiveKey(eID),
		s.thresholdKey(eID),
	)
	pipe.SRem(ctx, s.eventsKey(), eID)

	if _, err := pipe.Exec(ctx); err != nil {
		s.l.Errorf(ctx, "redisQueueStore.Clear: %v", err)
		return err
	}

	s.l.Infof(ctx, "Cleared event state: event_id=%s", eID)

	return nil
}

func (s *redisQueueStore) SetThreshold(ctx context.Context, eID string, threshold int64) error {
	if err := s.cli.Set(ctx, s.thresholdKey(eID), strconv.FormatInt(threshold, 10), 0).Err(); err != nil {
		s.l.Errorf(ctx, "redisQueueStore.SetThreshold: %v", err)
		return err
	}

	return nil
}

func (s *redisQueueStore) Stats(ctx context.Context, eID string) (*models.EventStats, error) {
	now := s.nowMs()

	pipe := s.cli.Pipeline()
	queueSize := pipe.ZCard(ctx, s.queueKey(eID))
	activeCount := pipe.ZCount(ctx, s.activeKey(eID), fmt.Sprintf("(%d", now), "+inf")
	threshold := pipe.Get(ctx, s.thresholdKey(eID))

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		s.l.Errorf(ctx, "redisQueueStore.Stats: %v", err)
		return nil, err
	}

	thr := int64(s.cfg.DefaultThreshold)
	if raw, err := threshold.Result(); err == nil {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil {
			thr = parsed
		}
	}

	available := thr - activeCount.Val()
	if available < 0 {
		available = 0
	}

	return &models.EventStats{
		EventID:     eID,
		QueueSize:   queueSize.Val(),
		ActiveCount: activeCount.Val(),
		Threshold:   thr,
		Available:   available,
	}, nil
}

func (s *redisQueueStore) AdmitBatch(ctx context.Context, eID string, batchSize int) (int64, error) {
	keys := []string{
		s.queueKey(eID),
		s.activeKey(eID),
		s.seenQueueKey(eID),
		s.seenActiveKey(eID),
		s.thresholdKey(eID),
	}
	args := []interface{}{s.nowMs(), s.cfg.DefaultThreshold, batchSize, s.cfg.ActiveTTL.Milliseconds()}

	admitted, err := admitBatchCmd.Run(ctx, s.cli, keys, args...).Int64()
	if err != nil {
		s.l.Errorf(ctx, "redisQueueStore.AdmitBatch: %v", err)
		return 0, err
	}

	if admitted > 0 {
		s.l.Debugf(ctx, "Admitted batch: event_id=%s count=%d", eID, admitted)
	}

	return admitted, nil
}

func (s *redisQueueStore) SweepStaleQueue(ctx context.Context, eID string, limit int) (int64, error) {
	cutoff := s.nowMs() - s.cfg.SeenTTL.Milliseconds()
	keys := []string{s.queueKey(eID), s.seenQueueKey(eID)}

	removed, err := sweepStaleQueueCmd.Run(ctx, s.cli, keys, cutoff, limit).Int64()
	if err != nil {
		s.l.Errorf(ctx, "redisQueueStore.SweepStaleQueue: %v", err)
		return 0, err
	}

	return removed, nil
}

// TrimActive drops expired active members and stale active-liveness markers.
func (s *redisQueueStore) TrimActive(ctx context.Context, eID string) error {
	now := s.nowMs()
	seenCutoff := now - s.cfg.ActiveTTL.Milliseconds()

	pipe := s.cli.TxPipeline()
	pipe.ZRemRangeByScore(ctx, s.activeKey(eID), "-inf", strconv.FormatInt(now, 10))
	pipe.ZRemRangeByScore(ctx, s.seenActiveKey(eID), "-inf", strconv.FormatInt(seenCutoff, 10))

	if _, err := pipe.Exec(ctx); err != nil {
		s.l.Errorf(ctx, "redisQueueStore.TrimActive: %v", err)
		return err
	}

	return nil
}

func (s *redisQueueStore) EventDrained(ctx context.Context, eID string) (bool, error) {
	keys := []string{s.queueKey(eID), s.activeKey(eID)}

	drained, err := eventDrainedCmd.Run(ctx, s.cli, keys, s.nowMs()).Int64()
	if err != nil {
		s.l.Errorf(ctx, "redisQueueStore.EventDrained: %v", err)
		return false, err
	}

	return drained == 1, nil
}

func (s *redisQueueStore) ActiveEvents(ctx context.Context) ([]string, error) {
	events, err := s.cli.SMembers(ctx, s.eventsKey()).Result()
	if err != nil {
		s.l.Errorf(ctx, "redisQueueStore.ActiveEvents: %v", err)
		return nil, err
	}

	return events, nil
}

func (s *redisQueueStore) RemoveActiveEvent(ctx context.Context, eID string) error {
	if err := s.cli.SRem(ctx, s.eventsKey(), eID).Err(); err != nil {
		s.l.Errorf(ctx, "redisQueueStore.RemoveActiveEvent: %v", err)
		return err
	}

	return nil
}

// AcquireLock is a non-blocking try-acquire. The TTL bounds the damage of a
// worker crashing mid-cycle.
func (s *redisQueueStore) AcquireLock(ctx context.Context, eID string) (bool, error) {
	acquired, err := s.cli.SetNX(ctx, s.lockKey(eID), "1", s.cfg.LockTTL).Result()
	if err != nil {
		s.l.Errorf(ctx, "redisQueueStore.AcquireLock: %v", err)
		return false, err
	}

	return acquired, nil
}

// ReleaseLock deletes unconditionally. The lock TTL already bounds a wrongful
// release, so no compare-and-delete.
func (s *redisQueueStore) ReleaseLock(ctx context.Context, eID string) error {
	if err := s.cli.Del(ctx, s.lockKey(eID)).Err(); err != nil {
		s.l.Errorf(ctx, "redisQueueStore.ReleaseLock: %v", err)
		return err
	}

	return nil
}

func (s *redisQueueStore) nowMs() int64 {
	return s.clock.Now().UnixMilli()
}

func (s *redisQueueStore) queueKey(eID string) string {
	return fmt.Sprintf("waitroom:{%s}:queue", eID)
}

func (s *redisQueueStore) activeKey(eID string) string {
	return fmt.Sprintf("waitroom:{%s}:active", eID)
}

func (s *redisQueueStore) seenQueueKey(eID string) string {
	return fmt.Sprintf("waitroom:{%s}:seen:queue", eID)
}

func (s *redisQueueStore) seenActiveKey(eID string) string {
	return fmt.Sprintf("waitroom:{%s}:seen:active", eID)
}

func (s *redisQueueStore) thresholdKey(eID string) string {
	return fmt.Sprintf("waitroom:{%s}:threshold", eID)
}

func (s *redisQueueStore) lockKey(eID string) string {
	return fmt.Sprintf("waitroom:{%s}:lock:promote", eID)
}

func (s *redisQueueStore) eventsKey() string {
	return "waitroom:events"
}
