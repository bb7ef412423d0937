package service

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/vogiaan1904/ticketbottle-admission/config"
	"github.com/vogiaan1904/ticketbottle-admission/internal/delivery/kafka/producer"
	"github.com/vogiaan1904/ticketbottle-admission/internal/models"
	repo "github.com/vogiaan1904/ticketbottle-admission/internal/repository/redis"
	"github.com/vogiaan1904/ticketbottle-admission/pkg/logger"
)

// EventInfoProvider is the slice of the event service this subsystem needs:
// display metadata for queued/active views. Lookups are best-effort.
type EventInfoProvider interface {
	FindEvent(ctx context.Context, eventID string) (*models.EventInfo, error)
}

type QueueService interface {
	Check(ctx context.Context, in CheckInput) (*AdmissionView, error)
	Status(ctx context.Context, eID, uID string) (*AdmissionView, error)
	Heartbeat(ctx context.Context, eID, uID string) (models.AdmissionStatus, error)
	Leave(ctx context.Context, eID, uID string) error
	Admin(ctx context.Context, eID string) (*models.EventStats, error)
	Clear(ctx context.Context, eID string) error
	SetThreshold(ctx context.Context, eID string, threshold int64) error
	RecordAdmissions(count int64)
}

type queueService struct {
	store     repo.QueueStore
	issuer    EntryTokenIssuer
	notifier  producer.AdmissionNotifier
	events    EventInfoProvider
	estimator *rateEstimator
	clock     clockwork.Clock
	cfg       config.QueueConfig
	l         logger.Logger
}

func NewQueueService(
	store repo.QueueStore,
	issuer EntryTokenIssuer,
	notifier producer.AdmissionNotifier,
	events EventInfoProvider,
	cfg config.QueueConfig,
	clock clockwork.Clock,
	l logger.Logger,
) QueueService {
	return &queueService{
		store:     store,
		issuer:    issuer,
		notifier:  notifier,
		events:    events,
		estimator: newRateEstimator(cfg, clock),
		clock:     clock,
		cfg:       cfg,
		l:         l,
	}
}

// Check runs the full decision procedure for one poll. Membership facts come
// from a single atomic read; the follow-up mutation is one atomic key-family
// write, so concurrent polls cannot double-admit. A concurrent promotion tick
// can race the direct-to-active branch below, letting the active set
// transiently exceed the threshold by the number of in-flight direct
// admissions; that soft limit is deliberate, a global lock on every check is
// not worth it.
func (s *queueService) Check(ctx context.Context, in CheckInput) (*AdmissionView, error) {
	res, err := s.store.QueueCheck(ctx, in.EventID, in.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to check queue state: %w", err)
	}

	switch {
	case res.InQueue:
		if err := s.store.HeartbeatQueue(ctx, in.EventID, in.UserID); err != nil {
			s.l.Warnf(ctx, "queueService.Check heartbeat refresh: %v", err)
		}
		return s.queuedView(ctx, in.EventID, in.UserID, res.Position, res.QueueSize), nil

	case res.InActive:
		if err := s.store.HeartbeatActive(ctx, in.EventID, in.UserID); err != nil {
			s.l.Warnf(ctx, "queueService.Check heartbeat refresh: %v", err)
		}
		return s.activeView(ctx, in.EventID, in.UserID)

	default:
		// Once a queue has formed, new arrivals join the back of it even if
		// the active set momentarily has headroom: strict FIFO fairness.
		if res.QueueSize > 0 || res.ActiveCount >= res.Threshold {
			score := float64(s.clock.Now().UnixMilli())
			if in.ExternalPosition != nil {
				score = *in.ExternalPosition
			}

			if err := s.store.JoinQueue(ctx, in.EventID, in.UserID, score); err != nil {
				return nil, fmt.Errorf("failed to join queue: %w", err)
			}

			// An external ordinal can land anywhere in the order, so re-read
			// for the true position instead of assuming the back.
			joined, err := s.store.QueueCheck(ctx, in.EventID, in.UserID)
			if err != nil {
				return nil, fmt.Errorf("failed to read queue position: %w", err)
			}

			s.l.Infof(ctx, "User queued: event_id=%s user_id=%s position=%d", in.EventID, in.UserID, joined.Position)

			return s.queuedView(ctx, in.EventID, in.UserID, joined.Position, joined.QueueSize), nil
		}

		if err := s.store.JoinActive(ctx, in.EventID, in.UserID); err != nil {
			return nil, fmt.Errorf("failed to join active set: %w", err)
		}

		s.l.Infof(ctx, "User admitted directly: event_id=%s user_id=%s", in.EventID, in.UserID)

		return s.activeView(ctx, in.EventID, in.UserID)
	}
}

// Status is Check without the enrollment branch: an unknown caller gets a
// not_in_queue view instead of a membership.
func (s *queueService) Status(ctx context.Context, eID, uID string) (*AdmissionView, error) {
	res, err := s.store.QueueCheck(ctx, eID, uID)
	if err != nil {
		return nil, fmt.Errorf("failed to check queue state: %w", err)
	}

	switch {
	case res.InQueue:
		if err := s.store.HeartbeatQueue(ctx, eID, uID); err != nil {
			s.l.Warnf(ctx, "queueService.Status heartbeat refresh: %v", err)
		}
		return s.queuedView(ctx, eID, uID, res.Position, res.QueueSize), nil

	case res.InActive:
		if err := s.store.HeartbeatActive(ctx, eID, uID); err != nil {
			s.l.Warnf(ctx, "queueService.Status heartbeat refresh: %v", err)
		}
		return s.activeView(ctx, eID, uID)

	default:
		return &AdmissionView{
			EventID: eID,
			UserID:  uID,
			Status:  models.AdmissionStatusNotInQueue,
		}, nil
	}
}

func (s *queueService) Heartbeat(ctx context.Context, eID, uID string) (models.AdmissionStatus, error) {
	res, err := s.store.QueueCheck(ctx, eID, uID)
	if err != nil {
		return "", fmt.Errorf("failed to check queue state: %w", err)
	}

	switch {
	case res.InQueue:
		if err := s.store.HeartbeatQueue(ctx, eID, uID); err != nil {
			s.l.Warnf(ctx, "queueService.Heartbeat: %v", err)
		}
		return models.AdmissionStatusQueued, nil

	case res.InActive:
		if err := s.store.HeartbeatActive(ctx, eID, uID); err != nil {
			s.l.Warnf(ctx, "queueService.Heartbeat: %v", err)
		}
		return models.AdmissionStatusActive, nil

	default:
		return models.AdmissionStatusNotInQueue, nil
	}
}

// Leave removes both memberships unconditionally; leaving with no membership
// is a successful no-op.
func (s *queueService) Leave(ctx context.Context, eID, uID string) error {
	if err := s.store.Leave(ctx, eID, uID); err != nil {
		return fmt.Errorf("failed to leave: %w", err)
	}

	s.l.Infof(ctx, "User left: event_id=%s user_id=%s", eID, uID)

	return nil
}

func (s *queueService) Admin(ctx context.Context, eID string) (*models.EventStats, error) {
	stats, err := s.store.Stats(ctx, eID)
	if err != nil {
		return nil, fmt.Errorf("failed to get event stats: %w", err)
	}

	return stats, nil
}

func (s *queueService) Clear(ctx context.Context, eID string) error {
	if err := s.store.Clear(ctx, eID); err != nil {
		return fmt.Errorf("failed to clear event: %w", err)
	}

	return nil
}

func (s *queueService) SetThreshold(ctx context.Context, eID string, threshold int64) error {
	if threshold <= 0 {
		return ErrInvalidThreshold
	}

	if err := s.store.SetThreshold(ctx, eID, threshold); err != nil {
		return fmt.Errorf("failed to set threshold: %w", err)
	}

	s.l.Infof(ctx, "Threshold override set: event_id=%s threshold=%d", eID, threshold)

	return nil
}

func (s *queueService) RecordAdmissions(count int64) {
	s.estimator.Record(count)
}

func (s *queueService) queuedView(ctx context.Context, eID, uID string, position, queueSize int64) *AdmissionView {
	behind := queueSize - position
	if behind < 0 {
		behind = 0
	}

	return &AdmissionView{
		EventID:          eID,
		UserID:           uID,
		Status:           models.AdmissionStatusQueued,
		Position:         position,
		QueueSize:        queueSize,
		Ahead:            position - 1,
		Behind:           behind,
		EstimatedWaitSec: s.estimator.EstimateWaitSeconds(position),
		PollIntervalMs:   s.estimator.PollInterval(position).Milliseconds(),
		Event:            s.eventInfo(ctx, eID),
	}
}

func (s *queueService) activeView(ctx context.Context, eID, uID string) (*AdmissionView, error) {
	token, err := s.issuer.Generate(eID, uID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate entry token: %w", err)
	}

	// Best-effort: the user is already admitted, a failed notification must
	// not surface here.
	s.notifier.PublishAdmission(ctx, eID, uID, token)

	return &AdmissionView{
		EventID:    eID,
		UserID:     uID,
		Status:     models.AdmissionStatusActive,
		EntryToken: token,
		Event:      s.eventInfo(ctx, eID),
	}, nil
}

func (s *queueService) eventInfo(ctx context.Context, eID string) *models.EventInfo {
	if s.events == nil {
		return nil
	}

	info, err := s.events.FindEvent(ctx, eID)
	if err != nil {
		s.l.Debugf(ctx, "queueService.eventInfo: %v", err)
		return nil
	}

	return info
}
