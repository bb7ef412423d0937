package producer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	kafka "github.com/vogiaan1904/ticketbottle-admission/internal/delivery/kafka"
	"github.com/vogiaan1904/ticketbottle-admission/internal/monitoring"
	"github.com/vogiaan1904/ticketbottle-admission/pkg/logger"
	"github.com/vogiaan1904/ticketbottle-admission/pkg/util"
)

// AdmissionNotifier is strictly best-effort: nothing it does may fail or block
// an admission that already happened, so it reports no errors to callers.
type AdmissionNotifier interface {
	PublishAdmission(ctx context.Context, eventID, userID, entryToken string)
	Close() error
}

type implNotifier struct {
	l        logger.Logger
	prod     sarama.SyncProducer
	cli      *goredis.Client
	dedupTTL time.Duration
}

func NewAdmissionNotifier(prod sarama.SyncProducer, cli *goredis.Client, dedupTTL time.Duration, l logger.Logger) AdmissionNotifier {
	return &implNotifier{
		l:        l,
		prod:     prod,
		cli:      cli,
		dedupTTL: dedupTTL,
	}
}

// PublishAdmission announces an admission downstream, at most once per
// (event, user) within the dedup window. A failed dedup check degrades to
// publishing anyway: downstream consumers are at-least-once by contract.
func (p *implNotifier) PublishAdmission(ctx context.Context, eventID, userID, entryToken string) {
	fresh, err := p.cli.SetNX(ctx, p.dedupKey(eventID, userID), "1", p.dedupTTL).Result()
	if err != nil {
		p.l.Warnf(ctx, "delivery.kafka.producer.PublishAdmission dedup check: %v", err)
	} else if !fresh {
		return
	}

	event := kafka.AdmissionEvent{
		Action:     kafka.AdmissionActionAdmitted,
		EventID:    eventID,
		UserID:     userID,
		EntryToken: entryToken,
		Timestamp:  time.Now(),
	}

	val, err := json.Marshal(event)
	if err != nil {
		p.l.Errorf(ctx, "delivery.kafka.producer.PublishAdmission: %v", err)
		monitoring.NotifierFailure()
		return
	}

	msg := &sarama.ProducerMessage{
		Topic: kafka.TopicQueueAdmitted,
		Key:   sarama.StringEncoder(eventID), // Partition by event_id for ordering
		Value: sarama.ByteEncoder(val),
		Headers: []sarama.RecordHeader{
			{
				Key:   []byte("message_id"),
				Value: []byte(uuid.NewString()),
			},
			{
				Key:   []byte("timestamp"),
				Value: []byte(util.TimeToISO8601Str(time.Now().UTC())),
			},
		},
	}

	if _, _, err := p.prod.SendMessage(msg); err != nil {
		p.l.Errorf(ctx, "delivery.kafka.producer.PublishAdmission: %v", err)
		monitoring.NotifierFailure()
		return
	}

	p.l.Debugf(ctx, "Admission published: event_id=%s user_id=%s", eventID, userID)
}

func (p *implNotifier) Close() error {
	if p.prod == nil {
		return nil
	}

	return p.prod.Close()
}

func (p *implNotifier) dedupKey(eventID, userID string) string {
	return fmt.Sprintf("waitroom:{%s}:notified:%s", eventID, userID)
}

// NopNotifier is used when Kafka is disabled by config.
type NopNotifier struct{}

func (NopNotifier) PublishAdmission(ctx context.Context, eventID, userID, entryToken string) {}

func (NopNotifier) Close() error { return nil }
