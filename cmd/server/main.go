package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/vogiaan1904/ticketbottle-admission/config"
	httpDelivery "github.com/vogiaan1904/ticketbottle-admission/internal/delivery/http"
	"github.com/vogiaan1904/ticketbottle-admission/internal/delivery/kafka/consumer"
	"github.com/vogiaan1904/ticketbottle-admission/internal/delivery/kafka/producer"
	"github.com/vogiaan1904/ticketbottle-admission/internal/infra/redis"
	repo "github.com/vogiaan1904/ticketbottle-admission/internal/repository/redis"
	"github.com/vogiaan1904/ticketbottle-admission/internal/service"
	"github.com/vogiaan1904/ticketbottle-admission/pkg/eventinfo"
	pkgKafka "github.com/vogiaan1904/ticketbottle-admission/pkg/kafka"
	pkgLog "github.com/vogiaan1904/ticketbottle-admission/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	l := pkgLog.InitializeZapLogger(pkgLog.ZapConfig{
		Level:    cfg.Log.Level,
		Mode:     cfg.Log.Mode,
		Encoding: cfg.Log.Encoding,
	})

	redisCli, err := redis.Connect(ctx, cfg.Redis)
	if err != nil {
		l.Fatalf(ctx, "Failed to connect to Redis: %v", err)
	}
	defer redis.Disconnect(redisCli)

	clock := clockwork.NewRealClock()

	store := repo.NewRedisQueueStore(redisCli, cfg.Queue, clock, l)

	issuer, err := service.NewEntryTokenIssuer(cfg.JWT, clock)
	if err != nil {
		l.Fatalf(ctx, "Failed to initialize entry token issuer: %v", err)
	}

	events := eventinfo.NewClient(cfg.Microservice.EventBaseURL, l)

	// Admission notifier; Kafka is optional so the waiting room keeps
	// admitting even without a broker.
	var notifier producer.AdmissionNotifier = producer.NopNotifier{}
	var cons *consumer.Consumer
	if cfg.Kafka.Enabled {
		kSyncProd, err := pkgKafka.NewProducer(pkgKafka.ProducerConfig{
			Brokers:      cfg.Kafka.Brokers,
			RetryMax:     cfg.Kafka.ProducerRetryMax,
			RequiredAcks: cfg.Kafka.ProducerRequiredAcks,
		})
		if err != nil {
			l.Fatalf(ctx, "Failed to initialize Kafka producer: %v", err)
		}
		notifier = producer.NewAdmissionNotifier(kSyncProd, redisCli, cfg.Queue.ActiveTTL, l)
	}
	defer func() {
		if err := notifier.Close(); err != nil {
			l.Errorf(ctx, "Failed to close Kafka producer: %v", err)
		}
	}()

	qSvc := service.NewQueueService(store, issuer, notifier, events, cfg.Queue, clock, l)

	worker := service.NewAdmissionWorker(store, qSvc, cfg.Queue, clock, l)
	if err := worker.Start(ctx); err != nil {
		l.Fatalf(ctx, "Failed to start admission worker: %v", err)
	}

	if cfg.Kafka.Enabled {
		kConsGrCli, err := pkgKafka.NewConsumer(pkgKafka.ConsumerConfig{
			Brokers: cfg.Kafka.Brokers,
			GroupID: cfg.Kafka.ConsumerGroupID,
		})
		if err != nil {
			l.Fatalf(ctx, "Failed to initialize Kafka consumer: %v", err)
		}

		cons = consumer.NewConsumer(kConsGrCli, qSvc, l)
		if err := cons.Start(ctx); err != nil {
			l.Fatalf(ctx, "Failed to start Kafka consumer: %v", err)
		}
	}

	h := httpDelivery.NewHTTPHandler(qSvc, worker, cfg.Admin.APIKey, l)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      h.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		l.Infof(ctx, "HTTP server is listening on port: %d", cfg.Server.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Fatalf(ctx, "Failed to serve HTTP: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.Info(ctx, "Server shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Errorf(ctx, "Failed to shut down HTTP server: %v", err)
	}

	if err := worker.Stop(); err != nil {
		l.Errorf(ctx, "Failed to stop admission worker: %v", err)
	}

	if cons != nil {
		if err := cons.Close(); err != nil {
			l.Errorf(ctx, "Failed to close Kafka consumer: %v", err)
		}
	}

	cancel()

	l.Info(ctx, "Server exited")
}
