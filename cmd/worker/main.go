package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	appconfig "civicfund/config"
	mqcontracts "civicfund/contracts/mq"
	"civicfund/internal/bootstrap"
	"civicfund/internal/mqhandler"
	"civicfund/pkg/logger"
	"civicfund/pkg/mq"
	"civicfund/pkg/otel"
	redisclient "civicfund/pkg/redis"
	"civicfund/pkg/util"
)

func main() {
	cfg := appconfig.Load()

	log := logger.NewLogger(cfg.Log.Level, cfg.Log.Development)
	defer log.Sync()

	log.Info("Starting civicfund worker...",
		zap.String("storage", cfg.Storage.Driver),
		zap.String("mq_url", cfg.MQ.URL),
	)

	shutdownOtel, err := otel.Init(cfg.OTel, log)
	if err != nil {
		log.Fatal("Failed to init OpenTelemetry", zap.Error(err))
	}
	defer shutdownOtel()

	ctx := context.Background()

	stores, err := bootstrap.OpenStores(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to open storage", zap.Error(err))
	}
	defer stores.Close()
	services := bootstrap.NewServices(cfg, stores, log)

	// Redis：去重 + 重试计数
	rdb := redisclient.NewClient(cfg.Redis)
	defer rdb.Close()
	if err := redisclient.Ping(ctx, rdb); err != nil {
		log.Warn("Redis unavailable at startup, dedup falls back to allow-all", zap.Error(err))
	}
	deduper := util.NewDeduper(rdb, cfg.Consumer.DedupTTL, log)
	retryCounter := util.NewRetryCounter(rdb, cfg.Consumer.RetryTTL)

	// DLQ publisher
	dlqPublisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init DLQ publisher", zap.Error(err))
	}
	defer dlqPublisher.Close()

	guard := mqhandler.NewGuard(deduper, retryCounter, dlqPublisher, cfg.Consumer.MaxRetries, log)

	bindings := []struct {
		queue      string
		routingKey string
		handle     mq.MessageHandler
	}{
		{mqcontracts.QueuePledgeCreated, mqcontracts.RoutingPledgeCreated,
			mqhandler.NewPledgeCreatedHandler(services.Ledger, guard, log).Handle},
		{mqcontracts.QueuePledgeStatusChanged, mqcontracts.RoutingPledgeStatusChanged,
			mqhandler.NewPledgeStatusChangedHandler(services.Ledger, guard, log).Handle},
	}

	consumers := make([]*mq.Consumer, 0, len(bindings))
	for _, b := range bindings {
		dlq, err := dlqPublisher.DeclareDeadLetterQueue(b.routingKey)
		if err != nil {
			log.Fatal("Failed to declare dead letter queue", zap.String("routing_key", b.routingKey), zap.Error(err))
		}

		consumer, err := mq.NewConsumer(cfg.MQ.URL, b.queue, b.routingKey, log)
		if err != nil {
			log.Fatal("Consumer init failed", zap.String("queue", b.queue), zap.Error(err))
		}
		defer consumer.Close()
		consumer.SetHandler(b.handle)
		consumers = append(consumers, consumer)

		log.Info("Consumer bound",
			zap.String("queue", b.queue),
			zap.String("routing_key", b.routingKey),
			zap.String("dead_letter_queue", dlq),
		)
		go func(queue string) {
			if err := consumer.StartConsuming(); err != nil {
				log.Fatal("Consumer crashed", zap.String("queue", queue), zap.Error(err))
			}
		}(b.queue)
	}

	log.Info("Worker running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down worker...")
	for _, c := range consumers {
		c.Stop()
	}
	log.Info("Worker shutdown complete")
}
