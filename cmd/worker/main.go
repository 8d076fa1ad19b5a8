package main

import (
	"time"

	"go.uber.org/zap"

	"crowdpledge/config"
	"crowdpledge/internal/db"
	"crowdpledge/internal/mq"
	"crowdpledge/internal/mqhandler"
	"crowdpledge/internal/redisclient"
	"crowdpledge/internal/repository"
	"crowdpledge/pkg/util"
)

func main() {
	// Load config
	cfg := config.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	logger.Info("Starting worker service...")

	// Init Redis
	rdb := redisclient.New(cfg.Redis)
	defer rdb.Close()

	deduper := util.NewDeduper(rdb, cfg.Worker.DedupTTL, logger)
	retryCounter := util.NewRetryCounter(rdb, 24*time.Hour)

	// Init DB
	dbConn, err := db.NewConnection(cfg.DB, logger)
	if err != nil {
		logger.Fatal("DB initialization failed", zap.Error(err))
	}
	defer dbConn.Close()

	logger.Info("Database connection established")

	// Publisher for DLQ routing
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		logger.Fatal("failed to init publisher", zap.Error(err))
	}
	defer publisher.Close()

	// Init Repositories
	notificationRepo := repository.NewNotificationRepository(dbConn)

	// Init Handler
	notifHandler := mqhandler.NewIntentionRecordedNotificationHandler(
		notificationRepo,
		logger,
		deduper,
		retryCounter,
		publisher,
		cfg.Worker.MaxRetries,
	)

	// Consumer for intention.recorded events
	logger.Info("Initializing intention consumer", zap.String("queue", "intention.recorded.notify.q"))
	consumer, err := mq.NewConsumer(cfg.MQ.URL, "intention.recorded.notify.q", mq.RoutingKeyIntentionRecorded, logger)
	if err != nil {
		logger.Fatal("failed to init intention consumer", zap.Error(err))
	}
	defer consumer.Close()
	consumer.SetHandler(notifHandler.HandleIntentionRecorded)

	go func() {
		logger.Info("Starting intention consumer")
		if err := consumer.StartConsuming(); err != nil {
			logger.Fatal("intention consumer failed", zap.Error(err))
		}
	}()

	logger.Info("All consumers started, worker is ready to process messages")

	// Keep worker running
	select {}
}
