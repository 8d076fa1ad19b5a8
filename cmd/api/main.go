package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"crowdpledge/config"
	"crowdpledge/internal/db"
	"crowdpledge/internal/handler"
	"crowdpledge/internal/httpserver"
	"crowdpledge/internal/mq"
	"crowdpledge/internal/outbox"
	"crowdpledge/internal/redisclient"
	"crowdpledge/internal/repository"
	"crowdpledge/internal/service/auth"
	"crowdpledge/internal/service/ledger"
	"crowdpledge/internal/service/live"
	"crowdpledge/pkg/util"
)

func main() {
	// Load config
	cfg := config.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Init DB
	dbConn, err := db.NewConnection(cfg.DB, logger)
	if err != nil {
		logger.Fatal("DB initialization failed", zap.Error(err))
	}
	defer dbConn.Close()

	// Init Redis
	rdb := redisclient.New(cfg.Redis)
	defer rdb.Close()

	// Init RabbitMQ Publisher (outbox dispatcher + admin replay)
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		logger.Fatal("failed to init publisher", zap.Error(err))
	}
	defer publisher.Close()

	// Init Repositories
	userRepo := repository.NewUserRepository(dbConn)
	statsRepo := repository.NewStatsRepository(dbConn, cfg.Stats.MaxAttempts)
	projectRepo := repository.NewProjectRepository(dbConn, statsRepo)
	outboxRepo := outbox.NewRepository(dbConn)
	intentionRepo := repository.NewIntentionRepository(dbConn, outboxRepo)
	notificationRepo := repository.NewNotificationRepository(dbConn)

	// Init Services
	authService := auth.NewService(userRepo, cfg.JWT.Secret)
	liveView := live.NewView(rdb, statsRepo, intentionRepo, logger)
	// 短 TTL：双击守卫，不是业务去重
	submitGuard := util.NewDeduper(rdb, 2*time.Second, logger)
	ledgerService := ledger.NewService(intentionRepo, statsRepo, projectRepo, liveView, submitGuard, logger)
	replayService := outbox.NewReplayService(outboxRepo, publisher)

	// Outbox dispatcher drains intention.recorded events to MQ
	dispatcher := outbox.NewDispatcher(outboxRepo, publisher, logger)
	dispatcherCtx, cancelDispatcher := context.WithCancel(context.Background())
	defer cancelDispatcher()
	go dispatcher.Start(dispatcherCtx)

	// Init Handlers
	authHandler := handler.NewAuthHandler(authService)
	profileHandler := handler.NewProfileHandler(userRepo)
	projectHandler := handler.NewProjectHandler(projectRepo)
	intentionHandler := handler.NewIntentionHandler(ledgerService, userRepo, liveView, logger)
	statsHandler := handler.NewStatsHandler(ledgerService, liveView, logger)
	notificationHandler := handler.NewNotificationHandler(notificationRepo)
	adminHandler := handler.NewAdminHandler(replayService, logger)

	// Router
	router := httpserver.NewRouter(
		authHandler,
		profileHandler,
		projectHandler,
		intentionHandler,
		statsHandler,
		notificationHandler,
		adminHandler,
		cfg.JWT.Secret,
		logger,
	)

	// Start API server
	if err := router.Run(cfg.Server.Port); err != nil {
		logger.Fatal("server start failed", zap.Error(err))
	}
}
