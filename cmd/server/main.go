package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"liverymarket/internal/catalog"
	"liverymarket/internal/config"
	"liverymarket/internal/handler"
	"liverymarket/internal/infrastructure/cache"
	"liverymarket/internal/infrastructure/database"
	"liverymarket/internal/infrastructure/mq"
	"liverymarket/internal/job"
	"liverymarket/internal/service"
	"liverymarket/internal/upstream"
	"liverymarket/pkg/idgen"

	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the config file")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("load config")
	}
	if level, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		logger.SetLevel(level)
	}

	idgen.Init(cfg.Server.WorkerID)

	db, err := database.NewMySQL(&cfg.MySQL, cfg.Log.Level)
	if err != nil {
		logger.WithError(err).Fatal("connect mysql")
	}
	if err := database.Migrate(db); err != nil {
		logger.WithError(err).Fatal("migrate schema")
	}
	if cfg.Business.SeedProducts {
		seeded, err := database.SeedProducts(context.Background(), db)
		if err != nil {
			logger.WithError(err).Fatal("seed products")
		}
		if seeded {
			logger.Info("default products seeded")
		}
	}

	redisClient, err := cache.NewRedis(context.Background(), &cfg.Redis)
	if err != nil {
		logger.WithError(err).Fatal("connect redis")
	}
	defer redisClient.Close()

	producer, err := mq.NewProducer(&cfg.Kafka)
	if err != nil {
		logger.WithError(err).Fatal("connect kafka")
	}
	publisher := mq.NewPublisher(producer)
	defer publisher.Close()

	if cfg.Upstream.StabilizationDelay < config.DefaultStabilizationDelay {
		logger.WithField("stabilization_delay", cfg.Upstream.StabilizationDelay).
			Warn("stabilization delay below 2s; customize calls may hit items the backend has not settled yet")
	}
	gameClient := upstream.NewClient(&cfg.Upstream, logger)

	catalogService := catalog.NewService(catalog.NewHTTPSource(&cfg.Catalog), logger)
	warmCtx, warmCancel := context.WithTimeout(context.Background(), cfg.Catalog.Timeout)
	if err := catalogService.Refresh(warmCtx); err != nil {
		logger.WithError(err).Warn("catalog warm-up failed, will load on first use")
	}
	warmCancel()

	h := handler.NewHandler(
		service.NewAccountService(db, gameClient, logger),
		service.NewInjectionService(db, redisClient, cfg, catalogService, gameClient, logger),
		service.NewTopupService(db, cfg, logger),
		catalogService,
		logger,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	outboxSender := job.NewOutboxSender(db, publisher, cfg.Business.MaxRetryCount, logger)
	go outboxSender.Start(ctx)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: handler.SetupRouter(h, cfg, logger),
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	// In-flight injections get the full upstream timeout to finish.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Upstream.RequestTimeout*2+cfg.Upstream.StabilizationDelay)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("server shutdown")
	}

	// Unsent outbox rows stay in the table for the next start.
	outboxSender.Stop()

	logger.Info("server stopped")
}
