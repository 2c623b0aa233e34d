package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"athensenergy/server/config"
	kafkaadapter "athensenergy/server/internal/adapter/kafka"
	"athensenergy/server/internal/analysis"
	"athensenergy/server/internal/api"
	"athensenergy/server/internal/database"
	"athensenergy/server/internal/geocoding"
	"athensenergy/server/internal/geometry"
	"athensenergy/server/internal/observability"
	"athensenergy/server/internal/processor"
	"athensenergy/server/internal/queue"
	"athensenergy/server/internal/scheduler"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	logger := observability.NewLogger(cfg.Server.LogLevel, cfg.Server.LogFormat)
	metrics := observability.NewMetrics()
	gin.SetMode(gin.ReleaseMode)

	logger.Infof("Using database at: %s", cfg.Server.DBPath)
	db, err := database.NewDatabase(cfg.Server.DBPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database")
	}
	defer db.Close()

	logger.Info("Running database migrations...")
	if err := db.RunMigrations(); err != nil {
		logger.WithError(err).Fatal("Failed to run database migrations")
	}

	listingQueue := queue.NewListingQueue(cfg.BatchProcessing.QueueSize, logger)
	logger.WithFields(logrus.Fields{
		"capacity":       listingQueue.Cap(),
		"max_batch_size": cfg.BatchProcessing.MaxBatchSize,
	}).Info("Listing queue ready")
	batchProcessor := processor.NewBatchProcessor(db.Gorm(), listingQueue, cfg, logger, metrics)
	batchProcessor.Start()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var consumer *kafkaadapter.Consumer
	consumerDone := make(chan struct{})
	if cfg.KafkaEnabled() {
		consumer = kafkaadapter.NewConsumer(cfg, batchProcessor, logger, metrics)
		go func() {
			defer close(consumerDone)
			if err := consumer.Run(ctx); err != nil {
				logger.WithError(err).Error("Kafka consumer error")
			}
		}()
		logger.WithFields(logrus.Fields{
			"brokers": cfg.Kafka.Brokers,
			"topic":   cfg.Kafka.Topic,
		}).Info("Kafka ingestion enabled")
	} else {
		close(consumerDone)
		logger.Info("Kafka ingestion disabled")
	}

	analyses := analysis.NewService(db, cfg.Pipeline, logger, metrics, nil)

	var analysisScheduler *scheduler.Scheduler
	if cfg.Schedule.Interval > 0 {
		analysisScheduler = scheduler.NewScheduler(analyses, logger, nil, cfg.Schedule.Interval, cfg.Schedule.Neighborhoods)
		analysisScheduler.Start()
		logger.WithField("interval", cfg.Schedule.Interval.String()).Info("Scheduled analyses enabled")
	}

	var locator geometry.Locator
	if cfg.GeocoderEnabled() {
		locator = geocoding.NewGeocoder(logger, cfg.Geocoder.URL, cfg.Geocoder.CacheDir)
	}

	handler := api.NewHandler(db, analyses, batchProcessor, locator, logger)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      api.NewRouter(handler, cfg.Server.CORSOrigins),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Infof("Starting server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("Server failed")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("HTTP server shutdown error")
	}
	if analysisScheduler != nil {
		analysisScheduler.Stop()
	}
	<-consumerDone
	if consumer != nil {
		if err := consumer.Close(); err != nil {
			logger.WithError(err).Error("Kafka reader close error")
		}
	}
	batchProcessor.Stop()

	logger.Info("Shutdown complete")
}
