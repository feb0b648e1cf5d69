package main

import (
	"context"
	"errors"
	"os"
	"time"

	"cashback/internal/amqp"
	"cashback/internal/cli"
	"cashback/internal/log"
	"cashback/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, log.ComponentWorker)
	logger.Info("Starting cashback-worker", log.FieldOperation, log.OpStartup)

	res := cli.InitBackend(context.Background(), logger, cfg)
	prices := cli.InitPricing(logger, cfg, res.Store)
	mirror := cli.InitMirror(context.Background(), logger, cfg)

	syncWorker := worker.NewSyncWorker(prices.Historical, mirror, logger)

	scheduler, err := worker.NewScheduler(cfg.PriceWarmSchedule, syncWorker, logger)
	if err != nil {
		logger.Error("Failed to schedule price warm", log.FieldError, err)
		os.Exit(1)
	}
	scheduler.Start()

	var amqpClient *amqp.Client
	if cfg.AMQPEnabled() {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			os.Exit(1)
		}
	} else {
		logger.Info("AMQP disabled - only the scheduled price warm will run")
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		scheduler.Stop(ctx)
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Warn("AMQP close error", log.FieldError, err)
			}
		}
		if err := res.Cleanup(); err != nil {
			logger.Warn("Backend cleanup error", log.FieldError, err)
		}
	})

	if amqpClient != nil {
		go func() {
			err := amqpClient.Consume(ctx, syncWorker.HandleEvent)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", log.FieldError, err)
			}
		}()
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped")
}
