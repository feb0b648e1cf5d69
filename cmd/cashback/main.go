package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"cashback/internal/amqp"
	"cashback/internal/cli"
	apphttp "cashback/internal/http"
	"cashback/internal/log"
	"cashback/internal/services"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, log.ComponentApp)
	logger.Info("Starting cashback server", log.FieldOperation, log.OpStartup)

	res := cli.InitBackend(context.Background(), logger, cfg)
	st := res.Store

	prices := cli.InitPricing(logger, cfg, st)

	// Events are optional; the API works the same without a broker.
	var publisher services.Publisher
	var amqpClient *amqp.Client
	if cfg.AMQPEnabled() {
		c, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without events", log.FieldError, err)
		} else {
			amqpClient = c
			publisher = c
			logger.Info("AMQP publisher initialized", "exchange", cfg.AMQPExchange)
		}
	} else {
		logger.Info("AMQP disabled - transaction events will not be published")
	}

	srv := apphttp.NewServer(apphttp.Config{
		Addr:               ":" + cfg.Port,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	}, apphttp.Deps{
		Transactions: services.NewTransactionService(st, st, publisher, logger),
		Dashboard:    services.NewDashboardService(st, st, prices.Historical, prices.Live, logger),
		Settings:     services.NewSettingsService(st, logger),
		Categories:   services.NewCategoryService(st, st, logger),
		Store:        st,
		Prices:       prices.Historical,
		AssetSymbol:  cfg.AssetSymbol,
	}, logger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Warn("AMQP close error", log.FieldError, err)
			}
		}
		if err := res.Cleanup(); err != nil {
			logger.Warn("Backend cleanup error", log.FieldError, err)
		}
	})

	logger.Info("Starting HTTP server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		log.FieldSymbol, cfg.AssetSymbol)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
