package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/wastewater-ingest/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/wastewater-ingest/internal/adapter/kafka"
	"github.com/couchcryptid/wastewater-ingest/internal/adapter/source"
	"github.com/couchcryptid/wastewater-ingest/internal/adapter/webhook"
	"github.com/couchcryptid/wastewater-ingest/internal/config"
	"github.com/couchcryptid/wastewater-ingest/internal/observability"
	"github.com/couchcryptid/wastewater-ingest/internal/pipeline"
	"github.com/couchcryptid/wastewater-ingest/internal/store"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	if err := run(cfg, logger); err != nil {
		logger.Error("ingest failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, store.Options{
		SQLitePath:        cfg.SQLitePath,
		PostgresURL:       cfg.DatabaseURL,
		KnownKeyCacheSize: cfg.KnownKeyCacheSize,
		Logger:            logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("store close error", "error", err)
		}
	}()

	opts := []pipeline.Option{pipeline.WithInterval(cfg.PollInterval)}
	if len(cfg.TrendPathogens) > 0 {
		opts = append(opts, pipeline.WithTrendPathogens(cfg.TrendPathogens...))
	}
	if cfg.NotifyWebhookURL != "" {
		opts = append(opts, pipeline.WithNotifiers(webhook.NewNotifier(cfg.NotifyWebhookURL, logger)))
		logger.Info("webhook notifications enabled")
	}
	if len(cfg.KafkaBrokers) > 0 {
		writer := kafkaadapter.NewWriter(cfg, logger)
		defer func() {
			if err := writer.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		opts = append(opts, pipeline.WithNotifiers(writer))
		logger.Info("kafka trend publishing enabled", "topic", cfg.KafkaTrendTopic)
	}

	fetcher := source.NewClient(cfg.SourceURL, cfg.FetchTimeout, logger)
	svc := pipeline.New(fetcher, st, logger, observability.NewMetrics(), opts...)

	if cfg.RunOnce {
		_, err := svc.RunOnce(ctx)
		return err
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, svc, st, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return svc.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
		return nil
	})

	err = g.Wait()
	logger.Info("shutdown complete")
	return err
}
