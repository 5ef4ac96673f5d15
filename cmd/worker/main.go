package main

import (
	"context"
	"log"
	"net/http"
	"os"

	"github.com/dunamismax/vidflow/internal/config"
	"github.com/dunamismax/vidflow/internal/fetch"
	"github.com/dunamismax/vidflow/internal/storage"
	"github.com/dunamismax/vidflow/internal/store"
	"github.com/dunamismax/vidflow/internal/telemetry"
	"github.com/dunamismax/vidflow/internal/webhook"
	"github.com/dunamismax/vidflow/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg := config.Load()
	logger := log.New(os.Stdout, "[worker] ", log.LstdFlags|log.Lmsgprefix)

	ctx := context.Background()

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  "vidflow-worker",
		Exporter:     cfg.Trace.Exporter,
		OTLPEndpoint: cfg.Trace.OTLPEndpoint,
		OTLPInsecure: cfg.Trace.OTLPInsecure,
	}, logger)
	if err != nil {
		logger.Fatalf("setup tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Printf("tracing shutdown error: %v", err)
		}
	}()

	// The worker only exists in queue mode, and queue mode only works with
	// a store every process can reach.
	if cfg.Store.Backend != config.StorePostgres {
		logger.Fatalf("worker requires STORE_BACKEND=postgres, got %q", cfg.Store.Backend)
	}

	downloads, err := store.NewPostgresDownloadStore(ctx, cfg.Store.PostgresDSN)
	if err != nil {
		logger.Fatalf("connect postgres store: %v", err)
	}
	defer func() {
		if err := downloads.Close(); err != nil {
			logger.Printf("store close error: %v", err)
		}
	}()

	var archiver fetch.ObjectArchiver
	if cfg.Storage.Enabled {
		storageClient, err := storage.NewClient(storage.Config{
			Endpoint: cfg.Storage.Endpoint,
			Access:   cfg.Storage.AccessKey,
			Secret:   cfg.Storage.SecretKey,
			Bucket:   cfg.Storage.Bucket,
			UseSSL:   cfg.Storage.UseSSL,
		})
		if err != nil {
			logger.Fatalf("create storage client: %v", err)
		}
		if err := storageClient.EnsureBucket(ctx); err != nil {
			logger.Fatalf("ensure bucket: %v", err)
		}
		archiver = storageClient
	}

	webhookClient := webhook.NewClient(webhook.Config{
		SigningSecret:  cfg.Webhook.SigningSecret,
		Timeout:        cfg.Webhook.Timeout,
		MaxAttempts:    cfg.Webhook.MaxAttempts,
		InitialBackoff: cfg.Webhook.InitialBackoff,
		MaxBackoff:     cfg.Webhook.MaxBackoff,
	})

	fetchRegistry := prometheus.NewRegistry()
	orchestrator := fetch.NewOrchestrator(
		logger,
		downloads,
		fetch.Config{
			Binary:    cfg.Fetch.Binary,
			OutputDir: cfg.Fetch.OutputDir,
			Timeout:   cfg.Fetch.Timeout,
		},
		archiver,
		webhookClient,
		fetch.NewMetrics(fetchRegistry),
	)

	srv, err := worker.NewServer(logger, cfg.Queue, cfg.Worker, downloads, orchestrator)
	if err != nil {
		logger.Fatalf("create worker: %v", err)
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", srv.MetricsHandler(fetchRegistry))
		logger.Printf("worker metrics on %s", cfg.Worker.MetricsAddr)
		if err := http.ListenAndServe(cfg.Worker.MetricsAddr, mux); err != nil && err != http.ErrServerClosed {
			logger.Printf("metrics server failed: %v", err)
		}
	}()

	logger.Printf(
		"starting worker concurrency=%d max_active_fetches=%d queue=%s redis=%s",
		cfg.Worker.Concurrency,
		cfg.Worker.MaxActiveFetches,
		cfg.Queue.Name,
		cfg.Queue.RedisAddr,
	)

	if err := srv.Run(); err != nil {
		logger.Fatalf("worker failed: %v", err)
	}
}
