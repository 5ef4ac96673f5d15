package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dunamismax/vidflow/internal/api"
	"github.com/dunamismax/vidflow/internal/config"
	"github.com/dunamismax/vidflow/internal/fetch"
	"github.com/dunamismax/vidflow/internal/janitor"
	"github.com/dunamismax/vidflow/internal/queue"
	"github.com/dunamismax/vidflow/internal/ratelimit"
	"github.com/dunamismax/vidflow/internal/storage"
	"github.com/dunamismax/vidflow/internal/store"
	"github.com/dunamismax/vidflow/internal/telemetry"
	"github.com/dunamismax/vidflow/internal/webhook"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg := config.Load()
	logger := log.New(os.Stdout, "[api] ", log.LstdFlags|log.Lmsgprefix)

	ctx, stopNotify := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopNotify()

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  "vidflow-api",
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

	if err := os.MkdirAll(cfg.Fetch.OutputDir, 0o755); err != nil {
		logger.Fatalf("create output dir: %v", err)
	}

	var (
		downloads  store.DownloadStore
		retainable janitor.Store
	)
	switch cfg.Store.Backend {
	case config.StorePostgres:
		pg, err := store.NewPostgresDownloadStore(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			logger.Fatalf("connect postgres store: %v", err)
		}
		defer func() {
			if err := pg.Close(); err != nil {
				logger.Printf("store close error: %v", err)
			}
		}()
		downloads = pg
		retainable = pg
	case config.StoreMemory:
		mem := store.NewMemoryDownloadStore()
		downloads = mem
		retainable = mem
	default:
		logger.Fatalf("unknown store backend %q", cfg.Store.Backend)
	}

	var (
		archiver      fetch.ObjectArchiver
		archiveReader api.ArchiveReader
		objectRemover janitor.ObjectRemover
	)
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
		archiveReader = storageClient
		objectRemover = storageClient
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

	var dispatcher api.Dispatcher
	switch cfg.Fetch.Dispatch {
	case config.DispatchInline:
		dispatcher = orchestrator
	case config.DispatchQueue:
		if cfg.Store.Backend != config.StorePostgres {
			logger.Fatalf("queue dispatch requires the postgres store backend")
		}
		queueClient := queue.NewClient(cfg.Queue.RedisClientOpt(), cfg.Queue.Name)
		defer func() {
			if err := queueClient.Close(); err != nil {
				logger.Printf("queue client close error: %v", err)
			}
		}()
		dispatcher = queueClient
	default:
		logger.Fatalf("unknown dispatch mode %q", cfg.Fetch.Dispatch)
	}

	var rateLimiter api.RateLimiter
	if cfg.RateLimit.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Queue.RedisAddr,
			Password: cfg.Queue.RedisPassword,
			DB:       cfg.Queue.RedisDB,
		})
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Printf("redis client close error: %v", err)
			}
		}()
		limiter, err := ratelimit.NewRedisTokenBucket(redisClient, cfg.RateLimit.Capacity, cfg.RateLimit.Window, "")
		if err != nil {
			logger.Fatalf("create rate limiter: %v", err)
		}
		rateLimiter = limiter
	}

	if cfg.Retention.TTL > 0 {
		jan := janitor.New(logger, retainable, cfg.Fetch.OutputDir, cfg.Retention.TTL, cfg.Retention.SweepInterval, objectRemover)
		go jan.Run(ctx)
	}

	app := api.NewServer(logger, downloads, dispatcher, cfg.Fetch.OutputDir, archiveReader, rateLimiter, fetchRegistry)

	httpServer := &http.Server{
		Addr:         cfg.API.Addr,
		Handler:      app.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Printf("listening on %s dispatch=%s store=%s", cfg.API.Addr, cfg.Fetch.Dispatch, cfg.Store.Backend)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Println("shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
}
