package worker

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/dunamismax/vidflow/internal/config"
	"github.com/dunamismax/vidflow/internal/domain"
	"github.com/dunamismax/vidflow/internal/fetch"
	"github.com/dunamismax/vidflow/internal/queue"
	"github.com/dunamismax/vidflow/internal/store"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Server consumes fetch tasks from the queue and hands them to the
// orchestrator. It exists only for queue-mode deployments; inline mode
// runs the orchestrator directly inside the API process.
type Server struct {
	logger       *log.Logger
	server       *asynq.Server
	sem          chan struct{}
	downloads    store.DownloadStore
	orchestrator *fetch.Orchestrator
	metrics      *metrics
	tracer       trace.Tracer
}

func NewServer(
	logger *log.Logger,
	queueCfg config.QueueConfig,
	workerCfg config.WorkerConfig,
	downloads store.DownloadStore,
	orchestrator *fetch.Orchestrator,
) (*Server, error) {
	if downloads == nil {
		return nil, fmt.Errorf("download store is required")
	}
	if orchestrator == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}

	s := &Server{
		logger: logger,
		server: asynq.NewServer(
			queueCfg.RedisClientOpt(),
			asynq.Config{
				Concurrency: workerCfg.Concurrency,
				Queues: map[string]int{
					queueCfg.Name: 1,
				},
				LogLevel: asynq.InfoLevel,
				ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
					logger.Printf("task failed type=%s err=%v", task.Type(), err)
				}),
			},
		),
		sem:          make(chan struct{}, max(1, workerCfg.MaxActiveFetches)),
		downloads:    downloads,
		orchestrator: orchestrator,
		metrics:      newMetrics(),
		tracer:       otel.Tracer("vidflow/worker"),
	}
	return s, nil
}

func (s *Server) Run() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeFetchVideo, s.handleFetchVideo)
	return s.server.Run(mux)
}

// MetricsHandler serves the worker registry plus any extra gatherers, so
// the orchestrator's fetch metrics share the worker's /metrics endpoint.
func (s *Server) MetricsHandler(extra ...prometheus.Gatherer) http.Handler {
	return s.metrics.Handler(extra...)
}

func (s *Server) handleFetchVideo(ctx context.Context, task *asynq.Task) error {
	payload, err := queue.ParseFetchVideoPayload(task)
	if err != nil {
		s.metrics.tasksTotal.WithLabelValues("invalid").Inc()
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}

	ctx, span := s.tracer.Start(ctx, "worker.fetch_video", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("download.id", payload.DownloadID),
		attribute.String("download.platform", payload.Platform),
	)
	defer span.End()

	dl, ok, err := s.downloads.Get(ctx, payload.DownloadID)
	if err != nil {
		s.metrics.tasksTotal.WithLabelValues("store_error").Inc()
		return fmt.Errorf("load download %s: %w", payload.DownloadID, err)
	}
	if !ok {
		// The record was evicted between enqueue and pickup; nothing to do.
		s.logger.Printf("download vanished before fetch id=%s", payload.DownloadID)
		s.metrics.tasksTotal.WithLabelValues("missing").Inc()
		return nil
	}
	if domain.IsTerminal(dl.Status) {
		s.logger.Printf("download already terminal id=%s status=%s", dl.ID, dl.Status)
		s.metrics.tasksTotal.WithLabelValues("stale").Inc()
		return nil
	}

	s.sem <- struct{}{}
	defer func() { <-s.sem }()

	s.logger.Printf("Fetching... id=%s platform=%s url=%s", dl.ID, dl.Platform, dl.URL)

	// The orchestrator absorbs all fetch failures into download state, so
	// the task itself always succeeds once the record is loaded.
	s.orchestrator.Run(ctx, dl)
	s.metrics.tasksTotal.WithLabelValues("done").Inc()
	return nil
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
