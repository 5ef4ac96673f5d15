package worker

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dunamismax/vidflow/internal/config"
	"github.com/dunamismax/vidflow/internal/domain"
	"github.com/dunamismax/vidflow/internal/fetch"
	"github.com/dunamismax/vidflow/internal/queue"
	"github.com/dunamismax/vidflow/internal/store"
)

func newTestServer(t *testing.T, downloads store.DownloadStore) *Server {
	t.Helper()
	logger := log.New(io.Discard, "", 0)
	orchestrator := fetch.NewOrchestrator(
		logger,
		downloads,
		fetch.Config{Binary: "/nonexistent-tool", OutputDir: t.TempDir()},
		nil,
		nil,
		fetch.NewMetrics(prometheus.NewRegistry()),
	)
	srv, err := NewServer(logger, config.QueueConfig{Name: "fetch"}, config.WorkerConfig{Concurrency: 1, MaxActiveFetches: 1}, downloads, orchestrator)
	if err != nil {
		t.Fatalf("NewServer returned error: %v", err)
	}
	return srv
}

func fetchTask(t *testing.T, payload queue.FetchVideoPayload) *asynq.Task {
	t.Helper()
	task, err := queue.NewFetchVideoTask(payload)
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	return task
}

func TestHandleFetchVideoSkipsMalformedPayload(t *testing.T) {
	srv := newTestServer(t, store.NewMemoryDownloadStore())

	err := srv.handleFetchVideo(context.Background(), asynq.NewTask(queue.TypeFetchVideo, []byte("garbage")))
	if err == nil {
		t.Fatal("expected an error for a malformed payload")
	}
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("malformed payloads must not be retried, got %v", err)
	}
}

func TestHandleFetchVideoIgnoresVanishedDownload(t *testing.T) {
	srv := newTestServer(t, store.NewMemoryDownloadStore())

	task := fetchTask(t, queue.FetchVideoPayload{DownloadID: "gone", URL: "https://vimeo.com/1", Platform: "vimeo", RequestedAt: time.Now().UTC()})
	if err := srv.handleFetchVideo(context.Background(), task); err != nil {
		t.Fatalf("vanished download must not fail the task: %v", err)
	}
}

func TestHandleFetchVideoIgnoresTerminalDownload(t *testing.T) {
	downloads := store.NewMemoryDownloadStore()
	now := time.Now().UTC()
	dl := domain.Download{
		ID:        "dl-done",
		URL:       "https://vimeo.com/2",
		Platform:  "vimeo",
		Status:    domain.StatusCompleted,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := downloads.Create(context.Background(), dl); err != nil {
		t.Fatalf("seed download: %v", err)
	}
	srv := newTestServer(t, downloads)

	task := fetchTask(t, queue.FetchVideoPayload{DownloadID: "dl-done", URL: dl.URL, Platform: dl.Platform, RequestedAt: now})
	if err := srv.handleFetchVideo(context.Background(), task); err != nil {
		t.Fatalf("terminal download must not fail the task: %v", err)
	}

	got, ok, err := downloads.Get(context.Background(), "dl-done")
	if err != nil || !ok {
		t.Fatalf("record lookup failed: ok=%v err=%v", ok, err)
	}
	if got.Status != domain.StatusCompleted {
		t.Fatalf("status must stay completed, got %s", got.Status)
	}
}
