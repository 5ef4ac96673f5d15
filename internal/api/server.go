package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dunamismax/vidflow/internal/domain"
	"github.com/dunamismax/vidflow/internal/id"
	"github.com/dunamismax/vidflow/internal/platform"
	"github.com/dunamismax/vidflow/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Dispatcher hands a freshly created download to whatever runs the fetch:
// the in-process orchestrator in inline mode, the queue client in queue
// mode. It must return without waiting for the fetch to finish.
type Dispatcher interface {
	Dispatch(ctx context.Context, dl domain.Download) error
}

// ArchiveReader is the optional object-storage fallback for serving files
// whose local copy is gone.
type ArchiveReader interface {
	OpenObject(ctx context.Context, objectKey string) (io.ReadCloser, error)
}

type Server struct {
	logger      *log.Logger
	downloads   store.DownloadStore
	dispatcher  Dispatcher
	outputDir   string
	archive     ArchiveReader
	rateLimiter RateLimiter
	metrics     *metrics
	tracer      trace.Tracer
	mux         *http.ServeMux
}

func NewServer(
	logger *log.Logger,
	downloads store.DownloadStore,
	dispatcher Dispatcher,
	outputDir string,
	archive ArchiveReader,
	rateLimiter RateLimiter,
	extraMetrics ...prometheus.Gatherer,
) *Server {
	if outputDir == "" {
		outputDir = "downloads"
	}

	s := &Server{
		logger:      logger,
		downloads:   downloads,
		dispatcher:  dispatcher,
		outputDir:   outputDir,
		archive:     archive,
		rateLimiter: rateLimiter,
		metrics:     newMetrics(),
		tracer:      otel.Tracer("vidflow/api"),
		mux:         http.NewServeMux(),
	}
	s.routes(extraMetrics...)
	return s
}

// Handler returns the full middleware chain around the route mux.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = s.withRateLimit(h)
	h = s.withTracing(h)
	h = s.metrics.withHTTPMetrics(h)
	return h
}

func (s *Server) routes(extraMetrics ...prometheus.Gatherer) {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("POST /api/download", s.handleCreateDownload)
	s.mux.HandleFunc("GET /api/download/{id}", s.handleGetDownload)
	s.mux.HandleFunc("GET /api/download/{id}/file", s.handleGetFile)
	s.mux.Handle("GET /metrics", s.metrics.metricsHandler(extraMetrics...))
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateDownload(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateDownloadRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"message": "Invalid request",
			"errors":  []string{err.Error()},
		})
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"message": "Invalid request",
			"errors":  []string{err.Error()},
		})
		return
	}

	now := time.Now().UTC()
	dl := domain.Download{
		ID:         id.New(),
		URL:        req.URL,
		Platform:   platform.Detect(req.URL),
		Status:     domain.StatusPending,
		WebhookURL: req.WebhookURL,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.downloads.Create(r.Context(), dl); err != nil {
		s.logger.Printf("create download failed id=%s err=%v", dl.ID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "Internal server error"})
		return
	}

	if err := s.dispatcher.Dispatch(r.Context(), dl); err != nil {
		s.logger.Printf("dispatch failed id=%s err=%v", dl.ID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "Internal server error"})
		return
	}

	s.metrics.downloadsCreated.WithLabelValues(dl.Platform).Inc()
	writeJSON(w, http.StatusOK, dl)
}

func (s *Server) handleGetDownload(w http.ResponseWriter, r *http.Request) {
	dl, ok, err := s.downloads.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.logger.Printf("fetch download failed id=%s err=%v", r.PathValue("id"), err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "Internal server error"})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Download not found"})
		return
	}
	writeJSON(w, http.StatusOK, dl)
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	dl, ok, err := s.downloads.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.logger.Printf("fetch download failed id=%s err=%v", r.PathValue("id"), err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "Internal server error"})
		return
	}
	if !ok || dl.Status != domain.StatusCompleted || dl.Filename == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "File not found"})
		return
	}

	filename := filepath.Base(*dl.Filename)
	filePath := filepath.Join(s.outputDir, filename)
	if _, err := os.Stat(filePath); err == nil {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
		http.ServeFile(w, r, filePath)
		return
	}

	if s.serveArchived(w, r, dl, filename) {
		return
	}

	writeJSON(w, http.StatusNotFound, map[string]string{"message": "File not found on disk"})
}

// serveArchived streams the object-storage copy when the local file has
// been cleaned up. Reports whether it produced a response.
func (s *Server) serveArchived(w http.ResponseWriter, r *http.Request, dl domain.Download, filename string) bool {
	if s.archive == nil {
		return false
	}

	objectKey := path.Join("downloads", dl.ID, filename)
	obj, err := s.archive.OpenObject(r.Context(), objectKey)
	if err != nil {
		s.logger.Printf("open archived object failed id=%s key=%s err=%v", dl.ID, objectKey, err)
		return false
	}
	defer obj.Close()

	// Object reads are lazy; peek before committing to a 200 so a missing
	// object still yields a clean 404.
	buffered := bufio.NewReader(obj)
	if _, err := buffered.Peek(1); err != nil && err != io.EOF {
		s.logger.Printf("read archived object failed id=%s key=%s err=%v", dl.ID, objectKey, err)
		return false
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Type", "application/octet-stream")
	if dl.Filesize != nil {
		w.Header().Set("Content-Length", strconv.FormatInt(*dl.Filesize, 10))
	}
	if _, err := io.Copy(w, buffered); err != nil {
		s.logger.Printf("stream archived object failed id=%s err=%v", dl.ID, err)
	}
	return true
}

func decodeJSON(r *http.Request, into any) error {
	const maxBodyBytes = 1 << 20
	limited := io.LimitReader(r.Body, maxBodyBytes)
	decoder := json.NewDecoder(limited)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(into); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return errors.New("invalid JSON body: multiple JSON values are not allowed")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
