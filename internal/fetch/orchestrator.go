package fetch

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"mime"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/dunamismax/vidflow/internal/domain"
	"github.com/dunamismax/vidflow/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var destinationPattern = regexp.MustCompile(`\[download\] Destination: (.+)`)

type Config struct {
	Binary    string
	OutputDir string
	Timeout   time.Duration
}

// ObjectArchiver mirrors the subset of the object storage client the
// orchestrator needs to keep a copy of completed files.
type ObjectArchiver interface {
	UploadFile(ctx context.Context, objectKey, filePath, contentType string) error
}

type WebhookSender interface {
	Send(ctx context.Context, endpoint, event string, payload any) error
}

// Orchestrator drives one download from pending to a terminal state by
// invoking the external fetch tool and observing its streams and exit code.
// It owns all mutations to a download after creation and never reports
// errors to its caller; every failure becomes download state.
type Orchestrator struct {
	logger    *log.Logger
	downloads store.DownloadStore
	cfg       Config
	archiver  ObjectArchiver
	webhooks  WebhookSender
	metrics   *Metrics
	tracer    trace.Tracer
}

func NewOrchestrator(
	logger *log.Logger,
	downloads store.DownloadStore,
	cfg Config,
	archiver ObjectArchiver,
	webhooks WebhookSender,
	metrics *Metrics,
) *Orchestrator {
	if cfg.Binary == "" {
		cfg.Binary = "yt-dlp"
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "downloads"
	}
	if metrics == nil {
		metrics = NewMetrics(prometheus.NewRegistry())
	}

	return &Orchestrator{
		logger:    logger,
		downloads: downloads,
		cfg:       cfg,
		archiver:  archiver,
		webhooks:  webhooks,
		metrics:   metrics,
		tracer:    otel.Tracer("vidflow/fetch"),
	}
}

// Dispatch starts Run in a detached goroutine and returns immediately. The
// request that created the download must not wait on it, so the goroutine
// runs on a fresh context rather than the request's.
func (o *Orchestrator) Dispatch(_ context.Context, dl domain.Download) error {
	go o.Run(context.Background(), dl)
	return nil
}

// Run executes the fetch for one download and drives it to completed or
// failed. Safe to call from any goroutine; it only touches the download
// through the store.
func (o *Orchestrator) Run(ctx context.Context, dl domain.Download) {
	started := time.Now()
	outcome := domain.StatusFailed

	ctx, span := o.tracer.Start(ctx, "fetch.run", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("download.id", dl.ID),
		attribute.String("download.platform", dl.Platform),
	)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			o.logger.Printf("fetch panicked id=%s: %v", dl.ID, r)
			o.markFailed(ctx, dl, "")
		}
	}()

	o.metrics.activeDownloads.Inc()
	defer func() {
		o.metrics.activeDownloads.Dec()
		o.metrics.downloadsTotal.WithLabelValues(dl.Platform, outcome).Inc()
		o.metrics.downloadDuration.WithLabelValues(dl.Platform, outcome).Observe(time.Since(started).Seconds())
	}()

	if o.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.Timeout)
		defer cancel()
	}

	if _, err := o.downloads.Update(ctx, dl.ID, store.DownloadUpdate{Status: ptr(domain.StatusProcessing)}); err != nil {
		o.logger.Printf("mark processing failed id=%s err=%v", dl.ID, err)
		return
	}

	if err := os.MkdirAll(o.cfg.OutputDir, 0o755); err != nil {
		o.logger.Printf("create output dir failed id=%s err=%v", dl.ID, err)
		o.markFailed(ctx, dl, "")
		span.RecordError(err)
		return
	}

	outputTemplate := filepath.Join(o.cfg.OutputDir, dl.ID+"_%(title)s.%(ext)s")
	cmd := exec.CommandContext(ctx, o.cfg.Binary, commandArgs(dl.URL, outputTemplate, dl.Platform)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		o.failProcess(ctx, span, dl, err, "")
		return
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		o.failProcess(ctx, span, dl, err, "")
		return
	}

	o.logger.Printf("fetch starting id=%s platform=%s url=%s", dl.ID, dl.Platform, dl.URL)
	if err := cmd.Start(); err != nil {
		o.failProcess(ctx, span, dl, err, "")
		return
	}

	var (
		mu        sync.Mutex
		announced string
		reason    string
	)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			line := scanner.Text()
			if m := destinationPattern.FindStringSubmatch(line); m != nil {
				mu.Lock()
				announced = filepath.Base(strings.TrimSpace(m[1]))
				mu.Unlock()
			}
		}
	}()
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stderr)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			line := scanner.Text()
			msg, ok := Diagnose(line)
			if !ok {
				continue
			}
			mu.Lock()
			first := reason == ""
			if first {
				reason = msg
			}
			mu.Unlock()
			if first {
				// Advisory only: surface the reason to pollers while the
				// process is still running. The terminal transition waits
				// for the exit code.
				if _, err := o.downloads.Update(ctx, dl.ID, store.DownloadUpdate{
					Metadata: map[string]string{"error": msg},
				}); err != nil {
					o.logger.Printf("record failure reason failed id=%s err=%v", dl.ID, err)
				}
			}
		}
	}()

	wg.Wait()
	err = cmd.Wait()

	mu.Lock()
	failReason := reason
	announcedName := announced
	mu.Unlock()

	if err != nil {
		o.failProcess(ctx, span, dl, err, failReason)
		return
	}

	filename, size, ok := o.locateOutput(dl.ID, announcedName)
	if !ok {
		o.logger.Printf("fetch produced no output file id=%s", dl.ID)
		o.markFailed(ctx, dl, failReason)
		span.SetStatus(codes.Error, "no output file")
		return
	}

	downloadURL := fmt.Sprintf("/api/download/%s/file", dl.ID)
	updated, uerr := o.downloads.Update(detach(ctx), dl.ID, store.DownloadUpdate{
		Status:      ptr(domain.StatusCompleted),
		Filename:    &filename,
		Filesize:    &size,
		DownloadURL: &downloadURL,
	})
	if uerr != nil {
		o.logger.Printf("mark completed failed id=%s err=%v", dl.ID, uerr)
		span.RecordError(uerr)
		return
	}

	o.archive(ctx, updated)
	o.notify(ctx, updated, "download.completed")

	o.metrics.bytesFetchedTotal.Add(float64(size))
	outcome = domain.StatusCompleted
	span.SetStatus(codes.Ok, "completed")
	o.logger.Printf("fetch completed id=%s file=%s bytes=%d", dl.ID, filename, size)
}

func (o *Orchestrator) failProcess(ctx context.Context, span trace.Span, dl domain.Download, err error, reason string) {
	o.logger.Printf("fetch process failed id=%s err=%v", dl.ID, err)
	o.markFailed(ctx, dl, reason)
	span.RecordError(err)
	span.SetStatus(codes.Error, "fetch process failed")
}

// markFailed moves the download to failed, preserving any reason already
// recorded when none is supplied here.
func (o *Orchestrator) markFailed(ctx context.Context, dl domain.Download, reason string) {
	update := store.DownloadUpdate{Status: ptr(domain.StatusFailed)}
	if reason != "" {
		update.Metadata = map[string]string{"error": reason}
	}
	updated, err := o.downloads.Update(detach(ctx), dl.ID, update)
	if err != nil {
		o.logger.Printf("mark failed errored id=%s err=%v", dl.ID, err)
		return
	}
	o.notify(ctx, updated, "download.failed")
}

// locateOutput scans the output directory for the file written for this
// download. The on-disk scan is authoritative; the name announced on stdout
// only breaks ties when the tool wrote several artifacts.
func (o *Orchestrator) locateOutput(id, announced string) (string, int64, bool) {
	entries, err := os.ReadDir(o.cfg.OutputDir)
	if err != nil {
		o.logger.Printf("scan output dir failed id=%s err=%v", id, err)
		return "", 0, false
	}

	var candidates []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasPrefix(entry.Name(), id) {
			candidates = append(candidates, entry.Name())
		}
	}
	if len(candidates) == 0 {
		return "", 0, false
	}

	name := candidates[0]
	for _, candidate := range candidates {
		if candidate == announced {
			name = candidate
			break
		}
	}

	info, err := os.Stat(filepath.Join(o.cfg.OutputDir, name))
	if err != nil {
		o.logger.Printf("stat output file failed id=%s file=%s err=%v", id, name, err)
		return "", 0, false
	}
	return name, info.Size(), true
}

func (o *Orchestrator) archive(ctx context.Context, dl domain.Download) {
	if o.archiver == nil || dl.Filename == nil {
		return
	}

	filePath := filepath.Join(o.cfg.OutputDir, *dl.Filename)
	objectKey := path.Join("downloads", dl.ID, *dl.Filename)
	contentType := mime.TypeByExtension(filepath.Ext(*dl.Filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if err := o.archiver.UploadFile(detach(ctx), objectKey, filePath, contentType); err != nil {
		o.logger.Printf("archive to object storage failed id=%s err=%v", dl.ID, err)
		return
	}
	o.logger.Printf("archived id=%s object_key=%s", dl.ID, objectKey)
}

func (o *Orchestrator) notify(ctx context.Context, dl domain.Download, event string) {
	if o.webhooks == nil || dl.WebhookURL == "" {
		return
	}

	payload := map[string]any{
		"id":          dl.ID,
		"url":         dl.URL,
		"platform":    dl.Platform,
		"status":      dl.Status,
		"filename":    dl.Filename,
		"filesize":    dl.Filesize,
		"downloadUrl": dl.DownloadURL,
		"metadata":    dl.Metadata,
		"updatedAt":   dl.UpdatedAt,
	}
	if err := o.webhooks.Send(detach(ctx), dl.WebhookURL, event, payload); err != nil {
		o.logger.Printf("webhook delivery failed id=%s event=%s err=%v", dl.ID, event, err)
	}
}

// detach keeps trace propagation but drops cancellation so terminal store
// writes and notifications still land after a fetch timeout.
func detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

func ptr[T any](v T) *T {
	return &v
}
