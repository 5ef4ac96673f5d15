package janitor

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dunamismax/vidflow/internal/domain"
	"github.com/dunamismax/vidflow/internal/store"
)

type captureRemover struct {
	removed []string
}

func (r *captureRemover) RemoveObject(_ context.Context, objectKey string) error {
	r.removed = append(r.removed, objectKey)
	return nil
}

func seedTerminal(t *testing.T, downloads *store.MemoryDownloadStore, id, status string, age time.Duration, filename string) {
	t.Helper()
	now := time.Now().UTC().Add(-age)
	dl := domain.Download{
		ID:        id,
		URL:       "https://vimeo.com/" + id,
		Platform:  "vimeo",
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if filename != "" {
		dl.Filename = &filename
	}
	if err := downloads.Create(context.Background(), dl); err != nil {
		t.Fatalf("seed download: %v", err)
	}
}

func TestSweepEvictsExpiredTerminalDownloads(t *testing.T) {
	downloads := store.NewMemoryDownloadStore()
	outputDir := t.TempDir()
	remover := &captureRemover{}

	seedTerminal(t, downloads, "dl-old", domain.StatusCompleted, 2*time.Hour, "dl-old_Clip.mp4")
	seedTerminal(t, downloads, "dl-failed", domain.StatusFailed, 3*time.Hour, "")
	seedTerminal(t, downloads, "dl-fresh", domain.StatusCompleted, 5*time.Minute, "dl-fresh_Clip.mp4")

	for _, name := range []string{"dl-old_Clip.mp4", "dl-old_Clip.mp4.part", "dl-fresh_Clip.mp4"} {
		if err := os.WriteFile(filepath.Join(outputDir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write file: %v", err)
		}
	}

	j := New(log.New(io.Discard, "", 0), downloads, outputDir, time.Hour, time.Minute, remover)
	j.Sweep(context.Background())

	if _, ok, _ := downloads.Get(context.Background(), "dl-old"); ok {
		t.Fatal("expected dl-old to be evicted")
	}
	if _, ok, _ := downloads.Get(context.Background(), "dl-failed"); ok {
		t.Fatal("expected dl-failed to be evicted")
	}
	if _, ok, _ := downloads.Get(context.Background(), "dl-fresh"); !ok {
		t.Fatal("expected dl-fresh to survive the sweep")
	}

	for _, name := range []string{"dl-old_Clip.mp4", "dl-old_Clip.mp4.part"} {
		if _, err := os.Stat(filepath.Join(outputDir, name)); !os.IsNotExist(err) {
			t.Errorf("expected %s to be removed", name)
		}
	}
	if _, err := os.Stat(filepath.Join(outputDir, "dl-fresh_Clip.mp4")); err != nil {
		t.Errorf("expected dl-fresh file to survive: %v", err)
	}

	if len(remover.removed) != 1 || remover.removed[0] != "downloads/dl-old/dl-old_Clip.mp4" {
		t.Fatalf("unexpected archive removals: %v", remover.removed)
	}
}

func TestSweepIgnoresActiveDownloads(t *testing.T) {
	downloads := store.NewMemoryDownloadStore()

	old := time.Now().UTC().Add(-24 * time.Hour)
	dl := domain.Download{
		ID:        "dl-stuck",
		URL:       "https://vimeo.com/dl-stuck",
		Platform:  "vimeo",
		Status:    domain.StatusProcessing,
		CreatedAt: old,
		UpdatedAt: old,
	}
	if err := downloads.Create(context.Background(), dl); err != nil {
		t.Fatalf("seed download: %v", err)
	}

	j := New(log.New(io.Discard, "", 0), downloads, t.TempDir(), time.Hour, time.Minute, nil)
	j.Sweep(context.Background())

	if _, ok, _ := downloads.Get(context.Background(), "dl-stuck"); !ok {
		t.Fatal("sweep must not touch non-terminal downloads")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	j := New(log.New(io.Discard, "", 0), store.NewMemoryDownloadStore(), t.TempDir(), time.Hour, time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		j.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("janitor did not stop after cancel")
	}
}
