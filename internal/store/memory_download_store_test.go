package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dunamismax/vidflow/internal/domain"
	"github.com/dunamismax/vidflow/internal/id"
)

func seedDownload(t *testing.T, s *MemoryDownloadStore, status string) domain.Download {
	t.Helper()
	now := time.Now().UTC()
	dl := domain.Download{
		ID:        id.New(),
		URL:       "https://vimeo.com/98765",
		Platform:  "vimeo",
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Create(context.Background(), dl); err != nil {
		t.Fatalf("seed download: %v", err)
	}
	return dl
}

func TestCreateAndGet(t *testing.T) {
	s := NewMemoryDownloadStore()
	dl := seedDownload(t, s, domain.StatusPending)

	got, ok, err := s.Get(context.Background(), dl.ID)
	if err != nil {
		t.Fatalf("get returned error: %v", err)
	}
	if !ok {
		t.Fatal("expected download to exist")
	}
	if got.Status != domain.StatusPending {
		t.Fatalf("expected status pending, got %s", got.Status)
	}
	if got.Filename != nil || got.Filesize != nil || got.DownloadURL != nil {
		t.Fatal("fresh download must not carry file fields")
	}

	if _, ok, _ := s.Get(context.Background(), "no-such-id"); ok {
		t.Fatal("expected miss for unknown id")
	}
}

func TestCreateYieldsFreshIDs(t *testing.T) {
	s := NewMemoryDownloadStore()
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		dl := seedDownload(t, s, domain.StatusPending)
		if seen[dl.ID] {
			t.Fatalf("id %s issued twice", dl.ID)
		}
		seen[dl.ID] = true
	}
}

func TestUpdateUnknownID(t *testing.T) {
	s := NewMemoryDownloadStore()
	status := domain.StatusProcessing
	_, err := s.Update(context.Background(), "missing", DownloadUpdate{Status: &status})
	if !errors.Is(err, ErrDownloadNotFound) {
		t.Fatalf("expected ErrDownloadNotFound, got %v", err)
	}
}

func TestUpdateMergesFields(t *testing.T) {
	s := NewMemoryDownloadStore()
	dl := seedDownload(t, s, domain.StatusProcessing)

	filename := dl.ID + "_video.mp4"
	filesize := int64(4096)
	downloadURL := fmt.Sprintf("/api/download/%s/file", dl.ID)
	status := domain.StatusCompleted
	updated, err := s.Update(context.Background(), dl.ID, DownloadUpdate{
		Status:      &status,
		Filename:    &filename,
		Filesize:    &filesize,
		DownloadURL: &downloadURL,
	})
	if err != nil {
		t.Fatalf("update returned error: %v", err)
	}
	if updated.Status != domain.StatusCompleted {
		t.Fatalf("expected completed, got %s", updated.Status)
	}
	if updated.Filename == nil || *updated.Filename != filename {
		t.Fatalf("filename not applied: %v", updated.Filename)
	}
	if updated.Filesize == nil || *updated.Filesize != filesize {
		t.Fatalf("filesize not applied: %v", updated.Filesize)
	}
	if updated.URL != dl.URL || updated.Platform != dl.Platform {
		t.Fatal("immutable fields changed")
	}
	if updated.UpdatedAt.Before(dl.UpdatedAt) {
		t.Fatal("expected UpdatedAt to be refreshed")
	}
}

func TestTerminalStateIsFinal(t *testing.T) {
	s := NewMemoryDownloadStore()

	for _, terminal := range []string{domain.StatusCompleted, domain.StatusFailed} {
		dl := seedDownload(t, s, terminal)
		status := domain.StatusProcessing
		if _, err := s.Update(context.Background(), dl.ID, DownloadUpdate{Status: &status}); !errors.Is(err, ErrTerminalState) {
			t.Fatalf("expected ErrTerminalState leaving %s, got %v", terminal, err)
		}

		// A metadata-only update on a terminal record is still allowed.
		if _, err := s.Update(context.Background(), dl.ID, DownloadUpdate{
			Metadata: map[string]string{"error": "late detail"},
		}); err != nil {
			t.Fatalf("metadata update on %s returned error: %v", terminal, err)
		}
	}
}

func TestListByStatus(t *testing.T) {
	s := NewMemoryDownloadStore()
	seedDownload(t, s, domain.StatusPending)
	seedDownload(t, s, domain.StatusPending)
	completed := seedDownload(t, s, domain.StatusCompleted)

	pending, err := s.ListByStatus(context.Background(), domain.StatusPending)
	if err != nil {
		t.Fatalf("list returned error: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending downloads, got %d", len(pending))
	}

	done, err := s.ListByStatus(context.Background(), domain.StatusCompleted)
	if err != nil {
		t.Fatalf("list returned error: %v", err)
	}
	if len(done) != 1 || done[0].ID != completed.ID {
		t.Fatalf("expected exactly the completed download, got %v", done)
	}
}

func TestConcurrentUpdatesOnDistinctIDs(t *testing.T) {
	s := NewMemoryDownloadStore()

	var ids []string
	for i := 0; i < 50; i++ {
		ids = append(ids, seedDownload(t, s, domain.StatusPending).ID)
	}

	var wg sync.WaitGroup
	for _, dlID := range ids {
		wg.Add(1)
		go func(dlID string) {
			defer wg.Done()
			processing := domain.StatusProcessing
			if _, err := s.Update(context.Background(), dlID, DownloadUpdate{Status: &processing}); err != nil {
				t.Errorf("update %s: %v", dlID, err)
			}
			failed := domain.StatusFailed
			if _, err := s.Update(context.Background(), dlID, DownloadUpdate{Status: &failed}); err != nil {
				t.Errorf("update %s: %v", dlID, err)
			}
		}(dlID)
	}
	wg.Wait()

	failed, err := s.ListByStatus(context.Background(), domain.StatusFailed)
	if err != nil {
		t.Fatalf("list returned error: %v", err)
	}
	if len(failed) != len(ids) {
		t.Fatalf("expected %d failed downloads, got %d", len(ids), len(failed))
	}
}

func TestDelete(t *testing.T) {
	s := NewMemoryDownloadStore()
	dl := seedDownload(t, s, domain.StatusCompleted)

	if err := s.Delete(context.Background(), dl.ID); err != nil {
		t.Fatalf("delete returned error: %v", err)
	}
	if _, ok, _ := s.Get(context.Background(), dl.ID); ok {
		t.Fatal("expected download to be gone")
	}
}
