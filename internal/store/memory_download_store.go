package store

import (
	"context"
	"sync"
	"time"

	"github.com/dunamismax/vidflow/internal/domain"
)

// MemoryDownloadStore keeps downloads in a process-wide map. It is the
// default backend for single-process deployments; records live only as
// long as the process does.
type MemoryDownloadStore struct {
	mu        sync.RWMutex
	downloads map[string]domain.Download
}

func NewMemoryDownloadStore() *MemoryDownloadStore {
	return &MemoryDownloadStore{
		downloads: make(map[string]domain.Download),
	}
}

func (s *MemoryDownloadStore) Create(_ context.Context, dl domain.Download) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.downloads[dl.ID] = dl
	return nil
}

func (s *MemoryDownloadStore) Get(_ context.Context, id string) (domain.Download, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dl, ok := s.downloads[id]
	return dl, ok, nil
}

func (s *MemoryDownloadStore) Update(_ context.Context, id string, update DownloadUpdate) (domain.Download, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dl, ok := s.downloads[id]
	if !ok {
		return domain.Download{}, ErrDownloadNotFound
	}
	if update.Status != nil && *update.Status != dl.Status && domain.IsTerminal(dl.Status) {
		return domain.Download{}, ErrTerminalState
	}

	applyUpdate(&dl, update)
	s.downloads[id] = dl
	return dl, nil
}

func (s *MemoryDownloadStore) ListByStatus(_ context.Context, status string) ([]domain.Download, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Download
	for _, dl := range s.downloads {
		if dl.Status == status {
			out = append(out, dl)
		}
	}
	return out, nil
}

// Delete removes a download record. Used by the retention janitor only.
func (s *MemoryDownloadStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.downloads, id)
	return nil
}

func applyUpdate(dl *domain.Download, update DownloadUpdate) {
	if update.Status != nil {
		dl.Status = *update.Status
	}
	if update.Filename != nil {
		dl.Filename = update.Filename
	}
	if update.Filesize != nil {
		dl.Filesize = update.Filesize
	}
	if update.DownloadURL != nil {
		dl.DownloadURL = update.DownloadURL
	}
	if update.Metadata != nil {
		dl.Metadata = update.Metadata
	}
	dl.UpdatedAt = time.Now().UTC()
}
