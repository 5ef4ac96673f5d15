package store

import (
	"context"
	"errors"

	"github.com/dunamismax/vidflow/internal/domain"
)

var (
	ErrDownloadNotFound = errors.New("download not found")

	// ErrTerminalState is returned when an update would move a download
	// out of completed or failed.
	ErrTerminalState = errors.New("download is in a terminal state")
)

// DownloadUpdate is a partial mutation. Nil fields are left untouched;
// UpdatedAt is always refreshed.
type DownloadUpdate struct {
	Status      *string
	Filename    *string
	Filesize    *int64
	DownloadURL *string
	Metadata    map[string]string
}

type DownloadStore interface {
	Create(ctx context.Context, dl domain.Download) error
	Get(ctx context.Context, id string) (domain.Download, bool, error)
	Update(ctx context.Context, id string, update DownloadUpdate) (domain.Download, error)
	ListByStatus(ctx context.Context, status string) ([]domain.Download, error)
}
