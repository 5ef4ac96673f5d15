package janitor

import (
	"context"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/dunamismax/vidflow/internal/domain"
)

// Store is the slice of the download store the janitor needs: enumerate
// terminal downloads and drop expired ones. Both store backends satisfy it.
type Store interface {
	ListByStatus(ctx context.Context, status string) ([]domain.Download, error)
	Delete(ctx context.Context, id string) error
}

type ObjectRemover interface {
	RemoveObject(ctx context.Context, objectKey string) error
}

// Janitor evicts terminal downloads and their files once they are older
// than the configured TTL. Retention is opt-in; without it records and
// files accumulate for the life of the process.
type Janitor struct {
	logger    *log.Logger
	downloads Store
	outputDir string
	ttl       time.Duration
	interval  time.Duration
	remover   ObjectRemover
	now       func() time.Time
}

func New(logger *log.Logger, downloads Store, outputDir string, ttl, interval time.Duration, remover ObjectRemover) *Janitor {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Janitor{
		logger:    logger,
		downloads: downloads,
		outputDir: outputDir,
		ttl:       ttl,
		interval:  interval,
		remover:   remover,
		now:       time.Now,
	}
}

// Run sweeps on a fixed interval until the context is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.logger.Printf("janitor running ttl=%s interval=%s", j.ttl, j.interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.Sweep(ctx)
		}
	}
}

// Sweep removes every terminal download whose last update is older than the
// TTL, together with its on-disk and archived files.
func (j *Janitor) Sweep(ctx context.Context) {
	cutoff := j.now().UTC().Add(-j.ttl)

	for _, status := range []string{domain.StatusCompleted, domain.StatusFailed} {
		downloads, err := j.downloads.ListByStatus(ctx, status)
		if err != nil {
			j.logger.Printf("janitor list failed status=%s err=%v", status, err)
			continue
		}
		for _, dl := range downloads {
			if dl.UpdatedAt.After(cutoff) {
				continue
			}
			j.evict(ctx, dl)
		}
	}
}

func (j *Janitor) evict(ctx context.Context, dl domain.Download) {
	j.removeFiles(dl.ID)

	if j.remover != nil && dl.Filename != nil {
		objectKey := path.Join("downloads", dl.ID, filepath.Base(*dl.Filename))
		if err := j.remover.RemoveObject(ctx, objectKey); err != nil {
			j.logger.Printf("janitor remove object failed id=%s err=%v", dl.ID, err)
		}
	}

	if err := j.downloads.Delete(ctx, dl.ID); err != nil {
		j.logger.Printf("janitor delete record failed id=%s err=%v", dl.ID, err)
		return
	}
	j.logger.Printf("janitor evicted id=%s status=%s age=%s", dl.ID, dl.Status, j.now().UTC().Sub(dl.UpdatedAt).Round(time.Second))
}

// removeFiles clears every artifact the fetch tool wrote for this id,
// including partial files left behind by failed fetches.
func (j *Janitor) removeFiles(id string) {
	entries, err := os.ReadDir(j.outputDir)
	if err != nil {
		if !os.IsNotExist(err) {
			j.logger.Printf("janitor scan output dir failed err=%v", err)
		}
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), id) {
			continue
		}
		if err := os.Remove(filepath.Join(j.outputDir, entry.Name())); err != nil {
			j.logger.Printf("janitor remove file failed file=%s err=%v", entry.Name(), err)
		}
	}
}
