package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/dunamismax/vidflow/internal/domain"
	_ "github.com/lib/pq"
)

const downloadSchemaSQL = `
CREATE TABLE IF NOT EXISTS downloads (
	id TEXT PRIMARY KEY,
	url TEXT NOT NULL,
	platform TEXT NOT NULL,
	status TEXT NOT NULL,
	filename TEXT,
	filesize BIGINT,
	download_url TEXT,
	metadata JSONB,
	webhook_url TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`

// PostgresDownloadStore is the shared backend required when fetches run in
// a separate worker process.
type PostgresDownloadStore struct {
	db *sql.DB
}

func NewPostgresDownloadStore(ctx context.Context, dsn string) (*PostgresDownloadStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PostgresDownloadStore{db: db}
	if err := s.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

func (s *PostgresDownloadStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, downloadSchemaSQL); err != nil {
		return fmt.Errorf("ensure downloads schema: %w", err)
	}
	return nil
}

func (s *PostgresDownloadStore) Close() error {
	return s.db.Close()
}

func (s *PostgresDownloadStore) Create(ctx context.Context, dl domain.Download) error {
	metadataJSON, err := marshalMetadata(dl.Metadata)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO downloads (id, url, platform, status, filename, filesize, download_url, metadata, webhook_url, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		dl.ID,
		dl.URL,
		dl.Platform,
		dl.Status,
		dl.Filename,
		dl.Filesize,
		dl.DownloadURL,
		metadataJSON,
		dl.WebhookURL,
		dl.CreatedAt,
		dl.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert download: %w", err)
	}

	return nil
}

func (s *PostgresDownloadStore) Get(ctx context.Context, id string) (domain.Download, bool, error) {
	return scanDownload(s.db.QueryRowContext(
		ctx,
		`SELECT id, url, platform, status, filename, filesize, download_url, metadata, webhook_url, created_at, updated_at
		 FROM downloads
		 WHERE id = $1`,
		id,
	))
}

func (s *PostgresDownloadStore) Update(ctx context.Context, id string, update DownloadUpdate) (domain.Download, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Download{}, fmt.Errorf("begin update tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	dl, ok, err := scanDownload(tx.QueryRowContext(
		ctx,
		`SELECT id, url, platform, status, filename, filesize, download_url, metadata, webhook_url, created_at, updated_at
		 FROM downloads
		 WHERE id = $1
		 FOR UPDATE`,
		id,
	))
	if err != nil {
		return domain.Download{}, err
	}
	if !ok {
		return domain.Download{}, ErrDownloadNotFound
	}
	if update.Status != nil && *update.Status != dl.Status && domain.IsTerminal(dl.Status) {
		return domain.Download{}, ErrTerminalState
	}

	applyUpdate(&dl, update)
	metadataJSON, err := marshalMetadata(dl.Metadata)
	if err != nil {
		return domain.Download{}, err
	}

	if _, err := tx.ExecContext(
		ctx,
		`UPDATE downloads
		 SET status = $1, filename = $2, filesize = $3, download_url = $4, metadata = $5, updated_at = $6
		 WHERE id = $7`,
		dl.Status,
		dl.Filename,
		dl.Filesize,
		dl.DownloadURL,
		metadataJSON,
		dl.UpdatedAt,
		dl.ID,
	); err != nil {
		return domain.Download{}, fmt.Errorf("update download: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.Download{}, fmt.Errorf("commit update tx: %w", err)
	}

	return dl, nil
}

func (s *PostgresDownloadStore) ListByStatus(ctx context.Context, status string) ([]domain.Download, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, url, platform, status, filename, filesize, download_url, metadata, webhook_url, created_at, updated_at
		 FROM downloads
		 WHERE status = $1`,
		status,
	)
	if err != nil {
		return nil, fmt.Errorf("query downloads by status: %w", err)
	}
	defer rows.Close()

	var out []domain.Download
	for rows.Next() {
		dl, _, err := scanDownload(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, dl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate downloads: %w", err)
	}
	return out, nil
}

func (s *PostgresDownloadStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM downloads WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete download: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDownload(row rowScanner) (domain.Download, bool, error) {
	var (
		dl           domain.Download
		metadataJSON []byte
	)
	if err := row.Scan(
		&dl.ID,
		&dl.URL,
		&dl.Platform,
		&dl.Status,
		&dl.Filename,
		&dl.Filesize,
		&dl.DownloadURL,
		&metadataJSON,
		&dl.WebhookURL,
		&dl.CreatedAt,
		&dl.UpdatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return domain.Download{}, false, nil
		}
		return domain.Download{}, false, fmt.Errorf("scan download: %w", err)
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &dl.Metadata); err != nil {
			return domain.Download{}, false, fmt.Errorf("unmarshal download metadata: %w", err)
		}
	}

	return dl, true, nil
}

func marshalMetadata(metadata map[string]string) ([]byte, error) {
	if metadata == nil {
		return nil, nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal download metadata: %w", err)
	}
	return data, nil
}

var (
	_ DownloadStore = (*PostgresDownloadStore)(nil)
	_ DownloadStore = (*MemoryDownloadStore)(nil)
)
