package domain

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// IsTerminal reports whether a download in the given status can still
// change state. Terminal downloads never transition again.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}

type CreateDownloadRequest struct {
	URL        string `json:"url"`
	WebhookURL string `json:"webhookUrl,omitempty"`
}

// Download is one tracked fetch request and its lifecycle state.
// Filename, Filesize and DownloadURL are set exactly when the download
// reaches StatusCompleted; Metadata carries a diagnostic reason on failure.
type Download struct {
	ID          string            `json:"id"`
	URL         string            `json:"url"`
	Platform    string            `json:"platform"`
	Status      string            `json:"status"`
	Filename    *string           `json:"filename"`
	Filesize    *int64            `json:"filesize"`
	DownloadURL *string           `json:"downloadUrl"`
	Metadata    map[string]string `json:"metadata"`
	WebhookURL  string            `json:"-"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

func (r CreateDownloadRequest) Validate() error {
	raw := strings.TrimSpace(r.URL)
	if raw == "" {
		return errors.New("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("url is not valid: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("url must include a host")
	}
	if hook := strings.TrimSpace(r.WebhookURL); hook != "" {
		hu, err := url.Parse(hook)
		if err != nil || (hu.Scheme != "http" && hu.Scheme != "https") || hu.Host == "" {
			return errors.New("webhookUrl must be an absolute http or https URL")
		}
	}
	return nil
}
