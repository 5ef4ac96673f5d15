package queue

import (
	"testing"
	"time"

	"github.com/hibiken/asynq"
)

func TestFetchVideoTaskRoundTrip(t *testing.T) {
	payload := FetchVideoPayload{
		DownloadID:  "dl-123",
		URL:         "https://vimeo.com/98765",
		Platform:    "vimeo",
		WebhookURL:  "https://hooks.example.com/vidflow",
		RequestedAt: time.Now().UTC(),
	}

	task, err := NewFetchVideoTask(payload)
	if err != nil {
		t.Fatalf("NewFetchVideoTask returned error: %v", err)
	}
	if task.Type() != TypeFetchVideo {
		t.Fatalf("expected task type %q, got %q", TypeFetchVideo, task.Type())
	}

	parsed, err := ParseFetchVideoPayload(task)
	if err != nil {
		t.Fatalf("ParseFetchVideoPayload returned error: %v", err)
	}

	if parsed.DownloadID != payload.DownloadID {
		t.Fatalf("expected download_id %q, got %q", payload.DownloadID, parsed.DownloadID)
	}
	if parsed.URL != payload.URL || parsed.Platform != payload.Platform {
		t.Fatalf("payload fields did not survive the round trip: %+v", parsed)
	}
	if !parsed.RequestedAt.Equal(payload.RequestedAt) {
		t.Fatalf("expected requested_at %v, got %v", payload.RequestedAt, parsed.RequestedAt)
	}
}

func TestParseFetchVideoPayloadRejectsGarbage(t *testing.T) {
	task := asynq.NewTask(TypeFetchVideo, []byte("not json"))
	if _, err := ParseFetchVideoPayload(task); err == nil {
		t.Fatal("expected an error for a malformed payload")
	}
}
