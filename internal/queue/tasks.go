package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const TypeFetchVideo = "video:fetch"

// FetchVideoPayload carries everything the worker needs to run a fetch.
// The download record itself stays in the shared store; the payload only
// identifies it and repeats the immutable fields.
type FetchVideoPayload struct {
	DownloadID  string    `json:"download_id"`
	URL         string    `json:"url"`
	Platform    string    `json:"platform"`
	WebhookURL  string    `json:"webhook_url,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

func NewFetchVideoTask(payload FetchVideoPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal fetch payload: %w", err)
	}
	return asynq.NewTask(TypeFetchVideo, body), nil
}

func ParseFetchVideoPayload(task *asynq.Task) (FetchVideoPayload, error) {
	var payload FetchVideoPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return FetchVideoPayload{}, fmt.Errorf("unmarshal fetch payload: %w", err)
	}
	return payload, nil
}
