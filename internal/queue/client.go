package queue

import (
	"context"
	"time"

	"github.com/dunamismax/vidflow/internal/domain"
	"github.com/hibiken/asynq"
)

type Client struct {
	client *asynq.Client
	queue  string
}

func NewClient(redisOpt asynq.RedisClientOpt, queueName string) *Client {
	return &Client{
		client: asynq.NewClient(redisOpt),
		queue:  queueName,
	}
}

func (c *Client) EnqueueFetchVideo(ctx context.Context, payload FetchVideoPayload) (*asynq.TaskInfo, error) {
	task, err := NewFetchVideoTask(payload)
	if err != nil {
		return nil, err
	}
	// A download is never retried as a whole; the fetch tool's own retry
	// flags are the only retry layer.
	return c.client.EnqueueContext(
		ctx,
		task,
		asynq.Queue(c.queue),
		asynq.MaxRetry(0),
		asynq.Timeout(45*time.Minute),
	)
}

// Dispatch satisfies the API server's dispatcher contract so queue mode is
// a drop-in replacement for the in-process orchestrator.
func (c *Client) Dispatch(ctx context.Context, dl domain.Download) error {
	_, err := c.EnqueueFetchVideo(ctx, FetchVideoPayload{
		DownloadID:  dl.ID,
		URL:         dl.URL,
		Platform:    dl.Platform,
		WebhookURL:  dl.WebhookURL,
		RequestedAt: time.Now().UTC(),
	})
	return err
}

func (c *Client) Close() error {
	return c.client.Close()
}
