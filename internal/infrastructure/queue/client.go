// Package queue wraps asynq task production and the periodic schedules.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"notification-backend/internal/config"
	"notification-backend/internal/domains/notification/model"
	"notification-backend/internal/shared"
)

// taskRetention keeps completed tasks inspectable in asynq tooling.
const taskRetention = 24 * time.Hour

// Client enqueues dispatch tasks. Retry scheduling belongs to the domain's
// retry sweep, so tasks run with MaxRetry(0); a handler failure surfaces in
// history, not in asynq's retry queue.
type Client struct {
	client *asynq.Client
}

func NewClient(cfg config.RedisConfig) *Client {
	return &Client{
		client: asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.Host,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
	}
}

func (c *Client) EnqueueDispatch(ctx context.Context, id uuid.UUID, correlationID string, priority model.Priority) error {
	task, err := dispatchTask(id, correlationID)
	if err != nil {
		return err
	}

	info, err := c.client.EnqueueContext(ctx, task,
		asynq.Queue(queueFor(priority)),
		asynq.MaxRetry(0),
		asynq.Retention(taskRetention),
	)
	if err != nil {
		return fmt.Errorf("enqueue dispatch: %w", err)
	}

	log.Debug().
		Str("taskID", info.ID).
		Str("queue", info.Queue).
		Str("notificationID", id.String()).
		Msg("[Queue] Dispatch task enqueued")
	return nil
}

func (c *Client) EnqueueDispatchAt(ctx context.Context, id uuid.UUID, correlationID string, priority model.Priority, at time.Time) error {
	task, err := dispatchTask(id, correlationID)
	if err != nil {
		return err
	}

	info, err := c.client.EnqueueContext(ctx, task,
		asynq.Queue(queueFor(priority)),
		asynq.MaxRetry(0),
		asynq.Retention(taskRetention),
		asynq.ProcessAt(at),
	)
	if err != nil {
		return fmt.Errorf("enqueue scheduled dispatch: %w", err)
	}

	log.Debug().
		Str("taskID", info.ID).
		Str("queue", info.Queue).
		Time("processAt", at).
		Str("notificationID", id.String()).
		Msg("[Queue] Scheduled dispatch task enqueued")
	return nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func dispatchTask(id uuid.UUID, correlationID string) (*asynq.Task, error) {
	payload, err := json.Marshal(shared.DispatchTaskPayload{
		NotificationID: id.String(),
		CorrelationID:  correlationID,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal dispatch payload: %w", err)
	}
	return asynq.NewTask(shared.TypeProcessDispatch, payload), nil
}

func queueFor(priority model.Priority) string {
	switch priority {
	case model.PriorityUrgent, model.PriorityHigh:
		return shared.QueueUrgent
	case model.PriorityLow:
		return shared.QueueLow
	default:
		return shared.QueueDefault
	}
}
