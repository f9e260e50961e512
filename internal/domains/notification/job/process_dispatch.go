// Package job holds the asynq task handlers run by the worker process.
package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"notification-backend/internal/domains/notification/model"
	"notification-backend/internal/domains/notification/service"
	"notification-backend/internal/ratelimit"
	"notification-backend/internal/shared"
)

// ProcessDispatchHandler routes dispatch tasks into the ordered worker
// pool. Submission is keyed by (recipient, channel) so deliveries to one
// inbox run in order even when asynq hands tasks to us concurrently.
type ProcessDispatchHandler struct {
	dispatch service.DispatchService
	pool     *service.WorkerPool
}

func NewProcessDispatchHandler(dispatch service.DispatchService, pool *service.WorkerPool) *ProcessDispatchHandler {
	return &ProcessDispatchHandler{dispatch: dispatch, pool: pool}
}

func (h *ProcessDispatchHandler) Handle(ctx context.Context, task *asynq.Task) error {
	var payload shared.DispatchTaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal dispatch payload: %w", err)
	}

	id, err := uuid.Parse(payload.NotificationID)
	if err != nil {
		return fmt.Errorf("parse notification id %q: %w", payload.NotificationID, err)
	}

	record, err := h.dispatch.GetStatus(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrHistoryNotFound) {
			log.Warn().
				Str("notificationID", payload.NotificationID).
				Msg("[ProcessDispatch] Task references missing record, dropping")
			return nil
		}
		return err
	}

	key := ratelimit.Key(string(record.Channel), record.Recipient)
	return h.pool.Submit(ctx, id, key)
}
