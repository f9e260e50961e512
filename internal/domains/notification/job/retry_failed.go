package job

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"notification-backend/internal/domains/notification/service"
	"notification-backend/internal/shared"
)

// RetryFailedHandler runs the periodic sweep over FAILED records.
type RetryFailedHandler struct {
	dispatch service.DispatchService
}

func NewRetryFailedHandler(dispatch service.DispatchService) *RetryFailedHandler {
	return &RetryFailedHandler{dispatch: dispatch}
}

func (h *RetryFailedHandler) Handle(ctx context.Context, task *asynq.Task) error {
	var payload shared.RetryFailedPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal retry payload: %w", err)
	}

	_, err := h.dispatch.RetryFailed(ctx, payload.BatchSize)
	return err
}
