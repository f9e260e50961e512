package queue

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"notification-backend/internal/shared"
)

// RegisterSchedulers wires the periodic maintenance tasks. Cron expressions
// are in UTC.
func RegisterSchedulers(scheduler *asynq.Scheduler) error {
	retryPayload, err := json.Marshal(shared.RetryFailedPayload{BatchSize: 200})
	if err != nil {
		return fmt.Errorf("marshal retry payload: %w", err)
	}

	entries := []struct {
		spec string
		task *asynq.Task
		opts []asynq.Option
	}{
		// Re-queue FAILED notifications with retry budget left.
		{"* * * * *", asynq.NewTask(shared.TypeRetryFailed, retryPayload),
			[]asynq.Option{asynq.Queue(shared.QueueDefault), asynq.MaxRetry(0)}},

		// Drop rate-limit windows that rolled over.
		{"*/10 * * * *", asynq.NewTask(shared.TypeRateWindowJanitor, nil),
			[]asynq.Option{asynq.Queue(shared.QueueLow), asynq.MaxRetry(0)}},

		// Prune history and dead letters past retention, nightly.
		{"0 3 * * *", asynq.NewTask(shared.TypeCleanupOldHistory, nil),
			[]asynq.Option{asynq.Queue(shared.QueueLow), asynq.MaxRetry(1)}},
	}

	for _, entry := range entries {
		entryID, err := scheduler.Register(entry.spec, entry.task, entry.opts...)
		if err != nil {
			return fmt.Errorf("register %s: %w", entry.task.Type(), err)
		}
		log.Info().
			Str("entryID", entryID).
			Str("task", entry.task.Type()).
			Str("spec", entry.spec).
			Msg("[Scheduler] Registered periodic task")
	}
	return nil
}
