package shared

// Asynq task type names. Namespaced by concern so the worker mux can route
// them to the owning domain handler.
const (
	TypeProcessDispatch   = "notification:process_dispatch"
	TypeRetryFailed       = "notification:retry_failed"
	TypeCleanupOldHistory = "notification:cleanup_old_history"
	TypeRateWindowJanitor = "notification:rate_window_janitor"
)

// Asynq queue names, in descending processing priority.
const (
	QueueUrgent  = "urgent"
	QueueDefault = "default"
	QueueLow     = "low"
)

// DispatchTaskPayload carries a queued dispatch through asynq. The request
// itself lives in the history store; the task only references it.
type DispatchTaskPayload struct {
	NotificationID string `json:"notificationId"`
	CorrelationID  string `json:"correlationId"`
}

// RetryFailedPayload triggers a sweep over FAILED records eligible for retry.
type RetryFailedPayload struct {
	BatchSize int `json:"batchSize"`
}
