package job

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"notification-backend/internal/config"
	"notification-backend/internal/domains/notification/repository"
	"notification-backend/internal/ratelimit"
)

// CleanupHandler prunes history and dead letters past retention.
type CleanupHandler struct {
	history     repository.HistoryRepository
	deadLetters repository.DeadLetterRepository
	retention   config.RetentionConfig
}

func NewCleanupHandler(history repository.HistoryRepository, deadLetters repository.DeadLetterRepository, retention config.RetentionConfig) *CleanupHandler {
	return &CleanupHandler{history: history, deadLetters: deadLetters, retention: retention}
}

func (h *CleanupHandler) Handle(ctx context.Context, task *asynq.Task) error {
	historyCutoff := time.Now().AddDate(0, 0, -h.retention.AnalyticsDays)
	removed, err := h.history.DeleteOlderThan(ctx, historyCutoff)
	if err != nil {
		return err
	}

	dlqCutoff := time.Now().AddDate(0, 0, -h.retention.AuditDays)
	removedLetters, err := h.deadLetters.DeleteOlderThan(ctx, dlqCutoff)
	if err != nil {
		return err
	}

	log.Info().
		Int64("history", removed).
		Int64("deadLetters", removedLetters).
		Msg("[Cleanup] Retention pass complete")
	return nil
}

// JanitorHandler sweeps expired rate-limit windows.
type JanitorHandler struct {
	limiter *ratelimit.Limiter
}

func NewJanitorHandler(limiter *ratelimit.Limiter) *JanitorHandler {
	return &JanitorHandler{limiter: limiter}
}

func (h *JanitorHandler) Handle(ctx context.Context, task *asynq.Task) error {
	h.limiter.Sweep()
	return nil
}
