package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"notification-backend/internal/domains/notification/model"
)

type historyRepository struct {
	pool *pgxpool.Pool
}

func NewHistoryRepository(pool *pgxpool.Pool) HistoryRepository {
	return &historyRepository{pool: pool}
}

const historyColumns = `
	id, correlation_id, channel, recipient, subject, content, html_content,
	template_name, priority, status, cancel_reason, retry_count,
	max_retry_attempts, error_message, external_message_id,
	reference_id, reference_type,
	created_at, last_attempt_at, delivered_at, read_at, updated_at, updated_by`

func (r *historyRepository) Create(ctx context.Context, record *model.HistoryRecord) error {
	query := `
		INSERT INTO notification_history (
			id, correlation_id, channel, recipient, subject, content, html_content,
			template_name, priority, status, cancel_reason, retry_count,
			max_retry_attempts, error_message, reference_id, reference_type,
			created_at, updated_at, updated_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $17, $18)
		ON CONFLICT (id) DO NOTHING`

	now := time.Now().UTC()
	record.CreatedAt = now
	record.UpdatedAt = now

	tag, err := r.pool.Exec(ctx, query,
		record.ID, record.CorrelationID, record.Channel, record.Recipient,
		record.Subject, record.Content, record.HTMLContent, record.TemplateName,
		record.Priority, record.Status, record.CancelReason, record.RetryCount,
		record.MaxRetryAttempts, record.ErrorMessage,
		record.ReferenceID, record.ReferenceType, now, record.UpdatedBy,
	)
	if err != nil {
		return fmt.Errorf("insert notification history: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Already recorded: the id is the idempotency key.
		return nil
	}
	return nil
}

func (r *historyRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.HistoryRecord, error) {
	query := `SELECT ` + historyColumns + ` FROM notification_history WHERE id = $1`

	record, err := r.scanRow(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrHistoryNotFound
		}
		return nil, fmt.Errorf("get notification history: %w", err)
	}
	return record, nil
}

func (r *historyRepository) List(ctx context.Context, filter *model.HistoryFilter) ([]*model.HistoryRecord, int64, error) {
	filter.Normalize()

	where := []string{"1=1"}
	args := []interface{}{}
	idx := 1

	add := func(clause string, value interface{}) {
		where = append(where, fmt.Sprintf(clause, idx))
		args = append(args, value)
		idx++
	}

	if filter.Recipient != "" {
		add("recipient = $%d", filter.Recipient)
	}
	if filter.Channel != nil {
		add("channel = $%d", *filter.Channel)
	}
	if filter.Status != nil {
		add("status = $%d", *filter.Status)
	}
	if filter.TemplateName != nil {
		add("template_name = $%d", *filter.TemplateName)
	}
	if filter.CorrelationID != nil {
		add("correlation_id = $%d", *filter.CorrelationID)
	}
	if filter.From != nil {
		add("created_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("created_at < $%d", *filter.To)
	}

	cond := strings.Join(where, " AND ")

	var total int64
	countQuery := `SELECT COUNT(*) FROM notification_history WHERE ` + cond
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count notification history: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM notification_history WHERE %s
		ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		historyColumns, cond, idx, idx+1)
	args = append(args, filter.Limit, filter.Offset())

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list notification history: %w", err)
	}
	defer rows.Close()

	records := make([]*model.HistoryRecord, 0, filter.Limit)
	for rows.Next() {
		record, err := r.scanRow(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan notification history: %w", err)
		}
		records = append(records, record)
	}
	return records, total, rows.Err()
}

// UpdateStatus performs the guarded transition in one statement. The WHERE
// clause carries the expected status, so a lost race surfaces as zero rows
// affected rather than a silent overwrite.
func (r *historyRepository) UpdateStatus(ctx context.Context, id uuid.UUID, expectedStatus model.Status, update *StatusUpdate) error {
	if !model.CanTransition(expectedStatus, update.Status) {
		return model.ErrInvalidTransition
	}

	query := `
		UPDATE notification_history SET
			status = $3,
			cancel_reason = COALESCE($4, cancel_reason),
			error_message = COALESCE($5, error_message),
			external_message_id = COALESCE($6, external_message_id),
			retry_count = CASE WHEN $11 THEN max_retry_attempts
				ELSE retry_count + $7 END,
			last_attempt_at = COALESCE($8, last_attempt_at),
			delivered_at = COALESCE($9, delivered_at),
			updated_at = NOW(),
			updated_by = $10
		WHERE id = $1 AND status = $2`

	retryInc := 0
	if update.IncrementRetry {
		retryInc = 1
	}

	tag, err := r.pool.Exec(ctx, query,
		id, expectedStatus, update.Status,
		update.CancelReason, update.ErrorMessage, update.ExternalMessageID,
		retryInc, update.LastAttemptAt, update.DeliveredAt, update.UpdatedBy,
		update.ExhaustRetries,
	)
	if err != nil {
		return fmt.Errorf("update notification status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM notification_history WHERE id = $1)`, id,
		).Scan(&exists); err != nil {
			return fmt.Errorf("check notification exists: %w", err)
		}
		if !exists {
			return model.ErrHistoryNotFound
		}
		return model.ErrConcurrentUpdate
	}
	return nil
}

func (r *historyRepository) ListRetryable(ctx context.Context, olderThan time.Time, limit int) ([]*model.HistoryRecord, error) {
	query := `SELECT ` + historyColumns + `
		FROM notification_history
		WHERE status = $1
		  AND retry_count < max_retry_attempts
		  AND (last_attempt_at IS NULL OR last_attempt_at < $2)
		ORDER BY last_attempt_at ASC NULLS FIRST
		LIMIT $3`

	rows, err := r.pool.Query(ctx, query, model.StatusFailed, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("list retryable notifications: %w", err)
	}
	defer rows.Close()

	var records []*model.HistoryRecord
	for rows.Next() {
		record, err := r.scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan retryable notification: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (r *historyRepository) CountInWindow(ctx context.Context, recipient string, channel *model.Channel, since time.Time) (int64, error) {
	query := `SELECT COUNT(*) FROM notification_history
		WHERE recipient = $1 AND created_at >= $2 AND status != $3`
	args := []interface{}{recipient, since, model.StatusCancelled}

	if channel != nil {
		query += ` AND channel = $4`
		args = append(args, *channel)
	}

	var count int64
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count notifications in window: %w", err)
	}
	return count, nil
}

func (r *historyRepository) MarkRead(ctx context.Context, id uuid.UUID, recipient string, at time.Time) error {
	query := `
		UPDATE notification_history
		SET status = $3, read_at = $4, updated_at = NOW()
		WHERE id = $1 AND recipient = $2 AND status = $5`

	tag, err := r.pool.Exec(ctx, query, id, recipient, model.StatusRead, at, model.StatusDelivered)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		record, err := r.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if record.Recipient != recipient {
			return model.ErrHistoryNotFound
		}
		if record.Status == model.StatusRead {
			return nil
		}
		return model.ErrInvalidTransition
	}
	return nil
}

// MarkAllRead flips every DELIVERED notification of a recipient to READ in
// one statement and reports how many rows moved.
func (r *historyRepository) MarkAllRead(ctx context.Context, recipient string, at time.Time) (int64, error) {
	query := `
		UPDATE notification_history
		SET status = $2, read_at = $3, updated_at = NOW()
		WHERE recipient = $1 AND status = $4`

	tag, err := r.pool.Exec(ctx, query, recipient, model.StatusRead, at, model.StatusDelivered)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountUnread counts delivered-but-unread notifications for a recipient.
func (r *historyRepository) CountUnread(ctx context.Context, recipient string) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM notification_history WHERE recipient = $1 AND status = $2`,
		recipient, model.StatusDelivered,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

func (r *historyRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM notification_history WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old notification history: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ================================================
// ANALYTICS
// ================================================

func (r *historyRepository) DeliveryStats(ctx context.Context, channel *model.Channel, from, to time.Time) (*model.DeliveryRateStats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'SENT'),
			COUNT(*) FILTER (WHERE status IN ('DELIVERED', 'READ')),
			COUNT(*) FILTER (WHERE status = 'FAILED'),
			COUNT(*) FILTER (WHERE status = 'CANCELLED')
		FROM notification_history
		WHERE created_at >= $1 AND created_at < $2`
	args := []interface{}{from, to}

	if channel != nil {
		query += ` AND channel = $3`
		args = append(args, *channel)
	}

	stats := &model.DeliveryRateStats{Channel: channel, From: from, To: to}
	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&stats.Total, &stats.Sent, &stats.Delivered, &stats.Failed, &stats.Cancelled)
	if err != nil {
		return nil, fmt.Errorf("delivery stats: %w", err)
	}

	// Rate is confirmed deliveries over attempted sends. Cancelled records
	// never reached a provider, so they stay out of the denominator.
	attempted := stats.Total - stats.Cancelled
	if attempted > 0 {
		stats.DeliveryRate = float64(stats.Delivered) / float64(attempted) * 100
	}
	return stats, nil
}

func (r *historyRepository) EngagementStats(ctx context.Context, from, to time.Time) (*model.EngagementStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status != 'CANCELLED'),
			COUNT(*) FILTER (WHERE status IN ('DELIVERED', 'READ')),
			COUNT(*) FILTER (WHERE status = 'READ')
		FROM notification_history
		WHERE created_at >= $1 AND created_at < $2`

	var attempted, delivered, read int64
	err := r.pool.QueryRow(ctx, query, from, to).Scan(&attempted, &delivered, &read)
	if err != nil {
		return nil, fmt.Errorf("engagement stats: %w", err)
	}

	stats := &model.EngagementStats{From: from, To: to, Delivered: delivered, Read: read}
	if attempted > 0 {
		stats.DeliveryRate = float64(delivered) / float64(attempted) * 100
	}
	if delivered > 0 {
		stats.ReadRate = float64(read) / float64(delivered) * 100
	}
	stats.EngagementRate = 0.3*stats.DeliveryRate + 0.7*stats.ReadRate
	return stats, nil
}

func (r *historyRepository) ChannelPerformance(ctx context.Context, from, to time.Time) ([]*model.ChannelPerformance, error) {
	query := `
		SELECT
			channel,
			COUNT(*) FILTER (WHERE status != 'CANCELLED'),
			COUNT(*) FILTER (WHERE status IN ('DELIVERED', 'READ')),
			COUNT(*) FILTER (WHERE status = 'FAILED'),
			COALESCE(AVG(EXTRACT(EPOCH FROM (last_attempt_at - created_at)) * 1000)
				FILTER (WHERE last_attempt_at IS NOT NULL), 0)
		FROM notification_history
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY channel`

	rows, err := r.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("channel performance: %w", err)
	}
	defer rows.Close()

	var results []*model.ChannelPerformance
	for rows.Next() {
		perf := &model.ChannelPerformance{}
		if err := rows.Scan(&perf.Channel, &perf.Total, &perf.Delivered,
			&perf.Failed, &perf.AvgLatencyMs); err != nil {
			return nil, fmt.Errorf("scan channel performance: %w", err)
		}
		if perf.Total > 0 {
			perf.DeliveryRate = float64(perf.Delivered) / float64(perf.Total) * 100
		}
		results = append(results, perf)
	}
	return results, rows.Err()
}

func (r *historyRepository) FailureBreakdown(ctx context.Context, from, to time.Time, limit int) ([]*model.FailureBreakdown, error) {
	query := `
		SELECT channel, COALESCE(error_message, 'unknown'), COUNT(*)
		FROM notification_history
		WHERE status = 'FAILED' AND created_at >= $1 AND created_at < $2
		GROUP BY channel, error_message
		ORDER BY COUNT(*) DESC
		LIMIT $3`

	rows, err := r.pool.Query(ctx, query, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("failure breakdown: %w", err)
	}
	defer rows.Close()

	var results []*model.FailureBreakdown
	for rows.Next() {
		fb := &model.FailureBreakdown{}
		if err := rows.Scan(&fb.Channel, &fb.ErrorMessage, &fb.Count); err != nil {
			return nil, fmt.Errorf("scan failure breakdown: %w", err)
		}
		results = append(results, fb)
	}
	return results, rows.Err()
}

func (r *historyRepository) scanRow(row pgx.Row) (*model.HistoryRecord, error) {
	record := &model.HistoryRecord{}
	err := row.Scan(
		&record.ID, &record.CorrelationID, &record.Channel, &record.Recipient,
		&record.Subject, &record.Content, &record.HTMLContent, &record.TemplateName,
		&record.Priority, &record.Status, &record.CancelReason, &record.RetryCount,
		&record.MaxRetryAttempts, &record.ErrorMessage, &record.ExternalMessageID,
		&record.ReferenceID, &record.ReferenceType,
		&record.CreatedAt, &record.LastAttemptAt, &record.DeliveredAt,
		&record.ReadAt, &record.UpdatedAt, &record.UpdatedBy,
	)
	if err != nil {
		return nil, err
	}
	return record, nil
}
