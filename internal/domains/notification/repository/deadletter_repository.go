package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"notification-backend/internal/domains/notification/model"
)

type deadLetterRepository struct {
	pool *pgxpool.Pool
}

func NewDeadLetterRepository(pool *pgxpool.Pool) DeadLetterRepository {
	return &deadLetterRepository{pool: pool}
}

func (r *deadLetterRepository) Create(ctx context.Context, letter *model.DeadLetter) error {
	query := `
		INSERT INTO dead_letters (
			id, topic, event_type, correlation_id, payload,
			error_message, is_critical, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	if letter.ID == uuid.Nil {
		letter.ID = uuid.New()
	}
	letter.CreatedAt = time.Now().UTC()

	_, err := r.pool.Exec(ctx, query,
		letter.ID, letter.Topic, letter.EventType, letter.CorrelationID,
		letter.Payload, letter.ErrorMessage, letter.Critical, letter.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert dead letter: %w", err)
	}
	return nil
}

func (r *deadLetterRepository) List(ctx context.Context, topic *string, page, limit int) ([]*model.DeadLetter, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	cond := `1=1`
	args := []interface{}{}
	idx := 1
	if topic != nil {
		cond = fmt.Sprintf("topic = $%d", idx)
		args = append(args, *topic)
		idx++
	}

	var total int64
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM dead_letters WHERE `+cond, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count dead letters: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT id, topic, event_type, correlation_id, payload,
		       error_message, is_critical, created_at
		FROM dead_letters WHERE %s
		ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, cond, idx, idx+1)
	args = append(args, limit, (page-1)*limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list dead letters: %w", err)
	}
	defer rows.Close()

	var letters []*model.DeadLetter
	for rows.Next() {
		letter := &model.DeadLetter{}
		if err := rows.Scan(&letter.ID, &letter.Topic, &letter.EventType,
			&letter.CorrelationID, &letter.Payload, &letter.ErrorMessage,
			&letter.Critical, &letter.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan dead letter: %w", err)
		}
		letters = append(letters, letter)
	}
	return letters, total, rows.Err()
}

func (r *deadLetterRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.DeadLetter, error) {
	query := `
		SELECT id, topic, event_type, correlation_id, payload,
		       error_message, is_critical, created_at
		FROM dead_letters WHERE id = $1`

	letter := &model.DeadLetter{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&letter.ID, &letter.Topic, &letter.EventType, &letter.CorrelationID,
		&letter.Payload, &letter.ErrorMessage, &letter.Critical, &letter.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrHistoryNotFound
		}
		return nil, fmt.Errorf("get dead letter: %w", err)
	}
	return letter, nil
}

func (r *deadLetterRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM dead_letters WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete dead letter: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrHistoryNotFound
	}
	return nil
}

func (r *deadLetterRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM dead_letters WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old dead letters: %w", err)
	}
	return tag.RowsAffected(), nil
}
