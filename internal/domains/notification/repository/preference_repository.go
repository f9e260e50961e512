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

type preferenceRepository struct {
	pool *pgxpool.Pool
}

func NewPreferenceRepository(pool *pgxpool.Pool) PreferenceRepository {
	return &preferenceRepository{pool: pool}
}

func (r *preferenceRepository) GetByUserID(ctx context.Context, userID string) (*model.UserPreference, error) {
	query := `
		SELECT id, user_id, notifications_enabled, preferred_channel,
		       enabled_channels, enabled_categories, email_address, phone_number,
		       quiet_hours_enabled, quiet_start, quiet_end, time_zone,
		       frequency_limit_per_hour, frequency_limit_per_day, language,
		       created_at, updated_at
		FROM user_notification_preferences
		WHERE user_id = $1`

	pref := &model.UserPreference{}
	var channels []string
	var categories []string

	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&pref.ID, &pref.UserID, &pref.NotificationsEnabled, &pref.PreferredChannel,
		&channels, &categories, &pref.EmailAddress, &pref.PhoneNumber,
		&pref.QuietHoursEnabled, &pref.QuietStart, &pref.QuietEnd, &pref.TimeZone,
		&pref.FrequencyLimitPerHour, &pref.FrequencyLimitPerDay, &pref.Language,
		&pref.CreatedAt, &pref.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrPreferenceNotFound
		}
		return nil, fmt.Errorf("get user preference: %w", err)
	}

	pref.EnabledChannels = make([]model.Channel, len(channels))
	for i, c := range channels {
		pref.EnabledChannels[i] = model.Channel(c)
	}
	pref.EnabledCategories = make([]model.TemplateCategory, len(categories))
	for i, c := range categories {
		pref.EnabledCategories[i] = model.TemplateCategory(c)
	}
	return pref, nil
}

func (r *preferenceRepository) Upsert(ctx context.Context, pref *model.UserPreference) error {
	query := `
		INSERT INTO user_notification_preferences (
			id, user_id, notifications_enabled, preferred_channel,
			enabled_channels, enabled_categories, email_address, phone_number,
			quiet_hours_enabled, quiet_start, quiet_end, time_zone,
			frequency_limit_per_hour, frequency_limit_per_day, language,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $16)
		ON CONFLICT (user_id) DO UPDATE SET
			notifications_enabled = EXCLUDED.notifications_enabled,
			preferred_channel = EXCLUDED.preferred_channel,
			enabled_channels = EXCLUDED.enabled_channels,
			enabled_categories = EXCLUDED.enabled_categories,
			email_address = EXCLUDED.email_address,
			phone_number = EXCLUDED.phone_number,
			quiet_hours_enabled = EXCLUDED.quiet_hours_enabled,
			quiet_start = EXCLUDED.quiet_start,
			quiet_end = EXCLUDED.quiet_end,
			time_zone = EXCLUDED.time_zone,
			frequency_limit_per_hour = EXCLUDED.frequency_limit_per_hour,
			frequency_limit_per_day = EXCLUDED.frequency_limit_per_day,
			language = EXCLUDED.language,
			updated_at = NOW()`

	if pref.ID == uuid.Nil {
		pref.ID = uuid.New()
	}
	now := time.Now().UTC()

	channels := make([]string, len(pref.EnabledChannels))
	for i, c := range pref.EnabledChannels {
		channels[i] = string(c)
	}
	categories := make([]string, len(pref.EnabledCategories))
	for i, c := range pref.EnabledCategories {
		categories[i] = string(c)
	}

	_, err := r.pool.Exec(ctx, query,
		pref.ID, pref.UserID, pref.NotificationsEnabled, pref.PreferredChannel,
		channels, categories, pref.EmailAddress, pref.PhoneNumber,
		pref.QuietHoursEnabled, pref.QuietStart, pref.QuietEnd, pref.TimeZone,
		pref.FrequencyLimitPerHour, pref.FrequencyLimitPerDay, pref.Language,
		now,
	)
	if err != nil {
		return fmt.Errorf("upsert user preference: %w", err)
	}
	return nil
}

func (r *preferenceRepository) Delete(ctx context.Context, userID string) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM user_notification_preferences WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("delete user preference: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrPreferenceNotFound
	}
	return nil
}
