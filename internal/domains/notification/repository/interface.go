package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"notification-backend/internal/domains/notification/model"
)

// HistoryRepository owns every read and write of notification history rows.
// Status updates go through UpdateStatus, which enforces the transition
// rules and the optimistic concurrency check.
type HistoryRepository interface {
	Create(ctx context.Context, record *model.HistoryRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.HistoryRecord, error)
	List(ctx context.Context, filter *model.HistoryFilter) ([]*model.HistoryRecord, int64, error)

	// UpdateStatus transitions the record identified by id from
	// expectedStatus to update.Status, applying the side fields in the same
	// statement. Returns model.ErrConcurrentUpdate when the row moved on.
	UpdateStatus(ctx context.Context, id uuid.UUID, expectedStatus model.Status, update *StatusUpdate) error

	// ListRetryable returns FAILED records with retry budget remaining whose
	// last attempt is older than the backoff horizon.
	ListRetryable(ctx context.Context, olderThan time.Time, limit int) ([]*model.HistoryRecord, error)

	// CountInWindow counts non-cancelled records for a recipient since the
	// window start, optionally narrowed to one channel.
	CountInWindow(ctx context.Context, recipient string, channel *model.Channel, since time.Time) (int64, error)

	MarkRead(ctx context.Context, id uuid.UUID, recipient string, at time.Time) error
	MarkAllRead(ctx context.Context, recipient string, at time.Time) (int64, error)
	CountUnread(ctx context.Context, recipient string) (int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	// Analytics aggregations.
	DeliveryStats(ctx context.Context, channel *model.Channel, from, to time.Time) (*model.DeliveryRateStats, error)
	EngagementStats(ctx context.Context, from, to time.Time) (*model.EngagementStats, error)
	ChannelPerformance(ctx context.Context, from, to time.Time) ([]*model.ChannelPerformance, error)
	FailureBreakdown(ctx context.Context, from, to time.Time, limit int) ([]*model.FailureBreakdown, error)
}

// StatusUpdate is the mutable slice of a history row applied atomically
// with a status transition.
type StatusUpdate struct {
	Status            model.Status
	CancelReason      *string
	ErrorMessage      *string
	ExternalMessageID *string
	IncrementRetry    bool
	ExhaustRetries    bool // permanent failure, no re-queue
	LastAttemptAt     *time.Time
	DeliveredAt       *time.Time
	UpdatedBy         string
}

// TemplateRepository manages versioned templates. At most one version per
// name is active.
type TemplateRepository interface {
	Create(ctx context.Context, template *model.Template) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Template, error)
	GetActiveByName(ctx context.Context, name string) (*model.Template, error)
	List(ctx context.Context, channel *model.Channel, category *model.TemplateCategory, page, limit int) ([]*model.Template, int64, error)
	ListVersions(ctx context.Context, name string) ([]*model.Template, error)

	// CreateNewVersion inserts next and retires the current active version
	// of the same name in one transaction.
	CreateNewVersion(ctx context.Context, next *model.Template) error

	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	SoftDelete(ctx context.Context, name string) error
	ExistsByName(ctx context.Context, name string) (bool, error)
}

// PreferenceRepository stores one preference row per user.
type PreferenceRepository interface {
	GetByUserID(ctx context.Context, userID string) (*model.UserPreference, error)
	Upsert(ctx context.Context, pref *model.UserPreference) error
	Delete(ctx context.Context, userID string) error
}

// DeadLetterRepository persists undeliverable ingest messages.
type DeadLetterRepository interface {
	Create(ctx context.Context, letter *model.DeadLetter) error
	List(ctx context.Context, topic *string, page, limit int) ([]*model.DeadLetter, int64, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.DeadLetter, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
