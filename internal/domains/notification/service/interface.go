package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"notification-backend/internal/domains/notification/model"
)

// ================================================
// SERVICE INTERFACES
// ================================================

// DispatchService runs the delivery pipeline for a single notification and
// exposes the read-side of history.
type DispatchService interface {
	// Enqueue validates the request, writes the QUEUED history record and
	// hands the id to the queue. Immediate requests go to the worker pool;
	// scheduled ones are delayed until their due time.
	Enqueue(ctx context.Context, req *model.SendRequest, enqueuedBy string) (*model.HistoryRecord, error)

	// EnqueueBulk fans one message out to many recipients and reports one
	// outcome per recipient, including those the rate limiter refused.
	EnqueueBulk(ctx context.Context, req *model.BulkSendRequest, enqueuedBy string) ([]*model.BulkOutcome, error)

	// Dispatch executes the pipeline for an already-queued notification.
	// Called from the worker pool and the retry scheduler.
	Dispatch(ctx context.Context, id uuid.UUID) error

	GetStatus(ctx context.Context, id uuid.UUID) (*model.HistoryRecord, error)
	ListHistory(ctx context.Context, filter *model.HistoryFilter) ([]*model.HistoryRecord, int64, error)
	MarkRead(ctx context.Context, id uuid.UUID, recipient string) error
	MarkAllRead(ctx context.Context, recipient string) (int64, error)
	UnreadCount(ctx context.Context, recipient string) (int64, error)
	MarkDelivered(ctx context.Context, id uuid.UUID) error
	Cancel(ctx context.Context, id uuid.UUID, cancelledBy string) error

	// RetryFailed re-queues FAILED records with retry budget left. Returns
	// how many were re-queued.
	RetryFailed(ctx context.Context, batchSize int) (int, error)
}

// TemplateService manages versioned templates and renders them.
type TemplateService interface {
	Create(ctx context.Context, req *model.CreateTemplateRequest, createdBy *uuid.UUID) (*model.Template, error)
	Update(ctx context.Context, name string, req *model.UpdateTemplateRequest, updatedBy *uuid.UUID) (*model.Template, error)
	GetByName(ctx context.Context, name string) (*model.Template, error)
	List(ctx context.Context, channel *model.Channel, category *model.TemplateCategory, page, limit int) ([]*model.Template, int64, error)
	ListVersions(ctx context.Context, name string) ([]*model.Template, error)
	Delete(ctx context.Context, name string) error

	// Render resolves the active version of name and substitutes variables
	// into its subject and content.
	Render(ctx context.Context, name string, variables map[string]interface{}) (*RenderedMessage, error)
}

// PreferenceService answers the "should this user get this message now"
// question and manages the underlying rows.
type PreferenceService interface {
	Get(ctx context.Context, userID string) (*model.UserPreference, error)
	Update(ctx context.Context, userID string, req *model.UpdatePreferenceRequest) (*model.UserPreference, error)
	Reset(ctx context.Context, userID string) (*model.UserPreference, error)

	// Evaluate applies the preference gate: enabled flag, channel and
	// category sets, and quiet hours. A Denied decision carries the cancel
	// reason to record on the history row.
	Evaluate(ctx context.Context, userID string, channel model.Channel, category model.TemplateCategory, priority model.Priority, at time.Time) Decision
}

// AnalyticsService aggregates delivery outcomes from history.
type AnalyticsService interface {
	DeliveryRate(ctx context.Context, channel *model.Channel, from, to time.Time) (*model.DeliveryRateStats, error)
	Engagement(ctx context.Context, from, to time.Time) (*model.EngagementStats, error)
	ChannelPerformance(ctx context.Context, from, to time.Time) ([]*model.ChannelPerformance, error)
	FailureBreakdown(ctx context.Context, from, to time.Time, limit int) ([]*model.FailureBreakdown, error)
}

// DeadLetterService records and reviews undeliverable ingest messages.
type DeadLetterService interface {
	Record(ctx context.Context, letter *model.DeadLetter) error
	List(ctx context.Context, topic *string, page, limit int) ([]*model.DeadLetter, int64, error)
	Get(ctx context.Context, id uuid.UUID) (*model.DeadLetter, error)
	Discard(ctx context.Context, id uuid.UUID) error
}

// ================================================
// DECISIONS AND RENDER OUTPUT
// ================================================

// Decision is the outcome of the preference gate.
type Decision struct {
	Allowed bool
	Reason  string // cancel reason when denied
}

var decisionAllowed = Decision{Allowed: true}

// RenderedMessage is the output of template rendering.
type RenderedMessage struct {
	Subject      string
	Content      string
	HTMLContent  *string
	Channel      model.Channel
	Category     model.TemplateCategory
	Priority     model.Priority
	RatePerHour  *int
	TemplateName string
}

// ================================================
// CHANNEL ADAPTERS
// ================================================

// ChannelAdapter delivers one message over a single channel. Implementations
// classify failures: wrap with model.Permanent for errors no retry can fix.
type ChannelAdapter interface {
	Channel() model.Channel
	Send(ctx context.Context, req *model.DispatchRequest) (externalID string, err error)
}

// SessionGate answers whether a recipient has a live in-app session. Backed
// by the realtime presence store.
type SessionGate interface {
	Online(ctx context.Context, userID string) bool
}

// QueueClient enqueues dispatch work for the worker process.
type QueueClient interface {
	EnqueueDispatch(ctx context.Context, id uuid.UUID, correlationID string, priority model.Priority) error
	EnqueueDispatchAt(ctx context.Context, id uuid.UUID, correlationID string, priority model.Priority, at time.Time) error
}
