package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ================================================
// CHANNELS, PRIORITIES, CATEGORIES
// ================================================

type Channel string

const (
	ChannelEmail Channel = "EMAIL"
	ChannelSMS   Channel = "SMS"
	ChannelPush  Channel = "PUSH"
	ChannelInApp Channel = "IN_APP"
)

var AllChannels = []Channel{ChannelEmail, ChannelSMS, ChannelPush, ChannelInApp}

func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelPush, ChannelInApp:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// Rank orders priorities for tie-breaks and the quiet-hours bypass check.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

func (p Priority) Valid() bool {
	return p.Rank() > 0
}

type TemplateCategory string

const (
	CategoryTrading   TemplateCategory = "TRADING"
	CategoryAccount   TemplateCategory = "ACCOUNT"
	CategorySecurity  TemplateCategory = "SECURITY"
	CategoryMarketing TemplateCategory = "MARKETING"
	CategorySystem    TemplateCategory = "SYSTEM"
)

var AllCategories = []TemplateCategory{
	CategoryTrading, CategoryAccount, CategorySecurity, CategoryMarketing, CategorySystem,
}

// ================================================
// DISPATCH REQUEST
// ================================================

// DispatchRequest is the immutable work item describing one notification.
// The notification id doubles as the idempotency key: re-dispatching an id
// already in history returns the existing record unchanged.
type DispatchRequest struct {
	NotificationID    uuid.UUID              `json:"notificationId"`
	Channel           Channel                `json:"channel"`
	Recipient         string                 `json:"recipient"`
	EmailAddress      *string                `json:"emailAddress,omitempty"`
	PhoneNumber       *string                `json:"phoneNumber,omitempty"`
	DeviceToken       *string                `json:"deviceToken,omitempty"`
	Subject           string                 `json:"subject,omitempty"`
	Content           string                 `json:"content,omitempty"`
	HTMLContent       *string                `json:"htmlContent,omitempty"`
	TemplateName      *string                `json:"templateName,omitempty"`
	TemplateVariables map[string]interface{} `json:"templateVariables,omitempty"`
	Priority          Priority               `json:"priority"`
	ScheduledAt       *time.Time             `json:"scheduledAt,omitempty"`
	ReferenceID       *string                `json:"referenceId,omitempty"`
	ReferenceType     *string                `json:"referenceType,omitempty"`
	MaxRetryAttempts  int                    `json:"maxRetryAttempts"`
	CorrelationID     string                 `json:"correlationId,omitempty"`
}

// Address returns the channel-appropriate delivery address, falling back to
// the recipient key when no explicit address was supplied.
func (r DispatchRequest) Address() string {
	switch r.Channel {
	case ChannelEmail:
		if r.EmailAddress != nil && *r.EmailAddress != "" {
			return *r.EmailAddress
		}
	case ChannelSMS:
		if r.PhoneNumber != nil && *r.PhoneNumber != "" {
			return *r.PhoneNumber
		}
	case ChannelPush:
		if r.DeviceToken != nil && *r.DeviceToken != "" {
			return *r.DeviceToken
		}
	}
	return r.Recipient
}

// ================================================
// HISTORY RECORD
// ================================================

// HistoryRecord is the durable record of a single notification's lifecycle,
// exclusively owned by the history repository.
type HistoryRecord struct {
	ID                uuid.UUID  `json:"id"`
	CorrelationID     string     `json:"correlationId"`
	Channel           Channel    `json:"channel"`
	Recipient         string     `json:"recipient"`
	Subject           string     `json:"subject"`
	Content           string     `json:"content"`
	HTMLContent       *string    `json:"htmlContent,omitempty"`
	TemplateName      *string    `json:"templateName,omitempty"`
	Priority          Priority   `json:"priority"`
	Status            Status     `json:"status"`
	CancelReason      *string    `json:"cancelReason,omitempty"`
	RetryCount        int        `json:"retryCount"`
	MaxRetryAttempts  int        `json:"maxRetryAttempts"`
	ErrorMessage      *string    `json:"errorMessage,omitempty"`
	ExternalMessageID *string    `json:"externalMessageId,omitempty"`
	ReferenceID       *string    `json:"referenceId,omitempty"`
	ReferenceType     *string    `json:"referenceType,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	LastAttemptAt     *time.Time `json:"lastAttemptAt,omitempty"`
	DeliveredAt       *time.Time `json:"deliveredAt,omitempty"`
	ReadAt            *time.Time `json:"readAt,omitempty"`
	UpdatedAt         time.Time  `json:"updatedAt"`
	UpdatedBy         string     `json:"updatedBy,omitempty"`
}

// CanRetry reports whether the retry scheduler may re-queue this record.
func (h *HistoryRecord) CanRetry() bool {
	return h.Status == StatusFailed && h.RetryCount < h.MaxRetryAttempts
}

// Cancel reasons recorded on CANCELLED history records.
const (
	CancelReasonPreferences = "preferences"
	CancelReasonQuietHours  = "quiet-hours"
	CancelReasonRateLimit   = "rate-limit"
	CancelReasonNoSession   = "no-session"
	CancelReasonCaller      = "caller"
)

// DefaultMaxRetryAttempts applies when the request leaves the budget unset.
const DefaultMaxRetryAttempts = 3

// ================================================
// TEMPLATE
// ================================================

// Template is a named, versioned rendering spec. Exactly one version per
// name is active at any time; createNewVersion retires the current one.
type Template struct {
	ID               uuid.UUID        `json:"id"`
	Name             string           `json:"name"`
	DisplayName      string           `json:"displayName"`
	Description      *string          `json:"description,omitempty"`
	Channel          Channel          `json:"channel"`
	Category         TemplateCategory `json:"category"`
	SubjectTemplate  string           `json:"subjectTemplate"`
	ContentTemplate  string           `json:"contentTemplate"`
	HTMLTemplate     *string          `json:"htmlTemplate,omitempty"`
	Active           bool             `json:"active"`
	Deleted          bool             `json:"-"`
	Version          int              `json:"version"`
	DefaultPriority  Priority         `json:"defaultPriority"`
	RateLimitPerHour *int             `json:"rateLimitPerHour,omitempty"`
	CreatedBy        *uuid.UUID       `json:"createdBy,omitempty"`
	UpdatedBy        *uuid.UUID       `json:"updatedBy,omitempty"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

// ================================================
// USER PREFERENCE
// ================================================

// UserPreference is a user's personal delivery policy, unique by user id.
type UserPreference struct {
	ID                    uuid.UUID          `json:"id"`
	UserID                string             `json:"userId"`
	NotificationsEnabled  bool               `json:"notificationsEnabled"`
	PreferredChannel      Channel            `json:"preferredChannel"`
	EnabledChannels       []Channel          `json:"enabledChannels"`
	EnabledCategories     []TemplateCategory `json:"enabledCategories"`
	EmailAddress          *string            `json:"emailAddress,omitempty"`
	PhoneNumber           *string            `json:"phoneNumber,omitempty"`
	QuietHoursEnabled     bool               `json:"quietHoursEnabled"`
	QuietStart            string             `json:"quietStart"` // "HH:MM"
	QuietEnd              string             `json:"quietEnd"`   // "HH:MM"
	TimeZone              string             `json:"timeZone"`
	FrequencyLimitPerHour int                `json:"frequencyLimitPerHour"`
	FrequencyLimitPerDay  int                `json:"frequencyLimitPerDay"`
	Language              string             `json:"language"`
	CreatedAt             time.Time          `json:"createdAt"`
	UpdatedAt             time.Time          `json:"updatedAt"`
}

// DefaultPreference is the policy created on first contact with a user.
func DefaultPreference(userID string) *UserPreference {
	return &UserPreference{
		UserID:                userID,
		NotificationsEnabled:  true,
		PreferredChannel:      ChannelEmail,
		EnabledChannels:       []Channel{ChannelEmail, ChannelInApp},
		EnabledCategories:     append([]TemplateCategory(nil), AllCategories...),
		QuietHoursEnabled:     false,
		QuietStart:            "22:00",
		QuietEnd:              "07:00",
		TimeZone:              "UTC",
		FrequencyLimitPerHour: 20,
		FrequencyLimitPerDay:  100,
		Language:              "en",
	}
}

// HasChannel reports whether ch is in the enabled set.
func (p *UserPreference) HasChannel(ch Channel) bool {
	for _, c := range p.EnabledChannels {
		if c == ch {
			return true
		}
	}
	return false
}

// HasCategory reports whether cat is in the enabled set.
func (p *UserPreference) HasCategory(cat TemplateCategory) bool {
	for _, c := range p.EnabledCategories {
		if c == cat {
			return true
		}
	}
	return false
}

// ================================================
// DEAD LETTER
// ================================================

// DeadLetter is a message that exhausted retries or failed terminally in an
// ingestor, persisted for manual review.
type DeadLetter struct {
	ID            uuid.UUID `json:"id"`
	Topic         string    `json:"topic"`
	EventType     string    `json:"eventType"`
	CorrelationID string    `json:"correlationId"`
	Payload       JSONB     `json:"payload,omitempty"`
	ErrorMessage  string    `json:"errorMessage"`
	Critical      bool      `json:"critical"`
	CreatedAt     time.Time `json:"createdAt"`
}

// CriticalEventTypes raise an operator alert when dead-lettered.
var CriticalEventTypes = map[string]bool{
	"ORDER_REJECTED":   true,
	"SUSPICIOUS_LOGIN": true,
	"PAYMENT_FAILED":   true,
}

// ================================================
// JSONB TYPE (PostgreSQL JSONB support)
// ================================================

type JSONB map[string]interface{}

// Scan implements sql.Scanner.
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = make(JSONB)
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return ErrInvalidJSONB
	}

	result := make(JSONB)
	if err := json.Unmarshal(bytes, &result); err != nil {
		return err
	}

	*j = result
	return nil
}

// Value implements driver.Valuer.
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}
