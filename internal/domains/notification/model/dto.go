package model

import (
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/google/uuid"
)

var (
	templateNameRegex = regexp.MustCompile(`^[a-z][a-z0-9_]{2,63}$`)
	quietTimeRegex    = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)
)

// ================================================
// SEND REQUESTS
// ================================================

// SendRequest is the API payload for dispatching one notification.
type SendRequest struct {
	NotificationID    *string                `json:"notificationId,omitempty"`
	CorrelationID     string                 `json:"correlationId,omitempty"`
	Channel           string                 `json:"channel"`
	Recipient         string                 `json:"recipient"`
	EmailAddress      *string                `json:"emailAddress,omitempty"`
	PhoneNumber       *string                `json:"phoneNumber,omitempty"`
	DeviceToken       *string                `json:"deviceToken,omitempty"`
	Subject           string                 `json:"subject,omitempty"`
	Content           string                 `json:"content,omitempty"`
	TemplateName      *string                `json:"templateName,omitempty"`
	TemplateVariables map[string]interface{} `json:"templateVariables,omitempty"`
	Priority          string                 `json:"priority,omitempty"`
	ScheduledAt       *time.Time             `json:"scheduledAt,omitempty"`
	ReferenceID       *string                `json:"referenceId,omitempty"`
	ReferenceType     *string                `json:"referenceType,omitempty"`
	MaxRetryAttempts  *int                   `json:"maxRetryAttempts,omitempty"`
}

func (r SendRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.NotificationID, is.UUID),
		validation.Field(&r.Channel,
			validation.Required.When(r.TemplateName == nil).Error("channel is required without a template"),
			validation.In("EMAIL", "SMS", "PUSH", "IN_APP")),
		validation.Field(&r.Recipient, validation.Required, validation.Length(1, 255)),
		validation.Field(&r.EmailAddress, is.EmailFormat),
		validation.Field(&r.Priority,
			validation.In("LOW", "MEDIUM", "HIGH", "URGENT")),
		validation.Field(&r.Content,
			validation.Required.When(r.TemplateName == nil).Error("content or templateName is required")),
		validation.Field(&r.MaxRetryAttempts, validation.Min(0), validation.Max(10)),
	)
}

// BulkSendRequest fans one message out to many recipients.
type BulkSendRequest struct {
	Recipients []string `json:"recipients"`
	Request    SendRequest
}

func (r BulkSendRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Recipients, validation.Required,
			validation.Length(1, 1000)),
	)
}

// BulkOutcome is the per-recipient result of a bulk send. Entries that were
// refused by the aggregate rate check carry a CANCELLED record; entries that
// failed validation carry the error and no record.
type BulkOutcome struct {
	Recipient      string     `json:"recipient"`
	NotificationID *uuid.UUID `json:"notificationId,omitempty"`
	Status         Status     `json:"status,omitempty"`
	Error          string     `json:"error,omitempty"`
}

// ================================================
// TEMPLATE REQUESTS
// ================================================

type CreateTemplateRequest struct {
	Name             string  `json:"name"`
	DisplayName      string  `json:"displayName"`
	Description      *string `json:"description,omitempty"`
	Channel          string  `json:"channel"`
	Category         string  `json:"category"`
	SubjectTemplate  string  `json:"subjectTemplate"`
	ContentTemplate  string  `json:"contentTemplate"`
	HTMLTemplate     *string `json:"htmlTemplate,omitempty"`
	DefaultPriority  string  `json:"defaultPriority,omitempty"`
	RateLimitPerHour *int    `json:"rateLimitPerHour,omitempty"`
}

func (r CreateTemplateRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required,
			validation.Match(templateNameRegex).
				Error("name must be snake_case, 3-64 chars, starting with a letter")),
		validation.Field(&r.DisplayName, validation.Required, validation.Length(1, 128)),
		validation.Field(&r.Channel, validation.Required,
			validation.In("EMAIL", "SMS", "PUSH", "IN_APP")),
		validation.Field(&r.Category, validation.Required,
			validation.In("TRADING", "ACCOUNT", "SECURITY", "MARKETING", "SYSTEM")),
		validation.Field(&r.ContentTemplate, validation.Required),
		validation.Field(&r.DefaultPriority,
			validation.In("LOW", "MEDIUM", "HIGH", "URGENT")),
		validation.Field(&r.RateLimitPerHour, validation.Min(1)),
	)
}

// UpdateTemplateRequest creates a new version of an existing template. Nil
// fields inherit from the current active version.
type UpdateTemplateRequest struct {
	DisplayName      *string `json:"displayName,omitempty"`
	Description      *string `json:"description,omitempty"`
	SubjectTemplate  *string `json:"subjectTemplate,omitempty"`
	ContentTemplate  *string `json:"contentTemplate,omitempty"`
	HTMLTemplate     *string `json:"htmlTemplate,omitempty"`
	DefaultPriority  *string `json:"defaultPriority,omitempty"`
	RateLimitPerHour *int    `json:"rateLimitPerHour,omitempty"`
}

func (r UpdateTemplateRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.DefaultPriority,
			validation.In("LOW", "MEDIUM", "HIGH", "URGENT")),
		validation.Field(&r.RateLimitPerHour, validation.Min(1)),
	)
}

// ================================================
// PREFERENCE REQUESTS
// ================================================

type UpdatePreferenceRequest struct {
	NotificationsEnabled  *bool    `json:"notificationsEnabled,omitempty"`
	PreferredChannel      *string  `json:"preferredChannel,omitempty"`
	EnabledChannels       []string `json:"enabledChannels,omitempty"`
	EnabledCategories     []string `json:"enabledCategories,omitempty"`
	EmailAddress          *string  `json:"emailAddress,omitempty"`
	PhoneNumber           *string  `json:"phoneNumber,omitempty"`
	QuietHoursEnabled     *bool    `json:"quietHoursEnabled,omitempty"`
	QuietStart            *string  `json:"quietStart,omitempty"`
	QuietEnd              *string  `json:"quietEnd,omitempty"`
	TimeZone              *string  `json:"timeZone,omitempty"`
	FrequencyLimitPerHour *int     `json:"frequencyLimitPerHour,omitempty"`
	FrequencyLimitPerDay  *int     `json:"frequencyLimitPerDay,omitempty"`
	Language              *string  `json:"language,omitempty"`
}

func (r UpdatePreferenceRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.PreferredChannel,
			validation.In("EMAIL", "SMS", "PUSH", "IN_APP")),
		validation.Field(&r.EnabledChannels, validation.Each(
			validation.In("EMAIL", "SMS", "PUSH", "IN_APP"))),
		validation.Field(&r.EnabledCategories, validation.Each(
			validation.In("TRADING", "ACCOUNT", "SECURITY", "MARKETING", "SYSTEM"))),
		validation.Field(&r.EmailAddress, is.EmailFormat),
		validation.Field(&r.QuietStart, validation.Match(quietTimeRegex).Error("must be HH:MM")),
		validation.Field(&r.QuietEnd, validation.Match(quietTimeRegex).Error("must be HH:MM")),
		validation.Field(&r.FrequencyLimitPerHour, validation.Min(1)),
		validation.Field(&r.FrequencyLimitPerDay, validation.Min(1)),
	)
}

// ================================================
// QUERY / LIST DTOs
// ================================================

type HistoryFilter struct {
	Recipient     string
	Channel       *Channel
	Status        *Status
	TemplateName  *string
	CorrelationID *string
	From          *time.Time
	To            *time.Time
	Page          int
	Limit         int
}

func (f *HistoryFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 || f.Limit > 100 {
		f.Limit = 20
	}
}

func (f *HistoryFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// ================================================
// ANALYTICS RESULTS
// ================================================

// DeliveryRateStats summarizes terminal outcomes over a window.
type DeliveryRateStats struct {
	Channel      *Channel  `json:"channel,omitempty"`
	From         time.Time `json:"from"`
	To           time.Time `json:"to"`
	Total        int64     `json:"total"`
	Sent         int64     `json:"sent"`
	Delivered    int64     `json:"delivered"`
	Failed       int64     `json:"failed"`
	Cancelled    int64     `json:"cancelled"`
	DeliveryRate float64   `json:"deliveryRate"` // percent
}

// EngagementStats blends delivery and read rates into a single score.
type EngagementStats struct {
	From           time.Time `json:"from"`
	To             time.Time `json:"to"`
	Delivered      int64     `json:"delivered"`
	Read           int64     `json:"read"`
	DeliveryRate   float64   `json:"deliveryRate"`
	ReadRate       float64   `json:"readRate"`
	EngagementRate float64   `json:"engagementRate"`
}

// ChannelPerformance ranks a channel by delivery rate.
type ChannelPerformance struct {
	Channel      Channel `json:"channel"`
	Total        int64   `json:"total"`
	Delivered    int64   `json:"delivered"`
	Failed       int64   `json:"failed"`
	DeliveryRate float64 `json:"deliveryRate"`
	AvgLatencyMs float64 `json:"avgLatencyMs"`
}

// FailureBreakdown groups failures by error message.
type FailureBreakdown struct {
	Channel      Channel `json:"channel"`
	ErrorMessage string  `json:"errorMessage"`
	Count        int64   `json:"count"`
}
