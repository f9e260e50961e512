package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"notification-backend/internal/config"
	"notification-backend/internal/domains/notification/model"
	"notification-backend/internal/domains/notification/repository"
	"notification-backend/internal/metrics"
	"notification-backend/internal/ratelimit"
)

type dispatchService struct {
	history     repository.HistoryRepository
	templates   TemplateService
	preferences PreferenceService
	limiter     *ratelimit.Limiter
	adapters    map[model.Channel]ChannelAdapter
	queue       QueueClient
	sessions    SessionGate
	cfg         *config.Config
}

// NewDispatchService wires the delivery pipeline. The adapters map must
// already carry the policy stack (timeout, retry, breaker). sessions may be
// nil when no presence store is available; the session requirement is then
// enforced by the in-app adapter alone.
func NewDispatchService(
	history repository.HistoryRepository,
	templates TemplateService,
	preferences PreferenceService,
	limiter *ratelimit.Limiter,
	adapters map[model.Channel]ChannelAdapter,
	queue QueueClient,
	sessions SessionGate,
	cfg *config.Config,
) DispatchService {
	return &dispatchService{
		history:     history,
		templates:   templates,
		preferences: preferences,
		limiter:     limiter,
		adapters:    adapters,
		queue:       queue,
		sessions:    sessions,
		cfg:         cfg,
	}
}

// ================================================
// ENQUEUE
// ================================================

func (s *dispatchService) Enqueue(ctx context.Context, req *model.SendRequest, enqueuedBy string) (*model.HistoryRecord, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	id := uuid.New()
	if req.NotificationID != nil {
		parsed, err := uuid.Parse(*req.NotificationID)
		if err != nil {
			return nil, model.ErrInvalidRecipient
		}
		id = parsed

		// The notification id is the idempotency key: a resupplied id
		// returns the existing record without queueing a second dispatch.
		existing, err := s.history.GetByID(ctx, id)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, model.ErrHistoryNotFound) {
			return nil, err
		}
	}

	// Reject at accept time when the recipient's daily cap is already spent,
	// so the caller gets a 429 instead of a record that cancels later.
	if err := s.checkDailyCap(ctx, req.Recipient); err != nil {
		return nil, err
	}

	record, err := s.buildRecord(ctx, id, req, enqueuedBy)
	if err != nil {
		return nil, err
	}

	if err := s.history.Create(ctx, record); err != nil {
		return nil, err
	}

	if err := s.enqueueTask(ctx, record, req.ScheduledAt); err != nil {
		return nil, err
	}

	log.Info().
		Str("notificationID", record.ID.String()).
		Str("correlationID", record.CorrelationID).
		Str("channel", string(record.Channel)).
		Msg("[DispatchService] Notification queued")

	return record, nil
}

// EnqueueBulk fans one request out to many recipients. Each recipient first
// draws from the channel's aggregate bucket; recipients the bucket refuses
// are recorded as CANCELLED("rate-limit") rather than silently dropped, so
// the caller gets one outcome per recipient either way.
func (s *dispatchService) EnqueueBulk(ctx context.Context, req *model.BulkSendRequest, enqueuedBy string) ([]*model.BulkOutcome, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	channel := req.Request.Channel
	if channel == "" && req.Request.TemplateName != nil {
		if template, err := s.templates.GetByName(ctx, *req.Request.TemplateName); err == nil {
			channel = string(template.Channel)
		}
	}

	outcomes := make([]*model.BulkOutcome, 0, len(req.Recipients))
	for _, recipient := range req.Recipients {
		single := req.Request
		single.NotificationID = nil
		single.Recipient = recipient

		if channel != "" && !s.limiter.Allow(ratelimit.Key(channel, "global"), s.cfg.RateLimitFor(channel)) {
			outcome, err := s.cancelBulkEntry(ctx, &single, enqueuedBy)
			if err != nil {
				outcomes = append(outcomes, &model.BulkOutcome{Recipient: recipient, Error: err.Error()})
				continue
			}
			metrics.RateLimited.WithLabelValues(channel).Inc()
			outcomes = append(outcomes, outcome)
			continue
		}

		record, err := s.Enqueue(ctx, &single, enqueuedBy)
		if err != nil {
			log.Error().Err(err).
				Str("recipient", recipient).
				Msg("[DispatchService] Bulk enqueue entry failed")
			outcomes = append(outcomes, &model.BulkOutcome{Recipient: recipient, Error: err.Error()})
			continue
		}
		id := record.ID
		outcomes = append(outcomes, &model.BulkOutcome{
			Recipient:      recipient,
			NotificationID: &id,
			Status:         record.Status,
		})
	}
	return outcomes, nil
}

// cancelBulkEntry persists a CANCELLED record for a bulk recipient refused by
// the aggregate rate check, keeping the audit trail complete.
func (s *dispatchService) cancelBulkEntry(ctx context.Context, req *model.SendRequest, enqueuedBy string) (*model.BulkOutcome, error) {
	record, err := s.buildRecord(ctx, uuid.New(), req, enqueuedBy)
	if err != nil {
		return nil, err
	}
	reason := model.CancelReasonRateLimit
	record.Status = model.StatusCancelled
	record.CancelReason = &reason
	if err := s.history.Create(ctx, record); err != nil {
		return nil, err
	}
	id := record.ID
	return &model.BulkOutcome{
		Recipient:      req.Recipient,
		NotificationID: &id,
		Status:         model.StatusCancelled,
	}, nil
}

func (s *dispatchService) buildRecord(ctx context.Context, id uuid.UUID, req *model.SendRequest, enqueuedBy string) (*model.HistoryRecord, error) {
	subject := req.Subject
	content := req.Content

	var htmlContent *string
	var templateWarning *string

	// Template requests render at enqueue time so the stored history always
	// carries the exact text that went out. A request without an explicit
	// channel inherits the template's.
	if req.TemplateName != nil {
		rendered, err := s.templates.Render(ctx, *req.TemplateName, req.TemplateVariables)
		switch {
		case err == nil:
			// The active template wins; inline text only fills fields the
			// template leaves empty.
			if rendered.Subject != "" {
				subject = rendered.Subject
			}
			if rendered.Content != "" {
				content = rendered.Content
			}
			htmlContent = rendered.HTMLContent
			if req.Priority == "" {
				req.Priority = string(rendered.Priority)
			}
			if req.Channel == "" {
				req.Channel = string(rendered.Channel)
			}
		case errors.Is(err, model.ErrTemplateNotFound), errors.Is(err, model.ErrTemplateInactive):
			// A missing or retired template is survivable when the request
			// carries its own subject and content; the record keeps a
			// warning so the audit trail shows which template was skipped.
			if subject == "" || content == "" {
				return nil, err
			}
			warning := "TemplateNotFound: " + *req.TemplateName
			if errors.Is(err, model.ErrTemplateInactive) {
				warning = "TemplateInactive: " + *req.TemplateName
			}
			templateWarning = &warning
			log.Warn().
				Str("notificationID", id.String()).
				Str("template", *req.TemplateName).
				Msg("[DispatchService] Template unavailable, using inline content")
		default:
			return nil, err
		}
	}
	if !model.Channel(req.Channel).Valid() {
		return nil, fmt.Errorf("%w: %q", model.ErrUnknownChannel, req.Channel)
	}

	priority := model.PriorityMedium
	if req.Priority != "" {
		priority = model.Priority(req.Priority)
	}
	if !priority.Valid() {
		return nil, fmt.Errorf("invalid priority %q", priority)
	}

	maxRetries := model.DefaultMaxRetryAttempts
	if req.MaxRetryAttempts != nil {
		maxRetries = *req.MaxRetryAttempts
	}

	// The caller's correlation id threads through the whole pipeline; when
	// none was supplied the record id anchors the trace instead.
	correlationID := req.CorrelationID
	if correlationID == "" {
		correlationID = id.String()
	}

	return &model.HistoryRecord{
		ID:               id,
		CorrelationID:    correlationID,
		Channel:          model.Channel(req.Channel),
		Recipient:        req.Recipient,
		Subject:          subject,
		Content:          content,
		HTMLContent:      htmlContent,
		TemplateName:     req.TemplateName,
		Priority:         priority,
		Status:           model.StatusQueued,
		ErrorMessage:     templateWarning,
		MaxRetryAttempts: maxRetries,
		ReferenceID:      req.ReferenceID,
		ReferenceType:    req.ReferenceType,
		UpdatedBy:        enqueuedBy,
	}, nil
}

func (s *dispatchService) enqueueTask(ctx context.Context, record *model.HistoryRecord, scheduledAt *time.Time) error {
	if scheduledAt != nil && scheduledAt.After(time.Now()) {
		return s.queue.EnqueueDispatchAt(ctx, record.ID, record.CorrelationID, record.Priority, *scheduledAt)
	}
	return s.queue.EnqueueDispatch(ctx, record.ID, record.CorrelationID, record.Priority)
}

// ================================================
// DISPATCH PIPELINE
// ================================================

// Dispatch runs the delivery pipeline: claim, preference gate, rate limit,
// adapter send, terminal status write. Each step is a guarded status
// transition, so a crashed worker leaves a record the sweep can recover.
func (s *dispatchService) Dispatch(ctx context.Context, id uuid.UUID) error {
	record, err := s.history.GetByID(ctx, id)
	if err != nil {
		return err
	}

	logger := log.With().
		Str("notificationID", id.String()).
		Str("correlationID", record.CorrelationID).
		Str("channel", string(record.Channel)).
		Logger()

	// A record not in QUEUED was already picked up or resolved; dispatching
	// again is a no-op, which keeps redelivered tasks safe.
	if record.Status != model.StatusQueued {
		logger.Debug().Str("status", string(record.Status)).
			Msg("[DispatchService] Skipping non-queued record")
		return nil
	}

	// Preference gate, evaluated before claiming so a denial cancels the
	// record straight from QUEUED.
	category := model.CategorySystem
	if record.TemplateName != nil {
		if template, err := s.templates.GetByName(ctx, *record.TemplateName); err == nil {
			category = template.Category
		}
	}
	decision := s.preferences.Evaluate(ctx, record.Recipient, record.Channel, category, record.Priority, time.Now())
	if !decision.Allowed {
		logger.Info().Str("reason", decision.Reason).
			Msg("[DispatchService] Cancelled by preference gate")
		return s.cancel(ctx, id, decision.Reason)
	}

	// An in-app notification that requires a live session cancels before the
	// claim when the recipient is offline, so the record lands CANCELLED
	// rather than FAILED.
	if record.Channel == model.ChannelInApp && s.cfg.Policy.InAppRequireSession &&
		s.sessions != nil && !s.sessions.Online(ctx, record.Recipient) {
		logger.Info().Msg("[DispatchService] Cancelled, recipient has no active session")
		return s.cancel(ctx, id, model.CancelReasonNoSession)
	}

	// Rate limits: channel cap, template cap, user frequency caps.
	if reason, limited := s.checkRateLimits(ctx, record); limited {
		metrics.RateLimited.WithLabelValues(string(record.Channel)).Inc()
		logger.Info().Msg("[DispatchService] Cancelled by rate limiter")
		return s.cancel(ctx, id, reason)
	}

	// Claim.
	now := time.Now().UTC()
	err = s.history.UpdateStatus(ctx, id, model.StatusQueued, &repository.StatusUpdate{
		Status:        model.StatusProcessing,
		LastAttemptAt: &now,
		UpdatedBy:     "dispatcher",
	})
	if err != nil {
		if errors.Is(err, model.ErrConcurrentUpdate) {
			return nil // another worker claimed it
		}
		return err
	}

	started := time.Now()
	outcome := s.deliver(ctx, record, logger)
	metrics.DispatchDuration.WithLabelValues(string(record.Channel)).
		Observe(time.Since(started).Seconds())
	return outcome
}

func (s *dispatchService) deliver(ctx context.Context, record *model.HistoryRecord, logger zerolog.Logger) error {
	id := record.ID
	channel := record.Channel

	adapter, ok := s.adapters[channel]
	if !ok {
		return s.fail(ctx, record, fmt.Errorf("%w: %s", model.ErrUnknownChannel, channel), true)
	}

	req := &model.DispatchRequest{
		NotificationID:   record.ID,
		Channel:          channel,
		Recipient:        record.Recipient,
		Subject:          record.Subject,
		Content:          record.Content,
		HTMLContent:      record.HTMLContent,
		TemplateName:     record.TemplateName,
		MaxRetryAttempts: record.MaxRetryAttempts,
		CorrelationID:    record.CorrelationID,
	}
	s.resolveAddresses(ctx, req)

	externalID, err := adapter.Send(ctx, req)
	if err != nil {
		logger.Error().Err(err).Msg("[DispatchService] Delivery failed")
		metrics.DispatchTotal.WithLabelValues(string(channel), string(model.StatusFailed)).Inc()
		return s.fail(ctx, record, err, model.IsPermanent(err))
	}

	update := &repository.StatusUpdate{
		Status:    model.StatusSent,
		UpdatedBy: "dispatcher",
	}
	if externalID != "" {
		update.ExternalMessageID = &externalID
	}

	if err := s.history.UpdateStatus(ctx, id, model.StatusProcessing, update); err != nil {
		return err
	}

	metrics.DispatchTotal.WithLabelValues(string(channel), string(update.Status)).Inc()
	logger.Info().Str("externalID", externalID).
		Msg("[DispatchService] Notification sent")
	return nil
}

// resolveAddresses fills channel addresses from the stored preference when
// the request carried only the recipient key.
func (s *dispatchService) resolveAddresses(ctx context.Context, req *model.DispatchRequest) {
	pref, err := s.preferences.Get(ctx, req.Recipient)
	if err != nil {
		return
	}
	if req.EmailAddress == nil && pref.EmailAddress != nil {
		req.EmailAddress = pref.EmailAddress
	}
	if req.PhoneNumber == nil && pref.PhoneNumber != nil {
		req.PhoneNumber = pref.PhoneNumber
	}
}

// checkDailyCap rejects new work for a recipient whose 24h budget is spent.
// Lookup failures pass; the dispatch-time gate re-checks with the configured
// fail mode.
func (s *dispatchService) checkDailyCap(ctx context.Context, recipient string) error {
	pref, err := s.preferences.Get(ctx, recipient)
	if err != nil || pref.FrequencyLimitPerDay <= 0 {
		return nil
	}
	count, err := s.history.CountInWindow(ctx, recipient, nil, time.Now().Add(-24*time.Hour))
	if err != nil {
		return nil
	}
	if count >= int64(pref.FrequencyLimitPerDay) {
		return fmt.Errorf("%w: daily cap for %s", model.ErrRateLimitExceeded, recipient)
	}
	return nil
}

func (s *dispatchService) checkRateLimits(ctx context.Context, record *model.HistoryRecord) (string, bool) {
	channel := string(record.Channel)

	if !s.limiter.Allow(ratelimit.Key(channel, record.Recipient), s.cfg.RateLimitFor(channel)) {
		return model.CancelReasonRateLimit, true
	}

	if record.TemplateName != nil {
		if template, err := s.templates.GetByName(ctx, *record.TemplateName); err == nil &&
			template.RateLimitPerHour != nil {
			if !s.limiter.Allow("tmpl:"+template.Name, *template.RateLimitPerHour) {
				return model.CancelReasonRateLimit, true
			}
		}
	}

	pref, err := s.preferences.Get(ctx, record.Recipient)
	if err != nil {
		return model.CancelReasonRateLimit, s.cfg.RateLimit.FailClosed
	}
	if !s.limiter.Allow("freq:"+record.Recipient, pref.FrequencyLimitPerHour) {
		return model.CancelReasonRateLimit, true
	}
	if pref.FrequencyLimitPerDay > 0 {
		count, err := s.history.CountInWindow(ctx, record.Recipient, nil, time.Now().Add(-24*time.Hour))
		if err != nil {
			return model.CancelReasonRateLimit, s.cfg.RateLimit.FailClosed
		}
		// The record being dispatched is already counted.
		if count > int64(pref.FrequencyLimitPerDay) {
			return model.CancelReasonRateLimit, true
		}
	}
	return "", false
}

func (s *dispatchService) cancel(ctx context.Context, id uuid.UUID, reason string) error {
	err := s.history.UpdateStatus(ctx, id, model.StatusQueued, &repository.StatusUpdate{
		Status:       model.StatusCancelled,
		CancelReason: &reason,
		UpdatedBy:    "dispatcher",
	})
	if errors.Is(err, model.ErrConcurrentUpdate) {
		return nil // raced with another worker's claim
	}
	return err
}

func (s *dispatchService) fail(ctx context.Context, record *model.HistoryRecord, cause error, permanent bool) error {
	message := cause.Error()
	update := &repository.StatusUpdate{
		Status:         model.StatusFailed,
		ErrorMessage:   &message,
		IncrementRetry: true,
		ExhaustRetries: permanent,
		UpdatedBy:      "dispatcher",
	}
	if err := s.history.UpdateStatus(ctx, record.ID, model.StatusProcessing, update); err != nil {
		return err
	}
	return cause
}

// ================================================
// READS AND TERMINAL TRANSITIONS
// ================================================

func (s *dispatchService) GetStatus(ctx context.Context, id uuid.UUID) (*model.HistoryRecord, error) {
	return s.history.GetByID(ctx, id)
}

func (s *dispatchService) ListHistory(ctx context.Context, filter *model.HistoryFilter) ([]*model.HistoryRecord, int64, error) {
	return s.history.List(ctx, filter)
}

func (s *dispatchService) MarkRead(ctx context.Context, id uuid.UUID, recipient string) error {
	return s.history.MarkRead(ctx, id, recipient, time.Now().UTC())
}

func (s *dispatchService) MarkAllRead(ctx context.Context, recipient string) (int64, error) {
	return s.history.MarkAllRead(ctx, recipient, time.Now().UTC())
}

func (s *dispatchService) UnreadCount(ctx context.Context, recipient string) (int64, error) {
	return s.history.CountUnread(ctx, recipient)
}

// MarkDelivered records a delivery confirmation, typically an in-app ack or
// a provider webhook.
func (s *dispatchService) MarkDelivered(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC()
	err := s.history.UpdateStatus(ctx, id, model.StatusSent, &repository.StatusUpdate{
		Status:      model.StatusDelivered,
		DeliveredAt: &now,
		UpdatedBy:   "delivery-ack",
	})
	if errors.Is(err, model.ErrConcurrentUpdate) {
		// Already delivered or read; the ack is late, not wrong.
		return nil
	}
	return err
}

// Cancel withdraws a QUEUED notification. A non-empty cancelledBy must match
// the record's recipient; admins pass an empty string to skip the ownership
// check. Non-owners get not-found rather than a hint the record exists.
func (s *dispatchService) Cancel(ctx context.Context, id uuid.UUID, cancelledBy string) error {
	if cancelledBy != "" {
		record, err := s.history.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if record.Recipient != cancelledBy {
			return model.ErrHistoryNotFound
		}
	}

	reason := model.CancelReasonCaller
	return s.history.UpdateStatus(ctx, id, model.StatusQueued, &repository.StatusUpdate{
		Status:       model.StatusCancelled,
		CancelReason: &reason,
		UpdatedBy:    cancelledBy,
	})
}

// ================================================
// RETRY SWEEP
// ================================================

// RetryFailed re-queues FAILED records whose backoff horizon has passed.
func (s *dispatchService) RetryFailed(ctx context.Context, batchSize int) (int, error) {
	if batchSize < 1 {
		batchSize = 100
	}

	horizon := time.Now().Add(-s.cfg.Retry.InitialDelay)
	records, err := s.history.ListRetryable(ctx, horizon, batchSize)
	if err != nil {
		return 0, err
	}

	requeued := 0
	for _, record := range records {
		if !record.CanRetry() {
			continue
		}

		err := s.history.UpdateStatus(ctx, record.ID, model.StatusFailed, &repository.StatusUpdate{
			Status:    model.StatusQueued,
			UpdatedBy: "retry-sweep",
		})
		if err != nil {
			if errors.Is(err, model.ErrConcurrentUpdate) {
				continue
			}
			return requeued, err
		}

		delay := RetryDelay(s.cfg.Retry, record.RetryCount)
		if err := s.queue.EnqueueDispatchAt(ctx, record.ID, record.CorrelationID,
			record.Priority, time.Now().Add(delay)); err != nil {
			log.Error().Err(err).
				Str("notificationID", record.ID.String()).
				Msg("[DispatchService] Retry enqueue failed")
			continue
		}
		requeued++
	}

	if requeued > 0 {
		log.Info().Int("requeued", requeued).Msg("[DispatchService] Retry sweep complete")
	}
	return requeued, nil
}
