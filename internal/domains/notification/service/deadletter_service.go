package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"notification-backend/internal/domains/notification/model"
	"notification-backend/internal/domains/notification/repository"
	"notification-backend/internal/metrics"
)

type deadLetterService struct {
	repo       repository.DeadLetterRepository
	webhookURL string
	client     *http.Client
}

func NewDeadLetterService(repo repository.DeadLetterRepository, webhookURL string) DeadLetterService {
	return &deadLetterService{
		repo:       repo,
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 5 * time.Second},
	}
}

// Record persists the letter and raises an operator alert when the event
// type is on the critical list.
func (s *deadLetterService) Record(ctx context.Context, letter *model.DeadLetter) error {
	letter.Critical = model.CriticalEventTypes[letter.EventType]

	if err := s.repo.Create(ctx, letter); err != nil {
		return err
	}

	metrics.DeadLetters.WithLabelValues(letter.EventType, strconv.FormatBool(letter.Critical)).Inc()

	log.Warn().
		Str("topic", letter.Topic).
		Str("eventType", letter.EventType).
		Str("correlationID", letter.CorrelationID).
		Bool("critical", letter.Critical).
		Msg("[DeadLetterService] Message dead-lettered")

	if letter.Critical {
		s.alert(ctx, letter)
	}
	return nil
}

func (s *deadLetterService) List(ctx context.Context, topic *string, page, limit int) ([]*model.DeadLetter, int64, error) {
	return s.repo.List(ctx, topic, page, limit)
}

func (s *deadLetterService) Get(ctx context.Context, id uuid.UUID) (*model.DeadLetter, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *deadLetterService) Discard(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

// alert posts a webhook for critical dead letters. Failures are logged and
// swallowed; the letter itself is already durable.
func (s *deadLetterService) alert(ctx context.Context, letter *model.DeadLetter) {
	if s.webhookURL == "" {
		return
	}

	body, err := json.Marshal(map[string]interface{}{
		"text": fmt.Sprintf("critical event dead-lettered: %s (topic %s, correlation %s): %s",
			letter.EventType, letter.Topic, letter.CorrelationID, letter.ErrorMessage),
	})
	if err != nil {
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		log.Error().Err(err).Msg("[DeadLetterService] Alert webhook failed")
		return
	}
	resp.Body.Close()
}
