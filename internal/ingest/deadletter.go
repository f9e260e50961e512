package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"notification-backend/internal/config"
	"notification-backend/internal/domains/notification/model"
	"notification-backend/internal/domains/notification/service"
	"notification-backend/internal/metrics"
)

// historyWriter is the slice of the history repository the dead-letter
// consumer needs: it only ever inserts terminal FAILED records.
type historyWriter interface {
	Create(ctx context.Context, record *model.HistoryRecord) error
}

// DeadLetterConsumer drains the `<topic>.dlq` topics. Every record is
// logged, persisted as a FAILED history row, and recorded as a dead letter;
// critical event types raise an operator alert through the dead-letter
// service. Offsets always advance: a message that already failed once must
// not wedge the DLQ too.
type DeadLetterConsumer struct {
	group   sarama.ConsumerGroup
	topics  []string
	history historyWriter
	letters service.DeadLetterService
}

// NewDeadLetterConsumer subscribes to the DLQ counterpart of every origin
// topic plus the shared fallback topic, under its own consumer group.
func NewDeadLetterConsumer(cfg config.KafkaConfig, originTopics []string,
	history historyWriter, letters service.DeadLetterService) (*DeadLetterConsumer, error) {

	saramaCfg := sarama.NewConfig()
	saramaCfg.Version = sarama.V2_8_0_0
	saramaCfg.Consumer.Group.Rebalance.GroupStrategies =
		[]sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaCfg.Consumer.Offsets.Initial = sarama.OffsetOldest

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.ConsumerGroup+"-dlq", saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("create dlq consumer group: %w", err)
	}

	topics := make([]string, 0, len(originTopics)+1)
	for _, topic := range originTopics {
		topics = append(topics, topic+".dlq")
	}
	topics = append(topics, cfg.DLQTopic)

	return &DeadLetterConsumer{
		group:   group,
		topics:  topics,
		history: history,
		letters: letters,
	}, nil
}

// Run consumes until ctx is cancelled.
func (c *DeadLetterConsumer) Run(ctx context.Context) error {
	handler := &dlqGroupHandler{consumer: c}

	for {
		if err := c.group.Consume(ctx, c.topics, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			log.Error().Err(err).Msg("[DLQConsumer] Session error")
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (c *DeadLetterConsumer) Close() error {
	return c.group.Close()
}

type dlqGroupHandler struct {
	consumer *DeadLetterConsumer
}

func (h *dlqGroupHandler) Setup(session sarama.ConsumerGroupSession) error {
	log.Info().
		Str("memberID", session.MemberID()).
		Msg("[DLQConsumer] Session started")
	return nil
}

func (h *dlqGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *dlqGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-session.Context().Done():
			return nil
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			h.consumer.handle(session.Context(), message)
			session.MarkMessage(message, "")
		}
	}
}

// handle processes one dead-lettered record. Persistence failures are
// logged and the offset still advances.
func (c *DeadLetterConsumer) handle(ctx context.Context, message *sarama.ConsumerMessage) {
	eventType := headerValue(message, "event-type")
	correlationID := headerValue(message, "correlation-id")
	origin := headerValue(message, "origin-topic")
	cause := headerValue(message, "error")
	if origin == "" {
		origin = message.Topic
	}
	if cause == "" {
		cause = "unknown failure"
	}

	log.Warn().
		Str("topic", message.Topic).
		Str("origin", origin).
		Str("eventType", eventType).
		Str("correlationID", correlationID).
		Str("error", cause).
		RawJSON("payload", sanitizeJSON(message.Value)).
		Msg("[DLQConsumer] Dead-lettered message received")

	record := c.buildFailedRecord(message.Value, eventType, correlationID, cause)
	if err := c.history.Create(ctx, record); err != nil {
		log.Error().Err(err).
			Str("correlationID", correlationID).
			Msg("[DLQConsumer] Failed history persist failed")
	}

	letter := &model.DeadLetter{
		Topic:         origin,
		EventType:     eventType,
		CorrelationID: correlationID,
		Payload:       model.JSONB{"raw": string(message.Value)},
		ErrorMessage:  cause,
	}
	if err := c.letters.Record(ctx, letter); err != nil {
		log.Error().Err(err).
			Str("correlationID", correlationID).
			Msg("[DLQConsumer] Dead letter persist failed")
	}

	metrics.IngestEvents.WithLabelValues(message.Topic, "dead_lettered").Inc()
}

// buildFailedRecord turns a dead-lettered message into a terminal FAILED
// history row. The retry budget is zero: the message already exhausted the
// main pipeline. The original event still yields the recipient when its
// envelope parses; otherwise the row is keyed to the correlation id alone.
func (c *DeadLetterConsumer) buildFailedRecord(raw []byte, eventType, correlationID, cause string) *model.HistoryRecord {
	id := uuid.New()
	if correlationID == "" {
		correlationID = id.String()
	}

	recipient := "unknown"
	if envelope, err := DecodeEnvelope(raw); err == nil {
		recipient = envelope.UserEmail
		if eventType == "" {
			eventType = envelope.EventType
		}
	}

	errorMessage := cause
	record := &model.HistoryRecord{
		ID:               id,
		CorrelationID:    correlationID,
		Channel:          model.ChannelEmail,
		Recipient:        recipient,
		Priority:         model.PriorityMedium,
		Status:           model.StatusFailed,
		ErrorMessage:     &errorMessage,
		MaxRetryAttempts: 0,
		UpdatedBy:        "dlq-consumer",
	}
	if eventType != "" {
		record.ReferenceType = &eventType
	}
	return record
}

// sanitizeJSON returns the payload if it is valid JSON, otherwise a quoted
// placeholder so structured logging never emits broken JSON.
func sanitizeJSON(raw []byte) []byte {
	if json.Valid(raw) {
		return raw
	}
	return []byte(`"<non-json payload>"`)
}
