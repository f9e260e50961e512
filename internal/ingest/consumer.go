package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog/log"

	"notification-backend/internal/config"
	"notification-backend/internal/domains/notification/model"
	"notification-backend/internal/domains/notification/service"
	"notification-backend/internal/metrics"
)

// Consumer reads platform events from Kafka and enqueues notifications.
// Messages that cannot be parsed or mapped are dead-lettered and committed
// so one poison message never wedges a partition; transient enqueue
// failures are not committed and redeliver on the next session.
type Consumer struct {
	group       sarama.ConsumerGroup
	topics      []string
	mapper      *Mapper
	dispatch    service.DispatchService
	deadLetters service.DeadLetterService
	producer    *Producer
}

func NewConsumer(cfg config.KafkaConfig, topics []string, mapper *Mapper,
	dispatch service.DispatchService, deadLetters service.DeadLetterService,
	producer *Producer) (*Consumer, error) {

	saramaCfg := sarama.NewConfig()
	saramaCfg.Version = sarama.V2_8_0_0
	saramaCfg.Consumer.Group.Rebalance.GroupStrategies =
		[]sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaCfg.Consumer.Offsets.Initial = sarama.OffsetOldest

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.ConsumerGroup, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("create consumer group: %w", err)
	}

	return &Consumer{
		group:       group,
		topics:      topics,
		mapper:      mapper,
		dispatch:    dispatch,
		deadLetters: deadLetters,
		producer:    producer,
	}, nil
}

// Run consumes until ctx is cancelled. Rebalances end a session; the loop
// rejoins until shutdown.
func (c *Consumer) Run(ctx context.Context) error {
	handler := &groupHandler{consumer: c}

	for {
		if err := c.group.Consume(ctx, c.topics, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			log.Error().Err(err).Msg("[Consumer] Session error")
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (c *Consumer) Close() error {
	return c.group.Close()
}

type groupHandler struct {
	consumer *Consumer
}

func (h *groupHandler) Setup(session sarama.ConsumerGroupSession) error {
	log.Info().
		Str("memberID", session.MemberID()).
		Msg("[Consumer] Session started")
	return nil
}

func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-session.Context().Done():
			return nil
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := h.consumer.handle(session.Context(), message); err != nil {
				// Transient failure: leave the offset unmarked so the
				// message redelivers.
				return err
			}
			session.MarkMessage(message, "")
		}
	}
}

func (c *Consumer) handle(ctx context.Context, message *sarama.ConsumerMessage) error {
	topic := message.Topic

	envelope, err := DecodeEnvelope(message.Value)
	if err != nil {
		metrics.IngestEvents.WithLabelValues(topic, "parse_error").Inc()
		c.deadLetter(ctx, topic, "", headerValue(message, "correlationId"), message.Value, err)
		return nil
	}

	// The correlation id may ride in the record headers instead of the body.
	if envelope.CorrelationID == "" {
		envelope.CorrelationID = headerValue(message, "correlationId")
	}

	// Filter before paying for a payload decode.
	if !c.mapper.Handles(envelope.EventType) {
		metrics.IngestEvents.WithLabelValues(topic, "filtered").Inc()
		return nil
	}

	payload, err := DecodePayload(envelope)
	if err != nil {
		metrics.IngestEvents.WithLabelValues(topic, "parse_error").Inc()
		c.deadLetter(ctx, topic, envelope.EventType, envelope.CorrelationID, message.Value, err)
		return nil
	}

	request, err := c.mapper.Map(envelope, payload)
	if err != nil {
		metrics.IngestEvents.WithLabelValues(topic, "mapping_error").Inc()
		c.deadLetter(ctx, topic, envelope.EventType, envelope.CorrelationID, message.Value, err)
		return nil
	}

	if _, err := c.dispatch.Enqueue(ctx, request, "ingestor"); err != nil {
		// A template or validation problem is terminal for this message;
		// anything else is assumed transient and retried.
		if errors.Is(err, model.ErrTemplateNotFound) || errors.Is(err, model.ErrTemplateInactive) {
			metrics.IngestEvents.WithLabelValues(topic, "mapping_error").Inc()
			c.deadLetter(ctx, topic, envelope.EventType, envelope.CorrelationID, message.Value, err)
			return nil
		}
		// A recipient over their daily cap stays capped for hours; drop the
		// event instead of redelivering it against the same partition.
		if errors.Is(err, model.ErrRateLimitExceeded) {
			metrics.IngestEvents.WithLabelValues(topic, "rate_limited").Inc()
			return nil
		}
		return fmt.Errorf("enqueue event %s: %w", envelope.EventType, err)
	}

	metrics.IngestEvents.WithLabelValues(topic, "handled").Inc()
	return nil
}

// deadLetter routes an undeliverable message to the DLQ topic, where the
// dead-letter consumer persists and classifies it. When no producer is
// wired, or the publish itself fails, the letter is recorded directly so
// nothing is lost.
func (c *Consumer) deadLetter(ctx context.Context, topic, eventType, correlationID string, raw []byte, cause error) {
	if c.producer != nil {
		if err := c.producer.PublishDeadLetter(topic, raw, eventType, correlationID, cause); err == nil {
			return
		} else {
			log.Error().Err(err).
				Str("topic", topic).
				Msg("[Consumer] DLQ publish failed, recording directly")
		}
	}

	letter := &model.DeadLetter{
		Topic:         topic,
		EventType:     eventType,
		CorrelationID: correlationID,
		Payload:       model.JSONB{"raw": string(raw)},
		ErrorMessage:  cause.Error(),
	}
	if err := c.deadLetters.Record(ctx, letter); err != nil {
		log.Error().Err(err).
			Str("topic", topic).
			Str("eventType", eventType).
			Msg("[Consumer] Dead letter persist failed")
	}
}

// headerValue returns the named Kafka record header, or "".
func headerValue(message *sarama.ConsumerMessage, name string) string {
	for _, header := range message.Headers {
		if header != nil && string(header.Key) == name {
			return string(header.Value)
		}
	}
	return ""
}
