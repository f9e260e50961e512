package ingest

import (
	"fmt"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog/log"

	"notification-backend/internal/config"
)

// Producer publishes undeliverable messages to the Kafka dead-letter topic
// so other consumers of the DLQ see them too.
type Producer struct {
	producer sarama.SyncProducer
	dlqTopic string
}

func NewProducer(cfg config.KafkaConfig) (*Producer, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Version = sarama.V2_8_0_0
	saramaCfg.Producer.Return.Successes = true
	saramaCfg.Producer.RequiredAcks = sarama.WaitForAll
	saramaCfg.Producer.Retry.Max = 3

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("create producer: %w", err)
	}

	return &Producer{producer: producer, dlqTopic: cfg.DLQTopic}, nil
}

// DeadLetterTopic derives the DLQ topic for an origin topic. Every source
// topic gets its own `<topic>.dlq`; the shared fallback topic covers
// messages whose origin is unknown.
func (p *Producer) DeadLetterTopic(origin string) string {
	if origin == "" {
		return p.dlqTopic
	}
	return origin + ".dlq"
}

// PublishDeadLetter forwards the original message bytes to the origin
// topic's DLQ with the failure context in the headers, so the dead-letter
// consumer can classify without re-parsing a payload that may be broken.
func (p *Producer) PublishDeadLetter(origin string, raw []byte, eventType, correlationID string, cause error) error {
	message := &sarama.ProducerMessage{
		Topic: p.DeadLetterTopic(origin),
		Value: sarama.ByteEncoder(raw),
		Headers: []sarama.RecordHeader{
			{Key: []byte("origin-topic"), Value: []byte(origin)},
			{Key: []byte("event-type"), Value: []byte(eventType)},
			{Key: []byte("correlation-id"), Value: []byte(correlationID)},
			{Key: []byte("error"), Value: []byte(cause.Error())},
		},
	}

	partition, offset, err := p.producer.SendMessage(message)
	if err != nil {
		return fmt.Errorf("publish to dlq: %w", err)
	}

	log.Debug().
		Int32("partition", partition).
		Int64("offset", offset).
		Str("eventType", eventType).
		Str("correlationID", correlationID).
		Msg("[Producer] Message published to DLQ")
	return nil
}

func (p *Producer) Close() error {
	return p.producer.Close()
}
