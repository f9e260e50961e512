package ingest

import (
	"context"
	"testing"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notification-backend/internal/domains/notification/model"
)

type capturedHistory struct {
	records []*model.HistoryRecord
}

func (c *capturedHistory) Create(_ context.Context, record *model.HistoryRecord) error {
	c.records = append(c.records, record)
	return nil
}

type capturedLetters struct {
	letters []*model.DeadLetter
}

func (c *capturedLetters) Record(_ context.Context, letter *model.DeadLetter) error {
	letter.Critical = model.CriticalEventTypes[letter.EventType]
	c.letters = append(c.letters, letter)
	return nil
}

func (c *capturedLetters) List(context.Context, *string, int, int) ([]*model.DeadLetter, int64, error) {
	return nil, 0, nil
}

func (c *capturedLetters) Get(context.Context, uuid.UUID) (*model.DeadLetter, error) {
	return nil, model.ErrHistoryNotFound
}

func (c *capturedLetters) Discard(context.Context, uuid.UUID) error {
	return nil
}

func dlqMessage(topic string, value []byte, headers map[string]string) *sarama.ConsumerMessage {
	message := &sarama.ConsumerMessage{Topic: topic, Value: value}
	for key, val := range headers {
		message.Headers = append(message.Headers,
			&sarama.RecordHeader{Key: []byte(key), Value: []byte(val)})
	}
	return message
}

func TestDeadLetterConsumerPersistsFailedHistory(t *testing.T) {
	history := &capturedHistory{}
	letters := &capturedLetters{}
	consumer := &DeadLetterConsumer{history: history, letters: letters}

	raw := []byte(`{"eventType":"ORDER_REJECTED","userEmail":"a@x.io","orderId":"O-9","symbol":"AAPL","reason":"insufficient funds"}`)
	consumer.handle(context.Background(), dlqMessage("trading-events.dlq", raw, map[string]string{
		"origin-topic":   "trading-events",
		"event-type":     "ORDER_REJECTED",
		"correlation-id": "corr-9",
		"error":          "enqueue failed: connection refused",
	}))

	require.Len(t, history.records, 1)
	record := history.records[0]
	assert.Equal(t, model.StatusFailed, record.Status)
	assert.Equal(t, "a@x.io", record.Recipient)
	assert.Equal(t, "corr-9", record.CorrelationID)
	require.NotNil(t, record.ErrorMessage)
	assert.Equal(t, "enqueue failed: connection refused", *record.ErrorMessage)
	assert.Zero(t, record.MaxRetryAttempts)
	assert.False(t, record.CanRetry(), "dead-lettered records never re-enter the retry sweep")

	require.Len(t, letters.letters, 1)
	letter := letters.letters[0]
	assert.Equal(t, "trading-events", letter.Topic)
	assert.Equal(t, "ORDER_REJECTED", letter.EventType)
	assert.True(t, letter.Critical, "order rejections are on the critical list")
}

func TestDeadLetterConsumerSurvivesUnparseablePayload(t *testing.T) {
	history := &capturedHistory{}
	letters := &capturedLetters{}
	consumer := &DeadLetterConsumer{history: history, letters: letters}

	consumer.handle(context.Background(), dlqMessage("payment-events.dlq",
		[]byte(`{not json`), map[string]string{"error": "decode event envelope: bad"}))

	require.Len(t, history.records, 1)
	assert.Equal(t, "unknown", history.records[0].Recipient)
	assert.NotEmpty(t, history.records[0].CorrelationID,
		"a record with no correlation id anchors on its own id")

	require.Len(t, letters.letters, 1)
	assert.False(t, letters.letters[0].Critical)
}

func TestDeadLetterConsumerNonCriticalEventsAreCounted(t *testing.T) {
	history := &capturedHistory{}
	letters := &capturedLetters{}
	consumer := &DeadLetterConsumer{history: history, letters: letters}

	raw := []byte(`{"eventType":"PROFILE_UPDATED","userEmail":"b@x.io"}`)
	consumer.handle(context.Background(), dlqMessage("user-profile-events.dlq", raw, map[string]string{
		"event-type": "PROFILE_UPDATED",
		"error":      "no template mapping",
	}))

	require.Len(t, letters.letters, 1)
	assert.False(t, letters.letters[0].Critical)
	assert.Equal(t, "user-profile-events.dlq", letters.letters[0].Topic,
		"the message topic stands in when no origin header is present")
}
