package ingest

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEnvelope(t *testing.T) {
	data := []byte(`{
		"eventType": "ORDER_FILLED",
		"userEmail": "a@x.io",
		"userName": "A",
		"userId": "user-1",
		"correlationId": "corr-1",
		"timestamp": "2026-03-10T12:00:00Z",
		"orderId": "O-1",
		"symbol": "AAPL"
	}`)

	envelope, err := DecodeEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, EventOrderFilled, envelope.EventType)
	assert.Equal(t, "a@x.io", envelope.UserEmail)
	assert.Equal(t, "A", envelope.UserName)
	assert.Equal(t, "user-1", envelope.UserID)
	assert.Equal(t, "corr-1", envelope.CorrelationID)
}

func TestDecodeEnvelopeRejectsIncompleteFrames(t *testing.T) {
	_, err := DecodeEnvelope([]byte(`{not json`))
	assert.Error(t, err)

	_, err = DecodeEnvelope([]byte(`{"userEmail": "a@x.io"}`))
	assert.Error(t, err, "eventType is mandatory")

	_, err = DecodeEnvelope([]byte(`{"eventType": "ORDER_FILLED"}`))
	assert.Error(t, err, "userEmail is mandatory")
}

func TestDecodePayloadVariants(t *testing.T) {
	cases := []struct {
		eventType string
		body      string
		check     func(t *testing.T, decoded interface{})
	}{
		{
			eventType: EventOrderFilled,
			body:      `"orderId":"O-1","symbol":"AAPL","filledQuantity":10,"avgExecutionPrice":150.25`,
			check: func(t *testing.T, decoded interface{}) {
				event, ok := decoded.(*OrderEvent)
				require.True(t, ok)
				assert.Equal(t, "O-1", event.OrderID)
				require.NotNil(t, event.FilledQuantity)
				assert.True(t, event.FilledQuantity.Equal(decimal.NewFromInt(10)))
				require.NotNil(t, event.AvgExecutionPrice)
				assert.Equal(t, "150.25", event.AvgExecutionPrice.String())
			},
		},
		{
			eventType: EventDepositCompleted,
			body:      `"transactionId":"txn-1","amount":"250.00","currency":"USD","method":"wire"`,
			check: func(t *testing.T, decoded interface{}) {
				event, ok := decoded.(*MoneyMovementEvent)
				require.True(t, ok)
				assert.Equal(t, "txn-1", event.TransactionID)
				assert.Equal(t, "USD", event.Currency)
			},
		},
		{
			eventType: EventSuspiciousLogin,
			body:      `"ipAddress":"203.0.113.9","location":"Reykjavik","device":"unknown"`,
			check: func(t *testing.T, decoded interface{}) {
				event, ok := decoded.(*AccountEvent)
				require.True(t, ok)
				assert.Equal(t, "203.0.113.9", event.IPAddress)
			},
		},
		{
			eventType: EventBalanceUpdated,
			body:      `"accountId":"acc-1","balance":"1000.25","currency":"USD","change":"-12.75"`,
			check: func(t *testing.T, decoded interface{}) {
				event, ok := decoded.(*BalanceEvent)
				require.True(t, ok)
				assert.True(t, event.Change.IsNegative())
			},
		},
		{
			eventType: EventPositionClosed,
			body:      `"positionId":"pos-1","symbol":"TSLA","pnl":"340.10","pnlPercent":"4.2"`,
			check: func(t *testing.T, decoded interface{}) {
				event, ok := decoded.(*PositionEvent)
				require.True(t, ok)
				assert.Equal(t, "TSLA", event.Symbol)
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.eventType, func(t *testing.T) {
			data := []byte(`{"eventType":"` + tc.eventType + `","userEmail":"a@x.io",` + tc.body + `}`)
			envelope, err := DecodeEnvelope(data)
			require.NoError(t, err)

			decoded, err := DecodePayload(envelope)
			require.NoError(t, err)
			tc.check(t, decoded)
		})
	}
}

func TestDecodePayloadUnknownEventType(t *testing.T) {
	envelope, err := DecodeEnvelope([]byte(`{"eventType":"COFFEE_READY","userEmail":"a@x.io"}`))
	require.NoError(t, err)
	_, err = DecodePayload(envelope)
	assert.Error(t, err)
}

func TestDecodePayloadWithoutTypeSpecificFields(t *testing.T) {
	envelope, err := DecodeEnvelope([]byte(`{"eventType":"EMAIL_VERIFIED","userEmail":"a@x.io"}`))
	require.NoError(t, err)

	decoded, err := DecodePayload(envelope)
	require.NoError(t, err)
	_, ok := decoded.(*AccountEvent)
	assert.True(t, ok)
}

func TestDecodePayloadMalformedBody(t *testing.T) {
	envelope, err := DecodeEnvelope(
		[]byte(`{"eventType":"ORDER_PLACED","userEmail":"a@x.io","quantity":"not-a-number"}`))
	require.NoError(t, err)

	_, err = DecodePayload(envelope)
	assert.Error(t, err)
}
