package ingest

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notification-backend/internal/domains/notification/model"
)

func TestMapperHandles(t *testing.T) {
	mapper := NewMapper()

	assert.True(t, mapper.Handles(EventOrderFilled))
	assert.True(t, mapper.Handles(EventSuspiciousLogin))
	assert.False(t, mapper.Handles("HEARTBEAT"))
	assert.False(t, mapper.Handles(""))
}

func TestMapBuildsSendRequest(t *testing.T) {
	mapper := NewMapper()
	qty := decimal.NewFromInt(10)
	price := decimal.RequireFromString("150.25")
	envelope := &Envelope{
		EventType:     EventOrderFilled,
		UserEmail:     "a@x.io",
		UserName:      "A",
		UserID:        "user-1",
		CorrelationID: "corr-1",
	}
	payload := &OrderEvent{
		OrderID:           "O-1",
		Symbol:            "AAPL",
		FilledQuantity:    &qty,
		AvgExecutionPrice: &price,
	}

	req, err := mapper.Map(envelope, payload)
	require.NoError(t, err)

	assert.Equal(t, "a@x.io", req.Recipient, "the recipient is the user's email address")
	require.NotNil(t, req.EmailAddress)
	assert.Equal(t, "a@x.io", *req.EmailAddress)
	assert.Equal(t, string(model.ChannelEmail), req.Channel)
	require.NotNil(t, req.TemplateName)
	assert.Equal(t, "order_execution_alert", *req.TemplateName)
	assert.Equal(t, string(model.PriorityMedium), req.Priority)
	assert.Equal(t, "corr-1", req.CorrelationID,
		"the upstream correlation id survives into the request")
	require.NotNil(t, req.ReferenceID)
	assert.Equal(t, "O-1", *req.ReferenceID)
	require.NotNil(t, req.ReferenceType)
	assert.Equal(t, EventOrderFilled, *req.ReferenceType)

	assert.Equal(t, "O-1", req.TemplateVariables["orderId"])
	assert.Equal(t, "user-1", req.TemplateVariables["userId"])
	assert.Equal(t, "A", req.TemplateVariables["userName"])
	// Decimals are normalized to strings so templates never see
	// scientific notation.
	assert.Equal(t, "10", req.TemplateVariables["filledQuantity"])
	assert.Equal(t, "150.25", req.TemplateVariables["avgExecutionPrice"])
}

func TestMapCarriesFallbackText(t *testing.T) {
	mapper := NewMapper()
	price := decimal.RequireFromString("150.25")
	envelope := &Envelope{
		EventType: EventOrderFilled,
		UserEmail: "a@x.io",
		UserName:  "A",
	}
	payload := &OrderEvent{OrderID: "O-1", Symbol: "AAPL", AvgExecutionPrice: &price}

	req, err := mapper.Map(envelope, payload)
	require.NoError(t, err)

	// The inline text keeps dispatch alive when the mapped template is
	// missing or retired.
	assert.Contains(t, req.Subject, "O-1")
	assert.Contains(t, req.Subject, "AAPL")
	assert.Contains(t, req.Content, "AAPL")
	assert.Contains(t, req.Content, "150.25")
}

func TestMapSecurityEventsRideUrgent(t *testing.T) {
	mapper := NewMapper()
	envelope := &Envelope{EventType: EventSuspiciousLogin, UserEmail: "a@x.io"}

	req, err := mapper.Map(envelope, &AccountEvent{IPAddress: "203.0.113.9"})
	require.NoError(t, err)
	assert.Equal(t, string(model.PriorityUrgent), req.Priority)
	assert.Equal(t, "suspicious_login_alert", *req.TemplateName)
	assert.Equal(t, "203.0.113.9", req.TemplateVariables["ipAddress"])
	assert.True(t, len(req.Subject) > 0 && req.Subject[:14] == "SECURITY ALERT",
		"security fallback subjects lead with the alert marker")
}

func TestMapUnmappedEventFails(t *testing.T) {
	mapper := NewMapper()
	_, err := mapper.Map(&Envelope{EventType: "HEARTBEAT", UserEmail: "a@x.io"}, nil)
	assert.Error(t, err)
}

func TestMapperEnvOverrides(t *testing.T) {
	t.Setenv("EVENT_TEMPLATE_MAP",
		`{"ORDER_FILLED":"custom_fill_template","MARGIN_CALL":"margin_call_alert"}`)
	mapper := NewMapper()

	req, err := mapper.Map(&Envelope{EventType: EventOrderFilled, UserEmail: "a@x.io"},
		&OrderEvent{OrderID: "O-1"})
	require.NoError(t, err)
	assert.Equal(t, "custom_fill_template", *req.TemplateName)
	assert.Equal(t, string(model.PriorityMedium), req.Priority,
		"the built-in priority survives a template override")

	// Overrides may introduce brand new event types at MEDIUM priority.
	assert.True(t, mapper.Handles("MARGIN_CALL"))
	req, err = mapper.Map(&Envelope{EventType: "MARGIN_CALL", UserEmail: "a@x.io"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "margin_call_alert", *req.TemplateName)
	assert.Equal(t, string(model.PriorityMedium), req.Priority)
}

func TestMapperIgnoresMalformedOverride(t *testing.T) {
	t.Setenv("EVENT_TEMPLATE_MAP", `{broken`)
	mapper := NewMapper()

	req, err := mapper.Map(&Envelope{EventType: EventOrderFilled, UserEmail: "a@x.io"},
		&OrderEvent{})
	require.NoError(t, err)
	assert.Equal(t, "order_execution_alert", *req.TemplateName)
}
