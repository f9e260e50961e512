package email

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notification-backend/internal/config"
	"notification-backend/internal/domains/notification/model"
)

func testConfig() config.SMTPConfig {
	return config.SMTPConfig{
		Host: "mail.example.com",
		Port: "587",
		From: "noreply@notifications.dev",
	}
}

func testRequest() *model.DispatchRequest {
	address := "alice@example.com"
	return &model.DispatchRequest{
		NotificationID: uuid.New(),
		Channel:        model.ChannelEmail,
		Recipient:      "user-1",
		EmailAddress:   &address,
		Subject:        "Order filled",
		Content:        "Your order ord-1 filled at 101.5",
		CorrelationID:  "corr-1",
	}
}

func TestSendBuildsWellFormedMessage(t *testing.T) {
	adapter := NewAdapter(testConfig())

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg string
	adapter.send = func(_ context.Context, addr, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, string(msg)
		return nil
	}

	req := testRequest()
	id, err := adapter.Send(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "smtp-"+req.NotificationID.String(), id)

	assert.Equal(t, "mail.example.com:587", gotAddr)
	assert.Equal(t, "noreply@notifications.dev", gotFrom)
	assert.Equal(t, []string{"alice@example.com"}, gotTo)

	assert.Contains(t, gotMsg, "To: alice@example.com\r\n")
	assert.Contains(t, gotMsg, "Subject: Order filled\r\n")
	assert.Contains(t, gotMsg, "Content-Type: text/plain")
	assert.NotContains(t, gotMsg, "multipart/alternative")
	assert.True(t, strings.HasSuffix(gotMsg, "\r\n"+req.Content),
		"headers and body are separated by a blank line")
}

func TestSendEmitsMultipartWhenHTMLPresent(t *testing.T) {
	adapter := NewAdapter(testConfig())

	var gotMsg string
	adapter.send = func(_ context.Context, _, _ string, _ []string, msg []byte) error {
		gotMsg = string(msg)
		return nil
	}

	req := testRequest()
	html := "<p>Your order <b>ord-1</b> filled at 101.5</p>"
	req.HTMLContent = &html

	_, err := adapter.Send(context.Background(), req)
	require.NoError(t, err)

	assert.Contains(t, gotMsg, `multipart/alternative; boundary="`+mimeBoundary+`"`)
	assert.Contains(t, gotMsg, "Content-Type: text/plain; charset=UTF-8")
	assert.Contains(t, gotMsg, "Content-Type: text/html; charset=UTF-8")
	assert.Contains(t, gotMsg, req.Content)
	assert.Contains(t, gotMsg, html)
	assert.True(t, strings.Contains(gotMsg, "--"+mimeBoundary+"--"),
		"message carries a closing boundary")
	assert.Less(t, strings.Index(gotMsg, req.Content), strings.Index(gotMsg, html),
		"plain part precedes the html part")
}

func TestSendPassesContextToTransport(t *testing.T) {
	adapter := NewAdapter(testConfig())

	var gotCtx context.Context
	adapter.send = func(ctx context.Context, _, _ string, _ []string, _ []byte) error {
		gotCtx = ctx
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	_, err := adapter.Send(ctx, testRequest())
	require.NoError(t, err)
	assert.Same(t, ctx, gotCtx)

	cancel()
	_, err = adapter.Send(ctx, testRequest())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSendRejectsInvalidAddress(t *testing.T) {
	adapter := NewAdapter(testConfig())
	adapter.send = func(context.Context, string, string, []string, []byte) error {
		t.Fatal("send must not be reached")
		return nil
	}

	for _, bad := range []string{"no-at-sign", "@example.com", "user@", "a b@example.com", "user@nodot"} {
		req := testRequest()
		req.EmailAddress = &bad
		_, err := adapter.Send(context.Background(), req)
		assert.ErrorIs(t, err, model.ErrInvalidRecipient, "address %q", bad)
		assert.True(t, model.IsPermanent(err))
	}
}

func TestSendRejectsOversizedContent(t *testing.T) {
	adapter := NewAdapter(testConfig())
	req := testRequest()
	req.Content = strings.Repeat("x", maxContentBytes+1)

	_, err := adapter.Send(context.Background(), req)
	assert.ErrorIs(t, err, model.ErrContentTooLarge)
	assert.True(t, model.IsPermanent(err))
}

func TestSendRequiresConfiguredHost(t *testing.T) {
	adapter := NewAdapter(config.SMTPConfig{})
	_, err := adapter.Send(context.Background(), testRequest())
	assert.ErrorIs(t, err, model.ErrMissingConfig)
}

func TestSendWrapsTransportErrors(t *testing.T) {
	adapter := NewAdapter(testConfig())
	adapter.send = func(context.Context, string, string, []string, []byte) error {
		return assert.AnError
	}

	_, err := adapter.Send(context.Background(), testRequest())
	assert.ErrorIs(t, err, assert.AnError)
	assert.False(t, model.IsPermanent(err), "transport failures stay retryable")
}
