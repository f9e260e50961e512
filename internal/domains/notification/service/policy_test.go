package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notification-backend/internal/config"
	"notification-backend/internal/domains/notification/model"
)

// scriptedAdapter returns whatever fn decides for each successive call.
type scriptedAdapter struct {
	channel model.Channel
	calls   int
	fn      func(call int, ctx context.Context) (string, error)
}

func (a *scriptedAdapter) Channel() model.Channel { return a.channel }

func (a *scriptedAdapter) Send(ctx context.Context, _ *model.DispatchRequest) (string, error) {
	a.calls++
	return a.fn(a.calls, ctx)
}

func fastRetry(attempts int) config.RetryConfig {
	return config.RetryConfig{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Jitter:       0,
	}
}

func lenientBreaker() config.BreakerConfig {
	return config.BreakerConfig{
		ErrorRate:     0.99,
		Wait:          time.Minute,
		HalfOpenCalls: 1,
		MinCalls:      100,
	}
}

func TestPolicySuccessPassesThrough(t *testing.T) {
	inner := &scriptedAdapter{channel: model.ChannelEmail,
		fn: func(int, context.Context) (string, error) { return "ext-1", nil }}
	adapter := WrapWithPolicies(inner, fastRetry(3), lenientBreaker(), time.Second)

	id, err := adapter.Send(context.Background(), &model.DispatchRequest{})
	require.NoError(t, err)
	assert.Equal(t, "ext-1", id)
	assert.Equal(t, 1, inner.calls)
}

func TestPolicyRetriesTransientFailure(t *testing.T) {
	inner := &scriptedAdapter{channel: model.ChannelEmail,
		fn: func(call int, _ context.Context) (string, error) {
			if call < 3 {
				return "", errors.New("smtp timeout")
			}
			return "ext-2", nil
		}}
	adapter := WrapWithPolicies(inner, fastRetry(3), lenientBreaker(), time.Second)

	id, err := adapter.Send(context.Background(), &model.DispatchRequest{})
	require.NoError(t, err)
	assert.Equal(t, "ext-2", id)
	assert.Equal(t, 3, inner.calls)
}

func TestPolicyExhaustsAttempts(t *testing.T) {
	cause := errors.New("provider down")
	inner := &scriptedAdapter{channel: model.ChannelSMS,
		fn: func(int, context.Context) (string, error) { return "", cause }}
	adapter := WrapWithPolicies(inner, fastRetry(3), lenientBreaker(), time.Second)

	_, err := adapter.Send(context.Background(), &model.DispatchRequest{})
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 3, inner.calls)
}

func TestPolicyDoesNotRetryPermanentFailure(t *testing.T) {
	inner := &scriptedAdapter{channel: model.ChannelSMS,
		fn: func(int, context.Context) (string, error) {
			return "", model.Permanent(model.ErrInvalidRecipient)
		}}
	adapter := WrapWithPolicies(inner, fastRetry(5), lenientBreaker(), time.Second)

	_, err := adapter.Send(context.Background(), &model.DispatchRequest{})
	assert.True(t, model.IsPermanent(err))
	assert.ErrorIs(t, err, model.ErrInvalidRecipient)
	assert.Equal(t, 1, inner.calls, "permanent failures must not burn retries")
}

func TestPolicyBreakerOpensAfterErrorRate(t *testing.T) {
	inner := &scriptedAdapter{channel: model.ChannelPush,
		fn: func(int, context.Context) (string, error) {
			return "", errors.New("fcm unavailable")
		}}
	breakerCfg := config.BreakerConfig{
		ErrorRate:     0.5,
		Wait:          time.Minute,
		HalfOpenCalls: 1,
		MinCalls:      2,
	}
	adapter := WrapWithPolicies(inner, fastRetry(1), breakerCfg, time.Second)
	ctx := context.Background()

	// Two failing calls reach MinCalls at a 100% error rate.
	_, err := adapter.Send(ctx, &model.DispatchRequest{})
	require.Error(t, err)
	_, err = adapter.Send(ctx, &model.DispatchRequest{})
	require.Error(t, err)
	callsBefore := inner.calls

	// The breaker is now open: the provider is not called again and the
	// caller sees the circuit-open sentinel.
	_, err = adapter.Send(ctx, &model.DispatchRequest{})
	assert.ErrorIs(t, err, model.ErrCircuitOpen)
	assert.Equal(t, callsBefore, inner.calls)
}

func TestPolicyAttemptTimeout(t *testing.T) {
	inner := &scriptedAdapter{channel: model.ChannelEmail,
		fn: func(_ int, ctx context.Context) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		}}
	adapter := WrapWithPolicies(inner, fastRetry(2), lenientBreaker(), 10*time.Millisecond)

	start := time.Now()
	_, err := adapter.Send(context.Background(), &model.DispatchRequest{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 2, inner.calls, "timeouts are transient and retried")
	assert.Less(t, time.Since(start), time.Second)
}

func TestRetryDelaySchedule(t *testing.T) {
	cfg := config.RetryConfig{
		InitialDelay: 5 * time.Second,
		MaxDelay:     60 * time.Second,
		Jitter:       0,
	}

	assert.Equal(t, 5*time.Second, RetryDelay(cfg, 0))
	assert.Equal(t, 10*time.Second, RetryDelay(cfg, 1))
	assert.Equal(t, 20*time.Second, RetryDelay(cfg, 2))
	assert.Equal(t, 40*time.Second, RetryDelay(cfg, 3))
	assert.Equal(t, 60*time.Second, RetryDelay(cfg, 4), "capped at MaxDelay")
	assert.Equal(t, 60*time.Second, RetryDelay(cfg, 10))
}

func TestRetryDelayJitterStaysBounded(t *testing.T) {
	cfg := config.RetryConfig{
		InitialDelay: 10 * time.Second,
		MaxDelay:     60 * time.Second,
		Jitter:       0.2,
	}

	for i := 0; i < 50; i++ {
		delay := RetryDelay(cfg, 1) // base 20s, spread 4s
		assert.GreaterOrEqual(t, delay, 16*time.Second)
		assert.LessOrEqual(t, delay, 24*time.Second)
	}
}
