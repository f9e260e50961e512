package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"notification-backend/internal/config"
	"notification-backend/internal/domains/notification/model"
	"notification-backend/internal/metrics"
)

// ================================================
// POLICY-WRAPPED ADAPTERS
// ================================================

// policyAdapter composes the delivery policies around a raw channel adapter,
// outermost first: attempt timeout, then retry with backoff, then the
// circuit breaker. The breaker sits innermost so retries of a flapping
// provider count against its error rate.
type policyAdapter struct {
	inner   ChannelAdapter
	breaker *gobreaker.CircuitBreaker
	retry   config.RetryConfig
	timeout time.Duration
}

// WrapWithPolicies builds the policy stack for one channel adapter.
func WrapWithPolicies(inner ChannelAdapter, retry config.RetryConfig, breakerCfg config.BreakerConfig, timeout time.Duration) ChannelAdapter {
	channel := string(inner.Channel())

	settings := gobreaker.Settings{
		Name:        channel,
		MaxRequests: uint32(breakerCfg.HalfOpenCalls),
		Timeout:     breakerCfg.Wait,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < uint32(breakerCfg.MinCalls) {
				return false
			}
			errorRate := float64(counts.TotalFailures) / float64(counts.Requests)
			return errorRate >= breakerCfg.ErrorRate
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.BreakerTransitions.WithLabelValues(name, to.String()).Inc()
			log.Warn().
				Str("channel", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("[Policy] Circuit breaker state change")
		},
	}

	return &policyAdapter{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(settings),
		retry:   retry,
		timeout: timeout,
	}
}

func (p *policyAdapter) Channel() model.Channel {
	return p.inner.Channel()
}

func (p *policyAdapter) Send(ctx context.Context, req *model.DispatchRequest) (string, error) {
	var externalID string

	operation := func() error {
		id, err := p.attempt(ctx, req)
		if err == nil {
			externalID = id
			return nil
		}

		// A permanent failure or an open breaker must not burn retries.
		if model.IsPermanent(err) || errors.Is(err, gobreaker.ErrOpenState) ||
			errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithContext(p.backoffPolicy(), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("%w: %s", model.ErrCircuitOpen, p.inner.Channel())
		}
		return "", err
	}
	return externalID, nil
}

// attempt is one breaker-guarded, deadline-bounded provider call.
func (p *policyAdapter) attempt(ctx context.Context, req *model.DispatchRequest) (string, error) {
	result, err := p.breaker.Execute(func() (interface{}, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()
		return p.inner.Send(attemptCtx, req)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// backoffPolicy builds the exponential schedule from config. backoff/v4 owns
// the doubling and cap; the randomization factor supplies the jitter.
func (p *policyAdapter) backoffPolicy() backoff.BackOff {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = p.retry.InitialDelay
	expo.MaxInterval = p.retry.MaxDelay
	expo.Multiplier = 2
	expo.RandomizationFactor = p.retry.Jitter
	expo.MaxElapsedTime = 0 // bounded by attempt count, not wall time
	expo.Reset()

	// MaxAttempts counts total tries, so retries = attempts - 1.
	retries := p.retry.MaxAttempts - 1
	if retries < 0 {
		retries = 0
	}
	return backoff.WithMaxRetries(expo, uint64(retries))
}

// RetryDelay computes the scheduled backoff before re-queueing a FAILED
// record, used by the retry sweep: initial * 2^retryCount, capped, with
// jitter applied symmetrically.
func RetryDelay(cfg config.RetryConfig, retryCount int) time.Duration {
	delay := cfg.InitialDelay
	for i := 0; i < retryCount && delay < cfg.MaxDelay; i++ {
		delay *= 2
	}
	if delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	if cfg.Jitter > 0 {
		spread := cfg.Jitter * float64(delay)
		delay += time.Duration((rand.Float64()*2 - 1) * spread)
	}
	if delay < 0 {
		delay = 0
	}
	return delay
}
