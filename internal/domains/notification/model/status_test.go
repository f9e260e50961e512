package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionLegalEdges(t *testing.T) {
	legal := []struct {
		from Status
		to   Status
	}{
		{StatusQueued, StatusProcessing},
		{StatusQueued, StatusCancelled},
		{StatusProcessing, StatusSent},
		{StatusProcessing, StatusDelivered},
		{StatusProcessing, StatusFailed},
		{StatusSent, StatusDelivered},
		{StatusSent, StatusFailed},
		{StatusDelivered, StatusRead},
		{StatusFailed, StatusQueued},
	}

	for _, edge := range legal {
		assert.True(t, CanTransition(edge.from, edge.to),
			"%s -> %s should be legal", edge.from, edge.to)
	}
}

func TestCanTransitionIllegalEdges(t *testing.T) {
	illegal := []struct {
		from Status
		to   Status
	}{
		{StatusQueued, StatusSent},
		{StatusQueued, StatusDelivered},
		{StatusQueued, StatusRead},
		{StatusProcessing, StatusQueued},
		{StatusProcessing, StatusCancelled},
		{StatusSent, StatusQueued},
		{StatusSent, StatusRead},
		{StatusDelivered, StatusFailed},
		{StatusDelivered, StatusQueued},
		{StatusRead, StatusDelivered},
		{StatusRead, StatusQueued},
		{StatusCancelled, StatusQueued},
		{StatusCancelled, StatusProcessing},
		{StatusFailed, StatusSent},
		{StatusFailed, StatusCancelled},
	}

	for _, edge := range illegal {
		assert.False(t, CanTransition(edge.from, edge.to),
			"%s -> %s should be illegal", edge.from, edge.to)
	}
}

func TestCanTransitionSameStatusIsIdempotent(t *testing.T) {
	for _, status := range []Status{
		StatusQueued, StatusProcessing, StatusSent,
		StatusDelivered, StatusRead, StatusFailed, StatusCancelled,
	} {
		assert.True(t, CanTransition(status, status))
	}
}

func TestTerminal(t *testing.T) {
	assert.True(t, StatusRead.Terminal())
	assert.True(t, StatusCancelled.Terminal())

	assert.False(t, StatusQueued.Terminal())
	assert.False(t, StatusProcessing.Terminal())
	assert.False(t, StatusSent.Terminal())
	assert.False(t, StatusDelivered.Terminal())
	// FAILED is not terminal: the retry sweep may re-queue it.
	assert.False(t, StatusFailed.Terminal())
}

func TestStatusValid(t *testing.T) {
	assert.True(t, StatusQueued.Valid())
	assert.True(t, StatusRead.Valid())
	assert.False(t, Status("DONE").Valid())
	assert.False(t, Status("").Valid())
}

func TestCanRetry(t *testing.T) {
	record := &HistoryRecord{Status: StatusFailed, RetryCount: 2, MaxRetryAttempts: 3}
	assert.True(t, record.CanRetry())

	record.RetryCount = 3
	assert.False(t, record.CanRetry(), "exhausted budget must not retry")

	record.RetryCount = 0
	record.Status = StatusSent
	assert.False(t, record.CanRetry(), "only FAILED records retry")
}
