package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notification-backend/internal/domains/notification/model"
)

func TestChannelPerformanceSortedByDeliveryRate(t *testing.T) {
	history := newFakeHistory()
	history.perf = []*model.ChannelPerformance{
		{Channel: model.ChannelEmail, DeliveryRate: 92.5},
		{Channel: model.ChannelPush, DeliveryRate: 99.1},
		{Channel: model.ChannelSMS, DeliveryRate: 92.5},
		{Channel: model.ChannelInApp, DeliveryRate: 100},
	}
	svc := NewAnalyticsService(history)

	results, err := svc.ChannelPerformance(context.Background(), time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.Equal(t, model.ChannelInApp, results[0].Channel)
	assert.Equal(t, model.ChannelPush, results[1].Channel)
	// Ties break alphabetically by channel name.
	assert.Equal(t, model.ChannelEmail, results[2].Channel)
	assert.Equal(t, model.ChannelSMS, results[3].Channel)
}

func TestNormalizeWindowDefaults(t *testing.T) {
	from, to := normalizeWindow(time.Time{}, time.Time{})
	assert.False(t, to.IsZero())
	assert.Equal(t, to.AddDate(0, 0, -30), from)

	// An inverted window collapses to the default lookback.
	end := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	start := end.Add(time.Hour)
	from, to = normalizeWindow(start, end)
	assert.Equal(t, end, to)
	assert.Equal(t, end.AddDate(0, 0, -30), from)

	// A sane window passes through untouched.
	start = end.AddDate(0, 0, -7)
	from, to = normalizeWindow(start, end)
	assert.Equal(t, start, from)
	assert.Equal(t, end, to)
}
