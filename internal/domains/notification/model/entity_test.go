package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPreference(t *testing.T) {
	pref := DefaultPreference("user-1")

	assert.Equal(t, "user-1", pref.UserID)
	assert.True(t, pref.NotificationsEnabled)
	assert.Equal(t, ChannelEmail, pref.PreferredChannel)
	assert.ElementsMatch(t, []Channel{ChannelEmail, ChannelInApp}, pref.EnabledChannels)
	assert.ElementsMatch(t, AllCategories, pref.EnabledCategories)
	assert.False(t, pref.QuietHoursEnabled)
	assert.Equal(t, "22:00", pref.QuietStart)
	assert.Equal(t, "07:00", pref.QuietEnd)
	assert.Equal(t, 20, pref.FrequencyLimitPerHour)
	assert.Equal(t, 100, pref.FrequencyLimitPerDay)
}

func TestPreferenceSetMembership(t *testing.T) {
	pref := DefaultPreference("user-1")

	assert.True(t, pref.HasChannel(ChannelEmail))
	assert.True(t, pref.HasChannel(ChannelInApp))
	assert.False(t, pref.HasChannel(ChannelSMS))
	assert.False(t, pref.HasChannel(ChannelPush))

	assert.True(t, pref.HasCategory(CategoryMarketing))
	pref.EnabledCategories = []TemplateCategory{CategorySecurity}
	assert.False(t, pref.HasCategory(CategoryMarketing))
	assert.True(t, pref.HasCategory(CategorySecurity))
}

func TestDispatchRequestAddress(t *testing.T) {
	email := "alice@example.com"
	phone := "+15551234567"
	token := "device-token-1"

	req := DispatchRequest{
		Channel:      ChannelEmail,
		Recipient:    "user-1",
		EmailAddress: &email,
		PhoneNumber:  &phone,
		DeviceToken:  &token,
	}
	assert.Equal(t, email, req.Address())

	req.Channel = ChannelSMS
	assert.Equal(t, phone, req.Address())

	req.Channel = ChannelPush
	assert.Equal(t, token, req.Address())

	// IN_APP and missing addresses fall back to the recipient key.
	req.Channel = ChannelInApp
	assert.Equal(t, "user-1", req.Address())

	req = DispatchRequest{Channel: ChannelEmail, Recipient: "user-1"}
	assert.Equal(t, "user-1", req.Address())
}

func TestPriorityRank(t *testing.T) {
	assert.Greater(t, PriorityUrgent.Rank(), PriorityHigh.Rank())
	assert.Greater(t, PriorityHigh.Rank(), PriorityMedium.Rank())
	assert.Greater(t, PriorityMedium.Rank(), PriorityLow.Rank())
	assert.False(t, Priority("CRITICAL").Valid())
	assert.True(t, PriorityLow.Valid())
}

func TestJSONBRoundTrip(t *testing.T) {
	payload := JSONB{"orderId": "ord-1", "amount": 42.5}

	value, err := payload.Value()
	require.NoError(t, err)

	var decoded JSONB
	require.NoError(t, decoded.Scan(value))
	assert.Equal(t, "ord-1", decoded["orderId"])
	assert.Equal(t, 42.5, decoded["amount"])
}

func TestJSONBScanRejectsNonBytes(t *testing.T) {
	var decoded JSONB
	assert.ErrorIs(t, decoded.Scan(12345), ErrInvalidJSONB)
}
