package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationTypeValid(t *testing.T) {
	for _, valid := range []NotificationType{
		ConnectionRequestType, PatternAchievementType, SessionReminderType,
		NewMatchType, UrgentAnnouncementType, SystemType,
	} {
		assert.True(t, valid.Valid(), string(valid))
	}

	assert.False(t, NotificationType("").Valid())
	assert.False(t, NotificationType("carrier_pigeon").Valid())
}

func TestPriorityRank(t *testing.T) {
	assert.Less(t, PriorityLow.Rank(), PriorityNormal.Rank())
	assert.Less(t, PriorityNormal.Rank(), PriorityHigh.Rank())
	assert.Less(t, PriorityHigh.Rank(), PriorityCritical.Rank())
	assert.Zero(t, Priority("extreme").Rank())
}

func TestDeliveryStatusTerminal(t *testing.T) {
	assert.True(t, StatusDelivered.Terminal())
	assert.True(t, StatusExpired.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusSent.Terminal())
	assert.False(t, StatusFailed.Terminal(), "failed may still be re-offered")
}

func TestErrorSentinelsWrapCleanly(t *testing.T) {
	err := fmt.Errorf("%w: fcm rejected token: %w", ErrPermanent, errors.New("boom"))
	assert.ErrorIs(t, err, ErrPermanent)
	assert.NotErrorIs(t, err, ErrTransient)
}

func TestMetadataValueAndScan(t *testing.T) {
	m := Metadata{"session_id": "s-1", "kind": "reminder"}

	value, err := m.Value()
	require.NoError(t, err)

	var scanned Metadata
	require.NoError(t, scanned.Scan(value))
	assert.Equal(t, m, scanned)
}

func TestMetadataNilHandling(t *testing.T) {
	var m Metadata
	value, err := m.Value()
	require.NoError(t, err)
	assert.Nil(t, value)

	var scanned Metadata
	require.NoError(t, scanned.Scan(nil))
	assert.Nil(t, scanned)
}

func TestMetadataScanRejectsUnknownType(t *testing.T) {
	var m Metadata
	assert.Error(t, m.Scan(42))
}

func TestMetadataScanString(t *testing.T) {
	var m Metadata
	require.NoError(t, m.Scan(`{"a":"b"}`))
	assert.Equal(t, Metadata{"a": "b"}, m)
}
