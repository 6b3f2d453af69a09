package analytics_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatfabric/notify-server/internal/domain/analytics"
	"github.com/chatfabric/notify-server/internal/domain/ids"
)

func TestFanoutCompletedRoundTrip(t *testing.T) {
	rec := analytics.NewRecord(&analytics.FanoutCompletedPayload{
		EventID:   ids.EventID("evt-1"),
		Delivered: 3,
		Dropped:   1,
		NoTarget:  false,
	})

	got, err := analytics.Decode(analytics.Encode(rec))
	require.NoError(t, err)
	assert.Equal(t, analytics.RecordFanoutCompleted, got.Kind)
	p := got.Payload.(*analytics.FanoutCompletedPayload)
	assert.Equal(t, ids.EventID("evt-1"), p.EventID)
	assert.EqualValues(t, 3, p.Delivered)
	assert.EqualValues(t, 1, p.Dropped)
	assert.False(t, p.NoTarget)
}

func TestNotificationReceivedOmitsDurationWhenUnmeasured(t *testing.T) {
	rec := analytics.NewRecord(&analytics.NotificationReceivedPayload{
		UserID:       42,
		WasDelivered: false,
	})

	got, err := analytics.Decode(analytics.Encode(rec))
	require.NoError(t, err)
	p := got.Payload.(*analytics.NotificationReceivedPayload)
	assert.False(t, p.WasDelivered)
	assert.False(t, p.HasDeliveryDuration)
}

func TestUnknownRecordKindPreservesRawPayload(t *testing.T) {
	rec := analytics.NewRecord(&analytics.UserConnectedPayload{UserID: 1, ConnectionID: "c1"})
	b := analytics.Encode(rec)

	// Corrupt the kind tag's value to something this binary doesn't know.
	b2 := append([]byte(nil), b...)
	b2[1] = 99

	got, err := analytics.Decode(b2)
	require.NoError(t, err)
	assert.Nil(t, got.Payload)
	assert.NotEmpty(t, got.RawPayload)
}
