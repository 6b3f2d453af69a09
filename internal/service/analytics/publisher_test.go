package analytics_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatfabric/notify-server/internal/adapter/pubsub/fake"
	domainanalytics "github.com/chatfabric/notify-server/internal/domain/analytics"
	"github.com/chatfabric/notify-server/internal/domain/ids"
	"github.com/chatfabric/notify-server/internal/service/analytics"
)

func newTestPublisher(t *testing.T) (*analytics.Publisher, *fake.Transport) {
	t.Helper()
	transport := fake.New()
	p := analytics.New(analytics.Config{
		Enabled:       true,
		Subject:       "notify.analytics.events",
		BatchSize:     2,
		FlushInterval: 10 * time.Millisecond,
		QueueCapacity: 4,
	}, transport, nil)
	t.Cleanup(p.Close)
	return p, transport
}

func TestDisabledPublisherIsNoOp(t *testing.T) {
	transport := fake.New()
	p := analytics.New(analytics.Config{Enabled: false}, transport, nil)
	p.UserConnected(1, "c1", "")
	p.Close()
	assert.Empty(t, transport.PublishedTo("notify.analytics.events"))
}

func TestPublisherFlushesOnBatchSize(t *testing.T) {
	p, transport := newTestPublisher(t)

	p.UserConnected(1, "c1", "ua")
	p.UserDisconnected(1, "c1", 1500)

	require.Eventually(t, func() bool {
		return len(transport.PublishedTo("notify.analytics.events")) >= 2
	}, time.Second, 5*time.Millisecond)

	published := transport.PublishedTo("notify.analytics.events")
	first, err := domainanalytics.Decode(published[0])
	require.NoError(t, err)
	assert.Equal(t, domainanalytics.RecordUserConnected, first.Kind)
}

func TestPublisherFlushesOnTimerWithPartialBatch(t *testing.T) {
	p, transport := newTestPublisher(t)

	p.FanoutCompleted(ids.EventID("evt-1"), 2, 1, false)

	require.Eventually(t, func() bool {
		return len(transport.PublishedTo("notify.analytics.events")) == 1
	}, time.Second, 5*time.Millisecond)
}

