package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"

	domainanalytics "github.com/chatfabric/notify-server/internal/domain/analytics"
	"github.com/chatfabric/notify-server/internal/domain/ids"
)

// TestPushDropsOldestOnFullQueue exercises push() directly, without the
// background batcher goroutine draining the channel concurrently, so the
// bounded queue reliably fills.
func TestPushDropsOldestOnFullQueue(t *testing.T) {
	p := &Publisher{submit: make(chan *domainanalytics.Record, 2)}

	rec := func(u ids.UserID) *domainanalytics.Record {
		return domainanalytics.NewRecord(&domainanalytics.UserConnectedPayload{UserID: u})
	}

	p.push(rec(1))
	p.push(rec(2))
	p.push(rec(3))

	assert.EqualValues(t, 1, p.DroppedCount())
	assert.Len(t, p.submit, 2)
}
