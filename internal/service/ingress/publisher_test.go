package ingress_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatfabric/notify-server/internal/adapter/pubsub"
	"github.com/chatfabric/notify-server/internal/apperr"
	"github.com/chatfabric/notify-server/internal/domain/event"
	"github.com/chatfabric/notify-server/internal/domain/ids"
	"github.com/chatfabric/notify-server/internal/service/ingress"
)

type fakeTransport struct {
	failuresLeft atomic.Int32
	failWith     error
	published    []string
	lastPayload  []byte
}

func (t *fakeTransport) Publish(_ context.Context, subject string, payload []byte) error {
	if t.failuresLeft.Load() > 0 {
		t.failuresLeft.Add(-1)
		return t.failWith
	}
	t.published = append(t.published, subject)
	t.lastPayload = payload
	return nil
}

func (t *fakeTransport) SubscribeDurable(context.Context, pubsub.ConsumerConfig, pubsub.Handler) (pubsub.Subscription, error) {
	return nil, errors.New("not implemented")
}

func (t *fakeTransport) Health(context.Context) error { return nil }
func (t *fakeTransport) Kind() string                 { return "fake" }

func TestPublishSignsAndPublishesEnvelope(t *testing.T) {
	transport := &fakeTransport{}
	pub := ingress.New(ingress.Config{SigningKey: []byte("secret"), SubjectPrefix: "notify"}, transport, nil)

	err := pub.Publish(context.Background(), 1, 7, 1, &event.MessageCreatedPayload{
		ChatID:          7,
		SenderUserID:    1,
		Body:            "hi",
		MembersSnapshot: []ids.UserID{1, 2},
	})
	require.NoError(t, err)

	require.Len(t, transport.published, 1)
	assert.Equal(t, "notify.message_created", transport.published[0])

	env, err := event.Decode(transport.lastPayload)
	require.NoError(t, err)
	ok, err := event.Verify(env, []byte("secret"))
	require.NoError(t, err)
	assert.True(t, ok, "published envelope must carry a valid signature")
}

func TestPublishRetriesTransientFailureThenSucceeds(t *testing.T) {
	transport := &fakeTransport{failWith: apperr.New(apperr.KindConnection, "fake.Publish", errors.New("broker unreachable"))}
	transport.failuresLeft.Store(2)
	pub := ingress.New(ingress.Config{MaxPublishRetry: 5, RetryBackoff: 0}, transport, nil)

	err := pub.Publish(context.Background(), 1, 7, 1, &event.MessageCreatedPayload{ChatID: 7, SenderUserID: 1, Body: "hi"})
	require.NoError(t, err)
	require.Len(t, transport.published, 1)
}

func TestPublishGivesUpAfterMaxRetryOnPersistentTransientFailure(t *testing.T) {
	transport := &fakeTransport{failWith: apperr.New(apperr.KindConnection, "fake.Publish", errors.New("broker unreachable"))}
	transport.failuresLeft.Store(100)
	pub := ingress.New(ingress.Config{MaxPublishRetry: 2, RetryBackoff: 0}, transport, nil)

	err := pub.Publish(context.Background(), 1, 7, 1, &event.MessageCreatedPayload{ChatID: 7, SenderUserID: 1, Body: "hi"})
	require.Error(t, err)
	assert.Empty(t, transport.published)
}

func TestPublishDoesNotRetryNonRetryableFailure(t *testing.T) {
	transport := &fakeTransport{failWith: apperr.New(apperr.KindValidation, "fake.Publish", errors.New("rejected"))}
	transport.failuresLeft.Store(100)
	pub := ingress.New(ingress.Config{MaxPublishRetry: 5, RetryBackoff: 0}, transport, nil)

	err := pub.Publish(context.Background(), 1, 7, 1, &event.MessageCreatedPayload{ChatID: 7, SenderUserID: 1, Body: "hi"})
	require.Error(t, err)
	assert.Empty(t, transport.published)
}
