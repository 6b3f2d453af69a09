package fanout_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatfabric/notify-server/internal/adapter/pubsub"
	"github.com/chatfabric/notify-server/internal/domain/event"
	"github.com/chatfabric/notify-server/internal/domain/ids"
	"github.com/chatfabric/notify-server/internal/service/fanout"
)

type fakeMembership struct {
	chatMembers map[ids.ChatID][]ids.UserID
	workspace   map[ids.WorkspaceID][]ids.UserID
}

func (f *fakeMembership) MembersOf(_ context.Context, chatID ids.ChatID) ([]ids.UserID, error) {
	return f.chatMembers[chatID], nil
}

func (f *fakeMembership) WorkspaceUsers(_ context.Context, workspaceID ids.WorkspaceID) ([]ids.UserID, error) {
	return f.workspace[workspaceID], nil
}

type fakeRegistry struct {
	online map[ids.UserID]bool
	calls  []ids.UserID
}

func (f *fakeRegistry) Broadcast(userID ids.UserID, _ *event.Envelope) bool {
	f.calls = append(f.calls, userID)
	return f.online[userID]
}

type fakeTelemetry struct {
	eventID            ids.EventID
	delivered, dropped uint32
	noTarget           bool
	calls              int
}

func (f *fakeTelemetry) FanoutCompleted(eventID ids.EventID, delivered, dropped uint32, noTarget bool) {
	f.eventID, f.delivered, f.dropped, f.noTarget = eventID, delivered, dropped, noTarget
	f.calls++
}

func TestDispatchMessageCreatedRoutesBySnapshotNotLiveIndex(t *testing.T) {
	members := &fakeMembership{chatMembers: map[ids.ChatID][]ids.UserID{7: {999}}} // stale live index
	registry := &fakeRegistry{online: map[ids.UserID]bool{1: true, 2: true}}
	telemetry := &fakeTelemetry{}
	d := fanout.New(members, registry, telemetry, nil, nil)

	env := event.NewEnvelope(1, 7, 1, &event.MessageCreatedPayload{
		MessageID: 1, ChatID: 7, SenderUserID: 1, MembersSnapshot: []ids.UserID{1, 2},
	})

	require.NoError(t, d.Dispatch(context.Background(), env))
	assert.ElementsMatch(t, []ids.UserID{1, 2}, registry.calls)
	assert.EqualValues(t, 2, telemetry.delivered)
	assert.EqualValues(t, 0, telemetry.dropped)
	assert.False(t, telemetry.noTarget)
}

func TestDispatchChatScopedEventWithoutSnapshotUsesLiveIndex(t *testing.T) {
	members := &fakeMembership{chatMembers: map[ids.ChatID][]ids.UserID{7: {1, 2, 3}}}
	registry := &fakeRegistry{online: map[ids.UserID]bool{1: true, 2: false, 3: true}}
	telemetry := &fakeTelemetry{}
	d := fanout.New(members, registry, telemetry, nil, nil)

	env := event.NewEnvelope(1, 7, 1, &event.TypingStartedPayload{UserID: 1})

	require.NoError(t, d.Dispatch(context.Background(), env))
	assert.ElementsMatch(t, []ids.UserID{1, 2, 3}, registry.calls)
	assert.EqualValues(t, 2, telemetry.delivered)
	assert.EqualValues(t, 1, telemetry.dropped)
}

func TestDispatchUserScopedEventTargetsSingleUser(t *testing.T) {
	members := &fakeMembership{}
	registry := &fakeRegistry{online: map[ids.UserID]bool{5: true}}
	telemetry := &fakeTelemetry{}
	d := fanout.New(members, registry, telemetry, nil, nil)

	env := event.NewEnvelope(1, 0, 0, &event.DuplicateMessageAttemptedPayload{
		ChatID: 7, UserID: 5, IdempotencyKey: "idem-1", OriginalMessageID: 42,
	})

	require.NoError(t, d.Dispatch(context.Background(), env))
	assert.Equal(t, []ids.UserID{5}, registry.calls)
}

func TestDispatchWorkspaceScopedBroadcastsPresenceToWorkspaceUsers(t *testing.T) {
	members := &fakeMembership{workspace: map[ids.WorkspaceID][]ids.UserID{3: {10, 11}}}
	registry := &fakeRegistry{online: map[ids.UserID]bool{10: true, 11: true}}
	telemetry := &fakeTelemetry{}
	d := fanout.New(members, registry, telemetry, nil, nil)

	env := event.NewEnvelope(3, 0, 1, &event.UserPresencePayload{UserID: 1, State: event.PresenceOnline})

	require.NoError(t, d.Dispatch(context.Background(), env))
	assert.ElementsMatch(t, []ids.UserID{10, 11}, registry.calls)
}

func TestDispatchZeroMembersReportsNoTargetAndDoesNotError(t *testing.T) {
	members := &fakeMembership{chatMembers: map[ids.ChatID][]ids.UserID{7: {}}}
	registry := &fakeRegistry{online: map[ids.UserID]bool{}}
	telemetry := &fakeTelemetry{}
	d := fanout.New(members, registry, telemetry, nil, nil)

	env := event.NewEnvelope(1, 7, 1, &event.TypingStoppedPayload{UserID: 1})

	require.NoError(t, d.Dispatch(context.Background(), env))
	assert.True(t, telemetry.noTarget)
	assert.EqualValues(t, 0, telemetry.delivered)
}

func TestHandleMessageDropsDecodeFailureAfterOneRedelivery(t *testing.T) {
	d := fanout.New(&fakeMembership{}, &fakeRegistry{}, &fakeTelemetry{}, nil, nil)

	garbage := pubsub.Message{Data: []byte{0xff, 0xff, 0xff}, DeliveryAttempt: 1}
	err := d.HandleMessage(context.Background(), garbage)
	assert.Error(t, err, "first attempt naks so the broker redelivers once")

	garbage.DeliveryAttempt = 2
	err = d.HandleMessage(context.Background(), garbage)
	assert.NoError(t, err, "second attempt acks to stop the poison-pill loop")
}

func TestHandleMessageRejectsBadSignature(t *testing.T) {
	key := []byte("secret")
	telemetry := &fakeTelemetry{}
	d := fanout.New(&fakeMembership{}, &fakeRegistry{}, telemetry, nil, fanout.SigningKey(key))

	env := event.NewEnvelope(1, 7, 1, &event.TypingStartedPayload{UserID: 1})
	require.NoError(t, event.Sign(env, []byte("wrong-key")))
	b, err := event.Encode(env)
	require.NoError(t, err)

	msg := pubsub.Message{Data: b, DeliveryAttempt: 2}
	assert.NoError(t, d.HandleMessage(context.Background(), msg), "bad signature acks on second attempt, not retried forever")
	assert.Zero(t, telemetry.calls, "a rejected envelope never reaches Dispatch")
}
