package event_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatfabric/notify-server/internal/domain/event"
	"github.com/chatfabric/notify-server/internal/domain/ids"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	env := event.NewEnvelope(42, 7, 100, &event.MessageCreatedPayload{
		MessageID:       9001,
		ChatID:          7,
		SenderUserID:    100,
		Body:            "hello",
		AttachmentURLs:  []string{"https://cdn.example/a.png", "https://cdn.example/b.png"},
		SentAtUnixMilli: 1700000000000,
		MembersSnapshot: []ids.UserID{100, 101, 102},
		IdempotencyKey:  "idem-1",
	})
	env.TraceContext = map[string]string{"traceparent": "00-abc-def-01"}

	require.NoError(t, event.Sign(env, []byte("secret")))

	b, err := event.Encode(env)
	require.NoError(t, err)

	got, err := event.Decode(b)
	require.NoError(t, err)

	assert.Equal(t, env.EventID, got.EventID)
	assert.Equal(t, event.KindMessageCreated, got.Kind)
	assert.Equal(t, ids.WorkspaceID(42), got.WorkspaceID)
	assert.Equal(t, ids.ChatID(7), got.ChatID)
	assert.Equal(t, ids.UserID(100), got.ActorUserID)
	assert.Equal(t, env.OccurredAt.UnixMilli(), got.OccurredAt.UnixMilli())
	assert.Equal(t, "00-abc-def-01", got.TraceContext["traceparent"])

	payload, ok := got.Payload.(*event.MessageCreatedPayload)
	require.True(t, ok)
	assert.Equal(t, ids.MessageID(9001), payload.MessageID)
	assert.Equal(t, "hello", payload.Body)
	assert.Equal(t, []string{"https://cdn.example/a.png", "https://cdn.example/b.png"}, payload.AttachmentURLs)
	assert.Equal(t, []ids.UserID{100, 101, 102}, payload.MembersSnapshot)
	assert.Equal(t, ids.IdempotencyKey("idem-1"), payload.IdempotencyKey)

	ok, err = event.Verify(got, []byte("secret"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	env := event.NewEnvelope(1, 1, 1, &event.TypingStartedPayload{ChatID: 1, UserID: 1, AtUnixMilli: time.Now().UnixMilli()})
	require.NoError(t, event.Sign(env, []byte("secret")))

	b, err := event.Encode(env)
	require.NoError(t, err)

	got, err := event.Decode(b)
	require.NoError(t, err)

	got.Payload.(*event.TypingStartedPayload).UserID = 2

	ok, err := event.Verify(got, []byte("secret"))
	require.NoError(t, err)
	assert.False(t, ok, "signature must not verify after payload mutation")
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	env := event.NewEnvelope(1, 1, 1, &event.UserPresencePayload{UserID: 1, State: event.PresenceOnline, AtUnixMilli: 1})
	require.NoError(t, event.Sign(env, []byte("secret")))

	ok, err := event.Verify(env, []byte("not-the-secret"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDecodeUnknownKindPreservesRawPayload(t *testing.T) {
	env := event.NewEnvelope(1, 1, 1, &event.ChatDeletedPayload{ChatID: 1, DeletedByUserID: 1, DeletedAtUnixMilli: 1})
	b, err := event.Encode(env)
	require.NoError(t, err)

	// Simulate a future kind the running binary predates by re-encoding
	// with an out-of-range kind and the same payload bytes.
	env2, err := event.Decode(b)
	require.NoError(t, err)
	env2.Kind = event.Kind(9999)
	b2, err := event.Encode(env2)
	require.NoError(t, err)

	got, err := event.Decode(b2)
	require.NoError(t, err)
	assert.Nil(t, got.Payload)
	assert.NotEmpty(t, got.RawPayload)
}

func TestKindScopeMatchesRoutingCategories(t *testing.T) {
	assert.Equal(t, event.WorkspaceScope, event.KindUserPresence.Scope())
	assert.Equal(t, event.UserScope, event.KindDuplicateMessageAttempted.Scope())
	assert.Equal(t, event.ChatScope, event.KindMessageCreated.Scope())
	assert.False(t, event.KindUserPresence.ChatScoped())
	assert.True(t, event.KindMessageCreated.ChatScoped())
}

func TestMessageCreatedRoutesBySnapshot(t *testing.T) {
	assert.Equal(t, event.RouteBySnapshot, event.KindMessageCreated.RoutingAuthority())
	assert.Equal(t, event.RouteByLiveIndex, event.KindChatMemberJoined.RoutingAuthority())
}
