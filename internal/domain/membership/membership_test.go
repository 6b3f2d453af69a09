package membership_test

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatfabric/notify-server/internal/domain/event"
	"github.com/chatfabric/notify-server/internal/domain/ids"
	"github.com/chatfabric/notify-server/internal/domain/membership"
)

type fakeStore struct {
	members   map[ids.ChatID][]ids.UserID
	chats     map[ids.UserID][]ids.ChatID
	workspace map[ids.WorkspaceID][]ids.UserID
	calls     int32
}

func (f *fakeStore) MembersOfChat(_ context.Context, chatID ids.ChatID) ([]ids.UserID, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.members[chatID], nil
}

func (f *fakeStore) ChatsOfUser(_ context.Context, userID ids.UserID) ([]ids.ChatID, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.chats[userID], nil
}

func (f *fakeStore) UsersOfWorkspace(_ context.Context, workspaceID ids.WorkspaceID) ([]ids.UserID, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.workspace[workspaceID], nil
}

func TestMembersOfHydratesOnceAndCaches(t *testing.T) {
	store := &fakeStore{members: map[ids.ChatID][]ids.UserID{7: {1, 2, 3}}}
	ix := membership.New(store)

	got, err := ix.MembersOf(context.Background(), 7)
	require.NoError(t, err)
	assert.ElementsMatch(t, []ids.UserID{1, 2, 3}, got)

	_, err = ix.MembersOf(context.Background(), 7)
	require.NoError(t, err)
	assert.EqualValues(t, 1, store.calls, "second lookup must be served from the hydrated shard")
}

func TestApplyChatMemberJoinedUpdatesBothShards(t *testing.T) {
	store := &fakeStore{}
	ix := membership.New(store)

	err := ix.Apply(context.Background(), event.NewEnvelope(1, 7, 9, &event.ChatMemberJoinedPayload{
		ChatID: 7, UserID: 9, AddedByUserID: 1,
	}))
	require.NoError(t, err)

	members, err := ix.MembersOf(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, []ids.UserID{9}, members)

	chats, err := ix.ChatsOf(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, []ids.ChatID{7}, chats)
	assert.Zero(t, store.calls, "shards populated by Apply must not hit the store")
}

func TestApplyChatMemberLeftRemovesFromBothShards(t *testing.T) {
	store := &fakeStore{members: map[ids.ChatID][]ids.UserID{7: {9}}, chats: map[ids.UserID][]ids.ChatID{9: {7}}}
	ix := membership.New(store)

	_, err := ix.MembersOf(context.Background(), 7)
	require.NoError(t, err)
	_, err = ix.ChatsOf(context.Background(), 9)
	require.NoError(t, err)

	err = ix.Apply(context.Background(), event.NewEnvelope(1, 7, 1, &event.ChatMemberLeftPayload{
		ChatID: 7, UserID: 9, RemovedByUserID: 1,
	}))
	require.NoError(t, err)

	members, err := ix.MembersOf(context.Background(), 7)
	require.NoError(t, err)
	assert.Empty(t, members)

	chats, err := ix.ChatsOf(context.Background(), 9)
	require.NoError(t, err)
	assert.Empty(t, chats)
}

func TestEvictChatDropsShardAndNegativeCacheEntry(t *testing.T) {
	store := &fakeStore{members: map[ids.ChatID][]ids.UserID{7: {1}}}
	ix := membership.New(store)

	_, err := ix.MembersOf(context.Background(), 7)
	require.NoError(t, err)
	ix.EvictChat(7)

	_, err = ix.MembersOf(context.Background(), 7)
	require.NoError(t, err)
	assert.EqualValues(t, 2, store.calls, "eviction must force a fresh hydration")
}

func TestWorkspaceUsersHydratesOnceAndCaches(t *testing.T) {
	store := &fakeStore{workspace: map[ids.WorkspaceID][]ids.UserID{3: {1, 2}}}
	ix := membership.New(store)

	got, err := ix.WorkspaceUsers(context.Background(), 3)
	require.NoError(t, err)
	assert.ElementsMatch(t, []ids.UserID{1, 2}, got)

	_, err = ix.WorkspaceUsers(context.Background(), 3)
	require.NoError(t, err)
	assert.EqualValues(t, 1, store.calls, "second lookup must be served from the hydrated shard")

	ix.EvictWorkspace(3)
	_, err = ix.WorkspaceUsers(context.Background(), 3)
	require.NoError(t, err)
	assert.EqualValues(t, 2, store.calls, "eviction must force a fresh hydration")
}

func TestApplyChatDeletedEvictsChat(t *testing.T) {
	store := &fakeStore{members: map[ids.ChatID][]ids.UserID{7: {1}}}
	ix := membership.New(store)

	_, err := ix.MembersOf(context.Background(), 7)
	require.NoError(t, err)

	err = ix.Apply(context.Background(), event.NewEnvelope(1, 7, 1, &event.ChatDeletedPayload{
		ChatID: 7, DeletedByUserID: 1,
	}))
	require.NoError(t, err)

	_, err = ix.MembersOf(context.Background(), 7)
	require.NoError(t, err)
	assert.EqualValues(t, 2, store.calls)
}
