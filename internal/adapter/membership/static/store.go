// Package static provides a config-seeded InstanceStore for local/dev/test
// fx wiring. The relational store C3 falls back to on a cache miss is an
// external collaborator (spec.md's Non-goals place the chat/user/workspace
// relational schema out of scope) and no concrete client for it ships in
// this retrieval pack, so there is nothing to adapt a real driver onto.
// Production deployments provide their own membership.InstanceStore,
// backed by whatever relational store holds chat membership, via their own
// fx.Provide — this package exists so `cmd` still produces a runnable
// fx.App out of the box, the same role ingress.ReferenceHandler plays for
// C8's HTTP edge.
package static

import (
	"context"
	"sync"

	"github.com/chatfabric/notify-server/internal/domain/ids"
)

// Seed is the static membership data loaded from config at startup.
type Seed struct {
	// ChatMembers maps a chat to its member user ids.
	ChatMembers map[ids.ChatID][]ids.UserID
	// WorkspaceUsers maps a workspace to the user ids that belong to it.
	WorkspaceUsers map[ids.WorkspaceID][]ids.UserID
}

// Store implements membership.InstanceStore over an in-memory Seed,
// inverting ChatMembers into a per-user index once at construction so
// ChatsOfUser doesn't scan every chat on every call.
type Store struct {
	mu             sync.RWMutex
	chatMembers    map[ids.ChatID][]ids.UserID
	workspaceUsers map[ids.WorkspaceID][]ids.UserID
	chatsOfUser    map[ids.UserID][]ids.ChatID
}

// New builds a Store from seed, snapshotting its contents.
func New(seed Seed) *Store {
	s := &Store{
		chatMembers:    make(map[ids.ChatID][]ids.UserID, len(seed.ChatMembers)),
		workspaceUsers: make(map[ids.WorkspaceID][]ids.UserID, len(seed.WorkspaceUsers)),
		chatsOfUser:    make(map[ids.UserID][]ids.ChatID),
	}
	for chatID, members := range seed.ChatMembers {
		cp := append([]ids.UserID(nil), members...)
		s.chatMembers[chatID] = cp
		for _, userID := range members {
			s.chatsOfUser[userID] = append(s.chatsOfUser[userID], chatID)
		}
	}
	for wsID, users := range seed.WorkspaceUsers {
		s.workspaceUsers[wsID] = append([]ids.UserID(nil), users...)
	}
	return s
}

func (s *Store) MembersOfChat(_ context.Context, chatID ids.ChatID) ([]ids.UserID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ids.UserID(nil), s.chatMembers[chatID]...), nil
}

func (s *Store) ChatsOfUser(_ context.Context, userID ids.UserID) ([]ids.ChatID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ids.ChatID(nil), s.chatsOfUser[userID]...), nil
}

func (s *Store) UsersOfWorkspace(_ context.Context, workspaceID ids.WorkspaceID) ([]ids.UserID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ids.UserID(nil), s.workspaceUsers[workspaceID]...), nil
}
