// Package membership implements C3: the in-memory membership index that C5
// consults to resolve "who is in this chat" / "what chats is this user in"
// without a relational round trip on the hot fan-out path.
//
// The shape mirrors the teacher's registry.Hub actor pattern — a sync.Map
// keyed by entity id, each entry owning its own RWMutex — but applied to
// membership sets instead of connection mailboxes. Lock ordering is always
// chat-shard then user-shard; Apply is the only place both are taken
// together, so nothing else needs to reason about deadlock avoidance.
package membership

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"

	"github.com/chatfabric/notify-server/internal/domain/event"
	"github.com/chatfabric/notify-server/internal/domain/ids"
)

// InstanceStore is the relational-store port C3 falls back to on a cache
// miss. The store itself is an external collaborator, out of scope here.
type InstanceStore interface {
	MembersOfChat(ctx context.Context, chatID ids.ChatID) ([]ids.UserID, error)
	ChatsOfUser(ctx context.Context, userID ids.UserID) ([]ids.ChatID, error)
	// UsersOfWorkspace backs C5's WorkspaceScope routing category (§4.5
	// step 1, "used sparingly") — e.g. UserPresence fan-out.
	UsersOfWorkspace(ctx context.Context, workspaceID ids.WorkspaceID) ([]ids.UserID, error)
}

type chatShard struct {
	mu       sync.RWMutex
	members  map[ids.UserID]struct{}
	hydrated bool
}

type userShard struct {
	mu       sync.RWMutex
	chats    map[ids.ChatID]struct{}
	hydrated bool
}

type workspaceShard struct {
	mu       sync.RWMutex
	users    map[ids.UserID]struct{}
	hydrated bool
}

// Index is the concurrent, shard-per-entity membership table.
type Index struct {
	chatMembers   sync.Map // ids.ChatID -> *chatShard
	userChats     sync.Map // ids.UserID -> *userShard
	workspaceUsers sync.Map // ids.WorkspaceID -> *workspaceShard

	store InstanceStore

	// negativeEmpty caches chat ids known (as of last hydration) to have
	// zero members, so a burst of events on a quiet/archived chat doesn't
	// re-hit the store on every single one.
	negativeEmpty *lru.Cache[ids.ChatID, struct{}]

	hydrateGroup singleflight.Group
	breaker      *gobreaker.CircuitBreaker
}

// Option configures an Index at construction time.
type Option func(*Index)

// WithNegativeCacheSize bounds the negative-lookup cache. Default 4096.
func WithNegativeCacheSize(n int) Option {
	return func(ix *Index) {
		c, err := lru.New[ids.ChatID, struct{}](n)
		if err == nil {
			ix.negativeEmpty = c
		}
	}
}

// WithBreaker overrides the default circuit breaker settings wrapping
// InstanceStore calls.
func WithBreaker(st gobreaker.Settings) Option {
	return func(ix *Index) { ix.breaker = gobreaker.NewCircuitBreaker(st) }
}

// New builds an Index backed by store, applying opts in order.
func New(store InstanceStore, opts ...Option) *Index {
	negCache, _ := lru.New[ids.ChatID, struct{}](4096)
	ix := &Index{
		store:         store,
		negativeEmpty: negCache,
	}
	ix.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "membership-store",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     5 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	for _, o := range opts {
		o(ix)
	}
	return ix
}

// MembersOf returns the current member set of chatID, hydrating from the
// store on first access. The returned slice is a snapshot copy — callers
// must not assume it reflects subsequent Apply calls.
func (ix *Index) MembersOf(ctx context.Context, chatID ids.ChatID) ([]ids.UserID, error) {
	shard, err := ix.chatShard(ctx, chatID, true)
	if err != nil {
		return nil, err
	}
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	out := make([]ids.UserID, 0, len(shard.members))
	for u := range shard.members {
		out = append(out, u)
	}
	return out, nil
}

// ChatsOf returns the current chat set of userID, hydrating from the store
// on first access.
func (ix *Index) ChatsOf(ctx context.Context, userID ids.UserID) ([]ids.ChatID, error) {
	shard, err := ix.userShardFor(ctx, userID, true)
	if err != nil {
		return nil, err
	}
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	out := make([]ids.ChatID, 0, len(shard.chats))
	for c := range shard.chats {
		out = append(out, c)
	}
	return out, nil
}

// WorkspaceUsers returns the current user set of workspaceID, hydrating
// from the store on first access. This backs C5's WorkspaceScope routing
// category only — it is not kept live by Apply the way chat/user shards
// are, since no envelope kind in §3's data model reports workspace
// membership changes; staleness here is bounded by process lifetime, which
// is acceptable for a broadcast path used sparingly.
func (ix *Index) WorkspaceUsers(ctx context.Context, workspaceID ids.WorkspaceID) ([]ids.UserID, error) {
	shard, err := ix.workspaceShardFor(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	out := make([]ids.UserID, 0, len(shard.users))
	for u := range shard.users {
		out = append(out, u)
	}
	return out, nil
}

// EvictWorkspace forces WorkspaceUsers to re-hydrate from the store on next
// access.
func (ix *Index) EvictWorkspace(workspaceID ids.WorkspaceID) {
	ix.workspaceUsers.Delete(workspaceID)
}

func (ix *Index) workspaceShardFor(ctx context.Context, workspaceID ids.WorkspaceID) (*workspaceShard, error) {
	val, _ := ix.workspaceUsers.LoadOrStore(workspaceID, &workspaceShard{users: make(map[ids.UserID]struct{})})
	ws := val.(*workspaceShard)

	ws.mu.RLock()
	hydrated := ws.hydrated
	ws.mu.RUnlock()
	if hydrated {
		return ws, nil
	}

	key := fmt.Sprintf("workspace:%d", workspaceID)
	_, err, _ := ix.hydrateGroup.Do(key, func() (any, error) {
		result, err := ix.breaker.Execute(func() (any, error) {
			return ix.store.UsersOfWorkspace(ctx, workspaceID)
		})
		if err != nil {
			return nil, fmt.Errorf("membership: hydrate workspace %d: %w", workspaceID, err)
		}
		users := result.([]ids.UserID)
		ws.mu.Lock()
		ws.users = make(map[ids.UserID]struct{}, len(users))
		for _, u := range users {
			ws.users[u] = struct{}{}
		}
		ws.hydrated = true
		ws.mu.Unlock()
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return ws, nil
}

// Apply folds a membership-mutating envelope into the index. It is the
// single entry point that ever takes both a chat shard and a user shard
// lock, always in chat-then-user order, so no other path needs to worry
// about lock ordering.
func (ix *Index) Apply(ctx context.Context, env *event.Envelope) error {
	switch p := env.Payload.(type) {
	case *event.ChatCreatedPayload:
		cs := ix.loadOrCreateChatShard(p.ChatID)
		cs.mu.Lock()
		cs.members = make(map[ids.UserID]struct{}, len(p.MemberUserIDs))
		for _, u := range p.MemberUserIDs {
			cs.members[u] = struct{}{}
		}
		cs.hydrated = true
		cs.mu.Unlock()

		for _, u := range p.MemberUserIDs {
			us := ix.loadOrCreateUserShard(u)
			us.mu.Lock()
			if us.chats == nil {
				us.chats = make(map[ids.ChatID]struct{})
			}
			us.chats[p.ChatID] = struct{}{}
			us.mu.Unlock()
		}
		ix.negativeEmpty.Remove(p.ChatID)

	case *event.ChatMemberJoinedPayload:
		cs := ix.loadOrCreateChatShard(p.ChatID)
		cs.mu.Lock()
		if cs.members == nil {
			cs.members = make(map[ids.UserID]struct{})
		}
		cs.members[p.UserID] = struct{}{}
		cs.mu.Unlock()

		us := ix.loadOrCreateUserShard(p.UserID)
		us.mu.Lock()
		if us.chats == nil {
			us.chats = make(map[ids.ChatID]struct{})
		}
		us.chats[p.ChatID] = struct{}{}
		us.mu.Unlock()
		ix.negativeEmpty.Remove(p.ChatID)

	case *event.ChatMemberLeftPayload:
		if cs, ok := ix.loadChatShard(p.ChatID); ok {
			cs.mu.Lock()
			delete(cs.members, p.UserID)
			empty := len(cs.members) == 0
			cs.mu.Unlock()
			if empty {
				ix.negativeEmpty.Add(p.ChatID, struct{}{})
			}
		}
		if us, ok := ix.loadUserShard(p.UserID); ok {
			us.mu.Lock()
			delete(us.chats, p.ChatID)
			us.mu.Unlock()
		}

	case *event.ChatDeletedPayload:
		ix.EvictChat(p.ChatID)

	default:
		return fmt.Errorf("membership: apply: unsupported kind %s", env.Kind)
	}
	return nil
}

// EvictChat drops a chat's shard outright, e.g. on ChatDeleted. Member
// user shards are left alone; their stale entry for this chat is harmless
// (ChatsOf consumers are expected to treat a 404 from the store as "no
// longer a member") and gets corrected on their own next hydration.
func (ix *Index) EvictChat(chatID ids.ChatID) {
	ix.chatMembers.Delete(chatID)
	ix.negativeEmpty.Remove(chatID)
}

// EvictUser drops a user's shard outright, e.g. on account deletion.
func (ix *Index) EvictUser(userID ids.UserID) {
	ix.userChats.Delete(userID)
}

func (ix *Index) loadOrCreateChatShard(chatID ids.ChatID) *chatShard {
	val, _ := ix.chatMembers.LoadOrStore(chatID, &chatShard{members: make(map[ids.UserID]struct{})})
	return val.(*chatShard)
}

func (ix *Index) loadOrCreateUserShard(userID ids.UserID) *userShard {
	val, _ := ix.userChats.LoadOrStore(userID, &userShard{chats: make(map[ids.ChatID]struct{})})
	return val.(*userShard)
}

func (ix *Index) loadChatShard(chatID ids.ChatID) (*chatShard, bool) {
	val, ok := ix.chatMembers.Load(chatID)
	if !ok {
		return nil, false
	}
	return val.(*chatShard), true
}

func (ix *Index) loadUserShard(userID ids.UserID) (*userShard, bool) {
	val, ok := ix.userChats.Load(userID)
	if !ok {
		return nil, false
	}
	return val.(*userShard), true
}

// chatShard returns a hydrated shard for chatID, consulting the negative
// cache and collapsing concurrent hydrations of the same key via
// singleflight.
func (ix *Index) chatShard(ctx context.Context, chatID ids.ChatID, allowHydrate bool) (*chatShard, error) {
	cs := ix.loadOrCreateChatShard(chatID)

	cs.mu.RLock()
	hydrated := cs.hydrated
	cs.mu.RUnlock()
	if hydrated || !allowHydrate {
		return cs, nil
	}

	if _, known := ix.negativeEmpty.Get(chatID); known {
		cs.mu.Lock()
		cs.hydrated = true
		cs.mu.Unlock()
		return cs, nil
	}

	key := fmt.Sprintf("chat:%d", chatID)
	_, err, _ := ix.hydrateGroup.Do(key, func() (any, error) {
		members, err := ix.fetchMembersOfChat(ctx, chatID)
		if err != nil {
			return nil, err
		}
		cs.mu.Lock()
		cs.members = make(map[ids.UserID]struct{}, len(members))
		for _, u := range members {
			cs.members[u] = struct{}{}
		}
		cs.hydrated = true
		cs.mu.Unlock()
		if len(members) == 0 {
			ix.negativeEmpty.Add(chatID, struct{}{})
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return cs, nil
}

func (ix *Index) userShardFor(ctx context.Context, userID ids.UserID, allowHydrate bool) (*userShard, error) {
	us := ix.loadOrCreateUserShard(userID)

	us.mu.RLock()
	hydrated := us.hydrated
	us.mu.RUnlock()
	if hydrated || !allowHydrate {
		return us, nil
	}

	key := fmt.Sprintf("user:%d", userID)
	_, err, _ := ix.hydrateGroup.Do(key, func() (any, error) {
		chats, err := ix.fetchChatsOfUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		us.mu.Lock()
		us.chats = make(map[ids.ChatID]struct{}, len(chats))
		for _, c := range chats {
			us.chats[c] = struct{}{}
		}
		us.hydrated = true
		us.mu.Unlock()
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return us, nil
}

func (ix *Index) fetchMembersOfChat(ctx context.Context, chatID ids.ChatID) ([]ids.UserID, error) {
	result, err := ix.breaker.Execute(func() (any, error) {
		return ix.store.MembersOfChat(ctx, chatID)
	})
	if err != nil {
		return nil, fmt.Errorf("membership: hydrate chat %d: %w", chatID, err)
	}
	return result.([]ids.UserID), nil
}

func (ix *Index) fetchChatsOfUser(ctx context.Context, userID ids.UserID) ([]ids.ChatID, error) {
	result, err := ix.breaker.Execute(func() (any, error) {
		return ix.store.ChatsOfUser(ctx, userID)
	})
	if err != nil {
		return nil, fmt.Errorf("membership: hydrate user %d: %w", userID, err)
	}
	return result.([]ids.ChatID), nil
}
