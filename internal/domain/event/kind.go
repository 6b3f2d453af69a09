package event

// Kind identifies the shape of an envelope's payload. Values are stable wire
// tags: never renumber an existing kind, only append.
type Kind uint32

const (
	KindUnspecified Kind = iota
	KindMessageCreated
	KindMessageEdited
	KindMessageDeleted
	KindChatCreated
	KindChatUpdated
	KindChatMemberJoined
	KindChatMemberLeft
	KindChatDeleted
	KindUserPresence
	KindTypingStarted
	KindTypingStopped
	KindReadReceipt
	KindDuplicateMessageAttempted
)

func (k Kind) String() string {
	switch k {
	case KindMessageCreated:
		return "message_created"
	case KindMessageEdited:
		return "message_edited"
	case KindMessageDeleted:
		return "message_deleted"
	case KindChatCreated:
		return "chat_created"
	case KindChatUpdated:
		return "chat_updated"
	case KindChatMemberJoined:
		return "chat_member_joined"
	case KindChatMemberLeft:
		return "chat_member_left"
	case KindChatDeleted:
		return "chat_deleted"
	case KindUserPresence:
		return "user_presence"
	case KindTypingStarted:
		return "typing_started"
	case KindTypingStopped:
		return "typing_stopped"
	case KindReadReceipt:
		return "read_receipt"
	case KindDuplicateMessageAttempted:
		return "duplicate_message_attempted"
	default:
		return "unspecified"
	}
}

// Scope selects which of C5's four routing-set strategies applies to an
// envelope of this kind.
type Scope int

const (
	// ChatScope: route to members_of(chat_id), or the embedded snapshot —
	// see RoutingAuthority.
	ChatScope Scope = iota
	// UserScope: route to the single target user named by the payload.
	UserScope
	// WorkspaceScope: iterate every user in the workspace. Tagged explicitly
	// per kind, used sparingly.
	WorkspaceScope
)

// ChatScoped reports whether this kind's envelope carries a chat_id at all.
// C5 routing does not call it — see Scope for that.
func (k Kind) ChatScoped() bool {
	return k.Scope() == ChatScope
}

// Scope reports which of C5's routing-set strategies (§4.5 step 1) applies.
// UserPresence has no chat_id and is not addressed to a single recipient —
// it is a workspace-wide broadcast, the fourth of the spec's four routing
// categories, which is also why it is emitted sparingly (see
// DuplicateMessageAttempted for the other non-chat case, which is instead
// UserScope: a diagnostic aimed at the one user who retried).
func (k Kind) Scope() Scope {
	switch k {
	case KindUserPresence:
		return WorkspaceScope
	case KindDuplicateMessageAttempted:
		return UserScope
	default:
		return ChatScope
	}
}

// RoutingAuthority reports whether this kind must route off the envelope's
// embedded member snapshot (RouteBySnapshot) rather than the live membership
// index (RouteByLiveIndex). Only MessageCreated carries a snapshot; everything else is
// live-routed because a stale live index merely misses a just-joined member
// or over-delivers to one that just left, which is tolerable for non-message
// events but not for message history.
func (k Kind) RoutingAuthority() RoutingMode {
	if k == KindMessageCreated {
		return RouteBySnapshot
	}
	return RouteByLiveIndex
}

// RoutingMode distinguishes the two fan-out addressing strategies.
type RoutingMode int

const (
	RouteByLiveIndex RoutingMode = iota
	RouteBySnapshot
)
