// Package event implements C1: the canonical event envelope and its
// wire-stable binary codec. Every producer (ingress) and consumer
// (membership, fan-out, analytics) shares this type so a single encode path
// and a single signature scheme cover the whole fabric.
package event

import (
	"time"

	"github.com/chatfabric/notify-server/internal/domain/ids"
)

// EnvelopeVersion is bumped only for breaking wire changes; additive fields
// never require a bump because unknown tags are skipped on decode.
const EnvelopeVersion = 1

// Envelope is the unit of publication on every bus subject. ChatID and
// ActorUserID are optional: a system-originated event (e.g. a scheduled
// presence sweep) carries neither.
type Envelope struct {
	Version       uint32
	EventID       ids.EventID
	Kind          Kind
	WorkspaceID   ids.WorkspaceID
	ChatID        ids.ChatID
	ActorUserID   ids.UserID
	OccurredAt    time.Time
	Payload       Payload
	RawPayload    []byte // retained verbatim when Kind is unrecognized
	Signature     []byte
	TraceContext  map[string]string
}

// HasChat reports whether the envelope is scoped to a chat.
func (e *Envelope) HasChat() bool { return e.ChatID != 0 }

// HasActor reports whether the envelope has a human/user actor, as opposed
// to being system-originated.
func (e *Envelope) HasActor() bool { return e.ActorUserID != 0 }

// NewEnvelope builds an envelope with a fresh event ID and the current wire
// version, leaving timing and signing to the caller.
func NewEnvelope(workspaceID ids.WorkspaceID, chatID ids.ChatID, actorUserID ids.UserID, payload Payload) *Envelope {
	return &Envelope{
		Version:     EnvelopeVersion,
		EventID:     ids.NewEventID(),
		Kind:        payload.Kind(),
		WorkspaceID: workspaceID,
		ChatID:      chatID,
		ActorUserID: actorUserID,
		OccurredAt:  time.Now().UTC(),
		Payload:     payload,
	}
}

// RoutingSubject builds the bus subject for this envelope, mirroring the
// dotted hierarchy external producers use so a single wildcard subscription
// can still be scoped by kind when needed. The workspace is not part of the
// subject.
func (e *Envelope) RoutingSubject(subjectPrefix string) string {
	return subjectPrefix + "." + e.Kind.String()
}
