// Package ids defines the strongly typed identifiers shared across the
// fan-out fabric: 64-bit signed identifiers for rows that originate in the
// relational store, server-assigned opaque strings for ephemeral runtime
// objects (connections), and client-supplied idempotency keys.
package ids

import "github.com/google/uuid"

// UserID identifies a user row, monotone per the relational store.
type UserID int64

// ChatID identifies a chat/thread row, monotone per the relational store.
type ChatID int64

// WorkspaceID identifies the tenant/workspace a chat or user belongs to.
type WorkspaceID int64

// MessageID identifies a single chat message.
type MessageID int64

// ConnectionID is a server-assigned, time-ordered opaque identifier for a
// single live push connection.
type ConnectionID string

// NewConnectionID mints a fresh time-ordered connection identifier.
func NewConnectionID() ConnectionID {
	return ConnectionID(uuid.Must(uuid.NewV7()).String())
}

// IdempotencyKey is a client-supplied, time-ordered identifier carried
// end-to-end so retried sends can be deduplicated.
type IdempotencyKey string

// EventID is a time-ordered identifier unique per logical publish.
type EventID string

// NewEventID mints a fresh time-ordered event identifier.
func NewEventID() EventID {
	return EventID(uuid.Must(uuid.NewV7()).String())
}

func (u UserID) Valid() bool      { return u != 0 }
func (c ChatID) Valid() bool      { return c != 0 }
func (w WorkspaceID) Valid() bool { return w != 0 }
func (m MessageID) Valid() bool   { return m != 0 }
