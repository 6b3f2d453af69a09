// Package analytics defines C7's wire records: connection and delivery
// telemetry, kept deliberately separate from C1's event envelope.
//
// spec.md's own design notes flag that the source this was distilled from
// mixed the analytics publisher's serialization and transport concerns
// together; this implementation keeps C1 (chat/presence event codec) and
// C7 (telemetry record codec) as two independent schemas sharing only the
// underlying wire primitives, so a change to one never forces a version
// bump on the other.
package analytics

import (
	"fmt"
	"time"

	"github.com/chatfabric/notify-server/internal/domain/event/wire"
	"github.com/chatfabric/notify-server/internal/domain/ids"
)

// RecordKind identifies the shape of a telemetry record's payload. Values
// are stable wire tags: never renumber, only append.
type RecordKind uint32

const (
	RecordUnspecified RecordKind = iota
	RecordUserConnected
	RecordUserDisconnected
	RecordNotificationReceived
	RecordConnectionLagging
	RecordFanoutCompleted
)

func (k RecordKind) String() string {
	switch k {
	case RecordUserConnected:
		return "user_connected"
	case RecordUserDisconnected:
		return "user_disconnected"
	case RecordNotificationReceived:
		return "notification_received"
	case RecordConnectionLagging:
		return "connection_lagging"
	case RecordFanoutCompleted:
		return "fanout_completed"
	default:
		return "unspecified"
	}
}

// Payload is one record's kind-specific body.
type Payload interface {
	Kind() RecordKind
	marshal() []byte
	unmarshal([]byte) error
}

// Record is the unit of publication on the analytics subject.
type Record struct {
	Kind       RecordKind
	OccurredAt time.Time
	Payload    Payload
	RawPayload []byte // retained when Kind is unrecognized by this binary
}

// NewRecord stamps a record with the current wall-clock time.
func NewRecord(p Payload) *Record {
	return &Record{Kind: p.Kind(), OccurredAt: time.Now().UTC(), Payload: p}
}

const (
	tagKind       = 1
	tagOccurredAt = 2
	tagPayload    = 3
)

// Encode produces the canonical binary form of a record.
func Encode(r *Record) []byte {
	w := wire.NewWriter()
	w.Varint(tagKind, uint64(r.Kind))
	w.Varint(tagOccurredAt, uint64(r.OccurredAt.UnixMilli()))
	payloadBytes := r.RawPayload
	if r.Payload != nil {
		payloadBytes = r.Payload.marshal()
	}
	w.Bytes_(tagPayload, payloadBytes)
	return w.Bytes()
}

// Decode parses the canonical binary form, tolerating an unrecognized kind
// by preserving RawPayload and leaving Payload nil.
func Decode(b []byte) (*Record, error) {
	r := &Record{}
	rd := wire.NewReader(b)
	var payloadBytes []byte
	var occurredAtMillis int64

	for {
		f, ok, err := rd.Next()
		if err != nil {
			return nil, fmt.Errorf("analytics: decode: %w", err)
		}
		if !ok {
			break
		}
		switch f.Tag {
		case tagKind:
			r.Kind = RecordKind(f.Uint64())
		case tagOccurredAt:
			occurredAtMillis = int64(f.Uint64())
		case tagPayload:
			payloadBytes = f.Bytes
		}
	}
	r.OccurredAt = time.UnixMilli(occurredAtMillis).UTC()

	if p := newPayload(r.Kind); p != nil {
		if err := p.unmarshal(payloadBytes); err != nil {
			return nil, fmt.Errorf("analytics: decode payload kind=%s: %w", r.Kind, err)
		}
		r.Payload = p
	} else {
		r.RawPayload = payloadBytes
	}
	return r, nil
}

func newPayload(k RecordKind) Payload {
	switch k {
	case RecordUserConnected:
		return &UserConnectedPayload{}
	case RecordUserDisconnected:
		return &UserDisconnectedPayload{}
	case RecordNotificationReceived:
		return &NotificationReceivedPayload{}
	case RecordConnectionLagging:
		return &ConnectionLaggingPayload{}
	case RecordFanoutCompleted:
		return &FanoutCompletedPayload{}
	default:
		return nil
	}
}

// UserConnectedPayload reports a new C4 registration.
type UserConnectedPayload struct {
	UserID       ids.UserID
	ConnectionID ids.ConnectionID
	UserAgent    string
}

func (p *UserConnectedPayload) Kind() RecordKind { return RecordUserConnected }

func (p *UserConnectedPayload) marshal() []byte {
	w := wire.NewWriter()
	w.ZigZag(1, int64(p.UserID))
	w.String(2, string(p.ConnectionID))
	w.String(3, p.UserAgent)
	return w.Bytes()
}

func (p *UserConnectedPayload) unmarshal(b []byte) error {
	r := wire.NewReader(b)
	for {
		f, ok, err := r.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		switch f.Tag {
		case 1:
			p.UserID = ids.UserID(f.Int64())
		case 2:
			p.ConnectionID = ids.ConnectionID(f.String())
		case 3:
			p.UserAgent = f.String()
		}
	}
}

// UserDisconnectedPayload reports a C6 stream ending, with the connection's
// lifetime.
type UserDisconnectedPayload struct {
	UserID       ids.UserID
	ConnectionID ids.ConnectionID
	DurationMs   int64
}

func (p *UserDisconnectedPayload) Kind() RecordKind { return RecordUserDisconnected }

func (p *UserDisconnectedPayload) marshal() []byte {
	w := wire.NewWriter()
	w.ZigZag(1, int64(p.UserID))
	w.String(2, string(p.ConnectionID))
	w.Varint(3, uint64(p.DurationMs))
	return w.Bytes()
}

func (p *UserDisconnectedPayload) unmarshal(b []byte) error {
	r := wire.NewReader(b)
	for {
		f, ok, err := r.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		switch f.Tag {
		case 1:
			p.UserID = ids.UserID(f.Int64())
		case 2:
			p.ConnectionID = ids.ConnectionID(f.String())
		case 3:
			p.DurationMs = int64(f.Uint64())
		}
	}
}

// NotificationReceivedPayload reports one push attempt's outcome.
// DeliveryDurationMs is meaningful only when WasDelivered is true; a nil
// pointer on construction means "not measured" (e.g. a drop), encoded as
// HasDeliveryDuration == false on the wire.
type NotificationReceivedPayload struct {
	UserID              ids.UserID
	WasDelivered        bool
	HasDeliveryDuration bool
	DeliveryDurationMs  int64
}

func (p *NotificationReceivedPayload) Kind() RecordKind { return RecordNotificationReceived }

func (p *NotificationReceivedPayload) marshal() []byte {
	w := wire.NewWriter()
	w.ZigZag(1, int64(p.UserID))
	if p.WasDelivered {
		w.Varint(2, 1)
	}
	if p.HasDeliveryDuration {
		w.Varint(3, 1)
		w.Varint(4, uint64(p.DeliveryDurationMs))
	}
	return w.Bytes()
}

func (p *NotificationReceivedPayload) unmarshal(b []byte) error {
	r := wire.NewReader(b)
	for {
		f, ok, err := r.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		switch f.Tag {
		case 1:
			p.UserID = ids.UserID(f.Int64())
		case 2:
			p.WasDelivered = f.Uint64() != 0
		case 3:
			p.HasDeliveryDuration = f.Uint64() != 0
		case 4:
			p.DeliveryDurationMs = int64(f.Uint64())
		}
	}
}

// ConnectionLaggingPayload mirrors a registry.Telemetry.ConnectionLagging
// call: a mailbox or per-connection buffer dropped dropped_count envelopes.
type ConnectionLaggingPayload struct {
	UserID       ids.UserID
	ConnectionID ids.ConnectionID
	DroppedCount uint64
}

func (p *ConnectionLaggingPayload) Kind() RecordKind { return RecordConnectionLagging }

func (p *ConnectionLaggingPayload) marshal() []byte {
	w := wire.NewWriter()
	w.ZigZag(1, int64(p.UserID))
	w.String(2, string(p.ConnectionID))
	w.Varint(3, p.DroppedCount)
	return w.Bytes()
}

func (p *ConnectionLaggingPayload) unmarshal(b []byte) error {
	r := wire.NewReader(b)
	for {
		f, ok, err := r.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		switch f.Tag {
		case 1:
			p.UserID = ids.UserID(f.Int64())
		case 2:
			p.ConnectionID = ids.ConnectionID(f.String())
		case 3:
			p.DroppedCount = f.Uint64()
		}
	}
}

// FanoutCompletedPayload reports one C5 dispatch's outcome.
type FanoutCompletedPayload struct {
	EventID  ids.EventID
	Delivered uint32
	Dropped   uint32
	NoTarget  bool
}

func (p *FanoutCompletedPayload) Kind() RecordKind { return RecordFanoutCompleted }

func (p *FanoutCompletedPayload) marshal() []byte {
	w := wire.NewWriter()
	w.String(1, string(p.EventID))
	w.Varint(2, uint64(p.Delivered))
	w.Varint(3, uint64(p.Dropped))
	if p.NoTarget {
		w.Varint(4, 1)
	}
	return w.Bytes()
}

func (p *FanoutCompletedPayload) unmarshal(b []byte) error {
	r := wire.NewReader(b)
	for {
		f, ok, err := r.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		switch f.Tag {
		case 1:
			p.EventID = ids.EventID(f.String())
		case 2:
			p.Delivered = uint32(f.Uint64())
		case 3:
			p.Dropped = uint32(f.Uint64())
		case 4:
			p.NoTarget = f.Uint64() != 0
		}
	}
}
