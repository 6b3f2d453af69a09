package event

import (
	"fmt"
	"sort"
	"time"

	"github.com/chatfabric/notify-server/internal/domain/event/wire"
	"github.com/chatfabric/notify-server/internal/domain/ids"
)

const (
	tagVersion      = 1
	tagEventID      = 2
	tagKind         = 3
	tagWorkspaceID  = 4
	tagChatID       = 5
	tagActorUserID  = 6
	tagOccurredAt   = 7
	tagPayload      = 8
	tagSignature    = 9
	tagTraceContext = 10

	tagTraceKey   = 1
	tagTraceValue = 2
)

// Encode produces the canonical binary form of the envelope, excluding
// nothing: Signature, if already populated, is carried through so Encode can
// be reused both to build the signing input and to serialize the final
// signed message (see Sign).
func Encode(e *Envelope) ([]byte, error) {
	w := wire.NewWriter()
	w.Varint(tagVersion, uint64(e.Version))
	w.String(tagEventID, string(e.EventID))
	w.Varint(tagKind, uint64(e.Kind))
	w.ZigZag(tagWorkspaceID, int64(e.WorkspaceID))
	w.ZigZag(tagChatID, int64(e.ChatID))
	w.ZigZag(tagActorUserID, int64(e.ActorUserID))
	w.Varint(tagOccurredAt, uint64(e.OccurredAt.UnixMilli()))

	payloadBytes := e.RawPayload
	if e.Payload != nil {
		payloadBytes = e.Payload.marshal()
	}
	w.Bytes_(tagPayload, payloadBytes)
	w.Bytes_(tagSignature, e.Signature)

	traceKeys := make([]string, 0, len(e.TraceContext))
	for k := range e.TraceContext {
		traceKeys = append(traceKeys, k)
	}
	sort.Strings(traceKeys)
	for _, k := range traceKeys {
		tw := wire.NewWriter()
		tw.String(tagTraceKey, k)
		tw.String(tagTraceValue, e.TraceContext[k])
		w.Message(tagTraceContext, tw.Bytes())
	}

	return w.Bytes(), nil
}

// Decode parses the canonical binary form. Unknown top-level tags and
// unknown payload kinds are tolerated: the latter surfaces via RawPayload
// with Payload left nil, so callers can still route, sign-verify, and
// forward an envelope whose kind they don't understand yet.
func Decode(b []byte) (*Envelope, error) {
	e := &Envelope{}
	r := wire.NewReader(b)
	var payloadBytes []byte
	var occurredAtMillis int64

	for {
		f, ok, err := r.Next()
		if err != nil {
			return nil, fmt.Errorf("event: decode: %w", err)
		}
		if !ok {
			break
		}
		switch f.Tag {
		case tagVersion:
			e.Version = uint32(f.Uint64())
		case tagEventID:
			e.EventID = ids.EventID(f.String())
		case tagKind:
			e.Kind = Kind(f.Uint64())
		case tagWorkspaceID:
			e.WorkspaceID = ids.WorkspaceID(f.Int64())
		case tagChatID:
			e.ChatID = ids.ChatID(f.Int64())
		case tagActorUserID:
			e.ActorUserID = ids.UserID(f.Int64())
		case tagOccurredAt:
			occurredAtMillis = int64(f.Uint64())
		case tagPayload:
			payloadBytes = f.Bytes
		case tagSignature:
			e.Signature = append([]byte(nil), f.Bytes...)
		case tagTraceContext:
			if e.TraceContext == nil {
				e.TraceContext = make(map[string]string)
			}
			k, v, err := decodeTracePair(f.Bytes)
			if err != nil {
				return nil, fmt.Errorf("event: decode trace_context: %w", err)
			}
			e.TraceContext[k] = v
		}
		// Unrecognized tags are already skipped by Reader.Next.
	}

	e.OccurredAt = time.UnixMilli(occurredAtMillis).UTC()

	if p := newPayload(e.Kind); p != nil {
		if err := p.unmarshal(payloadBytes); err != nil {
			return nil, fmt.Errorf("event: decode payload kind=%s: %w", e.Kind, err)
		}
		e.Payload = p
	} else {
		e.RawPayload = payloadBytes
	}

	return e, nil
}

func decodeTracePair(b []byte) (string, string, error) {
	r := wire.NewReader(b)
	var k, v string
	for {
		f, ok, err := r.Next()
		if err != nil {
			return "", "", err
		}
		if !ok {
			return k, v, nil
		}
		switch f.Tag {
		case tagTraceKey:
			k = f.String()
		case tagTraceValue:
			v = f.String()
		}
	}
}
