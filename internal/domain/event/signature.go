package event

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
)

// Sign computes an HMAC-SHA256 over the envelope's canonical encoding (with
// Signature cleared) and stores the result on e.Signature. Ingress (C8)
// calls this once, right before publish.
func Sign(e *Envelope, key []byte) error {
	mac, err := macFor(e, key)
	if err != nil {
		return err
	}
	e.Signature = mac
	return nil
}

// Verify recomputes the HMAC and compares it in constant time against
// e.Signature. The fan-out consumer (fanout.Dispatcher.HandleMessage) calls
// this on receipt and drops the envelope on mismatch rather than acting on it.
func Verify(e *Envelope, key []byte) (bool, error) {
	want := e.Signature
	if len(want) == 0 {
		return false, nil
	}
	got, err := macFor(e, key)
	if err != nil {
		return false, err
	}
	return hmac.Equal(got, want), nil
}

func macFor(e *Envelope, key []byte) ([]byte, error) {
	signature := e.Signature
	e.Signature = nil
	b, err := Encode(e)
	e.Signature = signature
	if err != nil {
		return nil, fmt.Errorf("event: sign: %w", err)
	}
	h := hmac.New(sha256.New, key)
	h.Write(b)
	return h.Sum(nil), nil
}
