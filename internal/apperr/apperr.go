// Package apperr defines the typed error kinds shared across the fabric,
// so a transport failure, a signature mismatch, and a config error can all
// be handled by kind rather than by string-matching messages.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for retry/alerting decisions. Transport errors
// map 1:1 onto the classification spec.md's error-handling design names.
type Kind string

const (
	KindConnection     Kind = "connection"
	KindTimeout        Kind = "timeout"
	KindPublish        Kind = "publish"
	KindIO             Kind = "io"
	KindInvalidHeader  Kind = "invalid_header"
	KindNotImplemented Kind = "not_implemented"
	KindSignature      Kind = "signature"
	KindNotFound       Kind = "not_found"
	KindValidation     Kind = "validation"
	KindUnavailable    Kind = "unavailable"
)

// Error wraps an underlying cause with a Kind so callers can branch on
// errors.As without parsing messages.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error of the given kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err carries the given kind, anywhere in its chain.
func Is(err error, kind Kind) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind == kind
	}
	return false
}

// Retryable reports whether the fabric's publish-retry loop should retry an
// error of this kind: only transient transport conditions are retried —
// Connection, Timeout, IO. Publish failures from a rejected/malformed
// message, and everything else, are not.
func Retryable(err error) bool {
	var ae *Error
	if !errors.As(err, &ae) {
		return false
	}
	switch ae.Kind {
	case KindConnection, KindTimeout, KindIO:
		return true
	default:
		return false
	}
}
