// SPDX-License-Identifier: MIT

package core

import (
	"errors"
	"fmt"
)

// Kind classifies the errors surfaced by the control plane.
type Kind string

const (
	KindNotFound             Kind = "not_found"
	KindPermissionDenied     Kind = "permission_denied"
	KindNotActive            Kind = "not_active"
	KindInsufficientCapacity Kind = "insufficient_capacity"
	KindProvisioningFailed   Kind = "provisioning_failed"
	KindConflict             Kind = "conflict"
	KindDecryptionFailed     Kind = "decryption_failed"
	KindInternal             Kind = "internal"
)

// Error is the tagged result type of the control plane. It wraps an optional
// cause and, for capacity failures, the number of nodes actually found.
type Error struct {
	Kind  Kind
	Msg   string
	Found int // only meaningful for KindInsufficientCapacity
	Cause error
}

func (e *Error) Error() string {
	if e.Msg != "" {
		if e.Cause != nil {
			return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
		}
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is makes errors.Is match on kind: errors.Is(err, &Error{Kind: KindNotFound}).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// Errf builds a tagged error with a formatted message.
func Errf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap tags an underlying error with a kind.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// NotFound reports a missing lease or node.
func NotFound(what string, id int64) *Error {
	return Errf(KindNotFound, "%s %d not found", what, id)
}

// InsufficientCapacity reports a short claim during rent.
func InsufficientCapacity(wanted, found int) *Error {
	return &Error{
		Kind:  KindInsufficientCapacity,
		Msg:   fmt.Sprintf("wanted %d eligible nodes, found %d", wanted, found),
		Found: found,
	}
}

// KindOf extracts the kind of err, or KindInternal for untagged errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
