// SPDX-License-Identifier: MIT

package store

import "errors"

var (
	// ErrSessionNotFound is returned when a session id does not resolve.
	ErrSessionNotFound = errors.New("session not found")

	// ErrGuestNotFound is returned when a guest id does not resolve.
	ErrGuestNotFound = errors.New("guest not found")

	// ErrNotActive is returned when a lifecycle event is applied to a
	// session that is not currently active. Completion is at-most-once;
	// a duplicate completion signal surfaces this error instead of being
	// silently swallowed.
	ErrNotActive = errors.New("session is not active")

	// ErrLinkConflict is returned when linkToMain is called on a session
	// that is already linked to a different anchor. The link is write-once.
	ErrLinkConflict = errors.New("session already linked to a different main session")

	// ErrAnchorNotFound is returned when linkToMain targets an anchor
	// session that does not exist. A session is linkable only while the
	// anchor exists.
	ErrAnchorNotFound = errors.New("main session not found")

	// ErrAlreadyDispatched is returned when a transform dispatch mark is
	// set a second time for the same session.
	ErrAlreadyDispatched = errors.New("transform already dispatched for session")

	// ErrInvalidRecord is returned when a persisted document fails
	// validation on read. Reads parse, never trust.
	ErrInvalidRecord = errors.New("invalid record")
)
