// SPDX-License-Identifier: MIT

package model

import "time"

// EventKind identifies a lifecycle event applied to a session.
type EventKind string

const (
	EvComplete EventKind = "complete"
	EvAbandon  EventKind = "abandon"
	EvFail     EventKind = "fail"
)

// Transition is a single allowed edge in the session lifecycle.
type Transition struct {
	From  SessionStatus
	To    SessionStatus
	Event EventKind
}

// Status transitions are monotonic: active is the only non-terminal state,
// and every edge leaves it.
var transitionsTable = []Transition{
	{From: StatusActive, To: StatusCompleted, Event: EvComplete},
	{From: StatusActive, To: StatusAbandoned, Event: EvAbandon},
	{From: StatusActive, To: StatusError, Event: EvFail},
}

// TransitionFor returns the allowed transition for a given status+event.
func TransitionFor(from SessionStatus, ev EventKind) (Transition, bool) {
	for _, tr := range transitionsTable {
		if tr.From == from && tr.Event == ev {
			return tr, true
		}
	}
	return Transition{}, false
}

// ApplyTransition mutates the session record according to the transition.
func ApplyTransition(rec *Session, tr Transition, now time.Time) {
	rec.Status = tr.To
	if tr.To == StatusCompleted {
		t := now
		rec.CompletedAt = &t
	}
	rec.UpdatedAt = now
}
