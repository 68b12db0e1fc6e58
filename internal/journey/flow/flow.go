// SPDX-License-Identifier: MIT

// Package flow defines the journey state machine surface: the ordered phase
// states and the navigation policy that governs transitions between them.
package flow

// State is one station of a guest journey.
type State string

const (
	StateWelcome State = "welcome"
	StateGate    State = "gate"
	StateMain    State = "main"
	StatePost    State = "post"
	StateShare   State = "share"
)

// Valid reports whether the state is a known journey station.
func (s State) Valid() bool {
	switch s {
	case StateWelcome, StateGate, StateMain, StatePost, StateShare:
		return true
	}
	return false
}

// NavAction is the browser-history effect of a transition.
type NavAction string

const (
	// NavPush appends a new entry to the history stack.
	NavPush NavAction = "push"
	// NavReplace overwrites the current entry so "back" skips the phase.
	NavReplace NavAction = "replace"
	// NavRedirect sends the guest somewhere else entirely; used for
	// recovery paths back to the entry screen.
	NavRedirect NavAction = "redirect"
)

// Instruction is the navigation outcome of a journey operation. The host
// routing layer applies it verbatim; the policy lives here, not at call
// sites.
type Instruction struct {
	Action NavAction `json:"action"`
	To     State     `json:"to"`
}

type edge struct {
	from   State
	to     State
	action NavAction
}

// Every transition out of Welcome pushes; every transition into a phase
// from a previously completed phase replaces. Net effect: one "back" from
// any phase after Gate lands on Welcome.
var policyTable = []edge{
	{from: StateWelcome, to: StateGate, action: NavPush},
	{from: StateWelcome, to: StateMain, action: NavPush},
	{from: StateGate, to: StateMain, action: NavReplace},
	{from: StateMain, to: StatePost, action: NavReplace},
	{from: StateMain, to: StateShare, action: NavReplace},
	{from: StatePost, to: StateShare, action: NavReplace},
}

// Navigate returns the policy instruction for a transition. Transitions not
// in the table resolve to a redirect to Welcome: they only arise from
// invalid direct entry (missing anchor on Post/Share) or stale URLs.
func Navigate(from, to State) Instruction {
	for _, e := range policyTable {
		if e.from == from && e.to == to {
			return Instruction{Action: e.action, To: to}
		}
	}
	return Instruction{Action: NavRedirect, To: StateWelcome}
}

// Allowed reports whether (from, to) is a defined forward transition.
func Allowed(from, to State) bool {
	for _, e := range policyTable {
		if e.from == from && e.to == to {
			return true
		}
	}
	return false
}
