// SPDX-License-Identifier: MIT

// Package resolver decides whether the optional gate and post phases are
// required for a guest. It is a pure function over the guest's completion
// ledger, the project's phase configuration, and the catalog view of the
// slot's experience; it never performs I/O and is callable before any
// session exists.
package resolver

import "github.com/guestflow/guestflow/internal/journey/model"

// Slot identifies which optional phase slot is being resolved.
type Slot string

const (
	SlotGate Slot = "gate"
	SlotPost Slot = "post"
)

// Reason is a compact, typed signal for why a slot resolved the way it did.
// Keep these stable: metrics and operator logs depend on them.
type Reason string

const (
	ReasonRequired          Reason = "required"
	ReasonSlotEmpty         Reason = "slot_empty"
	ReasonSlotDisabled      Reason = "slot_disabled"
	ReasonAlreadyCompleted  Reason = "already_completed"
	ReasonExperienceMissing Reason = "experience_missing"
	ReasonExperienceEmpty   Reason = "experience_empty"
)

// Misconfigured reports whether the reason indicates an operator-visible
// configuration problem (as opposed to a normal skip).
func (r Reason) Misconfigured() bool {
	return r == ReasonExperienceMissing || r == ReasonExperienceEmpty
}

// Input carries everything a slot resolution needs. Experience is the
// catalog record the slot's experienceId resolves to, or nil when it does
// not resolve; the caller performs that lookup so Resolve stays pure.
type Input struct {
	Slot       Slot
	Ref        *model.ExperienceRef
	Guest      *model.Guest
	Experience *model.Experience
}

// Decision is the resolution outcome.
type Decision struct {
	Needed       bool
	Reason       Reason
	ExperienceID string
}

// Resolve decides whether the slot's phase must run.
//
// A slot is not needed when it is absent, disabled, already completed by
// this guest (keyed to experience identity, case-sensitive), or
// misconfigured (experience missing or has zero steps). Misconfiguration
// never blocks forward progress; it only differs from a normal skip in its
// reason code.
func Resolve(in Input) Decision {
	if in.Ref == nil || in.Ref.ExperienceID == "" {
		return Decision{Reason: ReasonSlotEmpty}
	}
	out := Decision{ExperienceID: in.Ref.ExperienceID}
	if !in.Ref.Enabled {
		out.Reason = ReasonSlotDisabled
		return out
	}
	if in.Guest != nil && in.Guest.HasCompleted(in.Ref.ExperienceID) {
		out.Reason = ReasonAlreadyCompleted
		return out
	}
	if in.Experience == nil || in.Experience.ID != in.Ref.ExperienceID {
		out.Reason = ReasonExperienceMissing
		return out
	}
	if !in.Experience.Runnable() {
		out.Reason = ReasonExperienceEmpty
		return out
	}
	out.Needed = true
	out.Reason = ReasonRequired
	return out
}

// NeedsGate resolves the gate slot of cfg for the given guest.
func NeedsGate(guest *model.Guest, cfg model.PhaseConfig, exp *model.Experience) Decision {
	return Resolve(Input{Slot: SlotGate, Ref: cfg.Gate, Guest: guest, Experience: exp})
}

// NeedsPost resolves the post slot of cfg for the given guest.
func NeedsPost(guest *model.Guest, cfg model.PhaseConfig, exp *model.Experience) Decision {
	return Resolve(Input{Slot: SlotPost, Ref: cfg.Post, Guest: guest, Experience: exp})
}
