// SPDX-License-Identifier: MIT

// Package orchestrator coordinates a guest's journey across phases: it
// consumes resolver decisions, drives session and ledger writes, dispatches
// the transform trigger, and emits the navigation instruction for every
// transition. One orchestrator serves all guests; per-journey state lives
// in the session and guest records, never in memory.
package orchestrator

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/guestflow/guestflow/internal/catalog"
	"github.com/guestflow/guestflow/internal/journey/flow"
	"github.com/guestflow/guestflow/internal/journey/model"
	"github.com/guestflow/guestflow/internal/journey/ports"
	"github.com/guestflow/guestflow/internal/journey/resolver"
	"github.com/guestflow/guestflow/internal/journey/store"
	xglog "github.com/guestflow/guestflow/internal/log"
	"github.com/guestflow/guestflow/internal/metrics"
)

// Orchestrator is the top-level journey coordinator.
type Orchestrator struct {
	Sessions *store.Sessions
	Guests   *store.Guests
	Catalog  *catalog.Manager
	Trigger  ports.TransformTrigger

	triggerWG sync.WaitGroup
}

// Result is the outcome of a journey operation. Nav is nil for operations
// that do not move the guest (phase entry on mount).
type Result struct {
	Session *model.Session    `json:"session,omitempty"`
	Nav     *flow.Instruction `json:"navigate,omitempty"`

	// ExperienceID carries the main experience through the gate detour.
	ExperienceID string `json:"experienceId,omitempty"`
	// GateSessionID is carried from gate completion into main entry so the
	// gate session can be linked to the anchor once it exists.
	GateSessionID string `json:"gateSessionId,omitempty"`
	// Resumed marks that entry attached to an existing active session
	// instead of creating one.
	Resumed bool `json:"resumed,omitempty"`
}

func (o *Orchestrator) logger(ctx context.Context) *zerolog.Logger {
	l := xglog.WithComponentFromContext(ctx, "orchestrator")
	return &l
}

// resolveSlot evaluates one optional slot against a fresh catalog lookup,
// records the decision, and logs misconfigurations for operators. It never
// returns an error for a broken slot: misconfigured optional phases are
// skipped, not blocking.
func (o *Orchestrator) resolveSlot(ctx context.Context, slot resolver.Slot, guest *model.Guest) resolver.Decision {
	cfg := o.Catalog.Phases()
	var ref *model.ExperienceRef
	switch slot {
	case resolver.SlotGate:
		ref = cfg.Gate
	case resolver.SlotPost:
		ref = cfg.Post
	}

	var exp *model.Experience
	if ref != nil && ref.ExperienceID != "" {
		var err error
		exp, err = o.Catalog.Experience(ctx, ref.ExperienceID)
		if err != nil {
			// A failed lookup is treated like a missing experience: skip
			// the optional phase rather than block the guest.
			o.logger(ctx).Error().Err(err).
				Str(xglog.FieldSlot, string(slot)).
				Str(xglog.FieldExperienceID, ref.ExperienceID).
				Msg("experience lookup failed; treating slot as not needed")
			exp = nil
		}
	}

	dec := resolver.Resolve(resolver.Input{Slot: slot, Ref: ref, Guest: guest, Experience: exp})
	metrics.RecordResolverDecision(string(slot), dec.Needed, string(dec.Reason))
	if dec.Reason.Misconfigured() {
		o.logger(ctx).Warn().
			Str(xglog.FieldSlot, string(slot)).
			Str(xglog.FieldExperienceID, dec.ExperienceID).
			Str(xglog.FieldReason, string(dec.Reason)).
			Msg("phase slot misconfigured; skipping")
	}
	return dec
}

func (o *Orchestrator) navigate(from, to flow.State) *flow.Instruction {
	in := flow.Navigate(from, to)
	metrics.RecordJourneyTransition(string(from), string(in.To), string(in.Action))
	return &in
}

// redirectWelcome is the defined recovery transition for invalid direct
// entry; it is not an error.
func redirectWelcome() *flow.Instruction {
	return &flow.Instruction{Action: flow.NavRedirect, To: flow.StateWelcome}
}

// dispatchTransform fires the transform trigger for a completed anchor
// session. The store-side dispatch mark enforces at-most-once; the HTTP
// call itself runs detached so guest navigation never waits on it.
func (o *Orchestrator) dispatchTransform(ctx context.Context, sessionID, stepID string) {
	if o.Trigger == nil {
		return
	}
	if err := o.Sessions.MarkTransformDispatched(ctx, sessionID); err != nil {
		metrics.RecordTransformTrigger("duplicate")
		o.logger(ctx).Debug().Err(err).
			Str(xglog.FieldSessionID, sessionID).
			Msg("transform dispatch suppressed")
		return
	}

	logger := o.logger(ctx)
	detached := context.WithoutCancel(ctx)
	o.triggerWG.Add(1)
	go func() {
		defer o.triggerWG.Done()
		if err := o.Trigger.Trigger(detached, sessionID, stepID); err != nil {
			logger.Error().Err(err).
				Str(xglog.FieldSessionID, sessionID).
				Str(xglog.FieldStepID, stepID).
				Msg("transform trigger failed; journey continues")
		}
	}()
}

// Drain waits for in-flight transform dispatches. Used on shutdown and in
// tests.
func (o *Orchestrator) Drain() {
	o.triggerWG.Wait()
}
