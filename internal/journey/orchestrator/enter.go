// SPDX-License-Identifier: MIT

package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/guestflow/guestflow/internal/journey/flow"
	"github.com/guestflow/guestflow/internal/journey/model"
	"github.com/guestflow/guestflow/internal/journey/resolver"
	"github.com/guestflow/guestflow/internal/journey/store"
	xglog "github.com/guestflow/guestflow/internal/log"
)

// ErrUnknownExperience is returned when a guest selects an experience that
// is not offered by the project's main slot list.
var ErrUnknownExperience = fmt.Errorf("experience is not offered by this project")

// Select handles the Welcome-screen choice of a main experience. It decides
// whether the journey detours through the gate phase and returns the push
// instruction for the first transition; no session exists yet.
func (o *Orchestrator) Select(ctx context.Context, guest *model.Guest, experienceID string) (*Result, error) {
	if !o.offeredAsMain(experienceID) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownExperience, experienceID)
	}
	exp, err := o.Catalog.Experience(ctx, experienceID)
	if err != nil {
		return nil, err
	}
	if !exp.Runnable() {
		return nil, fmt.Errorf("%w: %s is not runnable", ErrUnknownExperience, experienceID)
	}

	gate := o.resolveSlot(ctx, resolver.SlotGate, guest)
	res := &Result{ExperienceID: experienceID}
	if gate.Needed {
		res.Nav = o.navigate(flow.StateWelcome, flow.StateGate)
	} else {
		res.Nav = o.navigate(flow.StateWelcome, flow.StateMain)
	}
	return res, nil
}

func (o *Orchestrator) offeredAsMain(experienceID string) bool {
	for _, ref := range o.Catalog.Phases().Main {
		if ref.ExperienceID == experienceID && ref.Enabled {
			return true
		}
	}
	return false
}

// EnterGate mounts the gate phase: it creates (or resumes) the gate session
// for the configured gate experience. The main experience id rides along
// untouched so it survives the detour. If a fresh resolve says the gate is
// no longer needed, the guest is moved on to Main instead.
func (o *Orchestrator) EnterGate(ctx context.Context, guest *model.Guest, experienceID, resumeID string) (*Result, error) {
	gate := o.resolveSlot(ctx, resolver.SlotGate, guest)
	if !gate.Needed {
		return &Result{
			ExperienceID: experienceID,
			Nav:          o.navigate(flow.StateWelcome, flow.StateMain),
		}, nil
	}

	sess, resumed, err := o.Sessions.Create(ctx, gate.ExperienceID, "", resumeID)
	if err != nil {
		return nil, err
	}
	o.logger(ctx).Info().
		Str(xglog.FieldSessionID, sess.ID).
		Str(xglog.FieldExperienceID, sess.ExperienceID).
		Str(xglog.FieldPhase, "gate").
		Bool("resumed", resumed).
		Msg("phase entered")
	return &Result{Session: sess, ExperienceID: experienceID, Resumed: resumed}, nil
}

// EnterMain mounts the main phase and creates (or resumes) the anchor
// session. Direct arrival without a gate-session parameter is valid (the
// gate was skipped or never required) unless a fresh resolve says the gate
// is still required, in which case the guest is redirected to Gate with the
// originally requested experience preserved. A carried gate session id is
// linked to the new anchor.
func (o *Orchestrator) EnterMain(ctx context.Context, guest *model.Guest, experienceID, gateSessionID, resumeID string) (*Result, error) {
	if experienceID == "" {
		return &Result{Nav: redirectWelcome()}, nil
	}

	if gateSessionID == "" {
		if gate := o.resolveSlot(ctx, resolver.SlotGate, guest); gate.Needed {
			return &Result{
				ExperienceID: experienceID,
				Nav:          &flow.Instruction{Action: flow.NavRedirect, To: flow.StateGate},
			}, nil
		}
	}

	sess, resumed, err := o.Sessions.Create(ctx, experienceID, "", resumeID)
	if err != nil {
		return nil, err
	}

	if gateSessionID != "" && !resumed {
		switch err := o.Sessions.LinkToMain(ctx, gateSessionID, sess.ID); {
		case err == nil:
		case errors.Is(err, store.ErrSessionNotFound):
			// A stale gate id in the URL is not the guest's problem; the
			// anchor proceeds unlinked.
			o.logger(ctx).Warn().
				Str(xglog.FieldSessionID, gateSessionID).
				Str(xglog.FieldMainSessionID, sess.ID).
				Msg("carried gate session does not exist; continuing unlinked")
			gateSessionID = ""
		default:
			// A conflicting link is an invariant violation under the
			// single-writer-per-session discipline; surface it.
			o.logger(ctx).Error().Err(err).
				Str(xglog.FieldSessionID, gateSessionID).
				Str(xglog.FieldMainSessionID, sess.ID).
				Msg("gate session link failed")
			return nil, err
		}
	}

	o.logger(ctx).Info().
		Str(xglog.FieldSessionID, sess.ID).
		Str(xglog.FieldExperienceID, sess.ExperienceID).
		Str(xglog.FieldPhase, "main").
		Bool("resumed", resumed).
		Msg("phase entered")
	return &Result{Session: sess, ExperienceID: experienceID, GateSessionID: gateSessionID, Resumed: resumed}, nil
}

// EnterPost mounts the post phase. Unlike the gate, the anchor is known up
// front, so the post session is created already linked. Arrival without a
// valid anchor session id redirects to Welcome.
func (o *Orchestrator) EnterPost(ctx context.Context, guest *model.Guest, anchorID, resumeID string) (*Result, error) {
	anchor, err := o.anchorOrNil(ctx, anchorID)
	if err != nil {
		return nil, err
	}
	if anchor == nil {
		return &Result{Nav: redirectWelcome()}, nil
	}

	post := o.resolveSlot(ctx, resolver.SlotPost, guest)
	if !post.Needed {
		return &Result{Nav: o.navigate(flow.StateMain, flow.StateShare)}, nil
	}

	sess, resumed, err := o.Sessions.Create(ctx, post.ExperienceID, anchor.ID, resumeID)
	if err != nil {
		return nil, err
	}
	o.logger(ctx).Info().
		Str(xglog.FieldSessionID, sess.ID).
		Str(xglog.FieldMainSessionID, anchor.ID).
		Str(xglog.FieldPhase, "post").
		Bool("resumed", resumed).
		Msg("phase entered")
	return &Result{Session: sess, Resumed: resumed}, nil
}

// anchorOrNil fetches the anchor session for direct-entry validation.
// Missing is not an error here; the caller redirects.
func (o *Orchestrator) anchorOrNil(ctx context.Context, anchorID string) (*model.Session, error) {
	if anchorID == "" {
		return nil, nil
	}
	sess, err := o.Sessions.Get(ctx, anchorID)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if sess.MainSessionID != "" {
		// Not an anchor: linked sessions cannot host post/share.
		return nil, nil
	}
	return sess, nil
}
