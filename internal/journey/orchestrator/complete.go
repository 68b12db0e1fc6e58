// SPDX-License-Identifier: MIT

package orchestrator

import (
	"context"
	"errors"

	"github.com/guestflow/guestflow/internal/journey/flow"
	"github.com/guestflow/guestflow/internal/journey/model"
	"github.com/guestflow/guestflow/internal/journey/resolver"
	"github.com/guestflow/guestflow/internal/journey/store"
	xglog "github.com/guestflow/guestflow/internal/log"
	"github.com/guestflow/guestflow/internal/metrics"
)

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrSessionNotFound) || errors.Is(err, store.ErrGuestNotFound)
}

// completeOrResume applies the completion event, or recovers a completion
// that already happened. The store fails loudly on a non-active session;
// when the session turns out to be completed, this is a client retry after
// a partial failure (or a double-submit), and the caller re-runs the
// post-completion steps idempotently instead of stranding the guest.
func (o *Orchestrator) completeOrResume(ctx context.Context, sessionID string) (*model.Session, error) {
	sess, err := o.Sessions.Complete(ctx, sessionID)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, store.ErrNotActive) {
		return nil, err
	}
	prior, getErr := o.Sessions.Get(ctx, sessionID)
	if getErr != nil || prior.Status != model.StatusCompleted {
		return nil, err
	}
	return prior, nil
}

// ensureCompletion appends the ledger entry for a finished phase, once per
// session. It is only ever called after the session's own completion write
// succeeded; the ledger entry must always imply a real completed session.
// The returned guest carries the appended entry so the caller's subsequent
// resolves observe it.
func (o *Orchestrator) ensureCompletion(ctx context.Context, guest *model.Guest, sess *model.Session) (*model.Guest, error) {
	if guest.HasCompletionForSession(sess.ID) {
		return guest, nil
	}
	updated, err := o.Guests.RecordCompletion(ctx, guest.ID, sess.ExperienceID, sess.ID)
	if err != nil {
		o.logger(ctx).Error().Err(err).
			Str(xglog.FieldGuestID, guest.ID).
			Str(xglog.FieldSessionID, sess.ID).
			Msg("ledger append failed")
		return nil, err
	}
	return updated, nil
}

// CompleteGate finishes the gate phase: the session completes, the ledger
// records the gate experience, and the guest moves on to Main carrying the
// gate session id for later linking.
func (o *Orchestrator) CompleteGate(ctx context.Context, guest *model.Guest, gateSessionID, experienceID string) (*Result, error) {
	sess, err := o.completeOrResume(ctx, gateSessionID)
	if err != nil {
		return nil, err
	}
	metrics.RecordSessionCompletion("gate", string(sess.Status))
	if _, err := o.ensureCompletion(ctx, guest, sess); err != nil {
		return nil, err
	}

	return &Result{
		Session:       sess,
		ExperienceID:  experienceID,
		GateSessionID: sess.ID,
		Nav:           o.navigate(flow.StateGate, flow.StateMain),
	}, nil
}

// CompleteMain finishes the main phase. Ordering is load-bearing: the
// session completion write is awaited first, then the ledger append, and
// only then is the transform trigger dispatched, never awaited. The post
// resolve reads the guest returned by the ledger append, so a post slot
// configured to the experience just completed is skipped immediately.
func (o *Orchestrator) CompleteMain(ctx context.Context, guest *model.Guest, sessionID, stepID string) (*Result, error) {
	sess, err := o.completeOrResume(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	metrics.RecordSessionCompletion("main", string(sess.Status))
	guest, err = o.ensureCompletion(ctx, guest, sess)
	if err != nil {
		return nil, err
	}

	o.dispatchTransform(ctx, sess.ID, stepID)

	post := o.resolveSlot(ctx, resolver.SlotPost, guest)
	res := &Result{Session: sess}
	if post.Needed {
		res.Nav = o.navigate(flow.StateMain, flow.StatePost)
	} else {
		res.Nav = o.navigate(flow.StateMain, flow.StateShare)
	}
	return res, nil
}

// CompletePost finishes the post phase and lands the guest on Share for
// the anchor session.
func (o *Orchestrator) CompletePost(ctx context.Context, guest *model.Guest, sessionID string) (*Result, error) {
	sess, err := o.completeOrResume(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	metrics.RecordSessionCompletion("post", string(sess.Status))
	if _, err := o.ensureCompletion(ctx, guest, sess); err != nil {
		return nil, err
	}

	return &Result{
		Session: sess,
		Nav:     o.navigate(flow.StatePost, flow.StateShare),
	}, nil
}

// Abandon marks a phase session abandoned. Hosts that cannot detect
// abandonment simply never call this; the session stays active and
// resumable.
func (o *Orchestrator) Abandon(ctx context.Context, phase flow.State, sessionID string) (*model.Session, error) {
	sess, err := o.Sessions.Abandon(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	metrics.RecordSessionCompletion(string(phase), string(sess.Status))
	return sess, nil
}

// ShareView is the Share-screen read model: the anchor session plus every
// session linked back to it.
type ShareView struct {
	Anchor *model.Session   `json:"anchor"`
	Linked []*model.Session `json:"linked,omitempty"`
}

// Share reads the terminal screen's data. A missing or non-anchor session
// id resolves to a Welcome redirect, not an error.
func (o *Orchestrator) Share(ctx context.Context, anchorID string) (*ShareView, *flow.Instruction, error) {
	anchor, err := o.anchorOrNil(ctx, anchorID)
	if err != nil {
		return nil, nil, err
	}
	if anchor == nil {
		return nil, redirectWelcome(), nil
	}
	linked, err := o.Sessions.ByMain(ctx, anchor.ID)
	if err != nil {
		return nil, nil, err
	}
	return &ShareView{Anchor: anchor, Linked: linked}, nil, nil
}
