// SPDX-License-Identifier: MIT

package orchestrator

import (
	"context"
	"fmt"

	"github.com/guestflow/guestflow/internal/journey/flow"
	"github.com/guestflow/guestflow/internal/journey/model"
	"github.com/guestflow/guestflow/internal/journey/ports"
	xglog "github.com/guestflow/guestflow/internal/log"
)

// RunPhase hands an already-entered phase session to an executor and wires
// its terminal callbacks back into the journey. The executor may call back
// on any goroutine, once or never; the orchestrator holds no lock while
// waiting, so a phase that never calls back simply stays active.
//
// Embedded hosts use this; the HTTP adapter instead lets the remote
// executor call the completion endpoints directly.
func (o *Orchestrator) RunPhase(ctx context.Context, exec ports.Executor, phase flow.State, guest *model.Guest, sess *model.Session, experienceID string) error {
	if sess == nil || sess.Status != model.StatusActive {
		return fmt.Errorf("run phase %s: session must be active", phase)
	}

	// Callbacks outlive the mount call.
	cbCtx := context.WithoutCancel(ctx)

	cb := ports.ExecutorCallbacks{
		OnComplete: func() {
			var err error
			switch phase {
			case flow.StateGate:
				_, err = o.CompleteGate(cbCtx, guest, sess.ID, experienceID)
			case flow.StateMain:
				_, err = o.CompleteMain(cbCtx, guest, sess.ID, lastStepID(sess))
			case flow.StatePost:
				_, err = o.CompletePost(cbCtx, guest, sess.ID)
			default:
				err = fmt.Errorf("phase %s has no completion path", phase)
			}
			if err != nil {
				o.logger(cbCtx).Error().Err(err).
					Str(xglog.FieldSessionID, sess.ID).
					Str(xglog.FieldPhase, string(phase)).
					Msg("phase completion failed")
			}
		},
		OnError: func(execErr error) {
			if _, err := o.Sessions.Fail(cbCtx, sess.ID); err != nil {
				o.logger(cbCtx).Error().Err(err).
					Str(xglog.FieldSessionID, sess.ID).
					Msg("failed to mark session errored")
				return
			}
			o.logger(cbCtx).Warn().Err(execErr).
				Str(xglog.FieldSessionID, sess.ID).
				Str(xglog.FieldPhase, string(phase)).
				Msg("phase executor reported error")
		},
	}

	return exec.Start(ctx, sess.ExperienceID, sess, cb)
}

// lastStepID picks the step whose media feeds the transform pipeline: the
// most recent captured media wins, falling back to the last answer.
func lastStepID(sess *model.Session) string {
	if n := len(sess.CapturedMedia); n > 0 {
		return sess.CapturedMedia[n-1].StepID
	}
	if n := len(sess.Answers); n > 0 {
		return sess.Answers[n-1].StepID
	}
	return ""
}
