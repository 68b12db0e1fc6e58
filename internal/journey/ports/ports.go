// SPDX-License-Identifier: MIT

// Package ports declares the interfaces the journey core depends on but
// does not implement. Collaborators behind these boundaries are opaque to
// the orchestrator.
package ports

import (
	"context"

	"github.com/guestflow/guestflow/internal/journey/model"
)

// ExecutorCallbacks receives the terminal signal of a phase execution. The
// executor calls exactly one of them, or neither (abandonment).
type ExecutorCallbacks struct {
	OnComplete func()
	OnError    func(err error)
}

// Executor runs the steps of exactly one experience against the session it
// was given. It owns the step-by-step UI and writes answers and captured
// media directly onto the session; the orchestrator only sees the terminal
// signal.
type Executor interface {
	Start(ctx context.Context, experienceID string, session *model.Session, cb ExecutorCallbacks) error
}

// TransformTrigger starts downstream asynchronous processing for a
// completed anchor session. Implementations are fire-and-forget: the
// orchestrator never awaits the result and treats every failure as
// log-and-continue. The endpoint itself is not assumed idempotent; the
// at-most-once contract is the caller's responsibility.
type TransformTrigger interface {
	Trigger(ctx context.Context, sessionID, stepID string) error
}
