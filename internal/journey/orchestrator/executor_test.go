// SPDX-License-Identifier: MIT

package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/guestflow/guestflow/internal/journey/flow"
	"github.com/guestflow/guestflow/internal/journey/model"
	"github.com/guestflow/guestflow/internal/journey/ports"
)

// stubExecutor invokes one terminal callback synchronously on Start.
type stubExecutor struct {
	completeImmediately bool
	failWith            error
}

func (e *stubExecutor) Start(_ context.Context, _ string, _ *model.Session, cb ports.ExecutorCallbacks) error {
	if e.failWith != nil {
		cb.OnError(e.failWith)
		return nil
	}
	if e.completeImmediately {
		cb.OnComplete()
	}
	return nil
}

func TestRunPhase_CompletionDrivesJourney(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, fullSnapshot)
	guest := f.newGuest(t)

	gate, err := f.orch.EnterGate(ctx, guest, "tour", "")
	require.NoError(t, err)

	exec := &stubExecutor{completeImmediately: true}
	require.NoError(t, f.orch.RunPhase(ctx, exec, flow.StateGate, guest, gate.Session, "tour"))

	sess, err := f.orch.Sessions.Get(ctx, gate.Session.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusCompleted, sess.Status)

	guest = f.refresh(t, guest)
	require.True(t, guest.HasCompleted("survey"))
}

func TestRunPhase_ErrorMarksSessionErrored(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, fullSnapshot)
	guest := f.newGuest(t)

	gate, err := f.orch.EnterGate(ctx, guest, "tour", "")
	require.NoError(t, err)

	exec := &stubExecutor{failWith: errors.New("renderer crashed")}
	require.NoError(t, f.orch.RunPhase(ctx, exec, flow.StateGate, guest, gate.Session, "tour"))

	sess, err := f.orch.Sessions.Get(ctx, gate.Session.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusError, sess.Status)

	guest = f.refresh(t, guest)
	require.False(t, guest.HasCompleted("survey"), "errored phases never reach the ledger")
}

func TestRunPhase_RejectsNonActiveSession(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, fullSnapshot)
	guest := f.newGuest(t)

	gate, err := f.orch.EnterGate(ctx, guest, "tour", "")
	require.NoError(t, err)
	_, err = f.orch.Sessions.Complete(ctx, gate.Session.ID)
	require.NoError(t, err)

	completed, err := f.orch.Sessions.Get(ctx, gate.Session.ID)
	require.NoError(t, err)

	err = f.orch.RunPhase(ctx, &stubExecutor{}, flow.StateGate, guest, completed, "tour")
	require.Error(t, err)
}
