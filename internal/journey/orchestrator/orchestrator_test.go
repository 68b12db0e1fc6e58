// SPDX-License-Identifier: MIT

package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/guestflow/guestflow/internal/catalog"
	"github.com/guestflow/guestflow/internal/journey/flow"
	"github.com/guestflow/guestflow/internal/journey/model"
	"github.com/guestflow/guestflow/internal/journey/store"
)

const fullSnapshot = `
projectId: museum
phases:
  main:
    - experienceId: tour
      enabled: true
    - experienceId: quiz
      enabled: true
  gate:
    experienceId: survey
    enabled: true
  post:
    experienceId: feedback
    enabled: true
experiences:
  - id: tour
    name: Audio Tour
    stepCount: 8
    enabled: true
  - id: quiz
    name: Quiz
    stepCount: 5
    enabled: true
  - id: survey
    name: Entry Survey
    stepCount: 3
    enabled: true
  - id: feedback
    name: Feedback
    stepCount: 2
    enabled: true
`

// stubTrigger counts dispatches and optionally fails them.
type stubTrigger struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (s *stubTrigger) Trigger(_ context.Context, sessionID, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, sessionID)
	return s.err
}

func (s *stubTrigger) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *stubTrigger) dispatched() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

type fixture struct {
	orch    *Orchestrator
	trigger *stubTrigger
}

func newFixture(t *testing.T, snapshot string) *fixture {
	t.Helper()
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(snapshot), 0o644))

	st := store.NewMemoryStore()
	cat, err := catalog.NewManager(ctx, path, st, nil)
	require.NoError(t, err)

	trigger := &stubTrigger{}
	return &fixture{
		orch: &Orchestrator{
			Sessions: store.NewSessions(st),
			Guests:   store.NewGuests(st),
			Catalog:  cat,
			Trigger:  trigger,
		},
		trigger: trigger,
	}
}

func (f *fixture) newGuest(t *testing.T) *model.Guest {
	t.Helper()
	g, err := f.orch.Guests.GetOrCreate(context.Background(), "museum", "tok-"+t.Name())
	require.NoError(t, err)
	return g
}

func (f *fixture) refresh(t *testing.T, g *model.Guest) *model.Guest {
	t.Helper()
	got, err := f.orch.Guests.Get(context.Background(), g.ID)
	require.NoError(t, err)
	return got
}

// First visit: gate runs, main runs, post runs, transform fires once.
func TestJourney_FullFirstVisit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, fullSnapshot)
	guest := f.newGuest(t)

	// Welcome: pick the tour; the gate has never been completed, so the
	// journey detours.
	sel, err := f.orch.Select(ctx, guest, "tour")
	require.NoError(t, err)
	require.Equal(t, &flow.Instruction{Action: flow.NavPush, To: flow.StateGate}, sel.Nav)
	require.Equal(t, "tour", sel.ExperienceID)

	// Gate runs in its own session.
	gate, err := f.orch.EnterGate(ctx, guest, "tour", "")
	require.NoError(t, err)
	require.NotNil(t, gate.Session)
	require.Equal(t, "survey", gate.Session.ExperienceID)
	require.Empty(t, gate.Session.MainSessionID, "gate session starts unlinked")

	done, err := f.orch.CompleteGate(ctx, guest, gate.Session.ID, "tour")
	require.NoError(t, err)
	require.Equal(t, &flow.Instruction{Action: flow.NavReplace, To: flow.StateMain}, done.Nav)
	require.Equal(t, gate.Session.ID, done.GateSessionID)

	// Main: the anchor session is created and the gate session linked.
	guest = f.refresh(t, guest)
	main, err := f.orch.EnterMain(ctx, guest, "tour", done.GateSessionID, "")
	require.NoError(t, err)
	require.NotNil(t, main.Session)
	require.Empty(t, main.Session.MainSessionID, "anchor session is never linked")

	linkedGate, err := f.orch.Sessions.Get(ctx, gate.Session.ID)
	require.NoError(t, err)
	require.Equal(t, main.Session.ID, linkedGate.MainSessionID)

	// Completing main records the ledger, fires the transform once, and
	// moves on to post.
	mainDone, err := f.orch.CompleteMain(ctx, guest, main.Session.ID, "step-8")
	require.NoError(t, err)
	require.Equal(t, &flow.Instruction{Action: flow.NavReplace, To: flow.StatePost}, mainDone.Nav)

	f.orch.Drain()
	require.Equal(t, 1, f.trigger.count())
	require.Equal(t, []string{main.Session.ID}, f.trigger.dispatched())

	// Post runs linked to the anchor.
	guest = f.refresh(t, guest)
	post, err := f.orch.EnterPost(ctx, guest, main.Session.ID, "")
	require.NoError(t, err)
	require.NotNil(t, post.Session)
	require.Equal(t, main.Session.ID, post.Session.MainSessionID)

	postDone, err := f.orch.CompletePost(ctx, guest, post.Session.ID)
	require.NoError(t, err)
	require.Equal(t, &flow.Instruction{Action: flow.NavReplace, To: flow.StateShare}, postDone.Nav)

	// Share aggregates the anchor and everything linked to it.
	view, nav, err := f.orch.Share(ctx, main.Session.ID)
	require.NoError(t, err)
	require.Nil(t, nav)
	require.Equal(t, main.Session.ID, view.Anchor.ID)
	require.Len(t, view.Linked, 2)

	// The ledger now skips both optional phases on the next visit.
	guest = f.refresh(t, guest)
	require.True(t, guest.HasCompleted("survey"))
	require.True(t, guest.HasCompleted("tour"))
	require.True(t, guest.HasCompleted("feedback"))
}

// Returning guest: both optional phases are skipped and the journey is
// Welcome -> Main -> Share.
func TestJourney_ReturningGuestSkipsOptionalPhases(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, fullSnapshot)
	guest := f.newGuest(t)

	_, err := f.orch.Guests.RecordCompletion(ctx, guest.ID, "survey", "old-gate")
	require.NoError(t, err)
	_, err = f.orch.Guests.RecordCompletion(ctx, guest.ID, "feedback", "old-post")
	require.NoError(t, err)
	guest = f.refresh(t, guest)

	sel, err := f.orch.Select(ctx, guest, "quiz")
	require.NoError(t, err)
	require.Equal(t, &flow.Instruction{Action: flow.NavPush, To: flow.StateMain}, sel.Nav)

	main, err := f.orch.EnterMain(ctx, guest, "quiz", "", "")
	require.NoError(t, err)
	require.NotNil(t, main.Session)

	mainDone, err := f.orch.CompleteMain(ctx, guest, main.Session.ID, "")
	require.NoError(t, err)
	require.Equal(t, &flow.Instruction{Action: flow.NavReplace, To: flow.StateShare}, mainDone.Nav)
}

// A misconfigured gate slot never blocks the guest; it is skipped exactly
// like a disabled one.
func TestJourney_MisconfiguredGateIsSkipped(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	snap := `
projectId: museum
phases:
  main:
    - experienceId: tour
      enabled: true
  gate:
    experienceId: ghost
    enabled: true
experiences:
  - id: tour
    name: Audio Tour
    stepCount: 8
    enabled: true
`
	f := newFixture(t, snap)
	guest := f.newGuest(t)

	sel, err := f.orch.Select(ctx, guest, "tour")
	require.NoError(t, err)
	require.Equal(t, &flow.Instruction{Action: flow.NavPush, To: flow.StateMain}, sel.Nav)
}

func TestSelect_RejectsUnknownExperience(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, fullSnapshot)
	guest := f.newGuest(t)

	_, err := f.orch.Select(ctx, guest, "survey")
	require.ErrorIs(t, err, ErrUnknownExperience, "gate experiences are not selectable as main")

	_, err = f.orch.Select(ctx, guest, "nope")
	require.ErrorIs(t, err, ErrUnknownExperience)
}

// Direct entry rules: Main without a pending gate re-resolves; Post and
// Share without a valid anchor redirect to Welcome.
func TestJourney_DirectEntry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, fullSnapshot)
	guest := f.newGuest(t)

	// Main entry while the gate is still required bounces to Gate, with
	// the chosen experience preserved.
	res, err := f.orch.EnterMain(ctx, guest, "tour", "", "")
	require.NoError(t, err)
	require.Nil(t, res.Session)
	require.Equal(t, &flow.Instruction{Action: flow.NavRedirect, To: flow.StateGate}, res.Nav)
	require.Equal(t, "tour", res.ExperienceID)

	// Main entry without any experience goes home.
	res, err = f.orch.EnterMain(ctx, guest, "", "", "")
	require.NoError(t, err)
	require.Equal(t, &flow.Instruction{Action: flow.NavRedirect, To: flow.StateWelcome}, res.Nav)

	// Post without an anchor goes home.
	res, err = f.orch.EnterPost(ctx, guest, "", "")
	require.NoError(t, err)
	require.Equal(t, &flow.Instruction{Action: flow.NavRedirect, To: flow.StateWelcome}, res.Nav)

	res, err = f.orch.EnterPost(ctx, guest, "no-such-session", "")
	require.NoError(t, err)
	require.Equal(t, &flow.Instruction{Action: flow.NavRedirect, To: flow.StateWelcome}, res.Nav)

	// Share with a linked (non-anchor) session id goes home too.
	_, nav, err := f.orch.Share(ctx, "no-such-session")
	require.NoError(t, err)
	require.Equal(t, &flow.Instruction{Action: flow.NavRedirect, To: flow.StateWelcome}, nav)
}

// EnterGate double-checks the resolver: if the gate became unnecessary
// between Select and mount, the guest moves straight on.
func TestEnterGate_ReResolvesBeforeCreating(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, fullSnapshot)
	guest := f.newGuest(t)

	_, err := f.orch.Guests.RecordCompletion(ctx, guest.ID, "survey", "old")
	require.NoError(t, err)
	guest = f.refresh(t, guest)

	res, err := f.orch.EnterGate(ctx, guest, "tour", "")
	require.NoError(t, err)
	require.Nil(t, res.Session, "no gate session is created for a skipped gate")
	require.Equal(t, &flow.Instruction{Action: flow.NavReplace, To: flow.StateMain}, res.Nav)
	require.Equal(t, "tour", res.ExperienceID)
}

func TestEnterMain_ResumeDoesNotRelink(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, fullSnapshot)
	guest := f.newGuest(t)

	gate, err := f.orch.EnterGate(ctx, guest, "tour", "")
	require.NoError(t, err)
	_, err = f.orch.CompleteGate(ctx, guest, gate.Session.ID, "tour")
	require.NoError(t, err)
	guest = f.refresh(t, guest)

	main, err := f.orch.EnterMain(ctx, guest, "tour", gate.Session.ID, "")
	require.NoError(t, err)

	// A refresh re-enters with the same session id; resumption must not
	// attempt a second link.
	again, err := f.orch.EnterMain(ctx, guest, "tour", gate.Session.ID, main.Session.ID)
	require.NoError(t, err)
	require.True(t, again.Resumed)
	require.Equal(t, main.Session.ID, again.Session.ID)
}

// A failing transform trigger is logged and dropped; the guest's
// navigation result is unaffected.
func TestCompleteMain_TriggerFailureDoesNotBlock(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, fullSnapshot)
	f.trigger.err = errors.New("pipeline is down")
	guest := f.newGuest(t)

	_, err := f.orch.Guests.RecordCompletion(ctx, guest.ID, "survey", "old")
	require.NoError(t, err)
	guest = f.refresh(t, guest)

	main, err := f.orch.EnterMain(ctx, guest, "tour", "", "")
	require.NoError(t, err)

	done, err := f.orch.CompleteMain(ctx, guest, main.Session.ID, "step-1")
	require.NoError(t, err)
	require.NotNil(t, done.Nav)

	f.orch.Drain()
	require.Equal(t, 1, f.trigger.count())

	// The dispatch mark stuck even though the call failed; the trigger
	// will not fire again for this session.
	sess, err := f.orch.Sessions.Get(ctx, main.Session.ID)
	require.NoError(t, err)
	require.True(t, sess.TransformDispatched)
}

// A duplicate completion signal resumes idempotently: the second call gets
// the same navigation, the ledger keeps one entry, the transform stays
// at-most-once.
func TestCompleteMain_DuplicateIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, fullSnapshot)
	guest := f.newGuest(t)

	_, err := f.orch.Guests.RecordCompletion(ctx, guest.ID, "survey", "old")
	require.NoError(t, err)
	guest = f.refresh(t, guest)

	main, err := f.orch.EnterMain(ctx, guest, "tour", "", "")
	require.NoError(t, err)

	first, err := f.orch.CompleteMain(ctx, guest, main.Session.ID, "")
	require.NoError(t, err)

	guest = f.refresh(t, guest)
	again, err := f.orch.CompleteMain(ctx, guest, main.Session.ID, "")
	require.NoError(t, err)
	require.Equal(t, first.Nav, again.Nav)

	guest = f.refresh(t, guest)
	var tourEntries int
	for _, e := range guest.CompletedExperiences {
		if e.SessionID == main.Session.ID {
			tourEntries++
		}
	}
	require.Equal(t, 1, tourEntries, "the retry must not double-append the ledger")

	f.orch.Drain()
	require.Equal(t, 1, f.trigger.count(), "the transform fires at most once")
}

// A client retry after the completion write landed but the ledger append
// did not must finish the remaining steps instead of stranding the guest.
func TestCompleteMain_RetryFinishesPartialCompletion(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, fullSnapshot)
	guest := f.newGuest(t)

	_, err := f.orch.Guests.RecordCompletion(ctx, guest.ID, "survey", "old")
	require.NoError(t, err)
	guest = f.refresh(t, guest)

	main, err := f.orch.EnterMain(ctx, guest, "tour", "", "")
	require.NoError(t, err)

	// The session completed but nothing after it ran.
	_, err = f.orch.Sessions.Complete(ctx, main.Session.ID)
	require.NoError(t, err)

	done, err := f.orch.CompleteMain(ctx, guest, main.Session.ID, "step-3")
	require.NoError(t, err)
	require.NotNil(t, done.Nav)

	guest = f.refresh(t, guest)
	entry, ok := guest.LatestCompletion("tour")
	require.True(t, ok)
	require.Equal(t, main.Session.ID, entry.SessionID)

	f.orch.Drain()
	require.Equal(t, 1, f.trigger.count())
}

// An abandoned session is not recoverable; completion still fails loudly.
func TestCompleteMain_AbandonedSessionStillFails(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, fullSnapshot)
	guest := f.newGuest(t)

	_, err := f.orch.Guests.RecordCompletion(ctx, guest.ID, "survey", "old")
	require.NoError(t, err)
	guest = f.refresh(t, guest)

	main, err := f.orch.EnterMain(ctx, guest, "tour", "", "")
	require.NoError(t, err)
	_, err = f.orch.Sessions.Abandon(ctx, main.Session.ID)
	require.NoError(t, err)

	_, err = f.orch.CompleteMain(ctx, guest, main.Session.ID, "")
	require.ErrorIs(t, err, store.ErrNotActive)

	f.orch.Drain()
	require.Zero(t, f.trigger.count())
}

func TestAbandon_LeavesLedgerUntouched(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, fullSnapshot)
	guest := f.newGuest(t)

	gate, err := f.orch.EnterGate(ctx, guest, "tour", "")
	require.NoError(t, err)

	sess, err := f.orch.Abandon(ctx, flow.StateGate, gate.Session.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusAbandoned, sess.Status)

	guest = f.refresh(t, guest)
	require.False(t, guest.HasCompleted("survey"), "abandonment never reaches the ledger")

	f.orch.Drain()
	require.Zero(t, f.trigger.count())
}

// The ledger write strictly follows the session completion write; the
// wrapper clock makes the ordering observable.
func TestCompleteGate_OrdersSessionBeforeLedger(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, fullSnapshot)
	guest := f.newGuest(t)

	gate, err := f.orch.EnterGate(ctx, guest, "tour", "")
	require.NoError(t, err)

	res, err := f.orch.CompleteGate(ctx, guest, gate.Session.ID, "tour")
	require.NoError(t, err)
	require.Equal(t, model.StatusCompleted, res.Session.Status)

	guest = f.refresh(t, guest)
	entry, ok := guest.LatestCompletion("survey")
	require.True(t, ok)
	require.Equal(t, gate.Session.ID, entry.SessionID)
	require.False(t, entry.CompletedAt.Before(res.Session.CompletedAt.Add(-time.Second)))
}

// The post resolve after main completion must observe the ledger entry the
// completion just appended. A post slot configured to the very experience
// the guest finished resolves to skip immediately, not one mount later.
func TestCompleteMain_PostSlotMatchingCompletedExperienceSkips(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	const snapshot = `
projectId: museum
phases:
  main:
    - experienceId: tour
      enabled: true
  post:
    experienceId: tour
    enabled: true
experiences:
  - id: tour
    name: Audio Tour
    stepCount: 8
    enabled: true
`
	f := newFixture(t, snapshot)
	guest := f.newGuest(t)

	main, err := f.orch.EnterMain(ctx, guest, "tour", "", "")
	require.NoError(t, err)

	done, err := f.orch.CompleteMain(ctx, guest, main.Session.ID, "")
	require.NoError(t, err)
	require.Equal(t, flow.StateShare, done.Nav.To, "a just-completed experience never fills the post slot")

	f.orch.Drain()
}

// A stale gate id in the URL must not block main entry or leak a 404; the
// anchor is created and simply stays unlinked.
func TestEnterMain_StaleGateIDContinuesUnlinked(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, fullSnapshot)
	guest := f.newGuest(t)

	_, err := f.orch.Guests.RecordCompletion(ctx, guest.ID, "survey", "old")
	require.NoError(t, err)
	guest = f.refresh(t, guest)

	main, err := f.orch.EnterMain(ctx, guest, "tour", "never-existed", "")
	require.NoError(t, err)
	require.NotNil(t, main.Session)
	require.Empty(t, main.GateSessionID)

	linked, err := f.orch.Sessions.ByMain(ctx, main.Session.ID)
	require.NoError(t, err)
	require.Empty(t, linked)
}
