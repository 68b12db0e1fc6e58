// SPDX-License-Identifier: MIT

package model

import (
	"fmt"
	"time"
)

// CompletionEntry is one row of a guest's lifetime completion ledger.
type CompletionEntry struct {
	ExperienceID string    `json:"experienceId"`
	SessionID    string    `json:"sessionId"`
	CompletedAt  time.Time `json:"completedAt"`
}

// Guest is one visitor within one project, anchored to an anonymous auth
// credential. The completion ledger is append-only: history is never
// rewritten, only extended. Duplicate entries for the same experience are
// permitted; the most recent one wins for skip-logic purposes.
type Guest struct {
	ID         string `json:"id"`
	ProjectID  string `json:"projectId"`
	Credential string `json:"credential"`

	CompletedExperiences []CompletionEntry `json:"completedExperiences,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Validate checks structural invariants on a guest record.
func (g *Guest) Validate() error {
	if g.ID == "" {
		return fmt.Errorf("guest id is required")
	}
	if g.ProjectID == "" {
		return fmt.Errorf("guest %s: project id is required", g.ID)
	}
	for i, e := range g.CompletedExperiences {
		if e.ExperienceID == "" || e.SessionID == "" {
			return fmt.Errorf("guest %s: ledger entry %d is incomplete", g.ID, i)
		}
	}
	return nil
}

// HasCompleted reports whether the ledger contains any entry for the given
// experience identity. The match is case-sensitive: skip logic is keyed to
// the experience, not the slot it currently fills.
func (g *Guest) HasCompleted(experienceID string) bool {
	for _, e := range g.CompletedExperiences {
		if e.ExperienceID == experienceID {
			return true
		}
	}
	return false
}

// HasCompletionForSession reports whether the ledger already records the
// given session. Completion retries consult this so the append stays
// exactly-once per session.
func (g *Guest) HasCompletionForSession(sessionID string) bool {
	for _, e := range g.CompletedExperiences {
		if e.SessionID == sessionID {
			return true
		}
	}
	return false
}

// LatestCompletion returns the most recent ledger entry for the given
// experience identity, if any.
func (g *Guest) LatestCompletion(experienceID string) (CompletionEntry, bool) {
	for i := len(g.CompletedExperiences) - 1; i >= 0; i-- {
		if g.CompletedExperiences[i].ExperienceID == experienceID {
			return g.CompletedExperiences[i], true
		}
	}
	return CompletionEntry{}, false
}

// Clone returns a deep copy of the guest.
func (g *Guest) Clone() *Guest {
	cp := *g
	if g.CompletedExperiences != nil {
		cp.CompletedExperiences = append([]CompletionEntry(nil), g.CompletedExperiences...)
	}
	return &cp
}
