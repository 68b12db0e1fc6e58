// SPDX-License-Identifier: MIT

package model

// ExperienceRef points a phase slot at an experience definition.
type ExperienceRef struct {
	ExperienceID string `json:"experienceId" yaml:"experienceId"`
	Enabled      bool   `json:"enabled" yaml:"enabled"`
}

// PhaseConfig is the project's published phase configuration. It is
// read-only input to the journey core; this core never writes it.
type PhaseConfig struct {
	Main []ExperienceRef `json:"main" yaml:"main"`
	Gate *ExperienceRef  `json:"gate,omitempty" yaml:"gate,omitempty"`
	Post *ExperienceRef  `json:"post,omitempty" yaml:"post,omitempty"`
}

// Experience is the catalog view of a published experience definition. The
// journey core only needs identity, step count, and the enabled flag.
type Experience struct {
	ID        string `json:"id" yaml:"id"`
	Name      string `json:"name" yaml:"name"`
	StepCount int    `json:"stepCount" yaml:"stepCount"`
	Enabled   bool   `json:"enabled" yaml:"enabled"`
}

// Runnable reports whether the experience can actually be executed as a
// phase: it must exist, be enabled, and have at least one step.
func (e *Experience) Runnable() bool {
	return e != nil && e.Enabled && e.StepCount > 0
}
