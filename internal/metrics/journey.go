// SPDX-License-Identifier: MIT

// Package metrics defines the Prometheus instruments of the journey core.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	resolverDecisionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guestflow_resolver_decision_total",
		Help: "Total number of phase-slot resolutions by slot, outcome, and reason",
	}, []string{"slot", "needed", "reason"})

	journeyTransitionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guestflow_journey_transition_total",
		Help: "Total number of journey state transitions by from-state, to-state, and nav action",
	}, []string{"from", "to", "action"})

	sessionCompletionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guestflow_session_completion_total",
		Help: "Total number of session lifecycle terminations by phase and status",
	}, []string{"phase", "status"})

	transformTriggerTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guestflow_transform_trigger_total",
		Help: "Total number of transform pipeline dispatch attempts by outcome",
	}, []string{"outcome"})
)

// RecordResolverDecision records one phase-slot resolution outcome.
func RecordResolverDecision(slot string, needed bool, reason string) {
	n := "false"
	if needed {
		n = "true"
	}
	resolverDecisionTotal.WithLabelValues(normalizeSlotLabel(slot), n, normalizeReasonLabel(reason)).Inc()
}

// RecordJourneyTransition records one journey state transition.
func RecordJourneyTransition(from, to, action string) {
	journeyTransitionTotal.WithLabelValues(normalizeStateLabel(from), normalizeStateLabel(to), normalizeActionLabel(action)).Inc()
}

// RecordSessionCompletion records one session termination.
func RecordSessionCompletion(phase, status string) {
	sessionCompletionTotal.WithLabelValues(normalizeSlotLabel(phase), normalizeStatusLabel(status)).Inc()
}

// RecordTransformTrigger records one transform dispatch attempt.
func RecordTransformTrigger(outcome string) {
	switch outcome {
	case "accepted", "rejected", "network_error", "duplicate":
	default:
		outcome = "unknown"
	}
	transformTriggerTotal.WithLabelValues(outcome).Inc()
}

func normalizeSlotLabel(slot string) string {
	switch strings.ToLower(strings.TrimSpace(slot)) {
	case "gate", "main", "post":
		return strings.ToLower(strings.TrimSpace(slot))
	default:
		return "unknown"
	}
}

func normalizeReasonLabel(reason string) string {
	switch strings.ToLower(strings.TrimSpace(reason)) {
	case "required", "slot_empty", "slot_disabled", "already_completed", "experience_missing", "experience_empty":
		return strings.ToLower(strings.TrimSpace(reason))
	default:
		return "unknown"
	}
}

func normalizeStateLabel(state string) string {
	switch strings.ToLower(strings.TrimSpace(state)) {
	case "welcome", "gate", "main", "post", "share":
		return strings.ToLower(strings.TrimSpace(state))
	default:
		return "unknown"
	}
}

func normalizeActionLabel(action string) string {
	switch strings.ToLower(strings.TrimSpace(action)) {
	case "push", "replace", "redirect":
		return strings.ToLower(strings.TrimSpace(action))
	default:
		return "unknown"
	}
}

func normalizeStatusLabel(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "active", "completed", "abandoned", "error":
		return strings.ToLower(strings.TrimSpace(status))
	default:
		return "unknown"
	}
}
