// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID     = "session_id"
	FieldGuestID       = "guest_id"
	FieldProjectID     = "project_id"
	FieldExperienceID  = "experience_id"
	FieldMainSessionID = "main_session_id"
	FieldRequestID     = "request_id"
	FieldJobID         = "job_id"

	// Journey fields
	FieldPhase    = "phase"
	FieldSlot     = "slot"
	FieldReason   = "reason"
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// Transport fields
	FieldPath   = "path"
	FieldStatus = "status"
	FieldStepID = "step_id"
)
