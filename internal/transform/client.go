// SPDX-License-Identifier: MIT

// Package transform triggers the downstream media transform pipeline once a
// main-phase session completes. The trigger is fire-and-forget from the
// journey's point of view: failures are logged, never surfaced to guests.
package transform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	xglog "github.com/guestflow/guestflow/internal/log"
	"github.com/guestflow/guestflow/internal/metrics"
)

// Client calls the transform pipeline HTTP endpoint.
type Client struct {
	baseURL   string
	projectID string
	http      *http.Client
}

// NewClient builds a trigger client for one project.
func NewClient(baseURL, projectID string) *Client {
	return &Client{
		baseURL:   baseURL,
		projectID: projectID,
		http:      &http.Client{Timeout: 15 * time.Second},
	}
}

type triggerRequest struct {
	SessionID string `json:"sessionId"`
	StepID    string `json:"stepId"`
}

type triggerResponse struct {
	Success bool   `json:"success"`
	JobID   string `json:"jobId"`
}

// Trigger starts the pipeline for one completed session. Any non-2xx or
// network failure is returned as an error; callers log and continue.
func (c *Client) Trigger(ctx context.Context, sessionID, stepID string) error {
	logger := xglog.WithComponentFromContext(ctx, "transform")

	endpoint := fmt.Sprintf("%s/startTransformPipeline?projectId=%s", c.baseURL, url.QueryEscape(c.projectID))
	body, err := json.Marshal(triggerRequest{SessionID: sessionID, StepID: stepID})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordTransformTrigger("network_error")
		return fmt.Errorf("transform trigger: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.RecordTransformTrigger("rejected")
		return fmt.Errorf("transform trigger: endpoint returned %d", resp.StatusCode)
	}

	var out triggerResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		// Accepted but unparseable body: the pipeline was started, so this
		// is not a dispatch failure.
		logger.Warn().Err(err).
			Str(xglog.FieldSessionID, sessionID).
			Msg("transform trigger accepted with unreadable response")
		metrics.RecordTransformTrigger("accepted")
		return nil
	}

	metrics.RecordTransformTrigger("accepted")
	logger.Info().
		Str(xglog.FieldSessionID, sessionID).
		Str(xglog.FieldStepID, stepID).
		Str(xglog.FieldJobID, out.JobID).
		Msg("transform pipeline started")
	return nil
}
