// SPDX-License-Identifier: MIT

package transform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTrigger_PostsProjectAndPayload(t *testing.T) {
	t.Parallel()

	var gotPath, gotProject string
	var gotBody triggerRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotProject = r.URL.Query().Get("projectId")
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "jobId": "job-9"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "museum")
	require.NoError(t, c.Trigger(context.Background(), "sess-1", "step-3"))

	require.Equal(t, "/startTransformPipeline", gotPath)
	require.Equal(t, "museum", gotProject)
	require.Equal(t, triggerRequest{SessionID: "sess-1", StepID: "step-3"}, gotBody)
}

func TestTrigger_RejectionIsAnError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "museum")
	err := c.Trigger(context.Background(), "sess-1", "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "502")
}

func TestTrigger_NetworkFailureIsAnError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // connection refused from here on

	c := NewClient(srv.URL, "museum")
	require.Error(t, c.Trigger(context.Background(), "sess-1", ""))
}

func TestTrigger_AcceptedWithGarbageBodyIsNotAnError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	// The pipeline was started; an unreadable body must not look like a
	// dispatch failure to the caller.
	c := NewClient(srv.URL, "museum")
	require.NoError(t, c.Trigger(context.Background(), "sess-1", ""))
}
