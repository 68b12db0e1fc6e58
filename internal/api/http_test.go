// SPDX-License-Identifier: MIT

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/guestflow/guestflow/internal/catalog"
	"github.com/guestflow/guestflow/internal/health"
	"github.com/guestflow/guestflow/internal/journey/flow"
	"github.com/guestflow/guestflow/internal/journey/orchestrator"
	"github.com/guestflow/guestflow/internal/journey/store"
)

const testSnapshot = `
projectId: museum
phases:
  main:
    - experienceId: tour
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
  - id: survey
    name: Entry Survey
    stepCount: 3
    enabled: true
  - id: feedback
    name: Feedback
    stepCount: 2
    enabled: true
`

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testSnapshot), 0o644))

	st := store.NewMemoryStore()
	cat, err := catalog.NewManager(ctx, path, st, nil)
	require.NoError(t, err)

	sessions := store.NewSessions(st)
	guests := store.NewGuests(st)

	srv := &Server{
		ProjectID:  "museum",
		AdminToken: "operator-secret",
		Orchestrator: &orchestrator.Orchestrator{
			Sessions: sessions,
			Guests:   guests,
			Catalog:  cat,
		},
		Sessions: sessions,
		Guests:   guests,
		Health:   health.NewManager("test"),
	}

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

type client struct {
	t     *testing.T
	base  string
	token string
	http  *http.Client
}

func newClient(t *testing.T, ts *httptest.Server) *client {
	return &client{t: t, base: ts.URL, http: ts.Client()}
}

// do sends a request carrying the guest token and captures the one the
// server echoes back, the way a browser client would persist it.
func (c *client) do(method, path string, body any) (*http.Response, map[string]any) {
	c.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, c.base+path, &buf)
	require.NoError(c.t, err)
	if c.token != "" {
		req.Header.Set(HeaderGuestToken, c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	require.NoError(c.t, err)
	if tok := resp.Header.Get(HeaderGuestToken); tok != "" {
		c.token = tok
	}

	var out map[string]any
	require.NoError(c.t, json.NewDecoder(resp.Body).Decode(&out))
	require.NoError(c.t, resp.Body.Close())
	return resp, out
}

func nav(t *testing.T, out map[string]any) (action, to string) {
	t.Helper()
	n, ok := out["navigate"].(map[string]any)
	require.True(t, ok, "response must carry a navigate instruction: %v", out)
	return n["action"].(string), n["to"].(string)
}

func sessionID(t *testing.T, out map[string]any) string {
	t.Helper()
	s, ok := out["session"].(map[string]any)
	require.True(t, ok, "response must carry a session: %v", out)
	return s["id"].(string)
}

func TestJourneyHTTP_FullFirstVisit(t *testing.T) {
	t.Parallel()
	c := newClient(t, newTestServer(t))

	// Welcome mints a guest token on first contact.
	resp, out := c.do(http.MethodGet, "/journey/welcome", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, c.token)
	require.Len(t, out["experiences"], 1)

	// Selecting the tour detours through the gate.
	resp, out = c.do(http.MethodPost, "/journey/select", map[string]string{"experienceId": "tour"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	action, to := nav(t, out)
	require.Equal(t, string(flow.NavPush), action)
	require.Equal(t, string(flow.StateGate), to)

	_, out = c.do(http.MethodPost, "/journey/gate/enter", map[string]string{"experienceId": "tour"})
	gateID := sessionID(t, out)

	// Answers land on the gate session.
	resp, _ = c.do(http.MethodPost, "/journey/sessions/"+gateID+"/answers",
		map[string]string{"stepId": "q1", "value": "blue"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, out = c.do(http.MethodPost, "/journey/gate/complete",
		map[string]string{"sessionId": gateID, "experienceId": "tour"})
	action, to = nav(t, out)
	require.Equal(t, string(flow.NavReplace), action)
	require.Equal(t, string(flow.StateMain), to)

	_, out = c.do(http.MethodPost, "/journey/main/enter",
		map[string]string{"experienceId": "tour", "gateSessionId": gateID})
	mainID := sessionID(t, out)

	_, out = c.do(http.MethodPost, "/journey/main/complete",
		map[string]string{"sessionId": mainID, "stepId": "step-8"})
	action, to = nav(t, out)
	require.Equal(t, string(flow.NavReplace), action)
	require.Equal(t, string(flow.StatePost), to)

	_, out = c.do(http.MethodPost, "/journey/post/enter", map[string]string{"anchorId": mainID})
	postID := sessionID(t, out)

	_, out = c.do(http.MethodPost, "/journey/post/complete", map[string]string{"sessionId": postID})
	action, to = nav(t, out)
	require.Equal(t, string(flow.NavReplace), action)
	require.Equal(t, string(flow.StateShare), to)

	// Share aggregates the anchor and its linked sessions.
	resp, out = c.do(http.MethodGet, "/journey/share/"+mainID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	view, ok := out["view"].(map[string]any)
	require.True(t, ok)
	require.Len(t, view["linked"], 2)
}

// A double-submitted completion gets the same navigation back instead of a
// conflict; retries after a dropped response must not strand the guest.
func TestJourneyHTTP_DoubleCompleteIsIdempotent(t *testing.T) {
	t.Parallel()
	c := newClient(t, newTestServer(t))

	c.do(http.MethodGet, "/journey/welcome", nil)
	_, out := c.do(http.MethodPost, "/journey/gate/enter", map[string]string{"experienceId": "tour"})
	gateID := sessionID(t, out)

	resp, first := c.do(http.MethodPost, "/journey/gate/complete",
		map[string]string{"sessionId": gateID, "experienceId": "tour"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, again := c.do(http.MethodPost, "/journey/gate/complete",
		map[string]string{"sessionId": gateID, "experienceId": "tour"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, first["navigate"], again["navigate"])
}

// Phase context also rides in the URL: the gate route takes ?experience=,
// main takes ?gate=, post and share take ?session=.
func TestJourneyHTTP_QueryParameterCarriage(t *testing.T) {
	t.Parallel()
	c := newClient(t, newTestServer(t))

	c.do(http.MethodGet, "/journey/welcome", nil)

	_, out := c.do(http.MethodPost, "/journey/gate/enter?experience=tour", nil)
	gateID := sessionID(t, out)

	_, _ = c.do(http.MethodPost, "/journey/gate/complete",
		map[string]string{"sessionId": gateID, "experienceId": "tour"})

	_, out = c.do(http.MethodPost, "/journey/main/enter?experience=tour&gate="+gateID, nil)
	mainID := sessionID(t, out)

	_, _ = c.do(http.MethodPost, "/journey/main/complete",
		map[string]string{"sessionId": mainID})

	_, out = c.do(http.MethodPost, "/journey/post/enter?session="+mainID, nil)
	postID := sessionID(t, out)
	_, _ = c.do(http.MethodPost, "/journey/post/complete",
		map[string]string{"sessionId": postID})

	resp, out := c.do(http.MethodGet, "/journey/share?session="+mainID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	view, ok := out["view"].(map[string]any)
	require.True(t, ok)
	require.Len(t, view["linked"], 2)
}

func TestJourneyHTTP_ShareWithBadAnchorRedirects(t *testing.T) {
	t.Parallel()
	c := newClient(t, newTestServer(t))

	resp, out := c.do(http.MethodGet, "/journey/share/never-existed", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	action, to := nav(t, out)
	require.Equal(t, string(flow.NavRedirect), action)
	require.Equal(t, string(flow.StateWelcome), to)
}

func TestJourneyHTTP_UnknownSelectionIsBadRequest(t *testing.T) {
	t.Parallel()
	c := newClient(t, newTestServer(t))

	resp, _ := c.do(http.MethodPost, "/journey/select", map[string]string{"experienceId": "survey"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestJourneyHTTP_GuestTokenIsStable(t *testing.T) {
	t.Parallel()
	c := newClient(t, newTestServer(t))

	_, first := c.do(http.MethodGet, "/journey/welcome", nil)
	g1 := first["guest"].(map[string]any)["id"]

	_, second := c.do(http.MethodGet, "/journey/welcome", nil)
	g2 := second["guest"].(map[string]any)["id"]

	require.Equal(t, g1, g2, "the same token must resolve to the same guest")
}

func TestAdminHTTP_Auth(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	// No Authorization header.
	resp, err := ts.Client().Get(ts.URL + "/api/experiences")
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_ = resp.Body.Close()

	// Wrong token.
	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/experiences", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	resp, err = ts.Client().Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_ = resp.Body.Close()

	// Right token.
	req, _ = http.NewRequest(http.MethodGet, ts.URL+"/api/experiences", nil)
	req.Header.Set("Authorization", "Bearer operator-secret")
	resp, err = ts.Client().Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out["experiences"], 3)
	_ = resp.Body.Close()
}

func TestProbesHTTP(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp, err := ts.Client().Get(ts.URL + path)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode, path)
		_ = resp.Body.Close()
	}
}
