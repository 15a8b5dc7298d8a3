package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/fieldpresence/internal/domain"
	"example.com/fieldpresence/internal/presence"
	"example.com/fieldpresence/internal/punch"
	"example.com/fieldpresence/internal/tracking"
)

func TestListPresence(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	cache := presence.NewCache(10)
	cache.Put(domain.PresenceRecord{AgentID: "1", Username: "asha", Latitude: 10.001, Longitude: 20, LastSeenAt: now}, now)
	src := &stubPresence{cache: cache}

	rec := serve(t, NewHandler(WithPresence(src)), http.MethodGet, "/v1/presence")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Agents []domain.PresenceRecord `json:"agents"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Agents, 1)
	require.Equal(t, "asha", body.Agents[0].Username)
	require.Equal(t, 10.001, body.Agents[0].Latitude)
}

func TestGetPresenceNotFound(t *testing.T) {
	src := &stubPresence{cache: presence.NewCache(10)}
	rec := serve(t, NewHandler(WithPresence(src)), http.MethodGet, "/v1/presence/99")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "not_found")
}

func TestFocusAgentSwitchesSingleSchedule(t *testing.T) {
	src := &stubPresence{cache: presence.NewCache(10), focused: "1"}
	handler := NewHandler(WithPresence(src))

	rec := serve(t, handler, http.MethodPut, "/v1/presence/focus/2")
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, "2", src.focused)
	require.Equal(t, 1, src.stops)

	rec = serve(t, handler, http.MethodDelete, "/v1/presence/focus")
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Empty(t, src.focused)
}

func TestStartTrackingPermissionDenied(t *testing.T) {
	tracker := &stubTracker{startErr: domain.ErrPermissionDenied}
	rec := serve(t, NewHandler(WithTracker(tracker)), http.MethodPost, "/v1/tracking/start")
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Contains(t, rec.Body.String(), "permission_denied")
}

func TestTrackingStatusIncludesLastSample(t *testing.T) {
	tracker := &stubTracker{status: tracking.Status{
		State:      tracking.StateRunning,
		LastSample: &domain.LocationSample{Latitude: 1.5, Longitude: 2.5},
		Accepted:   3,
	}}
	rec := serve(t, NewHandler(WithTracker(tracker)), http.MethodGet, "/v1/tracking")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "running", body["state"])
	require.Equal(t, 1.5, body["last_sample"].(map[string]any)["latitude"])
}

func TestSessionEndpoint(t *testing.T) {
	session := &stubSession{state: punch.StateOnDuty, session: domain.TrackingSession{AgentID: "7", State: domain.DutyOn}}
	rec := serve(t, NewHandler(WithSession(session)), http.MethodGet, "/v1/session")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"punch_state":"on_duty"`)
	require.Contains(t, rec.Body.String(), `"agent_id":"7"`)
}

func TestUnconfiguredRoutesAreNotMounted(t *testing.T) {
	rec := serve(t, NewHandler(), http.MethodGet, "/v1/tracking")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(t, NewHandler(), http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestPresenceStreamDeliversSnapshots(t *testing.T) {
	b := presence.NewBroadcaster()
	srv := httptest.NewServer(NewHandler(WithStream(b)).Routes())
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/presence/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.NoError(t, b.Publish(context.Background(), presence.Snapshot{Records: []domain.PresenceRecord{{AgentID: "1"}}}))

	reader := bufio.NewReader(resp.Body)
	var data string
	for data == "" {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			data = strings.TrimPrefix(strings.TrimSpace(line), "data: ")
		}
	}
	require.Contains(t, data, `"agent_id":"1"`)
}

func TestPresenceStreamSendsCurrentSnapshotOnConnect(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	cache := presence.NewCache(10)
	cache.Put(domain.PresenceRecord{AgentID: "4", Latitude: 12.5, LastSeenAt: now}, now)
	srv := httptest.NewServer(NewHandler(WithPresence(&stubPresence{cache: cache}), WithStream(presence.NewBroadcaster())).Routes())
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/presence/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	var data string
	for data == "" {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			data = strings.TrimPrefix(strings.TrimSpace(line), "data: ")
		}
	}
	require.Contains(t, data, `"agent_id":"4"`)
	require.Contains(t, data, `"latitude":12.5`)
}

func serve(t *testing.T, h *Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	return rec
}

type stubPresence struct {
	cache   *presence.Cache
	focused string
	stops   int
}

func (s *stubPresence) Snapshot() presence.Snapshot { return s.cache.Snapshot() }

func (s *stubPresence) Active(mode presence.Mode) (string, bool) {
	if mode != presence.ModeSingle || s.focused == "" {
		return "", false
	}
	return s.focused, true
}

func (s *stubPresence) StartSingle(_ context.Context, agentID string) error {
	if s.focused == "" {
		s.focused = agentID
	}
	return nil
}

func (s *stubPresence) StopSingle() {
	s.focused = ""
	s.stops++
}

type stubTracker struct {
	status   tracking.Status
	startErr error
	starts   int
	stops    int
}

func (s *stubTracker) Start(context.Context) error {
	s.starts++
	return s.startErr
}

func (s *stubTracker) Stop() { s.stops++ }

func (s *stubTracker) Status() tracking.Status { return s.status }

type stubSession struct {
	state   punch.State
	session domain.TrackingSession
}

func (s *stubSession) State() punch.State { return s.state }

func (s *stubSession) Session() domain.TrackingSession { return s.session }
