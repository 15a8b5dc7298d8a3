package main

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/fieldpresence/internal/api"
	"example.com/fieldpresence/internal/domain"
	"example.com/fieldpresence/internal/punch"
)

func TestRunChecksInThroughAgent(t *testing.T) {
	tracker := &countingTracker{}
	machine := punch.NewMachine("7", acceptAll{}, fixAt{12.9716, 77.5946}, punch.WithTracker(tracker))
	srv := httptest.NewServer(api.NewHandler(api.WithPunch(machine, nil)).Routes())
	t.Cleanup(srv.Close)

	photo := writePhoto(t)
	client := newAgentClient(srv.URL, 5*time.Second)
	require.NoError(t, run(context.Background(), client, "check_in", photo, "", 1))

	require.Equal(t, punch.StateOnDuty, machine.State())
	require.Equal(t, 1, tracker.count())
}

func TestRunReportsGeofenceDistanceAndAborts(t *testing.T) {
	target := domain.GeofenceTarget{ID: "17", Latitude: 12.9716, Longitude: 77.5946, RadiusMeters: 150}
	machine := punch.NewMachine("7", acceptAll{}, fixAt{12.9817, 77.5946})
	lookup := targetMap{target.ID: target}
	srv := httptest.NewServer(api.NewHandler(api.WithPunch(machine, lookup)).Routes())
	t.Cleanup(srv.Close)

	client := newAgentClient(srv.URL, 5*time.Second)
	err := run(context.Background(), client, "store_visit", writePhoto(t), "17", 0)
	require.ErrorContains(t, err, "move within 150m")
	require.Equal(t, punch.StateOffDuty, machine.State())
}

func TestAgentBaseURL(t *testing.T) {
	require.Equal(t, "http://127.0.0.1:8090", agentBaseURL(":8090"))
	require.Equal(t, "http://agent.local:9000", agentBaseURL("agent.local:9000"))
}

func writePhoto(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "selfie.jpg")
	require.NoError(t, os.WriteFile(path, []byte{0xff, 0xd8}, 0o600))
	return path
}

type fixAt [2]float64

func (f fixAt) Current(context.Context) (domain.LocationSample, error) {
	return domain.LocationSample{Latitude: f[0], Longitude: f[1], CapturedAt: time.Now()}, nil
}

type acceptAll struct{}

func (acceptAll) Punch(context.Context, domain.PunchBundle) (domain.PunchReceipt, error) {
	return domain.PunchReceipt{ID: "r-1", AcceptedAt: time.Now()}, nil
}

type countingTracker struct {
	mu     sync.Mutex
	starts int
}

func (c *countingTracker) Start(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.starts++
	return nil
}

func (c *countingTracker) Stop() {}

func (c *countingTracker) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.starts
}

type targetMap map[string]domain.GeofenceTarget

func (m targetMap) Lookup(id string) (domain.GeofenceTarget, bool) {
	t, ok := m[id]
	return t, ok
}
