package provider

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/fieldpresence/internal/domain"
	"example.com/fieldpresence/internal/tracking"
)

const sampleRoute = `
permission: granted
step: 10ms
fix_delay: 1ms
waypoints:
  - latitude: 12.9716
    longitude: 77.5946
    accuracy: 4.5
  - latitude: 12.9720
    longitude: 77.5950
`

func TestLoadRouteAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "route.yaml")
	require.NoError(t, os.WriteFile(path, []byte("waypoints:\n  - latitude: 1\n    longitude: 2\n"), 0o600))

	route, err := LoadRoute(path)
	require.NoError(t, err)
	require.Equal(t, tracking.PermissionGranted, route.Permission)
	require.Equal(t, 10*time.Second, route.Step)
}

func TestLoadRouteRejectsEmptyOrInvalid(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("step: 1s\n"), 0o600))
	_, err := LoadRoute(empty)
	require.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("waypoints:\n  - latitude: 95\n    longitude: 2\n"), 0o600))
	_, err = LoadRoute(bad)
	require.ErrorIs(t, err, domain.ErrInvalidCoordinate)
}

func TestSimulatedWatchCyclesWaypointsUntilRemoved(t *testing.T) {
	path := filepath.Join(t.TempDir(), "route.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleRoute), 0o600))
	route, err := LoadRoute(path)
	require.NoError(t, err)

	sim, err := NewSimulated(route)
	require.NoError(t, err)

	status, err := sim.RequestPermission(context.Background())
	require.NoError(t, err)
	require.Equal(t, tracking.PermissionGranted, status)

	var mu sync.Mutex
	var got []domain.LocationSample
	sub, err := sim.Watch(context.Background(), tracking.WatchOptions{}, func(s domain.LocationSample) {
		mu.Lock()
		got = append(got, s)
		mu.Unlock()
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) >= 3
	}, time.Second, 5*time.Millisecond)
	sub.Remove()
	sub.Remove()

	mu.Lock()
	count := len(got)
	first, second, third := got[0], got[1], got[2]
	mu.Unlock()

	require.Equal(t, 12.9716, first.Latitude)
	require.NotNil(t, first.Accuracy)
	require.Equal(t, 4.5, *first.Accuracy)
	require.Equal(t, 12.9720, second.Latitude)
	require.Equal(t, 12.9716, third.Latitude)

	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	require.Equal(t, count, len(got), "no fixes after Remove")
	mu.Unlock()
}

func TestSimulatedCurrentHonoursContext(t *testing.T) {
	sim, err := NewSimulated(Route{FixDelay: time.Hour, Waypoints: []Waypoint{{Latitude: 1, Longitude: 2}}})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = sim.Current(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSimulatedDeniedPermission(t *testing.T) {
	sim, err := NewSimulated(Route{Permission: tracking.PermissionDenied, Waypoints: []Waypoint{{Latitude: 1, Longitude: 2}}})
	require.NoError(t, err)
	status, err := sim.RequestPermission(context.Background())
	require.NoError(t, err)
	require.Equal(t, tracking.PermissionDenied, status)
}
