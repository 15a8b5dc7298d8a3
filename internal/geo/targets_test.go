package geo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleTargets = `
default_radius_meters: 200
targets:
  - id: "17"
    name: MG Road
    latitude: 12.9716
    longitude: 77.6050
  - id: "18"
    name: Indiranagar
    latitude: 12.9784
    longitude: 77.6408
    radius_meters: 75
`

func TestLoadTargetsAppliesDefaultRadius(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stores.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleTargets), 0o600))

	targets, err := LoadTargets(path, 150)
	require.NoError(t, err)
	require.Len(t, targets, 2)

	mg, ok := targets.Lookup("17")
	require.True(t, ok)
	require.Equal(t, "MG Road", mg.Name)
	require.Equal(t, 200.0, mg.RadiusMeters)

	indira, ok := targets.Lookup("18")
	require.True(t, ok)
	require.Equal(t, 75.0, indira.RadiusMeters)
}

func TestParseTargetsFallsBackToCallerRadius(t *testing.T) {
	targets, err := ParseTargets([]byte("targets:\n  - id: a\n    latitude: 1\n    longitude: 2\n"), 150)
	require.NoError(t, err)
	require.Equal(t, 150.0, targets["a"].RadiusMeters)
}

func TestParseTargetsRejectsBadEntries(t *testing.T) {
	_, err := ParseTargets([]byte("targets:\n  - name: nameless\n    latitude: 1\n    longitude: 2\n"), 150)
	require.Error(t, err)

	_, err = ParseTargets([]byte("targets:\n  - id: a\n    latitude: 100\n    longitude: 2\n"), 150)
	require.Error(t, err)

	_, err = ParseTargets([]byte("targets:\n  - id: a\n    latitude: 1\n    longitude: 2\n  - id: a\n    latitude: 1\n    longitude: 2\n"), 150)
	require.Error(t, err)
}
