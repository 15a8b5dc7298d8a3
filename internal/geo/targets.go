package geo

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"

	"example.com/fieldpresence/internal/domain"
)

// Targets indexes geofence targets by id.
type Targets map[string]domain.GeofenceTarget

type targetsFile struct {
	DefaultRadiusMeters float64                 `yaml:"default_radius_meters"`
	Targets             []domain.GeofenceTarget `yaml:"targets"`
}

// LoadTargets reads a YAML targets file. Entries without a radius inherit
// the file default, or defaultRadius when the file has none.
func LoadTargets(path string, defaultRadius float64) (Targets, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseTargets(data, defaultRadius)
}

// ParseTargets decodes targets from YAML bytes.
func ParseTargets(data []byte, defaultRadius float64) (Targets, error) {
	var file targetsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode targets: %w", err)
	}
	if file.DefaultRadiusMeters > 0 {
		defaultRadius = file.DefaultRadiusMeters
	}

	out := make(Targets, len(file.Targets))
	for _, target := range file.Targets {
		if target.ID == "" {
			return nil, fmt.Errorf("target %q: missing id", target.Name)
		}
		if _, dup := out[target.ID]; dup {
			return nil, fmt.Errorf("target %s: duplicate id", target.ID)
		}
		if err := Validate(target.Center()); err != nil {
			return nil, fmt.Errorf("target %s: %w", target.ID, err)
		}
		if target.RadiusMeters <= 0 {
			target.RadiusMeters = defaultRadius
		}
		out[target.ID] = target
	}
	return out, nil
}

// Lookup returns the target with the given id.
func (t Targets) Lookup(id string) (domain.GeofenceTarget, bool) {
	target, ok := t[id]
	return target, ok
}
