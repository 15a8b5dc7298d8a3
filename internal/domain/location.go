package domain

import "time"

// Coordinate is a WGS84 latitude/longitude pair in decimal degrees.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// LocationSample is a single fix produced by the sampler or a one-shot fetch.
// Samples are values and never mutated after creation.
type LocationSample struct {
	Latitude   float64
	Longitude  float64
	Accuracy   *float64
	CapturedAt time.Time
}

// Coordinate returns the sample position.
func (s LocationSample) Coordinate() Coordinate {
	return Coordinate{Latitude: s.Latitude, Longitude: s.Longitude}
}

// PresenceRecord is the most recent sample known for an agent.
type PresenceRecord struct {
	AgentID    string    `json:"agent_id"`
	Username   string    `json:"username,omitempty"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// GeofenceTarget describes a circular zone an agent must be inside to punch.
type GeofenceTarget struct {
	ID           string  `yaml:"id" json:"id"`
	Name         string  `yaml:"name" json:"name,omitempty"`
	Latitude     float64 `yaml:"latitude" json:"latitude"`
	Longitude    float64 `yaml:"longitude" json:"longitude"`
	RadiusMeters float64 `yaml:"radius_meters" json:"radius_meters"`
}

// Center returns the zone center.
func (t GeofenceTarget) Center() Coordinate {
	return Coordinate{Latitude: t.Latitude, Longitude: t.Longitude}
}
