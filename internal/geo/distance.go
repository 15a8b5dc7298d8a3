// Package geo computes great-circle distances and geofence verdicts.
package geo

import (
	"fmt"
	"math"

	"example.com/fieldpresence/internal/domain"
)

// EarthRadiusMeters is the mean Earth radius used by the haversine formula.
const EarthRadiusMeters = 6371000.0

// DistanceMeters returns the haversine distance between a and b.
func DistanceMeters(a, b domain.Coordinate) (float64, error) {
	if err := Validate(a); err != nil {
		return 0, err
	}
	if err := Validate(b); err != nil {
		return 0, err
	}
	if a == b {
		return 0, nil
	}

	lat1 := toRadians(a.Latitude)
	lat2 := toRadians(b.Latitude)
	dLat := toRadians(b.Latitude - a.Latitude)
	dLon := toRadians(b.Longitude - a.Longitude)

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusMeters * c, nil
}

// IsWithin reports whether current lies inside target, along with the measured distance.
func IsWithin(current domain.Coordinate, target domain.GeofenceTarget) (bool, float64, error) {
	if math.IsNaN(target.RadiusMeters) || target.RadiusMeters < 0 {
		return false, 0, fmt.Errorf("%w: radius %v", domain.ErrInvalidCoordinate, target.RadiusMeters)
	}
	distance, err := DistanceMeters(current, target.Center())
	if err != nil {
		return false, 0, err
	}
	return distance <= target.RadiusMeters, distance, nil
}

// Check returns a *domain.GeofenceViolationError when current is outside target.
func Check(current domain.Coordinate, target domain.GeofenceTarget) (float64, error) {
	ok, distance, err := IsWithin(current, target)
	if err != nil {
		return 0, err
	}
	if !ok {
		return distance, &domain.GeofenceViolationError{
			TargetID: target.ID,
			Distance: distance,
			Radius:   target.RadiusMeters,
		}
	}
	return distance, nil
}

// Validate rejects NaN, infinite and out-of-range coordinates.
func Validate(c domain.Coordinate) error {
	if math.IsNaN(c.Latitude) || math.IsInf(c.Latitude, 0) || c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("%w: latitude %v", domain.ErrInvalidCoordinate, c.Latitude)
	}
	if math.IsNaN(c.Longitude) || math.IsInf(c.Longitude, 0) || c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("%w: longitude %v", domain.ErrInvalidCoordinate, c.Longitude)
	}
	return nil
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
