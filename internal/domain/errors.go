package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrPermissionDenied is returned when the platform refuses location access.
	ErrPermissionDenied = errors.New("location permission denied")
	// ErrAcquisitionTimeout indicates a bounded location fetch hit its deadline.
	ErrAcquisitionTimeout = errors.New("location acquisition timed out")
	// ErrValidation marks a punch bundle that is missing evidence.
	ErrValidation = errors.New("punch validation failed")
	// ErrNetwork wraps transport failures talking to the collector.
	ErrNetwork = errors.New("collector request failed")
	// ErrInvalidCoordinate is returned for NaN or out-of-range coordinates.
	ErrInvalidCoordinate = errors.New("invalid coordinate")
	// ErrPunchInProgress is returned when a punch intent arrives while another punch is submitting.
	ErrPunchInProgress = errors.New("punch submission in progress")
	// ErrInvalidTransition is returned when an operation is not allowed in the current punch state.
	ErrInvalidTransition = errors.New("invalid punch transition")
)

// GeofenceViolationError reports that the agent is outside the target zone.
type GeofenceViolationError struct {
	TargetID string
	Distance float64
	Radius   float64
}

func (e *GeofenceViolationError) Error() string {
	return fmt.Sprintf("geofence violation: %.1fm from target %s (radius %.0fm)", e.Distance, e.TargetID, e.Radius)
}
