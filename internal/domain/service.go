// Package domain defines the data model shared by the field presence engine.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// PunchKind distinguishes attendance punches from store visits.
type PunchKind string

const (
	PunchCheckIn    PunchKind = "check_in"
	PunchCheckOut   PunchKind = "check_out"
	PunchStoreVisit PunchKind = "store_visit"
)

// ParsePunchKind maps user input to a PunchKind.
func ParsePunchKind(raw string) (PunchKind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "check_in", "checkin", "in":
		return PunchCheckIn, nil
	case "check_out", "checkout", "out":
		return PunchCheckOut, nil
	case "store_visit", "visit", "store":
		return PunchStoreVisit, nil
	default:
		return "", fmt.Errorf("unknown punch kind %q", raw)
	}
}

// DutyState is the attendance state of an agent.
type DutyState string

const (
	DutyOff DutyState = "off_duty"
	DutyOn  DutyState = "on_duty"
)

// TrackingSession mirrors the server-side duty state for one agent.
type TrackingSession struct {
	AgentID string    `json:"agent_id"`
	State   DutyState `json:"state"`
	Since   time.Time `json:"since"`
}

// Photo is an opaque handle to captured evidence. The engine never decodes it.
type Photo struct {
	Name        string
	ContentType string
	Data        []byte
}

// Empty reports whether no photo data is attached.
func (p *Photo) Empty() bool {
	return p == nil || len(p.Data) == 0
}

// PunchBundle pairs a photo and a location fix for one punch interaction.
type PunchBundle struct {
	ID       string
	Kind     PunchKind
	Photo    *Photo
	Location *LocationSample
	Target   *GeofenceTarget
}

// Validate reports ErrValidation when evidence is missing.
func (b *PunchBundle) Validate() error {
	if b == nil {
		return fmt.Errorf("%w: no punch in progress", ErrValidation)
	}
	if b.Photo.Empty() {
		return fmt.Errorf("%w: photo is required", ErrValidation)
	}
	if b.Location == nil {
		return fmt.Errorf("%w: location fix is required", ErrValidation)
	}
	if b.Kind == PunchStoreVisit && b.Target == nil {
		return fmt.Errorf("%w: store visit requires a target", ErrValidation)
	}
	return nil
}

// PunchReceipt is the collector acknowledgement of a submitted punch.
type PunchReceipt struct {
	ID         string
	Detail     string
	StatusCode int
	AcceptedAt time.Time
}
