package tracking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"example.com/fieldpresence/internal/domain"
)

// PermissionStatus is the platform's answer to a location permission request.
type PermissionStatus string

const (
	PermissionGranted      PermissionStatus = "granted"
	PermissionDenied       PermissionStatus = "denied"
	PermissionUndetermined PermissionStatus = "undetermined"
)

// Accuracy is the requested fix accuracy tier.
type Accuracy int

const (
	AccuracyLowest Accuracy = iota + 1
	AccuracyLow
	AccuracyBalanced
	AccuracyHigh
	AccuracyHighest
)

var accuracyNames = map[Accuracy]string{
	AccuracyLowest:   "lowest",
	AccuracyLow:      "low",
	AccuracyBalanced: "balanced",
	AccuracyHigh:     "high",
	AccuracyHighest:  "highest",
}

func (a Accuracy) String() string {
	if name, ok := accuracyNames[a]; ok {
		return name
	}
	return fmt.Sprintf("accuracy(%d)", int(a))
}

// ParseAccuracy maps a tier name to an Accuracy.
func ParseAccuracy(raw string) (Accuracy, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	for tier, name := range accuracyNames {
		if name == raw {
			return tier, nil
		}
	}
	return 0, fmt.Errorf("unknown accuracy tier %q", raw)
}

// WatchOptions is the cadence requested from the platform.
type WatchOptions struct {
	Accuracy          Accuracy
	MinInterval       time.Duration
	MinDistanceMeters float64
}

// Subscription is an active platform watch.
type Subscription interface {
	Remove()
}

// LocationProvider is the device location platform.
type LocationProvider interface {
	RequestPermission(ctx context.Context) (PermissionStatus, error)
	Watch(ctx context.Context, opts WatchOptions, fn func(domain.LocationSample)) (Subscription, error)
	Current(ctx context.Context) (domain.LocationSample, error)
}
