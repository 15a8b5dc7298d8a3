// Package provider contains LocationProvider implementations for hosts without
// a native location platform.
package provider

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/goccy/go-yaml"

	"example.com/fieldpresence/internal/domain"
	"example.com/fieldpresence/internal/geo"
	"example.com/fieldpresence/internal/tracking"
)

// Waypoint is one fix of a simulated route.
type Waypoint struct {
	Latitude  float64  `yaml:"latitude"`
	Longitude float64  `yaml:"longitude"`
	Accuracy  *float64 `yaml:"accuracy"`
}

// Route is a looped sequence of waypoints replayed at a fixed step.
type Route struct {
	Permission tracking.PermissionStatus `yaml:"permission"`
	Step       time.Duration             `yaml:"step"`
	FixDelay   time.Duration             `yaml:"fix_delay"`
	Waypoints  []Waypoint                `yaml:"waypoints"`
}

// LoadRoute reads a YAML route file.
func LoadRoute(path string) (Route, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Route{}, err
	}
	var route Route
	if err := yaml.Unmarshal(data, &route); err != nil {
		return Route{}, fmt.Errorf("decode route: %w", err)
	}
	return route, route.validate()
}

func (r *Route) validate() error {
	if len(r.Waypoints) == 0 {
		return errors.New("route has no waypoints")
	}
	for i, wp := range r.Waypoints {
		if err := geo.Validate(domain.Coordinate{Latitude: wp.Latitude, Longitude: wp.Longitude}); err != nil {
			return fmt.Errorf("waypoint %d: %w", i, err)
		}
	}
	if r.Permission == "" {
		r.Permission = tracking.PermissionGranted
	}
	if r.Step <= 0 {
		r.Step = 10 * time.Second
	}
	return nil
}

// Simulated replays a Route as if it were the device location platform.
type Simulated struct {
	route Route
	now   func() time.Time

	mu  sync.Mutex
	pos int
}

// NewSimulated constructs a provider over route.
func NewSimulated(route Route) (*Simulated, error) {
	if err := route.validate(); err != nil {
		return nil, err
	}
	return &Simulated{route: route, now: time.Now}, nil
}

// RequestPermission reports the permission configured on the route.
func (s *Simulated) RequestPermission(ctx context.Context) (tracking.PermissionStatus, error) {
	if err := ctx.Err(); err != nil {
		return tracking.PermissionUndetermined, err
	}
	return s.route.Permission, nil
}

// Watch emits the next waypoint every step, or every opts.MinInterval when that is longer.
func (s *Simulated) Watch(ctx context.Context, opts tracking.WatchOptions, fn func(domain.LocationSample)) (tracking.Subscription, error) {
	interval := s.route.Step
	if opts.MinInterval > interval {
		interval = opts.MinInterval
	}

	watchCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(sub.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		fn(s.advance())
		for {
			select {
			case <-watchCtx.Done():
				return
			case <-ticker.C:
				fn(s.advance())
			}
		}
	}()
	return sub, nil
}

// Current returns the waypoint the simulated device is at, after the configured fix delay.
func (s *Simulated) Current(ctx context.Context) (domain.LocationSample, error) {
	if s.route.FixDelay > 0 {
		timer := time.NewTimer(s.route.FixDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return domain.LocationSample{}, ctx.Err()
		case <-timer.C:
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sampleAt(s.pos), nil
}

func (s *Simulated) advance() domain.LocationSample {
	s.mu.Lock()
	defer s.mu.Unlock()
	sample := s.sampleAt(s.pos)
	s.pos = (s.pos + 1) % len(s.route.Waypoints)
	return sample
}

// sampleAt must be called with mu held.
func (s *Simulated) sampleAt(i int) domain.LocationSample {
	wp := s.route.Waypoints[i]
	return domain.LocationSample{
		Latitude:   wp.Latitude,
		Longitude:  wp.Longitude,
		Accuracy:   wp.Accuracy,
		CapturedAt: s.now().UTC(),
	}
}

type subscription struct {
	once   sync.Once
	cancel context.CancelFunc
	done   chan struct{}
}

// Remove stops the watch and waits for the emitter goroutine to exit.
func (s *subscription) Remove() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
}
