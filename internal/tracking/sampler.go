// Package tracking owns the recurring location subscription of an on-duty agent.
package tracking

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"example.com/fieldpresence/internal/domain"
	"example.com/fieldpresence/internal/geo"
)

// State is the lifecycle state of a Sampler.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
)

// Forwarder receives accepted samples. It must not block.
type Forwarder interface {
	Forward(sample domain.LocationSample)
}

// Option configures optional behaviour for the Sampler.
type Option func(*Sampler)

// WithLogger overrides the logger used to report lifecycle events.
func WithLogger(logger *log.Logger) Option {
	return func(s *Sampler) {
		s.logger = logger
	}
}

// Status is a point-in-time view of the sampler.
type Status struct {
	State          State                  `json:"state"`
	SubscriptionID string                 `json:"subscription_id,omitempty"`
	Since          time.Time              `json:"since"`
	LastSample     *domain.LocationSample `json:"-"`
	Accepted       uint64                 `json:"accepted"`
	Skipped        uint64                 `json:"skipped"`
}

// Sampler keeps at most one platform subscription alive and forwards accepted fixes.
// Construct one per process and share it.
type Sampler struct {
	provider  LocationProvider
	forwarder Forwarder
	opts      WatchOptions
	logger    *log.Logger

	mu             sync.Mutex
	state          State
	since          time.Time
	generation     uint64
	sub            Subscription
	subscriptionID string
	last           *domain.LocationSample
	accepted       uint64
	skipped        uint64
	pending        *startAttempt
}

// startAttempt carries the outcome of an in-flight Start to concurrent callers.
type startAttempt struct {
	done chan struct{}
	err  error
}

// NewSampler constructs a Sampler in the Stopped state.
func NewSampler(provider LocationProvider, forwarder Forwarder, opts WatchOptions, options ...Option) *Sampler {
	s := &Sampler{
		provider:  provider,
		forwarder: forwarder,
		opts:      opts,
		state:     StateStopped,
		since:     time.Now().UTC(),
		logger:    log.New(log.Writer(), "[sampler] ", log.LstdFlags|log.Lshortfile),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Start requests permission and subscribes to the platform. It is a no-op when
// the sampler is already running; a call made while another Start is waiting
// on the platform blocks and returns that call's result. A denied permission
// leaves the sampler stopped and returns domain.ErrPermissionDenied; it is not
// retried.
func (s *Sampler) Start(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateRunning:
		s.mu.Unlock()
		return nil
	case StateStarting:
		pending := s.pending
		s.mu.Unlock()
		select {
		case <-pending.done:
			return pending.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.generation++
	gen := s.generation
	attempt := &startAttempt{done: make(chan struct{})}
	s.pending = attempt
	s.setState(StateStarting)
	s.mu.Unlock()

	attempt.err = s.subscribe(ctx, gen)
	close(attempt.done)
	return attempt.err
}

func (s *Sampler) subscribe(ctx context.Context, gen uint64) error {
	status, err := s.provider.RequestPermission(ctx)
	if err != nil || status != PermissionGranted {
		s.abortStart(gen)
		permissionDeniedCounter.Inc()
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrPermissionDenied, err)
		}
		s.logger.Printf("permission to access location was %s", status)
		return fmt.Errorf("%w: status %s", domain.ErrPermissionDenied, status)
	}

	sub, err := s.provider.Watch(context.WithoutCancel(ctx), s.opts, s.handler(gen))
	if err != nil {
		s.abortStart(gen)
		return fmt.Errorf("subscribe to location updates: %w", err)
	}

	s.mu.Lock()
	if s.generation != gen {
		// Stopped while waiting on the platform.
		s.mu.Unlock()
		sub.Remove()
		return nil
	}
	s.sub = sub
	s.subscriptionID = uuid.NewString()
	s.setState(StateRunning)
	s.mu.Unlock()

	activeGauge.Set(1)
	s.logger.Printf("location tracking started (interval=%s, distance=%.0fm, accuracy=%s)",
		s.opts.MinInterval, s.opts.MinDistanceMeters, s.opts.Accuracy)
	return nil
}

// Stop releases the subscription. Stopping a stopped sampler is a no-op.
func (s *Sampler) Stop() {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return
	}
	s.generation++
	sub := s.sub
	s.sub = nil
	s.subscriptionID = ""
	s.last = nil
	s.setState(StateStopped)
	s.mu.Unlock()

	if sub != nil {
		sub.Remove()
	}
	activeGauge.Set(0)
	s.logger.Printf("location tracking stopped")
}

// State returns the current lifecycle state.
func (s *Sampler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status returns a snapshot of the sampler.
func (s *Sampler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		State:          s.state,
		SubscriptionID: s.subscriptionID,
		Since:          s.since,
		Accepted:       s.accepted,
		Skipped:        s.skipped,
	}
	if s.last != nil {
		last := *s.last
		st.LastSample = &last
	}
	return st
}

func (s *Sampler) abortStart(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation == gen {
		s.setState(StateStopped)
	}
}

// setState must be called with mu held.
func (s *Sampler) setState(state State) {
	s.state = state
	s.since = time.Now().UTC()
}

// handler returns the platform callback for one subscription generation.
// Fixes delivered after Stop, or to a superseded subscription, are ignored.
func (s *Sampler) handler(gen uint64) func(domain.LocationSample) {
	return func(sample domain.LocationSample) {
		s.mu.Lock()
		if s.generation != gen || s.state == StateStopped {
			s.mu.Unlock()
			return
		}
		if !s.accept(sample) {
			s.skipped++
			s.mu.Unlock()
			skippedCounter.Inc()
			return
		}
		s.last = &sample
		s.accepted++
		s.mu.Unlock()

		acceptedCounter.Inc()
		s.forwarder.Forward(sample)
	}
}

// accept applies the cadence gate: a fix passes when enough time has elapsed
// or the agent has moved far enough since the last accepted fix.
func (s *Sampler) accept(sample domain.LocationSample) bool {
	if s.last == nil {
		return true
	}
	if s.opts.MinInterval <= 0 && s.opts.MinDistanceMeters <= 0 {
		return true
	}
	if s.opts.MinInterval > 0 && sample.CapturedAt.Sub(s.last.CapturedAt) >= s.opts.MinInterval {
		return true
	}
	if s.opts.MinDistanceMeters > 0 {
		moved, err := geo.DistanceMeters(s.last.Coordinate(), sample.Coordinate())
		if err != nil {
			return false
		}
		return moved >= s.opts.MinDistanceMeters
	}
	return false
}
