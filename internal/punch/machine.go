// Package punch pairs a photo and a location fix into attendance and store-visit punches.
package punch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"example.com/fieldpresence/internal/acquire"
	"example.com/fieldpresence/internal/domain"
	"example.com/fieldpresence/internal/geo"
	"example.com/fieldpresence/internal/observability"
)

// State is a punch state machine state.
type State string

const (
	StateOffDuty           State = "off_duty"
	StateOnDuty            State = "on_duty"
	StateCapturingEvidence State = "capturing_evidence"
	StateAwaitingLocation  State = "awaiting_location"
	StateReadyToSubmit     State = "ready_to_submit"
	StateSubmitting        State = "submitting"
)

// Idle reports whether no punch interaction is in progress.
func (s State) Idle() bool {
	return s == StateOffDuty || s == StateOnDuty
}

// DefaultAcquisitionDeadline bounds the location fetch that follows a photo.
const DefaultAcquisitionDeadline = 5 * time.Second

// Submitter delivers a completed bundle to the collector.
type Submitter interface {
	Punch(ctx context.Context, bundle domain.PunchBundle) (domain.PunchReceipt, error)
}

// Tracker is started on check-in and stopped on check-out.
type Tracker interface {
	Start(ctx context.Context) error
	Stop()
}

// Outcome is the typed result of a punch transition.
type Outcome struct {
	State    State
	Bundle   *domain.PunchBundle
	Distance *float64
	Receipt  *domain.PunchReceipt
	// TrackingErr is set when a check-in succeeded but location tracking could not start.
	TrackingErr error
	Err         error
}

// Option configures optional behaviour for the Machine.
type Option func(*Machine)

// WithLogger overrides the logger used to report transitions.
func WithLogger(logger *log.Logger) Option {
	return func(m *Machine) {
		m.logger = logger
	}
}

// WithClock overrides the clock driving the acquisition deadline.
func WithClock(clock acquire.Clock) Option {
	return func(m *Machine) {
		m.clock = clock
	}
}

// WithAcquisitionDeadline overrides DefaultAcquisitionDeadline.
func WithAcquisitionDeadline(d time.Duration) Option {
	return func(m *Machine) {
		if d > 0 {
			m.deadline = d
		}
	}
}

// WithTracker couples duty transitions to a location tracker.
func WithTracker(tracker Tracker) Option {
	return func(m *Machine) {
		m.tracker = tracker
	}
}

// Machine runs the punch workflow for one agent. Transitions are serialized;
// while a bundle is submitting, new punch intents are rejected.
type Machine struct {
	submitter Submitter
	fetcher   acquire.Fetcher
	clock     acquire.Clock
	deadline  time.Duration
	tracker   Tracker
	logger    *log.Logger

	mu      sync.Mutex
	state   State
	session domain.TrackingSession
	bundle  *domain.PunchBundle
	attempt uint64
}

// NewMachine constructs a Machine for agentID starting off duty.
func NewMachine(agentID string, submitter Submitter, fetcher acquire.Fetcher, opts ...Option) *Machine {
	m := &Machine{
		submitter: submitter,
		fetcher:   fetcher,
		clock:     acquire.SystemClock,
		deadline:  DefaultAcquisitionDeadline,
		logger:    log.New(log.Writer(), "[punch] ", log.LstdFlags|log.Lshortfile),
		state:     StateOffDuty,
		session: domain.TrackingSession{
			AgentID: agentID,
			State:   domain.DutyOff,
			Since:   time.Now().UTC(),
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Session returns the mirrored tracking session.
func (m *Machine) Session() domain.TrackingSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// Bundle returns a copy of the bundle under construction, if any.
func (m *Machine) Bundle() *domain.PunchBundle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyBundle(m.bundle)
}

// MirrorSession adopts the server-side duty state. Only allowed while idle.
func (m *Machine) MirrorSession(session domain.TrackingSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.state.Idle() {
		return m.busyErr()
	}
	if session.AgentID == "" {
		session.AgentID = m.session.AgentID
	}
	m.session = session
	m.state = dutyToState(session.State)
	return nil
}

// Begin starts a punch interaction. Check-in requires off duty, check-out on
// duty; store visits require a target.
func (m *Machine) Begin(kind domain.PunchKind, target *domain.GeofenceTarget) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.state.Idle() {
		return m.busyErr()
	}
	switch kind {
	case domain.PunchCheckIn:
		if m.state != StateOffDuty {
			return fmt.Errorf("%w: already on duty", domain.ErrInvalidTransition)
		}
	case domain.PunchCheckOut:
		if m.state != StateOnDuty {
			return fmt.Errorf("%w: not on duty", domain.ErrInvalidTransition)
		}
	case domain.PunchStoreVisit:
		if target == nil {
			return fmt.Errorf("%w: store visit requires a target", domain.ErrValidation)
		}
		t := *target
		target = &t
	default:
		return fmt.Errorf("%w: unknown punch kind %q", domain.ErrInvalidTransition, kind)
	}

	m.bundle = &domain.PunchBundle{ID: uuid.NewString(), Kind: kind, Target: target}
	m.attempt++
	m.state = StateCapturingEvidence
	m.logger.Printf("punch %s started (kind=%s, agent=%s)", m.bundle.ID, kind, m.session.AgentID)
	return nil
}

// AttachPhoto attaches evidence and acquires a bounded location fix.
func (m *Machine) AttachPhoto(ctx context.Context, photo domain.Photo) Outcome {
	m.mu.Lock()
	if m.state != StateCapturingEvidence {
		err := m.stateErr(StateCapturingEvidence)
		out := m.outcomeLocked(err)
		m.mu.Unlock()
		return out
	}
	if photo.Empty() {
		out := m.outcomeLocked(fmt.Errorf("%w: photo is empty", domain.ErrValidation))
		m.mu.Unlock()
		return out
	}
	p := photo
	m.bundle.Photo = &p
	attempt := m.beginAcquisitionLocked()
	m.mu.Unlock()

	return m.finishAcquisition(ctx, attempt)
}

// RetryLocation re-runs the location fetch after a timeout, keeping the photo.
func (m *Machine) RetryLocation(ctx context.Context) Outcome {
	m.mu.Lock()
	if m.state != StateCapturingEvidence || m.bundle.Photo.Empty() {
		out := m.outcomeLocked(fmt.Errorf("%w: photo is required before location", domain.ErrValidation))
		if !m.state.Idle() && m.state != StateCapturingEvidence {
			out.Err = m.stateErr(StateCapturingEvidence)
		}
		m.mu.Unlock()
		return out
	}
	attempt := m.beginAcquisitionLocked()
	m.mu.Unlock()

	return m.finishAcquisition(ctx, attempt)
}

// beginAcquisitionLocked must be called with mu held.
func (m *Machine) beginAcquisitionLocked() uint64 {
	m.state = StateAwaitingLocation
	m.attempt++
	return m.attempt
}

func (m *Machine) finishAcquisition(ctx context.Context, attempt uint64) Outcome {
	sample, err := acquire.Fix(ctx, m.fetcher, m.clock, m.deadline)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.attempt != attempt || m.state != StateAwaitingLocation {
		// Evidence was discarded or the punch aborted while the fetch was in flight.
		return m.outcomeLocked(fmt.Errorf("%w: location result discarded", domain.ErrInvalidTransition))
	}

	if err != nil {
		m.state = StateCapturingEvidence
		if errors.Is(err, domain.ErrAcquisitionTimeout) {
			m.logger.Printf("punch %s: location fetch timed out after %s", m.bundle.ID, m.deadline)
		} else {
			m.logger.Printf("punch %s: location fetch failed: %v", m.bundle.ID, err)
		}
		return m.outcomeLocked(err)
	}

	if err := geo.Validate(sample.Coordinate()); err != nil {
		m.state = StateCapturingEvidence
		return m.outcomeLocked(err)
	}

	m.bundle.Location = &sample
	m.state = StateReadyToSubmit
	out := m.outcomeLocked(nil)
	if m.bundle.Kind == domain.PunchStoreVisit {
		if _, distance, err := geo.IsWithin(sample.Coordinate(), *m.bundle.Target); err == nil {
			out.Distance = &distance
		}
	}
	return out
}

// Discard drops the photo and any fix, returning to evidence capture.
func (m *Machine) Discard() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateCapturingEvidence, StateAwaitingLocation, StateReadyToSubmit:
	case StateSubmitting:
		return domain.ErrPunchInProgress
	default:
		return fmt.Errorf("%w: no punch in progress", domain.ErrInvalidTransition)
	}
	m.bundle.Photo = nil
	m.bundle.Location = nil
	m.attempt++
	m.state = StateCapturingEvidence
	return nil
}

// Abort abandons the punch and restores the duty state.
func (m *Machine) Abort() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.state == StateSubmitting:
		return domain.ErrPunchInProgress
	case m.state.Idle():
		return nil
	}
	m.logger.Printf("punch %s aborted", m.bundle.ID)
	m.bundle = nil
	m.attempt++
	m.state = dutyToState(m.session.State)
	return nil
}

// Submit sends the bundle. Incomplete bundles fail with domain.ErrValidation,
// store visits outside their target fail with *domain.GeofenceViolationError,
// and collector failures leave the bundle ready for resubmission.
func (m *Machine) Submit(ctx context.Context) Outcome {
	m.mu.Lock()
	switch m.state {
	case StateReadyToSubmit:
	case StateSubmitting:
		out := m.outcomeLocked(domain.ErrPunchInProgress)
		m.mu.Unlock()
		return out
	default:
		err := m.bundle.Validate()
		if err == nil {
			err = fmt.Errorf("%w: bundle not ready", domain.ErrValidation)
		}
		out := m.outcomeLocked(err)
		m.mu.Unlock()
		return out
	}

	if err := m.bundle.Validate(); err != nil {
		out := m.outcomeLocked(err)
		m.mu.Unlock()
		return out
	}

	var distance *float64
	if m.bundle.Kind == domain.PunchStoreVisit {
		d, err := geo.Check(m.bundle.Location.Coordinate(), *m.bundle.Target)
		distance = &d
		if err != nil {
			recordOutcome(m.bundle.Kind, "geofence_violation")
			m.logger.Printf("punch %s blocked: %v", m.bundle.ID, err)
			out := m.outcomeLocked(err)
			out.Distance = distance
			m.mu.Unlock()
			return out
		}
	}

	m.state = StateSubmitting
	bundle := *copyBundle(m.bundle)
	m.mu.Unlock()

	receipt, err := m.submitter.Punch(ctx, bundle)

	m.mu.Lock()
	if err != nil {
		if !errors.Is(err, domain.ErrNetwork) {
			err = fmt.Errorf("%w: %v", domain.ErrNetwork, err)
		}
		m.state = StateReadyToSubmit
		recordOutcome(bundle.Kind, "network_failure")
		m.logger.Printf("punch %s submission failed: %v", bundle.ID, err)
		out := m.outcomeLocked(err)
		out.Distance = distance
		m.mu.Unlock()
		return out
	}

	now := time.Now().UTC()
	switch bundle.Kind {
	case domain.PunchCheckIn:
		m.session.State, m.session.Since = domain.DutyOn, now
	case domain.PunchCheckOut:
		m.session.State, m.session.Since = domain.DutyOff, now
	}
	m.state = dutyToState(m.session.State)
	m.bundle = nil
	recordOutcome(bundle.Kind, "accepted")
	observability.RecordPunchAccepted(now)
	m.logger.Printf("punch %s accepted (kind=%s, receipt=%s)", bundle.ID, bundle.Kind, receipt.ID)

	out := Outcome{State: m.state, Bundle: &bundle, Distance: distance, Receipt: &receipt}
	m.mu.Unlock()

	out.TrackingErr = m.syncTracker(ctx, bundle.Kind)
	return out
}

func (m *Machine) syncTracker(ctx context.Context, kind domain.PunchKind) error {
	if m.tracker == nil {
		return nil
	}
	switch kind {
	case domain.PunchCheckIn:
		if err := m.tracker.Start(ctx); err != nil {
			m.logger.Printf("checked in but location tracking did not start: %v", err)
			return err
		}
	case domain.PunchCheckOut:
		m.tracker.Stop()
	}
	return nil
}

// outcomeLocked must be called with mu held.
func (m *Machine) outcomeLocked(err error) Outcome {
	return Outcome{State: m.state, Bundle: copyBundle(m.bundle), Err: err}
}

func (m *Machine) busyErr() error {
	if m.state == StateSubmitting {
		return domain.ErrPunchInProgress
	}
	return fmt.Errorf("%w: punch already in progress (%s)", domain.ErrInvalidTransition, m.state)
}

func (m *Machine) stateErr(want State) error {
	if m.state == StateSubmitting {
		return domain.ErrPunchInProgress
	}
	return fmt.Errorf("%w: expected %s, in %s", domain.ErrInvalidTransition, want, m.state)
}

func dutyToState(duty domain.DutyState) State {
	if duty == domain.DutyOn {
		return StateOnDuty
	}
	return StateOffDuty
}

func copyBundle(b *domain.PunchBundle) *domain.PunchBundle {
	if b == nil {
		return nil
	}
	out := *b
	if b.Photo != nil {
		p := *b.Photo
		out.Photo = &p
	}
	if b.Location != nil {
		l := *b.Location
		out.Location = &l
	}
	if b.Target != nil {
		t := *b.Target
		out.Target = &t
	}
	return &out
}
