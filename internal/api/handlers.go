// Package api exposes the local status and control surface of the field presence binaries.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/fieldpresence/internal/domain"
	"example.com/fieldpresence/internal/presence"
	"example.com/fieldpresence/internal/punch"
	"example.com/fieldpresence/internal/tracking"
)

// PresenceSource exposes the presence cache and the focused-agent schedule.
type PresenceSource interface {
	Snapshot() presence.Snapshot
	Active(mode presence.Mode) (string, bool)
	StartSingle(ctx context.Context, agentID string) error
	StopSingle()
}

// Tracker exposes the location sampler.
type Tracker interface {
	Start(ctx context.Context) error
	Stop()
	Status() tracking.Status
}

// SessionSource exposes the mirrored duty state.
type SessionSource interface {
	State() punch.State
	Session() domain.TrackingSession
}

// Option configures which collaborators the Handler serves.
type Option func(*Handler)

// WithPresence serves the presence endpoints.
func WithPresence(src PresenceSource) Option {
	return func(h *Handler) { h.presence = src }
}

// WithStream serves the live presence stream.
func WithStream(b *presence.Broadcaster) Option {
	return func(h *Handler) { h.stream = b }
}

// WithTracker serves the tracking endpoints.
func WithTracker(t Tracker) Option {
	return func(h *Handler) { h.tracker = t }
}

// WithSession serves the session endpoint.
func WithSession(s SessionSource) Option {
	return func(h *Handler) { h.session = s }
}

// Handler coordinates HTTP requests with the engine components.
type Handler struct {
	presence PresenceSource
	stream   *presence.Broadcaster
	tracker  Tracker
	session  SessionSource
	punch    Puncher
	targets  TargetLookup
}

// NewHandler builds a Handler.
func NewHandler(opts ...Option) *Handler {
	h := &Handler{}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes builds the router. Endpoints are mounted only for configured collaborators.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		if h.presence != nil {
			r.Get("/presence", h.listPresence)
			r.Get("/presence/{agentID}", h.getPresence)
			r.Put("/presence/focus/{agentID}", h.focusAgent)
			r.Delete("/presence/focus", h.clearFocus)
		}
		if h.stream != nil {
			r.Get("/presence/stream", h.streamPresence)
		}
		if h.tracker != nil {
			r.Get("/tracking", h.trackingStatus)
			r.Post("/tracking/start", h.startTracking)
			r.Post("/tracking/stop", h.stopTracking)
		}
		if h.session != nil {
			r.Get("/session", h.getSession)
		}
		if h.punch != nil {
			h.punchRoutes(r)
		}
	})
	return r
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("%s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) listPresence(w http.ResponseWriter, r *http.Request) {
	snap := h.presence.Snapshot()
	if snap.Records == nil {
		snap.Records = []domain.PresenceRecord{}
	}
	focused, _ := h.presence.Active(presence.ModeSingle)
	writeJSON(w, http.StatusOK, PresenceListView{Snapshot: snap, Focused: focused})
}

func (h *Handler) getPresence(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	rec, ok := h.presence.Snapshot().Get(agentID)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", fmt.Sprintf("no presence for agent %s", agentID))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) focusAgent(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	if current, ok := h.presence.Active(presence.ModeSingle); ok && current != agentID {
		h.presence.StopSingle()
	}
	// The schedule outlives this request.
	if err := h.presence.StartSingle(context.WithoutCancel(r.Context()), agentID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"focused": agentID})
}

func (h *Handler) clearFocus(w http.ResponseWriter, r *http.Request) {
	h.presence.StopSingle()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) streamPresence(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal_error", "streaming unsupported")
		return
	}

	updates, cancel := h.stream.Listen()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// sent is the refresh time of the last snapshot written; older ones are skipped.
	var sent time.Time
	send := func(snap presence.Snapshot) bool {
		if !sent.IsZero() && !snap.RefreshedAt.After(sent) {
			return true
		}
		if snap.Records == nil {
			snap.Records = []domain.PresenceRecord{}
		}
		payload, err := json.Marshal(snap)
		if err != nil {
			log.Printf("encode presence snapshot: %v", err)
			return true
		}
		if _, err := fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", payload); err != nil {
			return false
		}
		flusher.Flush()
		sent = snap.RefreshedAt
		return true
	}

	// New clients get the current view without waiting for the next tick.
	if h.presence != nil {
		if !send(h.presence.Snapshot()) {
			return
		}
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case snap, ok := <-updates:
			if !ok || !send(snap) {
				return
			}
		}
	}
}

func (h *Handler) trackingStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toTrackingView(h.tracker.Status()))
}

func (h *Handler) startTracking(w http.ResponseWriter, r *http.Request) {
	if err := h.tracker.Start(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTrackingView(h.tracker.Status()))
}

func (h *Handler) stopTracking(w http.ResponseWriter, r *http.Request) {
	h.tracker.Stop()
	writeJSON(w, http.StatusOK, toTrackingView(h.tracker.Status()))
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, SessionView{
		TrackingSession: h.session.Session(),
		PunchState:      h.session.State(),
	})
}

// PresenceListView is the payload of GET /v1/presence.
type PresenceListView struct {
	presence.Snapshot
	Focused string `json:"focused,omitempty"`
}

// TrackingView is the payload of the tracking endpoints.
type TrackingView struct {
	tracking.Status
	LastSample *SampleView `json:"last_sample,omitempty"`
}

// SampleView is the wire form of a location sample.
type SampleView struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Accuracy   *float64  `json:"accuracy,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
}

// SessionView is the payload of GET /v1/session.
type SessionView struct {
	domain.TrackingSession
	PunchState punch.State `json:"punch_state"`
}

func toTrackingView(status tracking.Status) TrackingView {
	view := TrackingView{Status: status}
	if s := status.LastSample; s != nil {
		view.LastSample = &SampleView{
			Latitude:   s.Latitude,
			Longitude:  s.Longitude,
			Accuracy:   s.Accuracy,
			CapturedAt: s.CapturedAt,
		}
	}
	return view
}

func writeDomainError(w http.ResponseWriter, err error) {
	status, code := errorStatus(err)
	writeError(w, status, code, err.Error())
}

// errorStatus maps engine errors to an HTTP status and error type.
func errorStatus(err error) (int, string) {
	var violation *domain.GeofenceViolationError
	switch {
	case errors.As(err, &violation):
		return http.StatusUnprocessableEntity, "geofence_violation"
	case errors.Is(err, domain.ErrPunchInProgress):
		return http.StatusConflict, "punch_in_progress"
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, domain.ErrAcquisitionTimeout):
		return http.StatusGatewayTimeout, "acquisition_timeout"
	case errors.Is(err, domain.ErrInvalidCoordinate):
		return http.StatusUnprocessableEntity, "invalid_coordinate"
	case errors.Is(err, domain.ErrPermissionDenied):
		return http.StatusForbidden, "permission_denied"
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, domain.ErrNetwork):
		return http.StatusBadGateway, "collector_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
