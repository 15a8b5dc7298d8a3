package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"

	"example.com/fieldpresence/internal/domain"
	"example.com/fieldpresence/internal/punch"
)

const maxPhotoBytes = 10 << 20

// Puncher drives the punch workflow of the local agent.
type Puncher interface {
	SessionSource
	Bundle() *domain.PunchBundle
	Begin(kind domain.PunchKind, target *domain.GeofenceTarget) error
	AttachPhoto(ctx context.Context, photo domain.Photo) punch.Outcome
	RetryLocation(ctx context.Context) punch.Outcome
	Submit(ctx context.Context) punch.Outcome
	Discard() error
	Abort() error
}

// TargetLookup resolves store ids to geofence targets.
type TargetLookup interface {
	Lookup(id string) (domain.GeofenceTarget, bool)
}

// WithPunch serves the punch endpoints. targets may be nil when store visits
// are not configured. The punch machine also backs the session endpoint.
func WithPunch(p Puncher, targets TargetLookup) Option {
	return func(h *Handler) {
		h.punch = p
		h.targets = targets
		if h.session == nil {
			h.session = p
		}
	}
}

func (h *Handler) punchRoutes(r chi.Router) {
	r.Get("/punch", h.currentPunch)
	r.Post("/punch", h.beginPunch)
	r.Put("/punch/photo", h.attachPhoto)
	r.Post("/punch/location", h.retryLocation)
	r.Post("/punch/submit", h.submitPunch)
	r.Post("/punch/discard", h.discardPunch)
	r.Post("/punch/abort", h.abortPunch)
}

// BeginPunchRequest is the body of POST /v1/punch.
type BeginPunchRequest struct {
	Kind  string `json:"kind"`
	Store string `json:"store,omitempty"`
}

func (h *Handler) currentPunch(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.punchView())
}

func (h *Handler) beginPunch(w http.ResponseWriter, r *http.Request) {
	var req BeginPunchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON payload")
		return
	}
	kind, err := domain.ParsePunchKind(req.Kind)
	if err != nil {
		h.writePunchError(w, fmt.Errorf("%w: %v", domain.ErrValidation, err))
		return
	}

	var target *domain.GeofenceTarget
	if kind == domain.PunchStoreVisit {
		if req.Store == "" {
			h.writePunchError(w, fmt.Errorf("%w: store is required for a store visit", domain.ErrValidation))
			return
		}
		if h.targets == nil {
			h.writePunchError(w, fmt.Errorf("%w: no stores configured", domain.ErrValidation))
			return
		}
		t, ok := h.targets.Lookup(req.Store)
		if !ok {
			h.writePunchError(w, fmt.Errorf("%w: unknown store %q", domain.ErrValidation, req.Store))
			return
		}
		target = &t
	}

	if err := h.punch.Begin(kind, target); err != nil {
		h.writePunchError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.punchView())
}

func (h *Handler) attachPhoto(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxPhotoBytes)
	photo, err := readPhoto(r)
	if err != nil {
		h.writePunchError(w, err)
		return
	}
	h.writeOutcome(w, http.StatusOK, h.punch.AttachPhoto(r.Context(), photo))
}

func (h *Handler) retryLocation(w http.ResponseWriter, r *http.Request) {
	h.writeOutcome(w, http.StatusOK, h.punch.RetryLocation(r.Context()))
}

func (h *Handler) submitPunch(w http.ResponseWriter, r *http.Request) {
	h.writeOutcome(w, http.StatusOK, h.punch.Submit(r.Context()))
}

func (h *Handler) discardPunch(w http.ResponseWriter, r *http.Request) {
	if err := h.punch.Discard(); err != nil {
		h.writePunchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.punchView())
}

func (h *Handler) abortPunch(w http.ResponseWriter, r *http.Request) {
	if err := h.punch.Abort(); err != nil {
		h.writePunchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.punchView())
}

func readPhoto(r *http.Request) (domain.Photo, error) {
	if err := r.ParseMultipartForm(maxPhotoBytes); err != nil {
		return domain.Photo{}, fmt.Errorf("%w: photo upload: %v", domain.ErrValidation, err)
	}
	file, hdr, err := r.FormFile("photo")
	if err != nil {
		return domain.Photo{}, fmt.Errorf("%w: photo field is required", domain.ErrValidation)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return domain.Photo{}, fmt.Errorf("%w: read photo: %v", domain.ErrValidation, err)
	}
	contentType := hdr.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		if byExt := mime.TypeByExtension(filepath.Ext(hdr.Filename)); byExt != "" {
			contentType = byExt
		}
	}
	return domain.Photo{Name: hdr.Filename, ContentType: contentType, Data: data}, nil
}

// PunchView is the payload of the punch endpoints.
type PunchView struct {
	State          punch.State  `json:"state"`
	Bundle         *BundleView  `json:"bundle,omitempty"`
	DistanceMeters *float64     `json:"distance_meters,omitempty"`
	Receipt        *ReceiptView `json:"receipt,omitempty"`
	TrackingError  string       `json:"tracking_error,omitempty"`
	Error          *ErrorView   `json:"error,omitempty"`
}

// BundleView is the wire form of a punch bundle. Photo bytes are never echoed.
type BundleView struct {
	ID       string                 `json:"id"`
	Kind     domain.PunchKind       `json:"kind"`
	Photo    *PhotoView             `json:"photo,omitempty"`
	Location *SampleView            `json:"location,omitempty"`
	Target   *domain.GeofenceTarget `json:"target,omitempty"`
}

// PhotoView describes attached evidence.
type PhotoView struct {
	Name        string `json:"name,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Size        int    `json:"size"`
}

// ReceiptView is the wire form of a collector acknowledgement.
type ReceiptView struct {
	ID         string    `json:"id,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	AcceptedAt time.Time `json:"accepted_at"`
}

// ErrorView carries a typed failure. Geofence violations include the distance and radius.
type ErrorView struct {
	Type           string   `json:"type"`
	Detail         string   `json:"detail"`
	DistanceMeters *float64 `json:"distance_meters,omitempty"`
	RadiusMeters   *float64 `json:"radius_meters,omitempty"`
}

func (h *Handler) writeOutcome(w http.ResponseWriter, okStatus int, out punch.Outcome) {
	view := PunchView{
		State:          out.State,
		Bundle:         toBundleView(out.Bundle),
		DistanceMeters: out.Distance,
	}
	if out.Receipt != nil {
		view.Receipt = &ReceiptView{ID: out.Receipt.ID, Detail: out.Receipt.Detail, AcceptedAt: out.Receipt.AcceptedAt}
	}
	if out.TrackingErr != nil {
		view.TrackingError = out.TrackingErr.Error()
	}
	status := okStatus
	if out.Err != nil {
		status, view.Error = toErrorView(out.Err)
	}
	writeJSON(w, status, view)
}

// writePunchError reports err alongside the machine's current state.
func (h *Handler) writePunchError(w http.ResponseWriter, err error) {
	view := h.punchView()
	var status int
	status, view.Error = toErrorView(err)
	writeJSON(w, status, view)
}

func (h *Handler) punchView() PunchView {
	return PunchView{State: h.punch.State(), Bundle: toBundleView(h.punch.Bundle())}
}

func toBundleView(b *domain.PunchBundle) *BundleView {
	if b == nil {
		return nil
	}
	view := &BundleView{ID: b.ID, Kind: b.Kind, Target: b.Target}
	if b.Photo != nil {
		view.Photo = &PhotoView{Name: b.Photo.Name, ContentType: b.Photo.ContentType, Size: len(b.Photo.Data)}
	}
	if s := b.Location; s != nil {
		view.Location = &SampleView{Latitude: s.Latitude, Longitude: s.Longitude, Accuracy: s.Accuracy, CapturedAt: s.CapturedAt}
	}
	return view
}

func toErrorView(err error) (int, *ErrorView) {
	status, code := errorStatus(err)
	view := &ErrorView{Type: code, Detail: err.Error()}
	var violation *domain.GeofenceViolationError
	if errors.As(err, &violation) {
		view.DistanceMeters = &violation.Distance
		view.RadiusMeters = &violation.Radius
	}
	return status, view
}
