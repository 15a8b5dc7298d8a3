// Package uplink forwards location samples to the collector.
package uplink

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"example.com/fieldpresence/internal/domain"
	"example.com/fieldpresence/internal/observability"
)

// ErrDropped is returned when a sample is discarded by the rate guard.
var ErrDropped = errors.New("sample dropped by uplink rate guard")

// Transmitter performs one outbound location update.
type Transmitter interface {
	SendLocation(ctx context.Context, sample domain.LocationSample) error
}

// Option configures optional behaviour for the Uplink.
type Option func(*Uplink)

// WithLogger overrides the logger used to report failures.
func WithLogger(logger *log.Logger) Option {
	return func(u *Uplink) {
		u.logger = logger
	}
}

// WithRateLimit drops samples arriving faster than perSecond. The guard is off
// unless configured; zero disables it.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(u *Uplink) {
		if perSecond <= 0 {
			u.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		u.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithSendTimeout bounds each background transmission started by Forward.
func WithSendTimeout(d time.Duration) Option {
	return func(u *Uplink) {
		if d > 0 {
			u.sendTimeout = d
		}
	}
}

// Uplink sends samples one at a time. Failures are logged and counted, never retried or queued.
type Uplink struct {
	tx          Transmitter
	limiter     *rate.Limiter
	sendTimeout time.Duration
	logger      *log.Logger
	inflight    sync.WaitGroup
}

// New constructs an Uplink around tx.
func New(tx Transmitter, opts ...Option) *Uplink {
	u := &Uplink{
		tx:          tx,
		sendTimeout: 15 * time.Second,
		logger:      log.New(log.Writer(), "[uplink] ", log.LstdFlags|log.Lshortfile),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Send transmits sample synchronously and reports the outcome.
func (u *Uplink) Send(ctx context.Context, sample domain.LocationSample) error {
	if u.limiter != nil && !u.limiter.Allow() {
		droppedCounter.Inc()
		u.logger.Printf("location dropped by rate guard: %.6f, %.6f", sample.Latitude, sample.Longitude)
		return ErrDropped
	}

	if err := u.tx.SendLocation(ctx, sample); err != nil {
		failedCounter.Inc()
		u.logger.Printf("failed to send location update (%.6f, %.6f): %v", sample.Latitude, sample.Longitude, err)
		return err
	}

	sentCounter.Inc()
	observability.RecordSampleUplinked(sample.CapturedAt)
	u.logger.Printf("location sent: %.6f, %.6f", sample.Latitude, sample.Longitude)
	return nil
}

// Forward transmits sample in the background so the caller never blocks on the network.
func (u *Uplink) Forward(sample domain.LocationSample) {
	u.inflight.Add(1)
	go func() {
		defer u.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), u.sendTimeout)
		defer cancel()
		_ = u.Send(ctx, sample)
	}()
}

// Wait blocks until background transmissions finish.
func (u *Uplink) Wait() {
	u.inflight.Wait()
}
