package presence

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"example.com/fieldpresence/internal/domain"
	"example.com/fieldpresence/internal/observability"
)

const (
	DefaultSingleInterval = 5 * time.Second
	DefaultAllInterval    = time.Second
	defaultPublishTimeout = 5 * time.Second
)

// Mode identifies a poll schedule.
type Mode string

const (
	ModeSingle Mode = "single"
	ModeAll    Mode = "all"
)

// Source fetches last known locations from the collector.
type Source interface {
	Latest(ctx context.Context, agentID string) (domain.PresenceRecord, error)
	All(ctx context.Context) ([]domain.PresenceRecord, error)
}

// Sink receives every snapshot the poller installs.
type Sink interface {
	Name() string
	Publish(ctx context.Context, snap Snapshot) error
}

// Option configures optional behaviour for the Poller.
type Option func(*Poller)

// WithLogger overrides the logger used to report poll failures.
func WithLogger(logger *log.Logger) Option {
	return func(p *Poller) {
		p.logger = logger
	}
}

// WithIntervals overrides the single-agent and all-agents cadences.
func WithIntervals(single, all time.Duration) Option {
	return func(p *Poller) {
		if single > 0 {
			p.intervals[ModeSingle] = single
		}
		if all > 0 {
			p.intervals[ModeAll] = all
		}
	}
}

// WithCache overrides the presence cache.
func WithCache(cache *Cache) Option {
	return func(p *Poller) {
		if cache != nil {
			p.cache = cache
		}
	}
}

// WithPublishTimeout bounds each sink fan-out.
func WithPublishTimeout(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.publishTimeout = d
		}
	}
}

type schedule struct {
	gen     uint64
	agentID string
	cancel  context.CancelFunc
}

// Poller runs the single-agent and all-agents poll schedules. Each schedule
// is started and stopped independently; results that arrive after their
// schedule was stopped are discarded.
type Poller struct {
	source         Source
	cache          *Cache
	intervals      map[Mode]time.Duration
	publishTimeout time.Duration
	logger         *log.Logger

	mu        sync.Mutex
	gen       uint64
	schedules map[Mode]*schedule
	sinks     []Sink

	publishMu sync.Mutex
	wg        sync.WaitGroup
}

// NewPoller constructs a Poller reading from source.
func NewPoller(source Source, opts ...Option) *Poller {
	p := &Poller{
		source: source,
		cache:  NewCache(DefaultMaxAgents),
		intervals: map[Mode]time.Duration{
			ModeSingle: DefaultSingleInterval,
			ModeAll:    DefaultAllInterval,
		},
		publishTimeout: defaultPublishTimeout,
		logger:         log.New(log.Writer(), "[presence] ", log.LstdFlags|log.Lshortfile),
		schedules:      make(map[Mode]*schedule),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Subscribe registers a sink for subsequent snapshots.
func (p *Poller) Subscribe(sink Sink) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sinks = append(p.sinks, sink)
}

// Snapshot returns the current presence view.
func (p *Poller) Snapshot() Snapshot {
	return p.cache.Snapshot()
}

// Active reports whether mode is scheduled, and for the single mode which agent.
func (p *Poller) Active(mode Mode) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.schedules[mode]
	if !ok {
		return "", false
	}
	return s.agentID, true
}

// StartSingle polls one agent's latest location. It is a no-op while the
// single-agent schedule is already running.
func (p *Poller) StartSingle(ctx context.Context, agentID string) error {
	if agentID == "" {
		return fmt.Errorf("%w: agent id is required", domain.ErrValidation)
	}
	p.start(ctx, ModeSingle, agentID)
	return nil
}

// StopSingle cancels the single-agent schedule. It is idempotent.
func (p *Poller) StopSingle() {
	p.stop(ModeSingle)
}

// StartAll polls every agent's latest location. It is a no-op while the
// all-agents schedule is already running.
func (p *Poller) StartAll(ctx context.Context) {
	p.start(ctx, ModeAll, "")
}

// StopAll cancels the all-agents schedule. It is idempotent.
func (p *Poller) StopAll() {
	p.stop(ModeAll)
}

// Wait blocks until every stopped schedule has returned, including any
// in-flight fetch.
func (p *Poller) Wait() {
	p.wg.Wait()
}

func (p *Poller) start(ctx context.Context, mode Mode, agentID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.schedules[mode]; ok {
		return
	}
	p.gen++
	loopCtx, cancel := context.WithCancel(ctx)
	s := &schedule{gen: p.gen, agentID: agentID, cancel: cancel}
	p.schedules[mode] = s

	p.wg.Add(1)
	go p.run(loopCtx, mode, s)
	p.logger.Printf("%s poll started (interval=%s)", mode, p.intervals[mode])
}

func (p *Poller) stop(mode Mode) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.schedules[mode]
	if !ok {
		return
	}
	s.cancel()
	delete(p.schedules, mode)
	p.logger.Printf("%s poll stopped", mode)
}

func (p *Poller) run(ctx context.Context, mode Mode, s *schedule) {
	ticker := time.NewTicker(p.intervals[mode])
	defer func() {
		ticker.Stop()
		p.release(mode, s, ctx.Err())
		p.wg.Done()
	}()

	for {
		p.tick(ctx, mode, s)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// release drops the schedule when its loop exits without a stop, so a
// cancelled parent context does not leave the mode marked active.
func (p *Poller) release(mode Mode, s *schedule, cause error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if current, ok := p.schedules[mode]; ok && current.gen == s.gen {
		s.cancel()
		delete(p.schedules, mode)
		p.logger.Printf("%s poll ended: %v", mode, cause)
	}
}

func (p *Poller) tick(ctx context.Context, mode Mode, s *schedule) {
	if ctx.Err() != nil {
		return
	}

	// A stop does not abort the request in flight; its result is dropped below.
	fetchCtx := context.WithoutCancel(ctx)
	start := time.Now()

	var (
		records []domain.PresenceRecord
		err     error
	)
	switch mode {
	case ModeSingle:
		var rec domain.PresenceRecord
		rec, err = p.source.Latest(fetchCtx, s.agentID)
		if rec.AgentID == "" {
			rec.AgentID = s.agentID
		}
		records = []domain.PresenceRecord{rec}
	case ModeAll:
		records, err = p.source.All(fetchCtx)
	}
	pollDuration.WithLabelValues(string(mode)).Observe(time.Since(start).Seconds())

	if err != nil {
		pollCounter.WithLabelValues(string(mode), "failed").Inc()
		p.logger.Printf("%s poll failed: %v", mode, err)
		return
	}

	snap, ok := p.apply(mode, s, records)
	if !ok {
		pollCounter.WithLabelValues(string(mode), "discarded").Inc()
		return
	}
	pollCounter.WithLabelValues(string(mode), "ok").Inc()
	observability.RecordPresenceRefresh(string(mode), snap.RefreshedAt)
	p.publish()
}

func (p *Poller) apply(mode Mode, s *schedule, records []domain.PresenceRecord) (Snapshot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if current, ok := p.schedules[mode]; !ok || current.gen != s.gen {
		return Snapshot{}, false
	}

	now := time.Now()
	if mode == ModeAll {
		return p.cache.ReplaceAll(records, now), true
	}
	return p.cache.Put(records[0], now), true
}

// publish fans the current cache state out to every sink. The snapshot is read
// under publishMu so sinks never observe an older view after a newer one.
func (p *Poller) publish() {
	p.mu.Lock()
	sinks := append([]Sink(nil), p.sinks...)
	p.mu.Unlock()
	if len(sinks) == 0 {
		return
	}

	p.publishMu.Lock()
	defer p.publishMu.Unlock()
	snap := p.cache.Snapshot()

	ctx, cancel := context.WithTimeout(context.Background(), p.publishTimeout)
	defer cancel()

	var errs []error
	for _, sink := range sinks {
		if err := sink.Publish(ctx, snap); err != nil {
			sinkFailureCounter.WithLabelValues(sink.Name()).Inc()
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		p.logger.Printf("snapshot delivery failed: %v", err)
	}
}
