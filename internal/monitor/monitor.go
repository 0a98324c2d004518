// Package monitor runs the poll loop: prime the high-water mark, then on every interval
// fetch recent spots, resolve and range-check the new ones, and notify.
package monitor

import (
	"context"
	"errors"
	"log"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/text/cases"

	"github.com/rimio/sota-notifier/internal/events"
	"github.com/rimio/sota-notifier/internal/geo"
	"github.com/rimio/sota-notifier/internal/metrics"
	"github.com/rimio/sota-notifier/internal/notify"
	"github.com/rimio/sota-notifier/internal/sota"
	"github.com/rimio/sota-notifier/internal/spots"
)

// State is the loop's coarse health.
type State int32

const (
	Priming State = iota
	Running
	Degraded
)

func (s State) String() string {
	switch s {
	case Priming:
		return "priming"
	case Running:
		return "running"
	case Degraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// Feed is the spot source.
type Feed interface {
	FetchSpots(ctx context.Context, scope sota.Scope) ([]sota.Spot, error)
}

// Resolver maps a summit key to its location.
type Resolver interface {
	Resolve(ctx context.Context, key sota.SummitKey) (sota.Summit, error)
	Len() int
}

// Options configures a Monitor. Feed, Resolver and Sink are required.
type Options struct {
	Feed     Feed
	Resolver Resolver
	Sink     notify.Sink
	Bus      *events.Bus
	Metrics  *metrics.Metrics

	Observer    geo.Point
	ThresholdKm float64
	Interval    time.Duration
	Modes       []string

	// Wait blocks for d or until ctx ends and reports whether the full wait elapsed.
	// Tests replace it to drive the loop without sleeping.
	Wait func(ctx context.Context, d time.Duration) bool
	Now  func() time.Time
}

// Status is a snapshot for the ops API.
type Status struct {
	State       string    `json:"state"`
	Mark        int64     `json:"high_water_mark"`
	Observer    geo.Point `json:"observer"`
	ThresholdKm float64   `json:"threshold_km"`
	Interval    string    `json:"interval"`
	Modes       []string  `json:"modes,omitempty"`
	LastPoll    time.Time `json:"last_poll,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	CacheSize   int       `json:"cache_size"`
}

// Monitor owns the tracker. Run must be called from a single goroutine; the setters and
// Status are safe from any goroutine.
type Monitor struct {
	feed     Feed
	resolver Resolver
	sink     notify.Sink
	bus      *events.Bus
	metrics  *metrics.Metrics
	observer geo.Point
	interval time.Duration
	wait     func(context.Context, time.Duration) bool
	now      func() time.Time

	threshold atomic.Uint64
	modes     atomic.Pointer[modeFilter]

	tracker spots.Tracker

	mu        sync.RWMutex
	state     State
	lastPoll  time.Time
	lastError string
	mark      int64
}

func New(opts Options) (*Monitor, error) {
	if opts.Feed == nil || opts.Resolver == nil || opts.Sink == nil {
		return nil, errors.New("monitor: feed, resolver and sink are required")
	}
	if opts.Interval <= 0 {
		return nil, errors.New("monitor: interval must be positive")
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Wait == nil {
		opts.Wait = sleep
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	m := &Monitor{
		feed:     opts.Feed,
		resolver: opts.Resolver,
		sink:     opts.Sink,
		bus:      opts.Bus,
		metrics:  opts.Metrics,
		observer: opts.Observer,
		interval: opts.Interval,
		wait:     opts.Wait,
		now:      opts.Now,
	}
	m.SetThreshold(opts.ThresholdKm)
	m.SetModes(opts.Modes)
	return m, nil
}

// Run primes, then polls once per interval until ctx is cancelled. It returns nil on
// cancellation; fetch failures only move the monitor to Degraded.
func (m *Monitor) Run(ctx context.Context) error {
	log.Printf("monitor: start observer=%s threshold_km=%.0f interval=%s", m.observer, m.Threshold(), m.interval)
	for !m.tracker.Primed() {
		if ctx.Err() != nil {
			return nil
		}
		if err := m.prime(ctx); err != nil {
			log.Printf("monitor: priming failed, retrying in %s: %v", m.interval, err)
			if !m.wait(ctx, m.interval) {
				return nil
			}
		}
	}
	for {
		if !m.wait(ctx, m.interval) {
			log.Printf("monitor: stopped mark=%d", m.tracker.Mark())
			return nil
		}
		_ = m.Poll(ctx)
	}
}

func (m *Monitor) prime(ctx context.Context) error {
	start := time.Now()
	batch, err := m.feed.FetchSpots(ctx, sota.Latest(1))
	m.metrics.ObservePoll(time.Since(start), err)
	if err != nil {
		m.setError(err)
		return err
	}
	m.tracker.Prime(batch)
	m.metrics.SetMark(m.tracker.Mark())
	m.metrics.SetCacheSize(m.resolver.Len())
	m.recordSuccess(Running)
	log.Printf("monitor: primed mark=%d", m.tracker.Mark())
	m.bus.Publish(events.Event{Kind: events.KindPrimed, Data: map[string]any{"mark": m.tracker.Mark()}})
	return nil
}

// Poll runs one cycle. It returns the fetch error, if any; per-spot failures are logged
// and counted but never returned. Calling Poll before priming primes instead.
func (m *Monitor) Poll(ctx context.Context) error {
	if !m.tracker.Primed() {
		return m.prime(ctx)
	}
	start := time.Now()
	batch, err := m.feed.FetchSpots(ctx, sota.Within(sota.LookbackHours(m.interval)))
	if err != nil {
		m.metrics.ObservePoll(time.Since(start), err)
		m.setError(err)
		m.setState(Degraded)
		log.Printf("monitor: poll failed state=%s mark=%d: %v", Degraded, m.tracker.Mark(), err)
		m.bus.Publish(events.Event{Kind: events.KindPollFailed, Data: map[string]any{"error": err.Error()}})
		return err
	}

	fresh := m.tracker.Classify(batch)
	m.metrics.AddNewSpots(len(fresh))
	threshold := m.Threshold()
	filter := m.modes.Load()
	notified := 0
	for _, s := range fresh {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !filter.allows(s.Mode) {
			m.skip(s, metrics.SkipMode, "")
			continue
		}
		summit, err := m.resolver.Resolve(ctx, s.Summit)
		if err != nil {
			log.Printf("monitor: spot=%d summit=%s resolve failed: %v", s.ID, s.Summit, err)
			m.skip(s, metrics.SkipUnresolved, err.Error())
			continue
		}
		d := geo.DistanceKm(m.observer, summit.Point)
		if !geo.Within(d, threshold) {
			m.skip(s, metrics.SkipTooFar, "")
			continue
		}
		if err := m.sink.Notify(ctx, notify.Notification{Spot: s, Summit: summit, DistanceKm: d}); err != nil {
			m.metrics.SinkFailed()
			log.Printf("monitor: spot=%d notify error: %v", s.ID, err)
		}
		m.metrics.Notified()
		notified++
	}
	m.tracker.Advance(batch)

	m.metrics.ObservePoll(time.Since(start), nil)
	m.metrics.SetMark(m.tracker.Mark())
	m.metrics.SetCacheSize(m.resolver.Len())
	m.recordSuccess(Running)
	m.bus.Publish(events.Event{Kind: events.KindPoll, Data: map[string]any{
		"fetched":  len(batch),
		"new":      len(fresh),
		"notified": notified,
		"mark":     m.tracker.Mark(),
	}})
	return nil
}

func (m *Monitor) skip(s sota.Spot, reason, detail string) {
	m.metrics.Skipped(reason)
	data := map[string]any{"spot_id": s.ID, "summit": s.Summit.String(), "reason": reason}
	if detail != "" {
		data["error"] = detail
	}
	m.bus.Publish(events.Event{Kind: events.KindSkipped, Data: data})
}

// SetThreshold changes the notification radius for subsequent spots.
func (m *Monitor) SetThreshold(km float64) {
	m.threshold.Store(math.Float64bits(km))
}

func (m *Monitor) Threshold() float64 {
	return math.Float64frombits(m.threshold.Load())
}

// SetModes replaces the mode allowlist. An empty list allows every mode.
func (m *Monitor) SetModes(modes []string) {
	m.modes.Store(newModeFilter(modes))
}

// Modes returns the current allowlist as configured.
func (m *Monitor) Modes() []string {
	return m.modes.Load().list()
}

func (m *Monitor) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Status{
		State:       m.state.String(),
		Mark:        m.mark,
		Observer:    m.observer,
		ThresholdKm: m.Threshold(),
		Interval:    m.interval.String(),
		Modes:       m.Modes(),
		LastPoll:    m.lastPoll,
		LastError:   m.lastError,
		CacheSize:   m.resolver.Len(),
	}
}

func (m *Monitor) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

func (m *Monitor) setError(err error) {
	m.mu.Lock()
	m.lastPoll = m.now()
	m.lastError = err.Error()
	m.mu.Unlock()
}

func (m *Monitor) recordSuccess(s State) {
	m.mu.Lock()
	prev := m.state
	m.state = s
	m.lastPoll = m.now()
	m.lastError = ""
	m.mark = m.tracker.Mark()
	m.mu.Unlock()
	if prev == Degraded && s == Running {
		log.Printf("monitor: recovered mark=%d", m.tracker.Mark())
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// modeFilter is immutable once built.
type modeFilter struct {
	raw    []string
	folded map[string]struct{}
}

func newModeFilter(modes []string) *modeFilter {
	f := &modeFilter{folded: make(map[string]struct{})}
	for _, mode := range modes {
		mode = strings.TrimSpace(mode)
		if mode == "" {
			continue
		}
		f.raw = append(f.raw, mode)
		f.folded[fold(mode)] = struct{}{}
	}
	return f
}

func (f *modeFilter) allows(mode string) bool {
	if f == nil || len(f.folded) == 0 {
		return true
	}
	_, ok := f.folded[fold(strings.TrimSpace(mode))]
	return ok
}

func (f *modeFilter) list() []string {
	if f == nil {
		return nil
	}
	return append([]string(nil), f.raw...)
}

// cases.Caser is stateful, so each call gets its own.
func fold(s string) string {
	return cases.Fold().String(s)
}
