// Package metrics exposes monitor counters to prometheus and as a plain snapshot for the
// ops status endpoint and the periodic stats log line.
package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Skip reasons for spots that were new but produced no notification.
const (
	SkipUnresolved = "unresolved"
	SkipTooFar     = "too_far"
	SkipMode       = "mode"
)

// Metrics is safe for concurrent use. The zero value is not usable; call New.
type Metrics struct {
	registry *prometheus.Registry

	polls        *prometheus.CounterVec
	pollDuration prometheus.Histogram
	spotsNew     prometheus.Counter
	notified     prometheus.Counter
	sinkErrors   prometheus.Counter
	skipped      *prometheus.CounterVec
	mark         prometheus.Gauge
	cacheSize    prometheus.Gauge

	pollsOK     atomic.Int64
	pollsFailed atomic.Int64
	newSpots    atomic.Int64
	sent        atomic.Int64
	sinkFailed  atomic.Int64
	skips       atomic.Int64
	unresolved  atomic.Int64
	markValue   atomic.Int64
	cacheValue  atomic.Int64
}

// Snapshot is a read-only view of the counters.
type Snapshot struct {
	PollsOK       int64 `json:"polls_ok"`
	PollsFailed   int64 `json:"polls_failed"`
	NewSpots      int64 `json:"new_spots"`
	Notified      int64 `json:"notified"`
	SinkErrors    int64 `json:"sink_errors"`
	Skipped       int64 `json:"skipped"`
	Unresolved    int64 `json:"unresolved"`
	HighWaterMark int64 `json:"high_water_mark"`
	CachedSummits int64 `json:"cached_summits"`
}

// New registers collectors on a private registry so tests can build as many as they like.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		polls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sota_notifier_polls_total",
			Help: "Spot feed polls by outcome",
		}, []string{"outcome"}),
		pollDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "sota_notifier_poll_duration_seconds",
			Help:    "Time spent fetching and processing one poll",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		spotsNew: f.NewCounter(prometheus.CounterOpts{
			Name: "sota_notifier_new_spots_total",
			Help: "Spots above the high-water mark",
		}),
		notified: f.NewCounter(prometheus.CounterOpts{
			Name: "sota_notifier_notifications_total",
			Help: "Spots handed to the notification sink",
		}),
		sinkErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "sota_notifier_sink_errors_total",
			Help: "Notification sink failures",
		}),
		skipped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sota_notifier_skipped_spots_total",
			Help: "New spots that produced no notification, by reason",
		}, []string{"reason"}),
		mark: f.NewGauge(prometheus.GaugeOpts{
			Name: "sota_notifier_high_water_mark",
			Help: "Largest spot id processed",
		}),
		cacheSize: f.NewGauge(prometheus.GaugeOpts{
			Name: "sota_notifier_cached_summits",
			Help: "Summits held in the location cache",
		}),
	}
}

// ObservePoll records one poll attempt.
func (m *Metrics) ObservePoll(d time.Duration, err error) {
	m.pollDuration.Observe(d.Seconds())
	if err != nil {
		m.polls.WithLabelValues("failed").Inc()
		m.pollsFailed.Add(1)
		return
	}
	m.polls.WithLabelValues("ok").Inc()
	m.pollsOK.Add(1)
}

func (m *Metrics) AddNewSpots(n int) {
	if n <= 0 {
		return
	}
	m.spotsNew.Add(float64(n))
	m.newSpots.Add(int64(n))
}

func (m *Metrics) Notified() {
	m.notified.Inc()
	m.sent.Add(1)
}

func (m *Metrics) SinkFailed() {
	m.sinkErrors.Inc()
	m.sinkFailed.Add(1)
}

// Skipped counts a new spot dropped for reason (one of the Skip* constants).
func (m *Metrics) Skipped(reason string) {
	m.skipped.WithLabelValues(reason).Inc()
	m.skips.Add(1)
	if reason == SkipUnresolved {
		m.unresolved.Add(1)
	}
}

func (m *Metrics) SetMark(id int64) {
	m.mark.Set(float64(id))
	m.markValue.Store(id)
}

func (m *Metrics) SetCacheSize(n int) {
	m.cacheSize.Set(float64(n))
	m.cacheValue.Store(int64(n))
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		PollsOK:       m.pollsOK.Load(),
		PollsFailed:   m.pollsFailed.Load(),
		NewSpots:      m.newSpots.Load(),
		Notified:      m.sent.Load(),
		SinkErrors:    m.sinkFailed.Load(),
		Skipped:       m.skips.Load(),
		Unresolved:    m.unresolved.Load(),
		HighWaterMark: m.markValue.Load(),
		CachedSummits: m.cacheValue.Load(),
	}
}
