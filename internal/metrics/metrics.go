// Package metrics bundles the Prometheus collectors of the elevation and
// visibility pipeline.
package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Tile cache tiers
const (
	TierMemory = "memory"
	TierDisk   = "disk"
	TierRemote = "remote"
)

// Profile outcomes
const (
	ProfileCached      = "cache"
	ProfileSurface     = "surface"
	ProfileFallback    = "fallback"
	ProfileUnavailable = "unavailable"
)

// Collector is nil-safe: every recording method on a nil *Collector is a
// no-op, so components can run without metrics in tests.
type Collector struct {
	gatherer prometheus.Gatherer

	TileLookups     *prometheus.CounterVec
	TileFetchErrors *prometheus.CounterVec
	TilesResident   prometheus.Gauge
	Profiles        *prometheus.CounterVec
	Verdicts        *prometheus.CounterVec
	HTTPRequests    *prometheus.CounterVec
	HTTPDurations   *prometheus.HistogramVec
}

// New registers the collectors against reg, defaulting to the global
// registry when nil.
func New(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	lookups, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tile_lookups_total",
		Help: "Tile lookups by cache tier and result (hit, miss).",
	}, []string{"tier", "result"}), "tile_lookups_total")
	if err != nil {
		return nil, err
	}

	fetchErrors, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tile_fetch_errors_total",
		Help: "Failed tile loads by kind (unavailable, corrupt).",
	}, []string{"kind"}), "tile_fetch_errors_total")
	if err != nil {
		return nil, err
	}

	resident, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tiles_resident",
		Help: "Tiles currently held in the in-memory cache.",
	}), "tiles_resident")
	if err != nil {
		return nil, err
	}

	profiles, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "elevation_profiles_total",
		Help: "Elevation profile requests by outcome (cache, surface, fallback, unavailable).",
	}, []string{"outcome"}), "elevation_profiles_total")
	if err != nil {
		return nil, err
	}

	verdicts, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "visibility_verdicts_total",
		Help: "Visibility verdicts by status and elevation model.",
	}, []string{"status", "surface_model"}), "visibility_verdicts_total")
	if err != nil {
		return nil, err
	}

	requests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Handled HTTP requests by route and status code.",
	}, []string{"route", "code"}), "http_requests_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"route"}), "http_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:        gatherer,
		TileLookups:     lookups,
		TileFetchErrors: fetchErrors,
		TilesResident:   resident,
		Profiles:        profiles,
		Verdicts:        verdicts,
		HTTPRequests:    requests,
		HTTPDurations:   durations,
	}, nil
}

func (c *Collector) TileHit(tier string) {
	if c == nil {
		return
	}
	c.TileLookups.WithLabelValues(tier, "hit").Inc()
}

func (c *Collector) TileMiss(tier string) {
	if c == nil {
		return
	}
	c.TileLookups.WithLabelValues(tier, "miss").Inc()
}

func (c *Collector) TileFetchError(kind string) {
	if c == nil {
		return
	}
	c.TileFetchErrors.WithLabelValues(kind).Inc()
}

func (c *Collector) SetTilesResident(n int) {
	if c == nil {
		return
	}
	c.TilesResident.Set(float64(n))
}

func (c *Collector) ProfileOutcome(outcome string) {
	if c == nil {
		return
	}
	c.Profiles.WithLabelValues(outcome).Inc()
}

func (c *Collector) Verdict(status string, surfaceModel bool) {
	if c == nil {
		return
	}
	c.Verdicts.WithLabelValues(status, strconv.FormatBool(surfaceModel)).Inc()
}

// ObserveHTTP records one handled request.
func (c *Collector) ObserveHTTP(route string, code int, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	c.HTTPDurations.WithLabelValues(route).Observe(elapsed.Seconds())
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
