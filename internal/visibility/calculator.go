package visibility

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"windview/internal/domain"
	"windview/internal/metrics"
)

const (
	DefaultSampleCount       = 20
	DefaultObserverEyeHeight = 1.7
)

// ProfileProvider produces the elevation profile between two points.
type ProfileProvider interface {
	GetProfile(ctx context.Context, observer, target domain.GeoPoint, sampleCount int) (*domain.Profile, error)
}

type Options struct {
	ObserverEyeHeight float64 `json:"observerEyeHeight"`
	BlockedThreshold  float64 `json:"blockedThreshold"`
	PartialThreshold  float64 `json:"partialThreshold"`
}

type Request struct {
	Observer     domain.GeoPoint
	Target       domain.GeoPoint
	TargetHeight float64
	// SampleCount defaults to the calculator's configured count when zero.
	SampleCount int
	// Options defaults to the calculator's configured options when nil.
	Options *Options
}

// TurbineHeight is the height of the highest blade tip.
func TurbineHeight(hubHeight, rotorDiameter float64) float64 {
	return hubHeight + rotorDiameter/2
}

type Calculator struct {
	profiles    ProfileProvider
	defaults    Options
	sampleCount int
	metrics     *metrics.Collector
	logger      *slog.Logger
}

func NewCalculator(profiles ProfileProvider, defaults Options, sampleCount int, m *metrics.Collector, logger *slog.Logger) (*Calculator, error) {
	if err := (Thresholds{Blocked: defaults.BlockedThreshold, Partial: defaults.PartialThreshold}).Validate(); err != nil {
		return nil, err
	}
	if sampleCount < 2 {
		return nil, fmt.Errorf("sample count %d: must be at least 2", sampleCount)
	}
	return &Calculator{
		profiles:    profiles,
		defaults:    defaults,
		sampleCount: sampleCount,
		metrics:     m,
		logger:      logger.With("component", "visibility"),
	}, nil
}

// DefaultOptions returns the options used when a request carries none.
func (c *Calculator) DefaultOptions() Options {
	return c.defaults
}

func (c *Calculator) SampleCount() int {
	return c.sampleCount
}

// ComputeVisibility fetches the profile between observer and target and
// analyzes it. A profile that cannot be obtained is returned as an error
// wrapping the provider's error, never as a blocked verdict.
func (c *Calculator) ComputeVisibility(ctx context.Context, req Request) (domain.VisibilityResult, error) {
	start := time.Now()

	opts := c.defaults
	if req.Options != nil {
		opts = *req.Options
	}
	n := req.SampleCount
	if n == 0 {
		n = c.sampleCount
	}

	analyzer, err := NewAnalyzer(Thresholds{Blocked: opts.BlockedThreshold, Partial: opts.PartialThreshold})
	if err != nil {
		return domain.VisibilityResult{}, fmt.Errorf("%w: %w", domain.ErrInvalidProfile, err)
	}
	if !(req.TargetHeight > 0) {
		return domain.VisibilityResult{}, fmt.Errorf("target height %g: %w", req.TargetHeight, domain.ErrInvalidProfile)
	}

	profile, err := c.profiles.GetProfile(ctx, req.Observer, req.Target, n)
	if err != nil {
		return domain.VisibilityResult{}, fmt.Errorf("profile: %w", err)
	}

	result, err := analyzer.Analyze(profile, opts.ObserverEyeHeight, req.TargetHeight)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidProfile) {
			c.logger.Error("analyzer rejected profile",
				"observer", req.Observer.String(),
				"target", req.Target.String(),
				"samples", profile.Len(),
				"error", err,
			)
		}
		return domain.VisibilityResult{}, err
	}

	c.metrics.Verdict(string(result.Status), result.IsSurfaceModel)
	c.logger.Debug("visibility computed",
		"observer", req.Observer.String(),
		"target", req.Target.String(),
		"status", result.Status,
		"visible_pct", result.VisiblePercentage,
		"surface_model", result.IsSurfaceModel,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}
