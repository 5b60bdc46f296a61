// Package elevation builds elevation profiles between two points. Surface
// model tiles are the primary source; a bare-terrain lookup service is used
// when any tile along the line is unavailable.
package elevation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"windview/internal/cache"
	"windview/internal/domain"
	"windview/internal/metrics"
)

// ErrProfileUnavailable means neither source could produce a profile. The
// visibility question is indeterminate, not blocked.
var ErrProfileUnavailable = errors.New("elevation profile unavailable")

type Projector interface {
	ToProjected(p domain.GeoPoint) domain.ProjectedPoint
}

// ElevationSource answers single-point lookups in projected metres.
type ElevationSource interface {
	ElevationAt(ctx context.Context, p domain.ProjectedPoint) (float64, error)
}

// FallbackSource answers a batch of points in one call; the result is
// aligned by index with the input.
type FallbackSource interface {
	Elevations(ctx context.Context, points []domain.GeoPoint) ([]float64, error)
}

type ProfileCache interface {
	Get(ctx context.Context, key string) (*domain.Profile, bool, error)
	Set(ctx context.Context, key string, profile *domain.Profile) error
	Clear(ctx context.Context) error
}

type Service struct {
	projector Projector
	tiles     ElevationSource
	fallback  FallbackSource
	cache     ProfileCache
	metrics   *metrics.Collector
	group     singleflight.Group
	logger    *slog.Logger
}

// NewService wires the profile pipeline. fallback and profiles may be nil,
// which disables that tier.
func NewService(projector Projector, tiles ElevationSource, fallback FallbackSource, profiles ProfileCache, m *metrics.Collector, logger *slog.Logger) *Service {
	return &Service{
		projector: projector,
		tiles:     tiles,
		fallback:  fallback,
		cache:     profiles,
		metrics:   m,
		logger:    logger.With("component", "elevation"),
	}
}

// GetProfile returns sampleCount elevation samples from observer to target
// inclusive. Concurrent calls for the same key share one computation, and
// the computation outlives a cancelled caller so the result still reaches
// the cache.
func (s *Service) GetProfile(ctx context.Context, observer, target domain.GeoPoint, sampleCount int) (*domain.Profile, error) {
	if sampleCount < 2 {
		return nil, fmt.Errorf("sample count %d: %w", sampleCount, domain.ErrInvalidProfile)
	}
	if !observer.Valid() || !target.Valid() {
		return nil, fmt.Errorf("coordinates out of range: %w", domain.ErrInvalidProfile)
	}

	key := cache.ProfileKey(observer, target, sampleCount)

	if profile, ok := s.cached(ctx, key); ok {
		s.metrics.ProfileOutcome(metrics.ProfileCached)
		return profile, nil
	}

	ch := s.group.DoChan(key, func() (any, error) {
		return s.compute(context.WithoutCancel(ctx), key, observer, target, sampleCount)
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrProfileUnavailable, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.Profile), nil
	}
}

func (s *Service) cached(ctx context.Context, key string) (*domain.Profile, bool) {
	if s.cache == nil {
		return nil, false
	}
	profile, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("profile cache read failed", "key", key, "error", err)
		return nil, false
	}
	return profile, ok
}

func (s *Service) compute(ctx context.Context, key string, observer, target domain.GeoPoint, sampleCount int) (*domain.Profile, error) {
	start := time.Now()

	points, err := domain.Interpolate(observer, target, sampleCount)
	if err != nil {
		return nil, err
	}

	profile, primaryErr := s.fromTiles(ctx, points)
	if primaryErr == nil {
		s.metrics.ProfileOutcome(metrics.ProfileSurface)
	} else {
		s.logger.Warn("surface tiles unavailable, using fallback",
			"observer", observer.String(),
			"target", target.String(),
			"error", primaryErr,
		)

		var fallbackErr error
		profile, fallbackErr = s.fromFallback(ctx, points)
		if fallbackErr != nil {
			s.metrics.ProfileOutcome(metrics.ProfileUnavailable)
			s.logger.Error("elevation profile unavailable",
				"observer", observer.String(),
				"target", target.String(),
				"primary_error", primaryErr,
				"fallback_error", fallbackErr,
			)
			return nil, fmt.Errorf("%w: %w", ErrProfileUnavailable, errors.Join(primaryErr, fallbackErr))
		}
		s.metrics.ProfileOutcome(metrics.ProfileFallback)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, profile); err != nil {
			s.logger.Warn("profile cache write failed", "key", key, "error", err)
		}
	}

	s.logger.Debug("profile computed",
		"key", key,
		"source", profile.Source,
		"samples", sampleCount,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return profile, nil
}

// fromTiles fails on the first unavailable point; a partially tiled
// profile is never returned.
func (s *Service) fromTiles(ctx context.Context, points []domain.GeoPoint) (*domain.Profile, error) {
	samples := make([]domain.ElevationSample, len(points))
	for i, p := range points {
		elev, err := s.tiles.ElevationAt(ctx, s.projector.ToProjected(p))
		if err != nil {
			return nil, fmt.Errorf("sample %d at %s: %w", i, p, err)
		}
		samples[i] = domain.ElevationSample{Point: p, Elevation: elev}
	}
	return &domain.Profile{
		Samples:        samples,
		IsSurfaceModel: true,
		Source:         domain.SourceSurfaceTiles,
	}, nil
}

func (s *Service) fromFallback(ctx context.Context, points []domain.GeoPoint) (*domain.Profile, error) {
	if s.fallback == nil {
		return nil, errors.New("no fallback source configured")
	}
	elevations, err := s.fallback.Elevations(ctx, points)
	if err != nil {
		return nil, err
	}
	if len(elevations) != len(points) {
		return nil, fmt.Errorf("fallback returned %d elevations for %d points", len(elevations), len(points))
	}

	samples := make([]domain.ElevationSample, len(points))
	for i, p := range points {
		samples[i] = domain.ElevationSample{Point: p, Elevation: elevations[i]}
	}
	return &domain.Profile{
		Samples:        samples,
		IsSurfaceModel: false,
		Source:         domain.SourceOpenElevation,
	}, nil
}

// ClearCache removes every cached profile.
func (s *Service) ClearCache(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Clear(ctx)
}
