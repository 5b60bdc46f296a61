// Package visibility decides how much of a tall structure an observer can
// see over the terrain between them.
package visibility

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"windview/internal/domain"
)

// Default classification thresholds in percent of structure height.
const (
	DefaultBlockedThreshold = 10.0
	DefaultPartialThreshold = 70.0
)

// Thresholds classify a visible percentage: below Blocked is blocked,
// below Partial is partial, anything else is visible.
type Thresholds struct {
	Blocked float64 `json:"blocked"`
	Partial float64 `json:"partial"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{Blocked: DefaultBlockedThreshold, Partial: DefaultPartialThreshold}
}

func (t Thresholds) Validate() error {
	if math.IsNaN(t.Blocked) || math.IsNaN(t.Partial) {
		return fmt.Errorf("thresholds must be numbers")
	}
	if t.Blocked < 0 || t.Partial > 100 || t.Blocked >= t.Partial {
		return fmt.Errorf("thresholds must satisfy 0 <= blocked (%g) < partial (%g) <= 100", t.Blocked, t.Partial)
	}
	return nil
}

func (t Thresholds) Classify(visiblePercentage float64) domain.Status {
	switch {
	case visiblePercentage < t.Blocked:
		return domain.StatusBlocked
	case visiblePercentage < t.Partial:
		return domain.StatusPartial
	default:
		return domain.StatusVisible
	}
}

// Analyzer is pure and safe for concurrent use.
type Analyzer struct {
	thresholds Thresholds
}

func NewAnalyzer(t Thresholds) (*Analyzer, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &Analyzer{thresholds: t}, nil
}

func (a *Analyzer) Thresholds() Thresholds {
	return a.thresholds
}

// Analyze tests every interior sample against the straight line from the
// observer's eye to the top of the structure. The largest excess of terrain
// over that line is the obstruction; on equal excess the sample nearer the
// observer is kept.
//
// The blocked part of the structure is found by extending the ray from the
// eye through the obstructing terrain point until it reaches the target
// distance. Everything below that shadow line is hidden.
func (a *Analyzer) Analyze(profile *domain.Profile, observerEyeHeight, targetHeight float64) (domain.VisibilityResult, error) {
	if err := validate(profile, observerEyeHeight, targetHeight); err != nil {
		return domain.VisibilityResult{}, err
	}

	first, last := profile.First(), profile.Last()
	from := orb.Point{first.Point.Longitude, first.Point.Latitude}
	to := orb.Point{last.Point.Longitude, last.Point.Latitude}

	distance := geo.DistanceHaversine(from, to)
	if distance <= 0 {
		return domain.VisibilityResult{}, fmt.Errorf("observer and target coincide: %w", domain.ErrInvalidProfile)
	}

	eye := first.Elevation + observerEyeHeight
	base := last.Elevation
	top := base + targetHeight
	slope := (top - eye) / distance

	var obstruction *domain.ObstructionPoint
	segments := float64(profile.Len() - 1)
	for i := 1; i < profile.Len()-1; i++ {
		s := profile.Samples[i]
		d := distance * float64(i) / segments
		excess := s.Elevation - (eye + slope*d)
		if excess <= 0 {
			continue
		}
		if obstruction == nil || excess > obstruction.ObstructionMeters {
			obstruction = &domain.ObstructionPoint{
				SampleIndex:       i,
				Point:             s.Point,
				DistanceMeters:    d,
				TerrainElevation:  s.Elevation,
				ObstructionMeters: excess,
			}
		}
	}

	visibleHeight := targetHeight
	if obstruction != nil {
		shadow := eye + (obstruction.TerrainElevation-eye)*distance/obstruction.DistanceMeters
		blocked := math.Min(math.Max(shadow-base, 0), targetHeight)
		visibleHeight = targetHeight - blocked
	}
	percentage := 100 * visibleHeight / targetHeight

	return domain.VisibilityResult{
		Status:               a.thresholds.Classify(percentage),
		VisiblePercentage:    percentage,
		VisibleHeightMeters:  visibleHeight,
		TotalHeightMeters:    targetHeight,
		Obstruction:          obstruction,
		Profile:              profile,
		ObserverEyeElevation: eye,
		TargetBaseElevation:  base,
		TargetTopElevation:   top,
		DistanceMeters:       distance,
		BearingDegrees:       normalizeBearing(geo.Bearing(from, to)),
		IsSurfaceModel:       profile.IsSurfaceModel,
	}, nil
}

func validate(profile *domain.Profile, observerEyeHeight, targetHeight float64) error {
	if profile == nil || profile.Len() < 2 {
		return fmt.Errorf("profile needs at least 2 samples: %w", domain.ErrInvalidProfile)
	}
	if !(targetHeight > 0) || math.IsInf(targetHeight, 0) {
		return fmt.Errorf("target height %g: %w", targetHeight, domain.ErrInvalidProfile)
	}
	if !finite(observerEyeHeight) || observerEyeHeight < 0 {
		return fmt.Errorf("observer eye height %g: %w", observerEyeHeight, domain.ErrInvalidProfile)
	}
	for i, s := range profile.Samples {
		if !finite(s.Elevation) {
			return fmt.Errorf("sample %d elevation %g: %w", i, s.Elevation, domain.ErrInvalidProfile)
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func normalizeBearing(b float64) float64 {
	b = math.Mod(b, 360)
	if b < 0 {
		b += 360
	}
	return b
}
