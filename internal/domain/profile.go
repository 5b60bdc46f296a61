package domain

import "errors"

// ErrInvalidProfile marks malformed analyzer input. It indicates a caller
// bug, never a transient condition.
var ErrInvalidProfile = errors.New("invalid profile")

// Profile sources
const (
	SourceSurfaceTiles  = "surface-tiles"
	SourceOpenElevation = "open-elevation"
)

// ElevationSample is the height in metres above datum at one point
type ElevationSample struct {
	Point     GeoPoint `json:"point"`
	Elevation float64  `json:"elevation"`
}

// Profile is an ordered elevation transect. Samples[0] is the observer,
// the last sample is the target.
type Profile struct {
	Samples []ElevationSample `json:"samples"`
	// IsSurfaceModel is true when the elevations include vegetation and
	// buildings (DSM) and false for bare-terrain data (DTM).
	IsSurfaceModel bool   `json:"isSurfaceModel"`
	Source         string `json:"source"`
}

func (p *Profile) Len() int {
	return len(p.Samples)
}

func (p *Profile) First() ElevationSample {
	return p.Samples[0]
}

func (p *Profile) Last() ElevationSample {
	return p.Samples[len(p.Samples)-1]
}

// Interpolate returns n points spaced uniformly between from and to,
// inclusive, by linear interpolation of latitude and longitude. The
// endpoints are returned exactly.
func Interpolate(from, to GeoPoint, n int) ([]GeoPoint, error) {
	if n < 2 {
		return nil, ErrInvalidProfile
	}

	points := make([]GeoPoint, n)
	last := n - 1
	for i := 0; i < n; i++ {
		t := float64(i) / float64(last)
		points[i] = GeoPoint{
			Latitude:  from.Latitude + (to.Latitude-from.Latitude)*t,
			Longitude: from.Longitude + (to.Longitude-from.Longitude)*t,
		}
	}
	points[0] = from
	points[last] = to
	return points, nil
}
