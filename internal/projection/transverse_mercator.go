// Package projection converts WGS84 coordinates into the planar grid used by
// the elevation tiles.
//
// The transform is the truncated transverse Mercator series of a single
// fixed zone: the meridional arc to the n⁴ term, easting to A⁵ and northing
// to A⁶. Inside the zone (±3° from the central meridian) it agrees with the
// exact projection to well under a metre, which is below the 1 m tile grid.
// Error grows quickly outside the zone; points there are still projected,
// not rejected, and resolve to the wrong terrain.
package projection

import (
	"math"

	"windview/internal/domain"
)

// Zone holds the parameters of one projection zone
type Zone struct {
	SemiMajorAxis   float64 // metres
	Flattening      float64
	ScaleFactor     float64
	CentralMeridian float64 // degrees
	FalseEasting    float64 // metres
	FalseNorthing   float64 // metres
}

// UTM33N is ETRS89 / UTM zone 33N (EPSG:25833), the grid of the Brandenburg
// surface model tiles. GRS80 and WGS84 differ by less than a millimetre
// here.
var UTM33N = Zone{
	SemiMajorAxis:   6378137.0,
	Flattening:      1 / 298.257223563,
	ScaleFactor:     0.9996,
	CentralMeridian: 15,
	FalseEasting:    500000,
	FalseNorthing:   0,
}

type Transform struct {
	zone    Zone
	e2      float64 // first eccentricity squared
	ep2     float64 // second eccentricity squared
	lambda0 float64

	// meridional arc coefficients
	arc            float64
	m2, m4, m6, m8 float64
}

func New(zone Zone) *Transform {
	f := zone.Flattening
	e2 := 2*f - f*f
	n := f / (2 - f)
	n2, n3, n4 := n*n, n*n*n, n*n*n*n

	return &Transform{
		zone:    zone,
		e2:      e2,
		ep2:     e2 / (1 - e2),
		lambda0: zone.CentralMeridian * math.Pi / 180,
		arc:     zone.SemiMajorAxis / (1 + n) * (1 + n2/4 + n4/64),
		m2:      3*n/2 - 27*n3/32,
		m4:      21*n2/16 - 55*n4/32,
		m6:      151 * n3 / 96,
		m8:      1097 * n4 / 512,
	}
}

func (t *Transform) Zone() Zone {
	return t.zone
}

// meridionalArc is the distance along the central meridian from the
// equator to latitude phi.
func (t *Transform) meridionalArc(phi float64) float64 {
	return t.arc * (phi -
		t.m2*math.Sin(2*phi) +
		t.m4*math.Sin(4*phi) -
		t.m6*math.Sin(6*phi) +
		t.m8*math.Sin(8*phi))
}

// ToProjected is total for finite input.
func (t *Transform) ToProjected(p domain.GeoPoint) domain.ProjectedPoint {
	phi := p.Latitude * math.Pi / 180
	lambda := p.Longitude * math.Pi / 180

	sinPhi := math.Sin(phi)
	cosPhi := math.Cos(phi)
	tanPhi := math.Tan(phi)

	n := t.zone.SemiMajorAxis / math.Sqrt(1-t.e2*sinPhi*sinPhi)
	tt := tanPhi * tanPhi
	c := t.ep2 * cosPhi * cosPhi
	a := (lambda - t.lambda0) * cosPhi
	a2 := a * a
	a3 := a2 * a
	a4 := a3 * a

	k0 := t.zone.ScaleFactor
	x := k0 * n * (a +
		(1-tt+c)*a3/6 +
		(5-18*tt+tt*tt+72*c-58*t.ep2)*a4*a/120)
	y := k0 * (t.meridionalArc(phi) + n*tanPhi*(a2/2+
		(5-tt+9*c+4*c*c)*a4/24+
		(61-58*tt+tt*tt+600*c-330*t.ep2)*a4*a2/720))

	return domain.ProjectedPoint{
		X: t.zone.FalseEasting + x,
		Y: t.zone.FalseNorthing + y,
	}
}
