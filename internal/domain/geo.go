package domain

import (
	"fmt"
	"math"
)

// GeoPoint is a WGS84 position in degrees
type GeoPoint struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

// Valid reports whether the point is finite and within WGS84 bounds
func (p GeoPoint) Valid() bool {
	if math.IsNaN(p.Latitude) || math.IsNaN(p.Longitude) ||
		math.IsInf(p.Latitude, 0) || math.IsInf(p.Longitude, 0) {
		return false
	}
	return p.Latitude >= -90 && p.Latitude <= 90 &&
		p.Longitude >= -180 && p.Longitude <= 180
}

func (p GeoPoint) String() string {
	return fmt.Sprintf("%.6f,%.6f", p.Latitude, p.Longitude)
}

// ProjectedPoint is a planar position in metres in the tile grid's
// coordinate system. Never persisted.
type ProjectedPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}
