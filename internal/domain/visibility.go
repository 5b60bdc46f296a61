package domain

// Status classifies how much of a structure is visible
type Status string

const (
	StatusVisible Status = "visible"
	StatusPartial Status = "partial"
	StatusBlocked Status = "blocked"
)

// ObstructionPoint is the interior sample rising furthest above the
// sight line
type ObstructionPoint struct {
	SampleIndex       int      `json:"sampleIndex"`
	Point             GeoPoint `json:"point"`
	DistanceMeters    float64  `json:"distanceMeters"`
	TerrainElevation  float64  `json:"terrainElevation"`
	ObstructionMeters float64  `json:"obstructionMeters"`
}

// VisibilityResult is the verdict for one observer/target pair. Derived
// per query, never persisted.
type VisibilityResult struct {
	Status               Status            `json:"status"`
	VisiblePercentage    float64           `json:"visiblePercentage"`
	VisibleHeightMeters  float64           `json:"visibleHeightMeters"`
	TotalHeightMeters    float64           `json:"totalHeightMeters"`
	Obstruction          *ObstructionPoint `json:"obstruction,omitempty"`
	Profile              *Profile          `json:"profile"`
	ObserverEyeElevation float64           `json:"observerEyeElevation"`
	TargetBaseElevation  float64           `json:"targetBaseElevation"`
	TargetTopElevation   float64           `json:"targetTopElevation"`
	DistanceMeters       float64           `json:"distanceMeters"`
	BearingDegrees       float64           `json:"bearingDegrees"`
	IsSurfaceModel       bool              `json:"isSurfaceModel"`
}
