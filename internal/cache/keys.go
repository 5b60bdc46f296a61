package cache

import (
	"fmt"

	"windview/internal/domain"
)

// KeyProfilePattern matches every cached elevation profile
const KeyProfilePattern = "elevation:*"

// ProfileKey formats coordinates at fixed precision (about 0.1 m) so the
// same query always maps to the same key.
func ProfileKey(observer, target domain.GeoPoint, sampleCount int) string {
	return fmt.Sprintf("elevation:%.6f_%.6f_%.6f_%.6f_%d",
		observer.Latitude, observer.Longitude,
		target.Latitude, target.Longitude,
		sampleCount,
	)
}
