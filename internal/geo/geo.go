package geo

import (
	"math"

	"github.com/example/ride-dispatch/internal/models"
)

// KmPerDegree scales flat-plane degree distances to kilometres. The engine
// deliberately uses a plane approximation (1° ≈ 111 km), not road routing,
// so fares stay reproducible.
const KmPerDegree = 111.0

// PlaneDistanceKm is the straight-line distance between two points on a flat
// lat/lon plane, in kilometres.
func PlaneDistanceKm(a, b models.Location) float64 {
	dLat := a.Lat - b.Lat
	dLon := a.Lon - b.Lon
	return math.Sqrt(dLat*dLat+dLon*dLon) * KmPerDegree
}
