package match

import (
	"github.com/example/ride-dispatch/internal/catalog"
	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/models"
)

// Policy selects one driver from a candidate set. Implementations must not
// mutate candidates and return false when no candidate serves the requested
// class. Policies are swappable at runtime without affecting in-flight rides.
type Policy interface {
	SelectDriver(candidates []models.Driver, pickup models.Location, class catalog.VehicleClass) (models.Driver, bool)
}

// NearestFirst picks the class-matching candidate closest to pickup on the
// flat plane. Ties break on the lexicographically lowest driver id so results
// never depend on registry iteration order.
type NearestFirst struct{}

func (NearestFirst) SelectDriver(candidates []models.Driver, pickup models.Location, class catalog.VehicleClass) (models.Driver, bool) {
	var best models.Driver
	bestDist := 0.0
	found := false
	for _, d := range candidates {
		if d.Vehicle.Class != class {
			continue
		}
		dist := geo.PlaneDistanceKm(d.Loc, pickup)
		if !found || dist < bestDist || (dist == bestDist && d.ID < best.ID) {
			best, bestDist, found = d, dist, true
		}
	}
	return best, found
}

// HighestRated picks the class-matching candidate with the top rating, with
// the same lowest-id tie-break.
type HighestRated struct{}

func (HighestRated) SelectDriver(candidates []models.Driver, _ models.Location, class catalog.VehicleClass) (models.Driver, bool) {
	var best models.Driver
	found := false
	for _, d := range candidates {
		if d.Vehicle.Class != class {
			continue
		}
		if !found || d.Rating > best.Rating || (d.Rating == best.Rating && d.ID < best.ID) {
			best, found = d, true
		}
	}
	return best, found
}
