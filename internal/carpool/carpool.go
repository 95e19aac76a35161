// Package carpool tracks shared-ride occupancy per driver. A driver's group
// never grows past the vehicle's seat capacity; the coordinator checks
// CanAccept before every shared assignment.
package carpool

import (
	"sync"

	"github.com/example/ride-dispatch/internal/models"
)

type Tracker struct {
	mu     sync.RWMutex
	groups map[string][]string // driver id -> ordered active shared ride ids
}

func NewTracker() *Tracker {
	return &Tracker{groups: make(map[string][]string)}
}

// CanAccept reports whether the driver can take one more shared passenger:
// schedulable status and occupancy strictly below seat capacity.
func (t *Tracker) CanAccept(d models.Driver) bool {
	if d.Status != models.DriverAvailable && d.Status != models.DriverOnTrip {
		return false
	}
	return t.Occupancy(d.ID) < d.Vehicle.Capacity
}

// Join appends the ride to the driver's group, creating the group on first
// use. Driver status flips are the coordinator's job.
func (t *Tracker) Join(driverID, rideID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.groups[driverID] = append(t.groups[driverID], rideID)
}

// Leave removes the ride from the driver's group and reports whether the
// group emptied, which is the coordinator's cue to flip the driver back to
// available.
func (t *Tracker) Leave(driverID, rideID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	group, ok := t.groups[driverID]
	if !ok {
		return false
	}
	for i, id := range group {
		if id == rideID {
			group = append(group[:i], group[i+1:]...)
			break
		}
	}
	if len(group) == 0 {
		delete(t.groups, driverID)
		return true
	}
	t.groups[driverID] = group
	return false
}

func (t *Tracker) Occupancy(driverID string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.groups[driverID])
}

// ActiveGroups counts drivers currently carrying at least one shared ride.
func (t *Tracker) ActiveGroups() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.groups)
}
