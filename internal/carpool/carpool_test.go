package carpool

import (
	"testing"

	"github.com/example/ride-dispatch/internal/catalog"
	"github.com/example/ride-dispatch/internal/models"
)

func suvDriver(status models.DriverStatus, capacity int) models.Driver {
	return models.Driver{
		ID:      "D1",
		Vehicle: models.Vehicle{Class: catalog.SUV, Capacity: capacity},
		Status:  status,
	}
}

func TestCanAcceptRespectsCapacity(t *testing.T) {
	tr := NewTracker()
	d := suvDriver(models.DriverAvailable, 2)
	if !tr.CanAccept(d) {
		t.Fatal("empty group should accept")
	}
	tr.Join(d.ID, "RIDE_1")
	d.Status = models.DriverOnTrip
	if !tr.CanAccept(d) {
		t.Fatal("one seat left, should accept")
	}
	tr.Join(d.ID, "RIDE_2")
	if tr.CanAccept(d) {
		t.Fatal("at capacity, must refuse")
	}
}

func TestCanAcceptRefusesOffline(t *testing.T) {
	tr := NewTracker()
	if tr.CanAccept(suvDriver(models.DriverOffline, 7)) {
		t.Fatal("offline driver must refuse")
	}
}

func TestLeaveSignalsEmptyGroup(t *testing.T) {
	tr := NewTracker()
	tr.Join("D1", "RIDE_1")
	tr.Join("D1", "RIDE_2")
	if tr.Occupancy("D1") != 2 {
		t.Fatalf("occupancy=%d want 2", tr.Occupancy("D1"))
	}
	if tr.Leave("D1", "RIDE_1") {
		t.Fatal("group still holds RIDE_2, should not report empty")
	}
	if !tr.Leave("D1", "RIDE_2") {
		t.Fatal("last leave should report empty")
	}
	if tr.ActiveGroups() != 0 {
		t.Fatalf("groups=%d want 0", tr.ActiveGroups())
	}
}

func TestLeaveUnknownDriverIsNoop(t *testing.T) {
	tr := NewTracker()
	if tr.Leave("D9", "RIDE_1") {
		t.Fatal("unknown driver should not report empty")
	}
}

func TestActiveGroupsCountsDrivers(t *testing.T) {
	tr := NewTracker()
	tr.Join("D1", "RIDE_1")
	tr.Join("D1", "RIDE_2")
	tr.Join("D2", "RIDE_3")
	if tr.ActiveGroups() != 2 {
		t.Fatalf("groups=%d want 2", tr.ActiveGroups())
	}
}
