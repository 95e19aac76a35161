package dispatch

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/example/ride-dispatch/internal/catalog"
	"github.com/example/ride-dispatch/internal/events"
	"github.com/example/ride-dispatch/internal/faults"
	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/match"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/pricing"
)

// seqRand replays a fixed sequence; values past the end force acceptance.
type seqRand struct {
	vals []float64
	i    int
}

func (s *seqRand) Float64() float64 {
	if s.i >= len(s.vals) {
		return 0
	}
	v := s.vals[s.i]
	s.i++
	return v
}

type eventRecorder struct {
	kinds []string
	msgs  []string
}

func (e *eventRecorder) OnEvent(kind, message string) {
	e.kinds = append(e.kinds, kind)
	e.msgs = append(e.msgs, message)
}

func (e *eventRecorder) count(kind string) int {
	n := 0
	for _, k := range e.kinds {
		if k == kind {
			n++
		}
	}
	return n
}

type fakeProcessor struct {
	rideID string
	amount float64
	calls  int
}

func (f *fakeProcessor) Charge(_ context.Context, rideID string, amount float64) error {
	f.rideID, f.amount = rideID, amount
	f.calls++
	return nil
}

func sedanDriver(id string, lat, lon float64) *models.Driver {
	return &models.Driver{
		ID:      id,
		Name:    "Driver " + id,
		Vehicle: models.Vehicle{ID: "V-" + id, Class: catalog.Sedan, Capacity: 4},
		Loc:     models.Location{Lat: lat, Lon: lon},
		Status:  models.DriverAvailable,
		Rating:  4.5,
	}
}

func suvCarpoolDriver(id string, capacity int) *models.Driver {
	d := sedanDriver(id, 0, 0)
	d.Vehicle.Class = catalog.SUV
	d.Vehicle.Capacity = capacity
	return d
}

func rider(id string) *models.Rider {
	return &models.Rider{ID: id, Name: "Rider " + id, Rating: 5}
}

func newTestCoordinator(t *testing.T, rnd RandSource) (*Coordinator, *eventRecorder) {
	t.Helper()
	c := New(Config{Rand: rnd})
	rec := &eventRecorder{}
	c.Bus().Subscribe(rec)
	return c, rec
}

func completeRide(t *testing.T, c *Coordinator, rideID string) {
	t.Helper()
	for _, st := range []models.RideStatus{models.StatusDriverEnroute, models.StatusInProgress, models.StatusCompleted} {
		if err := c.UpdateRideStatus(rideID, st); err != nil {
			t.Fatalf("transition to %s: %v", st, err)
		}
	}
}

func TestRegisterValidation(t *testing.T) {
	c, rec := newTestCoordinator(t, &seqRand{})
	if err := c.RegisterRider(nil); !errors.Is(err, faults.ErrInvalidInput) {
		t.Fatalf("nil rider: %v", err)
	}
	if err := c.RegisterDriver(&models.Driver{}); !errors.Is(err, faults.ErrInvalidInput) {
		t.Fatalf("empty driver id: %v", err)
	}
	if err := c.RegisterRider(rider("R1")); err != nil {
		t.Fatal(err)
	}
	if err := c.RegisterRider(rider("R1")); !errors.Is(err, faults.ErrInvalidInput) {
		t.Fatalf("duplicate rider: %v", err)
	}
	if err := c.RegisterDriver(sedanDriver("D1", 0, 0)); err != nil {
		t.Fatal(err)
	}
	if rec.count(events.UserRegistered) != 2 {
		t.Fatalf("UserRegistered events=%d want 2", rec.count(events.UserRegistered))
	}
}

func TestSoloSedanRideEndToEnd(t *testing.T) {
	c, rec := newTestCoordinator(t, &seqRand{}) // forced acceptance
	if err := c.RegisterRider(rider("R1")); err != nil {
		t.Fatal(err)
	}
	if err := c.RegisterDriver(sedanDriver("D1", 19.07, 72.87)); err != nil {
		t.Fatal(err)
	}

	pickup := models.Location{Lat: 19.076, Lon: 72.8777, Address: "Andheri West"}
	dropoff := models.Location{Lat: 19.0596, Lon: 72.8295, Address: "BKC"}
	id, err := c.RequestRide("R1", pickup, dropoff, models.ModeSolo, catalog.Sedan)
	if err != nil {
		t.Fatal(err)
	}

	r, ok := c.GetRide(id)
	if !ok || r.DriverID != "D1" || r.Status != models.StatusDriverAssigned {
		t.Fatalf("ride after request: %+v", r)
	}
	if r.Fare != 0 || r.DistanceKm != 0 {
		t.Fatalf("fare/distance set before completion: %+v", r)
	}
	if d, _ := c.GetDriver("D1"); d.Status != models.DriverOnTrip {
		t.Fatalf("driver status=%s want on_trip", d.Status)
	}

	completeRide(t, c, id)

	r, _ = c.GetRide(id)
	wantDist := geo.PlaneDistanceKm(pickup, dropoff)
	wantFare := catalog.BaseFare(catalog.Sedan) + wantDist*catalog.PerKmRate(catalog.Sedan)
	if math.Abs(r.DistanceKm-wantDist) > 1e-9 || math.Abs(r.Fare-wantFare) > 1e-9 {
		t.Fatalf("dist=%v fare=%v want %v %v", r.DistanceKm, r.Fare, wantDist, wantFare)
	}
	if r.StartedAt.IsZero() || r.EndedAt.IsZero() {
		t.Fatal("timestamps not stamped")
	}
	if d, _ := c.GetDriver("D1"); d.Status != models.DriverAvailable {
		t.Fatalf("driver not released: %s", d.Status)
	}
	if rec.count(events.PaymentCompleted) != 1 {
		t.Fatal("missing PaymentCompleted event")
	}
}

func TestRequestRideIdenticalEndpoints(t *testing.T) {
	c, _ := newTestCoordinator(t, &seqRand{})
	c.RegisterRider(rider("R1"))
	p := models.Location{Lat: 19.07, Lon: 72.87}
	if _, err := c.RequestRide("R1", p, p, models.ModeSolo, catalog.Sedan); !errors.Is(err, faults.ErrInvalidInput) {
		t.Fatalf("err=%v want ErrInvalidInput", err)
	}
	if st := c.SystemStatus(); st.TotalRides != 0 {
		t.Fatalf("ride created on invalid input: %+v", st)
	}
}

func TestRequestRideUnknownRider(t *testing.T) {
	c, _ := newTestCoordinator(t, &seqRand{})
	_, err := c.RequestRide("ghost", models.Location{Lat: 1}, models.Location{Lat: 2}, models.ModeSolo, catalog.Sedan)
	if !errors.Is(err, faults.ErrNotFound) {
		t.Fatalf("err=%v want ErrNotFound", err)
	}
	if st := c.SystemStatus(); st.TotalRides != 0 {
		t.Fatalf("ride created for unknown rider: %+v", st)
	}
}

func TestRequestRideAllDriversOffline(t *testing.T) {
	c, rec := newTestCoordinator(t, &seqRand{})
	c.RegisterRider(rider("R1"))
	d := sedanDriver("D1", 0, 0)
	d.Status = models.DriverOffline
	c.RegisterDriver(d)

	id, err := c.RequestRide("R1", models.Location{Lat: 1}, models.Location{Lat: 2}, models.ModeSolo, catalog.Sedan)
	if err != nil {
		t.Fatalf("unserved request must not error: %v", err)
	}
	r, ok := c.GetRide(id)
	if !ok || r.DriverID != "" || r.Status != models.StatusRequested {
		t.Fatalf("ride=%+v want driverless requested ride", r)
	}
	if rec.count(events.NoDriverAvailable) != 1 {
		t.Fatal("missing NoDriverAvailable event")
	}
}

func TestAssignmentFallbackSecondDriverAccepts(t *testing.T) {
	// first offer rejected (0.9 >= 0.85), second accepted (0.1 < 0.75)
	c, rec := newTestCoordinator(t, &seqRand{vals: []float64{0.9, 0.1}})
	c.RegisterRider(rider("R1"))
	c.RegisterDriver(sedanDriver("D1", 0.001, 0)) // nearest, will reject
	c.RegisterDriver(sedanDriver("D2", 0.5, 0))

	id, err := c.RequestRide("R1", models.Location{}, models.Location{Lat: 1}, models.ModeSolo, catalog.Sedan)
	if err != nil {
		t.Fatal(err)
	}
	r, _ := c.GetRide(id)
	if r.DriverID != "D2" {
		t.Fatalf("assigned %q want D2", r.DriverID)
	}
	if rec.count(events.DriverRejected) != 1 || rec.count(events.DriverAssigned) != 1 {
		t.Fatalf("events=%v", rec.kinds)
	}
	if d, _ := c.GetDriver("D1"); d.Status != models.DriverAvailable {
		t.Fatal("rejected driver must stay available")
	}
}

func TestAssignmentFallbackExhausted(t *testing.T) {
	c, rec := newTestCoordinator(t, &seqRand{vals: []float64{0.99, 0.99, 0.99}})
	c.RegisterRider(rider("R1"))
	c.RegisterDriver(sedanDriver("D1", 0.1, 0))
	c.RegisterDriver(sedanDriver("D2", 0.2, 0))

	id, err := c.RequestRide("R1", models.Location{}, models.Location{Lat: 1}, models.ModeSolo, catalog.Sedan)
	if err != nil {
		t.Fatal(err)
	}
	r, _ := c.GetRide(id)
	if r.DriverID != "" || r.Status != models.StatusRequested {
		t.Fatalf("ride=%+v want driverless after exhaustion", r)
	}
	if rec.count(events.DriverRejected) != 2 || rec.count(events.NoDriverAssigned) != 1 {
		t.Fatalf("events=%v", rec.kinds)
	}
}

func TestAssignmentNoClassMatch(t *testing.T) {
	c, rec := newTestCoordinator(t, &seqRand{})
	c.RegisterRider(rider("R1"))
	c.RegisterDriver(sedanDriver("D1", 0, 0))

	id, err := c.RequestRide("R1", models.Location{}, models.Location{Lat: 1}, models.ModeSolo, catalog.Bike)
	if err != nil {
		t.Fatal(err)
	}
	r, _ := c.GetRide(id)
	if r.DriverID != "" {
		t.Fatalf("assigned %q across classes", r.DriverID)
	}
	if rec.count(events.NoDriverAssigned) != 1 {
		t.Fatal("missing NoDriverAssigned event")
	}
}

func TestCarpoolSharedRidesOnOneSUV(t *testing.T) {
	c, _ := newTestCoordinator(t, &seqRand{})
	c.RegisterRider(rider("R1"))
	c.RegisterRider(rider("R2"))
	c.RegisterDriver(suvCarpoolDriver("D1", 7))

	id1, err := c.RequestRide("R1", models.Location{}, models.Location{Lat: 0.1}, models.ModeShared, catalog.SUV)
	if err != nil {
		t.Fatal(err)
	}
	id2, err := c.RequestRide("R2", models.Location{}, models.Location{Lat: 0.2}, models.ModeShared, catalog.SUV)
	if err != nil {
		t.Fatal(err)
	}
	r1, _ := c.GetRide(id1)
	r2, _ := c.GetRide(id2)
	if r1.DriverID != "D1" || r2.DriverID != "D1" {
		t.Fatalf("drivers %q %q want both D1", r1.DriverID, r2.DriverID)
	}
	if d, _ := c.GetDriver("D1"); d.Status != models.DriverOnTrip {
		t.Fatalf("driver status=%s want on_trip", d.Status)
	}
	if st := c.SystemStatus(); st.ActiveCarpoolGroups != 1 {
		t.Fatalf("groups=%d want 1", st.ActiveCarpoolGroups)
	}

	completeRide(t, c, id1)
	if d, _ := c.GetDriver("D1"); d.Status != models.DriverOnTrip {
		t.Fatal("driver released while a shared ride is active")
	}
	completeRide(t, c, id2)
	if d, _ := c.GetDriver("D1"); d.Status != models.DriverAvailable {
		t.Fatal("driver not released after last shared ride")
	}
	if st := c.SystemStatus(); st.ActiveCarpoolGroups != 0 {
		t.Fatalf("groups=%d want 0", st.ActiveCarpoolGroups)
	}
}

func TestCarpoolCapacityBound(t *testing.T) {
	c, rec := newTestCoordinator(t, &seqRand{})
	c.RegisterDriver(suvCarpoolDriver("D1", 2))
	for i, rid := range []string{"R1", "R2", "R3"} {
		c.RegisterRider(rider(rid))
		id, err := c.RequestRide(rid, models.Location{}, models.Location{Lat: 0.1}, models.ModeShared, catalog.SUV)
		if err != nil {
			t.Fatal(err)
		}
		r, _ := c.GetRide(id)
		if i < 2 && r.DriverID != "D1" {
			t.Fatalf("ride %d unassigned", i)
		}
		if i == 2 && r.DriverID != "" {
			t.Fatal("third shared ride exceeded capacity")
		}
	}
	if rec.count(events.NoDriverAvailable) != 1 {
		t.Fatalf("events=%v", rec.kinds)
	}
}

func TestCarpoolFareReduction(t *testing.T) {
	c, _ := newTestCoordinator(t, &seqRand{})
	c.RegisterRider(rider("R1"))
	c.RegisterDriver(suvCarpoolDriver("D1", 7))

	pickup := models.Location{}
	dropoff := models.Location{Lat: 10.0 / geo.KmPerDegree} // 10 km
	id, _ := c.RequestRide("R1", pickup, dropoff, models.ModeShared, catalog.SUV)
	completeRide(t, c, id)

	r, _ := c.GetRide(id)
	base := catalog.BaseFare(catalog.SUV) + 10*catalog.PerKmRate(catalog.SUV)
	want := base * (1 - pricing.CarpoolReduction)
	if math.Abs(r.Fare-want) > 1e-9 {
		t.Fatalf("fare=%v want %v", r.Fare, want)
	}
}

func TestCancelReleasesSoloDriver(t *testing.T) {
	c, _ := newTestCoordinator(t, &seqRand{})
	c.RegisterRider(rider("R1"))
	c.RegisterDriver(sedanDriver("D1", 0, 0))
	id, _ := c.RequestRide("R1", models.Location{}, models.Location{Lat: 1}, models.ModeSolo, catalog.Sedan)

	if err := c.UpdateRideStatus(id, models.StatusCancelled); err != nil {
		t.Fatal(err)
	}
	if d, _ := c.GetDriver("D1"); d.Status != models.DriverAvailable {
		t.Fatalf("driver status=%s want available", d.Status)
	}
	r, _ := c.GetRide(id)
	if r.Fare != 0 || r.DistanceKm != 0 {
		t.Fatal("cancelled ride must not settle")
	}
}

func TestCancelRemovesSharedRideFromGroup(t *testing.T) {
	c, _ := newTestCoordinator(t, &seqRand{})
	c.RegisterRider(rider("R1"))
	c.RegisterRider(rider("R2"))
	c.RegisterDriver(suvCarpoolDriver("D1", 7))
	id1, _ := c.RequestRide("R1", models.Location{}, models.Location{Lat: 0.1}, models.ModeShared, catalog.SUV)
	id2, _ := c.RequestRide("R2", models.Location{}, models.Location{Lat: 0.2}, models.ModeShared, catalog.SUV)

	if err := c.UpdateRideStatus(id1, models.StatusCancelled); err != nil {
		t.Fatal(err)
	}
	if d, _ := c.GetDriver("D1"); d.Status != models.DriverOnTrip {
		t.Fatal("driver freed while second shared ride is active")
	}
	if err := c.UpdateRideStatus(id2, models.StatusCancelled); err != nil {
		t.Fatal(err)
	}
	if d, _ := c.GetDriver("D1"); d.Status != models.DriverAvailable {
		t.Fatal("driver not freed after last cancellation")
	}
}

func TestStatusMachineRejectsBadTransitions(t *testing.T) {
	c, _ := newTestCoordinator(t, &seqRand{})
	c.RegisterRider(rider("R1"))
	c.RegisterDriver(sedanDriver("D1", 0, 0))
	id, _ := c.RequestRide("R1", models.Location{}, models.Location{Lat: 1}, models.ModeSolo, catalog.Sedan)

	if err := c.UpdateRideStatus("ghost", models.StatusInProgress); !errors.Is(err, faults.ErrNotFound) {
		t.Fatalf("unknown ride: %v", err)
	}
	if err := c.UpdateRideStatus(id, models.StatusRequested); !errors.Is(err, faults.ErrInvalidInput) {
		t.Fatalf("backward move: %v", err)
	}
	completeRide(t, c, id)
	if err := c.UpdateRideStatus(id, models.StatusCancelled); !errors.Is(err, faults.ErrInvalidInput) {
		t.Fatalf("transition out of terminal state: %v", err)
	}
}

func TestSurgePipelineSwap(t *testing.T) {
	c, _ := newTestCoordinator(t, &seqRand{})
	c.RegisterRider(rider("R1"))
	c.RegisterDriver(sedanDriver("D1", 0, 0))

	surge, err := pricing.NewSurge(pricing.Base{}, 2.0)
	if err != nil {
		t.Fatal(err)
	}
	c.SetFarePipeline(surge)

	dropoff := models.Location{Lat: 10.0 / geo.KmPerDegree} // 10 km
	id, _ := c.RequestRide("R1", models.Location{}, dropoff, models.ModeSolo, catalog.Sedan)
	completeRide(t, c, id)

	r, _ := c.GetRide(id)
	if math.Abs(r.Fare-280) > 1e-9 { // (40 + 10*10) * 2
		t.Fatalf("fare=%v want 280", r.Fare)
	}
}

func TestMatchingPolicySwap(t *testing.T) {
	c, _ := newTestCoordinator(t, &seqRand{})
	c.RegisterRider(rider("R1"))
	near := sedanDriver("D1", 0.001, 0)
	near.Rating = 3.0
	far := sedanDriver("D2", 5, 5)
	far.Rating = 5.0
	c.RegisterDriver(near)
	c.RegisterDriver(far)

	c.SetMatchingPolicy(match.HighestRated{})
	id, _ := c.RequestRide("R1", models.Location{}, models.Location{Lat: 1}, models.ModeSolo, catalog.Sedan)
	r, _ := c.GetRide(id)
	if r.DriverID != "D2" {
		t.Fatalf("assigned %q want best-rated D2", r.DriverID)
	}
}

func TestPaymentsProcessorInvokedAtSettlement(t *testing.T) {
	proc := &fakeProcessor{}
	c := New(Config{Rand: &seqRand{}, Payments: proc})
	c.RegisterRider(rider("R1"))
	c.RegisterDriver(sedanDriver("D1", 0, 0))
	id, _ := c.RequestRide("R1", models.Location{}, models.Location{Lat: 1}, models.ModeSolo, catalog.Sedan)
	completeRide(t, c, id)

	r, _ := c.GetRide(id)
	if proc.calls != 1 || proc.rideID != id || math.Abs(proc.amount-r.Fare) > 1e-9 {
		t.Fatalf("processor calls=%d ride=%q amount=%v", proc.calls, proc.rideID, proc.amount)
	}
}

func TestPanickingListenerDoesNotBreakDispatch(t *testing.T) {
	c, _ := newTestCoordinator(t, &seqRand{})
	c.Bus().Subscribe(events.ListenerFunc(func(kind, message string) { panic("listener down") }))
	c.RegisterRider(rider("R1"))
	c.RegisterDriver(sedanDriver("D1", 0, 0))
	id, err := c.RequestRide("R1", models.Location{}, models.Location{Lat: 1}, models.ModeSolo, catalog.Sedan)
	if err != nil {
		t.Fatal(err)
	}
	completeRide(t, c, id)
	if r, _ := c.GetRide(id); r.Status != models.StatusCompleted {
		t.Fatalf("status=%s want completed", r.Status)
	}
}

func TestDriverMediatedMutations(t *testing.T) {
	c, _ := newTestCoordinator(t, &seqRand{})
	c.RegisterDriver(sedanDriver("D1", 0, 0))

	if err := c.UpdateDriverLocation("D1", models.Location{Lat: 2, Lon: 3}); err != nil {
		t.Fatal(err)
	}
	if d, _ := c.GetDriver("D1"); d.Loc.Lat != 2 || d.Loc.Lon != 3 {
		t.Fatalf("loc=%+v", d.Loc)
	}
	if err := c.UpdateDriverLocation("ghost", models.Location{}); !errors.Is(err, faults.ErrNotFound) {
		t.Fatalf("unknown driver: %v", err)
	}
	if err := c.SetDriverAvailability("D1", models.DriverOffline); err != nil {
		t.Fatal(err)
	}
	if err := c.SetDriverAvailability("D1", models.DriverOnTrip); !errors.Is(err, faults.ErrInvalidInput) {
		t.Fatalf("on_trip via availability call: %v", err)
	}
	if err := c.RateDriver("D1", 5.5); !errors.Is(err, faults.ErrInvalidInput) {
		t.Fatalf("rating out of range: %v", err)
	}
	if err := c.RateDriver("D1", 4.9); err != nil {
		t.Fatal(err)
	}
	if d, _ := c.GetDriver("D1"); d.Rating != 4.9 {
		t.Fatalf("rating=%v", d.Rating)
	}
}

func TestSystemStatusCounts(t *testing.T) {
	c, _ := newTestCoordinator(t, &seqRand{})
	c.RegisterRider(rider("R1"))
	c.RegisterDriver(sedanDriver("D1", 0, 0))
	off := sedanDriver("D2", 1, 1)
	off.Status = models.DriverOffline
	c.RegisterDriver(off)
	c.RequestRide("R1", models.Location{}, models.Location{Lat: 1}, models.ModeSolo, catalog.Sedan)

	st := c.SystemStatus()
	if st.AvailableDrivers != 0 || st.OnTripDrivers != 1 || st.OfflineDrivers != 1 || st.TotalRides != 1 {
		t.Fatalf("status=%+v", st)
	}
	if len(c.AvailableDrivers()) != 0 {
		t.Fatal("on-trip driver listed as available")
	}
}
