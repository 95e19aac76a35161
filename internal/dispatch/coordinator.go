// Package dispatch holds the coordinator that owns the rider, driver and
// ride registries and drives every ride through its lifecycle: request
// intake, candidate filtering, assignment with fallback, status transitions
// and fare settlement.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/example/ride-dispatch/internal/carpool"
	"github.com/example/ride-dispatch/internal/catalog"
	"github.com/example/ride-dispatch/internal/events"
	"github.com/example/ride-dispatch/internal/faults"
	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/match"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/observability"
	"github.com/example/ride-dispatch/internal/pricing"
	"github.com/example/ride-dispatch/internal/storage"
)

const (
	assignAttempts = 3
	baseAcceptProb = 0.85
	acceptProbStep = 0.10

	paymentTimeout = 3 * time.Second
)

// RandSource feeds the driver-acceptance simulation. Injecting it keeps
// assignment outcomes deterministic in tests; *rand.Rand satisfies it.
type RandSource interface {
	Float64() float64
}

// PaymentProcessor is the external payment collaborator invoked best-effort
// at settlement. Failures are logged, never surfaced to the rider.
type PaymentProcessor interface {
	Charge(ctx context.Context, rideID string, amount float64) error
}

// SystemStatus is a read-only summary of the registries.
type SystemStatus struct {
	AvailableDrivers    int `json:"available_drivers"`
	OnTripDrivers       int `json:"on_trip_drivers"`
	OfflineDrivers      int `json:"offline_drivers"`
	TotalRides          int `json:"total_rides"`
	ActiveCarpoolGroups int `json:"active_carpool_groups"`
}

// Config carries the coordinator's collaborators; zero fields get defaults.
type Config struct {
	Policy   match.Policy
	Fare     pricing.Stage
	Bus      *events.Bus
	Store    storage.RideStore
	Payments PaymentProcessor
	Rand     RandSource
	Logger   *slog.Logger
}

// Coordinator serializes all mutating operations behind one mutex, so
// concurrent requests can never push a driver past capacity and status
// updates on one ride are strictly ordered.
type Coordinator struct {
	mu      sync.Mutex
	riders  map[string]*models.Rider
	drivers map[string]*models.Driver
	rides   map[string]*models.Ride

	carpool  *carpool.Tracker
	policy   match.Policy
	fare     pricing.Stage
	bus      *events.Bus
	store    storage.RideStore
	payments PaymentProcessor
	rand     RandSource
	logger   *slog.Logger

	rideCounter int
}

func New(cfg Config) *Coordinator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Policy == nil {
		cfg.Policy = match.NearestFirst{}
	}
	if cfg.Fare == nil {
		cfg.Fare = pricing.Base{}
	}
	if cfg.Bus == nil {
		cfg.Bus = events.NewBus(cfg.Logger)
	}
	if cfg.Store == nil {
		cfg.Store = storage.NewMemoryStore()
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Coordinator{
		riders:   make(map[string]*models.Rider),
		drivers:  make(map[string]*models.Driver),
		rides:    make(map[string]*models.Ride),
		carpool:  carpool.NewTracker(),
		policy:   cfg.Policy,
		fare:     cfg.Fare,
		bus:      cfg.Bus,
		store:    cfg.Store,
		payments: cfg.Payments,
		rand:     cfg.Rand,
		logger:   cfg.Logger,
	}
}

// Bus exposes the event registry so callers can attach listeners.
func (c *Coordinator) Bus() *events.Bus { return c.bus }

func (c *Coordinator) RegisterRider(r *models.Rider) error {
	if r == nil || r.ID == "" {
		return fmt.Errorf("%w: rider without identity", faults.ErrInvalidInput)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.riders[r.ID]; ok {
		return fmt.Errorf("%w: rider %s already registered", faults.ErrInvalidInput, r.ID)
	}
	cp := *r
	c.riders[r.ID] = &cp
	c.bus.Publish(events.UserRegistered, fmt.Sprintf("Rider %s registered", r.ID))
	return nil
}

func (c *Coordinator) RegisterDriver(d *models.Driver) error {
	if d == nil || d.ID == "" {
		return fmt.Errorf("%w: driver without identity", faults.ErrInvalidInput)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.drivers[d.ID]; ok {
		return fmt.Errorf("%w: driver %s already registered", faults.ErrInvalidInput, d.ID)
	}
	cp := *d
	if cp.Status == "" {
		cp.Status = models.DriverAvailable
	}
	c.drivers[d.ID] = &cp
	c.refreshDriverGauges()
	c.bus.Publish(events.UserRegistered, fmt.Sprintf("Driver %s registered", d.ID))
	return nil
}

// RequestRide admits the request, filters candidates and runs assignment with
// fallback. A ride left without a driver is a successful outcome, observable
// through the NoDriverAvailable or NoDriverAssigned event.
func (c *Coordinator) RequestRide(riderID string, pickup, dropoff models.Location, mode models.RideMode, class catalog.VehicleClass) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.riders[riderID]; !ok {
		return "", fmt.Errorf("%w: rider %s", faults.ErrNotFound, riderID)
	}
	if pickup.SameCoords(dropoff) {
		return "", fmt.Errorf("%w: pickup and dropoff are the same point", faults.ErrInvalidInput)
	}
	if mode != models.ModeSolo && mode != models.ModeShared {
		return "", fmt.Errorf("%w: unknown ride mode %q", faults.ErrInvalidInput, mode)
	}

	c.rideCounter++
	ride := &models.Ride{
		ID:          fmt.Sprintf("RIDE_%d", c.rideCounter),
		RiderID:     riderID,
		Pickup:      pickup,
		Dropoff:     dropoff,
		Class:       class,
		Mode:        mode,
		Status:      models.StatusRequested,
		RequestedAt: time.Now(),
	}
	c.rides[ride.ID] = ride
	c.persist(ride, true)
	observability.RidesRequested.Inc()
	c.bus.Publish(events.RideRequested, fmt.Sprintf("Ride %s requested by rider %s", ride.ID, riderID))

	candidates := c.candidatesFor(mode)
	if len(candidates) == 0 {
		observability.RidesUnserved.Inc()
		c.bus.Publish(events.NoDriverAvailable, fmt.Sprintf("No driver available for ride %s", ride.ID))
		return ride.ID, nil
	}
	c.assignWithFallback(ride, candidates)
	return ride.ID, nil
}

// candidatesFor snapshots eligible drivers sorted by id, so policy tie-breaks
// never see map iteration order.
func (c *Coordinator) candidatesFor(mode models.RideMode) []models.Driver {
	out := make([]models.Driver, 0, len(c.drivers))
	for _, d := range c.drivers {
		switch mode {
		case models.ModeShared:
			if c.carpool.CanAccept(*d) {
				out = append(out, *d)
			}
		default:
			if d.Status == models.DriverAvailable {
				out = append(out, *d)
			}
		}
	}
	sortDriversByID(out)
	return out
}

func sortDriversByID(ds []models.Driver) {
	sort.Slice(ds, func(i, j int) bool { return ds[i].ID < ds[j].ID })
}

// assignWithFallback makes up to assignAttempts offers, each accepted with a
// probability that shrinks per attempt, modelling driver refusal. Rejected
// drivers leave the candidate pool for this request.
func (c *Coordinator) assignWithFallback(ride *models.Ride, candidates []models.Driver) {
	for attempt := 0; attempt < assignAttempts && len(candidates) > 0; attempt++ {
		best, ok := c.policy.SelectDriver(candidates, ride.Pickup, ride.Class)
		if !ok {
			break
		}
		prob := baseAcceptProb - acceptProbStep*float64(attempt)
		if c.rand.Float64() < prob {
			c.assignDriver(ride, best.ID)
			return
		}
		observability.DriverRejections.Inc()
		c.bus.Publish(events.DriverRejected, fmt.Sprintf("Driver %s rejected ride %s", best.ID, ride.ID))
		candidates = removeDriver(candidates, best.ID)
	}
	observability.RidesUnserved.Inc()
	c.bus.Publish(events.NoDriverAssigned, fmt.Sprintf("No driver accepted ride %s", ride.ID))
}

func removeDriver(ds []models.Driver, id string) []models.Driver {
	for i, d := range ds {
		if d.ID == id {
			return append(ds[:i], ds[i+1:]...)
		}
	}
	return ds
}

func (c *Coordinator) assignDriver(ride *models.Ride, driverID string) {
	d := c.drivers[driverID]
	if ride.Mode == models.ModeShared {
		c.carpool.Join(d.ID, ride.ID)
		if d.Status == models.DriverAvailable {
			d.Status = models.DriverOnTrip
		}
	} else {
		d.Status = models.DriverOnTrip
	}
	ride.DriverID = d.ID
	ride.Status = models.StatusDriverAssigned
	c.persist(ride, false)
	c.refreshDriverGauges()
	observability.DriversAssigned.Inc()
	c.bus.Publish(events.DriverAssigned, fmt.Sprintf("Driver %s assigned to ride %s", d.Name, ride.ID))
}

var statusMessages = map[models.RideStatus]string{
	models.StatusRequested:      "Ride has been requested",
	models.StatusDriverAssigned: "Driver has been assigned to the ride",
	models.StatusDriverEnroute:  "Driver is on the way to pickup location",
	models.StatusInProgress:     "Ride has started",
	models.StatusCompleted:      "Ride completed successfully",
	models.StatusCancelled:      "Ride has been cancelled",
}

// UpdateRideStatus applies a lifecycle transition. The lifecycle only moves
// forward (skipping states is allowed); Cancelled is reachable from any
// non-terminal state; terminal states accept nothing.
func (c *Coordinator) UpdateRideStatus(rideID string, newStatus models.RideStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ride, ok := c.rides[rideID]
	if !ok {
		return fmt.Errorf("%w: ride %s", faults.ErrNotFound, rideID)
	}
	if ride.Status.Terminal() {
		return fmt.Errorf("%w: ride %s already %s", faults.ErrInvalidInput, rideID, ride.Status)
	}
	if newStatus != models.StatusCancelled && newStatus <= ride.Status {
		return fmt.Errorf("%w: cannot move ride %s from %s to %s", faults.ErrInvalidInput, rideID, ride.Status, newStatus)
	}

	ride.Status = newStatus
	switch newStatus {
	case models.StatusInProgress:
		ride.StartedAt = time.Now()
	case models.StatusCompleted:
		ride.EndedAt = time.Now()
		c.settle(ride)
	case models.StatusCancelled:
		c.releaseDriver(ride)
		observability.RidesCancelled.Inc()
	}
	c.persist(ride, false)
	c.bus.Publish(events.RideStatusUpdate, statusMessages[newStatus])
	return nil
}

// settle runs exactly once per ride, on the transition to Completed: compute
// the flat-plane distance, run the active fare pipeline, take the carpool
// reduction for shared rides, release the driver and notify payments.
func (c *Coordinator) settle(ride *models.Ride) {
	dist := geo.PlaneDistanceKm(ride.Pickup, ride.Dropoff)
	fare, err := c.fare.Fare(dist, ride.Class)
	if err != nil {
		// stage parameters are validated at construction, so this only
		// trips on a broken custom stage
		c.logger.Error("fare pipeline failed", "ride", ride.ID, "error", err)
		fare = 0
	}
	if ride.Mode == models.ModeShared {
		fare *= 1 - pricing.CarpoolReduction
	}
	ride.DistanceKm = dist
	ride.Fare = fare
	c.releaseDriver(ride)

	if c.payments != nil {
		ctx, cancel := context.WithTimeout(context.Background(), paymentTimeout)
		if err := c.payments.Charge(ctx, ride.ID, fare); err != nil {
			c.logger.Error("payment charge failed", "ride", ride.ID, "error", err)
		}
		cancel()
	}
	observability.RidesCompleted.Inc()
	observability.FareCharged.Observe(fare)
	c.bus.Publish(events.PaymentCompleted, fmt.Sprintf("Payment of Rs.%.2f completed for ride %s", fare, ride.ID))
}

// releaseDriver restores the assigned driver to a schedulable state: shared
// rides leave their carpool group (the driver frees up when the group
// empties), solo rides flip the driver straight back to available.
func (c *Coordinator) releaseDriver(ride *models.Ride) {
	if ride.DriverID == "" {
		return
	}
	d, ok := c.drivers[ride.DriverID]
	if !ok {
		return
	}
	if ride.Mode == models.ModeShared {
		if c.carpool.Leave(d.ID, ride.ID) {
			d.Status = models.DriverAvailable
		}
	} else {
		d.Status = models.DriverAvailable
	}
	c.refreshDriverGauges()
}

// UpdateDriverLocation is the only way a driver's position changes; external
// callers never touch registry entries directly.
func (c *Coordinator) UpdateDriverLocation(driverID string, loc models.Location) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.drivers[driverID]
	if !ok {
		return fmt.Errorf("%w: driver %s", faults.ErrNotFound, driverID)
	}
	d.Loc = loc
	return nil
}

// SetDriverAvailability toggles a driver between available and offline.
// Drivers on a trip keep their status until their rides finish.
func (c *Coordinator) SetDriverAvailability(driverID string, status models.DriverStatus) error {
	if status != models.DriverAvailable && status != models.DriverOffline {
		return fmt.Errorf("%w: availability must be %s or %s", faults.ErrInvalidInput, models.DriverAvailable, models.DriverOffline)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.drivers[driverID]
	if !ok {
		return fmt.Errorf("%w: driver %s", faults.ErrNotFound, driverID)
	}
	if d.Status == models.DriverOnTrip {
		return fmt.Errorf("%w: driver %s is on a trip", faults.ErrInvalidInput, driverID)
	}
	d.Status = status
	c.refreshDriverGauges()
	return nil
}

func (c *Coordinator) RateDriver(driverID string, rating float64) error {
	if rating < 0 || rating > 5 {
		return fmt.Errorf("%w: rating %f outside [0, 5]", faults.ErrInvalidInput, rating)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.drivers[driverID]
	if !ok {
		return fmt.Errorf("%w: driver %s", faults.ErrNotFound, driverID)
	}
	d.Rating = rating
	return nil
}

func (c *Coordinator) RateRider(riderID string, rating float64) error {
	if rating < 0 || rating > 5 {
		return fmt.Errorf("%w: rating %f outside [0, 5]", faults.ErrInvalidInput, rating)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.riders[riderID]
	if !ok {
		return fmt.Errorf("%w: rider %s", faults.ErrNotFound, riderID)
	}
	r.Rating = rating
	return nil
}

// GetRide returns a copy of the ride, if known.
func (c *Coordinator) GetRide(rideID string) (models.Ride, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.rides[rideID]
	if !ok {
		return models.Ride{}, false
	}
	return *r, true
}

// GetDriver returns a copy of the driver, if known.
func (c *Coordinator) GetDriver(driverID string) (models.Driver, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.drivers[driverID]
	if !ok {
		return models.Driver{}, false
	}
	return *d, true
}

// AvailableDrivers lists drivers currently available, sorted by id.
func (c *Coordinator) AvailableDrivers() []models.Driver {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Driver, 0, len(c.drivers))
	for _, d := range c.drivers {
		if d.Status == models.DriverAvailable {
			out = append(out, *d)
		}
	}
	sortDriversByID(out)
	return out
}

func (c *Coordinator) SystemStatus() SystemStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := SystemStatus{
		TotalRides:          len(c.rides),
		ActiveCarpoolGroups: c.carpool.ActiveGroups(),
	}
	for _, d := range c.drivers {
		switch d.Status {
		case models.DriverAvailable:
			st.AvailableDrivers++
		case models.DriverOnTrip:
			st.OnTripDrivers++
		case models.DriverOffline:
			st.OfflineDrivers++
		}
	}
	return st
}

// SetMatchingPolicy hot-swaps the policy for subsequent requests.
func (c *Coordinator) SetMatchingPolicy(p match.Policy) {
	if p == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.policy = p
}

// SetFarePipeline hot-swaps the pipeline for subsequent settlements.
func (c *Coordinator) SetFarePipeline(s pricing.Stage) {
	if s == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fare = s
}

func (c *Coordinator) persist(ride *models.Ride, create bool) {
	var err error
	if create {
		err = c.store.SaveRide(ride)
	} else {
		err = c.store.UpdateRide(ride)
	}
	if err != nil {
		c.logger.Warn("ride persist failed", "ride", ride.ID, "error", err)
	}
}

func (c *Coordinator) refreshDriverGauges() {
	var available float64
	for _, d := range c.drivers {
		if d.Status == models.DriverAvailable {
			available++
		}
	}
	observability.DriversAvailable.Set(available)
	observability.CarpoolGroups.Set(float64(c.carpool.ActiveGroups()))
}
