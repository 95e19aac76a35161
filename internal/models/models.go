package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/ride-dispatch/internal/catalog"
)

// Location is an immutable point with a free-text label.
type Location struct {
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Address string  `json:"address,omitempty"`
}

// SameCoords reports whether two locations share coordinates, labels aside.
func (l Location) SameCoords(o Location) bool {
	return l.Lat == o.Lat && l.Lon == o.Lon
}

type DriverStatus string

const (
	DriverAvailable DriverStatus = "available"
	DriverOnTrip    DriverStatus = "on_trip"
	DriverOffline   DriverStatus = "offline"
)

type Vehicle struct {
	ID       string               `json:"id"`
	Model    string               `json:"model"`
	Plate    string               `json:"plate"`
	Class    catalog.VehicleClass `json:"class"`
	Capacity int                  `json:"capacity"`
}

// Driver is owned by the coordinator registry; location, status and rating
// change only through coordinator calls.
type Driver struct {
	ID      string       `json:"id"`
	Name    string       `json:"name"`
	Phone   string       `json:"phone"`
	Vehicle Vehicle      `json:"vehicle"`
	Loc     Location     `json:"loc"`
	Status  DriverStatus `json:"status"`
	Rating  float64      `json:"rating"` // 0..5
}

type Rider struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Phone         string   `json:"phone"`
	DefaultPickup Location `json:"default_pickup"`
	Rating        float64  `json:"rating"`
}

// RideMode distinguishes exclusive trips from capacity-shared carpools.
type RideMode string

const (
	ModeSolo   RideMode = "solo"
	ModeShared RideMode = "shared"
)

// RideStatus values are ordered: a status update may only move forward
// through the lifecycle, with Cancelled reachable from any non-terminal state.
type RideStatus int

const (
	StatusRequested RideStatus = iota
	StatusDriverAssigned
	StatusDriverEnroute
	StatusInProgress
	StatusCompleted
	StatusCancelled
)

var statusNames = map[RideStatus]string{
	StatusRequested:      "requested",
	StatusDriverAssigned: "driver_assigned",
	StatusDriverEnroute:  "driver_enroute",
	StatusInProgress:     "in_progress",
	StatusCompleted:      "completed",
	StatusCancelled:      "cancelled",
}

func (s RideStatus) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return "unknown"
}

func (s RideStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Statuses travel by name on the wire.
func (s RideStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *RideStatus) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	parsed, ok := ParseRideStatus(name)
	if !ok {
		return fmt.Errorf("unknown ride status %q", name)
	}
	*s = parsed
	return nil
}

// ParseRideStatus maps a wire name back to its status.
func ParseRideStatus(name string) (RideStatus, bool) {
	for s, n := range statusNames {
		if n == name {
			return s, true
		}
	}
	return 0, false
}

// Ride is created at request intake and owned by the coordinator. Driver
// assignment and status are the only post-construction mutations until
// settlement sets distance and fare exactly once.
type Ride struct {
	ID          string               `json:"id"`
	RiderID     string               `json:"rider_id"`
	DriverID    string               `json:"driver_id,omitempty"` // empty until assigned
	Pickup      Location             `json:"pickup"`
	Dropoff     Location             `json:"dropoff"`
	Class       catalog.VehicleClass `json:"class"`
	Mode        RideMode             `json:"mode"`
	Status      RideStatus           `json:"status"`
	DistanceKm  float64              `json:"distance_km"`
	Fare        float64              `json:"fare"`
	RequestedAt time.Time            `json:"requested_at"`
	StartedAt   time.Time            `json:"started_at,omitempty"`
	EndedAt     time.Time            `json:"ended_at,omitempty"`
}
