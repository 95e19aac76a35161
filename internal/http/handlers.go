// Package httpapi translates JSON over HTTP into dispatch coordinator calls.
// Encoding failures surface as client errors and never touch coordinator
// state.
package httpapi

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ride-dispatch/internal/catalog"
	"github.com/example/ride-dispatch/internal/dispatch"
	"github.com/example/ride-dispatch/internal/faults"
	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/ingest"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/notify"
)

type Server struct {
	Coordinator *dispatch.Coordinator
	Mirror      *geo.RedisMirror         // optional, backs the nearby API
	Locations   *ingest.LocationProducer // optional
	WS          *notify.WSNotifier

	mux    *mux.Router
	logger *slog.Logger
}

func NewServer(c *dispatch.Coordinator, ws *notify.WSNotifier, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{Coordinator: c, WS: ws, mux: mux.NewRouter(), logger: logger}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/v1/riders", s.handleRegisterRider).Methods("POST")
	s.mux.HandleFunc("/api/v1/drivers", s.handleRegisterDriver).Methods("POST")
	s.mux.HandleFunc("/api/v1/drivers/available", s.handleAvailableDrivers).Methods("GET")
	s.mux.HandleFunc("/api/v1/drivers/nearby", s.handleNearbyDrivers).Methods("GET")
	s.mux.HandleFunc("/api/v1/drivers/{driver_id}/availability", s.handleDriverAvailability).Methods("PUT")
	s.mux.HandleFunc("/api/v1/drivers/{driver_id}/rating", s.handleDriverRating).Methods("PUT")
	s.mux.HandleFunc("/api/v1/rides/request", s.handleRideRequest).Methods("POST")
	s.mux.HandleFunc("/api/v1/rides/{ride_id}", s.handleGetRide).Methods("GET")
	s.mux.HandleFunc("/api/v1/rides/{ride_id}/status", s.handleRideStatus).Methods("PUT")
	s.mux.HandleFunc("/api/v1/status", s.handleSystemStatus).Methods("GET")
	s.mux.HandleFunc("/internal/driver/locations", s.handleDriverLocation).Methods("POST")
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws/{user_id}", s.handleWS)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) handleRegisterRider(w http.ResponseWriter, r *http.Request) {
	var rider models.Rider
	if err := json.NewDecoder(r.Body).Decode(&rider); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.Coordinator.RegisterRider(&rider); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"rider_id": rider.ID})
}

func (s *Server) handleRegisterDriver(w http.ResponseWriter, r *http.Request) {
	var driver models.Driver
	if err := json.NewDecoder(r.Body).Decode(&driver); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.Coordinator.RegisterDriver(&driver); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"driver_id": driver.ID})
}

type rideRequest struct {
	RiderID string               `json:"rider_id"`
	Pickup  models.Location      `json:"pickup"`
	Dropoff models.Location      `json:"dropoff"`
	Mode    models.RideMode      `json:"mode"`
	Class   catalog.VehicleClass `json:"class"`
}

func (s *Server) handleRideRequest(w http.ResponseWriter, r *http.Request) {
	var req rideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Mode == "" {
		req.Mode = models.ModeSolo
	}
	rideID, err := s.Coordinator.RequestRide(req.RiderID, req.Pickup, req.Dropoff, req.Mode, req.Class)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	ride, _ := s.Coordinator.GetRide(rideID)
	writeJSON(w, http.StatusCreated, map[string]any{"ride_id": rideID, "ride": ride})
}

func (s *Server) handleGetRide(w http.ResponseWriter, r *http.Request) {
	ride, ok := s.Coordinator.GetRide(mux.Vars(r)["ride_id"])
	if !ok {
		http.Error(w, "ride not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, ride)
}

func (s *Server) handleRideStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status models.RideStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.Coordinator.UpdateRideStatus(mux.Vars(r)["ride_id"], req.Status); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAvailableDrivers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Coordinator.AvailableDrivers())
}

func (s *Server) handleNearbyDrivers(w http.ResponseWriter, r *http.Request) {
	if s.Mirror == nil {
		http.Error(w, "driver location mirror not configured", http.StatusServiceUnavailable)
		return
	}
	q := r.URL.Query()
	lat, err1 := strconv.ParseFloat(q.Get("lat"), 64)
	lon, err2 := strconv.ParseFloat(q.Get("lon"), 64)
	if err1 != nil || err2 != nil {
		http.Error(w, "lat and lon are required", http.StatusBadRequest)
		return
	}
	radius := 5.0
	if v := q.Get("radius_km"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			radius = f
		}
	}
	limit := 8
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	writeJSON(w, http.StatusOK, s.Mirror.Nearby(r.Context(), lat, lon, radius, limit))
}

func (s *Server) handleDriverAvailability(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status models.DriverStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.Coordinator.SetDriverAvailability(mux.Vars(r)["driver_id"], req.Status); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDriverRating(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Rating float64 `json:"rating"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.Coordinator.RateDriver(mux.Vars(r)["driver_id"], req.Rating); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Coordinator.SystemStatus())
}

type driverLocation struct {
	DriverID string          `json:"driver_id"`
	Loc      models.Location `json:"loc"`
}

func (s *Server) handleDriverLocation(w http.ResponseWriter, r *http.Request) {
	var upd driverLocation
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.Coordinator.UpdateDriverLocation(upd.DriverID, upd.Loc); err != nil {
		writeDomainError(w, err)
		return
	}
	if s.Locations != nil {
		if d, ok := s.Coordinator.GetDriver(upd.DriverID); ok {
			if err := s.Locations.PublishLocation(d); err != nil {
				s.logger.Warn("location publish failed", "driver", upd.DriverID, "error", err)
			}
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

var upgrader = websocket.Upgrader{}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["user_id"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "upgrade failed", http.StatusBadRequest)
		return
	}
	s.WS.Add(id, conn)
}

func writeDomainError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, faults.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, faults.ErrInvalidInput), errors.Is(err, faults.ErrInvalidConfig):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newID() string { b := make([]byte, 8); _, _ = rand.Read(b); return hex.EncodeToString(b) }
