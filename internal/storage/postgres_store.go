package storage

import (
	"database/sql"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/ride-dispatch/internal/models"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) SaveRide(r *models.Ride) error {
	_, err := p.db.Exec(`INSERT INTO rides(id, rider_id, driver_id, pickup_lat, pickup_lon, dropoff_lat, dropoff_lon, class, mode, status, distance_km, fare, requested_at, updated_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		r.ID, r.RiderID, r.DriverID, r.Pickup.Lat, r.Pickup.Lon, r.Dropoff.Lat, r.Dropoff.Lon,
		r.Class.String(), string(r.Mode), r.Status.String(), r.DistanceKm, r.Fare, r.RequestedAt, time.Now())
	return err
}

func (p *PostgresStore) UpdateRide(r *models.Ride) error {
	_, err := p.db.Exec(`UPDATE rides SET driver_id=$1, status=$2, distance_km=$3, fare=$4, started_at=NULLIF($5, '0001-01-01T00:00:00Z'::timestamptz), ended_at=NULLIF($6, '0001-01-01T00:00:00Z'::timestamptz), updated_at=$7 WHERE id=$8`,
		r.DriverID, r.Status.String(), r.DistanceKm, r.Fare, r.StartedAt, r.EndedAt, time.Now(), r.ID)
	return err
}

func (p *PostgresStore) Close() error { return p.db.Close() }
