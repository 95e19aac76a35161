package geo

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-dispatch/internal/catalog"
	"github.com/example/ride-dispatch/internal/models"
)

// RedisMirror reads and writes the driver-position mirror kept in Redis GEO.
// The coordinator registry stays authoritative; the mirror only backs the
// nearby-drivers read API and the location consumer.
type RedisMirror struct {
	client *redis.Client
	key    string
}

func NewRedisMirror(addr, password, key string) *RedisMirror {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisMirror{client: c, key: key}
}

func (r *RedisMirror) Upsert(ctx context.Context, d models.Driver) error {
	if _, err := r.client.GeoAdd(ctx, r.key, &redis.GeoLocation{Longitude: d.Loc.Lon, Latitude: d.Loc.Lat, Name: d.ID}).Result(); err != nil {
		return err
	}
	return r.client.HSet(ctx, metaKey(d.ID), map[string]interface{}{
		"rating":  fmt.Sprintf("%f", d.Rating),
		"status":  string(d.Status),
		"class":   d.Vehicle.Class.String(),
		"updated": time.Now().Format(time.RFC3339),
	}).Err()
}

// Nearby returns up to limit mirrored drivers within radiusKm of the point,
// closest first.
func (r *RedisMirror) Nearby(ctx context.Context, lat, lon, radiusKm float64, limit int) []models.Driver {
	res, err := r.client.GeoRadius(ctx, r.key, lon, lat, &redis.GeoRadiusQuery{
		Radius: radiusKm, Unit: "km", WithCoord: true, WithDist: true, Count: limit, Sort: "ASC",
	}).Result()
	if err != nil {
		return nil
	}
	out := make([]models.Driver, 0, len(res))
	for _, g := range res {
		d := models.Driver{ID: g.Name}
		d.Loc.Lat = g.Latitude
		d.Loc.Lon = g.Longitude
		if m, err := r.client.HGetAll(ctx, metaKey(g.Name)).Result(); err == nil {
			if v, ok := m["rating"]; ok {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					d.Rating = f
				}
			}
			if v, ok := m["status"]; ok {
				d.Status = models.DriverStatus(v)
			}
			if v, ok := m["class"]; ok {
				if c, ok := catalog.ParseClass(v); ok {
					d.Vehicle.Class = c
				}
			}
		}
		out = append(out, d)
	}
	return out
}

func (r *RedisMirror) Ping(ctx context.Context) error { return r.client.Ping(ctx).Err() }

func (r *RedisMirror) Close() error { return r.client.Close() }

func metaKey(id string) string { return "driver:meta:" + id }
