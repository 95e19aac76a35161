package geo

import (
	"math"
	"testing"

	"github.com/example/ride-dispatch/internal/models"
)

func TestPlaneDistanceZero(t *testing.T) {
	p := models.Location{Lat: 19.076, Lon: 72.8777}
	if d := PlaneDistanceKm(p, p); d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestPlaneDistanceScalesByDegree(t *testing.T) {
	a := models.Location{Lat: 0, Lon: 0}
	b := models.Location{Lat: 1, Lon: 0}
	if d := PlaneDistanceKm(a, b); d != KmPerDegree {
		t.Fatalf("expected %f, got %f", KmPerDegree, d)
	}
	c := models.Location{Lat: 3, Lon: 4}
	want := 5 * KmPerDegree
	if d := PlaneDistanceKm(a, c); math.Abs(d-want) > 1e-9 {
		t.Fatalf("expected %f, got %f", want, d)
	}
}
