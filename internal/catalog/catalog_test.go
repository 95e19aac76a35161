package catalog

import "testing"

func TestFareConstants(t *testing.T) {
	cases := []struct {
		class VehicleClass
		name  string
		base  float64
		perKm float64
	}{
		{Bike, "Bike", 15, 6},
		{Sedan, "Sedan", 40, 10},
		{SUV, "SUV", 60, 12},
		{AutoRickshaw, "Auto-Rickshaw", 25, 8},
	}
	for _, c := range cases {
		if c.class.String() != c.name {
			t.Errorf("%v: name=%q want %q", c.class, c.class.String(), c.name)
		}
		if BaseFare(c.class) != c.base {
			t.Errorf("%v: base=%v want %v", c.class, BaseFare(c.class), c.base)
		}
		if PerKmRate(c.class) != c.perKm {
			t.Errorf("%v: perKm=%v want %v", c.class, PerKmRate(c.class), c.perKm)
		}
	}
}

func TestParseClassRoundTrip(t *testing.T) {
	for _, c := range All() {
		got, ok := ParseClass(c.String())
		if !ok || got != c {
			t.Fatalf("ParseClass(%q)=%v,%v", c.String(), got, ok)
		}
	}
	if _, ok := ParseClass("Helicopter"); ok {
		t.Fatal("expected unknown class to fail")
	}
}

func TestUnknownClassPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for unknown class")
		}
	}()
	BaseFare(VehicleClass(99))
}
