package catalog

import (
	"encoding/json"
	"fmt"
)

// VehicleClass is the closed set of vehicle categories the platform serves.
// Fare constants are fixed at build time; there is no runtime override.
type VehicleClass int

const (
	Bike VehicleClass = iota
	Sedan
	SUV
	AutoRickshaw
)

var classes = map[VehicleClass]struct {
	name     string
	baseFare float64
	perKm    float64
}{
	Bike:         {"Bike", 15.0, 6.0},
	Sedan:        {"Sedan", 40.0, 10.0},
	SUV:          {"SUV", 60.0, 12.0},
	AutoRickshaw: {"Auto-Rickshaw", 25.0, 8.0},
}

// BaseFare returns the flag-down fare for the class in rupees.
// Unknown classes are a programming error, not a runtime condition.
func BaseFare(c VehicleClass) float64 {
	return mustLookup(c).baseFare
}

// PerKmRate returns the per-kilometre rate for the class in rupees.
func PerKmRate(c VehicleClass) float64 {
	return mustLookup(c).perKm
}

func (c VehicleClass) String() string {
	return mustLookup(c).name
}

// Classes travel by display name on the wire.
func (c VehicleClass) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *VehicleClass) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	parsed, ok := ParseClass(name)
	if !ok {
		return fmt.Errorf("unknown vehicle class %q", name)
	}
	*c = parsed
	return nil
}

// ParseClass maps a wire name ("Sedan", "SUV", ...) back to its class.
func ParseClass(name string) (VehicleClass, bool) {
	for c, e := range classes {
		if e.name == name {
			return c, true
		}
	}
	return 0, false
}

// All lists every class in enum order, for catalog listings.
func All() []VehicleClass {
	return []VehicleClass{Bike, Sedan, SUV, AutoRickshaw}
}

func mustLookup(c VehicleClass) struct {
	name     string
	baseFare float64
	perKm    float64
} {
	e, ok := classes[c]
	if !ok {
		panic(fmt.Sprintf("catalog: unknown vehicle class %d", int(c)))
	}
	return e
}
