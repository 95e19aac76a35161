// Package faults holds the sentinel error kinds shared across the engine.
// Callers classify failures with errors.Is and wrap with fmt.Errorf("%w: ...").
package faults

import "errors"

var (
	// ErrNotFound marks lookups of unknown rider or ride ids.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput marks malformed requests: nil registrations, duplicate
	// ids, identical pickup and dropoff, negative distance.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidConfig marks out-of-bounds pricing-stage parameters,
	// rejected at construction time.
	ErrInvalidConfig = errors.New("invalid config")
)
