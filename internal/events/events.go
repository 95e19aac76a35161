// Package events fans domain events out to subscribed listeners. Delivery is
// synchronous and in emission order; a panicking listener is isolated so it
// can never corrupt the emitting operation.
package events

import (
	"log/slog"
	"sync"
)

// Event kinds consumed by notification and UI layers.
const (
	UserRegistered    = "UserRegistered"
	RideRequested     = "RideRequested"
	DriverAssigned    = "DriverAssigned"
	DriverRejected    = "DriverRejected"
	NoDriverAssigned  = "NoDriverAssigned"
	NoDriverAvailable = "NoDriverAvailable"
	RideStatusUpdate  = "RideStatusUpdate"
	PaymentCompleted  = "PaymentCompleted"
)

// Listener receives every published event.
type Listener interface {
	OnEvent(kind, message string)
}

// ListenerFunc adapts a plain function to a Listener.
type ListenerFunc func(kind, message string)

func (f ListenerFunc) OnEvent(kind, message string) { f(kind, message) }

// Bus is an in-process publish/subscribe registry owned by the coordinator.
type Bus struct {
	mu        sync.RWMutex
	listeners []Listener
	logger    *slog.Logger
}

func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{logger: logger}
}

func (b *Bus) Subscribe(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, l)
}

// Unsubscribe removes a previously subscribed listener by identity.
func (b *Bus) Unsubscribe(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, cur := range b.listeners {
		if cur == l {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			return
		}
	}
}

// Publish delivers the event to every listener in subscription order.
func (b *Bus) Publish(kind, message string) {
	b.mu.RLock()
	listeners := make([]Listener, len(b.listeners))
	copy(listeners, b.listeners)
	b.mu.RUnlock()
	for _, l := range listeners {
		b.deliver(l, kind, message)
	}
}

func (b *Bus) deliver(l Listener, kind, message string) {
	defer func() {
		if rec := recover(); rec != nil {
			b.logger.Error("event listener panicked", "kind", kind, "error", rec)
		}
	}()
	l.OnEvent(kind, message)
}
