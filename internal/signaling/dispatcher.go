package signaling

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
)

// Dispatcher is the per-event handler registry shared by the transports.
// Registrations are tracked by id so Cancel removes exactly what was added;
// dispatch order within one event name follows registration order.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string][]*registration
}

type registration struct {
	id    string
	event string
	fn    Handler
	d     *Dispatcher
}

// NewDispatcher returns an empty registry.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string][]*registration)}
}

// On registers a handler for an event name.
func (d *Dispatcher) On(event string, h Handler) Subscription {
	reg := &registration{
		id:    uuid.New().String(),
		event: event,
		fn:    h,
		d:     d,
	}

	d.mu.Lock()
	d.handlers[event] = append(d.handlers[event], reg)
	d.mu.Unlock()

	return reg
}

// Cancel removes this registration from the dispatcher. Safe to call more
// than once.
func (r *registration) Cancel() {
	d := r.d
	d.mu.Lock()
	defer d.mu.Unlock()

	regs := d.handlers[r.event]
	for i, reg := range regs {
		if reg.id == r.id {
			d.handlers[r.event] = append(regs[:i], regs[i+1:]...)
			break
		}
	}
	if len(d.handlers[r.event]) == 0 {
		delete(d.handlers, r.event)
	}
}

// Dispatch invokes every handler registered for the event, in registration
// order. Transports call this from a single read loop, which is what upholds
// the FIFO-per-event-name guarantee.
func (d *Dispatcher) Dispatch(event string, payload json.RawMessage) {
	d.mu.RLock()
	regs := make([]*registration, len(d.handlers[event]))
	copy(regs, d.handlers[event])
	d.mu.RUnlock()

	for _, reg := range regs {
		reg.fn(payload)
	}
}

// HandlerCount reports how many handlers are registered for an event name.
func (d *Dispatcher) HandlerCount(event string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers[event])
}
