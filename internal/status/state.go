package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/caiofmp/tgram/internal/bus"
)

// State represents the client connection lifecycle state.
type State string

const (
	Booting      State = "BOOTING"
	AuthRequired State = "AUTH_REQUIRED"
	Connecting   State = "CONNECTING"
	Syncing      State = "SYNCING"
	Ready        State = "READY"
	Reconnecting State = "RECONNECTING"
	// Fatal is terminal: auth failures halt the engine and the process.
	Fatal State = "FATAL"
)

var validTransitions = map[State][]State{
	Booting:      {AuthRequired, Connecting, Fatal},
	AuthRequired: {Connecting, Fatal},
	Connecting:   {Syncing, AuthRequired, Reconnecting, Fatal},
	Syncing:      {Ready, Reconnecting, Fatal},
	Ready:        {Syncing, Reconnecting, AuthRequired, Fatal},
	Reconnecting: {Connecting, Fatal},
	Fatal:        {},
}

// Machine tracks and enforces connection state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Booting state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Booting,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns an error if the
// transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind: "status.changed",
			Payload: Change{
				From: from,
				To:   to,
			},
		})
	}
	return nil
}

// Change is the payload for status change events.
type Change struct {
	From State
	To   State
}
