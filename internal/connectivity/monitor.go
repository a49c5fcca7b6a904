// Package connectivity tracks whether the terminal can reach the network
// and tells subscribers when that changes.
package connectivity

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Monitor holds the current online state. Set is edge-triggered: only a
// change of value reaches observers, and transitions are delivered in the
// order they happened, one at a time.
type Monitor struct {
	online atomic.Bool

	// dispatch serialises Set so observers never see interleaved transitions.
	dispatch sync.Mutex

	mu          sync.Mutex
	nextID      uint64
	transitions map[uint64]func(online bool)
	resumes     map[uint64]func()

	logger zerolog.Logger
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

func WithLogger(l zerolog.Logger) MonitorOption {
	return func(m *Monitor) { m.logger = l }
}

// NewMonitor creates a Monitor starting in the given state.
func NewMonitor(initial bool, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		transitions: make(map[uint64]func(bool)),
		resumes:     make(map[uint64]func()),
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.online.Store(initial)
	return m
}

func (m *Monitor) IsOnline() bool {
	return m.online.Load()
}

// Set records the observed state. It reports whether this was a transition.
func (m *Monitor) Set(online bool) bool {
	m.dispatch.Lock()
	defer m.dispatch.Unlock()

	if m.online.Swap(online) == online {
		return false
	}

	m.logger.Info().Bool("online", online).Msg("connectivity changed")

	transitions, resumes := m.observers()
	for _, fn := range transitions {
		fn(online)
	}
	if online {
		for _, fn := range resumes {
			fn()
		}
	}
	return true
}

// OnTransition registers fn for every online/offline change.
func (m *Monitor) OnTransition(fn func(online bool)) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.transitions[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.transitions, id)
	}
}

// OnResume registers fn for every offline to online change.
func (m *Monitor) OnResume(fn func()) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.resumes[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.resumes, id)
	}
}

// observers returns the registered callbacks in registration order.
func (m *Monitor) observers() ([]func(bool), []func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	transitions := make([]func(bool), 0, len(m.transitions))
	resumes := make([]func(), 0, len(m.resumes))
	for id := uint64(0); id < m.nextID; id++ {
		if fn, ok := m.transitions[id]; ok {
			transitions = append(transitions, fn)
		}
		if fn, ok := m.resumes[id]; ok {
			resumes = append(resumes, fn)
		}
	}
	return transitions, resumes
}
