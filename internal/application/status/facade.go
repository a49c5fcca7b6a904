// Package status publishes a read model of the queue for UIs and the
// control API. Nothing in the sync path reads it back for decisions.
package status

import (
	"sync"
	"time"
)

// Snapshot is the state shown to the operator.
type Snapshot struct {
	Online       bool      `json:"online"`
	PendingCount int       `json:"pending_count"`
	Syncing      bool      `json:"syncing"`
	LastMessage  string    `json:"last_message"`
	Degraded     bool      `json:"degraded"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Facade holds the latest Snapshot and fans out changes to subscribers.
// Subscribers are called synchronously, in registration order, outside the
// state lock, and must not block.
type Facade struct {
	mu       sync.RWMutex
	snapshot Snapshot

	subsMu sync.Mutex
	nextID uint64
	subs   map[uint64]func(Snapshot)

	// notify serialises fan-out so subscribers see updates in order.
	notify sync.Mutex

	now func() time.Time
}

func NewFacade() *Facade {
	f := &Facade{
		subs: make(map[uint64]func(Snapshot)),
		now:  time.Now,
	}
	f.snapshot.UpdatedAt = f.now()
	return f
}

func (f *Facade) Snapshot() Snapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.snapshot
}

// Subscribe registers fn for every future change.
func (f *Facade) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	f.subsMu.Lock()
	defer f.subsMu.Unlock()
	id := f.nextID
	f.nextID++
	f.subs[id] = fn
	return func() {
		f.subsMu.Lock()
		defer f.subsMu.Unlock()
		delete(f.subs, id)
	}
}

func (f *Facade) SetOnline(online bool) {
	f.update(func(s *Snapshot) bool {
		if s.Online == online {
			return false
		}
		s.Online = online
		return true
	})
}

func (f *Facade) SetPendingCount(n int) {
	f.update(func(s *Snapshot) bool {
		if s.PendingCount == n {
			return false
		}
		s.PendingCount = n
		return true
	})
}

func (f *Facade) SetSyncing(syncing bool) {
	f.update(func(s *Snapshot) bool {
		if s.Syncing == syncing {
			return false
		}
		s.Syncing = syncing
		return true
	})
}

// SetMessage always notifies, so repeating a message still reaches listeners.
func (f *Facade) SetMessage(msg string) {
	f.update(func(s *Snapshot) bool {
		s.LastMessage = msg
		return true
	})
}

func (f *Facade) SetDegraded(degraded bool) {
	f.update(func(s *Snapshot) bool {
		if s.Degraded == degraded {
			return false
		}
		s.Degraded = degraded
		return true
	})
}

func (f *Facade) update(apply func(*Snapshot) bool) {
	f.notify.Lock()
	defer f.notify.Unlock()

	f.mu.Lock()
	if !apply(&f.snapshot) {
		f.mu.Unlock()
		return
	}
	f.snapshot.UpdatedAt = f.now()
	snap := f.snapshot
	f.mu.Unlock()

	for _, fn := range f.subscribers() {
		fn(snap)
	}
}

func (f *Facade) subscribers() []func(Snapshot) {
	f.subsMu.Lock()
	defer f.subsMu.Unlock()
	out := make([]func(Snapshot), 0, len(f.subs))
	for id := uint64(0); id < f.nextID; id++ {
		if fn, ok := f.subs[id]; ok {
			out = append(out, fn)
		}
	}
	return out
}
