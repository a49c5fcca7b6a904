package connectivity

import (
	"context"
	"net"
	"sync"
)

// Watcher observes an OS or external connectivity signal and reports every
// observed state through emit until ctx is done. Repeated values are fine;
// the Monitor drops them.
type Watcher interface {
	Watch(ctx context.Context, emit func(online bool)) error
}

// Run feeds w into m until ctx is done.
func Run(ctx context.Context, w Watcher, m *Monitor) error {
	return w.Watch(ctx, func(online bool) { m.Set(online) })
}

// ManualWatcher has no signal of its own. State is pushed by the control
// API or by OS dispatcher hooks calling the CLI.
type ManualWatcher struct {
	mu   sync.Mutex
	emit func(bool)
}

func NewManualWatcher() *ManualWatcher {
	return &ManualWatcher{}
}

func (w *ManualWatcher) Watch(ctx context.Context, emit func(online bool)) error {
	w.mu.Lock()
	w.emit = emit
	w.mu.Unlock()

	<-ctx.Done()

	w.mu.Lock()
	w.emit = nil
	w.mu.Unlock()
	return nil
}

// Push reports a state. It returns false when nothing is watching.
func (w *ManualWatcher) Push(online bool) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.emit == nil {
		return false
	}
	w.emit(online)
	return true
}

// interfaceLister is swapped in tests.
var interfaceLister = net.Interfaces

// HasRoutableInterface reports whether some up, non-loopback interface
// carries a global unicast address.
func HasRoutableInterface() (bool, error) {
	ifaces, err := interfaceLister()
	if err != nil {
		return false, err
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if routable(addr) {
				return true, nil
			}
		}
	}
	return false, nil
}

func routable(addr net.Addr) bool {
	var ip net.IP
	switch a := addr.(type) {
	case *net.IPNet:
		ip = a.IP
	case *net.IPAddr:
		ip = a.IP
	}
	return ip != nil && ip.IsGlobalUnicast()
}
