package connectivity

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitor_EdgeTriggered(t *testing.T) {
	m := NewMonitor(false)
	var got []bool
	m.OnTransition(func(online bool) { got = append(got, online) })

	assert.False(t, m.Set(false))
	assert.True(t, m.Set(true))
	assert.False(t, m.Set(true))
	assert.True(t, m.Set(false))
	assert.True(t, m.Set(true))

	assert.Equal(t, []bool{true, false, true}, got)
	assert.True(t, m.IsOnline())
}

func TestMonitor_ResumeFiresOncePerReconnect(t *testing.T) {
	m := NewMonitor(true)
	var resumes int
	m.OnResume(func() { resumes++ })

	m.Set(true)
	m.Set(false)
	m.Set(false)
	m.Set(true)
	m.Set(true)

	assert.Equal(t, 1, resumes)
}

func TestMonitor_Unsubscribe(t *testing.T) {
	m := NewMonitor(false)
	var a, b int
	unsubA := m.OnResume(func() { a++ })
	m.OnResume(func() { b++ })

	m.Set(true)
	unsubA()
	m.Set(false)
	m.Set(true)

	assert.Equal(t, 1, a)
	assert.Equal(t, 2, b)
}

func TestMonitor_ObserversInRegistrationOrder(t *testing.T) {
	m := NewMonitor(false)
	var order []string
	m.OnTransition(func(bool) { order = append(order, "first") })
	m.OnTransition(func(bool) { order = append(order, "second") })
	m.OnResume(func() { order = append(order, "resume") })

	m.Set(true)

	assert.Equal(t, []string{"first", "second", "resume"}, order)
}

func TestMonitor_ConcurrentSetDeliversAlternatingTransitions(t *testing.T) {
	m := NewMonitor(false)
	var mu sync.Mutex
	var seen []bool
	m.OnTransition(func(online bool) {
		mu.Lock()
		seen = append(seen, online)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(v bool) {
			defer wg.Done()
			m.Set(v)
		}(i%2 == 0)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(seen); i++ {
		assert.NotEqual(t, seen[i-1], seen[i], "transition %d repeats the previous state", i)
	}
	if len(seen) > 0 {
		assert.True(t, seen[0])
		assert.Equal(t, m.IsOnline(), seen[len(seen)-1])
	}
}

func TestManualWatcher(t *testing.T) {
	w := NewManualWatcher()
	m := NewMonitor(false)
	assert.False(t, w.Push(true))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, w, m) }()

	require.Eventually(t, func() bool { return w.Push(true) }, time.Second, time.Millisecond)
	assert.True(t, m.IsOnline())

	cancel()
	require.NoError(t, <-done)
	assert.False(t, w.Push(false))
	assert.True(t, m.IsOnline())
}

type fakeAddr struct{}

func (fakeAddr) Network() string { return "fake" }
func (fakeAddr) String() string  { return "fake" }

func TestRoutable(t *testing.T) {
	tests := []struct {
		name string
		addr net.Addr
		want bool
	}{
		{"ipv4 private", &net.IPNet{IP: net.ParseIP("192.168.1.20")}, true},
		{"ipv4 public", &net.IPAddr{IP: net.ParseIP("8.8.8.8")}, true},
		{"ipv6 global", &net.IPNet{IP: net.ParseIP("2001:db8::1")}, true},
		{"loopback", &net.IPNet{IP: net.ParseIP("127.0.0.1")}, false},
		{"link local", &net.IPNet{IP: net.ParseIP("fe80::1")}, false},
		{"ipv4 link local", &net.IPNet{IP: net.ParseIP("169.254.3.4")}, false},
		{"unknown type", fakeAddr{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, routable(tt.addr))
		})
	}
}

func TestHasRoutableInterface_SkipsDownAndLoopback(t *testing.T) {
	orig := interfaceLister
	t.Cleanup(func() { interfaceLister = orig })

	interfaceLister = func() ([]net.Interface, error) {
		return []net.Interface{
			{Index: 1, Name: "lo", Flags: net.FlagUp | net.FlagLoopback},
			{Index: 9999, Name: "eth-down"},
		}, nil
	}

	online, err := HasRoutableInterface()
	require.NoError(t, err)
	assert.False(t, online)
}

func TestNetlinkWatcher_StopsOnCancel(t *testing.T) {
	var inspections atomic.Int32
	w := NewNetlinkWatcher(zerolog.Nop())
	w.inspect = func() (bool, error) {
		inspections.Add(1)
		return true, nil
	}
	m := NewMonitor(false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- Run(ctx, w, m) }()

	deadline := time.After(2 * time.Second)
	for inspections.Load() == 0 {
		select {
		case err := <-done:
			t.Skipf("netlink unavailable: %v", err)
		case <-deadline:
			t.Fatal("watcher never inspected interfaces")
		case <-time.After(time.Millisecond):
		}
	}
	require.Eventually(t, m.IsOnline, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop after cancel")
	}
}
