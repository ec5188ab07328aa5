// Package netmon tracks connectivity to the remote content service.
//
// The monitor is a two-state machine, Online and Offline, driven by
// periodic reachability probes and by explicit reports from the host
// platform (an OS connectivity callback can call SetOnline directly).
// Transitions notify subscribers in registration order; the engine
// registers the sync drain before the preload warm-up so queued mutations
// flush before new fetches compete for bandwidth.
package netmon

import (
	"context"
	"sync"
	"time"

	"github.com/gigsync/gigsync/internal/clock"
	"github.com/gigsync/gigsync/internal/logger"
)

// Status is the connectivity state.
type Status int

const (
	StatusOffline Status = iota
	StatusOnline
)

func (s Status) String() string {
	if s == StatusOnline {
		return "online"
	}
	return "offline"
}

// Probe checks reachability of the remote service. A nil error means
// reachable. The context carries the probe timeout.
type Probe func(ctx context.Context) error

// Config contains configuration for the monitor.
type Config struct {
	// Probe is the reachability check. Required for Start; a monitor
	// without Start still works as a passive holder driven by SetOnline.
	Probe Probe

	// Interval is the probe period. Defaults to 30s.
	Interval time.Duration

	// ProbeTimeout bounds each probe. Defaults to 5s.
	ProbeTimeout time.Duration

	// InitialStatus is the state assumed before the first probe.
	// Defaults to StatusOffline, which is the safe assumption: the
	// first successful probe promotes and fires the online hooks.
	InitialStatus Status

	// Clock is the injected time source. Defaults to the system clock.
	Clock clock.Clock
}

// Listener receives transition notifications. Callbacks run on the
// monitor's goroutine (or the SetOnline caller's); keep them short and
// kick real work onto their own goroutines.
type Listener struct {
	// OnOnline fires on Offline -> Online.
	OnOnline func(ctx context.Context)

	// OnOffline fires on Online -> Offline.
	OnOffline func(ctx context.Context)
}

// Monitor is the connectivity state machine.
type Monitor struct {
	probe        Probe
	interval     time.Duration
	probeTimeout time.Duration
	clk          clock.Clock

	mu        sync.Mutex
	status    Status
	listeners []Listener

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New creates a monitor. Call Start to begin probing.
func New(cfg Config) *Monitor {
	if cfg.Interval == 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewSystem()
	}
	return &Monitor{
		probe:        cfg.Probe,
		interval:     cfg.Interval,
		probeTimeout: cfg.ProbeTimeout,
		clk:          cfg.Clock,
		status:       cfg.InitialStatus,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
}

// Subscribe registers transition callbacks. Listeners fire in registration
// order. Must be called before Start.
func (m *Monitor) Subscribe(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// Status returns the current state.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Online is shorthand for Status() == StatusOnline.
func (m *Monitor) Online() bool {
	return m.Status() == StatusOnline
}

// SetOnline reports connectivity observed out-of-band, e.g. from a
// platform callback or a request that just succeeded or failed. Drives the
// same transitions as the probe loop.
func (m *Monitor) SetOnline(ctx context.Context, online bool) {
	next := StatusOffline
	if online {
		next = StatusOnline
	}
	m.transition(ctx, next)
}

// Start launches the probe loop. Probing stops when ctx is cancelled or
// Stop is called. An immediate probe runs before the first interval so
// startup doesn't wait a full period to learn the real state.
func (m *Monitor) Start(ctx context.Context) {
	go func() {
		defer close(m.doneCh)

		m.probeOnce(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-m.clk.After(m.interval):
				m.probeOnce(ctx)
			}
		}
	}()
}

// Stop halts the probe loop and waits for it to exit.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	<-m.doneCh
}

func (m *Monitor) probeOnce(ctx context.Context) {
	if m.probe == nil {
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	err := m.probe(probeCtx)
	cancel()

	if ctx.Err() != nil {
		return
	}

	if err != nil {
		m.transition(ctx, StatusOffline)
	} else {
		m.transition(ctx, StatusOnline)
	}
}

func (m *Monitor) transition(ctx context.Context, next Status) {
	m.mu.Lock()
	if m.status == next {
		m.mu.Unlock()
		return
	}
	prev := m.status
	m.status = next
	listeners := make([]Listener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	logger.InfoCtx(ctx, "Connectivity changed", "from", prev.String(), "to", next.String())

	for _, l := range listeners {
		switch next {
		case StatusOnline:
			if l.OnOnline != nil {
				l.OnOnline(ctx)
			}
		case StatusOffline:
			if l.OnOffline != nil {
				l.OnOffline(ctx)
			}
		}
	}
}
