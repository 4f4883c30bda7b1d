package network

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Pinger is anything that can tell whether the backend answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Config struct {
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration
}

// Monitor publishes the device's connectivity to the backend as a stream of
// booleans. New subscribers receive the current state, then transitions only.
type Monitor struct {
	pinger   Pinger
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	known  bool
	online bool
	subs   map[chan bool]struct{}
}

func NewMonitor(pinger Pinger, cfg Config, logger *slog.Logger) *Monitor {
	return &Monitor{
		pinger:   pinger,
		interval: cfg.ProbeInterval,
		timeout:  cfg.ProbeTimeout,
		logger:   logger.With("component", "network_monitor"),
		subs:     make(map[chan bool]struct{}),
	}
}

// Online reports the last observed state; false until the first probe.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe returns a channel that yields the current state (if known) and
// every later transition. It is closed when ctx is done.
func (m *Monitor) Subscribe(ctx context.Context) <-chan bool {
	ch := make(chan bool, 1)

	m.mu.Lock()
	m.subs[ch] = struct{}{}
	if m.known {
		ch <- m.online
	}
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.subs, ch)
		close(ch)
		m.mu.Unlock()
	}()

	return ch
}

// Set records a connectivity observation and notifies subscribers when it
// changes the state.
func (m *Monitor) Set(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.known && m.online == online {
		return
	}
	m.known = true
	m.online = online

	m.logger.Info("connectivity changed", "online", online)

	for ch := range m.subs {
		select {
		case <-ch:
		default:
		}
		ch <- online
	}
}

// Probe pings the backend once and records the result.
func (m *Monitor) Probe(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	err := m.pinger.Ping(probeCtx)
	if err != nil && ctx.Err() == nil {
		m.logger.Debug("backend probe failed", "error", err)
	}

	online := err == nil
	if ctx.Err() == nil {
		m.Set(online)
	}
	return online
}

func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("network monitor started", "interval", m.interval)

	m.Probe(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("network monitor stopped")
			return ctx.Err()
		case <-ticker.C:
			m.Probe(ctx)
		}
	}
}
