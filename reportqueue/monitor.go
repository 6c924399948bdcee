// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package reportqueue

import (
	"log/slog"
	"sync"
)

// State is the device connectivity state as reported by the platform.
type State int

const (
	Offline State = iota
	Online
)

func (s State) String() string {
	if s == Online {
		return "online"
	}
	return "offline"
}

// Monitor tracks connectivity and notifies subscribers on transitions.
// It is push-driven: the platform's connectivity-change hook calls
// SetOnline, the monitor never polls. Connectivity is a best-effort
// signal, not a reachability check; a device can report online while the
// hub is unreachable, and that failure belongs to the sync coordinator.
//
// Monitor never errors.
type Monitor struct {
	mu     sync.Mutex
	online bool
	subs   map[chan State]struct{}
	logger *slog.Logger
}

// NewMonitor creates a monitor with the platform-reported initial state.
func NewMonitor(initialOnline bool, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		online: initialOnline,
		subs:   make(map[chan State]struct{}),
		logger: logger,
	}
}

// Online reports the current connectivity state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// SetOnline records a platform connectivity change. Subscribers are
// notified only on actual transitions.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	state := Offline
	if online {
		state = Online
	}
	subs := make([]chan State, 0, len(m.subs))
	for ch := range m.subs {
		subs = append(subs, ch)
	}
	m.mu.Unlock()

	m.logger.Info("connectivity changed", "state", state.String())
	for _, ch := range subs {
		select {
		case ch <- state:
		default:
			// Slow subscriber; it will read current state on its next check.
			m.logger.Debug("dropped connectivity event for slow subscriber")
		}
	}
}

// Subscribe returns a channel that receives connectivity transitions.
func (m *Monitor) Subscribe() chan State {
	ch := make(chan State, 4)
	m.mu.Lock()
	m.subs[ch] = struct{}{}
	m.mu.Unlock()
	return ch
}

// Unsubscribe stops delivery to ch.
func (m *Monitor) Unsubscribe(ch chan State) {
	m.mu.Lock()
	delete(m.subs, ch)
	m.mu.Unlock()
}
