package reportqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMonitorInitialState(t *testing.T) {
	require.True(t, NewMonitor(true, nil).Online())
	require.False(t, NewMonitor(false, nil).Online())
}

func TestMonitorNotifiesOnTransition(t *testing.T) {
	m := NewMonitor(true, nil)
	ch := m.Subscribe()
	defer m.Unsubscribe(ch)

	m.SetOnline(false)
	select {
	case state := <-ch:
		require.Equal(t, Offline, state)
	case <-time.After(time.Second):
		t.Fatal("expected offline event")
	}
	require.False(t, m.Online())

	m.SetOnline(true)
	select {
	case state := <-ch:
		require.Equal(t, Online, state)
	case <-time.After(time.Second):
		t.Fatal("expected online event")
	}
	require.True(t, m.Online())
}

func TestMonitorIgnoresRedundantUpdates(t *testing.T) {
	m := NewMonitor(true, nil)
	ch := m.Subscribe()
	defer m.Unsubscribe(ch)

	m.SetOnline(true)
	m.SetOnline(true)

	select {
	case <-ch:
		t.Fatal("no event expected for a non-transition")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMonitorUnsubscribe(t *testing.T) {
	m := NewMonitor(true, nil)
	ch := m.Subscribe()
	m.Unsubscribe(ch)

	m.SetOnline(false)
	select {
	case <-ch:
		t.Fatal("unsubscribed channel must not receive events")
	case <-time.After(50 * time.Millisecond):
	}
}
