package reportqueue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestTrigger(t *testing.T, rec *submissionRecorder, online bool) (*Trigger, *Store, *Monitor) {
	t.Helper()
	coordinator, store, monitor := newTestCoordinator(t, rec, online)
	cfg := coordinator.config
	cfg.BackoffMin = 10 * time.Millisecond
	cfg.BackoffMax = 50 * time.Millisecond
	return NewTrigger(store, coordinator, monitor, cfg, nil), store, monitor
}

func TestRegisterWithoutStartFails(t *testing.T) {
	ctx := context.Background()
	trigger, _, _ := newTestTrigger(t, newSubmissionRecorder(), false)

	err := trigger.Register(ctx, SyncTag)
	var rerr *RegistrationError
	require.ErrorAs(t, err, &rerr)
}

func TestTriggerDrainsOnReconnect(t *testing.T) {
	ctx := context.Background()
	rec := newSubmissionRecorder()
	trigger, store, monitor := newTestTrigger(t, rec, false)

	require.NoError(t, trigger.Start(ctx))
	defer trigger.Stop(context.Background())

	appendReports(t, store, "queued-offline")
	require.NoError(t, trigger.Register(ctx, SyncTag))

	monitor.SetOnline(true)

	require.Eventually(t, func() bool {
		n, err := store.CountUnsynced(ctx)
		return err == nil && n == 0
	}, 3*time.Second, 10*time.Millisecond)
	require.Equal(t, 1, rec.total())
}

func TestTriggerHonorsPersistedRequestsAtStartup(t *testing.T) {
	ctx := context.Background()
	rec := newSubmissionRecorder()
	trigger, store, _ := newTestTrigger(t, rec, true)

	appendReports(t, store, "from-last-run")
	// Registration persisted by a previous process.
	require.NoError(t, store.AddSyncRequest(ctx, SyncTag))

	require.NoError(t, trigger.Start(ctx))
	defer trigger.Stop(context.Background())

	require.Eventually(t, func() bool {
		n, err := store.CountUnsynced(ctx)
		return err == nil && n == 0
	}, 3*time.Second, 10*time.Millisecond)
}

func TestTriggerRetriesWithBackoffUntilHubRecovers(t *testing.T) {
	ctx := context.Background()
	rec := newSubmissionRecorder()
	trigger, store, monitor := newTestTrigger(t, rec, false)

	require.NoError(t, trigger.Start(ctx))
	defer trigger.Stop(context.Background())

	reports := appendReports(t, store, "flaky")
	rec.mu.Lock()
	rec.failFor[reports[0].ID] = true
	rec.mu.Unlock()

	require.NoError(t, trigger.Register(ctx, SyncTag))
	monitor.SetOnline(true)

	// Let a few failing passes happen, then recover the hub.
	require.Eventually(t, func() bool {
		return rec.count(reports[0].ID) >= 2
	}, 3*time.Second, 10*time.Millisecond)

	rec.mu.Lock()
	rec.failFor[reports[0].ID] = false
	rec.mu.Unlock()

	require.Eventually(t, func() bool {
		n, err := store.CountUnsynced(ctx)
		return err == nil && n == 0
	}, 3*time.Second, 10*time.Millisecond)
}

func TestTriggerCoalescesRegistrations(t *testing.T) {
	ctx := context.Background()
	rec := newSubmissionRecorder()
	trigger, store, monitor := newTestTrigger(t, rec, false)

	require.NoError(t, trigger.Start(ctx))
	defer trigger.Stop(context.Background())

	appendReports(t, store, "one", "two")
	for i := 0; i < 5; i++ {
		require.NoError(t, trigger.Register(ctx, SyncTag))
	}

	monitor.SetOnline(true)
	require.Eventually(t, func() bool {
		n, err := store.CountUnsynced(ctx)
		return err == nil && n == 0
	}, 3*time.Second, 10*time.Millisecond)

	// Coalesced: one submission per report despite five registrations.
	require.Equal(t, 2, rec.total())
}
