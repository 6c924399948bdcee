package reportqueue

import (
	"context"
	"database/sql"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T, rec *submissionRecorder, online bool) *Queue {
	t.Helper()
	server := httptest.NewServer(rec.handler())
	t.Cleanup(server.Close)

	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "reports.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := DefaultConfig(server.URL + "/api/reports")
	cfg.BackoffMin = 10 * time.Millisecond
	cfg.BackoffMax = 50 * time.Millisecond
	queue, err := NewQueue(db, cfg, online, nil)
	require.NoError(t, err)
	return queue
}

func TestQueueSubmitOnlineSyncsImmediately(t *testing.T) {
	ctx := context.Background()
	rec := newSubmissionRecorder()
	queue := newTestQueue(t, rec, true)
	require.NoError(t, queue.Start(ctx))
	defer queue.Stop(context.Background())

	report, err := queue.Submit(ctx, Draft{Title: "Fire", Type: "fire", Location: "Hill", Description: "d", Severity: "critical"})
	require.NoError(t, err)
	require.False(t, report.Synced)

	require.Eventually(t, func() bool {
		n, err := queue.UnsyncedCount(ctx)
		return err == nil && n == 0
	}, 3*time.Second, 10*time.Millisecond)
	require.Equal(t, 1, rec.count(report.ID))
}

func TestQueueSubmitOfflineQueuesAndSyncsOnReconnect(t *testing.T) {
	ctx := context.Background()
	rec := newSubmissionRecorder()
	queue := newTestQueue(t, rec, false)
	require.NoError(t, queue.Start(ctx))
	defer queue.Stop(context.Background())

	_, err := queue.Submit(ctx, Draft{Title: "Flood", Type: "flood", Location: "Riverside", Description: "d", Severity: "high"})
	require.NoError(t, err)

	n, err := queue.UnsyncedCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, 0, rec.total())

	// Back online: sync runs without an explicit SyncAll call.
	queue.Monitor.SetOnline(true)

	require.Eventually(t, func() bool {
		n, err := queue.UnsyncedCount(ctx)
		return err == nil && n == 0
	}, 3*time.Second, 10*time.Millisecond)

	loaded := queue.Load(ctx)
	require.Len(t, loaded, 1)
	require.True(t, loaded[0].Synced)
}

func TestQueueSubmitRejectsInvalidDraft(t *testing.T) {
	ctx := context.Background()
	queue := newTestQueue(t, newSubmissionRecorder(), true)

	_, err := queue.Submit(ctx, Draft{Title: "no severity", Type: "flood", Location: "l", Description: "d"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	n, err := queue.UnsyncedCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestQueueStatusFunc(t *testing.T) {
	ctx := context.Background()
	queue := newTestQueue(t, newSubmissionRecorder(), true)

	var mu sync.Mutex
	var statuses []bool
	queue.StatusFunc = func(online bool) {
		mu.Lock()
		statuses = append(statuses, online)
		mu.Unlock()
	}
	require.NoError(t, queue.Start(ctx))
	defer queue.Stop(context.Background())

	queue.Monitor.SetOnline(false)
	queue.Monitor.SetOnline(true)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(statuses) == 2 && !statuses[0] && statuses[1]
	}, 3*time.Second, 10*time.Millisecond)
}

func TestQueueClearSynced(t *testing.T) {
	ctx := context.Background()
	rec := newSubmissionRecorder()
	queue := newTestQueue(t, rec, true)

	r, err := queue.Submit(ctx, Draft{Title: "t", Type: "flood", Location: "l", Description: "d", Severity: "low"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		n, err := queue.UnsyncedCount(ctx)
		return err == nil && n == 0
	}, 3*time.Second, 10*time.Millisecond)

	require.Equal(t, 1, rec.count(r.ID))

	removed, err := queue.ClearSynced(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, removed)
	require.Empty(t, queue.Load(ctx))
}
