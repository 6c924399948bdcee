package reportqueue

import (
	"bytes"
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reports.db")
	db := openTestDB(t, path)
	store, err := NewStore(db, nil)
	require.NoError(t, err)
	return store, path
}

func TestStoreInit(t *testing.T) {
	store, _ := newTestStore(t)

	expectedTables := []string{"reports", "report_images", "sync_requests", "queue_lock"}
	for _, table := range expectedTables {
		var count int
		err := store.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		require.NoError(t, err)
		require.Equal(t, 1, count, "Table %s should exist", table)
	}
}

func TestAppendAndReload(t *testing.T) {
	ctx := context.Background()
	store, path := newTestStore(t)

	drafts := []Draft{
		{Title: "Flood", Type: "flood", Location: "Riverside", Description: "Water rising fast", Severity: "high"},
		{Title: "Wildfire", Type: "fire", Location: "North Ridge", Description: "Smoke visible", Severity: "critical",
			Images: []Image{{MIMEType: "image/jpeg", Data: []byte("jpeg-bytes")}}},
		{Title: "Road blocked", Type: "landslide", Location: "Hwy 9", Description: "Debris on road", Severity: "medium"},
	}

	var appended []Report
	for _, d := range drafts {
		r, err := store.Append(ctx, d)
		require.NoError(t, err)
		require.NotEmpty(t, r.ID)
		require.NotEmpty(t, r.Timestamp)
		require.False(t, r.Synced)
		appended = append(appended, r)
	}

	// Simulate a reload: reopen the database file with a fresh store.
	reopened, err := NewStore(openTestDB(t, path), nil)
	require.NoError(t, err)

	loaded := reopened.Load(ctx)
	require.Len(t, loaded, len(appended))
	for i, r := range loaded {
		require.Equal(t, appended[i].ID, r.ID)
		require.Equal(t, appended[i].Title, r.Title)
		require.Equal(t, appended[i].Type, r.Type)
		require.Equal(t, appended[i].Location, r.Location)
		require.Equal(t, appended[i].Description, r.Description)
		require.Equal(t, appended[i].Severity, r.Severity)
		require.Equal(t, appended[i].Timestamp, r.Timestamp)
		require.False(t, r.Synced)
	}

	// Attachment bytes survive the round trip unchanged.
	require.Len(t, loaded[1].Images, 1)
	require.True(t, bytes.Equal([]byte("jpeg-bytes"), loaded[1].Images[0].Data))
}

func TestAppendAssignsUniqueIDs(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		r, err := store.Append(ctx, Draft{Title: "t", Type: "flood", Location: "l", Description: "d", Severity: "low"})
		require.NoError(t, err)
		require.False(t, seen[r.ID], "duplicate report ID %s", r.ID)
		seen[r.ID] = true
	}
}

func TestAppendValidation(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	_, err := store.Append(ctx, Draft{Title: "Flood", Type: "flood", Location: "x", Description: "d", Severity: "high"})
	require.NoError(t, err)

	tests := []struct {
		name  string
		draft Draft
	}{
		{"missing title", Draft{Type: "flood", Location: "x", Description: "d", Severity: "high"}},
		{"missing severity", Draft{Title: "t", Type: "flood", Location: "x", Description: "d"}},
		{"oversized image", Draft{Title: "t", Type: "flood", Location: "x", Description: "d", Severity: "high",
			Images: []Image{{MIMEType: "image/jpeg", Data: make([]byte, 6<<20)}}}},
		{"bad mime type", Draft{Title: "t", Type: "flood", Location: "x", Description: "d", Severity: "high",
			Images: []Image{{MIMEType: "application/pdf", Data: []byte("x")}}}},
		{"too many images", Draft{Title: "t", Type: "flood", Location: "x", Description: "d", Severity: "high",
			Images: []Image{
				{MIMEType: "image/png", Data: []byte("1")},
				{MIMEType: "image/png", Data: []byte("2")},
				{MIMEType: "image/png", Data: []byte("3")},
				{MIMEType: "image/png", Data: []byte("4")},
				{MIMEType: "image/png", Data: []byte("5")},
				{MIMEType: "image/png", Data: []byte("6")},
			}}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := store.Append(ctx, tc.draft)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
		})
	}

	// Rejected drafts never reach the store.
	n, err := store.CountUnsynced(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestMarkSyncedIdempotent(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	r, err := store.Append(ctx, Draft{Title: "t", Type: "flood", Location: "l", Description: "d", Severity: "low"})
	require.NoError(t, err)

	require.NoError(t, store.MarkSynced(ctx, r.ID))
	require.NoError(t, store.MarkSynced(ctx, r.ID))
	// Unknown IDs are a no-op, not an error.
	require.NoError(t, store.MarkSynced(ctx, "r-0-deadbeef"))

	loaded := store.Load(ctx)
	require.Len(t, loaded, 1)
	require.True(t, loaded[0].Synced)

	n, err := store.CountUnsynced(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestRemoveIdempotent(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	r, err := store.Append(ctx, Draft{Title: "t", Type: "flood", Location: "l", Description: "d", Severity: "low",
		Images: []Image{{MIMEType: "image/png", Data: []byte("x")}}})
	require.NoError(t, err)

	require.NoError(t, store.Remove(ctx, r.ID))
	require.NoError(t, store.Remove(ctx, r.ID))
	require.Empty(t, store.Load(ctx))

	// Attachments go with the report.
	var count int
	err = store.db.QueryRow(`SELECT COUNT(*) FROM report_images`).Scan(&count)
	require.NoError(t, err)
	require.Equal(t, 0, count)
}

func TestClearSynced(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	r1, err := store.Append(ctx, Draft{Title: "a", Type: "flood", Location: "l", Description: "d", Severity: "low"})
	require.NoError(t, err)
	r2, err := store.Append(ctx, Draft{Title: "b", Type: "fire", Location: "l", Description: "d", Severity: "high"})
	require.NoError(t, err)

	require.NoError(t, store.MarkSynced(ctx, r1.ID))

	removed, err := store.ClearSynced(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	loaded := store.Load(ctx)
	require.Len(t, loaded, 1)
	require.Equal(t, r2.ID, loaded[0].ID)
}

func TestLoadFailsOpenOnCorruptStore(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	// Break the schema out from under the store.
	_, err := store.db.Exec(`DROP TABLE reports`)
	require.NoError(t, err)

	require.Empty(t, store.Load(ctx))

	// The sync path must surface the failure instead.
	_, err = store.Unsynced(ctx)
	var serr *StorageError
	require.ErrorAs(t, err, &serr)
}

func TestSyncLock(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	acquired, err := store.AcquireSyncLock(ctx, time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	// Held lock blocks a second pass.
	acquired, err = store.AcquireSyncLock(ctx, time.Minute)
	require.NoError(t, err)
	require.False(t, acquired)

	require.NoError(t, store.ReleaseSyncLock(ctx))

	acquired, err = store.AcquireSyncLock(ctx, time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)
	require.NoError(t, store.ReleaseSyncLock(ctx))
}

func TestSyncLockStaleSteal(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	// A lock left behind by a crashed pass.
	stale := time.Now().UTC().Add(-time.Hour).Format(time.RFC3339Nano)
	_, err := store.db.Exec(`INSERT INTO queue_lock (name, locked_since) VALUES (?, ?)`, syncLockName, stale)
	require.NoError(t, err)

	acquired, err := store.AcquireSyncLock(ctx, time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)
}

func TestSyncRequestsCoalesce(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	require.NoError(t, store.AddSyncRequest(ctx, SyncTag))
	require.NoError(t, store.AddSyncRequest(ctx, SyncTag))
	require.NoError(t, store.AddSyncRequest(ctx, "other-tag"))

	tags, err := store.TakeSyncRequests(ctx)
	require.NoError(t, err)
	require.Len(t, tags, 2)
	require.Contains(t, tags, SyncTag)
	require.Contains(t, tags, "other-tag")

	// Taken requests are gone.
	tags, err = store.TakeSyncRequests(ctx)
	require.NoError(t, err)
	require.Empty(t, tags)
}
