// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package reportqueue

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
)

// Queue ties the store, monitor, coordinator and trigger together into the
// surface the application uses: submit a report (online or offline), count
// what is pending, purge what has synced. Submissions always go through
// the local store first; if the device is online a sync pass starts
// immediately, otherwise a background sync is registered and the report
// waits for connectivity.
type Queue struct {
	Store       *Store
	Monitor     *Monitor
	Coordinator *Coordinator
	Trigger     *Trigger

	// StatusFunc, when set, receives connectivity transitions so the UI
	// can tell the user whether submissions will be queued.
	StatusFunc func(online bool)

	config *Config
	logger *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewQueue builds an offline report queue on db. The monitor starts in the
// platform-reported state initialOnline.
func NewQueue(db *sql.DB, config *Config, initialOnline bool, logger *slog.Logger) (*Queue, error) {
	if logger == nil {
		logger = slog.Default()
	}
	store, err := NewStore(db, logger)
	if err != nil {
		return nil, err
	}
	monitor := NewMonitor(initialOnline, logger)
	coordinator, err := NewCoordinator(store, monitor, config, logger)
	if err != nil {
		return nil, err
	}
	trigger := NewTrigger(store, coordinator, monitor, config, logger)

	return &Queue{
		Store:       store,
		Monitor:     monitor,
		Coordinator: coordinator,
		Trigger:     trigger,
		config:      config,
		logger:      logger,
	}, nil
}

// Start launches the background trigger and the foreground watcher that
// syncs on every Offline→Online transition.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.cancel != nil {
		return nil
	}
	if err := q.Trigger.Start(ctx); err != nil {
		return fmt.Errorf("failed to start background sync: %w", err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	q.done = make(chan struct{})
	go q.watch(watchCtx)
	return nil
}

// Stop halts the watcher and the background trigger.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	cancel, done := q.cancel, q.done
	q.cancel = nil
	q.mu.Unlock()

	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return q.Trigger.Stop(ctx)
}

func (q *Queue) watch(ctx context.Context) {
	defer close(q.done)
	events := q.Monitor.Subscribe()
	defer q.Monitor.Unsubscribe(events)

	for {
		select {
		case <-ctx.Done():
			return
		case state := <-events:
			if q.StatusFunc != nil {
				q.StatusFunc(state == Online)
			}
			if state == Online {
				// The trigger may race us here; single-flight makes the
				// extra pass a no-op.
				if _, err := q.Coordinator.SyncAll(ctx); err != nil {
					q.logger.Warn("sync after reconnect failed", "error", err)
				}
			}
		}
	}
}

// Submit validates and persists a draft, then either starts a sync pass
// (online) or registers a background sync (offline). The returned report
// is materialized with its ID and timestamp; Synced is false until the hub
// acknowledges it.
func (q *Queue) Submit(ctx context.Context, d Draft) (Report, error) {
	report, err := q.Store.Append(ctx, d)
	if err != nil {
		return Report{}, err
	}

	if q.Monitor.Online() {
		go func() {
			if _, err := q.Coordinator.SyncAll(context.WithoutCancel(ctx)); err != nil {
				q.logger.Warn("sync after submit failed", "error", err)
			}
		}()
	} else {
		if err := q.Trigger.Register(ctx, SyncTag); err != nil {
			// Non-fatal: the report is saved and the foreground watcher
			// will sync it on reconnect.
			q.logger.Warn("background sync unavailable, will sync in foreground", "error", err)
		}
	}
	return report, nil
}

// SyncAll runs a foreground sync pass. See Coordinator.SyncAll.
func (q *Queue) SyncAll(ctx context.Context) (int, error) {
	return q.Coordinator.SyncAll(ctx)
}

// Load returns all locally stored reports in insertion order.
func (q *Queue) Load(ctx context.Context) []Report {
	return q.Store.Load(ctx)
}

// UnsyncedCount returns the number of reports awaiting submission.
func (q *Queue) UnsyncedCount(ctx context.Context) (int, error) {
	return q.Store.CountUnsynced(ctx)
}

// ClearSynced purges acknowledged reports from the local store.
func (q *Queue) ClearSynced(ctx context.Context) (int, error) {
	return q.Store.ClearSynced(ctx)
}

// Online reports the current connectivity state.
func (q *Queue) Online() bool {
	return q.Monitor.Online()
}
