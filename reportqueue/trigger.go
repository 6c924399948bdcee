// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package reportqueue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// SyncTag is the default background sync registration tag.
const SyncTag = "disaster-report-sync"

// Trigger is the background sync path: a separate execution context that
// drains the queue once connectivity is restored, even when no foreground
// caller is around. Registrations are advisory and coalesced by tag; the
// trigger may delay the actual pass, and callers must not depend on a
// delivery deadline.
//
// If the trigger is not running, Register fails with a RegistrationError
// and the application falls back to foreground sync driven by the
// connectivity monitor.
type Trigger struct {
	store       *Store
	coordinator *Coordinator
	monitor     *Monitor
	config      *Config
	logger      *slog.Logger

	mu      sync.Mutex
	running bool
	wake    chan struct{}
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewTrigger creates a background sync trigger.
func NewTrigger(store *Store, coordinator *Coordinator, monitor *Monitor, config *Config, logger *slog.Logger) *Trigger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Trigger{
		store:       store,
		coordinator: coordinator,
		monitor:     monitor,
		config:      config,
		logger:      logger,
		wake:        make(chan struct{}, 1),
	}
}

// Start launches the background drain loop. Registrations persisted by a
// previous run are picked up immediately.
func (t *Trigger) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return nil
	}
	loopCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})
	t.running = true
	go t.loop(loopCtx)
	return nil
}

// Stop stops the drain loop. Pending registrations stay persisted and are
// honored on the next Start.
func (t *Trigger) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return nil
	}
	t.running = false
	cancel, done := t.cancel, t.done
	t.mu.Unlock()

	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Register persists a named sync request. The trigger wakes immediately if
// the device is already online; otherwise the next Offline→Online
// transition drains the queue.
func (t *Trigger) Register(ctx context.Context, tag string) error {
	t.mu.Lock()
	running := t.running
	t.mu.Unlock()
	if !running {
		return &RegistrationError{Tag: tag, Err: fmt.Errorf("background sync not running")}
	}
	if err := t.store.AddSyncRequest(ctx, tag); err != nil {
		return &RegistrationError{Tag: tag, Err: err}
	}
	t.logger.Debug("background sync registered", "tag", tag)
	if t.monitor.Online() {
		select {
		case t.wake <- struct{}{}:
		default:
		}
	}
	return nil
}

func (t *Trigger) loop(ctx context.Context) {
	defer close(t.done)

	events := t.monitor.Subscribe()
	defer t.monitor.Unsubscribe(events)

	// Drain requests left over from a previous run.
	if t.monitor.Online() {
		t.drain(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case state := <-events:
			if state == Online {
				t.drain(ctx)
			}
		case <-t.wake:
			t.drain(ctx)
		}
	}
}

// drain runs sync passes until the queue is empty, the device goes
// offline, or the context is cancelled. Failed passes back off
// exponentially; retries are unbounded but paced.
func (t *Trigger) drain(ctx context.Context) {
	tags, err := t.store.TakeSyncRequests(ctx)
	if err != nil {
		t.logger.Warn("failed to read sync requests", "error", err)
		return
	}
	if len(tags) == 0 {
		return
	}
	t.logger.Info("background sync starting", "tags", tags)

	backoff := t.config.BackoffMin
	for {
		if ctx.Err() != nil || !t.monitor.Online() {
			t.reRegister(ctx, tags)
			return
		}

		synced, err := t.coordinator.SyncAll(ctx)
		if err != nil {
			t.logger.Warn("background sync pass failed", "error", err)
		} else if synced > 0 {
			t.logger.Info("background sync pass completed", "synced", synced)
		}

		remaining, cerr := t.store.CountUnsynced(ctx)
		if cerr != nil {
			t.logger.Warn("failed to count pending reports", "error", cerr)
			t.reRegister(ctx, tags)
			return
		}
		if remaining == 0 {
			return
		}

		select {
		case <-ctx.Done():
			t.reRegister(ctx, tags)
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > t.config.BackoffMax {
			backoff = t.config.BackoffMax
		}
	}
}

// reRegister puts tags back so an interrupted drain survives a restart.
func (t *Trigger) reRegister(ctx context.Context, tags []string) {
	ctx = context.WithoutCancel(ctx)
	for _, tag := range tags {
		if err := t.store.AddSyncRequest(ctx, tag); err != nil {
			t.logger.Warn("failed to re-register sync request", "tag", tag, "error", err)
		}
	}
}
