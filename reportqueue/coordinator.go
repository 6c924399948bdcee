// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package reportqueue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
)

// Coordinator drains unsynced reports to the hub, one at a time, oldest
// first. A pass marks each report synced on acknowledgment and leaves
// failures queued; one report's failure never blocks the rest.
type Coordinator struct {
	HTTP   *http.Client
	Notify func(Report) // called after a report is acknowledged; may be nil

	store   *Store
	monitor *Monitor
	config  *Config
	logger  *slog.Logger
	syncing int32
}

// NewCoordinator creates a sync coordinator. The HTTP client timeout
// defaults to the configured per-report submit timeout.
func NewCoordinator(store *Store, monitor *Monitor, config *Config, logger *slog.Logger) (*Coordinator, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if config.Endpoint == "" {
		return nil, fmt.Errorf("config.Endpoint must be provided")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		HTTP:    &http.Client{Timeout: config.SubmitTimeout},
		store:   store,
		monitor: monitor,
		config:  config,
		logger:  logger,
	}, nil
}

// SyncAll performs one sync pass and returns the number of reports the hub
// acknowledged. It is safe to invoke repeatedly or concurrently:
//
//   - If a pass is already running (in this process or, via the storage
//     lock, in another execution context), the call returns (0, nil).
//   - If the monitor reports offline, the call returns (0, nil) without
//     any network activity.
//
// Individual submission failures are logged and left queued; only an
// inaccessible report store fails the call.
func (c *Coordinator) SyncAll(ctx context.Context) (int, error) {
	if !c.monitor.Online() {
		return 0, nil
	}
	if !atomic.CompareAndSwapInt32(&c.syncing, 0, 1) {
		return 0, nil
	}
	defer atomic.StoreInt32(&c.syncing, 0)

	acquired, err := c.store.AcquireSyncLock(ctx, c.config.LockStaleAfter)
	if err != nil {
		return 0, fmt.Errorf("failed to acquire sync lock: %w", err)
	}
	if !acquired {
		return 0, nil
	}
	defer func() {
		// Release even when the pass was cancelled.
		if err := c.store.ReleaseSyncLock(context.WithoutCancel(ctx)); err != nil {
			c.logger.Warn("failed to release sync lock", "error", err)
		}
	}()

	pending, err := c.store.Unsynced(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read pending reports: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	synced := 0
	for i := range pending {
		if ctx.Err() != nil {
			return synced, ctx.Err()
		}
		// Connectivity can drop mid-pass; the remainder stays queued.
		if !c.monitor.Online() {
			c.logger.Info("connectivity lost mid-pass, stopping sync",
				"synced", synced, "remaining", len(pending)-i)
			break
		}

		report := &pending[i]
		if err := c.submit(ctx, report); err != nil {
			c.logger.Warn("report submission failed, leaving queued",
				"report_id", report.ID, "error", err)
			continue
		}

		if err := c.store.MarkSynced(ctx, report.ID); err != nil {
			return synced, fmt.Errorf("failed to mark report synced: %w", err)
		}
		synced++
		c.logger.Info("report synced", "report_id", report.ID, "title", report.Title)
		if c.Notify != nil {
			c.Notify(*report)
		}
	}
	return synced, nil
}

// submit posts one report to the hub. Any 2xx response is an
// acknowledgment; everything else is a SubmissionError.
func (c *Coordinator) submit(ctx context.Context, report *Report) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.SubmitTimeout)
	defer cancel()

	jsonData, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	if c.config.Token != nil {
		token, err := c.config.Token(ctx)
		if err != nil {
			return &SubmissionError{ReportID: report.ID, Err: fmt.Errorf("failed to get token: %w", err)}
		}
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return &SubmissionError{ReportID: report.ID, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Debug("hub rejected report", "report_id", report.ID,
			"status", resp.StatusCode, "body", string(body))
		return &SubmissionError{ReportID: report.ID, StatusCode: resp.StatusCode}
	}
	return nil
}
