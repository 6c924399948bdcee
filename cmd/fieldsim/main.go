// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// fieldsim exercises the offline report queue against a running report
// hub, simulating a device that loses and regains connectivity in the
// field.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/AN-MOL-K/TeamX-Disaster-Hub/reporthub"
	"github.com/AN-MOL-K/TeamX-Disaster-Hub/reportqueue"
)

func main() {
	var (
		scenarioFlag  = flag.String("scenario", "", "Scenario to run (offline-online, online-burst, clear-synced, all)")
		serverFlag    = flag.String("server", "http://localhost:8080", "Report hub URL")
		jwtSecretFlag = flag.String("jwt-secret", "", "JWT secret for local token generation (defaults to env JWT_SECRET, else server default)")
		verboseFlag   = flag.Bool("verbose", false, "Enable verbose logging")
		preserveFlag  = flag.Bool("preserve-db", false, "Preserve SQLite database file for manual inspection")
	)
	flag.Parse()

	logLevel := slog.LevelInfo
	if *verboseFlag {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	jwtSecret := *jwtSecretFlag
	if jwtSecret == "" {
		jwtSecret = os.Getenv("JWT_SECRET")
	}
	if jwtSecret == "" {
		jwtSecret = "your-secret-key-change-in-production" // Match reporthub-server default
	}

	sim, err := newSimulator(*serverFlag, jwtSecret, *preserveFlag, logger)
	if err != nil {
		log.Fatalf("Failed to create simulator: %v", err)
	}
	defer sim.Close()

	ctx := context.Background()

	scenarios := map[string]func(context.Context) error{
		"offline-online": sim.runOfflineOnline,
		"online-burst":   sim.runOnlineBurst,
		"clear-synced":   sim.runClearSynced,
	}

	switch *scenarioFlag {
	case "":
		fmt.Println("Available scenarios: offline-online, online-burst, clear-synced, all")
		os.Exit(1)
	case "all":
		for _, name := range []string{"offline-online", "online-burst", "clear-synced"} {
			logger.Info("▶️  Running scenario", "scenario", name)
			if err := scenarios[name](ctx); err != nil {
				log.Fatalf("Scenario %s failed: %v", name, err)
			}
		}
	default:
		run, ok := scenarios[*scenarioFlag]
		if !ok {
			log.Fatalf("Unknown scenario: %s", *scenarioFlag)
		}
		if err := run(ctx); err != nil {
			log.Fatalf("Scenario failed: %v", err)
		}
	}

	fmt.Println("🎉 Field simulation completed successfully!")
}

type simulator struct {
	serverURL string
	jwtSecret string
	dbPath    string
	preserve  bool
	logger    *slog.Logger
}

func newSimulator(serverURL, jwtSecret string, preserve bool, logger *slog.Logger) (*simulator, error) {
	dir, err := os.MkdirTemp("", "fieldsim-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	return &simulator{
		serverURL: serverURL,
		jwtSecret: jwtSecret,
		dbPath:    filepath.Join(dir, "reports.db"),
		preserve:  preserve,
		logger:    logger,
	}, nil
}

func (s *simulator) Close() {
	if s.preserve {
		s.logger.Info("📁 SQLite database preserved", "path", s.dbPath)
		return
	}
	_ = os.RemoveAll(filepath.Dir(s.dbPath))
}

// newQueue opens the device database and builds a queue authenticated as
// a simulated field user.
func (s *simulator) newQueue(initialOnline bool) (*reportqueue.Queue, *sql.DB, error) {
	db, err := sql.Open("sqlite3", s.dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open device database: %w", err)
	}

	jwtAuth := reporthub.NewJWTAuth(s.jwtSecret)
	token, err := jwtAuth.GenerateToken("sim-user", "sim-device", reporthub.RoleCitizen, time.Hour)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to generate token: %w", err)
	}

	cfg := reportqueue.DefaultConfig(s.serverURL + "/api/reports")
	cfg.Token = func(context.Context) (string, error) { return token, nil }
	cfg.BackoffMin = 500 * time.Millisecond
	cfg.BackoffMax = 5 * time.Second

	queue, err := reportqueue.NewQueue(db, cfg, initialOnline, s.logger)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return queue, db, nil
}

func sampleDraft(n int) reportqueue.Draft {
	severities := []string{"low", "medium", "high", "critical"}
	return reportqueue.Draft{
		Title:       fmt.Sprintf("Road blocked near sector %d", n),
		Type:        "infrastructure",
		Location:    fmt.Sprintf("Sector %d access road", n),
		Description: "Debris across both lanes, vehicles cannot pass",
		Severity:    severities[n%len(severities)],
	}
}

// runOfflineOnline submits reports while offline, then flips connectivity
// on and waits for the queue to drain.
func (s *simulator) runOfflineOnline(ctx context.Context) error {
	queue, db, err := s.newQueue(false)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if err := queue.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = queue.Stop(context.Background()) }()

	s.logger.Info("📴 Device offline, submitting reports")
	for i := 1; i <= 3; i++ {
		report, err := queue.Submit(ctx, sampleDraft(i))
		if err != nil {
			return fmt.Errorf("submit failed: %w", err)
		}
		s.logger.Info("💾 Report queued locally", "report_id", report.ID)
	}

	pending, err := queue.UnsyncedCount(ctx)
	if err != nil {
		return err
	}
	if pending != 3 {
		return fmt.Errorf("expected 3 pending reports, got %d", pending)
	}

	s.logger.Info("📶 Connectivity restored")
	queue.Monitor.SetOnline(true)

	if err := s.waitForDrain(ctx, queue, 30*time.Second); err != nil {
		return err
	}
	s.logger.Info("✅ All queued reports reached the hub")
	return nil
}

// runOnlineBurst submits a burst of reports while online; each should
// sync immediately.
func (s *simulator) runOnlineBurst(ctx context.Context) error {
	queue, db, err := s.newQueue(true)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if err := queue.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = queue.Stop(context.Background()) }()

	s.logger.Info("📶 Device online, submitting burst")
	for i := 1; i <= 5; i++ {
		if _, err := queue.Submit(ctx, sampleDraft(10+i)); err != nil {
			return fmt.Errorf("submit failed: %w", err)
		}
	}

	if err := s.waitForDrain(ctx, queue, 30*time.Second); err != nil {
		return err
	}
	s.logger.Info("✅ Burst synced")
	return nil
}

// runClearSynced drains the queue and then purges acknowledged reports
// from the device.
func (s *simulator) runClearSynced(ctx context.Context) error {
	queue, db, err := s.newQueue(true)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if _, err := queue.Submit(ctx, sampleDraft(99)); err != nil {
		return fmt.Errorf("submit failed: %w", err)
	}
	if _, err := queue.SyncAll(ctx); err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}
	if err := s.waitForDrain(ctx, queue, 30*time.Second); err != nil {
		return err
	}

	cleared, err := queue.ClearSynced(ctx)
	if err != nil {
		return err
	}
	s.logger.Info("🧹 Cleared synced reports from device", "count", cleared)

	if remaining := queue.Load(ctx); len(remaining) != 0 {
		return fmt.Errorf("expected empty device store, found %d reports", len(remaining))
	}
	s.logger.Info("✅ Device store empty after cleanup")
	return nil
}

func (s *simulator) waitForDrain(ctx context.Context, queue *reportqueue.Queue, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		pending, err := queue.UnsyncedCount(ctx)
		if err != nil {
			return err
		}
		if pending == 0 {
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}
	return fmt.Errorf("queue did not drain within %s", timeout)
}
