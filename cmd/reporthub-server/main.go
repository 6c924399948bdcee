// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// reporthub-server is the ingest and feed server for disaster reports.
// Clients queue reports locally while offline and push them here once
// connectivity returns.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AN-MOL-K/TeamX-Disaster-Hub/reporthub"
)

func main() {
	logger := slog.Default()
	ctx := context.Background()

	poolConfig, err := pgxpool.ParseConfig(conf.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to parse database URL: %v", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		log.Fatalf("Failed to create connection pool: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	service, err := reporthub.NewReportService(ctx, pool, logger)
	if err != nil {
		log.Fatalf("Failed to setup report service: %v", err)
	}

	jwtAuth := reporthub.NewJWTAuth(conf.JWTSecret)
	handlers := reporthub.NewHTTPReportHandlers(service, logger)

	mux := http.NewServeMux()
	handlers.RegisterRoutes(mux)

	httpServer := &http.Server{
		Addr:         conf.Server.Addr,
		Handler:      jwtAuth.Middleware(mux),
		ReadTimeout:  120 * time.Second, // image uploads can be large
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting report hub server", "addr", httpServer.Addr)
		logger.Info("Endpoints available at:")
		logger.Info("  POST   /api/reports             - Submit a queued report")
		logger.Info("  GET    /api/reports             - List reports (filters: type, severity, search, limit)")
		logger.Info("  GET    /api/reports/{id}        - Get one report with attachments")
		logger.Info("  POST   /api/reports/{id}/verify - Verify a report (volunteer+)")
		logger.Info("  DELETE /api/reports/{id}        - Purge a report (admin)")
		logger.Info("  GET    /api/stats               - Aggregate stats (admin)")
		logger.Info("Authentication: JWT Bearer token required")

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}
