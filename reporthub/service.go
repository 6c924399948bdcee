// Package reporthub is the server side of the disaster-report pipeline:
// it accepts report submissions from offline-capable clients, stores them
// in Postgres, and serves the published feed with verification votes and
// aggregate stats.
//
// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package reporthub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrReportNotFound is returned for operations on unknown report IDs.
var ErrReportNotFound = errors.New("report not found")

// ListFilter narrows a report listing. Zero values match everything.
type ListFilter struct {
	Type     string // exact report type
	Severity string // exact severity
	Search   string // case-insensitive substring over title/description/location
	Limit    int    // defaults to 100, capped at 500
}

// ReportService provides report ingestion and feed queries on Postgres.
type ReportService struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewReportService creates a report service and initializes the hub schema.
func NewReportService(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) (*ReportService, error) {
	if logger == nil {
		logger = slog.Default()
	}
	service := &ReportService{pool: pool, logger: logger}

	if err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		return service.initializeSchemaInTx(ctx, tx)
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize hub schema: %w", err)
	}
	logger.Debug("Hub schema initialized successfully")
	return service, nil
}

// SubmitReport stores one report for userID. Idempotent on the
// client-generated report ID: a retried submission whose earlier
// acknowledgment was lost reports "duplicate" and changes nothing.
func (s *ReportService) SubmitReport(ctx context.Context, userID string, req *SubmitReportRequest) (*SubmitReportResponse, error) {
	reportedAt := time.Now().UTC()
	if req.ReportedAt != "" {
		if t, err := time.Parse(time.RFC3339Nano, req.ReportedAt); err == nil {
			reportedAt = t
		} else if t, err := time.Parse(time.RFC3339, req.ReportedAt); err == nil {
			reportedAt = t
		}
	}

	response := &SubmitReportResponse{ReportID: req.ReportID, Status: "duplicate"}
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO hub.reports (report_id, user_id, title, report_type, location, description, severity, reported_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (report_id) DO NOTHING
		`, req.ReportID, userID, req.Title, req.Type, req.Location, req.Description, req.Severity, reportedAt)
		if err != nil {
			return fmt.Errorf("failed to insert report: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil // already accepted on an earlier attempt
		}
		response.Status = "accepted"

		for i, img := range req.Images {
			if _, err := tx.Exec(ctx, `
				INSERT INTO hub.report_images (report_id, position, mime_type, data)
				VALUES ($1, $2, $3, $4)
			`, req.ReportID, i, img.MIMEType, img.Data); err != nil {
				return fmt.Errorf("failed to insert report image: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("report received", "report_id", req.ReportID, "user_id", userID,
		"type", req.Type, "severity", req.Severity, "status", response.Status)
	return response, nil
}

// ListReports returns accepted reports, newest first, narrowed by filter.
func (s *ReportService) ListReports(ctx context.Context, filter ListFilter) ([]ReportSummary, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}

	query := `
		SELECT r.report_id, r.title, r.report_type, r.location, r.severity,
		       r.reported_at, r.received_at, r.verify_count,
		       (SELECT COUNT(*) FROM hub.report_images i WHERE i.report_id = r.report_id)
		FROM hub.reports r
		WHERE 1=1`
	args := []any{}

	if filter.Type != "" {
		args = append(args, filter.Type)
		query += fmt.Sprintf(" AND r.report_type = $%d", len(args))
	}
	if filter.Severity != "" {
		args = append(args, filter.Severity)
		query += fmt.Sprintf(" AND r.severity = $%d", len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		n := len(args)
		query += fmt.Sprintf(" AND (r.title ILIKE $%d OR r.description ILIKE $%d OR r.location ILIKE $%d)", n, n, n)
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY r.received_at DESC LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	reports := []ReportSummary{}
	for rows.Next() {
		var r ReportSummary
		var reportedAt, receivedAt time.Time
		if err := rows.Scan(&r.ReportID, &r.Title, &r.Type, &r.Location, &r.Severity,
			&reportedAt, &receivedAt, &r.VerifyCount, &r.ImageCount); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		r.ReportedAt = reportedAt.UTC().Format(time.RFC3339Nano)
		r.ReceivedAt = receivedAt.UTC().Format(time.RFC3339Nano)
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// GetReport returns one report with its attachments.
func (s *ReportService) GetReport(ctx context.Context, reportID string) (*ReportDetail, error) {
	var detail ReportDetail
	var reportedAt, receivedAt time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT report_id, title, report_type, location, severity, reported_at, received_at, verify_count, description
		FROM hub.reports WHERE report_id = $1
	`, reportID).Scan(&detail.ReportID, &detail.Title, &detail.Type, &detail.Location, &detail.Severity,
		&reportedAt, &receivedAt, &detail.VerifyCount, &detail.Description)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrReportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query report: %w", err)
	}
	detail.ReportedAt = reportedAt.UTC().Format(time.RFC3339Nano)
	detail.ReceivedAt = receivedAt.UTC().Format(time.RFC3339Nano)

	rows, err := s.pool.Query(ctx, `
		SELECT mime_type, data FROM hub.report_images WHERE report_id = $1 ORDER BY position
	`, reportID)
	if err != nil {
		return nil, fmt.Errorf("failed to query report images: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var img ImageUpload
		if err := rows.Scan(&img.MIMEType, &img.Data); err != nil {
			return nil, fmt.Errorf("failed to scan report image: %w", err)
		}
		detail.Images = append(detail.Images, img)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	detail.ImageCount = len(detail.Images)
	return &detail, nil
}

// VerifyReport records a verification vote by userID. Votes are monotonic:
// one per user per report, re-voting changes nothing.
func (s *ReportService) VerifyReport(ctx context.Context, reportID, userID string) (*VerifyResponse, error) {
	response := &VerifyResponse{ReportID: reportID}
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM hub.reports WHERE report_id = $1)`, reportID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check report: %w", err)
		}
		if !exists {
			return ErrReportNotFound
		}

		tag, err := tx.Exec(ctx, `
			INSERT INTO hub.report_verifications (report_id, user_id)
			VALUES ($1, $2)
			ON CONFLICT (report_id, user_id) DO NOTHING
		`, reportID, userID)
		if err != nil {
			return fmt.Errorf("failed to insert verification: %w", err)
		}
		response.Verified = tag.RowsAffected() > 0

		if response.Verified {
			if _, err := tx.Exec(ctx, `
				UPDATE hub.reports SET verify_count = verify_count + 1 WHERE report_id = $1
			`, reportID); err != nil {
				return fmt.Errorf("failed to update verify count: %w", err)
			}
		}
		return tx.QueryRow(ctx, `SELECT verify_count FROM hub.reports WHERE report_id = $1`, reportID).
			Scan(&response.VerifyCount)
	})
	if err != nil {
		return nil, err
	}
	return response, nil
}

// PurgeReport removes a report and everything attached to it.
func (s *ReportService) PurgeReport(ctx context.Context, reportID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM hub.reports WHERE report_id = $1`, reportID)
	if err != nil {
		return fmt.Errorf("failed to purge report: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrReportNotFound
	}
	s.logger.Info("report purged", "report_id", reportID)
	return nil
}

// Stats aggregates report counts by type and severity.
func (s *ReportService) Stats(ctx context.Context) (*StatsResponse, error) {
	stats := &StatsResponse{
		BySeverity: make(map[string]int),
		ByType:     make(map[string]int),
	}

	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM hub.reports`).Scan(&stats.TotalReports); err != nil {
		return nil, fmt.Errorf("failed to count reports: %w", err)
	}

	rows, err := s.pool.Query(ctx, `SELECT severity, COUNT(*) FROM hub.reports GROUP BY severity`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate by severity: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var severity string
		var count int
		if err := rows.Scan(&severity, &count); err != nil {
			return nil, fmt.Errorf("failed to scan severity count: %w", err)
		}
		stats.BySeverity[severity] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	rows, err = s.pool.Query(ctx, `SELECT report_type, COUNT(*) FROM hub.reports GROUP BY report_type`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate by type: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var reportType string
		var count int
		if err := rows.Scan(&reportType, &count); err != nil {
			return nil, fmt.Errorf("failed to scan type count: %w", err)
		}
		stats.ByType[reportType] = count
	}
	return stats, rows.Err()
}
