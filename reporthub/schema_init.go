// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package reporthub

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// initializeSchemaInTx creates the hub tables within an existing transaction.
func (s *ReportService) initializeSchemaInTx(ctx context.Context, tx pgx.Tx) error {
	migrations := []string{
		/*language=postgresql*/ `CREATE SCHEMA IF NOT EXISTS hub`,

		// Accepted reports. report_id is the client-generated ID and the
		// idempotency key for re-submissions.
		/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS hub.reports (
			report_id    TEXT        PRIMARY KEY,
			user_id      TEXT        NOT NULL,
			title        TEXT        NOT NULL,
			report_type  TEXT        NOT NULL,
			location     TEXT        NOT NULL,
			description  TEXT        NOT NULL,
			severity     TEXT        NOT NULL,
			reported_at  TIMESTAMPTZ NOT NULL,
			received_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			verify_count INTEGER     NOT NULL DEFAULT 0
		)`,

		/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS hub.report_images (
			report_id TEXT    NOT NULL REFERENCES hub.reports(report_id) ON DELETE CASCADE,
			position  INTEGER NOT NULL,
			mime_type TEXT    NOT NULL,
			data      BYTEA   NOT NULL,
			PRIMARY KEY (report_id, position)
		)`,

		// One verification vote per user per report.
		/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS hub.report_verifications (
			report_id   TEXT        NOT NULL REFERENCES hub.reports(report_id) ON DELETE CASCADE,
			user_id     TEXT        NOT NULL,
			verified_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (report_id, user_id)
		)`,

		/*language=postgresql*/ `CREATE INDEX IF NOT EXISTS reports_received_at_idx
			ON hub.reports (received_at DESC)`,
		/*language=postgresql*/ `CREATE INDEX IF NOT EXISTS reports_type_idx
			ON hub.reports (report_type)`,
		/*language=postgresql*/ `CREATE INDEX IF NOT EXISTS reports_severity_idx
			ON hub.reports (severity)`,
	}

	for _, migration := range migrations {
		if _, err := tx.Exec(ctx, migration); err != nil {
			return fmt.Errorf("failed to run hub migration: %w", err)
		}
	}
	return nil
}
