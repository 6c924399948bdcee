// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package reportqueue

import "fmt"

// StorageError indicates the local report store could not read or write its
// backing database. Reads fail open (the caller sees an empty store), but
// append failures are surfaced so the user knows the report was not saved.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("report store %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// ValidationError rejects a draft before it reaches the store. It is
// user-visible and locally recoverable; invalid drafts are never queued.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid report: %s %s", e.Field, e.Reason)
}

// SubmissionError indicates the hub was unreachable or rejected a report.
// The report stays queued and is retried on the next sync pass.
type SubmissionError struct {
	ReportID   string
	StatusCode int // 0 for transport failures
	Err        error
}

func (e *SubmissionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("submit report %s: hub returned status %d", e.ReportID, e.StatusCode)
	}
	return fmt.Sprintf("submit report %s: %v", e.ReportID, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// RegistrationError indicates a background sync request could not be
// registered. Non-fatal: callers fall back to foreground sync driven by
// the connectivity monitor.
type RegistrationError struct {
	Tag string
	Err error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("register background sync %q: %v", e.Tag, e.Err)
}

func (e *RegistrationError) Unwrap() error { return e.Err }
