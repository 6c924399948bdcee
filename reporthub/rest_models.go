// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package reporthub

// REST/JSON models for the report hub HTTP API.
// Note: the submitting user is derived from the JWT sub claim, not from
// the request body.

// ImageUpload is a single attachment in a submit request. Data is base64
// on the wire (standard JSON []byte encoding).
type ImageUpload struct {
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

// SubmitReportRequest is the payload a client posts for one queued report.
// ReportID is the client-generated ID and is the idempotency key: retrying
// a report whose acknowledgment was lost must not create a duplicate.
type SubmitReportRequest struct {
	ReportID    string        `json:"report_id"`
	Title       string        `json:"title"`
	Type        string        `json:"type"`
	Location    string        `json:"location"`
	Description string        `json:"description"`
	Severity    string        `json:"severity"`
	Images      []ImageUpload `json:"images,omitempty"`
	ReportedAt  string        `json:"reported_at"` // client-side creation time, RFC 3339
}

// SubmitReportResponse acknowledges an accepted report.
type SubmitReportResponse struct {
	ReportID string `json:"report_id"`
	Status   string `json:"status"` // "accepted" or "duplicate"
}

// ReportSummary is one report in a listing.
type ReportSummary struct {
	ReportID    string `json:"report_id"`
	Title       string `json:"title"`
	Type        string `json:"type"`
	Location    string `json:"location"`
	Severity    string `json:"severity"`
	ReportedAt  string `json:"reported_at"`
	ReceivedAt  string `json:"received_at"`
	VerifyCount int    `json:"verify_count"`
	ImageCount  int    `json:"image_count"`
}

// ReportDetail is a full report including attachments.
type ReportDetail struct {
	ReportSummary
	Description string        `json:"description"`
	Images      []ImageUpload `json:"images,omitempty"`
}

// ListReportsResponse is the response to a filtered listing request.
type ListReportsResponse struct {
	Reports []ReportSummary `json:"reports"`
}

// VerifyResponse returns the verification tally after a vote.
type VerifyResponse struct {
	ReportID    string `json:"report_id"`
	VerifyCount int    `json:"verify_count"`
	Verified    bool   `json:"verified"` // false if this user had already verified
}

// StatsResponse aggregates report counts for the analytics view.
type StatsResponse struct {
	TotalReports int            `json:"total_reports"`
	BySeverity   map[string]int `json:"by_severity"`
	ByType       map[string]int `json:"by_type"`
}

// ErrorResponse is the standardized error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
