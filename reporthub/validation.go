// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package reporthub

import (
	"fmt"
	"time"
)

const (
	// MaxImages mirrors the client-side attachment limit.
	MaxImages = 5
	// MaxImageBytes mirrors the client-side per-attachment size limit.
	MaxImageBytes = 5 << 20
	// MaxReportIDLen bounds the client-generated idempotency key.
	MaxReportIDLen = 64
)

var allowedSeverities = map[string]bool{
	"low":      true,
	"medium":   true,
	"high":     true,
	"critical": true,
}

var allowedImageMIME = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

// ValidateSubmitRequest checks a submit payload before it touches storage.
// Rejections map to HTTP 400; clients keep rejected reports queued, so the
// limits here must stay in step with the client's own validation.
func ValidateSubmitRequest(req *SubmitReportRequest) error {
	if req.ReportID == "" {
		return fmt.Errorf("report_id is required")
	}
	if len(req.ReportID) > MaxReportIDLen {
		return fmt.Errorf("report_id exceeds %d characters", MaxReportIDLen)
	}
	if req.Title == "" {
		return fmt.Errorf("title is required")
	}
	if req.Type == "" {
		return fmt.Errorf("type is required")
	}
	if req.Location == "" {
		return fmt.Errorf("location is required")
	}
	if req.Description == "" {
		return fmt.Errorf("description is required")
	}
	if !allowedSeverities[req.Severity] {
		return fmt.Errorf("severity must be one of low, medium, high, critical")
	}
	if req.ReportedAt != "" {
		if _, err := time.Parse(time.RFC3339Nano, req.ReportedAt); err != nil {
			if _, err := time.Parse(time.RFC3339, req.ReportedAt); err != nil {
				return fmt.Errorf("reported_at must be an RFC 3339 timestamp")
			}
		}
	}
	if len(req.Images) > MaxImages {
		return fmt.Errorf("at most %d images allowed", MaxImages)
	}
	for i, img := range req.Images {
		if !allowedImageMIME[img.MIMEType] {
			return fmt.Errorf("images[%d]: unsupported type %q", i, img.MIMEType)
		}
		if len(img.Data) == 0 {
			return fmt.Errorf("images[%d]: empty image data", i)
		}
		if len(img.Data) > MaxImageBytes {
			return fmt.Errorf("images[%d]: exceeds %d bytes", i, MaxImageBytes)
		}
	}
	return nil
}
