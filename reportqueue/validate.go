// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package reportqueue

import "fmt"

const (
	// MaxImages is the maximum number of attachments per report.
	MaxImages = 5
	// MaxImageBytes is the maximum size of a single attachment.
	MaxImageBytes = 5 << 20
)

var allowedImageMIME = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

// ValidateDraft checks a draft against the report constraints. It runs
// before anything is persisted, so an invalid draft is never queued.
func ValidateDraft(d Draft) error {
	required := []struct {
		field, value string
	}{
		{"title", d.Title},
		{"type", d.Type},
		{"location", d.Location},
		{"description", d.Description},
		{"severity", d.Severity},
	}
	for _, r := range required {
		if r.value == "" {
			return &ValidationError{Field: r.field, Reason: "is required"}
		}
	}

	if len(d.Images) > MaxImages {
		return &ValidationError{
			Field:  "images",
			Reason: fmt.Sprintf("at most %d attachments allowed, got %d", MaxImages, len(d.Images)),
		}
	}
	for i, img := range d.Images {
		if !allowedImageMIME[img.MIMEType] {
			return &ValidationError{
				Field:  fmt.Sprintf("images[%d]", i),
				Reason: fmt.Sprintf("unsupported type %q", img.MIMEType),
			}
		}
		if len(img.Data) > MaxImageBytes {
			return &ValidationError{
				Field:  fmt.Sprintf("images[%d]", i),
				Reason: fmt.Sprintf("exceeds %d bytes", MaxImageBytes),
			}
		}
		if len(img.Data) == 0 {
			return &ValidationError{
				Field:  fmt.Sprintf("images[%d]", i),
				Reason: "is empty",
			}
		}
	}
	return nil
}
