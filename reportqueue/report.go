// Package reportqueue implements the offline disaster-report queue: a
// SQLite-backed local store of pending reports, a connectivity monitor,
// and a sync coordinator that drains unsynced reports to the report hub
// when the device is online.
//
// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package reportqueue

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Image is a single report attachment kept as raw bytes. JSON encoding
// base64s the data, which is what the hub expects on the wire.
type Image struct {
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

// Draft holds the user-supplied fields of a report before it is assigned
// an ID and persisted.
type Draft struct {
	Title       string
	Type        string
	Location    string
	Description string
	Severity    string
	Images      []Image
}

// Report is a disaster report queued on this device. Synced is never sent
// to the hub; it only tracks local submission state.
type Report struct {
	ID          string  `json:"report_id"`
	Title       string  `json:"title"`
	Type        string  `json:"type"`
	Location    string  `json:"location"`
	Description string  `json:"description"`
	Severity    string  `json:"severity"`
	Images      []Image `json:"images,omitempty"`
	Timestamp   string  `json:"reported_at"`
	Synced      bool    `json:"-"`
}

// NewReportID generates a report ID unique for the lifetime of the local
// store: creation time in milliseconds plus a random suffix.
func NewReportID() string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return fmt.Sprintf("r-%d-%s", time.Now().UnixMilli(), suffix)
}
