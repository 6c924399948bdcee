// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package reportqueue

import (
	"context"
	"time"
)

// Config holds configuration for the offline report queue.
type Config struct {
	Endpoint       string                                // hub submit URL, e.g. "http://localhost:8080/api/reports"
	Token          func(context.Context) (string, error) // returns a bearer token; nil for unauthenticated hubs
	SubmitTimeout  time.Duration                         // per-report submission timeout
	LockStaleAfter time.Duration                         // advisory sync lock is stolen after this
	BackoffMin     time.Duration                         // background drain backoff floor
	BackoffMax     time.Duration                         // background drain backoff ceiling
}

// DefaultConfig returns a configuration with defaults suited to a mobile
// or desktop client. Endpoint must be provided explicitly by the caller.
func DefaultConfig(endpoint string) *Config {
	return &Config{
		Endpoint:       endpoint,
		SubmitTimeout:  10 * time.Second,
		LockStaleAfter: 2 * time.Minute,
		BackoffMin:     1 * time.Second,
		BackoffMax:     60 * time.Second,
	}
}
