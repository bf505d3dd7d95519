// Package id provides unique identifier generation for jobs.
package id

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Generate creates a new unique job ID.
// Format: job-<timestamp>-<uuid prefix>
// Example: job-1701432000-a1b2c3d4
func Generate() string {
	return fmt.Sprintf("job-%d-%s", time.Now().Unix(), uuid.NewString()[:8])
}

// Valid reports whether s looks like an ID produced by Generate.
// Only the shape is checked; IDs are never looked up.
func Valid(s string) bool {
	parts := strings.Split(s, "-")
	if len(parts) != 3 || parts[0] != "job" {
		return false
	}
	if len(parts[2]) != 8 {
		return false
	}
	for _, r := range parts[1] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return parts[1] != ""
}
