// Package storage owns the filesystem side of a job: per-job workspaces for
// extracted frames and intermediate video, and optional publishing of the
// final artifact to S3.
package storage

import (
	"context"
	"errors"
)

// ErrS3NotConfigured is returned when publishing is attempted
// without a bucket configured.
var ErrS3NotConfigured = errors.New("S3 storage is not configured")

// Publisher uploads a finished artifact and returns where it can be fetched.
type Publisher interface {
	// Publish uploads the file at path under key and returns its URL.
	Publish(ctx context.Context, key, path string) (url string, err error)
}

