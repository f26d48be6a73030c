// Package blob stores and retrieves raw recording audio. Exactly one Store
// implementation is active per process; the pipeline never knows whether
// bytes come from local disk or an S3 bucket.
package blob

import (
	"context"
	"errors"
	"fmt"

	"github.com/mbreslin/voicesync/internal/config"
)

var (
	ErrBlobNotFound   = errors.New("audio blob not found")
	ErrStorageFailure = errors.New("blob storage failure")
)

// Store is the interface for audio blob storage.
type Store interface {
	// Save writes audio under a ref derived from tenant and filename and
	// returns that ref for later Fetch calls.
	Save(ctx context.Context, tenantID, filename string, data []byte, contentType string) (string, error)
	// Fetch resolves a ref to the raw audio bytes.
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// NewStore constructs the configured blob store. Called once at server startup.
func NewStore(cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case "local":
		return NewLocalStore(cfg.LocalDir), nil
	case "s3":
		return NewS3Store(cfg.S3)
	default:
		return nil, fmt.Errorf("unknown storage driver %q: must be one of local, s3", cfg.Driver)
	}
}
