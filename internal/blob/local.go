package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LocalStore implements Store on the local filesystem. Refs are paths
// relative to the base directory, grouped by tenant and month.
type LocalStore struct {
	baseDir string
}

func NewLocalStore(baseDir string) *LocalStore {
	return &LocalStore{baseDir: baseDir}
}

func (s *LocalStore) Save(_ context.Context, tenantID, filename string, data []byte, _ string) (string, error) {
	ref := buildRef(tenantID, filename)

	path := filepath.Join(s.baseDir, filepath.FromSlash(ref))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("%w: create directory: %v", ErrStorageFailure, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("%w: write file: %v", ErrStorageFailure, err)
	}
	return ref, nil
}

func (s *LocalStore) Fetch(_ context.Context, ref string) ([]byte, error) {
	path := filepath.Join(s.baseDir, filepath.FromSlash(ref))
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read file: %v", ErrStorageFailure, err)
	}
	return data, nil
}

// buildRef produces "tenant/YYYY-MM/uuid_filename". The uuid prefix keeps
// same-named uploads from colliding.
func buildRef(tenantID, filename string) string {
	safe := strings.ReplaceAll(filepath.Base(filename), " ", "_")
	return fmt.Sprintf("%s/%s/%s_%s",
		tenantID, time.Now().UTC().Format("2006-01"), uuid.New().String()[:8], safe)
}

var _ Store = (*LocalStore)(nil)
