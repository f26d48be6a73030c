package pipeline_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mbreslin/voicesync/internal/config"
	"github.com/mbreslin/voicesync/internal/store"
	"github.com/mbreslin/voicesync/pkg/models"
)

// --- Fake store ---

// fakeStore keeps recordings in memory and records every status the
// pipeline writes, in order.
type fakeStore struct {
	mu            sync.Mutex
	recordings    map[uuid.UUID]*models.Recording
	tenants       map[uuid.UUID]*models.Tenant
	mappings      map[uuid.UUID][]*models.SchemaMapping
	statusHistory []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		recordings: make(map[uuid.UUID]*models.Recording),
		tenants:    make(map[uuid.UUID]*models.Tenant),
		mappings:   make(map[uuid.UUID][]*models.SchemaMapping),
	}
}

func (f *fakeStore) Ping(_ context.Context) error { return nil }

func (f *fakeStore) CreateTenant(_ context.Context, tenant *models.Tenant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tenants[tenant.ID] = tenant
	return nil
}

func (f *fakeStore) GetTenant(_ context.Context, id uuid.UUID) (*models.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tenant, ok := f.tenants[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return tenant, nil
}

func (f *fakeStore) ListTenants(_ context.Context) ([]*models.Tenant, error) { return nil, nil }
func (f *fakeStore) UpdateTenant(_ context.Context, _ *models.Tenant) error  { return nil }

func (f *fakeStore) GetAPIKeyByPrefix(_ context.Context, _ string) ([]*models.APIKey, error) {
	return nil, nil
}
func (f *fakeStore) UpdateAPIKeyLastUsed(_ context.Context, _ uuid.UUID) error { return nil }
func (f *fakeStore) CreateAPIKey(_ context.Context, _ *models.APIKey) error    { return nil }

func (f *fakeStore) CreateSchemaMapping(_ context.Context, m *models.SchemaMapping) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mappings[m.TenantID] = append(f.mappings[m.TenantID], m)
	return nil
}

func (f *fakeStore) GetSchemaMapping(_ context.Context, _ uuid.UUID, _ uuid.UUID) (*models.SchemaMapping, error) {
	return nil, store.ErrNotFound
}

func (f *fakeStore) ListActiveSchemaMappings(_ context.Context, tenantID uuid.UUID) ([]*models.SchemaMapping, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mappings[tenantID], nil
}

func (f *fakeStore) UpdateSchemaMapping(_ context.Context, _ *models.SchemaMapping) error { return nil }
func (f *fakeStore) DeactivateSchemaMapping(_ context.Context, _ uuid.UUID, _ uuid.UUID) error {
	return nil
}

func (f *fakeStore) CreateRecording(_ context.Context, rec *models.Recording) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recordings[rec.ID] = rec
	return nil
}

func (f *fakeStore) GetRecording(_ context.Context, id uuid.UUID) (*models.Recording, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.recordings[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *rec
	return &copied, nil
}

func (f *fakeStore) ListRecordings(_ context.Context, _ store.RecordingFilter) ([]*models.Recording, int, error) {
	return nil, 0, nil
}

func (f *fakeStore) UpdateRecordingStatus(_ context.Context, id uuid.UUID, status string, opts ...store.RecordingUpdateOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.recordings[id]
	if !ok {
		return store.ErrNotFound
	}
	rec.Status = status
	store.ApplyUpdates(rec, opts...)
	f.statusHistory = append(f.statusHistory, status)
	return nil
}

func (f *fakeStore) ResetRecording(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.recordings[id]
	if !ok {
		return store.ErrNotFound
	}
	rec.Status = models.StatusUploaded
	rec.SyncError = nil
	rec.CompletedAt = nil
	return nil
}

func (f *fakeStore) ListStuckRecordings(_ context.Context, olderThan time.Time) ([]*models.Recording, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Recording
	for _, rec := range f.recordings {
		if !rec.Terminal() && rec.UpdatedAt.Before(olderThan) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeStore) history() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.statusHistory...)
}

func (f *fakeStore) recording(id uuid.UUID) *models.Recording {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *f.recordings[id]
	return &copied
}

var _ store.Store = (*fakeStore)(nil)

// --- Fake cache ---

type fakeCache struct {
	mu       sync.Mutex
	locks    map[uuid.UUID]bool
	statuses map[uuid.UUID]string
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		locks:    make(map[uuid.UUID]bool),
		statuses: make(map[uuid.UUID]string),
	}
}

func (f *fakeCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error { return nil }
func (f *fakeCache) Get(_ context.Context, _ string) ([]byte, bool, error)            { return nil, false, nil }
func (f *fakeCache) Delete(_ context.Context, _ string) error                         { return nil }
func (f *fakeCache) Ping(_ context.Context) error                                     { return nil }

func (f *fakeCache) SetRecordingStatus(_ context.Context, id uuid.UUID, status string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[id] = status
	return nil
}

func (f *fakeCache) GetRecordingStatus(_ context.Context, id uuid.UUID) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status, ok := f.statuses[id]
	return status, ok, nil
}

func (f *fakeCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 1, nil
}

func (f *fakeCache) AcquireProcessingLock(_ context.Context, id uuid.UUID, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.locks[id] {
		return false, nil
	}
	f.locks[id] = true
	return true, nil
}

func (f *fakeCache) ReleaseProcessingLock(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.locks, id)
	return nil
}

func (f *fakeCache) IsProcessing(_ context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.locks[id], nil
}

// --- Fake blob store ---

type fakeBlob struct {
	mu    sync.Mutex
	blobs map[string][]byte
	err   error
}

func newFakeBlob() *fakeBlob {
	return &fakeBlob{blobs: make(map[string][]byte)}
}

func (f *fakeBlob) Save(_ context.Context, tenantID, filename string, data []byte, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ref := tenantID + "/" + filename
	f.blobs[ref] = data
	return ref, nil
}

func (f *fakeBlob) Fetch(_ context.Context, ref string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	data, ok := f.blobs[ref]
	if !ok {
		return nil, fmt.Errorf("blob %s not found", ref)
	}
	return data, nil
}

// --- Fake CRM creator ---

type fakeCreator struct {
	mu       sync.Mutex
	remoteID string
	err      error
	calls    int
	entity   string
	fields   map[string]any
}

func (f *fakeCreator) CreateRecord(_ context.Context, _ *models.Tenant, entityName string, fields map[string]any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.entity = entityName
	f.fields = fields
	if f.err != nil {
		return "", f.err
	}
	return f.remoteID, nil
}

// --- Shared helpers ---

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() config.Config {
	return config.Config{
		Extract: config.ExtractConfig{MaxAttempts: 3},
		Pipeline: config.PipelineConfig{
			Workers:        2,
			QueueSize:      10,
			StuckThreshold: 30 * time.Minute,
			LockTTL:        time.Minute,
		},
	}
}
