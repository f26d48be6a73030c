package handler_test

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	mw "github.com/mbreslin/voicesync/internal/api/middleware"
	"github.com/mbreslin/voicesync/internal/store"
	"github.com/mbreslin/voicesync/pkg/models"
)

// --- Mock store ---

type mockStore struct {
	mu         sync.Mutex
	tenants    map[uuid.UUID]*models.Tenant
	recordings map[uuid.UUID]*models.Recording
	mappings   map[uuid.UUID]*models.SchemaMapping
	apiKeys    []*models.APIKey
	listTotal  int
	resets     []uuid.UUID

	createTenantErr error
	pingErr         error
}

func newMockStore() *mockStore {
	return &mockStore{
		tenants:    make(map[uuid.UUID]*models.Tenant),
		recordings: make(map[uuid.UUID]*models.Recording),
		mappings:   make(map[uuid.UUID]*models.SchemaMapping),
	}
}

func (m *mockStore) Ping(_ context.Context) error { return m.pingErr }

func (m *mockStore) CreateTenant(_ context.Context, tenant *models.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createTenantErr != nil {
		return m.createTenantErr
	}
	m.tenants[tenant.ID] = tenant
	return nil
}

func (m *mockStore) GetTenant(_ context.Context, id uuid.UUID) (*models.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tenant, ok := m.tenants[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return tenant, nil
}

func (m *mockStore) ListTenants(_ context.Context) ([]*models.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Tenant
	for _, tenant := range m.tenants {
		out = append(out, tenant)
	}
	return out, nil
}

func (m *mockStore) UpdateTenant(_ context.Context, tenant *models.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenants[tenant.ID] = tenant
	return nil
}

func (m *mockStore) GetAPIKeyByPrefix(_ context.Context, _ string) ([]*models.APIKey, error) {
	return nil, nil
}
func (m *mockStore) UpdateAPIKeyLastUsed(_ context.Context, _ uuid.UUID) error { return nil }

func (m *mockStore) CreateAPIKey(_ context.Context, key *models.APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.apiKeys = append(m.apiKeys, key)
	return nil
}

func (m *mockStore) CreateSchemaMapping(_ context.Context, sm *models.SchemaMapping) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mappings[sm.ID] = sm
	return nil
}

func (m *mockStore) GetSchemaMapping(_ context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.SchemaMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sm, ok := m.mappings[id]
	if !ok || sm.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	return sm, nil
}

func (m *mockStore) ListActiveSchemaMappings(_ context.Context, tenantID uuid.UUID) ([]*models.SchemaMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.SchemaMapping
	for _, sm := range m.mappings {
		if sm.TenantID == tenantID && sm.IsActive {
			out = append(out, sm)
		}
	}
	return out, nil
}

func (m *mockStore) UpdateSchemaMapping(_ context.Context, sm *models.SchemaMapping) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mappings[sm.ID] = sm
	return nil
}

func (m *mockStore) DeactivateSchemaMapping(_ context.Context, id uuid.UUID, tenantID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sm, ok := m.mappings[id]
	if !ok || sm.TenantID != tenantID {
		return store.ErrNotFound
	}
	sm.IsActive = false
	return nil
}

func (m *mockStore) CreateRecording(_ context.Context, rec *models.Recording) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recordings[rec.ID] = rec
	return nil
}

func (m *mockStore) GetRecording(_ context.Context, id uuid.UUID) (*models.Recording, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recordings[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return rec, nil
}

func (m *mockStore) ListRecordings(_ context.Context, filter store.RecordingFilter) ([]*models.Recording, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Recording
	for _, rec := range m.recordings {
		if rec.TenantID == filter.TenantID {
			out = append(out, rec)
		}
	}
	return out, m.listTotal, nil
}

func (m *mockStore) UpdateRecordingStatus(_ context.Context, _ uuid.UUID, _ string, _ ...store.RecordingUpdateOption) error {
	return nil
}

func (m *mockStore) ResetRecording(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recordings[id]
	if !ok {
		return store.ErrNotFound
	}
	rec.Status = models.StatusUploaded
	rec.SyncError = nil
	m.resets = append(m.resets, id)
	return nil
}

func (m *mockStore) ListStuckRecordings(_ context.Context, _ time.Time) ([]*models.Recording, error) {
	return nil, nil
}

var _ store.Store = (*mockStore)(nil)

// --- Mock blob store ---

type mockBlob struct {
	mu    sync.Mutex
	saved map[string][]byte
	err   error
}

func newMockBlob() *mockBlob {
	return &mockBlob{saved: make(map[string][]byte)}
}

func (m *mockBlob) Save(_ context.Context, tenantID, filename string, data []byte, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	ref := tenantID + "/" + filename
	m.saved[ref] = data
	return ref, nil
}

func (m *mockBlob) Fetch(_ context.Context, ref string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saved[ref], nil
}

// --- Mock queue and lock checker ---

type mockQueue struct {
	mu       sync.Mutex
	enqueued []uuid.UUID
	err      error
}

func (m *mockQueue) Enqueue(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.enqueued = append(m.enqueued, id)
	return nil
}

type mockLocks struct {
	busy bool
}

func (m *mockLocks) IsProcessing(_ context.Context, _ uuid.UUID) (bool, error) {
	return m.busy, nil
}

// --- Router helper ---

// testRouter mounts one handler behind a stub that injects the tenant the
// auth middleware would have resolved.
func testRouter(tenantID uuid.UUID, method, pattern string, h http.HandlerFunc) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(mw.SetTenantID(req.Context(), tenantID)))
		})
	})
	r.Method(method, pattern, h)
	return r
}
