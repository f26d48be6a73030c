package store_test

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mbreslin/voicesync/internal/store"
	"github.com/mbreslin/voicesync/pkg/models"
)

// migrationsDir returns the absolute path to the migrations directory.
func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

// setupTestDB spins up a Postgres container, runs migrations, and returns a pool.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("voicesync_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	err = store.RunMigrations(connStr, migrationsDir())
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool
}

func createTenant(t *testing.T, s store.Store) *models.Tenant {
	t.Helper()
	tenant := &models.Tenant{
		ID:              uuid.New(),
		Name:            "tenant-" + uuid.NewString()[:8],
		CRMBaseURL:      "https://org.crm.dynamics.com",
		CRMClientID:     "client-id",
		CRMClientSecret: "client-secret",
		CRMDirectoryID:  "directory-id",
		IsActive:        true,
	}
	require.NoError(t, s.CreateTenant(context.Background(), tenant))
	return tenant
}

func createRecording(t *testing.T, s store.Store, tenantID uuid.UUID) *models.Recording {
	t.Helper()
	rec := &models.Recording{
		ID:          uuid.New(),
		TenantID:    tenantID,
		Filename:    "rec.wav",
		AudioRef:    "tenant/2024-01/abcd1234_rec.wav",
		FileSize:    2048,
		ContentType: "audio/wav",
		Status:      models.StatusUploaded,
	}
	require.NoError(t, s.CreateRecording(context.Background(), rec))
	return rec
}

// --- Tenant tests ---

func TestTenant_CreateAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))

	tenant := createTenant(t, s)

	got, err := s.GetTenant(context.Background(), tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, tenant.Name, got.Name)
	assert.Equal(t, tenant.CRMBaseURL, got.CRMBaseURL)
	assert.Equal(t, tenant.CRMClientSecret, got.CRMClientSecret)
	assert.True(t, got.IsActive)
}

func TestTenant_GetMissing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))

	_, err := s.GetTenant(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestTenant_DuplicateName(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))

	tenant := createTenant(t, s)
	dup := &models.Tenant{ID: uuid.New(), Name: tenant.Name, IsActive: true}
	err := s.CreateTenant(context.Background(), dup)
	assert.ErrorIs(t, err, store.ErrDuplicateKey)
}

func TestTenant_Update(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))

	tenant := createTenant(t, s)
	tenant.IsActive = false
	tenant.CRMBaseURL = "https://other.crm.dynamics.com"
	require.NoError(t, s.UpdateTenant(context.Background(), tenant))

	got, err := s.GetTenant(context.Background(), tenant.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.Equal(t, "https://other.crm.dynamics.com", got.CRMBaseURL)
}

// --- Schema mapping tests ---

func TestSchemaMapping_RoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	tenant := createTenant(t, s)

	desc := "Animal records for bioTrack"
	m := &models.SchemaMapping{
		ID:               uuid.New(),
		TenantID:         tenant.ID,
		EntityName:       "animal",
		RemoteEntityName: "bt_animals",
		FieldMappings:    map[string]string{"ear_tag": "bt_ear_tag", "sex": "bt_sex"},
		ValidationRules: map[string]models.ValidationRule{
			"ear_tag": {Type: "string", Required: true, Unique: true},
			"rfid":    {Type: "string", Pattern: `^\d{15,20}$`},
		},
		DetectionKeywords: []string{"heifer", "bull", "ear tag"},
		IsActive:          true,
		Description:       &desc,
	}
	require.NoError(t, s.CreateSchemaMapping(context.Background(), m))

	got, err := s.GetSchemaMapping(context.Background(), m.ID, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, m.FieldMappings, got.FieldMappings)
	assert.Equal(t, m.ValidationRules, got.ValidationRules)
	assert.Equal(t, m.DetectionKeywords, got.DetectionKeywords)
	require.NotNil(t, got.Description)
	assert.Equal(t, desc, *got.Description)
}

func TestSchemaMapping_DuplicateEntityPerTenant(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	tenant := createTenant(t, s)

	first := &models.SchemaMapping{
		ID: uuid.New(), TenantID: tenant.ID,
		EntityName: "animal", RemoteEntityName: "bt_animals",
		FieldMappings: map[string]string{"a": "b"}, IsActive: true,
	}
	require.NoError(t, s.CreateSchemaMapping(context.Background(), first))

	dup := &models.SchemaMapping{
		ID: uuid.New(), TenantID: tenant.ID,
		EntityName: "animal", RemoteEntityName: "bt_other",
		FieldMappings: map[string]string{"a": "b"}, IsActive: true,
	}
	err := s.CreateSchemaMapping(context.Background(), dup)
	assert.ErrorIs(t, err, store.ErrDuplicateKey)
}

func TestSchemaMapping_ListActiveExcludesDeactivated(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	tenant := createTenant(t, s)

	m := &models.SchemaMapping{
		ID: uuid.New(), TenantID: tenant.ID,
		EntityName: "animal", RemoteEntityName: "bt_animals",
		FieldMappings: map[string]string{"a": "b"}, IsActive: true,
	}
	require.NoError(t, s.CreateSchemaMapping(context.Background(), m))

	active, err := s.ListActiveSchemaMappings(context.Background(), tenant.ID)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	require.NoError(t, s.DeactivateSchemaMapping(context.Background(), m.ID, tenant.ID))

	active, err = s.ListActiveSchemaMappings(context.Background(), tenant.ID)
	require.NoError(t, err)
	assert.Empty(t, active)
}

// --- Recording tests ---

func TestRecording_StatusTransitions(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	tenant := createTenant(t, s)
	rec := createRecording(t, s, tenant.ID)
	ctx := context.Background()

	require.NoError(t, s.UpdateRecordingStatus(ctx, rec.ID, models.StatusTranscribing))
	require.NoError(t, s.UpdateRecordingStatus(ctx, rec.ID, models.StatusTranscribed,
		store.WithTranscript("Add new heifer, ear tag 12345", models.ConfidenceHigh)))
	require.NoError(t, s.UpdateRecordingStatus(ctx, rec.ID, models.StatusProcessing))
	require.NoError(t, s.UpdateRecordingStatus(ctx, rec.ID, models.StatusSynced,
		store.WithExtraction("animal", map[string]any{"ear_tag": "12345"}),
		store.WithRemoteRecordID("rem-1"),
		store.WithCompletedAt(time.Now().UTC())))

	got, err := s.GetRecording(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSynced, got.Status)
	require.NotNil(t, got.Transcript)
	assert.Equal(t, "Add new heifer, ear tag 12345", *got.Transcript)
	require.NotNil(t, got.EntityType)
	assert.Equal(t, "animal", *got.EntityType)
	assert.Equal(t, map[string]any{"ear_tag": "12345"}, got.ExtractedFields)
	require.NotNil(t, got.RemoteRecordID)
	assert.Equal(t, "rem-1", *got.RemoteRecordID)
	assert.NotNil(t, got.CompletedAt)
}

func TestRecording_InvalidTransitionRejected(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	tenant := createTenant(t, s)
	rec := createRecording(t, s, tenant.ID)
	ctx := context.Background()

	// uploaded cannot jump straight to synced
	err := s.UpdateRecordingStatus(ctx, rec.ID, models.StatusSynced)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid recording status transition")

	// terminal statuses accept no further transitions
	require.NoError(t, s.UpdateRecordingStatus(ctx, rec.ID, models.StatusFailed,
		store.WithSyncError("Transcription failed: bad audio")))
	err = s.UpdateRecordingStatus(ctx, rec.ID, models.StatusTranscribing)
	require.Error(t, err)
}

func TestRecording_StaleStageWriteLosesToReset(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	tenant := createTenant(t, s)
	rec := createRecording(t, s, tenant.ID)
	ctx := context.Background()

	require.NoError(t, s.UpdateRecordingStatus(ctx, rec.ID, models.StatusTranscribing))
	require.NoError(t, s.UpdateRecordingStatus(ctx, rec.ID, models.StatusTranscribed))
	require.NoError(t, s.UpdateRecordingStatus(ctx, rec.ID, models.StatusProcessing))

	// A reset lands between a run reading "processing" and writing "synced".
	// The stage write must fail instead of resurrecting the old run.
	require.NoError(t, s.ResetRecording(ctx, rec.ID))

	err := s.UpdateRecordingStatus(ctx, rec.ID, models.StatusSynced,
		store.WithRemoteRecordID("rem-stale"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid recording status transition: uploaded -> synced")

	got, err := s.GetRecording(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUploaded, got.Status)
	assert.Nil(t, got.RemoteRecordID)
}

func TestRecording_FailureStoresReason(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	tenant := createTenant(t, s)
	rec := createRecording(t, s, tenant.ID)
	ctx := context.Background()

	require.NoError(t, s.UpdateRecordingStatus(ctx, rec.ID, models.StatusFailed,
		store.WithSyncError("No schema mappings configured for this client")))

	got, err := s.GetRecording(ctx, rec.ID)
	require.NoError(t, err)
	require.NotNil(t, got.SyncError)
	assert.Equal(t, "No schema mappings configured for this client", *got.SyncError)
}

func TestRecording_ResetClearsFailure(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	tenant := createTenant(t, s)
	rec := createRecording(t, s, tenant.ID)
	ctx := context.Background()

	require.NoError(t, s.UpdateRecordingStatus(ctx, rec.ID, models.StatusFailed,
		store.WithSyncError("CRM sync failed: unreachable")))
	require.NoError(t, s.ResetRecording(ctx, rec.ID))

	got, err := s.GetRecording(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUploaded, got.Status)
	assert.Nil(t, got.SyncError)
	assert.Nil(t, got.CompletedAt)

	// The full pipeline can run again after the reset
	require.NoError(t, s.UpdateRecordingStatus(ctx, rec.ID, models.StatusTranscribing))
}

func TestRecording_ListFiltersAndPaginates(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	tenant := createTenant(t, s)
	other := createTenant(t, s)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		createRecording(t, s, tenant.ID)
	}
	createRecording(t, s, other.ID)

	recs, total, err := s.ListRecordings(ctx, store.RecordingFilter{
		TenantID: tenant.ID, Offset: 0, Limit: 3,
	})
	require.NoError(t, err)
	assert.Len(t, recs, 3)
	assert.Equal(t, 5, total)

	recs, total, err = s.ListRecordings(ctx, store.RecordingFilter{
		TenantID: tenant.ID, Offset: 3, Limit: 3,
	})
	require.NoError(t, err)
	assert.Len(t, recs, 2)
	assert.Equal(t, 5, total)

	// Status filter
	recs, _, err = s.ListRecordings(ctx, store.RecordingFilter{
		TenantID: tenant.ID, Status: models.StatusFailed, Limit: 10,
	})
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestRecording_ListOrdersNewestFirst(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	tenant := createTenant(t, s)
	ctx := context.Background()

	first := createRecording(t, s, tenant.ID)
	time.Sleep(20 * time.Millisecond)
	second := createRecording(t, s, tenant.ID)

	recs, _, err := s.ListRecordings(ctx, store.RecordingFilter{TenantID: tenant.ID, Limit: 10})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, second.ID, recs[0].ID)
	assert.Equal(t, first.ID, recs[1].ID)
}

func TestRecording_ListStuck(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	tenant := createTenant(t, s)
	ctx := context.Background()

	stuck := createRecording(t, s, tenant.ID)
	require.NoError(t, s.UpdateRecordingStatus(ctx, stuck.ID, models.StatusTranscribing))

	done := createRecording(t, s, tenant.ID)
	require.NoError(t, s.UpdateRecordingStatus(ctx, done.ID, models.StatusFailed,
		store.WithSyncError("x")))

	// A cutoff in the future captures everything non-terminal
	got, err := s.ListStuckRecordings(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	ids := make([]uuid.UUID, 0, len(got))
	for _, r := range got {
		ids = append(ids, r.ID)
	}
	assert.Contains(t, ids, stuck.ID)
	assert.NotContains(t, ids, done.ID)

	// A cutoff in the past captures nothing
	got, err = s.ListStuckRecordings(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, got)
}

// --- API key tests ---

func TestAPIKey_CreateAndLookup(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	tenant := createTenant(t, s)
	ctx := context.Background()

	key := &models.APIKey{
		ID:        uuid.New(),
		TenantID:  tenant.ID,
		Name:      "dashboard",
		KeyHash:   "$2a$10$abcdefghijklmnopqrstuv",
		KeyPrefix: "vs_abc12",
		Scopes:    []string{"default", "admin"},
	}
	require.NoError(t, s.CreateAPIKey(ctx, key))

	keys, err := s.GetAPIKeyByPrefix(ctx, "vs_abc12")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, key.ID, keys[0].ID)
	assert.Equal(t, []string{"default", "admin"}, keys[0].Scopes)
	assert.Nil(t, keys[0].LastUsedAt)

	require.NoError(t, s.UpdateAPIKeyLastUsed(ctx, key.ID))
	keys, err = s.GetAPIKeyByPrefix(ctx, "vs_abc12")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.NotNil(t, keys[0].LastUsedAt)
}
