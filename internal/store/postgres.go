package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mbreslin/voicesync/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Tenants ---

func (s *PostgresStore) CreateTenant(ctx context.Context, tenant *models.Tenant) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tenants (id, name, crm_base_url, crm_client_id, crm_client_secret, crm_directory_id, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		tenant.ID, tenant.Name, tenant.CRMBaseURL, tenant.CRMClientID, tenant.CRMClientSecret,
		tenant.CRMDirectoryID, tenant.IsActive, tenant.CreatedAt, tenant.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create tenant: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	var t models.Tenant
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, crm_base_url, crm_client_id, crm_client_secret, crm_directory_id, is_active, created_at, updated_at
		 FROM tenants WHERE id = $1`, id,
	).Scan(&t.ID, &t.Name, &t.CRMBaseURL, &t.CRMClientID, &t.CRMClientSecret,
		&t.CRMDirectoryID, &t.IsActive, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return &t, nil
}

func (s *PostgresStore) ListTenants(ctx context.Context) ([]*models.Tenant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, crm_base_url, crm_client_id, crm_client_secret, crm_directory_id, is_active, created_at, updated_at
		 FROM tenants ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []*models.Tenant
	for rows.Next() {
		var t models.Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.CRMBaseURL, &t.CRMClientID, &t.CRMClientSecret,
			&t.CRMDirectoryID, &t.IsActive, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, &t)
	}
	return tenants, rows.Err()
}

func (s *PostgresStore) UpdateTenant(ctx context.Context, tenant *models.Tenant) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tenants SET name = $2, crm_base_url = $3, crm_client_id = $4, crm_client_secret = $5,
		        crm_directory_id = $6, is_active = $7, updated_at = NOW()
		 WHERE id = $1`,
		tenant.ID, tenant.Name, tenant.CRMBaseURL, tenant.CRMClientID, tenant.CRMClientSecret,
		tenant.CRMDirectoryID, tenant.IsActive)
	if err != nil {
		return fmt.Errorf("update tenant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, tenant_id, name, key_hash, key_prefix, scopes, last_used_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.TenantID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, tenant_id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		key.ID, key.TenantID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

// --- Schema Mappings ---

const schemaMappingColumns = `id, tenant_id, entity_name, remote_entity_name, field_mappings,
	validation_rules, detection_keywords, is_active, description, created_at, updated_at`

func scanSchemaMapping(row pgx.Row) (*models.SchemaMapping, error) {
	var m models.SchemaMapping
	err := row.Scan(&m.ID, &m.TenantID, &m.EntityName, &m.RemoteEntityName, &m.FieldMappings,
		&m.ValidationRules, &m.DetectionKeywords, &m.IsActive, &m.Description,
		&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *PostgresStore) CreateSchemaMapping(ctx context.Context, mapping *models.SchemaMapping) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO schema_mappings (id, tenant_id, entity_name, remote_entity_name, field_mappings,
		         validation_rules, detection_keywords, is_active, description, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		mapping.ID, mapping.TenantID, mapping.EntityName, mapping.RemoteEntityName, mapping.FieldMappings,
		mapping.ValidationRules, mapping.DetectionKeywords, mapping.IsActive, mapping.Description,
		mapping.CreatedAt, mapping.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create schema mapping: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSchemaMapping(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.SchemaMapping, error) {
	m, err := scanSchemaMapping(s.pool.QueryRow(ctx,
		`SELECT `+schemaMappingColumns+` FROM schema_mappings WHERE id = $1 AND tenant_id = $2`,
		id, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get schema mapping: %w", err)
	}
	return m, nil
}

func (s *PostgresStore) ListActiveSchemaMappings(ctx context.Context, tenantID uuid.UUID) ([]*models.SchemaMapping, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+schemaMappingColumns+` FROM schema_mappings
		 WHERE tenant_id = $1 AND is_active ORDER BY entity_name`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list schema mappings: %w", err)
	}
	defer rows.Close()

	var mappings []*models.SchemaMapping
	for rows.Next() {
		m, err := scanSchemaMapping(rows)
		if err != nil {
			return nil, fmt.Errorf("scan schema mapping: %w", err)
		}
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}

func (s *PostgresStore) UpdateSchemaMapping(ctx context.Context, mapping *models.SchemaMapping) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE schema_mappings SET entity_name = $3, remote_entity_name = $4, field_mappings = $5,
		        validation_rules = $6, detection_keywords = $7, is_active = $8, description = $9, updated_at = NOW()
		 WHERE id = $1 AND tenant_id = $2`,
		mapping.ID, mapping.TenantID, mapping.EntityName, mapping.RemoteEntityName, mapping.FieldMappings,
		mapping.ValidationRules, mapping.DetectionKeywords, mapping.IsActive, mapping.Description)
	if err != nil {
		return fmt.Errorf("update schema mapping: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeactivateSchemaMapping(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE schema_mappings SET is_active = FALSE, updated_at = NOW()
		 WHERE id = $1 AND tenant_id = $2 AND is_active`, id, tenantID)
	if err != nil {
		return fmt.Errorf("deactivate schema mapping: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Recordings ---

const recordingColumns = `id, tenant_id, filename, audio_ref, file_size, content_type, status,
	transcript, transcript_confidence, entity_type, extracted_fields, remote_record_id, sync_error,
	created_at, updated_at, completed_at`

func scanRecording(row pgx.Row) (*models.Recording, error) {
	var r models.Recording
	err := row.Scan(&r.ID, &r.TenantID, &r.Filename, &r.AudioRef, &r.FileSize, &r.ContentType,
		&r.Status, &r.Transcript, &r.TranscriptConfidence, &r.EntityType, &r.ExtractedFields,
		&r.RemoteRecordID, &r.SyncError, &r.CreatedAt, &r.UpdatedAt, &r.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *PostgresStore) CreateRecording(ctx context.Context, rec *models.Recording) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO recordings (id, tenant_id, filename, audio_ref, file_size, content_type, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, rec.TenantID, rec.Filename, rec.AudioRef, rec.FileSize, rec.ContentType,
		rec.Status, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create recording: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetRecording(ctx context.Context, id uuid.UUID) (*models.Recording, error) {
	r, err := scanRecording(s.pool.QueryRow(ctx,
		`SELECT `+recordingColumns+` FROM recordings WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get recording: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) ListRecordings(ctx context.Context, filter RecordingFilter) ([]*models.Recording, int, error) {
	conditions := []string{"TRUE"}
	args := []any{}
	argIdx := 1

	if filter.TenantID != uuid.Nil {
		conditions = append(conditions, fmt.Sprintf("tenant_id = $%d", argIdx))
		args = append(args, filter.TenantID)
		argIdx++
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, filter.Status)
		argIdx++
	}

	where := strings.Join(conditions, " AND ")

	var total int
	countQuery := "SELECT COUNT(*) FROM recordings WHERE " + where
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count recordings: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	dataQuery := fmt.Sprintf(
		`SELECT `+recordingColumns+` FROM recordings WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		where, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list recordings: %w", err)
	}
	defer rows.Close()

	var recs []*models.Recording
	for rows.Next() {
		r, err := scanRecording(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan recording: %w", err)
		}
		recs = append(recs, r)
	}
	return recs, total, rows.Err()
}

// validTransitions encodes the pipeline state machine. A recording never
// skips a stage and never leaves a terminal state here; ResetRecording is
// the only way back to uploaded.
var validTransitions = map[string][]string{
	models.StatusUploaded:     {models.StatusTranscribing, models.StatusFailed},
	models.StatusTranscribing: {models.StatusTranscribed, models.StatusFailed},
	models.StatusTranscribed:  {models.StatusProcessing, models.StatusFailed},
	models.StatusProcessing:   {models.StatusSynced, models.StatusFailed},
}

// transitionSources returns the statuses a recording may move to target
// from, per validTransitions.
func transitionSources(target string) []string {
	from := []string{}
	for current, nexts := range validTransitions {
		for _, next := range nexts {
			if next == target {
				from = append(from, current)
			}
		}
	}
	return from
}

func (s *PostgresStore) UpdateRecordingStatus(ctx context.Context, id uuid.UUID, status string, opts ...RecordingUpdateOption) error {
	params := &recordingUpdateParams{}
	for _, opt := range opts {
		opt(params)
	}

	// The transition guard rides on the UPDATE itself so the check and the
	// write are one atomic statement. A concurrent reset between a read and
	// a write can therefore never land a stale status.
	sources := transitionSources(status)

	now := time.Now().UTC()
	query := `UPDATE recordings SET status = $2, updated_at = $3`
	args := []any{id, status, now}
	argIdx := 4

	appendArg := func(column string, value any) {
		query += fmt.Sprintf(", %s = $%d", column, argIdx)
		args = append(args, value)
		argIdx++
	}

	if params.Transcript != nil {
		appendArg("transcript", *params.Transcript)
		appendArg("transcript_confidence", *params.TranscriptConfidence)
	}
	if params.EntityType != nil {
		appendArg("entity_type", *params.EntityType)
	}
	if params.ExtractedFields != nil {
		appendArg("extracted_fields", params.ExtractedFields)
	}
	if params.RemoteRecordID != nil {
		appendArg("remote_record_id", *params.RemoteRecordID)
	}
	if params.SyncError != nil {
		appendArg("sync_error", *params.SyncError)
	} else if status != models.StatusFailed {
		// A stage success clears any error left over from a prior attempt.
		query += ", sync_error = NULL"
	}
	if params.CompletedAt != nil {
		appendArg("completed_at", *params.CompletedAt)
	}

	query += fmt.Sprintf(" WHERE id = $1 AND status = ANY($%d)", argIdx)
	args = append(args, sources)

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update recording status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Nothing matched: the recording is gone or sits in a state the
		// target is not reachable from. Read it back for the error.
		var currentStatus string
		err := s.pool.QueryRow(ctx, `SELECT status FROM recordings WHERE id = $1`, id).Scan(&currentStatus)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get recording status: %w", err)
		}
		return fmt.Errorf("invalid recording status transition: %s -> %s", currentStatus, status)
	}
	return nil
}

// ResetRecording puts a recording back at the start of the pipeline and
// clears its error and completion marker. Transcript and extraction data
// remain until the rerun overwrites them.
func (s *PostgresStore) ResetRecording(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE recordings SET status = $2, sync_error = NULL, completed_at = NULL, updated_at = NOW()
		 WHERE id = $1`, id, models.StatusUploaded)
	if err != nil {
		return fmt.Errorf("reset recording: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListStuckRecordings returns recordings sitting in a non-terminal state
// since before olderThan. Used by the startup sweep to recover runs lost
// to a process crash.
func (s *PostgresStore) ListStuckRecordings(ctx context.Context, olderThan time.Time) ([]*models.Recording, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+recordingColumns+` FROM recordings
		 WHERE status NOT IN ($1, $2) AND updated_at < $3 ORDER BY updated_at`,
		models.StatusSynced, models.StatusFailed, olderThan)
	if err != nil {
		return nil, fmt.Errorf("list stuck recordings: %w", err)
	}
	defer rows.Close()

	var recs []*models.Recording
	for rows.Next() {
		r, err := scanRecording(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recording: %w", err)
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
