package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mbreslin/voicesync/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	CreateTenant(ctx context.Context, tenant *models.Tenant) error
	GetTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	ListTenants(ctx context.Context) ([]*models.Tenant, error)
	UpdateTenant(ctx context.Context, tenant *models.Tenant) error

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error

	CreateSchemaMapping(ctx context.Context, mapping *models.SchemaMapping) error
	GetSchemaMapping(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.SchemaMapping, error)
	ListActiveSchemaMappings(ctx context.Context, tenantID uuid.UUID) ([]*models.SchemaMapping, error)
	UpdateSchemaMapping(ctx context.Context, mapping *models.SchemaMapping) error
	DeactivateSchemaMapping(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error

	CreateRecording(ctx context.Context, rec *models.Recording) error
	GetRecording(ctx context.Context, id uuid.UUID) (*models.Recording, error)
	ListRecordings(ctx context.Context, filter RecordingFilter) ([]*models.Recording, int, error)
	UpdateRecordingStatus(ctx context.Context, id uuid.UUID, status string, opts ...RecordingUpdateOption) error
	ResetRecording(ctx context.Context, id uuid.UUID) error
	ListStuckRecordings(ctx context.Context, olderThan time.Time) ([]*models.Recording, error)
}

// RecordingFilter narrows and paginates ListRecordings. A zero TenantID
// means all tenants.
type RecordingFilter struct {
	TenantID uuid.UUID
	Status   string
	Offset   int
	Limit    int
}

type recordingUpdateParams struct {
	Transcript           *string
	TranscriptConfidence *string
	EntityType           *string
	ExtractedFields      map[string]any
	RemoteRecordID       *string
	SyncError            *string
	CompletedAt          *time.Time
}

type RecordingUpdateOption func(*recordingUpdateParams)

// WithTranscript stores the transcription output alongside the status change.
func WithTranscript(text, confidence string) RecordingUpdateOption {
	return func(p *recordingUpdateParams) {
		p.Transcript = &text
		p.TranscriptConfidence = &confidence
	}
}

// WithExtraction stores the extraction output alongside the status change.
// entityType may be empty when extraction could not classify the transcript;
// the raw fields are still kept for diagnostics.
func WithExtraction(entityType string, fields map[string]any) RecordingUpdateOption {
	return func(p *recordingUpdateParams) {
		if entityType != "" {
			p.EntityType = &entityType
		}
		p.ExtractedFields = fields
	}
}

func WithRemoteRecordID(id string) RecordingUpdateOption {
	return func(p *recordingUpdateParams) {
		p.RemoteRecordID = &id
	}
}

func WithSyncError(msg string) RecordingUpdateOption {
	return func(p *recordingUpdateParams) {
		p.SyncError = &msg
	}
}

func WithCompletedAt(t time.Time) RecordingUpdateOption {
	return func(p *recordingUpdateParams) {
		p.CompletedAt = &t
	}
}

// ApplyUpdates applies update options to a recording in place, mirroring
// what the SQL UPDATE would write. In-memory fakes use it so tests see
// the same field changes the real store produces.
func ApplyUpdates(rec *models.Recording, opts ...RecordingUpdateOption) {
	var p recordingUpdateParams
	for _, opt := range opts {
		opt(&p)
	}
	if p.Transcript != nil {
		rec.Transcript = p.Transcript
	}
	if p.TranscriptConfidence != nil {
		rec.TranscriptConfidence = p.TranscriptConfidence
	}
	if p.EntityType != nil {
		rec.EntityType = p.EntityType
	}
	if p.ExtractedFields != nil {
		rec.ExtractedFields = p.ExtractedFields
	}
	if p.RemoteRecordID != nil {
		rec.RemoteRecordID = p.RemoteRecordID
	}
	if p.SyncError != nil {
		rec.SyncError = p.SyncError
	}
	if p.CompletedAt != nil {
		rec.CompletedAt = p.CompletedAt
	}
}
