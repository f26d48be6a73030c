// Package models contains shared data models used across the Voicesync codebase.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Recording statuses. A recording advances strictly forward through the
// pipeline; failed is terminal until an explicit reprocess resets it.
const (
	StatusUploaded     = "uploaded"
	StatusTranscribing = "transcribing"
	StatusTranscribed  = "transcribed"
	StatusProcessing   = "processing"
	StatusSynced       = "synced"
	StatusFailed       = "failed"
)

// Transcript confidence levels reported by the transcription service.
const (
	ConfidenceLow    = "LOW"
	ConfidenceMedium = "MEDIUM"
	ConfidenceHigh   = "HIGH"
)

// Recording tracks one voice recording through the processing pipeline.
// The API returns its id on upload; clients poll GET /api/v1/recordings/{id}
// until status is synced or failed.
type Recording struct {
	ID       uuid.UUID `db:"id"        json:"id"`
	TenantID uuid.UUID `db:"tenant_id" json:"tenant_id"`

	Filename    string `db:"filename"     json:"filename"`
	AudioRef    string `db:"audio_ref"    json:"audio_ref"`
	FileSize    int64  `db:"file_size"    json:"file_size"`
	ContentType string `db:"content_type" json:"content_type"`

	Status string `db:"status" json:"status"`

	Transcript           *string `db:"transcript"            json:"transcript,omitempty"`
	TranscriptConfidence *string `db:"transcript_confidence" json:"transcript_confidence,omitempty"`

	EntityType      *string        `db:"entity_type"      json:"entity_type,omitempty"`
	ExtractedFields map[string]any `db:"extracted_fields" json:"extracted_fields,omitempty"`

	RemoteRecordID *string `db:"remote_record_id" json:"remote_record_id,omitempty"`
	SyncError      *string `db:"sync_error"       json:"sync_error,omitempty"`

	CreatedAt   time.Time  `db:"created_at"   json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"   json:"updated_at"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// Terminal reports whether the recording has reached a state from which
// only an explicit reprocess can move it.
func (r *Recording) Terminal() bool {
	return r.Status == StatusSynced || r.Status == StatusFailed
}
