package models

import (
	"time"

	"github.com/google/uuid"
)

// Tenant represents a client organization. Every recording and schema
// mapping belongs to a tenant, and the tenant's CRM credentials determine
// where synced records land.
type Tenant struct {
	ID   uuid.UUID `db:"id"   json:"id"`
	Name string    `db:"name" json:"name"`

	CRMBaseURL      string `db:"crm_base_url"      json:"crm_base_url"`
	CRMClientID     string `db:"crm_client_id"     json:"crm_client_id"`
	CRMClientSecret string `db:"crm_client_secret" json:"-"`
	CRMDirectoryID  string `db:"crm_directory_id"  json:"crm_directory_id"`

	IsActive bool `db:"is_active" json:"is_active"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
