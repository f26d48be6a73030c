package models

import (
	"time"

	"github.com/google/uuid"
)

// ValidationRule declares constraints on one extracted field.
// Type mismatches and missing required values are hard errors; a pattern
// mismatch is only a warning, because extraction from free speech is noisy.
type ValidationRule struct {
	Type     string `json:"type,omitempty"`
	Required bool   `json:"required,omitempty"`
	Unique   bool   `json:"unique,omitempty"`
	Pattern  string `json:"pattern,omitempty"`
}

// SchemaMapping is a tenant's translation table for one entity type:
// which extracted field names map to which CRM field names, what the
// values must look like, and which keywords hint at this entity in a
// transcript.
type SchemaMapping struct {
	ID       uuid.UUID `db:"id"        json:"id"`
	TenantID uuid.UUID `db:"tenant_id" json:"tenant_id"`

	EntityName       string `db:"entity_name"        json:"entity_name"`
	RemoteEntityName string `db:"remote_entity_name" json:"remote_entity_name"`

	FieldMappings     map[string]string         `db:"field_mappings"     json:"field_mappings"`
	ValidationRules   map[string]ValidationRule `db:"validation_rules"   json:"validation_rules"`
	DetectionKeywords []string                  `db:"detection_keywords" json:"detection_keywords"`

	IsActive    bool    `db:"is_active"   json:"is_active"`
	Description *string `db:"description" json:"description,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
