package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	mw "github.com/mbreslin/voicesync/internal/api/middleware"
	"github.com/mbreslin/voicesync/internal/api/response"
	"github.com/mbreslin/voicesync/internal/store"
	"github.com/mbreslin/voicesync/pkg/models"
)

type mappingRequest struct {
	EntityName        string                           `json:"entity_name"`
	RemoteEntityName  string                           `json:"remote_entity_name"`
	FieldMappings     map[string]string                `json:"field_mappings"`
	ValidationRules   map[string]models.ValidationRule `json:"validation_rules"`
	DetectionKeywords []string                         `json:"detection_keywords"`
	Description       *string                          `json:"description"`
	IsActive          *bool                            `json:"is_active"`
}

func (req *mappingRequest) validate() string {
	if req.EntityName == "" {
		return "entity_name is required"
	}
	if req.RemoteEntityName == "" {
		return "remote_entity_name is required"
	}
	if len(req.FieldMappings) == 0 {
		return "field_mappings must not be empty"
	}
	return ""
}

// NewCreateMappingHandler returns the handler for POST /api/v1/schema-mappings.
func NewCreateMappingHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		var req mappingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if msg := req.validate(); msg != "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", msg, nil)
			return
		}

		active := true
		if req.IsActive != nil {
			active = *req.IsActive
		}
		m := &models.SchemaMapping{
			ID:                uuid.New(),
			TenantID:          tenantID,
			EntityName:        req.EntityName,
			RemoteEntityName:  req.RemoteEntityName,
			FieldMappings:     req.FieldMappings,
			ValidationRules:   req.ValidationRules,
			DetectionKeywords: req.DetectionKeywords,
			Description:       req.Description,
			IsActive:          active,
		}
		if err := st.CreateSchemaMapping(r.Context(), m); err != nil {
			if errors.Is(err, store.ErrDuplicateKey) {
				response.Error(w, http.StatusConflict, "CONFLICT",
					fmt.Sprintf("Schema mapping for entity '%s' already exists", req.EntityName), nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create schema mapping", nil)
			return
		}
		response.Created(w, m)
	}
}

// NewListMappingsHandler returns the handler for GET /api/v1/schema-mappings.
// Only active mappings for the caller's tenant are returned.
func NewListMappingsHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}
		mappings, err := st.ListActiveSchemaMappings(r.Context(), tenantID)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list schema mappings", nil)
			return
		}
		response.JSON(w, mappings)
	}
}

// NewGetMappingHandler returns the handler for GET /api/v1/schema-mappings/{mappingID}.
func NewGetMappingHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, ok := loadTenantMapping(w, r, st)
		if !ok {
			return
		}
		response.JSON(w, m)
	}
}

// NewUpdateMappingHandler returns the handler for PUT /api/v1/schema-mappings/{mappingID}.
func NewUpdateMappingHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, ok := loadTenantMapping(w, r, st)
		if !ok {
			return
		}

		var req mappingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.EntityName != "" {
			m.EntityName = req.EntityName
		}
		if req.RemoteEntityName != "" {
			m.RemoteEntityName = req.RemoteEntityName
		}
		if req.FieldMappings != nil {
			m.FieldMappings = req.FieldMappings
		}
		if req.ValidationRules != nil {
			m.ValidationRules = req.ValidationRules
		}
		if req.DetectionKeywords != nil {
			m.DetectionKeywords = req.DetectionKeywords
		}
		if req.Description != nil {
			m.Description = req.Description
		}
		if req.IsActive != nil {
			m.IsActive = *req.IsActive
		}

		if err := st.UpdateSchemaMapping(r.Context(), m); err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to update schema mapping", nil)
			return
		}
		response.JSON(w, m)
	}
}

// NewDeactivateMappingHandler returns the handler for
// DELETE /api/v1/schema-mappings/{mappingID}. Mappings are deactivated,
// never removed, so past recordings keep their context.
func NewDeactivateMappingHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}
		id, err := uuid.Parse(chi.URLParam(r, "mappingID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "mappingID must be a valid UUID", nil)
			return
		}
		if err := st.DeactivateSchemaMapping(r.Context(), id, tenantID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND",
					fmt.Sprintf("Schema mapping with id '%s' not found", id), nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to deactivate schema mapping", nil)
			return
		}
		response.JSON(w, map[string]any{"id": id, "is_active": false})
	}
}

func loadTenantMapping(w http.ResponseWriter, r *http.Request, st store.Store) (*models.SchemaMapping, bool) {
	tenantID, ok := mw.GetTenantID(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
		return nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "mappingID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "mappingID must be a valid UUID", nil)
		return nil, false
	}
	m, err := st.GetSchemaMapping(r.Context(), id, tenantID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "NOT_FOUND",
				fmt.Sprintf("Schema mapping with id '%s' not found", id), nil)
			return nil, false
		}
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load schema mapping", nil)
		return nil, false
	}
	return m, true
}
