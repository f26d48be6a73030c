package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mbreslin/voicesync/internal/api/response"
	"github.com/mbreslin/voicesync/internal/store"
	"github.com/mbreslin/voicesync/pkg/models"
)

type tenantRequest struct {
	Name            string `json:"name"`
	CRMBaseURL      string `json:"crm_base_url"`
	CRMClientID     string `json:"crm_client_id"`
	CRMClientSecret string `json:"crm_client_secret"`
	CRMDirectoryID  string `json:"crm_directory_id"`
	IsActive        *bool  `json:"is_active"`
}

// NewCreateTenantHandler returns the handler for POST /api/v1/admin/tenants.
func NewCreateTenantHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req tenantRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.Name == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "name is required", nil)
			return
		}

		active := true
		if req.IsActive != nil {
			active = *req.IsActive
		}
		tenant := &models.Tenant{
			ID:              uuid.New(),
			Name:            req.Name,
			CRMBaseURL:      req.CRMBaseURL,
			CRMClientID:     req.CRMClientID,
			CRMClientSecret: req.CRMClientSecret,
			CRMDirectoryID:  req.CRMDirectoryID,
			IsActive:        active,
		}
		if err := st.CreateTenant(r.Context(), tenant); err != nil {
			if errors.Is(err, store.ErrDuplicateKey) {
				response.Error(w, http.StatusConflict, "CONFLICT",
					fmt.Sprintf("Client with name '%s' already exists", req.Name), nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create client", nil)
			return
		}
		response.Created(w, tenant)
	}
}

// NewListTenantsHandler returns the handler for GET /api/v1/admin/tenants.
func NewListTenantsHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenants, err := st.ListTenants(r.Context())
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list clients", nil)
			return
		}
		response.JSON(w, tenants)
	}
}

// NewGetTenantHandler returns the handler for GET /api/v1/admin/tenants/{tenantID}.
func NewGetTenantHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "tenantID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "tenantID must be a valid UUID", nil)
			return
		}
		tenant, err := st.GetTenant(r.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND",
					fmt.Sprintf("Client with id '%s' not found", id), nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load client", nil)
			return
		}
		response.JSON(w, tenant)
	}
}

// NewUpdateTenantHandler returns the handler for PUT /api/v1/admin/tenants/{tenantID}.
// Only fields present in the body change; an omitted secret keeps the
// stored one.
func NewUpdateTenantHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "tenantID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "tenantID must be a valid UUID", nil)
			return
		}
		tenant, err := st.GetTenant(r.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND",
					fmt.Sprintf("Client with id '%s' not found", id), nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load client", nil)
			return
		}

		var req tenantRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.Name != "" {
			tenant.Name = req.Name
		}
		if req.CRMBaseURL != "" {
			tenant.CRMBaseURL = req.CRMBaseURL
		}
		if req.CRMClientID != "" {
			tenant.CRMClientID = req.CRMClientID
		}
		if req.CRMClientSecret != "" {
			tenant.CRMClientSecret = req.CRMClientSecret
		}
		if req.CRMDirectoryID != "" {
			tenant.CRMDirectoryID = req.CRMDirectoryID
		}
		if req.IsActive != nil {
			tenant.IsActive = *req.IsActive
		}

		if err := st.UpdateTenant(r.Context(), tenant); err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to update client", nil)
			return
		}
		response.JSON(w, tenant)
	}
}
