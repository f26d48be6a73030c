package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbreslin/voicesync/internal/api/handler"
	"github.com/mbreslin/voicesync/pkg/models"
)

func seedMapping(t *testing.T, ms *mockStore, tenantID uuid.UUID) *models.SchemaMapping {
	t.Helper()
	sm := &models.SchemaMapping{
		ID:               uuid.New(),
		TenantID:         tenantID,
		EntityName:       "animal",
		RemoteEntityName: "bt_animals",
		FieldMappings:    map[string]string{"ear_tag": "bt_ear_tag"},
		IsActive:         true,
	}
	require.NoError(t, ms.CreateSchemaMapping(t.Context(), sm))
	return sm
}

func TestCreateMapping_Success(t *testing.T) {
	ms := newMockStore()
	tenantID := uuid.New()

	h := handler.NewCreateMappingHandler(ms)
	router := testRouter(tenantID, "POST", "/api/v1/schema-mappings", h)

	payload := map[string]any{
		"entity_name":        "animal",
		"remote_entity_name": "bt_animals",
		"field_mappings":     map[string]string{"ear_tag": "bt_ear_tag", "sex": "bt_sex"},
		"validation_rules": map[string]any{
			"ear_tag": map[string]any{"type": "string", "required": true},
		},
		"detection_keywords": []string{"heifer", "bull"},
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/api/v1/schema-mappings", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	data := decodeData(t, w)
	assert.Equal(t, "animal", data["entity_name"])
	assert.Equal(t, true, data["is_active"])
	assert.Len(t, ms.mappings, 1)
}

func TestCreateMapping_MissingEntityName(t *testing.T) {
	ms := newMockStore()

	h := handler.NewCreateMappingHandler(ms)
	router := testRouter(uuid.New(), "POST", "/api/v1/schema-mappings", h)

	req := httptest.NewRequest("POST", "/api/v1/schema-mappings",
		bytes.NewBufferString(`{"remote_entity_name":"bt_animals","field_mappings":{"a":"b"}}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "entity_name is required")
}

func TestCreateMapping_EmptyFieldMappings(t *testing.T) {
	ms := newMockStore()

	h := handler.NewCreateMappingHandler(ms)
	router := testRouter(uuid.New(), "POST", "/api/v1/schema-mappings", h)

	req := httptest.NewRequest("POST", "/api/v1/schema-mappings",
		bytes.NewBufferString(`{"entity_name":"animal","remote_entity_name":"bt_animals"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "field_mappings must not be empty")
}

func TestUpdateMapping_PartialUpdate(t *testing.T) {
	ms := newMockStore()
	tenantID := uuid.New()
	sm := seedMapping(t, ms, tenantID)

	h := handler.NewUpdateMappingHandler(ms)
	router := testRouter(tenantID, "PUT", "/api/v1/schema-mappings/{mappingID}", h)

	req := httptest.NewRequest("PUT", "/api/v1/schema-mappings/"+sm.ID.String(),
		bytes.NewBufferString(`{"remote_entity_name":"bt_livestock"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "bt_livestock", sm.RemoteEntityName)
	assert.Equal(t, "animal", sm.EntityName, "untouched fields keep their values")
}

func TestDeactivateMapping(t *testing.T) {
	ms := newMockStore()
	tenantID := uuid.New()
	sm := seedMapping(t, ms, tenantID)

	h := handler.NewDeactivateMappingHandler(ms)
	router := testRouter(tenantID, "DELETE", "/api/v1/schema-mappings/{mappingID}", h)

	req := httptest.NewRequest("DELETE", "/api/v1/schema-mappings/"+sm.ID.String(), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, sm.IsActive)
}

func TestGetMapping_OtherTenantReadsAsNotFound(t *testing.T) {
	ms := newMockStore()
	sm := seedMapping(t, ms, uuid.New())

	h := handler.NewGetMappingHandler(ms)
	router := testRouter(uuid.New(), "GET", "/api/v1/schema-mappings/{mappingID}", h)

	req := httptest.NewRequest("GET", "/api/v1/schema-mappings/"+sm.ID.String(), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
