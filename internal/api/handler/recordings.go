// Package handler implements the HTTP endpoints. Each handler declares
// the narrow interface it depends on so tests can stub exactly that.
package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	mw "github.com/mbreslin/voicesync/internal/api/middleware"
	"github.com/mbreslin/voicesync/internal/api/response"
	"github.com/mbreslin/voicesync/internal/blob"
	"github.com/mbreslin/voicesync/internal/pipeline"
	"github.com/mbreslin/voicesync/internal/store"
	"github.com/mbreslin/voicesync/pkg/models"
)

const (
	maxUploadBytes   = 1 << 30 // 1GB, matches the storage layer's ceiling
	defaultListLimit = 100
	maxListLimit     = 1000
)

// Enqueuer hands accepted recordings to the pipeline.
type Enqueuer interface {
	Enqueue(recordingID uuid.UUID) error
}

// ProcessingChecker reports whether a recording is locked by a pipeline
// worker right now.
type ProcessingChecker interface {
	IsProcessing(ctx context.Context, recordingID uuid.UUID) (bool, error)
}

// NewUploadRecordingHandler returns the handler for
// POST /api/v1/recordings/upload. The audio lands in blob storage, the
// recording row is created as uploaded, and the pipeline picks it up.
func NewUploadRecordingHandler(st store.Store, blobs blob.Store, queue Enqueuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		tenant, err := st.GetTenant(r.Context(), tenantID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND",
					fmt.Sprintf("Client with id '%s' not found", tenantID), nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load client", nil)
			return
		}
		if !tenant.IsActive {
			response.Error(w, http.StatusBadRequest, "CLIENT_INACTIVE",
				fmt.Sprintf("Client '%s' is not active", tenant.Name), nil)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		file, header, err := r.FormFile("file")
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "file is required", nil)
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Failed to read uploaded file", nil)
			return
		}
		contentType := header.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/octet-stream"
		}

		ref, err := blobs.Save(r.Context(), tenantID.String(), header.Filename, data, contentType)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "STORAGE_ERROR",
				fmt.Sprintf("Error uploading recording: %v", err), nil)
			return
		}

		rec := &models.Recording{
			ID:          uuid.New(),
			TenantID:    tenantID,
			Filename:    header.Filename,
			AudioRef:    ref,
			FileSize:    int64(len(data)),
			ContentType: contentType,
			Status:      models.StatusUploaded,
		}
		if err := st.CreateRecording(r.Context(), rec); err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				fmt.Sprintf("Error uploading recording: %v", err), nil)
			return
		}

		// A full queue is not fatal. The recording stays in uploaded and
		// the stuck-recording sweep requeues it.
		if err := queue.Enqueue(rec.ID); err != nil {
			response.Accepted(w, map[string]any{
				"recording_id": rec.ID,
				"status":       rec.Status,
				"message":      "Recording uploaded; processing will start when capacity frees up",
			})
			return
		}

		response.Created(w, map[string]any{
			"recording_id": rec.ID,
			"status":       rec.Status,
			"message":      "Recording uploaded successfully and queued for processing",
		})
	}
}

// NewListRecordingsHandler returns the handler for GET /api/v1/recordings.
// Results are tenant scoped and ordered newest first.
func NewListRecordingsHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		offset := queryInt(r, "offset", 0)
		if offset < 0 {
			offset = 0
		}
		limit := queryInt(r, "limit", defaultListLimit)
		if limit < 1 {
			limit = defaultListLimit
		}
		if limit > maxListLimit {
			limit = maxListLimit
		}

		filter := store.RecordingFilter{
			TenantID: tenantID,
			Status:   r.URL.Query().Get("status"),
			Offset:   offset,
			Limit:    limit,
		}
		recs, total, err := st.ListRecordings(r.Context(), filter)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list recordings", nil)
			return
		}

		response.Collection(w, recs, response.PaginationMeta{
			Offset: offset,
			Limit:  limit,
			Total:  total,
		})
	}
}

// NewGetRecordingHandler returns the handler for
// GET /api/v1/recordings/{recordingID}. Recordings of other tenants read
// as not found.
func NewGetRecordingHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, ok := loadTenantRecording(w, r, st)
		if !ok {
			return
		}
		response.JSON(w, rec)
	}
}

// NewReprocessRecordingHandler returns the handler for
// POST /api/v1/recordings/{recordingID}/reprocess. The recording is reset
// to uploaded and queued again; a recording currently held by a worker is
// rejected with a conflict.
func NewReprocessRecordingHandler(st store.Store, locks ProcessingChecker, queue Enqueuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, ok := loadTenantRecording(w, r, st)
		if !ok {
			return
		}

		busy, err := locks.IsProcessing(r.Context(), rec.ID)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to check processing state", nil)
			return
		}
		if busy {
			response.Error(w, http.StatusConflict, "CONFLICT",
				"Recording is currently being processed", nil)
			return
		}

		if err := st.ResetRecording(r.Context(), rec.ID); err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to reset recording", nil)
			return
		}
		if err := queue.Enqueue(rec.ID); err != nil {
			if errors.Is(err, pipeline.ErrQueueFull) {
				response.Accepted(w, map[string]any{
					"recording_id": rec.ID,
					"status":       models.StatusUploaded,
					"message":      "Recording reset; processing will start when capacity frees up",
				})
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to queue recording", nil)
			return
		}

		response.Accepted(w, map[string]any{
			"recording_id": rec.ID,
			"status":       models.StatusUploaded,
			"message":      "Recording queued for reprocessing",
		})
	}
}

func loadTenantRecording(w http.ResponseWriter, r *http.Request, st store.Store) (*models.Recording, bool) {
	tenantID, ok := mw.GetTenantID(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
		return nil, false
	}

	recordingID, err := uuid.Parse(chi.URLParam(r, "recordingID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "recordingID must be a valid UUID", nil)
		return nil, false
	}

	rec, err := st.GetRecording(r.Context(), recordingID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "NOT_FOUND",
				fmt.Sprintf("Recording with id '%s' not found", recordingID), nil)
			return nil, false
		}
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load recording", nil)
		return nil, false
	}
	if rec.TenantID != tenantID {
		response.Error(w, http.StatusNotFound, "NOT_FOUND",
			fmt.Sprintf("Recording with id '%s' not found", recordingID), nil)
		return nil, false
	}
	return rec, true
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
