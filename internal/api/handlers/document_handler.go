package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kelechi-eze/MedVault/internal/config"
	"github.com/kelechi-eze/MedVault/internal/core"
	"github.com/kelechi-eze/MedVault/internal/core/enrichment_engine"
	objectclient "github.com/kelechi-eze/MedVault/internal/core/object-client"
	"github.com/kelechi-eze/MedVault/internal/models"
)

const maxUploadBytes = 52 << 20

type DocumentHandler struct {
	store        core.RecordStore
	objectclient core.ObjectClient
	supervisor   *enrichment_engine.Supervisor
	cfg          *config.Config
}

func NewDocumentHandler(store core.RecordStore, objectclient core.ObjectClient, sup *enrichment_engine.Supervisor, cfg *config.Config) *DocumentHandler {
	return &DocumentHandler{store: store, objectclient: objectclient, supervisor: sup, cfg: cfg}
}

// UploadDocument stores the raw file in object storage and submits it to
// the pipeline. Responds 202 with the record id; processing continues in
// the background.
func (h *DocumentHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}

	userID := r.FormValue("user_id")
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "invalid file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		http.Error(w, "read file: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(content) > maxUploadBytes {
		http.Error(w, "file too large", http.StatusRequestEntityTooLarge)
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	lastModified := time.Now().UTC()
	if v := r.FormValue("last_modified"); v != "" {
		if t, perr := time.Parse(time.RFC3339, v); perr == nil {
			lastModified = t
		}
	}

	doc := &models.SourceDocument{
		Content:      content,
		Filename:     filepath.Base(header.Filename),
		MediaType:    contentType,
		Size:         int64(len(content)),
		LastModified: lastModified,
	}

	uploadCtx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	// The record id is minted here so the object key and the pipeline
	// record stay correlated. The raw file lands in object storage
	// before the pipeline sees it.
	recordID := uuid.NewString()
	key := objectclient.DocumentKey(userID, recordID, doc.Filename)
	url, err := h.objectclient.UploadFile(uploadCtx, h.cfg.BucketName, key, content, contentType)
	if err != nil {
		http.Error(w, "upload failed: "+err.Error(), http.StatusBadGateway)
		return
	}

	id, err := h.supervisor.Submit(r.Context(), userID, recordID, doc, url)
	if err != nil {
		if errors.Is(err, core.ErrDuplicateDocument) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"id":          id,
		"status":      string(models.StatusReady),
		"storage_url": url,
	})
}

// GetDocument returns the latest in-memory snapshot, falling back to the
// durable store for records no longer tracked.
func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if rec, ok := h.supervisor.Record(id); ok {
		writeJSON(w, http.StatusOK, rec)
		return
	}

	rec, err := h.store.GetRecord(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if rec == nil {
		http.Error(w, "record not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// ListDocuments returns all persisted records for a user.
func (h *DocumentHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	records, err := h.store.ListByUser(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// CancelDocument signals cancellation; the operation stops at its next
// stage boundary.
func (h *DocumentHandler) CancelDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.supervisor.Record(id); !ok {
		http.Error(w, "record not found", http.StatusNotFound)
		return
	}
	h.supervisor.Cancel(id)
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "cancelled": "true"})
}

// DeleteDocument removes a record from tracking and from the durable
// store.
func (h *DocumentHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.supervisor.Remove(id)
	if err := h.store.DeleteRecord(r.Context(), id); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ForceConvert re-runs conversion for a record that stopped short of it.
func (h *DocumentHandler) ForceConvert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := h.supervisor.ForceConvert(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// PipelineStats aggregates record counts by status.
func (h *DocumentHandler) PipelineStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.supervisor.Stats())
}

// ResetPipeline cancels all in-flight operations and clears tracking
// state. The durable store is untouched.
func (h *DocumentHandler) ResetPipeline(w http.ResponseWriter, r *http.Request) {
	h.supervisor.Reset()
	writeJSON(w, http.StatusOK, map[string]string{"reset": "true"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
