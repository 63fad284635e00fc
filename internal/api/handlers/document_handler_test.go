package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kelechi-eze/MedVault/internal/config"
	"github.com/kelechi-eze/MedVault/internal/core"
	"github.com/kelechi-eze/MedVault/internal/core/enrichment_engine"
	"github.com/kelechi-eze/MedVault/internal/core/extraction"
	"github.com/kelechi-eze/MedVault/internal/models"
)

type memStore struct {
	mu      sync.Mutex
	records map[string]*models.ProcessingRecord
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]*models.ProcessingRecord)}
}

func (s *memStore) PutRecord(ctx context.Context, rec *models.ProcessingRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.records[rec.ID] = &cp
	return "records/" + rec.ID, nil
}

func (s *memStore) Exists(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[id]
	return ok, nil
}

func (s *memStore) GetRecord(ctx context.Context, id string) (*models.ProcessingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[id], nil
}

func (s *memStore) ListByUser(ctx context.Context, userID string) ([]models.ProcessingRecord, error) {
	return nil, nil
}

func (s *memStore) DeleteRecord(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

type fakeObjects struct {
	mu      sync.Mutex
	lastKey string
}

func (o *fakeObjects) UploadFile(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lastKey = key
	return "https://" + bucket + ".s3.test/" + key, nil
}

func (o *fakeObjects) DeleteFile(ctx context.Context, bucket, key string) error { return nil }

func (o *fakeObjects) GetFile(ctx context.Context, bucket, key string) ([]byte, error) {
	return nil, nil
}

func (o *fakeObjects) GetObjectReader(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	return nil, nil
}

type stubDetector struct {
	block chan struct{} // non-nil -> wait until closed or ctx done
}

func (d *stubDetector) Detect(ctx context.Context, text string) (*core.Detection, error) {
	if d.block != nil {
		select {
		case <-d.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &core.Detection{IsMedical: false, Confidence: 0.9}, nil
}

func newTestHandler(det *stubDetector) (*DocumentHandler, *fakeObjects, *enrichment_engine.Supervisor) {
	store := newMemStore()
	objects := &fakeObjects{}
	idx := enrichment_engine.NewIndex(store.Exists, nil)
	uploader := enrichment_engine.NewUploader(store, idx, nil)

	var sup *enrichment_engine.Supervisor
	orch := enrichment_engine.NewOrchestrator(
		extraction.NewRouter(nil, nil, nil),
		det,
		nil, nil, nil, nil,
		enrichment_engine.Config{},
		func(rec *models.ProcessingRecord) { sup.Publish(rec) },
		nil,
	)
	sup = enrichment_engine.NewSupervisor(idx, orch, uploader, 3, 4, nil)

	cfg := &config.Config{BucketName: "medvault-test"}
	return NewDocumentHandler(store, objects, sup, cfg), objects, sup
}

func multipartUpload(t *testing.T, userID, filename, body, lastModified string) *http.Request {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	if userID != "" {
		require.NoError(t, mw.WriteField("user_id", userID))
	}
	if lastModified != "" {
		require.NoError(t, mw.WriteField("last_modified", lastModified))
	}

	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	hdr.Set("Content-Type", "text/plain")
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/documents", buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadKeysObjectByRecordID(t *testing.T) {
	handler, objects, sup := newTestHandler(&stubDetector{})

	rr := httptest.NewRecorder()
	handler.UploadDocument(rr, multipartUpload(t, "user-1", "labs.txt", "Hemoglobin 13.8", ""))
	require.Equal(t, http.StatusAccepted, rr.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["id"])

	// The object key and storage URL carry the record id end to end.
	assert.Contains(t, objects.lastKey, resp["id"])
	assert.Contains(t, resp["storage_url"], resp["id"])
	assert.Contains(t, objects.lastKey, "users/user-1/")

	sup.Wait()
	rec, ok := sup.Record(resp["id"])
	require.True(t, ok)
	assert.Equal(t, resp["storage_url"], rec.StorageURL)
}

func TestUploadRequiresUserID(t *testing.T) {
	handler, _, _ := newTestHandler(&stubDetector{})

	rr := httptest.NewRecorder()
	handler.UploadDocument(rr, multipartUpload(t, "", "labs.txt", "text", ""))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUploadDuplicateConflicts(t *testing.T) {
	block := make(chan struct{})
	handler, _, sup := newTestHandler(&stubDetector{block: block})

	// A fixed last_modified pins the fingerprint across requests; the
	// blocked detector keeps the first operation in flight.
	const stamp = "2025-06-02T10:00:00Z"

	rr := httptest.NewRecorder()
	handler.UploadDocument(rr, multipartUpload(t, "user-1", "labs.txt", "Hemoglobin 13.8", stamp))
	require.Equal(t, http.StatusAccepted, rr.Code)

	rr = httptest.NewRecorder()
	handler.UploadDocument(rr, multipartUpload(t, "user-1", "labs.txt", "Hemoglobin 13.8", stamp))
	assert.Equal(t, http.StatusConflict, rr.Code)

	close(block)
	sup.Wait()
}
