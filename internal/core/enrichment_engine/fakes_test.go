package enrichment_engine

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/kelechi-eze/MedVault/internal/core"
	"github.com/kelechi-eze/MedVault/internal/core/extraction"
	"github.com/kelechi-eze/MedVault/internal/models"
)

// callLog records stage invocation order across fakes.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(name string) {
	l.mu.Lock()
	l.calls = append(l.calls, name)
	l.mu.Unlock()
}

func (l *callLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func (l *callLog) index(name string) int {
	for i, c := range l.list() {
		if c == name {
			return i
		}
	}
	return -1
}

type fakeDetector struct {
	log   *callLog
	det   *core.Detection
	err   error
	block chan struct{} // non-nil -> wait until closed or ctx done
}

func (f *fakeDetector) Detect(ctx context.Context, text string) (*core.Detection, error) {
	if f.log != nil {
		f.log.add("detect")
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.det, f.err
}

const validBundle = `{"resourceType":"Bundle","type":"collection","entry":[` +
	`{"resource":{"resourceType":"Observation","code":{"text":"Hemoglobin"}}},` +
	`{"resource":{"resourceType":"Observation","code":{"text":"Hematocrit"}}},` +
	`{"resource":{"resourceType":"DiagnosticReport","status":"final"}}]}`

type fakeConverter struct {
	log    *callLog
	bundle string
	err    error
	hook   func(ctx context.Context) // runs before returning
}

func (f *fakeConverter) Convert(ctx context.Context, text string) (json.RawMessage, error) {
	if f.log != nil {
		f.log.add("convert")
	}
	if f.hook != nil {
		f.hook(ctx)
	}
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(f.bundle), nil
}

type fakeDeriver struct {
	log    *callLog
	fields *models.DerivedFields
	err    error
}

func (f *fakeDeriver) Derive(ctx context.Context, bundle json.RawMessage, contextText string) (*models.DerivedFields, error) {
	if f.log != nil {
		f.log.add("derive")
	}
	if f.err != nil {
		return nil, f.err
	}
	fields := *f.fields
	return &fields, nil
}

type fakeNarrator struct {
	log  *callLog
	text string
	err  error
}

func (f *fakeNarrator) Narrate(ctx context.Context, bundle json.RawMessage, fields *models.DerivedFields, contextText string) (string, error) {
	if f.log != nil {
		f.log.add("narrate")
	}
	return f.text, f.err
}

type fakeEncryptor struct {
	err error
}

func (f *fakeEncryptor) Encrypt(payload []byte, key string) (*models.Envelope, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Envelope{Ciphertext: "ct", IV: "iv", AuthTag: "tag", Salt: "salt"}, nil
}

func (f *fakeEncryptor) Decrypt(env *models.Envelope, key string) ([]byte, error) {
	return nil, nil
}

// fakeStore is an in-memory record store that can fail a configured
// number of times before accepting writes.
type fakeStore struct {
	mu       sync.Mutex
	failures int
	puts     int
	records  map[string]*models.ProcessingRecord
	failErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]*models.ProcessingRecord)}
}

func (s *fakeStore) PutRecord(ctx context.Context, rec *models.ProcessingRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts++
	if s.puts <= s.failures {
		return "", s.failErr
	}
	s.records[rec.ID] = cloneRecord(rec)
	return "records/" + rec.ID, nil
}

func (s *fakeStore) Exists(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[id]
	return ok, nil
}

func (s *fakeStore) GetRecord(ctx context.Context, id string) (*models.ProcessingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[id], nil
}

func (s *fakeStore) ListByUser(ctx context.Context, userID string) ([]models.ProcessingRecord, error) {
	return nil, nil
}

func (s *fakeStore) DeleteRecord(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

func textDoc(filename, body string) *models.SourceDocument {
	return &models.SourceDocument{
		Content:      []byte(body),
		Filename:     filename,
		MediaType:    "text/plain",
		Size:         int64(len(body)),
		LastModified: time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC),
	}
}

// textRouter routes only text/plain, enough for engine tests.
func textRouter() *extraction.Router {
	return extraction.NewRouter(nil, nil, nil)
}
