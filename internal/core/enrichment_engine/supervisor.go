package enrichment_engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/kelechi-eze/MedVault/internal/core"
	"github.com/kelechi-eze/MedVault/internal/models"
)

// DefaultWorkers caps how many pipeline operations run at once.
const DefaultWorkers = 4

// Stats aggregates lifecycle status across all tracked records.
type Stats struct {
	Total    int                         `json:"total"`
	ByStatus map[models.RecordStatus]int `json:"by_status"`
}

// Supervisor owns the collection of in-flight per-file operations: one
// cancellation token per active id, fan-out to the orchestrator, status
// snapshots for observers. Cancel and Remove are safe at any point of a
// record's lifecycle and never leak dedup locks.
type Supervisor struct {
	index      *Index
	orch       *Orchestrator
	uploader   *Uploader
	maxRetries int
	sem        *semaphore.Weighted
	logger     *slog.Logger

	mu      sync.RWMutex
	cancels map[string]context.CancelFunc
	records map[string]*models.ProcessingRecord // committed snapshots

	wg sync.WaitGroup
}

func NewSupervisor(index *Index, orch *Orchestrator, uploader *Uploader, maxRetries, workers int, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	s := &Supervisor{
		index:      index,
		orch:       orch,
		uploader:   uploader,
		maxRetries: maxRetries,
		sem:        semaphore.NewWeighted(int64(workers)),
		logger:     logger,
		cancels:    make(map[string]context.CancelFunc),
		records:    make(map[string]*models.ProcessingRecord),
	}
	return s
}

// Publish stores a committed snapshot of a record. Wired as the
// orchestrator's publish callback; the orchestrator stays the single
// writer of the live record while observers read clones. Update-only:
// a late publish from a draining operation must not resurrect an id
// that Remove or Reset already dropped.
func (s *Supervisor) Publish(rec *models.ProcessingRecord) {
	s.mu.Lock()
	if _, tracked := s.records[rec.ID]; tracked {
		s.records[rec.ID] = cloneRecord(rec)
	}
	s.mu.Unlock()
}

// Submit admits a document and starts its pipeline operation. An empty
// id lets the supervisor mint one; callers that stage the raw file in
// object storage first pass the id they keyed it under. The operation
// runs detached from the caller's context; use Cancel to stop it.
// Returns ErrDuplicateDocument when the dedup index rejects.
func (s *Supervisor) Submit(ctx context.Context, userID, id string, doc *models.SourceDocument, storageURL string) (string, error) {
	if id == "" {
		id = uuid.NewString()
	}
	fingerprint := models.Fingerprint(doc)

	ok, reason := s.index.AdmitAndLock(ctx, fingerprint, id)
	if !ok {
		return "", fmt.Errorf("%w: %s (%s)", core.ErrDuplicateDocument, reason, doc.Filename)
	}

	now := time.Now().UTC()
	rec := &models.ProcessingRecord{
		ID:          id,
		UserID:      userID,
		Fingerprint: fingerprint,
		Filename:    doc.Filename,
		MediaType:   doc.MediaType,
		Status:      models.StatusReady,
		StorageURL:  storageURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	opCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancels[id] = cancel
	s.records[id] = cloneRecord(rec)
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(opCtx, rec, doc)

	s.logger.Info("document admitted", "id", id, "filename", doc.Filename, "fingerprint", fingerprint)
	return id, nil
}

func (s *Supervisor) run(ctx context.Context, rec *models.ProcessingRecord, doc *models.SourceDocument) {
	defer s.wg.Done()
	defer s.forget(rec.ID)

	// Cancelled while queued behind the worker cap.
	if err := s.sem.Acquire(ctx, 1); err != nil {
		s.index.Release(rec.ID, rec.Fingerprint)
		return
	}
	defer s.sem.Release(1)

	if err := s.orch.Process(ctx, rec, doc); err != nil {
		if errors.Is(err, context.Canceled) {
			// Normal termination: keep the last committed state.
			s.logger.Info("operation cancelled", "id", rec.ID)
		}
		s.index.Release(rec.ID, rec.Fingerprint)
		return
	}

	if _, err := s.uploader.UploadWithRetry(ctx, rec, s.maxRetries, s.progressFor(rec.ID)); err != nil {
		// Exhaustion already released the lock.
		if !errors.Is(err, context.Canceled) {
			rec.ErrMessage = err.Error()
			rec.ErrClass = core.Classify(err)
			rec.Status = models.StatusProcessingError
		}
		s.Publish(rec)
		return
	}

	s.Publish(rec)
	s.index.Release(rec.ID, rec.Fingerprint)
}

func (s *Supervisor) progressFor(id string) func(Progress) {
	return func(p Progress) {
		s.mu.Lock()
		if snap, ok := s.records[id]; ok {
			snap.UploadAttempts = p.Attempt
		}
		s.mu.Unlock()
	}
}

// Cancel signals the record's cancellation token. The operation stops at
// its next stage boundary; the record keeps its last committed state.
func (s *Supervisor) Cancel(id string) {
	s.mu.Lock()
	cancel, ok := s.cancels[id]
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

// Remove cancels the operation (if active) and drops the record from
// tracking, releasing its dedup lock.
func (s *Supervisor) Remove(id string) {
	s.mu.Lock()
	cancel, active := s.cancels[id]
	rec := s.records[id]
	delete(s.records, id)
	s.mu.Unlock()

	if active {
		cancel()
	}
	if rec != nil {
		s.index.Release(id, rec.Fingerprint)
	} else {
		s.index.Release(id, "")
	}
}

// Reset cancels every active operation, waits for them to stop, then
// clears the dedup index and all tracked records.
func (s *Supervisor) Reset() {
	s.mu.Lock()
	for _, cancel := range s.cancels {
		cancel()
	}
	s.mu.Unlock()

	s.wg.Wait()

	s.mu.Lock()
	s.cancels = make(map[string]context.CancelFunc)
	s.records = make(map[string]*models.ProcessingRecord)
	s.mu.Unlock()
	s.index.Clear()
}

// Record returns the latest committed snapshot for id.
func (s *Supervisor) Record(id string) (*models.ProcessingRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, false
	}
	return cloneRecord(rec), true
}

// Stats aggregates record counts by status.
func (s *Supervisor) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{Total: len(s.records), ByStatus: make(map[models.RecordStatus]int)}
	for _, rec := range s.records {
		st.ByStatus[rec.Status]++
	}
	return st
}

// ForceConvert re-runs the conversion branch for a record that stopped
// short of it and persists the result. Takes the record's processing
// lock for the duration, so at most one orchestrator task ever runs for
// an id. Runs synchronously on the caller's context.
func (s *Supervisor) ForceConvert(ctx context.Context, id string) (*models.ProcessingRecord, error) {
	s.mu.RLock()
	snap, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown record %q", id)
	}
	if !s.index.TryLock(snap.Fingerprint, id) {
		return nil, fmt.Errorf("record %q still processing", id)
	}
	defer s.index.Release(id, snap.Fingerprint)

	rec := cloneRecord(snap)
	if err := s.orch.ForceConvert(ctx, rec); err != nil {
		return nil, err
	}
	if _, err := s.uploader.UploadWithRetry(ctx, rec, s.maxRetries, nil); err != nil {
		return nil, err
	}
	s.Publish(rec)
	return cloneRecord(rec), nil
}

// Wait blocks until all in-flight operations finish. Test and shutdown
// helper.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

func (s *Supervisor) forget(id string) {
	s.mu.Lock()
	if cancel, ok := s.cancels[id]; ok {
		cancel()
		delete(s.cancels, id)
	}
	s.mu.Unlock()
}

func cloneRecord(rec *models.ProcessingRecord) *models.ProcessingRecord {
	cp := *rec
	if rec.Bundle != nil {
		cp.Bundle = append([]byte(nil), rec.Bundle...)
	}
	if rec.Derived != nil {
		derived := *rec.Derived
		cp.Derived = &derived
	}
	if rec.Encrypted != nil {
		env := *rec.Encrypted
		cp.Encrypted = &env
	}
	return &cp
}
