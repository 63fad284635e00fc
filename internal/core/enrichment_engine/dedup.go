package enrichment_engine

import (
	"context"
	"log/slog"
	"sync"
)

// ExistsFunc asks the durable store whether a record id is already
// persisted. May be nil when no store-backed check is wanted.
type ExistsFunc func(ctx context.Context, id string) (bool, error)

// Index is the process-local deduplication index: seen content
// fingerprints, in-flight processing locks and per-file attempt
// counters. All operations are mutually exclusive. One Index per
// pipeline instance; it is rebuilt from the durable store on restart.
type Index struct {
	mu       sync.Mutex
	seen     map[string]struct{}
	locks    map[string]string // id -> fingerprint
	attempts map[string]int

	exists ExistsFunc
	logger *slog.Logger
}

func NewIndex(exists ExistsFunc, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{
		seen:     make(map[string]struct{}),
		locks:    make(map[string]string),
		attempts: make(map[string]int),
		exists:   exists,
		logger:   logger,
	}
}

// Admit reports whether a document could enter the pipeline right now.
// Rejection reasons: fingerprint already seen, id already locked, or a
// durable record for id already exists. Pure query; use AdmitAndLock to
// actually enter.
func (x *Index) Admit(ctx context.Context, fingerprint, id string) (bool, string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.admitLocked(ctx, fingerprint, id)
}

// AdmitAndLock admits and takes the processing lock in one critical
// section, so two concurrent submissions of one fingerprint can never
// both pass.
func (x *Index) AdmitAndLock(ctx context.Context, fingerprint, id string) (bool, string) {
	x.mu.Lock()
	defer x.mu.Unlock()

	ok, reason := x.admitLocked(ctx, fingerprint, id)
	if !ok {
		return false, reason
	}
	x.seen[fingerprint] = struct{}{}
	x.locks[id] = fingerprint
	return true, ""
}

// TryLock takes the processing lock for id when free, marking the
// fingerprint seen. Atomic check-and-acquire for re-entry paths that
// bypass admission (force conversion of an already-tracked record).
func (x *Index) TryLock(fingerprint, id string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	if _, ok := x.locks[id]; ok {
		return false
	}
	x.seen[fingerprint] = struct{}{}
	x.locks[id] = fingerprint
	return true
}

// admitLocked assumes x.mu is held.
func (x *Index) admitLocked(ctx context.Context, fingerprint, id string) (bool, string) {
	if _, ok := x.seen[fingerprint]; ok {
		return false, "fingerprint already seen"
	}
	if _, ok := x.locks[id]; ok {
		return false, "processing lock held"
	}
	if x.exists != nil {
		found, err := x.exists(ctx, id)
		if err != nil {
			// Store unavailable: admit and let persistence sort it out.
			x.logger.Warn("durable existence check failed", "id", id, "error", err)
		} else if found {
			return false, "durable record exists"
		}
	}
	return true, ""
}

// Release drops the processing lock and the fingerprint. Idempotent and
// safe to call from error paths.
func (x *Index) Release(id, fingerprint string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.locks, id)
	delete(x.seen, fingerprint)
}

// Locked reports whether id currently holds a processing lock.
func (x *Index) Locked(id string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	_, ok := x.locks[id]
	return ok
}

// RecordAttempt bumps and returns the monotonically increasing attempt
// counter for id.
func (x *Index) RecordAttempt(id string) int {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.attempts[id]++
	return x.attempts[id]
}

// Clear resets all tracked state. Used on full pipeline reset.
func (x *Index) Clear() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.seen = make(map[string]struct{})
	x.locks = make(map[string]string)
	x.attempts = make(map[string]int)
}
