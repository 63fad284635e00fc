package enrichment_engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/kelechi-eze/MedVault/internal/core"
	"github.com/kelechi-eze/MedVault/internal/models"
)

// DefaultMaxRetries is the number of retries after the first attempt
// (4 total tries).
const DefaultMaxRetries = 3

// Progress reports one persistence attempt or the terminal outcome to
// the caller's observer.
type Progress struct {
	Attempt int
	Err     error
	Done    bool
	Ref     string
}

// Uploader persists processed records to the durable store with bounded
// retry and exponential backoff.
type Uploader struct {
	store  core.RecordStore
	index  *Index
	logger *slog.Logger

	// BaseInterval is the attempt-zero backoff (2^attempt multiples of
	// it). Defaults to one second; shrunk in tests.
	BaseInterval time.Duration
}

func NewUploader(store core.RecordStore, index *Index, logger *slog.Logger) *Uploader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Uploader{store: store, index: index, logger: logger, BaseInterval: time.Second}
}

// newBackoff builds the policy: base, 2*base, 4*base, ... with no
// jitter, capped at maxRetries retries.
func newBackoff(base time.Duration, maxRetries int) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = base << 16
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithMaxRetries(b, uint64(maxRetries))
}

// UploadWithRetry attempts persistence up to maxRetries+1 times, waiting
// 2^attempt * BaseInterval between tries. Each attempt and the terminal
// outcome are reported through onProgress. Retry exhaustion releases the
// record's dedup lock so the caller can retry later.
func (u *Uploader) UploadWithRetry(ctx context.Context, rec *models.ProcessingRecord, maxRetries int, onProgress func(Progress)) (string, error) {
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	if onProgress == nil {
		onProgress = func(Progress) {}
	}
	base := u.BaseInterval
	if base <= 0 {
		base = time.Second
	}

	var ref string
	operation := func() error {
		attempt := u.index.RecordAttempt(rec.ID)
		rec.UploadAttempts = attempt

		r, err := u.store.PutRecord(ctx, rec)
		onProgress(Progress{Attempt: attempt, Err: err})
		if err != nil {
			u.logger.Warn("persistence attempt failed",
				"id", rec.ID, "filename", rec.Filename, "attempt", attempt, "error", err)
			return err
		}
		ref = r
		return nil
	}

	policy := backoff.WithContext(newBackoff(base, maxRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		u.index.Release(rec.ID, rec.Fingerprint)
		if cerr := ctx.Err(); cerr != nil {
			return "", cerr
		}
		ferr := fmt.Errorf("%w: %s failed after %d attempts: %v",
			core.ErrPersistenceFailed, rec.Filename, rec.UploadAttempts, err)
		onProgress(Progress{Attempt: rec.UploadAttempts, Err: ferr, Done: true})
		return "", ferr
	}

	onProgress(Progress{Attempt: rec.UploadAttempts, Done: true, Ref: ref})
	u.logger.Info("record persisted", "id", rec.ID, "ref", ref, "attempts", rec.UploadAttempts)
	return ref, nil
}
