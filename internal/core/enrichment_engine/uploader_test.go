package enrichment_engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kelechi-eze/MedVault/internal/core"
	"github.com/kelechi-eze/MedVault/internal/models"
)

func fastUploader(store *fakeStore, idx *Index) *Uploader {
	u := NewUploader(store, idx, nil)
	u.BaseInterval = time.Millisecond
	return u
}

func TestBackoffScheduleDoubles(t *testing.T) {
	b := newBackoff(time.Second, 3)

	assert.Equal(t, time.Second, b.NextBackOff())
	assert.Equal(t, 2*time.Second, b.NextBackOff())
	assert.Equal(t, 4*time.Second, b.NextBackOff())
	assert.Equal(t, backoff.Stop, b.NextBackOff())
}

func TestUploadSucceedsOnThirdAttempt(t *testing.T) {
	store := newFakeStore()
	store.failures = 2
	store.failErr = errors.New("connection reset")
	idx := NewIndex(nil, nil)
	require.True(t, idx.TryLock("fp", "rec-1"))

	rec := &models.ProcessingRecord{ID: "rec-1", Fingerprint: "fp", Filename: "labs.pdf"}

	var progress []Progress
	ref, err := fastUploader(store, idx).UploadWithRetry(context.Background(), rec, 3, func(p Progress) {
		progress = append(progress, p)
	})
	require.NoError(t, err)
	assert.Equal(t, "records/rec-1", ref)
	assert.Equal(t, 3, rec.UploadAttempts)

	// Two failed attempts, one success, one terminal report.
	require.Len(t, progress, 4)
	assert.Error(t, progress[0].Err)
	assert.Error(t, progress[1].Err)
	assert.NoError(t, progress[2].Err)
	assert.True(t, progress[3].Done)
	assert.Equal(t, ref, progress[3].Ref)
}

func TestUploadExhaustionReleasesLock(t *testing.T) {
	store := newFakeStore()
	store.failures = 100
	store.failErr = errors.New("disk full")
	idx := NewIndex(nil, nil)
	require.True(t, idx.TryLock("fp", "rec-1"))

	rec := &models.ProcessingRecord{ID: "rec-1", Fingerprint: "fp", Filename: "labs.pdf"}

	var terminal Progress
	_, err := fastUploader(store, idx).UploadWithRetry(context.Background(), rec, 2, func(p Progress) {
		if p.Done {
			terminal = p
		}
	})
	require.ErrorIs(t, err, core.ErrPersistenceFailed)
	assert.Contains(t, err.Error(), "labs.pdf")
	assert.Contains(t, err.Error(), "3 attempts")
	assert.Equal(t, 3, rec.UploadAttempts, "maxRetries=2 means 3 total tries")
	assert.Error(t, terminal.Err)

	assert.False(t, idx.Locked("rec-1"), "exhaustion must release the dedup lock")
	ok, _ := idx.Admit(context.Background(), "fp", "rec-2")
	assert.True(t, ok, "caller can retry after exhaustion")
}

func TestUploadCancelledMidRetry(t *testing.T) {
	store := newFakeStore()
	store.failures = 100
	store.failErr = errors.New("flaky")
	idx := NewIndex(nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	rec := &models.ProcessingRecord{ID: "rec-1", Fingerprint: "fp", Filename: "labs.pdf"}

	u := NewUploader(store, idx, nil)
	u.BaseInterval = 50 * time.Millisecond
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := u.UploadWithRetry(ctx, rec, 5, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
