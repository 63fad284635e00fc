package enrichment_engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdmitRejectsInFlightFingerprint(t *testing.T) {
	idx := NewIndex(nil, nil)
	ctx := context.Background()

	ok, _ := idx.AdmitAndLock(ctx, "fp-1", "id-1")
	require.True(t, ok)

	ok, reason := idx.Admit(ctx, "fp-1", "id-2")
	assert.False(t, ok)
	assert.Equal(t, "fingerprint already seen", reason)

	// After release, resubmission is accepted.
	idx.Release("id-1", "fp-1")
	ok, _ = idx.Admit(ctx, "fp-1", "id-3")
	assert.True(t, ok)
}

func TestAdmitRejectsHeldLock(t *testing.T) {
	idx := NewIndex(nil, nil)
	require.True(t, idx.TryLock("fp-a", "id-1"))

	ok, reason := idx.Admit(context.Background(), "fp-b", "id-1")
	assert.False(t, ok)
	assert.Equal(t, "processing lock held", reason)
}

func TestAdmitRejectsDurableRecord(t *testing.T) {
	exists := func(ctx context.Context, id string) (bool, error) {
		return id == "persisted", nil
	}
	idx := NewIndex(exists, nil)

	ok, reason := idx.Admit(context.Background(), "fp", "persisted")
	assert.False(t, ok)
	assert.Equal(t, "durable record exists", reason)

	ok, _ = idx.Admit(context.Background(), "fp", "fresh")
	assert.True(t, ok)
}

func TestAdmitToleratesStoreErrors(t *testing.T) {
	exists := func(ctx context.Context, id string) (bool, error) {
		return false, errors.New("store down")
	}
	idx := NewIndex(exists, nil)

	ok, _ := idx.Admit(context.Background(), "fp", "id")
	assert.True(t, ok)
}

func TestAdmitAndLockSingleFlight(t *testing.T) {
	idx := NewIndex(nil, nil)
	ctx := context.Background()

	start := make(chan struct{})
	admitted := make(chan bool, 8)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			ok, _ := idx.AdmitAndLock(ctx, "fp", fmt.Sprintf("id-%d", i))
			admitted <- ok
		}(i)
	}
	close(start)
	wg.Wait()
	close(admitted)

	wins := 0
	for ok := range admitted {
		if ok {
			wins++
		}
	}
	assert.Equal(t, 1, wins, "one fingerprint admits exactly once")
}

func TestTryLockHeld(t *testing.T) {
	idx := NewIndex(nil, nil)

	require.True(t, idx.TryLock("fp", "id"))
	assert.False(t, idx.TryLock("fp", "id"))

	idx.Release("id", "fp")
	assert.True(t, idx.TryLock("fp", "id"))
}

func TestReleaseIdempotent(t *testing.T) {
	idx := NewIndex(nil, nil)
	require.True(t, idx.TryLock("fp", "id"))

	idx.Release("id", "fp")
	idx.Release("id", "fp")
	idx.Release("missing", "never-locked")

	assert.False(t, idx.Locked("id"))
}

func TestRecordAttemptMonotonic(t *testing.T) {
	idx := NewIndex(nil, nil)

	assert.Equal(t, 1, idx.RecordAttempt("id"))
	assert.Equal(t, 2, idx.RecordAttempt("id"))
	assert.Equal(t, 1, idx.RecordAttempt("other"))
}

func TestClearResetsEverything(t *testing.T) {
	idx := NewIndex(nil, nil)
	require.True(t, idx.TryLock("fp", "id"))
	idx.RecordAttempt("id")

	idx.Clear()

	ok, _ := idx.Admit(context.Background(), "fp", "id")
	assert.True(t, ok)
	assert.Equal(t, 1, idx.RecordAttempt("id"))
}
