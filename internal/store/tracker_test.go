package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tallyapp/tally-server/internal/domain"
)

// setupTestStore creates a temporary store for testing
func setupTestStore(t *testing.T) (*Store, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "tally-test-*")
	require.NoError(t, err)

	dbPath := filepath.Join(tmpDir, "test.db")

	// Create store with noop emitter for testing
	store, err := New(dbPath, nil, NewNoopEmitter())
	require.NoError(t, err)
	require.NotNil(t, store)

	cleanup := func() {
		store.Close()
		os.RemoveAll(tmpDir)
	}

	return store, cleanup
}

func newTestTracker(id, ownerID, name string) *domain.Tracker {
	tracker := &domain.Tracker{
		OwnerID:     ownerID,
		Name:        name,
		Emoji:       "💧",
		DailyCounts: map[string]int{},
		SharedWith:  []string{},
	}
	tracker.ID = id
	tracker.InitTimestamps()
	return tracker
}

func TestCreateTracker(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	tracker := newTestTracker("trk-1", "user-1", "Water")

	err := store.CreateTracker(ctx, tracker)
	require.NoError(t, err)

	retrieved, err := store.GetTracker(ctx, "user-1", "trk-1")
	require.NoError(t, err)
	assert.Equal(t, "Water", retrieved.Name)
	assert.Equal(t, "user-1", retrieved.OwnerID)
	assert.Empty(t, retrieved.DailyCounts)
	assert.False(t, retrieved.IsCopy())
}

func TestCreateTracker_DuplicateID(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	err := store.CreateTracker(ctx, newTestTracker("trk-1", "user-1", "Water"))
	require.NoError(t, err)

	err = store.CreateTracker(ctx, newTestTracker("trk-1", "user-1", "Other"))
	assert.ErrorIs(t, err, ErrTrackerExists)
}

func TestGetTracker_WrongOwner(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	err := store.CreateTracker(ctx, newTestTracker("trk-1", "user-1", "Water"))
	require.NoError(t, err)

	// Collections are per owner; the same ID under another user is absent.
	_, err = store.GetTracker(ctx, "user-2", "trk-1")
	assert.ErrorIs(t, err, ErrTrackerNotFound)
}

func TestListTrackers(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	require.NoError(t, store.CreateTracker(ctx, newTestTracker("trk-1", "user-1", "Water")))
	require.NoError(t, store.CreateTracker(ctx, newTestTracker("trk-2", "user-1", "Pushups")))
	require.NoError(t, store.CreateTracker(ctx, newTestTracker("trk-3", "user-2", "Reading")))

	trackers, err := store.ListTrackers(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, trackers, 2)

	trackers, err = store.ListTrackers(ctx, "user-2")
	require.NoError(t, err)
	require.Len(t, trackers, 1)
	assert.Equal(t, "Reading", trackers[0].Name)

	trackers, err = store.ListTrackers(ctx, "user-3")
	require.NoError(t, err)
	assert.Empty(t, trackers)
}

func TestUpdateTracker_NotFound(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	err := store.UpdateTracker(context.Background(), newTestTracker("trk-missing", "user-1", "Water"))
	assert.ErrorIs(t, err, ErrTrackerNotFound)
}

func TestDeleteTracker_Idempotent(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	require.NoError(t, store.CreateTracker(ctx, newTestTracker("trk-1", "user-1", "Water")))
	require.NoError(t, store.DeleteTracker(ctx, "user-1", "trk-1"))

	// Second delete is a no-op, not an error.
	require.NoError(t, store.DeleteTracker(ctx, "user-1", "trk-1"))

	_, err := store.GetTracker(ctx, "user-1", "trk-1")
	assert.ErrorIs(t, err, ErrTrackerNotFound)
}

func TestAdjustDailyCount(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, store.CreateTracker(ctx, newTestTracker("trk-1", "user-1", "Water")))

	updated, err := store.AdjustDailyCount(ctx, "user-1", "trk-1", "2026-03-07", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.CountOn("2026-03-07"))

	updated, err = store.AdjustDailyCount(ctx, "user-1", "trk-1", "2026-03-07", 1)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.CountOn("2026-03-07"))

	// Decrements below zero are allowed.
	updated, err = store.AdjustDailyCount(ctx, "user-1", "trk-1", "2026-03-08", -1)
	require.NoError(t, err)
	assert.Equal(t, -1, updated.CountOn("2026-03-08"))
	assert.Equal(t, 2, updated.CountOn("2026-03-07"), "other days untouched")
}

func TestAdjustDailyCount_Sequence(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, store.CreateTracker(ctx, newTestTracker("trk-1", "user-1", "Water")))

	// N increments and M decrements land on exactly N-M.
	const n, m = 7, 3
	for range n {
		_, err := store.AdjustDailyCount(ctx, "user-1", "trk-1", "2026-03-07", 1)
		require.NoError(t, err)
	}
	for range m {
		_, err := store.AdjustDailyCount(ctx, "user-1", "trk-1", "2026-03-07", -1)
		require.NoError(t, err)
	}

	tracker, err := store.GetTracker(ctx, "user-1", "trk-1")
	require.NoError(t, err)
	assert.Equal(t, n-m, tracker.CountOn("2026-03-07"))
}

func TestAdjustDailyCount_Concurrent(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, store.CreateTracker(ctx, newTestTracker("trk-1", "user-1", "Water")))

	// Concurrent increments on the same document conflict inside Badger and
	// must retry until they serialize; every caller succeeds and no update
	// is lost.
	const writers = 32
	errs := make(chan error, writers)

	var wg sync.WaitGroup
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.AdjustDailyCount(ctx, "user-1", "trk-1", "2026-03-07", 1)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	tracker, err := store.GetTracker(ctx, "user-1", "trk-1")
	require.NoError(t, err)
	assert.Equal(t, writers, tracker.CountOn("2026-03-07"))
}

func TestAdjustDailyCount_ConcurrentMixedDeltas(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, store.CreateTracker(ctx, newTestTracker("trk-1", "user-1", "Water")))

	// N increments and M decrements racing land on exactly N-M.
	const n, m = 20, 8
	errs := make(chan error, n+m)

	var wg sync.WaitGroup
	for i := range n + m {
		delta := 1
		if i >= n {
			delta = -1
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.AdjustDailyCount(ctx, "user-1", "trk-1", "2026-03-07", delta)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	tracker, err := store.GetTracker(ctx, "user-1", "trk-1")
	require.NoError(t, err)
	assert.Equal(t, n-m, tracker.CountOn("2026-03-07"))
}

func TestAdjustDailyCount_NotFound(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	_, err := store.AdjustDailyCount(context.Background(), "user-1", "trk-missing", "2026-03-07", 1)
	assert.ErrorIs(t, err, ErrTrackerNotFound)
}

func TestFindCopyOf(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	original := newTestTracker("trk-orig", "user-owner", "Water")
	require.NoError(t, store.CreateTracker(ctx, original))

	cp := original.CopyFor("trk-copy", "user-recipient")
	require.NoError(t, store.CreateTracker(ctx, cp))

	// Noise in the recipient's collection shouldn't match.
	require.NoError(t, store.CreateTracker(ctx, newTestTracker("trk-own", "user-recipient", "Pushups")))

	found, err := store.FindCopyOf(ctx, "user-recipient", "trk-orig")
	require.NoError(t, err)
	assert.Equal(t, "trk-copy", found.ID)
	assert.Equal(t, "trk-orig", found.OriginalTrackerID)

	_, err = store.FindCopyOf(ctx, "user-recipient", "trk-other")
	assert.ErrorIs(t, err, ErrCopyNotFound)
}

func TestDeleteUserTrackers(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	require.NoError(t, store.CreateTracker(ctx, newTestTracker("trk-1", "user-1", "Water")))
	require.NoError(t, store.CreateTracker(ctx, newTestTracker("trk-2", "user-1", "Pushups")))
	require.NoError(t, store.CreateTracker(ctx, newTestTracker("trk-3", "user-2", "Reading")))

	require.NoError(t, store.DeleteUserTrackers(ctx, "user-1"))

	trackers, err := store.ListTrackers(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, trackers)

	// Other users are untouched.
	trackers, err = store.ListTrackers(ctx, "user-2")
	require.NoError(t, err)
	assert.Len(t, trackers, 1)
}
