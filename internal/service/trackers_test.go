package service

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tallyapp/tally-server/internal/domain"
	domainerrors "github.com/tallyapp/tally-server/internal/errors"
	"github.com/tallyapp/tally-server/internal/store"
	"github.com/tallyapp/tally-server/internal/validation"
)

func setupTrackerTest(t *testing.T) (*TrackerService, *store.Store) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "tally-test-*")
	require.NoError(t, err)

	st, err := store.New(filepath.Join(tmpDir, "db"), nil, store.NewNoopEmitter())
	require.NoError(t, err)

	t.Cleanup(func() {
		st.Close()
		os.RemoveAll(tmpDir)
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sharing := NewSharingService(st, st, logger)
	return NewTrackerService(st, sharing, nil, validation.New(), logger), st
}

func TestTrackerService_Create(t *testing.T) {
	svc, _ := setupTrackerTest(t)
	ctx := context.Background()

	tracker, err := svc.Create(ctx, "user-1", CreateTrackerRequest{
		Name:  "  Pushups  ",
		Emoji: "💪",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, tracker.ID)
	assert.Equal(t, "user-1", tracker.OwnerID)
	assert.Equal(t, "Pushups", tracker.Name, "name is trimmed")
	assert.NotNil(t, tracker.DailyCounts)
	assert.Empty(t, tracker.DailyCounts)
	assert.NotNil(t, tracker.SharedWith)
	assert.False(t, tracker.IsCopy())
	assert.False(t, tracker.CreatedAt.IsZero())
}

func TestTrackerService_Create_Validation(t *testing.T) {
	svc, _ := setupTrackerTest(t)
	ctx := context.Background()

	t.Run("name is required", func(t *testing.T) {
		_, err := svc.Create(ctx, "user-1", CreateTrackerRequest{Emoji: "💪"})
		assert.ErrorIs(t, err, domainerrors.ErrValidation)
	})

	t.Run("emoji or icon is required", func(t *testing.T) {
		_, err := svc.Create(ctx, "user-1", CreateTrackerRequest{Name: "Pushups"})
		assert.ErrorIs(t, err, domainerrors.ErrValidation)
	})

	t.Run("emoji and icon are mutually exclusive", func(t *testing.T) {
		_, err := svc.Create(ctx, "user-1", CreateTrackerRequest{
			Name:   "Pushups",
			Emoji:  "💪",
			IconID: "icon-1",
		})
		assert.ErrorIs(t, err, domainerrors.ErrValidation)
	})
}

func TestTrackerService_GetAndList(t *testing.T) {
	svc, _ := setupTrackerTest(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "user-1", CreateTrackerRequest{Name: "Pushups", Emoji: "💪"})
	require.NoError(t, err)

	got, err := svc.Get(ctx, "user-1", created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	t.Run("not found", func(t *testing.T) {
		_, err := svc.Get(ctx, "user-1", "trk-missing")
		assert.ErrorIs(t, err, domainerrors.ErrNotFound)
	})

	t.Run("other user's collection is separate", func(t *testing.T) {
		_, err := svc.Get(ctx, "user-2", created.ID)
		assert.ErrorIs(t, err, domainerrors.ErrNotFound)

		list, err := svc.List(ctx, "user-2")
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	list, err := svc.List(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestTrackerService_Update(t *testing.T) {
	svc, _ := setupTrackerTest(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "user-1", CreateTrackerRequest{Name: "Pushups", Emoji: "💪"})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, "user-1", created.ID, UpdateTrackerRequest{
		Name:        "Situps",
		Description: "Morning routine",
		Emoji:       "🔥",
	})
	require.NoError(t, err)
	assert.Equal(t, "Situps", updated.Name)
	assert.Equal(t, "Morning routine", updated.Description)
	assert.Equal(t, "🔥", updated.Emoji)
}

func TestTrackerService_Adjust(t *testing.T) {
	svc, _ := setupTrackerTest(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "user-1", CreateTrackerRequest{Name: "Pushups", Emoji: "💪"})
	require.NoError(t, err)

	t.Run("increments a given day", func(t *testing.T) {
		updated, err := svc.Adjust(ctx, "user-1", created.ID, AdjustRequest{Date: "2026-08-27", Delta: 2})
		require.NoError(t, err)
		assert.Equal(t, 2, updated.CountOn("2026-08-27"))
	})

	t.Run("empty date means today", func(t *testing.T) {
		updated, err := svc.Adjust(ctx, "user-1", created.ID, AdjustRequest{Delta: 1})
		require.NoError(t, err)
		assert.Equal(t, 1, updated.CountOn(domain.Today()))
	})

	t.Run("decrements can go negative", func(t *testing.T) {
		updated, err := svc.Adjust(ctx, "user-1", created.ID, AdjustRequest{Date: "2026-08-20", Delta: -3})
		require.NoError(t, err)
		assert.Equal(t, -3, updated.CountOn("2026-08-20"))
	})

	t.Run("zero delta is rejected", func(t *testing.T) {
		_, err := svc.Adjust(ctx, "user-1", created.ID, AdjustRequest{Date: "2026-08-27", Delta: 0})
		assert.ErrorIs(t, err, domainerrors.ErrValidation)
	})

	t.Run("malformed date is rejected", func(t *testing.T) {
		_, err := svc.Adjust(ctx, "user-1", created.ID, AdjustRequest{Date: "27/08/2026", Delta: 1})
		assert.ErrorIs(t, err, domainerrors.ErrValidation)
	})
}

func TestTrackerService_History(t *testing.T) {
	svc, _ := setupTrackerTest(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "user-1", CreateTrackerRequest{Name: "Pushups", Emoji: "💪"})
	require.NoError(t, err)

	today := domain.Today()
	_, err = svc.Adjust(ctx, "user-1", created.ID, AdjustRequest{Date: today, Delta: 4})
	require.NoError(t, err)

	history, err := svc.History(ctx, "user-1", created.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, DefaultHistoryDays)

	// Newest first; days with no activity report zero.
	assert.Equal(t, today, history[0].Date)
	assert.Equal(t, 4, history[0].Count)
	assert.Equal(t, 0, history[1].Count)
}

func TestTrackerService_ListShared(t *testing.T) {
	svc, st := setupTrackerTest(t)
	ctx := context.Background()

	alice := createTestUser(t, st, "alice@example.com")
	bob := createTestUser(t, st, "bob@example.com")

	original, err := svc.Create(ctx, alice.ID, CreateTrackerRequest{Name: "Pushups", Emoji: "💪"})
	require.NoError(t, err)

	_, err = svc.sharing.Share(ctx, alice.ID, original.ID, bob.Email)
	require.NoError(t, err)

	// Bob's own tracker plus the shared copy.
	_, err = svc.Create(ctx, bob.ID, CreateTrackerRequest{Name: "Reading", Emoji: "📚"})
	require.NoError(t, err)

	shared, err := svc.ListShared(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, shared, 1)
	assert.Equal(t, original.ID, shared[0].OriginalTrackerID)

	all, err := svc.List(ctx, bob.ID)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestTrackerService_Delete(t *testing.T) {
	svc, _ := setupTrackerTest(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "user-1", CreateTrackerRequest{Name: "Pushups", Emoji: "💪"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, "user-1", created.ID))

	_, err = svc.Get(ctx, "user-1", created.ID)
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}
