package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tallyapp/tally-server/internal/domain"
)

func newTestUser(id, email string) *domain.User {
	user := &domain.User{
		Email:        email,
		PasswordHash: "hashed_password",
		DisplayName:  "Test User",
	}
	user.ID = id
	user.InitTimestamps()
	return user
}

func TestCreateUser(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	user := newTestUser("user-1", "test@example.com")

	err := store.CreateUser(ctx, user)
	require.NoError(t, err)

	retrieved, err := store.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, retrieved.ID)
	assert.Equal(t, user.Email, retrieved.Email)
	assert.Equal(t, user.DisplayName, retrieved.DisplayName)
}

func TestCreateUser_DuplicateID(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	require.NoError(t, store.CreateUser(ctx, newTestUser("user-1", "test@example.com")))

	err := store.CreateUser(ctx, newTestUser("user-1", "different@example.com"))
	assert.ErrorIs(t, err, ErrUserExists)
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	require.NoError(t, store.CreateUser(ctx, newTestUser("user-1", "test@example.com")))

	err := store.CreateUser(ctx, newTestUser("user-2", "test@example.com"))
	assert.ErrorIs(t, err, ErrEmailExists)
}

func TestGetUserByEmail_CaseInsensitive(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	require.NoError(t, store.CreateUser(ctx, newTestUser("user-1", "Test@Example.COM")))

	retrieved, err := store.GetUserByEmail(ctx, "  test@example.com ")
	require.NoError(t, err)
	assert.Equal(t, "user-1", retrieved.ID)

	// Duplicate check is also case-insensitive.
	err = store.CreateUser(ctx, newTestUser("user-2", "TEST@example.com"))
	assert.ErrorIs(t, err, ErrEmailExists)
}

func TestGetUserByEmail_NotFound(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	_, err := store.GetUserByEmail(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUpdateUser_EmailChange(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	user := newTestUser("user-1", "old@example.com")
	require.NoError(t, store.CreateUser(ctx, user))

	user.Email = "new@example.com"
	require.NoError(t, store.UpdateUser(ctx, user))

	// New email resolves, old one is gone.
	retrieved, err := store.GetUserByEmail(ctx, "new@example.com")
	require.NoError(t, err)
	assert.Equal(t, "user-1", retrieved.ID)

	_, err = store.GetUserByEmail(ctx, "old@example.com")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestDeleteUser(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, store.CreateUser(ctx, newTestUser("user-1", "test@example.com")))

	require.NoError(t, store.DeleteUser(ctx, "user-1"))

	_, err := store.GetUser(ctx, "user-1")
	assert.ErrorIs(t, err, ErrUserNotFound)

	// Email index is cleaned up, so the address is reusable.
	require.NoError(t, store.CreateUser(ctx, newTestUser("user-2", "test@example.com")))

	// Deleting again is a no-op.
	require.NoError(t, store.DeleteUser(ctx, "user-1"))
}
