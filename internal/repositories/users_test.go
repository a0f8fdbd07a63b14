package repositories

import (
	"context"
	"testing"

	"github.com/rohits-web03/vaultbox/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserRepository_CreateFindSave(t *testing.T) {
	db := newTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	u := &models.User{Name: "Alice", Email: "alice@example.com", Password: "hash"}
	require.NoError(t, repo.Create(ctx, u))
	require.NotZero(t, u.ID)

	byEmail, err := repo.FindByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)
	assert.True(t, byEmail.HasPassword())

	byEmail.Name = "Alice B"
	require.NoError(t, repo.Save(ctx, byEmail))

	byID, err := repo.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice B", byID.Name)

	_, err = repo.FindByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.FindByID(ctx, 4242)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserRepository_DuplicateEmail(t *testing.T) {
	db := newTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &models.User{Name: "A", Email: "dup@example.com"}))
	err := repo.Create(ctx, &models.User{Name: "B", Email: "dup@example.com"})
	assert.Error(t, err)
}

func TestUserRepository_GoogleIDOptional(t *testing.T) {
	db := newTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	// Several password accounts without a Google subject must coexist.
	require.NoError(t, repo.Create(ctx, &models.User{Name: "A", Email: "a@example.com"}))
	require.NoError(t, repo.Create(ctx, &models.User{Name: "B", Email: "b@example.com"}))

	sub := "google-sub-1"
	require.NoError(t, repo.Create(ctx, &models.User{Name: "C", Email: "c@example.com", GoogleID: &sub}))
}
