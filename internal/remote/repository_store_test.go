package remote

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/vytor/wordflash/internal/errors"
	"github.com/vytor/wordflash/internal/repository/memory"
	"github.com/vytor/wordflash/internal/testutil"
)

func TestRepositoryStoreDetectsNewerRemote(t *testing.T) {
	ctx := context.Background()
	store := NewRepositoryStore(memory.NewRepositories().Vocabulary)
	created := testutil.Day(2024, 1, 1)
	item := testutil.NewItem("u1", "tren", created)

	stored, err := store.UpsertItem(ctx, item, time.Time{})
	require.NoError(t, err)
	assert.False(t, stored.Dirty)

	// someone else edits it later
	other := item
	other.Translation = "train"
	other.UpdatedAt = created.Add(time.Hour)
	_, err = store.UpsertItem(ctx, other, created)
	require.NoError(t, err)

	// an edit based on the original version now conflicts
	mine := item
	mine.Translation = "choo choo"
	mine.UpdatedAt = created.Add(2 * time.Hour)
	_, err = store.UpsertItem(ctx, mine, created)
	var conflict *VersionConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "train", conflict.Current.Translation)

	// based on the current version it goes through
	_, err = store.UpsertItem(ctx, mine, other.UpdatedAt)
	require.NoError(t, err)
	got, err := store.FetchItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "choo choo", got.Translation)
}

func TestRepositoryStoreDelete(t *testing.T) {
	ctx := context.Background()
	store := NewRepositoryStore(memory.NewRepositories().Vocabulary)
	item := testutil.NewItem("u1", "barco", testutil.Day(2024, 1, 1))
	_, err := store.UpsertItem(ctx, item, time.Time{})
	require.NoError(t, err)

	require.NoError(t, store.DeleteItem(ctx, item.ID))
	assert.ErrorIs(t, store.DeleteItem(ctx, item.ID), apperrors.ErrNotFound)
	_, err = store.FetchItem(ctx, item.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestRepositoryStoreValidates(t *testing.T) {
	store := NewRepositoryStore(memory.NewRepositories().Vocabulary)
	item := testutil.NewItem("u1", "", testutil.Day(2024, 1, 1))
	_, err := store.UpsertItem(context.Background(), item, time.Time{})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}
