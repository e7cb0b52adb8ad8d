package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vytor/wordflash/internal/errors"
	"github.com/vytor/wordflash/internal/models"
	"github.com/vytor/wordflash/internal/srs"
	"github.com/vytor/wordflash/internal/testutil"
)

func TestVocabularyCopiesOnReadAndWrite(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories()
	item := testutil.NewItem("u1", "perro", testutil.Day(2024, 1, 1))
	require.NoError(t, repos.Vocabulary.Upsert(ctx, item))

	item.Examples[0] = "mutated"
	got, err := repos.Vocabulary.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "a sentence with perro", got.Examples[0])

	got.Word = "gato"
	again, err := repos.Vocabulary.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "perro", again.Word)
}

func TestListDueAndNew(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories()
	today := testutil.Day(2024, 3, 10)

	dueEarly := testutil.DueItem("u1", "early", today.AddDate(0, 0, -2))
	dueToday := testutil.DueItem("u1", "today", today)
	future := testutil.DueItem("u1", "future", today.AddDate(0, 0, 1))
	fresh := testutil.NewItem("u1", "fresh", today)
	other := testutil.DueItem("u2", "other", today)
	for _, it := range []models.VocabularyItem{future, dueToday, dueEarly, fresh, other} {
		require.NoError(t, repos.Vocabulary.Upsert(ctx, it))
	}

	due, err := repos.Vocabulary.ListDue(ctx, "u1", today.AddDate(0, 0, 1), 0)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, dueEarly.ID, due[0].ID)
	assert.Equal(t, dueToday.ID, due[1].ID)

	rec := srs.NewRecord("r1", dueEarly.ID, "u1", today)
	require.NoError(t, repos.Vocabulary.SaveReview(ctx, dueEarly, rec, nil))

	news, err := repos.Vocabulary.ListNew(ctx, "u1", 10)
	require.NoError(t, err)
	ids := make([]string, 0, len(news))
	for _, n := range news {
		ids = append(ids, n.ID)
	}
	assert.NotContains(t, ids, dueEarly.ID)
	assert.Contains(t, ids, fresh.ID)
	assert.NotContains(t, ids, other.ID)
}

func TestSaveReviewKeepsRecordIdentity(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories()
	now := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	item := testutil.NewItem("u1", "casa", now)
	require.NoError(t, repos.Vocabulary.Upsert(ctx, item))

	rec, graded := srs.ApplyReview(srs.NewRecord("first", item.ID, "u1", now), item, srs.QualityPerfect, now)
	require.NoError(t, repos.Vocabulary.SaveReview(ctx, graded, rec, nil))

	rec2, graded2 := srs.ApplyReview(rec, graded, srs.QualityPerfect, now.AddDate(0, 0, 1))
	rec2.ID = "second"
	require.NoError(t, repos.Vocabulary.SaveReview(ctx, graded2, rec2, nil))

	stored, err := repos.Reviews.Get(ctx, item.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, "first", stored.ID)
	assert.Equal(t, 2, stored.RepetitionNumber)

	got, err := repos.Vocabulary.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.TimesReviewed)
}

func TestDeleteRemovesReviews(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories()
	item := testutil.NewItem("u1", "luz", testutil.Day(2024, 1, 1))
	require.NoError(t, repos.Vocabulary.SaveReview(ctx, item, srs.NewRecord("r", item.ID, "u1", item.CreatedAt), nil))

	require.NoError(t, repos.Vocabulary.Delete(ctx, item.ID))
	_, err := repos.Reviews.Get(ctx, item.ID, "u1")
	assert.ErrorIs(t, err, errors.ErrNotFound)
	assert.ErrorIs(t, repos.Vocabulary.Delete(ctx, item.ID), errors.ErrNotFound)
}

func TestChangesUniquePerVocabularyID(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories()
	now := testutil.Day(2024, 1, 1)
	item := testutil.NewItem("u1", "sol", now)

	first := models.PendingChange{ID: "c1", Operation: models.OpCreate, VocabularyID: item.ID, Payload: item, Timestamp: now}
	require.NoError(t, repos.Changes.Put(ctx, first))

	dup := first
	dup.ID = "c2"
	assert.ErrorIs(t, repos.Changes.Put(ctx, dup), errors.ErrValidation)

	first.Operation = models.OpUpdate
	require.NoError(t, repos.Changes.Put(ctx, first))
	got, err := repos.Changes.GetByVocabularyID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OpUpdate, got.Operation)

	require.NoError(t, repos.Changes.Delete(ctx, "c1"))
	list, err := repos.Changes.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSaveReviewWithRejectedChangeWritesNothing(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories()
	now := testutil.Day(2024, 1, 1)
	item := testutil.NewItem("u1", "nube", now)
	require.NoError(t, repos.Vocabulary.Upsert(ctx, item))
	queued := models.PendingChange{ID: "c1", Operation: models.OpCreate, VocabularyID: item.ID, Payload: item, Timestamp: now}
	require.NoError(t, repos.Changes.Put(ctx, queued))

	rec, graded := srs.ApplyReview(srs.NewRecord("r", item.ID, "u1", now), item, 5, now)
	other := models.PendingChange{ID: "c2", Operation: models.OpUpdate, VocabularyID: item.ID, Payload: graded, Timestamp: now}
	assert.ErrorIs(t, repos.Vocabulary.SaveReview(ctx, graded, rec, &other), errors.ErrValidation)

	got, err := repos.Vocabulary.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Zero(t, got.TimesReviewed)
	_, err = repos.Reviews.Get(ctx, item.ID, "u1")
	assert.ErrorIs(t, err, errors.ErrNotFound)

	queued.Payload = graded
	require.NoError(t, repos.Vocabulary.SaveReview(ctx, graded, rec, &queued))
	change, err := repos.Changes.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, change.Payload.TimesReviewed)
}

func TestSessionsListRecent(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories()
	base := testutil.Day(2024, 1, 1)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, repos.Sessions.Save(ctx, models.ReviewSession{
			ID: id, OwnerID: "u1", Status: models.SessionCompleted, StartedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}
	recent, err := repos.Sessions.ListRecent(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "c", recent[0].ID)
	assert.Equal(t, "b", recent[1].ID)
}
