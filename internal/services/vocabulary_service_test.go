package services

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vytor/wordflash/internal/changequeue"
	"github.com/vytor/wordflash/internal/errors"
	"github.com/vytor/wordflash/internal/models"
	"github.com/vytor/wordflash/internal/repository"
	"github.com/vytor/wordflash/internal/repository/memory"
	"github.com/vytor/wordflash/internal/vocabulary"
)

type countingNotifier struct{ n atomic.Int32 }

func (c *countingNotifier) NotifyMutation() { c.n.Add(1) }

type fixture struct {
	svc      VocabularyService
	store    *vocabulary.Store
	queue    *changequeue.Queue
	notifier *countingNotifier
	now      time.Time
}

func newFixture(t *testing.T, offline bool) *fixture {
	t.Helper()
	repos := memory.NewRepositories()
	f := &fixture{
		store:    vocabulary.NewStore(repos, "u1", false),
		queue:    changequeue.New(repos.Changes),
		notifier: &countingNotifier{},
		now:      time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC),
	}
	f.svc = NewVocabularyService(f.store, f.queue, VocabularyOptions{
		OfflineAuthoritative: offline,
		Notifier:             f.notifier,
		Now:                  func() time.Time { return f.now },
	})
	return f
}

func (f *fixture) changes(t *testing.T) []models.PendingChange {
	all, err := f.queue.All(context.Background())
	require.NoError(t, err)
	return all
}

func TestAddQueuesCreateWhenOfflineAuthoritative(t *testing.T) {
	f := newFixture(t, true)
	item, err := f.svc.Add(context.Background(), ItemInput{Word: "  gato ", Translation: "cat", Examples: []string{"", "el gato"}})
	require.NoError(t, err)

	assert.Equal(t, "gato", item.Word)
	assert.Equal(t, 5, item.Difficulty)
	assert.Equal(t, []string{"el gato"}, item.Examples)
	assert.Equal(t, models.MasteryNew, item.MasteryLevel)

	changes := f.changes(t)
	require.Len(t, changes, 1)
	assert.Equal(t, models.OpCreate, changes[0].Operation)
	assert.Equal(t, item.ID, changes[0].VocabularyID)
	assert.Equal(t, int32(1), f.notifier.n.Load())
}

func TestLocalOnlyDoesNotQueue(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.svc.Add(context.Background(), ItemInput{Word: "perro"})
	require.NoError(t, err)
	assert.Empty(t, f.changes(t))
	assert.Zero(t, f.notifier.n.Load())
}

func TestAddRejectsInvalidItem(t *testing.T) {
	f := newFixture(t, true)
	_, err := f.svc.Add(context.Background(), ItemInput{Word: " "})
	assert.ErrorIs(t, err, errors.ErrValidation)
	assert.Empty(t, f.changes(t))
}

func TestReviewCoalescesIntoPendingCreate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	item, err := f.svc.Add(ctx, ItemInput{Word: "casa"})
	require.NoError(t, err)

	f.now = f.now.Add(time.Minute)
	reviewed, err := f.svc.Review(ctx, item.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, reviewed.TimesReviewed)

	changes := f.changes(t)
	require.Len(t, changes, 1)
	assert.Equal(t, models.OpCreate, changes[0].Operation)
	assert.Equal(t, 1, changes[0].Payload.TimesReviewed)
}

func TestReviewInvalidGradeMutatesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	item, err := f.svc.Add(ctx, ItemInput{Word: "mar"})
	require.NoError(t, err)
	before := f.changes(t)

	for _, q := range []int{-1, 6} {
		_, err := f.svc.Review(ctx, item.ID, q)
		assert.ErrorIs(t, err, errors.ErrInvalidGrade)
	}

	got, err := f.svc.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Zero(t, got.TimesReviewed)
	assert.Equal(t, before, f.changes(t))
}

// failingReviews fails every review write that carries a queued change.
type failingReviews struct {
	repository.VocabularyRepository
	fail bool
}

func (f *failingReviews) SaveReview(ctx context.Context, item models.VocabularyItem, rec models.ReviewRecord, change *models.PendingChange) error {
	if f.fail && change != nil {
		return fmt.Errorf("disk full")
	}
	return f.VocabularyRepository.SaveReview(ctx, item, rec, change)
}

func TestReviewRetriedAfterFailedWriteGradesOnce(t *testing.T) {
	ctx := context.Background()
	repos := memory.NewRepositories()
	items := &failingReviews{VocabularyRepository: repos.Vocabulary}
	repos.Vocabulary = items
	queue := changequeue.New(repos.Changes)
	svc := NewVocabularyService(vocabulary.NewStore(repos, "u1", false), queue, VocabularyOptions{OfflineAuthoritative: true})

	item, err := svc.Add(ctx, ItemInput{Word: "pan"})
	require.NoError(t, err)

	items.fail = true
	_, err = svc.Review(ctx, item.ID, 4)
	assert.ErrorIs(t, err, errors.ErrInternal)

	got, err := svc.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Zero(t, got.TimesReviewed)
	_, err = repos.Reviews.Get(ctx, item.ID, "u1")
	assert.ErrorIs(t, err, errors.ErrNotFound)
	change, err := queue.ForItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Zero(t, change.Payload.TimesReviewed)

	items.fail = false
	reviewed, err := svc.Review(ctx, item.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, 1, reviewed.TimesReviewed)
	change, err = queue.ForItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OpCreate, change.Operation)
	assert.Equal(t, 1, change.Payload.TimesReviewed)
}

func TestUpdateUsesConfirmedVersionAsBase(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	item, err := f.svc.Add(ctx, ItemInput{Word: "sol"})
	require.NoError(t, err)

	// pretend the create was confirmed by the remote store
	changes := f.changes(t)
	require.NoError(t, f.queue.Remove(ctx, changes[0].ID))
	require.NoError(t, f.store.MarkSynced(ctx, item.ID))

	f.now = f.now.Add(time.Hour)
	updated, err := f.svc.Update(ctx, item.ID, ItemInput{Word: "sol", Translation: "sun", Difficulty: 3})
	require.NoError(t, err)
	assert.Equal(t, "sun", updated.Translation)
	assert.True(t, updated.UpdatedAt.Equal(f.now))

	changes = f.changes(t)
	require.Len(t, changes, 1)
	assert.Equal(t, models.OpUpdate, changes[0].Operation)
	assert.True(t, changes[0].BaseTimestamp.Equal(item.UpdatedAt))
}

func TestDeleteWinsOverPendingUpdate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	item, err := f.svc.Add(ctx, ItemInput{Word: "luna"})
	require.NoError(t, err)
	_, err = f.svc.Update(ctx, item.ID, ItemInput{Word: "luna", Translation: "moon"})
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, item.ID))
	changes := f.changes(t)
	require.Len(t, changes, 1)
	assert.Equal(t, models.OpDelete, changes[0].Operation)

	_, err = f.svc.Get(ctx, item.ID)
	assert.ErrorIs(t, err, errors.ErrNotFound)
	assert.ErrorIs(t, f.svc.Delete(ctx, item.ID), errors.ErrNotFound)
}

func TestUpdateMissing(t *testing.T) {
	f := newFixture(t, true)
	_, err := f.svc.Update(context.Background(), "ghost", ItemInput{Word: "x"})
	assert.ErrorIs(t, err, errors.ErrNotFound)
}
