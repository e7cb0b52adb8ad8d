package session

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vytor/wordflash/internal/changequeue"
	"github.com/vytor/wordflash/internal/errors"
	"github.com/vytor/wordflash/internal/models"
	"github.com/vytor/wordflash/internal/repository"
	"github.com/vytor/wordflash/internal/repository/memory"
	"github.com/vytor/wordflash/internal/services"
	"github.com/vytor/wordflash/internal/srs"
	"github.com/vytor/wordflash/internal/testutil"
	"github.com/vytor/wordflash/internal/testutil/mocks"
	"github.com/vytor/wordflash/internal/vocabulary"
)

var now = time.Date(2024, 9, 2, 18, 30, 0, 0, time.UTC)

type env struct {
	repos repository.Repositories
	svc   services.VocabularyService
	store *vocabulary.Store
}

func newEnv(t *testing.T) *env {
	t.Helper()
	repos := memory.NewRepositories()
	store := vocabulary.NewStore(repos, "u1", false)
	svc := services.NewVocabularyService(store, changequeue.New(repos.Changes), services.VocabularyOptions{
		OfflineAuthoritative: true,
		Now:                  func() time.Time { return now },
	})
	return &env{repos: repos, svc: svc, store: store}
}

func (e *env) seedDue(t *testing.T, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		item := testutil.DueItem("u1", "due", srs.Today(now))
		rec := srs.NewRecord("rec-"+item.ID, item.ID, "u1", now.AddDate(0, 0, -10))
		rec.RepetitionNumber = 2
		rec.IntervalDays = 6
		rec.NextReviewDate = srs.Today(now)
		require.NoError(t, e.repos.Vocabulary.SaveReview(context.Background(), item, rec, nil))
		ids = append(ids, item.ID)
	}
	return ids
}

func (e *env) seedNew(t *testing.T, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		item := testutil.NewItem("u1", "new", now.Add(time.Duration(i)*time.Second))
		require.NoError(t, e.store.PutConfirmed(context.Background(), item))
		ids = append(ids, item.ID)
	}
	return ids
}

func (e *env) manager(opts ...Option) *Manager {
	opts = append([]Option{WithClock(func() time.Time { return now })}, opts...)
	return NewManager(e.svc, e.repos.Sessions, "u1", opts...)
}

func TestStartSessionFillsWithNewItems(t *testing.T) {
	e := newEnv(t)
	due := e.seedDue(t, 5)
	e.seedNew(t, 30)

	shuffled := 0
	rng := rand.New(rand.NewPCG(7, 11))
	m := e.manager(WithShuffle(func(n int, swap func(i, j int)) {
		shuffled = n
		rng.Shuffle(n, swap)
	}))

	s, err := m.StartSession(context.Background(), 20)
	require.NoError(t, err)
	assert.Equal(t, 20, s.TotalCards)
	assert.Equal(t, 20, shuffled)
	assert.Equal(t, Active, m.State())

	seen := map[string]bool{}
	dueCount := 0
	dueSet := map[string]bool{}
	for _, id := range due {
		dueSet[id] = true
	}
	for m.State() == Active {
		card, ok := m.Current()
		require.True(t, ok)
		assert.False(t, seen[card.ID], "card presented twice")
		seen[card.ID] = true
		if dueSet[card.ID] {
			dueCount++
		}
		_, err := m.SubmitReview(context.Background(), srs.QualityEasy)
		require.NoError(t, err)
	}
	assert.Len(t, seen, 20)
	assert.Equal(t, 5, dueCount)
}

func TestStartSessionWithoutCards(t *testing.T) {
	m := newEnv(t).manager()
	_, err := m.StartSession(context.Background(), 10)
	assert.ErrorIs(t, err, errors.ErrNoCardsAvailable)
	assert.Equal(t, Idle, m.State())
	_, ok := m.Session()
	assert.False(t, ok)
}

func TestStartSessionRejectsBadLimit(t *testing.T) {
	m := newEnv(t).manager()
	_, err := m.StartSession(context.Background(), 0)
	assert.ErrorIs(t, err, errors.ErrValidation)
	assert.Equal(t, Idle, m.State())
}

func TestSubmitReviewTracksAccuracyUntilCompleted(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.seedNew(t, 3)
	m := e.manager()

	first, err := m.StartSession(ctx, 20)
	require.NoError(t, err)
	assert.Equal(t, 3, first.TotalCards)

	res, err := m.SubmitReview(ctx, srs.QualityPerfect)
	require.NoError(t, err)
	require.NotNil(t, res.Next)
	assert.Equal(t, 1, res.Item.TimesReviewed)

	_, err = m.SubmitReview(ctx, srs.QualityHard)
	require.NoError(t, err)
	res, err = m.SubmitReview(ctx, srs.QualityEasy)
	require.NoError(t, err)

	assert.Nil(t, res.Next)
	assert.Equal(t, Completed, m.State())
	assert.Equal(t, 3, res.Session.CardsCompleted)
	assert.InDelta(t, 66.67, res.Session.Accuracy, 0.01)
	assert.Equal(t, models.SessionCompleted, res.Session.Status)
	require.NotNil(t, res.Session.CompletedAt)

	_, err = m.SubmitReview(ctx, srs.QualityEasy)
	assert.ErrorIs(t, err, errors.ErrInvalidState)

	stored, err := e.repos.Sessions.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, stored.Status)

	// all three are now scheduled for tomorrow or later, nothing left
	_, err = m.StartSession(ctx, 20)
	assert.ErrorIs(t, err, errors.ErrNoCardsAvailable)
}

func TestNewSessionAfterCompletionIsFresh(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.seedNew(t, 2)
	m := e.manager()

	first, err := m.StartSession(ctx, 1)
	require.NoError(t, err)
	_, err = m.SubmitReview(ctx, srs.QualityPerfect)
	require.NoError(t, err)
	require.Equal(t, Completed, m.State())

	second, err := m.StartSession(ctx, 1)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Zero(t, second.CardsCompleted)

	history, err := m.History(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestEndSessionKeepsPartialAccuracy(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.seedNew(t, 4)
	m := e.manager()

	_, err := m.StartSession(ctx, 4)
	require.NoError(t, err)
	_, err = m.SubmitReview(ctx, srs.QualityPerfect)
	require.NoError(t, err)

	s, err := m.EndSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.SessionAbandoned, s.Status)
	assert.Equal(t, 1, s.CardsCompleted)
	assert.Equal(t, 4, s.TotalCards)
	assert.InDelta(t, 100.0, s.Accuracy, 0.001)
	require.NotNil(t, s.CompletedAt)
	assert.Equal(t, Abandoned, m.State())

	_, err = m.EndSession(ctx)
	assert.ErrorIs(t, err, errors.ErrInvalidState)
}

func TestInvalidGradeLeavesCardInPlace(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.seedNew(t, 2)
	m := e.manager()
	_, err := m.StartSession(ctx, 2)
	require.NoError(t, err)

	before, _ := m.Current()
	_, err = m.SubmitReview(ctx, 9)
	assert.ErrorIs(t, err, errors.ErrInvalidGrade)

	after, _ := m.Current()
	assert.Equal(t, before.ID, after.ID)
	s, _ := m.Session()
	assert.Zero(t, s.CardsCompleted)

	item, err := e.svc.Get(ctx, before.ID)
	require.NoError(t, err)
	assert.Zero(t, item.TimesReviewed)
}

func TestStartWhileActive(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.seedNew(t, 1)
	m := e.manager()
	_, err := m.StartSession(ctx, 5)
	require.NoError(t, err)
	_, err = m.StartSession(ctx, 5)
	assert.ErrorIs(t, err, errors.ErrInvalidState)
	assert.Equal(t, Active, m.State())
}

func TestDeckIsFixedOnceStarted(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.seedNew(t, 2)
	m := e.manager()
	_, err := m.StartSession(ctx, 10)
	require.NoError(t, err)

	late := e.seedDue(t, 1)[0]
	assert.Equal(t, 2, m.Remaining())
	for m.State() == Active {
		card, _ := m.Current()
		assert.NotEqual(t, late, card.ID)
		_, err := m.SubmitReview(ctx, srs.QualityPerfect)
		require.NoError(t, err)
	}
}

func TestDeletedCardIsDropped(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.seedNew(t, 2)
	m := e.manager()
	_, err := m.StartSession(ctx, 2)
	require.NoError(t, err)

	card, _ := m.Current()
	require.NoError(t, e.svc.Delete(ctx, card.ID))

	_, err = m.SubmitReview(ctx, srs.QualityPerfect)
	assert.ErrorIs(t, err, errors.ErrNotFound)
	s, _ := m.Session()
	assert.Equal(t, 1, s.TotalCards)
	assert.Equal(t, 1, m.Remaining())

	res, err := m.SubmitReview(ctx, srs.QualityPerfect)
	require.NoError(t, err)
	assert.Equal(t, Completed, m.State())
	assert.Equal(t, 1, res.Session.CardsCompleted)
}

func TestManagersShareNothing(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.seedNew(t, 1)
	a := e.manager()
	b := e.manager()

	_, err := a.StartSession(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, Active, a.State())
	assert.Equal(t, Idle, b.State())
}

func TestStartSessionSaveFailureStaysIdle(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.seedNew(t, 1)
	sessions := new(mocks.MockSessionRepository)
	sessions.On("Save", ctx, mock.AnythingOfType("models.ReviewSession")).
		Return(errors.NewStorageUnavailableError(assert.AnError))

	m := NewManager(e.svc, sessions, "u1", WithClock(func() time.Time { return now }))
	_, err := m.StartSession(ctx, 5)
	assert.ErrorIs(t, err, errors.ErrStorageUnavailable)
	assert.Equal(t, Idle, m.State())
	sessions.AssertExpectations(t)
}
