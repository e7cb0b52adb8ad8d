package sqlite_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/vytor/wordflash/internal/errors"
	"github.com/vytor/wordflash/internal/models"
	"github.com/vytor/wordflash/internal/repository"
	"github.com/vytor/wordflash/internal/repository/sqlite"
	"github.com/vytor/wordflash/internal/testutil"
)

type ChangeRepositorySuite struct {
	suite.Suite
	db   *sql.DB
	repo repository.ChangeRepository
}

func (s *ChangeRepositorySuite) SetupTest() {
	s.db = testutil.NewTestDB(s.T())
	s.repo = sqlite.NewChangeRepository(s.db)
}

func (s *ChangeRepositorySuite) TearDownTest() {
	testutil.MustClose(s.T(), s.db)
}

func (s *ChangeRepositorySuite) change(id, vocabularyID string, op models.Operation, ts time.Time) models.PendingChange {
	item := testutil.NewItem("owner", "wort-"+id, ts)
	item.ID = vocabularyID
	return models.PendingChange{
		ID:           id,
		Operation:    op,
		VocabularyID: vocabularyID,
		Payload:      item,
		Timestamp:    ts,
	}
}

func (s *ChangeRepositorySuite) TestPutGetRoundTrip() {
	ctx := context.Background()
	ts := time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)
	c := s.change("c1", "v1", models.OpCreate, ts)

	s.Require().NoError(s.repo.Put(ctx, c))

	got, err := s.repo.Get(ctx, "c1")
	s.Require().NoError(err)
	s.Assert().Equal(models.OpCreate, got.Operation)
	s.Assert().Equal("v1", got.VocabularyID)
	s.Assert().Equal(c.Payload.Word, got.Payload.Word)
	s.Assert().Equal(c.Payload.Examples, got.Payload.Examples)
	s.Assert().True(ts.Equal(got.Timestamp))
	s.Assert().Nil(got.NextRetryAt)

	byVocab, err := s.repo.GetByVocabularyID(ctx, "v1")
	s.Require().NoError(err)
	s.Assert().Equal("c1", byVocab.ID)
}

func (s *ChangeRepositorySuite) TestPutReplacesExisting() {
	ctx := context.Background()
	ts := time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)
	c := s.change("c1", "v1", models.OpUpdate, ts)
	s.Require().NoError(s.repo.Put(ctx, c))

	next := ts.Add(time.Minute)
	c.RetryCount = 2
	c.NextRetryAt = &next
	c.Stuck = true
	c.LastError = "timeout"
	s.Require().NoError(s.repo.Put(ctx, c))

	all, err := s.repo.List(ctx)
	s.Require().NoError(err)
	s.Require().Len(all, 1)
	s.Assert().Equal(2, all[0].RetryCount)
	s.Assert().True(all[0].Stuck)
	s.Assert().Equal("timeout", all[0].LastError)
	s.Require().NotNil(all[0].NextRetryAt)
	s.Assert().True(next.Equal(*all[0].NextRetryAt))
}

func (s *ChangeRepositorySuite) TestListOrderedByTimestamp() {
	ctx := context.Background()
	base := time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)
	s.Require().NoError(s.repo.Put(ctx, s.change("late", "v2", models.OpUpdate, base.Add(time.Hour))))
	s.Require().NoError(s.repo.Put(ctx, s.change("early", "v1", models.OpDelete, base)))

	all, err := s.repo.List(ctx)
	s.Require().NoError(err)
	s.Require().Len(all, 2)
	s.Assert().Equal("early", all[0].ID)
	s.Assert().Equal("late", all[1].ID)
}

func (s *ChangeRepositorySuite) TestDelete() {
	ctx := context.Background()
	s.Require().NoError(s.repo.Put(ctx, s.change("c1", "v1", models.OpUpdate, time.Now())))

	s.Require().NoError(s.repo.Delete(ctx, "c1"))
	_, err := s.repo.Get(ctx, "c1")
	s.Assert().ErrorIs(err, errors.ErrNotFound)
	s.Assert().ErrorIs(s.repo.Delete(ctx, "c1"), errors.ErrNotFound)
}

func TestChangeRepositorySuite(t *testing.T) {
	suite.Run(t, new(ChangeRepositorySuite))
}

type SessionRepositorySuite struct {
	suite.Suite
	db   *sql.DB
	repo repository.SessionRepository
}

func (s *SessionRepositorySuite) SetupTest() {
	s.db = testutil.NewTestDB(s.T())
	s.repo = sqlite.NewSessionRepository(s.db)
}

func (s *SessionRepositorySuite) TearDownTest() {
	testutil.MustClose(s.T(), s.db)
}

func (s *SessionRepositorySuite) TestSaveAndList() {
	ctx := context.Background()
	started := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

	first := models.ReviewSession{ID: "s1", OwnerID: "owner", Status: models.SessionActive, StartedAt: started, TotalCards: 3}
	second := models.ReviewSession{ID: "s2", OwnerID: "owner", Status: models.SessionActive, StartedAt: started.Add(time.Hour), TotalCards: 2}
	s.Require().NoError(s.repo.Save(ctx, first))
	s.Require().NoError(s.repo.Save(ctx, second))

	done := started.Add(10 * time.Minute)
	first.Status = models.SessionCompleted
	first.CompletedAt = &done
	first.CardsCompleted = 3
	first.Successes = 2
	first.Accuracy = 200.0 / 3
	s.Require().NoError(s.repo.Save(ctx, first))

	got, err := s.repo.Get(ctx, "s1")
	s.Require().NoError(err)
	s.Assert().Equal(models.SessionCompleted, got.Status)
	s.Require().NotNil(got.CompletedAt)
	s.Assert().True(done.Equal(*got.CompletedAt))
	s.Assert().InDelta(66.67, got.Accuracy, 0.01)

	recent, err := s.repo.ListRecent(ctx, "owner", 10)
	s.Require().NoError(err)
	s.Require().Len(recent, 2)
	s.Assert().Equal("s2", recent[0].ID)
	s.Assert().Nil(recent[0].CompletedAt)

	_, err = s.repo.Get(ctx, "missing")
	s.Assert().ErrorIs(err, errors.ErrNotFound)
}

func TestSessionRepositorySuite(t *testing.T) {
	suite.Run(t, new(SessionRepositorySuite))
}
