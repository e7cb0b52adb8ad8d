package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/vytor/wordflash/internal/db"
	apperrors "github.com/vytor/wordflash/internal/errors"
	"github.com/vytor/wordflash/internal/logger"
	"github.com/vytor/wordflash/internal/models"
	"github.com/vytor/wordflash/internal/repository"
)

type sessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository creates a new SessionRepository implementation
func NewSessionRepository(conn *sql.DB) repository.SessionRepository {
	return &sessionRepository{db: sqlx.NewDb(conn, "sqlite3")}
}

func normalizeSession(s *models.ReviewSession) {
	s.StartedAt = s.StartedAt.UTC()
	if s.CompletedAt != nil {
		t := s.CompletedAt.UTC()
		s.CompletedAt = &t
	}
}

func (r *sessionRepository) Get(ctx context.Context, id string) (*models.ReviewSession, error) {
	log := logger.FromContext(ctx).WithPrefix("session_repo")
	log.Debug("getting review session: id=%s", id)

	var s models.ReviewSession
	err := r.db.GetContext(ctx, &s, `SELECT * FROM review_sessions WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("review session", id)
	}
	if err != nil {
		log.Error("failed to get review session: %v", err)
		return nil, db.Classify(err)
	}
	normalizeSession(&s)
	return &s, nil
}

func (r *sessionRepository) Save(ctx context.Context, s models.ReviewSession) error {
	log := logger.FromContext(ctx).WithPrefix("session_repo")
	log.Debug("saving review session: id=%s, status=%s, completed=%d/%d", s.ID, s.Status, s.CardsCompleted, s.TotalCards)

	normalizeSession(&s)
	_, err := r.db.NamedExecContext(ctx, `
INSERT INTO review_sessions (id, owner_id, status, started_at, completed_at, total_cards, cards_completed, successes, accuracy)
VALUES (:id, :owner_id, :status, :started_at, :completed_at, :total_cards, :cards_completed, :successes, :accuracy)
ON CONFLICT(id) DO UPDATE SET
    status = excluded.status, completed_at = excluded.completed_at, cards_completed = excluded.cards_completed,
    successes = excluded.successes, accuracy = excluded.accuracy
`, s)
	if err != nil {
		log.Error("failed to save review session: %v", err)
		return db.Classify(err)
	}
	return nil
}

func (r *sessionRepository) ListRecent(ctx context.Context, ownerID string, limit int) ([]models.ReviewSession, error) {
	log := logger.FromContext(ctx).WithPrefix("session_repo")
	log.Debug("listing recent sessions: owner_id=%s, limit=%d", ownerID, limit)

	if limit <= 0 {
		limit = 20
	}
	var out []models.ReviewSession
	err := r.db.SelectContext(ctx, &out, `
SELECT * FROM review_sessions
WHERE owner_id = ?
ORDER BY started_at DESC, id DESC
LIMIT ?
`, ownerID, limit)
	if err != nil {
		log.Error("failed to list sessions: %v", err)
		return nil, db.Classify(err)
	}
	for i := range out {
		normalizeSession(&out[i])
	}
	return out, nil
}

// NewRepositories wires every sqlite repository over one connection.
func NewRepositories(conn *sql.DB) repository.Repositories {
	return repository.Repositories{
		Vocabulary: NewVocabularyRepository(conn),
		Reviews:    NewReviewRepository(conn),
		Changes:    NewChangeRepository(conn),
		Sessions:   NewSessionRepository(conn),
	}
}
