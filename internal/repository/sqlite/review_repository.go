package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/vytor/wordflash/internal/db"
	apperrors "github.com/vytor/wordflash/internal/errors"
	"github.com/vytor/wordflash/internal/logger"
	"github.com/vytor/wordflash/internal/models"
	"github.com/vytor/wordflash/internal/repository"
)

type reviewRepository struct {
	db *sql.DB
}

// NewReviewRepository creates a new ReviewRepository implementation
func NewReviewRepository(db *sql.DB) repository.ReviewRepository {
	return &reviewRepository{db: db}
}

const reviewColumns = `id, vocabulary_id, owner_id, ease_factor, repetition_number, interval_days,
       next_review_date, last_quality, created_at, updated_at`

func scanReview(row rowScanner) (models.ReviewRecord, error) {
	var rec models.ReviewRecord
	err := row.Scan(&rec.ID, &rec.VocabularyID, &rec.OwnerID, &rec.EaseFactor, &rec.RepetitionNumber, &rec.IntervalDays,
		&rec.NextReviewDate, &rec.LastQuality, &rec.CreatedAt, &rec.UpdatedAt)
	rec.NextReviewDate = rec.NextReviewDate.UTC()
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return rec, err
}

func (r *reviewRepository) Get(ctx context.Context, vocabularyID, ownerID string) (*models.ReviewRecord, error) {
	log := logger.FromContext(ctx).WithPrefix("review_repo")
	log.Debug("getting review record: vocabulary_id=%s, owner_id=%s", vocabularyID, ownerID)

	rec, err := scanReview(r.db.QueryRowContext(ctx, `
SELECT `+reviewColumns+`
FROM review_records
WHERE vocabulary_id = ? AND owner_id = ?
`, vocabularyID, ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		log.Debug("review record not found: vocabulary_id=%s", vocabularyID)
		return nil, apperrors.NewNotFoundError("review record", vocabularyID)
	}
	if err != nil {
		log.Error("failed to get review record: %v", err)
		return nil, db.Classify(err)
	}
	return &rec, nil
}

func (r *reviewRepository) ListByOwner(ctx context.Context, ownerID string) ([]models.ReviewRecord, error) {
	log := logger.FromContext(ctx).WithPrefix("review_repo")
	log.Debug("listing review records: owner_id=%s", ownerID)

	rows, err := r.db.QueryContext(ctx, `
SELECT `+reviewColumns+`
FROM review_records
WHERE owner_id = ?
ORDER BY next_review_date ASC, id ASC
`, ownerID)
	if err != nil {
		log.Error("failed to list review records: %v", err)
		return nil, db.Classify(err)
	}
	defer rows.Close()

	var out []models.ReviewRecord
	for rows.Next() {
		rec, err := scanReview(rows)
		if err != nil {
			log.Error("failed to scan review row: %v", err)
			return nil, err
		}
		out = append(out, rec)
	}
	log.Debug("found %d review records", len(out))
	return out, rows.Err()
}
