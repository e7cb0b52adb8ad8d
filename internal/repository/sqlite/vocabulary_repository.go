package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/vytor/wordflash/internal/db"
	apperrors "github.com/vytor/wordflash/internal/errors"
	"github.com/vytor/wordflash/internal/logger"
	"github.com/vytor/wordflash/internal/models"
	"github.com/vytor/wordflash/internal/repository"
)

var vocabularyColumns = []string{
	"v.id", "v.owner_id", "v.word", "v.translation", "v.mastery_level", "v.difficulty", "v.examples",
	"v.times_reviewed", "v.times_correct", "v.streak", "v.ease", "v.interval_days",
	"v.last_reviewed_at", "v.next_review_at", "v.created_at", "v.updated_at", "v.dirty",
}

type vocabularyRepository struct {
	db *sql.DB
}

// NewVocabularyRepository creates a new VocabularyRepository implementation
func NewVocabularyRepository(db *sql.DB) repository.VocabularyRepository {
	return &vocabularyRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (models.VocabularyItem, error) {
	var (
		v              models.VocabularyItem
		mastery        string
		examples       string
		lastReviewedAt sql.NullTime
		nextReviewAt   sql.NullTime
		dirty          int
	)
	err := row.Scan(&v.ID, &v.OwnerID, &v.Word, &v.Translation, &mastery, &v.Difficulty, &examples,
		&v.TimesReviewed, &v.TimesCorrect, &v.Streak, &v.Ease, &v.IntervalDays,
		&lastReviewedAt, &nextReviewAt, &v.CreatedAt, &v.UpdatedAt, &dirty)
	if err != nil {
		return v, err
	}
	v.MasteryLevel = models.MasteryLevel(mastery)
	if err := json.Unmarshal([]byte(examples), &v.Examples); err != nil {
		return v, fmt.Errorf("decode examples of %s: %w", v.ID, err)
	}
	v.LastReviewedAt = timePtr(lastReviewedAt)
	v.NextReviewAt = timePtr(nextReviewAt)
	v.CreatedAt = v.CreatedAt.UTC()
	v.UpdatedAt = v.UpdatedAt.UTC()
	v.Dirty = dirty != 0
	return v, nil
}

func (r *vocabularyRepository) query(ctx context.Context, log *logger.Logger, q squirrel.SelectBuilder) ([]models.VocabularyItem, error) {
	query, args, err := q.ToSql()
	if err != nil {
		log.Error("failed to build query: %v", err)
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query vocabulary: %v", err)
		return nil, db.Classify(err)
	}
	defer rows.Close()

	var items []models.VocabularyItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			log.Error("failed to scan vocabulary row: %v", err)
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *vocabularyRepository) Get(ctx context.Context, id string) (*models.VocabularyItem, error) {
	log := logger.FromContext(ctx).WithPrefix("vocabulary_repo")
	log.Debug("getting vocabulary item: id=%s", id)

	query, args, err := sqlBuilder.Select(vocabularyColumns...).
		From("vocabulary_items v").
		Where(squirrel.Eq{"v.id": id}).
		ToSql()
	if err != nil {
		return nil, err
	}

	item, err := scanItem(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		log.Debug("vocabulary item not found: id=%s", id)
		return nil, apperrors.NewNotFoundError("vocabulary item", id)
	}
	if err != nil {
		log.Error("failed to get vocabulary item: %v", err)
		return nil, db.Classify(err)
	}
	return &item, nil
}

func (r *vocabularyRepository) List(ctx context.Context, filter models.VocabularyFilter) ([]models.VocabularyItem, error) {
	log := logger.FromContext(ctx).WithPrefix("vocabulary_repo")
	log.Debug("listing vocabulary: owner_id=%s, mastery=%s, dirty_only=%t", filter.OwnerID, filter.MasteryLevel, filter.DirtyOnly)

	q := sqlBuilder.Select(vocabularyColumns...).From("vocabulary_items v")
	if filter.OwnerID != "" {
		q = q.Where(squirrel.Eq{"v.owner_id": filter.OwnerID})
	}
	if filter.MasteryLevel != "" {
		q = q.Where(squirrel.Eq{"v.mastery_level": string(filter.MasteryLevel)})
	}
	if filter.DirtyOnly {
		q = q.Where(squirrel.Eq{"v.dirty": 1})
	}
	q = q.OrderBy("v.created_at ASC", "v.id ASC")
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}

	items, err := r.query(ctx, log, q)
	if err != nil {
		return nil, err
	}
	log.Debug("found %d vocabulary items", len(items))
	return items, nil
}

func (r *vocabularyRepository) ListDue(ctx context.Context, ownerID string, cutoff time.Time, limit int) ([]models.VocabularyItem, error) {
	log := logger.FromContext(ctx).WithPrefix("vocabulary_repo")
	log.Debug("listing due vocabulary: owner_id=%s, cutoff=%s, limit=%d", ownerID, cutoff.Format(time.RFC3339), limit)

	q := sqlBuilder.Select(vocabularyColumns...).
		From("vocabulary_items v").
		Where(squirrel.Eq{"v.owner_id": ownerID}).
		Where(squirrel.NotEq{"v.next_review_at": nil}).
		Where(squirrel.Lt{"v.next_review_at": utc(cutoff)}).
		OrderBy("v.next_review_at ASC", "v.id ASC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	items, err := r.query(ctx, log, q)
	if err != nil {
		return nil, err
	}
	log.Debug("found %d due items", len(items))
	return items, nil
}

func (r *vocabularyRepository) ListNew(ctx context.Context, ownerID string, limit int) ([]models.VocabularyItem, error) {
	log := logger.FromContext(ctx).WithPrefix("vocabulary_repo")
	log.Debug("listing new vocabulary: owner_id=%s, limit=%d", ownerID, limit)

	q := sqlBuilder.Select(vocabularyColumns...).
		From("vocabulary_items v").
		LeftJoin("review_records r ON r.vocabulary_id = v.id AND r.owner_id = v.owner_id").
		Where(squirrel.Eq{"v.owner_id": ownerID}).
		Where(squirrel.Eq{"r.id": nil}).
		OrderBy("v.created_at ASC", "v.id ASC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	items, err := r.query(ctx, log, q)
	if err != nil {
		return nil, err
	}
	log.Debug("found %d new items", len(items))
	return items, nil
}

func upsertItem(ctx context.Context, exec squirrel.ExecerContext, v models.VocabularyItem) error {
	examples := v.Examples
	if examples == nil {
		examples = []string{}
	}
	encoded, err := json.Marshal(examples)
	if err != nil {
		return fmt.Errorf("encode examples of %s: %w", v.ID, err)
	}

	query, args, err := sqlBuilder.Insert("vocabulary_items").
		Columns("id", "owner_id", "word", "translation", "mastery_level", "difficulty", "examples",
			"times_reviewed", "times_correct", "streak", "ease", "interval_days",
			"last_reviewed_at", "next_review_at", "created_at", "updated_at", "dirty").
		Values(v.ID, v.OwnerID, v.Word, v.Translation, string(v.MasteryLevel), v.Difficulty, string(encoded),
			v.TimesReviewed, v.TimesCorrect, v.Streak, v.Ease, v.IntervalDays,
			nullTime(v.LastReviewedAt), nullTime(v.NextReviewAt), utc(v.CreatedAt), utc(v.UpdatedAt), boolInt(v.Dirty)).
		Suffix(`ON CONFLICT(id) DO UPDATE SET
    owner_id = excluded.owner_id, word = excluded.word, translation = excluded.translation,
    mastery_level = excluded.mastery_level, difficulty = excluded.difficulty, examples = excluded.examples,
    times_reviewed = excluded.times_reviewed, times_correct = excluded.times_correct, streak = excluded.streak,
    ease = excluded.ease, interval_days = excluded.interval_days,
    last_reviewed_at = excluded.last_reviewed_at, next_review_at = excluded.next_review_at,
    updated_at = excluded.updated_at, dirty = excluded.dirty`).
		ToSql()
	if err != nil {
		return err
	}
	_, err = exec.ExecContext(ctx, query, args...)
	return err
}

func (r *vocabularyRepository) Upsert(ctx context.Context, v models.VocabularyItem) error {
	log := logger.FromContext(ctx).WithPrefix("vocabulary_repo")
	log.Debug("upserting vocabulary item: id=%s, dirty=%t", v.ID, v.Dirty)

	if err := upsertItem(ctx, r.db, v); err != nil {
		log.Error("failed to upsert vocabulary item: %v", err)
		return db.Classify(err)
	}
	return nil
}

func (r *vocabularyRepository) Delete(ctx context.Context, id string) error {
	log := logger.FromContext(ctx).WithPrefix("vocabulary_repo")
	log.Debug("deleting vocabulary item: id=%s", id)

	res, err := r.db.ExecContext(ctx, `DELETE FROM vocabulary_items WHERE id = ?`, id)
	if err != nil {
		log.Error("failed to delete vocabulary item: %v", err)
		return db.Classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NewNotFoundError("vocabulary item", id)
	}
	return nil
}

func (r *vocabularyRepository) MarkClean(ctx context.Context, id string) error {
	log := logger.FromContext(ctx).WithPrefix("vocabulary_repo")
	log.Debug("marking vocabulary item clean: id=%s", id)

	res, err := r.db.ExecContext(ctx, `UPDATE vocabulary_items SET dirty = 0 WHERE id = ?`, id)
	if err != nil {
		log.Error("failed to mark vocabulary item clean: %v", err)
		return db.Classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NewNotFoundError("vocabulary item", id)
	}
	return nil
}

func (r *vocabularyRepository) SaveReview(ctx context.Context, item models.VocabularyItem, rec models.ReviewRecord, change *models.PendingChange) error {
	log := logger.FromContext(ctx).WithPrefix("vocabulary_repo")
	log.Debug("saving review: vocabulary_id=%s, quality=%d, interval=%d, ease=%.2f", item.ID, rec.LastQuality, rec.IntervalDays, rec.EaseFactor)

	return tx(ctx, r.db, func(tx *sql.Tx) error {
		if err := upsertItem(ctx, tx, item); err != nil {
			return err
		}
		query, args, err := sqlBuilder.Insert("review_records").
			Columns("id", "vocabulary_id", "owner_id", "ease_factor", "repetition_number", "interval_days",
				"next_review_date", "last_quality", "created_at", "updated_at").
			Values(rec.ID, rec.VocabularyID, rec.OwnerID, rec.EaseFactor, rec.RepetitionNumber, rec.IntervalDays,
				utc(rec.NextReviewDate), rec.LastQuality, utc(rec.CreatedAt), utc(rec.UpdatedAt)).
			Suffix(`ON CONFLICT(vocabulary_id, owner_id) DO UPDATE SET
    ease_factor = excluded.ease_factor, repetition_number = excluded.repetition_number,
    interval_days = excluded.interval_days, next_review_date = excluded.next_review_date,
    last_quality = excluded.last_quality, updated_at = excluded.updated_at`).
			ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
		if change == nil {
			return nil
		}
		return putChange(ctx, tx, *change)
	})
}
