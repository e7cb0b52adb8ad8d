// Package vocabulary is the learner's local store of items and review
// records. It is scoped to one owner and tags every local mutation dirty
// until the remote store confirms it.
package vocabulary

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/vytor/wordflash/internal/errors"
	"github.com/vytor/wordflash/internal/logger"
	"github.com/vytor/wordflash/internal/models"
	"github.com/vytor/wordflash/internal/repository"
	"github.com/vytor/wordflash/internal/srs"
)

// Store does not lock on its own. Callers composing several calls for one
// item hold Lock(id) around them.
type Store struct {
	items   repository.VocabularyRepository
	reviews repository.ReviewRepository
	ownerID string
	durable bool
	locks   *keyedMutex
	newID   func() string
}

// NewStore creates a store for ownerID over the given repositories.
func NewStore(repos repository.Repositories, ownerID string, durable bool) *Store {
	return &Store{
		items:   repos.Vocabulary,
		reviews: repos.Reviews,
		ownerID: ownerID,
		durable: durable,
		locks:   newKeyedMutex(),
		newID:   uuid.NewString,
	}
}

func (s *Store) OwnerID() string { return s.ownerID }

// Durable is false when the store runs on the in-memory fallback.
func (s *Store) Durable() bool { return s.durable }

// Lock serializes access to one vocabulary id and returns its unlock func.
func (s *Store) Lock(id string) func() {
	return s.locks.lock(id)
}

func (s *Store) GetAll(ctx context.Context) ([]models.VocabularyItem, error) {
	return s.items.List(ctx, models.VocabularyFilter{OwnerID: s.ownerID})
}

func (s *Store) GetByID(ctx context.Context, id string) (*models.VocabularyItem, error) {
	item, err := s.items.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.OwnerID != s.ownerID {
		return nil, apperrors.NewNotFoundError("vocabulary item", id)
	}
	return item, nil
}

// Upsert validates and stores a local edit, tagging it dirty.
func (s *Store) Upsert(ctx context.Context, item models.VocabularyItem) error {
	if item.OwnerID == "" {
		item.OwnerID = s.ownerID
	}
	if item.OwnerID != s.ownerID {
		return apperrors.NewValidationError("owner_id", "item belongs to another learner")
	}
	if err := item.Validate(); err != nil {
		return err
	}
	item.Dirty = true
	return s.items.Upsert(ctx, item)
}

// PutConfirmed stores a version the remote store already holds.
func (s *Store) PutConfirmed(ctx context.Context, item models.VocabularyItem) error {
	if err := item.Validate(); err != nil {
		return err
	}
	item.Dirty = false
	return s.items.Upsert(ctx, item)
}

// Delete removes the item and its review record. Deleting a missing item is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	err := s.items.Delete(ctx, id)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil
	}
	return err
}

// ListDue returns items whose next review falls on today's UTC day or earlier.
func (s *Store) ListDue(ctx context.Context, today time.Time, limit int) ([]models.VocabularyItem, error) {
	cutoff := srs.Today(today).AddDate(0, 0, 1)
	return s.items.ListDue(ctx, s.ownerID, cutoff, limit)
}

// ListNew returns items the learner has never graded.
func (s *Store) ListNew(ctx context.Context, limit int) ([]models.VocabularyItem, error) {
	return s.items.ListNew(ctx, s.ownerID, limit)
}

// ListDirty returns local edits not yet confirmed by the remote store.
func (s *Store) ListDirty(ctx context.Context) ([]models.VocabularyItem, error) {
	return s.items.List(ctx, models.VocabularyFilter{OwnerID: s.ownerID, DirtyOnly: true})
}

// MarkSynced clears the dirty tag. A missing item was deleted meanwhile and is ignored.
func (s *Store) MarkSynced(ctx context.Context, id string) error {
	err := s.items.MarkClean(ctx, id)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil
	}
	return err
}

// Record returns the learner's review record for id, if any.
func (s *Store) Record(ctx context.Context, id string) (*models.ReviewRecord, error) {
	return s.reviews.Get(ctx, id, s.ownerID)
}

// EnqueueFunc chooses the pending change to commit with a graded item and
// calls write with it, or with nil when nothing is to be queued.
type EnqueueFunc func(before, graded models.VocabularyItem, write func(*models.PendingChange) error) error

// Review grades item id and persists the item, its review record and, through
// enqueue, its pending change in one write. The record is created on first
// grading. It returns the item before and after. quality must already be
// validated; enqueue may be nil.
func (s *Store) Review(ctx context.Context, id string, quality int, now time.Time, enqueue EnqueueFunc) (before, after models.VocabularyItem, err error) {
	log := logger.FromContext(ctx).WithPrefix("vocabulary")

	item, err := s.GetByID(ctx, id)
	if err != nil {
		return before, after, err
	}

	rec, err := s.reviews.Get(ctx, id, s.ownerID)
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		r := srs.NewRecord(s.newID(), id, s.ownerID, now)
		rec = &r
	case err != nil:
		return before, after, err
	}

	newRec, graded := srs.ApplyReview(*rec, *item, quality, now)
	graded.Dirty = true
	write := func(change *models.PendingChange) error {
		return s.items.SaveReview(ctx, graded, newRec, change)
	}
	if enqueue == nil {
		err = write(nil)
	} else {
		err = enqueue(*item, graded, write)
	}
	if err != nil {
		log.Error("failed to save review of %s: %v", id, err)
		return before, after, err
	}
	log.Debug("reviewed %s: quality=%d interval=%d ease=%.2f next=%s", id, quality, newRec.IntervalDays, newRec.EaseFactor, newRec.NextReviewDate.Format("2006-01-02"))
	return *item, graded, nil
}
