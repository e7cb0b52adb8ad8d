package repository

import (
	"context"
	"time"

	"github.com/vytor/wordflash/internal/models"
)

// Every backend (sqlite, memory) implements the same capability: get, list,
// list by an indexed column, put, delete. Missing rows are reported as
// errors.ErrNotFound.

// VocabularyRepository handles vocabulary item data access
type VocabularyRepository interface {
	Get(ctx context.Context, id string) (*models.VocabularyItem, error)
	List(ctx context.Context, filter models.VocabularyFilter) ([]models.VocabularyItem, error)
	// ListDue returns items whose next review is strictly before cutoff, earliest first.
	ListDue(ctx context.Context, ownerID string, cutoff time.Time, limit int) ([]models.VocabularyItem, error)
	// ListNew returns items that have no review record for ownerID, oldest first.
	ListNew(ctx context.Context, ownerID string, limit int) ([]models.VocabularyItem, error)
	Upsert(ctx context.Context, item models.VocabularyItem) error
	Delete(ctx context.Context, id string) error
	MarkClean(ctx context.Context, id string) error
	// SaveReview writes the graded item, its review record and, if change is
	// not nil, the pending change for it atomically.
	SaveReview(ctx context.Context, item models.VocabularyItem, rec models.ReviewRecord, change *models.PendingChange) error
}

// ReviewRepository handles review record data access
type ReviewRepository interface {
	Get(ctx context.Context, vocabularyID, ownerID string) (*models.ReviewRecord, error)
	ListByOwner(ctx context.Context, ownerID string) ([]models.ReviewRecord, error)
}

// ChangeRepository persists the pending change log
type ChangeRepository interface {
	Get(ctx context.Context, id string) (*models.PendingChange, error)
	GetByVocabularyID(ctx context.Context, vocabularyID string) (*models.PendingChange, error)
	List(ctx context.Context) ([]models.PendingChange, error)
	Put(ctx context.Context, change models.PendingChange) error
	Delete(ctx context.Context, id string) error
}

// SessionRepository handles review session data access
type SessionRepository interface {
	Get(ctx context.Context, id string) (*models.ReviewSession, error)
	Save(ctx context.Context, session models.ReviewSession) error
	ListRecent(ctx context.Context, ownerID string, limit int) ([]models.ReviewSession, error)
}

// Repositories groups one backend's implementations.
type Repositories struct {
	Vocabulary VocabularyRepository
	Reviews    ReviewRepository
	Changes    ChangeRepository
	Sessions   SessionRepository
}
