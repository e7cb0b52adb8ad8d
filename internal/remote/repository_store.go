package remote

import (
	"context"
	"errors"
	"sync"
	"time"

	apperrors "github.com/vytor/wordflash/internal/errors"
	"github.com/vytor/wordflash/internal/logger"
	"github.com/vytor/wordflash/internal/models"
	"github.com/vytor/wordflash/internal/repository"
)

// RepositoryStore is an authoritative store over a vocabulary repository.
// It backs the HTTP server and stands in for the network in tests.
type RepositoryStore struct {
	mu   sync.Mutex
	repo repository.VocabularyRepository
}

func NewRepositoryStore(repo repository.VocabularyRepository) *RepositoryStore {
	return &RepositoryStore{repo: repo}
}

func (s *RepositoryStore) FetchItem(ctx context.Context, id string) (*models.VocabularyItem, error) {
	return s.repo.Get(ctx, id)
}

// UpsertItem rejects the write when the stored copy is newer than base.
func (s *RepositoryStore) UpsertItem(ctx context.Context, item models.VocabularyItem, base time.Time) (*models.VocabularyItem, error) {
	log := logger.FromContext(ctx).WithPrefix("remote_store")
	if err := item.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.repo.Get(ctx, item.ID)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}
	if err == nil && current.UpdatedAt.After(base) {
		log.Info("rejecting write to %s: stored %s is newer than base %s", item.ID,
			current.UpdatedAt.Format(time.RFC3339Nano), base.Format(time.RFC3339Nano))
		return nil, &VersionConflictError{Current: *current}
	}

	item.Dirty = false
	item.UpdatedAt = item.UpdatedAt.UTC()
	if err := s.repo.Upsert(ctx, item); err != nil {
		return nil, err
	}
	stored, err := s.repo.Get(ctx, item.ID)
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (s *RepositoryStore) DeleteItem(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo.Delete(ctx, id)
}
