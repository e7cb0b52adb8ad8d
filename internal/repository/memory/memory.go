// Package memory is a non-durable backend used when the device cannot
// persist anything and under test. Every value is copied on the way in and
// out so callers never share state with the store.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vytor/wordflash/internal/errors"
	"github.com/vytor/wordflash/internal/models"
	"github.com/vytor/wordflash/internal/repository"
)

type reviewKey struct {
	vocabularyID string
	ownerID      string
}

type backend struct {
	mu       sync.RWMutex
	items    map[string]models.VocabularyItem
	reviews  map[reviewKey]models.ReviewRecord
	changes  map[string]models.PendingChange
	sessions map[string]models.ReviewSession
}

// NewRepositories returns an empty in-memory backend.
func NewRepositories() repository.Repositories {
	b := &backend{
		items:    make(map[string]models.VocabularyItem),
		reviews:  make(map[reviewKey]models.ReviewRecord),
		changes:  make(map[string]models.PendingChange),
		sessions: make(map[string]models.ReviewSession),
	}
	return repository.Repositories{
		Vocabulary: (*vocabularyRepository)(b),
		Reviews:    (*reviewRepository)(b),
		Changes:    (*changeRepository)(b),
		Sessions:   (*sessionRepository)(b),
	}
}

type vocabularyRepository backend

func (r *vocabularyRepository) Get(_ context.Context, id string) (*models.VocabularyItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	item, ok := r.items[id]
	if !ok {
		return nil, errors.NewNotFoundError("vocabulary item", id)
	}
	out := item.Clone()
	return &out, nil
}

func (r *vocabularyRepository) sorted(keep func(models.VocabularyItem) bool) []models.VocabularyItem {
	var out []models.VocabularyItem
	for _, item := range r.items {
		if keep(item) {
			out = append(out, item.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func limit(items []models.VocabularyItem, n int) []models.VocabularyItem {
	if n > 0 && len(items) > n {
		return items[:n]
	}
	return items
}

func (r *vocabularyRepository) List(_ context.Context, filter models.VocabularyFilter) ([]models.VocabularyItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := r.sorted(func(v models.VocabularyItem) bool {
		if filter.OwnerID != "" && v.OwnerID != filter.OwnerID {
			return false
		}
		if filter.MasteryLevel != "" && v.MasteryLevel != filter.MasteryLevel {
			return false
		}
		return !filter.DirtyOnly || v.Dirty
	})
	return limit(out, filter.Limit), nil
}

func (r *vocabularyRepository) ListDue(_ context.Context, ownerID string, cutoff time.Time, n int) ([]models.VocabularyItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := r.sorted(func(v models.VocabularyItem) bool {
		return v.OwnerID == ownerID && v.NextReviewAt != nil && v.NextReviewAt.Before(cutoff)
	})
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].NextReviewAt.Before(*out[j].NextReviewAt)
	})
	return limit(out, n), nil
}

func (r *vocabularyRepository) ListNew(_ context.Context, ownerID string, n int) ([]models.VocabularyItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := r.sorted(func(v models.VocabularyItem) bool {
		_, reviewed := r.reviews[reviewKey{v.ID, ownerID}]
		return v.OwnerID == ownerID && !reviewed
	})
	return limit(out, n), nil
}

func (r *vocabularyRepository) Upsert(_ context.Context, item models.VocabularyItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.items[item.ID]; ok {
		item.CreatedAt = prev.CreatedAt
	}
	r.items[item.ID] = item.Clone()
	return nil
}

func (r *vocabularyRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return errors.NewNotFoundError("vocabulary item", id)
	}
	delete(r.items, id)
	for k := range r.reviews {
		if k.vocabularyID == id {
			delete(r.reviews, k)
		}
	}
	return nil
}

func (r *vocabularyRepository) MarkClean(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return errors.NewNotFoundError("vocabulary item", id)
	}
	item.Dirty = false
	r.items[id] = item
	return nil
}

func (r *vocabularyRepository) SaveReview(_ context.Context, item models.VocabularyItem, rec models.ReviewRecord, change *models.PendingChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if change != nil {
		if err := (*changeRepository)(r).put(*change); err != nil {
			return err
		}
	}
	if prev, ok := r.items[item.ID]; ok {
		item.CreatedAt = prev.CreatedAt
	}
	key := reviewKey{rec.VocabularyID, rec.OwnerID}
	if prev, ok := r.reviews[key]; ok {
		rec.ID = prev.ID
		rec.CreatedAt = prev.CreatedAt
	}
	r.items[item.ID] = item.Clone()
	r.reviews[key] = rec
	return nil
}

type reviewRepository backend

func (r *reviewRepository) Get(_ context.Context, vocabularyID, ownerID string) (*models.ReviewRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.reviews[reviewKey{vocabularyID, ownerID}]
	if !ok {
		return nil, errors.NewNotFoundError("review record", vocabularyID)
	}
	return &rec, nil
}

func (r *reviewRepository) ListByOwner(_ context.Context, ownerID string) ([]models.ReviewRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.ReviewRecord
	for k, rec := range r.reviews {
		if k.ownerID == ownerID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].NextReviewDate.Equal(out[j].NextReviewDate) {
			return out[i].NextReviewDate.Before(out[j].NextReviewDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

type changeRepository backend

func cloneChange(c models.PendingChange) models.PendingChange {
	c.Payload = c.Payload.Clone()
	if c.NextRetryAt != nil {
		t := *c.NextRetryAt
		c.NextRetryAt = &t
	}
	return c
}

func (r *changeRepository) Get(_ context.Context, id string) (*models.PendingChange, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.changes[id]
	if !ok {
		return nil, errors.NewNotFoundError("pending change", id)
	}
	out := cloneChange(c)
	return &out, nil
}

func (r *changeRepository) GetByVocabularyID(_ context.Context, vocabularyID string) (*models.PendingChange, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.changes {
		if c.VocabularyID == vocabularyID {
			out := cloneChange(c)
			return &out, nil
		}
	}
	return nil, errors.NewNotFoundError("pending change", vocabularyID)
}

func (r *changeRepository) List(_ context.Context) ([]models.PendingChange, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.PendingChange, 0, len(r.changes))
	for _, c := range r.changes {
		out = append(out, cloneChange(c))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *changeRepository) Put(_ context.Context, c models.PendingChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.put(c)
}

// put requires the backend lock.
func (r *changeRepository) put(c models.PendingChange) error {
	for id, existing := range r.changes {
		if existing.VocabularyID == c.VocabularyID && id != c.ID {
			return errors.NewValidationError("vocabulary_id", "another change is already queued for "+c.VocabularyID)
		}
	}
	r.changes[c.ID] = cloneChange(c)
	return nil
}

func (r *changeRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.changes[id]; !ok {
		return errors.NewNotFoundError("pending change", id)
	}
	delete(r.changes, id)
	return nil
}

type sessionRepository backend

func (r *sessionRepository) Get(_ context.Context, id string) (*models.ReviewSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, errors.NewNotFoundError("review session", id)
	}
	return &s, nil
}

func (r *sessionRepository) Save(_ context.Context, s models.ReviewSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		s.CompletedAt = &t
	}
	r.sessions[s.ID] = s
	return nil
}

func (r *sessionRepository) ListRecent(_ context.Context, ownerID string, n int) ([]models.ReviewSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n <= 0 {
		n = 20
	}
	var out []models.ReviewSession
	for _, s := range r.sessions {
		if s.OwnerID == ownerID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}
