// Package conflict tracks divergent local and remote versions of an item and
// resolves them on the learner's request. Nothing here resolves on its own.
package conflict

import (
	"sort"
	"sync"

	"github.com/vytor/wordflash/internal/models"
)

// Registry is the outstanding set, at most one conflict per vocabulary id.
type Registry struct {
	mu        sync.RWMutex
	conflicts map[string]models.Conflict
}

func NewRegistry() *Registry {
	return &Registry{conflicts: make(map[string]models.Conflict)}
}

// Add records c and reports whether it is new. An item already in conflict
// keeps its first record.
func (r *Registry) Add(c models.Conflict) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conflicts[c.VocabularyID]; ok {
		return false
	}
	r.conflicts[c.VocabularyID] = c
	return true
}

func (r *Registry) Get(vocabularyID string) (models.Conflict, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conflicts[vocabularyID]
	return c, ok
}

func (r *Registry) Has(vocabularyID string) bool {
	_, ok := r.Get(vocabularyID)
	return ok
}

func (r *Registry) Remove(vocabularyID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conflicts, vocabularyID)
}

// List returns the outstanding conflicts, oldest first.
func (r *Registry) List() []models.Conflict {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Conflict, 0, len(r.conflicts))
	for _, c := range r.conflicts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DetectedAt.Equal(out[j].DetectedAt) {
			return out[i].DetectedAt.Before(out[j].DetectedAt)
		}
		return out[i].VocabularyID < out[j].VocabularyID
	})
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conflicts)
}
