// Package changequeue is the persisted log of local mutations waiting to be
// applied to the remote store. It keeps at most one change per vocabulary id.
package changequeue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/vytor/wordflash/internal/errors"
	"github.com/vytor/wordflash/internal/logger"
	"github.com/vytor/wordflash/internal/models"
	"github.com/vytor/wordflash/internal/repository"
)

type Queue struct {
	mu    sync.Mutex
	repo  repository.ChangeRepository
	newID func() string
	now   func() time.Time
}

type Option func(*Queue)

// WithClock overrides the time source used for change timestamps.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

func New(repo repository.ChangeRepository, opts ...Option) *Queue {
	q := &Queue{
		repo:  repo,
		newID: uuid.NewString,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Record appends a mutation of item, or coalesces it into the change already
// queued for the same id:
//   - the newest payload wins
//   - delete overrides a queued create or update
//   - create or update after a queued delete is dropped
//   - create followed by update stays a create
//
// base is the remote version the edit was made against; a coalesced change
// keeps the base of the first one.
func (q *Queue) Record(ctx context.Context, op models.Operation, item models.VocabularyItem, base time.Time) (*models.PendingChange, error) {
	return q.RecordWith(ctx, op, item, base, func(change *models.PendingChange) error {
		if change == nil {
			return nil
		}
		return q.repo.Put(ctx, *change)
	})
}

// RecordWith coalesces like Record but hands the change to write instead of
// storing it, so the caller can persist it in the same transaction as the
// mutation itself. write gets nil when the mutation is dropped. The queue is
// locked while write runs.
func (q *Queue) RecordWith(ctx context.Context, op models.Operation, item models.VocabularyItem, base time.Time, write func(*models.PendingChange) error) (*models.PendingChange, error) {
	if !op.Valid() {
		return nil, apperrors.NewValidationError("operation", "unknown operation "+string(op))
	}
	log := logger.FromContext(ctx).WithPrefix("changequeue")

	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now().UTC()
	existing, err := q.repo.GetByVocabularyID(ctx, item.ID)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	if existing == nil {
		change := models.PendingChange{
			ID:            q.newID(),
			Operation:     op,
			VocabularyID:  item.ID,
			Payload:       item.Clone(),
			Timestamp:     now,
			BaseTimestamp: base.UTC(),
		}
		if err := write(&change); err != nil {
			return nil, err
		}
		log.Debug("queued %s of %s as %s", op, item.ID, change.ID)
		return &change, nil
	}

	change := *existing
	switch {
	case change.Operation == models.OpDelete && op != models.OpDelete:
		log.Debug("dropping %s of %s: delete already queued", op, item.ID)
		if err := write(nil); err != nil {
			return nil, err
		}
		return &change, nil
	case op == models.OpDelete:
		change.Operation = models.OpDelete
	case change.Operation == models.OpCreate:
		// still unknown to the remote store
	default:
		change.Operation = op
	}
	change.Payload = item.Clone()
	change.Timestamp = now
	if err := write(&change); err != nil {
		return nil, err
	}
	log.Debug("coalesced %s of %s into %s (%s)", op, item.ID, change.ID, change.Operation)
	return &change, nil
}

// Replace sets the queued change for item to an update against base,
// whatever was queued before. The existing change keeps its id; retry state
// is reset. Conflict resolution uses it to swap the rejected edit for the
// resolved one in a single write.
func (q *Queue) Replace(ctx context.Context, item models.VocabularyItem, base time.Time) (*models.PendingChange, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	existing, err := q.repo.GetByVocabularyID(ctx, item.ID)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}
	change := models.PendingChange{ID: q.newID(), VocabularyID: item.ID}
	if existing != nil {
		change.ID = existing.ID
	}
	change.Operation = models.OpUpdate
	change.Payload = item.Clone()
	change.Timestamp = q.now().UTC()
	change.BaseTimestamp = base.UTC()
	if err := q.repo.Put(ctx, change); err != nil {
		return nil, err
	}
	return &change, nil
}

// Pending returns the changes that may be attempted at now, oldest first.
func (q *Queue) Pending(ctx context.Context, now time.Time) ([]models.PendingChange, error) {
	all, err := q.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.PendingChange
	for _, c := range all {
		if c.Ready(now) {
			out = append(out, c)
		}
	}
	return out, nil
}

// All returns every queued change including stuck ones.
func (q *Queue) All(ctx context.Context) ([]models.PendingChange, error) {
	return q.repo.List(ctx)
}

func (q *Queue) Stuck(ctx context.Context) ([]models.PendingChange, error) {
	all, err := q.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.PendingChange
	for _, c := range all {
		if c.Stuck {
			out = append(out, c)
		}
	}
	return out, nil
}

func (q *Queue) Len(ctx context.Context) (int, error) {
	all, err := q.repo.List(ctx)
	if err != nil {
		return 0, err
	}
	return len(all), nil
}

func (q *Queue) Get(ctx context.Context, id string) (*models.PendingChange, error) {
	return q.repo.Get(ctx, id)
}

func (q *Queue) ForItem(ctx context.Context, vocabularyID string) (*models.PendingChange, error) {
	return q.repo.GetByVocabularyID(ctx, vocabularyID)
}

// Ack confirms that snapshot reached the remote store at version confirmed.
// The change is removed unless it was coalesced again after the snapshot was
// taken, in which case it stays queued against the confirmed version.
// It reports whether the change left the queue.
func (q *Queue) Ack(ctx context.Context, snapshot models.PendingChange, confirmed time.Time) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	current, err := q.repo.Get(ctx, snapshot.ID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}

	if current.Timestamp.Equal(snapshot.Timestamp) && current.Operation == snapshot.Operation {
		if err := q.repo.Delete(ctx, current.ID); err != nil && !errors.Is(err, apperrors.ErrNotFound) {
			return false, err
		}
		return true, nil
	}

	current.BaseTimestamp = confirmed.UTC()
	if snapshot.Operation == models.OpCreate && current.Operation == models.OpCreate {
		current.Operation = models.OpUpdate
	}
	current.RetryCount = 0
	current.NextRetryAt = nil
	current.LastError = ""
	return false, q.repo.Put(ctx, *current)
}

// Fail records a failed attempt. Once the change has failed maxRetries times
// it is marked stuck and left for Retry or Discard; otherwise it is held back
// until now+backoff.
func (q *Queue) Fail(ctx context.Context, changeID string, cause error, maxRetries int, backoff time.Duration) (*models.PendingChange, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	change, err := q.repo.Get(ctx, changeID)
	if err != nil {
		return nil, err
	}
	change.RetryCount++
	if cause != nil {
		change.LastError = cause.Error()
	}
	if change.RetryCount >= maxRetries {
		change.Stuck = true
		change.NextRetryAt = nil
	} else {
		next := q.now().UTC().Add(backoff)
		change.NextRetryAt = &next
	}
	if err := q.repo.Put(ctx, *change); err != nil {
		return nil, err
	}
	return change, nil
}

// Retry puts a stuck change back in line with a fresh retry budget.
func (q *Queue) Retry(ctx context.Context, changeID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	change, err := q.repo.Get(ctx, changeID)
	if err != nil {
		return err
	}
	change.Stuck = false
	change.RetryCount = 0
	change.NextRetryAt = nil
	change.LastError = ""
	return q.repo.Put(ctx, *change)
}

// Remove drops a change. Removing a change that is already gone is not an error.
func (q *Queue) Remove(ctx context.Context, changeID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	err := q.repo.Delete(ctx, changeID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil
	}
	return err
}

// Discard drops a change the learner gave up on. The change must exist.
func (q *Queue) Discard(ctx context.Context, changeID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	logger.FromContext(ctx).WithPrefix("changequeue").Info("discarding change %s", changeID)
	return q.repo.Delete(ctx, changeID)
}
