package conflict

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vytor/wordflash/internal/changequeue"
	apperrors "github.com/vytor/wordflash/internal/errors"
	"github.com/vytor/wordflash/internal/logger"
	"github.com/vytor/wordflash/internal/models"
	"github.com/vytor/wordflash/internal/vocabulary"
)

// Notifier is told when a resolution queued a change for upload.
type Notifier interface {
	NotifyMutation()
}

type Resolver struct {
	registry *Registry
	store    *vocabulary.Store
	queue    *changequeue.Queue
	notifier Notifier
	now      func() time.Time
}

func NewResolver(registry *Registry, store *vocabulary.Store, queue *changequeue.Queue, notifier Notifier) *Resolver {
	return &Resolver{
		registry: registry,
		store:    store,
		queue:    queue,
		notifier: notifier,
		now:      time.Now,
	}
}

// Resolve settles the conflict on vocabularyID with strategy. The queued
// change is replaced (or dropped for KeepRemote), the local store gets the
// resolved item and the conflict leaves the outstanding set. If the item was
// deleted locally after the conflict was detected the delete stands and nil
// is returned.
func (r *Resolver) Resolve(ctx context.Context, vocabularyID string, strategy Strategy) (*models.VocabularyItem, error) {
	log := logger.FromContext(ctx).WithPrefix("conflict").WithField("vocabulary_id", vocabularyID)

	c, ok := r.registry.Get(vocabularyID)
	if !ok {
		return nil, apperrors.NewNotFoundError("conflict", vocabularyID)
	}

	unlock := r.store.Lock(vocabularyID)
	defer unlock()

	local := c.LocalItem
	pending, err := r.queue.ForItem(ctx, vocabularyID)
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		pending = nil
	case err != nil:
		return nil, err
	case pending.Operation == models.OpDelete:
		log.Info("item deleted locally since the conflict, keeping the delete")
		r.registry.Remove(vocabularyID)
		return nil, nil
	default:
		local = pending.Payload
	}

	var (
		resolved models.VocabularyItem
		push     bool
	)
	switch s := strategy.(type) {
	case KeepLocal:
		resolved, push = local.Clone(), true
	case KeepRemote:
		resolved, push = c.RemoteItem.Clone(), false
	case Merge:
		fn := s.Fn
		if fn == nil {
			fn = DefaultMerge
		}
		resolved, push = fn(local.Clone(), c.RemoteItem.Clone()), true
	default:
		return nil, apperrors.NewValidationError("strategy", fmt.Sprintf("unknown strategy %T", strategy))
	}

	if err := resolved.Validate(); err != nil {
		log.Warn("resolved item rejected, conflict stays outstanding: %v", err)
		return nil, err
	}

	// store first: on failure the rejected change stays queued
	if !push {
		if err := r.store.PutConfirmed(ctx, resolved); err != nil {
			return nil, err
		}
		if pending != nil {
			if err := r.queue.Remove(ctx, pending.ID); err != nil {
				return nil, err
			}
		}
		r.registry.Remove(vocabularyID)
		log.Info("adopted remote version")
		return &resolved, nil
	}

	resolved.UpdatedAt = r.now().UTC()
	if !resolved.UpdatedAt.After(c.RemoteItem.UpdatedAt) {
		resolved.UpdatedAt = c.RemoteItem.UpdatedAt.Add(time.Millisecond)
	}
	if err := r.store.Upsert(ctx, resolved); err != nil {
		return nil, err
	}
	if _, err := r.queue.Replace(ctx, resolved, c.RemoteItem.UpdatedAt); err != nil {
		return nil, err
	}
	r.registry.Remove(vocabularyID)
	log.Info("resolved with %T, queued for upload", strategy)

	if r.notifier != nil {
		r.notifier.NotifyMutation()
	}
	resolved.Dirty = true
	return &resolved, nil
}
