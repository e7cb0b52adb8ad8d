package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vytor/wordflash/internal/changequeue"
	"github.com/vytor/wordflash/internal/errors"
	"github.com/vytor/wordflash/internal/logger"
	"github.com/vytor/wordflash/internal/models"
	"github.com/vytor/wordflash/internal/srs"
	"github.com/vytor/wordflash/internal/vocabulary"
)

// ItemInput is the learner-editable part of a vocabulary item.
type ItemInput struct {
	Word        string   `json:"word"`
	Translation string   `json:"translation"`
	Difficulty  int      `json:"difficulty"`
	Examples    []string `json:"examples"`
}

// MutationNotifier is told about every local mutation so a sync can be scheduled.
type MutationNotifier interface {
	NotifyMutation()
}

// VocabularyService is the single path through which items are created,
// edited, deleted and graded. Manually added items and generated suggestions
// both enter through Add.
type VocabularyService interface {
	Add(ctx context.Context, input ItemInput) (*models.VocabularyItem, error)
	Update(ctx context.Context, id string, input ItemInput) (*models.VocabularyItem, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*models.VocabularyItem, error)
	List(ctx context.Context) ([]models.VocabularyItem, error)
	ListDue(ctx context.Context, today time.Time, limit int) ([]models.VocabularyItem, error)
	ListNew(ctx context.Context, limit int) ([]models.VocabularyItem, error)
	Review(ctx context.Context, id string, quality int) (*models.VocabularyItem, error)
}

// VocabularyOptions configures NewVocabularyService.
type VocabularyOptions struct {
	// OfflineAuthoritative queues every mutation for the remote store.
	OfflineAuthoritative bool
	Notifier             MutationNotifier
	Now                  func() time.Time
}

type vocabularyService struct {
	store    *vocabulary.Store
	queue    *changequeue.Queue
	queueing bool
	notifier MutationNotifier
	now      func() time.Time
	newID    func() string
}

// NewVocabularyService creates a new VocabularyService
func NewVocabularyService(store *vocabulary.Store, queue *changequeue.Queue, opts VocabularyOptions) VocabularyService {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &vocabularyService{
		store:    store,
		queue:    queue,
		queueing: opts.OfflineAuthoritative && queue != nil,
		notifier: opts.Notifier,
		now:      now,
		newID:    uuid.NewString,
	}
}

// wrap keeps typed errors and hides everything else behind INTERNAL_ERROR.
func wrap(err error) error {
	if err == nil || errors.Code(err) != "" {
		return err
	}
	return errors.NewInternalError(err)
}

func (in ItemInput) normalize() ItemInput {
	in.Word = strings.TrimSpace(in.Word)
	in.Translation = strings.TrimSpace(in.Translation)
	if in.Difficulty == 0 {
		in.Difficulty = 5
	}
	examples := make([]string, 0, len(in.Examples))
	for _, e := range in.Examples {
		if e = strings.TrimSpace(e); e != "" {
			examples = append(examples, e)
		}
	}
	in.Examples = examples
	return in
}

// enqueue records a mutation and schedules a sync. Callers hold the item lock.
func (s *vocabularyService) enqueue(ctx context.Context, op models.Operation, item models.VocabularyItem, base time.Time) error {
	if !s.queueing {
		return nil
	}
	if _, err := s.queue.Record(ctx, op, item, base); err != nil {
		logger.FromContext(ctx).Error("failed to queue %s of %s: %v", op, item.ID, err)
		return err
	}
	if s.notifier != nil {
		s.notifier.NotifyMutation()
	}
	return nil
}

// baseOf is the remote version an edit of before is made against. A dirty
// item has no confirmed version of its own; its queued change already
// carries one.
func baseOf(before models.VocabularyItem) time.Time {
	if before.Dirty {
		return time.Time{}
	}
	return before.UpdatedAt
}

func (s *vocabularyService) Add(ctx context.Context, input ItemInput) (*models.VocabularyItem, error) {
	log := logger.FromContext(ctx)
	input = input.normalize()
	log.Debug("adding vocabulary item: word=%s", input.Word)

	now := s.now().UTC()
	item := models.VocabularyItem{
		ID:           s.newID(),
		OwnerID:      s.store.OwnerID(),
		Word:         input.Word,
		Translation:  input.Translation,
		MasteryLevel: models.MasteryNew,
		Difficulty:   input.Difficulty,
		Examples:     input.Examples,
		Ease:         models.DefaultEase,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	unlock := s.store.Lock(item.ID)
	defer unlock()

	if err := s.store.Upsert(ctx, item); err != nil {
		log.Error("failed to add vocabulary item: %v", err)
		return nil, wrap(err)
	}
	if err := s.enqueue(ctx, models.OpCreate, item, time.Time{}); err != nil {
		return nil, wrap(err)
	}
	item.Dirty = true
	return &item, nil
}

func (s *vocabularyService) Update(ctx context.Context, id string, input ItemInput) (*models.VocabularyItem, error) {
	log := logger.FromContext(ctx)
	input = input.normalize()
	log.Debug("updating vocabulary item: id=%s", id)

	unlock := s.store.Lock(id)
	defer unlock()

	before, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, wrap(err)
	}
	item := before.Clone()
	item.Word = input.Word
	item.Translation = input.Translation
	item.Difficulty = input.Difficulty
	item.Examples = input.Examples
	item.UpdatedAt = s.now().UTC()

	if err := s.store.Upsert(ctx, item); err != nil {
		log.Error("failed to update vocabulary item: %v", err)
		return nil, wrap(err)
	}
	if err := s.enqueue(ctx, models.OpUpdate, item, baseOf(*before)); err != nil {
		return nil, wrap(err)
	}
	item.Dirty = true
	return &item, nil
}

func (s *vocabularyService) Delete(ctx context.Context, id string) error {
	log := logger.FromContext(ctx)
	log.Debug("deleting vocabulary item: id=%s", id)

	unlock := s.store.Lock(id)
	defer unlock()

	before, err := s.store.GetByID(ctx, id)
	if err != nil {
		return wrap(err)
	}
	if err := s.store.Delete(ctx, id); err != nil {
		log.Error("failed to delete vocabulary item: %v", err)
		return wrap(err)
	}
	return wrap(s.enqueue(ctx, models.OpDelete, *before, baseOf(*before)))
}

func (s *vocabularyService) Get(ctx context.Context, id string) (*models.VocabularyItem, error) {
	item, err := s.store.GetByID(ctx, id)
	return item, wrap(err)
}

func (s *vocabularyService) List(ctx context.Context) ([]models.VocabularyItem, error) {
	items, err := s.store.GetAll(ctx)
	return items, wrap(err)
}

func (s *vocabularyService) ListDue(ctx context.Context, today time.Time, limit int) ([]models.VocabularyItem, error) {
	items, err := s.store.ListDue(ctx, today, limit)
	return items, wrap(err)
}

func (s *vocabularyService) ListNew(ctx context.Context, limit int) ([]models.VocabularyItem, error) {
	items, err := s.store.ListNew(ctx, limit)
	return items, wrap(err)
}

// Review grades one item. An out-of-range quality is rejected before anything is read or written.
func (s *vocabularyService) Review(ctx context.Context, id string, quality int) (*models.VocabularyItem, error) {
	log := logger.FromContext(ctx)
	log.Debug("reviewing vocabulary item: id=%s, quality=%d", id, quality)

	if !srs.ValidQuality(quality) {
		return nil, errors.NewInvalidGradeError(quality)
	}

	unlock := s.store.Lock(id)
	defer unlock()

	// grade and queued change commit together; a failed write grades nothing
	var enqueue vocabulary.EnqueueFunc
	if s.queueing {
		enqueue = func(before, graded models.VocabularyItem, write func(*models.PendingChange) error) error {
			_, err := s.queue.RecordWith(ctx, models.OpUpdate, graded, baseOf(before), write)
			return err
		}
	}
	_, after, err := s.store.Review(ctx, id, quality, s.now().UTC(), enqueue)
	if err != nil {
		log.Error("failed to review vocabulary item: %v", err)
		return nil, wrap(err)
	}
	if s.queueing && s.notifier != nil {
		s.notifier.NotifyMutation()
	}
	return &after, nil
}
