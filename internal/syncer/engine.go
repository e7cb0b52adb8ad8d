// Package syncer drains the change queue against the remote store. Passes
// never overlap; triggers arriving during a pass are folded into one
// follow-up pass.
package syncer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/vytor/wordflash/internal/changequeue"
	"github.com/vytor/wordflash/internal/conflict"
	apperrors "github.com/vytor/wordflash/internal/errors"
	"github.com/vytor/wordflash/internal/logger"
	"github.com/vytor/wordflash/internal/models"
	"github.com/vytor/wordflash/internal/remote"
	"github.com/vytor/wordflash/internal/vocabulary"
	"github.com/vytor/wordflash/internal/worker"
)

type Options struct {
	// ApplyTimeout bounds each remote call; expiry counts as a network failure.
	ApplyTimeout time.Duration
	// Debounce delays the pass after a local mutation so bursts share one pass.
	Debounce time.Duration
	// Interval runs a safety-net pass periodically. Zero disables it.
	Interval time.Duration
	Retry    RetryPolicy
	Now      func() time.Time
}

func (o Options) withDefaults() Options {
	if o.ApplyTimeout <= 0 {
		o.ApplyTimeout = 30 * time.Second
	}
	if o.Debounce <= 0 {
		o.Debounce = 2 * time.Second
	}
	if o.Retry.MaxRetries <= 0 {
		o.Retry = DefaultRetryPolicy()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// PassResult summarizes one pass.
type PassResult struct {
	Attempted int `json:"attempted"`
	Applied   int `json:"applied"`
	Conflicts int `json:"conflicts"`
	Failed    int `json:"failed"`
	Stuck     int `json:"stuck"`
	Skipped   int `json:"skipped"`
	// Interrupted is set when the pass stopped early on cancellation.
	Interrupted bool `json:"interrupted"`
}

// Status is what a presentation layer shows about sync.
type Status struct {
	Online     bool       `json:"online"`
	Running    bool       `json:"running"`
	LastPassAt time.Time  `json:"last_pass_at"`
	LastResult PassResult `json:"last_result"`
	LastError  string     `json:"last_error,omitempty"`
	Pending    int        `json:"pending"`
	Stuck      int        `json:"stuck"`
	Conflicts  int        `json:"conflicts"`
}

type Engine struct {
	store     *vocabulary.Store
	queue     *changequeue.Queue
	remote    remote.Store
	conflicts *conflict.Registry
	opts      Options
	pool      *worker.Pool
	log       *logger.Logger

	passMu sync.Mutex

	mu         sync.Mutex
	online     bool
	running    bool
	lastPassAt time.Time
	lastResult PassResult
	lastErr    error
	debounce   *time.Timer
	sched      *gocron.Scheduler
}

func New(store *vocabulary.Store, queue *changequeue.Queue, rs remote.Store, conflicts *conflict.Registry, opts Options) *Engine {
	return &Engine{
		store:     store,
		queue:     queue,
		remote:    rs,
		conflicts: conflicts,
		opts:      opts.withDefaults(),
		// one pass running, at most one waiting behind it
		pool:   worker.NewPool(1, 1),
		log:    logger.Default().WithPrefix("syncer"),
		online: true,
	}
}

// Start runs the background worker and the periodic pass.
func (e *Engine) Start(ctx context.Context) error {
	e.pool.Start(ctx)
	if e.opts.Interval <= 0 {
		return nil
	}
	s := gocron.NewScheduler(time.UTC)
	if _, err := s.Every(e.opts.Interval).WaitForSchedule().Do(func() { e.Trigger() }); err != nil {
		e.pool.Stop()
		return err
	}
	s.StartAsync()

	e.mu.Lock()
	e.sched = s
	e.mu.Unlock()
	e.log.Info("periodic sync every %v", e.opts.Interval)
	return nil
}

// Stop cancels any running pass and waits for it. A change whose apply was
// interrupted stays queued for the next run.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.debounce != nil {
		e.debounce.Stop()
	}
	s := e.sched
	e.sched = nil
	e.mu.Unlock()

	if s != nil {
		s.Stop()
	}
	e.pool.Stop()
}

// Trigger schedules a pass in the background. It reports false when the
// device is offline or a pass is already waiting to run.
func (e *Engine) Trigger() bool {
	if !e.Online() {
		return false
	}
	return e.pool.TrySubmit(worker.FuncJob{JobName: "sync_pass", Fn: func(ctx context.Context) error {
		_, err := e.Pass(ctx)
		return err
	}})
}

// NotifyMutation schedules a pass once no further mutation arrives for the debounce period.
func (e *Engine) NotifyMutation() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.online {
		return
	}
	if e.debounce != nil {
		e.debounce.Stop()
	}
	e.debounce = time.AfterFunc(e.opts.Debounce, func() { e.Trigger() })
}

// SetOnline records connectivity. Coming back online triggers a pass.
func (e *Engine) SetOnline(online bool) {
	e.mu.Lock()
	was := e.online
	e.online = online
	if !online && e.debounce != nil {
		e.debounce.Stop()
	}
	e.mu.Unlock()

	if online && !was {
		e.log.Info("reconnected, scheduling sync")
		e.Trigger()
	}
}

func (e *Engine) Online() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.online
}

// Conflicts returns the outstanding conflicts.
func (e *Engine) Conflicts() []models.Conflict {
	return e.conflicts.List()
}

func (e *Engine) Status(ctx context.Context) (Status, error) {
	all, err := e.queue.All(ctx)
	if err != nil {
		return Status{}, err
	}

	e.mu.Lock()
	st := Status{
		Online:     e.online,
		Running:    e.running,
		LastPassAt: e.lastPassAt,
		LastResult: e.lastResult,
		Conflicts:  e.conflicts.Len(),
	}
	if e.lastErr != nil {
		st.LastError = e.lastErr.Error()
	}
	e.mu.Unlock()

	for _, c := range all {
		if c.Stuck {
			st.Stuck++
		} else {
			st.Pending++
		}
	}
	return st, nil
}

// Retry gives a stuck change a fresh retry budget and schedules a pass.
func (e *Engine) Retry(ctx context.Context, changeID string) error {
	if err := e.queue.Retry(ctx, changeID); err != nil {
		return err
	}
	e.Trigger()
	return nil
}

// Discard drops a change and any conflict recorded for its item, then
// brings the local copy back in line with the remote store so later edits
// are based on the remote version. When the remote store cannot be reached
// the local copy is kept and marked clean, which makes it the base.
func (e *Engine) Discard(ctx context.Context, changeID string) error {
	change, err := e.queue.Get(ctx, changeID)
	if err != nil {
		return err
	}
	unlock := e.store.Lock(change.VocabularyID)
	defer unlock()
	if err := e.queue.Discard(ctx, changeID); err != nil {
		return err
	}
	e.conflicts.Remove(change.VocabularyID)
	return e.settle(ctx, *change)
}

func (e *Engine) settle(ctx context.Context, discarded models.PendingChange) error {
	log := logger.FromContext(ctx).WithPrefix("syncer").WithField("vocabulary_id", discarded.VocabularyID)

	fetchCtx, cancel := context.WithTimeout(ctx, e.opts.ApplyTimeout)
	current, err := e.remote.FetchItem(fetchCtx, discarded.VocabularyID)
	cancel()
	switch {
	case err == nil:
		log.Info("discarded local change, adopting remote version")
		return e.store.PutConfirmed(ctx, *current)
	case errors.Is(err, apperrors.ErrNotFound):
		log.Debug("discarded change for an item the remote store does not hold")
	default:
		log.Warn("could not fetch remote version after discard, keeping local copy: %v", err)
	}
	if discarded.Operation == models.OpDelete {
		return nil
	}
	return e.store.MarkSynced(ctx, discarded.VocabularyID)
}

// Pass drains the queue once, synchronously. Concurrent callers wait their turn.
func (e *Engine) Pass(ctx context.Context) (PassResult, error) {
	e.passMu.Lock()
	defer e.passMu.Unlock()

	e.setRunning(true)
	res, err := e.pass(ctx)
	e.finish(res, err)
	return res, err
}

func (e *Engine) setRunning(running bool) {
	e.mu.Lock()
	e.running = running
	e.mu.Unlock()
}

func (e *Engine) finish(res PassResult, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.running = false
	e.lastPassAt = e.opts.Now().UTC()
	e.lastResult = res
	e.lastErr = err
}

func (e *Engine) pass(ctx context.Context) (PassResult, error) {
	log := logger.FromContext(ctx).WithPrefix("syncer")
	var res PassResult

	changes, err := e.queue.Pending(ctx, e.opts.Now())
	if err != nil {
		log.Error("failed to read change queue: %v", err)
		return res, err
	}
	if len(changes) == 0 {
		log.Debug("nothing to sync")
		return res, nil
	}
	log.Debug("sync pass over %d changes", len(changes))

	for _, snapshot := range changes {
		if ctx.Err() != nil {
			res.Interrupted = true
			break
		}
		if e.conflicts.Has(snapshot.VocabularyID) {
			res.Skipped++
			continue
		}

		// re-read under the item lock so a concurrent edit is either fully in or fully out
		unlock := e.store.Lock(snapshot.VocabularyID)
		change, err := e.queue.Get(ctx, snapshot.ID)
		unlock()
		if errors.Is(err, apperrors.ErrNotFound) {
			continue
		}
		if err != nil {
			return res, err
		}

		res.Attempted++
		confirmed, err := e.apply(ctx, *change)
		var conflictErr *remote.VersionConflictError
		switch {
		case err == nil:
			if err := e.ack(ctx, *change, confirmed); err != nil {
				return res, err
			}
			res.Applied++

		case errors.As(err, &conflictErr):
			if conflictErr.Current.UpdatedAt.Equal(change.Payload.UpdatedAt) {
				// our own earlier write whose ack was lost
				if err := e.ack(ctx, *change, conflictErr.Current.UpdatedAt); err != nil {
					return res, err
				}
				res.Applied++
				continue
			}
			c := models.Conflict{
				VocabularyID: change.VocabularyID,
				ChangeID:     change.ID,
				LocalItem:    change.Payload.Clone(),
				RemoteItem:   conflictErr.Current.Clone(),
				DetectedAt:   e.opts.Now().UTC(),
			}
			if e.conflicts.Add(c) {
				log.Warn("conflict on %s: remote changed at %s", change.VocabularyID, conflictErr.Current.UpdatedAt.Format(time.RFC3339))
			}
			res.Conflicts++

		case ctx.Err() != nil:
			// shutting down; the change was not applied as far as we know
			res.Interrupted = true

		default:
			maxRetries := e.opts.Retry.MaxRetries
			if !remote.IsRetryable(err) {
				// rejected outright; retrying the same payload cannot succeed
				maxRetries = change.RetryCount + 1
			}
			failed, ferr := e.queue.Fail(context.WithoutCancel(ctx), change.ID, err, maxRetries, e.opts.Retry.Delay(change.RetryCount+1))
			if ferr != nil {
				return res, ferr
			}
			res.Failed++
			if failed.Stuck {
				res.Stuck++
				log.Warn("%v", apperrors.NewStuckChangeError(change.ID, failed.RetryCount))
			} else {
				log.Info("change %s failed (attempt %d/%d): %v", change.ID, failed.RetryCount, e.opts.Retry.MaxRetries, err)
			}
		}
	}

	log.Info("sync pass done: applied=%d conflicts=%d failed=%d stuck=%d skipped=%d",
		res.Applied, res.Conflicts, res.Failed, res.Stuck, res.Skipped)
	if res.Interrupted {
		return res, ctx.Err()
	}
	return res, nil
}

// apply sends one change and returns the remote version it produced.
func (e *Engine) apply(ctx context.Context, change models.PendingChange) (time.Time, error) {
	ctx, cancel := context.WithTimeout(ctx, e.opts.ApplyTimeout)
	defer cancel()

	switch change.Operation {
	case models.OpDelete:
		err := e.remote.DeleteItem(ctx, change.VocabularyID)
		if errors.Is(err, apperrors.ErrNotFound) {
			return time.Time{}, nil
		}
		return time.Time{}, timeoutAsNetwork(err)
	default:
		stored, err := e.remote.UpsertItem(ctx, change.Payload, change.BaseTimestamp)
		if err != nil {
			return time.Time{}, timeoutAsNetwork(err)
		}
		return stored.UpdatedAt, nil
	}
}

func timeoutAsNetwork(err error) error {
	if errors.Is(err, context.DeadlineExceeded) && apperrors.Code(err) == "" {
		return apperrors.NewNetworkError("apply", err)
	}
	return err
}

// ack records a confirmed apply. It runs to completion even when ctx is
// cancelled so an applied change is never left looking unapplied.
func (e *Engine) ack(ctx context.Context, change models.PendingChange, confirmed time.Time) error {
	ctx = context.WithoutCancel(ctx)
	unlock := e.store.Lock(change.VocabularyID)
	defer unlock()

	removed, err := e.queue.Ack(ctx, change, confirmed)
	if err != nil {
		return err
	}
	if removed && change.Operation != models.OpDelete {
		return e.store.MarkSynced(ctx, change.VocabularyID)
	}
	return nil
}
