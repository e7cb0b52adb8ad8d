// Package session runs one learner's review sessions: it builds a bounded,
// shuffled deck of due and new items and grades them one at a time.
package session

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/vytor/wordflash/internal/errors"
	"github.com/vytor/wordflash/internal/logger"
	"github.com/vytor/wordflash/internal/models"
	"github.com/vytor/wordflash/internal/repository"
	"github.com/vytor/wordflash/internal/srs"
)

type State int

const (
	Idle State = iota
	Building
	Active
	Completed
	Abandoned
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Building:
		return "building"
	case Active:
		return "active"
	case Completed:
		return "completed"
	case Abandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// Deck is where cards come from and where grades go.
type Deck interface {
	ListDue(ctx context.Context, today time.Time, limit int) ([]models.VocabularyItem, error)
	ListNew(ctx context.Context, limit int) ([]models.VocabularyItem, error)
	Review(ctx context.Context, id string, quality int) (*models.VocabularyItem, error)
}

// Result is the outcome of one graded card.
type Result struct {
	Item    models.VocabularyItem
	Session models.ReviewSession
	// Next is nil once the session has completed.
	Next *models.VocabularyItem
}

type Option func(*Manager)

// WithShuffle replaces the uniform random shuffle, e.g. with a seeded one.
func WithShuffle(shuffle func(n int, swap func(i, j int))) Option {
	return func(m *Manager) { m.shuffle = shuffle }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager is safe for concurrent use. Instances share nothing.
type Manager struct {
	mu       sync.Mutex
	deck     Deck
	sessions repository.SessionRepository
	ownerID  string
	shuffle  func(n int, swap func(i, j int))
	now      func() time.Time
	newID    func() string

	state   State
	session *models.ReviewSession
	cards   []models.VocabularyItem
	pos     int
}

func NewManager(deck Deck, sessions repository.SessionRepository, ownerID string, opts ...Option) *Manager {
	m := &Manager{
		deck:     deck,
		sessions: sessions,
		ownerID:  ownerID,
		shuffle:  rand.Shuffle,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Session returns a copy of the current or last session, if any.
func (m *Manager) Session() (models.ReviewSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return models.ReviewSession{}, false
	}
	return *m.session, true
}

// Current returns the card being presented while the session is active.
func (m *Manager) Current() (*models.VocabularyItem, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Active {
		return nil, false
	}
	card := m.cards[m.pos].Clone()
	return &card, true
}

// Remaining is the number of cards not yet graded, including the current one.
func (m *Manager) Remaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Active {
		return 0
	}
	return len(m.cards) - m.pos
}

// StartSession builds a deck of at most cardLimit cards: due items first,
// topped up with new items, then shuffled once. An empty deck fails with
// NO_CARDS_AVAILABLE and leaves the manager idle.
func (m *Manager) StartSession(ctx context.Context, cardLimit int) (*models.ReviewSession, error) {
	log := logger.FromContext(ctx).WithPrefix("session")

	if cardLimit <= 0 {
		return nil, apperrors.NewValidationError("card_limit", "must be positive")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == Active || m.state == Building {
		return nil, apperrors.NewInvalidStateError("a session is already in progress")
	}

	m.state = Building
	m.session, m.cards, m.pos = nil, nil, 0

	cards, err := m.build(ctx, cardLimit)
	if err != nil {
		m.state = Idle
		return nil, err
	}
	if len(cards) == 0 {
		m.state = Idle
		log.Info("no cards available")
		return nil, apperrors.NewNoCardsAvailableError()
	}
	m.shuffle(len(cards), func(i, j int) { cards[i], cards[j] = cards[j], cards[i] })

	s := models.ReviewSession{
		ID:         m.newID(),
		OwnerID:    m.ownerID,
		Status:     models.SessionActive,
		StartedAt:  m.now().UTC(),
		TotalCards: len(cards),
	}
	if err := m.sessions.Save(ctx, s); err != nil {
		m.state = Idle
		log.Error("failed to save session: %v", err)
		return nil, err
	}

	m.session = &s
	m.cards = cards
	m.state = Active
	log.Info("session %s started with %d cards", s.ID, s.TotalCards)
	out := s
	return &out, nil
}

func (m *Manager) build(ctx context.Context, limit int) ([]models.VocabularyItem, error) {
	due, err := m.deck.ListDue(ctx, m.now(), limit)
	if err != nil {
		return nil, err
	}
	if len(due) > limit {
		due = due[:limit]
	}

	seen := make(map[string]bool, limit)
	cards := make([]models.VocabularyItem, 0, limit)
	for _, item := range due {
		if !seen[item.ID] {
			seen[item.ID] = true
			cards = append(cards, item)
		}
	}

	if remainder := limit - len(cards); remainder > 0 {
		// items already taken as due may also count as new
		fresh, err := m.deck.ListNew(ctx, remainder+len(cards))
		if err != nil {
			return nil, err
		}
		for _, item := range fresh {
			if len(cards) == limit {
				break
			}
			if !seen[item.ID] {
				seen[item.ID] = true
				cards = append(cards, item)
			}
		}
	}
	return cards, nil
}

// SubmitReview grades the current card and advances. The grade is fully
// persisted before the next card is returned. An invalid quality is rejected
// with nothing changed.
func (m *Manager) SubmitReview(ctx context.Context, quality int) (*Result, error) {
	log := logger.FromContext(ctx).WithPrefix("session")

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Active {
		return nil, apperrors.NewInvalidStateError("no active session")
	}
	if !srs.ValidQuality(quality) {
		return nil, apperrors.NewInvalidGradeError(quality)
	}

	card := m.cards[m.pos]
	graded, err := m.deck.Review(ctx, card.ID, quality)
	if errors.Is(err, apperrors.ErrNotFound) {
		// deleted since the deck was built
		log.Warn("card %s no longer exists, dropping it from session %s", card.ID, m.session.ID)
		m.cards = append(m.cards[:m.pos:m.pos], m.cards[m.pos+1:]...)
		m.session.TotalCards--
		m.finishIfDone(ctx)
		return nil, err
	}
	if err != nil {
		log.Error("failed to grade card %s: %v", card.ID, err)
		return nil, err
	}

	m.session.CardsCompleted++
	if srs.IsSuccess(quality) {
		m.session.Successes++
	}
	m.session.Accuracy = float64(m.session.Successes) / float64(m.session.CardsCompleted) * 100
	m.pos++
	m.finishIfDone(ctx)

	res := &Result{Item: *graded, Session: *m.session}
	if m.state == Active {
		next := m.cards[m.pos].Clone()
		res.Next = &next
	}
	return res, nil
}

// finishIfDone completes the session after the last card and persists progress.
func (m *Manager) finishIfDone(ctx context.Context) {
	if m.pos >= len(m.cards) {
		now := m.now().UTC()
		m.session.CompletedAt = &now
		m.session.Status = models.SessionCompleted
		m.state = Completed
		logger.FromContext(ctx).WithPrefix("session").Info("session %s completed: %d/%d, accuracy %.1f%%",
			m.session.ID, m.session.Successes, m.session.CardsCompleted, m.session.Accuracy)
	}
	if err := m.sessions.Save(ctx, *m.session); err != nil {
		// grades are already stored with their items
		logger.FromContext(ctx).Warn("failed to save session progress: %v", err)
	}
}

// EndSession abandons the active session, keeping the partial accuracy.
func (m *Manager) EndSession(ctx context.Context) (*models.ReviewSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Active {
		return nil, apperrors.NewInvalidStateError("no active session")
	}
	now := m.now().UTC()
	m.session.CompletedAt = &now
	m.session.Status = models.SessionAbandoned
	m.state = Abandoned
	if err := m.sessions.Save(ctx, *m.session); err != nil {
		logger.FromContext(ctx).Warn("failed to save abandoned session: %v", err)
	}
	logger.FromContext(ctx).WithPrefix("session").Info("session %s abandoned after %d/%d cards",
		m.session.ID, m.session.CardsCompleted, m.session.TotalCards)
	out := *m.session
	return &out, nil
}

// History lists the learner's most recent sessions, newest first.
func (m *Manager) History(ctx context.Context, limit int) ([]models.ReviewSession, error) {
	return m.sessions.ListRecent(ctx, m.ownerID, limit)
}
