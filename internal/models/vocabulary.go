package models

import (
	"strings"
	"time"

	"github.com/vytor/wordflash/internal/errors"
)

// MasteryLevel is the coarse long-term progress bucket of an item.
type MasteryLevel string

const (
	MasteryNew      MasteryLevel = "new"
	MasteryLearning MasteryLevel = "learning"
	MasteryReview   MasteryLevel = "review"
	MasteryMastered MasteryLevel = "mastered"
)

func (m MasteryLevel) Valid() bool {
	switch m {
	case MasteryNew, MasteryLearning, MasteryReview, MasteryMastered:
		return true
	}
	return false
}

const (
	MinDifficulty = 1
	MaxDifficulty = 10
	DefaultEase   = 2.5
	MinEase       = 1.3
)

type VocabularyItem struct {
	ID             string       `json:"id"`
	OwnerID        string       `json:"owner_id"`
	Word           string       `json:"word"`
	Translation    string       `json:"translation"`
	MasteryLevel   MasteryLevel `json:"mastery_level"`
	Difficulty     int          `json:"difficulty"`
	Examples       []string     `json:"examples"`
	TimesReviewed  int          `json:"times_reviewed"`
	TimesCorrect   int          `json:"times_correct"`
	Streak         int          `json:"streak"`
	Ease           float64      `json:"ease"`
	IntervalDays   int          `json:"interval_days"`
	LastReviewedAt *time.Time   `json:"last_reviewed_at,omitempty"`
	NextReviewAt   *time.Time   `json:"next_review_at,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`

	// Dirty marks a local mutation not yet confirmed by the remote store.
	Dirty bool `json:"-"`
}

// Validate checks the item invariants that every write must keep.
func (v VocabularyItem) Validate() error {
	switch {
	case v.ID == "":
		return errors.NewValidationError("id", "must not be empty")
	case strings.TrimSpace(v.Word) == "":
		return errors.NewValidationError("word", "must not be empty")
	case !v.MasteryLevel.Valid():
		return errors.NewValidationError("mastery_level", "unknown level "+string(v.MasteryLevel))
	case v.Difficulty < MinDifficulty || v.Difficulty > MaxDifficulty:
		return errors.NewValidationError("difficulty", "must be between 1 and 10")
	case v.TimesReviewed < 0 || v.TimesCorrect < 0 || v.Streak < 0:
		return errors.NewValidationError("counters", "must not be negative")
	case v.TimesCorrect > v.TimesReviewed:
		return errors.NewValidationError("times_correct", "must not exceed times_reviewed")
	case v.Ease < MinEase:
		return errors.NewValidationError("ease", "must be at least 1.3")
	case v.IntervalDays < 0:
		return errors.NewValidationError("interval_days", "must not be negative")
	}
	return nil
}

// Clone returns a deep copy so snapshots never alias the examples slice or time pointers.
func (v VocabularyItem) Clone() VocabularyItem {
	out := v
	if v.Examples != nil {
		out.Examples = append([]string(nil), v.Examples...)
	}
	if v.LastReviewedAt != nil {
		t := *v.LastReviewedAt
		out.LastReviewedAt = &t
	}
	if v.NextReviewAt != nil {
		t := *v.NextReviewAt
		out.NextReviewAt = &t
	}
	return out
}

// VocabularyFilter narrows listing queries.
type VocabularyFilter struct {
	OwnerID      string
	MasteryLevel MasteryLevel
	DirtyOnly    bool
	Limit        int
}
