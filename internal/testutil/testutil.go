package testutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/vytor/wordflash/internal/db"
	"github.com/vytor/wordflash/internal/models"
)

// NewTestDB creates an in-memory SQLite database with all migrations applied.
// The pool is capped at one connection so every query sees the same database.
func NewTestDB(t *testing.T) *sql.DB {
	database, err := db.Open(":memory:")
	require.NoError(t, err)
	return database.DB
}

// MustClose closes a resource and fails the test on error.
func MustClose(t *testing.T, closer interface{ Close() error }) {
	require.NoError(t, closer.Close())
}

// Day returns UTC midnight of the given date.
func Day(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// NewItem builds a valid, never reviewed item for owner.
func NewItem(owner, word string, created time.Time) models.VocabularyItem {
	return models.VocabularyItem{
		ID:           uuid.NewString(),
		OwnerID:      owner,
		Word:         word,
		Translation:  word + "-translation",
		MasteryLevel: models.MasteryNew,
		Difficulty:   5,
		Examples:     []string{"a sentence with " + word},
		Ease:         models.DefaultEase,
		CreatedAt:    created.UTC(),
		UpdatedAt:    created.UTC(),
	}
}

// DueItem builds an item that was reviewed before and is due on due.
func DueItem(owner, word string, due time.Time) models.VocabularyItem {
	item := NewItem(owner, word, due.AddDate(0, 0, -10))
	item.MasteryLevel = models.MasteryReview
	item.TimesReviewed = 2
	item.TimesCorrect = 2
	item.Streak = 2
	item.IntervalDays = 6
	d := due.UTC()
	item.NextReviewAt = &d
	return item
}
