package srs

import (
	"fmt"
	"math"
	"time"

	"github.com/vytor/wordflash/internal/models"
)

// Quality is a 0..5 self-assessed recall grade.
type Quality = int

const (
	QualityBlackout  Quality = 0
	QualityIncorrect Quality = 1
	QualityHard      Quality = 2 // correct but hard; still a failure
	QualityHesitant  Quality = 3
	QualityEasy      Quality = 4
	QualityPerfect   Quality = 5

	// PassThreshold is the lowest passing grade.
	PassThreshold = QualityHesitant

	// MasteredInterval is the interval at which an item counts as mastered.
	MasteredInterval = 21
)

// State is the scheduling state carried between reviews.
type State struct {
	IntervalDays int
	Ease         float64
	Repetition   int
}

// ValidQuality reports whether q is a grade NextState accepts.
func ValidQuality(q int) bool {
	return q >= QualityBlackout && q <= QualityPerfect
}

// IsSuccess reports whether q counts as a correct recall.
func IsSuccess(q int) bool {
	return q >= PassThreshold
}

// NextState computes the SM-2 successor of (intervalDays, repetition, ease) for quality.
// The ease update is always applied; failures reset repetition to 0 with a one day interval.
// Grades outside 0..5 and negative state are caller bugs and panic.
func NextState(intervalDays, repetition int, ease float64, quality int) State {
	if !ValidQuality(quality) {
		panic(fmt.Sprintf("srs: quality %d outside 0..5", quality))
	}
	if intervalDays < 0 || repetition < 0 {
		panic(fmt.Sprintf("srs: negative state interval=%d repetition=%d", intervalDays, repetition))
	}

	q := float64(5 - quality)
	newEase := math.Max(models.MinEase, ease+(0.1-q*(0.08+q*0.02)))

	if !IsSuccess(quality) {
		return State{IntervalDays: 1, Ease: newEase, Repetition: 0}
	}

	rep := repetition + 1
	var interval int
	switch rep {
	case 1:
		interval = 1
	case 2:
		interval = 6
	default:
		interval = int(math.Round(float64(intervalDays) * newEase))
	}
	return State{IntervalDays: interval, Ease: newEase, Repetition: rep}
}

// Today truncates now to its UTC calendar day.
func Today(now time.Time) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DueDate is the day interval days after today.
func DueDate(today time.Time, interval int) time.Time {
	return Today(today).AddDate(0, 0, interval)
}

// Mastery derives the coarse level after a review graded quality left the item in s.
func Mastery(s State, quality int) models.MasteryLevel {
	switch {
	case !IsSuccess(quality):
		return models.MasteryLearning
	case s.IntervalDays >= MasteredInterval:
		return models.MasteryMastered
	case s.Repetition >= 2:
		return models.MasteryReview
	default:
		return models.MasteryLearning
	}
}

// NewRecord returns the scheduling record of an item that was never graded.
func NewRecord(id, vocabularyID, ownerID string, now time.Time) models.ReviewRecord {
	return models.ReviewRecord{
		ID:           id,
		VocabularyID: vocabularyID,
		OwnerID:      ownerID,
		EaseFactor:   models.DefaultEase,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// ApplyReview grades rec and item together and returns the updated copies.
func ApplyReview(rec models.ReviewRecord, item models.VocabularyItem, quality int, now time.Time) (models.ReviewRecord, models.VocabularyItem) {
	s := NextState(rec.IntervalDays, rec.RepetitionNumber, rec.EaseFactor, quality)
	due := DueDate(now, s.IntervalDays)

	rec.EaseFactor = s.Ease
	rec.IntervalDays = s.IntervalDays
	rec.RepetitionNumber = s.Repetition
	rec.NextReviewDate = due
	rec.LastQuality = quality
	rec.UpdatedAt = now

	item = item.Clone()
	item.TimesReviewed++
	if IsSuccess(quality) {
		item.TimesCorrect++
		item.Streak++
	} else {
		item.Streak = 0
	}
	item.Ease = s.Ease
	item.IntervalDays = s.IntervalDays
	item.MasteryLevel = Mastery(s, quality)
	reviewed := now
	item.LastReviewedAt = &reviewed
	item.NextReviewAt = &due
	item.UpdatedAt = now
	return rec, item
}
