package models

import "time"

// ReviewRecord is the scheduling state of one item for one learner.
type ReviewRecord struct {
	ID               string    `json:"id"`
	VocabularyID     string    `json:"vocabulary_id"`
	OwnerID          string    `json:"owner_id"`
	EaseFactor       float64   `json:"ease_factor"`
	RepetitionNumber int       `json:"repetition_number"`
	IntervalDays     int       `json:"interval_days"`
	NextReviewDate   time.Time `json:"next_review_date"`
	LastQuality      int       `json:"last_quality"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionAbandoned SessionStatus = "abandoned"
)

type ReviewSession struct {
	ID             string        `json:"id" db:"id"`
	OwnerID        string        `json:"owner_id" db:"owner_id"`
	Status         SessionStatus `json:"status" db:"status"`
	StartedAt      time.Time     `json:"started_at" db:"started_at"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty" db:"completed_at"`
	TotalCards     int           `json:"total_cards" db:"total_cards"`
	CardsCompleted int           `json:"cards_completed" db:"cards_completed"`
	Successes      int           `json:"successes" db:"successes"`
	Accuracy       float64       `json:"accuracy" db:"accuracy"`
}
