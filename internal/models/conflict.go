package models

import "time"

// Conflict pairs a queued local version with a newer remote version of the same item.
type Conflict struct {
	VocabularyID string          `json:"vocabulary_id"`
	ChangeID     string          `json:"change_id"`
	LocalItem    VocabularyItem  `json:"local_item"`
	RemoteItem   VocabularyItem  `json:"remote_item"`
	MergedItem   *VocabularyItem `json:"merged_item,omitempty"`
	DetectedAt   time.Time       `json:"detected_at"`
}
