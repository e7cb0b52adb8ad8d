package models

import "time"

type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

func (o Operation) Valid() bool {
	return o == OpCreate || o == OpUpdate || o == OpDelete
}

// PendingChange is a local mutation waiting to be applied to the remote store.
type PendingChange struct {
	ID            string         `json:"id"`
	Operation     Operation      `json:"operation"`
	VocabularyID  string         `json:"vocabulary_id"`
	Payload       VocabularyItem `json:"payload"`
	Timestamp     time.Time      `json:"timestamp"`
	BaseTimestamp time.Time      `json:"base_timestamp"`
	Synced        bool           `json:"synced"`
	RetryCount    int            `json:"retry_count"`
	NextRetryAt   *time.Time     `json:"next_retry_at,omitempty"`
	Stuck         bool           `json:"stuck"`
	LastError     string         `json:"last_error,omitempty"`
}

// Ready reports whether the change may be attempted at now.
func (c PendingChange) Ready(now time.Time) bool {
	if c.Synced || c.Stuck {
		return false
	}
	return c.NextRetryAt == nil || !c.NextRetryAt.After(now)
}
