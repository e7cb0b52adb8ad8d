package conflict

import "github.com/vytor/wordflash/internal/models"

// Strategy is one of KeepLocal, KeepRemote or Merge.
type Strategy interface {
	strategy()
}

// KeepLocal pushes the local version over the remote one.
type KeepLocal struct{}

// KeepRemote discards the local edit and adopts the remote version.
type KeepRemote struct{}

// Merge combines both versions with Fn, or DefaultMerge when Fn is nil.
type Merge struct {
	Fn MergeFunc
}

type MergeFunc func(local, remote models.VocabularyItem) models.VocabularyItem

func (KeepLocal) strategy()  {}
func (KeepRemote) strategy() {}
func (Merge) strategy()      {}

// DefaultMerge takes the more recently updated version, keeping the highest
// review counters of either side so no progress is lost. Ties go to local.
func DefaultMerge(local, remote models.VocabularyItem) models.VocabularyItem {
	out := local.Clone()
	if remote.UpdatedAt.After(local.UpdatedAt) {
		out = remote.Clone()
	}
	out.TimesReviewed = max(local.TimesReviewed, remote.TimesReviewed)
	out.TimesCorrect = max(local.TimesCorrect, remote.TimesCorrect)
	out.Streak = max(local.Streak, remote.Streak)
	return out
}
