// Package remote is the authoritative store that local changes are synced to.
package remote

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/vytor/wordflash/internal/errors"
	"github.com/vytor/wordflash/internal/models"
)

// Store is the remote collaborator contract. Missing items are reported as
// errors.ErrNotFound, retryable failures as errors.ErrNetworkFailure.
type Store interface {
	FetchItem(ctx context.Context, id string) (*models.VocabularyItem, error)
	// UpsertItem stores item unless the remote copy changed after base, in
	// which case it returns a *VersionConflictError.
	UpsertItem(ctx context.Context, item models.VocabularyItem, base time.Time) (*models.VocabularyItem, error)
	DeleteItem(ctx context.Context, id string) error
}

// Ensure implementations satisfy the interface
var (
	_ Store = (*Client)(nil)
	_ Store = (*RepositoryStore)(nil)
)

// VersionConflictError carries the remote version that won.
type VersionConflictError struct {
	Current models.VocabularyItem
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("version conflict on %s: remote updated at %s", e.Current.ID, e.Current.UpdatedAt.Format(time.RFC3339Nano))
}

// Unwrap lets errors.Is match errors.ErrVersionConflict.
func (e *VersionConflictError) Unwrap() error {
	return apperrors.NewVersionConflictError(e.Current.ID)
}
