// Package storage opens the local backend: sqlite when the device can
// persist, an in-memory fallback when it cannot.
package storage

import (
	"context"
	"errors"

	"github.com/vytor/wordflash/internal/db"
	apperrors "github.com/vytor/wordflash/internal/errors"
	"github.com/vytor/wordflash/internal/logger"
	"github.com/vytor/wordflash/internal/repository"
	"github.com/vytor/wordflash/internal/repository/memory"
	"github.com/vytor/wordflash/internal/repository/sqlite"
)

// Backend is an opened set of repositories.
type Backend struct {
	repository.Repositories

	// Durable is false when writes only live for the process lifetime.
	Durable bool

	closeFn func() error
}

// Close releases the underlying database, if any.
func (b *Backend) Close() error {
	if b.closeFn == nil {
		return nil
	}
	return b.closeFn()
}

// Open opens the sqlite database at path. When the device reports storage
// unavailable, the returned backend runs in memory and is marked non-durable.
// Any other failure is returned as is.
func Open(ctx context.Context, path string) (*Backend, error) {
	log := logger.FromContext(ctx).WithPrefix("storage")

	database, err := db.Open(path)
	if err == nil {
		return &Backend{
			Repositories: sqlite.NewRepositories(database.DB),
			Durable:      true,
			closeFn:      database.Close,
		}, nil
	}
	if !errors.Is(err, apperrors.ErrStorageUnavailable) {
		return nil, err
	}

	log.WithError(err).Warn("local storage unavailable, continuing in memory; changes will not survive a restart")
	return &Backend{Repositories: memory.NewRepositories()}, nil
}
