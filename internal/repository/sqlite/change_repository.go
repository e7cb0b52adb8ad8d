package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/vytor/wordflash/internal/db"
	apperrors "github.com/vytor/wordflash/internal/errors"
	"github.com/vytor/wordflash/internal/logger"
	"github.com/vytor/wordflash/internal/models"
	"github.com/vytor/wordflash/internal/repository"
)

// changeRow is the pending_changes row shape; the payload is stored as JSON.
type changeRow struct {
	ID            string       `db:"id"`
	Operation     string       `db:"operation"`
	VocabularyID  string       `db:"vocabulary_id"`
	Payload       string       `db:"payload"`
	Timestamp     sql.NullTime `db:"timestamp"`
	BaseTimestamp sql.NullTime `db:"base_timestamp"`
	Synced        bool         `db:"synced"`
	RetryCount    int          `db:"retry_count"`
	NextRetryAt   sql.NullTime `db:"next_retry_at"`
	Stuck         bool         `db:"stuck"`
	LastError     string       `db:"last_error"`
}

func toChangeRow(c models.PendingChange) (changeRow, error) {
	payload, err := json.Marshal(c.Payload)
	if err != nil {
		return changeRow{}, fmt.Errorf("encode payload of change %s: %w", c.ID, err)
	}
	return changeRow{
		ID:            c.ID,
		Operation:     string(c.Operation),
		VocabularyID:  c.VocabularyID,
		Payload:       string(payload),
		Timestamp:     sql.NullTime{Time: utc(c.Timestamp), Valid: true},
		BaseTimestamp: sql.NullTime{Time: utc(c.BaseTimestamp), Valid: true},
		Synced:        c.Synced,
		RetryCount:    c.RetryCount,
		NextRetryAt:   nullTime(c.NextRetryAt),
		Stuck:         c.Stuck,
		LastError:     c.LastError,
	}, nil
}

func (row changeRow) model() (models.PendingChange, error) {
	c := models.PendingChange{
		ID:            row.ID,
		Operation:     models.Operation(row.Operation),
		VocabularyID:  row.VocabularyID,
		Timestamp:     row.Timestamp.Time.UTC(),
		BaseTimestamp: row.BaseTimestamp.Time.UTC(),
		Synced:        row.Synced,
		RetryCount:    row.RetryCount,
		NextRetryAt:   timePtr(row.NextRetryAt),
		Stuck:         row.Stuck,
		LastError:     row.LastError,
	}
	if err := json.Unmarshal([]byte(row.Payload), &c.Payload); err != nil {
		return c, fmt.Errorf("decode payload of change %s: %w", row.ID, err)
	}
	return c, nil
}

type changeRepository struct {
	db *sqlx.DB
}

// NewChangeRepository creates a new ChangeRepository implementation
func NewChangeRepository(conn *sql.DB) repository.ChangeRepository {
	return &changeRepository{db: sqlx.NewDb(conn, "sqlite3")}
}

const changeColumns = `id, operation, vocabulary_id, payload, timestamp, base_timestamp, synced,
       retry_count, next_retry_at, stuck, last_error`

func (r *changeRepository) getBy(ctx context.Context, column, value string) (*models.PendingChange, error) {
	log := logger.FromContext(ctx).WithPrefix("change_repo")
	log.Debug("getting pending change: %s=%s", column, value)

	var row changeRow
	err := r.db.GetContext(ctx, &row, `SELECT `+changeColumns+` FROM pending_changes WHERE `+column+` = ?`, value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("pending change", value)
	}
	if err != nil {
		log.Error("failed to get pending change: %v", err)
		return nil, db.Classify(err)
	}
	c, err := row.model()
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *changeRepository) Get(ctx context.Context, id string) (*models.PendingChange, error) {
	return r.getBy(ctx, "id", id)
}

func (r *changeRepository) GetByVocabularyID(ctx context.Context, vocabularyID string) (*models.PendingChange, error) {
	return r.getBy(ctx, "vocabulary_id", vocabularyID)
}

func (r *changeRepository) List(ctx context.Context) ([]models.PendingChange, error) {
	log := logger.FromContext(ctx).WithPrefix("change_repo")

	var rows []changeRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT `+changeColumns+` FROM pending_changes ORDER BY timestamp ASC, id ASC`); err != nil {
		log.Error("failed to list pending changes: %v", err)
		return nil, db.Classify(err)
	}

	out := make([]models.PendingChange, 0, len(rows))
	for _, row := range rows {
		c, err := row.model()
		if err != nil {
			log.Error("skipping unreadable change: %v", err)
			return nil, err
		}
		out = append(out, c)
	}
	log.Debug("found %d pending changes", len(out))
	return out, nil
}

const putChangeQuery = `
INSERT INTO pending_changes (` + changeColumns + `)
VALUES (:id, :operation, :vocabulary_id, :payload, :timestamp, :base_timestamp, :synced,
        :retry_count, :next_retry_at, :stuck, :last_error)
ON CONFLICT(id) DO UPDATE SET
    operation = excluded.operation, payload = excluded.payload, timestamp = excluded.timestamp,
    base_timestamp = excluded.base_timestamp, synced = excluded.synced, retry_count = excluded.retry_count,
    next_retry_at = excluded.next_retry_at, stuck = excluded.stuck, last_error = excluded.last_error
`

// putChange writes c through exec, which may be a transaction.
func putChange(ctx context.Context, exec squirrel.ExecerContext, c models.PendingChange) error {
	row, err := toChangeRow(c)
	if err != nil {
		return err
	}
	query, args, err := sqlx.Named(putChangeQuery, row)
	if err != nil {
		return err
	}
	_, err = exec.ExecContext(ctx, query, args...)
	return err
}

func (r *changeRepository) Put(ctx context.Context, c models.PendingChange) error {
	log := logger.FromContext(ctx).WithPrefix("change_repo")
	log.Debug("putting pending change: id=%s, op=%s, vocabulary_id=%s, retries=%d", c.ID, c.Operation, c.VocabularyID, c.RetryCount)

	if err := putChange(ctx, r.db, c); err != nil {
		log.Error("failed to put pending change: %v", err)
		return db.Classify(err)
	}
	return nil
}

func (r *changeRepository) Delete(ctx context.Context, id string) error {
	log := logger.FromContext(ctx).WithPrefix("change_repo")
	log.Debug("deleting pending change: id=%s", id)

	res, err := r.db.ExecContext(ctx, `DELETE FROM pending_changes WHERE id = ?`, id)
	if err != nil {
		log.Error("failed to delete pending change: %v", err)
		return db.Classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NewNotFoundError("pending change", id)
	}
	return nil
}
