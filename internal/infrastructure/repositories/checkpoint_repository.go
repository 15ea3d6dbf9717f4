package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/jmoiron/sqlx"
)

// LastCheckedBlockKey is the settings key holding the block scanner checkpoint.
const LastCheckedBlockKey = "tron.last_checked_block"

// CheckpointRepository persists scanner progress in the settings table so a
// restarted scanner resumes without skipping blocks.
type CheckpointRepository struct {
	db *sqlx.DB
}

// NewCheckpointRepository creates a new checkpoint repository.
func NewCheckpointRepository(db *sqlx.DB) *CheckpointRepository {
	return &CheckpointRepository{db: db}
}

// LastCheckedBlock returns the height of the last fully handled block. The
// second return is false on a cold start with no checkpoint yet.
func (r *CheckpointRepository) LastCheckedBlock(ctx context.Context) (int64, bool, error) {
	query := `SELECT value FROM settings WHERE key = $1`

	var value string
	err := r.db.GetContext(ctx, &value, query, LastCheckedBlockKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to read block checkpoint: %w", err)
	}

	height, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt block checkpoint %q: %w", value, err)
	}

	return height, true, nil
}

// SetLastCheckedBlock advances the checkpoint. Called once per handled block,
// before moving on to the next one.
func (r *CheckpointRepository) SetLastCheckedBlock(ctx context.Context, height int64) error {
	query := `
		INSERT INTO settings (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value,
			updated_at = NOW()
	`

	if _, err := r.db.ExecContext(ctx, query, LastCheckedBlockKey, strconv.FormatInt(height, 10)); err != nil {
		return fmt.Errorf("failed to persist block checkpoint: %w", err)
	}

	return nil
}
