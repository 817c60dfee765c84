package stream

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ActiveStream records which horse a user is currently streaming.
// The user_id primary key caps every user at one active camera.
type ActiveStream struct {
	UserID    string    `json:"user_id"`
	HorseID   string    `json:"horse_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Repository defines the interface for active stream persistence.
type Repository interface {
	// GetByUser retrieves the user's active stream.
	// Returns ErrNoActiveStream when the user has none.
	GetByUser(ctx context.Context, userID string) (*ActiveStream, error)

	// Set records the user's active horse, replacing any previous record.
	Set(ctx context.Context, userID, horseID string) error

	// Clear removes the user's active stream and invalidates the given
	// camera's token in one transaction. cameraID may be empty when the
	// camera is unknown or already gone.
	Clear(ctx context.Context, userID, cameraID string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetByUser retrieves the user's active stream.
func (r *SQLiteRepository) GetByUser(ctx context.Context, userID string) (*ActiveStream, error) {
	var a ActiveStream
	var createdAt string

	err := r.db.QueryRowContext(ctx,
		"SELECT user_id, horse_id, created_at FROM active_streams WHERE user_id = ?", userID,
	).Scan(&a.UserID, &a.HorseID, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoActiveStream
		}
		return nil, fmt.Errorf("querying active stream: %w", err)
	}

	a.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &a, nil
}

// Set records the user's active horse, replacing any previous record.
func (r *SQLiteRepository) Set(ctx context.Context, userID, horseID string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO active_streams (user_id, horse_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET horse_id = excluded.horse_id, created_at = excluded.created_at`,
		userID, horseID, now)
	if err != nil {
		return fmt.Errorf("recording active stream: %w", err)
	}
	return nil
}

// Clear removes the user's active stream and invalidates the camera token.
func (r *SQLiteRepository) Clear(ctx context.Context, userID, cameraID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning clear tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM active_streams WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("deleting active stream: %w", err)
	}

	if cameraID != "" {
		if _, err := tx.ExecContext(ctx,
			"UPDATE devices SET stream_token_valid = 0, updated_at = ? WHERE id = ?",
			time.Now().UTC().Format(time.RFC3339), cameraID); err != nil {
			return fmt.Errorf("invalidating camera token: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing clear tx: %w", err)
	}

	return nil
}
