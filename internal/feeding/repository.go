package feeding

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stablelink/stable-core/internal/device"
)

// Repository defines the interface for feeding persistence operations.
//
// The multi-row operations (BeginFeeding, Complete, Fail) are each a
// single transaction; callers never see a half-applied state.
type Repository interface {
	// BeginFeeding atomically creates the history row and the horse's
	// active singleton. Returns ErrAlreadyInProgress when the horse
	// already has a live feeding, whether detected by the pre-check or
	// by the primary-key constraint.
	BeginFeeding(ctx context.Context, f *Feeding) error

	// GetByID retrieves a feeding history row.
	GetByID(ctx context.Context, id string) (*Feeding, error)

	// GetActiveByHorse retrieves the horse's live feeding, if any.
	// Returns ErrFeedingNotFound when the horse has none.
	GetActiveByHorse(ctx context.Context, horseID string) (*ActiveFeeding, error)

	// UpdateActiveStatus records an intermediate transition on the
	// active row only; the history row is finalised at the terminal
	// transition. startedAt is stored when non-nil.
	UpdateActiveStatus(ctx context.Context, horseID string, status Status, startedAt *time.Time) error

	// Complete finalises a successful feeding: history row to COMPLETED
	// with completion time, active row deleted, horse's last_feed_at set.
	Complete(ctx context.Context, feedingID, horseID string, at time.Time) error

	// Fail finalises a failed feeding: history row to FAILED, active row
	// deleted. The horse's last_feed_at is left untouched.
	Fail(ctx context.Context, feedingID, horseID string) error

	// ListByHorse returns the horse's feeding history, newest first.
	ListByHorse(ctx context.Context, horseID string, limit int) ([]Feeding, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// BeginFeeding atomically creates the history row and the active singleton.
//
// Serializable isolation plus the active_feedings primary key give two
// independent defences: the pre-check reports the existing status in the
// error, and the constraint catches whatever races past it.
func (r *SQLiteRepository) BeginFeeding(ctx context.Context, f *Feeding) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("beginning feeding tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	// Pre-check so the conflict error can carry the live status.
	var liveStatus string
	err = tx.QueryRowContext(ctx,
		"SELECT status FROM active_feedings WHERE horse_id = ?", f.HorseID,
	).Scan(&liveStatus)
	switch {
	case err == nil:
		return fmt.Errorf("%w: status %s", ErrAlreadyInProgress, liveStatus)
	case errors.Is(err, sql.ErrNoRows):
		// free to proceed
	default:
		return fmt.Errorf("checking active feeding: %w", err)
	}

	now := time.Now().UTC()
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now
	}
	f.Status = StatusPending

	_, err = tx.ExecContext(ctx, `
		INSERT INTO feedings (id, horse_id, device_id, requested_kg, status, scheduled, time_slot, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID,
		f.HorseID,
		f.DeviceID,
		f.RequestedKg,
		string(f.Status),
		boolToInt(f.Scheduled),
		nullableSlot(f),
		f.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting feeding: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO active_feedings (horse_id, feeding_id, device_id, requested_kg, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		f.HorseID,
		f.ID,
		f.DeviceID,
		f.RequestedKg,
		string(StatusPending),
		f.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrAlreadyInProgress
		}
		return fmt.Errorf("inserting active feeding: %w", err)
	}

	if err := tx.Commit(); err != nil {
		if isUniqueConstraintError(err) {
			return ErrAlreadyInProgress
		}
		return fmt.Errorf("committing feeding tx: %w", err)
	}

	return nil
}

// GetByID retrieves a feeding history row.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Feeding, error) {
	query := `
		SELECT id, horse_id, device_id, requested_kg, status, scheduled, time_slot,
			created_at, started_at, completed_at
		FROM feedings
		WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	f, err := scanFeeding(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFeedingNotFound
		}
		return nil, fmt.Errorf("querying feeding by id: %w", err)
	}
	return f, nil
}

// GetActiveByHorse retrieves the horse's live feeding, if any.
func (r *SQLiteRepository) GetActiveByHorse(ctx context.Context, horseID string) (*ActiveFeeding, error) {
	query := `
		SELECT horse_id, feeding_id, device_id, requested_kg, status, created_at, started_at
		FROM active_feedings
		WHERE horse_id = ?`

	var a ActiveFeeding
	var status, createdAt string
	var startedAt sql.NullString

	err := r.db.QueryRowContext(ctx, query, horseID).Scan(
		&a.HorseID,
		&a.FeedingID,
		&a.DeviceID,
		&a.RequestedKg,
		&status,
		&createdAt,
		&startedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFeedingNotFound
		}
		return nil, fmt.Errorf("querying active feeding: %w", err)
	}

	a.Status = Status(status)
	a.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if startedAt.Valid {
		t, err := time.Parse(time.RFC3339, startedAt.String)
		if err == nil {
			a.StartedAt = &t
		}
	}

	return &a, nil
}

// UpdateActiveStatus records an intermediate transition on the active row.
func (r *SQLiteRepository) UpdateActiveStatus(ctx context.Context, horseID string, status Status, startedAt *time.Time) error {
	var result sql.Result
	var err error

	if startedAt != nil {
		result, err = r.db.ExecContext(ctx,
			"UPDATE active_feedings SET status = ?, started_at = ? WHERE horse_id = ?",
			string(status), startedAt.UTC().Format(time.RFC3339), horseID)
	} else {
		result, err = r.db.ExecContext(ctx,
			"UPDATE active_feedings SET status = ? WHERE horse_id = ?",
			string(status), horseID)
	}
	if err != nil {
		return fmt.Errorf("updating active feeding status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrFeedingNotFound
	}

	return nil
}

// Complete finalises a successful feeding in one transaction.
func (r *SQLiteRepository) Complete(ctx context.Context, feedingID, horseID string, at time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning completion tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	ts := at.UTC().Format(time.RFC3339)

	result, err := tx.ExecContext(ctx,
		"UPDATE feedings SET status = ?, completed_at = ? WHERE id = ?",
		string(StatusCompleted), ts, feedingID)
	if err != nil {
		return fmt.Errorf("completing feeding: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrFeedingNotFound
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM active_feedings WHERE horse_id = ? AND feeding_id = ?",
		horseID, feedingID); err != nil {
		return fmt.Errorf("deleting active feeding: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE horses SET last_feed_at = ?, updated_at = ? WHERE id = ?",
		ts, time.Now().UTC().Format(time.RFC3339), horseID); err != nil {
		return fmt.Errorf("updating horse last feed time: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing completion tx: %w", err)
	}

	return nil
}

// Fail finalises a failed feeding in one transaction.
func (r *SQLiteRepository) Fail(ctx context.Context, feedingID, horseID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning failure tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	result, err := tx.ExecContext(ctx,
		"UPDATE feedings SET status = ? WHERE id = ?",
		string(StatusFailed), feedingID)
	if err != nil {
		return fmt.Errorf("failing feeding: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrFeedingNotFound
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM active_feedings WHERE horse_id = ? AND feeding_id = ?",
		horseID, feedingID); err != nil {
		return fmt.Errorf("deleting active feeding: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing failure tx: %w", err)
	}

	return nil
}

// ListByHorse returns the horse's feeding history, newest first.
func (r *SQLiteRepository) ListByHorse(ctx context.Context, horseID string, limit int) ([]Feeding, error) {
	if limit <= 0 {
		limit = 50 //nolint:mnd // default page size
	}

	query := `
		SELECT id, horse_id, device_id, requested_kg, status, scheduled, time_slot,
			created_at, started_at, completed_at
		FROM feedings
		WHERE horse_id = ?
		ORDER BY created_at DESC
		LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, horseID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying feedings by horse: %w", err)
	}
	defer rows.Close()

	var feedings []Feeding
	for rows.Next() {
		f, err := scanFeeding(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning feeding: %w", err)
		}
		feedings = append(feedings, *f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating feedings: %w", err)
	}

	return feedings, nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanFeeding scans a row or rows result into a Feeding.
func scanFeeding(scanner rowScanner) (*Feeding, error) {
	var f Feeding
	var status string
	var scheduled int
	var timeSlot sql.NullString
	var createdAt string
	var startedAt, completedAt sql.NullString

	err := scanner.Scan(
		&f.ID,
		&f.HorseID,
		&f.DeviceID,
		&f.RequestedKg,
		&status,
		&scheduled,
		&timeSlot,
		&createdAt,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	f.Status = Status(status)
	f.Scheduled = scheduled != 0
	if timeSlot.Valid {
		f.TimeSlot = slotFromString(timeSlot.String)
	}

	var parseErr error
	f.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	if startedAt.Valid {
		t, err := time.Parse(time.RFC3339, startedAt.String)
		if err == nil {
			f.StartedAt = &t
		}
	}
	if completedAt.Valid {
		t, err := time.Parse(time.RFC3339, completedAt.String)
		if err == nil {
			f.CompletedAt = &t
		}
	}

	return &f, nil
}

// nullableSlot returns a sql.NullString for the feeding's time slot.
func nullableSlot(f *Feeding) sql.NullString {
	if f.TimeSlot == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: string(f.TimeSlot), Valid: true}
}

// slotFromString converts a stored slot value back to its typed form.
func slotFromString(s string) device.Slot {
	return device.Slot(s)
}

// boolToInt converts a boolean to 0/1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "PRIMARY KEY constraint")
}
