package horse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for horse persistence operations.
type Repository interface {
	// GetByID retrieves a horse by its unique identifier.
	// Returns ErrHorseNotFound if the horse does not exist.
	GetByID(ctx context.Context, id string) (*Horse, error)

	// GetOwned retrieves a horse and verifies ownership in one step.
	// Returns ErrHorseNotFound for unknown IDs and ErrNotOwner when the
	// horse belongs to someone else.
	GetOwned(ctx context.Context, id, ownerID string) (*Horse, error)

	// GetByCamera retrieves the horse a camera is assigned to.
	// Returns ErrHorseNotFound when the camera is unassigned.
	GetByCamera(ctx context.Context, cameraID string) (*Horse, error)

	// FirstByFeeder retrieves the horse a feeder is assigned to.
	// Returns ErrHorseNotFound when the feeder is unassigned.
	FirstByFeeder(ctx context.Context, feederID string) (*Horse, error)

	// ListByOwner retrieves all horses belonging to an owner.
	ListByOwner(ctx context.Context, ownerID string) ([]Horse, error)

	// ListFeederNamesByOwner returns the broker names of all feeders
	// assigned to the owner's horses.
	ListFeederNamesByOwner(ctx context.Context, ownerID string) ([]string, error)

	// Create inserts a new horse.
	Create(ctx context.Context, h *Horse) error

	// SetLastFeedAt records when the horse was last fed successfully.
	SetLastFeedAt(ctx context.Context, id string, at time.Time) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const horseColumns = `id, owner_id, name, feeder_id, camera_id, last_feed_at, created_at, updated_at`

// GetByID retrieves a horse by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Horse, error) {
	query := `SELECT ` + horseColumns + ` FROM horses WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	h, err := scanHorse(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrHorseNotFound
		}
		return nil, fmt.Errorf("querying horse by id: %w", err)
	}
	return h, nil
}

// GetOwned retrieves a horse and verifies ownership in one step.
func (r *SQLiteRepository) GetOwned(ctx context.Context, id, ownerID string) (*Horse, error) {
	h, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if h.OwnerID != ownerID {
		return nil, ErrNotOwner
	}
	return h, nil
}

// GetByCamera retrieves the horse a camera is assigned to.
func (r *SQLiteRepository) GetByCamera(ctx context.Context, cameraID string) (*Horse, error) {
	query := `SELECT ` + horseColumns + ` FROM horses WHERE camera_id = ?`

	row := r.db.QueryRowContext(ctx, query, cameraID)
	h, err := scanHorse(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrHorseNotFound
		}
		return nil, fmt.Errorf("querying horse by camera: %w", err)
	}
	return h, nil
}

// FirstByFeeder retrieves the horse a feeder is assigned to.
func (r *SQLiteRepository) FirstByFeeder(ctx context.Context, feederID string) (*Horse, error) {
	query := `SELECT ` + horseColumns + ` FROM horses WHERE feeder_id = ? ORDER BY created_at LIMIT 1`

	row := r.db.QueryRowContext(ctx, query, feederID)
	h, err := scanHorse(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrHorseNotFound
		}
		return nil, fmt.Errorf("querying horse by feeder: %w", err)
	}
	return h, nil
}

// ListByOwner retrieves all horses belonging to an owner.
func (r *SQLiteRepository) ListByOwner(ctx context.Context, ownerID string) ([]Horse, error) {
	query := `SELECT ` + horseColumns + ` FROM horses WHERE owner_id = ? ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("querying horses by owner: %w", err)
	}
	defer rows.Close()

	var horses []Horse
	for rows.Next() {
		h, err := scanHorse(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning horse: %w", err)
		}
		horses = append(horses, *h)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating horses: %w", err)
	}

	return horses, nil
}

// ListFeederNamesByOwner returns broker names of feeders assigned to the
// owner's horses.
func (r *SQLiteRepository) ListFeederNamesByOwner(ctx context.Context, ownerID string) ([]string, error) {
	query := `
		SELECT d.name
		FROM horses h
		JOIN devices d ON d.id = h.feeder_id
		WHERE h.owner_id = ?
		ORDER BY d.name`

	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("querying feeder names by owner: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning feeder name: %w", err)
		}
		names = append(names, name)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating feeder names: %w", err)
	}

	return names, nil
}

// Create inserts a new horse.
func (r *SQLiteRepository) Create(ctx context.Context, h *Horse) error {
	now := time.Now().UTC()
	if h.CreatedAt.IsZero() {
		h.CreatedAt = now
	}
	h.UpdatedAt = now

	query := `
		INSERT INTO horses (id, owner_id, name, feeder_id, camera_id, last_feed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		h.ID,
		h.OwnerID,
		h.Name,
		nullableString(h.FeederID),
		nullableString(h.CameraID),
		nullableTime(h.LastFeedAt),
		h.CreatedAt.Format(time.RFC3339),
		h.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrHorseExists
		}
		return fmt.Errorf("inserting horse: %w", err)
	}

	return nil
}

// SetLastFeedAt records when the horse was last fed successfully.
func (r *SQLiteRepository) SetLastFeedAt(ctx context.Context, id string, at time.Time) error {
	now := time.Now().UTC()
	query := `UPDATE horses SET last_feed_at = ?, updated_at = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		at.UTC().Format(time.RFC3339),
		now.Format(time.RFC3339),
		id,
	)
	if err != nil {
		return fmt.Errorf("updating last feed time: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrHorseNotFound
	}

	return nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanHorse scans a row or rows result into a Horse.
func scanHorse(scanner rowScanner) (*Horse, error) {
	var h Horse
	var feederID, cameraID, lastFeedAt sql.NullString
	var createdAt, updatedAt string

	err := scanner.Scan(
		&h.ID,
		&h.OwnerID,
		&h.Name,
		&feederID,
		&cameraID,
		&lastFeedAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if feederID.Valid {
		h.FeederID = &feederID.String
	}
	if cameraID.Valid {
		h.CameraID = &cameraID.String
	}
	if lastFeedAt.Valid {
		t, err := time.Parse(time.RFC3339, lastFeedAt.String)
		if err == nil {
			h.LastFeedAt = &t
		}
	}

	var parseErr error
	h.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	h.UpdatedAt, parseErr = time.Parse(time.RFC3339, updatedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}

	return &h, nil
}

// nullableString returns a sql.NullString for optional string pointers.
func nullableString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// nullableTime returns a sql.NullString for optional time pointers (as RFC3339 strings).
func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
