package feeding

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/stablelink/stable-core/internal/device"
)

// setupTestDB creates an in-memory SQLite database with the feeding
// tables. MaxOpenConns(1) matches the production connection policy.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)

	schema := `
		CREATE TABLE horses (
			id           TEXT PRIMARY KEY,
			owner_id     TEXT NOT NULL,
			name         TEXT NOT NULL,
			feeder_id    TEXT,
			camera_id    TEXT,
			last_feed_at TEXT,
			created_at   TEXT NOT NULL,
			updated_at   TEXT NOT NULL
		);
		CREATE TABLE feedings (
			id           TEXT PRIMARY KEY,
			horse_id     TEXT NOT NULL,
			device_id    TEXT NOT NULL,
			requested_kg REAL NOT NULL,
			status       TEXT NOT NULL CHECK (status IN ('PENDING', 'STARTED', 'RUNNING', 'COMPLETED', 'FAILED')),
			scheduled    INTEGER NOT NULL DEFAULT 0,
			time_slot    TEXT,
			created_at   TEXT NOT NULL,
			started_at   TEXT,
			completed_at TEXT
		);
		CREATE TABLE active_feedings (
			horse_id     TEXT PRIMARY KEY,
			feeding_id   TEXT NOT NULL UNIQUE,
			device_id    TEXT NOT NULL,
			requested_kg REAL NOT NULL,
			status       TEXT NOT NULL CHECK (status IN ('PENDING', 'STARTED', 'RUNNING')),
			created_at   TEXT NOT NULL,
			started_at   TEXT
		);
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	if _, err := db.Exec(`INSERT INTO horses (id, owner_id, name, created_at, updated_at)
		VALUES ('horse-001', 'usr-001', 'Star', '2026-01-01T00:00:00Z', '2026-01-01T00:00:00Z')`); err != nil {
		db.Close()
		t.Fatalf("inserting horse: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func testFeeding(id string) *Feeding {
	return &Feeding{
		ID:          id,
		HorseID:     "horse-001",
		DeviceID:    "dev-f1",
		RequestedKg: 2.5,
	}
}

func TestBeginFeeding(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	f := testFeeding("feed-001")
	if err := repo.BeginFeeding(ctx, f); err != nil {
		t.Fatalf("BeginFeeding() error = %v", err)
	}
	if f.Status != StatusPending {
		t.Errorf("Status = %q, want PENDING", f.Status)
	}

	// History row exists
	got, err := repo.GetByID(ctx, "feed-001")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status != StatusPending || got.RequestedKg != 2.5 {
		t.Errorf("feeding = %+v", got)
	}

	// Active singleton exists
	active, err := repo.GetActiveByHorse(ctx, "horse-001")
	if err != nil {
		t.Fatalf("GetActiveByHorse() error = %v", err)
	}
	if active.FeedingID != "feed-001" || active.Status != StatusPending {
		t.Errorf("active = %+v", active)
	}

	// Second feeding for the same horse conflicts and carries the status
	err = repo.BeginFeeding(ctx, testFeeding("feed-002"))
	if !errors.Is(err, ErrAlreadyInProgress) {
		t.Fatalf("second BeginFeeding() error = %v, want ErrAlreadyInProgress", err)
	}

	// The losing attempt must leave no history row behind
	if _, err := repo.GetByID(ctx, "feed-002"); !errors.Is(err, ErrFeedingNotFound) {
		t.Errorf("losing attempt left a history row, error = %v", err)
	}
}

func TestBeginFeeding_ConcurrentStartsOneWinner(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	const attempts = 10

	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			f := testFeeding(uuidLike(n))
			results <- repo.BeginFeeding(ctx, f)
		}(i)
	}
	wg.Wait()
	close(results)

	var wins, conflicts int
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrAlreadyInProgress):
			conflicts++
		default:
			t.Errorf("unexpected error shape: %v", err)
		}
	}

	if wins != 1 {
		t.Errorf("wins = %d, want exactly 1", wins)
	}
	if conflicts != attempts-1 {
		t.Errorf("conflicts = %d, want %d", conflicts, attempts-1)
	}

	// Exactly one live active row
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM active_feedings").Scan(&count); err != nil {
		t.Fatalf("counting active rows: %v", err)
	}
	if count != 1 {
		t.Errorf("active rows = %d, want 1", count)
	}
}

func uuidLike(n int) string {
	return string(rune('a'+n)) + "-feed-concurrent"
}

func TestUpdateActiveStatus(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	if err := repo.BeginFeeding(ctx, testFeeding("feed-001")); err != nil {
		t.Fatalf("BeginFeeding() error = %v", err)
	}

	startedAt := time.Now().UTC().Truncate(time.Second)
	if err := repo.UpdateActiveStatus(ctx, "horse-001", StatusStarted, &startedAt); err != nil {
		t.Fatalf("UpdateActiveStatus() error = %v", err)
	}

	active, err := repo.GetActiveByHorse(ctx, "horse-001")
	if err != nil {
		t.Fatalf("GetActiveByHorse() error = %v", err)
	}
	if active.Status != StatusStarted {
		t.Errorf("Status = %q, want STARTED", active.Status)
	}
	if active.StartedAt == nil || !active.StartedAt.Equal(startedAt) {
		t.Errorf("StartedAt = %v, want %v", active.StartedAt, startedAt)
	}

	// Intermediate transitions never touch the history row
	f, err := repo.GetByID(ctx, "feed-001")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if f.Status != StatusPending {
		t.Errorf("history Status = %q, intermediate transitions must not change it", f.Status)
	}

	if err := repo.UpdateActiveStatus(ctx, "horse-ghost", StatusRunning, nil); !errors.Is(err, ErrFeedingNotFound) {
		t.Errorf("UpdateActiveStatus() for absent row error = %v, want ErrFeedingNotFound", err)
	}
}

func TestComplete(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	if err := repo.BeginFeeding(ctx, testFeeding("feed-001")); err != nil {
		t.Fatalf("BeginFeeding() error = %v", err)
	}

	completedAt := time.Now().UTC().Truncate(time.Second)
	if err := repo.Complete(ctx, "feed-001", "horse-001", completedAt); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	f, err := repo.GetByID(ctx, "feed-001")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if f.Status != StatusCompleted {
		t.Errorf("Status = %q, want COMPLETED", f.Status)
	}
	if f.CompletedAt == nil || !f.CompletedAt.Equal(completedAt) {
		t.Errorf("CompletedAt = %v, want %v", f.CompletedAt, completedAt)
	}

	// Active row gone
	if _, err := repo.GetActiveByHorse(ctx, "horse-001"); !errors.Is(err, ErrFeedingNotFound) {
		t.Errorf("active row should be deleted, error = %v", err)
	}

	// Horse stamped
	var lastFeedAt sql.NullString
	if err := db.QueryRow("SELECT last_feed_at FROM horses WHERE id = 'horse-001'").Scan(&lastFeedAt); err != nil {
		t.Fatalf("querying horse: %v", err)
	}
	if !lastFeedAt.Valid {
		t.Error("horse last_feed_at should be set after completion")
	}

	// Horse is free for the next feeding
	if err := repo.BeginFeeding(ctx, testFeeding("feed-002")); err != nil {
		t.Errorf("BeginFeeding() after completion error = %v", err)
	}
}

func TestFail(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	if err := repo.BeginFeeding(ctx, testFeeding("feed-001")); err != nil {
		t.Fatalf("BeginFeeding() error = %v", err)
	}

	if err := repo.Fail(ctx, "feed-001", "horse-001"); err != nil {
		t.Fatalf("Fail() error = %v", err)
	}

	f, err := repo.GetByID(ctx, "feed-001")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if f.Status != StatusFailed {
		t.Errorf("Status = %q, want FAILED", f.Status)
	}

	// Active row gone, horse NOT stamped
	if _, err := repo.GetActiveByHorse(ctx, "horse-001"); !errors.Is(err, ErrFeedingNotFound) {
		t.Errorf("active row should be deleted, error = %v", err)
	}
	var lastFeedAt sql.NullString
	if err := db.QueryRow("SELECT last_feed_at FROM horses WHERE id = 'horse-001'").Scan(&lastFeedAt); err != nil {
		t.Fatalf("querying horse: %v", err)
	}
	if lastFeedAt.Valid {
		t.Error("failed feeding must not update last_feed_at")
	}
}

func TestListByHorse(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	// Build a short history through the normal lifecycle
	for i, id := range []string{"feed-a", "feed-b", "feed-c"} {
		f := testFeeding(id)
		f.CreatedAt = time.Date(2026, 3, 1, 7+i, 0, 0, 0, time.UTC)
		if i == 2 {
			f.Scheduled = true
			f.TimeSlot = device.SlotMorning
		}
		if err := repo.BeginFeeding(ctx, f); err != nil {
			t.Fatalf("BeginFeeding(%s) error = %v", id, err)
		}
		if err := repo.Complete(ctx, id, "horse-001", f.CreatedAt.Add(time.Minute)); err != nil {
			t.Fatalf("Complete(%s) error = %v", id, err)
		}
	}

	feedings, err := repo.ListByHorse(ctx, "horse-001", 10)
	if err != nil {
		t.Fatalf("ListByHorse() error = %v", err)
	}
	if len(feedings) != 3 {
		t.Fatalf("got %d feedings, want 3", len(feedings))
	}
	// Newest first
	if feedings[0].ID != "feed-c" {
		t.Errorf("first = %q, want feed-c", feedings[0].ID)
	}
	if !feedings[0].Scheduled || feedings[0].TimeSlot != device.SlotMorning {
		t.Errorf("scheduled metadata lost: %+v", feedings[0])
	}

	limited, err := repo.ListByHorse(ctx, "horse-001", 2)
	if err != nil {
		t.Fatalf("ListByHorse() error = %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("limit ignored, got %d", len(limited))
	}
}
