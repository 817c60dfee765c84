package horse

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates an in-memory SQLite database with the horses and
// devices tables.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE devices (
			id                 TEXT PRIMARY KEY,
			name               TEXT NOT NULL UNIQUE,
			label              TEXT NOT NULL DEFAULT '',
			class              TEXT NOT NULL,
			feeder_mode        TEXT,
			scheduled_kg       REAL,
			morning_time       TEXT,
			day_time           TEXT,
			night_time         TEXT,
			stream_token       TEXT,
			stream_token_valid INTEGER NOT NULL DEFAULT 0,
			created_at         TEXT NOT NULL,
			updated_at         TEXT NOT NULL
		);
		CREATE TABLE horses (
			id           TEXT PRIMARY KEY,
			owner_id     TEXT NOT NULL,
			name         TEXT NOT NULL,
			feeder_id    TEXT REFERENCES devices (id),
			camera_id    TEXT REFERENCES devices (id),
			last_feed_at TEXT,
			created_at   TEXT NOT NULL,
			updated_at   TEXT NOT NULL
		);
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func insertDevice(t *testing.T, db *sql.DB, id, name, class string) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO devices (id, name, class, created_at, updated_at)
		VALUES (?, ?, ?, '2026-01-01T00:00:00Z', '2026-01-01T00:00:00Z')`, id, name, class)
	if err != nil {
		t.Fatalf("inserting device %s: %v", id, err)
	}
}

func TestSQLiteRepository_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	insertDevice(t, db, "dev-f1", "feeder-barn-01", "FEEDER")
	insertDevice(t, db, "dev-c1", "camera-paddock-01", "CAMERA")

	feederID := "dev-f1"
	cameraID := "dev-c1"
	h := &Horse{
		ID:       "horse-001",
		OwnerID:  "usr-001",
		Name:     "Star",
		FeederID: &feederID,
		CameraID: &cameraID,
	}

	if err := repo.Create(ctx, h); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := repo.GetByID(ctx, "horse-001")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Name != "Star" {
		t.Errorf("Name = %q, want Star", got.Name)
	}
	if !got.HasFeeder() || *got.FeederID != "dev-f1" {
		t.Errorf("FeederID = %v, want dev-f1", got.FeederID)
	}
	if !got.HasCamera() || *got.CameraID != "dev-c1" {
		t.Errorf("CameraID = %v, want dev-c1", got.CameraID)
	}
	if got.LastFeedAt != nil {
		t.Error("LastFeedAt should be nil for a new horse")
	}

	if err := repo.Create(ctx, h); !errors.Is(err, ErrHorseExists) {
		t.Errorf("duplicate Create() error = %v, want ErrHorseExists", err)
	}

	if _, err := repo.GetByID(ctx, "horse-ghost"); !errors.Is(err, ErrHorseNotFound) {
		t.Errorf("GetByID() error = %v, want ErrHorseNotFound", err)
	}
}

func TestSQLiteRepository_GetOwned(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	if err := repo.Create(ctx, &Horse{ID: "horse-001", OwnerID: "usr-001", Name: "Star"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if _, err := repo.GetOwned(ctx, "horse-001", "usr-001"); err != nil {
		t.Errorf("GetOwned() by owner error = %v", err)
	}

	if _, err := repo.GetOwned(ctx, "horse-001", "usr-other"); !errors.Is(err, ErrNotOwner) {
		t.Errorf("GetOwned() by stranger error = %v, want ErrNotOwner", err)
	}

	if _, err := repo.GetOwned(ctx, "horse-ghost", "usr-001"); !errors.Is(err, ErrHorseNotFound) {
		t.Errorf("GetOwned() unknown error = %v, want ErrHorseNotFound", err)
	}
}

func TestSQLiteRepository_DeviceLookups(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	insertDevice(t, db, "dev-f1", "feeder-one", "FEEDER")
	insertDevice(t, db, "dev-c1", "camera-one", "CAMERA")

	feederID := "dev-f1"
	cameraID := "dev-c1"
	if err := repo.Create(ctx, &Horse{
		ID: "horse-001", OwnerID: "usr-001", Name: "Star",
		FeederID: &feederID, CameraID: &cameraID,
	}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	h, err := repo.GetByCamera(ctx, "dev-c1")
	if err != nil {
		t.Fatalf("GetByCamera() error = %v", err)
	}
	if h.ID != "horse-001" {
		t.Errorf("GetByCamera() ID = %q, want horse-001", h.ID)
	}

	h, err = repo.FirstByFeeder(ctx, "dev-f1")
	if err != nil {
		t.Fatalf("FirstByFeeder() error = %v", err)
	}
	if h.ID != "horse-001" {
		t.Errorf("FirstByFeeder() ID = %q, want horse-001", h.ID)
	}

	if _, err := repo.GetByCamera(ctx, "dev-unassigned"); !errors.Is(err, ErrHorseNotFound) {
		t.Errorf("GetByCamera() unassigned error = %v, want ErrHorseNotFound", err)
	}
	if _, err := repo.FirstByFeeder(ctx, "dev-unassigned"); !errors.Is(err, ErrHorseNotFound) {
		t.Errorf("FirstByFeeder() unassigned error = %v, want ErrHorseNotFound", err)
	}
}

func TestSQLiteRepository_ListFeederNamesByOwner(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	insertDevice(t, db, "dev-f1", "feeder-alpha", "FEEDER")
	insertDevice(t, db, "dev-f2", "feeder-beta", "FEEDER")
	insertDevice(t, db, "dev-f3", "feeder-gamma", "FEEDER")

	f1, f2, f3 := "dev-f1", "dev-f2", "dev-f3"
	for _, h := range []*Horse{
		{ID: "horse-1", OwnerID: "usr-001", Name: "Star", FeederID: &f1},
		{ID: "horse-2", OwnerID: "usr-001", Name: "Comet", FeederID: &f2},
		{ID: "horse-3", OwnerID: "usr-001", Name: "NoFeeder"},
		{ID: "horse-4", OwnerID: "usr-other", Name: "Blaze", FeederID: &f3},
	} {
		if err := repo.Create(ctx, h); err != nil {
			t.Fatalf("Create(%s) error = %v", h.ID, err)
		}
	}

	names, err := repo.ListFeederNamesByOwner(ctx, "usr-001")
	if err != nil {
		t.Fatalf("ListFeederNamesByOwner() error = %v", err)
	}
	if len(names) != 2 || names[0] != "feeder-alpha" || names[1] != "feeder-beta" {
		t.Errorf("ListFeederNamesByOwner() = %v, want [feeder-alpha feeder-beta]", names)
	}

	names, err = repo.ListFeederNamesByOwner(ctx, "usr-nobody")
	if err != nil {
		t.Fatalf("ListFeederNamesByOwner() error = %v", err)
	}
	if len(names) != 0 {
		t.Errorf("expected no feeder names for unknown owner, got %v", names)
	}
}

func TestSQLiteRepository_SetLastFeedAt(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	if err := repo.Create(ctx, &Horse{ID: "horse-001", OwnerID: "usr-001", Name: "Star"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	fedAt := time.Date(2026, 3, 14, 7, 0, 0, 0, time.UTC)
	if err := repo.SetLastFeedAt(ctx, "horse-001", fedAt); err != nil {
		t.Fatalf("SetLastFeedAt() error = %v", err)
	}

	got, err := repo.GetByID(ctx, "horse-001")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.LastFeedAt == nil || !got.LastFeedAt.Equal(fedAt) {
		t.Errorf("LastFeedAt = %v, want %v", got.LastFeedAt, fedAt)
	}

	if err := repo.SetLastFeedAt(ctx, "horse-ghost", fedAt); !errors.Is(err, ErrHorseNotFound) {
		t.Errorf("SetLastFeedAt() unknown error = %v, want ErrHorseNotFound", err)
	}
}
