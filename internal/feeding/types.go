package feeding

import (
	"time"

	"github.com/stablelink/stable-core/internal/device"
)

// Status is the lifecycle state of a feeding.
//
// Transitions: PENDING → STARTED → RUNNING → {COMPLETED | FAILED}.
// FAILED may be entered from any live state.
type Status string

// Feeding statuses.
const (
	StatusPending   Status = "PENDING"
	StatusStarted   Status = "STARTED"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// IsTerminal reports whether the status ends a feeding.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Feeding is one append-only history row.
// This matches the database schema in migrations/20260210_000000_initial_schema.up.sql.
type Feeding struct {
	ID          string      `json:"id"`
	HorseID     string      `json:"horse_id"`
	DeviceID    string      `json:"device_id"`
	RequestedKg float64     `json:"requested_kg"`
	Status      Status      `json:"status"`
	Scheduled   bool        `json:"scheduled"`
	TimeSlot    device.Slot `json:"time_slot,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

// ActiveFeeding mirrors the in-progress feeding for one horse.
// The horse_id primary key makes it a singleton: insert is the
// concurrency gate for starting a feeding.
type ActiveFeeding struct {
	HorseID     string     `json:"horse_id"`
	FeedingID   string     `json:"feeding_id"`
	DeviceID    string     `json:"device_id"`
	RequestedKg float64    `json:"requested_kg"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
}

// DispatchSchemaVersion is the current FeedDispatch wire version.
// The dispatcher rejects versions it does not know.
const DispatchSchemaVersion = 1

// FeedDispatch is the handoff record the scheduler sweep posts for the
// main dispatcher to broadcast and publish. The sweep never touches the
// broker or the hub itself.
type FeedDispatch struct {
	SchemaVersion int         `json:"schemaVersion"`
	FeedingID     string      `json:"feedingId"`
	HorseID       string      `json:"horseId"`
	OwnerID       string      `json:"ownerId"`
	DeviceName    string      `json:"deviceName"`
	TargetKg      float64     `json:"targetKg"`
	Slot          device.Slot `json:"slot"`
}
