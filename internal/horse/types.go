package horse

import "time"

// Horse represents a stabled horse and its device assignments.
// This matches the database schema in migrations/20260210_000000_initial_schema.up.sql.
type Horse struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`
	Name    string `json:"name"`

	// Device assignments. A horse has at most one feeder and one camera;
	// either may be unassigned.
	FeederID *string `json:"feeder_id,omitempty"`
	CameraID *string `json:"camera_id,omitempty"`

	// LastFeedAt is set when a feeding completes successfully.
	LastFeedAt *time.Time `json:"last_feed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasFeeder reports whether a feeder is assigned.
func (h *Horse) HasFeeder() bool {
	return h.FeederID != nil && *h.FeederID != ""
}

// HasCamera reports whether a camera is assigned.
func (h *Horse) HasCamera() bool {
	return h.CameraID != nil && *h.CameraID != ""
}
