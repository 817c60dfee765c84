package device

import "time"

// Class separates the two kinds of field units the stable runs.
type Class string

// Device classes.
const (
	ClassFeeder Class = "FEEDER"
	ClassCamera Class = "CAMERA"
)

// AllClasses returns all valid device class values.
func AllClasses() []Class {
	return []Class{ClassFeeder, ClassCamera}
}

// FeederMode selects how a feeder is driven.
type FeederMode string

// Feeder modes.
const (
	// ModeManual means the feeder only dispenses on explicit owner command.
	ModeManual FeederMode = "MANUAL"

	// ModeScheduled means the sweep fires the feeder at its configured slots
	// in addition to manual commands.
	ModeScheduled FeederMode = "SCHEDULED"
)

// Device represents a physical unit reachable over the broker.
// This matches the database schema in migrations/20260210_000000_initial_schema.up.sql.
type Device struct {
	// Identity
	ID string `json:"id"`

	// Name is the broker identity: the topic segment the unit is
	// flashed with ({feeders|cameras}/{name}/...).
	Name string `json:"name"`

	// Label is the human-facing display name.
	Label string `json:"label"`

	// Classification
	Class Class `json:"class"`

	// Feeder scheduling (nil/zero for cameras and manual feeders)
	FeederMode  FeederMode `json:"feeder_mode,omitempty"`
	ScheduledKg float64    `json:"scheduled_kg,omitempty"`

	// Slot times as "HH:MM" in the site timezone.
	MorningTime *string `json:"morning_time,omitempty"`
	DayTime     *string `json:"day_time,omitempty"`
	NightTime   *string `json:"night_time,omitempty"`

	// Stream access (cameras only). At most one valid token per camera;
	// issuing a new token replaces the previous one.
	StreamToken      *string `json:"-"`
	StreamTokenValid bool    `json:"-"`

	// Timestamps
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsFeeder reports whether the device dispenses feed.
func (d *Device) IsFeeder() bool {
	return d.Class == ClassFeeder
}

// IsCamera reports whether the device streams video.
func (d *Device) IsCamera() bool {
	return d.Class == ClassCamera
}

// SlotTime returns the configured "HH:MM" for a feeding slot,
// or "" when the slot is not configured.
func (d *Device) SlotTime(slot Slot) string {
	var t *string
	switch slot {
	case SlotMorning:
		t = d.MorningTime
	case SlotDay:
		t = d.DayTime
	case SlotNight:
		t = d.NightTime
	}
	if t == nil {
		return ""
	}
	return *t
}

// Slot identifies one of the three scheduled feeding windows.
type Slot string

// Feeding slots.
const (
	SlotMorning Slot = "morning"
	SlotDay     Slot = "day"
	SlotNight   Slot = "night"
)

// AllSlots returns all valid slot values.
func AllSlots() []Slot {
	return []Slot{SlotMorning, SlotDay, SlotNight}
}

// IsValidSlot returns true if the slot is one of the three windows.
func IsValidSlot(s Slot) bool {
	for _, v := range AllSlots() {
		if s == v {
			return true
		}
	}
	return false
}
