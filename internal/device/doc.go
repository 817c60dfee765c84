// Package device holds the field-unit registry for StableLink.
//
// A Device row describes one physical unit on the broker: a feeder or a
// camera. The Name column is the broker identity, the segment the unit
// publishes under ({feeders|cameras}/{name}/events), and is unique.
//
// Feeders in SCHEDULED mode carry a portion size and up to three slot
// times ("HH:MM" in the site timezone); the scheduler sweep resolves due
// feeders through ListScheduledFeedersDue.
//
// Cameras carry the viewer access token: at most one valid token per
// camera, replaced on every STREAM_STARTED and invalidated on stop or
// stream error. Token resolution for the viewer endpoint goes through
// GetByStreamToken, which only matches valid tokens.
package device
