// Package relay moves camera frames from uplinks to viewers with a
// latest-frame-wins policy.
//
// Each horse has exactly one buffer slot, always overwritten and never
// queued, so a late viewer gets the freshest frame instantly instead of
// a backlog. Accepted frames raise notices through an event dispatcher,
// throttled per horse so fast cameras cannot flood subscribers; notices
// carry a monotonic sequence number, letting viewers discard stale
// wake-ups without comparing bytes.
//
// Frames are sanity-checked by their JPEG start marker only. Anything
// else is counted as dropped and ignored; the relay never attempts to
// repair or decode image data.
package relay
