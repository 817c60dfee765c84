// Package session tracks which owners are connected and turns that
// occupancy into device stream lifecycles.
//
// Every WebSocket connection joins the weight rooms of the owner's
// feeders. A room's first watcher starts the feeder's live weight
// stream; when its last watcher drops, the room enters a shared
// pending-stop set guarded by a single grace timer, so a page refresh
// does not bounce the hardware. The same pattern covers the owner's
// active camera stream. Occupancy is always re-checked when the timer
// fires; the answer at arm time is never trusted.
//
// Logout skips the grace period and stops everything synchronously.
package session
