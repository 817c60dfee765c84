// Package stream manages camera stream sessions and viewer tokens.
//
// Each user streams at most one horse at a time, persisted in the
// active_streams table. Switching cameras is sequenced stop-previous
// then start-next so a user never drives two cameras at once.
//
// Playback access is a random token on the camera row. STREAM_STARTED
// mints a fresh token (replacing any previous one) and broadcasts the
// viewer URL; stops and stream errors invalidate it. The viewer
// endpoint additionally checks that the resolved horse is the owner's
// recorded active stream, so a leaked URL dies as soon as the session
// ends.
package stream
