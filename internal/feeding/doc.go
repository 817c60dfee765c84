// Package feeding orchestrates the feeding lifecycle.
//
// A feeding is a history row (feedings) plus, while live, a singleton
// mirror row (active_feedings) keyed by horse. The singleton's primary
// key is the concurrency gate: however many Start calls race for one
// horse, exactly one insert wins and the rest surface
// ErrAlreadyInProgress.
//
// Lifecycle: PENDING → STARTED → RUNNING → {COMPLETED | FAILED}.
// Intermediate transitions write only the active row; the terminal
// transition finalises the history row, deletes the active row, and on
// success stamps the horse's last_feed_at, all in one transaction.
//
// Two start paths exist. Manual starts broadcast and publish inline
// after commit. Scheduled starts create the rows on the sweep goroutine
// but hand the outward half (broadcast + FEED_COMMAND) to the main
// dispatcher through a versioned FeedDispatch channel.
package feeding
