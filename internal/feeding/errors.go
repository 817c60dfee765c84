package feeding

import "errors"

// Domain errors for the feeding package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, feeding.ErrAlreadyInProgress) {
//	    // surface the conflict to the caller
//	}
var (
	// ErrFeedingNotFound is returned when a feeding ID does not exist.
	ErrFeedingNotFound = errors.New("feeding: not found")

	// ErrAlreadyInProgress is returned when the horse already has a live
	// feeding. At most one feeding per horse can be live at any moment.
	ErrAlreadyInProgress = errors.New("feeding: already in progress")

	// ErrInvalidAmount is returned when the requested portion is not positive.
	ErrInvalidAmount = errors.New("feeding: invalid amount")

	// ErrNoFeeder is returned when the horse has no feeder assigned.
	ErrNoFeeder = errors.New("feeding: horse has no feeder")

	// ErrNotAFeeder is returned when the resolved device is not a feeder.
	ErrNotAFeeder = errors.New("feeding: device is not a feeder")

	// ErrDeviceMismatch is returned when an event's device is not the one
	// the feeding was started on.
	ErrDeviceMismatch = errors.New("feeding: event from wrong device")

	// ErrHorseMismatch is returned when an event names a horse other than
	// the one the feeding belongs to.
	ErrHorseMismatch = errors.New("feeding: event names wrong horse")

	// ErrNotScheduled is returned when a scheduled start is requested for a
	// feeder that is not in SCHEDULED mode or has no time for the slot.
	ErrNotScheduled = errors.New("feeding: feeder not scheduled for slot")
)
