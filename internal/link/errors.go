package link

import "errors"

// Domain errors for the link package.
var (
	// ErrMalformedTopic is returned when an event topic does not match
	// {feeders|cameras}/{name}/events.
	ErrMalformedTopic = errors.New("link: malformed event topic")

	// ErrMalformedPayload is returned when an event payload is not valid JSON
	// or is missing its type tag.
	ErrMalformedPayload = errors.New("link: malformed event payload")

	// ErrUnknownEventType is returned when an event carries a type the router
	// does not recognise.
	ErrUnknownEventType = errors.New("link: unknown event type")
)
