package stream

import "errors"

// Domain errors for the stream package.
var (
	// ErrStreamActive is returned when starting a stream the user is
	// already watching.
	ErrStreamActive = errors.New("stream: already streaming this horse")

	// ErrNoActiveStream is returned when stopping a stream that is not
	// the user's recorded active stream.
	ErrNoActiveStream = errors.New("stream: no active stream for horse")

	// ErrNoCamera is returned when the horse has no camera assigned.
	ErrNoCamera = errors.New("stream: horse has no camera")

	// ErrNotACamera is returned when the resolved device is not a camera.
	ErrNotACamera = errors.New("stream: device is not a camera")
)
