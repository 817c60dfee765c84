package horse

import "errors"

// Domain errors for the horse package.
var (
	// ErrHorseNotFound is returned when a horse ID does not exist.
	ErrHorseNotFound = errors.New("horse: not found")

	// ErrHorseExists is returned when creating a horse with an ID that already exists.
	ErrHorseExists = errors.New("horse: already exists")

	// ErrNotOwner is returned when a horse exists but belongs to a different owner.
	ErrNotOwner = errors.New("horse: not owned by user")
)
