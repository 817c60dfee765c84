package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a device ID, name, or token does not resolve.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when creating a device whose ID or name already exists.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrInvalidClass is returned when a class value is not FEEDER or CAMERA.
	ErrInvalidClass = errors.New("device: invalid class")

	// ErrInvalidName is returned when a device name is empty or malformed.
	ErrInvalidName = errors.New("device: invalid name")

	// ErrDeviceAssigned is returned when deleting a device still linked to a horse.
	ErrDeviceAssigned = errors.New("device: still assigned to a horse")
)
