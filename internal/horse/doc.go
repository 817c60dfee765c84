// Package horse holds the horse registry and device assignments.
//
// Every command an owner issues resolves through this package first:
// ownership is checked with GetOwned, then the horse's assigned feeder
// or camera is the only device the command may touch. Inbound device
// events resolve the other way, from device to horse, via GetByCamera
// and FirstByFeeder.
package horse
