// Package link is the bridge between StableLink core and the broker.
//
// Outbound, it serialises typed commands and publishes them to
// {feeders|cameras}/{name}/commands at QoS 1. Delivery to the broker is
// at-least-once; device execution is never confirmed at this layer, and
// while the broker is unreachable commands are logged and dropped
// rather than queued.
//
// Inbound, Start subscribes the event wildcards and routes each message
// by its topic class segment: feeder events to the FeederHandler,
// camera events to the CameraHandler, live weight samples to the
// WeightHandler. Malformed topics or payloads are logged and dropped;
// a bad message never takes the link down.
package link
