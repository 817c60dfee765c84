// Package api implements the HTTP and WebSocket transports for
// StableLink Core.
//
// This package provides:
//   - The owner WebSocket: JWT-authenticated commands (feed now,
//     start/stop stream, logout) and real-time domain notices
//   - The camera uplink WebSocket: authenticated by device row, binary
//     frames into the relay
//   - The MJPEG viewer endpoint serving /stream/live/{token}
//   - /healthz and Prometheus /metrics
//   - Middleware stack (request ID, logging, recovery, body limits)
//
// # Architecture
//
// Owner clients never talk to devices directly. Commands flow through
// the domain services, out over MQTT; device events flow back through
// the event router and are pushed to each owner's connections via the
// hub. Camera frames bypass the broker entirely, travelling uplink
// socket -> relay -> viewer response.
package api
