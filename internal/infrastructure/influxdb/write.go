package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteWeightSample records a live scale reading from a feeder.
//
// The write is non-blocking; data is batched and sent asynchronously.
// Samples arriving while disconnected are silently dropped. Weight
// telemetry is best-effort; the authoritative feeding record lives in
// the relational store.
//
// Parameters:
//   - deviceName: Broker identity of the feeder (e.g., "feeder-barn-01")
//   - horseID: Horse the feeder is assigned to (empty if unassigned)
//   - weightKg: Current bowl weight in kilograms
//
// Example:
//
//	client.WriteWeightSample("feeder-barn-01", horse.ID, 1.85)
func (c *Client) WriteWeightSample(deviceName, horseID string, weightKg float64) {
	if !c.IsConnected() {
		return
	}

	tags := map[string]string{
		"device": deviceName,
	}
	if horseID != "" {
		tags["horse_id"] = horseID
	}

	point := write.NewPoint(
		"feeder_weight",
		tags,
		map[string]interface{}{
			"kg": weightKg,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteFeedingOutcome records a terminal feeding transition for reporting.
//
// Parameters:
//   - deviceName: Feeder broker identity
//   - horseID: Horse that was fed
//   - status: Terminal status ("COMPLETED" or "FAILED")
//   - requestedKg: The amount the feeding was started with
func (c *Client) WriteFeedingOutcome(deviceName, horseID, status string, requestedKg float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"feeding_outcome",
		map[string]string{
			"device":   deviceName,
			"horse_id": horseID,
			"status":   status,
		},
		map[string]interface{}{
			"requested_kg": requestedKg,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use the typed helpers above where one fits; this exists for ad hoc
// instrumentation.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Used for backfilling or when the sample time differs from the write time.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
