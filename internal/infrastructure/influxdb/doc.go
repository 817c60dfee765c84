// Package influxdb provides time-series storage for StableLink telemetry.
//
// This package manages:
//   - Connection to InfluxDB v2 with token authentication
//   - Non-blocking batched writes via the async WriteAPI
//   - Typed write helpers for weight samples and feeding outcomes
//   - Health monitoring via ping
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteWeightSample("feeder-barn-01", horse.ID, 1.85)
//
// Writes are fire-and-forget: errors surface asynchronously through
// SetOnError. InfluxDB is optional; when disabled in config, Connect
// returns ErrDisabled and callers run without telemetry.
package influxdb
