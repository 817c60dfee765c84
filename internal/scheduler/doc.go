// Package scheduler sweeps for feeders whose schedule slot matches the
// current minute and kicks off their feedings.
//
// The sweep only creates database state and posts dispatch records; it
// never talks to the broker or the hub itself. Devices settle
// independently, so one feeder already mid-feeding or misconfigured
// cannot hold up the rest of the minute's batch.
package scheduler
