// Package mqtt provides MQTT client connectivity for StableLink Core.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// StableLink uses MQTT as the bridge between the core and the physical
// stable devices (feeders and cameras). The broker decouples the core from
// device firmware:
//
//	StableLink Core ↔ MQTT Broker ↔ Feeders / Cameras
//
// Devices publish events on {feeders|cameras}/{name}/events and receive
// commands on {feeders|cameras}/{name}/commands. Delivery to the broker is
// QoS 1 (at least once); device execution is never confirmed at this layer.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to all feeder events
//	err = client.Subscribe(mqtt.Topics{}.AllFeederEvents(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Publish a command
//	topic := mqtt.Topics{}.DeviceCommand(mqtt.ClassFeeder, "feeder-barn-01")
//	client.Publish(topic, []byte(`{"type":"FEED_COMMAND"}`), 1, false)
package mqtt
