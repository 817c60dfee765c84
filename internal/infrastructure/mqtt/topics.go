package mqtt

import "fmt"

// DeviceClass selects the topic namespace a physical device lives in.
// The class segment is the first element of every device topic and is the
// discriminant used to decode inbound event payloads.
type DeviceClass string

// Device classes.
const (
	ClassFeeder DeviceClass = "feeders"
	ClassCamera DeviceClass = "cameras"
)

// Topic namespace constants.
const (
	// TopicPrefixSystem is the base for core system topics.
	TopicPrefixSystem = "stablelink/system"

	// topicSegmentCommands is the trailing segment for commands to devices.
	topicSegmentCommands = "commands"

	// topicSegmentEvents is the trailing segment for events from devices.
	topicSegmentEvents = "events"
)

// Topics provides builders for StableLink MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
// Device topics follow the flat scheme the field units are flashed with:
//
//	{feeders|cameras}/{device_name}/{commands|events}
//
// Example:
//
//	topics := mqtt.Topics{}
//	cmdTopic := topics.DeviceCommand(mqtt.ClassFeeder, "feeder-barn-01")
//	// Returns: "feeders/feeder-barn-01/commands"
type Topics struct{}

// DeviceCommand returns the topic commands to a device are published on.
//
// Example: feeders/feeder-barn-01/commands
func (Topics) DeviceCommand(class DeviceClass, name string) string {
	return fmt.Sprintf("%s/%s/%s", class, name, topicSegmentCommands)
}

// DeviceEvents returns the topic a device publishes its events on.
//
// Example: cameras/camera-paddock-02/events
func (Topics) DeviceEvents(class DeviceClass, name string) string {
	return fmt.Sprintf("%s/%s/%s", class, name, topicSegmentEvents)
}

// AllFeederEvents returns a pattern matching every feeder's event topic.
//
// Pattern: feeders/+/events
func (Topics) AllFeederEvents() string {
	return fmt.Sprintf("%s/+/%s", ClassFeeder, topicSegmentEvents)
}

// AllCameraEvents returns a pattern matching every camera's event topic.
//
// Pattern: cameras/+/events
func (Topics) AllCameraEvents() string {
	return fmt.Sprintf("%s/+/%s", ClassCamera, topicSegmentEvents)
}

// SystemStatus returns the core online/offline status topic (retained + LWT).
//
// Example: stablelink/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}
