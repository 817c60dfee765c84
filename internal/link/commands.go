package link

import (
	"encoding/json"
	"fmt"

	"github.com/stablelink/stable-core/internal/infrastructure/mqtt"
)

// Command types sent to field units.
const (
	CommandFeed              = "FEED_COMMAND"
	CommandStartStream       = "START_STREAM"
	CommandStopStream        = "STOP_STREAM"
	CommandStartWeightStream = "START_WEIGHT_STREAM"
	CommandStopWeightStream  = "STOP_WEIGHT_STREAM"
)

// FeedCommand instructs a feeder to dispense a portion.
type FeedCommand struct {
	Type      string  `json:"type"`
	FeedingID string  `json:"feedingId"`
	TargetKg  float64 `json:"targetKg"`
	HorseID   string  `json:"horseId"`
}

// NewFeedCommand builds a FEED_COMMAND for a feeding.
func NewFeedCommand(feedingID, horseID string, targetKg float64) FeedCommand {
	return FeedCommand{
		Type:      CommandFeed,
		FeedingID: feedingID,
		TargetKg:  targetKg,
		HorseID:   horseID,
	}
}

// StreamCommand starts or stops a camera's video stream.
type StreamCommand struct {
	Type    string `json:"type"`
	HorseID string `json:"horseId"`
}

// NewStartStreamCommand builds a START_STREAM command.
func NewStartStreamCommand(horseID string) StreamCommand {
	return StreamCommand{Type: CommandStartStream, HorseID: horseID}
}

// NewStopStreamCommand builds a STOP_STREAM command.
func NewStopStreamCommand(horseID string) StreamCommand {
	return StreamCommand{Type: CommandStopStream, HorseID: horseID}
}

// WeightStreamCommand starts or stops a feeder's live weight stream.
type WeightStreamCommand struct {
	Type string `json:"type"`
}

// PublishCommand serialises a command and publishes it to the device's
// command topic at QoS 1.
//
// While the broker is unreachable the command is logged and dropped;
// callers that need retry semantics own them.
func (l *Link) PublishCommand(class mqtt.DeviceClass, deviceName string, cmd any) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshalling command: %w", err)
	}

	topic := mqtt.Topics{}.DeviceCommand(class, deviceName)

	if !l.client.IsConnected() {
		l.logger.Warn("broker disconnected, dropping command",
			"topic", topic)
		return nil
	}

	if err := l.client.Publish(topic, payload, commandQoS, false); err != nil {
		return fmt.Errorf("publishing command to %s: %w", topic, err)
	}

	return nil
}

// StartWeightStream tells one feeder to begin streaming live scale reads.
func (l *Link) StartWeightStream(deviceName string) error {
	return l.PublishCommand(mqtt.ClassFeeder, deviceName,
		WeightStreamCommand{Type: CommandStartWeightStream})
}

// StopWeightStream tells one feeder to stop streaming live scale reads.
func (l *Link) StopWeightStream(deviceName string) error {
	return l.PublishCommand(mqtt.ClassFeeder, deviceName,
		WeightStreamCommand{Type: CommandStopWeightStream})
}

// StartWeightStreams starts weight streams on a batch of feeders.
// Each device is handled independently; one failure is logged and the
// rest of the batch still goes out.
func (l *Link) StartWeightStreams(deviceNames []string) {
	for _, name := range deviceNames {
		if err := l.StartWeightStream(name); err != nil {
			l.logger.Error("starting weight stream",
				"device", name,
				"error", err)
		}
	}
}

// StopWeightStreams stops weight streams on a batch of feeders with the
// same per-device isolation as StartWeightStreams.
func (l *Link) StopWeightStreams(deviceNames []string) {
	for _, name := range deviceNames {
		if err := l.StopWeightStream(name); err != nil {
			l.logger.Error("stopping weight stream",
				"device", name,
				"error", err)
		}
	}
}
