package link

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stablelink/stable-core/internal/infrastructure/mqtt"
)

// Feeder event types published by field units.
const (
	EventFeedingStarted   = "FEEDING_STARTED"
	EventFeedingRunning   = "FEEDING_RUNNING"
	EventFeedingCompleted = "FEEDING_COMPLETED"
	EventFeedingError     = "FEEDING_ERROR"
	EventWeightSample     = "WEIGHT_SAMPLE"
)

// Camera event types published by field units.
const (
	EventStreamStarted = "STREAM_STARTED"
	EventStreamError   = "STREAM_ERROR"
)

// FeederEvent is a decoded message from a feeder's event topic.
// Fields beyond Type are populated per event type: feeding lifecycle
// events carry FeedingID/HorseID, WEIGHT_SAMPLE carries WeightKg,
// FEEDING_ERROR additionally carries ErrorMessage.
type FeederEvent struct {
	Type         string  `json:"type"`
	FeedingID    string  `json:"feedingId,omitempty"`
	HorseID      string  `json:"horseId,omitempty"`
	WeightKg     float64 `json:"weightKg,omitempty"`
	ErrorMessage string  `json:"errorMessage,omitempty"`
}

// CameraEvent is a decoded message from a camera's event topic.
type CameraEvent struct {
	Type         string `json:"type"`
	HorseID      string `json:"horseId,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// parseEventTopic splits an event topic into its class and device name.
// Expected shape: {feeders|cameras}/{name}/events.
func parseEventTopic(topic string) (mqtt.DeviceClass, string, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[2] != "events" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: %q", ErrMalformedTopic, topic)
	}

	class := mqtt.DeviceClass(parts[0])
	if class != mqtt.ClassFeeder && class != mqtt.ClassCamera {
		return "", "", fmt.Errorf("%w: unknown class in %q", ErrMalformedTopic, topic)
	}

	return class, parts[1], nil
}

// decodeFeederEvent parses a feeder event payload and validates its type tag.
func decodeFeederEvent(payload []byte) (FeederEvent, error) {
	var evt FeederEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return FeederEvent{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	switch evt.Type {
	case EventFeedingStarted, EventFeedingRunning, EventFeedingCompleted,
		EventFeedingError, EventWeightSample:
		return evt, nil
	case "":
		return FeederEvent{}, fmt.Errorf("%w: missing type", ErrMalformedPayload)
	default:
		return FeederEvent{}, fmt.Errorf("%w: %q", ErrUnknownEventType, evt.Type)
	}
}

// decodeCameraEvent parses a camera event payload and validates its type tag.
func decodeCameraEvent(payload []byte) (CameraEvent, error) {
	var evt CameraEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return CameraEvent{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	switch evt.Type {
	case EventStreamStarted, EventStreamError:
		return evt, nil
	case "":
		return CameraEvent{}, fmt.Errorf("%w: missing type", ErrMalformedPayload)
	default:
		return CameraEvent{}, fmt.Errorf("%w: %q", ErrUnknownEventType, evt.Type)
	}
}
