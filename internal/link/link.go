package link

import (
	"context"
	"fmt"

	"github.com/stablelink/stable-core/internal/infrastructure/logging"
	"github.com/stablelink/stable-core/internal/infrastructure/mqtt"
)

// commandQoS is the delivery level for all outbound device commands.
const commandQoS byte = 1

// Client is the narrow broker surface the link needs.
// *mqtt.Client satisfies it; tests substitute a fake.
type Client interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// FeederHandler consumes decoded feeder lifecycle events.
type FeederHandler interface {
	HandleFeederEvent(ctx context.Context, deviceName string, evt FeederEvent) error
}

// CameraHandler consumes decoded camera events.
type CameraHandler interface {
	HandleCameraEvent(ctx context.Context, deviceName string, evt CameraEvent) error
}

// WeightHandler consumes live scale reads from feeders.
type WeightHandler interface {
	HandleWeightSample(ctx context.Context, deviceName string, weightKg float64) error
}

// Link routes traffic between the broker and the domain services.
type Link struct {
	client Client
	logger *logging.Logger

	feeders FeederHandler
	cameras CameraHandler
	weights WeightHandler
}

// New creates a Link. Handlers may be nil; events without a handler are
// dropped with a debug log.
func New(client Client, logger *logging.Logger) *Link {
	return &Link{
		client: client,
		logger: logger.With("component", "link"),
	}
}

// SetFeederHandler wires the consumer for feeder lifecycle events.
func (l *Link) SetFeederHandler(h FeederHandler) { l.feeders = h }

// SetCameraHandler wires the consumer for camera events.
func (l *Link) SetCameraHandler(h CameraHandler) { l.cameras = h }

// SetWeightHandler wires the consumer for live weight samples.
func (l *Link) SetWeightHandler(h WeightHandler) { l.weights = h }

// Start subscribes both event wildcards and begins routing.
//
// The passed context bounds handler execution for events received after
// Start returns; cancelling it does not unsubscribe (the broker client
// owns connection lifecycle).
func (l *Link) Start(ctx context.Context) error {
	topics := mqtt.Topics{}

	if err := l.client.Subscribe(topics.AllFeederEvents(), commandQoS, l.eventHandler(ctx)); err != nil {
		return fmt.Errorf("subscribing feeder events: %w", err)
	}
	if err := l.client.Subscribe(topics.AllCameraEvents(), commandQoS, l.eventHandler(ctx)); err != nil {
		return fmt.Errorf("subscribing camera events: %w", err)
	}

	l.logger.Info("device link started",
		"feeder_topic", topics.AllFeederEvents(),
		"camera_topic", topics.AllCameraEvents())

	return nil
}

// eventHandler returns the broker callback that decodes and dispatches
// one inbound event. Errors are logged per event and swallowed so a bad
// message never tears down the subscription.
func (l *Link) eventHandler(ctx context.Context) mqtt.MessageHandler {
	return func(topic string, payload []byte) error {
		class, name, err := parseEventTopic(topic)
		if err != nil {
			l.logger.Warn("dropping event with malformed topic",
				"topic", topic,
				"error", err)
			return nil
		}

		switch class {
		case mqtt.ClassFeeder:
			l.routeFeederEvent(ctx, name, payload)
		case mqtt.ClassCamera:
			l.routeCameraEvent(ctx, name, payload)
		}

		return nil
	}
}

func (l *Link) routeFeederEvent(ctx context.Context, deviceName string, payload []byte) {
	evt, err := decodeFeederEvent(payload)
	if err != nil {
		l.logger.Warn("dropping malformed feeder event",
			"device", deviceName,
			"error", err)
		return
	}

	if evt.Type == EventWeightSample {
		if l.weights == nil {
			l.logger.Debug("no weight handler, dropping sample", "device", deviceName)
			return
		}
		if err := l.weights.HandleWeightSample(ctx, deviceName, evt.WeightKg); err != nil {
			l.logger.Error("handling weight sample",
				"device", deviceName,
				"error", err)
		}
		return
	}

	if l.feeders == nil {
		l.logger.Debug("no feeder handler, dropping event",
			"device", deviceName,
			"type", evt.Type)
		return
	}
	if err := l.feeders.HandleFeederEvent(ctx, deviceName, evt); err != nil {
		l.logger.Error("handling feeder event",
			"device", deviceName,
			"type", evt.Type,
			"feeding_id", evt.FeedingID,
			"error", err)
	}
}

func (l *Link) routeCameraEvent(ctx context.Context, deviceName string, payload []byte) {
	evt, err := decodeCameraEvent(payload)
	if err != nil {
		l.logger.Warn("dropping malformed camera event",
			"device", deviceName,
			"error", err)
		return
	}

	if l.cameras == nil {
		l.logger.Debug("no camera handler, dropping event",
			"device", deviceName,
			"type", evt.Type)
		return
	}
	if err := l.cameras.HandleCameraEvent(ctx, deviceName, evt); err != nil {
		l.logger.Error("handling camera event",
			"device", deviceName,
			"type", evt.Type,
			"error", err)
	}
}
