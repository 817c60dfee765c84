package feeding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stablelink/stable-core/internal/device"
	"github.com/stablelink/stable-core/internal/horse"
	"github.com/stablelink/stable-core/internal/infrastructure/logging"
	"github.com/stablelink/stable-core/internal/infrastructure/mqtt"
	"github.com/stablelink/stable-core/internal/link"
)

// startTimeout bounds the guarded creation transaction. A stuck insert
// must not pin a WebSocket handler.
const startTimeout = 5 * time.Second

// Event types broadcast to owners over the hub.
const (
	NoticeFeedingPending   = "FEEDING_PENDING"
	NoticeFeedingStarted   = "FEEDING_STARTED"
	NoticeFeedingRunning   = "FEEDING_RUNNING"
	NoticeFeedingCompleted = "FEEDING_COMPLETED"
	NoticeFeedingError     = "FEEDING_ERROR"
	NoticeWeightSample     = "WEIGHT_SAMPLE"
)

// Broadcaster pushes a domain notice to every connection of one owner.
type Broadcaster interface {
	Send(ownerID, eventType string, payload any)
}

// Publisher delivers a command to a device's command topic.
// *link.Link satisfies it.
type Publisher interface {
	PublishCommand(class mqtt.DeviceClass, deviceName string, cmd any) error
}

// Telemetry records feeding outcomes and live weight reads for
// reporting. Optional.
type Telemetry interface {
	WriteFeedingOutcome(deviceName, horseID, status string, requestedKg float64)
	WriteWeightSample(deviceName, horseID string, weightKg float64)
}

// WeightNotice is the payload shape for live scale broadcasts.
type WeightNotice struct {
	DeviceName string  `json:"deviceName"`
	HorseID    string  `json:"horseId"`
	WeightKg   float64 `json:"weightKg"`
}

// FeedingNotice is the payload shape for all feeding broadcasts.
type FeedingNotice struct {
	FeedingID    string  `json:"feedingId"`
	HorseID      string  `json:"horseId"`
	Status       Status  `json:"status"`
	RequestedKg  float64 `json:"requestedKg,omitempty"`
	Scheduled    bool    `json:"scheduled,omitempty"`
	ErrorMessage string  `json:"errorMessage,omitempty"`
}

// Service orchestrates the feeding lifecycle: guarded starts, scheduled
// starts via the dispatch channel, and inbound feeder event transitions.
type Service struct {
	feedings  Repository
	horses    horse.Repository
	devices   device.Repository
	publisher Publisher
	hub       Broadcaster
	telemetry Telemetry
	dispatch  chan FeedDispatch
	logger    *logging.Logger
}

// NewService creates the feeding orchestrator.
// dispatchBuffer sizes the scheduler handoff channel.
func NewService(
	feedings Repository,
	horses horse.Repository,
	devices device.Repository,
	publisher Publisher,
	hub Broadcaster,
	logger *logging.Logger,
	dispatchBuffer int,
) *Service {
	if dispatchBuffer <= 0 {
		dispatchBuffer = 16 //nolint:mnd // default handoff buffer
	}
	return &Service{
		feedings:  feedings,
		horses:    horses,
		devices:   devices,
		publisher: publisher,
		hub:       hub,
		dispatch:  make(chan FeedDispatch, dispatchBuffer),
		logger:    logger.With("component", "feeding"),
	}
}

// SetTelemetry wires the optional outcome sink.
func (s *Service) SetTelemetry(t Telemetry) { s.telemetry = t }

// Dispatches exposes the scheduler handoff channel for the dispatcher
// goroutine in main.
func (s *Service) Dispatches() <-chan FeedDispatch { return s.dispatch }

// Start begins a manual feeding for an owner's horse.
//
// The guarded creation protocol: ownership check, feeder resolution and
// class check, then a serializable transaction that creates the history
// row and the active singleton. Only after commit does anything leave
// the process: the PENDING broadcast, then the FEED_COMMAND.
//
// Concurrent Starts for the same horse resolve to exactly one success;
// the rest get ErrAlreadyInProgress.
func (s *Service) Start(ctx context.Context, horseID string, amountKg float64, userID string) (*Feeding, error) {
	if amountKg <= 0 {
		return nil, fmt.Errorf("%w: %v kg", ErrInvalidAmount, amountKg)
	}

	h, err := s.horses.GetOwned(ctx, horseID, userID)
	if err != nil {
		return nil, fmt.Errorf("resolving horse: %w", err)
	}

	dev, err := s.resolveFeeder(ctx, h)
	if err != nil {
		return nil, err
	}

	f, err := s.beginFeeding(ctx, h, dev, amountKg, false, "")
	if err != nil {
		return nil, err
	}

	s.broadcast(h.OwnerID, NoticeFeedingPending, f, "")

	cmd := link.NewFeedCommand(f.ID, f.HorseID, f.RequestedKg)
	if err := s.publisher.PublishCommand(mqtt.ClassFeeder, dev.Name, cmd); err != nil {
		// The feeding row stays live; the device event stream or a
		// manual retry resolves it.
		s.logger.Error("publishing feed command",
			"feeding_id", f.ID,
			"device", dev.Name,
			"error", err)
	}

	return f, nil
}

// StartScheduled begins a slot feeding for a due feeder. Called by the
// scheduler sweep; instead of publishing directly it posts a versioned
// FeedDispatch for the main dispatcher.
func (s *Service) StartScheduled(ctx context.Context, deviceID string, slot device.Slot) (*Feeding, error) {
	dev, err := s.devices.GetByID(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("resolving feeder: %w", err)
	}
	if !dev.IsFeeder() {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotAFeeder, dev.Name, dev.Class)
	}
	if dev.FeederMode != device.ModeScheduled || dev.SlotTime(slot) == "" {
		return nil, fmt.Errorf("%w: %s slot %s", ErrNotScheduled, dev.Name, slot)
	}

	h, err := s.horses.FirstByFeeder(ctx, dev.ID)
	if err != nil {
		return nil, fmt.Errorf("resolving horse for feeder %s: %w", dev.Name, err)
	}

	f, err := s.beginFeeding(ctx, h, dev, dev.ScheduledKg, true, slot)
	if err != nil {
		return nil, err
	}

	d := FeedDispatch{
		SchemaVersion: DispatchSchemaVersion,
		FeedingID:     f.ID,
		HorseID:       f.HorseID,
		OwnerID:       h.OwnerID,
		DeviceName:    dev.Name,
		TargetKg:      f.RequestedKg,
		Slot:          slot,
	}

	select {
	case s.dispatch <- d:
	default:
		// A full buffer means the dispatcher is wedged; the feeding row
		// exists but no command goes out. Loud log, no block.
		s.logger.Error("dispatch channel full, feeding created but not dispatched",
			"feeding_id", f.ID,
			"device", dev.Name)
	}

	return f, nil
}

// Dispatch performs the broadcast-and-publish half of a scheduled
// feeding. Runs on the dispatcher goroutine, never on the sweep.
func (s *Service) Dispatch(d FeedDispatch) {
	if d.SchemaVersion != DispatchSchemaVersion {
		s.logger.Error("dropping dispatch with unknown schema version",
			"version", d.SchemaVersion,
			"feeding_id", d.FeedingID)
		return
	}

	s.hub.Send(d.OwnerID, NoticeFeedingPending, FeedingNotice{
		FeedingID:   d.FeedingID,
		HorseID:     d.HorseID,
		Status:      StatusPending,
		RequestedKg: d.TargetKg,
		Scheduled:   true,
	})

	cmd := link.NewFeedCommand(d.FeedingID, d.HorseID, d.TargetKg)
	if err := s.publisher.PublishCommand(mqtt.ClassFeeder, d.DeviceName, cmd); err != nil {
		s.logger.Error("publishing scheduled feed command",
			"feeding_id", d.FeedingID,
			"device", d.DeviceName,
			"error", err)
	}
}

// HandleFeederEvent applies a device event to the feeding it names.
// Implements link.FeederHandler.
func (s *Service) HandleFeederEvent(ctx context.Context, deviceName string, evt link.FeederEvent) error {
	dev, err := s.devices.GetByName(ctx, deviceName)
	if err != nil {
		return fmt.Errorf("resolving device %s: %w", deviceName, err)
	}
	if !dev.IsFeeder() {
		return fmt.Errorf("%w: %s is %s", ErrNotAFeeder, deviceName, dev.Class)
	}

	f, err := s.feedings.GetByID(ctx, evt.FeedingID)
	if err != nil {
		return fmt.Errorf("resolving feeding %s: %w", evt.FeedingID, err)
	}
	if f.DeviceID != dev.ID {
		return fmt.Errorf("%w: feeding %s belongs to %s, event from %s",
			ErrDeviceMismatch, f.ID, f.DeviceID, dev.ID)
	}
	// HorseID is optional in the payload; when present it must agree
	// with the feeding row.
	if evt.HorseID != "" && evt.HorseID != f.HorseID {
		return fmt.Errorf("%w: feeding %s is for %s, event names %s",
			ErrHorseMismatch, f.ID, f.HorseID, evt.HorseID)
	}

	h, err := s.horses.GetByID(ctx, f.HorseID)
	if err != nil {
		return fmt.Errorf("resolving horse %s: %w", f.HorseID, err)
	}

	switch evt.Type {
	case link.EventFeedingStarted:
		now := time.Now().UTC()
		if err := s.feedings.UpdateActiveStatus(ctx, f.HorseID, StatusStarted, &now); err != nil {
			return fmt.Errorf("recording started transition: %w", err)
		}
		f.Status = StatusStarted
		s.broadcast(h.OwnerID, NoticeFeedingStarted, f, "")

	case link.EventFeedingRunning:
		if err := s.feedings.UpdateActiveStatus(ctx, f.HorseID, StatusRunning, nil); err != nil {
			return fmt.Errorf("recording running transition: %w", err)
		}
		f.Status = StatusRunning
		s.broadcast(h.OwnerID, NoticeFeedingRunning, f, "")

	case link.EventFeedingCompleted:
		now := time.Now().UTC()
		if err := s.feedings.Complete(ctx, f.ID, f.HorseID, now); err != nil {
			return fmt.Errorf("recording completion: %w", err)
		}
		f.Status = StatusCompleted
		s.broadcast(h.OwnerID, NoticeFeedingCompleted, f, "")
		s.recordOutcome(dev.Name, f)

	case link.EventFeedingError:
		if err := s.feedings.Fail(ctx, f.ID, f.HorseID); err != nil {
			return fmt.Errorf("recording failure: %w", err)
		}
		f.Status = StatusFailed
		s.broadcast(h.OwnerID, NoticeFeedingError, f, evt.ErrorMessage)
		s.recordOutcome(dev.Name, f)

	default:
		return fmt.Errorf("unexpected feeder event type %q", evt.Type)
	}

	return nil
}

// HandleWeightSample forwards a live scale read from a feeder to the
// owner of the horse it serves. Implements link.WeightHandler.
func (s *Service) HandleWeightSample(ctx context.Context, deviceName string, weightKg float64) error {
	dev, err := s.devices.GetByName(ctx, deviceName)
	if err != nil {
		return fmt.Errorf("resolving device %s: %w", deviceName, err)
	}
	if !dev.IsFeeder() {
		return fmt.Errorf("%w: %s is %s", ErrNotAFeeder, deviceName, dev.Class)
	}

	h, err := s.horses.FirstByFeeder(ctx, dev.ID)
	if err != nil {
		return fmt.Errorf("resolving horse for feeder %s: %w", deviceName, err)
	}

	s.hub.Send(h.OwnerID, NoticeWeightSample, WeightNotice{
		DeviceName: deviceName,
		HorseID:    h.ID,
		WeightKg:   weightKg,
	})

	if s.telemetry != nil {
		s.telemetry.WriteWeightSample(deviceName, h.ID, weightKg)
	}

	return nil
}

// resolveFeeder resolves and class-checks the horse's assigned feeder.
func (s *Service) resolveFeeder(ctx context.Context, h *horse.Horse) (*device.Device, error) {
	if !h.HasFeeder() {
		return nil, fmt.Errorf("%w: horse %s", ErrNoFeeder, h.ID)
	}

	dev, err := s.devices.GetByID(ctx, *h.FeederID)
	if err != nil {
		return nil, fmt.Errorf("resolving feeder: %w", err)
	}
	if !dev.IsFeeder() {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotAFeeder, dev.Name, dev.Class)
	}

	return dev, nil
}

// beginFeeding runs the guarded creation transaction under a timeout.
func (s *Service) beginFeeding(ctx context.Context, h *horse.Horse, dev *device.Device, amountKg float64, scheduled bool, slot device.Slot) (*Feeding, error) {
	txCtx, cancel := context.WithTimeout(ctx, startTimeout)
	defer cancel()

	f := &Feeding{
		ID:          uuid.NewString(),
		HorseID:     h.ID,
		DeviceID:    dev.ID,
		RequestedKg: amountKg,
		Scheduled:   scheduled,
		TimeSlot:    slot,
	}

	if err := s.feedings.BeginFeeding(txCtx, f); err != nil {
		if errors.Is(err, ErrAlreadyInProgress) {
			return nil, err
		}
		return nil, fmt.Errorf("creating feeding: %w", err)
	}

	s.logger.Info("feeding created",
		"feeding_id", f.ID,
		"horse_id", f.HorseID,
		"device", dev.Name,
		"requested_kg", f.RequestedKg,
		"scheduled", scheduled)

	return f, nil
}

func (s *Service) broadcast(ownerID, eventType string, f *Feeding, errMsg string) {
	s.hub.Send(ownerID, eventType, FeedingNotice{
		FeedingID:    f.ID,
		HorseID:      f.HorseID,
		Status:       f.Status,
		RequestedKg:  f.RequestedKg,
		Scheduled:    f.Scheduled,
		ErrorMessage: errMsg,
	})
}

func (s *Service) recordOutcome(deviceName string, f *Feeding) {
	if s.telemetry == nil {
		return
	}
	s.telemetry.WriteFeedingOutcome(deviceName, f.HorseID, string(f.Status), f.RequestedKg)
}
