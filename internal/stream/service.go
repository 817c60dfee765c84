package stream

import (
	"context"
	"errors"
	"fmt"

	"github.com/stablelink/stable-core/internal/device"
	"github.com/stablelink/stable-core/internal/horse"
	"github.com/stablelink/stable-core/internal/infrastructure/logging"
	"github.com/stablelink/stable-core/internal/infrastructure/mqtt"
	"github.com/stablelink/stable-core/internal/link"
)

// Event types broadcast to owners over the hub.
const (
	NoticeStreamStarted = "STREAM_STARTED"
	NoticeStreamStopped = "STREAM_STOPPED"
	NoticeStreamError   = "STREAM_ERROR"
)

// Broadcaster pushes a domain notice to every connection of one owner.
type Broadcaster interface {
	Send(ownerID, eventType string, payload any)
}

// Publisher delivers a command to a device's command topic.
type Publisher interface {
	PublishCommand(class mqtt.DeviceClass, deviceName string, cmd any) error
}

// StreamNotice is the payload shape for stream broadcasts.
type StreamNotice struct {
	HorseID      string `json:"horseId"`
	StreamURL    string `json:"streamUrl,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// Service manages camera stream sessions: one active camera per user,
// stop-previous-then-start-next switching, and the viewer token
// lifecycle driven by camera events.
type Service struct {
	streams   Repository
	horses    horse.Repository
	devices   device.Repository
	publisher Publisher
	hub       Broadcaster
	logger    *logging.Logger
}

// NewService creates the stream session service.
func NewService(
	streams Repository,
	horses horse.Repository,
	devices device.Repository,
	publisher Publisher,
	hub Broadcaster,
	logger *logging.Logger,
) *Service {
	return &Service{
		streams:   streams,
		horses:    horses,
		devices:   devices,
		publisher: publisher,
		hub:       hub,
		logger:    logger.With("component", "stream"),
	}
}

// Start begins streaming an owner's horse.
//
// If the user is already streaming a different horse, the switch is
// sequenced: the new active horse is recorded first, then the previous
// camera is stopped, then the next one started. Requesting the horse
// already being streamed is a conflict.
func (s *Service) Start(ctx context.Context, horseID, userID string) error {
	h, err := s.horses.GetOwned(ctx, horseID, userID)
	if err != nil {
		return fmt.Errorf("resolving horse: %w", err)
	}

	cam, err := s.resolveCamera(ctx, h)
	if err != nil {
		return err
	}

	prev, err := s.streams.GetByUser(ctx, userID)
	if err != nil && !errors.Is(err, ErrNoActiveStream) {
		return fmt.Errorf("checking active stream: %w", err)
	}
	if prev != nil && prev.HorseID == horseID {
		return fmt.Errorf("%w: %s", ErrStreamActive, horseID)
	}

	if err := s.streams.Set(ctx, userID, horseID); err != nil {
		return err
	}

	// Stop the previous camera before starting the next so two streams
	// never run for one user.
	if prev != nil {
		s.stopCameraFor(ctx, prev.HorseID)
	}

	cmd := link.NewStartStreamCommand(horseID)
	if err := s.publisher.PublishCommand(mqtt.ClassCamera, cam.Name, cmd); err != nil {
		return fmt.Errorf("publishing start stream: %w", err)
	}

	s.logger.Info("stream start requested",
		"horse_id", horseID,
		"camera", cam.Name,
		"switched", prev != nil)

	return nil
}

// Stop ends the user's stream of a horse. The horse must be the user's
// recorded active stream.
func (s *Service) Stop(ctx context.Context, horseID, userID string) error {
	h, err := s.horses.GetOwned(ctx, horseID, userID)
	if err != nil {
		return fmt.Errorf("resolving horse: %w", err)
	}

	active, err := s.streams.GetByUser(ctx, userID)
	if err != nil {
		return err
	}
	if active.HorseID != horseID {
		return fmt.Errorf("%w: active stream is %s", ErrNoActiveStream, active.HorseID)
	}

	cam, err := s.resolveCamera(ctx, h)
	if err != nil {
		// Camera unassigned since the stream started; still clear the row.
		if clearErr := s.streams.Clear(ctx, userID, ""); clearErr != nil {
			return clearErr
		}
		return err
	}

	if err := s.streams.Clear(ctx, userID, cam.ID); err != nil {
		return err
	}

	cmd := link.NewStopStreamCommand(horseID)
	if err := s.publisher.PublishCommand(mqtt.ClassCamera, cam.Name, cmd); err != nil {
		return fmt.Errorf("publishing stop stream: %w", err)
	}

	s.hub.Send(h.OwnerID, NoticeStreamStopped, StreamNotice{HorseID: horseID})

	return nil
}

// StopActive ends whatever stream the user has, if any. Used by the
// session manager on grace expiry and logout; absence is not an error.
func (s *Service) StopActive(ctx context.Context, userID string) error {
	active, err := s.streams.GetByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNoActiveStream) {
			return nil
		}
		return err
	}

	h, err := s.horses.GetByID(ctx, active.HorseID)
	if err != nil {
		// Horse gone; drop the stale row.
		return s.streams.Clear(ctx, userID, "")
	}

	cam, err := s.resolveCamera(ctx, h)
	if err != nil {
		return s.streams.Clear(ctx, userID, "")
	}

	if err := s.streams.Clear(ctx, userID, cam.ID); err != nil {
		return err
	}

	cmd := link.NewStopStreamCommand(active.HorseID)
	if err := s.publisher.PublishCommand(mqtt.ClassCamera, cam.Name, cmd); err != nil {
		s.logger.Error("publishing stop stream",
			"camera", cam.Name,
			"error", err)
	}

	return nil
}

// ActiveHorse returns the horse ID the user is streaming, or "" if none.
func (s *Service) ActiveHorse(ctx context.Context, userID string) (string, error) {
	active, err := s.streams.GetByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNoActiveStream) {
			return "", nil
		}
		return "", err
	}
	return active.HorseID, nil
}

// HandleCameraEvent applies a camera event. Implements link.CameraHandler.
func (s *Service) HandleCameraEvent(ctx context.Context, deviceName string, evt link.CameraEvent) error {
	cam, err := s.devices.GetByName(ctx, deviceName)
	if err != nil {
		return fmt.Errorf("resolving camera %s: %w", deviceName, err)
	}
	if !cam.IsCamera() {
		return fmt.Errorf("%w: %s is %s", ErrNotACamera, deviceName, cam.Class)
	}

	h, err := s.horses.GetByCamera(ctx, cam.ID)
	if err != nil {
		return fmt.Errorf("resolving horse for camera %s: %w", deviceName, err)
	}

	switch evt.Type {
	case link.EventStreamStarted:
		token, err := GenerateStreamToken()
		if err != nil {
			return err
		}
		if err := s.devices.SetStreamToken(ctx, cam.ID, token); err != nil {
			return fmt.Errorf("storing stream token: %w", err)
		}
		s.hub.Send(h.OwnerID, NoticeStreamStarted, StreamNotice{
			HorseID:   h.ID,
			StreamURL: ViewerURL(token),
		})

	case link.EventStreamError:
		if err := s.devices.InvalidateStreamToken(ctx, cam.ID); err != nil {
			return fmt.Errorf("invalidating stream token: %w", err)
		}
		s.hub.Send(h.OwnerID, NoticeStreamError, StreamNotice{
			HorseID:      h.ID,
			ErrorMessage: evt.ErrorMessage,
		})

	default:
		return fmt.Errorf("unexpected camera event type %q", evt.Type)
	}

	return nil
}

// resolveCamera resolves and class-checks the horse's assigned camera.
func (s *Service) resolveCamera(ctx context.Context, h *horse.Horse) (*device.Device, error) {
	if !h.HasCamera() {
		return nil, fmt.Errorf("%w: horse %s", ErrNoCamera, h.ID)
	}

	cam, err := s.devices.GetByID(ctx, *h.CameraID)
	if err != nil {
		return nil, fmt.Errorf("resolving camera: %w", err)
	}
	if !cam.IsCamera() {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotACamera, cam.Name, cam.Class)
	}

	return cam, nil
}

// stopCameraFor publishes a stop to the camera of the given horse and
// invalidates its token. Best effort during switching.
func (s *Service) stopCameraFor(ctx context.Context, horseID string) {
	h, err := s.horses.GetByID(ctx, horseID)
	if err != nil {
		s.logger.Warn("previous stream horse gone", "horse_id", horseID)
		return
	}

	cam, err := s.resolveCamera(ctx, h)
	if err != nil {
		s.logger.Warn("previous stream camera unresolvable",
			"horse_id", horseID,
			"error", err)
		return
	}

	if err := s.devices.InvalidateStreamToken(ctx, cam.ID); err != nil {
		s.logger.Error("invalidating previous stream token",
			"camera", cam.Name,
			"error", err)
	}

	cmd := link.NewStopStreamCommand(horseID)
	if err := s.publisher.PublishCommand(mqtt.ClassCamera, cam.Name, cmd); err != nil {
		s.logger.Error("publishing stop for previous stream",
			"camera", cam.Name,
			"error", err)
	}
}
