package relay

import (
	"sync"
	"time"

	"github.com/kelindar/event"

	"github.com/stablelink/stable-core/internal/infrastructure/logging"
)

// defaultNotifyInterval caps frame notices at roughly twelve per second
// per horse regardless of camera upload rate.
const defaultNotifyInterval = 80 * time.Millisecond

// Notice type identifiers for the event dispatcher.
const (
	typeFrame uint32 = iota + 1
	typeCameraGone
)

// FrameNotice signals that a horse's buffer slot holds a newer frame.
// Seq increases per accepted frame, so a subscriber holding seq N can
// ignore any notice with Seq <= N.
type FrameNotice struct {
	HorseID string
	Seq     uint64
}

// Type returns the dispatcher type identifier for FrameNotice.
func (FrameNotice) Type() uint32 { return typeFrame }

// CameraGoneNotice signals that a horse's camera uplink closed and its
// buffered frame was cleared.
type CameraGoneNotice struct {
	HorseID string
}

// Type returns the dispatcher type identifier for CameraGoneNotice.
func (CameraGoneNotice) Type() uint32 { return typeCameraGone }

type slot struct {
	frame      []byte
	seq        uint64
	lastNotify time.Time
	trailing   *time.Timer
}

// Relay buffers the latest frame per horse and fans out throttled
// notices to subscribers.
type Relay struct {
	dispatcher *event.Dispatcher
	interval   time.Duration
	metrics    *Metrics
	logger     *logging.Logger

	mu    sync.Mutex
	slots map[string]*slot
}

// New creates a frame relay.
//
// Parameters:
//   - interval: minimum spacing between frame notices per horse;
//     <=0 uses the 80ms default
//   - metrics: relay instruments, required
func New(interval time.Duration, metrics *Metrics, logger *logging.Logger) *Relay {
	if interval <= 0 {
		interval = defaultNotifyInterval
	}
	return &Relay{
		dispatcher: event.NewDispatcher(),
		interval:   interval,
		metrics:    metrics,
		logger:     logger.With("component", "relay"),
		slots:      make(map[string]*slot),
	}
}

// Ingest accepts a binary frame for a horse.
//
// The frame must open with the JPEG start-of-image marker; anything
// else increments the dropped counter and is discarded. Accepted frames
// overwrite the horse's single slot and bump its sequence number. A
// notice is published immediately when the throttle window allows,
// otherwise a trailing notice is armed so the newest frame is always
// announced eventually. The relay takes ownership of the slice.
func (r *Relay) Ingest(horseID string, frame []byte) {
	if !isJPEG(frame) {
		r.metrics.framesDropped.Inc()
		r.logger.Debug("dropping invalid frame",
			"horse_id", horseID,
			"bytes", len(frame))
		return
	}

	r.mu.Lock()
	s, ok := r.slots[horseID]
	if !ok {
		s = &slot{}
		r.slots[horseID] = s
		r.metrics.activeCameras.Inc()
	}
	s.frame = frame
	s.seq++
	r.metrics.framesReceived.Inc()

	now := time.Now()
	var notice *FrameNotice
	if now.Sub(s.lastNotify) >= r.interval {
		s.lastNotify = now
		if s.trailing != nil {
			s.trailing.Stop()
			s.trailing = nil
		}
		notice = &FrameNotice{HorseID: horseID, Seq: s.seq}
	} else if s.trailing == nil {
		wait := r.interval - now.Sub(s.lastNotify)
		s.trailing = time.AfterFunc(wait, func() { r.publishTrailing(horseID) })
	}
	r.mu.Unlock()

	if notice != nil {
		r.metrics.notices.Inc()
		event.Publish(r.dispatcher, *notice)
	}
}

// publishTrailing announces the newest suppressed frame once the
// throttle window reopens.
func (r *Relay) publishTrailing(horseID string) {
	r.mu.Lock()
	s, ok := r.slots[horseID]
	if !ok {
		r.mu.Unlock()
		return
	}
	s.trailing = nil
	s.lastNotify = time.Now()
	notice := FrameNotice{HorseID: horseID, Seq: s.seq}
	r.mu.Unlock()

	r.metrics.notices.Inc()
	event.Publish(r.dispatcher, notice)
}

// CameraGone clears a horse's buffer slot and tells viewers the camera
// uplink closed, so nobody keeps serving a frame from a dead device.
func (r *Relay) CameraGone(horseID string) {
	r.mu.Lock()
	s, ok := r.slots[horseID]
	if ok {
		if s.trailing != nil {
			s.trailing.Stop()
		}
		delete(r.slots, horseID)
		r.metrics.activeCameras.Dec()
	}
	r.mu.Unlock()

	event.Publish(r.dispatcher, CameraGoneNotice{HorseID: horseID})

	r.logger.Info("camera gone", "horse_id", horseID)
}

// LatestFrame returns the horse's buffered frame and its sequence
// number. ok is false when no camera has delivered a frame.
func (r *Relay) LatestFrame(horseID string) (frame []byte, seq uint64, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, found := r.slots[horseID]
	if !found || s.frame == nil {
		return nil, 0, false
	}
	return s.frame, s.seq, true
}

// SubscribeFrames registers a handler for frame notices across all
// horses. Returns an unsubscribe function.
func (r *Relay) SubscribeFrames(fn func(FrameNotice)) func() {
	return event.Subscribe(r.dispatcher, fn)
}

// SubscribeCameraGone registers a handler for camera-gone notices.
// Returns an unsubscribe function.
func (r *Relay) SubscribeCameraGone(fn func(CameraGoneNotice)) func() {
	return event.Subscribe(r.dispatcher, fn)
}

// Close stops pending trailing timers and shuts the dispatcher down.
func (r *Relay) Close() error {
	r.mu.Lock()
	for _, s := range r.slots {
		if s.trailing != nil {
			s.trailing.Stop()
		}
	}
	r.slots = make(map[string]*slot)
	r.mu.Unlock()
	return r.dispatcher.Close()
}

// isJPEG checks the three-byte start-of-image marker.
func isJPEG(frame []byte) bool {
	return len(frame) >= 3 && frame[0] == 0xFF && frame[1] == 0xD8 && frame[2] == 0xFF
}
