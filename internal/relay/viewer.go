package relay

import "sync"

// Viewer follows one horse's frames through a single-slot mailbox.
//
// When the consumer is backpressured only the newest pending sequence
// number survives; intermediate wake-ups are intentionally skipped.
// The consumer fetches bytes with LatestFrame when it is ready to
// write, so it always serves the freshest frame.
type Viewer struct {
	horseID string
	notices chan uint64
	gone    chan struct{}

	goneOnce  sync.Once
	closeOnce sync.Once
	unsubs    []func()
}

// NewViewer subscribes a viewer to one horse's notices.
func (r *Relay) NewViewer(horseID string) *Viewer {
	v := &Viewer{
		horseID: horseID,
		notices: make(chan uint64, 1),
		gone:    make(chan struct{}),
	}

	unsubFrames := r.SubscribeFrames(func(n FrameNotice) {
		if n.HorseID != v.horseID {
			return
		}
		v.offer(n.Seq)
	})
	unsubGone := r.SubscribeCameraGone(func(n CameraGoneNotice) {
		if n.HorseID != v.horseID {
			return
		}
		v.goneOnce.Do(func() { close(v.gone) })
	})
	v.unsubs = []func(){unsubFrames, unsubGone}

	return v
}

// offer replaces any pending sequence number with the newer one.
func (v *Viewer) offer(seq uint64) {
	for {
		select {
		case v.notices <- seq:
			return
		default:
			select {
			case <-v.notices:
			default:
			}
		}
	}
}

// Notices delivers the newest pending frame sequence number.
func (v *Viewer) Notices() <-chan uint64 {
	return v.notices
}

// Gone is closed when the horse's camera uplink drops.
func (v *Viewer) Gone() <-chan struct{} {
	return v.gone
}

// Close unregisters the viewer. Pending notices are discarded.
func (v *Viewer) Close() {
	v.closeOnce.Do(func() {
		for _, unsub := range v.unsubs {
			unsub()
		}
	})
}
