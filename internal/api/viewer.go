package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// mjpegBoundary separates frames in the multipart viewer response.
const mjpegBoundary = "frame"

// handleStreamViewer serves a live camera feed as an MJPEG stream.
//
// Two independent checks gate access: the token must be the camera's
// current valid stream token, and the resolved horse must be its
// owner's recorded active stream. A leaked URL therefore dies as soon
// as the owner's session ends.
func (s *Server) handleStreamViewer(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	cam, err := s.devices.GetByStreamToken(r.Context(), token)
	if err != nil {
		writeNotFound(w, "unknown stream")
		return
	}

	h, err := s.horses.GetByCamera(r.Context(), cam.ID)
	if err != nil {
		writeNotFound(w, "unknown stream")
		return
	}

	active, err := s.streams.ActiveHorse(r.Context(), h.OwnerID)
	if err != nil {
		writeInternalError(w, "internal server error")
		return
	}
	if active != h.ID {
		writeForbidden(w, "stream is not active")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeInternalError(w, "streaming unsupported")
		return
	}

	viewer := s.relay.NewViewer(h.ID)
	defer viewer.Close()

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+mjpegBoundary)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	if s.metrics != nil {
		s.metrics.activeViewers.Inc()
		defer s.metrics.activeViewers.Dec()
	}

	// Late joiners get the freshest frame before the first notice
	var lastSeq uint64
	if frame, seq, ok := s.relay.LatestFrame(h.ID); ok {
		if err := writeMJPEGPart(w, flusher, frame); err != nil {
			return
		}
		lastSeq = seq
	}

	for {
		select {
		case <-r.Context().Done():
			return

		case <-viewer.Gone():
			// Placeholder instead of freezing on a stale frame
			if len(s.placeholder) > 0 {
				//nolint:errcheck // Best-effort final frame before close
				writeMJPEGPart(w, flusher, s.placeholder)
			}
			return

		case seq := <-viewer.Notices():
			if seq <= lastSeq {
				// Stale wake-up, a newer frame was already served
				continue
			}
			frame, frameSeq, ok := s.relay.LatestFrame(h.ID)
			if !ok {
				continue
			}
			if err := writeMJPEGPart(w, flusher, frame); err != nil {
				return
			}
			lastSeq = frameSeq
		}
	}
}

// writeMJPEGPart writes one JPEG as a multipart section and flushes it.
func writeMJPEGPart(w http.ResponseWriter, flusher http.Flusher, frame []byte) error {
	if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", mjpegBoundary, len(frame)); err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return err
	}
	if _, err := w.Write([]byte("\r\n")); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
