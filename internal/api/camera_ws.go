package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

// maxFrameSize caps one uplink frame at 4 MB. A 1080p JPEG is well
// under this; anything larger is a misbehaving device.
const maxFrameSize = 4 << 20

// handleCameraSocket accepts a camera's frame uplink.
//
// The device authenticates by name: it must exist, be a camera, and be
// assigned to a horse. Binary messages go straight into the relay; when
// the socket closes the relay raises camera-gone so viewers stop.
func (s *Server) handleCameraSocket(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	cam, err := s.devices.GetByName(r.Context(), name)
	if err != nil {
		writeNotFound(w, "unknown camera")
		return
	}
	if !cam.IsCamera() {
		writeForbidden(w, "device is not a camera")
		return
	}

	h, err := s.horses.GetByCamera(r.Context(), cam.ID)
	if err != nil {
		writeForbidden(w, "camera is not assigned to a horse")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("camera uplink upgrade failed", "camera", name, "error", err)
		return
	}

	s.logger.Info("camera uplink connected", "camera", name, "horse_id", h.ID)
	conn.SetReadLimit(maxFrameSize)

	defer func() {
		conn.Close()
		s.relay.CameraGone(h.ID)
		s.logger.Info("camera uplink closed", "camera", name, "horse_id", h.ID)
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("camera uplink read error", "camera", name, "error", err)
			}
			return
		}
		if messageType != websocket.BinaryMessage {
			// Cameras only speak frames; anything else is ignored
			continue
		}
		s.relay.Ingest(h.ID, data)
	}
}
