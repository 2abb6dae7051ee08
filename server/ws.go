package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/aidelabs/aide/pose"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1 << 20,
	WriteBufferSize: 1 << 20,
	// Local single-user gateway; origin policy is handled by the CORS
	// middleware for the HTTP surface.
	CheckOrigin: func(*http.Request) bool { return true },
}

// PoseHandler relays binary image frames through the pose pipeline: one
// frame in, one annotated JPEG out. Plain HTTP requests get a liveness
// banner instead.
//
// Frames are not queued: a mailbox of depth one holds the newest pending
// frame and an arriving frame replaces any unprocessed predecessor, so a
// client sending faster than inference runs sees bounded latency rather
// than a growing backlog.
func (s *Server) PoseHandler(c *gin.Context) {
	if !websocket.IsWebSocketUpgrade(c.Request) {
		c.String(http.StatusOK, "aide server is running")
		return
	}

	if !s.pose.Ready() {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": pose.ErrNotReady.Error()})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	frames := make(chan []byte, 1)
	go func() {
		defer close(frames)
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					slog.Debug("websocket read ended", "error", err)
				}
				return
			}
			if mt != websocket.BinaryMessage {
				continue
			}
			offerFrame(frames, data)
		}
	}()

	for frame := range frames {
		out, err := s.pose.Process(frame)
		if err != nil {
			// A malformed frame is a per-frame error; the relay stays up.
			slog.Warn("pose frame failed", "error", err)
			continue
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, out); err != nil {
			slog.Debug("websocket write ended", "error", err)
			return
		}
	}
}

// offerFrame places a frame in the mailbox, discarding any unprocessed
// predecessor so the consumer always works on the newest frame.
func offerFrame(frames chan []byte, frame []byte) {
	for {
		select {
		case frames <- frame:
			return
		default:
		}
		select {
		case <-frames:
		default:
		}
	}
}
