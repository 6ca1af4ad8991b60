// Package ws streams trace records to debugger frontends over WebSocket.
// Each connection gets its own ring subscription; records a slow client
// cannot keep up with are dropped rather than stalling the ring.
package ws

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kestrelos/kestrel/internal/kernel/ktrace"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// Handler upgrades connections and fans trace records out to them.
type Handler struct {
	ring   *ktrace.Ring
	logger *zap.Logger
}

// NewHandler creates a trace stream handler.
func NewHandler(ring *ktrace.Ring, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{ring: ring, logger: logger}
}

// StreamTrace upgrades the request and forwards trace records until the
// client disconnects.
func (h *Handler) StreamTrace(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	records, cancel := h.ring.Subscribe()
	defer cancel()

	// Reader goroutine: its only job is to notice the close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	type event struct {
		Type      string `json:"type"`
		Tag       uint32 `json:"tag,omitempty"`
		EventID   uint32 `json:"event_id,omitempty"`
		Timestamp uint64 `json:"timestamp,omitempty"`
		Arg0      uint32 `json:"arg0,omitempty"`
		Arg1      uint32 `json:"arg1,omitempty"`
	}

	if err := h.write(conn, event{Type: "subscribed"}); err != nil {
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case rec, ok := <-records:
			if !ok {
				return
			}
			if err := h.write(conn, event{
				Type:      "record",
				Tag:       rec.Tag,
				EventID:   rec.EventID(),
				Timestamp: rec.Timestamp,
				Arg0:      rec.Arg0,
				Arg1:      rec.Arg1,
			}); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}

func (h *Handler) write(conn *websocket.Conn, v interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}
