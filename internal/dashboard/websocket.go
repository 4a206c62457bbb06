package dashboard

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/dreamware/knotdc/internal/protocol"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 64 * 1024,
}

// Frame is one websocket message. Either Error is set or both Status and
// Analysis are.
type Frame struct {
	Status   *protocol.StatusResponse `json:"estado,omitempty"`
	Analysis *Analysis                `json:"analisis,omitempty"`
	Session  string                   `json:"sesion"`
	Error    string                   `json:"error,omitempty"`
	Sequence int                      `json:"secuencia"`
}

const writeWait = 5 * time.Second

// stream pushes a STATUS frame immediately and then every refresh interval
// until the client goes away.
func (d *Dashboard) stream(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		d.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	defer ws.Close()

	session := uuid.NewString()
	d.logger.Info("websocket client connected", "session", session)

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// Drain client frames so close and ping control messages are handled.
	go func() {
		defer cancel()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(d.refresh)
	defer ticker.Stop()

	for seq := 1; ; seq++ {
		frame := Frame{Session: session, Sequence: seq}
		if st, err := d.backend.Status(ctx); err != nil {
			frame.Error = err.Error()
		} else {
			a := Analyze(st)
			frame.Status = &st
			frame.Analysis = &a
		}

		_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := ws.WriteJSON(frame); err != nil {
			d.logger.Info("websocket client disconnected", "session", session, "error", err)
			return
		}

		select {
		case <-ctx.Done():
			d.logger.Info("websocket client disconnected", "session", session)
			return
		case <-ticker.C:
		}
	}
}
